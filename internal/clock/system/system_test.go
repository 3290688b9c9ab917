package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClockNowUTC(t *testing.T) {
	t.Parallel()

	clk := New()
	require.NotNil(t, clk)

	before := time.Now().UTC().Add(-time.Second)
	got := clk.Now()
	after := time.Now().UTC().Add(time.Second)

	assert.Equal(t, time.UTC, got.Location())
	assert.True(t, got.After(before) && got.Before(after), "got %v", got)
}

func TestClockNowNonDecreasing(t *testing.T) {
	t.Parallel()

	clk := New()
	first := clk.Now()
	assert.False(t, clk.Now().Before(first))
}

func TestClockPrecision(t *testing.T) {
	t.Parallel()

	got := New(WithPrecision(time.Millisecond)).Now()
	assert.Zero(t, got.Nanosecond()%int(time.Millisecond))
	assert.Equal(t, time.UTC, got.Location())

	// Non-positive precision keeps the default.
	assert.Zero(t, New(WithPrecision(-time.Second)).precision)
}
