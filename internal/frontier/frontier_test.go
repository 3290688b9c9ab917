package frontier

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTakeNextIsFIFO(t *testing.T) {
	t.Parallel()

	f := New()
	f.Seed("https://a.com/")
	require.True(t, f.Offer("https://a.com/1"))
	require.True(t, f.Offer("https://a.com/2"))

	for _, want := range []string{"https://a.com/", "https://a.com/1", "https://a.com/2"} {
		got, ok := f.TakeNext()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := f.TakeNext()
	assert.False(t, ok)
	assert.Equal(t, 3, f.VisitedLen())
	assert.Equal(t, 0, f.Len())
}

func TestSeedOnlyOnce(t *testing.T) {
	t.Parallel()

	f := New()
	f.Seed("https://a.com/")
	f.Seed("https://b.com/")
	assert.Equal(t, 1, f.Len())
	assert.False(t, f.Seen("https://b.com/"))
}

func TestOfferRejectsVisitedAndQueued(t *testing.T) {
	t.Parallel()

	f := New()
	f.Seed("https://a.com/")
	assert.False(t, f.Offer("https://a.com/"), "queued address must not be offered twice")

	got, ok := f.TakeNext()
	require.True(t, ok)
	assert.False(t, f.Offer(got), "visited address must never re-enter the queue")
	assert.Equal(t, 0, f.Len())
}

func TestMarkVisitedRemovesFromQueue(t *testing.T) {
	t.Parallel()

	f := New()
	require.True(t, f.Offer("https://a.com/x"))
	f.MarkVisited("https://a.com/x")
	f.MarkVisited("https://a.com/x")

	_, ok := f.TakeNext()
	assert.False(t, ok)
	assert.Equal(t, 1, f.VisitedLen())
	assert.False(t, f.Offer("https://a.com/x"))
}

func TestConcurrentOfferSameAddress(t *testing.T) {
	t.Parallel()

	f := New()
	const racers = 64
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		added int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if f.Offer("https://a.com/same") {
				mu.Lock()
				added++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, added)
	snap := f.Snapshot()
	assert.Equal(t, []string{"https://a.com/same"}, snap.Unvisited)
	assert.Empty(t, snap.Visited)
}

func TestConcurrentOfferAndTakeKeepSetsDisjoint(t *testing.T) {
	t.Parallel()

	f := New()
	const addresses = 200
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < addresses; i++ {
				f.Offer(fmt.Sprintf("https://a.com/%d", i))
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < addresses; i++ {
				f.TakeNext()
			}
		}()
	}
	wg.Wait()

	snap := f.Snapshot()
	seen := make(map[string]int)
	for _, a := range snap.Visited {
		seen[a]++
	}
	for _, a := range snap.Unvisited {
		seen[a]++
	}
	assert.Len(t, seen, addresses)
	for address, n := range seen {
		assert.Equal(t, 1, n, "address %s appears in both sets", address)
	}
}
