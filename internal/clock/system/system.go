// Package system provides the wall clock used to stamp crawl runs.
package system

import "time"

// Clock implements crawler.Clock using time.Now. Readings are UTC and carry no
// monotonic component, so they compare and print as plain wall times.
type Clock struct {
	precision time.Duration
}

// Option customizes a Clock.
type Option func(*Clock)

// WithPrecision truncates readings to d. Non-positive values keep full precision.
func WithPrecision(d time.Duration) Option {
	return func(c *Clock) {
		if d > 0 {
			c.precision = d
		}
	}
}

// New creates a new Clock.
func New(opts ...Option) *Clock {
	c := &Clock{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Now returns the current time in UTC.
func (c *Clock) Now() time.Time {
	now := time.Now().UTC()
	if c.precision > 0 {
		now = now.Truncate(c.precision)
	}
	return now
}
