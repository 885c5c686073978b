// Package system provides the wall clock used outside tests.
package system

import "time"

// StampLayout formats run timestamps in file names.
const StampLayout = "20060102_150405"

// Clock implements crawler.Clock in a fixed location.
type Clock struct {
	loc *time.Location
}

// New returns a UTC clock.
func New() *Clock {
	return &Clock{loc: time.UTC}
}

// NewIn returns a clock reporting times in loc. A nil loc means UTC.
func NewIn(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &Clock{loc: loc}
}

// Now returns the current time in the clock's location.
func (c *Clock) Now() time.Time {
	return time.Now().In(c.loc)
}

// Stamp returns Now formatted with StampLayout.
func (c *Clock) Stamp() string {
	return c.Now().Format(StampLayout)
}
