// Package service implements business logic on top of ports.
package service

import "time"

// Clock abstracts time.Now so staleness and age calculations are
// deterministic in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }
