// Package system provides the wall clock used to stamp progress events,
// measure batch runtimes, and date stored result rows.
package system

import "time"

// Clock implements crawler.Clock. Times are always UTC so persisted rows and
// event timestamps agree across hosts.
type Clock struct{}

// New returns a Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time. The monotonic reading is kept, so
// differences between two calls are safe for elapsed-time measurement.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
