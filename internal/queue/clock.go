package queue

import "time"

// Clock supplies the current time. Injectable so tests can simulate the
// passage of time without sleeping.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// NewClock returns the wall clock (UTC).
func NewClock() Clock { return realClock{} }
