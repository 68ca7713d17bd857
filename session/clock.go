package session

import "time"

// Clock abstracts wall-clock reads so expiry behavior can be tested by
// advancing a fake clock instead of sleeping.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }
