package bridge

import "time"

// Scheduler abstracts deferred execution so tests can fire deadlines
// deterministically.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func())
}

// TimerScheduler runs deferred work on real timers.
type TimerScheduler struct{}

func (TimerScheduler) AfterFunc(d time.Duration, fn func()) {
	time.AfterFunc(d, fn)
}
