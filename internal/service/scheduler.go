package service

import "time"

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Scheduler runs callbacks after a delay. The production implementation is
// backed by time.AfterFunc; tests drive a manual clock.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

// NewRealScheduler returns a Scheduler backed by the runtime timers.
func NewRealScheduler() Scheduler {
	return realScheduler{}
}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// ProgressTimings controls the cosmetic progress shown while the extract call
// is outstanding.
type ProgressTimings struct {
	ProcessingAfter time.Duration
	ValidatingAfter time.Duration
	MessageInterval time.Duration
}

func DefaultProgressTimings() ProgressTimings {
	return ProgressTimings{
		ProcessingAfter: 1000 * time.Millisecond,
		ValidatingAfter: 2500 * time.Millisecond,
		MessageInterval: 1200 * time.Millisecond,
	}
}

// withDefaults replaces every non-positive timing with its default.
func (t ProgressTimings) withDefaults() ProgressTimings {
	d := DefaultProgressTimings()
	if t.ProcessingAfter <= 0 {
		t.ProcessingAfter = d.ProcessingAfter
	}
	if t.ValidatingAfter <= 0 {
		t.ValidatingAfter = d.ValidatingAfter
	}
	if t.MessageInterval <= 0 {
		t.MessageInterval = d.MessageInterval
	}
	return t
}
