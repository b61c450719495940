package main

import (
	"context"
	"time"
)

const loopInboxSize = 1024

// Timer is a handle to a scheduled callback. Stop is idempotent.
type Timer interface {
	Stop()
}

// Scheduler runs deferred and repeating callbacks. Callbacks never overlap:
// each runs to completion before the next one starts.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
	Every(d time.Duration, fn func()) Timer
	Now() time.Time
}

// Loop is a single-goroutine event loop. Timers and transport goroutines
// post closures into its inbox; Run executes them one at a time.
type Loop struct {
	inbox chan func()
	quit  chan struct{}
}

// NewLoop creates a Loop. Call Run to start processing.
func NewLoop() *Loop {
	return &Loop{
		inbox: make(chan func(), loopInboxSize),
		quit:  make(chan struct{}),
	}
}

// Run processes posted closures until ctx is cancelled
func (l *Loop) Run(ctx context.Context) {
	defer close(l.quit)
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.inbox:
			fn()
		}
	}
}

// Post enqueues fn. Dropped if the loop has stopped.
func (l *Loop) Post(fn func()) {
	select {
	case l.inbox <- fn:
	case <-l.quit:
	}
}

// Call runs fn on the loop and waits for it to finish. Returns false if the
// loop stopped first.
func (l *Loop) Call(fn func()) bool {
	done := make(chan struct{})
	l.Post(func() {
		fn()
		close(done)
	})
	select {
	case <-done:
		return true
	case <-l.quit:
		return false
	}
}

// Now returns wall-clock time
func (l *Loop) Now() time.Time {
	return time.Now()
}

// loopTimer's stopped flag is only touched on the loop goroutine, so a tick
// that was already queued when Stop ran is discarded instead of firing.
type loopTimer struct {
	stopped bool
	timer   *time.Timer
	done    chan struct{}
}

func (t *loopTimer) Stop() {
	if t.stopped {
		return
	}
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
	}
	if t.done != nil {
		close(t.done)
	}
}

// AfterFunc schedules fn once after d
func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	t := &loopTimer{}
	t.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			if t.stopped {
				return
			}
			t.stopped = true
			fn()
		})
	})
	return t
}

// Every schedules fn every d until stopped
func (l *Loop) Every(d time.Duration, fn func()) Timer {
	t := &loopTimer{done: make(chan struct{})}
	go func() {
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Post(func() {
					if !t.stopped {
						fn()
					}
				})
			case <-t.done:
				return
			case <-l.quit:
				return
			}
		}
	}()
	return t
}
