package main

import "time"

// TimerPurpose names what a per-player timer does
type TimerPurpose int

const (
	TimerLavaHeat  TimerPurpose = iota // heat accrual while in lava
	TimerStatePush                     // periodic updatePlayerState push
	TimerCharge                        // super-charge hold sampling
)

type timerKey struct {
	player  PlayerID
	purpose TimerPurpose
}

// TimerRegistry holds at most one live timer per (player, purpose).
// Starting a timer always cancels the previous one for the same key.
type TimerRegistry struct {
	sched  Scheduler
	timers map[timerKey]Timer
}

// NewTimerRegistry creates a registry backed by sched
func NewTimerRegistry(sched Scheduler) *TimerRegistry {
	return &TimerRegistry{
		sched:  sched,
		timers: make(map[timerKey]Timer),
	}
}

// Every cancels any live timer for (id, purpose) and starts a new repeating one
func (r *TimerRegistry) Every(id PlayerID, purpose TimerPurpose, d time.Duration, fn func()) {
	r.Cancel(id, purpose)
	r.timers[timerKey{id, purpose}] = r.sched.Every(d, fn)
}

// Cancel stops and forgets the timer for (id, purpose). No-op if absent.
func (r *TimerRegistry) Cancel(id PlayerID, purpose TimerPurpose) {
	key := timerKey{id, purpose}
	if t, ok := r.timers[key]; ok {
		t.Stop()
		delete(r.timers, key)
	}
}

// CancelAll stops every timer keyed to id
func (r *TimerRegistry) CancelAll(id PlayerID) {
	for key, t := range r.timers {
		if key.player == id {
			t.Stop()
			delete(r.timers, key)
		}
	}
}

// Live reports whether a timer is registered for (id, purpose)
func (r *TimerRegistry) Live(id PlayerID, purpose TimerPurpose) bool {
	_, ok := r.timers[timerKey{id, purpose}]
	return ok
}

// Len returns the number of registered timers
func (r *TimerRegistry) Len() int {
	return len(r.timers)
}
