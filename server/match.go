package main

import "time"

// RoundState is the lifecycle phase of the shift cycle
type RoundState int

const (
	AwaitingPlayers RoundState = 0
	Starting        RoundState = 1
	InProgress      RoundState = 2
	Ending          RoundState = 3 // post-shift delay before returning to the lobby
)

func (s RoundState) String() string {
	switch s {
	case AwaitingPlayers:
		return "awaitingPlayers"
	case Starting:
		return "starting"
	case InProgress:
		return "inProgress"
	case Ending:
		return "ending"
	}
	return "unknown"
}

// Round holds the process-wide shift state and the timers owned by the
// current phase. Every phase transition stops the owned timers.
type Round struct {
	State     RoundState
	ShiftID   string
	StartedAt time.Time

	queued      playerSet
	gamePlayers playerSet
	active      playerSet

	deadline time.Time // countdown expiry while Starting

	timers  []Timer // stopped on every transition
	accrual []Timer // score and chamber heat loops
}

// NewRound creates a round waiting for players
func NewRound() *Round {
	return &Round{
		State:       AwaitingPlayers,
		queued:      make(playerSet),
		gamePlayers: make(playerSet),
		active:      make(playerSet),
	}
}

// own registers a timer that dies with the current phase
func (r *Round) own(t Timer) {
	r.timers = append(r.timers, t)
}

// ownAccrual registers a loop that also stops once nobody is active
func (r *Round) ownAccrual(t Timer) {
	r.accrual = append(r.accrual, t)
}

// stopAccrual stops the score and chamber heat loops
func (r *Round) stopAccrual() {
	for _, t := range r.accrual {
		t.Stop()
	}
	r.accrual = nil
}

// stopTimers stops every timer owned by the current phase
func (r *Round) stopTimers() {
	for _, t := range r.timers {
		t.Stop()
	}
	r.timers = nil
	r.stopAccrual()
}

// transition flips the state and stops the previous phase's timers
func (r *Round) transition(to RoundState) {
	r.stopTimers()
	r.State = to
}

// Queued reports whether id is waiting for the next shift
func (r *Round) Queued(id PlayerID) bool { return r.queued.Has(id) }

// Active reports whether id is still playing this shift
func (r *Round) Active(id PlayerID) bool { return r.active.Has(id) }

// ActiveCount returns the number of players still playing
func (r *Round) ActiveCount() int { return len(r.active) }

// QueueLen returns the number of queued players
func (r *Round) QueueLen() int { return len(r.queued) }

// GamePlayerCount returns the number of players moved into the arena
func (r *Round) GamePlayerCount() int { return len(r.gamePlayers) }

// forget drops id from every collection
func (r *Round) forget(id PlayerID) {
	r.queued.Remove(id)
	r.gamePlayers.Remove(id)
	r.active.Remove(id)
}
