package main

import (
	"sort"
	"time"
)

// PlayerID is assigned at connect time and never reused within a process
type PlayerID int

// PlayerInput holds the latest held-action flags reported by the client
type PlayerInput struct {
	Teleport bool
	Charge   bool
}

// PlayerSession is the per-connection derived state. It is plain data; all
// mutation goes through Game so timers and sets stay consistent.
type PlayerSession struct {
	ID   PlayerID
	Name string

	Heat            int
	InLava          bool
	Score           int
	TopScore        int
	TeleportCharges int
	LastTeleport    time.Time

	// heat clusters currently occupied; multiplier is boosted while non-empty
	Zones map[string]struct{}

	// stations consumed this shift
	SuperChargesUsed map[string]struct{}

	// armed super-charge station, "" when none
	ChargeStation string
	Charging      bool
	ChargeElapsed time.Duration

	Input PlayerInput
	Body  *Body
}

// NewPlayerSession returns a session with default values
func NewPlayerSession(id PlayerID, name string, charges int) *PlayerSession {
	return &PlayerSession{
		ID:               id,
		Name:             name,
		Heat:             1,
		TeleportCharges:  charges,
		Zones:            make(map[string]struct{}),
		SuperChargesUsed: make(map[string]struct{}),
	}
}

// Multiplier returns the current score multiplier
func (p *PlayerSession) Multiplier(bonus int) int {
	if len(p.Zones) > 0 {
		return bonus
	}
	return 1
}

// ResetForShift prepares the session for a new shift
func (p *PlayerSession) ResetForShift(charges int) {
	p.Heat = 1
	p.InLava = false
	p.Score = 0
	p.TeleportCharges = charges
	p.LastTeleport = time.Time{}
	p.Zones = make(map[string]struct{})
	p.SuperChargesUsed = make(map[string]struct{})
	p.DisarmCharge()
}

// CoolDown resets heat after overheat or shift end
func (p *PlayerSession) CoolDown() {
	p.Heat = 1
	p.InLava = false
}

// DisarmCharge drops any armed or in-progress super charge
func (p *PlayerSession) DisarmCharge() {
	p.ChargeStation = ""
	p.Charging = false
	p.ChargeElapsed = 0
}

// BankTopScore raises TopScore to Score if higher. TopScore never decreases.
func (p *PlayerSession) BankTopScore() {
	if p.Score > p.TopScore {
		p.TopScore = p.Score
	}
}

// playerSet is a membership set of player ids
type playerSet map[PlayerID]struct{}

func (s playerSet) Add(id PlayerID)    { s[id] = struct{}{} }
func (s playerSet) Remove(id PlayerID) { delete(s, id) }
func (s playerSet) Clear()             { clear(s) }

func (s playerSet) Has(id PlayerID) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in ascending id order
func (s playerSet) Sorted() []PlayerID {
	ids := make([]PlayerID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
