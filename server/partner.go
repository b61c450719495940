package main

import (
	"errors"
	"sort"
)

var (
	ErrSelfPartner        = errors.New("cannot partner with yourself")
	ErrAlreadyPartnered   = errors.New("you already have a partner")
	ErrPartnerUnavailable = errors.New("player is not available")
)

// SelectResult describes what a selection did
type SelectResult int

const (
	SelectPending   SelectResult = iota // recorded, waiting for the target to select back
	SelectCommitted                     // mutual selection, partnership written
)

// PartnerDirectory pairs players by mutual selection. partners is always
// symmetric; selections maps a requester to the set of targets it picked.
type PartnerDirectory struct {
	partners   map[PlayerID]PlayerID
	selections map[PlayerID]map[PlayerID]struct{}
}

// NewPartnerDirectory creates an empty directory
func NewPartnerDirectory() *PartnerDirectory {
	return &PartnerDirectory{
		partners:   make(map[PlayerID]PlayerID),
		selections: make(map[PlayerID]map[PlayerID]struct{}),
	}
}

// Select records that requester picked target. When target had already
// picked requester, the partnership is committed.
func (d *PartnerDirectory) Select(requester, target PlayerID) (SelectResult, error) {
	if requester == target {
		return SelectPending, ErrSelfPartner
	}
	if _, ok := d.partners[requester]; ok {
		return SelectPending, ErrAlreadyPartnered
	}
	if _, ok := d.partners[target]; ok {
		return SelectPending, ErrPartnerUnavailable
	}

	if _, ok := d.selections[target][requester]; ok {
		d.commit(requester, target)
		return SelectCommitted, nil
	}

	picks, ok := d.selections[requester]
	if !ok {
		picks = make(map[PlayerID]struct{})
		d.selections[requester] = picks
	}
	picks[target] = struct{}{}
	return SelectPending, nil
}

// commit writes both directions in one step and drops every pending
// selection made by or aimed at either player.
func (d *PartnerDirectory) commit(a, b PlayerID) {
	d.partners[a] = b
	d.partners[b] = a
	d.dropSelections(a)
	d.dropSelections(b)
}

func (d *PartnerDirectory) dropSelections(id PlayerID) {
	delete(d.selections, id)
	for requester, picks := range d.selections {
		delete(picks, id)
		if len(picks) == 0 {
			delete(d.selections, requester)
		}
	}
}

// Withdraw drops requester's pending selection of target
func (d *PartnerDirectory) Withdraw(requester, target PlayerID) bool {
	picks, ok := d.selections[requester]
	if !ok {
		return false
	}
	if _, ok := picks[target]; !ok {
		return false
	}
	delete(picks, target)
	if len(picks) == 0 {
		delete(d.selections, requester)
	}
	return true
}

// Requesters returns the players with a pending selection of target, lowest id first
func (d *PartnerDirectory) Requesters(target PlayerID) []PlayerID {
	var out []PlayerID
	for requester, picks := range d.selections {
		if _, ok := picks[target]; ok {
			out = append(out, requester)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Partner returns id's confirmed partner
func (d *PartnerDirectory) Partner(id PlayerID) (PlayerID, bool) {
	p, ok := d.partners[id]
	return p, ok
}

// Remove erases id's partnership on both sides and any pending selections
// involving id. Returns the former partner, if any.
func (d *PartnerDirectory) Remove(id PlayerID) (PlayerID, bool) {
	d.dropSelections(id)
	p, ok := d.partners[id]
	if !ok {
		return 0, false
	}
	delete(d.partners, id)
	delete(d.partners, p)
	return p, true
}

// ResetAll clears partnerships and pending selections
func (d *PartnerDirectory) ResetAll() {
	d.partners = make(map[PlayerID]PlayerID)
	d.selections = make(map[PlayerID]map[PlayerID]struct{})
}

// Pairs returns the number of committed partnerships
func (d *PartnerDirectory) Pairs() int {
	return len(d.partners) / 2
}
