package main

import "sort"

// LeaderEntry is one leaderboard row
type LeaderEntry struct {
	Name  string `json:"name" msgpack:"name"`
	Score int    `json:"score" msgpack:"score"`
}

// Leaderboard keeps the last-shift and all-time top lists. Both are bounded
// and sorted by score, highest first. allTime holds one entry per name.
type Leaderboard struct {
	size      int
	lastShift []LeaderEntry
	allTime   []LeaderEntry
}

// NewLeaderboard creates boards bounded to size entries
func NewLeaderboard(size int) *Leaderboard {
	if size <= 0 {
		size = 10
	}
	return &Leaderboard{size: size}
}

// Seed loads previously persisted all-time entries
func (lb *Leaderboard) Seed(entries []LeaderEntry) {
	for _, e := range entries {
		lb.recordAllTime(e)
	}
}

// Record adds a finished score to both boards. Returns true if the
// all-time board changed.
func (lb *Leaderboard) Record(name string, score int) bool {
	e := LeaderEntry{Name: name, Score: score}
	lb.lastShift = append(lb.lastShift, e)
	sortEntries(lb.lastShift)
	if len(lb.lastShift) > lb.size {
		lb.lastShift = lb.lastShift[:lb.size]
	}
	return lb.recordAllTime(e)
}

func (lb *Leaderboard) recordAllTime(e LeaderEntry) bool {
	for i := range lb.allTime {
		if lb.allTime[i].Name != e.Name {
			continue
		}
		if e.Score <= lb.allTime[i].Score {
			return false
		}
		lb.allTime[i].Score = e.Score
		sortEntries(lb.allTime)
		return true
	}
	lb.allTime = append(lb.allTime, e)
	sortEntries(lb.allTime)
	if len(lb.allTime) > lb.size {
		dropped := lb.allTime[lb.size]
		lb.allTime = lb.allTime[:lb.size]
		if dropped == e {
			return false
		}
	}
	return true
}

// ResetShift clears the last-shift board at the start of a shift
func (lb *Leaderboard) ResetShift() {
	lb.lastShift = lb.lastShift[:0]
}

// LastShift returns a copy of the last-shift board
func (lb *Leaderboard) LastShift() []LeaderEntry {
	return append([]LeaderEntry{}, lb.lastShift...)
}

// AllTime returns a copy of the all-time board
func (lb *Leaderboard) AllTime() []LeaderEntry {
	return append([]LeaderEntry{}, lb.allTime...)
}

func sortEntries(entries []LeaderEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
}
