package main

import (
	"sync"
	"testing"
	"time"
)

// mockBroadcaster captures sent messages for testing
type mockBroadcaster struct {
	mu       sync.Mutex
	messages []OutMessage
}

func (m *mockBroadcaster) Send(msg OutMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
}

func (m *mockBroadcaster) all(typ string) []OutMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []OutMessage
	for _, msg := range m.messages {
		if msg.MessageType() == typ {
			out = append(out, msg)
		}
	}
	return out
}

func (m *mockBroadcaster) count(typ string) int {
	return len(m.all(typ))
}

func (m *mockBroadcaster) last(typ string) OutMessage {
	msgs := m.all(typ)
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
}

func (m *mockBroadcaster) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
}

func inGame(r *Round, id PlayerID) bool { return r.gamePlayers.Has(id) }

func newTestGame(cfg Config) (*Game, *fakeScheduler) {
	s := newFakeScheduler()
	return NewGame(cfg, s), s
}

func join(t *testing.T, g *Game, name string) (*PlayerSession, *mockBroadcaster) {
	t.Helper()
	m := &mockBroadcaster{}
	p := g.Connect(name, m)
	if p == nil {
		t.Fatalf("connect %s failed", name)
	}
	return p, m
}

// startShift queues the players and runs the countdown out
func startShift(t *testing.T, g *Game, s *fakeScheduler, players ...*PlayerSession) {
	t.Helper()
	for _, p := range players {
		g.Enqueue(p.ID)
	}
	s.Advance(g.cfg.Countdown)
	if g.State() != InProgress {
		t.Fatalf("expected inProgress after countdown, got %s", g.State())
	}
}

// pairUp queues two players and has them select each other
func pairUp(t *testing.T, g *Game, a, b *PlayerSession) {
	t.Helper()
	g.Enqueue(a.ID)
	g.Enqueue(b.ID)
	g.SelectPartner(a.ID, b.ID)
	g.SelectPartner(b.ID, a.ID)
	if p, ok := g.partners.Partner(a.ID); !ok || p != b.ID {
		t.Fatalf("expected %d partnered with %d", a.ID, b.ID)
	}
}

func assertPartnerSymmetry(t *testing.T, g *Game) {
	t.Helper()
	assertSymmetric(t, g.partners)
}

func assertActiveSubset(t *testing.T, g *Game) {
	t.Helper()
	for id := range g.round.active {
		if !g.round.gamePlayers.Has(id) {
			t.Fatalf("active player %d is not a game player", id)
		}
	}
}

func TestGameConnectDisconnect(t *testing.T) {
	g, s := newTestGame(DefaultConfig())
	p, m := join(t, g, "Ember")

	welcome, ok := m.last(MsgWelcome).(WelcomeMsg)
	if !ok || welcome.PlayerID != p.ID || welcome.PlayerName != "Ember" {
		t.Errorf("unexpected welcome %+v", welcome)
	}
	if g.PlayerCount() != 1 {
		t.Errorf("expected 1 player, got %d", g.PlayerCount())
	}

	s.Advance(time.Second)
	if n := m.count(MsgPlayerState); n != 10 {
		t.Errorf("expected 10 state pushes in 1s, got %d", n)
	}
	state := m.last(MsgPlayerState).(PlayerStateMsg)
	if state.HeatLevel != 1 || state.TeleportCharges != 3 || state.Multiplier != 1 {
		t.Errorf("unexpected default state %+v", state)
	}

	g.Disconnect(p.ID)
	if g.PlayerCount() != 0 || g.timers.Len() != 0 {
		t.Errorf("disconnect left %d players and %d timers", g.PlayerCount(), g.timers.Len())
	}
	m.reset()
	s.Advance(time.Second)
	if m.count(MsgPlayerState) != 0 {
		t.Error("state push continued after disconnect")
	}
	g.Disconnect(p.ID)
}

func TestGameDefaultName(t *testing.T) {
	g, _ := newTestGame(DefaultConfig())
	p, _ := join(t, g, "")
	if p.Name == "" {
		t.Error("expected a generated name")
	}
}

func TestGameCountdown(t *testing.T) {
	g, s := newTestGame(DefaultConfig())
	p, m := join(t, g, "a")

	if !g.Enqueue(p.ID) {
		t.Fatal("enqueue failed")
	}
	if g.Enqueue(p.ID) {
		t.Error("second enqueue should be a no-op")
	}
	if g.State() != Starting {
		t.Fatalf("expected starting, got %s", g.State())
	}
	first := m.last(MsgCountdown).(CountdownMsg)
	if first.Seconds != 15 || first.ShouldFade {
		t.Errorf("expected 15s without fade, got %+v", first)
	}
	if !m.last(MsgQueueIndicator).(QueueIndicatorMsg).Visible {
		t.Error("queue indicator should be visible")
	}

	s.Advance(12 * time.Second)
	if c := m.last(MsgCountdown).(CountdownMsg); c.Seconds != 3 || c.ShouldFade {
		t.Errorf("expected 3s without fade, got %+v", c)
	}
	s.Advance(time.Second)
	if c := m.last(MsgCountdown).(CountdownMsg); c.Seconds != 2 || !c.ShouldFade {
		t.Errorf("expected 2s with fade, got %+v", c)
	}

	s.Advance(2 * time.Second)
	if g.State() != InProgress {
		t.Fatalf("expected inProgress, got %s", g.State())
	}
	if m.count(MsgGameStart) != 1 {
		t.Errorf("expected one gameStart, got %d", m.count(MsgGameStart))
	}
	if m.last(MsgQueueIndicator).(QueueIndicatorMsg).Visible {
		t.Error("queue indicator should be hidden at shift start")
	}
	if pos := m.last(MsgSetPosition).(SetPositionMsg); pos.Position != g.cfg.ArenaSpawn {
		t.Errorf("expected arena spawn, got %+v", pos.Position)
	}
	if !g.round.Active(p.ID) || !inGame(g.round, p.ID) || g.round.QueueLen() != 0 {
		t.Error("queued player should be moved into the shift")
	}
	if n := m.count(MsgCountdown); n != 15 {
		t.Errorf("expected 15 countdown updates, got %d", n)
	}
	if g.round.ShiftID == "" {
		t.Error("shift id not assigned")
	}
}

func TestGameCountdownEmptyQueue(t *testing.T) {
	g, s := newTestGame(DefaultConfig())
	p, _ := join(t, g, "a")
	g.Enqueue(p.ID)
	g.Disconnect(p.ID)

	s.Advance(g.cfg.Countdown)
	if g.State() != AwaitingPlayers {
		t.Errorf("expected awaitingPlayers, got %s", g.State())
	}
	if s.Live() != 0 {
		t.Errorf("expected no timers left, got %d", s.Live())
	}
}

func TestGameEnqueueDuringEnding(t *testing.T) {
	g, s := newTestGame(DefaultConfig())
	a, _ := join(t, g, "a")
	b, mb := join(t, g, "b")
	startShift(t, g, s, a)
	if !g.EndRound() {
		t.Fatal("end round failed")
	}

	if !g.Enqueue(b.ID) {
		t.Fatal("enqueue during ending should be accepted")
	}
	if g.State() != Ending {
		t.Errorf("joining the queue must not leave ending, got %s", g.State())
	}
	if mb.count(MsgCountdown) != 0 {
		t.Errorf("no countdown expected before the delay ends, got %d", mb.count(MsgCountdown))
	}
	if g.EndRound() {
		t.Error("a second end round should be ignored")
	}

	s.Advance(g.cfg.EndDelay)
	if g.State() != Starting {
		t.Fatalf("expected starting after the delay, got %s", g.State())
	}
	if n := mb.count(MsgCountdown); n != 1 {
		t.Errorf("expected exactly one countdown update, got %d", n)
	}
}

func TestGameCountdownBelowMinPlayers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinPlayers = 2
	g, s := newTestGame(cfg)
	a, ma := join(t, g, "a")
	b, _ := join(t, g, "b")
	g.Enqueue(a.ID)
	g.Enqueue(b.ID)
	g.Disconnect(b.ID)

	s.Advance(g.cfg.Countdown)
	if g.State() != AwaitingPlayers {
		t.Fatalf("expected awaitingPlayers, got %s", g.State())
	}
	if ma.count(MsgGameStart) != 0 || !g.round.Queued(a.ID) {
		t.Error("the remaining player should stay queued without a shift")
	}

	c, _ := join(t, g, "c")
	g.Enqueue(c.ID)
	if g.State() != Starting {
		t.Errorf("a new join should restart the countdown, got %s", g.State())
	}
}

func TestGameMinPlayers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinPlayers = 2
	g, _ := newTestGame(cfg)
	a, _ := join(t, g, "a")
	b, _ := join(t, g, "b")

	g.Enqueue(a.ID)
	if g.State() != AwaitingPlayers {
		t.Fatalf("one player should not start the countdown, got %s", g.State())
	}
	g.Enqueue(b.ID)
	if g.State() != Starting {
		t.Errorf("expected starting, got %s", g.State())
	}
}

func TestGameMutualPartnerSelection(t *testing.T) {
	g, s := newTestGame(DefaultConfig())
	a, ma := join(t, g, "Ash")
	b, mb := join(t, g, "Basalt")
	g.Enqueue(a.ID)
	g.Enqueue(b.ID)

	sel := ma.last(MsgPartnerSelection).(PartnerSelectionMsg)
	if len(sel.AvailablePlayers) != 1 || sel.AvailablePlayers[0].ID != b.ID {
		t.Errorf("expected Basalt available, got %+v", sel.AvailablePlayers)
	}

	g.SelectPartner(a.ID, b.ID)
	req, ok := mb.last(MsgPartnerRequest).(PartnerRequestMsg)
	if !ok || req.FromID != a.ID || req.FromName != "Ash" {
		t.Errorf("expected partner request from Ash, got %+v", req)
	}
	if upd := ma.last(MsgPartnerSelectionUpdate).(PartnerSelectionUpdateMsg); upd.Status != "pending" {
		t.Errorf("expected pending update, got %+v", upd)
	}
	if _, ok := g.partners.Partner(a.ID); ok {
		t.Error("one-sided selection must not commit")
	}
	assertPartnerSymmetry(t, g)

	g.SelectPartner(b.ID, a.ID)
	ca, ok := ma.last(MsgPartnerConfirmed).(PartnerConfirmedMsg)
	if !ok || ca.PartnerID != b.ID || ca.PartnerName != "Basalt" {
		t.Errorf("unexpected confirmation for Ash %+v", ca)
	}
	cb, ok := mb.last(MsgPartnerConfirmed).(PartnerConfirmedMsg)
	if !ok || cb.PartnerID != a.ID || cb.PartnerName != "Ash" {
		t.Errorf("unexpected confirmation for Basalt %+v", cb)
	}
	assertPartnerSymmetry(t, g)

	s.Advance(g.cfg.Countdown)
	if p, _ := g.partners.Partner(b.ID); p != a.ID {
		t.Error("partnership should survive into the shift")
	}
	if st := ma.last(MsgPlayerState).(PlayerStateMsg); st.PartnerID != b.ID {
		t.Errorf("state should carry the partner id, got %d", st.PartnerID)
	}
}

func TestGameSelectPartnerOutsideCountdown(t *testing.T) {
	g, _ := newTestGame(DefaultConfig())
	a, ma := join(t, g, "a")
	b, _ := join(t, g, "b")

	g.SelectPartner(a.ID, b.ID)
	if ma.count(MsgPartnerRequestFailed) != 1 {
		t.Error("selection outside the countdown should fail")
	}

	g.Enqueue(a.ID)
	g.SelectPartner(a.ID, b.ID)
	if ma.count(MsgPartnerRequestFailed) != 2 {
		t.Error("selecting an unqueued player should fail")
	}
	g.SelectPartner(a.ID, a.ID)
	if ma.count(MsgPartnerRequestFailed) != 3 {
		t.Error("selecting yourself should fail")
	}
}

func TestGameRespondToPartnerRequest(t *testing.T) {
	g, _ := newTestGame(DefaultConfig())
	a, ma := join(t, g, "a")
	b, _ := join(t, g, "b")
	c, mc := join(t, g, "c")
	g.Enqueue(a.ID)
	g.Enqueue(b.ID)
	g.Enqueue(c.ID)

	g.SelectPartner(c.ID, b.ID)
	g.RespondPartner(b.ID, false)
	if rej, ok := mc.last(MsgPartnerRequestRejected).(PartnerRequestRejectedMsg); !ok || rej.PlayerName != "b" {
		t.Errorf("expected rejection from b, got %+v", rej)
	}
	if len(g.partners.Requesters(b.ID)) != 0 {
		t.Error("rejection should withdraw the selection")
	}

	g.SelectPartner(a.ID, b.ID)
	g.RespondPartner(b.ID, true)
	if ma.count(MsgPartnerConfirmed) != 1 {
		t.Error("accepting should commit the partnership")
	}
	assertPartnerSymmetry(t, g)

	g.RespondPartner(c.ID, true)
	if mc.count(MsgPartnerRequestFailed) != 1 {
		t.Error("responding with no pending request should fail")
	}
}

func TestGameRespondAnswersLatestRequester(t *testing.T) {
	g, _ := newTestGame(DefaultConfig())
	a, _ := join(t, g, "a")
	b, _ := join(t, g, "b")
	c, _ := join(t, g, "c")
	for _, p := range []*PlayerSession{a, b, c} {
		g.Enqueue(p.ID)
	}

	g.SelectPartner(c.ID, a.ID)
	g.SelectPartner(b.ID, a.ID)
	g.RespondPartner(a.ID, true)
	if p, _ := g.partners.Partner(a.ID); p != b.ID {
		t.Errorf("expected a to partner the latest requester b, got %d", p)
	}
}

// Heat starts at 1 and the chamber adds 1 per tick, so the 999th tick
// reaches 1000 and overheats.
func TestGameChamberHeatOverheat(t *testing.T) {
	g, s := newTestGame(DefaultConfig())
	p, m := join(t, g, "a")
	startShift(t, g, s, p)

	s.Advance(998 * g.cfg.ChamberHeatPeriod)
	if p.Heat != 999 {
		t.Fatalf("expected heat 999, got %d", p.Heat)
	}
	if !g.round.Active(p.ID) || m.count(MsgChat) != 1 {
		t.Fatal("player should still be active")
	}

	s.Advance(g.cfg.ChamberHeatPeriod)
	if g.round.Active(p.ID) {
		t.Fatal("player should have overheated")
	}
	if !inGame(g.round, p.ID) {
		t.Error("overheated player stays a game player until the shift ends")
	}
	if p.Heat != 1 || p.InLava {
		t.Errorf("expected heat reset, got %d %v", p.Heat, p.InLava)
	}
	if p.Body.Position != g.cfg.LobbySpawn {
		t.Errorf("expected lobby position, got %+v", p.Body.Position)
	}
	if p.TopScore != p.Score || p.TopScore == 0 {
		t.Errorf("top score should bank the shift score, got %d/%d", p.TopScore, p.Score)
	}
	if n := len(g.board.LastShift()); n != 1 {
		t.Errorf("expected one leaderboard entry, got %d", n)
	}

	score := p.Score
	s.Advance(10 * time.Second)
	if p.Heat != 1 || p.Score != score {
		t.Error("an overheated player must stop accruing")
	}
	overheats := 0
	for _, msg := range m.all(MsgSetPosition) {
		if msg.(SetPositionMsg).Reason == "overheat" {
			overheats++
		}
	}
	if overheats != 1 {
		t.Errorf("expected exactly one overheat, got %d", overheats)
	}
	if len(g.round.accrual) != 0 {
		t.Error("accrual loops should stop with no active players")
	}
	assertActiveSubset(t, g)
}

func TestGameLavaReentryKeepsOneInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChamberHeatIncrement = 0
	g, s := newTestGame(cfg)
	p, _ := join(t, g, "a")
	startShift(t, g, s, p)

	g.onLavaContact(p.ID, true)
	if !p.InLava {
		t.Error("player should be in lava")
	}
	s.Advance(250 * time.Millisecond)
	if p.Heat != 41 {
		t.Errorf("expected heat 41 after two lava ticks, got %d", p.Heat)
	}

	g.onLavaContact(p.ID, false)
	if p.InLava || g.timers.Live(p.ID, TimerLavaHeat) {
		t.Error("exit should stop the heat interval")
	}

	g.onLavaContact(p.ID, true)
	g.onLavaContact(p.ID, true)
	g.onLavaContact(p.ID, true)
	if g.timers.Len() != 2 {
		t.Errorf("expected state push and one lava timer, got %d", g.timers.Len())
	}
	s.Advance(time.Second)
	if p.Heat != 241 {
		t.Errorf("expected heat 241 from a single interval, got %d", p.Heat)
	}
}

func TestGameLavaOverheat(t *testing.T) {
	g, s := newTestGame(DefaultConfig())
	p, _ := join(t, g, "a")
	startShift(t, g, s, p)

	g.onLavaContact(p.ID, true)
	s.Advance(6 * time.Second)
	if g.round.Active(p.ID) {
		t.Fatal("player should overheat in lava")
	}
	if g.timers.Live(p.ID, TimerLavaHeat) {
		t.Error("overheat should cancel the lava interval")
	}

	g.onLavaContact(p.ID, false)
	g.onLavaContact(p.ID, true)
	if g.timers.Live(p.ID, TimerLavaHeat) {
		t.Error("an overheated player must not accrue lava heat")
	}
}

func TestGameOverheatedPlayerStaysInactive(t *testing.T) {
	g, s := newTestGame(DefaultConfig())
	a, _ := join(t, g, "a")
	b, _ := join(t, g, "b")
	startShift(t, g, s, a, b)

	g.Overheat(a.ID)
	if !g.Enqueue(a.ID) {
		t.Error("an overheated player may queue for the next shift")
	}
	s.Advance(5 * time.Second)
	if g.round.Active(a.ID) {
		t.Error("an overheated player cannot rejoin the active set mid-shift")
	}
	if !g.round.Active(b.ID) {
		t.Error("other players keep playing")
	}
	if g.Enqueue(b.ID) {
		t.Error("an active player cannot queue")
	}
	assertActiveSubset(t, g)
}

func TestGameScoreAndHeatClusterMultiplier(t *testing.T) {
	cfg := DefaultConfig()
	g, s := newTestGame(cfg)
	p, m := join(t, g, "a")
	startShift(t, g, s, p)

	s.Advance(100 * time.Millisecond)
	if p.Score != 10 {
		t.Errorf("expected score 10 after 100ms, got %d", p.Score)
	}

	g.onClusterContact("cluster1", p.ID, true)
	g.onClusterContact("cluster2", p.ID, true)
	if m.count(MsgMultiplierActive) != 1 {
		t.Errorf("expected one multiplierActive, got %d", m.count(MsgMultiplierActive))
	}
	if st := m.last(MsgHeatClusterStatus).(HeatClusterStatusMsg); !st.Active || st.Message == "" {
		t.Errorf("expected active cluster status, got %+v", st)
	}

	s.Advance(100 * time.Millisecond)
	if p.Score != 110 {
		t.Errorf("expected score 110 with the multiplier, got %d", p.Score)
	}

	g.onClusterContact("cluster1", p.ID, false)
	if m.count(MsgMultiplierInactive) != 0 || p.Multiplier(cfg.BonusMultiplier) != 10 {
		t.Error("leaving one of two overlapping clusters keeps the multiplier")
	}
	g.onClusterContact("cluster2", p.ID, false)
	if m.count(MsgMultiplierInactive) != 1 || p.Multiplier(cfg.BonusMultiplier) != 1 {
		t.Error("leaving the last cluster drops the multiplier")
	}
	if st := m.last(MsgHeatClusterStatus).(HeatClusterStatusMsg); st.Active {
		t.Error("expected inactive cluster status")
	}
}

func holdCharge(g *Game, id PlayerID, held bool) {
	g.HandleInput(id, InputMsg{Charge: held})
}

func TestGameSuperChargeDoublesOnce(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ScoreRate = 0
	g, s := newTestGame(cfg)
	p, m := join(t, g, "a")
	startShift(t, g, s, p)
	p.Score = 21

	g.onStationContact("charge1", p.ID, true)
	if st := m.last(MsgSuperChargeState).(SuperChargeStateMsg); st.State != ChargeEnter {
		t.Errorf("expected enter, got %+v", st)
	}
	holdCharge(g, p.ID, true)

	s.Advance(2900 * time.Millisecond)
	if p.Score != 21 {
		t.Fatalf("charge completed early, score %d", p.Score)
	}
	st := m.last(MsgSuperChargeState).(SuperChargeStateMsg)
	if st.State != ChargeCharging || st.Progress < 96 || st.Progress > 97 {
		t.Errorf("expected ~96.7%% progress, got %+v", st)
	}

	s.Advance(100 * time.Millisecond)
	if p.Score != 42 {
		t.Errorf("expected doubled score 42, got %d", p.Score)
	}
	if m.last(MsgSuperChargeState).(SuperChargeStateMsg).State != ChargeComplete {
		t.Error("expected complete")
	}
	if _, used := p.SuperChargesUsed["charge1"]; !used {
		t.Error("station should be marked used")
	}
	if g.timers.Live(p.ID, TimerCharge) {
		t.Error("charge timer should stop on completion")
	}

	s.Advance(5 * time.Second)
	g.onStationContact("charge1", p.ID, false)
	g.onStationContact("charge1", p.ID, true)
	if m.last(MsgSuperChargeState).(SuperChargeStateMsg).State != ChargeAlreadyUsed {
		t.Error("re-entering a used station should report alreadyUsed")
	}
	holdCharge(g, p.ID, false)
	holdCharge(g, p.ID, true)
	s.Advance(5 * time.Second)
	if p.Score != 42 {
		t.Errorf("a used station must not double again, got %d", p.Score)
	}
	if m.count(MsgSuperChargeState) == 0 || m.all(MsgSuperChargeState)[0].(SuperChargeStateMsg).State != ChargeEnter {
		t.Error("unexpected message order")
	}
}

func TestGameSuperChargeReleaseResets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ScoreRate = 0
	g, s := newTestGame(cfg)
	p, m := join(t, g, "a")
	startShift(t, g, s, p)
	p.Score = 5

	g.onStationContact("charge2", p.ID, true)
	holdCharge(g, p.ID, true)
	s.Advance(time.Second)
	holdCharge(g, p.ID, false)
	if m.last(MsgSuperChargeState).(SuperChargeStateMsg).State != ChargeReset {
		t.Error("releasing early should reset")
	}
	if len(p.SuperChargesUsed) != 0 || p.Score != 5 {
		t.Error("reset must not consume the station")
	}

	holdCharge(g, p.ID, true)
	s.Advance(g.cfg.ChargeHold)
	if p.Score != 10 {
		t.Errorf("a full hold after a reset should complete, got %d", p.Score)
	}
}

func TestGameSuperChargeExitDisarms(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ScoreRate = 0
	g, s := newTestGame(cfg)
	p, m := join(t, g, "a")
	startShift(t, g, s, p)
	p.Score = 5

	g.onStationContact("charge3", p.ID, true)
	holdCharge(g, p.ID, true)
	s.Advance(time.Second)
	g.onStationContact("charge3", p.ID, false)
	if m.last(MsgSuperChargeState).(SuperChargeStateMsg).State != ChargeExit {
		t.Error("expected exit")
	}
	s.Advance(5 * time.Second)
	if p.Score != 5 || g.timers.Live(p.ID, TimerCharge) {
		t.Error("leaving the station should disarm without penalty")
	}
}

func TestGameSuperChargeOnlyDuringShift(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ScoreRate = 0
	g, s := newTestGame(cfg)
	a, ma := join(t, g, "a")
	b, mb := join(t, g, "b")
	startShift(t, g, s, a, b)
	a.Score = 100
	b.Score = 100

	g.Overheat(a.ID)
	enters := ma.count(MsgSuperChargeState)
	g.onStationContact("charge2", a.ID, true)
	holdCharge(g, a.ID, true)
	s.Advance(3 * time.Second)
	if a.Score != 100 || a.TopScore != 100 {
		t.Errorf("an overheated player must not charge, score %d top %d", a.Score, a.TopScore)
	}
	if ma.count(MsgSuperChargeState) != enters || g.timers.Live(a.ID, TimerCharge) {
		t.Error("an overheated player should not arm a station")
	}

	g.EndRound()
	g.onStationContact("charge2", b.ID, true)
	holdCharge(g, b.ID, true)
	s.Advance(3 * time.Second)
	if g.State() != Ending {
		t.Fatalf("expected ending, got %s", g.State())
	}
	if b.Score != 100 || b.TopScore != 100 {
		t.Errorf("charging after the shift must not double, score %d top %d", b.Score, b.TopScore)
	}
	if mb.count(MsgSuperChargeState) != 0 {
		t.Error("no station state expected after the shift ended")
	}
}

func TestGameSuperChargeStopsOnOverheat(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ScoreRate = 0
	g, s := newTestGame(cfg)
	p, _ := join(t, g, "a")
	startShift(t, g, s, p)
	p.Score = 7

	g.onStationContact("charge1", p.ID, true)
	holdCharge(g, p.ID, true)
	s.Advance(time.Second)
	g.Overheat(p.ID)
	holdCharge(g, p.ID, false)
	holdCharge(g, p.ID, true)
	s.Advance(5 * time.Second)
	if p.Score != 7 || g.timers.Live(p.ID, TimerCharge) {
		t.Errorf("a charge must not survive overheat, score %d", p.Score)
	}
}

func TestGameTeleportNoCharges(t *testing.T) {
	g, s := newTestGame(DefaultConfig())
	a, ma := join(t, g, "a")
	b, _ := join(t, g, "b")
	pairUp(t, g, a, b)
	s.Advance(g.cfg.Countdown)

	a.TeleportCharges = 0
	a.Body.Position = Vec3{X: 1, Y: 2, Z: 3}
	b.Body.Position = Vec3{X: 9, Y: 9, Z: 9}
	g.HandleInput(a.ID, InputMsg{Teleport: true})

	st, ok := ma.last(MsgTeleportStatus).(TeleportStatusMsg)
	if !ok || st.Status != TeleportNoCharges {
		t.Errorf("expected noCharges, got %+v", st)
	}
	if a.Body.Position != (Vec3{X: 1, Y: 2, Z: 3}) || a.TeleportCharges != 0 {
		t.Error("a declined teleport must change nothing")
	}
}

func TestGameTeleportToPartner(t *testing.T) {
	g, s := newTestGame(DefaultConfig())
	a, ma := join(t, g, "a")
	b, _ := join(t, g, "b")
	pairUp(t, g, a, b)
	s.Advance(g.cfg.Countdown)

	b.Body.Position = Vec3{X: 9, Y: 9, Z: 9}
	if !g.Teleport(a.ID) {
		t.Fatal("teleport should succeed")
	}
	if a.Body.Position != b.Body.Position {
		t.Errorf("expected partner position, got %+v", a.Body.Position)
	}
	succ, _ := ma.last(MsgTeleportSuccess).(TeleportSuccessMsg)
	if succ.ChargesLeft != 2 || a.TeleportCharges != 2 {
		t.Errorf("expected 2 charges left, got %d", a.TeleportCharges)
	}

	if g.Teleport(a.ID) {
		t.Error("teleport inside the cooldown should decline")
	}
	if st := ma.last(MsgTeleportStatus).(TeleportStatusMsg); st.Status != TeleportCooldown {
		t.Errorf("expected cooldown, got %+v", st)
	}

	s.Advance(g.cfg.TeleportCooldown)
	if g.Teleport(a.ID) {
		t.Error("teleport exactly at the cooldown should still decline")
	}
	s.Advance(time.Millisecond)
	if !g.Teleport(a.ID) || a.TeleportCharges != 1 {
		t.Error("teleport after the cooldown should succeed")
	}
}

func TestGameTeleportGates(t *testing.T) {
	g, s := newTestGame(DefaultConfig())
	a, ma := join(t, g, "a")
	b, _ := join(t, g, "b")

	if g.Teleport(a.ID) {
		t.Error("teleport outside a shift should decline")
	}
	if st := ma.last(MsgTeleportStatus).(TeleportStatusMsg); st.Status != TeleportNotInShift {
		t.Errorf("expected notInShift, got %+v", st)
	}

	startShift(t, g, s, a, b)
	if g.Teleport(a.ID) {
		t.Error("teleport without a partner should decline")
	}
	if st := ma.last(MsgTeleportStatus).(TeleportStatusMsg); st.Status != TeleportNoPartner {
		t.Errorf("expected noPartner, got %+v", st)
	}
	if a.TeleportCharges != 3 {
		t.Error("declined teleports must not spend charges")
	}
}

func TestGameOverheatBreaksPartnership(t *testing.T) {
	g, s := newTestGame(DefaultConfig())
	a, _ := join(t, g, "a")
	b, mb := join(t, g, "b")
	pairUp(t, g, a, b)
	s.Advance(g.cfg.Countdown)

	g.Overheat(a.ID)
	assertPartnerSymmetry(t, g)
	if _, ok := g.partners.Partner(b.ID); ok {
		t.Error("overheat should clear both sides of the partnership")
	}
	if mb.count(MsgChat) == 0 {
		t.Error("the former partner should be told")
	}
	if g.Teleport(b.ID) {
		t.Error("teleport to an overheated partner should decline")
	}
}

func TestGameDisconnectMidCharge(t *testing.T) {
	cfg := DefaultConfig()
	g, s := newTestGame(cfg)
	a, _ := join(t, g, "a")
	b, mb := join(t, g, "b")
	pairUp(t, g, a, b)
	s.Advance(g.cfg.Countdown)
	s.Advance(time.Second)

	g.onStationContact("charge1", a.ID, true)
	g.onLavaContact(a.ID, true)
	holdCharge(g, a.ID, true)
	s.Advance(500 * time.Millisecond)
	g.Disconnect(a.ID)

	if g.timers.Live(a.ID, TimerCharge) || g.timers.Live(a.ID, TimerLavaHeat) || g.timers.Live(a.ID, TimerStatePush) {
		t.Error("disconnect must cancel every timer for the player")
	}
	if _, ok := g.partners.Partner(b.ID); ok {
		t.Error("disconnect should break the partnership")
	}
	if inGame(g.round, a.ID) || g.round.Active(a.ID) {
		t.Error("disconnected player should leave the shift")
	}
	if len(g.board.LastShift()) != 1 {
		t.Error("an active player's score counts when they disconnect")
	}
	if mb.count(MsgLeaderboards) == 0 {
		t.Error("leaderboards should be pushed to remaining players")
	}
	s.Advance(5 * time.Second)
	assertActiveSubset(t, g)
}

func TestGameEndRoundIdempotent(t *testing.T) {
	g, s := newTestGame(DefaultConfig())
	a, ma := join(t, g, "a")
	startShift(t, g, s, a)
	s.Advance(time.Second)

	if !g.EndRound() {
		t.Fatal("first EndRound should take effect")
	}
	if g.EndRound() {
		t.Error("second EndRound must be a no-op")
	}
	if g.State() != Ending {
		t.Errorf("expected ending, got %s", g.State())
	}
	if ma.count(MsgShiftEnd) != 1 {
		t.Errorf("expected one shiftEnd, got %d", ma.count(MsgShiftEnd))
	}
	if n := len(g.board.LastShift()); n != 1 {
		t.Errorf("expected one leaderboard entry, got %d", n)
	}
	end := ma.last(MsgShiftEnd).(ShiftEndMsg)
	if end.Message == "" || len(end.LastShift) != 1 || len(end.AllTime) != 1 {
		t.Errorf("unexpected shiftEnd %+v", end)
	}

	s.Advance(g.cfg.EndDelay)
	relocations := 0
	for _, msg := range ma.all(MsgSetPosition) {
		if msg.(SetPositionMsg).Reason == "shiftEnd" {
			relocations++
		}
	}
	if relocations != 1 {
		t.Errorf("expected one relocation, got %d", relocations)
	}
	if g.State() != AwaitingPlayers {
		t.Errorf("expected awaitingPlayers, got %s", g.State())
	}
}

func TestGameFullShiftCycle(t *testing.T) {
	g, s := newTestGame(DefaultConfig())
	g.Start()
	defer g.Stop()
	a, ma := join(t, g, "a")
	b, mb := join(t, g, "b")

	startShift(t, g, s, a)
	safe := Vec3{X: 15, Y: 30, Z: -13}
	g.HandleInput(a.ID, InputMsg{Position: &safe})
	g.Enqueue(b.ID)
	if g.State() != InProgress {
		t.Fatal("a queue join mid-shift must not restart the countdown")
	}

	s.Advance(45 * time.Second)
	if g.State() != Ending {
		t.Fatalf("expected the lava to end the shift, got %s", g.State())
	}
	if g.lava.Phase() != LavaDraining {
		t.Errorf("lava should drain after the shift, got phase %d", g.lava.Phase())
	}
	if ma.count(MsgShiftEnd) != 1 || mb.count(MsgShiftEnd) != 1 {
		t.Error("every connected player gets shiftEnd")
	}
	if a.TopScore == 0 {
		t.Error("surviving player's score should be banked")
	}

	s.Advance(g.cfg.EndDelay)
	if a.Body.Position != g.cfg.LobbySpawn || a.Heat != 1 || a.InLava {
		t.Errorf("expected a at the lobby cooled down, got %+v heat %d", a.Body.Position, a.Heat)
	}
	if g.round.GamePlayerCount() != 0 || g.round.ActiveCount() != 0 {
		t.Error("game and active sets should be empty")
	}
	if g.State() != Starting {
		t.Errorf("the waiting queue should start a new countdown, got %s", g.State())
	}
	if g.lava.Phase() != LavaIdle || g.lava.Body.Position != g.cfg.LavaStart {
		t.Error("lava should be back at its start")
	}
}

func TestGameRenameAndHandleMessage(t *testing.T) {
	g, _ := newTestGame(DefaultConfig())
	a, ma := join(t, g, "a")

	g.Rename(a.ID, "Obsidian", "tok")
	acc, ok := ma.last(MsgNicknameAccepted).(NicknameAcceptedMsg)
	if !ok || acc.Name != "Obsidian" || acc.Token != "tok" || a.Name != "Obsidian" {
		t.Errorf("unexpected rename result %+v", acc)
	}

	g.HandleMessage(a.ID, JoinQueueMsg{})
	if !g.round.Queued(a.ID) {
		t.Error("joinQueue should enqueue")
	}
}

func TestSanitizeName(t *testing.T) {
	if got, err := SanitizeName("  Lava Larry "); err != nil || got != "Lava Larry" {
		t.Errorf("expected trimmed name, got %q %v", got, err)
	}
	for _, bad := range []string{"", "   ", "<script>", "abcdefghijklmnopq"} {
		if _, err := SanitizeName(bad); err == nil {
			t.Errorf("expected %q to be rejected", bad)
		}
	}
}
