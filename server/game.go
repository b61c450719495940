package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"
	"unicode"
)

const joinNPCSensorID = "joinNPC"

const shiftEndMessage = "This Shift has Ended. Stand by for Transport."

// Broadcaster is the outbound half of a player's message channel
type Broadcaster interface {
	Send(msg OutMessage)
}

// EventTracker receives analytics events
type EventTracker interface {
	Track(evtType string, player string, shiftID string, data string)
}

// ShiftRecord summarises a finished shift for persistence
type ShiftRecord struct {
	ID        string
	StartedAt time.Time
	EndedAt   time.Time
	Scores    []LeaderEntry
}

// ScoreStore persists best scores and shift history
type ScoreStore interface {
	SaveBestScore(name string, score int) error
	RecordShift(rec ShiftRecord) error
}

// Game owns every piece of shift state. All methods must run on the
// scheduler's goroutine.
type Game struct {
	cfg   Config
	sched Scheduler

	world    *World
	sessions *SessionTable
	clients  map[PlayerID]Broadcaster
	timers   *TimerRegistry
	partners *PartnerDirectory
	board    *Leaderboard
	round    *Round

	lava     *RisingLava
	clusters []*HeatCluster
	stations []*SuperChargeStation

	// most recent requester per target, answered by respondToPartnerRequest
	lastRequest map[PlayerID]PlayerID

	events EventTracker
	store  ScoreStore

	stepper Timer
}

// NewGame builds the world and hazards for cfg. Call Start to begin stepping.
func NewGame(cfg Config, sched Scheduler) *Game {
	g := &Game{
		cfg:         cfg,
		sched:       sched,
		world:       NewWorld(),
		sessions:    NewSessionTable(),
		clients:     make(map[PlayerID]Broadcaster),
		timers:      NewTimerRegistry(sched),
		partners:    NewPartnerDirectory(),
		board:       NewLeaderboard(cfg.LeaderboardSize),
		round:       NewRound(),
		lastRequest: make(map[PlayerID]PlayerID),
	}

	g.lava = NewRisingLava(cfg, g.onLavaMax, g.onLavaContact)
	g.lava.Spawn(g.world)

	for _, p := range cfg.HeatClusters {
		c := NewHeatCluster(p, g.onClusterContact)
		g.clusters = append(g.clusters, c)
		g.world.AddSensor(c.Sensor)
	}
	for _, p := range cfg.SuperCharges {
		s := NewSuperChargeStation(p, g.onStationContact)
		g.stations = append(g.stations, s)
		g.world.AddSensor(s.Sensor)
	}
	g.world.AddSensor(&Sensor{
		ID:     joinNPCSensorID,
		Shape:  Cylinder{Radius: 2, HalfHeight: 2},
		Center: cfg.JoinNPC,
		OnContact: func(id PlayerID, started bool) {
			if started {
				g.Enqueue(id)
			}
		},
	})
	return g
}

// SetEvents attaches an analytics sink
func (g *Game) SetEvents(e EventTracker) { g.events = e }

// SetStore attaches persistence
func (g *Game) SetStore(s ScoreStore) { g.store = s }

// SeedLeaderboard loads persisted all-time entries
func (g *Game) SeedLeaderboard(entries []LeaderEntry) {
	g.board.Seed(entries)
}

// Start begins stepping the world
func (g *Game) Start() {
	if g.stepper != nil {
		return
	}
	dt := g.cfg.WorldTick().Seconds()
	g.stepper = g.sched.Every(g.cfg.WorldTick(), func() {
		g.world.Step(dt)
	})
}

// Stop halts the world and every round and player timer
func (g *Game) Stop() {
	if g.stepper != nil {
		g.stepper.Stop()
		g.stepper = nil
	}
	g.round.stopTimers()
	g.sessions.Each(func(p *PlayerSession) {
		g.timers.CancelAll(p.ID)
	})
}

// State returns the current round state
func (g *Game) State() RoundState {
	return g.round.State
}

// PlayerCount returns the number of connected players
func (g *Game) PlayerCount() int {
	return g.sessions.Len()
}

// Leaderboards returns copies of both boards
func (g *Game) Leaderboards() LeaderboardsMsg {
	return LeaderboardsMsg{LastShift: g.board.LastShift(), AllTime: g.board.AllTime()}
}

// Connect creates a session for a new player and starts its state push.
// Returns nil when the server is full.
func (g *Game) Connect(name string, client Broadcaster) *PlayerSession {
	p := g.sessions.Create(name, g.cfg.TeleportCharges)
	if p == nil {
		return nil
	}
	if p.Name == "" {
		p.Name = fmt.Sprintf("Player %d", p.ID)
	}
	p.Body = g.world.SpawnPlayer(p.ID, g.cfg.LobbySpawn)
	g.clients[p.ID] = client

	id := p.ID
	g.send(id, WelcomeMsg{PlayerID: id, PlayerName: p.Name})
	g.send(id, SetPositionMsg{Position: g.cfg.LobbySpawn, Reason: "spawn"})
	g.send(id, g.Leaderboards())
	g.timers.Every(id, TimerStatePush, g.cfg.StatePushPeriod, func() {
		g.statePush(id)
	})
	g.track(EvtPlayerJoin, p, nil)
	log.Printf("player %d (%s) connected, %d online", id, p.Name, g.sessions.Len())
	return p
}

// Disconnect tears down every trace of a player. An active player's score
// is banked as if they had overheated.
func (g *Game) Disconnect(id PlayerID) {
	p := g.sessions.Get(id)
	if p == nil {
		return
	}
	g.timers.CancelAll(id)
	wasActive := g.round.Active(id)
	wasQueued := g.round.Queued(id)

	p.DisarmCharge()
	clear(p.Zones)
	clear(p.SuperChargesUsed)
	p.BankTopScore()

	g.dropPartner(id, fmt.Sprintf("%s disconnected", p.Name))
	g.round.forget(id)
	delete(g.lastRequest, id)
	for target, requester := range g.lastRequest {
		if requester == id {
			delete(g.lastRequest, target)
		}
	}

	g.world.DespawnPlayer(id)
	g.sessions.Remove(id)
	delete(g.clients, id)

	if wasActive && g.round.State == InProgress {
		if p.Score > 0 {
			g.recordScore(p)
		}
		if g.round.ActiveCount() == 0 {
			g.round.stopAccrual()
		}
	}
	if wasQueued && g.round.State == Starting {
		g.broadcastPartnerSelection()
	}
	g.track(EvtPlayerLeave, p, map[string]any{"topScore": p.TopScore})
	log.Printf("player %d (%s) disconnected, %d online", id, p.Name, g.sessions.Len())
}

// Enqueue adds a player to the queue for the next shift
func (g *Game) Enqueue(id PlayerID) bool {
	p := g.sessions.Get(id)
	if p == nil {
		return false
	}
	if g.round.State == InProgress && g.round.Active(id) {
		return false
	}
	if g.round.Queued(id) {
		return false
	}
	g.round.queued.Add(id)
	g.send(id, QueueIndicatorMsg{Visible: true})
	g.send(id, ChatMsg{Message: "You joined the queue for the next shift", Color: "FFA500"})

	switch g.round.State {
	case AwaitingPlayers:
		if g.round.QueueLen() >= g.cfg.MinPlayers {
			g.beginCountdown()
		}
	case Starting:
		g.send(id, g.countdown())
		g.broadcastPartnerSelection()
	}
	return true
}

// beginCountdown enters Starting. The countdown expiry is a single deferred
// call; the 1s ticker only refreshes the display.
func (g *Game) beginCountdown() {
	g.round.transition(Starting)
	g.partners.ResetAll()
	clear(g.lastRequest)
	g.round.deadline = g.sched.Now().Add(g.cfg.Countdown)

	g.broadcastCountdown()
	g.broadcastPartnerSelection()
	g.round.own(g.sched.AfterFunc(g.cfg.Countdown, g.startRound))
	g.round.own(g.sched.Every(time.Second, g.broadcastCountdown))
	log.Printf("countdown started with %d queued", g.round.QueueLen())
}

func (g *Game) countdown() CountdownMsg {
	left := g.round.deadline.Sub(g.sched.Now())
	secs := int(Clamp(math.Ceil(left.Seconds()), 0, g.cfg.Countdown.Seconds()))
	return CountdownMsg{Seconds: secs, ShouldFade: secs <= g.cfg.FadeSeconds}
}

func (g *Game) broadcastCountdown() {
	if g.round.State != Starting {
		return
	}
	msg := g.countdown()
	for _, id := range g.round.queued.Sorted() {
		g.send(id, msg)
	}
}

// startRound moves the queue into the arena
func (g *Game) startRound() {
	if g.round.State != Starting {
		return
	}
	if n := g.round.QueueLen(); n < g.cfg.MinPlayers {
		g.round.transition(AwaitingPlayers)
		log.Printf("countdown expired with %d queued, need %d", n, g.cfg.MinPlayers)
		return
	}
	g.round.transition(InProgress)
	g.round.ShiftID = GenerateUUID()
	g.round.StartedAt = g.sched.Now()
	g.board.ResetShift()

	for _, id := range g.round.queued.Sorted() {
		p := g.sessions.Get(id)
		if p == nil {
			continue
		}
		g.timers.Cancel(id, TimerLavaHeat)
		g.timers.Cancel(id, TimerCharge)
		g.round.gamePlayers.Add(id)
		g.round.active.Add(id)
		p.ResetForShift(g.cfg.TeleportCharges)
		p.Body.Position = g.cfg.ArenaSpawn
		p.Body.Velocity = Vec3{}
		g.world.ForgetContacts(id)

		g.send(id, SetPositionMsg{Position: g.cfg.ArenaSpawn, Reason: "shiftStart"})
		g.send(id, QueueIndicatorMsg{Visible: false})
		g.send(id, GameStartMsg{})
		g.pushState(p)
	}
	g.round.queued.Clear()
	clear(g.lastRequest)

	g.lava.Rise()
	g.round.ownAccrual(g.sched.Every(g.cfg.ScorePeriod, g.scoreTick))
	g.round.ownAccrual(g.sched.Every(g.cfg.ChamberHeatPeriod, g.chamberHeatTick))

	g.track(EvtShiftStart, nil, map[string]any{
		"players":  g.round.GamePlayerCount(),
		"partners": g.partners.Pairs(),
	})
	log.Printf("shift %s started with %d players", g.round.ShiftID, g.round.GamePlayerCount())
}

func (g *Game) scoreTick() {
	if g.round.State != InProgress || g.round.ActiveCount() == 0 {
		g.round.stopAccrual()
		return
	}
	for id := range g.round.active {
		if p := g.sessions.Get(id); p != nil {
			p.Score += g.cfg.ScoreRate * p.Multiplier(g.cfg.BonusMultiplier)
		}
	}
}

func (g *Game) chamberHeatTick() {
	if g.round.State != InProgress || g.round.ActiveCount() == 0 {
		g.round.stopAccrual()
		return
	}
	for _, id := range g.round.active.Sorted() {
		p := g.sessions.Get(id)
		if p == nil || !g.round.Active(id) {
			continue
		}
		p.Heat += g.cfg.ChamberHeatIncrement
		if p.Heat >= g.cfg.MaxHeat {
			g.Overheat(id)
		}
	}
}

// onLavaContact keeps at most one heat interval per player in the lava
func (g *Game) onLavaContact(id PlayerID, started bool) {
	p := g.sessions.Get(id)
	if p == nil {
		return
	}
	if !started {
		g.timers.Cancel(id, TimerLavaHeat)
		p.InLava = false
		return
	}
	p.InLava = true
	if g.round.State != InProgress || !g.round.Active(id) {
		return
	}
	g.timers.Every(id, TimerLavaHeat, g.cfg.LavaHeatPeriod, func() {
		g.lavaHeatTick(id)
	})
}

func (g *Game) lavaHeatTick(id PlayerID) {
	p := g.sessions.Get(id)
	if p == nil || g.round.State != InProgress || !g.round.Active(id) {
		g.timers.Cancel(id, TimerLavaHeat)
		return
	}
	p.Heat += g.cfg.LavaHeatIncrement
	if p.Heat >= g.cfg.MaxHeat {
		g.Overheat(id)
	}
}

func (g *Game) onLavaMax() {
	if g.round.State != InProgress {
		return
	}
	log.Printf("lava at max height, shift ends in %s", g.cfg.PostRiseDelay)
	g.round.own(g.sched.AfterFunc(g.cfg.PostRiseDelay, func() {
		g.EndRound()
	}))
}

// Overheat removes a player from the shift and sends them to the lobby
func (g *Game) Overheat(id PlayerID) {
	p := g.sessions.Get(id)
	if p == nil {
		return
	}
	g.timers.Cancel(id, TimerLavaHeat)
	g.timers.Cancel(id, TimerCharge)
	wasActive := g.round.Active(id)
	g.round.active.Remove(id)

	p.Body.Velocity = Vec3{}
	p.Body.Position = g.cfg.LobbySpawn
	p.CoolDown()
	p.DisarmCharge()
	p.BankTopScore()
	g.dropPartner(id, fmt.Sprintf("%s overheated", p.Name))

	if wasActive && p.Score > 0 {
		g.recordScore(p)
	}
	g.send(id, SetPositionMsg{Position: g.cfg.LobbySpawn, Reason: "overheat"})
	g.send(id, ChatMsg{Message: "You overheated! Returned to the lobby.", Color: "FF0000"})
	g.pushState(p)
	g.track(EvtOverheat, p, map[string]any{"score": p.Score})
	log.Printf("player %d (%s) overheated with score %d", id, p.Name, p.Score)

	if wasActive && g.round.ActiveCount() == 0 {
		g.round.stopAccrual()
	}
}

// EndRound closes the current shift. Only the first call while InProgress
// has any effect; it flips the state before doing anything else.
func (g *Game) EndRound() bool {
	if g.round.State != InProgress {
		return false
	}
	g.round.transition(Ending)
	endedAt := g.sched.Now()

	for _, id := range g.round.gamePlayers.Sorted() {
		g.timers.Cancel(id, TimerLavaHeat)
		g.timers.Cancel(id, TimerCharge)
	}
	for _, id := range g.round.active.Sorted() {
		p := g.sessions.Get(id)
		if p == nil {
			continue
		}
		p.DisarmCharge()
		p.BankTopScore()
		if p.Score > 0 {
			g.board.Record(p.Name, p.Score)
			g.saveBest(p.Name, p.Score)
		}
	}

	if g.store != nil {
		rec := ShiftRecord{
			ID:        g.round.ShiftID,
			StartedAt: g.round.StartedAt,
			EndedAt:   endedAt,
			Scores:    g.board.LastShift(),
		}
		if err := g.store.RecordShift(rec); err != nil {
			log.Printf("record shift %s: %v", rec.ID, err)
		}
	}

	end := ShiftEndMsg{
		Message:   shiftEndMessage,
		LastShift: g.board.LastShift(),
		AllTime:   g.board.AllTime(),
	}
	for _, id := range g.connected() {
		g.send(id, end)
	}
	g.broadcastLeaderboards()

	g.lava.Drain()
	g.round.own(g.sched.AfterFunc(g.cfg.EndDelay, g.finishRound))

	g.track(EvtShiftEnd, nil, map[string]any{
		"duration":  endedAt.Sub(g.round.StartedAt).Seconds(),
		"players":   g.round.GamePlayerCount(),
		"survivors": g.round.ActiveCount(),
	})
	log.Printf("shift %s ended, %d of %d survived", g.round.ShiftID, g.round.ActiveCount(), g.round.GamePlayerCount())
	return true
}

// finishRound returns the shift's players to the lobby and restarts the
// countdown if anyone queued meanwhile.
func (g *Game) finishRound() {
	if g.round.State != Ending {
		return
	}
	for _, id := range g.round.gamePlayers.Sorted() {
		p := g.sessions.Get(id)
		if p == nil {
			continue
		}
		g.timers.Cancel(id, TimerLavaHeat)
		p.Body.Position = g.cfg.LobbySpawn
		p.Body.Velocity = Vec3{}
		p.CoolDown()
		g.send(id, SetPositionMsg{Position: g.cfg.LobbySpawn, Reason: "shiftEnd"})
		g.pushState(p)
	}
	g.round.gamePlayers.Clear()
	g.round.active.Clear()
	g.partners.ResetAll()
	clear(g.lastRequest)
	g.round.transition(AwaitingPlayers)

	if g.round.QueueLen() >= g.cfg.MinPlayers {
		g.beginCountdown()
	}
}

// SelectPartner records requester's pick and commits the partnership when
// the pick is mutual. Only queued players may pick during the countdown.
func (g *Game) SelectPartner(requester, target PlayerID) {
	p := g.sessions.Get(requester)
	if p == nil {
		return
	}
	fail := func(message string) {
		g.send(requester, PartnerRequestFailedMsg{Message: message})
	}
	if g.round.State != Starting || !g.round.Queued(requester) {
		fail("Partners can only be chosen during the countdown")
		return
	}
	other := g.sessions.Get(target)
	if other == nil || !g.round.Queued(target) {
		fail(ErrPartnerUnavailable.Error())
		return
	}

	res, err := g.partners.Select(requester, target)
	if err != nil {
		fail(err.Error())
		return
	}
	if res == SelectPending {
		g.lastRequest[target] = requester
		g.send(requester, PartnerSelectionUpdateMsg{
			SelectedID: target,
			Status:     "pending",
			Message:    "Waiting for partner to confirm...",
		})
		g.send(target, PartnerRequestMsg{
			FromID:   requester,
			FromName: p.Name,
			Message:  fmt.Sprintf("%s wants to be your partner!", p.Name),
		})
		return
	}

	delete(g.lastRequest, requester)
	delete(g.lastRequest, target)
	g.send(requester, PartnerConfirmedMsg{
		PartnerID:   target,
		PartnerName: other.Name,
		Message:     fmt.Sprintf("%s is now your partner!", other.Name),
	})
	g.send(target, PartnerConfirmedMsg{
		PartnerID:   requester,
		PartnerName: p.Name,
		Message:     fmt.Sprintf("%s is now your partner!", p.Name),
	})
	g.broadcastPartnerSelection()
	g.track(EvtPartnerFormed, p, map[string]any{"partner": other.Name})
	log.Printf("partners formed: %s + %s", p.Name, other.Name)
}

// RespondPartner answers the latest pending request aimed at id. Accepting
// selects the requester back; declining withdraws their selection.
func (g *Game) RespondPartner(id PlayerID, accepted bool) {
	p := g.sessions.Get(id)
	if p == nil {
		return
	}
	requesters := g.partners.Requesters(id)
	if len(requesters) == 0 {
		g.send(id, PartnerRequestFailedMsg{Message: "No pending partner request"})
		return
	}
	requester := requesters[len(requesters)-1]
	if last, ok := g.lastRequest[id]; ok {
		for _, r := range requesters {
			if r == last {
				requester = last
				break
			}
		}
	}
	delete(g.lastRequest, id)

	if accepted {
		g.SelectPartner(id, requester)
		return
	}
	g.partners.Withdraw(requester, id)
	g.send(requester, PartnerRequestRejectedMsg{PlayerName: p.Name})
}

// dropPartner breaks id's partnership and tells the former partner why
func (g *Game) dropPartner(id PlayerID, reason string) {
	former, ok := g.partners.Remove(id)
	if !ok {
		return
	}
	g.send(former, ChatMsg{Message: reason + ", partner link lost", Color: "FFFF00"})
	if p := g.sessions.Get(former); p != nil {
		g.pushState(p)
	}
}

func (g *Game) broadcastPartnerSelection() {
	if g.round.State != Starting {
		return
	}
	queued := g.round.queued.Sorted()
	for _, id := range queued {
		available := make([]PlayerRef, 0, len(queued))
		for _, other := range queued {
			if other == id {
				continue
			}
			if partner, ok := g.partners.Partner(other); ok && partner != id {
				continue
			}
			if p := g.sessions.Get(other); p != nil {
				available = append(available, PlayerRef{ID: other, Name: p.Name})
			}
		}
		g.send(id, PartnerSelectionMsg{AvailablePlayers: available})
	}
}

// HandleInput applies a client input frame. Rising edges of the held
// action flags trigger teleport and super charge.
func (g *Game) HandleInput(id PlayerID, in InputMsg) {
	p := g.sessions.Get(id)
	if p == nil {
		return
	}
	if in.Position != nil && p.Body != nil {
		p.Body.Position = *in.Position
	}
	prev := p.Input
	p.Input = PlayerInput{Teleport: in.Teleport, Charge: in.Charge}
	if in.Teleport && !prev.Teleport {
		g.Teleport(id)
	}
	if in.Charge != prev.Charge {
		g.updateCharge(p, in.Charge)
	}
}

// HandleMessage dispatches a decoded game message. Name and auth messages
// are resolved by the transport before reaching Rename.
func (g *Game) HandleMessage(id PlayerID, msg InMessage) {
	switch m := msg.(type) {
	case SelectPartnerMsg:
		g.SelectPartner(id, m.PartnerID)
	case RespondPartnerMsg:
		g.RespondPartner(id, m.Accepted)
	case InputMsg:
		g.HandleInput(id, m)
	case JoinQueueMsg:
		g.Enqueue(id)
	}
}

// Rename sets an already validated display name
func (g *Game) Rename(id PlayerID, name, token string) {
	p := g.sessions.Get(id)
	if p == nil {
		return
	}
	p.Name = name
	g.send(id, NicknameAcceptedMsg{Name: name, Token: token})
	g.pushState(p)
	if g.round.Queued(id) {
		g.broadcastPartnerSelection()
	}
}

// RejectName tells the player why a name change failed
func (g *Game) RejectName(id PlayerID, reason string) {
	g.send(id, NicknameRejectedMsg{Message: reason})
}

func (g *Game) statePush(id PlayerID) {
	p := g.sessions.Get(id)
	if p == nil {
		g.timers.CancelAll(id)
		return
	}
	g.pushState(p)
}

func (g *Game) pushState(p *PlayerSession) {
	g.send(p.ID, g.snapshot(p))
}

func (g *Game) snapshot(p *PlayerSession) PlayerStateMsg {
	partner, _ := g.partners.Partner(p.ID)
	return PlayerStateMsg{
		PlayerID:        p.ID,
		PlayerName:      p.Name,
		HeatLevel:       p.Heat,
		InLava:          p.InLava,
		Score:           p.Score,
		TopScore:        p.TopScore,
		Multiplier:      p.Multiplier(g.cfg.BonusMultiplier),
		TeleportCharges: p.TeleportCharges,
		PartnerID:       partner,
		LastShift:       g.board.LastShift(),
		AllTime:         g.board.AllTime(),
	}
}

// recordScore pushes a finished score to the boards and every client
func (g *Game) recordScore(p *PlayerSession) {
	g.board.Record(p.Name, p.Score)
	g.saveBest(p.Name, p.Score)
	g.broadcastLeaderboards()
}

func (g *Game) saveBest(name string, score int) {
	if g.store == nil {
		return
	}
	if err := g.store.SaveBestScore(name, score); err != nil {
		log.Printf("save best score for %s: %v", name, err)
	}
}

func (g *Game) broadcastLeaderboards() {
	msg := g.Leaderboards()
	for _, id := range g.connected() {
		g.send(id, msg)
	}
}

func (g *Game) connected() []PlayerID {
	ids := make(playerSet, len(g.clients))
	for id := range g.clients {
		ids.Add(id)
	}
	return ids.Sorted()
}

func (g *Game) send(id PlayerID, msg OutMessage) {
	if c, ok := g.clients[id]; ok {
		c.Send(msg)
	}
}

func (g *Game) track(evt string, p *PlayerSession, data map[string]any) {
	if g.events == nil {
		return
	}
	name := ""
	if p != nil {
		name = p.Name
	}
	var raw string
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			raw = string(b)
		}
	}
	g.events.Track(evt, name, g.round.ShiftID, raw)
}

const maxNameLen = 16

var ErrInvalidName = errors.New("names are 1-16 letters, digits, spaces, _ or -")

// SanitizeName trims a requested display name and checks its characters
func SanitizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len([]rune(name)) > maxNameLen {
		return "", ErrInvalidName
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != ' ' && r != '_' && r != '-' {
			return "", ErrInvalidName
		}
	}
	return name, nil
}
