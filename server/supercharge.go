package main

const (
	StationRadius     = 2.0
	StationHalfHeight = 2.0
)

// SuperChargeStation doubles a player's score once per shift after the
// charge input is held for the full hold time inside its sensor.
type SuperChargeStation struct {
	ID     string
	Sensor *Sensor
}

// NewSuperChargeStation creates a station sensor at the placement
func NewSuperChargeStation(p Placement, onContact ZoneContactFunc) *SuperChargeStation {
	return &SuperChargeStation{
		ID: p.ID,
		Sensor: &Sensor{
			ID:     p.ID,
			Shape:  Cylinder{Radius: StationRadius, HalfHeight: StationHalfHeight},
			Center: p.Position,
			OnContact: func(player PlayerID, started bool) {
				onContact(p.ID, player, started)
			},
		},
	}
}

// onStationContact arms the charge listener on entry and disarms it on exit
func (g *Game) onStationContact(station string, id PlayerID, started bool) {
	p := g.sessions.Get(id)
	if p == nil {
		return
	}
	if !started {
		if p.ChargeStation == station {
			g.timers.Cancel(id, TimerCharge)
			p.DisarmCharge()
		}
		g.send(id, SuperChargeStateMsg{State: ChargeExit, Station: station})
		return
	}
	if !g.inShift(id) {
		return
	}
	if _, used := p.SuperChargesUsed[station]; used {
		g.send(id, SuperChargeStateMsg{State: ChargeAlreadyUsed, Station: station})
		return
	}
	g.timers.Cancel(id, TimerCharge)
	p.DisarmCharge()
	p.ChargeStation = station
	g.send(id, SuperChargeStateMsg{State: ChargeEnter, Station: station})
	if p.Input.Charge {
		g.startCharging(p)
	}
}

// updateCharge reacts to a change of the held charge input
func (g *Game) updateCharge(p *PlayerSession, held bool) {
	if p.ChargeStation == "" {
		return
	}
	switch {
	case held && !p.Charging:
		g.startCharging(p)
	case !held && p.Charging:
		g.timers.Cancel(p.ID, TimerCharge)
		p.Charging = false
		p.ChargeElapsed = 0
		g.send(p.ID, SuperChargeStateMsg{State: ChargeReset, Station: p.ChargeStation})
	}
}

func (g *Game) startCharging(p *PlayerSession) {
	if !g.inShift(p.ID) {
		return
	}
	if _, used := p.SuperChargesUsed[p.ChargeStation]; used {
		return
	}
	p.Charging = true
	p.ChargeElapsed = 0
	id := p.ID
	g.timers.Every(id, TimerCharge, g.cfg.ChargeSample, func() {
		g.chargeSample(id)
	})
}

func (g *Game) chargeSample(id PlayerID) {
	p := g.sessions.Get(id)
	if p == nil || !p.Charging {
		g.timers.Cancel(id, TimerCharge)
		return
	}
	if !g.inShift(id) {
		g.timers.Cancel(id, TimerCharge)
		p.DisarmCharge()
		return
	}
	p.ChargeElapsed += g.cfg.ChargeSample
	progress := float64(p.ChargeElapsed) / float64(g.cfg.ChargeHold) * 100
	if progress > 100 {
		progress = 100
	}
	station := p.ChargeStation
	g.send(id, SuperChargeStateMsg{State: ChargeCharging, Station: station, Progress: progress})
	if progress < 100 {
		return
	}

	g.timers.Cancel(id, TimerCharge)
	p.Score *= 2
	p.SuperChargesUsed[station] = struct{}{}
	p.DisarmCharge()
	g.send(id, SuperChargeStateMsg{State: ChargeComplete, Station: station})
	g.track(EvtSuperCharge, p, map[string]any{"station": station, "score": p.Score})
	g.pushState(p)
}

// inShift reports whether id is still playing the running shift
func (g *Game) inShift(id PlayerID) bool {
	return g.round.State == InProgress && g.round.Active(id)
}
