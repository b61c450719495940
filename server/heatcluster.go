package main

const (
	HeatClusterRadius     = 2.0
	HeatClusterHalfHeight = 2.0
)

const heatClusterHint = "Stay in the heat cluster to absorb energy faster"

// ZoneContactFunc is called when a player enters or leaves a named zone
type ZoneContactFunc func(zone string, player PlayerID, started bool)

// HeatCluster is a bonus zone that boosts score accrual while occupied
type HeatCluster struct {
	ID     string
	Sensor *Sensor
}

// NewHeatCluster creates a cluster sensor at the placement
func NewHeatCluster(p Placement, onContact ZoneContactFunc) *HeatCluster {
	return &HeatCluster{
		ID: p.ID,
		Sensor: &Sensor{
			ID:     p.ID,
			Shape:  Cylinder{Radius: HeatClusterRadius, HalfHeight: HeatClusterHalfHeight},
			Center: p.Position,
			OnContact: func(player PlayerID, started bool) {
				onContact(p.ID, player, started)
			},
		},
	}
}

// onClusterContact keeps the occupied-zone set. The multiplier is boosted
// while any zone is occupied, so only the first entry and the last exit
// notify the client.
func (g *Game) onClusterContact(zone string, id PlayerID, started bool) {
	p := g.sessions.Get(id)
	if p == nil {
		return
	}
	_, inside := p.Zones[zone]
	if started == inside {
		return
	}
	if started {
		p.Zones[zone] = struct{}{}
		if len(p.Zones) == 1 {
			g.send(id, MultiplierActiveMsg{Multiplier: g.cfg.BonusMultiplier})
			g.send(id, HeatClusterStatusMsg{Active: true, Message: heatClusterHint})
		}
		return
	}
	delete(p.Zones, zone)
	if len(p.Zones) == 0 {
		g.send(id, MultiplierInactiveMsg{})
		g.send(id, HeatClusterStatusMsg{Active: false})
	}
}
