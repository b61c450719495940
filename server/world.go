package main

// Body is a positioned entity. Player bodies follow client-reported
// positions; kinematic bodies are moved by their velocity each step.
type Body struct {
	Player    PlayerID // 0 for non-player bodies
	Position  Vec3
	Velocity  Vec3
	Kinematic bool
	OnTick    func(b *Body, dt float64)
}

// ContactFunc is called when a player starts or stops overlapping a sensor
type ContactFunc func(player PlayerID, started bool)

// Sensor is a trigger volume, fixed in place or attached to a body
type Sensor struct {
	ID        string
	Shape     Shape
	Center    Vec3
	Attached  *Body
	OnContact ContactFunc
}

func (s *Sensor) center() Vec3 {
	if s.Attached != nil {
		return s.Attached.Position
	}
	return s.Center
}

type contactKey struct {
	sensor string
	player PlayerID
}

// World is the host-side entity runtime: bodies, tick callbacks and sensor
// contact tracking.
type World struct {
	bodies   []*Body
	players  map[PlayerID]*Body
	sensors  []*Sensor
	contacts map[contactKey]struct{}
}

// NewWorld creates an empty world
func NewWorld() *World {
	return &World{
		players:  make(map[PlayerID]*Body),
		contacts: make(map[contactKey]struct{}),
	}
}

// SpawnPlayer creates the body for a player at pos
func (w *World) SpawnPlayer(id PlayerID, pos Vec3) *Body {
	b := &Body{Player: id, Position: pos}
	w.players[id] = b
	return b
}

// DespawnPlayer removes a player body. No exit callbacks fire.
func (w *World) DespawnPlayer(id PlayerID) {
	delete(w.players, id)
	w.ForgetContacts(id)
}

// AddBody registers a non-player body
func (w *World) AddBody(b *Body) {
	w.bodies = append(w.bodies, b)
}

// AddSensor registers a sensor volume
func (w *World) AddSensor(s *Sensor) {
	w.sensors = append(w.sensors, s)
}

// ForgetContacts drops remembered contacts for a player so the next step
// fires enter callbacks again for every sensor it overlaps.
func (w *World) ForgetContacts(id PlayerID) {
	for key := range w.contacts {
		if key.player == id {
			delete(w.contacts, key)
		}
	}
}

// Step advances kinematic bodies, runs tick callbacks and fires sensor
// enter/exit callbacks for occupancy changes.
func (w *World) Step(dt float64) {
	for _, b := range w.bodies {
		if b.Kinematic {
			b.Position.X += b.Velocity.X * dt
			b.Position.Y += b.Velocity.Y * dt
			b.Position.Z += b.Velocity.Z * dt
		}
		if b.OnTick != nil {
			b.OnTick(b, dt)
		}
	}

	ids := make(playerSet, len(w.players))
	for id := range w.players {
		ids.Add(id)
	}
	order := ids.Sorted()

	for _, s := range w.sensors {
		for _, id := range order {
			// a previous callback may have despawned the player
			b, ok := w.players[id]
			if !ok {
				continue
			}
			key := contactKey{s.ID, id}
			_, was := w.contacts[key]
			inside := s.Shape.Contains(s.center(), b.Position)
			if inside == was {
				continue
			}
			if inside {
				w.contacts[key] = struct{}{}
			} else {
				delete(w.contacts, key)
			}
			if s.OnContact != nil {
				s.OnContact(id, inside)
			}
		}
	}
}
