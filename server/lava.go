package main

// LavaPhase is the motion state of the rising lava volume
type LavaPhase int

const (
	LavaIdle     LavaPhase = iota // parked at the start position
	LavaRising                    // moving up at the rise speed
	LavaAtMax                     // reached max height, waiting for the shift to end
	LavaDraining                  // moving back down to the start position
)

const lavaSensorID = "lava"

// RisingLava is the kinematic hazard volume that fills the chamber
type RisingLava struct {
	Body   *Body
	Sensor *Sensor

	start      Vec3
	maxY       float64
	riseSpeed  float64
	drainSpeed float64
	phase      LavaPhase

	onMax func()
}

// NewRisingLava builds the lava body and sensor. onMax fires once per rise
// when the surface reaches max height; onContact is the sensor callback.
func NewRisingLava(cfg Config, onMax func(), onContact ContactFunc) *RisingLava {
	l := &RisingLava{
		start:      cfg.LavaStart,
		maxY:       cfg.LavaMaxY,
		riseSpeed:  cfg.LavaRiseSpeed,
		drainSpeed: cfg.LavaRiseSpeed * cfg.LavaDrainFactor,
		onMax:      onMax,
	}
	l.Body = &Body{Position: cfg.LavaStart, Kinematic: true, OnTick: l.tick}
	l.Sensor = &Sensor{
		ID:        lavaSensorID,
		Shape:     Box{HalfExtents: cfg.LavaHalfExtents},
		Attached:  l.Body,
		OnContact: onContact,
	}
	return l
}

// Spawn registers the lava with the world
func (l *RisingLava) Spawn(w *World) {
	w.AddBody(l.Body)
	w.AddSensor(l.Sensor)
}

// Phase returns the current motion state
func (l *RisingLava) Phase() LavaPhase {
	return l.phase
}

// Rise parks the lava at its start and begins rising
func (l *RisingLava) Rise() {
	l.Body.Position = l.start
	l.Body.Velocity = Vec3{Y: l.riseSpeed}
	l.phase = LavaRising
}

// Drain sends the lava back down to its start position
func (l *RisingLava) Drain() {
	if l.phase == LavaIdle {
		return
	}
	l.Body.Velocity = Vec3{Y: -l.drainSpeed}
	l.phase = LavaDraining
}

func (l *RisingLava) tick(b *Body, dt float64) {
	switch l.phase {
	case LavaRising:
		if b.Position.Y >= l.maxY {
			b.Velocity = Vec3{}
			l.phase = LavaAtMax
			if l.onMax != nil {
				l.onMax()
			}
			return
		}
		b.Velocity = Vec3{Y: l.riseSpeed}
	case LavaDraining:
		if b.Position.Y <= l.start.Y {
			// pin exactly so rounding never drifts the start across shifts
			b.Position = l.start
			b.Velocity = Vec3{}
			l.phase = LavaIdle
		}
	}
}
