package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Vec3 is a world-space position or velocity
type Vec3 struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
	Z float64 `json:"z" msgpack:"z"`
}

// Placement pins a hazard or station id to a world position
type Placement struct {
	ID       string
	Position Vec3
}

// Config holds every tuning constant of a shift plus server settings
type Config struct {
	Addr      string
	ClientDir string
	DBPath    string

	// Round lifecycle
	MinPlayers    int
	Countdown     time.Duration
	FadeSeconds   int // countdown seconds flagged for UI emphasis
	PostRiseDelay time.Duration
	EndDelay      time.Duration

	// Heat
	MaxHeat              int
	LavaHeatIncrement    int
	LavaHeatPeriod       time.Duration
	ChamberHeatIncrement int
	ChamberHeatPeriod    time.Duration

	// Score
	ScoreRate       int
	ScorePeriod     time.Duration
	BonusMultiplier int
	LeaderboardSize int

	// Teleport
	TeleportCharges  int
	TeleportCooldown time.Duration

	// Super charge
	ChargeHold   time.Duration
	ChargeSample time.Duration

	// Client state push
	StatePushPeriod time.Duration

	// Lava
	LavaStart       Vec3
	LavaMaxY        float64
	LavaRiseSpeed   float64 // units/s
	LavaDrainFactor float64
	LavaHalfExtents Vec3

	WorldTickRate int

	ArenaSpawn   Vec3
	LobbySpawn   Vec3
	JoinNPC      Vec3
	HeatClusters []Placement
	SuperCharges []Placement
}

// DefaultConfig returns the stock Volcano Dash tuning
func DefaultConfig() Config {
	return Config{
		Addr:   ":8080",
		DBPath: "volcano.db",

		MinPlayers:    1,
		Countdown:     15 * time.Second,
		FadeSeconds:   2,
		PostRiseDelay: 10 * time.Second,
		EndDelay:      10 * time.Second,

		MaxHeat:              1000,
		LavaHeatIncrement:    20,
		LavaHeatPeriod:       100 * time.Millisecond,
		ChamberHeatIncrement: 1,
		ChamberHeatPeriod:    100 * time.Millisecond,

		ScoreRate:       1,
		ScorePeriod:     10 * time.Millisecond,
		BonusMultiplier: 10,
		LeaderboardSize: 10,

		TeleportCharges:  3,
		TeleportCooldown: 500 * time.Millisecond,

		ChargeHold:   3000 * time.Millisecond,
		ChargeSample: 100 * time.Millisecond,

		StatePushPeriod: 100 * time.Millisecond,

		LavaStart:       Vec3{X: 15, Y: -12, Z: -13},
		LavaMaxY:        5,
		LavaRiseSpeed:   0.5,
		LavaDrainFactor: 6,
		LavaHalfExtents: Vec3{X: 11, Y: 12, Z: 11},

		WorldTickRate: 20,

		ArenaSpawn: Vec3{X: 14, Y: 5, Z: -12},
		LobbySpawn: Vec3{X: -33, Y: 4, Z: 1},
		JoinNPC:    Vec3{X: -20, Y: 5, Z: 4},
		HeatClusters: []Placement{
			{ID: "cluster1", Position: Vec3{X: 15, Y: 9, Z: -4}},
			{ID: "cluster2", Position: Vec3{X: 15, Y: 9, Z: -22}},
			{ID: "cluster3", Position: Vec3{X: 0, Y: 2, Z: 0}},
		},
		SuperCharges: []Placement{
			{ID: "charge1", Position: Vec3{X: 15, Y: 7, Z: 10}},
			{ID: "charge2", Position: Vec3{X: -10, Y: 2, Z: -10}},
			{ID: "charge3", Position: Vec3{X: 15, Y: 2, Z: -15}},
		},
	}
}

// LoadConfig layers an optional .env file and VOLCANO_* environment
// variables over the defaults. A missing env file is not an error.
func LoadConfig(envFile string) (Config, error) {
	cfg := DefaultConfig()
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("load %s: %w", envFile, err)
			}
		} else {
			log.Printf("loaded environment from %s", envFile)
		}
	}

	var err error
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		v := os.Getenv(key)
		if v == "" || err != nil {
			return
		}
		n, perr := strconv.Atoi(v)
		if perr != nil {
			err = fmt.Errorf("%s: %w", key, perr)
			return
		}
		*dst = n
	}
	setDuration := func(key string, dst *time.Duration) {
		v := os.Getenv(key)
		if v == "" || err != nil {
			return
		}
		d, perr := time.ParseDuration(v)
		if perr != nil {
			err = fmt.Errorf("%s: %w", key, perr)
			return
		}
		*dst = d
	}

	setString("VOLCANO_ADDR", &cfg.Addr)
	setString("VOLCANO_CLIENT_DIR", &cfg.ClientDir)
	setString("VOLCANO_DB", &cfg.DBPath)
	setInt("VOLCANO_MIN_PLAYERS", &cfg.MinPlayers)
	setDuration("VOLCANO_COUNTDOWN", &cfg.Countdown)
	setDuration("VOLCANO_POST_RISE_DELAY", &cfg.PostRiseDelay)
	setDuration("VOLCANO_END_DELAY", &cfg.EndDelay)
	setInt("VOLCANO_MAX_HEAT", &cfg.MaxHeat)
	setInt("VOLCANO_TELEPORT_CHARGES", &cfg.TeleportCharges)
	setDuration("VOLCANO_TELEPORT_COOLDOWN", &cfg.TeleportCooldown)
	setDuration("VOLCANO_CHARGE_HOLD", &cfg.ChargeHold)
	setInt("VOLCANO_BONUS_MULTIPLIER", &cfg.BonusMultiplier)
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings that would stall or divide the loops
func (c Config) Validate() error {
	if c.MinPlayers < 1 {
		return fmt.Errorf("min players must be at least 1, got %d", c.MinPlayers)
	}
	for name, d := range map[string]time.Duration{
		"lava heat period":    c.LavaHeatPeriod,
		"chamber heat period": c.ChamberHeatPeriod,
		"score period":        c.ScorePeriod,
		"charge sample":       c.ChargeSample,
		"state push period":   c.StatePushPeriod,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.WorldTickRate <= 0 {
		return fmt.Errorf("world tick rate must be positive")
	}
	if c.LavaMaxY <= c.LavaStart.Y {
		return fmt.Errorf("lava max height %.1f below start %.1f", c.LavaMaxY, c.LavaStart.Y)
	}
	return nil
}

// WorldTick returns the world step period
func (c Config) WorldTick() time.Duration {
	return time.Second / time.Duration(c.WorldTickRate)
}
