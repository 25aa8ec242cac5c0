// veldtsim drives a small particle simulation on top of the veldt runtime:
// it spawns entities with position/velocity/lifetime components, advances
// them by sending tick events, and lets decay cascade into despawns.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"

	"github.com/pkg/profile"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/veldtlabs/veldt/config"
	"github.com/veldtlabs/veldt/ecs"
)

type Position struct{ X, Y float64 }
type Velocity struct{ DX, DY float64 }
type Lifetime struct{ Ticks int }
type Pinned struct{}

type Tick struct {
	Frame int
	DT    float64
}

type Expired struct {
	Entity ecs.EntityID
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := flag.String("config", "", "path to config file (.toml or .yaml)")
	profileCPU := flag.Bool("profile", false, "write a CPU profile to the working directory")
	flag.Parse()

	path := *cfgPath
	if path == "" {
		path = os.Getenv("VELDT_CONFIG")
	}
	cfg := config.Default()
	if path != "" {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	if *profileCPU {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	}

	w := ecs.NewWorld(
		ecs.WithLogger(log),
		ecs.WithInitialEntityCapacity(cfg.World.InitialEntityCapacity),
	)
	defer w.Close()

	posID := ecs.RegisterComponent[Position](w)
	velID := ecs.RegisterComponent[Velocity](w)
	lifeID := ecs.RegisterComponent[Lifetime](w)
	pinnedID := ecs.RegisterComponent[Pinned](w)

	moving, err := w.NewQuery(ecs.Without(pinnedID),
		ecs.ComponentAccess{Component: posID, Access: ecs.Write},
		ecs.ComponentAccess{Component: velID, Access: ecs.Read},
	)
	if err != nil {
		return fmt.Errorf("build movement query: %w", err)
	}
	mortal, err := w.NewQuery(ecs.Filter{},
		ecs.ComponentAccess{Component: lifeID, Access: ecs.Write},
	)
	if err != nil {
		return fmt.Errorf("build decay query: %w", err)
	}

	// Movement: integrate velocities into positions.
	if _, err := ecs.AddSystem(w, ecs.Footprint{
		Reads:  []ecs.ComponentID{velID},
		Writes: []ecs.ComponentID{posID},
	}, func(w *ecs.World, t Tick) {
		for it := moving.Iter(); it.Next(); {
			p := ecs.WriteComponent[Position](it)
			v := ecs.ReadComponent[Velocity](it)
			p.X += v.DX * t.DT
			p.Y += v.DY * t.DT
		}
	}); err != nil {
		return fmt.Errorf("add movement system: %w", err)
	}

	// Decay: count lifetimes down, then despawn and announce the expired.
	if _, err := ecs.AddSystem(w, ecs.Footprint{
		Writes: []ecs.ComponentID{lifeID},
		Sends:  []ecs.EventID{ecs.EventIDOf[Expired](w)},
	}, func(w *ecs.World, t Tick) {
		var expired []ecs.EntityID
		for it := mortal.Iter(); it.Next(); {
			l := ecs.WriteComponent[Lifetime](it)
			l.Ticks--
			if l.Ticks <= 0 {
				expired = append(expired, it.Entity())
			}
		}
		for _, e := range expired {
			w.Despawn(e)
			w.Send(Expired{Entity: e})
		}
	}); err != nil {
		return fmt.Errorf("add decay system: %w", err)
	}

	expiredCount := 0
	if _, err := ecs.AddSystem(w, ecs.Footprint{}, func(w *ecs.World, ev Expired) {
		expiredCount++
	}); err != nil {
		return fmt.Errorf("add expiry counter: %w", err)
	}

	rng := rand.New(rand.NewSource(cfg.Sim.Seed))
	for i := 0; i < cfg.Sim.Entities; i++ {
		e := w.Spawn()
		if err := ecs.Insert(w, e, Position{X: rng.Float64() * 100, Y: rng.Float64() * 100}); err != nil {
			return fmt.Errorf("spawn: %w", err)
		}
		if err := ecs.Insert(w, e, Velocity{DX: rng.Float64()*2 - 1, DY: rng.Float64()*2 - 1}); err != nil {
			return fmt.Errorf("spawn: %w", err)
		}
		if err := ecs.Insert(w, e, Lifetime{Ticks: 1 + rng.Intn(cfg.Sim.Ticks)}); err != nil {
			return fmt.Errorf("spawn: %w", err)
		}
		if i%10 == 0 {
			if err := ecs.Insert(w, e, Pinned{}); err != nil {
				return fmt.Errorf("spawn: %w", err)
			}
		}
	}
	log.Info("world populated",
		zap.Int("entities", w.EntityCount()),
		zap.Int("ticks", cfg.Sim.Ticks),
	)

	for frame := 0; frame < cfg.Sim.Ticks; frame++ {
		w.Send(Tick{Frame: frame, DT: 1.0 / 60.0})
	}

	log.Info("simulation complete",
		zap.Int("alive", w.EntityCount()),
		zap.Int("expired", expiredCount),
	)
	return nil
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}
