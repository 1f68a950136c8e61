package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"time"

	"github.com/plus3/slotmap/assets"
	"github.com/plus3/slotmap/ecs"
	"github.com/plus3/slotmap/storage"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	flag.StringVar(&cfg.Duration, "duration", cfg.Duration, "The total duration the test should run for.")
	flag.IntVar(&cfg.Entities, "entities", cfg.Entities, "The initial number of entities to create.")
	flag.IntVar(&cfg.Sprites, "sprites", cfg.Sprites, "The number of sprites in the asset catalog.")
	flag.Int64Var(&cfg.Seed, "seed", cfg.Seed, "Seed for the random entity layout.")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn or error.")
	flag.StringVar(&cfg.CatalogDir, "catalog-dir", cfg.CatalogDir, "Save the asset catalog here and watch it for edits.")
	flag.BoolVar(&cfg.GCPauseMetrics, "gc-pause-metrics", cfg.GCPauseMetrics, "Enable detailed GC pause metrics in the report.")
	flag.Parse()

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("stress test failed", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	log, err := zc.Build()
	if err != nil {
		return nil, err
	}
	ecs.SetLogger(log.Named("ecs"))
	storage.SetLogger(log.Named("storage"))
	assets.SetLogger(log.Named("assets"))
	return log, nil
}

func run(cfg Config, log *zap.Logger) error {
	duration, err := cfg.RunDuration()
	if err != nil {
		return err
	}
	log.Info("starting slot map stress test",
		zap.Duration("duration", duration),
		zap.Int("entities", cfg.Entities),
		zap.Int("sprites", cfg.Sprites))

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	// 1. Build the asset catalog, optionally persisting and watching it. Edits
	// are reloaded between frames so systems never see a catalog mid-swap.
	var edits <-chan string
	catalog, sprites, err := buildCatalog(cfg.Sprites)
	if err != nil {
		return err
	}
	defer catalog.Close()

	if cfg.CatalogDir != "" {
		if err := catalog.Save(cfg.CatalogDir, assets.JSON); err != nil {
			return err
		}
		watcher, err := assets.NewWatcher(cfg.CatalogDir)
		if err != nil {
			return err
		}
		defer watcher.Close()
		edits = watcher.Events
		log.Info("watching catalog", zap.String("dir", cfg.CatalogDir))
	}

	// 2. Setup registry, world and scheduler
	registry := ecs.NewComponentRegistry()
	registerComponents(registry, 1024)
	world := ecs.NewWorld(registry)

	effectStore, err := storage.New[Effect](1, 64)
	if err != nil {
		return err
	}
	defer effectStore.Close()

	rng := rand.New(rand.NewSource(cfg.Seed))
	spawn := &spawner{rng: rng, sprites: sprites}
	lifetime := &LifetimeSystem{spawner: spawn}
	render := &RenderSystem{catalog: catalog}
	effects := &EffectSystem{effects: effectStore, rng: rng}
	scheduler := ecs.NewScheduler(world)
	for _, sys := range []ecs.System{&MovementSystem{}, lifetime, render, effects} {
		if err := scheduler.Register(sys); err != nil {
			return err
		}
	}

	// 3. Populate the world
	for i := 0; i < cfg.Entities; i++ {
		if _, err := world.Spawn(spawn.components()...); err != nil {
			return err
		}
	}
	log.Info("population complete", zap.Int("entities", world.EntityCount()))

	// 4. Run the simulation loop
	report := &Report{
		Duration:       duration,
		Entities:       cfg.Entities,
		Sprites:        cfg.Sprites,
		GCPauseMetrics: cfg.GCPauseMetrics,
		UpdateTime: Stats{
			Samples: make([]time.Duration, 0),
		},
	}
	runtime.ReadMemStats(&report.MemStatsStart)

	startTime := time.Now()
	lastFrameTime := time.Now()

Loop:
	for {
		select {
		case <-ctx.Done():
			break Loop
		case path, ok := <-edits:
			if !ok {
				edits = nil
				continue
			}
			if err := catalog.Reload(path); err != nil {
				log.Warn("catalog reload failed", zap.String("path", path), zap.Error(err))
				continue
			}
			report.Reloads++
		default:
			deltaTime := time.Since(lastFrameTime)
			lastFrameTime = time.Now()

			updateStart := time.Now()
			if err := scheduler.Once(deltaTime.Seconds()); err != nil {
				return err
			}
			report.UpdateTime.Samples = append(report.UpdateTime.Samples, time.Since(updateStart))
			report.TotalUpdates++
		}
	}

	report.TotalTime = time.Since(startTime)
	report.UpdateTime.Finalize()
	runtime.ReadMemStats(&report.MemStatsEnd)
	report.World = world.CollectStats()
	report.Scheduler = scheduler.GetStats()
	report.Expired = lifetime.Expired
	report.Resolved = render.Resolved
	report.Missing = render.Missing
	report.Effects = EffectReport{
		Spawned:  effects.Spawned,
		Released: effects.Released,
		Live:     effectStore.Size(),
		Capacity: effectStore.Capacity(),
	}

	log.Info("simulation finished", zap.Int64("updates", report.TotalUpdates))

	// 5. Generate report to console
	fmt.Println("\n\n--- Stress Test Report ---")
	if err := report.Generate(os.Stdout); err != nil {
		return err
	}
	fmt.Println("--- End of Report ---")
	return nil
}
