// Package main provides the planeta simulator binary.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/planeta/internal/config"
	"github.com/cory-johannsen/planeta/internal/game/dice"
	"github.com/cory-johannsen/planeta/internal/game/environment"
	"github.com/cory-johannsen/planeta/internal/game/fossil"
	"github.com/cory-johannsen/planeta/internal/game/population"
	"github.com/cory-johannsen/planeta/internal/observability"
	"github.com/cory-johannsen/planeta/internal/scripting"
	"github.com/cory-johannsen/planeta/internal/server"
	"github.com/cory-johannsen/planeta/internal/simulation"
	"github.com/cory-johannsen/planeta/internal/storage/postgres"
)

const dbHealthInterval = 30 * time.Second

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	ticks := flag.Int("ticks", 0, "run this many steps back to back and exit; 0 runs until interrupted")
	hall := flag.Int("hall", 5, "fossils to log from the hall of fame at exit")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	var src dice.Source
	if cfg.Simulation.Seed != 0 {
		src = dice.NewSeededSource(cfg.Simulation.Seed)
	} else {
		src = dice.NewCryptoSource()
	}
	roller := dice.NewRoller(src, logger)

	envStart := time.Now()
	envs, err := environment.LoadDir(cfg.Content.EnvironmentsDir)
	if err != nil {
		logger.Fatal("loading environments", zap.Error(err))
	}
	registry, err := environment.NewRegistryFrom(envs)
	if err != nil {
		logger.Fatal("registering environments", zap.Error(err))
	}
	logger.Info("environments loaded",
		zap.Strings("ids", registry.IDs()),
		zap.Duration("elapsed", time.Since(envStart)),
	)

	deps := simulation.Deps{
		Population:   population.NewManager(cfg.Simulation.RegenInterval, logger),
		Environments: registry,
		Roller:       roller,
		Logger:       logger,
	}

	if cfg.Content.ScriptsDir != "" {
		scripts := scripting.NewManager(roller, logger, 0)
		defer scripts.Close()
		n, err := scripts.LoadDir(cfg.Content.ScriptsDir)
		if err != nil {
			logger.Fatal("loading scripts", zap.Error(err))
		}
		logger.Info("scripts loaded",
			zap.Int("count", n),
			zap.Bool("mutation_hook", scripts.HasHook(scripting.MutationHook)),
		)
		deps.Hooks = scripts
	}

	if cfg.Fossils.CSVPath != "" {
		csvWriter, err := fossil.NewCSVWriter(cfg.Fossils.CSVPath)
		if err != nil {
			logger.Fatal("opening fossil record", zap.Error(err))
		}
		defer csvWriter.Close()
		deps.Recorders = append(deps.Recorders, csvWriter)
	}

	var pool *postgres.Pool
	var creatures *postgres.CreatureRepository
	if cfg.Storage.Enabled {
		dbStart := time.Now()
		pool, err = postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		defer pool.Close()
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
		creatures = postgres.NewCreatureRepository(pool.DB())
		deps.Store = creatures
		deps.Recorders = append(deps.Recorders, postgres.NewFossilRepository(pool.DB()))
	}

	engine, err := simulation.NewEngine(simulation.OptionsFromConfig(cfg.Simulation), deps)
	if err != nil {
		logger.Fatal("creating simulation", zap.Error(err))
	}

	if creatures != nil {
		restored, err := restore(ctx, creatures, deps.Population, registry, cfg.Simulation.StartEnvironment, logger)
		if err != nil {
			logger.Fatal("restoring creatures", zap.Error(err))
		}
		logger.Info("creatures restored", zap.Int("count", restored))
	}
	if deps.Population.Len() == 0 {
		if _, err := engine.Populate(cfg.Simulation.Population); err != nil {
			logger.Fatal("spawning population", zap.Error(err))
		}
	}
	logger.Info("simulation ready",
		zap.String("planet", engine.Planet()),
		zap.Int("creatures", deps.Population.Len()),
		zap.Duration("startup", time.Since(start)),
	)

	lifecycle := server.NewLifecycle(logger)
	if *ticks > 0 {
		lifecycle.Add("simulation", &server.FuncService{
			StartFn: func(ctx context.Context) error {
				if _, err := engine.RunSteps(ctx, *ticks); err != nil {
					return err
				}
				return engine.Checkpoint(ctx)
			},
		})
	} else {
		lifecycle.Add("simulation", &server.FuncService{
			StartFn: engine.Run,
			StopFn:  engine.Stop,
		})
		if pool != nil {
			lifecycle.Add("db-health", &server.FuncService{
				StartFn: func(ctx context.Context) error { return watchDatabase(ctx, pool, logger) },
			})
		}
	}

	if err := lifecycle.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("simulation stopped with error", zap.Error(err))
	}

	report := population.Census(deps.Population.All())
	logger.Info("census",
		zap.Int64("ticks", engine.Ticks()),
		zap.String("planet", engine.Planet()),
		zap.Int("total", report.Total),
		zap.Int("alive", report.Alive),
		zap.Int("dead", report.Dead),
		zap.Float64("mean_health", report.MeanHealth),
		zap.Float64("stddev_health", report.StdDevHealth),
		zap.Float64("mean_mutations", report.MeanMutations),
		zap.Int("max_generation", report.MaxGeneration),
	)
	if cfg.Fossils.CSVPath != "" && *hall > 0 {
		logHallOfFame(cfg.Fossils.CSVPath, *hall, logger)
	}
}

// restore loads living creatures from the database into pop. Creatures whose
// environment is no longer registered are moved to fallbackEnv.
func restore(ctx context.Context, repo *postgres.CreatureRepository, pop *population.Manager,
	registry *environment.Registry, fallbackEnv string, logger *zap.Logger) (int, error) {
	stored, err := repo.ListLiving(ctx)
	if err != nil {
		return 0, err
	}
	for _, sc := range stored {
		envID := sc.EnvironmentID
		if _, err := registry.Get(envID); err != nil {
			logger.Warn("restored creature in unknown environment",
				zap.String("id", sc.ID),
				zap.String("fallback", fallbackEnv),
				zap.Error(err),
			)
			envID = fallbackEnv
		}
		if _, err := pop.Restore(sc.ID, sc.Name, envID, sc.Age, sc.BornAt, sc.Record); err != nil {
			return 0, err
		}
	}
	return len(stored), nil
}

func watchDatabase(ctx context.Context, pool *postgres.Pool, logger *zap.Logger) error {
	ticker := time.NewTicker(dbHealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := pool.Health(ctx, 5*time.Second); err != nil {
				logger.Warn("database health check failed", zap.Error(err))
				continue
			}
			st := pool.Stats()
			logger.Debug("database healthy",
				zap.Int32("conns", st.Total),
				zap.Int32("idle", st.Idle),
				zap.Int32("acquired", st.Acquired),
			)
		}
	}
}

func logHallOfFame(path string, n int, logger *zap.Logger) {
	fossils, err := fossil.ReadCSV(path)
	if err != nil {
		logger.Warn("reading fossil record", zap.Error(err))
		return
	}
	for i, f := range fossil.HallOfFame(fossils, n) {
		logger.Info("hall of fame",
			zap.Int("rank", i+1),
			zap.String("name", f.Name),
			zap.Int("age", f.Age),
			zap.Int("mutations", f.Mutations),
			zap.String("cause", f.Cause),
			zap.String("code", f.GeneticCode),
		)
	}
}
