package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nidhogg/neuroworld/internal/api"
	"github.com/nidhogg/neuroworld/internal/brain"
	"github.com/nidhogg/neuroworld/internal/config"
	"github.com/nidhogg/neuroworld/internal/connectivity"
	"github.com/nidhogg/neuroworld/internal/hippocampus"
	"github.com/nidhogg/neuroworld/internal/longterm"
	"github.com/nidhogg/neuroworld/internal/substrate"
	"github.com/nidhogg/neuroworld/internal/telemetry"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting NeuroWorld...")

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/neuroworld.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// Initialize long-term memory
	var longTerm hippocampus.LongTermStore
	var pgStore *longterm.Postgres
	if cfg.Database.Postgres.DSN != "" {
		ps, pgErr := longterm.NewPostgres(context.Background(), cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, consolidating to memory only", zap.Error(pgErr))
		} else {
			dir := cfg.Database.Postgres.MigrationsDir
			if dir == "" {
				dir = "migrations"
			}
			if mErr := ps.Migrate(context.Background(), dir); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			pgStore = ps
			longTerm = ps
		}
	}
	if longTerm == nil {
		longTerm = longterm.NewMemory()
	}

	// Assemble the brain
	b := brain.New(cfg.Brain, brain.Deps{
		LongTerm:  longTerm,
		Telemetry: telemetry.NewZapSink(logger),
	}, logger)
	if err := b.Initialize(); err != nil {
		logger.Fatal("brain initialization failed", zap.Error(err))
	}

	// Bootstrap the substrate from config
	if err := bootstrap(b, cfg.Bootstrap); err != nil {
		logger.Fatal("bootstrap failed", zap.Error(err))
	}

	// Restore a previous checkpoint if one exists
	if path := cfg.Runtime.CheckpointPath; path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			if err := b.LoadCheckpoint(path); err != nil {
				logger.Warn("checkpoint restore failed, starting fresh", zap.Error(err))
			} else {
				logger.Info("checkpoint restored", zap.String("path", path))
			}
		}
	}

	if err := b.Start(); err != nil {
		logger.Fatal("brain start failed", zap.Error(err))
	}

	// Drive the tick loop
	runCtx, cancelRun := context.WithCancel(context.Background())
	tickInterval := time.Duration(cfg.Runtime.TickIntervalMs) * time.Millisecond
	go func() {
		if err := b.Run(runCtx, tickInterval); err != nil && err != context.Canceled {
			logger.Error("run loop exited", zap.Error(err))
		}
	}()
	logger.Info("Simulation started", zap.Duration("tick_interval", tickInterval))

	// Build HTTP handler
	handler := api.NewHandler(b, logger)

	// Start server
	port := fmt.Sprintf("%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("NeuroWorld listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down NeuroWorld...")
	cancelRun()

	if path := cfg.Runtime.CheckpointPath; path != "" {
		if err := b.SaveCheckpoint(path); err != nil {
			logger.Warn("final checkpoint failed", zap.Error(err))
		}
	}
	if _, err := b.Consolidate(context.Background(), true); err != nil {
		logger.Warn("final consolidation failed", zap.Error(err))
	}

	b.Shutdown()
	srv.Shutdown(context.Background())
	if pgStore != nil {
		pgStore.Close()
	}
}

// bootstrap builds the initial substrate: regions, connections and modality
// routing from the config file.
func bootstrap(b *brain.Brain, boot config.Bootstrap) error {
	for _, spec := range boot.Regions {
		typ, ok := substrate.ParseRegionType(spec.Type)
		if !ok {
			return fmt.Errorf("region %q: unknown type %q", spec.Name, spec.Type)
		}
		pattern, ok := substrate.ParseActivationPattern(spec.Pattern)
		if !ok {
			return fmt.Errorf("region %q: unknown pattern %q", spec.Name, spec.Pattern)
		}
		if _, err := b.AddRegion(spec.Name, typ, pattern, spec.Neurons); err != nil {
			return fmt.Errorf("region %q: %w", spec.Name, err)
		}
	}

	for _, conn := range boot.Connections {
		src, ok := b.RegionByName(conn.Source)
		if !ok {
			return fmt.Errorf("connection source %q not found", conn.Source)
		}
		tgt, ok := b.RegionByName(conn.Target)
		if !ok {
			return fmt.Errorf("connection target %q not found", conn.Target)
		}
		if _, err := b.ConnectRegions(src.ID(), tgt.ID(), conn.Density,
			connectivity.WeightRange{Min: conn.WeightMin, Max: conn.WeightMax}); err != nil {
			return fmt.Errorf("connect %q -> %q: %w", conn.Source, conn.Target, err)
		}
	}

	for name, regionName := range boot.Modalities {
		m, ok := substrate.ParseModality(name)
		if !ok {
			return fmt.Errorf("unknown modality %q", name)
		}
		region, ok := b.RegionByName(regionName)
		if !ok {
			return fmt.Errorf("modality %q: region %q not found", name, regionName)
		}
		if err := b.SetModality(m, region.ID()); err != nil {
			return fmt.Errorf("modality %q: %w", name, err)
		}
	}
	return nil
}
