package longterm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nidhogg/neuroworld/internal/hippocampus"
	"go.uber.org/zap"
)

// Postgres persists consolidated snapshots through a pgx connection pool.
type Postgres struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres connects and pings the database.
func NewPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("long-term store connected")
	return &Postgres{db: pool, logger: logger}, nil
}

// Migrate reads and executes all .up.sql files from the migrations directory.
func (p *Postgres) Migrate(ctx context.Context, migrationsDir string) error {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(migrationsDir, f))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := p.db.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		p.logger.Info("migration applied", zap.String("file", f))
	}
	return nil
}

// WriteSnapshot implements hippocampus.LongTermStore.
func (p *Postgres) WriteSnapshot(ctx context.Context, snap *hippocampus.Snapshot) error {
	weights, err := json.Marshal(snap.SynapseWeights)
	if err != nil {
		return fmt.Errorf("marshal weights: %w", err)
	}
	activations, err := json.Marshal(snap.NeuronActivations)
	if err != nil {
		return fmt.Errorf("marshal activations: %w", err)
	}
	regions, err := json.Marshal(snap.RegionStates)
	if err != nil {
		return fmt.Errorf("marshal region states: %w", err)
	}

	_, err = p.db.Exec(ctx, `
		INSERT INTO consolidated_snapshots
			(id, captured_at, cycle, synapse_weights, neuron_activations,
			 region_states, global_activation, context, significant, priority)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		snap.ID, snap.Timestamp, snap.Cycle, weights, activations,
		regions, snap.GlobalActivation, snap.Context, snap.Significant, snap.Priority,
	)
	if err != nil {
		return fmt.Errorf("write snapshot %s: %w", snap.ID, err)
	}
	return nil
}

// Count returns the number of consolidated snapshots on record.
func (p *Postgres) Count(ctx context.Context) (int, error) {
	var n int
	if err := p.db.QueryRow(ctx, `SELECT COUNT(*) FROM consolidated_snapshots`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count snapshots: %w", err)
	}
	return n, nil
}

// Close shuts down the connection pool.
func (p *Postgres) Close() {
	p.db.Close()
}
