package checkpoint

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
CREATE TABLE regions (
    id      INTEGER PRIMARY KEY,
    name    TEXT NOT NULL UNIQUE,
    type    TEXT NOT NULL,
    pattern TEXT NOT NULL
);
CREATE TABLE neurons (
    id         INTEGER PRIMARY KEY,
    region_id  INTEGER NOT NULL REFERENCES regions(id),
    activation REAL NOT NULL
);
CREATE TABLE synapses (
    id            INTEGER PRIMARY KEY,
    source        INTEGER NOT NULL,
    target        INTEGER NOT NULL,
    source_region INTEGER NOT NULL,
    target_region INTEGER NOT NULL,
    weight        REAL NOT NULL,
    type          TEXT NOT NULL,
    plasticity    TEXT NOT NULL
);
CREATE TABLE routing (
    modality  TEXT PRIMARY KEY,
    region_id INTEGER NOT NULL
);
`

// saveSQLite writes the compact binary checkpoint: a SQLite database built
// in a temp file and renamed over the destination once fully committed.
func saveSQLite(path string, doc *Document) error {
	doc.Version = BinaryFormatVersion

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".checkpoint-*.db")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	tmp.Close()
	os.Remove(tmpName) // sqlite creates the file itself
	defer os.Remove(tmpName)

	db, err := sql.Open("sqlite", tmpName)
	if err != nil {
		return fmt.Errorf("open checkpoint db: %w", err)
	}

	if err := writeSQLite(db, doc); err != nil {
		db.Close()
		return err
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("close checkpoint db: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}

func writeSQLite(db *sql.DB, doc *Document) error {
	if _, err := db.Exec(sqliteSchema); err != nil {
		return fmt.Errorf("create checkpoint schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin checkpoint tx: %w", err)
	}
	defer tx.Rollback()

	meta := map[string]string{
		"format_version":  fmt.Sprint(BinaryFormatVersion),
		"saved_at":        doc.SavedAt.Format(time.RFC3339Nano),
		"seed":            fmt.Sprint(doc.Seed),
		"mode":            doc.Mode,
		"cycle":           fmt.Sprint(doc.Cycle),
		"next_region":     fmt.Sprint(doc.Counters.NextRegion),
		"next_neuron":     fmt.Sprint(doc.Counters.NextNeuron),
		"next_synapse":    fmt.Sprint(doc.Counters.NextSynapse),
		"region_failures": fmt.Sprint(doc.Stats.RegionFailures),
		"snapshots_taken": fmt.Sprint(doc.Stats.SnapshotsTaken),
		"consolidated":    fmt.Sprint(doc.Stats.Consolidated),
		"actual_hz":       fmt.Sprint(doc.Stats.ActualHz),
	}
	for k, v := range meta {
		if _, err := tx.Exec(`INSERT INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("write meta %s: %w", k, err)
		}
	}

	for _, r := range doc.Regions {
		if _, err := tx.Exec(`INSERT INTO regions (id, name, type, pattern) VALUES (?, ?, ?, ?)`,
			r.ID, r.Name, r.Type, r.Pattern); err != nil {
			return fmt.Errorf("write region %d: %w", r.ID, err)
		}
		for _, n := range r.Neurons {
			if _, err := tx.Exec(`INSERT INTO neurons (id, region_id, activation) VALUES (?, ?, ?)`,
				n.ID, r.ID, n.Activation); err != nil {
				return fmt.Errorf("write neuron %d: %w", n.ID, err)
			}
		}
	}

	for _, s := range doc.Synapses {
		if _, err := tx.Exec(`
			INSERT INTO synapses (id, source, target, source_region, target_region, weight, type, plasticity)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			s.ID, s.Source, s.Target, s.SourceRegion, s.TargetRegion, s.Weight, s.Type, s.Plasticity); err != nil {
			return fmt.Errorf("write synapse %d: %w", s.ID, err)
		}
	}

	for modality, region := range doc.Routing {
		if _, err := tx.Exec(`INSERT INTO routing (modality, region_id) VALUES (?, ?)`,
			modality, region); err != nil {
			return fmt.Errorf("write routing %s: %w", modality, err)
		}
	}

	return tx.Commit()
}

// loadSQLite reads and validates a binary checkpoint.
func loadSQLite(path string) (*Document, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("read checkpoint %s: %w", path, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint %s: %w", path, err)
	}
	defer db.Close()

	doc := &Document{Routing: make(map[string]uint64)}

	meta := make(map[string]string)
	rows, err := db.Query(`SELECT key, value FROM meta`)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint meta: %w", err)
	}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan meta: %w", err)
		}
		meta[k] = v
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read checkpoint meta: %w", err)
	}

	if meta["format_version"] != fmt.Sprint(BinaryFormatVersion) {
		return nil, fmt.Errorf("%w: got %q, want %d", ErrVersionMismatch, meta["format_version"], BinaryFormatVersion)
	}
	doc.Version = BinaryFormatVersion
	doc.Mode = meta["mode"]
	if doc.Seed, err = strconv.ParseInt(meta["seed"], 10, 64); err != nil {
		return nil, fmt.Errorf("checkpoint meta seed: %w", err)
	}
	for _, field := range []struct {
		key string
		dst *uint64
	}{
		{"cycle", &doc.Cycle},
		{"next_region", &doc.Counters.NextRegion},
		{"next_neuron", &doc.Counters.NextNeuron},
		{"next_synapse", &doc.Counters.NextSynapse},
		{"region_failures", &doc.Stats.RegionFailures},
		{"snapshots_taken", &doc.Stats.SnapshotsTaken},
		{"consolidated", &doc.Stats.Consolidated},
	} {
		if *field.dst, err = strconv.ParseUint(meta[field.key], 10, 64); err != nil {
			return nil, fmt.Errorf("checkpoint meta %s: %w", field.key, err)
		}
	}
	if doc.Stats.ActualHz, err = strconv.ParseFloat(meta["actual_hz"], 64); err != nil {
		return nil, fmt.Errorf("checkpoint meta actual_hz: %w", err)
	}
	if ts, err := time.Parse(time.RFC3339Nano, meta["saved_at"]); err == nil {
		doc.SavedAt = ts
	}
	doc.Stats.Cycle = doc.Cycle

	regionRows, err := db.Query(`SELECT id, name, type, pattern FROM regions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("read regions: %w", err)
	}
	byID := make(map[uint64]int)
	for regionRows.Next() {
		var r RegionRecord
		if err := regionRows.Scan(&r.ID, &r.Name, &r.Type, &r.Pattern); err != nil {
			regionRows.Close()
			return nil, fmt.Errorf("scan region: %w", err)
		}
		byID[r.ID] = len(doc.Regions)
		doc.Regions = append(doc.Regions, r)
	}
	regionRows.Close()
	if err := regionRows.Err(); err != nil {
		return nil, fmt.Errorf("read regions: %w", err)
	}

	neuronRows, err := db.Query(`SELECT id, region_id, activation FROM neurons ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("read neurons: %w", err)
	}
	for neuronRows.Next() {
		var n NeuronRecord
		var region uint64
		if err := neuronRows.Scan(&n.ID, &region, &n.Activation); err != nil {
			neuronRows.Close()
			return nil, fmt.Errorf("scan neuron: %w", err)
		}
		idx, ok := byID[region]
		if !ok {
			neuronRows.Close()
			return nil, fmt.Errorf("checkpoint: neuron %d references unknown region %d", n.ID, region)
		}
		doc.Regions[idx].Neurons = append(doc.Regions[idx].Neurons, n)
	}
	neuronRows.Close()
	if err := neuronRows.Err(); err != nil {
		return nil, fmt.Errorf("read neurons: %w", err)
	}

	synapseRows, err := db.Query(`
		SELECT id, source, target, source_region, target_region, weight, type, plasticity
		FROM synapses ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("read synapses: %w", err)
	}
	for synapseRows.Next() {
		var s SynapseRecord
		if err := synapseRows.Scan(&s.ID, &s.Source, &s.Target, &s.SourceRegion,
			&s.TargetRegion, &s.Weight, &s.Type, &s.Plasticity); err != nil {
			synapseRows.Close()
			return nil, fmt.Errorf("scan synapse: %w", err)
		}
		doc.Synapses = append(doc.Synapses, s)
	}
	synapseRows.Close()
	if err := synapseRows.Err(); err != nil {
		return nil, fmt.Errorf("read synapses: %w", err)
	}

	routingRows, err := db.Query(`SELECT modality, region_id FROM routing`)
	if err != nil {
		return nil, fmt.Errorf("read routing: %w", err)
	}
	for routingRows.Next() {
		var modality string
		var region uint64
		if err := routingRows.Scan(&modality, &region); err != nil {
			routingRows.Close()
			return nil, fmt.Errorf("scan routing: %w", err)
		}
		doc.Routing[modality] = region
	}
	routingRows.Close()
	if err := routingRows.Err(); err != nil {
		return nil, fmt.Errorf("read routing: %w", err)
	}

	if err := validate(doc); err != nil {
		return nil, err
	}
	return doc, nil
}
