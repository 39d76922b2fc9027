// Package checkpoint encodes and decodes full substrate checkpoints in two
// interchangeable on-disk forms: a versioned JSON text file, and a compact
// versioned SQLite database for large graphs. Both are written via
// write-to-temp-then-rename so a crash mid-write never corrupts the
// previous checkpoint, and both round-trip the same Document.
package checkpoint

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TextVersion is the current JSON checkpoint schema version.
const TextVersion = 1

// BinaryFormatVersion is the current SQLite checkpoint schema version.
const BinaryFormatVersion = 1

// ErrVersionMismatch is returned when a checkpoint declares a schema
// version this build cannot read.
var ErrVersionMismatch = errors.New("checkpoint: unsupported format version")

// Document is the codec-neutral checkpoint payload. Enum fields are wire
// strings so the format stays readable and stable across enum reordering.
type Document struct {
	Version  int       `json:"version"`
	SavedAt  time.Time `json:"saved_at"`
	Seed     int64     `json:"seed"`
	Mode     string    `json:"mode"`
	Cycle    uint64    `json:"cycle"`
	Counters Counters  `json:"counters"`

	Regions  []RegionRecord    `json:"regions"`
	Synapses []SynapseRecord   `json:"synapses"`
	Routing  map[string]uint64 `json:"routing"` // modality wire name -> region id

	Stats StatsRecord `json:"stats"`
}

// Counters preserves the ID allocators so restored brains never reuse IDs.
type Counters struct {
	NextRegion  uint64 `json:"next_region"`
	NextNeuron  uint64 `json:"next_neuron"`
	NextSynapse uint64 `json:"next_synapse"`
}

// RegionRecord is one region and its owned neurons.
type RegionRecord struct {
	ID      uint64         `json:"id"`
	Name    string         `json:"name"`
	Type    string         `json:"type"`
	Pattern string         `json:"pattern"`
	Neurons []NeuronRecord `json:"neurons"`
}

// NeuronRecord is one neuron's persisted state.
type NeuronRecord struct {
	ID         uint64  `json:"id"`
	Activation float64 `json:"activation"`
}

// SynapseRecord is one materialized synapse.
type SynapseRecord struct {
	ID           uint64  `json:"id"`
	Source       uint64  `json:"source"`
	Target       uint64  `json:"target"`
	SourceRegion uint64  `json:"source_region"`
	TargetRegion uint64  `json:"target_region"`
	Weight       float64 `json:"weight"`
	Type         string  `json:"type"`
	Plasticity   string  `json:"plasticity"`
}

// StatsRecord carries the aggregate statistics across a round trip.
type StatsRecord struct {
	Cycle          uint64  `json:"cycle"`
	RegionFailures uint64  `json:"region_failures"`
	SnapshotsTaken uint64  `json:"snapshots_taken"`
	Consolidated   uint64  `json:"consolidated"`
	ActualHz       float64 `json:"actual_hz"`
}

// Save writes a checkpoint, choosing the codec from the path extension:
// .db and .sqlite select the binary form, everything else the text form.
func Save(path string, doc *Document) error {
	if isBinaryPath(path) {
		return saveSQLite(path, doc)
	}
	return saveText(path, doc)
}

// Load reads a checkpoint written by Save. The document is fully parsed
// and validated before it is returned; callers apply it atomically.
func Load(path string) (*Document, error) {
	if isBinaryPath(path) {
		return loadSQLite(path)
	}
	return loadText(path)
}

func isBinaryPath(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".db") || strings.HasSuffix(lower, ".sqlite")
}

func validate(doc *Document) error {
	regionIDs := make(map[uint64]struct{}, len(doc.Regions))
	neuronIDs := make(map[uint64]struct{})
	names := make(map[string]struct{}, len(doc.Regions))
	for _, r := range doc.Regions {
		if _, dup := regionIDs[r.ID]; dup {
			return fmt.Errorf("checkpoint: duplicate region id %d", r.ID)
		}
		if _, dup := names[r.Name]; dup {
			return fmt.Errorf("checkpoint: duplicate region name %q", r.Name)
		}
		regionIDs[r.ID] = struct{}{}
		names[r.Name] = struct{}{}
		for _, n := range r.Neurons {
			if _, dup := neuronIDs[n.ID]; dup {
				return fmt.Errorf("checkpoint: duplicate neuron id %d", n.ID)
			}
			neuronIDs[n.ID] = struct{}{}
		}
	}
	synapseIDs := make(map[uint64]struct{}, len(doc.Synapses))
	for _, s := range doc.Synapses {
		if _, dup := synapseIDs[s.ID]; dup {
			return fmt.Errorf("checkpoint: duplicate synapse id %d", s.ID)
		}
		synapseIDs[s.ID] = struct{}{}
		if _, ok := neuronIDs[s.Source]; !ok {
			return fmt.Errorf("checkpoint: synapse %d references unknown source neuron %d", s.ID, s.Source)
		}
		if _, ok := neuronIDs[s.Target]; !ok {
			return fmt.Errorf("checkpoint: synapse %d references unknown target neuron %d", s.ID, s.Target)
		}
	}
	for modality, region := range doc.Routing {
		if _, ok := regionIDs[region]; !ok {
			return fmt.Errorf("checkpoint: routing %q references unknown region %d", modality, region)
		}
	}
	return nil
}
