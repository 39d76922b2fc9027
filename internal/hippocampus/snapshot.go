// Package hippocampus implements the fast-plasticity memory path: a bounded
// priority cache of substrate state snapshots with decay, eviction and
// write-back consolidation into long-term storage.
package hippocampus

import (
	"context"
	"time"

	"github.com/nidhogg/neuroworld/internal/substrate"
)

// Snapshot is a point-in-time value copy of substrate state. It never
// aliases live neuron or synapse storage; capture copies everything.
// Snapshots are created by capture, mutated only by priority decay and
// consolidation, and destroyed by eviction, expiry or consolidation.
type Snapshot struct {
	ID                string                              `json:"id"`
	Timestamp         time.Time                           `json:"timestamp"`
	Cycle             uint64                              `json:"cycle"`
	SynapseWeights    map[substrate.SynapseID]float64     `json:"synapse_weights"`
	NeuronActivations map[substrate.NeuronID]float64      `json:"neuron_activations"`
	RegionStates      map[substrate.RegionID][]float64    `json:"region_states"`
	GlobalActivation  float64                             `json:"global_activation"`
	Context           string                              `json:"context"`
	Significant       bool                                `json:"significant"`
	Priority          float64                             `json:"priority"`
	AccessCount       int                                 `json:"access_count"`
	LastAccess        time.Time                           `json:"last_access"`
	Consolidated      bool                                `json:"consolidated"`
}

// LongTermStore is the write-back target for consolidation. The engine only
// hands over finished snapshots; persistence internals are the collaborator's.
type LongTermStore interface {
	WriteSnapshot(ctx context.Context, snap *Snapshot) error
}

// estimateBytes approximates the heap footprint of one snapshot.
func (s *Snapshot) estimateBytes() int {
	const entry = 16 // key + float64 per map entry
	n := 256         // struct + strings overhead
	n += len(s.SynapseWeights) * entry
	n += len(s.NeuronActivations) * entry
	for _, vec := range s.RegionStates {
		n += 16 + len(vec)*8
	}
	return n
}
