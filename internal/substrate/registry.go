package substrate

import (
	"sync"

	"go.uber.org/zap"
)

// Registry is the brain-wide store of materialized synapses: an ordered
// vector plus an existence index keyed by identity. The two always contain
// the same set of IDs; every mutation updates both under one lock.
type Registry struct {
	mu       sync.RWMutex
	synapses []*Synapse
	index    map[SynapseID]*Synapse
	byTarget map[RegionID][]*Synapse
	logger   *zap.Logger
}

// NewRegistry creates an empty synapse registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		index:    make(map[SynapseID]*Synapse),
		byTarget: make(map[RegionID][]*Synapse),
		logger:   logger,
	}
}

// Add registers a synapse. It fails with ErrDuplicateSynapse, mutating
// nothing, if the identity is already present.
func (r *Registry) Add(s *Synapse) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.index[s.ID]; exists {
		return ErrDuplicateSynapse
	}
	r.synapses = append(r.synapses, s)
	r.index[s.ID] = s
	r.byTarget[s.TargetRegion] = append(r.byTarget[s.TargetRegion], s)
	return nil
}

// Get returns a synapse by identity.
func (r *Registry) Get(id SynapseID) (*Synapse, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.index[id]
	return s, ok
}

// Len returns the number of registered synapses.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.synapses)
}

// All returns a copy of the synapse vector in registration order.
func (r *Registry) All() []*Synapse {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Synapse, len(r.synapses))
	copy(out, r.synapses)
	return out
}

// IDs returns the set of registered identities. Used by invariant checks.
func (r *Registry) IDs() map[SynapseID]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make(map[SynapseID]struct{}, len(r.index))
	for id := range r.index {
		ids[id] = struct{}{}
	}
	return ids
}

// WeightedInputs accumulates the signed synaptic input into every neuron of
// the target region, reading the source neurons' committed activations via
// the supplied lookup. The returned map is freshly allocated per call.
func (r *Registry) WeightedInputs(target RegionID, activation func(NeuronID) (float64, bool)) map[NeuronID]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inputs := make(map[NeuronID]float64)
	for _, s := range r.byTarget[target] {
		act, ok := activation(s.Source)
		if !ok {
			continue
		}
		inputs[s.Target] += s.Signed() * act
	}
	return inputs
}

// SynapsesInto returns value copies of every synapse targeting the region.
// Endpoints and identity never change after registration, so the copies stay
// valid after the lock is released; the weights are a point-in-time reading.
func (r *Registry) SynapsesInto(target RegionID) []Synapse {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Synapse, len(r.byTarget[target]))
	for i, s := range r.byTarget[target] {
		out[i] = *s
	}
	return out
}

// AdjustInto applies fn to every synapse targeting the given region, under
// the registry lock. Used by the learning collaborator for weight updates.
// fn must not call back into the registry or any lock ordered before it.
func (r *Registry) AdjustInto(target RegionID, fn func(*Synapse)) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.byTarget[target] {
		fn(s)
	}
	return len(r.byTarget[target])
}

// AdjustAll applies fn to every registered synapse under the registry lock,
// with the same callback constraint as AdjustInto.
func (r *Registry) AdjustAll(fn func(*Synapse)) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.synapses {
		fn(s)
	}
	return len(r.synapses)
}

// RemoveRegion removes every synapse whose source or target region matches,
// from the vector, the index and the target buckets in one critical section.
// Returns the number removed.
func (r *Registry) RemoveRegion(region RegionID) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.synapses[:0]
	removed := 0
	for _, s := range r.synapses {
		if s.SourceRegion == region || s.TargetRegion == region {
			delete(r.index, s.ID)
			removed++
			continue
		}
		kept = append(kept, s)
	}
	r.synapses = kept

	delete(r.byTarget, region)
	for target, bucket := range r.byTarget {
		filtered := bucket[:0]
		for _, s := range bucket {
			if s.SourceRegion != region {
				filtered = append(filtered, s)
			}
		}
		r.byTarget[target] = filtered
	}

	if removed > 0 {
		r.logger.Debug("synapses removed with region",
			zap.Uint64("region", uint64(region)),
			zap.Int("removed", removed))
	}
	return removed
}

// Clear drops every synapse. Used by brain reset and checkpoint restore.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.synapses = nil
	r.index = make(map[SynapseID]*Synapse)
	r.byTarget = make(map[RegionID][]*Synapse)
}

// WeightMap returns a value copy of every synapse's weight keyed by ID.
func (r *Registry) WeightMap() map[SynapseID]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	weights := make(map[SynapseID]float64, len(r.synapses))
	for _, s := range r.synapses {
		weights[s.ID] = s.Weight
	}
	return weights
}
