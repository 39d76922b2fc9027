// Package connectivity materializes synapses between regions, or — in
// procedural mode — registers connectivity rules that are evaluated lazily
// during processing instead of being stored. Procedural rules trade memory
// for recomputation so the substrate can outgrow addressable synapse storage.
package connectivity

import (
	"hash"
	"hash/fnv"
	"math/rand"
	"sync"

	"github.com/nidhogg/neuroworld/internal/substrate"
	"go.uber.org/zap"
)

// WeightRange bounds the uniform weight draw for new synapses.
type WeightRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Rule is a virtual connectivity description: every ordered neuron pair
// between Source and Target is admitted with probability Density, with a
// weight drawn from Weights. Admission and weight are pure functions of
// (rule seed, source neuron, target neuron), so a rule reproduces the same
// virtual synapses on every evaluation.
type Rule struct {
	ID      uint64             `json:"id"`
	Source  substrate.RegionID `json:"source"`
	Target  substrate.RegionID `json:"target"`
	Density float64            `json:"density"`
	Weights WeightRange        `json:"weights"`
	seed    uint64
}

// Provider owns the procedural rule set and performs eager materialization.
type Provider struct {
	mu         sync.RWMutex
	procedural bool
	rules      []Rule
	nextRule   uint64
	logger     *zap.Logger
}

// NewProvider creates a provider. With procedural=true, ConnectRegions on
// the brain registers rules here instead of materializing synapses.
func NewProvider(procedural bool, logger *zap.Logger) *Provider {
	return &Provider{procedural: procedural, logger: logger}
}

// Procedural reports whether virtual connectivity is enabled.
func (p *Provider) Procedural() bool { return p.procedural }

// RegisterRule records a procedural rule and returns it.
func (p *Provider) RegisterRule(source, target substrate.RegionID, density float64, weights WeightRange) Rule {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextRule++
	rule := Rule{
		ID:      p.nextRule,
		Source:  source,
		Target:  target,
		Density: density,
		Weights: weights,
		seed:    ruleSeed(p.nextRule, source, target),
	}
	p.rules = append(p.rules, rule)
	p.logger.Info("procedural rule registered",
		zap.Uint64("rule", rule.ID),
		zap.Uint64("source", uint64(source)),
		zap.Uint64("target", uint64(target)),
		zap.Float64("density", density))
	return rule
}

// RulesInto returns the rules targeting a region.
func (p *Provider) RulesInto(target substrate.RegionID) []Rule {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []Rule
	for _, r := range p.rules {
		if r.Target == target {
			out = append(out, r)
		}
	}
	return out
}

// RuleCount returns the number of registered rules.
func (p *Provider) RuleCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.rules)
}

// RemoveRegion drops every rule whose source or target matches. Returns the
// number removed.
func (p *Provider) RemoveRegion(region substrate.RegionID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.rules[:0]
	removed := 0
	for _, r := range p.rules {
		if r.Source == region || r.Target == region {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	p.rules = kept
	return removed
}

// Clear drops all rules. Used by brain reset.
func (p *Provider) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rules = nil
	p.nextRule = 0
}

// Admit evaluates a rule for one ordered neuron pair. It returns the virtual
// synapse weight and whether the pair is connected.
func (r Rule) Admit(source, target substrate.NeuronID) (float64, bool) {
	h := pairHash(r.seed, source, target)
	// Top 53 bits give a uniform draw in [0,1).
	draw := float64(h>>11) / float64(1<<53)
	if draw >= r.Density {
		return 0, false
	}
	// A second, independent hash drives the weight draw.
	w := pairHash(r.seed^0x9e3779b97f4a7c15, source, target)
	frac := float64(w>>11) / float64(1<<53)
	return r.Weights.Min + frac*(r.Weights.Max-r.Weights.Min), true
}

// Materialize eagerly creates synapses between two regions: every ordered
// neuron pair is admitted with probability density (drawn from rng) and
// admitted pairs get one synapse with a uniform weight from the range.
// Returns the number created.
func (p *Provider) Materialize(
	registry *substrate.Registry,
	source, target *substrate.Region,
	density float64,
	weights WeightRange,
	rng *rand.Rand,
	alloc func() substrate.SynapseID,
) (int, error) {
	created := 0
	for _, src := range source.Neurons() {
		for _, tgt := range target.Neurons() {
			if rng.Float64() >= density {
				continue
			}
			s := &substrate.Synapse{
				ID:           alloc(),
				Source:       src.ID(),
				Target:       tgt.ID(),
				SourceRegion: source.ID(),
				TargetRegion: target.ID(),
				Weight:       weights.Min + rng.Float64()*(weights.Max-weights.Min),
				Type:         substrate.SynapseExcitatory,
				Plasticity:   substrate.PlasticityHebbian,
			}
			if err := registry.Add(s); err != nil {
				return created, err
			}
			created++
		}
	}
	p.logger.Debug("regions connected",
		zap.Uint64("source", uint64(source.ID())),
		zap.Uint64("target", uint64(target.ID())),
		zap.Int("created", created))
	return created, nil
}

func ruleSeed(id uint64, source, target substrate.RegionID) uint64 {
	h := fnv.New64a()
	writeUint64(h, id)
	writeUint64(h, uint64(source))
	writeUint64(h, uint64(target))
	return h.Sum64()
}

func pairHash(seed uint64, source, target substrate.NeuronID) uint64 {
	h := fnv.New64a()
	writeUint64(h, seed)
	writeUint64(h, uint64(source))
	writeUint64(h, uint64(target))
	return h.Sum64()
}

func writeUint64(h hash.Hash, v uint64) {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
	h.Write(buf[:])
}
