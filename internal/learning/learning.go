// Package learning defines the narrow interface the engine uses to talk to
// a learning-rule collaborator, plus small reference implementations. The
// engine never inspects rule internals; it only delivers rewards and asks
// for modulation passes.
package learning

import (
	"sync"

	"github.com/nidhogg/neuroworld/internal/substrate"
	"go.uber.org/zap"
)

// Config tunes a learner.
type Config struct {
	LearningRate float64 `json:"learning_rate"`
	RewardDecay  float64 `json:"reward_decay"`
	WeightFloor  float64 `json:"weight_floor"`
	WeightCeil   float64 `json:"weight_ceil"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		LearningRate: 0.01,
		RewardDecay:  0.9,
		WeightFloor:  -2.0,
		WeightCeil:   2.0,
	}
}

// Stats is the learner's read-only aggregate.
type Stats struct {
	RewardsDelivered      uint64  `json:"rewards_delivered"`
	TotalReward           float64 `json:"total_reward"`
	HebbianPasses         uint64  `json:"hebbian_passes"`
	AttentionApplications uint64  `json:"attention_applications"`
}

// Learner is the collaborator contract consumed by the brain.
type Learner interface {
	Initialize(cfg Config) error
	DeliverReward(value float64, source, context string)
	ApplyHebbian(region substrate.RegionID, rate float64) error
	ApplyAttentionModulation(weights map[substrate.NeuronID]float64, boost float64)
	Statistics() Stats
}

// Basic is a minimal correlation learner operating on the synapse registry.
type Basic struct {
	mu         sync.Mutex
	cfg        Config
	registry   *substrate.Registry
	activation func(substrate.NeuronID) (float64, bool)
	reward     float64
	stats      Stats
	logger     *zap.Logger
}

// NewBasic creates a learner bound to the brain's registry and an
// activation lookup for committed neuron state.
func NewBasic(registry *substrate.Registry, activation func(substrate.NeuronID) (float64, bool), logger *zap.Logger) *Basic {
	return &Basic{
		cfg:        DefaultConfig(),
		registry:   registry,
		activation: activation,
		logger:     logger,
	}
}

// Initialize applies the configuration.
func (l *Basic) Initialize(cfg Config) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cfg.LearningRate == 0 {
		cfg = DefaultConfig()
	}
	l.cfg = cfg
	return nil
}

// DeliverReward folds a reward signal into the running eligibility value.
func (l *Basic) DeliverReward(value float64, source, context string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reward = l.reward*l.cfg.RewardDecay + value
	l.stats.RewardsDelivered++
	l.stats.TotalReward += value
	l.logger.Debug("reward delivered",
		zap.Float64("value", value),
		zap.String("source", source),
		zap.String("context", context))
}

// ApplyHebbian strengthens synapses into a region in proportion to the
// correlation of their endpoints' committed activations. The activations are
// read before the registry lock is taken: the activation lookup acquires the
// graph lock, and the graph lock is ordered before the registry's.
func (l *Basic) ApplyHebbian(region substrate.RegionID, rate float64) error {
	l.mu.Lock()
	cfg := l.cfg
	l.stats.HebbianPasses++
	l.mu.Unlock()

	acts := make(map[substrate.NeuronID]float64)
	for _, s := range l.registry.SynapsesInto(region) {
		for _, id := range [2]substrate.NeuronID{s.Source, s.Target} {
			if _, seen := acts[id]; seen {
				continue
			}
			if a, ok := l.activation(id); ok {
				acts[id] = a
			}
		}
	}

	l.registry.AdjustInto(region, func(s *substrate.Synapse) {
		pre, ok := acts[s.Source]
		if !ok {
			return
		}
		post, ok := acts[s.Target]
		if !ok {
			return
		}
		s.Weight = clamp(s.Weight+rate*pre*post, cfg.WeightFloor, cfg.WeightCeil)
	})
	return nil
}

// ApplyAttentionModulation boosts the committed activation of the given
// neurons. The weight map is caller-owned; it is read, never retained.
func (l *Basic) ApplyAttentionModulation(weights map[substrate.NeuronID]float64, boost float64) {
	l.mu.Lock()
	cfg := l.cfg
	l.stats.AttentionApplications++
	l.mu.Unlock()
	// Modulation is realized through the synaptic path: weights of edges
	// leaving the attended neurons are nudged by the boost, under the
	// registry lock so a concurrent tick never reads a torn weight.
	l.registry.AdjustAll(func(s *substrate.Synapse) {
		if w, ok := weights[s.Source]; ok {
			s.Weight = clamp(s.Weight+w*boost*cfg.LearningRate, cfg.WeightFloor, cfg.WeightCeil)
		}
	})
}

// Statistics returns the learner's aggregate.
func (l *Basic) Statistics() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Noop discards everything. Used when no learning collaborator is wired.
type Noop struct{}

func (Noop) Initialize(Config) error                                        { return nil }
func (Noop) DeliverReward(float64, string, string)                          {}
func (Noop) ApplyHebbian(substrate.RegionID, float64) error                 { return nil }
func (Noop) ApplyAttentionModulation(map[substrate.NeuronID]float64, float64) {}
func (Noop) Statistics() Stats                                              { return Stats{} }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
