// Package brain is the orchestration engine: it owns the region table, the
// global synapse registry and modality routing, composes the processing
// scheduler, the connectivity provider, the hippocampal snapshot store and
// the learning/telemetry/task collaborators, and exposes the lifecycle API.
//
// Lock domains, one per concern:
//
//	mu      guards the region table, the neuron index and modality routing
//	rngMu   guards the seeded random generator
//	cbMu    guards the callback lists
//	statsMu guards the cycle counter and frequency estimate
//	lifeMu  guards the lifecycle state
//
// The synapse registry, the connectivity provider and the hippocampal store
// carry their own internal locks. Where an operation needs two domains the
// fixed acquisition order is: mu, then rngMu, then registry/provider. The
// hippocampal store lock is acquired before mu (the capture path builds the
// snapshot under the store lock); no path holds mu and then takes the store
// lock, and no path acquires locks in the opposite direction.
package brain

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/neuroworld/internal/autotask"
	"github.com/nidhogg/neuroworld/internal/connectivity"
	"github.com/nidhogg/neuroworld/internal/hippocampus"
	"github.com/nidhogg/neuroworld/internal/learning"
	"github.com/nidhogg/neuroworld/internal/scheduler"
	"github.com/nidhogg/neuroworld/internal/substrate"
	"github.com/nidhogg/neuroworld/internal/telemetry"
)

// Config tunes the engine.
type Config struct {
	Seed               int64              `json:"seed"`
	Mode               string             `json:"mode"`    // processing mode wire name
	Workers            int                `json:"workers"` // parallel pool bound
	Procedural         bool               `json:"procedural"`
	StatsEvery         uint64             `json:"stats_every"` // cycles between stats refreshes
	DecayEvery         uint64             `json:"decay_every"` // cycles between priority decay passes
	ExperienceCapacity int                `json:"experience_capacity"`
	Hippocampus        hippocampus.Config `json:"hippocampus"`
	Learning           learning.Config    `json:"learning"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Seed:               1,
		Mode:               scheduler.ModeSequential.String(),
		Workers:            4,
		StatsEvery:         50,
		DecayEvery:         100,
		ExperienceCapacity: 256,
		Hippocampus:        hippocampus.DefaultConfig(),
		Learning:           learning.DefaultConfig(),
	}
}

// Deps are the collaborators. Nil fields get no-op implementations, except
// Learner which defaults to the basic correlation learner.
type Deps struct {
	Learner   learning.Learner
	Telemetry telemetry.Sink
	LongTerm  hippocampus.LongTermStore
	Tasks     autotask.Scheduler
}

// Brain is the top-level orchestrator.
type Brain struct {
	cfg    Config
	logger *zap.Logger

	mu      sync.RWMutex
	regions map[substrate.RegionID]*substrate.Region
	names   map[string]substrate.RegionID
	routing map[substrate.Modality]substrate.RegionID
	neurons map[substrate.NeuronID]*substrate.Neuron

	registry *substrate.Registry
	provider *connectivity.Provider
	engine   *scheduler.Engine
	hippo    *hippocampus.Store

	learner learning.Learner
	sink    telemetry.Sink
	tasks   autotask.Scheduler

	rngMu sync.Mutex
	rng   *rand.Rand

	cbMu sync.Mutex
	pre  []func(cycle uint64)
	post []func(cycle uint64)

	statsMu  sync.Mutex
	cycle    uint64
	actualHz float64
	lastTick time.Time

	lifeMu sync.Mutex
	state  State

	ticking atomic.Bool

	nextRegion  atomic.Uint64
	nextNeuron  atomic.Uint64
	nextSynapse atomic.Uint64

	experiences *experienceBuffer
}

// New assembles a brain in the Uninitialized state.
func New(cfg Config, deps Deps, logger *zap.Logger) *Brain {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.StatsEvery == 0 {
		cfg.StatsEvery = DefaultConfig().StatsEvery
	}
	if cfg.DecayEvery == 0 {
		cfg.DecayEvery = DefaultConfig().DecayEvery
	}
	if cfg.ExperienceCapacity <= 0 {
		cfg.ExperienceCapacity = DefaultConfig().ExperienceCapacity
	}
	mode, ok := scheduler.ParseMode(cfg.Mode)
	if !ok {
		mode = scheduler.ModeSequential
	}

	b := &Brain{
		cfg:         cfg,
		logger:      logger,
		regions:     make(map[substrate.RegionID]*substrate.Region),
		names:       make(map[string]substrate.RegionID),
		routing:     make(map[substrate.Modality]substrate.RegionID),
		neurons:     make(map[substrate.NeuronID]*substrate.Neuron),
		registry:    substrate.NewRegistry(logger),
		provider:    connectivity.NewProvider(cfg.Procedural, logger),
		engine:      scheduler.NewEngine(mode, cfg.Workers, logger),
		rng:         rand.New(rand.NewSource(cfg.Seed)),
		state:       StateUninitialized,
		experiences: newExperienceBuffer(cfg.ExperienceCapacity),
	}
	b.hippo = hippocampus.NewStore(cfg.Hippocampus, deps.LongTerm, logger)

	b.learner = deps.Learner
	if b.learner == nil {
		b.learner = learning.NewBasic(b.registry, b.Activation, logger)
	}
	b.sink = deps.Telemetry
	if b.sink == nil {
		b.sink = telemetry.Noop{}
	}
	b.tasks = deps.Tasks
	if b.tasks == nil {
		b.tasks = autotask.NewQueue(logger)
	}
	return b
}

// AddRegion creates a region with n neurons and registers it under a unique
// name.
func (b *Brain) AddRegion(name string, typ substrate.RegionType, pattern substrate.ActivationPattern, n int) (*substrate.Region, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, dup := b.names[name]; dup {
		return nil, fmt.Errorf("%w: %q", substrate.ErrDuplicateRegionName, name)
	}

	id := substrate.RegionID(b.nextRegion.Add(1))
	region := substrate.NewRegion(id, name, typ, pattern)
	region.CreateNeurons(n, func() substrate.NeuronID {
		return substrate.NeuronID(b.nextNeuron.Add(1))
	})
	for _, neuron := range region.Neurons() {
		b.neurons[neuron.ID()] = neuron
	}
	b.regions[id] = region
	b.names[name] = id

	b.logger.Info("region added",
		zap.Uint64("region", uint64(id)),
		zap.String("name", name),
		zap.String("type", typ.String()),
		zap.Int("neurons", n))
	return region, nil
}

// RemoveRegion removes a region together with every synapse, procedural rule
// and modality route touching it, atomically with respect to a concurrent
// tick: the graph write lock is held across the whole cleanup and a tick
// holds the read lock for its full duration.
func (b *Brain) RemoveRegion(id substrate.RegionID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	region, ok := b.regions[id]
	if !ok {
		return fmt.Errorf("%w: %d", substrate.ErrRegionNotFound, id)
	}

	for _, neuron := range region.Neurons() {
		delete(b.neurons, neuron.ID())
	}
	delete(b.regions, id)
	delete(b.names, region.Name())
	for modality, target := range b.routing {
		if target == id {
			delete(b.routing, modality)
		}
	}

	removedSynapses := b.registry.RemoveRegion(id)
	removedRules := b.provider.RemoveRegion(id)

	b.logger.Info("region removed",
		zap.Uint64("region", uint64(id)),
		zap.String("name", region.Name()),
		zap.Int("synapses_removed", removedSynapses),
		zap.Int("rules_removed", removedRules))
	return nil
}

// Region returns a region by id.
func (b *Brain) Region(id substrate.RegionID) (*substrate.Region, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.regions[id]
	return r, ok
}

// RegionByName returns a region by its unique name.
func (b *Brain) RegionByName(name string) (*substrate.Region, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	id, ok := b.names[name]
	if !ok {
		return nil, false
	}
	r, ok := b.regions[id]
	return r, ok
}

// Regions returns all regions in unspecified order.
func (b *Brain) Regions() []*substrate.Region {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.regionsLocked()
}

func (b *Brain) regionsLocked() []*substrate.Region {
	out := make([]*substrate.Region, 0, len(b.regions))
	for _, r := range b.regions {
		out = append(out, r)
	}
	return out
}

// RegionCount returns the number of regions.
func (b *Brain) RegionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.regions)
}

// NeuronCount returns the total number of neurons across all regions.
func (b *Brain) NeuronCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.neurons)
}

// SynapseCount returns the number of materialized synapses.
func (b *Brain) SynapseCount() int { return b.registry.Len() }

// Activation returns a neuron's committed activation.
func (b *Brain) Activation(id substrate.NeuronID) (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.activationLocked(id)
}

// activationLocked is the lookup used inside a tick, where the caller
// already holds the graph read lock.
func (b *Brain) activationLocked(id substrate.NeuronID) (float64, bool) {
	n, ok := b.neurons[id]
	if !ok {
		return 0, false
	}
	return n.Activation(), true
}

// ConnectRegions connects two regions with the given density and weight
// range. In procedural mode a rule is registered with the provider and no
// synapses are materialized (the count returned is 0); otherwise every
// admitted neuron pair gets one concrete synapse and the count created is
// returned.
func (b *Brain) ConnectRegions(source, target substrate.RegionID, density float64, weights connectivity.WeightRange) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	src, ok := b.regions[source]
	if !ok {
		return 0, fmt.Errorf("%w: source %d", substrate.ErrRegionNotFound, source)
	}
	tgt, ok := b.regions[target]
	if !ok {
		return 0, fmt.Errorf("%w: target %d", substrate.ErrRegionNotFound, target)
	}

	if b.provider.Procedural() {
		b.provider.RegisterRule(source, target, density, weights)
		return 0, nil
	}

	b.rngMu.Lock()
	defer b.rngMu.Unlock()
	return b.provider.Materialize(b.registry, src, tgt, density, weights, b.rng, func() substrate.SynapseID {
		return substrate.SynapseID(b.nextSynapse.Add(1))
	})
}

// ConnectNeurons creates exactly one synapse. With explicitID zero an
// identity is generated; a non-zero explicitID that is already registered
// fails without mutating anything.
func (b *Brain) ConnectNeurons(
	sourceRegion, targetRegion substrate.RegionID,
	source, target substrate.NeuronID,
	weight float64,
	typ substrate.SynapseType,
	plasticity substrate.PlasticityRule,
	explicitID substrate.SynapseID,
) (*substrate.Synapse, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if _, ok := b.regions[sourceRegion]; !ok {
		return nil, fmt.Errorf("%w: source region %d", substrate.ErrRegionNotFound, sourceRegion)
	}
	if _, ok := b.regions[targetRegion]; !ok {
		return nil, fmt.Errorf("%w: target region %d", substrate.ErrRegionNotFound, targetRegion)
	}
	if _, ok := b.neurons[source]; !ok {
		return nil, fmt.Errorf("%w: source %d", substrate.ErrNeuronNotFound, source)
	}
	if _, ok := b.neurons[target]; !ok {
		return nil, fmt.Errorf("%w: target %d", substrate.ErrNeuronNotFound, target)
	}

	id := explicitID
	if id == 0 {
		id = substrate.SynapseID(b.nextSynapse.Add(1))
	}
	s := &substrate.Synapse{
		ID:           id,
		Source:       source,
		Target:       target,
		SourceRegion: sourceRegion,
		TargetRegion: targetRegion,
		Weight:       weight,
		Type:         typ,
		Plasticity:   plasticity,
	}
	if err := b.registry.Add(s); err != nil {
		return nil, err
	}
	return s, nil
}

// SetModality routes a sensory/motor channel to the region handling it.
func (b *Brain) SetModality(m substrate.Modality, region substrate.RegionID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.regions[region]; !ok {
		return fmt.Errorf("%w: %d", substrate.ErrRegionNotFound, region)
	}
	b.routing[m] = region
	return nil
}

// ModalityRegion returns the region a modality routes to.
func (b *Brain) ModalityRegion(m substrate.Modality) (substrate.RegionID, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	id, ok := b.routing[m]
	return id, ok
}

// Stimulate writes sensory input into the region routed for the modality.
// Values map positionally onto the region's neurons; extra values are
// dropped.
func (b *Brain) Stimulate(m substrate.Modality, values []float64) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	id, ok := b.routing[m]
	if !ok {
		return fmt.Errorf("%w: no region for modality %s", substrate.ErrRegionNotFound, m)
	}
	region := b.regions[id]
	neurons := region.Neurons()
	for i, v := range values {
		if i >= len(neurons) {
			break
		}
		neurons[i].SetActivation(v)
	}
	return nil
}

// OnPreStep registers a callback invoked synchronously before each tick.
func (b *Brain) OnPreStep(fn func(cycle uint64)) {
	b.cbMu.Lock()
	defer b.cbMu.Unlock()
	b.pre = append(b.pre, fn)
}

// OnPostStep registers a callback invoked synchronously after each tick.
func (b *Brain) OnPostStep(fn func(cycle uint64)) {
	b.cbMu.Lock()
	defer b.cbMu.Unlock()
	b.post = append(b.post, fn)
}

// SetMode switches the processing mode between ticks.
func (b *Brain) SetMode(m scheduler.Mode) { b.engine.SetMode(m) }

// Mode returns the current processing mode.
func (b *Brain) Mode() scheduler.Mode { return b.engine.Mode() }

// SetCustomOrder fixes the region order used by the custom processing mode.
func (b *Brain) SetCustomOrder(order []substrate.RegionID) { b.engine.SetCustomOrder(order) }

// AddTask hands a task to the autonomous scheduler.
func (b *Brain) AddTask(t *autotask.Task) { b.tasks.AddTask(t) }

// Learner exposes the learning collaborator.
func (b *Brain) Learner() learning.Learner { return b.learner }

// ApplyHebbian runs one Hebbian pass over the synapses into a region.
func (b *Brain) ApplyHebbian(region substrate.RegionID, rate float64) error {
	if _, ok := b.Region(region); !ok {
		return fmt.Errorf("%w: %d", substrate.ErrRegionNotFound, region)
	}
	return b.learner.ApplyHebbian(region, rate)
}
