package brain

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/nidhogg/neuroworld/internal/hippocampus"
	"github.com/nidhogg/neuroworld/internal/scheduler"
	"github.com/nidhogg/neuroworld/internal/substrate"
)

// activeFloor is the activation magnitude below which a neuron does not
// contribute to the global activation aggregate.
const activeFloor = 0.01

// ProcessStep runs exactly one tick: pre callbacks, one scheduler pass over
// every region, snapshot evaluation, one autonomous task cycle, periodic
// maintenance and post callbacks, all synchronous on the caller. It is the
// only operation allowed to block the caller for a whole tick. A second call
// while one is in flight is rejected with ErrTickInFlight.
func (b *Brain) ProcessStep(ctx context.Context, dt float64) (scheduler.Result, error) {
	if s := b.State(); s != StateRunning {
		return scheduler.Result{}, fmt.Errorf("%w: process_step requires running, state is %s", ErrIllegalTransition, s)
	}
	if !b.ticking.CompareAndSwap(false, true) {
		return scheduler.Result{}, ErrTickInFlight
	}
	defer b.ticking.Store(false)

	b.statsMu.Lock()
	b.cycle++
	cycle := b.cycle
	now := time.Now()
	if !b.lastTick.IsZero() {
		if gap := now.Sub(b.lastTick).Seconds(); gap > 0 {
			b.actualHz = 1.0 / gap
		}
	}
	b.lastTick = now
	b.statsMu.Unlock()

	for _, fn := range b.copyCallbacks(&b.pre) {
		fn(cycle)
	}

	// The read lock is held for the whole scheduler pass, so RemoveRegion
	// and Reset wait for the tick instead of pulling regions out from under
	// it.
	b.mu.RLock()
	regions := b.regionsLocked()
	res := b.engine.ProcessStep(dt, regions, b.tickInputs)
	global := b.globalActivationLocked()
	b.mu.RUnlock()

	b.hippo.Capture(global, false, func() *hippocampus.Snapshot {
		return b.buildSnapshot("auto", false, global, cycle)
	})

	b.tasks.ExecuteCycle(ctx, dt)

	if cycle%b.cfg.DecayEvery == 0 {
		b.hippo.UpdatePriorities()
	}
	if cycle%b.cfg.StatsEvery == 0 {
		b.sink.LogSubstrateState(cycle, global, len(regions), b.registry.Len())
	}

	for _, fn := range b.copyCallbacks(&b.post) {
		fn(cycle)
	}
	return res, nil
}

// Run ticks the brain at the given interval until the context is cancelled
// or the brain leaves the Running/Paused states. Paused intervals are
// skipped without side effects.
func (b *Brain) Run(ctx context.Context, interval time.Duration) error {
	dt := interval.Seconds()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			switch b.State() {
			case StateRunning:
				if _, err := b.ProcessStep(ctx, dt); err != nil {
					return err
				}
			case StatePaused:
				// Keep waiting; Resume picks the loop back up.
			default:
				return nil
			}
		}
	}
}

// copyCallbacks snapshots a callback list so the callbacks run without the
// list lock held.
func (b *Brain) copyCallbacks(list *[]func(uint64)) []func(uint64) {
	b.cbMu.Lock()
	defer b.cbMu.Unlock()
	out := make([]func(uint64), len(*list))
	copy(out, *list)
	return out
}

// tickInputs computes the summed synaptic input per neuron of one region:
// the materialized synapses from the registry plus the procedural rules
// evaluated lazily against the committed source activations. Called only
// inside a tick, under the graph read lock held by ProcessStep.
func (b *Brain) tickInputs(r *substrate.Region) map[substrate.NeuronID]float64 {
	inputs := b.registry.WeightedInputs(r.ID(), b.activationLocked)
	if inputs == nil {
		inputs = make(map[substrate.NeuronID]float64)
	}

	for _, rule := range b.provider.RulesInto(r.ID()) {
		src, ok := b.regions[rule.Source]
		if !ok {
			continue
		}
		for _, pre := range src.Neurons() {
			a := pre.Activation()
			if math.Abs(a) < activeFloor {
				continue
			}
			for _, post := range r.Neurons() {
				if w, admitted := rule.Admit(pre.ID(), post.ID()); admitted {
					inputs[post.ID()] += w * a
				}
			}
		}
	}
	return inputs
}

// globalActivationLocked aggregates the committed state into one scalar: the
// mean absolute activation over active neurons. Deterministic for a fixed
// neuron state. Caller holds the graph lock.
func (b *Brain) globalActivationLocked() float64 {
	var active []float64
	for _, n := range b.neurons {
		if a := math.Abs(n.Activation()); a >= activeFloor {
			active = append(active, a)
		}
	}
	if len(active) == 0 {
		return 0
	}
	return stat.Mean(active, nil)
}

// GlobalActivation returns the current global activation aggregate.
func (b *Brain) GlobalActivation() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.globalActivationLocked()
}

// Cycle returns the tick counter.
func (b *Brain) Cycle() uint64 {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	return b.cycle
}

// TakeSnapshot captures a hippocampal snapshot tagged with a context string.
// Admission follows the store's interval and activation-delta thresholds
// unless force is set. Admission and insertion are one atomic store
// operation, so a manual capture racing a tick cannot double-admit inside
// one snapshot interval. Returns whether a snapshot was captured.
func (b *Brain) TakeSnapshot(contextTag string, force, significant bool) bool {
	global := b.GlobalActivation()
	return b.hippo.Capture(global, force, func() *hippocampus.Snapshot {
		return b.buildSnapshot(contextTag, significant, global, b.Cycle())
	})
}

// buildSnapshot copies the full substrate state by value. Snapshots never
// alias live neuron or synapse storage. Procedural rules are not captured;
// they reproduce their virtual synapses deterministically from their seeds.
func (b *Brain) buildSnapshot(contextTag string, significant bool, global float64, cycle uint64) *hippocampus.Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	activations := make(map[substrate.NeuronID]float64, len(b.neurons))
	for id, n := range b.neurons {
		activations[id] = n.Activation()
	}
	regionStates := make(map[substrate.RegionID][]float64, len(b.regions))
	for id, r := range b.regions {
		regionStates[id] = r.StateVector()
	}

	return &hippocampus.Snapshot{
		ID:                uuid.New().String(),
		Timestamp:         time.Now(),
		Cycle:             cycle,
		SynapseWeights:    b.registry.WeightMap(),
		NeuronActivations: activations,
		RegionStates:      regionStates,
		GlobalActivation:  global,
		Context:           contextTag,
		Significant:       significant,
	}
}

// Consolidate writes eligible snapshots to long-term storage and retires
// them from the active store. Returns the number consolidated.
func (b *Brain) Consolidate(ctx context.Context, forceAll bool) (int, error) {
	return b.hippo.Consolidate(ctx, forceAll)
}

// HippocampusStats returns the snapshot store aggregate.
func (b *Brain) HippocampusStats() hippocampus.Stats { return b.hippo.Stats() }

// Snapshots returns the active hippocampal snapshots, read-only.
func (b *Brain) Snapshots() []*hippocampus.Snapshot { return b.hippo.Snapshots() }

// DeliverReward routes a reward signal to the learning collaborator, reports
// it to telemetry and records it in the experience buffer.
func (b *Brain) DeliverReward(value float64, source, contextTag string) {
	b.learner.DeliverReward(value, source, contextTag)
	b.sink.LogReward(value, source, contextTag)
	b.experiences.Record(Experience{
		Kind:  ExperienceReward,
		Name:  source,
		Value: value,
		Cycle: b.Cycle(),
	})
}

// StartEpisode opens a named episode: experiences recorded until EndEpisode
// become members of its record. The start marker itself is a member.
func (b *Brain) StartEpisode(name string) {
	b.sink.StartEpisode(name)
	b.experiences.StartEpisode(name, b.Cycle())
	b.experiences.Record(Experience{Kind: ExperienceEpisodeStart, Name: name, Cycle: b.Cycle()})
}

// EndEpisode closes a named episode. The end marker is its last member.
func (b *Brain) EndEpisode(name string) {
	b.sink.EndEpisode(name)
	b.experiences.Record(Experience{Kind: ExperienceEpisodeEnd, Name: name, Cycle: b.Cycle()})
	b.experiences.EndEpisode(name, b.Cycle())
}

// Episode returns the named episode record.
func (b *Brain) Episode(name string) (Episode, bool) { return b.experiences.Episode(name) }

// Episodes returns every episode record, oldest start first.
func (b *Brain) Episodes() []Episode { return b.experiences.Episodes() }

// Experiences returns the recorded experiences, oldest first.
func (b *Brain) Experiences() []Experience { return b.experiences.All() }
