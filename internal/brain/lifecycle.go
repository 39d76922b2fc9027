package brain

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/neuroworld/internal/substrate"
)

// State is the brain's lifecycle phase. Exactly one holder of truth,
// read from any goroutine, written only through the lifecycle API.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateRunning
	StatePaused
	StateResetting
	StateShutdown

	stateCount
)

var stateWire = [stateCount]string{
	StateUninitialized: "uninitialized",
	StateInitializing:  "initializing",
	StateReady:         "ready",
	StateRunning:       "running",
	StatePaused:        "paused",
	StateResetting:     "resetting",
	StateShutdown:      "shutdown",
}

func (s State) String() string {
	if s < 0 || s >= stateCount {
		return "unknown"
	}
	return stateWire[s]
}

// ErrIllegalTransition is returned when a lifecycle method is invoked from an
// incompatible state. The state is left unchanged.
var ErrIllegalTransition = errors.New("brain: illegal lifecycle transition")

// ErrTickInFlight is returned when a tick is requested while one is running.
var ErrTickInFlight = errors.New("brain: tick already in flight")

// State returns the current lifecycle state.
func (b *Brain) State() State {
	b.lifeMu.Lock()
	defer b.lifeMu.Unlock()
	return b.state
}

// transition moves from one of the allowed states to next, or fails without
// touching the state.
func (b *Brain) transition(next State, from ...State) error {
	b.lifeMu.Lock()
	defer b.lifeMu.Unlock()
	for _, s := range from {
		if b.state == s {
			b.logger.Info("lifecycle transition",
				zap.String("from", b.state.String()),
				zap.String("to", next.String()))
			b.state = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, b.state, next)
}

// Initialize moves a fresh brain to Ready and configures the learning
// collaborator. Valid only from Uninitialized.
func (b *Brain) Initialize() error {
	if err := b.transition(StateInitializing, StateUninitialized); err != nil {
		return err
	}
	if err := b.learner.Initialize(b.cfg.Learning); err != nil {
		// Roll back so a fixed configuration can retry.
		b.transition(StateUninitialized, StateInitializing)
		return fmt.Errorf("initialize learner: %w", err)
	}
	return b.transition(StateReady, StateInitializing)
}

// Start moves a ready brain into Running and provisions the worker pool used
// by parallel processing. Calling Start on a brain that is already Running is
// a no-op: the pool is provisioned at most once.
func (b *Brain) Start() error {
	if b.State() == StateRunning {
		b.engine.Provision() // idempotent, never spawns a second pool
		return nil
	}
	if err := b.transition(StateRunning, StateReady); err != nil {
		return err
	}
	b.engine.Provision()
	return nil
}

// Pause suspends processing without discarding any state. No tick runs while
// Paused.
func (b *Brain) Pause() error {
	return b.transition(StatePaused, StateRunning)
}

// Resume continues processing after a Pause.
func (b *Brain) Resume() error {
	return b.transition(StateRunning, StatePaused)
}

// Stop halts processing and releases the worker pool but preserves the
// graph. Safe to call while a tick is executing: the tick in flight
// completes, and no new tick starts afterward.
func (b *Brain) Stop() error {
	if err := b.transition(StateReady, StateRunning, StatePaused); err != nil {
		return err
	}
	b.drainTick()
	b.engine.Release()
	return nil
}

// Reset clears all graph, statistics and snapshot state back to a fresh
// Uninitialized brain. The identity counters are not rewound, so IDs are
// never reused across a reset.
func (b *Brain) Reset() error {
	if err := b.transition(StateResetting, StateReady, StateRunning, StatePaused); err != nil {
		return err
	}
	b.drainTick()
	b.engine.Release()

	b.mu.Lock()
	b.regions = make(map[substrate.RegionID]*substrate.Region)
	b.names = make(map[string]substrate.RegionID)
	b.routing = make(map[substrate.Modality]substrate.RegionID)
	b.neurons = make(map[substrate.NeuronID]*substrate.Neuron)
	b.mu.Unlock()

	b.registry.Clear()
	b.provider.Clear()
	b.hippo.Reset()
	b.experiences.Clear()

	b.statsMu.Lock()
	b.cycle = 0
	b.actualHz = 0
	b.lastTick = time.Time{}
	b.statsMu.Unlock()

	return b.transition(StateUninitialized, StateResetting)
}

// Shutdown is terminal from any state and releases all resources. Idempotent.
func (b *Brain) Shutdown() {
	b.lifeMu.Lock()
	if b.state == StateShutdown {
		b.lifeMu.Unlock()
		return
	}
	b.logger.Info("lifecycle transition",
		zap.String("from", b.state.String()),
		zap.String("to", StateShutdown.String()))
	b.state = StateShutdown
	b.lifeMu.Unlock()

	b.drainTick()
	b.engine.Release()
}

// drainTick waits for an in-flight tick to finish. New ticks are already
// rejected by the state check, so acquiring the graph write lock once is a
// complete barrier.
func (b *Brain) drainTick() {
	b.mu.Lock()
	defer b.mu.Unlock()
}
