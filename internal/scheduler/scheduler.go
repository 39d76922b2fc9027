// Package scheduler drives one simulation tick across all regions under one
// of four interchangeable modes.
//
// Consistency contracts per mode:
//   - Sequential: regions update one at a time in ascending-ID order; a
//     region may observe the committed effects of regions updated earlier in
//     the same tick.
//   - Parallel: regions are partitioned across a bounded worker pool. Every
//     region reads only the previous tick's committed state; staged values
//     are committed after a tick-wide barrier, so the result is independent
//     of worker interleaving.
//   - Hierarchical: a fixed sensory -> cortical/associative -> motor ordering
//     processed sequentially, deliberately allowing same-tick feed-forward
//     propagation. This is the opposite consistency model from Parallel.
//   - Custom: an explicit caller-supplied region order, processed like
//     Hierarchical.
package scheduler

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/nidhogg/neuroworld/internal/substrate"
	"go.uber.org/zap"
)

// Mode selects the processing strategy for a tick.
type Mode int

const (
	ModeSequential Mode = iota
	ModeParallel
	ModeHierarchical
	ModeCustom

	modeCount
)

var modeWire = [modeCount]string{
	ModeSequential:   "sequential",
	ModeParallel:     "parallel",
	ModeHierarchical: "hierarchical",
	ModeCustom:       "custom",
}

func (m Mode) String() string {
	if m < 0 || m >= modeCount {
		return "unknown"
	}
	return modeWire[m]
}

// ParseMode maps a wire string back to its Mode.
func ParseMode(s string) (Mode, bool) {
	for i, name := range modeWire {
		if name == s {
			return Mode(i), true
		}
	}
	return 0, false
}

// hierarchyRank orders region types for Hierarchical mode.
var hierarchyRank = map[substrate.RegionType]int{
	substrate.RegionSensory:     0,
	substrate.RegionCortical:    1,
	substrate.RegionAssociative: 2,
	substrate.RegionMotor:       3,
	substrate.RegionCustom:      4,
}

// InputFunc returns the summed synaptic input per neuron for a region,
// reading only committed activations.
type InputFunc func(r *substrate.Region) map[substrate.NeuronID]float64

// Result reports one tick.
type Result struct {
	Updated int
	Failed  int
}

// Engine dispatches ticks. The worker pool is provisioned once at brain
// start and reused every tick; all non-parallel modes run on the caller.
type Engine struct {
	mu       sync.Mutex
	mode     Mode
	custom   []substrate.RegionID
	workers  int
	pool     *workerPool
	failures atomic.Uint64
	logger   *zap.Logger
}

// NewEngine creates an engine; workers bounds the Parallel pool size.
func NewEngine(mode Mode, workers int, logger *zap.Logger) *Engine {
	if workers <= 0 {
		workers = 4
	}
	return &Engine{mode: mode, workers: workers, logger: logger}
}

// Mode returns the currently configured mode.
func (e *Engine) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// SetMode switches the processing strategy between ticks.
func (e *Engine) SetMode(m Mode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = m
}

// SetCustomOrder fixes the region order used by ModeCustom. Unknown IDs are
// skipped at tick time; regions absent from the order are not processed.
func (e *Engine) SetCustomOrder(order []substrate.RegionID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.custom = append([]substrate.RegionID(nil), order...)
}

// Provision starts the worker pool. Idempotent: a second call while the
// pool is live is a no-op, so repeated starts never spawn a second pool.
func (e *Engine) Provision() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pool != nil {
		return
	}
	e.pool = newWorkerPool(e.workers)
	e.logger.Info("worker pool provisioned", zap.Int("workers", e.workers))
}

// Release stops the worker pool and frees its goroutines.
func (e *Engine) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pool == nil {
		return
	}
	e.pool.stop()
	e.pool = nil
	e.logger.Info("worker pool released")
}

// Provisioned reports whether the pool is live.
func (e *Engine) Provisioned() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool != nil
}

// Failures returns the cumulative count of isolated region failures.
func (e *Engine) Failures() uint64 { return e.failures.Load() }

// ProcessStep runs one tick over the given regions. A region whose update
// panics is counted as failed and the rest of the tick proceeds.
func (e *Engine) ProcessStep(dt float64, regions []*substrate.Region, inputs InputFunc) Result {
	e.mu.Lock()
	mode := e.mode
	custom := e.custom
	pool := e.pool
	e.mu.Unlock()

	switch mode {
	case ModeParallel:
		if pool != nil {
			return e.parallelStep(dt, regions, inputs, pool)
		}
		// No pool provisioned (engine not started): degrade to sequential.
		return e.orderedStep(dt, sortByID(regions), inputs)
	case ModeHierarchical:
		return e.orderedStep(dt, sortByHierarchy(regions), inputs)
	case ModeCustom:
		return e.orderedStep(dt, applyCustomOrder(regions, custom), inputs)
	default:
		return e.orderedStep(dt, sortByID(regions), inputs)
	}
}

// orderedStep updates regions one at a time, committing immediately so later
// regions see earlier same-tick effects.
func (e *Engine) orderedStep(dt float64, ordered []*substrate.Region, inputs InputFunc) Result {
	res := Result{}
	for _, r := range ordered {
		if err := e.updateRegion(r, dt, inputs); err != nil {
			res.Failed++
			continue
		}
		r.Commit()
		res.Updated++
	}
	return res
}

// parallelStep stages every region concurrently against the previous tick's
// committed state, waits for the barrier, then commits the regions that
// staged cleanly. A failed region keeps its previous committed state; its
// partially staged values are never published.
func (e *Engine) parallelStep(dt float64, regions []*substrate.Region, inputs InputFunc, pool *workerPool) Result {
	var wg sync.WaitGroup
	failed := make([]bool, len(regions))

	for i, r := range regions {
		i, region := i, r
		wg.Add(1)
		pool.submit(func() {
			defer wg.Done()
			if err := e.updateRegion(region, dt, inputs); err != nil {
				failed[i] = true
			}
		})
	}
	wg.Wait()

	res := Result{}
	for i, r := range regions {
		if failed[i] {
			res.Failed++
			continue
		}
		r.Commit()
		res.Updated++
	}
	return res
}

// updateRegion isolates a single region's update; a panic becomes a counted
// failure instead of aborting the tick.
func (e *Engine) updateRegion(r *substrate.Region, dt float64, inputs InputFunc) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("region %d update panicked: %v", r.ID(), rec)
			e.failures.Add(1)
			e.logger.Warn("region update failed",
				zap.Uint64("region", uint64(r.ID())),
				zap.String("name", r.Name()),
				zap.Any("panic", rec))
		}
	}()
	r.Update(dt, inputs(r))
	return nil
}

func sortByID(regions []*substrate.Region) []*substrate.Region {
	out := append([]*substrate.Region(nil), regions...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func sortByHierarchy(regions []*substrate.Region) []*substrate.Region {
	out := sortByID(regions)
	sort.SliceStable(out, func(i, j int) bool {
		return hierarchyRank[out[i].Type()] < hierarchyRank[out[j].Type()]
	})
	return out
}

func applyCustomOrder(regions []*substrate.Region, order []substrate.RegionID) []*substrate.Region {
	byID := make(map[substrate.RegionID]*substrate.Region, len(regions))
	for _, r := range regions {
		byID[r.ID()] = r
	}
	out := make([]*substrate.Region, 0, len(order))
	for _, id := range order {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out
}
