package hippocampus

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// Config controls snapshot admission, decay and consolidation.
type Config struct {
	Enabled                  bool          `json:"enabled"`
	MaxSnapshots             int           `json:"max_snapshots"`
	SnapshotThreshold        float64       `json:"snapshot_threshold"`
	SnapshotInterval         time.Duration `json:"snapshot_interval"`
	ConsolidationThreshold   float64       `json:"consolidation_threshold"`
	ConsolidationBatchSize   int           `json:"consolidation_batch_size"`
	MaxConsolidationsPerCall int           `json:"max_consolidations_per_call"`
	DecayRate                float64       `json:"decay_rate"`         // priority multiplier per decay pass, in [0,1]
	SignificanceBoost        float64       `json:"significance_boost"` // extra multiplier for significant snapshots
	MaxAge                   time.Duration `json:"max_age"`            // hard TTL, independent of priority
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:                  true,
		MaxSnapshots:             64,
		SnapshotThreshold:        0.05,
		SnapshotInterval:         500 * time.Millisecond,
		ConsolidationThreshold:   0.4,
		ConsolidationBatchSize:   8,
		MaxConsolidationsPerCall: 16,
		DecayRate:                0.95,
		SignificanceBoost:        1.03,
		MaxAge:                   10 * time.Minute,
	}
}

// Stats is a read-only aggregate over the store. Computing it mutates nothing.
type Stats struct {
	Count          int     `json:"count"`
	Taken          uint64  `json:"taken"`
	Evicted        uint64  `json:"evicted"`
	Expired        uint64  `json:"expired"`
	Consolidated   uint64  `json:"consolidated"`
	AvgPriority    float64 `json:"avg_priority"`
	EstimatedBytes int     `json:"estimated_bytes"`
}

// Store is the active snapshot cache. It has its own exclusion domain,
// independent of the main graph, so capture never blocks a tick in progress.
type Store struct {
	mu             sync.Mutex
	cfg            Config
	snapshots      []*Snapshot
	lastCapture    time.Time
	lastActivation float64
	captured       bool
	longterm       LongTermStore
	logger         *zap.Logger
	now            func() time.Time

	taken        uint64
	evicted      uint64
	expired      uint64
	consolidated uint64
}

// NewStore creates a snapshot store writing back to longterm on consolidation.
func NewStore(cfg Config, longterm LongTermStore, logger *zap.Logger) *Store {
	if cfg.MaxSnapshots <= 0 {
		cfg.MaxSnapshots = DefaultConfig().MaxSnapshots
	}
	return &Store{
		cfg:      cfg,
		longterm: longterm,
		logger:   logger,
		now:      time.Now,
	}
}

// Capture runs admission and insertion as one atomic step: the check and the
// record happen under a single lock hold, so two racing captures can never
// both clear the interval gate. The builder runs only for admitted captures.
// Returns whether a snapshot was recorded.
func (s *Store) Capture(globalActivation float64, force bool, build func() *Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.shouldCaptureLocked(globalActivation, force) {
		return false
	}
	s.insertLocked(build())
	return true
}

// ShouldCapture reports whether a capture would currently be admitted:
// forced captures always pass; otherwise both the interval since the last
// capture and the activation delta against the last captured value must
// clear their thresholds. Purely advisory; atomic admission goes through
// Capture.
func (s *Store) ShouldCapture(globalActivation float64, force bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shouldCaptureLocked(globalActivation, force)
}

func (s *Store) shouldCaptureLocked(globalActivation float64, force bool) bool {
	if !s.cfg.Enabled {
		return false
	}
	if force {
		return true
	}
	if s.captured {
		if s.now().Sub(s.lastCapture) < s.cfg.SnapshotInterval {
			return false
		}
		if math.Abs(globalActivation-s.lastActivation) < s.cfg.SnapshotThreshold {
			return false
		}
	}
	return true
}

// Insert admits a captured snapshot unconditionally. The initial priority
// derives from activation magnitude and significance. If the store is at
// capacity the single lowest-priority entry (oldest on ties) is evicted
// first, so the capacity invariant holds after every call.
func (s *Store) Insert(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(snap)
}

func (s *Store) insertLocked(snap *Snapshot) {
	snap.Priority = math.Min(math.Abs(snap.GlobalActivation), 1.0)
	if snap.Significant {
		snap.Priority = math.Min(snap.Priority*s.cfg.SignificanceBoost, 1.0)
	}
	if snap.Timestamp.IsZero() {
		snap.Timestamp = s.now()
	}
	snap.LastAccess = snap.Timestamp

	if len(s.snapshots) >= s.cfg.MaxSnapshots {
		s.evictLowestLocked()
	}
	s.snapshots = append(s.snapshots, snap)
	s.lastCapture = snap.Timestamp
	s.lastActivation = snap.GlobalActivation
	s.captured = true
	s.taken++

	s.logger.Debug("snapshot captured",
		zap.String("context", snap.Context),
		zap.Uint64("cycle", snap.Cycle),
		zap.Float64("priority", snap.Priority),
		zap.Int("stored", len(s.snapshots)))
}

// evictLowestLocked removes the lowest-priority snapshot, oldest first on
// ties. Caller holds the lock.
func (s *Store) evictLowestLocked() {
	if len(s.snapshots) == 0 {
		return
	}
	lowest := 0
	for i, snap := range s.snapshots {
		cur := s.snapshots[lowest]
		if snap.Priority < cur.Priority ||
			(snap.Priority == cur.Priority && snap.Timestamp.Before(cur.Timestamp)) {
			lowest = i
		}
	}
	victim := s.snapshots[lowest]
	s.snapshots = append(s.snapshots[:lowest], s.snapshots[lowest+1:]...)
	s.evicted++
	s.logger.Debug("snapshot evicted",
		zap.String("context", victim.Context),
		zap.Float64("priority", victim.Priority))
}

// UpdatePriorities runs one decay pass: every priority is multiplied by the
// decay rate, significant snapshots decay slower by the significance boost
// (the combined multiplier is clamped at 1 so a pass never raises a
// priority), and anything older than MaxAge is dropped unconditionally.
func (s *Store) UpdatePriorities() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	kept := s.snapshots[:0]
	for _, snap := range s.snapshots {
		if s.cfg.MaxAge > 0 && now.Sub(snap.Timestamp) > s.cfg.MaxAge {
			s.expired++
			continue
		}
		mult := s.cfg.DecayRate
		if snap.Significant {
			mult = math.Min(mult*s.cfg.SignificanceBoost, 1.0)
		}
		snap.Priority *= mult
		kept = append(kept, snap)
	}
	s.snapshots = kept
}

// SelectForConsolidation returns the snapshots eligible for write-back:
// priority at or above the consolidation threshold (all of them when
// forceAll), highest priority first, truncated to the per-call batch bound.
func (s *Store) SelectForConsolidation(forceAll bool) []*Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectLocked(forceAll)
}

func (s *Store) selectLocked(forceAll bool) []*Snapshot {
	var eligible []*Snapshot
	for _, snap := range s.snapshots {
		if forceAll || snap.Priority >= s.cfg.ConsolidationThreshold {
			eligible = append(eligible, snap)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].Priority > eligible[j].Priority
	})

	limit := s.cfg.ConsolidationBatchSize
	if s.cfg.MaxConsolidationsPerCall > 0 && s.cfg.MaxConsolidationsPerCall < limit {
		limit = s.cfg.MaxConsolidationsPerCall
	}
	if limit > 0 && len(eligible) > limit {
		eligible = eligible[:limit]
	}
	return eligible
}

// Consolidate writes the selected snapshots back to long-term storage, marks
// them consolidated and retires them from the active store. It returns the
// number consolidated. Re-running without new captures consolidates zero.
func (s *Store) Consolidate(ctx context.Context, forceAll bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	selected := s.selectLocked(forceAll)
	if len(selected) == 0 {
		return 0, nil
	}

	done := make(map[*Snapshot]struct{}, len(selected))
	for _, snap := range selected {
		if s.longterm != nil {
			if err := s.longterm.WriteSnapshot(ctx, snap); err != nil {
				// Left in the store; a later pass retries it.
				s.logger.Warn("snapshot write-back failed",
					zap.String("snapshot", snap.ID),
					zap.Error(err))
				continue
			}
		}
		snap.Consolidated = true
		done[snap] = struct{}{}
	}

	kept := s.snapshots[:0]
	for _, snap := range s.snapshots {
		if _, ok := done[snap]; ok {
			continue
		}
		kept = append(kept, snap)
	}
	s.snapshots = kept
	s.consolidated += uint64(len(done))

	if len(done) > 0 {
		s.logger.Info("snapshots consolidated",
			zap.Int("count", len(done)),
			zap.Int("remaining", len(s.snapshots)))
	}
	return len(done), nil
}

// Size returns the number of active snapshots.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshots)
}

// Snapshots returns the active snapshots, most recent last. The slice is a
// copy; entries are shared and must be treated as read-only.
func (s *Store) Snapshots() []*Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Snapshot, len(s.snapshots))
	copy(out, s.snapshots)
	return out
}

// Stats computes the read-only aggregate.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Count:        len(s.snapshots),
		Taken:        s.taken,
		Evicted:      s.evicted,
		Expired:      s.expired,
		Consolidated: s.consolidated,
	}
	if len(s.snapshots) > 0 {
		priorities := make([]float64, len(s.snapshots))
		for i, snap := range s.snapshots {
			priorities[i] = snap.Priority
			st.EstimatedBytes += snap.estimateBytes()
		}
		st.AvgPriority = stat.Mean(priorities, nil)
	}
	return st
}

// Reset drops all snapshots and counters. Used by brain reset.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = nil
	s.captured = false
	s.lastActivation = 0
	s.taken, s.evicted, s.expired, s.consolidated = 0, 0, 0, 0
}
