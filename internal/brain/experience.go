package brain

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ExperienceKind tags an entry in the experience buffer.
type ExperienceKind string

const (
	ExperienceReward       ExperienceKind = "reward"
	ExperienceEpisodeStart ExperienceKind = "episode_start"
	ExperienceEpisodeEnd   ExperienceKind = "episode_end"
)

// Experience is one recorded event: a reward delivery or an episode marker.
type Experience struct {
	ID        string         `json:"id"`
	Kind      ExperienceKind `json:"kind"`
	Name      string         `json:"name"`
	Value     float64        `json:"value"`
	Cycle     uint64         `json:"cycle"`
	Timestamp time.Time      `json:"timestamp"`
}

// Episode is a named grouping of experiences: its start and end bounds plus
// the identities of every experience recorded while it was open. The record
// outlives the ring, so an episode's membership survives even after its
// member entries scroll off the buffer.
type Episode struct {
	Name          string    `json:"name"`
	Open          bool      `json:"open"`
	StartedAt     time.Time `json:"started_at"`
	EndedAt       time.Time `json:"ended_at,omitempty"`
	StartCycle    uint64    `json:"start_cycle"`
	EndCycle      uint64    `json:"end_cycle"`
	ExperienceIDs []string  `json:"experience_ids"`
}

// experienceBuffer is a fixed-capacity ring; the oldest entry is overwritten
// when full. Alongside the ring it keeps the episode table; every experience
// recorded while an episode is open becomes a member of it.
type experienceBuffer struct {
	mu       sync.Mutex
	ring     []Experience
	next     int
	count    int
	episodes map[string]*Episode
}

func newExperienceBuffer(capacity int) *experienceBuffer {
	return &experienceBuffer{
		ring:     make([]Experience, capacity),
		episodes: make(map[string]*Episode),
	}
}

func (e *experienceBuffer) Record(exp Experience) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if exp.ID == "" {
		exp.ID = uuid.New().String()
	}
	if exp.Timestamp.IsZero() {
		exp.Timestamp = time.Now()
	}
	e.ring[e.next] = exp
	e.next = (e.next + 1) % len(e.ring)
	if e.count < len(e.ring) {
		e.count++
	}
	for _, ep := range e.episodes {
		if ep.Open {
			ep.ExperienceIDs = append(ep.ExperienceIDs, exp.ID)
		}
	}
}

// StartEpisode opens a named episode. Restarting a name replaces its record.
func (e *experienceBuffer) StartEpisode(name string, cycle uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.episodes[name] = &Episode{
		Name:       name,
		Open:       true,
		StartedAt:  time.Now(),
		StartCycle: cycle,
	}
}

// EndEpisode closes a named episode. Ending an unknown or already closed
// episode is a no-op.
func (e *experienceBuffer) EndEpisode(name string, cycle uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ep, ok := e.episodes[name]
	if !ok || !ep.Open {
		return
	}
	ep.Open = false
	ep.EndedAt = time.Now()
	ep.EndCycle = cycle
}

// Episode returns a value copy of the named episode record.
func (e *experienceBuffer) Episode(name string) (Episode, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ep, ok := e.episodes[name]
	if !ok {
		return Episode{}, false
	}
	return copyEpisode(ep), true
}

// Episodes returns value copies of every episode record, oldest start first.
func (e *experienceBuffer) Episodes() []Episode {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Episode, 0, len(e.episodes))
	for _, ep := range e.episodes {
		out = append(out, copyEpisode(ep))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

func copyEpisode(ep *Episode) Episode {
	out := *ep
	out.ExperienceIDs = make([]string, len(ep.ExperienceIDs))
	copy(out.ExperienceIDs, ep.ExperienceIDs)
	return out
}

// All returns the recorded experiences, oldest first.
func (e *experienceBuffer) All() []Experience {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Experience, 0, e.count)
	start := e.next - e.count
	if start < 0 {
		start += len(e.ring)
	}
	for i := 0; i < e.count; i++ {
		out = append(out, e.ring[(start+i)%len(e.ring)])
	}
	return out
}

func (e *experienceBuffer) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}

func (e *experienceBuffer) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.next = 0
	e.count = 0
	e.episodes = make(map[string]*Episode)
}
