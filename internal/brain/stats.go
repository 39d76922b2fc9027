package brain

import (
	"github.com/nidhogg/neuroworld/internal/autotask"
	"github.com/nidhogg/neuroworld/internal/hippocampus"
	"github.com/nidhogg/neuroworld/internal/learning"
)

// Stats is the engine-wide read-only aggregate.
type Stats struct {
	State            string            `json:"state"`
	Mode             string            `json:"mode"`
	Cycle            uint64            `json:"cycle"`
	ActualHz         float64           `json:"actual_hz"`
	Regions          int               `json:"regions"`
	Neurons          int               `json:"neurons"`
	Synapses         int               `json:"synapses"`
	Rules            int               `json:"rules"`
	GlobalActivation float64           `json:"global_activation"`
	RegionFailures   uint64            `json:"region_failures"`
	Experiences      int               `json:"experiences"`
	Hippocampus      hippocampus.Stats `json:"hippocampus"`
	Learning         learning.Stats    `json:"learning"`
	Tasks            autotask.Stats    `json:"tasks"`
}

// Stats assembles the aggregate, visiting one lock domain at a time.
func (b *Brain) Stats() Stats {
	st := Stats{
		State: b.State().String(),
		Mode:  b.engine.Mode().String(),
	}

	b.statsMu.Lock()
	st.Cycle = b.cycle
	st.ActualHz = b.actualHz
	b.statsMu.Unlock()

	b.mu.RLock()
	st.Regions = len(b.regions)
	st.Neurons = len(b.neurons)
	st.GlobalActivation = b.globalActivationLocked()
	b.mu.RUnlock()

	st.Synapses = b.registry.Len()
	st.Rules = b.provider.RuleCount()
	st.RegionFailures = b.engine.Failures()
	st.Experiences = b.experiences.Len()
	st.Hippocampus = b.hippo.Stats()
	st.Learning = b.learner.Statistics()
	st.Tasks = b.tasks.Statistics()
	return st
}
