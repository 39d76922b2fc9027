package substrate

import (
	"testing"

	"go.uber.org/zap"
)

func syn(id SynapseID, src, tgt NeuronID, srcRegion, tgtRegion RegionID) *Synapse {
	return &Synapse{
		ID:           id,
		Source:       src,
		Target:       tgt,
		SourceRegion: srcRegion,
		TargetRegion: tgtRegion,
		Weight:       0.5,
		Type:         SynapseExcitatory,
		Plasticity:   PlasticityHebbian,
	}
}

// checkAgreement asserts that the vector and the existence index hold the
// same identity set.
func checkAgreement(t *testing.T, r *Registry) {
	t.Helper()
	ids := r.IDs()
	all := r.All()
	if len(ids) != len(all) {
		t.Fatalf("index has %d ids, vector has %d synapses", len(ids), len(all))
	}
	for _, s := range all {
		if _, ok := ids[s.ID]; !ok {
			t.Fatalf("synapse %d in vector but not in index", s.ID)
		}
	}
}

func TestRegistryDuplicateID(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	if err := r.Add(syn(1, 10, 20, 100, 200)); err != nil {
		t.Fatalf("first add: %v", err)
	}
	err := r.Add(syn(1, 11, 21, 100, 200))
	if err != ErrDuplicateSynapse {
		t.Fatalf("got %v, want ErrDuplicateSynapse", err)
	}
	if r.Len() != 1 {
		t.Errorf("got %d synapses after rejected add, want 1", r.Len())
	}
	checkAgreement(t, r)
}

func TestRegistryRemoveRegion(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	// Region 100: 3 outgoing (to 200), 2 incoming (from 300).
	r.Add(syn(1, 10, 20, 100, 200))
	r.Add(syn(2, 11, 21, 100, 200))
	r.Add(syn(3, 12, 22, 100, 200))
	r.Add(syn(4, 30, 10, 300, 100))
	r.Add(syn(5, 31, 11, 300, 100))
	// Unrelated edge that must survive.
	r.Add(syn(6, 30, 20, 300, 200))

	removed := r.RemoveRegion(100)
	if removed != 5 {
		t.Fatalf("removed %d synapses, want 5", removed)
	}
	if r.Len() != 1 {
		t.Fatalf("got %d remaining, want 1", r.Len())
	}
	if _, ok := r.Get(6); !ok {
		t.Error("unrelated synapse 6 was removed")
	}
	checkAgreement(t, r)
}

func TestRegistryWeightedInputs(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.Add(syn(1, 10, 20, 100, 200))
	inhib := syn(2, 11, 20, 100, 200)
	inhib.Type = SynapseInhibitory
	inhib.Weight = 0.2
	r.Add(inhib)

	acts := map[NeuronID]float64{10: 1.0, 11: 1.0}
	inputs := r.WeightedInputs(200, func(id NeuronID) (float64, bool) {
		v, ok := acts[id]
		return v, ok
	})

	want := 0.5 - 0.2
	if got := inputs[20]; got != want {
		t.Errorf("input to neuron 20 = %v, want %v", got, want)
	}
}

func TestRegistryAgreementUnderMutation(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	for i := 0; i < 50; i++ {
		region := RegionID(100 + i%5)
		r.Add(syn(SynapseID(i), NeuronID(i), NeuronID(i+1000), region, RegionID(200)))
		if i%7 == 0 {
			r.RemoveRegion(region)
		}
		checkAgreement(t, r)
	}
}
