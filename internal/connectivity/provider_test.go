package connectivity

import (
	"math/rand"
	"testing"

	"github.com/nidhogg/neuroworld/internal/substrate"
	"go.uber.org/zap"
)

func buildRegion(id substrate.RegionID, name string, neurons int, next *substrate.NeuronID) *substrate.Region {
	r := substrate.NewRegion(id, name, substrate.RegionCortical, substrate.PatternDecaying)
	r.CreateNeurons(neurons, func() substrate.NeuronID {
		*next++
		return *next
	})
	return r
}

func TestMaterializeDensityBounds(t *testing.T) {
	logger := zap.NewNop()
	var nextNeuron substrate.NeuronID
	src := buildRegion(1, "src", 10, &nextNeuron)
	tgt := buildRegion(2, "tgt", 10, &nextNeuron)

	var nextSyn substrate.SynapseID
	alloc := func() substrate.SynapseID {
		nextSyn++
		return nextSyn
	}

	p := NewProvider(false, logger)

	reg := substrate.NewRegistry(logger)
	n, err := p.Materialize(reg, src, tgt, 0.0, WeightRange{0.1, 0.9}, rand.New(rand.NewSource(7)), alloc)
	if err != nil || n != 0 {
		t.Fatalf("density 0: created %d (err %v), want 0", n, err)
	}

	reg = substrate.NewRegistry(logger)
	n, err = p.Materialize(reg, src, tgt, 1.0, WeightRange{0.1, 0.9}, rand.New(rand.NewSource(7)), alloc)
	if err != nil || n != 100 {
		t.Fatalf("density 1: created %d (err %v), want 100", n, err)
	}
	if reg.Len() != 100 {
		t.Fatalf("registry holds %d, want 100", reg.Len())
	}
	for _, s := range reg.All() {
		if s.Weight < 0.1 || s.Weight > 0.9 {
			t.Errorf("weight %v outside range", s.Weight)
		}
	}
}

func TestMaterializeSeededDeterminism(t *testing.T) {
	logger := zap.NewNop()
	var nextNeuron substrate.NeuronID
	src := buildRegion(1, "src", 8, &nextNeuron)
	tgt := buildRegion(2, "tgt", 8, &nextNeuron)

	run := func() int {
		var nextSyn substrate.SynapseID
		reg := substrate.NewRegistry(logger)
		p := NewProvider(false, logger)
		n, err := p.Materialize(reg, src, tgt, 0.5, WeightRange{0, 1}, rand.New(rand.NewSource(42)), func() substrate.SynapseID {
			nextSyn++
			return nextSyn
		})
		if err != nil {
			t.Fatalf("materialize: %v", err)
		}
		return n
	}

	if a, b := run(), run(); a != b {
		t.Errorf("same seed produced %d then %d synapses", a, b)
	}
}

func TestProceduralRuleStableAcrossEvaluations(t *testing.T) {
	p := NewProvider(true, zap.NewNop())
	rule := p.RegisterRule(1, 2, 0.5, WeightRange{0.2, 0.8})

	admitted := 0
	for src := substrate.NeuronID(1); src <= 20; src++ {
		for tgt := substrate.NeuronID(100); tgt <= 120; tgt++ {
			w1, ok1 := rule.Admit(src, tgt)
			w2, ok2 := rule.Admit(src, tgt)
			if ok1 != ok2 || w1 != w2 {
				t.Fatalf("rule not stable for pair (%d,%d)", src, tgt)
			}
			if ok1 {
				admitted++
				if w1 < 0.2 || w1 > 0.8 {
					t.Errorf("weight %v outside range", w1)
				}
			}
		}
	}
	if admitted == 0 {
		t.Error("density 0.5 admitted no pairs at all")
	}
}

func TestProviderRemoveRegion(t *testing.T) {
	p := NewProvider(true, zap.NewNop())
	p.RegisterRule(1, 2, 0.5, WeightRange{0, 1})
	p.RegisterRule(2, 3, 0.5, WeightRange{0, 1})
	p.RegisterRule(3, 4, 0.5, WeightRange{0, 1})

	if removed := p.RemoveRegion(2); removed != 2 {
		t.Fatalf("removed %d rules, want 2", removed)
	}
	if p.RuleCount() != 1 {
		t.Errorf("got %d rules, want 1", p.RuleCount())
	}
}
