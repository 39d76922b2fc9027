package substrate

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Updater computes a neuron's next activation from its current value and
// the summed synaptic input for this tick. Implementations are supplied by
// the activation-pattern collaborator; the engine only calls Next.
type Updater interface {
	Next(current, input, dt float64) float64
}

// UpdaterFor returns the default updater for an activation pattern.
func UpdaterFor(p ActivationPattern) Updater {
	switch p {
	case PatternOscillatory:
		return oscillatoryUpdater{period: 1.0}
	case PatternSparse:
		return sparseUpdater{threshold: 0.5}
	case PatternTonic:
		return tonicUpdater{baseline: 0.1}
	default:
		return decayingUpdater{tau: 0.25}
	}
}

// decayingUpdater leaks activation toward zero and integrates input.
type decayingUpdater struct{ tau float64 }

func (u decayingUpdater) Next(current, input, dt float64) float64 {
	next := current*math.Exp(-dt/u.tau) + input
	return clampActivation(next)
}

// oscillatoryUpdater rotates activation through a phase-like cycle.
type oscillatoryUpdater struct{ period float64 }

func (u oscillatoryUpdater) Next(current, input, dt float64) float64 {
	next := current*math.Cos(2*math.Pi*dt/u.period) + input
	return clampActivation(next)
}

// sparseUpdater only fires when input crosses a threshold, otherwise decays hard.
type sparseUpdater struct{ threshold float64 }

func (u sparseUpdater) Next(current, input, dt float64) float64 {
	if input >= u.threshold {
		return clampActivation(current*0.5 + input)
	}
	return clampActivation(current * 0.2)
}

// tonicUpdater holds a baseline firing level plus input.
type tonicUpdater struct{ baseline float64 }

func (u tonicUpdater) Next(current, input, dt float64) float64 {
	next := u.baseline + (current-u.baseline)*0.5 + input
	return clampActivation(next)
}

func clampActivation(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	if v < -1.0 {
		return -1.0
	}
	return v
}

// Region is a named group of neurons with one processing style. A Region
// exclusively owns its neurons; cross-region references go through IDs.
type Region struct {
	id      RegionID
	name    string
	typ     RegionType
	pattern ActivationPattern
	updater Updater
	neurons []*Neuron
	byID    map[NeuronID]*Neuron
}

// NewRegion creates an empty region with the default updater for its pattern.
func NewRegion(id RegionID, name string, typ RegionType, pattern ActivationPattern) *Region {
	return &Region{
		id:      id,
		name:    name,
		typ:     typ,
		pattern: pattern,
		updater: UpdaterFor(pattern),
		byID:    make(map[NeuronID]*Neuron),
	}
}

// ID returns the region's identity.
func (r *Region) ID() RegionID { return r.id }

// Name returns the region's unique name.
func (r *Region) Name() string { return r.name }

// Type returns the region's type tag.
func (r *Region) Type() RegionType { return r.typ }

// Pattern returns the region's activation pattern tag.
func (r *Region) Pattern() ActivationPattern { return r.pattern }

// SetUpdater replaces the activation updater. Nil restores the pattern default.
func (r *Region) SetUpdater(u Updater) {
	if u == nil {
		u = UpdaterFor(r.pattern)
	}
	r.updater = u
}

// CreateNeurons allocates n neurons using the supplied ID allocator and
// returns their IDs in creation order.
func (r *Region) CreateNeurons(n int, alloc func() NeuronID) []NeuronID {
	ids := make([]NeuronID, 0, n)
	for i := 0; i < n; i++ {
		neuron := &Neuron{id: alloc()}
		r.neurons = append(r.neurons, neuron)
		r.byID[neuron.id] = neuron
		ids = append(ids, neuron.id)
	}
	return ids
}

// NeuronCount returns the number of owned neurons.
func (r *Region) NeuronCount() int { return len(r.neurons) }

// Neurons returns the owned neurons in creation order. The slice is shared;
// callers must not mutate it.
func (r *Region) Neurons() []*Neuron { return r.neurons }

// Neuron returns an owned neuron by ID.
func (r *Region) Neuron(id NeuronID) (*Neuron, bool) {
	n, ok := r.byID[id]
	return n, ok
}

// Update advances every owned neuron one tick, staging new activations
// computed from committed state plus the per-neuron synaptic input.
// Nothing is visible to other regions until Commit.
func (r *Region) Update(dt float64, inputs map[NeuronID]float64) {
	for _, n := range r.neurons {
		n.stage(r.updater.Next(n.activation, inputs[n.id], dt))
	}
}

// Commit publishes the activations staged by the last Update.
func (r *Region) Commit() {
	for _, n := range r.neurons {
		n.commitStaged()
	}
}

// MeanActivation returns the mean committed activation of the region.
func (r *Region) MeanActivation() float64 {
	if len(r.neurons) == 0 {
		return 0
	}
	vals := make([]float64, len(r.neurons))
	for i, n := range r.neurons {
		vals[i] = n.activation
	}
	return stat.Mean(vals, nil)
}

// StateVector returns a copy of the committed activations in neuron order.
// Snapshot capture depends on this being a value copy, never an alias.
func (r *Region) StateVector() []float64 {
	vals := make([]float64, len(r.neurons))
	for i, n := range r.neurons {
		vals[i] = n.activation
	}
	return vals
}
