package substrate

// Neuron is a single node in the substrate graph. It is owned by exactly
// one Region; everything outside that region refers to it by NeuronID only.
//
// Activation is double-buffered: Update stages the next value and Commit
// publishes it. Readers outside the owning region's update only ever see
// committed values, which is what makes Parallel processing deterministic.
type Neuron struct {
	id         NeuronID
	activation float64
	staged     float64
}

// ID returns the neuron's identity.
func (n *Neuron) ID() NeuronID { return n.id }

// Activation returns the last committed activation.
func (n *Neuron) Activation() float64 { return n.activation }

// SetActivation overwrites both buffers. Used for stimulation and
// checkpoint restore, never during a tick.
func (n *Neuron) SetActivation(v float64) {
	n.activation = v
	n.staged = v
}

func (n *Neuron) stage(v float64) { n.staged = v }

func (n *Neuron) commitStaged() { n.activation = n.staged }
