package substrate

// Synapse is a weighted directed edge between two neurons. It holds IDs
// only — never owning references — so removing a region can never leave a
// dangling pointer, only an ID that no longer resolves.
type Synapse struct {
	ID           SynapseID      `json:"id"`
	Source       NeuronID       `json:"source"`
	Target       NeuronID       `json:"target"`
	SourceRegion RegionID       `json:"source_region"`
	TargetRegion RegionID       `json:"target_region"`
	Weight       float64        `json:"weight"`
	Type         SynapseType    `json:"type"`
	Plasticity   PlasticityRule `json:"plasticity"`
}

// Signed returns the weight with the type's sign applied: inhibitory
// synapses subtract, modulatory synapses contribute at half strength.
func (s *Synapse) Signed() float64 {
	switch s.Type {
	case SynapseInhibitory:
		return -s.Weight
	case SynapseModulatory:
		return s.Weight * 0.5
	default:
		return s.Weight
	}
}
