package substrate

// RegionID identifies a region within a brain. IDs are allocated
// monotonically and never reused, so a stale ID can only miss a lookup.
type RegionID uint64

// NeuronID identifies a neuron across all regions of a brain.
type NeuronID uint64

// SynapseID identifies a materialized synapse in the registry.
type SynapseID uint64

// RegionType tags the processing role of a region.
type RegionType int

const (
	RegionCortical RegionType = iota
	RegionSensory
	RegionMotor
	RegionAssociative
	RegionCustom

	regionTypeCount
)

// regionTypeWire is the bidirectional mapping between RegionType and its
// checkpoint/API representation. Adding a variant without an entry here is
// caught by the exhaustiveness test.
var regionTypeWire = [regionTypeCount]string{
	RegionCortical:    "cortical",
	RegionSensory:     "sensory",
	RegionMotor:       "motor",
	RegionAssociative: "associative",
	RegionCustom:      "custom",
}

func (t RegionType) String() string {
	if t < 0 || t >= regionTypeCount {
		return "unknown"
	}
	return regionTypeWire[t]
}

// ParseRegionType maps a wire string back to its RegionType.
func ParseRegionType(s string) (RegionType, bool) {
	for i, name := range regionTypeWire {
		if name == s {
			return RegionType(i), true
		}
	}
	return 0, false
}

// ActivationPattern tags how a region's neurons evolve between ticks.
type ActivationPattern int

const (
	PatternDecaying ActivationPattern = iota
	PatternOscillatory
	PatternSparse
	PatternTonic

	activationPatternCount
)

var activationPatternWire = [activationPatternCount]string{
	PatternDecaying:    "decaying",
	PatternOscillatory: "oscillatory",
	PatternSparse:      "sparse",
	PatternTonic:       "tonic",
}

func (p ActivationPattern) String() string {
	if p < 0 || p >= activationPatternCount {
		return "unknown"
	}
	return activationPatternWire[p]
}

// ParseActivationPattern maps a wire string back to its ActivationPattern.
func ParseActivationPattern(s string) (ActivationPattern, bool) {
	for i, name := range activationPatternWire {
		if name == s {
			return ActivationPattern(i), true
		}
	}
	return 0, false
}

// SynapseType determines the sign of a synapse's contribution.
type SynapseType int

const (
	SynapseExcitatory SynapseType = iota
	SynapseInhibitory
	SynapseModulatory

	synapseTypeCount
)

var synapseTypeWire = [synapseTypeCount]string{
	SynapseExcitatory: "excitatory",
	SynapseInhibitory: "inhibitory",
	SynapseModulatory: "modulatory",
}

func (t SynapseType) String() string {
	if t < 0 || t >= synapseTypeCount {
		return "unknown"
	}
	return synapseTypeWire[t]
}

// ParseSynapseType maps a wire string back to its SynapseType.
func ParseSynapseType(s string) (SynapseType, bool) {
	for i, name := range synapseTypeWire {
		if name == s {
			return SynapseType(i), true
		}
	}
	return 0, false
}

// PlasticityRule tags which learning rule governs a synapse. The engine
// never evaluates the rule itself; that is the learning collaborator's job.
type PlasticityRule int

const (
	PlasticityStatic PlasticityRule = iota
	PlasticityHebbian
	PlasticitySTDP
	PlasticityRewardModulated

	plasticityRuleCount
)

var plasticityRuleWire = [plasticityRuleCount]string{
	PlasticityStatic:          "static",
	PlasticityHebbian:         "hebbian",
	PlasticitySTDP:            "stdp",
	PlasticityRewardModulated: "reward_modulated",
}

func (r PlasticityRule) String() string {
	if r < 0 || r >= plasticityRuleCount {
		return "unknown"
	}
	return plasticityRuleWire[r]
}

// ParsePlasticityRule maps a wire string back to its PlasticityRule.
func ParsePlasticityRule(s string) (PlasticityRule, bool) {
	for i, name := range plasticityRuleWire {
		if name == s {
			return PlasticityRule(i), true
		}
	}
	return 0, false
}

// Modality is a sensory or motor channel routed to a region.
type Modality int

const (
	ModalityVision Modality = iota
	ModalityAudition
	ModalityTouch
	ModalityProprioception
	ModalityLanguage
	ModalityMotor

	modalityCount
)

var modalityWire = [modalityCount]string{
	ModalityVision:         "vision",
	ModalityAudition:       "audition",
	ModalityTouch:          "touch",
	ModalityProprioception: "proprioception",
	ModalityLanguage:       "language",
	ModalityMotor:          "motor",
}

func (m Modality) String() string {
	if m < 0 || m >= modalityCount {
		return "unknown"
	}
	return modalityWire[m]
}

// ParseModality maps a wire string back to its Modality.
func ParseModality(s string) (Modality, bool) {
	for i, name := range modalityWire {
		if name == s {
			return Modality(i), true
		}
	}
	return 0, false
}
