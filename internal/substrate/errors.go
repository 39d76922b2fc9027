package substrate

import "errors"

var (
	// ErrRegionNotFound is returned for lookups with an unknown region ID.
	ErrRegionNotFound = errors.New("substrate: region not found")

	// ErrNeuronNotFound is returned for lookups with an unknown neuron ID.
	ErrNeuronNotFound = errors.New("substrate: neuron not found")

	// ErrSynapseNotFound is returned for lookups with an unknown synapse ID.
	ErrSynapseNotFound = errors.New("substrate: synapse not found")

	// ErrDuplicateSynapse is returned when an explicit synapse ID is already
	// registered. The registry is left unchanged.
	ErrDuplicateSynapse = errors.New("substrate: synapse id already registered")

	// ErrDuplicateRegionName is returned when a region name is already taken.
	// Region names must map bijectively to IDs within one brain.
	ErrDuplicateRegionName = errors.New("substrate: region name already in use")
)
