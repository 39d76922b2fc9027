package brain

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/nidhogg/neuroworld/internal/checkpoint"
	"github.com/nidhogg/neuroworld/internal/scheduler"
	"github.com/nidhogg/neuroworld/internal/substrate"
)

// SaveCheckpoint exports the full graph, routing, counters and statistics to
// path. The codec is selected by extension; both codecs write to a temp file
// and rename, so a crash mid-write never corrupts an existing checkpoint.
func (b *Brain) SaveCheckpoint(path string) error {
	doc := b.exportDocument()
	if err := checkpoint.Save(path, doc); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	b.logger.Info("checkpoint saved")
	return nil
}

// LoadCheckpoint replaces the live graph with the checkpoint at path. The
// document is fully parsed and validated first; on any failure the live
// brain is left exactly as it was.
func (b *Brain) LoadCheckpoint(path string) error {
	doc, err := checkpoint.Load(path)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}

	staged, err := stageDocument(doc)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}

	// Apply phase: nothing above can fail anymore. The write lock also
	// drains any tick in flight.
	b.mu.Lock()
	b.regions = staged.regions
	b.names = staged.names
	b.routing = staged.routing
	b.neurons = staged.neurons
	b.registry.Clear()
	for _, s := range staged.synapses {
		if err := b.registry.Add(s); err != nil {
			// validate() already rejected duplicates; this cannot happen.
			b.mu.Unlock()
			return fmt.Errorf("load checkpoint: %w", err)
		}
	}
	b.mu.Unlock()

	b.nextRegion.Store(doc.Counters.NextRegion)
	b.nextNeuron.Store(doc.Counters.NextNeuron)
	b.nextSynapse.Store(doc.Counters.NextSynapse)

	b.rngMu.Lock()
	b.rng = rand.New(rand.NewSource(doc.Seed))
	b.rngMu.Unlock()

	b.statsMu.Lock()
	b.cycle = doc.Cycle
	b.actualHz = doc.Stats.ActualHz
	b.lastTick = time.Time{}
	b.statsMu.Unlock()

	if mode, ok := scheduler.ParseMode(doc.Mode); ok {
		b.engine.SetMode(mode)
	}

	b.logger.Info("checkpoint loaded")
	return nil
}

// exportDocument builds the codec-neutral checkpoint payload from the live
// graph. Regions and synapses are sorted by id for stable output.
func (b *Brain) exportDocument() *checkpoint.Document {
	b.mu.RLock()
	defer b.mu.RUnlock()

	regions := b.regionsLocked()
	sort.Slice(regions, func(i, j int) bool { return regions[i].ID() < regions[j].ID() })

	doc := &checkpoint.Document{
		SavedAt: time.Now().UTC(),
		Seed:    b.cfg.Seed,
		Mode:    b.engine.Mode().String(),
		Counters: checkpoint.Counters{
			NextRegion:  b.nextRegion.Load(),
			NextNeuron:  b.nextNeuron.Load(),
			NextSynapse: b.nextSynapse.Load(),
		},
		Routing: make(map[string]uint64, len(b.routing)),
	}

	for _, r := range regions {
		rec := checkpoint.RegionRecord{
			ID:      uint64(r.ID()),
			Name:    r.Name(),
			Type:    r.Type().String(),
			Pattern: r.Pattern().String(),
		}
		for _, n := range r.Neurons() {
			rec.Neurons = append(rec.Neurons, checkpoint.NeuronRecord{
				ID:         uint64(n.ID()),
				Activation: n.Activation(),
			})
		}
		doc.Regions = append(doc.Regions, rec)
	}

	synapses := b.registry.All()
	sort.Slice(synapses, func(i, j int) bool { return synapses[i].ID < synapses[j].ID })
	for _, s := range synapses {
		doc.Synapses = append(doc.Synapses, checkpoint.SynapseRecord{
			ID:           uint64(s.ID),
			Source:       uint64(s.Source),
			Target:       uint64(s.Target),
			SourceRegion: uint64(s.SourceRegion),
			TargetRegion: uint64(s.TargetRegion),
			Weight:       s.Weight,
			Type:         s.Type.String(),
			Plasticity:   s.Plasticity.String(),
		})
	}

	for m, r := range b.routing {
		doc.Routing[m.String()] = uint64(r)
	}

	b.statsMu.Lock()
	doc.Cycle = b.cycle
	doc.Stats = checkpoint.StatsRecord{
		Cycle:    b.cycle,
		ActualHz: b.actualHz,
	}
	b.statsMu.Unlock()
	doc.Stats.RegionFailures = b.engine.Failures()
	hs := b.hippo.Stats()
	doc.Stats.SnapshotsTaken = hs.Taken
	doc.Stats.Consolidated = hs.Consolidated

	return doc
}

// stagedGraph holds a fully parsed checkpoint ready to swap in.
type stagedGraph struct {
	regions  map[substrate.RegionID]*substrate.Region
	names    map[string]substrate.RegionID
	routing  map[substrate.Modality]substrate.RegionID
	neurons  map[substrate.NeuronID]*substrate.Neuron
	synapses []*substrate.Synapse
}

// stageDocument parses every enum and rebuilds the graph off to the side, so
// a malformed document fails before any live state is touched.
func stageDocument(doc *checkpoint.Document) (*stagedGraph, error) {
	g := &stagedGraph{
		regions: make(map[substrate.RegionID]*substrate.Region, len(doc.Regions)),
		names:   make(map[string]substrate.RegionID, len(doc.Regions)),
		routing: make(map[substrate.Modality]substrate.RegionID, len(doc.Routing)),
		neurons: make(map[substrate.NeuronID]*substrate.Neuron),
	}

	for _, rec := range doc.Regions {
		typ, ok := substrate.ParseRegionType(rec.Type)
		if !ok {
			return nil, fmt.Errorf("region %d: unknown type %q", rec.ID, rec.Type)
		}
		pattern, ok := substrate.ParseActivationPattern(rec.Pattern)
		if !ok {
			return nil, fmt.Errorf("region %d: unknown pattern %q", rec.ID, rec.Pattern)
		}
		region := substrate.NewRegion(substrate.RegionID(rec.ID), rec.Name, typ, pattern)
		idx := 0
		region.CreateNeurons(len(rec.Neurons), func() substrate.NeuronID {
			id := substrate.NeuronID(rec.Neurons[idx].ID)
			idx++
			return id
		})
		for _, nrec := range rec.Neurons {
			n, _ := region.Neuron(substrate.NeuronID(nrec.ID))
			n.SetActivation(nrec.Activation)
			g.neurons[n.ID()] = n
		}
		g.regions[region.ID()] = region
		g.names[rec.Name] = region.ID()
	}

	for _, rec := range doc.Synapses {
		typ, ok := substrate.ParseSynapseType(rec.Type)
		if !ok {
			return nil, fmt.Errorf("synapse %d: unknown type %q", rec.ID, rec.Type)
		}
		plasticity, ok := substrate.ParsePlasticityRule(rec.Plasticity)
		if !ok {
			return nil, fmt.Errorf("synapse %d: unknown plasticity %q", rec.ID, rec.Plasticity)
		}
		g.synapses = append(g.synapses, &substrate.Synapse{
			ID:           substrate.SynapseID(rec.ID),
			Source:       substrate.NeuronID(rec.Source),
			Target:       substrate.NeuronID(rec.Target),
			SourceRegion: substrate.RegionID(rec.SourceRegion),
			TargetRegion: substrate.RegionID(rec.TargetRegion),
			Weight:       rec.Weight,
			Type:         typ,
			Plasticity:   plasticity,
		})
	}

	for name, region := range doc.Routing {
		m, ok := substrate.ParseModality(name)
		if !ok {
			return nil, fmt.Errorf("routing: unknown modality %q", name)
		}
		g.routing[m] = substrate.RegionID(region)
	}

	return g, nil
}
