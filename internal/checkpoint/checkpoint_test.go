package checkpoint

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func sampleDocument() *Document {
	return &Document{
		SavedAt: time.Now().UTC(),
		Seed:    42,
		Mode:    "parallel",
		Cycle:   100,
		Counters: Counters{
			NextRegion:  3,
			NextNeuron:  7,
			NextSynapse: 4,
		},
		Regions: []RegionRecord{
			{
				ID: 1, Name: "visual", Type: "sensory", Pattern: "decaying",
				Neurons: []NeuronRecord{{ID: 1, Activation: 0.5}, {ID: 2, Activation: -0.25}},
			},
			{
				ID: 2, Name: "premotor", Type: "motor", Pattern: "tonic",
				Neurons: []NeuronRecord{{ID: 3, Activation: 0.1}},
			},
		},
		Synapses: []SynapseRecord{
			{ID: 1, Source: 1, Target: 3, SourceRegion: 1, TargetRegion: 2,
				Weight: 0.7, Type: "excitatory", Plasticity: "hebbian"},
			{ID: 2, Source: 2, Target: 3, SourceRegion: 1, TargetRegion: 2,
				Weight: 0.3, Type: "inhibitory", Plasticity: "static"},
		},
		Routing: map[string]uint64{"vision": 1, "motor": 2},
		Stats: StatsRecord{
			Cycle:          100,
			RegionFailures: 1,
			SnapshotsTaken: 5,
			Consolidated:   2,
			ActualHz:       19.5,
		},
	}
}

func assertRoundTrip(t *testing.T, path string) {
	t.Helper()
	want := sampleDocument()
	if err := Save(path, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if len(got.Regions) != len(want.Regions) {
		t.Fatalf("regions: got %d, want %d", len(got.Regions), len(want.Regions))
	}
	for i, r := range want.Regions {
		g := got.Regions[i]
		if g.ID != r.ID || g.Name != r.Name || g.Type != r.Type || g.Pattern != r.Pattern {
			t.Errorf("region %d mismatch: %+v vs %+v", i, g, r)
		}
		if len(g.Neurons) != len(r.Neurons) {
			t.Fatalf("region %d neurons: got %d, want %d", i, len(g.Neurons), len(r.Neurons))
		}
		for j, n := range r.Neurons {
			if g.Neurons[j] != n {
				t.Errorf("neuron mismatch: %+v vs %+v", g.Neurons[j], n)
			}
		}
	}
	if len(got.Synapses) != len(want.Synapses) {
		t.Fatalf("synapses: got %d, want %d", len(got.Synapses), len(want.Synapses))
	}
	for i, s := range want.Synapses {
		if got.Synapses[i] != s {
			t.Errorf("synapse %d mismatch: %+v vs %+v", i, got.Synapses[i], s)
		}
	}
	for m, r := range want.Routing {
		if got.Routing[m] != r {
			t.Errorf("routing %s: got %d, want %d", m, got.Routing[m], r)
		}
	}
	if got.Counters != want.Counters {
		t.Errorf("counters: got %+v, want %+v", got.Counters, want.Counters)
	}
	if got.Seed != want.Seed || got.Mode != want.Mode || got.Cycle != want.Cycle {
		t.Errorf("header mismatch: %+v", got)
	}
	if got.Stats.SnapshotsTaken != want.Stats.SnapshotsTaken ||
		got.Stats.RegionFailures != want.Stats.RegionFailures {
		t.Errorf("stats mismatch: got %+v, want %+v", got.Stats, want.Stats)
	}
}

func TestTextRoundTrip(t *testing.T) {
	assertRoundTrip(t, filepath.Join(t.TempDir(), "brain.json"))
}

func TestSQLiteRoundTrip(t *testing.T) {
	assertRoundTrip(t, filepath.Join(t.TempDir(), "brain.db"))
}

func TestLoadCorruptText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brain.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("corrupt checkpoint loaded without error")
	}
}

func TestLoadCorruptSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brain.db")
	if err := os.WriteFile(path, []byte("definitely not a database"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("corrupt checkpoint loaded without error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("missing checkpoint loaded without error")
	}
}

func TestVersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brain.json")
	if err := os.WriteFile(path, []byte(`{"version": 99, "regions": []}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("future-versioned checkpoint loaded without error")
	}
}

func TestSaveOverwritesAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brain.json")
	if err := Save(path, sampleDocument()); err != nil {
		t.Fatalf("first save: %v", err)
	}
	doc := sampleDocument()
	doc.Cycle = 200
	if err := Save(path, doc); err != nil {
		t.Fatalf("second save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Cycle != 200 {
		t.Errorf("cycle = %d, want 200", got.Cycle)
	}
	// No stray temp files left behind.
	entries, _ := os.ReadDir(filepath.Dir(path))
	for _, e := range entries {
		if e.Name() != "brain.json" {
			t.Errorf("stray file after save: %s", e.Name())
		}
	}
}

func TestValidateRejectsDanglingSynapse(t *testing.T) {
	doc := sampleDocument()
	doc.Synapses = append(doc.Synapses, SynapseRecord{
		ID: 99, Source: 12345, Target: 3, SourceRegion: 1, TargetRegion: 2,
		Weight: 0.1, Type: "excitatory", Plasticity: "static",
	})
	path := filepath.Join(t.TempDir(), "brain.json")
	if err := Save(path, doc); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("checkpoint with dangling synapse loaded without error")
	}
}

// A binary checkpoint whose meta rows do not parse must fail the load
// instead of silently restoring zeroed counters.
func TestLoadSQLiteCorruptMeta(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brain.db")
	if err := Save(path, sampleDocument()); err != nil {
		t.Fatalf("save: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := db.Exec(`UPDATE meta SET value = 'not-a-number' WHERE key = 'cycle'`); err != nil {
		db.Close()
		t.Fatalf("corrupt meta: %v", err)
	}
	db.Close()

	if _, err := Load(path); err == nil {
		t.Fatal("checkpoint with unparseable meta loaded without error")
	}
}
