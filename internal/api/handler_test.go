package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nidhogg/neuroworld/internal/brain"
	"go.uber.org/zap"
)

// newTestServer spins up a router over a fresh initialized brain.
func newTestServer(t *testing.T) (*brain.Brain, *httptest.Server) {
	t.Helper()
	b := brain.New(brain.DefaultConfig(), brain.Deps{}, zap.NewNop())
	if err := b.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	t.Cleanup(b.Shutdown)

	h := NewHandler(b, zap.NewNop())
	ts := httptest.NewServer(h.Router())
	t.Cleanup(ts.Close)
	return b, ts
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body interface{}) *http.Response {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func getJSON(t *testing.T, ts *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func deleteReq(t *testing.T, ts *httptest.Server, path string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest("DELETE", ts.URL+path, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE %s: %v", path, err)
	}
	return resp
}

// --- Tests ---

func TestHealthCheck(t *testing.T) {
	_, ts := newTestServer(t)

	resp := getJSON(t, ts, "/api/health")
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]string
	decodeJSON(t, resp, &body)
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
	if body["state"] != "ready" {
		t.Errorf("expected state ready, got %q", body["state"])
	}
}

func TestRegionLifecycleOverHTTP(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts, "/api/regions", map[string]interface{}{
		"name": "v1", "type": "sensory", "pattern": "decaying", "neurons": 8,
	})
	if resp.StatusCode != 201 {
		t.Fatalf("create region: expected 201, got %d", resp.StatusCode)
	}
	var created regionView
	decodeJSON(t, resp, &created)
	if created.Name != "v1" || created.Neurons != 8 {
		t.Errorf("created region = %+v", created)
	}

	// Duplicate name conflicts.
	resp = postJSON(t, ts, "/api/regions", map[string]interface{}{
		"name": "v1", "type": "sensory", "pattern": "decaying", "neurons": 8,
	})
	if resp.StatusCode != 409 {
		t.Errorf("duplicate region: expected 409, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = getJSON(t, ts, "/api/regions")
	var list []regionView
	decodeJSON(t, resp, &list)
	if len(list) != 1 {
		t.Fatalf("listed %d regions, want 1", len(list))
	}

	resp = deleteReq(t, ts, "/api/regions/1")
	if resp.StatusCode != 200 {
		t.Errorf("delete: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = getJSON(t, ts, "/api/regions/1")
	if resp.StatusCode != 404 {
		t.Errorf("get removed region: expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestCreateRegionValidation(t *testing.T) {
	_, ts := newTestServer(t)

	cases := []map[string]interface{}{
		{"name": "", "type": "sensory", "pattern": "decaying", "neurons": 4},
		{"name": "x", "type": "nonsense", "pattern": "decaying", "neurons": 4},
		{"name": "x", "type": "sensory", "pattern": "nonsense", "neurons": 4},
		{"name": "x", "type": "sensory", "pattern": "decaying", "neurons": 0},
	}
	for i, body := range cases {
		resp := postJSON(t, ts, "/api/regions", body)
		if resp.StatusCode != 400 {
			t.Errorf("case %d: expected 400, got %d", i, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestConnectRegionsOverHTTP(t *testing.T) {
	_, ts := newTestServer(t)

	for _, body := range []map[string]interface{}{
		{"name": "src", "type": "sensory", "pattern": "decaying", "neurons": 3},
		{"name": "tgt", "type": "motor", "pattern": "tonic", "neurons": 3},
	} {
		resp := postJSON(t, ts, "/api/regions", body)
		resp.Body.Close()
	}

	resp := postJSON(t, ts, "/api/connections", map[string]interface{}{
		"source": "src", "target": "tgt", "density": 1.0,
		"weight_min": 0.1, "weight_max": 0.5,
	})
	if resp.StatusCode != 201 {
		t.Fatalf("connect: expected 201, got %d", resp.StatusCode)
	}
	var result map[string]int
	decodeJSON(t, resp, &result)
	if result["created"] != 9 {
		t.Errorf("created = %d at density 1 over 3x3, want 9", result["created"])
	}

	resp = postJSON(t, ts, "/api/connections", map[string]interface{}{
		"source": "src", "target": "missing", "density": 0.5,
	})
	if resp.StatusCode != 404 {
		t.Errorf("connect to missing region: expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestLifecycleAndStepOverHTTP(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts, "/api/regions", map[string]interface{}{
		"name": "r", "type": "cortical", "pattern": "decaying", "neurons": 4,
	})
	resp.Body.Close()

	// Step before start is rejected.
	resp = postJSON(t, ts, "/api/step", map[string]interface{}{"delta_time": 0.1})
	if resp.StatusCode != 409 {
		t.Errorf("step while ready: expected 409, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, ts, "/api/lifecycle/start", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("start: expected 200, got %d", resp.StatusCode)
	}
	var state map[string]string
	decodeJSON(t, resp, &state)
	if state["state"] != "running" {
		t.Errorf("state = %q after start, want running", state["state"])
	}

	resp = postJSON(t, ts, "/api/step", map[string]interface{}{"delta_time": 0.1})
	if resp.StatusCode != 200 {
		t.Fatalf("step: expected 200, got %d", resp.StatusCode)
	}
	var step map[string]interface{}
	decodeJSON(t, resp, &step)
	if step["updated"].(float64) != 1 {
		t.Errorf("updated = %v, want 1", step["updated"])
	}

	resp = postJSON(t, ts, "/api/lifecycle/bogus", nil)
	if resp.StatusCode != 400 {
		t.Errorf("unknown action: expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Pause from ready-after-stop conflicts.
	resp = postJSON(t, ts, "/api/lifecycle/stop", nil)
	resp.Body.Close()
	resp = postJSON(t, ts, "/api/lifecycle/pause", nil)
	if resp.StatusCode != 409 {
		t.Errorf("pause while ready: expected 409, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestModalityAndStimulateOverHTTP(t *testing.T) {
	b, ts := newTestServer(t)

	resp := postJSON(t, ts, "/api/regions", map[string]interface{}{
		"name": "v1", "type": "sensory", "pattern": "tonic", "neurons": 2,
	})
	resp.Body.Close()

	resp = postJSON(t, ts, "/api/modalities", map[string]string{
		"modality": "vision", "region": "v1",
	})
	if resp.StatusCode != 200 {
		t.Fatalf("set modality: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, ts, "/api/stimulate", map[string]interface{}{
		"modality": "vision", "values": []float64{0.9, -0.3},
	})
	if resp.StatusCode != 200 {
		t.Fatalf("stimulate: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	region, _ := b.RegionByName("v1")
	if got := region.Neurons()[0].Activation(); got != 0.9 {
		t.Errorf("neuron activation = %v after stimulate, want 0.9", got)
	}

	resp = postJSON(t, ts, "/api/stimulate", map[string]interface{}{
		"modality": "audition", "values": []float64{1},
	})
	if resp.StatusCode != 404 {
		t.Errorf("stimulate unrouted modality: expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSnapshotAndConsolidateOverHTTP(t *testing.T) {
	b, ts := newTestServer(t)

	resp := postJSON(t, ts, "/api/regions", map[string]interface{}{
		"name": "r", "type": "cortical", "pattern": "tonic", "neurons": 3,
	})
	resp.Body.Close()
	region, _ := b.RegionByName("r")
	for _, n := range region.Neurons() {
		n.SetActivation(0.7)
	}

	resp = postJSON(t, ts, "/api/hippocampus/snapshot", map[string]interface{}{
		"context": "http", "force": true, "significant": true,
	})
	if resp.StatusCode != 200 {
		t.Fatalf("snapshot: expected 200, got %d", resp.StatusCode)
	}
	var snap map[string]bool
	decodeJSON(t, resp, &snap)
	if !snap["captured"] {
		t.Fatal("forced snapshot not captured")
	}

	resp = postJSON(t, ts, "/api/hippocampus/consolidate", map[string]bool{"force_all": true})
	if resp.StatusCode != 200 {
		t.Fatalf("consolidate: expected 200, got %d", resp.StatusCode)
	}
	var result map[string]int
	decodeJSON(t, resp, &result)
	if result["consolidated"] != 1 {
		t.Errorf("consolidated = %d, want 1", result["consolidated"])
	}
}

func TestRewardAndExperiencesOverHTTP(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts, "/api/reward", map[string]interface{}{
		"value": 2.0, "source": "env", "context": "goal",
	})
	if resp.StatusCode != 200 {
		t.Fatalf("reward: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, ts, "/api/reward", map[string]interface{}{"value": 1.0})
	if resp.StatusCode != 400 {
		t.Errorf("reward without source: expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = getJSON(t, ts, "/api/experiences")
	var exps []map[string]interface{}
	decodeJSON(t, resp, &exps)
	if len(exps) != 1 {
		t.Fatalf("listed %d experiences, want 1", len(exps))
	}
	if exps[0]["kind"] != "reward" {
		t.Errorf("experience kind = %v, want reward", exps[0]["kind"])
	}
}

func TestStatsOverHTTP(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts, "/api/regions", map[string]interface{}{
		"name": "r", "type": "cortical", "pattern": "decaying", "neurons": 5,
	})
	resp.Body.Close()

	resp = getJSON(t, ts, "/api/stats")
	if resp.StatusCode != 200 {
		t.Fatalf("stats: expected 200, got %d", resp.StatusCode)
	}
	var stats brain.Stats
	decodeJSON(t, resp, &stats)
	if stats.Regions != 1 || stats.Neurons != 5 {
		t.Errorf("stats = %+v, want 1 region / 5 neurons", stats)
	}
	if stats.State != "ready" {
		t.Errorf("stats state = %q, want ready", stats.State)
	}
}

func TestEpisodesOverHTTP(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts, "/api/episodes/trial/start", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("start episode: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, ts, "/api/reward", map[string]interface{}{
		"value": 1.0, "source": "env", "context": "goal",
	})
	resp.Body.Close()

	resp = postJSON(t, ts, "/api/episodes/trial/end", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("end episode: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = getJSON(t, ts, "/api/episodes/trial")
	if resp.StatusCode != 200 {
		t.Fatalf("get episode: expected 200, got %d", resp.StatusCode)
	}
	var ep struct {
		Name          string   `json:"name"`
		Open          bool     `json:"open"`
		ExperienceIDs []string `json:"experience_ids"`
	}
	decodeJSON(t, resp, &ep)
	if ep.Name != "trial" || ep.Open {
		t.Errorf("episode = %+v, want closed trial", ep)
	}
	// Start marker, the reward and the end marker.
	if len(ep.ExperienceIDs) != 3 {
		t.Errorf("episode has %d members, want 3", len(ep.ExperienceIDs))
	}

	resp = getJSON(t, ts, "/api/episodes")
	var eps []map[string]interface{}
	decodeJSON(t, resp, &eps)
	if len(eps) != 1 {
		t.Errorf("listed %d episodes, want 1", len(eps))
	}

	resp = getJSON(t, ts, "/api/episodes/unknown")
	if resp.StatusCode != 404 {
		t.Errorf("unknown episode: expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}
