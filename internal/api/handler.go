package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nidhogg/neuroworld/internal/brain"
	"github.com/nidhogg/neuroworld/internal/connectivity"
	"github.com/nidhogg/neuroworld/internal/scheduler"
	"github.com/nidhogg/neuroworld/internal/substrate"
	"go.uber.org/zap"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	brain  *brain.Brain
	logger *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(b *brain.Brain, logger *zap.Logger) *Handler {
	return &Handler{brain: b, logger: logger}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Get("/state", h.getState)
		r.Get("/stats", h.getStats)

		// Lifecycle routes
		r.Post("/lifecycle/{action}", h.lifecycleAction)
		r.Post("/step", h.processStep)
		r.Post("/mode", h.setMode)

		// Graph routes
		r.Get("/regions", h.listRegions)
		r.Post("/regions", h.createRegion)
		r.Get("/regions/{id}", h.getRegion)
		r.Delete("/regions/{id}", h.deleteRegion)
		r.Post("/connections", h.connectRegions)
		r.Post("/synapses", h.connectNeurons)

		// Modality routes
		r.Post("/modalities", h.setModality)
		r.Post("/stimulate", h.stimulate)

		// Hippocampus routes
		r.Get("/hippocampus/stats", h.hippocampusStats)
		r.Get("/hippocampus/snapshots", h.listSnapshots)
		r.Post("/hippocampus/snapshot", h.takeSnapshot)
		r.Post("/hippocampus/consolidate", h.consolidate)

		// Learning routes
		r.Post("/reward", h.deliverReward)
		r.Post("/episodes/{name}/start", h.startEpisode)
		r.Post("/episodes/{name}/end", h.endEpisode)
		r.Get("/episodes", h.listEpisodes)
		r.Get("/episodes/{name}", h.getEpisode)
		r.Get("/experiences", h.listExperiences)

		// Persistence routes
		r.Post("/checkpoint/save", h.saveCheckpoint)
		r.Post("/checkpoint/load", h.loadCheckpoint)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "state": h.brain.State().String()})
}

func (h *Handler) getState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"state": h.brain.State().String()})
}

func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.brain.Stats())
}

func (h *Handler) lifecycleAction(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")

	var err error
	switch action {
	case "initialize":
		err = h.brain.Initialize()
	case "start":
		err = h.brain.Start()
	case "pause":
		err = h.brain.Pause()
	case "resume":
		err = h.brain.Resume()
	case "stop":
		err = h.brain.Stop()
	case "reset":
		err = h.brain.Reset()
	case "shutdown":
		h.brain.Shutdown()
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown lifecycle action"})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"action": action,
		"state":  h.brain.State().String(),
	})
}

type stepRequest struct {
	DeltaTime float64 `json:"delta_time"`
}

func (h *Handler) processStep(w http.ResponseWriter, r *http.Request) {
	var req stepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.DeltaTime <= 0 {
		req.DeltaTime = 0.1
	}
	res, err := h.brain.ProcessStep(r.Context(), req.DeltaTime)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cycle":   h.brain.Cycle(),
		"updated": res.Updated,
		"failed":  res.Failed,
	})
}

type modeRequest struct {
	Mode string `json:"mode"`
}

func (h *Handler) setMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	mode, ok := scheduler.ParseMode(req.Mode)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown processing mode"})
		return
	}
	h.brain.SetMode(mode)
	writeJSON(w, http.StatusOK, map[string]string{"mode": mode.String()})
}

// regionView is the JSON representation of one region.
type regionView struct {
	ID             uint64  `json:"id"`
	Name           string  `json:"name"`
	Type           string  `json:"type"`
	Pattern        string  `json:"pattern"`
	Neurons        int     `json:"neurons"`
	MeanActivation float64 `json:"mean_activation"`
}

func viewRegion(r *substrate.Region) regionView {
	return regionView{
		ID:             uint64(r.ID()),
		Name:           r.Name(),
		Type:           r.Type().String(),
		Pattern:        r.Pattern().String(),
		Neurons:        r.NeuronCount(),
		MeanActivation: r.MeanActivation(),
	}
}

func (h *Handler) listRegions(w http.ResponseWriter, r *http.Request) {
	regions := h.brain.Regions()
	views := make([]regionView, 0, len(regions))
	for _, region := range regions {
		views = append(views, viewRegion(region))
	}
	writeJSON(w, http.StatusOK, views)
}

type regionCreateRequest struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Pattern string `json:"pattern"`
	Neurons int    `json:"neurons"`
}

func (h *Handler) createRegion(w http.ResponseWriter, r *http.Request) {
	var req regionCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Name == "" || req.Neurons <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name and a positive neuron count are required"})
		return
	}
	typ, ok := substrate.ParseRegionType(req.Type)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown region type"})
		return
	}
	pattern, ok := substrate.ParseActivationPattern(req.Pattern)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown activation pattern"})
		return
	}

	region, err := h.brain.AddRegion(req.Name, typ, pattern, req.Neurons)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewRegion(region))
}

func (h *Handler) getRegion(w http.ResponseWriter, r *http.Request) {
	id, err := regionID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid region id"})
		return
	}
	region, ok := h.brain.Region(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "region not found"})
		return
	}
	writeJSON(w, http.StatusOK, viewRegion(region))
}

func (h *Handler) deleteRegion(w http.ResponseWriter, r *http.Request) {
	id, err := regionID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid region id"})
		return
	}
	if err := h.brain.RemoveRegion(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

type connectRequest struct {
	Source    string  `json:"source"`
	Target    string  `json:"target"`
	Density   float64 `json:"density"`
	WeightMin float64 `json:"weight_min"`
	WeightMax float64 `json:"weight_max"`
}

func (h *Handler) connectRegions(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	src, ok := h.brain.RegionByName(req.Source)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "source region not found"})
		return
	}
	tgt, ok := h.brain.RegionByName(req.Target)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "target region not found"})
		return
	}

	created, err := h.brain.ConnectRegions(src.ID(), tgt.ID(), req.Density,
		connectivity.WeightRange{Min: req.WeightMin, Max: req.WeightMax})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"created": created})
}

type synapseCreateRequest struct {
	SourceRegion uint64  `json:"source_region"`
	TargetRegion uint64  `json:"target_region"`
	Source       uint64  `json:"source"`
	Target       uint64  `json:"target"`
	Weight       float64 `json:"weight"`
	Type         string  `json:"type"`
	Plasticity   string  `json:"plasticity"`
	ID           uint64  `json:"id,omitempty"`
}

func (h *Handler) connectNeurons(w http.ResponseWriter, r *http.Request) {
	var req synapseCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	typ, ok := substrate.ParseSynapseType(req.Type)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown synapse type"})
		return
	}
	plasticity, ok := substrate.ParsePlasticityRule(req.Plasticity)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown plasticity rule"})
		return
	}

	s, err := h.brain.ConnectNeurons(
		substrate.RegionID(req.SourceRegion),
		substrate.RegionID(req.TargetRegion),
		substrate.NeuronID(req.Source),
		substrate.NeuronID(req.Target),
		req.Weight, typ, plasticity,
		substrate.SynapseID(req.ID),
	)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"id": uint64(s.ID)})
}

type modalityRequest struct {
	Modality string `json:"modality"`
	Region   string `json:"region"`
}

func (h *Handler) setModality(w http.ResponseWriter, r *http.Request) {
	var req modalityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	m, ok := substrate.ParseModality(req.Modality)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown modality"})
		return
	}
	region, ok := h.brain.RegionByName(req.Region)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "region not found"})
		return
	}
	if err := h.brain.SetModality(m, region.ID()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"modality": m.String(), "region": req.Region})
}

type stimulateRequest struct {
	Modality string    `json:"modality"`
	Values   []float64 `json:"values"`
}

func (h *Handler) stimulate(w http.ResponseWriter, r *http.Request) {
	var req stimulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	m, ok := substrate.ParseModality(req.Modality)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown modality"})
		return
	}
	if err := h.brain.Stimulate(m, req.Values); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stimulated"})
}

func (h *Handler) hippocampusStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.brain.HippocampusStats())
}

func (h *Handler) listSnapshots(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.brain.Snapshots())
}

type snapshotRequest struct {
	Context     string `json:"context"`
	Force       bool   `json:"force"`
	Significant bool   `json:"significant"`
}

func (h *Handler) takeSnapshot(w http.ResponseWriter, r *http.Request) {
	var req snapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	captured := h.brain.TakeSnapshot(req.Context, req.Force, req.Significant)
	writeJSON(w, http.StatusOK, map[string]bool{"captured": captured})
}

type consolidateRequest struct {
	ForceAll bool `json:"force_all"`
}

func (h *Handler) consolidate(w http.ResponseWriter, r *http.Request) {
	var req consolidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	n, err := h.brain.Consolidate(r.Context(), req.ForceAll)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"consolidated": n})
}

type rewardRequest struct {
	Value   float64 `json:"value"`
	Source  string  `json:"source"`
	Context string  `json:"context"`
}

func (h *Handler) deliverReward(w http.ResponseWriter, r *http.Request) {
	var req rewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Source == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "source is required"})
		return
	}
	h.brain.DeliverReward(req.Value, req.Source, req.Context)
	writeJSON(w, http.StatusOK, map[string]string{"status": "delivered"})
}

func (h *Handler) startEpisode(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	h.brain.StartEpisode(name)
	writeJSON(w, http.StatusOK, map[string]string{"episode": name, "status": "started"})
}

func (h *Handler) endEpisode(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	h.brain.EndEpisode(name)
	writeJSON(w, http.StatusOK, map[string]string{"episode": name, "status": "ended"})
}

func (h *Handler) listExperiences(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.brain.Experiences())
}

func (h *Handler) listEpisodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.brain.Episodes())
}

func (h *Handler) getEpisode(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	ep, ok := h.brain.Episode(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "episode not found"})
		return
	}
	writeJSON(w, http.StatusOK, ep)
}

type checkpointRequest struct {
	Path string `json:"path"`
}

func (h *Handler) saveCheckpoint(w http.ResponseWriter, r *http.Request) {
	var req checkpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "path is required"})
		return
	}
	if err := h.brain.SaveCheckpoint(req.Path); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved", "path": req.Path})
}

func (h *Handler) loadCheckpoint(w http.ResponseWriter, r *http.Request) {
	var req checkpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "path is required"})
		return
	}
	if err := h.brain.LoadCheckpoint(req.Path); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "path": req.Path})
}

func regionID(r *http.Request) (substrate.RegionID, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	return substrate.RegionID(id), err
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, substrate.ErrRegionNotFound),
		errors.Is(err, substrate.ErrNeuronNotFound),
		errors.Is(err, substrate.ErrSynapseNotFound):
		status = http.StatusNotFound
	case errors.Is(err, substrate.ErrDuplicateSynapse),
		errors.Is(err, substrate.ErrDuplicateRegionName),
		errors.Is(err, brain.ErrIllegalTransition),
		errors.Is(err, brain.ErrTickInFlight):
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
