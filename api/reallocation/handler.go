// Package reallocation exposes the reallocation engine over HTTP.
package reallocation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kilianp07/busalloc/core/allocation"
	"github.com/kilianp07/busalloc/core/logger"
	"github.com/kilianp07/busalloc/core/model"
)

// Engine is the operation surface served by the handler.
type Engine interface {
	Submit(r model.ReallocationRequest) (string, error)
	ActiveRequests() []model.ReallocationRequest
	Status(ctx context.Context) (allocation.Status, error)
	StartAutonomous() bool
	StopAutonomous() bool
	AutonomousActive() bool
	UpdateConfig(u allocation.ConfigUpdate) (allocation.Tunables, error)
	Decisions(ctx context.Context) ([]model.Decision, error)
	DecisionsNeedingReview(ctx context.Context) ([]model.Decision, error)
	ExecuteReallocation(ctx context.Context, m allocation.ManualExecution) (model.Decision, error)
	MarkReviewed(ctx context.Context, decisionID string, approved bool, reviewer string) (model.Decision, error)
	RunBatch(ctx context.Context) allocation.PassReport
	Decide(ctx context.Context, reqs []model.ReallocationRequest) (model.Decision, bool, error)
}

// RequestSource produces simulated requests for POST /simulate.
type RequestSource interface {
	Generate() model.ReallocationRequest
}

// Options tune the router.
type Options struct {
	AllowedOrigins []string
	Gatherer       prometheus.Gatherer
	Simulator      RequestSource
}

// Handler serves the reallocation API.
type Handler struct {
	engine Engine
	sim    RequestSource
	log    logger.Logger
}

// ErrorResponse is the body of every non 2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SubmitResponse answers POST /requests and POST /simulate.
type SubmitResponse struct {
	RequestID string                     `json:"request_id"`
	Request   *model.ReallocationRequest `json:"request,omitempty"`
}

// ReviewRequest is the body of POST /decisions/{id}/review.
type ReviewRequest struct {
	Approved   bool   `json:"approved"`
	ReviewedBy string `json:"reviewedBy"`
}

// DecideRequest is the body of POST /decide.
type DecideRequest struct {
	Requests []model.ReallocationRequest `json:"requests"`
}

// DecideResponse answers POST /decide.
type DecideResponse struct {
	Decision    model.Decision `json:"decision"`
	NeedsReview bool           `json:"needsManualReview"`
	DecisionID  string         `json:"decisionId"`
	Prioritized []string       `json:"prioritizedRequestIds"`
}

// ToggleResponse answers the autonomous start and stop endpoints.
type ToggleResponse struct {
	Active  bool `json:"isActive"`
	Changed bool `json:"changed"`
}

// NewHandler builds the handler for engine.
func NewHandler(engine Engine, sim RequestSource, log logger.Logger) *Handler {
	return &Handler{engine: engine, sim: sim, log: logger.OrNop(log)}
}

// NewRouter mounts the API, /health and /metrics on a chi router.
func NewRouter(engine Engine, log logger.Logger, opts Options) http.Handler {
	h := NewHandler(engine, opts.Simulator, log)
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "timestamp": time.Now().UTC()})
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Route("/api/reallocation", h.Routes)
	return r
}

// Routes registers the reallocation endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/requests", h.SubmitRequest)
	r.Get("/requests", h.ListRequests)
	r.Get("/status", h.GetStatus)
	r.Post("/autonomous/start", h.StartAutonomous)
	r.Post("/autonomous/stop", h.StopAutonomous)
	r.Put("/config", h.UpdateConfig)
	r.Get("/decisions", h.ListDecisions)
	r.Get("/decisions/review", h.ListReview)
	r.Post("/decisions/{id}/execute", h.Execute)
	r.Post("/decisions/{id}/review", h.Review)
	r.Post("/batch", h.RunBatch)
	r.Post("/decide", h.Decide)
	r.Post("/simulate", h.Simulate)
}

// SubmitRequest handles POST /api/reallocation/requests.
func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var req model.ReallocationRequest
	if !h.decode(w, r, &req) {
		return
	}
	id, err := h.engine.Submit(req)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, SubmitResponse{RequestID: id})
}

// ListRequests handles GET /api/reallocation/requests.
func (h *Handler) ListRequests(w http.ResponseWriter, _ *http.Request) {
	reqs := h.engine.ActiveRequests()
	if reqs == nil {
		reqs = []model.ReallocationRequest{}
	}
	writeJSON(w, http.StatusOK, reqs)
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.engine.Status(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) StartAutonomous(w http.ResponseWriter, _ *http.Request) {
	changed := h.engine.StartAutonomous()
	writeJSON(w, http.StatusOK, ToggleResponse{Active: h.engine.AutonomousActive(), Changed: changed})
}

func (h *Handler) StopAutonomous(w http.ResponseWriter, _ *http.Request) {
	changed := h.engine.StopAutonomous()
	writeJSON(w, http.StatusOK, ToggleResponse{Active: h.engine.AutonomousActive(), Changed: changed})
}

// UpdateConfig handles PUT /api/reallocation/config and answers with the
// settings in force afterwards.
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var u allocation.ConfigUpdate
	if !h.decode(w, r, &u) {
		return
	}
	t, err := h.engine.UpdateConfig(u)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) ListDecisions(w http.ResponseWriter, r *http.Request) {
	ds, err := h.engine.Decisions(r.Context())
	h.writeDecisions(w, ds, err)
}

func (h *Handler) ListReview(w http.ResponseWriter, r *http.Request) {
	ds, err := h.engine.DecisionsNeedingReview(r.Context())
	h.writeDecisions(w, ds, err)
}

// Execute handles POST /api/reallocation/decisions/{id}/execute.
func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	var m allocation.ManualExecution
	if !h.decode(w, r, &m) {
		return
	}
	m.DecisionID = chi.URLParam(r, "id")
	dec, err := h.engine.ExecuteReallocation(r.Context(), m)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dec)
}

// Review handles POST /api/reallocation/decisions/{id}/review.
func (h *Handler) Review(w http.ResponseWriter, r *http.Request) {
	var body ReviewRequest
	if !h.decode(w, r, &body) {
		return
	}
	dec, err := h.engine.MarkReviewed(r.Context(), chi.URLParam(r, "id"), body.Approved, body.ReviewedBy)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dec)
}

func (h *Handler) RunBatch(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.RunBatch(r.Context()))
}

// Decide handles POST /api/reallocation/decide.
func (h *Handler) Decide(w http.ResponseWriter, r *http.Request) {
	var body DecideRequest
	if !h.decode(w, r, &body) {
		return
	}
	dec, review, err := h.engine.Decide(r.Context(), body.Requests)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DecideResponse{
		Decision:    dec,
		NeedsReview: review,
		DecisionID:  dec.ID,
		Prioritized: dec.Verdict.PrioritizedRequestIDs,
	})
}

// Simulate handles POST /api/reallocation/simulate.
func (h *Handler) Simulate(w http.ResponseWriter, _ *http.Request) {
	if h.sim == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "simulator disabled"})
		return
	}
	req := h.sim.Generate()
	id, err := h.engine.Submit(req)
	if err != nil {
		h.fail(w, err)
		return
	}
	req.ID = id
	writeJSON(w, http.StatusCreated, SubmitResponse{RequestID: id, Request: &req})
}

func (h *Handler) writeDecisions(w http.ResponseWriter, ds []model.Decision, err error) {
	if err != nil {
		h.fail(w, err)
		return
	}
	if ds == nil {
		ds = []model.Decision{}
	}
	writeJSON(w, http.StatusOK, ds)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body: " + err.Error()})
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	code := StatusFor(err)
	if code == http.StatusInternalServerError {
		h.log.Errorf("reallocation api: %v", err)
	}
	writeJSON(w, code, ErrorResponse{Error: err.Error()})
}

// StatusFor maps engine errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, allocation.ErrInvalidRequest), errors.Is(err, allocation.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, allocation.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
