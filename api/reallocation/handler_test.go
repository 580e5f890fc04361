package reallocation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/busalloc/core/allocation"
	"github.com/kilianp07/busalloc/core/decisionlog"
	"github.com/kilianp07/busalloc/core/events"
	"github.com/kilianp07/busalloc/core/fleet"
	"github.com/kilianp07/busalloc/core/model"
	"github.com/kilianp07/busalloc/core/oracle"
	"github.com/kilianp07/busalloc/core/requests"
	"github.com/kilianp07/busalloc/core/simulator"
	"github.com/kilianp07/busalloc/internal/eventbus"
)

type rankFunc func(context.Context, []model.ReallocationRequest) model.Verdict

func (f rankFunc) Rank(ctx context.Context, reqs []model.ReallocationRequest) model.Verdict {
	return f(ctx, reqs)
}

func newServer(t *testing.T, ranker oracle.Ranker) (*httptest.Server, *allocation.Engine) {
	t.Helper()
	cfg := allocation.DefaultConfig()
	cfg.ProcessingThreshold = 1
	bus := eventbus.New[events.Event]()
	e, err := allocation.NewEngine(cfg, requests.NewMemoryStore(), decisionlog.NewMemoryStore(), fleet.NewDefaultRegistry(), ranker, bus, nil)
	require.NoError(t, err)

	srv := httptest.NewServer(NewRouter(e, nil, Options{
		Gatherer:  prometheus.NewRegistry(),
		Simulator: simulator.NewGenerator(7),
	}))
	t.Cleanup(func() {
		srv.Close()
		_ = e.Close()
		bus.Close()
	})
	return srv, e
}

func do(t *testing.T, srv *httptest.Server, method, path string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func request(stop string, buses int, wait float64, queue int) map[string]any {
	return map[string]any{
		"fermataId":                 stop,
		"fermataName":               "Stop " + stop,
		"numBusesAllocated":         buses,
		"averageWaitTimeMinutes":    wait,
		"estimatedNumPeopleInQueue": queue,
	}
}

func TestSubmitAndList(t *testing.T) {
	srv, _ := newServer(t, oracle.RuleRanker{})

	var created SubmitResponse
	code := do(t, srv, http.MethodPost, "/api/reallocation/requests", request("F001", 0, 22, 55), &created)
	require.Equal(t, http.StatusCreated, code)
	assert.NotEmpty(t, created.RequestID)

	var errResp ErrorResponse
	code = do(t, srv, http.MethodPost, "/api/reallocation/requests", request("", 0, 22, 55), &errResp)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, errResp.Error, "stop id")

	var list []model.ReallocationRequest
	code = do(t, srv, http.MethodGet, "/api/reallocation/requests", nil, &list)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, list, 1)
	assert.Equal(t, created.RequestID, list[0].ID)
	assert.Equal(t, model.RequestPending, list[0].Status)
	assert.Equal(t, model.PriorityNormal, list[0].Priority)
}

func TestMalformedBody(t *testing.T) {
	srv, _ := newServer(t, oracle.RuleRanker{})
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/reallocation/requests", bytes.NewBufferString("{"))
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBatchExecutesAndRecordsDecision(t *testing.T) {
	srv, _ := newServer(t, oracle.RuleRanker{})
	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/api/reallocation/requests", request("F001", 0, 22, 55), nil))

	var rep allocation.PassReport
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/api/reallocation/batch", nil, &rep))
	assert.False(t, rep.Skipped)
	require.Len(t, rep.Groups, 1)
	assert.Equal(t, 1, rep.Groups[0].Executed)

	var ds []model.Decision
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/reallocation/decisions", nil, &ds))
	require.Len(t, ds, 1)
	assert.Equal(t, model.DecisionCompleted, ds[0].Status)
	assert.Equal(t, model.ExecutedByAgent, ds[0].ExecutedBy)
	assert.Equal(t, "R001", ds[0].ToRouteID)

	var active []model.ReallocationRequest
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/reallocation/requests", nil, &active))
	assert.Empty(t, active)
}

func TestReviewFlow(t *testing.T) {
	failing := rankFunc(func(context.Context, []model.ReallocationRequest) model.Verdict {
		return model.Verdict{Reasoning: "oracle down", NeedsManualIntervention: true}
	})
	srv, _ := newServer(t, failing)
	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/api/reallocation/requests", request("F004", 1, 12, 30), nil))
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/api/reallocation/batch", nil, nil))

	var review []model.Decision
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/reallocation/decisions/review", nil, &review))
	require.Len(t, review, 1)
	id := review[0].ID

	var errResp ErrorResponse
	code := do(t, srv, http.MethodPost, "/api/reallocation/decisions/"+id+"/review", ReviewRequest{Approved: true}, &errResp)
	assert.Equal(t, http.StatusBadRequest, code)

	code = do(t, srv, http.MethodPost, "/api/reallocation/decisions/DEC-missing/review", ReviewRequest{Approved: true, ReviewedBy: "ops"}, &errResp)
	assert.Equal(t, http.StatusNotFound, code)

	var dec model.Decision
	code = do(t, srv, http.MethodPost, "/api/reallocation/decisions/"+id+"/review", ReviewRequest{Approved: false, ReviewedBy: "ops"}, &dec)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, model.DecisionFailed, dec.Status)
	assert.Equal(t, "ops", dec.ReviewedBy)

	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/reallocation/decisions/review", nil, &review))
	assert.Empty(t, review)
}

func TestExecute(t *testing.T) {
	failing := rankFunc(func(context.Context, []model.ReallocationRequest) model.Verdict {
		return model.Verdict{Reasoning: "unsure", NeedsManualIntervention: true}
	})
	srv, _ := newServer(t, failing)
	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/api/reallocation/requests", request("F001", 0, 30, 60), nil))
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/api/reallocation/batch", nil, nil))
	var review []model.Decision
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/reallocation/decisions/review", nil, &review))
	require.Len(t, review, 1)

	body := allocation.ManualExecution{BusID: "B003", FromRouteID: "R002", ToRouteID: "R001", Reason: "crowding"}
	var dec model.Decision
	code := do(t, srv, http.MethodPost, "/api/reallocation/decisions/"+review[0].ID+"/execute", body, &dec)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, model.DecisionCompleted, dec.Status)
	assert.Equal(t, model.ExecutedByStaff, dec.ExecutedBy)
	assert.Equal(t, "B003", dec.BusID)

	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodPost, "/api/reallocation/decisions/DEC-x/execute", body, nil))
	body.Reason = ""
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/api/reallocation/decisions/"+review[0].ID+"/execute", body, nil))
}

func TestAutonomousToggleAndStatus(t *testing.T) {
	srv, _ := newServer(t, oracle.RuleRanker{})

	var tr ToggleResponse
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/api/reallocation/autonomous/start", nil, &tr))
	assert.True(t, tr.Active)
	assert.True(t, tr.Changed)
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/api/reallocation/autonomous/start", nil, &tr))
	assert.False(t, tr.Changed)

	var st allocation.Status
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/reallocation/status", nil, &st))
	assert.True(t, st.Active)
	assert.Equal(t, 1, st.AllocationLimitK)
	assert.Equal(t, 30, st.RequestExpiryMinutes)

	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/api/reallocation/autonomous/stop", nil, &tr))
	assert.False(t, tr.Active)
	assert.True(t, tr.Changed)
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/reallocation/status", nil, &st))
	assert.False(t, st.Active)
}

func TestStartAfterCloseReportsInactive(t *testing.T) {
	srv, e := newServer(t, oracle.RuleRanker{})
	require.NoError(t, e.Close())

	var tr ToggleResponse
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/api/reallocation/autonomous/start", nil, &tr))
	assert.False(t, tr.Active)
	assert.False(t, tr.Changed)
}

func TestUpdateConfig(t *testing.T) {
	srv, _ := newServer(t, oracle.RuleRanker{})

	var tun allocation.Tunables
	code := do(t, srv, http.MethodPut, "/api/reallocation/config", map[string]int{"allocationLimitK": 3, "processingThreshold": 2}, &tun)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, allocation.Tunables{AllocationLimitK: 3, RequestExpiryMinutes: 30, ProcessingThreshold: 2}, tun)

	code = do(t, srv, http.MethodPut, "/api/reallocation/config", map[string]int{"allocationLimitK": 5, "requestExpiryMinutes": 0}, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	var st allocation.Status
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/reallocation/status", nil, &st))
	assert.Equal(t, 3, st.AllocationLimitK)
	assert.Equal(t, 30, st.RequestExpiryMinutes)
}

func TestDecide(t *testing.T) {
	srv, _ := newServer(t, oracle.RuleRanker{})
	reqs := []map[string]any{request("F002", 1, 8, 20), request("F002", 0, 15, 35)}
	reqs[0]["id"] = "A"
	reqs[1]["id"] = "B"

	var out DecideResponse
	code := do(t, srv, http.MethodPost, "/api/reallocation/decide", map[string]any{"requests": reqs}, &out)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, out.NeedsReview)
	assert.Equal(t, []string{"B", "A"}, out.Prioritized)
	assert.Equal(t, out.Decision.ID, out.DecisionID)

	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/api/reallocation/decide", map[string]any{"requests": []any{}}, nil))
}

func TestSimulate(t *testing.T) {
	srv, e := newServer(t, oracle.RuleRanker{})
	var out SubmitResponse
	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/api/reallocation/simulate", nil, &out))
	require.NotNil(t, out.Request)
	got, ok := e.Request(out.RequestID)
	require.True(t, ok)
	assert.Equal(t, out.Request.StopID, got.StopID)
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newServer(t, oracle.RuleRanker{})
	var health map[string]any
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/health", nil, &health))
	assert.Equal(t, "ok", health["status"])

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		fmt.Errorf("%w: k", allocation.ErrInvalidConfig):  http.StatusBadRequest,
		fmt.Errorf("%w: x", allocation.ErrInvalidRequest): http.StatusBadRequest,
		fmt.Errorf("DEC-1: %w", allocation.ErrNotFound):   http.StatusNotFound,
		errors.New("disk full"):                            http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, StatusFor(err), err.Error())
	}
}
