package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/busalloc/config"
	"github.com/kilianp07/busalloc/core/factory"
	"github.com/kilianp07/busalloc/core/model"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Engine.ProcessingThreshold = 1
	cfg.DecisionLog = factory.ModuleConfig{Type: "sqlite", Conf: map[string]any{"path": filepath.Join(t.TempDir(), "d.db")}}
	cfg.Simulator.Enabled = true
	return &cfg
}

func TestServiceServesAPI(t *testing.T) {
	svc, err := New(testConfig(t))
	require.NoError(t, err)
	defer func() { _ = svc.Close() }()

	srv := httptest.NewServer(svc.Handler())
	defer srv.Close()

	body, _ := json.Marshal(map[string]any{
		"fermataId":                 "F001",
		"fermataName":               "Bole Road Station",
		"numBusesAllocated":         0,
		"averageWaitTimeMinutes":    22,
		"estimatedNumPeopleInQueue": 55,
	})
	resp, err := http.Post(srv.URL+"/api/reallocation/requests", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	rep := svc.Engine.RunBatch(context.Background())
	require.Len(t, rep.Groups, 1)

	ds, err := svc.Engine.Decisions(context.Background())
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, model.DecisionCompleted, ds[0].Status)

	resp, err = http.Post(srv.URL+"/api/reallocation/simulate", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestServiceRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  allocation_limit_k: 1\n"), 0o644))

	svc, err := New(cfg)
	require.NoError(t, err)
	defer func() { _ = svc.Close() }()
	svc.WatchConfig(path)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  allocation_limit_k: 3\n"), 0o644))
	assert.Eventually(t, func() bool { return svc.Engine.Tunables().AllocationLimitK == 3 }, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestNewRejectsBadModules(t *testing.T) {
	cfg := testConfig(t)
	cfg.DecisionLog = factory.ModuleConfig{Type: "nope"}
	_, err := New(cfg)
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.Oracle = factory.ModuleConfig{Type: "nope"}
	_, err = New(cfg)
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.Fleet.SeedPath = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = New(cfg)
	assert.Error(t, err)
}
