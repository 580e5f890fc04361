package cmd

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/busalloc/api/reallocation"
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

func TestHTTPIntake(t *testing.T) {
	bus := eventbus.New[events.Event]()
	defer bus.Close()
	e, err := allocation.NewEngine(allocation.DefaultConfig(), requests.NewMemoryStore(), decisionlog.NewMemoryStore(), fleet.NewDefaultRegistry(), oracle.RuleRanker{}, bus, nil)
	require.NoError(t, err)
	defer func() { _ = e.Close() }()
	srv := httptest.NewServer(reallocation.NewRouter(e, nil, reallocation.Options{Gatherer: prometheus.NewRegistry()}))
	defer srv.Close()

	runner, err := simulator.NewRunner(simulator.NewGenerator(3), newHTTPIntake(srv.URL+"/"), simulator.MinFrequency, nil)
	require.NoError(t, err)
	ids, err := runner.Bulk(4)
	require.NoError(t, err)
	assert.Len(t, ids, 4)
	assert.Len(t, e.ActiveRequests(), 4)

	_, err = newHTTPIntake(srv.URL).Submit(model.ReallocationRequest{StopID: "F001"})
	assert.ErrorContains(t, err, "400")
}

func TestConfigValidateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  allocation_limit_k: 2\n"), 0o644))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"config", "validate", "--config", path})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		cfgPath = defaultConfigPath
	})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "is valid")
	assert.Contains(t, out.String(), `"allocation_limit_k": 2`)

	require.NoError(t, os.WriteFile(path, []byte("engine:\n  allocation_limit_k: 0\n"), 0o644))
	rootCmd.SetArgs([]string{"config", "validate", "--config", path})
	assert.Error(t, rootCmd.Execute())
}

func TestFleetLs(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"fleet", "ls", "--config", filepath.Join(t.TempDir(), "absent.yaml")})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		cfgPath = defaultConfigPath
	})
	// an explicitly named file must exist
	assert.Error(t, rootCmd.Execute())

	cfgPath = defaultConfigPath
	out.Reset()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: info\n"), 0o644))
	rootCmd.SetArgs([]string{"fleet", "ls", "--config", path})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "R001")
	assert.Contains(t, out.String(), "B003")
}

func TestDecisionsExport(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "d.db")
	store, err := decisionlog.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Append(context.Background(), model.Decision{ID: "DEC-1", StopID: "F001", Status: model.DecisionCompleted, CreatedAt: time.Now()}))
	require.NoError(t, store.Append(context.Background(), model.Decision{ID: "DEC-2", StopID: "F004", Status: model.DecisionManualReview, CreatedAt: time.Now()}))
	require.NoError(t, store.Close())

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("decision_log:\n  type: sqlite\n  conf:\n    path: "+dbPath+"\n"), 0o644))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"decisions", "export", "--config", path, "--status", "manual_review"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		cfgPath = defaultConfigPath
		exportStatus = ""
	})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "decision_id,timestamp")
	assert.Contains(t, out.String(), "DEC-2")
	assert.NotContains(t, out.String(), "DEC-1")
}
