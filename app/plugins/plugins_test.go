package plugins

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/busalloc/core/decisionlog"
	"github.com/kilianp07/busalloc/core/factory"
	"github.com/kilianp07/busalloc/core/model"
	"github.com/kilianp07/busalloc/core/oracle"
)

func TestBuiltinDecisionLogs(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]factory.ModuleConfig{
		"memory": {Type: "memory"},
		"jsonl":  {Type: "jsonl", Conf: map[string]any{"path": filepath.Join(dir, "d.jsonl"), "max_size_mb": 1}},
		"sqlite": {Type: "sqlite", Conf: map[string]any{"path": filepath.Join(dir, "d.db")}},
	}
	for name, mc := range cases {
		t.Run(name, func(t *testing.T) {
			s, err := NewDecisionLog(mc)
			require.NoError(t, err)
			defer func() { _ = s.Close() }()

			ctx := context.Background()
			require.NoError(t, s.Append(ctx, model.Decision{ID: "DEC-1", Status: model.DecisionManualReview, CreatedAt: time.Now()}))
			got, err := s.Query(ctx, decisionlog.Query{Status: model.DecisionManualReview})
			require.NoError(t, err)
			assert.Len(t, got, 1)
		})
	}
}

func TestDecisionLogErrors(t *testing.T) {
	_, err := NewDecisionLog(factory.ModuleConfig{Type: "cassandra"})
	assert.ErrorContains(t, err, "unknown module type")
	_, err = NewDecisionLog(factory.ModuleConfig{Type: "postgres"})
	assert.ErrorContains(t, err, "url is required")
	assert.Equal(t, []string{"jsonl", "memory", "postgres", "sqlite"}, DecisionLogs.Types())
}

func TestBuiltinRankers(t *testing.T) {
	r, err := NewRanker(factory.ModuleConfig{Type: "rule"}, RankerOptions{})
	require.NoError(t, err)
	assert.IsType(t, oracle.RuleRanker{}, r)

	r, err = NewRanker(factory.ModuleConfig{Type: "llm", Conf: map[string]any{
		"model":    "gpt-4o-mini",
		"base_url": "http://127.0.0.1:1/v1",
		"api_key":  "test",
	}}, RankerOptions{Timeout: time.Second})
	require.NoError(t, err)
	assert.IsType(t, &oracle.Client{}, r)

	_, err = NewRanker(factory.ModuleConfig{Type: "llm"}, RankerOptions{})
	assert.Error(t, err)
	_, err = NewRanker(factory.ModuleConfig{Type: "crystal-ball"}, RankerOptions{})
	assert.ErrorContains(t, err, "unknown module type")
}
