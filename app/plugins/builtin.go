package plugins

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/busalloc/core/decisionlog"
	"github.com/kilianp07/busalloc/core/factory"
	"github.com/kilianp07/busalloc/core/oracle"
	infraoracle "github.com/kilianp07/busalloc/infra/oracle"
	"github.com/kilianp07/busalloc/infra/postgres"
)

// FileLogConfig configures the file backed decision logs.
type FileLogConfig struct {
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// PostgresLogConfig configures the PostgreSQL decision log.
type PostgresLogConfig struct {
	URL            string        `json:"url"`
	ConnectTimeout time.Duration `json:"connect_timeout"`
}

func init() {
	_ = RegisterDecisionLog("memory", func(map[string]any) (decisionlog.Store, error) {
		return decisionlog.NewMemoryStore(), nil
	})
	_ = RegisterDecisionLog("jsonl", func(conf map[string]any) (decisionlog.Store, error) {
		c := FileLogConfig{Path: "decisions.jsonl"}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return decisionlog.NewJSONLStore(c.Path, c.MaxSizeMB, c.MaxBackups, c.MaxAgeDays)
	})
	_ = RegisterDecisionLog("sqlite", func(conf map[string]any) (decisionlog.Store, error) {
		c := FileLogConfig{Path: "decisions.db"}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return decisionlog.NewSQLiteStore(c.Path)
	})
	_ = RegisterDecisionLog("postgres", func(conf map[string]any) (decisionlog.Store, error) {
		c := PostgresLogConfig{ConnectTimeout: 10 * time.Second}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.URL == "" {
			return nil, errors.New("url is required")
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.ConnectTimeout)
		defer cancel()
		return postgres.NewStore(ctx, c.URL)
	})

	RegisterRanker("rule", func(map[string]any, RankerOptions) (oracle.Ranker, error) {
		return oracle.RuleRanker{}, nil
	})
	RegisterRanker("llm", func(conf map[string]any, opts RankerOptions) (oracle.Ranker, error) {
		c := infraoracle.Config{Retry: infraoracle.DefaultRetryConfig()}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		gen, err := infraoracle.NewChatGenerator(c)
		if err != nil {
			return nil, err
		}
		return oracle.NewClient(gen, oracle.WithTimeout(opts.Timeout), oracle.WithLogger(opts.Log)), nil
	})
}
