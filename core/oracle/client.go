package oracle

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kilianp07/busalloc/core/logger"
	"github.com/kilianp07/busalloc/core/model"
)

// DefaultTimeout bounds a single oracle call.
const DefaultTimeout = 30 * time.Second

// Client is a Ranker backed by a text Generator.
type Client struct {
	gen     Generator
	timeout time.Duration
	log     logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-call timeout. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.log = logger.OrNop(l) }
}

// NewClient wraps gen.
func NewClient(gen Generator, opts ...Option) *Client {
	c := &Client{gen: gen, timeout: DefaultTimeout, log: logger.NopLogger{}}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Rank asks the generator to order reqs. Failures yield a manual review verdict.
func (c *Client) Rank(ctx context.Context, reqs []model.ReallocationRequest) model.Verdict {
	if err := CheckSameStop(reqs); err != nil {
		return Failure(err.Error())
	}
	payload, err := json.MarshalIndent(reqs, "", "  ")
	if err != nil {
		c.log.Errorf("oracle: marshal requests: %v", err)
		return Failure(ReasonTechnicalError)
	}

	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	start := time.Now()
	reply, err := c.gen.Generate(cctx, SystemPrompt, string(payload))
	if err == nil && cctx.Err() != nil {
		err = cctx.Err()
	}
	if err != nil {
		c.log.Warnf("oracle: generate for stop %s failed after %s: %v", reqs[0].StopID, time.Since(start), err)
		return Failure(ReasonTechnicalError)
	}

	raw := ExtractJSON(reply)
	if raw == "" {
		c.log.Warnf("oracle: no JSON object in reply for stop %s", reqs[0].StopID)
		return Failure(ReasonUnparsable)
	}
	var v model.Verdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		c.log.Warnf("oracle: decode reply for stop %s: %v", reqs[0].StopID, err)
		return Failure(ReasonUnparsable)
	}
	return normalize(v, reqs)
}
