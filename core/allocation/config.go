package allocation

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidConfig wraps every configuration validation failure.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrInvalidRequest wraps every submission validation failure.
	ErrInvalidRequest = errors.New("invalid request")
)

// Resolution selects how the requests of an auto-approved group are
// resolved after execution.
type Resolution string

const (
	// ResolutionGroup marks the whole group completed when at least one bus
	// was moved and failed otherwise.
	ResolutionGroup Resolution = "group"
	// ResolutionRanked completes only the requests that received a bus and
	// returns the others to pending.
	ResolutionRanked Resolution = "ranked"
)

const (
	DefaultAllocationLimitK      = 1
	DefaultRequestExpiryMinutes  = 30
	DefaultProcessingThreshold   = 5
	DefaultBatchIntervalSeconds  = 300
	DefaultExpiryIntervalSeconds = 60
	DefaultOracleTimeoutSeconds  = 30
)

// Config holds the engine settings read from the configuration file.
type Config struct {
	AllocationLimitK      int        `json:"allocation_limit_k" koanf:"allocation_limit_k"`
	RequestExpiryMinutes  int        `json:"request_expiry_minutes" koanf:"request_expiry_minutes"`
	ProcessingThreshold   int        `json:"processing_threshold" koanf:"processing_threshold"`
	BatchIntervalSeconds  int        `json:"batch_interval_seconds" koanf:"batch_interval_seconds"`
	ExpiryIntervalSeconds int        `json:"expiry_interval_seconds" koanf:"expiry_interval_seconds"`
	OracleTimeoutSeconds  int        `json:"oracle_timeout_seconds" koanf:"oracle_timeout_seconds"`
	Resolution            Resolution `json:"resolution" koanf:"resolution"`
	// Autonomous starts autonomous mode together with the engine.
	Autonomous bool `json:"autonomous" koanf:"autonomous"`
}

// DefaultConfig returns the reference settings.
func DefaultConfig() Config {
	return Config{
		AllocationLimitK:      DefaultAllocationLimitK,
		RequestExpiryMinutes:  DefaultRequestExpiryMinutes,
		ProcessingThreshold:   DefaultProcessingThreshold,
		BatchIntervalSeconds:  DefaultBatchIntervalSeconds,
		ExpiryIntervalSeconds: DefaultExpiryIntervalSeconds,
		OracleTimeoutSeconds:  DefaultOracleTimeoutSeconds,
		Resolution:            ResolutionGroup,
	}
}

// ApplyDefaults fills zero values with defaults.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.AllocationLimitK == 0 {
		c.AllocationLimitK = d.AllocationLimitK
	}
	if c.RequestExpiryMinutes == 0 {
		c.RequestExpiryMinutes = d.RequestExpiryMinutes
	}
	if c.ProcessingThreshold == 0 {
		c.ProcessingThreshold = d.ProcessingThreshold
	}
	if c.BatchIntervalSeconds == 0 {
		c.BatchIntervalSeconds = d.BatchIntervalSeconds
	}
	if c.ExpiryIntervalSeconds == 0 {
		c.ExpiryIntervalSeconds = d.ExpiryIntervalSeconds
	}
	if c.OracleTimeoutSeconds == 0 {
		c.OracleTimeoutSeconds = d.OracleTimeoutSeconds
	}
	if c.Resolution == "" {
		c.Resolution = d.Resolution
	}
}

// Validate checks every field.
func (c Config) Validate() error {
	if err := c.Tunables().Validate(); err != nil {
		return err
	}
	if c.BatchIntervalSeconds < 1 {
		return fmt.Errorf("%w: batch interval must be at least 1 second", ErrInvalidConfig)
	}
	if c.ExpiryIntervalSeconds < 1 {
		return fmt.Errorf("%w: expiry interval must be at least 1 second", ErrInvalidConfig)
	}
	if c.OracleTimeoutSeconds < 1 {
		return fmt.Errorf("%w: oracle timeout must be at least 1 second", ErrInvalidConfig)
	}
	switch c.Resolution {
	case ResolutionGroup, ResolutionRanked:
	default:
		return fmt.Errorf("%w: unknown resolution %q", ErrInvalidConfig, c.Resolution)
	}
	return nil
}

// Tunables extracts the runtime adjustable part.
func (c Config) Tunables() Tunables {
	return Tunables{
		AllocationLimitK:     c.AllocationLimitK,
		RequestExpiryMinutes: c.RequestExpiryMinutes,
		ProcessingThreshold:  c.ProcessingThreshold,
	}
}

// OracleTimeout returns the per-call oracle timeout.
func (c Config) OracleTimeout() time.Duration {
	return time.Duration(c.OracleTimeoutSeconds) * time.Second
}

// Tunables are the settings operators may change while the engine runs. A
// batch pass reads them once when it starts.
type Tunables struct {
	AllocationLimitK     int `json:"allocationLimitK"`
	RequestExpiryMinutes int `json:"requestExpiryMinutes"`
	ProcessingThreshold  int `json:"processingThreshold"`
}

// Validate requires every value to be at least 1.
func (t Tunables) Validate() error {
	if err := atLeastOne("allocation limit K", t.AllocationLimitK); err != nil {
		return err
	}
	if err := atLeastOne("request expiry minutes", t.RequestExpiryMinutes); err != nil {
		return err
	}
	return atLeastOne("processing threshold", t.ProcessingThreshold)
}

// ConfigUpdate carries optional new tunable values.
type ConfigUpdate struct {
	AllocationLimitK     *int `json:"allocationLimitK,omitempty"`
	RequestExpiryMinutes *int `json:"requestExpiryMinutes,omitempty"`
	ProcessingThreshold  *int `json:"processingThreshold,omitempty"`
}

// Apply returns t with the set fields of u replaced.
func (u ConfigUpdate) Apply(t Tunables) Tunables {
	if u.AllocationLimitK != nil {
		t.AllocationLimitK = *u.AllocationLimitK
	}
	if u.RequestExpiryMinutes != nil {
		t.RequestExpiryMinutes = *u.RequestExpiryMinutes
	}
	if u.ProcessingThreshold != nil {
		t.ProcessingThreshold = *u.ProcessingThreshold
	}
	return t
}

func atLeastOne(name string, v int) error {
	if v < 1 {
		return fmt.Errorf("%w: %s must be at least 1, got %d", ErrInvalidConfig, name, v)
	}
	return nil
}
