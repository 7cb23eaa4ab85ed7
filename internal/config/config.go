package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rzbill/pageq/internal/footprint"
	"github.com/rzbill/pageq/internal/mq"
	"github.com/rzbill/pageq/internal/service"
	"github.com/rzbill/pageq/internal/weight"
	logpkg "github.com/rzbill/pageq/pkg/log"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	DataDir         string `json:"dataDir"`
	Fsync           string `json:"fsync"` // always|interval|never
	FsyncIntervalMs int    `json:"fsyncIntervalMs"`

	MaxMessageLen   int    `json:"maxMessageLen"`
	TotalPagesLimit uint32 `json:"totalPagesLimit"`
	PagePolicy      string `json:"pagePolicy"` // one-per-page|packed
	PageSize        int    `json:"pageSize"`

	ServiceWeight    WeightConfig `json:"serviceWeight"`
	// MaxMessageWeight is the largest weight a message may need to be
	// serviced in a pass; heavier messages are parked. It must not exceed
	// ServiceWeight. Zero means ServiceWeight.
	MaxMessageWeight WeightConfig `json:"maxMessageWeight"`
	ScheduleFilter   string       `json:"scheduleFilter"`
	PeekBatch        int          `json:"peekBatch"`

	Log logpkg.Config `json:"log"`
}

// WeightConfig is the JSON form of a two-component weight.
type WeightConfig struct {
	RefTime   uint64 `json:"refTime"`
	ProofSize uint64 `json:"proofSize"`
}

// Weight converts to weight.Weight.
func (w WeightConfig) Weight() weight.Weight { return weight.FromParts(w.RefTime, w.ProofSize) }

// Default returns built-in defaults.
func Default() Config {
	return Config{
		Fsync:           "always",
		FsyncIntervalMs: 5,
		MaxMessageLen:   mq.DefaultMaxMessageLen,
		TotalPagesLimit: 64,
		PagePolicy:      footprint.PolicyOnePerPage,
		PageSize:        4096,
		ServiceWeight:   WeightConfig{RefTime: 500, ProofSize: 500},
		PeekBatch:       service.DefaultPeekBatch,
		Log:             logpkg.Config{Level: "info", Format: "text"},
	}
}

// Load reads configuration from a JSON file. If path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return Config{}, errors.New("yaml config not supported; use JSON")
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return cfg, nil
}

// Validate rejects configurations the queue cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.MaxMessageLen <= 0 {
		errs = append(errs, fmt.Errorf("maxMessageLen must be positive, got %d", c.MaxMessageLen))
	}
	if c.TotalPagesLimit == 0 {
		errs = append(errs, errors.New("totalPagesLimit must be positive"))
	}
	if _, err := c.Policy(); err != nil {
		errs = append(errs, err)
	}
	if c.ServiceWeight.Weight().IsZero() {
		errs = append(errs, errors.New("serviceWeight must be non-zero"))
	}
	if mw := c.MaxMessageWeightValue(); !mw.AllLTE(c.ServiceWeight.Weight()) {
		errs = append(errs, fmt.Errorf("maxMessageWeight %s exceeds serviceWeight %s", mw, c.ServiceWeight.Weight()))
	}
	if c.PeekBatch < 0 {
		errs = append(errs, fmt.Errorf("peekBatch must not be negative, got %d", c.PeekBatch))
	}
	switch c.Fsync {
	case "", "always", "interval", "never":
	default:
		errs = append(errs, fmt.Errorf("fsync must be always|interval|never, got %q", c.Fsync))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Policy builds the configured page policy.
func (c Config) Policy() (footprint.PagePolicy, error) {
	return footprint.ParsePolicy(c.PagePolicy, c.PageSize)
}

// MaxMessageWeightValue returns MaxMessageWeight, defaulting to ServiceWeight.
func (c Config) MaxMessageWeightValue() weight.Weight {
	if w := c.MaxMessageWeight.Weight(); !w.IsZero() {
		return w
	}
	return c.ServiceWeight.Weight()
}
