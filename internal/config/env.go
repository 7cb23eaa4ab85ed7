package config

import (
	"os"
	"strconv"
	"strings"
)

// FromEnv overlays PAGEQ_* environment variables onto cfg. Malformed numeric
// values are ignored.
func FromEnv(cfg *Config) {
	if v := os.Getenv("PAGEQ_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("PAGEQ_FSYNC"); v != "" {
		cfg.Fsync = v
	}
	if v := os.Getenv("PAGEQ_FSYNC_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.FsyncIntervalMs = n
		}
	}
	if v := os.Getenv("PAGEQ_MAX_MESSAGE_LEN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxMessageLen = n
		}
	}
	if v := os.Getenv("PAGEQ_TOTAL_PAGES_LIMIT"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.TotalPagesLimit = uint32(n)
		}
	}
	if v := os.Getenv("PAGEQ_PAGE_POLICY"); v != "" {
		cfg.PagePolicy = v
	}
	if v := os.Getenv("PAGEQ_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PageSize = n
		}
	}
	if v := os.Getenv("PAGEQ_SERVICE_WEIGHT"); v != "" {
		if w, ok := ParseWeight(v); ok {
			cfg.ServiceWeight = w
		}
	}
	if v := os.Getenv("PAGEQ_MAX_MESSAGE_WEIGHT"); v != "" {
		if w, ok := ParseWeight(v); ok {
			cfg.MaxMessageWeight = w
		}
	}
	if v, ok := os.LookupEnv("PAGEQ_SCHEDULE_FILTER"); ok {
		cfg.ScheduleFilter = v
	}
	if v := os.Getenv("PAGEQ_PEEK_BATCH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PeekBatch = n
		}
	}
	if v := os.Getenv("PAGEQ_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("PAGEQ_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// ParseWeight reads "n" (both components) or "refTime,proofSize".
func ParseWeight(s string) (WeightConfig, bool) {
	parts := strings.Split(s, ",")
	switch len(parts) {
	case 1:
		n, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return WeightConfig{}, false
		}
		return WeightConfig{RefTime: n, ProofSize: n}, true
	case 2:
		r, err1 := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
		p, err2 := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 64)
		if err1 != nil || err2 != nil {
			return WeightConfig{}, false
		}
		return WeightConfig{RefTime: r, ProofSize: p}, true
	default:
		return WeightConfig{}, false
	}
}
