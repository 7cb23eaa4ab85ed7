// Package config loads pageq configuration. Default() is the baseline, Load
// reads a JSON file over it and FromEnv overlays PAGEQ_* variables.
//
// Example:
//
//	cfg, err := config.Load("/etc/pageq.json")
//	if err != nil {
//	    return err
//	}
//	config.FromEnv(&cfg)
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
//	rt, err := runtime.Open(runtime.Options{Config: cfg})
package config
