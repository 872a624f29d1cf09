package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	PlanPath   string // hcl plan file or directory
	StateDir   string // run-state and history location
	ResultsDir string // overrides the plan's results_dir when set

	RunID  string   // explicit run id for a fresh run; empty means generated
	Resume bool     // pick up the current run's checkpoint
	Bypass []string // optional phases to record as skipped

	AgentToken string // bearer token for workload agents; empty disables auth

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
}

// NewConfig validates a Config and applies defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.PlanPath == "" {
		return nil, errors.New("PlanPath is a required configuration field and cannot be empty")
	}
	if cfg.StateDir == "" {
		cfg.StateDir = "state"
	}
	return &cfg, nil
}
