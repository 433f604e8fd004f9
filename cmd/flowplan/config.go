package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rendis/flowplan/internal/builder"
	"github.com/rendis/flowplan/internal/scheduler"
)

// Config holds all flowplan configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath     string `json:"db_path"`
	LogLevel   string `json:"log_level"`
	LogFormat  string `json:"log_format"`
	ListenAddr string `json:"listen_addr"`
	BaseURL    string `json:"base_url"`
	Transport  string `json:"transport"`

	MaxLoopDepth        int  `json:"max_loop_depth"`
	MaxParallelBranches int  `json:"max_parallel_branches"`
	IncludeUnreachable  bool `json:"include_unreachable"`
	ValidateConfigs     bool `json:"validate_configs"`
	Cache               bool `json:"cache"`

	PruneCron     string `json:"prune_cron"`
	Retention     string `json:"retention"`
	VacuumCron    string `json:"vacuum_cron"`
	MermaidBinDir string `json:"mermaid_bin_dir"`
}

func defaultConfig() Config {
	sched := scheduler.DefaultConfig()
	return Config{
		DBPath:          filepath.Join(flowplanDir(), "plans.db"),
		LogLevel:        "info",
		LogFormat:       "text",
		ListenAddr:      ":4200",
		Transport:       "stdio",
		ValidateConfigs: true,
		Cache:           true,
		PruneCron:       sched.PruneCron,
		Retention:       sched.Retention.String(),
		VacuumCron:      sched.VacuumCron,
		MermaidBinDir:   filepath.Join(flowplanDir(), "bin"),
	}
}

// flowplanDir is $FLOWPLAN_HOME, or ~/.flowplan.
func flowplanDir() string {
	if v := os.Getenv("FLOWPLAN_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flowplan"
	}
	return filepath.Join(home, ".flowplan")
}

func settingsPath() string {
	return filepath.Join(flowplanDir(), "settings.json")
}

func loadConfig() (Config, error) {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", settingsPath(), err)
		}
	}

	// Layer 3: env vars override.
	envString := map[string]*string{
		"FLOWPLAN_DB_PATH":         &cfg.DBPath,
		"FLOWPLAN_LOG_LEVEL":       &cfg.LogLevel,
		"FLOWPLAN_LOG_FORMAT":      &cfg.LogFormat,
		"FLOWPLAN_LISTEN_ADDR":     &cfg.ListenAddr,
		"FLOWPLAN_BASE_URL":        &cfg.BaseURL,
		"FLOWPLAN_TRANSPORT":       &cfg.Transport,
		"FLOWPLAN_PRUNE_CRON":      &cfg.PruneCron,
		"FLOWPLAN_RETENTION":       &cfg.Retention,
		"FLOWPLAN_VACUUM_CRON":     &cfg.VacuumCron,
		"FLOWPLAN_MERMAID_BIN_DIR": &cfg.MermaidBinDir,
	}
	for key, dst := range envString {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	envInt := map[string]*int{
		"FLOWPLAN_MAX_LOOP_DEPTH":        &cfg.MaxLoopDepth,
		"FLOWPLAN_MAX_PARALLEL_BRANCHES": &cfg.MaxParallelBranches,
	}
	for key, dst := range envInt {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return cfg, fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	envBool := map[string]*bool{
		"FLOWPLAN_INCLUDE_UNREACHABLE": &cfg.IncludeUnreachable,
		"FLOWPLAN_VALIDATE_CONFIGS":    &cfg.ValidateConfigs,
		"FLOWPLAN_CACHE":               &cfg.Cache,
	}
	for key, dst := range envBool {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return cfg, fmt.Errorf("%s: %w", key, err)
			}
			*dst = b
		}
	}

	// Derive base_url from listen_addr if empty.
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost" + cfg.ListenAddr
	}

	return cfg, nil
}

// buildOptions translates the builder settings of cfg.
func (c Config) buildOptions() []builder.Option {
	opts := []builder.Option{
		builder.WithIncludeUnreachable(c.IncludeUnreachable),
		builder.WithValidateConfigs(c.ValidateConfigs),
	}
	if c.MaxLoopDepth > 0 {
		opts = append(opts, builder.WithMaxLoopDepth(c.MaxLoopDepth))
	}
	if c.MaxParallelBranches > 0 {
		opts = append(opts, builder.WithMaxParallelBranches(c.MaxParallelBranches))
	}
	return opts
}

// schedulerConfig translates the maintenance settings of cfg.
func (c Config) schedulerConfig() (scheduler.Config, error) {
	sc := scheduler.Config{PruneCron: c.PruneCron, VacuumCron: c.VacuumCron}
	if c.PruneCron != "" {
		d, err := time.ParseDuration(c.Retention)
		if err != nil {
			return sc, fmt.Errorf("retention %q: %w", c.Retention, err)
		}
		sc.Retention = d
	}
	return sc, nil
}
