// YAML config loader with CUE validation integration
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration read from and written to YAML as a Go duration string.
type Duration struct {
	time.Duration
}

// D wraps d as a Duration.
func D(d time.Duration) Duration { return Duration{d} }

// UnmarshalYAML parses strings such as "600ms" or "5m".
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = v
	return nil
}

// MarshalYAML renders the duration in its string form.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// API configures the upstream endpoint and the request broker.
type API struct {
	BaseURL        string   `yaml:"base_url"`
	TokenEnv       string   `yaml:"token_env"`
	MinInterval    Duration `yaml:"min_interval"`
	BackoffFloor   Duration `yaml:"backoff_floor"`
	BackoffCap     Duration `yaml:"backoff_cap"`
	MaxRateRetries int      `yaml:"max_rate_retries"`
	BurstPerSecond float64  `yaml:"burst_per_second"`
	Timeout        Duration `yaml:"timeout"`
}

// Storage configures the persisted stores and their freshness windows.
type Storage struct {
	Dir           string   `yaml:"dir"`
	ShipStaleness Duration `yaml:"ship_staleness"`
	ShipRetention Duration `yaml:"ship_retention"`
	WaypointTTL   Duration `yaml:"waypoint_ttl"`
	SurveyTTL     Duration `yaml:"survey_ttl"`
}

// Coordinator configures the unit-level assignment loop.
type Coordinator struct {
	Tick                  Duration `yaml:"tick"`
	DiscoverEvery         int      `yaml:"discover_every"`
	RefuelThreshold       float64  `yaml:"refuel_threshold"`
	CargoFullRatio        float64  `yaml:"cargo_full_ratio"`
	DeliveryMaterialRatio float64  `yaml:"delivery_material_ratio"`
	EngageBuffer          int      `yaml:"engage_buffer"`
}

// Scheduler configures the goal-level priority queue.
type Scheduler struct {
	Interval  Duration `yaml:"interval"`
	MaxActive int      `yaml:"max_active"`
	InboxDir  string   `yaml:"inbox_dir"`
}

// Navigation configures the fuel planner.
type Navigation struct {
	FuelOverhead int `yaml:"fuel_overhead"`
	SafetyMargin int `yaml:"safety_margin"`
}

// History configures the SQLite outcome ledger.
type History struct {
	Path string `yaml:"path"`
}

// Admin configures the status HTTP server.
type Admin struct {
	Addr string `yaml:"addr"`
}

// Log configures the process logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the root fleetops configuration.
type Config struct {
	API         API         `yaml:"api"`
	Storage     Storage     `yaml:"storage"`
	Coordinator Coordinator `yaml:"coordinator"`
	Scheduler   Scheduler   `yaml:"scheduler"`
	Navigation  Navigation  `yaml:"navigation"`
	History     History     `yaml:"history"`
	Admin       Admin       `yaml:"admin"`
	Log         Log         `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		API: API{
			BaseURL:        "https://api.spacetraders.io/v2",
			TokenEnv:       "SPACETRADERS_TOKEN",
			MinInterval:    D(600 * time.Millisecond),
			BackoffFloor:   D(time.Second),
			BackoffCap:     D(60 * time.Second),
			MaxRateRetries: 5,
			Timeout:        D(30 * time.Second),
		},
		Storage: Storage{
			Dir:           "storage",
			ShipStaleness: D(5 * time.Minute),
			ShipRetention: D(24 * time.Hour),
			WaypointTTL:   D(12 * time.Hour),
			SurveyTTL:     D(30 * time.Minute),
		},
		Coordinator: Coordinator{
			Tick:                  D(10 * time.Second),
			DiscoverEvery:         1,
			RefuelThreshold:       0.2,
			CargoFullRatio:        0.9,
			DeliveryMaterialRatio: 0.75,
			EngageBuffer:          64,
		},
		Scheduler: Scheduler{
			Interval:  D(5 * time.Second),
			MaxActive: 3,
			InboxDir:  "goals/inbox",
		},
		Navigation: Navigation{FuelOverhead: 2, SafetyMargin: 10},
		History:    History{Path: "storage/history.db"},
		Admin:      Admin{Addr: ":8080"},
		Log:        Log{Level: "info", Format: "text"},
	}
}

// Load reads configPath on top of the defaults after validating it against
// the CUE schema at cueSchemaPath. An empty cueSchemaPath skips schema checks.
func Load(configPath, cueSchemaPath string) (*Config, error) {
	if cueSchemaPath != "" {
		if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("FLEETOPS_TICK"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("FLEETOPS_TICK: %w", err)
		}
		c.Coordinator.Tick = D(d)
	}
	return nil
}

// Token returns the bearer credential from the configured environment variable.
func (c *Config) Token() string {
	return os.Getenv(c.API.TokenEnv)
}

// Check performs the semantic checks the schema cannot express.
func (c *Config) Check() error {
	switch {
	case c.API.MinInterval.Duration <= 0:
		return fmt.Errorf("api.min_interval must be positive")
	case c.API.BackoffCap.Duration < c.API.BackoffFloor.Duration:
		return fmt.Errorf("api.backoff_cap %s is below backoff_floor %s", c.API.BackoffCap, c.API.BackoffFloor)
	case c.Coordinator.Tick.Duration <= 0:
		return fmt.Errorf("coordinator.tick must be positive")
	case c.Scheduler.MaxActive < 1:
		return fmt.Errorf("scheduler.max_active must be at least 1")
	case c.Coordinator.RefuelThreshold < 0 || c.Coordinator.RefuelThreshold > 1:
		return fmt.Errorf("coordinator.refuel_threshold must be within [0,1]")
	}
	if c.Coordinator.DiscoverEvery < 1 {
		c.Coordinator.DiscoverEvery = 1
	}
	return nil
}
