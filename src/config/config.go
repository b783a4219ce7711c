package config

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/leeeeey/TaskCenter/src/alert"
	"github.com/leeeeey/TaskCenter/src/database"
	"github.com/leeeeey/TaskCenter/src/lock"
	"github.com/leeeeey/TaskCenter/src/logging"
)

// Build info - set via -ldflags at build time
var (
	Version   = "dev"
	CommitID  = "unknown"
	BuildDate = "unknown"
)

// Config is the complete application configuration.
type Config struct {
	mu         sync.RWMutex
	configPath string

	Scheduler SchedulerConfig  `yaml:"scheduler"`
	Database  database.Config  `yaml:"database"`
	Redis     lock.Config      `yaml:"redis"`
	Logging   logging.Config   `yaml:"logging"`
	Alert     alert.Config     `yaml:"alert"`
}

// SchedulerConfig tunes the tick.
type SchedulerConfig struct {
	TaskNum      int `yaml:"task_num"`      // parallel batches per tick; 0 = CPU count
	HorizonHours int `yaml:"horizon_hours"` // generation lookahead (default: 3)
	RetrySleep   int `yaml:"retry_sleep"`   // seconds between attempts (default: 5)
	LockTTL      int `yaml:"lock_ttl"`      // tick lease TTL in seconds (default: 300)
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			TaskNum:      0,
			HorizonHours: 3,
			RetrySleep:   5,
			LockTTL:      300,
		},
		Database: *database.DefaultConfig(),
		Logging: logging.Config{
			Level:  "info",
			Stdout: true,
		},
	}
}

// Load reads the config file at path, overlaying defaults. A missing path
// returns defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.configPath = path
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.configPath = path
	return cfg, nil
}

// SetPath sets the config file path for reload.
func (c *Config) SetPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.configPath = path
}

// GetPath returns the config file path.
func (c *Config) GetPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.configPath
}

// Reload re-reads the configuration from the original file. Database and
// redis settings require a restart and are preserved.
func (c *Config) Reload() error {
	c.mu.RLock()
	path := c.configPath
	c.mu.RUnlock()

	if path == "" {
		return fmt.Errorf("config path not set, cannot reload")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var newCfg Config
	if err := yaml.Unmarshal(data, &newCfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.Scheduler = newCfg.Scheduler
	c.Logging = newCfg.Logging
	c.Alert = newCfg.Alert
	return nil
}

// EffectiveTaskNum resolves the per-tick parallelism: configured value, or
// the host's CPU count.
func (c *Config) EffectiveTaskNum() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Scheduler.TaskNum > 0 {
		return c.Scheduler.TaskNum
	}
	return runtime.NumCPU()
}

// Validate rejects configurations the scheduler cannot run with.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.Scheduler.HorizonHours < 0 {
		return fmt.Errorf("scheduler.horizon_hours must not be negative")
	}
	if c.Scheduler.TaskNum < 0 {
		return fmt.Errorf("scheduler.task_num must not be negative")
	}
	if c.Database.Driver == "" && c.Database.DSN == "" {
		return fmt.Errorf("database.driver or database.dsn must be set")
	}
	return nil
}
