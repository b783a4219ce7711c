package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/leeeeey/TaskCenter/src/model"
)

// Environment is the resolved deployment environment, fixed at process
// start. Only definitions whose online flag matches Type are generated or
// dispatched.
type Environment struct {
	Name string // "online", "pre" or "test"
	Type model.EnvType
}

// ResolveEnv maps the environment variable to an environment: "online" is
// production, "pre" is a pre-release environment gated like test, anything
// else (including unset) is test.
func ResolveEnv() Environment {
	switch getEnv("TASKCENTER_ENV", "CLOUD_ENV_TYPE") {
	case "online":
		return Environment{Name: "online", Type: model.EnvProduction}
	case "pre":
		return Environment{Name: "pre", Type: model.EnvTest}
	default:
		return Environment{Name: "test", Type: model.EnvTest}
	}
}

// ApplyEnv overlays environment variables onto the configuration.
func (c *Config) ApplyEnv() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v := getEnv("TASKCENTER_DATABASE_DRIVER", "DATABASE_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := getEnv("TASKCENTER_DATABASE_URL", "DATABASE_URL"); v != "" {
		c.Database.DSN = v
	}
	if v := getEnv("TASKCENTER_REDIS_ADDRESS", "REDIS_ADDRESS"); v != "" {
		c.Redis.Address = v
	}
	if v := getEnv("TASKCENTER_REDIS_PASSWORD", "REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := getEnv("TASKCENTER_LOG_LEVEL", "LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := getEnv("TASKCENTER_LOG_FILE", "LOG_FILE"); v != "" {
		c.Logging.File = v
	}
	if v := getEnv("TASKCENTER_ALERT_WEBHOOK", "ALERT_WEBHOOK"); v != "" {
		c.Alert.WebhookURL = v
	}
	if v := getEnv("TASKCENTER_TASK_NUM"); v != "" {
		c.Scheduler.TaskNum = ParseInt(v, c.Scheduler.TaskNum)
	}
}

// getEnv gets an environment variable with multiple fallback keys.
func getEnv(keys ...string) string {
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	return ""
}

// ParseInt parses an integer from string with default.
func ParseInt(val string, defaultVal int) int {
	if val == "" {
		return defaultVal
	}
	if i, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
		return i
	}
	return defaultVal
}

// ParseBool parses common boolean spellings with a default for empty or
// unknown values.
func ParseBool(val string, defaultVal bool) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaultVal
	}
}
