// Package config handles configuration loading for swarmd.
// It supports XDG config paths, project-level overrides, and SWARMD_*
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the swarmd coordinator.
type Config struct {
	Limits     LimitsConfig     `mapstructure:"limits"`
	Scheduling SchedulingConfig `mapstructure:"scheduling"`
	Health     HealthConfig     `mapstructure:"health"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Breaker    BreakerConfig    `mapstructure:"breaker"`
	Balancer   BalancerConfig   `mapstructure:"balancer"`
	Executor   ExecutorConfig   `mapstructure:"executor"`
	Store      StoreConfig      `mapstructure:"store"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// LimitsConfig caps registered agents and admitted tasks.
type LimitsConfig struct {
	MaxAgents          int `mapstructure:"max_agents"`
	MaxTasks           int `mapstructure:"max_tasks"`
	MaxConcurrentTasks int `mapstructure:"max_concurrent_tasks"`
}

// SchedulingConfig drives the scheduling loop.
type SchedulingConfig struct {
	Strategy    string        `mapstructure:"strategy"`
	Interval    time.Duration `mapstructure:"interval"`
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
}

// HealthConfig drives the health monitor loop.
type HealthConfig struct {
	Interval         time.Duration `mapstructure:"interval"`
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat_timeout"`
	Grace            time.Duration `mapstructure:"grace"`
}

// RetryConfig controls transient failure retries.
type RetryConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	Base       time.Duration `mapstructure:"base"`
	Multiplier float64       `mapstructure:"multiplier"`
	MaxDelay   time.Duration `mapstructure:"max_delay"`
}

// BreakerConfig controls the per-agent circuit breaker.
type BreakerConfig struct {
	Threshold uint32        `mapstructure:"threshold"`
	Cooldown  time.Duration `mapstructure:"cooldown"`
}

// BalancerConfig controls work stealing.
type BalancerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	SpreadThreshold float64       `mapstructure:"spread_threshold"`
	AgentCapacity   float64       `mapstructure:"agent_capacity"`
}

// ExecutorConfig selects how tasks run.
type ExecutorConfig struct {
	Type    string        `mapstructure:"type"`
	Command string        `mapstructure:"command"`
	Args    []string      `mapstructure:"args"`
	Delay   time.Duration `mapstructure:"delay"`
}

// StoreConfig controls state snapshots.
type StoreConfig struct {
	Path      string        `mapstructure:"path"`
	Namespace string        `mapstructure:"namespace"`
	Interval  time.Duration `mapstructure:"interval"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// Load loads configuration from XDG paths, project overrides, and environment.
// Precedence (highest to lowest):
// 1. SWARMD_* environment variables
// 2. Project config (.swarmd.yaml in current directory or a parent)
// 3. User config (~/.config/swarmd/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	bindEnv(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file, creating parent
// directories as needed. The file holds every key so a later Load does not
// depend on defaults staying the same.
func Save(cfg *Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	v := viper.New()
	v.Set("limits.max_agents", cfg.Limits.MaxAgents)
	v.Set("limits.max_tasks", cfg.Limits.MaxTasks)
	v.Set("limits.max_concurrent_tasks", cfg.Limits.MaxConcurrentTasks)
	v.Set("scheduling.strategy", cfg.Scheduling.Strategy)
	v.Set("scheduling.interval", cfg.Scheduling.Interval.String())
	v.Set("scheduling.task_timeout", cfg.Scheduling.TaskTimeout.String())
	v.Set("health.interval", cfg.Health.Interval.String())
	v.Set("health.heartbeat_timeout", cfg.Health.HeartbeatTimeout.String())
	v.Set("health.grace", cfg.Health.Grace.String())
	v.Set("retry.max_retries", cfg.Retry.MaxRetries)
	v.Set("retry.base", cfg.Retry.Base.String())
	v.Set("retry.multiplier", cfg.Retry.Multiplier)
	v.Set("retry.max_delay", cfg.Retry.MaxDelay.String())
	v.Set("breaker.threshold", cfg.Breaker.Threshold)
	v.Set("breaker.cooldown", cfg.Breaker.Cooldown.String())
	v.Set("balancer.interval", cfg.Balancer.Interval.String())
	v.Set("balancer.spread_threshold", cfg.Balancer.SpreadThreshold)
	v.Set("balancer.agent_capacity", cfg.Balancer.AgentCapacity)
	v.Set("executor.type", cfg.Executor.Type)
	v.Set("executor.command", cfg.Executor.Command)
	v.Set("executor.args", cfg.Executor.Args)
	v.Set("executor.delay", cfg.Executor.Delay.String())
	v.Set("store.path", cfg.Store.Path)
	v.Set("store.namespace", cfg.Store.Namespace)
	v.Set("store.interval", cfg.Store.Interval.String())
	v.Set("logging.level", cfg.Logging.Level)
	v.Set("logging.format", cfg.Logging.Format)
	v.Set("logging.file", cfg.Logging.File)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// UserConfigPath returns the default user-level config file location.
func UserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// ProjectConfigPath returns the project config in the current directory,
// whether or not it exists yet.
func ProjectConfigPath() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ".swarmd.yaml"
	}
	return filepath.Join(cwd, ".swarmd.yaml")
}

// LoadFromPath loads configuration from a specific file.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	bindEnv(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the coordinator cannot run with.
func (c *Config) Validate() error {
	if c.Limits.MaxAgents < 1 {
		return fmt.Errorf("limits.max_agents must be at least 1, got %d", c.Limits.MaxAgents)
	}
	if c.Limits.MaxTasks < 1 {
		return fmt.Errorf("limits.max_tasks must be at least 1, got %d", c.Limits.MaxTasks)
	}
	if c.Limits.MaxConcurrentTasks < 1 {
		return fmt.Errorf("limits.max_concurrent_tasks must be at least 1, got %d", c.Limits.MaxConcurrentTasks)
	}
	if c.Scheduling.Interval <= 0 {
		return fmt.Errorf("scheduling.interval must be positive, got %s", c.Scheduling.Interval)
	}
	if c.Scheduling.TaskTimeout <= 0 {
		return fmt.Errorf("scheduling.task_timeout must be positive, got %s", c.Scheduling.TaskTimeout)
	}
	if c.Health.Interval <= 0 {
		return fmt.Errorf("health.interval must be positive, got %s", c.Health.Interval)
	}
	if c.Health.HeartbeatTimeout <= 0 {
		return fmt.Errorf("health.heartbeat_timeout must be positive, got %s", c.Health.HeartbeatTimeout)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative, got %d", c.Retry.MaxRetries)
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("retry.multiplier must be at least 1, got %g", c.Retry.Multiplier)
	}
	if c.Breaker.Threshold < 1 {
		return fmt.Errorf("breaker.threshold must be at least 1, got %d", c.Breaker.Threshold)
	}
	if c.Balancer.SpreadThreshold <= 0 || c.Balancer.SpreadThreshold > 1 {
		return fmt.Errorf("balancer.spread_threshold must be in (0, 1], got %g", c.Balancer.SpreadThreshold)
	}
	if c.Balancer.AgentCapacity <= 0 {
		return fmt.Errorf("balancer.agent_capacity must be positive, got %g", c.Balancer.AgentCapacity)
	}
	return nil
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("limits.max_agents", 50)
	v.SetDefault("limits.max_tasks", 1000)
	v.SetDefault("limits.max_concurrent_tasks", 10)

	v.SetDefault("scheduling.strategy", "capability-match")
	v.SetDefault("scheduling.interval", "500ms")
	v.SetDefault("scheduling.task_timeout", "5m")

	v.SetDefault("health.interval", "10s")
	v.SetDefault("health.heartbeat_timeout", "90s")
	v.SetDefault("health.grace", "30s")

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.base", "1s")
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.max_delay", "2m")

	v.SetDefault("breaker.threshold", 5)
	v.SetDefault("breaker.cooldown", "60s")

	v.SetDefault("balancer.interval", "5s")
	v.SetDefault("balancer.spread_threshold", 0.8)
	v.SetDefault("balancer.agent_capacity", 10.0)

	v.SetDefault("executor.type", "simulated")
	v.SetDefault("executor.command", "")
	v.SetDefault("executor.delay", "100ms")

	v.SetDefault("store.path", "")
	v.SetDefault("store.namespace", "swarmd")
	v.SetDefault("store.interval", "30s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")
}

// bindEnv wires SWARMD_* environment variables, e.g. SWARMD_SCHEDULING_STRATEGY.
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("SWARMD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// getUserConfigDir returns the XDG config directory for swarmd.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "swarmd")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "swarmd")
	}
	return filepath.Join(home, ".config", "swarmd")
}

// findProjectConfig searches for .swarmd.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".swarmd.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Limits: LimitsConfig{
			MaxAgents:          50,
			MaxTasks:           1000,
			MaxConcurrentTasks: 10,
		},
		Scheduling: SchedulingConfig{
			Strategy:    "capability-match",
			Interval:    500 * time.Millisecond,
			TaskTimeout: 5 * time.Minute,
		},
		Health: HealthConfig{
			Interval:         10 * time.Second,
			HeartbeatTimeout: 90 * time.Second,
			Grace:            30 * time.Second,
		},
		Retry: RetryConfig{
			MaxRetries: 3,
			Base:       time.Second,
			Multiplier: 2.0,
			MaxDelay:   2 * time.Minute,
		},
		Breaker: BreakerConfig{
			Threshold: 5,
			Cooldown:  60 * time.Second,
		},
		Balancer: BalancerConfig{
			Interval:        5 * time.Second,
			SpreadThreshold: 0.8,
			AgentCapacity:   10.0,
		},
		Executor: ExecutorConfig{
			Type:  "simulated",
			Delay: 100 * time.Millisecond,
		},
		Store: StoreConfig{
			Namespace: "swarmd",
			Interval:  30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
