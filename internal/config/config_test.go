package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Scheduling.Strategy != "capability-match" {
		t.Errorf("expected default strategy 'capability-match', got %q", cfg.Scheduling.Strategy)
	}

	if cfg.Scheduling.Interval != 500*time.Millisecond {
		t.Errorf("expected scheduling interval 500ms, got %v", cfg.Scheduling.Interval)
	}

	if cfg.Health.Interval != 10*time.Second {
		t.Errorf("expected health interval 10s, got %v", cfg.Health.Interval)
	}

	if cfg.Health.HeartbeatTimeout != 90*time.Second {
		t.Errorf("expected heartbeat timeout 90s, got %v", cfg.Health.HeartbeatTimeout)
	}

	if cfg.Retry.Base != time.Second {
		t.Errorf("expected retry base 1s, got %v", cfg.Retry.Base)
	}

	if cfg.Retry.Multiplier != 2.0 {
		t.Errorf("expected retry multiplier 2, got %v", cfg.Retry.Multiplier)
	}

	if cfg.Breaker.Threshold != 5 {
		t.Errorf("expected breaker threshold 5, got %d", cfg.Breaker.Threshold)
	}

	if cfg.Breaker.Cooldown != 60*time.Second {
		t.Errorf("expected breaker cooldown 60s, got %v", cfg.Breaker.Cooldown)
	}

	if cfg.Balancer.SpreadThreshold != 0.8 {
		t.Errorf("expected spread threshold 0.8, got %v", cfg.Balancer.SpreadThreshold)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config failed validation: %v", err)
	}
}

func TestLoadFromPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
limits:
  max_agents: 5
  max_concurrent_tasks: 3
scheduling:
  strategy: round-robin
  interval: 1s
  task_timeout: 30s
retry:
  max_retries: 2
  base: 500ms
breaker:
  threshold: 3
  cooldown: 10s
logging:
  level: debug
  format: json
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Limits.MaxAgents != 5 {
		t.Errorf("expected max_agents 5, got %d", cfg.Limits.MaxAgents)
	}
	if cfg.Limits.MaxConcurrentTasks != 3 {
		t.Errorf("expected max_concurrent_tasks 3, got %d", cfg.Limits.MaxConcurrentTasks)
	}
	if cfg.Scheduling.Strategy != "round-robin" {
		t.Errorf("expected strategy round-robin, got %q", cfg.Scheduling.Strategy)
	}
	if cfg.Scheduling.Interval != time.Second {
		t.Errorf("expected interval 1s, got %v", cfg.Scheduling.Interval)
	}
	if cfg.Retry.MaxRetries != 2 {
		t.Errorf("expected max_retries 2, got %d", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.Base != 500*time.Millisecond {
		t.Errorf("expected retry base 500ms, got %v", cfg.Retry.Base)
	}
	if cfg.Breaker.Threshold != 3 {
		t.Errorf("expected breaker threshold 3, got %d", cfg.Breaker.Threshold)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %q", cfg.Logging.Level)
	}

	// Unset keys keep their defaults.
	if cfg.Health.Interval != 10*time.Second {
		t.Errorf("expected default health interval 10s, got %v", cfg.Health.Interval)
	}
	if cfg.Balancer.SpreadThreshold != 0.8 {
		t.Errorf("expected default spread threshold 0.8, got %v", cfg.Balancer.SpreadThreshold)
	}
}

func TestLoadFromPathMissingFile(t *testing.T) {
	_, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestEnvOverride(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("scheduling:\n  strategy: round-robin\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv("SWARMD_SCHEDULING_STRATEGY", "least-loaded")
	t.Setenv("SWARMD_LIMITS_MAX_AGENTS", "7")

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Scheduling.Strategy != "least-loaded" {
		t.Errorf("expected env to override strategy, got %q", cfg.Scheduling.Strategy)
	}
	if cfg.Limits.MaxAgents != 7 {
		t.Errorf("expected env to override max_agents, got %d", cfg.Limits.MaxAgents)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid defaults",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
		{
			name:    "zero max agents",
			mutate:  func(c *Config) { c.Limits.MaxAgents = 0 },
			wantErr: "max_agents",
		},
		{
			name:    "zero max concurrent",
			mutate:  func(c *Config) { c.Limits.MaxConcurrentTasks = 0 },
			wantErr: "max_concurrent_tasks",
		},
		{
			name:    "negative scheduling interval",
			mutate:  func(c *Config) { c.Scheduling.Interval = -time.Second },
			wantErr: "scheduling.interval",
		},
		{
			name:    "zero task timeout",
			mutate:  func(c *Config) { c.Scheduling.TaskTimeout = 0 },
			wantErr: "task_timeout",
		},
		{
			name:    "multiplier below one",
			mutate:  func(c *Config) { c.Retry.Multiplier = 0.5 },
			wantErr: "multiplier",
		},
		{
			name:    "zero breaker threshold",
			mutate:  func(c *Config) { c.Breaker.Threshold = 0 },
			wantErr: "breaker.threshold",
		},
		{
			name:    "spread threshold above one",
			mutate:  func(c *Config) { c.Balancer.SpreadThreshold = 1.5 },
			wantErr: "spread_threshold",
		},
		{
			name:    "zero agent capacity",
			mutate:  func(c *Config) { c.Balancer.AgentCapacity = 0 },
			wantErr: "agent_capacity",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}
