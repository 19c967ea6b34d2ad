package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the config file looked up at the repository root.
const DefaultFileName = ".rembrandt.yaml"

type Config struct {
	Agent    AgentConfig `yaml:"agent"`
	Settings Settings    `yaml:"settings"`
}

type AgentConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"`
}

type Settings struct {
	PollInterval   Duration `yaml:"poll_interval"`
	BaseBranch     string   `yaml:"base_branch"`
	Isolation      string   `yaml:"isolation"`
	BufferCapacity int      `yaml:"buffer_capacity"`
	Rows           uint16   `yaml:"rows"`
	Cols           uint16   `yaml:"cols"`
	Model          string   `yaml:"model,omitempty"`
}

// Duration wraps time.Duration for YAML unmarshaling from strings like "2s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return parse(data)
}

func parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	if cfg.Settings.PollInterval == 0 {
		cfg.Settings.PollInterval = Duration(2 * time.Second)
	}
	if cfg.Settings.BaseBranch == "" {
		cfg.Settings.BaseBranch = "main"
	}
	if cfg.Settings.Isolation == "" {
		cfg.Settings.Isolation = "worktree"
	}
	if cfg.Settings.BufferCapacity == 0 {
		cfg.Settings.BufferCapacity = 256 * 1024
	}
	if cfg.Settings.Rows == 0 {
		cfg.Settings.Rows = 24
	}
	if cfg.Settings.Cols == 0 {
		cfg.Settings.Cols = 80
	}

	return &cfg, nil
}

func Validate(cfg *Config) []error {
	var errs []error

	if cfg.Agent.Command == "" {
		errs = append(errs, fmt.Errorf("agent.command is required"))
	}

	switch cfg.Settings.Isolation {
	case "worktree", "branch":
	default:
		errs = append(errs, fmt.Errorf("settings.isolation must be %q or %q, got %q",
			"worktree", "branch", cfg.Settings.Isolation))
	}

	if cfg.Settings.BufferCapacity < 0 {
		errs = append(errs, fmt.Errorf("settings.buffer_capacity must be positive"))
	}

	return errs
}

// ValidateAgentID rejects agent ids that are not short filesystem-safe
// slugs. The id becomes a directory name under .rembrandt/agents and a
// branch suffix under rembrandt/, so it must not contain separators.
func ValidateAgentID(id string) error {
	if id == "" {
		return fmt.Errorf("agent id is required")
	}
	if len(id) > 64 {
		return fmt.Errorf("agent id %q is too long (max 64)", id)
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return fmt.Errorf("agent id %q contains unsupported character %q", id, r)
		}
	}
	if strings.HasPrefix(id, ".") {
		return fmt.Errorf("agent id %q must not start with a dot", id)
	}
	return nil
}

// Starter is the config written by `rembrandt init`.
const Starter = `agent:
  command: claude
  args: []

settings:
  poll_interval: 2s
  base_branch: main
  isolation: worktree
`
