package config

import (
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := parse([]byte(`
agent:
  command: claude
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if got := cfg.Settings.PollInterval.Duration(); got != 2*time.Second {
		t.Errorf("PollInterval = %s, want 2s", got)
	}
	if cfg.Settings.BaseBranch != "main" {
		t.Errorf("BaseBranch = %q, want main", cfg.Settings.BaseBranch)
	}
	if cfg.Settings.Isolation != "worktree" {
		t.Errorf("Isolation = %q, want worktree", cfg.Settings.Isolation)
	}
	if cfg.Settings.BufferCapacity != 256*1024 {
		t.Errorf("BufferCapacity = %d, want 262144", cfg.Settings.BufferCapacity)
	}
	if cfg.Settings.Rows != 24 || cfg.Settings.Cols != 80 {
		t.Errorf("size = %dx%d, want 24x80", cfg.Settings.Rows, cfg.Settings.Cols)
	}
}

func TestParseExplicitValues(t *testing.T) {
	cfg, err := parse([]byte(`
agent:
  command: codex
  args: ["--full-auto"]

settings:
  poll_interval: 500ms
  base_branch: develop
  isolation: branch
  buffer_capacity: 1024
  rows: 40
  cols: 120
  model: opus
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if cfg.Agent.Command != "codex" || len(cfg.Agent.Args) != 1 {
		t.Errorf("agent = %+v", cfg.Agent)
	}
	if got := cfg.Settings.PollInterval.Duration(); got != 500*time.Millisecond {
		t.Errorf("PollInterval = %s, want 500ms", got)
	}
	if cfg.Settings.Isolation != "branch" {
		t.Errorf("Isolation = %q, want branch", cfg.Settings.Isolation)
	}
	if cfg.Settings.Model != "opus" {
		t.Errorf("Model = %q, want opus", cfg.Settings.Model)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		wantErrs int
	}{
		{
			name:     "valid",
			yaml:     "agent:\n  command: claude\n",
			wantErrs: 0,
		},
		{
			name:     "missing command",
			yaml:     "agent: {}\n",
			wantErrs: 1,
		},
		{
			name:     "bad isolation",
			yaml:     "agent:\n  command: claude\nsettings:\n  isolation: container\n",
			wantErrs: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := parse([]byte(tt.yaml))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if errs := Validate(cfg); len(errs) != tt.wantErrs {
				t.Errorf("Validate() = %v, want %d error(s)", errs, tt.wantErrs)
			}
		})
	}
}

func TestValidateAgentID(t *testing.T) {
	valid := []string{"a1", "agent-7", "fix_tests", "A.B-c"}
	for _, id := range valid {
		if err := ValidateAgentID(id); err != nil {
			t.Errorf("ValidateAgentID(%q) = %v, want nil", id, err)
		}
	}

	invalid := []string{"", "has space", "a/b", "..", ".hidden", "ü"}
	for _, id := range invalid {
		if err := ValidateAgentID(id); err == nil {
			t.Errorf("ValidateAgentID(%q) = nil, want error", id)
		}
	}
}

func TestStarterParses(t *testing.T) {
	cfg, err := parse([]byte(Starter))
	if err != nil {
		t.Fatalf("parse(Starter): %v", err)
	}
	if errs := Validate(cfg); len(errs) != 0 {
		t.Fatalf("Validate(Starter) = %v", errs)
	}
}
