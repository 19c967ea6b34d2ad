package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/grizzdank/rembrandt/internal/config"
)

// resolveRepo finds the git repository root from the --repo flag.
func resolveRepo() (string, error) {
	start, err := filepath.Abs(repoFlag)
	if err != nil {
		return "", err
	}
	repoDir := findGitRoot(start)
	if repoDir == "" {
		return "", fmt.Errorf("could not find git repository root from %s", start)
	}
	return repoDir, nil
}

// findGitRoot walks up from dir looking for a .git directory.
func findGitRoot(dir string) string {
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// configPath returns the config file location for a repository.
func configPath(repoDir string) string {
	return filepath.Join(repoDir, config.DefaultFileName)
}

// loadConfig loads and validates .rembrandt.yaml, printing errors to stderr.
func loadConfig(repoDir string) (*config.Config, error) {
	cfg, err := config.Load(configPath(repoDir))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return nil, err
	}

	errs := config.Validate(cfg)
	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "Error: %s\n", e)
		}
		return nil, fmt.Errorf("%d validation error(s)", len(errs))
	}

	return cfg, nil
}
