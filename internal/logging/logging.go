// Package logging configures the process-wide slog logger.
package logging

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// Setup installs a tint handler on stderr as the default slog logger.
// Colors are disabled when stderr is not a terminal.
func Setup(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	w := os.Stderr
	h := tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    !isatty.IsTerminal(w.Fd()),
	})
	slog.SetDefault(slog.New(h))
}
