package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/grizzdank/rembrandt/internal/daemon"
	"github.com/grizzdank/rembrandt/internal/fileutil"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the rembrandt poll daemon",
	Long: `Runs the fan-out poll loop: drains PTY output into session buffers,
detects exit edges, and persists them to the state store. One daemon per
repository, guarded by .rembrandt/daemon.pid.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		repoDir, err := resolveRepo()
		if err != nil {
			return err
		}
		cfg, err := loadConfig(repoDir)
		if err != nil {
			return err
		}

		orch, manager, err := buildOrchestrator(repoDir, cfg)
		if err != nil {
			return err
		}
		defer orch.Close()
		defer manager.CloseAll()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			sig := <-sigCh
			fmt.Printf("\nreceived %s, shutting down...\n", sig)
			cancel()
		}()

		fmt.Printf("rembrandt daemon started (polling every %s)\n", cfg.Settings.PollInterval.Duration())
		fmt.Printf("Session logs: %s\n", fileutil.LogsDir(repoDir))

		d := daemon.New(repoDir, manager, orch, cfg.Settings.PollInterval.Duration())
		return d.Run(ctx)
	},
}
