package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grizzdank/rembrandt/internal/logging"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	repoFlag    string
	verboseFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "rembrandt",
	Short: "Orchestrate concurrent coding agents in one repository",
	Long: `Rembrandt runs multiple interactive coding agents against the same git
repository. Each agent works inside an isolated worktree (or on its own
branch) under the rembrandt/ namespace while the operator observes,
steers, nudges, kills, and merges their work.

Session records live in .rembrandt/state.db; raw PTY logs under
.rembrandt/logs/.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Setup(verboseFlag)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&repoFlag, "repo", "r", ".", "Path inside the host git repository")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable debug logging")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("rembrandt %s\n", Version)
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
