package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/grizzdank/rembrandt/internal/config"
	"github.com/grizzdank/rembrandt/internal/fileutil"
)

func init() {
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter .rembrandt.yaml and create the .rembrandt tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		repoDir, err := resolveRepo()
		if err != nil {
			return err
		}

		path := configPath(repoDir)
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
		if err := os.WriteFile(path, []byte(config.Starter), 0644); err != nil {
			return err
		}

		for _, dir := range []string{
			fileutil.AgentsDir(repoDir),
			fileutil.LogsDir(repoDir),
		} {
			if err := fileutil.EnsureDir(dir); err != nil {
				return err
			}
		}

		fmt.Printf("Created %s\n", path)
		fmt.Printf("Created %s\n", fileutil.RembrandtDir(repoDir))
		return nil
	},
}
