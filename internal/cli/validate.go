package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(validateCmd)
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the repository's .rembrandt.yaml",
	RunE: func(cmd *cobra.Command, args []string) error {
		repoDir, err := resolveRepo()
		if err != nil {
			return err
		}
		if _, err := loadConfig(repoDir); err != nil {
			return err
		}

		fmt.Println("Configuration is valid.")
		return nil
	},
}
