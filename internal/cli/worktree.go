package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grizzdank/rembrandt/internal/config"
	"github.com/grizzdank/rembrandt/internal/worktree"
)

var (
	worktreeBase         string
	worktreeDeleteBranch bool
)

func init() {
	worktreeCreateCmd.Flags().StringVar(&worktreeBase, "base", "main", "Base branch for the new worktree")
	worktreeRemoveCmd.Flags().BoolVar(&worktreeDeleteBranch, "delete-branch", false, "Also delete the agent's branch")
	worktreeCmd.AddCommand(worktreeCreateCmd, worktreeRemoveCmd, worktreeListCmd)
	rootCmd.AddCommand(worktreeCmd)
}

var worktreeCmd = &cobra.Command{
	Use:   "worktree",
	Short: "Manage per-agent worktrees",
}

var worktreeCreateCmd = &cobra.Command{
	Use:   "create <agent-id>",
	Short: "Create (or repair) an agent's worktree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.ValidateAgentID(args[0]); err != nil {
			return err
		}
		repoDir, err := resolveRepo()
		if err != nil {
			return err
		}

		p, err := worktree.NewProvisioner(repoDir)
		if err != nil {
			return err
		}
		info, err := p.CreateWorktree(args[0], worktreeBase)
		if err != nil {
			return err
		}
		fmt.Printf("%s -> %s (%s)\n", info.AgentID, info.Path, info.Branch)
		return nil
	},
}

var worktreeRemoveCmd = &cobra.Command{
	Use:   "remove <agent-id>",
	Short: "Remove an agent's worktree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoDir, err := resolveRepo()
		if err != nil {
			return err
		}

		p, err := worktree.NewProvisioner(repoDir)
		if err != nil {
			return err
		}
		if err := p.RemoveWorktree(args[0], worktreeDeleteBranch); err != nil {
			return err
		}
		fmt.Printf("Removed worktree for %s\n", args[0])
		return nil
	},
}

var worktreeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List agent worktrees",
	RunE: func(cmd *cobra.Command, args []string) error {
		repoDir, err := resolveRepo()
		if err != nil {
			return err
		}

		p, err := worktree.NewProvisioner(repoDir)
		if err != nil {
			return err
		}
		infos, err := p.ListWorktrees()
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			fmt.Println("No agent worktrees.")
			return nil
		}
		for _, info := range infos {
			fmt.Printf("%-16s %-24s %s\n", info.AgentID, info.Branch, info.Path)
		}
		return nil
	},
}
