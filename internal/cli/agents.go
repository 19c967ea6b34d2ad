package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/grizzdank/rembrandt/internal/config"
	"github.com/grizzdank/rembrandt/internal/fileutil"
	"github.com/grizzdank/rembrandt/internal/isolation"
	"github.com/grizzdank/rembrandt/internal/orchestrator"
	"github.com/grizzdank/rembrandt/internal/runtime"
	"github.com/grizzdank/rembrandt/internal/session"
)

var (
	spawnBase   string
	spawnMode   string
	spawnPrompt string
	spawnModel  string
	spawnTask   string
	spawnWait   bool
)

func init() {
	spawnCmd.Flags().StringVar(&spawnBase, "base", "", "Base branch (default from config)")
	spawnCmd.Flags().StringVar(&spawnMode, "mode", "", "Isolation mode: worktree or branch (default from config)")
	spawnCmd.Flags().StringVar(&spawnPrompt, "prompt", "", "Initial prompt delivered to the agent")
	spawnCmd.Flags().StringVar(&spawnModel, "model", "", "Model hint passed to the runtime")
	spawnCmd.Flags().StringVar(&spawnTask, "task", "", "Task id to associate with the session")
	spawnCmd.Flags().BoolVar(&spawnWait, "wait", false, "Poll until the agent session exits")
	rootCmd.AddCommand(spawnCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(killCmd)
	rootCmd.AddCommand(steerCmd)
}

// buildOrchestrator wires manager, PTY runtime, and store for one command.
func buildOrchestrator(repoDir string, cfg *config.Config) (*orchestrator.Orchestrator, *session.Manager, error) {
	manager := session.NewManager(session.ManagerConfig{
		BufferCapacity: cfg.Settings.BufferCapacity,
		LogsDir:        fileutil.LogsDir(repoDir),
	})
	adapter := runtime.NewPtyAdapter(manager, cfg.Agent.Command, cfg.Agent.Args,
		cfg.Settings.Rows, cfg.Settings.Cols)
	orch, err := orchestrator.New(repoDir, adapter)
	if err != nil {
		manager.CloseAll()
		return nil, nil, err
	}
	return orch, manager, nil
}

var spawnCmd = &cobra.Command{
	Use:   "spawn <agent-id>",
	Short: "Spawn an agent in an isolated workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agentID := args[0]
		if err := config.ValidateAgentID(agentID); err != nil {
			return err
		}

		repoDir, err := resolveRepo()
		if err != nil {
			return err
		}
		cfg, err := loadConfig(repoDir)
		if err != nil {
			return err
		}

		base := spawnBase
		if base == "" {
			base = cfg.Settings.BaseBranch
		}
		modeName := spawnMode
		if modeName == "" {
			modeName = cfg.Settings.Isolation
		}
		mode, err := isolation.ParseMode(modeName)
		if err != nil {
			return err
		}
		model := spawnModel
		if model == "" {
			model = cfg.Settings.Model
		}

		orch, manager, err := buildOrchestrator(repoDir, cfg)
		if err != nil {
			return err
		}
		defer orch.Close()
		defer manager.CloseAll()

		res, err := orch.SpawnAgent(orchestrator.SpawnRequest{
			AgentID:       agentID,
			BaseBranch:    base,
			IsolationMode: mode,
			Prompt:        spawnPrompt,
			Model:         model,
			TaskID:        spawnTask,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Spawned %s on %s (%s isolation)\n",
			agentID, res.Session.BranchName, res.Workspace.Mode)
		fmt.Printf("  checkout: %s\n", res.Workspace.CheckoutPath)
		fmt.Printf("  session:  %s\n", res.Session.RuntimeSessionID)

		if spawnWait {
			return waitForExit(orch, manager, agentID)
		}
		return nil
	},
}

// waitForExit drains and polls until the agent's session leaves Running.
func waitForExit(orch *orchestrator.Orchestrator, manager *session.Manager, agentID string) error {
	for {
		manager.ReadAllAvailable()
		for _, edge := range manager.PollAll() {
			if err := orch.RecordExit(edge.AgentID, edge.ExitCode); err != nil {
				return err
			}
			if edge.AgentID == agentID {
				fmt.Printf("Agent %s exited with code %d\n", agentID, edge.ExitCode)
				return nil
			}
		}
		if manager.ActiveCount() == 0 {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
}

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List persisted agent sessions",
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

		recs, err := orch.ListAgents()
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			fmt.Println("No agents.")
			return nil
		}

		fmt.Printf("%-2s %-16s %-10s %-9s %-24s %s\n", "", "AGENT", "STATUS", "MODE", "BRANCH", "UPDATED")
		for _, rec := range recs {
			symbol, color := statusDisplay(rec.Status)
			fmt.Printf("%s%-2s%s %-16s %-10s %-9s %-24s %s\n",
				color, symbol, ansiReset,
				rec.AgentID, rec.Status, rec.IsolationMode, rec.BranchName,
				rec.UpdatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <agent-id>",
	Short: "Show one agent's persisted session record",
	Args:  cobra.ExactArgs(1),
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

		rec, err := orch.GetStatus(args[0])
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("no session record for agent %q", args[0])
		}

		fmt.Printf("agent:    %s\n", rec.AgentID)
		fmt.Printf("status:   %s\n", rec.Status)
		fmt.Printf("runtime:  %s (%s)\n", rec.RuntimeKind, rec.RuntimeSessionID)
		fmt.Printf("mode:     %s\n", rec.IsolationMode)
		fmt.Printf("branch:   %s\n", rec.BranchName)
		fmt.Printf("checkout: %s\n", rec.CheckoutPath)
		if rec.TaskID != "" {
			fmt.Printf("task:     %s\n", rec.TaskID)
		}
		if rec.Model != "" {
			fmt.Printf("model:    %s\n", rec.Model)
		}
		fmt.Printf("created:  %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("updated:  %s\n", rec.UpdatedAt.Format("2006-01-02 15:04:05"))

		if hb, err := orch.Store().GetHeartbeat(rec.AgentID); err == nil && hb != nil {
			fmt.Printf("last seen: %s (%s)\n", hb.LastSeenAt.Format("2006-01-02 15:04:05"), hb.Detail)
		}
		return nil
	},
}

var killCmd = &cobra.Command{
	Use:   "kill <agent-id>",
	Short: "Stop an agent and mark its session Stopped",
	Args:  cobra.ExactArgs(1),
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

		if err := orch.KillAgent(args[0]); err != nil {
			return err
		}
		fmt.Printf("Stopped %s\n", args[0])
		return nil
	},
}

var steerCmd = &cobra.Command{
	Use:   "steer <agent-id> <message...>",
	Short: "Send a steering message to an agent",
	Args:  cobra.MinimumNArgs(2),
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

		message := strings.Join(args[1:], " ")
		if err := orch.SteerAgent(args[0], message); err != nil {
			return err
		}
		fmt.Printf("Sent to %s\n", args[0])
		return nil
	},
}
