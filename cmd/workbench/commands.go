package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentworkbench/workbench/internal/sidebar"
)

// appFactory defers wiring until a command actually runs, so flag parsing
// (e.g. --config, --workspace) completes first.
type appFactory func() (*application, error)

func newAgentCommand(app appFactory) *cobra.Command {
	var prompt, allowedPath, modelID string
	cmd := &cobra.Command{
		Use:   "new-agent",
		Short: "Create a new root agent document",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app()
			if err != nil {
				return err
			}
			id := newAgentID()
			allowed := []string{allowedPath}
			if allowedPath == "" {
				allowed = []string{"/"}
			}
			location, err := a.store.Create(id, "", prompt, allowed, modelID, nil)
			if err != nil {
				return err
			}
			a.orch.DocumentOpened(id, location, metadataFor(a, location))
			fmt.Fprintln(cmd.OutOrStdout(), location)
			return nil
		},
	}
	cmd.Flags().StringVar(&prompt, "prompt", "", "initial user prompt for the agent's first cell")
	cmd.Flags().StringVar(&allowedPath, "allowed-path", "", "path prefix the agent may read/write (default: / for everything)")
	cmd.Flags().StringVar(&modelID, "model", "", "model id override (default: the configured default model)")
	return cmd
}

func runCommand(app appFactory) *cobra.Command {
	var agentID, cellText string
	var cellIndex int
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one cell against an agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app()
			if err != nil {
				return err
			}
			outcome, err := a.ctrl.RunCell(cmd.Context(), agentID, cellIndex, cellText)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), outcome)
			return nil
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "agent id to run")
	cmd.Flags().IntVar(&cellIndex, "cell-index", 0, "index of the cell being executed")
	cmd.Flags().StringVar(&cellText, "text", "", "the cell's user text")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

func selectModelCommand(app appFactory) *cobra.Command {
	var agentID, modelID string
	cmd := &cobra.Command{
		Use:   "select-model",
		Short: "Change the model an agent uses for subsequent cells",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app()
			if err != nil {
				return err
			}
			rec := a.reg.Get(agentID)
			if rec == nil {
				return fmt.Errorf("unknown agent %s", agentID)
			}
			rec.Model = modelID
			return nil
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "agent id")
	cmd.Flags().StringVar(&modelID, "model", "", "new model id")
	return cmd
}

func regenerateTitleCommand(app appFactory) *cobra.Command {
	var agentID, firstMessage string
	cmd := &cobra.Command{
		Use:   "regenerate-title",
		Short: "Check that a title generator is configured for a known agent (does not generate a title)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app()
			if err != nil {
				return err
			}
			rec := a.reg.Get(agentID)
			if rec == nil {
				return fmt.Errorf("unknown agent %s", agentID)
			}
			if a.cfg.TitleGeneratorModel == "" {
				return fmt.Errorf("no titleGeneratorModel configured")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "title regeneration requested for", rec.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "agent id")
	cmd.Flags().StringVar(&firstMessage, "first-message", "", "the agent's first user message")
	return cmd
}

func openAgentFileCommand(app appFactory) *cobra.Command {
	var location string
	cmd := &cobra.Command{
		Use:   "open-agent-file",
		Short: "Simulate the host opening an agent document, hydrating its tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app()
			if err != nil {
				return err
			}
			doc, err := a.store.Load(location)
			if err != nil {
				return err
			}
			a.orch.DocumentOpened(doc.Metadata.ID, location, doc.Metadata)
			a.orch.WindowOpenedForID(doc.Metadata.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&location, "location", "", "document location to open")
	_ = cmd.MarkFlagRequired("location")
	return cmd
}

func approveRequestCommand(app appFactory) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "approve-request",
		Short: "Approve a pending approval request",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app()
			if err != nil {
				return err
			}
			if !a.gate.Resolve(id, true) {
				return fmt.Errorf("no pending request %s", id)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "approval request id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func rejectRequestCommand(app appFactory) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "reject-request",
		Short: "Reject a pending approval request",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app()
			if err != nil {
				return err
			}
			if !a.gate.Resolve(id, false) {
				return fmt.Errorf("no pending request %s", id)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "approval request id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func toggleAutoApproveCommand(app appFactory) *cobra.Command {
	var enabled bool
	cmd := &cobra.Command{
		Use:   "toggle-auto-approve",
		Short: "Toggle global auto-approval of tool side effects",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app()
			if err != nil {
				return err
			}
			a.gate.SetAutoApprove(enabled)
			return nil
		},
	}
	cmd.Flags().BoolVar(&enabled, "enabled", true, "whether auto-approve should be on")
	return cmd
}

func treeCommand(app appFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the current agent tree and pending approvals",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app()
			if err != nil {
				return err
			}
			proj := a.sidebarProjection()
			for _, root := range proj.Roots {
				printNode(cmd, root, 0)
			}
			for _, p := range proj.PendingApprovals {
				fmt.Fprintf(cmd.OutOrStdout(), "[pending] %s %s %s (%s)\n", p.ID, p.Action, p.Target, p.Details)
			}
			return nil
		},
	}
	return cmd
}

func printNode(cmd *cobra.Command, n *sidebar.Node, depth int) {
	for i := 0; i < depth; i++ {
		fmt.Fprint(cmd.OutOrStdout(), "  ")
	}
	status := "idle"
	if n.Running {
		status = "running"
	} else if n.TaskFinished {
		status = "finished"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "- %s [%s] (%s)\n", n.Name, n.ShortID, status)
	for _, c := range n.Children {
		printNode(cmd, c, depth+1)
	}
}
