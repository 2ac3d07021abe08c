// Command workbench is the CLI Entrypoint (C17): it wires every internal
// package into a runnable process and exposes the user-facing commands of
// SPEC_FULL.md §4.16.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentworkbench/workbench/internal/config"
	"github.com/agentworkbench/workbench/internal/telemetry"
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "workbench:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	var workspaceRoot string

	cmd := &cobra.Command{
		Use:   "workbench",
		Short: "A multi-agent LLM workbench control plane",
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "workbench.yaml", "path to the workbench config file (overridden by WORKBENCH_CONFIG)")
	cmd.PersistentFlags().StringVar(&workspaceRoot, "workspace", ".", "workspace root directory agents may read and write within")

	app := func() (*application, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		if workspaceRoot != "." {
			cfg.WorkspaceRoot = workspaceRoot
		}
		return newApplication(cfg, telemetry.Noop())
	}

	cmd.AddCommand(
		newAgentCommand(app),
		runCommand(app),
		selectModelCommand(app),
		regenerateTitleCommand(app),
		openAgentFileCommand(app),
		approveRequestCommand(app),
		rejectRequestCommand(app),
		toggleAutoApproveCommand(app),
		treeCommand(app),
	)

	return cmd
}
