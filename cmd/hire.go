package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/zjrosen/kai/internal/agent"
	"github.com/zjrosen/kai/internal/paths"
	"github.com/zjrosen/kai/internal/roster"
)

var (
	hireTarget      string
	hireDescription string
)

var hireCmd = &cobra.Command{
	Use:   "hire <name> <type>",
	Short: "Create an agent instance",
	Long: `Create an agent instance of a built-in or custom type.

This writes <workspace>/Kai/agents/<name>/agent.yaml and the instance's queue
directories. Run it with 'kai start <name>'.

Examples:
  kai hire sen worker
  kai hire mia secretary --description "Routes incoming requests"
  kai hire chief boss --target sen`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws := workspace()
		reg, err := loadRegistry(ws)
		if err != nil {
			return err
		}
		return runHire(ws, reg, roster.Entry{
			Name:        args[0],
			Type:        args[1],
			Target:      hireTarget,
			Description: hireDescription,
		}, cmd.OutOrStdout())
	},
}

var fireCmd = &cobra.Command{
	Use:   "fire <name>",
	Short: "Remove an agent instance from the roster",
	Long: `Remove an agent instance's descriptor. Its queues, reports and stats are
left on disk; hire the same name again to pick them up.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := roster.Fire(workspace(), args[0]); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Fired %s\n", args[0])
		return nil
	},
}

func init() {
	hireCmd.Flags().StringVar(&hireTarget, "target", "", "worker a boss assigns tasks to")
	hireCmd.Flags().StringVar(&hireDescription, "description", "", "free-form description")
	rootCmd.AddCommand(hireCmd, fireCmd)
}

func runHire(ws paths.Workspace, reg *agent.Registry, e roster.Entry, out io.Writer) error {
	t, err := reg.Get(e.Type)
	if err != nil {
		return err
	}
	if e.Target != "" {
		if err := roster.ValidateName(e.Target); err != nil {
			return fmt.Errorf("target: %w", err)
		}
	}
	if err := roster.Hire(ws, e); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Hired %s\n", agent.FormatLabel(t.LabelFormat(), e.Name))
	return nil
}
