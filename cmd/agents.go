package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/zjrosen/kai/internal/agent"
	"github.com/zjrosen/kai/internal/paths"
	"github.com/zjrosen/kai/internal/queue"
	"github.com/zjrosen/kai/internal/render"
	"github.com/zjrosen/kai/internal/roster"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List hired agent instances and their queues",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runAgents(workspace(), cmd.OutOrStdout())
	},
}

var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "List the built-in and custom agent types",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ws := workspace()
		reg, err := loadRegistry(ws)
		if err != nil {
			return err
		}
		return runTypes(ws, reg, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(agentsCmd, typesCmd)
}

func runAgents(ws paths.Workspace, out io.Writer) error {
	entries, err := roster.List(ws)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(out, "No agents hired. Try 'kai hire sen worker'.")
		return nil
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		a := ws.Agent(e.Name)
		rows = append(rows, []string{
			e.Name,
			e.Type,
			count(a.Tasks),
			count(a.Ongoing),
			count(a.Reports),
			e.Target,
			e.Description,
		})
	}
	_, _ = fmt.Fprintln(out, render.Table(
		[]string{"NAME", "TYPE", "TASKS", "ONGOING", "REPORTS", "TARGET", "DESCRIPTION"}, rows))
	return nil
}

func count(dir string) string {
	n, err := queue.New(dir).Len()
	if err != nil {
		return "?"
	}
	return strconv.Itoa(n)
}

func runTypes(ws paths.Workspace, reg *agent.Registry, out io.Writer) error {
	var rows [][]string
	for _, name := range reg.Names() {
		t, err := reg.Get(name)
		if err != nil {
			return err
		}
		term := t.BuildConfig(ws, "probe").Termination
		source := "custom"
		if reg.IsBuiltin(name) {
			source = "built-in"
		}
		rows = append(rows, []string{name, t.LabelFormat(), t.PromptTemplate(), term.String(), source})
	}
	_, _ = fmt.Fprintln(out, render.Table([]string{"TYPE", "LABEL", "TEMPLATE", "TERMINATION", "SOURCE"}, rows))
	return nil
}
