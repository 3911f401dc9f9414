package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"steward/internal/tools"
	"steward/internal/tools/builtin"
)

// NewToolsCmd creates the tools command.
func NewToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Manage tools",
	}

	cmd.AddCommand(newToolsListCmd())
	cmd.AddCommand(newToolsShowCmd())

	return cmd
}

func newToolsListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := localToolRegistry(cmd)
			if err != nil {
				return err
			}

			list := registry.List()
			sort.Slice(list, func(i, j int) bool { return list[i].Name() < list[j].Name() })

			if jsonOutput {
				type toolInfo struct {
					Name        string         `json:"name"`
					Description string         `json:"description"`
					Parameters  map[string]any `json:"parameters"`
					Streaming   bool           `json:"streaming"`
				}
				infos := make([]toolInfo, 0, len(list))
				for _, t := range list {
					_, streaming := t.(tools.StreamingTool)
					infos = append(infos, toolInfo{
						Name:        t.Name(),
						Description: t.Description(),
						Parameters:  t.Parameters(),
						Streaming:   streaming,
					})
				}
				data, err := json.MarshalIndent(infos, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSTREAMING\tDESCRIPTION")
			for _, t := range list {
				streaming := "-"
				if _, ok := t.(tools.StreamingTool); ok {
					streaming = "yes"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Name(), streaming, t.Description())
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func newToolsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show a tool's parameter schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := localToolRegistry(cmd)
			if err != nil {
				return err
			}

			tool, err := registry.Resolve(args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Name:        %s\n", tool.Name())
			fmt.Fprintf(cmd.OutOrStdout(), "Description: %s\n", tool.Description())
			params, err := json.MarshalIndent(tool.Parameters(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Parameters:\n%s\n", string(params))
			return nil
		},
	}

	return cmd
}

// localToolRegistry builds the built-in tool set, honoring the configured
// disabled list.
func localToolRegistry(cmd *cobra.Command) (*tools.Registry, error) {
	cliCtx := GetCLIContext(cmd)
	if cliCtx == nil {
		return nil, fmt.Errorf("CLI context not initialized")
	}

	registry, err := builtin.NewRegistryWithBuiltins(builtin.Options{
		WorkspaceRoot: cliCtx.Config.Workspace.Path,
	})
	if err != nil {
		return nil, err
	}
	for _, name := range cliCtx.Config.Tools.Disabled {
		_ = registry.Unregister(name)
	}
	return registry, nil
}
