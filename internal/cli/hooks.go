package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"steward/internal/config"
	"steward/internal/hooks"
)

// NewHooksCmd creates the hooks command.
func NewHooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hooks",
		Short: "Inspect configured hooks",
	}

	cmd.AddCommand(newHooksListCmd())

	return cmd
}

func newHooksListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List hook handlers from the hook configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return fmt.Errorf("CLI context not initialized")
			}

			path, err := config.ExpandPath(cliCtx.Config.Hooks.Path)
			if err != nil {
				return fmt.Errorf("resolve hooks path: %w", err)
			}
			if path == "" {
				return fmt.Errorf("no hook configuration path set")
			}
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("hook configuration not found at %s (run `steward init` first)", path)
			}

			manager := hooks.NewManager()
			defer manager.Close()
			n, err := manager.LoadFromFile(path)
			if err != nil {
				return err
			}

			if n == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No hooks configured in %s\n", path)
				return nil
			}

			all := manager.AllHandlers()
			types := make([]hooks.HookType, 0, len(all))
			for ht := range all {
				types = append(types, ht)
			}
			sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

			if jsonOutput {
				data, err := json.MarshalIndent(all, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
			fmt.Fprintln(tw, "TYPE\tID\tPRIORITY\tENABLED\tSCRIPT")
			for _, ht := range types {
				for _, h := range all[ht] {
					enabled := "yes"
					if !h.Enabled {
						enabled = "no"
					}
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", ht, h.ID, h.Priority, enabled, h.ScriptPath)
				}
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}
