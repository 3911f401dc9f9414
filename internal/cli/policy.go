package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"steward/internal/config"
	"steward/internal/policy"
)

// NewPolicyCmd creates the policy command.
func NewPolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect and test the tool policy",
	}

	cmd.AddCommand(newPolicyShowCmd())
	cmd.AddCommand(newPolicyCheckCmd())

	return cmd
}

func newPolicyShowCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			pcfg, path, err := effectivePolicy(cmd)
			if err != nil {
				return err
			}

			if path == "" {
				fmt.Fprintln(cmd.ErrOrStderr(), "No policy file found, showing built-in defaults")
			} else {
				fmt.Fprintf(cmd.ErrOrStderr(), "Policy loaded from %s\n", path)
			}

			var data []byte
			if jsonOutput {
				data, err = json.MarshalIndent(pcfg, "", "  ")
			} else {
				data, err = yaml.Marshal(pcfg)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func newPolicyCheckCmd() *cobra.Command {
	var argsJSON string

	cmd := &cobra.Command{
		Use:   "check <tool>",
		Short: "Evaluate a hypothetical tool call against the policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pcfg, _, err := effectivePolicy(cmd)
			if err != nil {
				return err
			}

			if argsJSON != "" && !json.Valid([]byte(argsJSON)) {
				return fmt.Errorf("--args is not valid JSON")
			}

			executor := policy.NewPolicyExecutor(&pcfg.ToolPolicy)
			result, err := executor.Check(cmd.Context(), &policy.ToolCall{
				Name:      args[0],
				Arguments: argsJSON,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if result.Allowed {
				fmt.Fprintln(out, "Verdict: allowed")
			} else {
				fmt.Fprintln(out, "Verdict: denied")
			}
			if result.Reason != "" {
				fmt.Fprintf(out, "Reason:  %s\n", result.Reason)
			}
			if result.RequireApproval {
				fmt.Fprintln(out, "Approval required")
				if result.ApprovalReason != "" {
					fmt.Fprintf(out, "  %s\n", result.ApprovalReason)
				}
			}
			for _, warning := range result.Warnings {
				fmt.Fprintf(out, "Warning: %s\n", warning)
			}
			for _, rule := range result.MatchedRules {
				fmt.Fprintf(out, "Matched: %s\n", rule)
			}

			if !result.Allowed {
				return fmt.Errorf("tool call would be denied")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&argsJSON, "args", "", "tool arguments as a JSON object")

	return cmd
}

// effectivePolicy loads the configured policy file, falling back to the
// built-in defaults when no file exists. The returned path is empty for the
// fallback case.
func effectivePolicy(cmd *cobra.Command) (*policy.Config, string, error) {
	cliCtx := GetCLIContext(cmd)
	if cliCtx == nil {
		return nil, "", fmt.Errorf("CLI context not initialized")
	}

	path, err := config.ExpandPath(cliCtx.Config.Policy.Path)
	if err != nil {
		return nil, "", fmt.Errorf("resolve policy path: %w", err)
	}
	if path == "" {
		return policy.DefaultConfig(), "", nil
	}
	if _, err := os.Stat(path); err != nil {
		return policy.DefaultConfig(), "", nil
	}

	pcfg, err := policy.LoadConfig(path)
	if err != nil {
		return nil, "", err
	}
	return pcfg, path, nil
}
