package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"steward/internal/audit"
)

type auditFilterFlags struct {
	Session string
	Agent   string
	Tool    string
	Status  string
	Since   time.Duration
	Limit   int
	JSON    bool
}

func (f *auditFilterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Session, "session", "", "filter by session ID")
	cmd.Flags().StringVar(&f.Agent, "agent", "", "filter by agent ID")
	cmd.Flags().StringVar(&f.Tool, "tool", "", "filter by tool name")
	cmd.Flags().DurationVar(&f.Since, "since", 0, "only entries newer than this (e.g. 24h)")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "maximum number of entries")
	cmd.Flags().BoolVar(&f.JSON, "json", false, "output as JSON")
}

func (f *auditFilterFlags) filter() audit.Filter {
	flt := audit.Filter{
		SessionID: f.Session,
		AgentID:   f.Agent,
		Tool:      f.Tool,
		Status:    f.Status,
		Limit:     f.Limit,
	}
	if f.Since > 0 {
		flt.Since = time.Now().Add(-f.Since)
	}
	return flt
}

// NewAuditCmd creates the audit command.
func NewAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query the audit trail",
	}

	cmd.AddCommand(newAuditCallsCmd())
	cmd.AddCommand(newAuditApprovalsCmd())

	return cmd
}

func newAuditCallsCmd() *cobra.Command {
	flags := &auditFilterFlags{}

	cmd := &cobra.Command{
		Use:   "calls",
		Short: "List recorded tool calls",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return fmt.Errorf("CLI context not initialized")
			}
			store, err := cliCtx.GetAudit()
			if err != nil {
				return err
			}

			rows, err := store.ListToolCalls(cmd.Context(), flags.filter())
			if err != nil {
				return err
			}

			if flags.JSON {
				data, err := json.MarshalIndent(rows, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}

			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tool calls recorded")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
			fmt.Fprintln(tw, "FINISHED\tSESSION\tAGENT\tTOOL\tSTATUS\tDURATION\tERROR")
			for _, r := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					r.FinishedAt.Local().Format("2006-01-02 15:04:05"),
					r.SessionID, r.AgentID, r.Tool, r.Status,
					r.Duration.Round(time.Millisecond), truncateField(r.Error, 60))
			}
			return tw.Flush()
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&flags.Status, "status", "", "filter by status (success, error, cancelled)")

	return cmd
}

func newAuditApprovalsCmd() *cobra.Command {
	flags := &auditFilterFlags{}

	cmd := &cobra.Command{
		Use:   "approvals",
		Short: "List recorded approval requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return fmt.Errorf("CLI context not initialized")
			}
			store, err := cliCtx.GetAudit()
			if err != nil {
				return err
			}

			rows, err := store.ListApprovals(cmd.Context(), flags.filter())
			if err != nil {
				return err
			}

			if flags.JSON {
				data, err := json.MarshalIndent(rows, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}

			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No approval requests recorded")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
			fmt.Fprintln(tw, "CREATED\tSESSION\tTOOL\tDECISION\tREASON\tMESSAGE")
			for _, r := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					r.SessionID, r.Tool, r.Decision,
					truncateField(r.Reason, 40), truncateField(r.Message, 40))
			}
			return tw.Flush()
		},
	}

	flags.register(cmd)

	return cmd
}

func truncateField(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
