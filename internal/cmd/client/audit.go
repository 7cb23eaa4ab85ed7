package client

import (
	"fmt"

	"github.com/rzbill/pageq/internal/runtime"
	"github.com/spf13/cobra"
)

// NewAuditCommand constructs the `audit` command group over the log of
// accepted messages.
func NewAuditCommand(open OpenFunc) *cobra.Command {
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the log of accepted messages",
	}
	auditCmd.PersistentFlags().StringP("origin", "o", "", "Origin id")

	list := &cobra.Command{
		Use:   "list",
		Short: "List accepted messages of an origin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			o, err := originFlag(cmd)
			if err != nil {
				return err
			}
			from, _ := cmd.Flags().GetUint64("from")
			limit, _ := cmd.Flags().GetInt("limit")
			return withRuntime(cmd, open, func(rt *runtime.Runtime) error {
				items, err := rt.AuditLog().Read(cmd.Context(), o, from, limit)
				if err != nil {
					return err
				}
				rows := make([]map[string]any, 0, len(items))
				for _, it := range items {
					row := decodedMessage(it.Seq, it.Message)
					row["accepted_at_ms"] = it.AcceptedAtMs
					rows = append(rows, row)
				}
				return writeJSON(cmd.OutOrStdout(), rows)
			})
		},
	}
	list.Flags().Uint64("from", 1, "First sequence to list")
	list.Flags().Int("limit", 50, "Maximum entries (0 for all)")

	trim := &cobra.Command{
		Use:   "trim",
		Short: "Delete audit entries below a sequence",
		RunE: func(cmd *cobra.Command, _ []string) error {
			o, err := originFlag(cmd)
			if err != nil {
				return err
			}
			before, _ := cmd.Flags().GetUint64("before")
			return withRuntime(cmd, open, func(rt *runtime.Runtime) error {
				if err := rt.AuditLog().Trim(cmd.Context(), o, before); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "OK")
				return nil
			})
		},
	}
	trim.Flags().Uint64("before", 0, "Delete entries with a lower sequence")

	auditCmd.AddCommand(list, trim)
	return auditCmd
}
