package client

import (
	"errors"
	"fmt"

	"github.com/rzbill/pageq/internal/config"
	"github.com/rzbill/pageq/internal/footprint"
	"github.com/rzbill/pageq/internal/mq"
	"github.com/rzbill/pageq/internal/runtime"
	"github.com/rzbill/pageq/internal/weight"
	"github.com/spf13/cobra"
)

// NewQueueCommand constructs the `queue` command group and subcommands.
func NewQueueCommand(open OpenFunc) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:     "queue",
		Aliases: []string{"q"},
		Short:   "Per-origin message queue operations",
		Long: `Operations on the per-origin message queues.

Message Lifecycle:
  enqueue → Live → [service] → Accepted (removed, recorded in the audit log)
                       ↓
                    Parked (corrupt | overweight) → [execute-overweight]

Inspection:
  origins     List known origins with their footprints
  footprint   Show one origin's footprint
  peek        List head messages of a queue
  plan        Report how much of a candidate batch fits under a page limit
  parked      List parked messages

Mutation:
  enqueue             Append messages to a queue
  sweep               Delete every live message of a queue
  suspend, resume     Hold back or release an origin's pages
  service             Run one service pass with the configured weight
  execute-overweight  Process one parked overweight message`,
	}
	queueCmd.PersistentFlags().StringP("origin", "o", "", "Origin id")

	queueCmd.AddCommand(
		newEnqueueCommand(open),
		newOriginsCommand(open),
		newFootprintCommand(open),
		newPeekCommand(open),
		newPlanCommand(open),
		newSweepCommand(open),
		newSuspendCommand(open, true),
		newSuspendCommand(open, false),
		newParkedCommand(open),
		newServiceCommand(open),
		newExecuteOverweightCommand(open),
	)
	return queueCmd
}

// newEnqueueCommand constructs the `queue enqueue` subcommand.
func newEnqueueCommand(open OpenFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Append messages to an origin's queue",
		Long: `Append one or more messages to an origin's queue in a single batch.
Each --data value becomes one message. Unless --raw is set the body is
prefixed with a 4-byte weight marker taken from --weight.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o, err := originFlag(cmd)
			if err != nil {
				return err
			}
			data, _ := cmd.Flags().GetStringArray("data")
			b64, _ := cmd.Flags().GetBool("b64")
			raw, _ := cmd.Flags().GetBool("raw")
			w, _ := cmd.Flags().GetUint32("weight")
			bodies, err := messageBodies(data, b64, raw, w)
			if err != nil {
				return err
			}
			return withRuntime(cmd, open, func(rt *runtime.Runtime) error {
				msgs := make([]mq.Message, 0, len(bodies))
				for i, b := range bodies {
					m, err := rt.Store().Bound(b)
					if err != nil {
						return fmt.Errorf("message %d: %w", i, err)
					}
					msgs = append(msgs, m)
				}
				if err := rt.Store().EnqueueMessages(cmd.Context(), o, msgs); err != nil {
					return err
				}
				fp, err := rt.Store().Footprint(cmd.Context(), o)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"status":    "OK",
					"enqueued":  len(msgs),
					"footprint": fp,
				})
			})
		},
	}
	cmd.Flags().StringArray("data", nil, "Message body (repeat for a batch)")
	cmd.Flags().Bool("b64", false, "Treat --data as base64")
	cmd.Flags().Bool("raw", false, "Do not prefix a weight marker")
	cmd.Flags().Uint32("weight", 0, "Required weight written into the marker")
	return cmd
}

// newOriginsCommand constructs the `queue origins` subcommand.
func newOriginsCommand(open OpenFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "origins",
		Short: "List origins with their footprints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, open, func(rt *runtime.Runtime) error {
				var rows []map[string]any
				for _, m := range rt.Store().Origins() {
					fp, err := rt.Store().Footprint(cmd.Context(), m.ID)
					if err != nil {
						return err
					}
					rows = append(rows, map[string]any{
						"origin":    m.ID,
						"suspended": m.Suspended,
						"ready":     rt.Ring().Contains(m.ID),
						"footprint": fp,
					})
				}
				return writeJSON(cmd.OutOrStdout(), rows)
			})
		},
	}
}

// newFootprintCommand constructs the `queue footprint` subcommand.
func newFootprintCommand(open OpenFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "footprint",
		Short: "Show an origin's footprint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			o, err := originFlag(cmd)
			if err != nil {
				return err
			}
			return withRuntime(cmd, open, func(rt *runtime.Runtime) error {
				fp, err := rt.Store().Footprint(cmd.Context(), o)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), fp)
			})
		},
	}
}

// newPeekCommand constructs the `queue peek` subcommand.
func newPeekCommand(open OpenFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peek",
		Short: "List head messages of an origin's queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			o, err := originFlag(cmd)
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			return withRuntime(cmd, open, func(rt *runtime.Runtime) error {
				entries, err := rt.Store().Peek(cmd.Context(), o, limit)
				if err != nil {
					return err
				}
				rows := make([]map[string]any, 0, len(entries))
				for _, e := range entries {
					row := decodedMessage(e.Seq, e.Message)
					if e.Damaged {
						row["damaged"] = true
					}
					rows = append(rows, row)
				}
				return writeJSON(cmd.OutOrStdout(), rows)
			})
		},
	}
	cmd.Flags().Int("limit", 10, "Maximum messages to list (0 for all)")
	return cmd
}

// newPlanCommand constructs the `queue plan` subcommand.
func newPlanCommand(open OpenFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Plan a candidate batch against a page limit",
		Long: `Report, for each prefix of the candidate batch that fits, how many
messages, bytes and new pages appending it would add to the origin's
queue without exceeding --limit pages. Candidates are given by size.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o, err := originFlag(cmd)
			if err != nil {
				return err
			}
			sizes, _ := cmd.Flags().GetIntSlice("size")
			limit, _ := cmd.Flags().GetUint32("limit")
			return withRuntime(cmd, open, func(rt *runtime.Runtime) error {
				if !cmd.Flags().Changed("limit") {
					limit = rt.Config().TotalPagesLimit
				}
				candidates := make([]mq.Message, 0, len(sizes))
				for _, n := range sizes {
					if n < 0 {
						return fmt.Errorf("invalid --size %d", n)
					}
					m, err := rt.Store().Bound(make([]byte, n))
					if err != nil {
						return err
					}
					candidates = append(candidates, m)
				}
				plan, err := rt.Store().PlanBatches(cmd.Context(), o, candidates, limit)
				if err != nil {
					return err
				}
				if plan == nil {
					plan = []footprint.BatchFootprint{}
				}
				return writeJSON(cmd.OutOrStdout(), plan)
			})
		},
	}
	cmd.Flags().IntSlice("size", nil, "Candidate message sizes in bytes, in order")
	cmd.Flags().Uint32("limit", 0, "Total pages limit (defaults to totalPagesLimit)")
	return cmd
}

// newSweepCommand constructs the `queue sweep` subcommand.
func newSweepCommand(open OpenFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete every live message of an origin (requires --confirm)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			o, err := originFlag(cmd)
			if err != nil {
				return err
			}
			if ok, _ := cmd.Flags().GetBool("confirm"); !ok {
				return errors.New("refusing to sweep without --confirm")
			}
			return withRuntime(cmd, open, func(rt *runtime.Runtime) error {
				if err := rt.Store().SweepQueue(cmd.Context(), o); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "OK")
				return nil
			})
		},
	}
	cmd.Flags().Bool("confirm", false, "Confirm the sweep")
	return cmd
}

// newSuspendCommand constructs `queue suspend` or `queue resume`.
func newSuspendCommand(open OpenFunc, suspend bool) *cobra.Command {
	use, short := "resume", "Release a suspended origin's pages"
	if suspend {
		use, short = "suspend", "Hold back an origin's pages from service"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o, err := originFlag(cmd)
			if err != nil {
				return err
			}
			return withRuntime(cmd, open, func(rt *runtime.Runtime) error {
				if suspend {
					err = rt.Store().Suspend(cmd.Context(), o)
				} else {
					err = rt.Store().Resume(cmd.Context(), o)
				}
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "OK")
				return nil
			})
		},
	}
}

// newParkedCommand constructs the `queue parked` subcommand.
func newParkedCommand(open OpenFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parked",
		Short: "List an origin's parked messages",
		RunE: func(cmd *cobra.Command, _ []string) error {
			o, err := originFlag(cmd)
			if err != nil {
				return err
			}
			r, _ := cmd.Flags().GetString("reason")
			reasons := []mq.ParkReason{mq.ParkCorrupt, mq.ParkOverweight}
			if r != "" {
				reason, err := mq.ParseParkReason(r)
				if err != nil {
					return err
				}
				reasons = []mq.ParkReason{reason}
			}
			return withRuntime(cmd, open, func(rt *runtime.Runtime) error {
				rows := []map[string]any{}
				for _, reason := range reasons {
					entries, err := rt.Store().Parked(cmd.Context(), o, reason)
					if err != nil {
						return err
					}
					for _, e := range entries {
						row := decodedMessage(e.Seq, e.Message)
						row["reason"] = string(e.Reason)
						row["parked_at_ms"] = e.ParkedAtMs
						if e.Damaged {
							row["damaged"] = true
						}
						rows = append(rows, row)
					}
				}
				return writeJSON(cmd.OutOrStdout(), rows)
			})
		},
	}
	cmd.Flags().String("reason", "", "corrupt|overweight (default both)")
	return cmd
}

// newServiceCommand constructs the `queue service` subcommand.
func newServiceCommand(open OpenFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Run one service pass over the ready origins",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, open, func(rt *runtime.Runtime) error {
				limit := rt.ServiceWeight()
				if s, _ := cmd.Flags().GetString("weight"); s != "" {
					w, ok := config.ParseWeight(s)
					if !ok {
						return fmt.Errorf("invalid --weight %q", s)
					}
					limit = w.Weight()
				}
				rep, err := rt.Servicer().ServiceQueues(cmd.Context(), weight.NewMeter(limit))
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), rep)
			})
		},
	}
	cmd.Flags().String("weight", "", "Pass budget as n or refTime,proofSize (defaults to serviceWeight)")
	return cmd
}

// newExecuteOverweightCommand constructs the `queue execute-overweight` subcommand.
func newExecuteOverweightCommand(open OpenFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "execute-overweight",
		Short: "Process one parked overweight message with an explicit weight limit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			o, err := originFlag(cmd)
			if err != nil {
				return err
			}
			seq, _ := cmd.Flags().GetUint64("seq")
			s, _ := cmd.Flags().GetString("weight")
			w, ok := config.ParseWeight(s)
			if !ok {
				return fmt.Errorf("invalid --weight %q", s)
			}
			return withRuntime(cmd, open, func(rt *runtime.Runtime) error {
				used, err := rt.Servicer().ExecuteOverweight(cmd.Context(), o, seq, w.Weight())
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{"status": "OK", "consumed": used})
			})
		},
	}
	cmd.Flags().Uint64("seq", 0, "Parked message sequence")
	cmd.Flags().String("weight", "", "Weight limit as n or refTime,proofSize")
	return cmd
}
