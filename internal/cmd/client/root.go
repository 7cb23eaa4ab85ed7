package client

import (
	"github.com/spf13/cobra"
)

// NewRoot constructs a root Cobra command holding the queue and audit
// command groups.
func NewRoot(open OpenFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "pageq",
		Short: "pageq queue commands",
	}
	root.AddCommand(NewQueueCommand(open))
	root.AddCommand(NewAuditCommand(open))
	return root
}
