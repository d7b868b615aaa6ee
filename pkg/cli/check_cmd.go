package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newCheckCmd(client *Client) *cobra.Command {
	var (
		permission string
		scopeStr   string
		cost       string
	)

	cmd := &cobra.Command{
		Use:   "check <delegation-id>",
		Short: "Check a permission and reserve quota",
		Long: `Check whether a delegation authorizes an action and, if so, atomically
reserve quota for it. An allowed check holds a concurrency slot until
"release" is called for the same delegation.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := parseScope(scopeStr)
			if err != nil {
				return err
			}

			decision, err := client.Check(cmd.Context(), args[0], permission, scope, cost)
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return printJSON(os.Stdout, decision)
			}

			if decision.Decision == "allow" {
				fmt.Printf("allow: actions %d/%d, in flight %d/%d, total cost %s\n",
					decision.Delegation.Usage.ActionsPerformed,
					decision.Delegation.Limits.MaxActions,
					decision.Delegation.Usage.ConcurrentTasksInFlight,
					decision.Delegation.Limits.MaxConcurrentTasks,
					decision.Delegation.Usage.TotalCost)
				return nil
			}
			fmt.Printf("deny (%s): %s\n", decision.Reason, decision.Message)
			return nil
		},
	}
	cmd.Flags().StringVar(&permission, "permission", "", "Permission to check")
	cmd.Flags().StringVar(&scopeStr, "scope", "global", "Requested scope: global, product:<id>, or sprint:<id>")
	cmd.Flags().StringVar(&cost, "cost", "0", "Estimated cost of the action")
	_ = cmd.MarkFlagRequired("permission")
	return cmd
}

func newReleaseCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "release <delegation-id>",
		Short: "Release a concurrency slot after a task finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := client.Release(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return printJSON(os.Stdout, d)
			}
			fmt.Printf("released: in flight %d/%d\n",
				d.Usage.ConcurrentTasksInFlight, d.Limits.MaxConcurrentTasks)
			return nil
		},
	}
}
