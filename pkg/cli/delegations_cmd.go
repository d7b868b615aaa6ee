package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"scrumdeck/internal/domain"
)

func newDelegationsCmd(client *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "delegations",
		Aliases: []string{"delegation", "d"},
		Short:   "Manage agent delegations",
	}
	cmd.AddCommand(
		newDelegationsListCmd(client),
		newDelegationsGetCmd(client),
		newDelegationsCreateCmd(client),
		newDelegationsSuspendCmd(client),
		newDelegationsReactivateCmd(client),
		newDelegationsRevokeCmd(client),
		newDelegationsPurgeCmd(client),
	)
	return cmd
}

func newDelegationsListCmd(client *Client) *cobra.Command {
	var status, agentType string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your delegations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := client.ListDelegations(cmd.Context(), status, agentType)
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return printJSON(os.Stdout, out)
			}
			printDelegationTable(os.Stdout, out.Delegations)
			fmt.Printf("\n%d total: %d active, %d suspended, %d revoked, %d expired\n",
				out.Summary.Total, out.Summary.Active, out.Summary.Suspended,
				out.Summary.Revoked, out.Summary.Expired)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (active, suspended, revoked, expired)")
	cmd.Flags().StringVar(&agentType, "agent-type", "", "Filter by agent type")
	return cmd
}

func newDelegationsGetCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one delegation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := client.GetDelegation(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return renderDelegation(cmd, d)
		},
	}
}

func newDelegationsCreateCmd(client *Client) *cobra.Command {
	var (
		agentType   string
		permissions []string
		scopeStr    string
		maxActions  int64
		maxCost     string
		maxTasks    int64
		expiresIn   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a delegation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			scope, err := parseScope(scopeStr)
			if err != nil {
				return err
			}
			cost, err := decimal.NewFromString(maxCost)
			if err != nil {
				return fmt.Errorf("invalid --max-cost %q: %w", maxCost, err)
			}

			req := domain.CreateDelegationRequest{
				AgentType:   agentType,
				Permissions: permissions,
				Scope:       scope,
				Limits: domain.Limits{
					MaxActions:         maxActions,
					MaxCostPerAction:   cost,
					MaxConcurrentTasks: maxTasks,
				},
			}
			if expiresIn > 0 {
				t := time.Now().UTC().Add(expiresIn)
				req.ExpiresAt = &t
			}

			d, err := client.CreateDelegation(cmd.Context(), req)
			if err != nil {
				return err
			}
			return renderDelegation(cmd, d)
		},
	}
	cmd.Flags().StringVar(&agentType, "agent-type", "", "Agent type (product_owner, scrum_master, developer, qa_engineer)")
	cmd.Flags().StringSliceVar(&permissions, "permission", nil, "Permission to grant (repeatable)")
	cmd.Flags().StringVar(&scopeStr, "scope", "global", "Scope: global, product:<id>, or sprint:<id>")
	cmd.Flags().Int64Var(&maxActions, "max-actions", 100, "Maximum total actions")
	cmd.Flags().StringVar(&maxCost, "max-cost", "1.0", "Maximum cost per action")
	cmd.Flags().Int64Var(&maxTasks, "max-concurrent", 1, "Maximum concurrent tasks (1-10)")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "Expiry relative to now (e.g. 72h); zero means no expiry")
	_ = cmd.MarkFlagRequired("agent-type")
	_ = cmd.MarkFlagRequired("permission")
	return cmd
}

func newDelegationsSuspendCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "suspend <id>",
		Short: "Suspend an active delegation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := client.SuspendDelegation(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return renderDelegation(cmd, d)
		},
	}
}

func newDelegationsReactivateCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "reactivate <id>",
		Short: "Reactivate a suspended delegation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := client.ReactivateDelegation(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return renderDelegation(cmd, d)
		},
	}
}

func newDelegationsRevokeCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke a delegation (terminal)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := client.RevokeDelegation(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return renderDelegation(cmd, d)
		},
	}
}

func newDelegationsPurgeCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "purge <id>",
		Short: "Destroy a revoked/expired delegation (admin, after retention)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.PurgeDelegation(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("purged %s\n", args[0])
			return nil
		},
	}
}

func renderDelegation(cmd *cobra.Command, d *domain.Delegation) error {
	if getOutputFormat(cmd) == "json" {
		return printJSON(os.Stdout, d)
	}
	printDelegation(os.Stdout, d)
	return nil
}

// parseScope parses "global", "product:<id>", or "sprint:<id>".
func parseScope(s string) (domain.Scope, error) {
	if s == "" || s == "global" {
		return domain.GlobalScope(), nil
	}
	kind, id, ok := strings.Cut(s, ":")
	if ok && id != "" {
		switch kind {
		case "product":
			return domain.ProductScope(id), nil
		case "sprint":
			return domain.SprintScope(id), nil
		}
	}
	return domain.Scope{}, fmt.Errorf("invalid scope %q: use global, product:<id>, or sprint:<id>", s)
}
