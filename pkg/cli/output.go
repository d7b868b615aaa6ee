package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"scrumdeck/internal/domain"
)

// getOutputFormat returns the effective output format from the root command.
func getOutputFormat(cmd *cobra.Command) string {
	v, _ := cmd.Root().PersistentFlags().GetString("output")
	return v
}

func validateOutputFormat(output string) error {
	if output != "" && output != "table" && output != "json" {
		return fmt.Errorf("unsupported output format %q: use 'table' or 'json'", output)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printDelegationTable renders delegations as an aligned table.
func printDelegationTable(w io.Writer, ds []domain.Delegation) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tAGENT TYPE\tSTATUS\tSCOPE\tACTIONS\tIN FLIGHT\tCOST")
	for i := range ds {
		d := &ds[i]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d/%d\t%d/%d\t%s\n",
			d.ID, d.AgentType, d.Status, d.Scope,
			d.Usage.ActionsPerformed, d.Limits.MaxActions,
			d.Usage.ConcurrentTasksInFlight, d.Limits.MaxConcurrentTasks,
			d.Usage.TotalCost)
	}
	tw.Flush() //nolint:errcheck
}

// printDelegation renders one delegation as key/value rows.
func printDelegation(w io.Writer, d *domain.Delegation) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", d.ID)
	fmt.Fprintf(tw, "Principal:\t%s\n", d.PrincipalID)
	fmt.Fprintf(tw, "Agent type:\t%s\n", d.AgentType)
	fmt.Fprintf(tw, "Status:\t%s\n", d.Status)
	fmt.Fprintf(tw, "Scope:\t%s\n", d.Scope)
	fmt.Fprintf(tw, "Permissions:\t%s\n", strings.Join(d.Permissions, ", "))
	fmt.Fprintf(tw, "Actions:\t%d/%d\n", d.Usage.ActionsPerformed, d.Limits.MaxActions)
	fmt.Fprintf(tw, "In flight:\t%d/%d\n", d.Usage.ConcurrentTasksInFlight, d.Limits.MaxConcurrentTasks)
	fmt.Fprintf(tw, "Total cost:\t%s (max %s per action)\n", d.Usage.TotalCost, d.Limits.MaxCostPerAction)
	if d.ExpiresAt != nil {
		fmt.Fprintf(tw, "Expires:\t%s\n", d.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Fprintf(tw, "Version:\t%d\n", d.Version)
	tw.Flush() //nolint:errcheck
}
