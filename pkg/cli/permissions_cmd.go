package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newPermissionsCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "permissions",
		Short: "List the permission catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := client.ListPermissions(cmd.Context())
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return printJSON(os.Stdout, entries)
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PERMISSION\tAGENT TYPES\tDESCRIPTION")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Name, strings.Join(e.AllowedAgentTypes, ", "), e.Description)
			}
			return tw.Flush()
		},
	}
}

func newSprintsCmd(client *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sprints",
		Short: "Manage sprint ownership records",
	}

	var name string
	register := &cobra.Command{
		Use:   "register <sprint-id> <product-id>",
		Short: "Register which product owns a sprint",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := client.RegisterSprint(cmd.Context(), args[0], args[1], name)
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return printJSON(os.Stdout, s)
			}
			fmt.Printf("sprint %s registered to product %s\n", s.ID, s.ProductID)
			return nil
		},
	}
	register.Flags().StringVar(&name, "name", "", "Human-readable sprint name")

	cmd.AddCommand(register)
	return cmd
}
