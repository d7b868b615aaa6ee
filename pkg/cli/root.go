// Package cli implements the scrumdeck command-line interface.
package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		output, _ := rootCmd.PersistentFlags().GetString("output")
		if output == "json" {
			errObj := map[string]any{"error": err.Error()}
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				errObj["http_status"] = apiErr.HTTPStatus
				errObj["reason"] = apiErr.Reason
			}
			_ = printJSON(os.Stdout, errObj)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var (
		host    string
		apiKey  string
		token   string
		output  string
		profile string
	)

	rootCmd := &cobra.Command{
		Use:           "scrumdeck",
		Short:         "Agent delegation CLI",
		Long:          "Command-line interface for the agent delegation and authorization API.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Accept underscore spellings (--agent_type) as dashed flags.
	rootCmd.SetGlobalNormalizationFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	rootCmd.PersistentFlags().StringVar(&host, "host", "http://localhost:8080", "API host URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key for authentication")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "JWT token for authentication")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format (table, json)")
	rootCmd.PersistentFlags().StringVarP(&profile, "profile", "p", "", "Config profile to use")

	client := NewClient(host, apiKey, token)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := LoadUserConfig()
		if err != nil {
			// Config file is optional.
			cfg = &UserConfig{CurrentProfile: "default", Profiles: map[string]Profile{}}
		}
		p := cfg.ActiveProfile(profile)

		// Precedence: flag > env > profile > default.
		if !cmd.Flags().Changed("host") {
			if v := os.Getenv("SCRUMDECK_HOST"); v != "" {
				host = v
			} else if p.Host != "" {
				host = p.Host
			}
		}
		if !cmd.Flags().Changed("api-key") {
			if v := os.Getenv("SCRUMDECK_API_KEY"); v != "" {
				apiKey = v
			} else if p.APIKey != "" {
				apiKey = p.APIKey
			}
		}
		if !cmd.Flags().Changed("token") {
			if v := os.Getenv("SCRUMDECK_TOKEN"); v != "" {
				token = v
			} else if p.Token != "" {
				token = p.Token
			}
		}
		if !cmd.Flags().Changed("output") {
			if v := os.Getenv("SCRUMDECK_OUTPUT"); v != "" {
				output = v
			} else if p.Output != "" {
				output = p.Output
			}
		}
		if err := validateOutputFormat(output); err != nil {
			return err
		}

		client.BaseURL = host
		client.APIKey = apiKey
		client.Token = token
		return nil
	}

	rootCmd.AddCommand(newDelegationsCmd(client))
	rootCmd.AddCommand(newCheckCmd(client))
	rootCmd.AddCommand(newReleaseCmd(client))
	rootCmd.AddCommand(newPermissionsCmd(client))
	rootCmd.AddCommand(newSprintsCmd(client))
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCompletionCmd())

	return rootCmd
}

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(os.Stdout)
			case "zsh":
				return cmd.Root().GenZshCompletion(os.Stdout)
			case "fish":
				return cmd.Root().GenFishCompletion(os.Stdout, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
			default:
				return fmt.Errorf("unsupported shell: %s", args[0])
			}
		},
	}
}
