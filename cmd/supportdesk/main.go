// Command supportdesk runs the support desk: the HTTP API over the issue
// store, the requester-facing user bot, the staff-facing admin bot, or all
// three in one process.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-support-desk/internal/config"
)

var version = "dev"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFiles []string

	root := &cobra.Command{
		Use:           "supportdesk",
		Short:         "Customer support desk with automatic answers and human escalation",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(envFiles...); err != nil {
				return fmt.Errorf("load env files: %w", err)
			}
			return nil
		},
	}
	root.PersistentFlags().StringSliceVar(&envFiles, "env", nil, "dotenv files to load before reading the environment (default ./.env)")

	root.AddCommand(
		newServeCmd(),
		newUserBotCmd(),
		newAdminBotCmd(),
		newRunCmd(),
		newMigrateCmd(),
		newFAQCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), "supportdesk", version)
			},
		},
	)
	return root
}
