package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command with every subcommand attached
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	lrCommand := command{global: globalFlags}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(lrCommand, &ServeFlags{}),
		createEntriesCommand(lrCommand, &EntriesFlags{}),
		createRegisterCommand(lrCommand, &RegisterFlags{}),
		createUnregisterCommand(lrCommand, &TabFlags{}),
		createEventCommand(lrCommand),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "lazyrestore",
		Short: "Lazy tab restore scheduler",
		Long: `lazyrestore tracks placeholder tabs reopened without loading their
content and asks the browser host to discard them as soon as it is safe.

Examples:
  lazyrestore serve --config=lazyrestore.toml
  lazyrestore register --tab-id=12 --target-url=https://example.com
  lazyrestore event activated --tab-id=12
  lazyrestore entries --api-url=http://127.0.0.1:7797/api`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

func addAPIFlags(cmd *cobra.Command, f *APIFlags) {
	cmd.Flags().StringVar(&f.APIUrl, "api-url", "", "daemon URL (e.g. http://127.0.0.1:7797/api)")
	cmd.Flags().DurationVar(&f.APITimeout, "api-timeout", 10*time.Second, "request timeout")
}

func markRequired(cmd *cobra.Command, names ...string) {
	for _, n := range names {
		if err := cmd.MarkFlagRequired(n); err != nil {
			panic(err)
		}
	}
}

// createServeCommand creates the serve subcommand
func createServeCommand(lr command, serveFlags *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the lazyrestore daemon",
		Long: `Start the daemon: HTTP API, host WebSocket bridge, sweeper and metrics.
Configuration comes from --config, LAZYRESTORE_* environment variables and
the flags below.

Examples:
  lazyrestore serve
  lazyrestore serve --config=lazyrestore.toml --listen=127.0.0.1:9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return lr.Serve(cmd.Context(), *serveFlags)
		},
	}
	cmd.Flags().StringVar(&serveFlags.Listen, "listen", "", "override [server].listen")
	cmd.Flags().StringVar(&serveFlags.StoreDSN, "store", "", "override [store].dsn")
	cmd.Flags().DurationVar(&serveFlags.ShutdownTimeout, "shutdown-timeout", 10*time.Second, "graceful shutdown timeout")
	return cmd
}

// createEntriesCommand creates the entries subcommand
func createEntriesCommand(lr command, entriesFlags *EntriesFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entries",
		Short: "List tracked placeholder tabs",
		Long: `List tracked placeholder tabs. Without --api-url the persisted
restore map is read straight from the configured store.

Examples:
  lazyrestore entries --store=sqlite:///var/lib/lazyrestore/state.db
  lazyrestore entries --api-url=http://127.0.0.1:7797/api`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return lr.Entries(cmd.Context(), cmd.OutOrStdout(), *entriesFlags)
		},
	}
	cmd.Flags().StringVar(&entriesFlags.StoreDSN, "store", "", "override [store].dsn")
	addAPIFlags(cmd, &entriesFlags.APIFlags)
	return cmd
}

// createRegisterCommand creates the register subcommand
func createRegisterCommand(lr command, registerFlags *RegisterFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Track a placeholder tab",
		Long: `Register a placeholder tab with the daemon.

Examples:
  lazyrestore register --tab-id=12 --target-url=https://example.com
  lazyrestore register --tab-id=12 --target-url=https://example.com --created-at=2024-05-01T12:00:00Z`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return lr.Register(cmd.Context(), cmd.OutOrStdout(), *registerFlags)
		},
	}
	cmd.Flags().IntVar(&registerFlags.TabID, "tab-id", -1, "tab id (required)")
	cmd.Flags().StringVar(&registerFlags.TargetURL, "target-url", "", "URL the placeholder restores (required)")
	cmd.Flags().StringVar(&registerFlags.CreatedAt, "created-at", "", "registration time (RFC3339, default now)")
	addAPIFlags(cmd, &registerFlags.APIFlags)
	markRequired(cmd, "tab-id", "target-url")
	return cmd
}

// createUnregisterCommand creates the unregister subcommand
func createUnregisterCommand(lr command, tabFlags *TabFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unregister",
		Short: "Stop tracking a placeholder tab",
		Long: `Unregister a placeholder tab and cancel its pending discard.

Examples:
  lazyrestore unregister --tab-id=12`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return lr.Unregister(cmd.Context(), cmd.OutOrStdout(), *tabFlags)
		},
	}
	cmd.Flags().IntVar(&tabFlags.TabID, "tab-id", -1, "tab id (required)")
	addAPIFlags(cmd, &tabFlags.APIFlags)
	markRequired(cmd, "tab-id")
	return cmd
}

// createEventCommand creates the event subcommand and its children
func createEventCommand(lr command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Deliver a tab notification to the daemon",
		Long: `Deliver a tab notification as the browser host would.

Examples:
  lazyrestore event updated --tab-id=12 --url=https://example.com --status=loading
  lazyrestore event activated --tab-id=12
  lazyrestore event removed --tab-id=12`,
	}

	updatedFlags := &UpdatedFlags{}
	updated := &cobra.Command{
		Use:   "updated",
		Short: "Report a tab update",
		RunE: func(cmd *cobra.Command, args []string) error {
			return lr.Updated(cmd.Context(), cmd.OutOrStdout(), *updatedFlags)
		},
	}
	updated.Flags().IntVar(&updatedFlags.TabID, "tab-id", -1, "tab id (required)")
	updated.Flags().StringVar(&updatedFlags.ChangeURL, "change-url", "", "URL carried by the change")
	updated.Flags().StringVar(&updatedFlags.Status, "status", "", "change status (loading, complete)")
	updated.Flags().StringVar(&updatedFlags.URL, "url", "", "tab URL")
	updated.Flags().StringVar(&updatedFlags.PendingURL, "pending-url", "", "tab pending URL")
	updated.Flags().BoolVar(&updatedFlags.Active, "active", false, "tab is active")
	updated.Flags().BoolVar(&updatedFlags.Discarded, "discarded", false, "tab is discarded")
	addAPIFlags(updated, &updatedFlags.APIFlags)
	markRequired(updated, "tab-id")

	activatedFlags := &TabFlags{}
	activated := &cobra.Command{
		Use:   "activated",
		Short: "Report a tab activation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return lr.Activated(cmd.Context(), cmd.OutOrStdout(), *activatedFlags)
		},
	}
	activated.Flags().IntVar(&activatedFlags.TabID, "tab-id", -1, "tab id (required)")
	addAPIFlags(activated, &activatedFlags.APIFlags)
	markRequired(activated, "tab-id")

	removedFlags := &TabFlags{}
	removed := &cobra.Command{
		Use:   "removed",
		Short: "Report a closed tab",
		RunE: func(cmd *cobra.Command, args []string) error {
			return lr.Removed(cmd.Context(), cmd.OutOrStdout(), *removedFlags)
		},
	}
	removed.Flags().IntVar(&removedFlags.TabID, "tab-id", -1, "tab id (required)")
	addAPIFlags(removed, &removedFlags.APIFlags)
	markRequired(removed, "tab-id")

	cmd.AddCommand(updated, activated, removed)
	return cmd
}
