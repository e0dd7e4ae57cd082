package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "fluffyshare",
		Short: "Rank social accounts by engagement with the FluffyBears brand",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "logging level (debug, info, warn, error)")

	root.AddCommand(ingestCmd())
	root.AddCommand(recomputeCmd())
	root.AddCommand(leaderboardCmd())
	root.AddCommand(exportCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())

	return root
}

func ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <export-file> [<export-file>...]",
		Short: "Normalize post exports and append them to the raw log",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(args)
		},
	}
}

func recomputeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recompute",
		Short: "Run one aggregation batch and publish a new snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecompute()
		},
	}
}

func leaderboardCmd() *cobra.Command {
	var (
		window     string
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the published leaderboard for a window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLeaderboard(window, limit, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&window, "window", "7d", "leaderboard window (7d, 30d, 90d)")
	cmd.Flags().IntVar(&limit, "limit", 0, "max entries to show (default: from config)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func exportCmd() *cobra.Command {
	var (
		window string
		out    string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the published leaderboard as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(window, out)
		},
	}

	cmd.Flags().StringVar(&window, "window", "7d", "leaderboard window (7d, 30d, 90d)")
	cmd.Flags().StringVar(&out, "out", "", "output file (default: stdout)")
	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the read-only HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with scheduled recomputes and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}
