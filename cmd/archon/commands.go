package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/archon-dev/archon/internal/auth"
	"github.com/archon-dev/archon/internal/config"
	"github.com/archon-dev/archon/internal/jobs"
	"github.com/archon-dev/archon/internal/stream"
	"github.com/archon-dev/archon/internal/watch"
	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var log = logging.Logger("archon")

func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:          "archon",
		Short:        "Start and follow background jobs on an archon server",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logging.SetLogLevel("*", logLevel)
		},
	}
	root.PersistentFlags().String("server", "", "API base URL (default from server.url)")
	root.PersistentFlags().String("token", "", "Bearer token (default from server.token)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "error", "Log level for diagnostic output")
	cobra.CheckErr(viper.BindPFlag("server.url", root.PersistentFlags().Lookup("server")))
	cobra.CheckErr(viper.BindPFlag("server.token", root.PersistentFlags().Lookup("token")))

	root.AddCommand(newWatchCmd(), newScanCmd(), newHashTokenCmd())
	return root
}

func newWatchCmd() *cobra.Command {
	var jsonLines bool
	cmd := &cobra.Command{
		Use:   "watch <jobID>",
		Short: "Follow the progress of a job until it ends",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return follow(cmd, newClient(cfg), args[0], jsonLines)
		},
	}
	cmd.Flags().BoolVar(&jsonLines, "json", false, "Print one JSON snapshot per line")
	return cmd
}

func newScanCmd() *cobra.Command {
	var jsonLines bool
	cmd := &cobra.Command{
		Use:   "scan [path]",
		Short: "Start a library scan, optionally of one subdirectory, and follow it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			client := newClient(cfg)

			req := stream.StartJobRequest{Kind: jobs.KindScan}
			if len(args) == 1 {
				req.Path = args[0]
			}
			snap, err := client.StartJob(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "started job %s\n", snap.JobID)
			return follow(cmd, client, string(snap.JobID), jsonLines)
		},
	}
	cmd.Flags().BoolVar(&jsonLines, "json", false, "Print one JSON snapshot per line")
	return cmd
}

func newHashTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-token <token>",
		Short: "Print a bcrypt hash of an API token for auth.token_hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashToken(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func newClient(cfg *config.Config) *stream.Client {
	return stream.NewClient(cfg.Server.URL,
		stream.WithToken(cfg.Server.Token),
		stream.WithPolicy(cfg.StreamPolicy()),
	)
}

// follow renders the job's stream until it ends. SIGINT and SIGTERM close
// the stream and exit non-zero.
func follow(cmd *cobra.Command, client *stream.Client, jobID string, jsonLines bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	var summaryOut io.Writer = out
	if jsonLines {
		summaryOut = cmd.ErrOrStderr()
	}

	r := watch.NewRenderer(out, cmd.ErrOrStderr(), jsonLines)
	_, err := watch.Run(ctx, client, jobID, r)
	fmt.Fprintln(summaryOut, r.Summary())
	if err != nil && ctx.Err() != nil && cmd.Context().Err() == nil {
		log.Debugf("job %s: interrupted", jobID)
		return fmt.Errorf("interrupted")
	}
	return err
}
