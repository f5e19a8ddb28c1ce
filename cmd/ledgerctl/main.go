package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tutorledger/internal/app"
	"tutorledger/internal/config"
	"tutorledger/internal/ledger"
	"tutorledger/internal/logger"
	"tutorledger/internal/syncer"
)

var userID string

// env is what every subcommand needs once flags are parsed.
type env struct {
	cfg    config.App
	log    zerolog.Logger
	stores *app.Stores
	ledger *ledger.Service
}

func open(ctx context.Context) (*env, error) {
	if userID == "" {
		return nil, errors.New("--user is required")
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(logger.Options{Level: cfg.LogLevel, Pretty: true, File: cfg.LogFile})
	stores, err := app.OpenStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: log, stores: stores, ledger: ledger.NewService(stores.Local, log)}, nil
}

func main() {
	root := &cobra.Command{
		Use:          "ledgerctl",
		Short:        "Operate on tutor ledgers from the command line",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&userID, "user", "u", "", "user id that owns the ledger")

	root.AddCommand(exportCmd(), importCmd(), syncCmd(), summaryCmd())
	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func exportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the ledger as a backup file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.stores.Close()
			raw, err := e.ledger.Export(cmd.Context(), userID)
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(append(raw, '\n'))
				return err
			}
			return os.WriteFile(out, raw, 0o600)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}

func importCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace the ledger with a backup file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			e, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.stores.Close()
			snap, err := e.ledger.Import(cmd.Context(), userID, raw)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d students, %d sessions, %d marks\n",
				len(snap.Students), len(snap.Hours), len(snap.Marks))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "backup file to import")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle against the configured remote",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.stores.Close()
			coord := syncer.New(e.stores.Local, e.stores.Remote, syncer.WithLogger(e.log))
			res := coord.Sync(cmd.Context(), userID, syncer.TriggerManual)
			fmt.Fprintf(cmd.OutOrStdout(), "outcome=%s winner=%s reason=%s\n", res.Outcome, res.Winner, res.Reason)
			if res.Outcome == syncer.OutcomeFailed {
				return res.Err
			}
			return nil
		},
	}
}

func summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Print ledger totals as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.stores.Close()
			snap, err := e.ledger.Snapshot(cmd.Context(), userID)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(ledger.Summarize(snap))
		},
	}
}
