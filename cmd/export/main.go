package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/DevN0mad/SprintGantt/internal/config"
	"github.com/DevN0mad/SprintGantt/internal/server"
	"github.com/DevN0mad/SprintGantt/internal/services"
	"github.com/DevN0mad/SprintGantt/internal/storage"
)

var Version = "dev"

type globalFlags struct {
	configPath string
	input      string
	out        string
	record     bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags globalFlags

	rootCmd := &cobra.Command{
		Use:           "export",
		Short:         "Build Gantt chart workbooks from a GitHub Projects TSV export",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to YAML config (defaults are used when empty)")
	rootCmd.PersistentFlags().StringVarP(&flags.input, "input", "i", "", "Path to the TSV export")
	rootCmd.PersistentFlags().StringVarP(&flags.out, "out", "o", "", "Output directory")
	rootCmd.PersistentFlags().BoolVar(&flags.record, "record", false, "Record runs in the sqlite history")

	rootCmd.AddCommand(reportCmd(&flags, "sprints", "Workbook with one sheet per sprint", services.KindSprint))
	rootCmd.AddCommand(reportCmd(&flags, "assignees", "Workbook with one sheet per member and sprint", services.KindAssignee))
	rootCmd.AddCommand(reportCmd(&flags, "all", "Both workbooks", services.KindSprint, services.KindAssignee))
	rootCmd.AddCommand(tokenCmd(&flags))
	return rootCmd
}

func loadConfig(flags *globalFlags) (config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if flags.input != "" {
		cfg.Report.InputPath = flags.input
	}
	if flags.out != "" {
		cfg.Report.OutputDir = flags.out
	}
	return cfg, nil
}

func reportCmd(flags *globalFlags, use, short string, kinds ...services.ReportKind) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), nil))

			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			var recorder services.RunRecorder
			if flags.record {
				store, err := storage.NewExportStorage(cfg.Storage.Path, logger)
				if err != nil {
					return err
				}
				defer store.Close()
				recorder = store
			}

			reports, err := services.NewReportService(cfg.Report, recorder, logger)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			for _, kind := range kinds {
				res, err := reports.Generate(cmd.Context(), kind)
				if err != nil {
					return fmt.Errorf("%s report: %w", kind, err)
				}
				if err := enc.Encode(res); err != nil {
					return fmt.Errorf("write result: %w", err)
				}
			}
			return nil
		},
	}
}

func tokenCmd(flags *globalFlags) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			token, err := server.NewToken(cfg.HttpServer.AuthSecret, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "admin", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
