package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Ukasha007/mizuho-algolia/internal/config"
	pkgsync "github.com/Ukasha007/mizuho-algolia/internal/sync"
)

var syncCmd = &cobra.Command{
	Use:   "sync [unit]",
	Short: "Run a one-shot sync and exit",
	Long: `Run a single sync pass for the named unit, or for every configured
unit when no argument is given, then exit. Intended for cron jobs and
operator-driven backfills.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSync,
}

func init() {
	syncCmd.Flags().String("config", "", "Path to the configuration file")
	if err := syncCmd.MarkFlagRequired("config"); err != nil {
		slog.Error("Error marking config flag as required", "error", err)
	}
}

func runSync(cmd *cobra.Command, args []string) error {
	configureLogging()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to read config flag: %w", err)
	}

	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	deps, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer shutdownMeterProvider(deps)

	go func() {
		if err := deps.scheduler.Run(ctx); err != nil && !isContextErr(err) {
			slog.Error("Scheduler stopped", "error", err)
		}
	}()

	// A fresh execution identifier per invocation keeps repeated cron runs
	// from tripping the duplicate-trigger ledger.
	trigger := pkgsync.Trigger{
		ExecutionID: uuid.NewString(),
		Manual:      true,
	}

	var (
		results []*pkgsync.Result
		syncErr error
	)
	if len(args) == 1 {
		result, err := deps.service.SyncUnit(ctx, args[0], trigger)
		if result != nil {
			results = append(results, result)
		}
		syncErr = err
	} else {
		results, syncErr = deps.service.SyncAll(ctx, trigger)
	}

	for _, result := range results {
		output, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format sync result: %w", err)
		}
		fmt.Println(string(output))
	}

	if syncErr != nil {
		return fmt.Errorf("sync failed: %w", syncErr)
	}
	return nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
