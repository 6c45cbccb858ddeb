package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dreschagin/dashboard-extractor/internal/application/dto"
	"github.com/dreschagin/dashboard-extractor/internal/extraction"
	"github.com/dreschagin/dashboard-extractor/pkg/config"
	"github.com/dreschagin/dashboard-extractor/pkg/logger"
)

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single extraction cycle and print the result as JSON",
	Long: `Opens the browser session, runs exactly one cycle and prints the /data
payload to stdout. Exit code 2 means the cycle finished without a usable record.`,
	RunE: runOnce,
}

func runOnce(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logLevel)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	result, runErr := a.loop.RunSingle(ctx)
	status, record := a.state.Read()

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(dto.DataResponse{Status: status, Data: record}); err != nil {
		return err
	}

	if code := exitCode(result, runErr); code != 0 {
		if runErr != nil {
			log.Error("Extraction cycle failed", runErr)
		}
		a.close()
		os.Exit(code)
	}
	return nil
}

// exitCode для once: 0 - запись обновлена, 2 - цикл выполнен без записи, 1 - ошибка.
func exitCode(result extraction.CycleResult, err error) int {
	switch {
	case err != nil:
		return 1
	case result.Outcome.Record.IsUsable():
		return 0
	default:
		return 2
	}
}
