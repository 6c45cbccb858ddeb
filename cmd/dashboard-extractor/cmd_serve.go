package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dreschagin/dashboard-extractor/pkg/config"
	"github.com/dreschagin/dashboard-extractor/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the extraction loop and the HTTP server",
	Long: `Starts the background extraction loop and serves /data, /debug_screenshot,
the status API and the static page. A terminated loop does not stop the HTTP
server: clients keep seeing the last record and the fatal status.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	// 1. Загружаем конфигурацию
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// 2. Инициализируем logger
	log := logger.New(logLevel)
	defer log.Sync()
	log.Info("Starting dashboard extractor", "version", version, "target", cfg.Target.URL)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Собираем зависимости
	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      a.handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// 4. Запускаем фоновые процессы
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.hub.Run()
		return nil
	})

	g.Go(func() error {
		log.Info("HTTP server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		// терминальная остановка цикла не гасит HTTP
		if err := a.loop.Run(gctx); err != nil {
			log.Error("Extraction loop stopped", err)
		}
		return nil
	})

	// 5. Ожидаем сигнал для graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutdown signal received, starting graceful shutdown...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		a.hub.Stop()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("Server shutdown error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Server stopped gracefully")
	return nil
}
