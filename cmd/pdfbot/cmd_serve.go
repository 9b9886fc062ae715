package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/pdfbot/internal/dispatch"
	"github.com/user/pdfbot/internal/pdf"
	"github.com/user/pdfbot/internal/pipeline"
	"github.com/user/pdfbot/internal/scheduler"
	"github.com/user/pdfbot/internal/session"
	"github.com/user/pdfbot/internal/telegram"
	"github.com/user/pdfbot/internal/webhook"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the pdfbot webhook daemon",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token not configured (set telegram.token or TELEGRAM_BOT_TOKEN)")
	}

	fetchTimeout := time.Duration(cfg.FetchTimeoutSeconds) * time.Second

	gw, err := telegram.New(cfg.Telegram.Token, fetchTimeout, cfg.Limits.MaxDocumentBytes)
	if err != nil {
		return fmt.Errorf("create telegram gateway: %w", err)
	}

	store := session.New(session.Limits{
		MaxDocuments:  cfg.Limits.MaxDocuments,
		MaxTotalBytes: cfg.Limits.MaxSessionBytes,
	})
	pipe := pipeline.New(pdf.New())
	disp := dispatch.New(store, gw, pipe, fetchTimeout)

	queue := dispatch.NewQueue(int64(cfg.MaxConcurrent))
	queue.SetHandler(disp.Dispatch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue.Start(ctx)
	defer queue.Stop()

	ttl := time.Duration(cfg.Limits.SessionTTLMinutes) * time.Minute
	sweeper := scheduler.New(store, gw, ttl)
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("start session sweeper: %w", err)
	}
	defer sweeper.Stop()

	srv := webhook.NewServer(queue.Enqueue)
	httpServer := &http.Server{
		Addr:    cfg.HTTP.Listen,
		Handler: srv,
	}
	go func() {
		slog.Info("webhook server started", "listen", cfg.HTTP.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("webhook server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		httpServer.Close()
	}()

	slog.Info("pdfbot started",
		"listen", cfg.HTTP.Listen,
		"log_level", cfg.LogLevel,
		"max_concurrent", cfg.MaxConcurrent,
		"max_documents", cfg.Limits.MaxDocuments,
		"max_session_bytes", cfg.Limits.MaxSessionBytes,
		"session_ttl", ttl,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	slog.Info("shutting down", "signal", sig)
	return nil
}
