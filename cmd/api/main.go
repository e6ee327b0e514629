package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/mbianchi/document-worker/internal/adapters/http"
	"github.com/mbianchi/document-worker/internal/bootstrap"
	"github.com/mbianchi/document-worker/internal/config"
	"github.com/mbianchi/document-worker/internal/observability/logging"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("document-worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	router := httpadapter.NewRouter(app.Processor, httpadapter.RouterOptions{
		Service:        "document-worker",
		Version:        version,
		MaxUploadBytes: cfg.MaxFileSizeBytes(),
		Features: httpadapter.Features{
			Tabular:     cfg.EnableTabular,
			PDF:         cfg.EnablePDF,
			AdvancedPDF: cfg.EnableAdvancedPDF,
			OCR:         cfg.EnableOCR,
			Vision:      cfg.EnableVision,
		},
		LLMConfigured:  cfg.LLMAPIKey != "",
		NATSConfigured: app.NATSConfigured,
		Metrics:        app.Metrics,
	}).Handler()

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "port", cfg.APIPort, "version", version)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_error", "error", err)
	}
}
