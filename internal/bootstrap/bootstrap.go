// Package bootstrap wires configuration into the pipeline's concrete
// adapters.
package bootstrap

import (
	"fmt"
	"time"

	"github.com/mbianchi/document-worker/internal/config"
	"github.com/mbianchi/document-worker/internal/core/domain"
	"github.com/mbianchi/document-worker/internal/core/ports"
	"github.com/mbianchi/document-worker/internal/core/usecase"
	"github.com/mbianchi/document-worker/internal/infrastructure/llm/openrouter"
	"github.com/mbianchi/document-worker/internal/infrastructure/ocr"
	"github.com/mbianchi/document-worker/internal/infrastructure/pdfextract"
	"github.com/mbianchi/document-worker/internal/infrastructure/queue/nats"
	"github.com/mbianchi/document-worker/internal/infrastructure/sniffer"
	"github.com/mbianchi/document-worker/internal/infrastructure/storage/localfs"
	"github.com/mbianchi/document-worker/internal/infrastructure/tabular"
	"github.com/mbianchi/document-worker/internal/observability/metrics"
)

const serviceName = "document-worker"

type App struct {
	Config    config.Config
	Processor ports.DocumentProcessor
	Metrics   *metrics.HTTPServerMetrics

	NATSConfigured bool

	closeFn func()
}

func New(cfg config.Config) (*App, error) {
	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	runner := ocr.ExecRunner{}
	engine := ocr.NewEngine(runner, cfg.TesseractBin, cfg.OCRLanguage, cfg.OCRDPI)
	pipeline := ocr.NewPipeline(engine, cfg.StoragePath)

	llmClient := openrouter.NewClient(openrouter.Config{
		BaseURL:          cfg.LLMAPIURL,
		APIKey:           cfg.LLMAPIKey,
		Model:            cfg.LLMModel,
		Timeout:          cfg.LLMTimeout,
		MaxRetries:       cfg.LLMMaxRetries,
		RetryBaseBackoff: cfg.LLMRetryBaseBackoff,
		RetryMaxBackoff:  cfg.LLMRetryMaxBackoff,
		RateRPS:          cfg.LLMRateRPS,
		PromptMaxChars:   cfg.LLMPromptMaxChars,
	})

	var events ports.EventPublisher = nats.NoopPublisher{}
	var closeQueue func()
	natsConfigured := false
	if cfg.NATSURL != "" {
		publisher, err := nats.New(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			return nil, fmt.Errorf("init event publisher: %w", err)
		}
		events = publisher
		closeQueue = publisher.Close
		natsConfigured = true
	}

	serverMetrics := metrics.NewHTTPServerMetrics(serviceName)

	processor := usecase.NewProcessor(usecase.Policies{
		MaxFileSizeBytes:         cfg.MaxFileSizeBytes(),
		HeuristicConfidence:      cfg.HeuristicConfidence,
		VisionOverrideConfidence: cfg.VisionOverrideConfidence,
		OCRMinTextChars:          cfg.OCRMinTextChars,
		OCRLowConfidence:         cfg.OCRLowConfidence,
		EnableTabular:            cfg.EnableTabular,
		EnablePDF:                cfg.EnablePDF,
		EnableOCR:                cfg.EnableOCR,
		EnableVision:             cfg.EnableVision,
	}, usecase.ProcessorDeps{
		Storage: storage,
		Sniffer: sniffer.New(cfg.PDFNativeTextThreshold),
		Tabular: tabular.New(),
		PDF:     pdfextract.New(runner, pipeline, cfg.PdftoppmBin, cfg.OCRDPI, cfg.StoragePath),
		Images:  pipeline,
		Text:    llmClient,
		Vision:  llmClient,
		Events:  events,
		Metrics: metricsRecorder{serverMetrics},
	})

	return &App{
		Config:         cfg,
		Processor:      processor,
		Metrics:        serverMetrics,
		NATSConfigured: natsConfigured,
		closeFn: func() {
			if closeQueue != nil {
				closeQueue()
			}
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// metricsRecorder adapts the Prometheus surface to the pipeline's
// observation sink.
type metricsRecorder struct {
	m *metrics.HTTPServerMetrics
}

func (r metricsRecorder) Document(format domain.DetectedFormat, docType domain.DocumentType, duration time.Duration) {
	r.m.RecordDocument(serviceName, format, docType, duration)
}

func (r metricsRecorder) OCRConfidence(confidence float64) {
	r.m.RecordOCRConfidence(serviceName, confidence)
}

func (r metricsRecorder) LLMCall(mode string, failed bool) {
	r.m.RecordLLMCall(serviceName, mode, failed)
}

func (r metricsRecorder) HeuristicFallback() {
	r.m.RecordHeuristicFallback(serviceName)
}
