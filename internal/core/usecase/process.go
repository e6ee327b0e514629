// Package usecase orchestrates the document pipeline: sniff, extract,
// classify, assemble.
package usecase

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/mbianchi/document-worker/internal/core/domain"
	"github.com/mbianchi/document-worker/internal/core/ports"
)

// Policies are the tunable decision thresholds of the pipeline.
type Policies struct {
	MaxFileSizeBytes         int64
	HeuristicConfidence      float64
	VisionOverrideConfidence float64
	OCRMinTextChars          int
	OCRLowConfidence         float64

	EnableTabular bool
	EnablePDF     bool
	EnableOCR     bool
	EnableVision  bool
}

// Metrics is the pipeline's observation sink. A nil recorder is valid.
type Metrics interface {
	Document(format domain.DetectedFormat, docType domain.DocumentType, duration time.Duration)
	OCRConfidence(confidence float64)
	LLMCall(mode string, failed bool)
	HeuristicFallback()
}

type Processor struct {
	policies Policies

	storage  ports.ObjectStorage
	sniffer  ports.FormatSniffer
	tabular  ports.TabularDecoder
	pdf      ports.PDFExtractor
	images   ports.ImagePipeline
	text     ports.TextAnalyzer
	vision   ports.VisionAnalyzer
	events   ports.EventPublisher
	detector *Detector
	metrics  Metrics
}

type ProcessorDeps struct {
	Storage ports.ObjectStorage
	Sniffer ports.FormatSniffer
	Tabular ports.TabularDecoder
	PDF     ports.PDFExtractor
	Images  ports.ImagePipeline
	Text    ports.TextAnalyzer
	Vision  ports.VisionAnalyzer
	Events  ports.EventPublisher
	Metrics Metrics
}

func NewProcessor(policies Policies, deps ProcessorDeps) *Processor {
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	events := deps.Events
	if events == nil {
		events = noopPublisher{}
	}
	return &Processor{
		policies: policies,
		storage:  deps.Storage,
		sniffer:  deps.Sniffer,
		tabular:  deps.Tabular,
		pdf:      deps.PDF,
		images:   deps.Images,
		text:     deps.Text,
		vision:   deps.Vision,
		events:   events,
		detector: NewDetector(),
		metrics:  metrics,
	}
}

// Process runs the full pipeline for one upload. Client input errors
// (unsupported extension, oversize, empty filename) come back as typed
// errors; everything downstream of acceptance resolves to a
// ProcessingResult, degraded or terminal as needed.
func (p *Processor) Process(ctx context.Context, upload domain.RawUpload, typeHint domain.DocumentType) (*domain.ProcessingResult, error) {
	started := time.Now()

	if strings.TrimSpace(upload.Filename) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "usecase.Process",
			fmt.Errorf("missing filename"))
	}
	if p.policies.MaxFileSizeBytes > 0 && int64(len(upload.Content)) > p.policies.MaxFileSizeBytes {
		return nil, domain.WrapError(domain.ErrFileTooLarge, "usecase.Process",
			fmt.Errorf("%d bytes exceeds limit of %d MB",
				len(upload.Content), p.policies.MaxFileSizeBytes/(1024*1024)))
	}
	if typeHint != "" && !domain.IsCategory(typeHint) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "usecase.Process",
			fmt.Errorf("unknown document type hint %q", typeHint))
	}

	documentID := uuid.NewString()
	hash := md5.Sum(upload.Content)

	cleanup := p.stash(ctx, documentID, upload)
	defer cleanup()

	outcome, result := p.run(ctx, assembleInput{
		DocumentID: documentID,
		Filename:   upload.Filename,
		FileSize:   int64(len(upload.Content)),
		MD5Hash:    hex.EncodeToString(hash[:]),
		Started:    started,
	}, upload, typeHint)
	if result == nil {
		// Rejected before pipeline entry.
		return nil, outcome.asError
	}

	cleanup()

	p.metrics.Document(outcome.detected, result.Classification.Type, time.Since(started))
	if err := p.events.PublishDocumentProcessed(ctx, result); err != nil {
		slog.Warn("processed_event_publish_failed",
			"document_id", result.DocumentID, "error", err)
	}
	return result, nil
}

// ProcessForAssistant runs the pipeline and reshapes the result for a
// downstream assistant.
func (p *Processor) ProcessForAssistant(ctx context.Context, upload domain.RawUpload, typeHint domain.DocumentType) (*domain.AssistantView, *domain.ProcessingResult, error) {
	result, err := p.Process(ctx, upload, typeHint)
	if err != nil {
		return nil, nil, err
	}
	return BuildAssistantView(result), result, nil
}

// formatOutcome distinguishes pre-pipeline rejection from a detected
// format.
type formatOutcome struct {
	detected domain.DetectedFormat
	asError  error
}

func (p *Processor) run(ctx context.Context, in assembleInput, upload domain.RawUpload, typeHint domain.DocumentType) (formatOutcome, *domain.ProcessingResult) {
	format, err := p.sniffer.Detect(upload.Filename, upload.Content)
	if err != nil {
		if domain.IsKind(err, domain.ErrUnsupportedFormat) {
			return formatOutcome{asError: err}, nil
		}
		// Corrupt container: still answer with a terminal result.
		in.Err = err
		return formatOutcome{detected: format}, p.assemble(in)
	}
	if rejectErr := p.checkEnabled(format); rejectErr != nil {
		return formatOutcome{asError: rejectErr}, nil
	}

	var unit *domain.ExtractionUnit
	var visionModel *domain.AnalysisResult

	switch format {
	case domain.FormatSpreadsheet, domain.FormatDelimited:
		unit, err = p.tabular.Decode(ctx, upload.Content, format)
	case domain.FormatNativePDF:
		unit, err = p.pdf.Extract(ctx, upload.Content, true)
	case domain.FormatScannedPDF:
		unit, err = p.pdf.Extract(ctx, upload.Content, false)
	case domain.FormatImage:
		unit, visionModel, err = p.processImage(ctx, upload.Content, typeHint)
	}
	if err != nil {
		in.Err = err
		return formatOutcome{detected: format}, p.assemble(in)
	}
	in.Unit = unit

	if unit.OCRConfidence != nil {
		p.metrics.OCRConfidence(*unit.OCRConfidence)
		if *unit.OCRConfidence < p.policies.OCRLowConfidence {
			unit.AddNote(fmt.Sprintf(
				"confidenza OCR bassa (%.0f/100): i risultati potrebbero essere imprecisi",
				*unit.OCRConfidence))
		}
	}

	in.HeuristicType, in.HeuristicMatched = p.detector.Detect(
		upload.Filename, unit.RawText, columnNames(unit))

	switch {
	case visionModel != nil:
		// An escalated image already went through the vision model once;
		// that analysis is the model verdict for this document.
		in.Model = visionModel
	case strings.TrimSpace(unit.RawText) != "":
		analysis := p.text.AnalyzeText(ctx, unit.RawText, typeHint)
		p.metrics.LLMCall("text", analysis.Failed())
		in.Model = &analysis
	}
	if in.Model != nil && in.Model.Failed() && in.HeuristicMatched {
		p.metrics.HeuristicFallback()
	}

	return formatOutcome{detected: format}, p.assemble(in)
}

// processImage runs OCR and escalates to the vision model when the OCR
// yield is too thin to classify. A non-nil analysis is the single model
// verdict for the document; no further text analysis runs after it.
func (p *Processor) processImage(ctx context.Context, content []byte, typeHint domain.DocumentType) (*domain.ExtractionUnit, *domain.AnalysisResult, error) {
	text, info, err := p.images.Process(ctx, content)
	if err != nil {
		if !p.policies.EnableVision {
			return nil, nil, err
		}
		// OCR engine trouble is an upstream failure, not a verdict on
		// the document: hand the original image to the vision model.
		unit := &domain.ExtractionUnit{}
		unit.AddNote(fmt.Sprintf("OCR non disponibile (%v): riconoscimento delegato al modello visivo", err))
		analysis := p.vision.AnalyzeImage(ctx, content, typeHint)
		p.metrics.LLMCall("vision", analysis.Failed())
		unit.RawText = analysis.RawText
		return unit, &analysis, nil
	}

	unit := &domain.ExtractionUnit{
		RawText:       text,
		ImageInfo:     info,
		OCRConfidence: &info.OCRConfidence,
	}

	if utf8.RuneCountInString(strings.TrimSpace(text)) >= p.policies.OCRMinTextChars {
		return unit, nil, nil
	}

	if !p.policies.EnableVision {
		unit.AddNote("testo estratto insufficiente e analisi visiva disabilitata")
		return unit, nil, nil
	}

	unit.AddNote("testo OCR insufficiente: riconoscimento delegato al modello visivo")
	analysis := p.vision.AnalyzeImage(ctx, content, typeHint)
	p.metrics.LLMCall("vision", analysis.Failed())
	if !analysis.Failed() && analysis.RawText != "" {
		unit.RawText = analysis.RawText
	}
	return unit, &analysis, nil
}

func (p *Processor) checkEnabled(format domain.DetectedFormat) error {
	var disabled bool
	switch format {
	case domain.FormatSpreadsheet, domain.FormatDelimited:
		disabled = !p.policies.EnableTabular
	case domain.FormatNativePDF:
		disabled = !p.policies.EnablePDF
	case domain.FormatScannedPDF:
		disabled = !p.policies.EnablePDF || !p.policies.EnableOCR
	case domain.FormatImage:
		disabled = !p.policies.EnableOCR
	}
	if disabled {
		return domain.WrapError(domain.ErrUnsupportedFormat, "usecase.checkEnabled",
			fmt.Errorf("processing for format %q is disabled", format))
	}
	return nil
}

// stash keeps the upload bytes in temp storage for the duration of the
// run. The returned cleanup releases the key exactly once no matter how
// many times it is called.
func (p *Processor) stash(ctx context.Context, documentID string, upload domain.RawUpload) func() {
	key := documentID + strings.ToLower(filepath.Ext(upload.Filename))
	saved := p.storage.Save(ctx, key, bytes.NewReader(upload.Content)) == nil
	if !saved {
		slog.Warn("upload_stash_failed", "document_id", documentID)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if !saved {
				return
			}
			if err := p.storage.Remove(context.WithoutCancel(ctx), key); err != nil {
				slog.Warn("upload_cleanup_failed", "document_id", documentID, "error", err)
			}
		})
	}
}

func columnNames(unit *domain.ExtractionUnit) []string {
	var columns []string
	for _, sheet := range unit.Sheets {
		columns = append(columns, sheet.Columns...)
	}
	return columns
}

type noopMetrics struct{}

func (noopMetrics) Document(domain.DetectedFormat, domain.DocumentType, time.Duration) {}
func (noopMetrics) OCRConfidence(float64)                                              {}
func (noopMetrics) LLMCall(string, bool)                                               {}
func (noopMetrics) HeuristicFallback()                                                 {}

type noopPublisher struct{}

func (noopPublisher) PublishDocumentProcessed(context.Context, *domain.ProcessingResult) error {
	return nil
}
