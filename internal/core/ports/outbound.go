package ports

import (
	"context"
	"io"

	"github.com/mbianchi/document-worker/internal/core/domain"
)

// ObjectStorage holds upload bytes for the lifetime of one pipeline run.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
}

// FormatSniffer classifies an upload into a DetectedFormat.
type FormatSniffer interface {
	Detect(filename string, content []byte) (domain.DetectedFormat, error)
}

// TabularDecoder turns spreadsheet or delimited-text bytes into sheets.
type TabularDecoder interface {
	Decode(ctx context.Context, content []byte, format domain.DetectedFormat) (*domain.ExtractionUnit, error)
}

// PDFExtractor extracts text from a PDF, by page for native documents
// and through OCR for scanned ones.
type PDFExtractor interface {
	Extract(ctx context.Context, content []byte, native bool) (*domain.ExtractionUnit, error)
}

// ImagePipeline preprocesses an image and runs OCR over it.
type ImagePipeline interface {
	Process(ctx context.Context, content []byte) (string, *domain.ImageInfo, error)
}

// TextAnalyzer asks the remote model to classify and extract fields from
// document text. Implementations return a degraded AnalysisResult with
// Err set instead of failing on malformed model output.
type TextAnalyzer interface {
	AnalyzeText(ctx context.Context, text string, typeHint domain.DocumentType) domain.AnalysisResult
}

// VisionAnalyzer is the image-capable counterpart of TextAnalyzer.
type VisionAnalyzer interface {
	AnalyzeImage(ctx context.Context, image []byte, typeHint domain.DocumentType) domain.AnalysisResult
}

// EventPublisher notifies the workflow caller that a document finished
// processing. Implementations must be safe to call with a nil-op backend.
type EventPublisher interface {
	PublishDocumentProcessed(ctx context.Context, result *domain.ProcessingResult) error
}
