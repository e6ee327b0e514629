package ports

import (
	"context"

	"github.com/mbianchi/document-worker/internal/core/domain"
)

// DocumentProcessor runs the full pipeline for one upload.
type DocumentProcessor interface {
	Process(ctx context.Context, upload domain.RawUpload, typeHint domain.DocumentType) (*domain.ProcessingResult, error)
	ProcessForAssistant(ctx context.Context, upload domain.RawUpload, typeHint domain.DocumentType) (*domain.AssistantView, *domain.ProcessingResult, error)
}
