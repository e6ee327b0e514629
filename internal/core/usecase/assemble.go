package usecase

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mbianchi/document-worker/internal/core/domain"
)

// assembleInput carries everything the pipeline produced for one upload
// into the final merge.
type assembleInput struct {
	DocumentID string
	Filename   string
	FileSize   int64
	MD5Hash    string
	Unit       *domain.ExtractionUnit

	HeuristicType    domain.DocumentType
	HeuristicMatched bool
	Model            *domain.AnalysisResult
	Vision           *domain.AnalysisResult

	Err     error
	Started time.Time
}

// assemble reconciles classification signals into one immutable result.
// Candidates override each other in a fixed order: generic baseline,
// heuristic match, model analysis with unset error, then a vision
// detection that clears the override threshold.
func (p *Processor) assemble(in assembleInput) *domain.ProcessingResult {
	now := time.Now()

	result := &domain.ProcessingResult{
		DocumentID: in.DocumentID,
		Classification: domain.Classification{
			Type:       domain.TypeGenerico,
			Confidence: 0,
		},
		Metadata: domain.Metadata{
			OriginalFilename: in.Filename,
			FileType:         strings.TrimPrefix(strings.ToLower(filepath.Ext(in.Filename)), "."),
			FileSize:         in.FileSize,
			MD5Hash:          in.MD5Hash,
			ProcessingTimeMS: now.Sub(in.Started).Milliseconds(),
		},
		ExtractedData: map[string]any{},
		CreatedAt:     now,
	}

	if in.Unit != nil {
		result.RawText = in.Unit.RawText
		result.Metadata.PagesProcessed = in.Unit.PageCount
		result.Metadata.SheetCount = len(in.Unit.Sheets)
		result.Notes = append(result.Notes, in.Unit.Notes...)
	}

	if in.Err != nil {
		result.Classification = domain.Classification{Type: domain.TypeError, Confidence: 0}
		result.Notes = append(result.Notes, fmt.Sprintf("elaborazione fallita: %v", in.Err))
		result.LLMReady = false
		return result
	}

	if in.HeuristicMatched {
		result.Classification = domain.Classification{
			Type:       in.HeuristicType,
			Confidence: p.policies.HeuristicConfidence,
		}
	}

	if in.Model != nil {
		if in.Model.Failed() {
			result.Notes = append(result.Notes,
				fmt.Sprintf("analisi del modello non disponibile: %s", in.Model.Err))
			// Without a keyword match there is nothing better than the
			// degraded sconosciuto/0 verdict, so it stands.
			if !in.HeuristicMatched {
				result.Classification = domain.Classification{
					Type:       in.Model.Type,
					Confidence: in.Model.Confidence,
				}
			}
		} else {
			result.Classification = domain.Classification{
				Type:       in.Model.Type,
				Confidence: in.Model.Confidence,
			}
			result.ExtractedData = in.Model.Extracted
			if result.ExtractedData == nil {
				result.ExtractedData = map[string]any{}
			}
			if in.Model.Summary != "" {
				result.ExtractedData["summary"] = in.Model.Summary
			}
		}
	}

	if in.Vision != nil && !in.Vision.Failed() &&
		in.Vision.Confidence > p.policies.VisionOverrideConfidence {
		result.Classification = domain.Classification{
			Type:       in.Vision.Type,
			Confidence: in.Vision.Confidence,
		}
		if len(in.Vision.Extracted) > 0 {
			result.ExtractedData = in.Vision.Extracted
		}
	}

	result.LLMReady = true
	return result
}
