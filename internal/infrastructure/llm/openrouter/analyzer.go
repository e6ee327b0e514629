package openrouter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mbianchi/document-worker/internal/core/domain"
)

// AnalyzeText classifies document text and extracts its fields. Any
// failure degrades to the sconosciuto/0.0 result with Err set; callers
// never see an error from the model path.
func (c *Client) AnalyzeText(ctx context.Context, text string, typeHint domain.DocumentType) domain.AnalysisResult {
	messages := []message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: buildTextPrompt(text, typeHint, c.cfg.PromptMaxChars)},
	}

	content, err := c.complete(ctx, messages)
	if err != nil {
		slog.Warn("llm_text_analysis_failed", "error", err)
		return degraded(err)
	}
	return parseAnalysis(content)
}

// AnalyzeImage sends the image as a base64 data URL alongside the
// extraction prompt.
func (c *Client) AnalyzeImage(ctx context.Context, image []byte, typeHint domain.DocumentType) domain.AnalysisResult {
	dataURL := "data:" + sniffImageMIME(image) + ";base64," +
		base64.StdEncoding.EncodeToString(image)

	messages := []message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: []contentPart{
			{Type: "text", Text: buildImagePrompt(typeHint)},
			{Type: "image_url", ImageURL: &imageRef{URL: dataURL}},
		}},
	}

	content, err := c.complete(ctx, messages)
	if err != nil {
		slog.Warn("llm_image_analysis_failed", "error", err)
		return degraded(err)
	}
	return parseAnalysis(content)
}

func parseAnalysis(content string) domain.AnalysisResult {
	obj, ok := extractJSONObject(content)
	if !ok {
		return degraded(errors.New("no JSON object in model output"))
	}

	var result domain.AnalysisResult
	if err := json.Unmarshal([]byte(obj), &result); err != nil {
		return degraded(err)
	}

	if !domain.IsCategory(result.Type) && result.Type != domain.TypeGenerico {
		result.Type = domain.TypeGenerico
	}
	if result.Confidence < 0 {
		result.Confidence = 0
	}
	if result.Confidence > 1 {
		result.Confidence = 1
	}
	result.RawText = strings.TrimSpace(result.RawText)
	return result
}

func degraded(err error) domain.AnalysisResult {
	return domain.AnalysisResult{
		Type:       domain.TypeSconosciuto,
		Confidence: 0,
		Extracted:  map[string]any{},
		Err:        err.Error(),
	}
}

func sniffImageMIME(image []byte) string {
	mime := http.DetectContentType(image)
	if !strings.HasPrefix(mime, "image/") {
		return "image/png"
	}
	return mime
}
