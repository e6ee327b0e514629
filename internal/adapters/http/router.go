package httpadapter

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/mbianchi/document-worker/internal/core/domain"
	"github.com/mbianchi/document-worker/internal/core/ports"
	"github.com/mbianchi/document-worker/internal/observability/metrics"
)

// Features are the pipeline capabilities exposed on the ops endpoints.
type Features struct {
	Tabular     bool `json:"tabular_processing"`
	PDF         bool `json:"pdf_processing"`
	AdvancedPDF bool `json:"advanced_pdf"`
	OCR         bool `json:"ocr"`
	Vision      bool `json:"vision"`
}

type Router struct {
	processor      ports.DocumentProcessor
	metrics        *metrics.HTTPServerMetrics
	service        string
	version        string
	maxUploadBytes int64
	features       Features
	llmConfigured  bool
	natsConfigured bool
	startedAt      time.Time
}

type RouterOptions struct {
	Service        string
	Version        string
	MaxUploadBytes int64
	Features       Features
	LLMConfigured  bool
	NATSConfigured bool
	Metrics        *metrics.HTTPServerMetrics
}

func NewRouter(processor ports.DocumentProcessor, opts RouterOptions) *Router {
	return &Router{
		processor:      processor,
		metrics:        opts.Metrics,
		service:        opts.Service,
		version:        opts.Version,
		maxUploadBytes: opts.MaxUploadBytes,
		features:       opts.Features,
		llmConfigured:  opts.LLMConfigured,
		natsConfigured: opts.NATSConfigured,
		startedAt:      time.Now(),
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/features", rt.featureFlags)
	mux.HandleFunc("/v1/documents/process", rt.processDocument)
	mux.HandleFunc("/v1/documents/assistant-format", rt.assistantFormat)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.service, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        rt.version,
		"uptime_seconds": int64(time.Since(rt.startedAt).Seconds()),
		"features":       rt.features,
		"connections": map[string]bool{
			"llm_api": rt.llmConfigured,
			"nats":    rt.natsConfigured,
		},
	})
}

func (rt *Router) featureFlags(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rt.features)
}

type processResponse struct {
	Status           string              `json:"status"`
	Timestamp        time.Time           `json:"timestamp"`
	DocumentID       string              `json:"document_id"`
	DocumentType     domain.DocumentType `json:"document_type"`
	ConfidenceScore  float64             `json:"confidence_score"`
	ProcessingTimeMS int64               `json:"processing_time_ms"`
	ResultJSON       any                 `json:"result_json"`
	ProcessingNotes  []string            `json:"processing_notes"`
}

type assistantResponse struct {
	Status          string                `json:"status"`
	Timestamp       time.Time             `json:"timestamp"`
	DocumentID      string                `json:"document_id"`
	DocumentType    domain.DocumentType   `json:"document_type"`
	ConfidenceScore float64               `json:"confidence_score"`
	ClaudeFormat    *domain.AssistantView `json:"claude_format"`
	ProcessingNotes []string              `json:"processing_notes"`
}

func (rt *Router) processDocument(w http.ResponseWriter, r *http.Request) {
	upload, hint, ok := rt.readUpload(w, r)
	if !ok {
		return
	}

	result, err := rt.processor.Process(r.Context(), upload, hint)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, processResponse{
		Status:           statusOf(result),
		Timestamp:        time.Now().UTC(),
		DocumentID:       result.DocumentID,
		DocumentType:     result.Classification.Type,
		ConfidenceScore:  result.Classification.Confidence,
		ProcessingTimeMS: result.Metadata.ProcessingTimeMS,
		ResultJSON:       result,
		ProcessingNotes:  notesOrEmpty(result.Notes),
	})
}

func (rt *Router) assistantFormat(w http.ResponseWriter, r *http.Request) {
	upload, hint, ok := rt.readUpload(w, r)
	if !ok {
		return
	}

	view, result, err := rt.processor.ProcessForAssistant(r.Context(), upload, hint)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, assistantResponse{
		Status:          statusOf(result),
		Timestamp:       time.Now().UTC(),
		DocumentID:      result.DocumentID,
		DocumentType:    result.Classification.Type,
		ConfidenceScore: result.Classification.Confidence,
		ClaudeFormat:    view,
		ProcessingNotes: notesOrEmpty(result.Notes),
	})
}

// readUpload pulls the multipart file and optional type hint out of the
// request, rejecting missing or oversized uploads before pipeline entry.
func (rt *Router) readUpload(w http.ResponseWriter, r *http.Request) (domain.RawUpload, domain.DocumentType, bool) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return domain.RawUpload{}, "", false
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return domain.RawUpload{}, "", false
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, rt.maxUploadBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable upload"})
		return domain.RawUpload{}, "", false
	}
	if int64(len(content)) > rt.maxUploadBytes {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "file exceeds the maximum size of " + megabytes(rt.maxUploadBytes) + " MB",
		})
		return domain.RawUpload{}, "", false
	}

	return domain.RawUpload{
		Filename: fileHeader.Filename,
		Content:  content,
	}, domain.DocumentType(r.FormValue("document_type")), true
}

func statusOf(result *domain.ProcessingResult) string {
	if result.Classification.Type == domain.TypeError {
		return "error"
	}
	return "success"
}

func notesOrEmpty(notes []string) []string {
	if notes == nil {
		return []string{}
	}
	return notes
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	status := mapErrorToHTTPStatus(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		// Internal detail must not leak past the transport boundary.
		message = "internal processing error"
	}
	writeJSON(w, status, map[string]string{"error": message})
}

func megabytes(bytes int64) string {
	return strconv.FormatInt(bytes/(1024*1024), 10)
}
