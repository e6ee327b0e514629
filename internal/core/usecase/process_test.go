package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/mbianchi/document-worker/internal/core/domain"
)

type fakeStorage struct {
	saves    int
	removes  int
	failSave bool
}

func (s *fakeStorage) Save(_ context.Context, _ string, _ io.Reader) error {
	s.saves++
	if s.failSave {
		return errors.New("disk full")
	}
	return nil
}

func (s *fakeStorage) Open(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

func (s *fakeStorage) Remove(context.Context, string) error {
	s.removes++
	return nil
}

type stubSniffer struct {
	format domain.DetectedFormat
	err    error
}

func (s stubSniffer) Detect(string, []byte) (domain.DetectedFormat, error) {
	return s.format, s.err
}

type stubTabular struct {
	unit *domain.ExtractionUnit
	err  error
}

func (s stubTabular) Decode(context.Context, []byte, domain.DetectedFormat) (*domain.ExtractionUnit, error) {
	return s.unit, s.err
}

type stubPDF struct {
	unit *domain.ExtractionUnit
	err  error
}

func (s stubPDF) Extract(context.Context, []byte, bool) (*domain.ExtractionUnit, error) {
	return s.unit, s.err
}

type stubImages struct {
	text string
	info domain.ImageInfo
	err  error
}

func (s stubImages) Process(context.Context, []byte) (string, *domain.ImageInfo, error) {
	if s.err != nil {
		return "", nil, s.err
	}
	info := s.info
	return s.text, &info, nil
}

type stubText struct {
	result domain.AnalysisResult
	calls  int
}

func (s *stubText) AnalyzeText(context.Context, string, domain.DocumentType) domain.AnalysisResult {
	s.calls++
	return s.result
}

type stubVision struct {
	result domain.AnalysisResult
	calls  int
}

func (s *stubVision) AnalyzeImage(context.Context, []byte, domain.DocumentType) domain.AnalysisResult {
	s.calls++
	return s.result
}

func defaultPolicies() Policies {
	return Policies{
		MaxFileSizeBytes:         10 * 1024 * 1024,
		HeuristicConfidence:      0.5,
		VisionOverrideConfidence: 0.7,
		OCRMinTextChars:          200,
		OCRLowConfidence:         70,
		EnableTabular:            true,
		EnablePDF:                true,
		EnableOCR:                true,
		EnableVision:             true,
	}
}

func newTestProcessor(policies Policies, deps ProcessorDeps) *Processor {
	if deps.Storage == nil {
		deps.Storage = &fakeStorage{}
	}
	if deps.Text == nil {
		deps.Text = &stubText{result: domain.AnalysisResult{Type: domain.TypeGenerico}}
	}
	if deps.Vision == nil {
		deps.Vision = &stubVision{}
	}
	return NewProcessor(policies, deps)
}

func TestProcessCSVInvoice(t *testing.T) {
	unit := &domain.ExtractionUnit{
		RawText: "numero | importo | iva\n001 | 100 | 22",
		Sheets: []domain.Sheet{{
			Columns: []string{"numero", "importo", "iva"},
			Rows:    []map[string]string{{"numero": "001", "importo": "100", "iva": "22"}},
		}},
		Separator: ",",
	}
	text := &stubText{result: domain.AnalysisResult{
		Type:       domain.TypeFattura,
		Confidence: 0.95,
		Extracted:  map[string]any{"numero_fattura": "001"},
		Summary:    "Fattura 001",
	}}

	p := newTestProcessor(defaultPolicies(), ProcessorDeps{
		Sniffer: stubSniffer{format: domain.FormatDelimited},
		Tabular: stubTabular{unit: unit},
		Text:    text,
	})

	result, err := p.Process(context.Background(), domain.RawUpload{
		Filename: "fattura_test.csv",
		Content:  []byte("numero,importo,iva\n001,100,22\n"),
	}, "")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if result.Classification.Type != domain.TypeFattura {
		t.Fatalf("Type = %v", result.Classification.Type)
	}
	if result.Classification.Confidence != 0.95 {
		t.Fatalf("Confidence = %v", result.Classification.Confidence)
	}
	if result.ExtractedData["numero_fattura"] != "001" {
		t.Fatalf("ExtractedData = %v", result.ExtractedData)
	}
	if result.DocumentID == "" || result.Metadata.MD5Hash == "" {
		t.Fatalf("metadata incomplete: %+v", result.Metadata)
	}
	if result.Metadata.SheetCount != 1 {
		t.Fatalf("SheetCount = %d", result.Metadata.SheetCount)
	}
	if !result.LLMReady {
		t.Fatal("LLMReady should be true")
	}
	if text.calls != 1 {
		t.Fatalf("text analyzer calls = %d", text.calls)
	}
}

func TestProcessHeuristicFallbackWhenModelDegrades(t *testing.T) {
	unit := &domain.ExtractionUnit{RawText: "partita iva 01234567890 imponibile 100"}
	text := &stubText{result: domain.AnalysisResult{
		Type: domain.TypeSconosciuto, Err: "timeout esaurito",
	}}

	p := newTestProcessor(defaultPolicies(), ProcessorDeps{
		Sniffer: stubSniffer{format: domain.FormatDelimited},
		Tabular: stubTabular{unit: unit},
		Text:    text,
	})

	result, err := p.Process(context.Background(), domain.RawUpload{
		Filename: "documento.csv", Content: []byte("x"),
	}, "")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if result.Classification.Type != domain.TypeFattura {
		t.Fatalf("Type = %v, want heuristic fattura", result.Classification.Type)
	}
	if result.Classification.Confidence != 0.5 {
		t.Fatalf("Confidence = %v, want heuristic 0.5", result.Classification.Confidence)
	}
	if !hasNoteContaining(result.Notes, "timeout esaurito") {
		t.Fatalf("Notes = %v, want degraded-model note", result.Notes)
	}
}

func TestProcessDegradedModelWithoutKeywordsIsSconosciuto(t *testing.T) {
	unit := &domain.ExtractionUnit{RawText: "testo senza parole chiave"}
	text := &stubText{result: domain.AnalysisResult{
		Type: domain.TypeSconosciuto, Err: "servizio non raggiungibile",
	}}

	p := newTestProcessor(defaultPolicies(), ProcessorDeps{
		Sniffer: stubSniffer{format: domain.FormatDelimited},
		Tabular: stubTabular{unit: unit},
		Text:    text,
	})

	result, err := p.Process(context.Background(), domain.RawUpload{
		Filename: "documento.csv", Content: []byte("x"),
	}, "")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	// No keyword match to fall back on: the degraded analysis verdict
	// carries through.
	if result.Classification.Type != domain.TypeSconosciuto || result.Classification.Confidence != 0 {
		t.Fatalf("classification = %+v, want sconosciuto/0", result.Classification)
	}
	if !result.LLMReady {
		t.Fatal("degraded analysis must not become a terminal error")
	}
}

func TestProcessZeroBytePDFIsTerminalError(t *testing.T) {
	p := newTestProcessor(defaultPolicies(), ProcessorDeps{
		Sniffer: stubSniffer{
			format: domain.FormatUnsupported,
			err:    domain.WrapError(domain.ErrCorruptDocument, "probe", errors.New("empty file")),
		},
	})

	result, err := p.Process(context.Background(), domain.RawUpload{
		Filename: "vuoto.pdf", Content: nil,
	}, "")
	if err != nil {
		t.Fatalf("Process must not fail: %v", err)
	}

	if result.Classification.Type != domain.TypeError {
		t.Fatalf("Type = %v, want error", result.Classification.Type)
	}
	if result.Classification.Confidence != 0 {
		t.Fatalf("Confidence = %v", result.Classification.Confidence)
	}
	if result.LLMReady {
		t.Fatal("LLMReady must be false on terminal error")
	}
	if len(result.Notes) == 0 {
		t.Fatal("terminal error must carry an explanatory note")
	}
}

func TestProcessRejectsBeforePipeline(t *testing.T) {
	p := newTestProcessor(defaultPolicies(), ProcessorDeps{
		Sniffer: stubSniffer{
			format: domain.FormatUnsupported,
			err:    domain.WrapError(domain.ErrUnsupportedFormat, "sniff", errors.New("exe")),
		},
	})
	ctx := context.Background()

	if _, err := p.Process(ctx, domain.RawUpload{Filename: "a.exe", Content: []byte("x")}, ""); !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("unsupported extension: err = %v", err)
	}
	if _, err := p.Process(ctx, domain.RawUpload{Filename: "", Content: []byte("x")}, ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("missing filename: err = %v", err)
	}
	if _, err := p.Process(ctx, domain.RawUpload{Filename: "a.csv", Content: []byte("x")}, "contratto"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("bad hint: err = %v", err)
	}

	big := Policies{MaxFileSizeBytes: 4}
	pBig := newTestProcessor(big, ProcessorDeps{Sniffer: stubSniffer{format: domain.FormatDelimited}})
	if _, err := pBig.Process(ctx, domain.RawUpload{Filename: "a.csv", Content: []byte("too big")}, ""); !errors.Is(err, domain.ErrFileTooLarge) {
		t.Fatalf("oversize: err = %v", err)
	}
}

func TestProcessCleanupRunsExactlyOnce(t *testing.T) {
	storage := &fakeStorage{}
	p := newTestProcessor(defaultPolicies(), ProcessorDeps{
		Storage: storage,
		Sniffer: stubSniffer{format: domain.FormatDelimited},
		Tabular: stubTabular{unit: &domain.ExtractionUnit{RawText: "x"}},
	})

	if _, err := p.Process(context.Background(), domain.RawUpload{Filename: "a.csv", Content: []byte("x")}, ""); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if storage.saves != 1 || storage.removes != 1 {
		t.Fatalf("saves = %d, removes = %d; want 1 and 1", storage.saves, storage.removes)
	}

	// Failure path cleans up too.
	storage2 := &fakeStorage{}
	pFail := newTestProcessor(defaultPolicies(), ProcessorDeps{
		Storage: storage2,
		Sniffer: stubSniffer{format: domain.FormatDelimited},
		Tabular: stubTabular{err: domain.WrapError(domain.ErrCorruptDocument, "decode", errors.New("bad"))},
	})
	result, err := pFail.Process(context.Background(), domain.RawUpload{Filename: "a.csv", Content: []byte("x")}, "")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Classification.Type != domain.TypeError {
		t.Fatalf("Type = %v", result.Classification.Type)
	}
	if storage2.removes != 1 {
		t.Fatalf("removes = %d on failure path", storage2.removes)
	}
}

func TestProcessImageEscalatesToVision(t *testing.T) {
	vision := &stubVision{result: domain.AnalysisResult{
		Type:       domain.TypeCorrispettivo,
		Confidence: 0.9,
		Extracted:  map[string]any{"esercente": "Bar Roma"},
		RawText:    "SCONTRINO FISCALE Bar Roma Totale 12,50",
	}}
	text := &stubText{result: domain.AnalysisResult{Type: domain.TypeGenerico, Confidence: 0.3}}

	p := newTestProcessor(defaultPolicies(), ProcessorDeps{
		Sniffer: stubSniffer{format: domain.FormatImage},
		Images:  stubImages{text: "scarso", info: domain.ImageInfo{OCRConfidence: 35, WordCount: 1, HasText: true}},
		Text:    text,
		Vision:  vision,
	})

	result, err := p.Process(context.Background(), domain.RawUpload{
		Filename: "foto.jpg", Content: []byte("img"),
	}, "")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if vision.calls != 1 {
		t.Fatalf("vision calls = %d, want exactly 1", vision.calls)
	}
	if text.calls != 0 {
		t.Fatalf("text calls = %d, escalation must not re-analyze vision text", text.calls)
	}
	if result.Classification.Type != domain.TypeCorrispettivo || result.Classification.Confidence != 0.9 {
		t.Fatalf("classification = %+v", result.Classification)
	}
	if result.ExtractedData["esercente"] != "Bar Roma" {
		t.Fatalf("ExtractedData = %v", result.ExtractedData)
	}
	if !strings.Contains(result.RawText, "SCONTRINO") {
		t.Fatalf("RawText = %q, want vision text", result.RawText)
	}
	if !hasNoteContaining(result.Notes, "confidenza OCR bassa") {
		t.Fatalf("Notes = %v, want low-confidence warning", result.Notes)
	}
	if !hasNoteContaining(result.Notes, "modello visivo") {
		t.Fatalf("Notes = %v, want escalation note", result.Notes)
	}
}

func TestProcessImageEscalatedVisionUsedVerbatim(t *testing.T) {
	vision := &stubVision{result: domain.AnalysisResult{
		Type:       domain.TypeCorrispettivo,
		Confidence: 0.65,
		Extracted:  map[string]any{"importo_totale": 12.5},
	}}
	text := &stubText{result: domain.AnalysisResult{Type: domain.TypeGenerico, Confidence: 0.3}}

	p := newTestProcessor(defaultPolicies(), ProcessorDeps{
		Sniffer: stubSniffer{format: domain.FormatImage},
		Images:  stubImages{text: "fattura breve", info: domain.ImageInfo{OCRConfidence: 90}},
		Text:    text,
		Vision:  vision,
	})

	result, err := p.Process(context.Background(), domain.RawUpload{
		Filename: "foto.png", Content: []byte("img"),
	}, "")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	// The escalated analysis is the model result: applied verbatim, not
	// gated on the vision-detection threshold.
	if result.Classification.Type != domain.TypeCorrispettivo || result.Classification.Confidence != 0.65 {
		t.Fatalf("classification = %+v", result.Classification)
	}
	if result.ExtractedData["importo_totale"] != 12.5 {
		t.Fatalf("ExtractedData = %v", result.ExtractedData)
	}
	if text.calls != 0 {
		t.Fatalf("text calls = %d, want 0", text.calls)
	}
}

func TestProcessImageVisionDisabled(t *testing.T) {
	policies := defaultPolicies()
	policies.EnableVision = false
	vision := &stubVision{}
	text := &stubText{result: domain.AnalysisResult{Type: domain.TypeGenerico, Confidence: 0.2}}

	p := newTestProcessor(policies, ProcessorDeps{
		Sniffer: stubSniffer{format: domain.FormatImage},
		Images:  stubImages{text: "testo di quaranta caratteri appena qui", info: domain.ImageInfo{OCRConfidence: 88}},
		Text:    text,
		Vision:  vision,
	})

	result, err := p.Process(context.Background(), domain.RawUpload{
		Filename: "foto.png", Content: []byte("img"),
	}, "")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if vision.calls != 0 {
		t.Fatalf("vision calls = %d, want 0", vision.calls)
	}
	if !strings.Contains(result.RawText, "quaranta caratteri") {
		t.Fatalf("RawText = %q, want short OCR text kept", result.RawText)
	}
	if !hasNoteContaining(result.Notes, "insufficiente") {
		t.Fatalf("Notes = %v, want insufficient-text note", result.Notes)
	}
	if hasNoteContaining(result.Notes, "modello visivo") {
		t.Fatalf("Notes = %v, escalation note must be absent", result.Notes)
	}
}

func TestProcessImageOCRFailureEscalates(t *testing.T) {
	vision := &stubVision{result: domain.AnalysisResult{
		Type: domain.TypeFattura, Confidence: 0.85, RawText: "FATTURA 9",
	}}
	text := &stubText{result: domain.AnalysisResult{Type: domain.TypeGenerico}}

	p := newTestProcessor(defaultPolicies(), ProcessorDeps{
		Sniffer: stubSniffer{format: domain.FormatImage},
		Images:  stubImages{err: errors.New("tesseract not installed")},
		Text:    text,
		Vision:  vision,
	})

	result, err := p.Process(context.Background(), domain.RawUpload{
		Filename: "foto.jpg", Content: []byte("img"),
	}, "")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if vision.calls != 1 {
		t.Fatalf("vision calls = %d", vision.calls)
	}
	if text.calls != 0 {
		t.Fatalf("text calls = %d, want 0", text.calls)
	}
	if result.Classification.Type != domain.TypeFattura || result.Classification.Confidence != 0.85 {
		t.Fatalf("classification = %+v, want vision verdict", result.Classification)
	}
	if !hasNoteContaining(result.Notes, "OCR non disponibile") {
		t.Fatalf("Notes = %v", result.Notes)
	}

	// With vision disabled the failure is terminal.
	policies := defaultPolicies()
	policies.EnableVision = false
	pNoVision := newTestProcessor(policies, ProcessorDeps{
		Sniffer: stubSniffer{format: domain.FormatImage},
		Images:  stubImages{err: errors.New("tesseract not installed")},
	})
	result, err = pNoVision.Process(context.Background(), domain.RawUpload{
		Filename: "foto.jpg", Content: []byte("img"),
	}, "")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Classification.Type != domain.TypeError {
		t.Fatalf("Type = %v, want terminal error", result.Classification.Type)
	}
}

func TestProcessSufficientOCRSkipsVision(t *testing.T) {
	vision := &stubVision{}
	long := strings.Repeat("fattura numero 12 imponibile 100 euro ", 10)

	p := newTestProcessor(defaultPolicies(), ProcessorDeps{
		Sniffer: stubSniffer{format: domain.FormatImage},
		Images:  stubImages{text: long, info: domain.ImageInfo{OCRConfidence: 92}},
		Text:    &stubText{result: domain.AnalysisResult{Type: domain.TypeFattura, Confidence: 0.9}},
		Vision:  vision,
	})

	if _, err := p.Process(context.Background(), domain.RawUpload{Filename: "doc.png", Content: []byte("img")}, ""); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if vision.calls != 0 {
		t.Fatalf("vision calls = %d, want 0", vision.calls)
	}
}

func TestProcessDisabledFormatRejected(t *testing.T) {
	policies := defaultPolicies()
	policies.EnableTabular = false

	p := newTestProcessor(policies, ProcessorDeps{
		Sniffer: stubSniffer{format: domain.FormatDelimited},
		Tabular: stubTabular{unit: &domain.ExtractionUnit{}},
	})

	_, err := p.Process(context.Background(), domain.RawUpload{Filename: "a.csv", Content: []byte("x")}, "")
	if !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestProcessDeterministicClassification(t *testing.T) {
	deps := ProcessorDeps{
		Sniffer: stubSniffer{format: domain.FormatDelimited},
		Tabular: stubTabular{unit: &domain.ExtractionUnit{RawText: "partita iva 123"}},
		Text: &stubText{result: domain.AnalysisResult{
			Type: domain.TypeFattura, Confidence: 0.91,
			Extracted: map[string]any{"numero_fattura": "9"},
		}},
	}
	upload := domain.RawUpload{Filename: "doc.csv", Content: []byte("partita iva 123")}

	var types []domain.DocumentType
	var confs []float64
	for i := 0; i < 3; i++ {
		p := newTestProcessor(defaultPolicies(), deps)
		result, err := p.Process(context.Background(), upload, "")
		if err != nil {
			t.Fatalf("Process: %v", err)
		}
		types = append(types, result.Classification.Type)
		confs = append(confs, result.Classification.Confidence)
	}
	for i := 1; i < 3; i++ {
		if types[i] != types[0] || confs[i] != confs[0] {
			t.Fatalf("non-deterministic classification: %v %v", types, confs)
		}
	}
}

func TestProcessForAssistant(t *testing.T) {
	p := newTestProcessor(defaultPolicies(), ProcessorDeps{
		Sniffer: stubSniffer{format: domain.FormatDelimited},
		Tabular: stubTabular{unit: &domain.ExtractionUnit{RawText: "x"}},
		Text: &stubText{result: domain.AnalysisResult{
			Type: domain.TypeFattura, Confidence: 0.9,
			Extracted: map[string]any{"numero_fattura": "77", "importo_totale": 10.0},
		}},
	})

	view, result, err := p.ProcessForAssistant(context.Background(), domain.RawUpload{
		Filename: "f.csv", Content: []byte("x"),
	}, "")
	if err != nil {
		t.Fatalf("ProcessForAssistant: %v", err)
	}
	if view.Metadata.DocumentType != domain.TypeFattura {
		t.Fatalf("view type = %v", view.Metadata.DocumentType)
	}
	if view.Metadata.FileName != result.Metadata.OriginalFilename {
		t.Fatal("view metadata out of sync with result")
	}
	if view.Content["numero_fattura"] != "77" {
		t.Fatalf("view content = %v", view.Content)
	}
	if len(view.SuggestedPrompts) == 0 {
		t.Fatal("missing suggested prompts")
	}
}

func hasNoteContaining(notes []string, substr string) bool {
	for _, n := range notes {
		if strings.Contains(n, substr) {
			return true
		}
	}
	return false
}
