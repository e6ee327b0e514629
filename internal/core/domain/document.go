package domain

import "time"

type DocumentType string

const (
	TypeFattura        DocumentType = "fattura"
	TypeBilancio       DocumentType = "bilancio"
	TypeMagazzino      DocumentType = "magazzino"
	TypeCorrispettivo  DocumentType = "corrispettivo"
	TypeAnalisiMercato DocumentType = "analisi_mercato"
	TypeGenerico       DocumentType = "documento_generico"
	TypeSconosciuto    DocumentType = "sconosciuto"
	TypeError          DocumentType = "error"
)

// Categories are the document classes the pipeline may assign from a
// positive signal; generic/unknown/error are fallback states, not hints.
var Categories = []DocumentType{
	TypeFattura,
	TypeBilancio,
	TypeMagazzino,
	TypeCorrispettivo,
	TypeAnalisiMercato,
}

func IsCategory(t DocumentType) bool {
	for _, c := range Categories {
		if c == t {
			return true
		}
	}
	return false
}

type DetectedFormat string

const (
	FormatImage       DetectedFormat = "image"
	FormatNativePDF   DetectedFormat = "native_pdf"
	FormatScannedPDF  DetectedFormat = "scanned_pdf"
	FormatSpreadsheet DetectedFormat = "spreadsheet"
	FormatDelimited   DetectedFormat = "delimited_text"
	FormatUnsupported DetectedFormat = "unsupported"
)

// RawUpload is the immutable input to one pipeline run.
type RawUpload struct {
	Filename string
	Content  []byte
}

type Sheet struct {
	Name    string              `json:"name"`
	Columns []string            `json:"columns"`
	Rows    []map[string]string `json:"rows"`
}

// ExtractionUnit is the per-upload intermediate produced by the
// format-specific extractors. It is owned by a single pipeline run.
type ExtractionUnit struct {
	RawText        string
	Sheets         []Sheet
	PageCount      int
	PageText       map[int]string
	PageConfidence map[int]float64
	PDFMetadata    map[string]string
	Separator      string
	OCRConfidence  *float64
	ImageInfo      *ImageInfo
	Notes          []string
}

func (u *ExtractionUnit) AddNote(note string) {
	u.Notes = append(u.Notes, note)
}

// ImageInfo describes the decoded image and the OCR run over it.
type ImageInfo struct {
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	Format        string  `json:"format"`
	OCRConfidence float64 `json:"ocr_confidence"`
	WordCount     int     `json:"word_count"`
	HasText       bool    `json:"has_text"`
}

// Classification is a document type with its confidence in [0,1].
type Classification struct {
	Type       DocumentType `json:"document_type"`
	Confidence float64      `json:"confidence_score"`
}

// AnalysisResult is what the remote model returns for one text or image
// analysis, normalized: a failed analysis carries Err and the degraded
// sconosciuto/0.0 classification instead of propagating an error.
type AnalysisResult struct {
	Type       DocumentType   `json:"document_type"`
	Confidence float64        `json:"confidence_score"`
	Extracted  map[string]any `json:"extracted_data"`
	Summary    string         `json:"summary"`
	RawText    string         `json:"raw_text,omitempty"`
	Err        string         `json:"error,omitempty"`
}

func (r AnalysisResult) Failed() bool { return r.Err != "" }

type Metadata struct {
	OriginalFilename string `json:"original_filename"`
	FileType         string `json:"file_type"`
	FileSize         int64  `json:"file_size"`
	MD5Hash          string `json:"md5_hash"`
	PagesProcessed   int    `json:"pages_processed"`
	SheetCount       int    `json:"sheet_count,omitempty"`
	ProcessingTimeMS int64  `json:"processing_time_ms"`
}

// ProcessingResult is the terminal aggregate returned to the caller.
// It is built once by the assembler and never mutated afterwards.
type ProcessingResult struct {
	DocumentID     string         `json:"document_id"`
	Classification Classification `json:"classification"`
	Metadata       Metadata       `json:"metadata"`
	ExtractedData  map[string]any `json:"extracted_data"`
	RawText        string         `json:"raw_text"`
	Notes          []string       `json:"processing_notes"`
	LLMReady       bool           `json:"llm_ready"`
	CreatedAt      time.Time      `json:"created_at"`
}

// AssistantView is the alternate representation optimized for handing
// the document to a downstream assistant.
type AssistantView struct {
	Metadata         AssistantMetadata `json:"metadata"`
	Content          map[string]any    `json:"content"`
	Summary          string            `json:"summary"`
	SuggestedPrompts []string          `json:"suggested_prompts"`
}

type AssistantMetadata struct {
	DocumentType        DocumentType `json:"document_type"`
	FileName            string       `json:"file_name"`
	FileType            string       `json:"file_type"`
	ExtractionTimestamp time.Time    `json:"extraction_timestamp"`
	Confidence          float64      `json:"confidence_score"`
	Error               string       `json:"error,omitempty"`
}
