// Package sniffer decides which extraction branch an upload belongs to.
package sniffer

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/mbianchi/document-worker/internal/core/domain"
)

var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".webp": {},
}

var spreadsheetExtensions = map[string]struct{}{
	".xls":  {},
	".xlsx": {},
	".xlsm": {},
	".xlsb": {},
}

// SupportedExtensions lists every extension the sniffer accepts, sorted
// for stable error messages.
var SupportedExtensions = []string{
	".csv", ".jpeg", ".jpg", ".pdf", ".png", ".webp", ".xls", ".xlsb", ".xlsm", ".xlsx",
}

type Sniffer struct {
	nativeTextThreshold int
}

func New(nativeTextThreshold int) *Sniffer {
	return &Sniffer{nativeTextThreshold: nativeTextThreshold}
}

// Detect maps a filename and its content onto an extraction branch.
// PDFs are probed for a native text layer; everything else goes by
// extension. A PDF whose container cannot be opened is reported as an
// error so the pipeline can classify the document as failed instead of
// wasting an OCR pass on garbage.
func (s *Sniffer) Detect(filename string, content []byte) (domain.DetectedFormat, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	switch {
	case ext == ".pdf":
		return s.probePDF(content)
	case contains(imageExtensions, ext):
		return domain.FormatImage, nil
	case contains(spreadsheetExtensions, ext):
		return domain.FormatSpreadsheet, nil
	case ext == ".csv":
		return domain.FormatDelimited, nil
	}

	return domain.FormatUnsupported, domain.WrapError(domain.ErrUnsupportedFormat,
		"sniffer.Detect", fmt.Errorf("extension %q not in %v", ext, SupportedExtensions))
}

func contains(set map[string]struct{}, ext string) bool {
	_, ok := set[ext]
	return ok
}

// probePDF looks for a native text layer: any page with more than the
// threshold of extractable non-whitespace characters makes the document
// native. The parser panics on some malformed inputs, which is folded
// into the corrupt-document error.
func (s *Sniffer) probePDF(content []byte) (format domain.DetectedFormat, err error) {
	defer func() {
		if r := recover(); r != nil {
			format = domain.FormatUnsupported
			err = domain.WrapError(domain.ErrCorruptDocument, "sniffer.probePDF",
				fmt.Errorf("parser panic: %v", r))
		}
	}()

	r, openErr := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if openErr != nil {
		return domain.FormatUnsupported, domain.WrapError(domain.ErrCorruptDocument,
			"sniffer.probePDF", openErr)
	}

	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, textErr := p.GetPlainText(nil)
		if textErr != nil {
			continue
		}
		if nonWhitespaceLen(text) > s.nativeTextThreshold {
			return domain.FormatNativePDF, nil
		}
	}
	return domain.FormatScannedPDF, nil
}

func nonWhitespaceLen(s string) int {
	n := 0
	for _, f := range strings.Fields(s) {
		n += utf8.RuneCountInString(f)
	}
	return n
}
