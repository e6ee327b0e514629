// Package pdfextract pulls text out of PDF files, either from the
// native text layer or by rasterizing pages and running OCR on them.
package pdfextract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/mbianchi/document-worker/internal/core/domain"
	"github.com/mbianchi/document-worker/internal/core/ports"
	"github.com/mbianchi/document-worker/internal/infrastructure/ocr"
)

type Extractor struct {
	runner      ocr.Runner
	pipeline    ports.ImagePipeline
	pdftoppmBin string
	dpi         int
	tmpDir      string
}

func New(runner ocr.Runner, pipeline ports.ImagePipeline, pdftoppmBin string, dpi int, tmpDir string) *Extractor {
	return &Extractor{
		runner:      runner,
		pipeline:    pipeline,
		pdftoppmBin: pdftoppmBin,
		dpi:         dpi,
		tmpDir:      tmpDir,
	}
}

func (e *Extractor) Extract(ctx context.Context, content []byte, native bool) (*domain.ExtractionUnit, error) {
	if native {
		return extractNative(content)
	}
	return e.extractScanned(ctx, content)
}

// extractNative reads the embedded text layer page by page. The parser
// panics on some malformed files, which is mapped to a corrupt document
// error instead of taking the process down.
func extractNative(content []byte) (unit *domain.ExtractionUnit, err error) {
	defer func() {
		if r := recover(); r != nil {
			unit = nil
			err = domain.WrapError(domain.ErrCorruptDocument, "pdfextract.extractNative",
				fmt.Errorf("parser panic: %v", r))
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, domain.WrapError(domain.ErrCorruptDocument, "pdfextract.extractNative", err)
	}

	unit = &domain.ExtractionUnit{
		PageCount: r.NumPage(),
		PageText:  make(map[int]string, r.NumPage()),
	}

	var all []string
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			unit.AddNote(fmt.Sprintf("page %d unreadable, skipped", i))
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			unit.AddNote(fmt.Sprintf("page %d unreadable, skipped", i))
			continue
		}
		text = strings.TrimSpace(text)
		unit.PageText[i] = text
		if text != "" {
			all = append(all, text)
		}
	}

	unit.RawText = strings.Join(all, "\n\n")
	unit.PDFMetadata = documentInfo(r)
	return unit, nil
}

// documentInfo flattens the trailer Info dictionary into plain strings,
// stripping the leading slash PDF names carry.
func documentInfo(r *pdf.Reader) map[string]string {
	defer func() { recover() }()

	info := r.Trailer().Key("Info")
	if info.Kind() != pdf.Dict {
		return nil
	}

	meta := make(map[string]string)
	for _, key := range info.Keys() {
		v := info.Key(key)
		if v.Kind() != pdf.String {
			continue
		}
		if s := strings.TrimSpace(v.RawString()); s != "" {
			meta[strings.TrimPrefix(key, "/")] = s
		}
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

// extractScanned rasterizes every page with pdftoppm and runs each
// rendered page through the OCR pipeline. A page that fails OCR degrades
// to a note rather than failing the whole document.
func (e *Extractor) extractScanned(ctx context.Context, content []byte) (*domain.ExtractionUnit, error) {
	workDir, err := os.MkdirTemp(e.tmpDir, "rasterize-")
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "pdfextract.extractScanned", err)
	}
	defer os.RemoveAll(workDir)

	input := filepath.Join(workDir, "input.pdf")
	if err := os.WriteFile(input, content, 0o600); err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "pdfextract.extractScanned", err)
	}

	prefix := filepath.Join(workDir, "page")
	_, err = e.runner.Run(ctx, e.pdftoppmBin, "-r", strconv.Itoa(e.dpi), "-png", input, prefix)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCorruptDocument, "pdfextract.extractScanned", err)
	}

	pages, err := renderedPages(workDir)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "pdfextract.extractScanned", err)
	}
	if len(pages) == 0 {
		return nil, domain.WrapError(domain.ErrCorruptDocument, "pdfextract.extractScanned",
			errors.New("rasterization produced no pages"))
	}

	unit := &domain.ExtractionUnit{
		PageCount:      declaredPageCount(content),
		PageText:       make(map[int]string, len(pages)),
		PageConfidence: make(map[int]float64, len(pages)),
	}
	if unit.PageCount == 0 {
		unit.PageCount = len(pages)
	} else if len(pages) < unit.PageCount {
		unit.AddNote(fmt.Sprintf("rasterization produced %d of %d pages", len(pages), unit.PageCount))
	}

	var all []string
	var confSum float64
	var confCount int
	for i, path := range pages {
		pageNum := i + 1
		img, err := os.ReadFile(path)
		if err != nil {
			unit.AddNote(fmt.Sprintf("page %d lost during rasterization", pageNum))
			continue
		}
		text, info, err := e.pipeline.Process(ctx, img)
		if err != nil {
			unit.AddNote(fmt.Sprintf("page %d OCR failed: %v", pageNum, err))
			continue
		}
		unit.PageText[pageNum] = text
		if text != "" {
			all = append(all, text)
		}
		unit.PageConfidence[pageNum] = info.OCRConfidence
		confSum += info.OCRConfidence
		confCount++
	}

	unit.RawText = strings.Join(all, "\n\n")
	if confCount > 0 {
		mean := confSum / float64(confCount)
		unit.OCRConfidence = &mean
	}
	return unit, nil
}

// declaredPageCount reads the page count from the document catalog, so
// the reported count does not move when individual pages are lost
// downstream. Returns 0 when the container cannot be parsed.
func declaredPageCount(content []byte) (n int) {
	defer func() {
		if recover() != nil {
			n = 0
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return 0
	}
	return r.NumPage()
}

// renderedPages lists pdftoppm output files in page order. pdftoppm
// zero-pads page numbers so lexical order matches page order.
func renderedPages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var pages []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, "page") && strings.HasSuffix(name, ".png") {
			pages = append(pages, filepath.Join(dir, name))
		}
	}
	sort.Strings(pages)
	return pages, nil
}
