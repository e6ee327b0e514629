// Package tabular extracts structured rows from spreadsheets and
// delimiter-separated text files.
package tabular

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/mbianchi/document-worker/internal/core/domain"
)

var delimiterCandidates = []rune{';', '\t', '|', ','}

type Decoder struct{}

func New() *Decoder {
	return &Decoder{}
}

func (d *Decoder) Decode(ctx context.Context, content []byte, format domain.DetectedFormat) (*domain.ExtractionUnit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch format {
	case domain.FormatSpreadsheet:
		return decodeSpreadsheet(content)
	case domain.FormatDelimited:
		return decodeDelimited(content)
	}
	return nil, domain.WrapError(domain.ErrInvalidInput, "tabular.Decode",
		fmt.Errorf("format %q is not tabular", format))
}

func decodeSpreadsheet(content []byte) (*domain.ExtractionUnit, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, domain.WrapError(domain.ErrCorruptDocument, "tabular.decodeSpreadsheet", err)
	}
	defer f.Close()

	unit := &domain.ExtractionUnit{}
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			unit.AddNote(fmt.Sprintf("sheet %q skipped: unreadable", name))
			continue
		}
		unit.Sheets = append(unit.Sheets, sheetFromRows(name, rows))
	}

	if len(unit.Sheets) == 0 {
		return nil, domain.WrapError(domain.ErrCorruptDocument, "tabular.decodeSpreadsheet",
			errors.New("workbook has no readable sheets"))
	}

	unit.RawText = renderSheets(unit.Sheets)
	return unit, nil
}

func sheetFromRows(name string, rows [][]string) domain.Sheet {
	sheet := domain.Sheet{Name: name}
	if len(rows) == 0 {
		return sheet
	}

	sheet.Columns = normalizeHeader(rows[0])
	for _, row := range rows[1:] {
		record := make(map[string]string, len(sheet.Columns))
		for i, col := range sheet.Columns {
			if i < len(row) {
				record[col] = strings.TrimSpace(row[i])
			} else {
				record[col] = ""
			}
		}
		sheet.Rows = append(sheet.Rows, record)
	}
	return sheet
}

func decodeDelimited(content []byte) (*domain.ExtractionUnit, error) {
	text, note, err := decodeText(content)
	if err != nil {
		return nil, err
	}

	sep := detectDelimiter(text)
	unit := &domain.ExtractionUnit{Separator: string(sep)}
	if note != "" {
		unit.AddNote(note)
	}

	records := parseCSV(text, sep)
	if len(records) == 0 {
		unit.AddNote("no parseable rows")
		return unit, nil
	}

	unit.Sheets = []domain.Sheet{sheetFromRows("", records)}
	unit.RawText = renderSheets(unit.Sheets)
	return unit, nil
}

// decodeText tries UTF-8 first, then legacy single-byte encodings common
// in exported Italian accounting data.
func decodeText(content []byte) (string, string, error) {
	if utf8.Valid(content) {
		return string(content), "", nil
	}
	for _, enc := range []struct {
		name string
		dec  *encoding.Decoder
	}{
		{"ISO-8859-1", charmap.ISO8859_1.NewDecoder()},
		{"Windows-1252", charmap.Windows1252.NewDecoder()},
	} {
		decoded, err := enc.dec.Bytes(content)
		if err == nil {
			return string(decoded), fmt.Sprintf("decoded as %s", enc.name), nil
		}
	}
	return "", "", domain.WrapError(domain.ErrCorruptDocument, "tabular.decodeText",
		errors.New("undecodable byte stream"))
}

// detectDelimiter picks the first candidate present in the first line.
// Semicolon, tab and pipe are checked before comma because Italian
// exports use comma as the decimal separator inside amounts.
func detectDelimiter(text string) rune {
	firstLine := text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		firstLine = text[:i]
	}
	for _, sep := range delimiterCandidates {
		if strings.ContainsRune(firstLine, sep) {
			return sep
		}
	}
	return ','
}

func parseCSV(text string, sep rune) [][]string {
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = sep
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var records [][]string
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				continue
			}
			return nil
		}
		records = append(records, record)
	}
	return records
}

func normalizeHeader(header []string) []string {
	cols := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, raw := range header {
		col := strings.TrimSpace(raw)
		if col == "" {
			col = fmt.Sprintf("colonna_%d", i+1)
		}
		if n := seen[col]; n > 0 {
			col = fmt.Sprintf("%s_%d", col, n+1)
		}
		seen[col]++
		cols[i] = col
	}
	return cols
}

// renderSheets flattens parsed rows back into plain text for the
// classification and extraction stages.
func renderSheets(sheets []domain.Sheet) string {
	var b strings.Builder
	for _, sheet := range sheets {
		if sheet.Name != "" {
			fmt.Fprintf(&b, "== %s ==\n", sheet.Name)
		}
		b.WriteString(strings.Join(sheet.Columns, " | "))
		b.WriteByte('\n')
		for _, row := range sheet.Rows {
			vals := make([]string, len(sheet.Columns))
			for i, col := range sheet.Columns {
				vals[i] = row[col]
			}
			b.WriteString(strings.Join(vals, " | "))
			b.WriteByte('\n')
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
