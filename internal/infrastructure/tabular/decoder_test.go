package tabular

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mbianchi/document-worker/internal/core/domain"
)

func TestDecodeDelimitedSemicolon(t *testing.T) {
	content := []byte("Numero Fattura;Data;Importo Totale\nFT-001;2026-01-15;1250,00\nFT-002;2026-01-20;480,50\n")

	unit, err := New().Decode(context.Background(), content, domain.FormatDelimited)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if unit.Separator != ";" {
		t.Fatalf("Separator = %q, want ;", unit.Separator)
	}
	if len(unit.Sheets) != 1 {
		t.Fatalf("len(Sheets) = %d", len(unit.Sheets))
	}
	sheet := unit.Sheets[0]
	if len(sheet.Columns) != 3 || sheet.Columns[0] != "Numero Fattura" {
		t.Fatalf("Columns = %v", sheet.Columns)
	}
	if len(sheet.Rows) != 2 {
		t.Fatalf("len(Rows) = %d", len(sheet.Rows))
	}
	if sheet.Rows[1]["Importo Totale"] != "480,50" {
		t.Fatalf("row value = %q", sheet.Rows[1]["Importo Totale"])
	}
	if !strings.Contains(unit.RawText, "FT-001") {
		t.Fatalf("RawText missing data: %q", unit.RawText)
	}
}

func TestDecodeDelimitedPipe(t *testing.T) {
	content := []byte("codice|descrizione|quantita\nA1|vite|100\nA2|bullone|40\n")

	unit, err := New().Decode(context.Background(), content, domain.FormatDelimited)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if unit.Separator != "|" {
		t.Fatalf("Separator = %q, want |", unit.Separator)
	}
	if unit.Sheets[0].Rows[0]["descrizione"] != "vite" {
		t.Fatalf("rows = %v", unit.Sheets[0].Rows)
	}
}

func TestDecodeDelimitedLatin1(t *testing.T) {
	// "qualità" with an ISO-8859-1 encoded accented a.
	content := []byte("voce;qualit\xe0\nprima;alta\n")

	unit, err := New().Decode(context.Background(), content, domain.FormatDelimited)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if unit.Sheets[0].Columns[1] != "qualità" {
		t.Fatalf("Columns = %v", unit.Sheets[0].Columns)
	}
	found := false
	for _, note := range unit.Notes {
		if strings.Contains(note, "ISO-8859-1") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected encoding note, got %v", unit.Notes)
	}
}

func TestDecodeDelimitedRaggedRows(t *testing.T) {
	content := []byte("a;b;c\n1;2;3\n4;5\n6;7;8;9\n")

	unit, err := New().Decode(context.Background(), content, domain.FormatDelimited)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	rows := unit.Sheets[0].Rows
	if len(rows) != 3 {
		t.Fatalf("len(Rows) = %d, want 3", len(rows))
	}
	if rows[1]["c"] != "" {
		t.Fatalf("short row should pad missing columns, got %q", rows[1]["c"])
	}
}

func TestDecodeDuplicateAndEmptyHeaders(t *testing.T) {
	content := []byte("importo;;importo\n10;x;20\n")

	unit, err := New().Decode(context.Background(), content, domain.FormatDelimited)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	cols := unit.Sheets[0].Columns
	if cols[0] != "importo" || cols[1] != "colonna_2" || cols[2] != "importo_2" {
		t.Fatalf("Columns = %v", cols)
	}
}

func TestDecodeCorruptSpreadsheet(t *testing.T) {
	_, err := New().Decode(context.Background(), []byte("not a zip archive"), domain.FormatSpreadsheet)
	if !errors.Is(err, domain.ErrCorruptDocument) {
		t.Fatalf("err = %v, want ErrCorruptDocument", err)
	}
}

func TestDecodeRejectsNonTabularFormat(t *testing.T) {
	_, err := New().Decode(context.Background(), nil, domain.FormatImage)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}
