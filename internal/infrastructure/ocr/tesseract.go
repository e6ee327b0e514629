package ocr

import (
	"context"
	"strconv"
	"strings"
)

// Engine wraps the tesseract binary. Recognition runs twice per image:
// once for plain text and once in TSV mode to recover a confidence score.
type Engine struct {
	runner   Runner
	bin      string
	language string
	dpi      int
}

func NewEngine(runner Runner, bin, language string, dpi int) *Engine {
	return &Engine{runner: runner, bin: bin, language: language, dpi: dpi}
}

// Recognize runs OCR on the image at path and returns the extracted text
// together with the mean word confidence on a 0-100 scale.
func (e *Engine) Recognize(ctx context.Context, path string) (string, float64, error) {
	dpi := strconv.Itoa(e.dpi)

	out, err := e.runner.Run(ctx, e.bin, path, "stdout", "-l", e.language, "--dpi", dpi)
	if err != nil {
		return "", 0, err
	}
	text := strings.TrimSpace(string(out))

	tsv, err := e.runner.Run(ctx, e.bin, path, "stdout", "-l", e.language, "--dpi", dpi, "tsv")
	if err != nil {
		return "", 0, err
	}

	return text, meanWordConfidence(string(tsv)), nil
}

// meanWordConfidence averages the conf column of tesseract's TSV output
// over recognized words. Structural rows carry conf -1 and are skipped.
func meanWordConfidence(tsv string) float64 {
	lines := strings.Split(tsv, "\n")
	if len(lines) < 2 {
		return 0
	}

	var sum float64
	var count int
	for _, line := range lines[1:] {
		fields := strings.Split(line, "\t")
		if len(fields) < 12 {
			continue
		}
		conf, err := strconv.ParseFloat(fields[10], 64)
		if err != nil || conf < 0 {
			continue
		}
		if strings.TrimSpace(fields[11]) == "" {
			continue
		}
		sum += conf
		count++
	}

	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
