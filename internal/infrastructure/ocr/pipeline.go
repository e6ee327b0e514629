package ocr

import (
	"bytes"
	"context"
	"image"
	"os"
	"strings"

	"github.com/disintegration/imaging"

	_ "golang.org/x/image/webp"
	_ "image/jpeg"
	_ "image/png"

	"github.com/mbianchi/document-worker/internal/core/domain"
)

// Pipeline decodes an uploaded image, cleans it up and feeds it to the
// recognition engine.
type Pipeline struct {
	engine *Engine
	tmpDir string
}

func NewPipeline(engine *Engine, tmpDir string) *Pipeline {
	return &Pipeline{engine: engine, tmpDir: tmpDir}
}

func (p *Pipeline) Process(ctx context.Context, content []byte) (string, *domain.ImageInfo, error) {
	img, format, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		return "", nil, domain.WrapError(domain.ErrCorruptDocument, "ocr.Process", err)
	}

	bounds := img.Bounds()
	info := &domain.ImageInfo{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Format: format,
	}

	cleaned := Preprocess(img)

	path, err := p.writeTemp(cleaned)
	if err != nil {
		return "", nil, domain.WrapError(domain.ErrTemporary, "ocr.Process", err)
	}
	defer os.Remove(path)

	text, confidence, err := p.engine.Recognize(ctx, path)
	if err != nil {
		return "", nil, domain.WrapError(domain.ErrTemporary, "ocr.Process", err)
	}

	info.OCRConfidence = confidence
	info.WordCount = len(strings.Fields(text))
	info.HasText = info.WordCount > 0
	return text, info, nil
}

func (p *Pipeline) writeTemp(img image.Image) (string, error) {
	f, err := os.CreateTemp(p.tmpDir, "ocr-*.png")
	if err != nil {
		return "", err
	}

	if err := imaging.Encode(f, img, imaging.PNG); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
