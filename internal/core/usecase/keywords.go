package usecase

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mbianchi/document-worker/internal/core/domain"
)

//go:embed keywords.yaml
var keywordTable []byte

type keywordSet struct {
	Type     domain.DocumentType `yaml:"type"`
	Filename []string            `yaml:"filename"`
	Content  []string            `yaml:"content"`
}

// Detector assigns a document category from filename and content
// keywords. It is a fast pre-classifier and the fallback when the
// remote model degrades; it never errors.
type Detector struct {
	sets []keywordSet
}

func NewDetector() *Detector {
	var table struct {
		Categories []keywordSet `yaml:"categories"`
	}
	if err := yaml.Unmarshal(keywordTable, &table); err != nil {
		// The table is embedded at build time; failing to parse it is a
		// programming error, not a runtime condition.
		panic(fmt.Sprintf("usecase: parse keyword table: %v", err))
	}
	return &Detector{sets: table.Categories}
}

// Detect checks filename keywords across all categories first, then
// text and column-name keywords, stopping at the first match. No match
// yields documento_generico with matched false.
func (d *Detector) Detect(filename, text string, columns []string) (domain.DocumentType, bool) {
	name := strings.ToLower(filename)
	for _, set := range d.sets {
		if matchAny(name, set.Filename) {
			return set.Type, true
		}
	}

	haystack := strings.ToLower(text + "\n" + strings.Join(columns, "\n"))
	for _, set := range d.sets {
		if matchAny(haystack, set.Content) {
			return set.Type, true
		}
	}

	return domain.TypeGenerico, false
}

func matchAny(haystack string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}
