package openrouter

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mbianchi/document-worker/internal/core/domain"
)

const systemPrompt = "Sei un assistente specializzato nell'analisi di documenti aziendali italiani. " +
	"Rispondi sempre e solo con un oggetto JSON valido."

// fieldSchemas lists the extraction fields per document category, used
// verbatim inside the prompt so the model returns a predictable shape.
var fieldSchemas = map[domain.DocumentType]string{
	domain.TypeFattura:        `{"numero_fattura": "", "data_fattura": "", "importo_totale": 0, "iva": 0, "mittente": "", "destinatario": "", "righe_fattura": [], "valuta": "EUR"}`,
	domain.TypeBilancio:       `{"tipo_bilancio": "", "periodo": "", "attivita": 0, "passivita": 0, "patrimonio_netto": 0, "ricavi": 0, "costi": 0, "utile_perdita": 0}`,
	domain.TypeMagazzino:      `{"tipo_documento": "", "data": "", "articoli": [], "totale_quantita": 0, "totale_valore": 0, "magazzino_codice": ""}`,
	domain.TypeCorrispettivo:  `{"numero_documento": "", "data": "", "importo_totale": 0, "iva": 0, "esercente": "", "prodotti": []}`,
	domain.TypeAnalisiMercato: `{"titolo": "", "periodo": "", "settore": "", "dati_analitici": {}, "grafici_descrizioni": [], "conclusioni": ""}`,
}

func buildTextPrompt(text string, hint domain.DocumentType, maxChars int) string {
	var b strings.Builder

	b.WriteString("Analizza il seguente documento aziendale e classificalo in una di queste categorie: ")
	b.WriteString(categoryList())
	b.WriteString(".\n")

	if domain.IsCategory(hint) {
		fmt.Fprintf(&b, "Suggerimento: il documento dovrebbe essere di tipo %q.\n", hint)
	}

	b.WriteString("\nRispondi con un oggetto JSON con questa struttura:\n")
	b.WriteString(`{"document_type": "<categoria>", "confidence_score": <0.0-1.0>, "extracted_data": <dati>, "summary": "<breve riassunto in italiano>"}`)
	b.WriteString("\n\nSchemi di extracted_data per categoria:\n")
	for _, category := range domain.Categories {
		fmt.Fprintf(&b, "- %s: %s\n", category, fieldSchemas[category])
	}
	b.WriteString("Se il documento non rientra in nessuna categoria usa \"documento_generico\" con i campi che riesci a estrarre.\n")

	b.WriteString("\nDocumento:\n")
	b.WriteString(truncate(text, maxChars))
	return b.String()
}

func buildImagePrompt(hint domain.DocumentType) string {
	var b strings.Builder

	b.WriteString("Analizza l'immagine di questo documento aziendale e classificalo in una di queste categorie: ")
	b.WriteString(categoryList())
	b.WriteString(".\n")

	if domain.IsCategory(hint) {
		fmt.Fprintf(&b, "Suggerimento: il documento dovrebbe essere di tipo %q.\n", hint)
	}

	b.WriteString("\nRispondi con un oggetto JSON con questa struttura:\n")
	b.WriteString(`{"document_type": "<categoria>", "confidence_score": <0.0-1.0>, "extracted_data": <dati>, "raw_text": "<testo leggibile nell'immagine>", "summary": "<breve riassunto in italiano>"}`)
	b.WriteString("\n\nSchemi di extracted_data per categoria:\n")
	for _, category := range domain.Categories {
		fmt.Fprintf(&b, "- %s: %s\n", category, fieldSchemas[category])
	}
	b.WriteString("Se il documento non rientra in nessuna categoria usa \"documento_generico\".\n")
	return b.String()
}

func categoryList() string {
	names := make([]string, len(domain.Categories))
	for i, c := range domain.Categories {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

func truncate(text string, maxChars int) string {
	if utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxChars])
}

// extractJSONObject cuts the substring between the first '{' and the
// last '}' so code fences or prose around the object do not break
// decoding.
func extractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
