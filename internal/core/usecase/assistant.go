package usecase

import (
	"fmt"

	"github.com/mbianchi/document-worker/internal/core/domain"
)

const assistantRawTextLimit = 4000

// BuildAssistantView reshapes a ProcessingResult into the structure a
// downstream assistant consumes: typed content block, short summary and
// suggested follow-up prompts. It never fails; unknown shapes fall back
// to a raw-data envelope.
func BuildAssistantView(result *domain.ProcessingResult) *domain.AssistantView {
	view := &domain.AssistantView{
		Metadata: domain.AssistantMetadata{
			DocumentType:        result.Classification.Type,
			FileName:            result.Metadata.OriginalFilename,
			FileType:            result.Metadata.FileType,
			ExtractionTimestamp: result.CreatedAt,
			Confidence:          result.Classification.Confidence,
		},
	}

	switch result.Classification.Type {
	case domain.TypeFattura:
		view.Content = pick(result.ExtractedData,
			"numero_fattura", "data_fattura", "importo_totale", "iva",
			"mittente", "destinatario", "righe_fattura", "valuta")
		view.Summary = summaryOr(result,
			fmt.Sprintf("Fattura %v del %v, importo totale %v",
				field(result.ExtractedData, "numero_fattura"),
				field(result.ExtractedData, "data_fattura"),
				field(result.ExtractedData, "importo_totale")))
		view.SuggestedPrompts = []string{
			"Verifica la correttezza dei calcoli IVA di questa fattura",
			"Riassumi le righe di questa fattura per categoria di spesa",
			"Questa fattura presenta anomalie rispetto a una fattura standard?",
		}
	case domain.TypeBilancio:
		view.Content = pick(result.ExtractedData,
			"tipo_bilancio", "periodo", "attivita", "passivita",
			"patrimonio_netto", "ricavi", "costi", "utile_perdita")
		view.Summary = summaryOr(result,
			fmt.Sprintf("Bilancio per il periodo %v", field(result.ExtractedData, "periodo")))
		view.SuggestedPrompts = []string{
			"Analizza la salute finanziaria risultante da questo bilancio",
			"Calcola i principali indici di bilancio (ROE, ROI, indice di liquidità)",
			"Confronta attività e passività e commenta il patrimonio netto",
		}
	case domain.TypeMagazzino:
		view.Content = pick(result.ExtractedData,
			"tipo_documento", "data", "articoli", "totale_quantita",
			"totale_valore", "magazzino_codice")
		view.Summary = summaryOr(result,
			fmt.Sprintf("Documento di magazzino del %v", field(result.ExtractedData, "data")))
		view.SuggestedPrompts = []string{
			"Quali articoli hanno giacenza critica in questo inventario?",
			"Calcola il valore totale del magazzino per categoria",
			"Suggerisci articoli da riordinare in base alle quantità",
		}
	case domain.TypeCorrispettivo:
		view.Content = pick(result.ExtractedData,
			"numero_documento", "data", "importo_totale", "iva",
			"esercente", "prodotti")
		view.Summary = summaryOr(result,
			fmt.Sprintf("Corrispettivo di %v del %v",
				field(result.ExtractedData, "esercente"),
				field(result.ExtractedData, "data")))
		view.SuggestedPrompts = []string{
			"Classifica questa spesa per categoria contabile",
			"Questo scontrino è detraibile? A quali condizioni?",
		}
	case domain.TypeAnalisiMercato:
		view.Content = pick(result.ExtractedData,
			"titolo", "periodo", "settore", "dati_analitici",
			"grafici_descrizioni", "conclusioni")
		view.Summary = summaryOr(result,
			fmt.Sprintf("Analisi di mercato: %v", field(result.ExtractedData, "titolo")))
		view.SuggestedPrompts = []string{
			"Riassumi i trend principali di questa analisi di mercato",
			"Quali opportunità e rischi emergono da questi dati?",
		}
	default:
		view.Content = rawEnvelope(result)
		view.Summary = summaryOr(result, "Documento generico elaborato")
		view.SuggestedPrompts = []string{
			"Riassumi il contenuto di questo documento",
			"Che tipo di documento è e quali dati contiene?",
		}
	}

	if result.Classification.Type == domain.TypeError {
		view.Metadata.Error = errorNote(result.Notes)
		view.Summary = "Elaborazione del documento non riuscita"
		view.SuggestedPrompts = nil
	}
	if len(view.Content) == 0 {
		view.Content = rawEnvelope(result)
	}
	return view
}

// pick copies the named keys that are actually present, so the content
// block never carries empty placeholders.
func pick(data map[string]any, keys ...string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, key := range keys {
		if v, ok := data[key]; ok && v != nil {
			out[key] = v
		}
	}
	return out
}

func rawEnvelope(result *domain.ProcessingResult) map[string]any {
	text := result.RawText
	if runes := []rune(text); len(runes) > assistantRawTextLimit {
		text = string(runes[:assistantRawTextLimit])
	}
	out := map[string]any{"testo": text}
	if len(result.ExtractedData) > 0 {
		out["dati"] = result.ExtractedData
	}
	return out
}

func field(data map[string]any, key string) any {
	if v, ok := data[key]; ok && v != nil {
		return v
	}
	return "n/d"
}

func summaryOr(result *domain.ProcessingResult, fallback string) string {
	if s, ok := result.ExtractedData["summary"].(string); ok && s != "" {
		return s
	}
	return fallback
}

// errorNote is the terminal failure note, appended last by assembly.
func errorNote(notes []string) string {
	if len(notes) == 0 {
		return "errore sconosciuto"
	}
	return notes[len(notes)-1]
}
