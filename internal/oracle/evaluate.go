package oracle

import (
	"context"
	"fmt"
	"strings"

	"callaudit/internal/audit"
	"callaudit/internal/rubric"
	"callaudit/internal/services"
)

const evaluationSystemPrompt = `Tu es un auditeur de conformité réglementaire pour des appels de vente par téléphone.
On te fournit la transcription horodatée d'un dossier (un ou plusieurs enregistrements) et un point de contrôle à évaluer.
Réponds UNIQUEMENT avec un objet JSON de la forme:
{
  "conforme": true|false,
  "score": <nombre entre 0 et le poids de l'étape>,
  "niveau_conformite": "CONFORME"|"PARTIELLEMENT_CONFORME"|"NON_CONFORME",
  "points_de_controle": [
    {
      "point": "<sous-vérification>",
      "statut": "CONFORME"|"NON_CONFORME"|"NON_APPLICABLE",
      "commentaire": "<justification courte>",
      "citations": [{"recording_index": <n>, "timestamp": <secondes>, "extrait": "<citation exacte>"}]
    }
  ]
}
Chaque citation doit pointer vers l'enregistrement (recording_index) et l'instant où la preuve apparaît.`

// Evaluation is the validated verdict for one rubric step.
type Evaluation struct {
	Conforme         bool
	Score            *float64
	NiveauConformite string
	ControlPoints    []audit.ControlPoint
	TokensUsed       int
	Raw              string
}

type evaluationPayload struct {
	Conforme         bool                  `json:"conforme"`
	Score            *float64              `json:"score"`
	NiveauConformite string                `json:"niveau_conformite"`
	ControlPoints    []controlPointPayload `json:"points_de_controle"`
}

type controlPointPayload struct {
	Point       string            `json:"point"`
	Statut      string            `json:"statut"`
	Commentaire string            `json:"commentaire"`
	Citations   []citationPayload `json:"citations"`
}

type citationPayload struct {
	RecordingIndex int     `json:"recording_index"`
	Timestamp      float64 `json:"timestamp"`
	Excerpt        string  `json:"extrait"`
}

// EvaluateStep asks the oracle to judge one rubric step against the timeline.
// The raw model output is validated at this boundary; persistence never sees
// unchecked payloads.
func (c *Client) EvaluateStep(ctx context.Context, step rubric.Step, timelineText, productInfo string) (Evaluation, error) {
	var empty Evaluation
	if strings.TrimSpace(timelineText) == "" {
		return empty, services.Wrap(services.ErrValidation, "oracle", "evaluate", "timeline text is empty", nil)
	}

	result, err := c.CompleteJSON(ctx, evaluationSystemPrompt, buildStepPrompt(step, timelineText, productInfo))
	if err != nil {
		return empty, err
	}

	var payload evaluationPayload
	if err := DecodeOracleJSON(result.Content, &payload); err != nil {
		return empty, services.Wrap(services.ErrTransient, "oracle", "evaluate",
			fmt.Sprintf("step %d (%s): parse verdict", step.Position, step.Name), err)
	}

	evaluation := Evaluation{
		Conforme:         payload.Conforme,
		Score:            payload.Score,
		NiveauConformite: strings.ToUpper(strings.TrimSpace(payload.NiveauConformite)),
		TokensUsed:       result.TotalTokens,
		Raw:              result.Content,
	}
	if evaluation.Score != nil && *evaluation.Score < 0 {
		zero := 0.0
		evaluation.Score = &zero
	}
	for _, point := range payload.ControlPoints {
		converted := audit.ControlPoint{
			Point:       strings.TrimSpace(point.Point),
			Statut:      strings.ToUpper(strings.TrimSpace(point.Statut)),
			Commentaire: strings.TrimSpace(point.Commentaire),
		}
		for _, citation := range point.Citations {
			converted.Citations = append(converted.Citations, audit.Citation{
				RecordingIndex: citation.RecordingIndex,
				Timestamp:      citation.Timestamp,
				Excerpt:        strings.TrimSpace(citation.Excerpt),
			})
		}
		evaluation.ControlPoints = append(evaluation.ControlPoints, converted)
	}
	return evaluation, nil
}

func buildStepPrompt(step rubric.Step, timelineText, productInfo string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Étape %d: %s (poids %.1f", step.Position, step.Name, step.Weight)
	if step.Critical {
		b.WriteString(", CRITIQUE")
	}
	b.WriteString(")\n")
	if step.Severity != "" {
		fmt.Fprintf(&b, "Sévérité: %s\n", step.Severity)
	}
	if prompt := strings.TrimSpace(step.Prompt); prompt != "" {
		fmt.Fprintf(&b, "Consigne: %s\n", prompt)
	}
	if step.RequiresProductInfo {
		if info := strings.TrimSpace(productInfo); info != "" {
			fmt.Fprintf(&b, "\nInformations produit:\n%s\n", info)
		} else {
			b.WriteString("\nInformations produit: indisponibles.\n")
		}
	}
	b.WriteString("\nTranscription:\n")
	b.WriteString(timelineText)
	return b.String()
}
