package scoring

import (
	"fmt"
	"math"

	"callaudit/internal/config"
	"callaudit/internal/rubric"
)

// Compliance tier labels. REJET is reserved for the critical-step veto and is
// never produced by the numeric thresholds alone.
const (
	NiveauExcellent   = "EXCELLENT"
	NiveauBon         = "BON"
	NiveauAcceptable  = "ACCEPTABLE"
	NiveauInsuffisant = "INSUFFISANT"
	NiveauRejet       = "REJET"
)

// Thresholds are the inclusive lower bounds of the numeric tiers.
type Thresholds struct {
	Excellent  float64
	Bon        float64
	Acceptable float64
}

// ThresholdsFromConfig maps the [scoring] config section onto tier bounds.
func ThresholdsFromConfig(cfg config.Scoring) Thresholds {
	return Thresholds{Excellent: cfg.Excellent, Bon: cfg.Bon, Acceptable: cfg.Acceptable}
}

// Outcome is the scorer's view of one attempted step. Score is nil for steps
// that failed without producing a numeric result.
type Outcome struct {
	Position int
	Conforme bool
	Score    *float64
}

// Summary is the reduced verdict for one audit run.
type Summary struct {
	Score          float64
	Niveau         string
	CriticalPassed int
	CriticalTotal  int
	EarnedWeight   float64
	TotalWeight    float64
}

// CriticalRatio renders the critical gate as "passed/total".
func (s Summary) CriticalRatio() string {
	return fmt.Sprintf("%d/%d", s.CriticalPassed, s.CriticalTotal)
}

// Score reduces the step outcomes against the rubric snapshot. Outcome order
// is irrelevant; the same inputs always yield the same summary.
func Score(outcomes []Outcome, snapshot rubric.Rubric, thresholds Thresholds) Summary {
	byPosition := make(map[int]Outcome, len(outcomes))
	for _, outcome := range outcomes {
		byPosition[outcome.Position] = outcome
	}

	summary := Summary{TotalWeight: snapshot.TotalWeight()}
	for _, step := range snapshot.Steps {
		outcome, attempted := byPosition[step.Position]
		if step.Critical {
			summary.CriticalTotal++
			if attempted && outcome.Conforme {
				summary.CriticalPassed++
			}
		}
		if attempted && outcome.Score != nil {
			summary.EarnedWeight += contribution(*outcome.Score, step.Weight)
		}
		delete(byPosition, step.Position)
	}

	// Defensive: results at positions outside the snapshot still count, with
	// the raw score as its own ceiling since no weight is known.
	for _, outcome := range byPosition {
		if outcome.Score != nil {
			summary.EarnedWeight += contribution(*outcome.Score, 0)
		}
	}

	if summary.TotalWeight > 0 {
		summary.Score = round2(100 * summary.EarnedWeight / summary.TotalWeight)
	}
	summary.Niveau = classify(summary, thresholds)
	return summary
}

// contribution caps a step's counted score at its rubric weight so an
// unexpectedly high oracle score never counts beyond its slot. Steps with no
// known weight contribute their raw score unchanged.
func contribution(score, weight float64) float64 {
	if weight > 0 && score > weight {
		return weight
	}
	return score
}

func classify(summary Summary, thresholds Thresholds) string {
	if summary.CriticalPassed < summary.CriticalTotal {
		return NiveauRejet
	}
	switch {
	case summary.Score >= thresholds.Excellent:
		return NiveauExcellent
	case summary.Score >= thresholds.Bon:
		return NiveauBon
	case summary.Score >= thresholds.Acceptable:
		return NiveauAcceptable
	default:
		return NiveauInsuffisant
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
