package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"callaudit/internal/services"
)

// StepOverride carries a human correction for a step verdict. Nil fields keep
// the currently persisted value.
type StepOverride struct {
	Conforme         *bool
	Score            *float64
	NiveauConformite *string
	By               string
	Reason           string
}

// ControlPointOverride carries a human correction for one control point.
type ControlPointOverride struct {
	Statut      *string
	Commentaire *string
	By          string
	Reason      string
}

// ControlPointSummary is the read-side preview of one control point.
type ControlPointSummary struct {
	Point       string `json:"point"`
	Statut      string `json:"statut"`
	Commentaire string `json:"commentaire"`
}

// ReviewStep applies a human correction to a persisted step verdict. The
// prior machine output is captured in an appended ReviewEntry, then the
// override values become the current verdict. Append and update happen in one
// write so either both land or neither does.
func (s *Store) ReviewStep(ctx context.Context, auditID string, stepPosition int, override StepOverride) (*StepResult, error) {
	result, err := s.GetStepResult(ctx, auditID, stepPosition)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, services.Wrap(services.ErrNotFound, "audit", "review-step",
			fmt.Sprintf("no result for audit %s step %d", auditID, stepPosition), nil)
	}

	previous := ReviewValues{
		Conforme:         boolPtr(result.Conforme),
		Score:            result.Score,
		NiveauConformite: stringPtr(result.NiveauConformite),
	}
	applied := ReviewValues{
		Conforme:         coalesceBool(override.Conforme, previous.Conforme),
		Score:            coalesceFloat(override.Score, previous.Score),
		NiveauConformite: coalesceString(override.NiveauConformite, previous.NiveauConformite),
	}

	entry := ReviewEntry{
		At:       time.Now().UTC(),
		By:       override.By,
		Reason:   override.Reason,
		Kind:     ReviewKindStep,
		Previous: previous,
		Override: applied,
	}
	trailJSON, err := appendReviewEntry(result.HumanReviewJSON, entry)
	if err != nil {
		return nil, err
	}

	result.Conforme = *applied.Conforme
	result.Score = applied.Score
	if applied.NiveauConformite != nil {
		result.NiveauConformite = *applied.NiveauConformite
	}
	result.HumanReviewJSON = trailJSON
	result.UpdatedAt = time.Now().UTC()

	if _, err := s.db.ExecContext(
		ctx,
		`UPDATE step_results
         SET conforme = ?, score = ?, niveau_conformite = ?, human_review_json = ?, updated_at = ?
         WHERE audit_id = ? AND step_position = ?`,
		boolToInt(result.Conforme),
		nullableFloat(result.Score),
		nullableString(result.NiveauConformite),
		result.HumanReviewJSON,
		result.UpdatedAt.Format(time.RFC3339Nano),
		auditID,
		stepPosition,
	); err != nil {
		return nil, fmt.Errorf("apply step review: %w", err)
	}
	return result, nil
}

// ReviewControlPoint applies a human correction to one 1-based-indexed
// control point inside a step's structured result. A step without structured
// control points, or an index out of range, yields "not available" and no
// write occurs.
func (s *Store) ReviewControlPoint(ctx context.Context, auditID string, stepPosition, controlPointIndex int, override ControlPointOverride) (*StepResult, error) {
	result, err := s.GetStepResult(ctx, auditID, stepPosition)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, services.Wrap(services.ErrNotFound, "audit", "review-point",
			fmt.Sprintf("no result for audit %s step %d", auditID, stepPosition), nil)
	}

	points, err := result.ControlPoints()
	if err != nil {
		return nil, fmt.Errorf("decode control points: %w", err)
	}
	if controlPointIndex < 1 || controlPointIndex > len(points) {
		return nil, services.Wrap(services.ErrNotFound, "audit", "review-point",
			fmt.Sprintf("control point %d not available (step has %d)", controlPointIndex, len(points)), nil)
	}
	point := &points[controlPointIndex-1]

	previous := ReviewValues{
		Statut:      stringPtr(point.Statut),
		Commentaire: stringPtr(point.Commentaire),
	}
	applied := ReviewValues{
		Statut:      coalesceString(override.Statut, previous.Statut),
		Commentaire: coalesceString(override.Commentaire, previous.Commentaire),
	}

	entry := ReviewEntry{
		At:                time.Now().UTC(),
		By:                override.By,
		Reason:            override.Reason,
		Kind:              ReviewKindControlPoint,
		ControlPointIndex: controlPointIndex,
		Previous:          previous,
		Override:          applied,
	}
	trailJSON, err := appendReviewEntry(result.HumanReviewJSON, entry)
	if err != nil {
		return nil, err
	}

	if applied.Statut != nil {
		point.Statut = *applied.Statut
	}
	if applied.Commentaire != nil {
		point.Commentaire = *applied.Commentaire
	}
	if err := result.SetControlPoints(points); err != nil {
		return nil, fmt.Errorf("encode control points: %w", err)
	}
	result.HumanReviewJSON = trailJSON
	result.UpdatedAt = time.Now().UTC()

	if _, err := s.db.ExecContext(
		ctx,
		`UPDATE step_results
         SET control_points_json = ?, human_review_json = ?, updated_at = ?
         WHERE audit_id = ? AND step_position = ?`,
		nullableString(result.ControlPointsJSON),
		result.HumanReviewJSON,
		result.UpdatedAt.Format(time.RFC3339Nano),
		auditID,
		stepPosition,
	); err != nil {
		return nil, fmt.Errorf("apply control point review: %w", err)
	}
	return result, nil
}

// ControlPointSummary previews one control point before editing, nil when the
// step or the index is absent. Read-only.
func (s *Store) ControlPointSummary(ctx context.Context, auditID string, stepPosition, controlPointIndex int) (*ControlPointSummary, error) {
	result, err := s.GetStepResult(ctx, auditID, stepPosition)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	points, err := result.ControlPoints()
	if err != nil {
		return nil, fmt.Errorf("decode control points: %w", err)
	}
	if controlPointIndex < 1 || controlPointIndex > len(points) {
		return nil, nil
	}
	point := points[controlPointIndex-1]
	return &ControlPointSummary{
		Point:       point.Point,
		Statut:      point.Statut,
		Commentaire: point.Commentaire,
	}, nil
}

func appendReviewEntry(trailJSON string, entry ReviewEntry) (string, error) {
	var trail []ReviewEntry
	if trailJSON != "" {
		if err := json.Unmarshal([]byte(trailJSON), &trail); err != nil {
			return "", fmt.Errorf("decode review trail: %w", err)
		}
	}
	trail = append(trail, entry)
	data, err := json.Marshal(trail)
	if err != nil {
		return "", fmt.Errorf("encode review trail: %w", err)
	}
	return string(data), nil
}

func boolPtr(v bool) *bool       { return &v }
func stringPtr(v string) *string { return &v }

func coalesceBool(override, previous *bool) *bool {
	if override != nil {
		return override
	}
	return previous
}

func coalesceFloat(override, previous *float64) *float64 {
	if override != nil {
		return override
	}
	return previous
}

func coalesceString(override, previous *string) *string {
	if override != nil {
		return override
	}
	return previous
}
