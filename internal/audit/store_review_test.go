package audit_test

import (
	"context"
	"errors"
	"testing"

	"callaudit/internal/audit"
	"callaudit/internal/services"
	"callaudit/internal/testsupport"
)

func seedStepWithPoints(t *testing.T, store *audit.Store, pointCount int) *audit.StepResult {
	t.Helper()
	ctx := context.Background()

	a := newRunningAudit(t, store, "case-1")
	score := 5.0
	result := &audit.StepResult{
		AuditID:          a.ID,
		StepPosition:     1,
		StepName:         "Consentement",
		Conforme:         false,
		Score:            &score,
		NiveauConformite: "NON_CONFORME",
	}
	points := make([]audit.ControlPoint, 0, pointCount)
	for i := 0; i < pointCount; i++ {
		points = append(points, audit.ControlPoint{
			Point:       "point",
			Statut:      "NON_CONFORME",
			Commentaire: "manquant",
			Citations:   []audit.Citation{{RecordingIndex: 0, Timestamp: 12.5}},
		})
	}
	if err := result.SetControlPoints(points); err != nil {
		t.Fatalf("SetControlPoints: %v", err)
	}
	if err := store.UpsertStepResult(ctx, result); err != nil {
		t.Fatalf("UpsertStepResult: %v", err)
	}
	return result
}

func TestReviewStepAppendsTrailAndUpdatesVerdict(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	seeded := seedStepWithPoints(t, store, 1)

	conforme := true
	newScore := 10.0
	reviewed, err := store.ReviewStep(ctx, seeded.AuditID, 1, audit.StepOverride{
		Conforme: &conforme,
		Score:    &newScore,
		By:       "superviseur",
		Reason:   "consentement audible à 12:30",
	})
	if err != nil {
		t.Fatalf("ReviewStep: %v", err)
	}
	if !reviewed.Conforme || reviewed.Score == nil || *reviewed.Score != 10 {
		t.Fatalf("override not applied: %#v", reviewed)
	}
	// Unspecified field keeps its prior value.
	if reviewed.NiveauConformite != "NON_CONFORME" {
		t.Fatalf("unset field changed: %q", reviewed.NiveauConformite)
	}

	stored, err := store.GetStepResult(ctx, seeded.AuditID, 1)
	if err != nil {
		t.Fatalf("GetStepResult: %v", err)
	}
	trail, err := stored.ReviewTrail()
	if err != nil {
		t.Fatalf("ReviewTrail: %v", err)
	}
	if len(trail) != 1 {
		t.Fatalf("expected one trail entry, got %d", len(trail))
	}
	entry := trail[0]
	if entry.Kind != audit.ReviewKindStep || entry.By != "superviseur" {
		t.Fatalf("unexpected entry: %#v", entry)
	}
	if entry.Previous.Conforme == nil || *entry.Previous.Conforme {
		t.Fatalf("previous machine verdict not preserved: %#v", entry.Previous)
	}
	if entry.Previous.Score == nil || *entry.Previous.Score != 5 {
		t.Fatalf("previous score not preserved: %#v", entry.Previous)
	}
}

func TestReviewStepTrailGrowsAndChains(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	seeded := seedStepWithPoints(t, store, 1)

	scores := []float64{7, 8, 9}
	for _, v := range scores {
		score := v
		if _, err := store.ReviewStep(ctx, seeded.AuditID, 1, audit.StepOverride{Score: &score, By: "qa"}); err != nil {
			t.Fatalf("ReviewStep(%v): %v", v, err)
		}
	}

	stored, err := store.GetStepResult(ctx, seeded.AuditID, 1)
	if err != nil {
		t.Fatalf("GetStepResult: %v", err)
	}
	trail, err := stored.ReviewTrail()
	if err != nil {
		t.Fatalf("ReviewTrail: %v", err)
	}
	if len(trail) != len(scores) {
		t.Fatalf("trail length = %d, want %d", len(trail), len(scores))
	}
	// Entry k's previous equals entry k-1's override.
	if *trail[0].Previous.Score != 5 {
		t.Fatalf("first previous should be the machine output: %#v", trail[0].Previous)
	}
	for k := 1; k < len(trail); k++ {
		if *trail[k].Previous.Score != *trail[k-1].Override.Score {
			t.Fatalf("trail broken at entry %d: %#v", k, trail)
		}
	}
}

func TestReviewStepMissingResult(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	a := newRunningAudit(t, store, "case-1")
	_, err := store.ReviewStep(context.Background(), a.ID, 4, audit.StepOverride{By: "qa"})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestReviewControlPoint(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	seeded := seedStepWithPoints(t, store, 3)

	statut := "CONFORME"
	reviewed, err := store.ReviewControlPoint(ctx, seeded.AuditID, 1, 2, audit.ControlPointOverride{
		Statut: &statut,
		By:     "superviseur",
		Reason: "mention présente",
	})
	if err != nil {
		t.Fatalf("ReviewControlPoint: %v", err)
	}

	points, err := reviewed.ControlPoints()
	if err != nil {
		t.Fatalf("ControlPoints: %v", err)
	}
	if points[1].Statut != "CONFORME" {
		t.Fatalf("override not applied: %#v", points[1])
	}
	if points[1].Commentaire != "manquant" {
		t.Fatalf("unset commentaire changed: %#v", points[1])
	}
	if points[0].Statut != "NON_CONFORME" || points[2].Statut != "NON_CONFORME" {
		t.Fatalf("sibling points touched: %#v", points)
	}

	trail, err := reviewed.ReviewTrail()
	if err != nil {
		t.Fatalf("ReviewTrail: %v", err)
	}
	if len(trail) != 1 || trail[0].Kind != audit.ReviewKindControlPoint || trail[0].ControlPointIndex != 2 {
		t.Fatalf("unexpected trail: %#v", trail)
	}
}

func TestReviewControlPointIndexOutOfRange(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	seeded := seedStepWithPoints(t, store, 3)

	statut := "CONFORME"
	_, err := store.ReviewControlPoint(ctx, seeded.AuditID, 1, 5, audit.ControlPointOverride{Statut: &statut})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-available, got %v", err)
	}

	// No write occurred.
	stored, err := store.GetStepResult(ctx, seeded.AuditID, 1)
	if err != nil {
		t.Fatalf("GetStepResult: %v", err)
	}
	trail, err := stored.ReviewTrail()
	if err != nil {
		t.Fatalf("ReviewTrail: %v", err)
	}
	if len(trail) != 0 {
		t.Fatalf("trail written despite out-of-range index: %#v", trail)
	}
	points, err := stored.ControlPoints()
	if err != nil {
		t.Fatalf("ControlPoints: %v", err)
	}
	for _, point := range points {
		if point.Statut != "NON_CONFORME" {
			t.Fatalf("points mutated despite out-of-range index: %#v", points)
		}
	}
}

func TestControlPointSummary(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	seeded := seedStepWithPoints(t, store, 2)

	summary, err := store.ControlPointSummary(ctx, seeded.AuditID, 1, 1)
	if err != nil {
		t.Fatalf("ControlPointSummary: %v", err)
	}
	if summary == nil || summary.Statut != "NON_CONFORME" || summary.Commentaire != "manquant" {
		t.Fatalf("unexpected summary: %#v", summary)
	}

	missing, err := store.ControlPointSummary(ctx, seeded.AuditID, 1, 9)
	if err != nil {
		t.Fatalf("ControlPointSummary out of range: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for out-of-range index, got %#v", missing)
	}

	absent, err := store.ControlPointSummary(ctx, seeded.AuditID, 7, 1)
	if err != nil {
		t.Fatalf("ControlPointSummary absent step: %v", err)
	}
	if absent != nil {
		t.Fatalf("expected nil for absent step, got %#v", absent)
	}
}
