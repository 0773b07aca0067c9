package audit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"callaudit/internal/audit"
	"callaudit/internal/scoring"
	"callaudit/internal/services"
	"callaudit/internal/testsupport"
)

func newRunningAudit(t *testing.T, store *audit.Store, caseRef string) *audit.Audit {
	t.Helper()
	a := &audit.Audit{
		CaseRef:    caseRef,
		CaseName:   "Dupont Jean",
		RubricRef:  "rubric-1",
		RubricName: "Conformité téléphonique",
	}
	if err := store.CreatePending(context.Background(), a); err != nil {
		t.Fatalf("CreatePending: %v", err)
	}
	return a
}

func completedSummary() scoring.Summary {
	return scoring.Summary{
		Score:          80,
		Niveau:         scoring.NiveauBon,
		CriticalPassed: 2,
		CriticalTotal:  2,
		EarnedWeight:   40,
		TotalWeight:    50,
	}
}

func TestOpenAppliesMigrations(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	a := newRunningAudit(t, store, "case-1")
	if a.ID == "" {
		t.Fatal("expected audit ID to be assigned")
	}
	if a.Status != audit.StatusRunning {
		t.Fatalf("expected running status, got %s", a.Status)
	}

	fetched, err := store.GetByID(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if fetched == nil || fetched.CaseRef != "case-1" || fetched.CaseName != "Dupont Jean" {
		t.Fatalf("unexpected fetched audit: %#v", fetched)
	}
	if fetched.IsLatest {
		t.Fatal("running audit must not be latest yet")
	}
}

func TestGetByIDMissingReturnsNil(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	fetched, err := store.GetByID(context.Background(), "no-such-audit")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if fetched != nil {
		t.Fatalf("expected nil for missing audit, got %#v", fetched)
	}
}

func TestUpsertStepResultIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	a := newRunningAudit(t, store, "case-1")
	score := 5.0
	result := &audit.StepResult{
		AuditID:          a.ID,
		StepPosition:     1,
		StepName:         "Présentation",
		Conforme:         true,
		Score:            &score,
		NiveauConformite: "CONFORME",
	}

	if err := store.UpsertStepResult(ctx, result); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	refreshed := 3.0
	result.Score = &refreshed
	result.Conforme = false
	if err := store.UpsertStepResult(ctx, result); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	results, err := store.StepResults(ctx, a.ID)
	if err != nil {
		t.Fatalf("StepResults: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected exactly one row after replay, got %d", len(results))
	}
	stored := results[0]
	if stored.Conforme || stored.Score == nil || *stored.Score != 3.0 {
		t.Fatalf("last write did not win: %#v", stored)
	}
}

func TestStepResultsOrderedByPosition(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	a := newRunningAudit(t, store, "case-1")
	for _, pos := range []int{3, 1, 2} {
		if err := store.UpsertStepResult(ctx, &audit.StepResult{AuditID: a.ID, StepPosition: pos}); err != nil {
			t.Fatalf("upsert position %d: %v", pos, err)
		}
	}

	results, err := store.StepResults(ctx, a.ID)
	if err != nil {
		t.Fatalf("StepResults: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, result := range results {
		if result.StepPosition != i+1 {
			t.Fatalf("results out of order: %#v", results)
		}
	}
}

func TestFinalizeDemotesPreviousLatest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := newRunningAudit(t, store, "case-1")
	if err := store.Finalize(ctx, first.ID, completedSummary(), audit.Statistics{Successful: 10}); err != nil {
		t.Fatalf("finalize first: %v", err)
	}

	second := newRunningAudit(t, store, "case-1")
	if err := store.Finalize(ctx, second.ID, completedSummary(), audit.Statistics{Successful: 9, Failed: 1}); err != nil {
		t.Fatalf("finalize second: %v", err)
	}

	demoted, err := store.GetByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetByID first: %v", err)
	}
	if demoted.IsLatest {
		t.Fatal("previous latest was not demoted")
	}
	if demoted.Status != audit.StatusCompleted {
		t.Fatalf("demotion must not change status, got %s", demoted.Status)
	}

	latest, err := store.Latest(ctx, "case-1", "rubric-1")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest == nil || latest.ID != second.ID {
		t.Fatalf("unexpected latest audit: %#v", latest)
	}
	if latest.Niveau != scoring.NiveauBon || latest.ScorePercentage != 80 {
		t.Fatalf("scorer output not persisted: %#v", latest)
	}
	stats := latest.Statistics()
	if stats.Successful != 9 || stats.Failed != 1 {
		t.Fatalf("statistics not persisted: %#v", stats)
	}
	if latest.CompletedAt == nil {
		t.Fatal("completed_at not set")
	}
}

func TestFinalizeRejectsNonRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	a := newRunningAudit(t, store, "case-1")
	if err := store.Finalize(ctx, a.ID, completedSummary(), audit.Statistics{}); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	err := store.Finalize(ctx, a.ID, completedSummary(), audit.Statistics{})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for double finalize, got %v", err)
	}

	if err := store.Finalize(ctx, "missing", completedSummary(), audit.Statistics{}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestMarkFailedNeverOverwritesCompleted(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	running := newRunningAudit(t, store, "case-1")
	if err := store.MarkFailed(ctx, running.ID, "oracle credentials absent"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	failed, err := store.GetByID(ctx, running.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if failed.Status != audit.StatusFailed || failed.ErrorMessage != "oracle credentials absent" {
		t.Fatalf("unexpected failed audit: %#v", failed)
	}

	done := newRunningAudit(t, store, "case-2")
	if err := store.Finalize(ctx, done.ID, completedSummary(), audit.Statistics{}); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := store.MarkFailed(ctx, done.ID, "too late"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected completed audit to be protected, got %v", err)
	}
	kept, err := store.GetByID(ctx, done.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if kept.Status != audit.StatusCompleted {
		t.Fatalf("completed audit was overwritten: %#v", kept)
	}
}

func TestSoftDeleteHidesAudit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	a := newRunningAudit(t, store, "case-1")
	if err := store.Finalize(ctx, a.ID, completedSummary(), audit.Statistics{}); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	deleted, err := store.SoftDelete(ctx, a.ID)
	if err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	if !deleted {
		t.Fatal("expected soft delete to affect the row")
	}

	listed, err := store.ListByCase(ctx, "case-1")
	if err != nil {
		t.Fatalf("ListByCase: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("soft-deleted audit still listed: %#v", listed)
	}

	latest, err := store.Latest(ctx, "case-1", "rubric-1")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest != nil {
		t.Fatalf("soft-deleted audit still latest: %#v", latest)
	}

	// Row still exists: soft delete only.
	fetched, err := store.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if fetched == nil || !fetched.Deleted() {
		t.Fatalf("expected surviving soft-deleted row, got %#v", fetched)
	}

	again, err := store.SoftDelete(ctx, a.ID)
	if err != nil {
		t.Fatalf("second SoftDelete: %v", err)
	}
	if again {
		t.Fatal("second soft delete must be a no-op")
	}
}

func TestMarkStuckFailed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	stuck := newRunningAudit(t, store, "case-1")
	fresh := newRunningAudit(t, store, "case-2")

	count, err := store.MarkStuckFailed(ctx, time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("MarkStuckFailed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected both running audits before the cutoff to fail, got %d", count)
	}

	for _, id := range []string{stuck.ID, fresh.ID} {
		a, err := store.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if a.Status != audit.StatusFailed {
			t.Fatalf("audit %s not failed: %#v", id, a)
		}
	}

	// A cutoff in the past touches nothing.
	count, err = store.MarkStuckFailed(ctx, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("MarkStuckFailed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no rows for past cutoff, got %d", count)
	}
}

func TestStatsGroupsByStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	done := newRunningAudit(t, store, "case-1")
	if err := store.Finalize(ctx, done.ID, completedSummary(), audit.Statistics{}); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	newRunningAudit(t, store, "case-2")
	broken := newRunningAudit(t, store, "case-3")
	if err := store.MarkFailed(ctx, broken.ID, "boom"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[audit.StatusCompleted] != 1 || stats[audit.StatusRunning] != 1 || stats[audit.StatusFailed] != 1 {
		t.Fatalf("unexpected stats: %#v", stats)
	}
}
