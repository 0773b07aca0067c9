package main

import (
	"context"
	"strings"
	"testing"

	"callaudit/internal/audit"
)

func TestListAndShow(t *testing.T) {
	env := setupCLITestEnv(t)
	seeded := seedCompletedAudit(t, env, "fiche-42")

	out, _, err := runCLI(t, []string{"list"}, env.configPath)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	requireContains(t, out, "fiche-42")
	requireContains(t, out, "EXCELLENT")
	requireContains(t, out, "92.50%")

	out, _, err = runCLI(t, []string{"show", seeded.ID, "--points"}, env.configPath)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	requireContains(t, out, seeded.ID)
	requireContains(t, out, "Dupont Jean")
	requireContains(t, out, "Présentation")
	requireContains(t, out, "mention enregistrement")
	requireContains(t, out, "Critical:  1/1")
}

func TestShowResolvesPrefix(t *testing.T) {
	env := setupCLITestEnv(t)
	seeded := seedCompletedAudit(t, env, "fiche-42")

	out, _, err := runCLI(t, []string{"show", seeded.ID[:8]}, env.configPath)
	if err != nil {
		t.Fatalf("show by prefix: %v", err)
	}
	requireContains(t, out, seeded.ID)

	_, _, err = runCLI(t, []string{"show", "no-such-audit"}, env.configPath)
	if err == nil {
		t.Fatal("expected unknown audit to error")
	}
}

func TestListFiltersByCase(t *testing.T) {
	env := setupCLITestEnv(t)
	seedCompletedAudit(t, env, "fiche-42")
	seedCompletedAudit(t, env, "fiche-43")

	out, _, err := runCLI(t, []string{"list", "--case", "fiche-43"}, env.configPath)
	if err != nil {
		t.Fatalf("list --case: %v", err)
	}
	requireContains(t, out, "fiche-43")
	if strings.Contains(out, "fiche-42") {
		t.Fatalf("filtered listing leaked other cases:\n%s", out)
	}
}

func TestReviewStepCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	seeded := seedCompletedAudit(t, env, "fiche-42")

	out, _, err := runCLI(t, []string{
		"review", "step", seeded.ID, "1",
		"--conforme=false", "--score", "2",
		"--by", "marie", "--reason", "citation hors sujet",
	}, env.configPath)
	if err != nil {
		t.Fatalf("review step: %v", err)
	}
	requireContains(t, out, "non conforme")
	requireContains(t, out, "review #1")

	result, err := env.store.GetStepResult(context.Background(), seeded.ID, 1)
	if err != nil {
		t.Fatalf("reload step: %v", err)
	}
	if result.Conforme || result.Score == nil || *result.Score != 2 {
		t.Fatalf("override not persisted: %#v", result)
	}
}

func TestReviewPointCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	seeded := seedCompletedAudit(t, env, "fiche-42")

	_, _, err := runCLI(t, []string{
		"review", "point", seeded.ID, "1", "1",
		"--statut", "non_conforme",
		"--by", "marie", "--reason", "mention absente",
	}, env.configPath)
	if err != nil {
		t.Fatalf("review point: %v", err)
	}

	result, err := env.store.GetStepResult(context.Background(), seeded.ID, 1)
	if err != nil {
		t.Fatalf("reload step: %v", err)
	}
	points, err := result.ControlPoints()
	if err != nil {
		t.Fatalf("control points: %v", err)
	}
	if points[0].Statut != "NON_CONFORME" {
		t.Fatalf("override not persisted: %#v", points[0])
	}

	_, _, err = runCLI(t, []string{
		"review", "point", seeded.ID, "1", "9",
		"--statut", "conforme",
		"--by", "marie", "--reason", "typo",
	}, env.configPath)
	if err == nil {
		t.Fatal("expected out-of-range control point to error")
	}
}

func TestDeleteAndStats(t *testing.T) {
	env := setupCLITestEnv(t)
	seeded := seedCompletedAudit(t, env, "fiche-42")

	out, _, err := runCLI(t, []string{"stats"}, env.configPath)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	requireContains(t, out, string(audit.StatusCompleted))

	out, _, err = runCLI(t, []string{"delete", seeded.ID}, env.configPath)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	requireContains(t, out, "Deleted audit")

	out, _, err = runCLI(t, []string{"list"}, env.configPath)
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	requireContains(t, out, "No audits recorded")
}

func TestReconcileWithoutStuckRuns(t *testing.T) {
	env := setupCLITestEnv(t)
	seedCompletedAudit(t, env, "fiche-42")

	out, _, err := runCLI(t, []string{"reconcile"}, env.configPath)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	requireContains(t, out, "No stuck audits found")
}
