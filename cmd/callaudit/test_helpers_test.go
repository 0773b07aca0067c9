package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"callaudit/internal/audit"
	"callaudit/internal/config"
	"callaudit/internal/scoring"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *audit.Store
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	configPath := filepath.Join(base, "callaudit.toml")
	content := fmt.Sprintf(`[paths]
data_dir = %q
log_dir = %q

[oracle]
api_key = "test-key"

[crm]
base_url = "http://127.0.0.1:0"
api_key = "test-key"
`, filepath.Join(base, "data"), filepath.Join(base, "logs"))
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	store, err := audit.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})

	return &cliTestEnv{
		cfg:        cfg,
		store:      store,
		configPath: configPath,
		baseDir:    base,
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()

	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	if configPath != "" {
		args = append([]string{"--config", configPath}, args...)
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}

// seedCompletedAudit creates one finalized audit with a single step result.
func seedCompletedAudit(t *testing.T, env *cliTestEnv, caseRef string) *audit.Audit {
	t.Helper()
	ctx := context.Background()

	a := &audit.Audit{
		CaseRef:    caseRef,
		CaseName:   "Dupont Jean",
		RubricRef:  "rub-1",
		RubricName: "Conformité",
		RubricJSON: `{"name":"Conformité","steps":[]}`,
	}
	if err := env.store.CreatePending(ctx, a); err != nil {
		t.Fatalf("create pending: %v", err)
	}

	score := 10.0
	result := &audit.StepResult{
		AuditID:      a.ID,
		StepPosition: 1,
		StepName:     "Présentation",
		Conforme:     true,
		Score:        &score,
	}
	if err := result.SetControlPoints([]audit.ControlPoint{{
		Point:  "mention enregistrement",
		Statut: "CONFORME",
	}}); err != nil {
		t.Fatalf("set control points: %v", err)
	}
	if err := env.store.UpsertStepResult(ctx, result); err != nil {
		t.Fatalf("upsert step: %v", err)
	}

	summary := scoring.Summary{
		Score:          92.5,
		Niveau:         scoring.NiveauExcellent,
		CriticalPassed: 1,
		CriticalTotal:  1,
		EarnedWeight:   9.25,
		TotalWeight:    10,
	}
	stats := audit.Statistics{Successful: 1, TotalTokens: 120, DurationMS: 40}
	if err := env.store.Finalize(ctx, a.ID, summary, stats); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	completed, err := env.store.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("reload audit: %v", err)
	}
	return completed
}
