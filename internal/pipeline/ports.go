package pipeline

import (
	"context"

	"callaudit/internal/audit"
	"callaudit/internal/crm"
	"callaudit/internal/oracle"
	"callaudit/internal/rubric"
	"callaudit/internal/scoring"
	"callaudit/internal/timeline"
)

// Oracle is the reasoning-oracle port, one call per rubric step.
type Oracle interface {
	EvaluateStep(ctx context.Context, step rubric.Step, timelineText, productInfo string) (oracle.Evaluation, error)
	HealthCheck(ctx context.Context) error
}

// CaseStore resolves a case reference to enough identity to stamp into the
// finalized audit record.
type CaseStore interface {
	ResolveCase(ctx context.Context, caseRef string) (crm.Case, error)
}

// TranscriptSource supplies a case's recordings with their transcripts.
type TranscriptSource interface {
	Recordings(ctx context.Context, caseRef string) ([]timeline.Source, error)
}

// ProductResolver supplies the product sheet linked to a case. Consulted only
// when a rubric step requires it; failures are non-fatal to the run.
type ProductResolver interface {
	ProductInfo(ctx context.Context, caseRef string) (string, error)
}

// AuditStore is the persistence port for the run lifecycle.
type AuditStore interface {
	CreatePending(ctx context.Context, a *audit.Audit) error
	UpsertStepResult(ctx context.Context, result *audit.StepResult) error
	Finalize(ctx context.Context, auditID string, summary scoring.Summary, stats audit.Statistics) error
	MarkFailed(ctx context.Context, auditID, message string) error
}
