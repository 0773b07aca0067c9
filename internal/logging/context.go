package logging

import (
	"context"
	"log/slog"

	"callaudit/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldAuditID is the standardized structured logging key for audit run identifiers.
	FieldAuditID = "audit_id"
	// FieldCaseRef is the standardized structured logging key for case references.
	FieldCaseRef = "case_ref"
	// FieldStep is the standardized structured logging key for rubric step names.
	FieldStep = "step"
	// FieldStepPosition is the standardized structured logging key for rubric step positions.
	FieldStepPosition = "step_position"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType is the standardized structured logging key for machine-readable event names.
	FieldEventType = "event_type"
	// FieldErrorHint is the standardized structured logging key for operator guidance on failures.
	FieldErrorHint = "error_hint"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.AuditIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldAuditID, id))
	}
	if ref, ok := services.CaseRefFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCaseRef, ref))
	}
	if step, ok := services.StepFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStep, step))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
