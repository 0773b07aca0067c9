package services

import "context"

type contextKey string

const (
	auditIDKey   contextKey = "audit_id"
	caseRefKey   contextKey = "case_ref"
	stepKey      contextKey = "step"
	requestIDKey contextKey = "request_id"
)

// WithAuditID annotates context with the audit run identifier.
func WithAuditID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, auditIDKey, id)
}

// AuditIDFromContext extracts the audit run identifier if present.
func AuditIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(auditIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithCaseRef annotates context with the case reference under audit.
func WithCaseRef(ctx context.Context, ref string) context.Context {
	if ref == "" {
		return ctx
	}
	return context.WithValue(ctx, caseRefKey, ref)
}

// CaseRefFromContext returns the case reference if present.
func CaseRefFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(caseRefKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStep annotates context with the rubric step name being evaluated.
func WithStep(ctx context.Context, step string) context.Context {
	if step == "" {
		return ctx
	}
	return context.WithValue(ctx, stepKey, step)
}

// StepFromContext returns the rubric step name if present.
func StepFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(stepKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
