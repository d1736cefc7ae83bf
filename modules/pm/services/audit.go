package services

import "context"

// AuditSink receives attribution records for mutating operations. It is
// fire-and-forget: implementations must never fail the triggering operation,
// and callers never check an error.
type AuditSink interface {
	Record(ctx context.Context, action, entityType string, entityID uint, description string, details map[string]any)
}

// NopAuditSink discards every record. Used in tests and tooling.
type NopAuditSink struct{}

func (NopAuditSink) Record(ctx context.Context, action, entityType string, entityID uint, description string, details map[string]any) {
}
