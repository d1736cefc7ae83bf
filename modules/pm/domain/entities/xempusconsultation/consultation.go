package xempusconsultation

import (
	"context"
	"time"
)

// Consultation is an imported record from the external Xempus consultation
// tracking system. Matching stage three links commissions to active
// consultations by normalized policy number for traceability; the link never
// assigns a contract by itself.
type Consultation struct {
	ID             uint
	XempusID       string
	VSNRNormalized string
	IsActive       bool
	CreatedAt      time.Time
}

type Repository interface {
	// MapActiveByVSNR returns, per normalized policy number, the id of an
	// active consultation carrying it.
	MapActiveByVSNR(ctx context.Context, keys []string) (map[string]uint, error)
	UpsertByXempusID(ctx context.Context, c *Consultation) (*Consultation, error)
}
