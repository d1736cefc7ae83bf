package commission

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Art string

const (
	ArtAP             Art = "ap"
	ArtRueckbelastung Art = "rueckbelastung"
	ArtNullmeldung    Art = "nullmeldung"
)

type MatchStatus string

const (
	MatchUnmatched MatchStatus = "unmatched"
	MatchAuto      MatchStatus = "auto_matched"
	MatchManual    MatchStatus = "manual_matched"
	MatchIgnored   MatchStatus = "ignored"
)

// Commission is one imported line item of an insurer commission statement.
// RowHash is the content hash of the import row and enforces import
// idempotency. Version is the optimistic lock guarding concurrent manual
// matches.
type Commission struct {
	ID                       uint
	VSNR                     string
	VSNRNormalized           string
	Betrag                   decimal.Decimal
	Art                      Art
	Auszahlungsdatum         time.Time
	VermittlerName           string
	VermittlerNameNormalized string
	ContractID               *uint
	BeraterID                *uint
	XempusConsultationID     *uint
	MatchStatus              MatchStatus
	MatchConfidence          decimal.Decimal
	BeraterAnteil            decimal.Decimal
	TLAnteil                 decimal.Decimal
	AGAnteil                 decimal.Decimal
	RowHash                  string
	ImportBatchID            *uuid.UUID
	Version                  int
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

func (c *Commission) IsMatched() bool {
	return c.MatchStatus == MatchAuto || c.MatchStatus == MatchManual
}

// IsChargeback reports whether the row reverses a prior payment. Negative
// amounts count regardless of the declared kind.
func (c *Commission) IsChargeback() bool {
	return c.Art == ArtRueckbelastung || c.Betrag.IsNegative()
}

// Month returns the first day of the payout month, the settlement grouping
// key.
func (c *Commission) Month() time.Time {
	return time.Date(c.Auszahlungsdatum.Year(), c.Auszahlungsdatum.Month(), 1, 0, 0, 0, 0, time.UTC)
}
