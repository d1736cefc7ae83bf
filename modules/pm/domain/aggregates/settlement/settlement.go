package settlement

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusBerechnet   Status = "berechnet"
	StatusGeprueft    Status = "geprueft"
	StatusFreigegeben Status = "freigegeben"
	StatusAusgezahlt  Status = "ausgezahlt"
)

// transitions is the settlement state machine. Locked rows reject every
// transition regardless of this table.
var transitions = map[Status][]Status{
	StatusBerechnet:   {StatusGeprueft},
	StatusGeprueft:    {StatusBerechnet, StatusFreigegeben},
	StatusFreigegeben: {StatusGeprueft, StatusAusgezahlt},
	StatusAusgezahlt:  {},
}

func (s Status) CanTransitionTo(to Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsOpen reports whether recalculation may supersede a settlement in this
// status with a new revision.
func (s Status) IsOpen() bool {
	return s == StatusBerechnet || s == StatusGeprueft
}

// Settlement is one revision of an advisor's monthly statement. Revisions are
// append-only; the current view for a (month, advisor) pair is the highest
// revision. A released revision is a closed financial record.
type Settlement struct {
	ID                uint
	Abrechnungsmonat  time.Time
	BeraterID         uint
	Revision          int
	BruttoProvision   decimal.Decimal
	TLAbzug           decimal.Decimal
	NettoProvision    decimal.Decimal
	Rueckbelastungen  decimal.Decimal
	Auszahlung        decimal.Decimal
	AnzahlProvisionen int
	Status            Status
	IsLocked          bool
	ReleasedBy        *uint
	ReleasedAt        *time.Time
	CreatedAt         time.Time
}
