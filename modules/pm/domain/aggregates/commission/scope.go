package commission

import (
	"time"

	"github.com/google/uuid"
)

// Scope selects the set of commissions a matching or recalculation pass
// operates on. Exactly one of the three concrete scopes is used per pass; the
// implicit nullable batch-id parameter of earlier revisions is gone on
// purpose.
type Scope interface {
	isScope()
}

// ScopeAll covers every commission.
type ScopeAll struct{}

// ScopeBatch covers one import batch.
type ScopeBatch struct {
	BatchID uuid.UUID
}

// ScopeEmployees covers commissions attributed to the given employees,
// optionally restricted to payout dates from EffectiveFrom forward.
type ScopeEmployees struct {
	EmployeeIDs   []uint
	EffectiveFrom *time.Time
}

func (ScopeAll) isScope()       {}
func (ScopeBatch) isScope()     {}
func (ScopeEmployees) isScope() {}
