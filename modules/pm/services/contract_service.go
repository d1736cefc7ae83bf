package services

import (
	"context"
	"fmt"

	"github.com/maklerwerk/backoffice/modules/pm/domain/aggregates/commission"
	"github.com/maklerwerk/backoffice/modules/pm/domain/aggregates/contract"
	"github.com/maklerwerk/backoffice/modules/pm/domain/normalize"
	"github.com/maklerwerk/backoffice/pkg/composables"
)

// ContractService manages the contract book. The contract's advisor is the
// source of truth: assigning one syncs it down to every commission already
// matched to the contract and recalculates their splits.
type ContractService struct {
	contracts   contract.Repository
	commissions commission.Repository
	recalc      *RecalcService
	settlements *SettlementService
	audit       AuditSink
}

func NewContractService(
	contracts contract.Repository,
	commissions commission.Repository,
	recalc *RecalcService,
	settlements *SettlementService,
	audit AuditSink,
) *ContractService {
	return &ContractService{
		contracts:   contracts,
		commissions: commissions,
		recalc:      recalc,
		settlements: settlements,
		audit:       audit,
	}
}

func (s *ContractService) GetByID(ctx context.Context, id uint) (*contract.Contract, error) {
	return s.contracts.GetByID(ctx, id)
}

func (s *ContractService) Create(ctx context.Context, c *contract.Contract) (*contract.Contract, error) {
	normalizeContract(c)

	created, err := composables.InTxResult(ctx, func(txCtx context.Context) (*contract.Contract, error) {
		return s.contracts.Create(txCtx, c)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, "pm.contract_create", "contract", created.ID,
		fmt.Sprintf("created contract %s", created.VSNR), nil)
	return created, nil
}

func (s *ContractService) Update(ctx context.Context, c *contract.Contract) (*contract.Contract, error) {
	normalizeContract(c)

	updated, err := composables.InTxResult(ctx, func(txCtx context.Context) (*contract.Contract, error) {
		if err := s.contracts.Update(txCtx, c); err != nil {
			return nil, err
		}
		return s.contracts.GetByID(txCtx, c.ID)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, "pm.contract_update", "contract", updated.ID,
		fmt.Sprintf("updated contract %s", updated.VSNR), nil)
	return updated, nil
}

// AssignBerater sets the contract's advisor and syncs the assignment down to
// every commission matched to the contract, then recalculates their splits
// under the new advisor's rate configuration. Open settlements of the previous
// advisor covering the moved rows are regenerated as well.
func (s *ContractService) AssignBerater(ctx context.Context, contractID, beraterID uint) (int64, error) {
	var synced int64
	previousPairs := make(map[monthBerater]struct{})
	err := composables.InTx(ctx, func(txCtx context.Context) error {
		existing, err := s.contracts.GetByID(txCtx, contractID)
		if err != nil {
			return err
		}
		if existing.BeraterID != nil && *existing.BeraterID != beraterID {
			rows, err := s.commissions.ListByContract(txCtx, contractID)
			if err != nil {
				return err
			}
			for _, row := range rows {
				if row.IsMatched() && row.BeraterID != nil && *row.BeraterID == *existing.BeraterID {
					previousPairs[monthBerater{month: row.Month(), beraterID: *row.BeraterID}] = struct{}{}
				}
			}
		}

		if err := s.contracts.UpdateBerater(txCtx, contractID, beraterID); err != nil {
			return err
		}
		synced, err = s.commissions.SetBeraterForContract(txCtx, contractID, beraterID)
		return err
	})
	if err != nil {
		return 0, err
	}

	if synced > 0 {
		if _, err := s.recalc.Recalculate(ctx, commission.ScopeEmployees{EmployeeIDs: []uint{beraterID}}); err != nil {
			return synced, err
		}
	}

	// the previous advisor's open settlements just lost these rows
	if len(previousPairs) > 0 {
		err := composables.InTx(ctx, func(txCtx context.Context) error {
			for pair := range previousPairs {
				if _, err := s.settlements.regenerateIfOpen(txCtx, pair.month, pair.beraterID); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return synced, err
		}
	}

	s.audit.Record(ctx, "pm.contract_assign_berater", "contract", contractID,
		fmt.Sprintf("assigned berater %d to contract %d, %d commissions synced", beraterID, contractID, synced),
		map[string]any{"berater_id": beraterID, "commissions_synced": synced})
	return synced, nil
}

func normalizeContract(c *contract.Contract) {
	c.VSNRNormalized = normalize.PolicyNumber(c.VSNR)
	// an absent alternate number must not produce the "0" fallback key, which
	// would alt-match any all-zero or digit-free policy number
	c.VSNRAltNormalized = ""
	if c.VSNRAlt != "" {
		c.VSNRAltNormalized = normalize.PolicyNumber(c.VSNRAlt)
	}
	c.VersicherungsnehmerNormalized = normalize.DBName(c.Versicherungsnehmer)
}
