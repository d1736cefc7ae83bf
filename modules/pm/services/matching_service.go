package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/maklerwerk/backoffice/modules/pm/domain/aggregates/commission"
	"github.com/maklerwerk/backoffice/modules/pm/domain/aggregates/contract"
	"github.com/maklerwerk/backoffice/modules/pm/domain/aggregates/employee"
	"github.com/maklerwerk/backoffice/modules/pm/domain/entities/commissionmodel"
	"github.com/maklerwerk/backoffice/modules/pm/domain/entities/vermittlermapping"
	"github.com/maklerwerk/backoffice/modules/pm/domain/entities/xempusconsultation"
	"github.com/maklerwerk/backoffice/modules/pm/domain/normalize"
	"github.com/maklerwerk/backoffice/pkg/composables"
	"github.com/maklerwerk/backoffice/pkg/serrors"
)

// ErrMatchConflict is returned when a manual match targets a commission that
// already carries a different contract and no override was requested.
var ErrMatchConflict = serrors.NewError(
	"PM_MATCH_CONFLICT",
	"commission is already assigned to a different contract",
	"",
)

var (
	confidenceExact        = decimal.NewFromFloat(1.0)
	confidenceAlt          = decimal.NewFromFloat(0.9)
	confidenceConsultation = decimal.NewFromFloat(0.85)
)

// MatchResult reports one matching pass.
type MatchResult struct {
	Matched          int
	BeraterResolved  int
	SplitsCalculated int
	StillUnmatched   int
}

// MatchingService reconciles imported commission line items against internal
// contracts in a fixed stage order, at the highest confidence available.
// Everything a pass writes happens in one transaction.
type MatchingService struct {
	commissions   commission.Repository
	contracts     contract.Repository
	consultations xempusconsultation.Repository
	mappings      vermittlermapping.Repository
	employees     employee.Repository
	models        commissionmodel.Repository
	settlements   *SettlementService
	audit         AuditSink
	log           *logrus.Logger
}

func NewMatchingService(
	commissions commission.Repository,
	contracts contract.Repository,
	consultations xempusconsultation.Repository,
	mappings vermittlermapping.Repository,
	employees employee.Repository,
	models commissionmodel.Repository,
	settlements *SettlementService,
	audit AuditSink,
	log *logrus.Logger,
) *MatchingService {
	return &MatchingService{
		commissions:   commissions,
		contracts:     contracts,
		consultations: consultations,
		mappings:      mappings,
		employees:     employees,
		models:        models,
		settlements:   settlements,
		audit:         audit,
		log:           log,
	}
}

// AutoMatch runs the staged matching pipeline over every unmatched commission
// in scope. Stages run in fixed order and later stages never override an
// earlier stage's assignment. The pass is all-or-nothing: a failure anywhere
// rolls back every write, so partial advisor propagation cannot happen.
func (s *MatchingService) AutoMatch(ctx context.Context, scope commission.Scope) (*MatchResult, error) {
	result := &MatchResult{}

	err := composables.InTx(ctx, func(txCtx context.Context) error {
		rows, err := s.commissions.ListUnmatched(txCtx, scope)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		keys := make([]string, 0, len(rows))
		seen := make(map[string]struct{}, len(rows))
		for _, row := range rows {
			if _, ok := seen[row.VSNRNormalized]; ok {
				continue
			}
			seen[row.VSNRNormalized] = struct{}{}
			keys = append(keys, row.VSNRNormalized)
		}

		byVSNR, err := s.contracts.MapByNormalizedVSNR(txCtx, keys)
		if err != nil {
			return err
		}
		byAltVSNR, err := s.contracts.MapByNormalizedAltVSNR(txCtx, keys)
		if err != nil {
			return err
		}
		consultations, err := s.consultations.MapActiveByVSNR(txCtx, keys)
		if err != nil {
			return err
		}

		dirty := make(map[uint]*commission.Commission)
		linkedContracts := make(map[uint]*contract.Contract)

		// Stage 1: exact VSNR. Stage 2: alternate VSNR for rows the first
		// stage left without a contract.
		for _, row := range rows {
			if row.ContractID != nil {
				continue
			}
			if c, ok := byVSNR[row.VSNRNormalized]; ok {
				id := c.ID
				row.ContractID = &id
				row.MatchConfidence = confidenceExact
				linkedContracts[c.ID] = c
				dirty[row.ID] = row
				continue
			}
			if c, ok := byAltVSNR[row.VSNRNormalized]; ok {
				id := c.ID
				row.ContractID = &id
				row.MatchConfidence = confidenceAlt
				linkedContracts[c.ID] = c
				dirty[row.ID] = row
			}
		}

		// Stage 3: link active Xempus consultations for traceability. The
		// link never assigns a contract by itself.
		for _, row := range rows {
			if row.XempusConsultationID != nil {
				continue
			}
			if id, ok := consultations[row.VSNRNormalized]; ok {
				cid := id
				row.XempusConsultationID = &cid
				if row.ContractID == nil {
					row.MatchConfidence = confidenceConsultation
				}
				dirty[row.ID] = row
			}
		}

		// Stages 4 and 5 share one mapping lookup over contract advisor names
		// and statement broker names.
		names := make([]string, 0, len(rows)+len(linkedContracts))
		nameSeen := make(map[string]struct{})
		addName := func(n string) {
			if n == "" {
				return
			}
			if _, ok := nameSeen[n]; ok {
				return
			}
			nameSeen[n] = struct{}{}
			names = append(names, n)
		}
		for _, c := range linkedContracts {
			if c.BeraterID == nil {
				addName(normalize.Name(c.BeraterName))
			}
		}
		for _, row := range rows {
			if row.BeraterID == nil {
				addName(row.VermittlerNameNormalized)
			}
		}

		mappings, err := s.mappings.MapByNames(txCtx, names)
		if err != nil {
			return err
		}

		// Stage 4: resolve the contract's advisor from its free-text name,
		// then propagate down to the commissions linked to it.
		for _, c := range linkedContracts {
			if c.BeraterID != nil || c.BeraterName == "" {
				continue
			}
			if beraterID, ok := mappings[normalize.Name(c.BeraterName)]; ok {
				id := beraterID
				c.BeraterID = &id
				if err := s.contracts.UpdateBerater(txCtx, c.ID, beraterID); err != nil {
					return err
				}
			}
		}
		for _, row := range rows {
			if row.BeraterID != nil || row.ContractID == nil {
				continue
			}
			if c, ok := linkedContracts[*row.ContractID]; ok && c.BeraterID != nil {
				row.BeraterID = c.BeraterID
				result.BeraterResolved++
				dirty[row.ID] = row
			}
		}

		// Stage 5: resolve directly from the statement broker name and
		// propagate the advisor up to a contract that has none yet.
		for _, row := range rows {
			if row.BeraterID != nil || row.VermittlerNameNormalized == "" {
				continue
			}
			beraterID, ok := mappings[row.VermittlerNameNormalized]
			if !ok {
				continue
			}
			id := beraterID
			row.BeraterID = &id
			result.BeraterResolved++
			dirty[row.ID] = row

			if row.ContractID != nil {
				if c, ok := linkedContracts[*row.ContractID]; ok && c.BeraterID == nil {
					c.BeraterID = &id
					if err := s.contracts.UpdateBerater(txCtx, c.ID, beraterID); err != nil {
						return err
					}
				}
			}
		}

		// Stage 6: compute splits for every fully resolved row and mark it
		// auto matched.
		sc, err := loadSplitContext(txCtx, s.employees, s.models)
		if err != nil {
			return err
		}

		statusContracts := make([]uint, 0, len(linkedContracts))
		for _, row := range rows {
			if row.ContractID == nil || row.BeraterID == nil {
				continue
			}
			shares, ok := sc.sharesFor(row)
			if !ok {
				s.log.Warnf("pm: commission %d references unknown berater %d, left unmatched", row.ID, *row.BeraterID)
				continue
			}
			row.BeraterAnteil = shares.Berater
			row.TLAnteil = shares.TL
			row.AGAnteil = shares.AG
			row.MatchStatus = commission.MatchAuto
			dirty[row.ID] = row
			result.Matched++
			result.SplitsCalculated++

			if row.Betrag.IsPositive() {
				statusContracts = append(statusContracts, *row.ContractID)
			}
		}

		if len(dirty) > 0 {
			updates := make([]*commission.Commission, 0, len(dirty))
			for _, row := range dirty {
				updates = append(updates, row)
			}
			if _, err := s.commissions.BulkUpdateMatches(txCtx, updates); err != nil {
				return err
			}
		}

		// Stage 7: contracts that now carry a positive matched commission
		// advance to provision_erhalten.
		if len(statusContracts) > 0 {
			if _, err := s.contracts.AdvanceToProvisionErhalten(txCtx, statusContracts); err != nil {
				return err
			}
		}

		for _, row := range rows {
			if !row.IsMatched() {
				result.StillUnmatched++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, "pm.automatch", "commission_batch", 0,
		fmt.Sprintf("auto-match pass: %d matched, %d still unmatched", result.Matched, result.StillUnmatched),
		map[string]any{
			"matched":           result.Matched,
			"berater_resolved":  result.BeraterResolved,
			"splits_calculated": result.SplitsCalculated,
			"still_unmatched":   result.StillUnmatched,
		})
	return result, nil
}

// ManualMatch assigns a contract to a single commission. Without override it
// refuses to move a commission that already points at a different contract.
// Every other still-unmatched row sharing the normalized policy number is
// assigned to the same contract (sibling propagation) with full confidence.
// Open settlements of every (month, advisor) pair the match touches are
// regenerated, including the advisor the row is taken away from.
func (s *MatchingService) ManualMatch(ctx context.Context, commissionID, contractID uint, override bool) (*MatchResult, error) {
	result := &MatchResult{}

	err := composables.InTx(ctx, func(txCtx context.Context) error {
		row, err := s.commissions.GetByID(txCtx, commissionID)
		if err != nil {
			return err
		}
		if row.ContractID != nil && *row.ContractID != contractID && !override {
			return ErrMatchConflict.WithDetails("commission %d is assigned to contract %d", commissionID, *row.ContractID)
		}

		c, err := s.contracts.GetByID(txCtx, contractID)
		if err != nil {
			return err
		}

		sc, err := loadSplitContext(txCtx, s.employees, s.models)
		if err != nil {
			return err
		}

		touched := make(map[monthBerater]struct{})
		if row.IsMatched() && row.BeraterID != nil {
			touched[monthBerater{month: row.Month(), beraterID: *row.BeraterID}] = struct{}{}
		}

		previousBerater := row.BeraterID
		cid := contractID
		row.ContractID = &cid
		row.MatchStatus = commission.MatchManual
		row.MatchConfidence = confidenceExact
		if c.BeraterID != nil {
			row.BeraterID = c.BeraterID
		}
		if row.BeraterID != nil {
			if shares, ok := sc.sharesFor(row); ok {
				row.BeraterAnteil = shares.Berater
				row.TLAnteil = shares.TL
				row.AGAnteil = shares.AG
				result.SplitsCalculated++
				if previousBerater == nil || *previousBerater != *row.BeraterID {
					result.BeraterResolved++
				}
			}
		}

		if err := s.commissions.UpdateMatch(txCtx, row); err != nil {
			return err
		}
		result.Matched++
		if row.BeraterID != nil {
			touched[monthBerater{month: row.Month(), beraterID: *row.BeraterID}] = struct{}{}
		}

		siblings, err := s.commissions.ListUnmatchedByVSNR(txCtx, row.VSNRNormalized)
		if err != nil {
			return err
		}
		updates := make([]*commission.Commission, 0, len(siblings))
		statusContracts := []uint{}
		if row.Betrag.IsPositive() {
			statusContracts = append(statusContracts, contractID)
		}
		for _, sib := range siblings {
			if sib.ID == row.ID {
				continue
			}
			sib.ContractID = &cid
			sib.MatchStatus = commission.MatchAuto
			sib.MatchConfidence = confidenceExact
			if c.BeraterID != nil {
				sib.BeraterID = c.BeraterID
			} else if row.BeraterID != nil {
				sib.BeraterID = row.BeraterID
			}
			if sib.BeraterID != nil {
				if shares, ok := sc.sharesFor(sib); ok {
					sib.BeraterAnteil = shares.Berater
					sib.TLAnteil = shares.TL
					sib.AGAnteil = shares.AG
					result.SplitsCalculated++
				}
			}
			updates = append(updates, sib)
			result.Matched++
			if sib.BeraterID != nil {
				touched[monthBerater{month: sib.Month(), beraterID: *sib.BeraterID}] = struct{}{}
			}
			if sib.Betrag.IsPositive() {
				statusContracts = append(statusContracts, contractID)
			}
		}
		if len(updates) > 0 {
			if _, err := s.commissions.BulkUpdateMatches(txCtx, updates); err != nil {
				return err
			}
		}
		if len(statusContracts) > 0 {
			if _, err := s.contracts.AdvanceToProvisionErhalten(txCtx, statusContracts); err != nil {
				return err
			}
		}

		for pair := range touched {
			if _, err := s.settlements.regenerateIfOpen(txCtx, pair.month, pair.beraterID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, "pm.manual_match", "commission", commissionID,
		fmt.Sprintf("manually matched to contract %d (override=%v)", contractID, override),
		map[string]any{"contract_id": contractID, "siblings": result.Matched - 1})
	return result, nil
}
