package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/maklerwerk/backoffice/modules/pm/domain/aggregates/commission"
	"github.com/maklerwerk/backoffice/modules/pm/domain/aggregates/contract"
	"github.com/maklerwerk/backoffice/modules/pm/domain/entities/xempusconsultation"
	"github.com/maklerwerk/backoffice/modules/pm/domain/normalize"
	"github.com/maklerwerk/backoffice/pkg/composables"
)

const insertChunkSize = 500

// CommissionRow is one already-parsed statement line handed to the import.
// Spreadsheet parsing happens upstream; this service validates, dedupes and
// persists.
type CommissionRow struct {
	VSNR             string
	Betrag           decimal.Decimal
	Art              string
	Auszahlungsdatum time.Time
	VermittlerName   string
}

// ContractRow is one already-parsed external contract record keyed by its
// Xempus id.
type ContractRow struct {
	XempusID            string
	VSNR                string
	VSNRAlt             string
	Versicherungsnehmer string
	BeraterName         string
	Status              string
}

// ConsultationRow is one consultation-tracking record from the Xempus feed.
type ConsultationRow struct {
	XempusID string
	VSNR     string
	IsActive bool
}

// ImportResult accounts for every input row: imported + skipped + len(Errors)
// equals the input size.
type ImportResult struct {
	BatchID  uuid.UUID
	Imported int
	Skipped  int
	Errors   []string
}

// ImportService turns parsed feed rows into persisted domain rows and kicks
// off matching over the fresh batch. Validation is per row and best effort: a
// bad row lands in Errors, the rest still import.
type ImportService struct {
	commissions   commission.Repository
	contracts     contract.Repository
	consultations xempusconsultation.Repository
	matching      *MatchingService
	audit         AuditSink
	log           *logrus.Logger
}

func NewImportService(
	commissions commission.Repository,
	contracts contract.Repository,
	consultations xempusconsultation.Repository,
	matching *MatchingService,
	audit AuditSink,
	log *logrus.Logger,
) *ImportService {
	return &ImportService{
		commissions:   commissions,
		contracts:     contracts,
		consultations: consultations,
		matching:      matching,
		audit:         audit,
		log:           log,
	}
}

// ImportCommissions validates and inserts statement rows under a fresh batch
// id, skipping rows whose content hash is already stored, then auto-matches
// the batch.
func (s *ImportService) ImportCommissions(ctx context.Context, rows []CommissionRow) (*ImportResult, error) {
	result := &ImportResult{BatchID: uuid.New()}

	valid := make([]*commission.Commission, 0, len(rows))
	for i, row := range rows {
		c, err := buildCommission(row, result.BatchID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", i+1, err))
			continue
		}
		valid = append(valid, c)
	}

	err := composables.InTx(ctx, func(txCtx context.Context) error {
		for start := 0; start < len(valid); start += insertChunkSize {
			end := start + insertChunkSize
			if end > len(valid) {
				end = len(valid)
			}
			inserted, err := s.commissions.InsertBatch(txCtx, valid[start:end], result.BatchID)
			if err != nil {
				return err
			}
			result.Imported += int(inserted)
			result.Skipped += (end - start) - int(inserted)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, "pm.import_commissions", "import_batch", 0,
		fmt.Sprintf("imported %d commissions (%d duplicates skipped, %d invalid)",
			result.Imported, result.Skipped, len(result.Errors)),
		map[string]any{"batch_id": result.BatchID.String(), "imported": result.Imported, "skipped": result.Skipped})

	if result.Imported > 0 {
		if _, err := s.matching.AutoMatch(ctx, commission.ScopeBatch{BatchID: result.BatchID}); err != nil {
			return result, err
		}
	}
	return result, nil
}

// ImportContracts upserts external contract rows on their Xempus id so that
// re-running a feed is idempotent.
func (s *ImportService) ImportContracts(ctx context.Context, rows []ContractRow) (*ImportResult, error) {
	result := &ImportResult{BatchID: uuid.New()}

	err := composables.InTx(ctx, func(txCtx context.Context) error {
		for i, row := range rows {
			c, err := buildContract(row)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", i+1, err))
				continue
			}
			if _, err := s.contracts.UpsertByXempusID(txCtx, c); err != nil {
				return err
			}
			result.Imported++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, "pm.import_contracts", "import_batch", 0,
		fmt.Sprintf("upserted %d contracts (%d invalid)", result.Imported, len(result.Errors)),
		map[string]any{"imported": result.Imported})
	return result, nil
}

// ImportConsultations upserts consultation-tracking rows on their Xempus id.
func (s *ImportService) ImportConsultations(ctx context.Context, rows []ConsultationRow) (*ImportResult, error) {
	result := &ImportResult{BatchID: uuid.New()}

	err := composables.InTx(ctx, func(txCtx context.Context) error {
		for i, row := range rows {
			if row.XempusID == "" {
				result.Errors = append(result.Errors, fmt.Sprintf("row %d: missing xempus id", i+1))
				continue
			}
			_, err := s.consultations.UpsertByXempusID(txCtx, &xempusconsultation.Consultation{
				XempusID:       row.XempusID,
				VSNRNormalized: normalize.PolicyNumber(row.VSNR),
				IsActive:       row.IsActive,
			})
			if err != nil {
				return err
			}
			result.Imported++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, "pm.import_consultations", "import_batch", 0,
		fmt.Sprintf("upserted %d consultations (%d invalid)", result.Imported, len(result.Errors)),
		map[string]any{"imported": result.Imported})
	return result, nil
}

func buildCommission(row CommissionRow, batchID uuid.UUID) (*commission.Commission, error) {
	if strings.TrimSpace(row.VSNR) == "" {
		return nil, fmt.Errorf("missing policy number")
	}
	if row.Auszahlungsdatum.IsZero() {
		return nil, fmt.Errorf("missing payout date")
	}

	art := commission.Art(row.Art)
	switch art {
	case commission.ArtAP, commission.ArtRueckbelastung, commission.ArtNullmeldung:
	case "":
		art = commission.ArtAP
		if row.Betrag.IsNegative() {
			art = commission.ArtRueckbelastung
		}
	default:
		return nil, fmt.Errorf("unknown commission kind %q", row.Art)
	}
	if art == commission.ArtNullmeldung && !row.Betrag.IsZero() {
		return nil, fmt.Errorf("nullmeldung with non-zero amount %s", row.Betrag)
	}

	batch := batchID
	return &commission.Commission{
		VSNR:                     strings.TrimSpace(row.VSNR),
		VSNRNormalized:           normalize.PolicyNumber(row.VSNR),
		Betrag:                   row.Betrag,
		Art:                      art,
		Auszahlungsdatum:         row.Auszahlungsdatum,
		VermittlerName:           strings.TrimSpace(row.VermittlerName),
		VermittlerNameNormalized: normalize.Name(row.VermittlerName),
		MatchStatus:              commission.MatchUnmatched,
		RowHash:                  rowHash(row),
		ImportBatchID:            &batch,
	}, nil
}

// rowHash fingerprints the row content; identical statement lines across
// re-imports collapse onto it.
func rowHash(row CommissionRow) string {
	h := sha256.Sum256([]byte(strings.Join([]string{
		strings.TrimSpace(row.VSNR),
		row.Betrag.StringFixed(2),
		row.Art,
		row.Auszahlungsdatum.UTC().Format("2006-01-02"),
		strings.TrimSpace(row.VermittlerName),
	}, "|")))
	return hex.EncodeToString(h[:])
}

func buildContract(row ContractRow) (*contract.Contract, error) {
	if row.XempusID == "" {
		return nil, fmt.Errorf("missing xempus id")
	}
	if strings.TrimSpace(row.VSNR) == "" {
		return nil, fmt.Errorf("missing policy number")
	}

	status := contract.Status(row.Status)
	switch status {
	case contract.StatusOffen, contract.StatusBeantragt, contract.StatusAbgeschlossen, contract.StatusProvisionErhalten:
	case "":
		status = contract.StatusOffen
	default:
		return nil, fmt.Errorf("unknown contract status %q", row.Status)
	}

	c := &contract.Contract{
		VSNR:                strings.TrimSpace(row.VSNR),
		VSNRAlt:             strings.TrimSpace(row.VSNRAlt),
		Versicherungsnehmer: strings.TrimSpace(row.Versicherungsnehmer),
		BeraterName:         strings.TrimSpace(row.BeraterName),
		Status:              status,
		Source:              contract.SourceXempus,
		XempusID:            row.XempusID,
	}
	normalizeContract(c)
	return c, nil
}
