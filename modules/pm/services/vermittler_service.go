package services

import (
	"context"
	"fmt"

	"github.com/maklerwerk/backoffice/modules/pm/domain/entities/vermittlermapping"
	"github.com/maklerwerk/backoffice/modules/pm/domain/normalize"
	"github.com/maklerwerk/backoffice/pkg/composables"
)

// VermittlerService curates the broker-name mapping table. Resolution is
// exact lookup on normalized names only; a new spelling stays unmapped until
// an admin adds it here.
type VermittlerService struct {
	mappings vermittlermapping.Repository
	audit    AuditSink
}

func NewVermittlerService(mappings vermittlermapping.Repository, audit AuditSink) *VermittlerService {
	return &VermittlerService{mappings: mappings, audit: audit}
}

func (s *VermittlerService) GetAll(ctx context.Context) ([]*vermittlermapping.Mapping, error) {
	return s.mappings.GetAll(ctx)
}

// ListUnmapped surfaces statement broker names no mapping covers yet,
// ordered by how many commission rows carry them.
func (s *VermittlerService) ListUnmapped(ctx context.Context) ([]*vermittlermapping.UnmappedName, error) {
	return s.mappings.ListUnmapped(ctx)
}

// Upsert stores the mapping under the normalized form of the given name. The
// next matching pass picks it up; historical unmatched rows are reprocessed
// only when the caller triggers a pass explicitly.
func (s *VermittlerService) Upsert(ctx context.Context, vermittlerName string, beraterID uint) (*vermittlermapping.Mapping, error) {
	normalized := normalize.Name(vermittlerName)
	if normalized == "" {
		return nil, ErrValidation.WithDetails("vermittler name %q normalizes to nothing", vermittlerName)
	}

	saved, err := composables.InTxResult(ctx, func(txCtx context.Context) (*vermittlermapping.Mapping, error) {
		return s.mappings.Upsert(txCtx, &vermittlermapping.Mapping{
			VermittlerNameNormalized: normalized,
			BeraterID:                beraterID,
		})
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, "pm.vermittler_mapping_upsert", "vermittler_mapping", saved.ID,
		fmt.Sprintf("mapped %q to berater %d", vermittlerName, beraterID),
		map[string]any{"normalized": normalized, "berater_id": beraterID})
	return saved, nil
}

func (s *VermittlerService) Delete(ctx context.Context, id uint) error {
	err := composables.InTx(ctx, func(txCtx context.Context) error {
		return s.mappings.Delete(txCtx, id)
	})
	if err != nil {
		return err
	}
	s.audit.Record(ctx, "pm.vermittler_mapping_delete", "vermittler_mapping", id,
		fmt.Sprintf("deleted mapping %d", id), nil)
	return nil
}
