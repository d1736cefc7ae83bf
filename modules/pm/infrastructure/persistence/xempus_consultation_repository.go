package persistence

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/maklerwerk/backoffice/modules/pm/domain/entities/xempusconsultation"
	"github.com/maklerwerk/backoffice/pkg/composables"
)

const (
	// mapActiveConsultationsSQL keeps one active consultation per policy
	// number, preferring the latest import.
	mapActiveConsultationsSQL = `
		SELECT DISTINCT ON (vsnr_normalized) id, vsnr_normalized
		FROM pm_xempus_consultations
		WHERE is_active AND vsnr_normalized = ANY($1)
		ORDER BY vsnr_normalized, id DESC`

	upsertConsultationSQL = `
		INSERT INTO pm_xempus_consultations (xempus_id, vsnr_normalized, is_active)
		VALUES ($1, $2, $3)
		ON CONFLICT (xempus_id) DO UPDATE SET
			vsnr_normalized = EXCLUDED.vsnr_normalized,
			is_active = EXCLUDED.is_active
		RETURNING id, created_at`
)

type XempusConsultationRepository struct{}

func NewXempusConsultationRepository() xempusconsultation.Repository {
	return &XempusConsultationRepository{}
}

func (r *XempusConsultationRepository) MapActiveByVSNR(ctx context.Context, keys []string) (map[string]uint, error) {
	if len(keys) == 0 {
		return map[string]uint{}, nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, mapActiveConsultationsSQL, keys)
	if err != nil {
		return nil, errors.Wrap(err, "querying consultations")
	}
	defer rows.Close()

	out := make(map[string]uint)
	for rows.Next() {
		var id uint
		var vsnr string
		if err := rows.Scan(&id, &vsnr); err != nil {
			return nil, err
		}
		out[vsnr] = id
	}
	return out, rows.Err()
}

func (r *XempusConsultationRepository) UpsertByXempusID(ctx context.Context, c *xempusconsultation.Consultation) (*xempusconsultation.Consultation, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	if err := tx.QueryRow(ctx, upsertConsultationSQL,
		c.XempusID, c.VSNRNormalized, c.IsActive,
	).Scan(&c.ID, &c.CreatedAt); err != nil {
		return nil, errors.Wrap(err, "upserting consultation")
	}
	return c, nil
}
