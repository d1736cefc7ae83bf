package persistence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/maklerwerk/backoffice/modules/logging/domain/entities/actionlog"
	"github.com/maklerwerk/backoffice/pkg/composables"
	"github.com/maklerwerk/backoffice/pkg/repo"
)

type ActionLogRepository struct{}

func NewActionLogRepository() actionlog.Repository {
	return &ActionLogRepository{}
}

func (r *ActionLogRepository) List(ctx context.Context, params *actionlog.FindParams) ([]*actionlog.ActionLog, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	where, args := buildActionLogFilters(params)
	query := `
		SELECT id, user_id, action, entity_type, entity_id, description, details, created_at
		FROM action_logs
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_at DESC
	`
	if params != nil {
		query += " " + repo.FormatLimitOffset(params.Limit, params.Offset)
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*actionlog.ActionLog
	for rows.Next() {
		var row actionlog.ActionLog
		if err := rows.Scan(
			&row.ID,
			&row.UserID,
			&row.Action,
			&row.EntityType,
			&row.EntityID,
			&row.Description,
			&row.Details,
			&row.CreatedAt,
		); err != nil {
			return nil, err
		}
		results = append(results, &row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *ActionLogRepository) Count(ctx context.Context, params *actionlog.FindParams) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	where, args := buildActionLogFilters(params)

	var count int64
	if err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM action_logs
		WHERE `+strings.Join(where, " AND "),
		args...,
	).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ActionLogRepository) Create(ctx context.Context, log *actionlog.ActionLog) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}

	return tx.QueryRow(
		ctx,
		`INSERT INTO action_logs (user_id, action, entity_type, entity_id, description, details, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		log.UserID,
		log.Action,
		log.EntityType,
		log.EntityID,
		log.Description,
		log.Details,
		log.CreatedAt,
	).Scan(&log.ID, &log.CreatedAt)
}

func buildActionLogFilters(params *actionlog.FindParams) ([]string, []interface{}) {
	where := []string{"1 = 1"}
	args := []interface{}{}
	argPos := 1
	if params == nil {
		return where, args
	}

	if params.UserID != nil {
		where = append(where, fmt.Sprintf("user_id = $%d", argPos))
		args = append(args, *params.UserID)
		argPos++
	}
	if action := strings.TrimSpace(params.Action); action != "" {
		where = append(where, fmt.Sprintf("action = $%d", argPos))
		args = append(args, action)
		argPos++
	}
	if entityType := strings.TrimSpace(params.EntityType); entityType != "" {
		where = append(where, fmt.Sprintf("entity_type = $%d", argPos))
		args = append(args, entityType)
		argPos++
	}
	if params.EntityID != nil {
		where = append(where, fmt.Sprintf("entity_id = $%d", argPos))
		args = append(args, *params.EntityID)
		argPos++
	}
	if params.From != nil && !params.From.IsZero() {
		where = append(where, fmt.Sprintf("created_at >= $%d", argPos))
		args = append(args, *params.From)
		argPos++
	}
	if params.To != nil && !params.To.IsZero() {
		where = append(where, fmt.Sprintf("created_at <= $%d", argPos))
		args = append(args, *params.To)
	}
	return where, args
}
