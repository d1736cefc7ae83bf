package services

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/maklerwerk/backoffice/modules/logging/domain/entities/actionlog"
	"github.com/maklerwerk/backoffice/pkg/composables"
)

// LogsService writes and queries the audit trail. Record is best effort:
// audit failures are logged and never propagate into the operation that
// triggered them.
type LogsService struct {
	repo actionlog.Repository
	log  *logrus.Logger
}

func NewLogsService(repo actionlog.Repository, log *logrus.Logger) *LogsService {
	return &LogsService{repo: repo, log: log}
}

// Record persists one audit entry. The acting user is taken from the context
// when present; system-triggered operations log without one.
func (s *LogsService) Record(ctx context.Context, action, entityType string, entityID uint, description string, details map[string]any) {
	entry := &actionlog.ActionLog{
		Action:      action,
		EntityType:  entityType,
		EntityID:    entityID,
		Description: description,
	}
	if actor, err := composables.UseActor(ctx); err == nil {
		entry.UserID = &actor.ID
	}
	if details != nil {
		raw, err := json.Marshal(details)
		if err != nil {
			s.log.Errorf("logging: marshaling audit details for %s failed: %v", action, err)
		} else {
			entry.Details = raw
		}
	}

	err := composables.InTx(ctx, func(txCtx context.Context) error {
		return s.repo.Create(txCtx, entry)
	})
	if err != nil {
		s.log.Errorf("logging: recording audit entry %s failed: %v", action, err)
	}
}

func (s *LogsService) List(ctx context.Context, params *actionlog.FindParams) ([]*actionlog.ActionLog, error) {
	return composables.InTxResult(ctx, func(txCtx context.Context) ([]*actionlog.ActionLog, error) {
		return s.repo.List(txCtx, params)
	})
}

func (s *LogsService) Count(ctx context.Context, params *actionlog.FindParams) (int64, error) {
	return composables.InTxResult(ctx, func(txCtx context.Context) (int64, error) {
		return s.repo.Count(txCtx, params)
	})
}
