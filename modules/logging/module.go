package logging

import (
	"github.com/sirupsen/logrus"

	"github.com/maklerwerk/backoffice/modules/logging/infrastructure/persistence"
	"github.com/maklerwerk/backoffice/modules/logging/services"
)

// Module bundles the audit trail: the pgx-backed action log and the service
// other modules record through.
type Module struct {
	Logs *services.LogsService
}

func NewModule(log *logrus.Logger) *Module {
	return &Module{
		Logs: services.NewLogsService(persistence.NewActionLogRepository(), log),
	}
}
