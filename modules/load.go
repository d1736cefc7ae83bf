package modules

import (
	"github.com/sirupsen/logrus"

	"github.com/maklerwerk/backoffice/modules/logging"
	"github.com/maklerwerk/backoffice/modules/pm"
	"github.com/maklerwerk/backoffice/pkg/configuration"
	"github.com/maklerwerk/backoffice/pkg/eventbus"
)

// Registry holds every loaded module.
type Registry struct {
	Logging *logging.Module
	PM      *pm.Module
	Bus     eventbus.EventBus
}

// Load wires the modules together: the logging module provides the audit sink
// the engine records through, and the shared event bus carries the
// recalculation cascade.
func Load(conf *configuration.Configuration, log *logrus.Logger) *Registry {
	bus := eventbus.NewEventPublisher(log)
	loggingModule := logging.NewModule(log)

	pmModule := pm.NewModule(pm.Options{
		Logger:    log,
		Bus:       bus,
		Audit:     loggingModule.Logs,
		ExportDir: conf.SettlementExportDir,
	})

	return &Registry{
		Logging: loggingModule,
		PM:      pmModule,
		Bus:     bus,
	}
}
