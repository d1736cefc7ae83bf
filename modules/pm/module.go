package pm

import (
	"github.com/sirupsen/logrus"

	"github.com/maklerwerk/backoffice/modules/pm/infrastructure/persistence"
	"github.com/maklerwerk/backoffice/modules/pm/services"
	"github.com/maklerwerk/backoffice/pkg/eventbus"
)

// Options carries the cross-cutting dependencies the module is wired with.
type Options struct {
	Logger    *logrus.Logger
	Bus       eventbus.EventBus
	Audit     services.AuditSink
	ExportDir string
}

// Module is the commission-matching engine: repositories, services and event
// subscriptions, fully wired.
type Module struct {
	Employees        *services.EmployeeService
	CommissionModels *services.CommissionModelService
	Contracts        *services.ContractService
	Vermittler       *services.VermittlerService
	Matching         *services.MatchingService
	Recalc           *services.RecalcService
	Settlements      *services.SettlementService
	SettlementExport *services.SettlementExportService
	Imports          *services.ImportService
	Consistency      *services.ConsistencyService
}

func NewModule(opts Options) *Module {
	audit := opts.Audit
	if audit == nil {
		audit = services.NopAuditSink{}
	}

	employeeRepo := persistence.NewEmployeeRepository()
	modelRepo := persistence.NewCommissionModelRepository()
	contractRepo := persistence.NewContractRepository()
	commissionRepo := persistence.NewCommissionRepository()
	settlementRepo := persistence.NewSettlementRepository()
	mappingRepo := persistence.NewVermittlerMappingRepository()
	consultationRepo := persistence.NewXempusConsultationRepository()

	settlements := services.NewSettlementService(settlementRepo, commissionRepo, employeeRepo, audit, opts.Logger)
	recalc := services.NewRecalcService(commissionRepo, employeeRepo, modelRepo, settlements, audit, opts.Logger)
	recalc.Register(opts.Bus)

	matching := services.NewMatchingService(
		commissionRepo, contractRepo, consultationRepo, mappingRepo,
		employeeRepo, modelRepo, settlements, audit, opts.Logger,
	)

	return &Module{
		Employees:        services.NewEmployeeService(employeeRepo, opts.Bus, audit),
		CommissionModels: services.NewCommissionModelService(modelRepo, opts.Bus, audit),
		Contracts:        services.NewContractService(contractRepo, commissionRepo, recalc, settlements, audit),
		Vermittler:       services.NewVermittlerService(mappingRepo, audit),
		Matching:         matching,
		Recalc:           recalc,
		Settlements:      settlements,
		SettlementExport: services.NewSettlementExportService(settlements, employeeRepo, opts.ExportDir, audit),
		Imports:          services.NewImportService(commissionRepo, contractRepo, consultationRepo, matching, audit, opts.Logger),
		Consistency:      services.NewConsistencyService(persistence.NewConsistencyStore()),
	}
}
