package services

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/maklerwerk/backoffice/modules/pm/domain/aggregates/employee"
)

var exportHeaders = []string{
	"Berater", "Monat", "Revision", "Status",
	"Bruttoprovision", "TL-Abzug", "Nettoprovision",
	"Rueckbelastungen", "Auszahlung", "Anzahl Provisionen",
}

// SettlementExportService renders the current settlement revisions of a month
// into an xlsx workbook for payroll handover.
type SettlementExportService struct {
	settlements *SettlementService
	employees   employee.Repository
	exportDir   string
	audit       AuditSink
}

func NewSettlementExportService(
	settlements *SettlementService,
	employees employee.Repository,
	exportDir string,
	audit AuditSink,
) *SettlementExportService {
	return &SettlementExportService{
		settlements: settlements,
		employees:   employees,
		exportDir:   exportDir,
		audit:       audit,
	}
}

// Export writes the workbook to the configured export directory and returns
// its path.
func (s *SettlementExportService) Export(ctx context.Context, month time.Time) (string, error) {
	f, count, err := s.Workbook(ctx, month)
	if err != nil {
		return "", err
	}
	defer f.Close()

	path := filepath.Join(s.exportDir, fmt.Sprintf("abrechnungen_%s.xlsx", month.Format("2006-01")))
	if err := f.SaveAs(path); err != nil {
		return "", err
	}

	s.audit.Record(ctx, "pm.settlement_export", "settlement_month", 0,
		fmt.Sprintf("exported %d settlements for %s", count, month.Format("2006-01")),
		map[string]any{"month": month.Format("2006-01"), "path": path, "count": count})
	return path, nil
}

// Workbook builds the workbook in memory: a header row plus one row per
// advisor's current revision. Amounts land as numeric cells.
func (s *SettlementExportService) Workbook(ctx context.Context, month time.Time) (*excelize.File, int, error) {
	rows, err := s.settlements.Current(ctx, month)
	if err != nil {
		return nil, 0, err
	}

	ids := make([]uint, 0, len(rows))
	for _, st := range rows {
		ids = append(ids, st.BeraterID)
	}
	names, err := s.employees.GetByIDs(ctx, ids)
	if err != nil {
		return nil, 0, err
	}

	f := excelize.NewFile()
	sheet := "Abrechnungen"
	f.SetSheetName(f.GetSheetName(0), sheet)

	boldStyle, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	for i, h := range exportHeaders {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := fmt.Sprintf("%s1", col)
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, boldStyle)
	}

	for i, st := range rows {
		row := i + 2
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), beraterName(names, st.BeraterID))
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), st.Abrechnungsmonat.Format("2006-01"))
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), st.Revision)
		f.SetCellValue(sheet, fmt.Sprintf("D%d", row), string(st.Status))
		f.SetCellValue(sheet, fmt.Sprintf("E%d", row), st.BruttoProvision.InexactFloat64())
		f.SetCellValue(sheet, fmt.Sprintf("F%d", row), st.TLAbzug.InexactFloat64())
		f.SetCellValue(sheet, fmt.Sprintf("G%d", row), st.NettoProvision.InexactFloat64())
		f.SetCellValue(sheet, fmt.Sprintf("H%d", row), st.Rueckbelastungen.InexactFloat64())
		f.SetCellValue(sheet, fmt.Sprintf("I%d", row), st.Auszahlung.InexactFloat64())
		f.SetCellValue(sheet, fmt.Sprintf("J%d", row), st.AnzahlProvisionen)
	}
	return f, len(rows), nil
}

func beraterName(names map[uint]*employee.Employee, id uint) string {
	if e, ok := names[id]; ok {
		return e.Name
	}
	return fmt.Sprintf("Berater %d", id)
}
