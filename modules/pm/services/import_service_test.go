package services_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maklerwerk/backoffice/modules/pm/domain/aggregates/commission"
	"github.com/maklerwerk/backoffice/modules/pm/domain/aggregates/contract"
	"github.com/maklerwerk/backoffice/modules/pm/services"
)

func newImportFixture(commissions *memCommissions, contracts *memContracts, consultations *memConsultations) *services.ImportService {
	matching := newMatchingFixture(commissions, contracts, consultations, newMemMappings(), newMemEmployees())
	return services.NewImportService(commissions, contracts, consultations, matching, services.NopAuditSink{}, testLogger())
}

func TestImportCommissionsAccountsForEveryRow(t *testing.T) {
	commissions := newMemCommissions()
	svc := newImportFixture(commissions, newMemContracts(), newMemConsultations())

	rows := []services.CommissionRow{
		{VSNR: "VS-100", Betrag: d("1000"), Art: "ap", Auszahlungsdatum: day("2026-03-10"), VermittlerName: "Max Müller"},
		{VSNR: "VS-200", Betrag: d("-50"), Auszahlungsdatum: day("2026-03-11")},
		{VSNR: "", Betrag: d("10"), Auszahlungsdatum: day("2026-03-12")},               // missing policy number
		{VSNR: "VS-300", Betrag: d("10"), Art: "bonus", Auszahlungsdatum: day("2026-03-13")}, // unknown kind
	}

	result, err := svc.ImportCommissions(testCtx(), rows)
	require.NoError(t, err)

	require.Equal(t, 2, result.Imported)
	require.Equal(t, 0, result.Skipped)
	require.Len(t, result.Errors, 2)
	require.Equal(t, len(rows), result.Imported+result.Skipped+len(result.Errors))
	require.Len(t, commissions.rows, 2)

	for _, c := range commissions.rows {
		require.Equal(t, result.BatchID, *c.ImportBatchID)
		require.NotEmpty(t, c.RowHash)
		require.NotEmpty(t, c.VSNRNormalized)
	}
}

func TestImportCommissionsSkipsDuplicates(t *testing.T) {
	commissions := newMemCommissions()
	svc := newImportFixture(commissions, newMemContracts(), newMemConsultations())

	row := services.CommissionRow{VSNR: "VS-100", Betrag: d("1000"), Art: "ap", Auszahlungsdatum: day("2026-03-10")}

	first, err := svc.ImportCommissions(testCtx(), []services.CommissionRow{row})
	require.NoError(t, err)
	require.Equal(t, 1, first.Imported)

	second, err := svc.ImportCommissions(testCtx(), []services.CommissionRow{row})
	require.NoError(t, err)
	require.Equal(t, 0, second.Imported)
	require.Equal(t, 1, second.Skipped)
	require.Len(t, commissions.rows, 1)
}

func TestImportCommissionsDerivesKindFromSign(t *testing.T) {
	commissions := newMemCommissions()
	svc := newImportFixture(commissions, newMemContracts(), newMemConsultations())

	_, err := svc.ImportCommissions(testCtx(), []services.CommissionRow{
		{VSNR: "VS-1", Betrag: d("100"), Auszahlungsdatum: day("2026-03-10")},
		{VSNR: "VS-2", Betrag: d("-100"), Auszahlungsdatum: day("2026-03-10")},
	})
	require.NoError(t, err)

	kinds := map[commission.Art]int{}
	for _, c := range commissions.rows {
		kinds[c.Art]++
	}
	require.Equal(t, 1, kinds[commission.ArtAP])
	require.Equal(t, 1, kinds[commission.ArtRueckbelastung])
}

func TestImportCommissionsRejectsNullmeldungWithAmount(t *testing.T) {
	svc := newImportFixture(newMemCommissions(), newMemContracts(), newMemConsultations())

	result, err := svc.ImportCommissions(testCtx(), []services.CommissionRow{
		{VSNR: "VS-1", Betrag: d("5"), Art: "nullmeldung", Auszahlungsdatum: day("2026-03-10")},
	})
	require.NoError(t, err)
	require.Equal(t, 0, result.Imported)
	require.Len(t, result.Errors, 1)
}

func TestImportTriggersMatchingOverTheBatch(t *testing.T) {
	commissions := newMemCommissions()
	contracts := newMemContracts(&contract.Contract{
		ID: 1, VSNRNormalized: "1", BeraterID: ptr(uint(10)), Status: contract.StatusAbgeschlossen,
	})
	matching := newMatchingFixture(commissions, contracts, newMemConsultations(), newMemMappings(),
		newMemEmployees(consultant(10, "40")))
	svc := services.NewImportService(commissions, contracts, newMemConsultations(), matching, services.NopAuditSink{}, testLogger())

	_, err := svc.ImportCommissions(testCtx(), []services.CommissionRow{
		{VSNR: "VS-100", Betrag: d("1000"), Art: "ap", Auszahlungsdatum: day("2026-03-10")},
	})
	require.NoError(t, err)

	var matched int
	for _, c := range commissions.rows {
		if c.MatchStatus == commission.MatchAuto {
			matched++
		}
	}
	require.Equal(t, 1, matched)
}

func TestImportContractsUpsertsOnXempusID(t *testing.T) {
	contracts := newMemContracts()
	svc := newImportFixture(newMemCommissions(), contracts, newMemConsultations())

	rows := []services.ContractRow{
		{XempusID: "x-1", VSNR: "VS-100", Versicherungsnehmer: "Müller GmbH", Status: "abgeschlossen"},
	}
	first, err := svc.ImportContracts(testCtx(), rows)
	require.NoError(t, err)
	require.Equal(t, 1, first.Imported)

	rows[0].Status = "provision_erhalten"
	second, err := svc.ImportContracts(testCtx(), rows)
	require.NoError(t, err)
	require.Equal(t, 1, second.Imported)

	require.Len(t, contracts.rows, 1)
	for _, c := range contracts.rows {
		require.Equal(t, contract.StatusProvisionErhalten, c.Status)
		require.Equal(t, contract.SourceXempus, c.Source)
		require.Equal(t, "mueller gmbh", c.VersicherungsnehmerNormalized)
	}
}

func TestImportConsultations(t *testing.T) {
	consultations := newMemConsultations()
	svc := newImportFixture(newMemCommissions(), newMemContracts(), consultations)

	result, err := svc.ImportConsultations(testCtx(), []services.ConsultationRow{
		{XempusID: "x-1", VSNR: "VS-0100", IsActive: true},
		{XempusID: "", VSNR: "VS-200"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Imported)
	require.Len(t, result.Errors, 1)

	byVSNR, err := consultations.MapActiveByVSNR(testCtx(), []string{"1"})
	require.NoError(t, err)
	require.Len(t, byVSNR, 1)
}
