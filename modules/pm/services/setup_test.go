package services_test

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/maklerwerk/backoffice/modules/pm/domain/aggregates/commission"
	"github.com/maklerwerk/backoffice/modules/pm/domain/aggregates/contract"
	"github.com/maklerwerk/backoffice/modules/pm/domain/aggregates/employee"
	"github.com/maklerwerk/backoffice/modules/pm/domain/aggregates/settlement"
	"github.com/maklerwerk/backoffice/modules/pm/domain/entities/commissionmodel"
	"github.com/maklerwerk/backoffice/modules/pm/domain/entities/vermittlermapping"
	"github.com/maklerwerk/backoffice/modules/pm/domain/entities/xempusconsultation"
	"github.com/maklerwerk/backoffice/pkg/composables"
	"github.com/maklerwerk/backoffice/pkg/repo"
)

// stubTx satisfies the transaction interface for contexts handed to services
// backed by in-memory repositories. None of its methods are ever reached.
type stubTx struct{}

func (stubTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("unexpected SQL query in service test")
}

func (stubTx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("unexpected SQL query in service test")
}

func (stubTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("unexpected SQL exec in service test")
}

func (stubTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("unexpected SQL batch in service test")
}

var _ repo.Tx = stubTx{}

func testCtx() context.Context {
	return composables.WithTx(context.Background(), stubTx{})
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ptr[T any](v T) *T { return &v }

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

// --- in-memory repositories ---

type memEmployees struct {
	rows   map[uint]*employee.Employee
	nextID uint
}

func newMemEmployees(rows ...*employee.Employee) *memEmployees {
	m := &memEmployees{rows: map[uint]*employee.Employee{}, nextID: 1}
	for _, e := range rows {
		if e.ID >= m.nextID {
			m.nextID = e.ID + 1
		}
		m.rows[e.ID] = e
	}
	return m
}

func (m *memEmployees) GetByID(_ context.Context, id uint) (*employee.Employee, error) {
	e, ok := m.rows[id]
	if !ok {
		return nil, employee.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memEmployees) GetByIDs(_ context.Context, ids []uint) (map[uint]*employee.Employee, error) {
	out := map[uint]*employee.Employee{}
	for _, id := range ids {
		if e, ok := m.rows[id]; ok {
			out[id] = e
		}
	}
	return out, nil
}

func (m *memEmployees) GetAll(_ context.Context) ([]*employee.Employee, error) {
	out := make([]*employee.Employee, 0, len(m.rows))
	for _, e := range m.rows {
		out = append(out, e)
	}
	return out, nil
}

func (m *memEmployees) ListActive(ctx context.Context) ([]*employee.Employee, error) {
	all, _ := m.GetAll(ctx)
	out := all[:0]
	for _, e := range all {
		if e.IsActive {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memEmployees) ListSubordinates(_ context.Context, teamleiterID uint) ([]*employee.Employee, error) {
	var out []*employee.Employee
	for _, e := range m.rows {
		if e.TeamleiterID != nil && *e.TeamleiterID == teamleiterID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memEmployees) ListByModel(_ context.Context, modelID uint) ([]*employee.Employee, error) {
	var out []*employee.Employee
	for _, e := range m.rows {
		if e.CommissionModelID != nil && *e.CommissionModelID == modelID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memEmployees) Create(_ context.Context, e *employee.Employee) (*employee.Employee, error) {
	e.ID = m.nextID
	m.nextID++
	m.rows[e.ID] = e
	return e, nil
}

func (m *memEmployees) Update(_ context.Context, e *employee.Employee) error {
	if _, ok := m.rows[e.ID]; !ok {
		return employee.ErrNotFound
	}
	cp := *e
	m.rows[e.ID] = &cp
	return nil
}

type memModels struct {
	rows   map[uint]*commissionmodel.CommissionModel
	nextID uint
}

func newMemModels(rows ...*commissionmodel.CommissionModel) *memModels {
	m := &memModels{rows: map[uint]*commissionmodel.CommissionModel{}, nextID: 1}
	for _, cm := range rows {
		if cm.ID >= m.nextID {
			m.nextID = cm.ID + 1
		}
		m.rows[cm.ID] = cm
	}
	return m
}

func (m *memModels) GetByID(_ context.Context, id uint) (*commissionmodel.CommissionModel, error) {
	cm, ok := m.rows[id]
	if !ok {
		return nil, commissionmodel.ErrNotFound
	}
	cp := *cm
	return &cp, nil
}

func (m *memModels) GetByIDs(_ context.Context, ids []uint) (map[uint]*commissionmodel.CommissionModel, error) {
	out := map[uint]*commissionmodel.CommissionModel{}
	for _, id := range ids {
		if cm, ok := m.rows[id]; ok {
			out[id] = cm
		}
	}
	return out, nil
}

func (m *memModels) GetAll(_ context.Context) ([]*commissionmodel.CommissionModel, error) {
	out := make([]*commissionmodel.CommissionModel, 0, len(m.rows))
	for _, cm := range m.rows {
		out = append(out, cm)
	}
	return out, nil
}

func (m *memModels) Create(_ context.Context, cm *commissionmodel.CommissionModel) (*commissionmodel.CommissionModel, error) {
	cm.ID = m.nextID
	m.nextID++
	m.rows[cm.ID] = cm
	return cm, nil
}

func (m *memModels) Update(_ context.Context, cm *commissionmodel.CommissionModel) error {
	if _, ok := m.rows[cm.ID]; !ok {
		return commissionmodel.ErrNotFound
	}
	cp := *cm
	m.rows[cm.ID] = &cp
	return nil
}

type memContracts struct {
	rows   map[uint]*contract.Contract
	nextID uint
}

func newMemContracts(rows ...*contract.Contract) *memContracts {
	m := &memContracts{rows: map[uint]*contract.Contract{}, nextID: 1}
	for _, c := range rows {
		if c.ID >= m.nextID {
			m.nextID = c.ID + 1
		}
		m.rows[c.ID] = c
	}
	return m
}

func (m *memContracts) GetByID(_ context.Context, id uint) (*contract.Contract, error) {
	c, ok := m.rows[id]
	if !ok {
		return nil, contract.ErrNotFound
	}
	return c, nil
}

func (m *memContracts) GetByIDs(_ context.Context, ids []uint) (map[uint]*contract.Contract, error) {
	out := map[uint]*contract.Contract{}
	for _, id := range ids {
		if c, ok := m.rows[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

func (m *memContracts) mapByKey(keys []string, keyOf func(*contract.Contract) string) map[string]*contract.Contract {
	wanted := map[string]struct{}{}
	for _, k := range keys {
		wanted[k] = struct{}{}
	}
	out := map[string]*contract.Contract{}
	for _, c := range m.rows {
		key := keyOf(c)
		if key == "" {
			continue
		}
		if _, ok := wanted[key]; !ok {
			continue
		}
		// most recently created wins, matching the SQL tie-break
		if prev, ok := out[key]; ok {
			if c.CreatedAt.Before(prev.CreatedAt) || (c.CreatedAt.Equal(prev.CreatedAt) && c.ID < prev.ID) {
				continue
			}
		}
		out[key] = c
	}
	return out
}

func (m *memContracts) MapByNormalizedVSNR(_ context.Context, keys []string) (map[string]*contract.Contract, error) {
	return m.mapByKey(keys, func(c *contract.Contract) string { return c.VSNRNormalized }), nil
}

func (m *memContracts) MapByNormalizedAltVSNR(_ context.Context, keys []string) (map[string]*contract.Contract, error) {
	return m.mapByKey(keys, func(c *contract.Contract) string { return c.VSNRAltNormalized }), nil
}

func (m *memContracts) Create(_ context.Context, c *contract.Contract) (*contract.Contract, error) {
	c.ID = m.nextID
	m.nextID++
	m.rows[c.ID] = c
	return c, nil
}

func (m *memContracts) Update(_ context.Context, c *contract.Contract) error {
	if _, ok := m.rows[c.ID]; !ok {
		return contract.ErrNotFound
	}
	m.rows[c.ID] = c
	return nil
}

func (m *memContracts) UpdateBerater(_ context.Context, contractID uint, beraterID uint) error {
	c, ok := m.rows[contractID]
	if !ok {
		return contract.ErrNotFound
	}
	c.BeraterID = &beraterID
	return nil
}

func (m *memContracts) AdvanceToProvisionErhalten(_ context.Context, ids []uint) (int64, error) {
	var affected int64
	for _, id := range ids {
		c, ok := m.rows[id]
		if !ok {
			continue
		}
		if c.StatusAdvancesOnCommission() {
			c.Status = contract.StatusProvisionErhalten
			affected++
		}
	}
	return affected, nil
}

func (m *memContracts) UpsertByXempusID(ctx context.Context, c *contract.Contract) (*contract.Contract, error) {
	for _, existing := range m.rows {
		if existing.XempusID != "" && existing.XempusID == c.XempusID {
			c.ID = existing.ID
			c.BeraterID = existing.BeraterID
			m.rows[c.ID] = c
			return c, nil
		}
	}
	return m.Create(ctx, c)
}

type memCommissions struct {
	rows   map[uint]*commission.Commission
	nextID uint
}

func newMemCommissions(rows ...*commission.Commission) *memCommissions {
	m := &memCommissions{rows: map[uint]*commission.Commission{}, nextID: 1}
	for _, c := range rows {
		if c.ID >= m.nextID {
			m.nextID = c.ID + 1
		}
		m.rows[c.ID] = c
	}
	return m
}

func (m *memCommissions) GetByID(_ context.Context, id uint) (*commission.Commission, error) {
	c, ok := m.rows[id]
	if !ok {
		return nil, commission.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memCommissions) inScope(c *commission.Commission, scope commission.Scope) bool {
	switch s := scope.(type) {
	case commission.ScopeAll:
		return true
	case commission.ScopeBatch:
		return c.ImportBatchID != nil && *c.ImportBatchID == s.BatchID
	case commission.ScopeEmployees:
		if c.BeraterID == nil {
			return false
		}
		if s.EffectiveFrom != nil && c.Auszahlungsdatum.Before(*s.EffectiveFrom) {
			return false
		}
		for _, id := range s.EmployeeIDs {
			if *c.BeraterID == id {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func (m *memCommissions) ListUnmatched(_ context.Context, scope commission.Scope) ([]*commission.Commission, error) {
	var out []*commission.Commission
	for _, c := range m.rows {
		if c.MatchStatus == commission.MatchUnmatched && m.inScope(c, scope) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memCommissions) ListMatched(_ context.Context, scope commission.Scope) ([]*commission.Commission, error) {
	var out []*commission.Commission
	for _, c := range m.rows {
		if c.IsMatched() && m.inScope(c, scope) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memCommissions) ListUnmatchedByVSNR(_ context.Context, vsnrNormalized string) ([]*commission.Commission, error) {
	var out []*commission.Commission
	for _, c := range m.rows {
		if c.MatchStatus == commission.MatchUnmatched && c.VSNRNormalized == vsnrNormalized {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memCommissions) ListMatchedForMonth(_ context.Context, month time.Time, beraterID *uint) ([]*commission.Commission, error) {
	from := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	var out []*commission.Commission
	for _, c := range m.rows {
		if !c.IsMatched() {
			continue
		}
		if c.Auszahlungsdatum.Before(from) || !c.Auszahlungsdatum.Before(to) {
			continue
		}
		if beraterID != nil && (c.BeraterID == nil || *c.BeraterID != *beraterID) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (m *memCommissions) ListByContract(_ context.Context, contractID uint) ([]*commission.Commission, error) {
	var out []*commission.Commission
	for _, c := range m.rows {
		if c.ContractID != nil && *c.ContractID == contractID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memCommissions) UpdateMatch(_ context.Context, c *commission.Commission) error {
	existing, ok := m.rows[c.ID]
	if !ok {
		return commission.ErrNotFound
	}
	if existing.Version != c.Version {
		return commission.ErrVersionConflict
	}
	c.Version++
	cp := *c
	m.rows[c.ID] = &cp
	return nil
}

func (m *memCommissions) BulkUpdateMatches(_ context.Context, rows []*commission.Commission) (int64, error) {
	for _, c := range rows {
		if existing, ok := m.rows[c.ID]; ok {
			c.Version = existing.Version + 1
			cp := *c
			m.rows[c.ID] = &cp
		}
	}
	return int64(len(rows)), nil
}

func (m *memCommissions) SetBeraterForContract(_ context.Context, contractID uint, beraterID uint) (int64, error) {
	var affected int64
	for _, c := range m.rows {
		if c.ContractID != nil && *c.ContractID == contractID {
			id := beraterID
			c.BeraterID = &id
			c.Version++
			affected++
		}
	}
	return affected, nil
}

func (m *memCommissions) InsertBatch(_ context.Context, rows []*commission.Commission, batchID uuid.UUID) (int64, error) {
	hashes := map[string]struct{}{}
	for _, c := range m.rows {
		hashes[c.RowHash] = struct{}{}
	}
	var inserted int64
	for _, c := range rows {
		if _, dup := hashes[c.RowHash]; dup {
			continue
		}
		hashes[c.RowHash] = struct{}{}
		batch := batchID
		c.ID = m.nextID
		c.ImportBatchID = &batch
		m.nextID++
		cp := *c
		m.rows[c.ID] = &cp
		inserted++
	}
	return inserted, nil
}

func (m *memCommissions) ListVermittlerNames(_ context.Context) (map[string]string, error) {
	out := map[string]string{}
	for _, c := range m.rows {
		if c.VermittlerName != "" {
			out[c.VermittlerName] = c.VermittlerNameNormalized
		}
	}
	return out, nil
}

// settlementRow builds a matched commission with pre-calculated splits.
type settlementRow struct {
	id            uint
	berater       uint
	betrag        string
	beraterAnteil string
	tlAnteil      string
	agAnteil      string
	payout        string
}

func (r settlementRow) build() *commission.Commission {
	art := commission.ArtAP
	if d(r.betrag).IsNegative() {
		art = commission.ArtRueckbelastung
	}
	return &commission.Commission{
		ID: r.id, VSNRNormalized: "1234",
		Betrag: d(r.betrag), Art: art,
		Auszahlungsdatum: day(r.payout),
		ContractID:       ptr(uint(1)),
		BeraterID:        ptr(r.berater),
		MatchStatus:      commission.MatchAuto,
		BeraterAnteil:    d(r.beraterAnteil),
		TLAnteil:         d(r.tlAnteil),
		AGAnteil:         d(r.agAnteil),
	}
}

// staleReadCommissions returns rows one version behind the store, simulating
// a concurrent writer racing past between read and write.
type staleReadCommissions struct {
	*memCommissions
}

func (s staleReadCommissions) GetByID(ctx context.Context, id uint) (*commission.Commission, error) {
	c, err := s.memCommissions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Version--
	return c, nil
}

type memSettlements struct {
	rows   map[uint]*settlement.Settlement
	nextID uint
}

func newMemSettlements(rows ...*settlement.Settlement) *memSettlements {
	m := &memSettlements{rows: map[uint]*settlement.Settlement{}, nextID: 1}
	for _, s := range rows {
		if s.ID >= m.nextID {
			m.nextID = s.ID + 1
		}
		m.rows[s.ID] = s
	}
	return m
}

func (m *memSettlements) GetByID(_ context.Context, id uint) (*settlement.Settlement, error) {
	s, ok := m.rows[id]
	if !ok {
		return nil, settlement.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSettlements) Insert(_ context.Context, s *settlement.Settlement) (*settlement.Settlement, error) {
	maxRev := 0
	for _, existing := range m.rows {
		if existing.Abrechnungsmonat.Equal(s.Abrechnungsmonat) && existing.BeraterID == s.BeraterID && existing.Revision > maxRev {
			maxRev = existing.Revision
		}
	}
	s.ID = m.nextID
	m.nextID++
	s.Revision = maxRev + 1
	cp := *s
	m.rows[s.ID] = &cp
	return s, nil
}

func (m *memSettlements) Current(_ context.Context, month time.Time) ([]*settlement.Settlement, error) {
	latest := map[uint]*settlement.Settlement{}
	for _, s := range m.rows {
		if !s.Abrechnungsmonat.Equal(month) {
			continue
		}
		if prev, ok := latest[s.BeraterID]; !ok || s.Revision > prev.Revision {
			latest[s.BeraterID] = s
		}
	}
	out := make([]*settlement.Settlement, 0, len(latest))
	for _, s := range latest {
		out = append(out, s)
	}
	return out, nil
}

func (m *memSettlements) CurrentFor(_ context.Context, month time.Time, beraterID uint) (*settlement.Settlement, error) {
	var current *settlement.Settlement
	for _, s := range m.rows {
		if !s.Abrechnungsmonat.Equal(month) || s.BeraterID != beraterID {
			continue
		}
		if current == nil || s.Revision > current.Revision {
			current = s
		}
	}
	if current == nil {
		return nil, settlement.ErrNotFound
	}
	cp := *current
	return &cp, nil
}

func (m *memSettlements) History(_ context.Context, month time.Time, beraterID uint) ([]*settlement.Settlement, error) {
	var out []*settlement.Settlement
	for _, s := range m.rows {
		if s.Abrechnungsmonat.Equal(month) && s.BeraterID == beraterID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSettlements) Transition(_ context.Context, id uint, from, to settlement.Status, lock bool, releasedBy *uint, releasedAt *time.Time) error {
	s, ok := m.rows[id]
	if !ok || s.Status != from {
		return settlement.ErrNotFound
	}
	s.Status = to
	s.IsLocked = lock
	if releasedBy != nil {
		s.ReleasedBy = releasedBy
	}
	if releasedAt != nil {
		s.ReleasedAt = releasedAt
	}
	return nil
}

type memMappings struct {
	rows   map[string]*vermittlermapping.Mapping
	nextID uint
}

func newMemMappings(rows ...*vermittlermapping.Mapping) *memMappings {
	m := &memMappings{rows: map[string]*vermittlermapping.Mapping{}, nextID: 1}
	for _, mp := range rows {
		if mp.ID >= m.nextID {
			m.nextID = mp.ID + 1
		}
		m.rows[mp.VermittlerNameNormalized] = mp
	}
	return m
}

func (m *memMappings) MapByNames(_ context.Context, normalizedNames []string) (map[string]uint, error) {
	out := map[string]uint{}
	for _, name := range normalizedNames {
		if mp, ok := m.rows[name]; ok {
			out[name] = mp.BeraterID
		}
	}
	return out, nil
}

func (m *memMappings) GetAll(_ context.Context) ([]*vermittlermapping.Mapping, error) {
	out := make([]*vermittlermapping.Mapping, 0, len(m.rows))
	for _, mp := range m.rows {
		out = append(out, mp)
	}
	return out, nil
}

func (m *memMappings) Upsert(_ context.Context, mp *vermittlermapping.Mapping) (*vermittlermapping.Mapping, error) {
	if existing, ok := m.rows[mp.VermittlerNameNormalized]; ok {
		mp.ID = existing.ID
	} else {
		mp.ID = m.nextID
		m.nextID++
	}
	m.rows[mp.VermittlerNameNormalized] = mp
	return mp, nil
}

func (m *memMappings) Delete(_ context.Context, id uint) error {
	for key, mp := range m.rows {
		if mp.ID == id {
			delete(m.rows, key)
			return nil
		}
	}
	return vermittlermapping.ErrNotFound
}

func (m *memMappings) ListUnmapped(_ context.Context) ([]*vermittlermapping.UnmappedName, error) {
	return nil, nil
}

type memConsultations struct {
	rows   map[string]*xempusconsultation.Consultation
	nextID uint
}

func newMemConsultations(rows ...*xempusconsultation.Consultation) *memConsultations {
	m := &memConsultations{rows: map[string]*xempusconsultation.Consultation{}, nextID: 1}
	for _, c := range rows {
		if c.ID >= m.nextID {
			m.nextID = c.ID + 1
		}
		m.rows[c.XempusID] = c
	}
	return m
}

func (m *memConsultations) MapActiveByVSNR(_ context.Context, keys []string) (map[string]uint, error) {
	wanted := map[string]struct{}{}
	for _, k := range keys {
		wanted[k] = struct{}{}
	}
	out := map[string]uint{}
	for _, c := range m.rows {
		if !c.IsActive {
			continue
		}
		if _, ok := wanted[c.VSNRNormalized]; ok {
			out[c.VSNRNormalized] = c.ID
		}
	}
	return out, nil
}

func (m *memConsultations) UpsertByXempusID(_ context.Context, c *xempusconsultation.Consultation) (*xempusconsultation.Consultation, error) {
	if existing, ok := m.rows[c.XempusID]; ok {
		c.ID = existing.ID
	} else {
		c.ID = m.nextID
		m.nextID++
	}
	m.rows[c.XempusID] = c
	return c, nil
}
