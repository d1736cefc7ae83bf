package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	CheckStatusPassed = "passed"
	CheckStatusFailed = "failed"

	// exampleLimit caps how many violating rows a check reports.
	exampleLimit = 20
)

// splitTolerance is the accepted rounding drift of the additive invariant,
// one currency cent.
var splitTolerance = decimal.NewFromFloat(0.01)

// CheckResult is the structured report of one invariant check. Checks never
// fail with an error for a mere violation; the caller decides whether a
// failed check blocks a release.
type CheckResult struct {
	Check    string   `json:"check"`
	Status   string   `json:"status"`
	Details  string   `json:"details"`
	Examples []string `json:"examples,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

func (r CheckResult) Passed() bool { return r.Status == CheckStatusPassed }

// ConsistencyStore is the read-only query surface the gate runs on.
type ConsistencyStore interface {
	SplitSumViolations(ctx context.Context, tolerance decimal.Decimal, limit int) (ids []uint, total int64, err error)
	MatchedMissingContract(ctx context.Context, limit int) (ids []uint, total int64, err error)
	MatchedMissingBerater(ctx context.Context, limit int) (ids []uint, total int64, err error)
	UnknownMatchStatuses(ctx context.Context, limit int) (ids []uint, total int64, err error)
	OrphanContractRefs(ctx context.Context, limit int) (ids []uint, total int64, err error)
	OrphanBeraterRefs(ctx context.Context, limit int) (ids []uint, total int64, err error)
	DuplicateRowHashes(ctx context.Context, limit int) (hashes []string, total int64, err error)
	NegativeAmounts(ctx context.Context, limit int) (ids []uint, total int64, err error)
}

// ConsistencyService exposes the invariant checks release tooling runs before
// a deployment goes live. All checks are read-only.
type ConsistencyService struct {
	store ConsistencyStore
}

func NewConsistencyService(store ConsistencyStore) *ConsistencyService {
	return &ConsistencyService{store: store}
}

// CheckSplitSums verifies berater_anteil + tl_anteil + ag_anteil == betrag
// within one cent for every matched commission.
func (s *ConsistencyService) CheckSplitSums(ctx context.Context) CheckResult {
	result := CheckResult{Check: "split_sums", Status: CheckStatusPassed, Details: "all matched commissions satisfy the split-sum invariant"}

	ids, total, err := s.store.SplitSumViolations(ctx, splitTolerance, exampleLimit)
	if err != nil {
		return failed(result.Check, "query failed: %v", err)
	}
	if total > 0 {
		result.Status = CheckStatusFailed
		result.Details = fmt.Sprintf("%d matched commissions violate the split-sum invariant (tolerance %s)", total, splitTolerance)
		result.Examples = idExamples(ids)
	}
	return result
}

// CheckMatchingConsistency verifies that matched implies fully resolved: no
// auto-matched row without a contract, no matched row without an advisor.
// Rows carrying a status outside the known enum stem from partially migrated
// data; they are surfaced as a warning without failing the check.
func (s *ConsistencyService) CheckMatchingConsistency(ctx context.Context) CheckResult {
	result := CheckResult{Check: "matching_consistency", Status: CheckStatusPassed, Details: "all matched commissions are fully resolved"}

	missingContract, totalContract, err := s.store.MatchedMissingContract(ctx, exampleLimit)
	if err != nil {
		return failed(result.Check, "query failed: %v", err)
	}
	missingBerater, totalBerater, err := s.store.MatchedMissingBerater(ctx, exampleLimit)
	if err != nil {
		return failed(result.Check, "query failed: %v", err)
	}

	if totalContract > 0 || totalBerater > 0 {
		result.Status = CheckStatusFailed
		result.Details = fmt.Sprintf(
			"%d auto-matched commissions without contract, %d matched commissions without berater",
			totalContract, totalBerater,
		)
		result.Examples = append(idExamples(missingContract), idExamples(missingBerater)...)
	}

	// unrecognized statuses pass the gate, warn only
	unknownIDs, unknownTotal, err := s.store.UnknownMatchStatuses(ctx, exampleLimit)
	if err != nil {
		return failed(result.Check, "query failed: %v", err)
	}
	if unknownTotal > 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"%d commissions carry an unknown match_status (permissive policy, examples: %v)",
			unknownTotal, idExamples(unknownIDs),
		))
	}
	return result
}

// CheckReferentialIntegrity verifies that no commission references a
// nonexistent contract or employee. Duplicate row hashes and negative
// amounts are reported as warnings only — chargebacks are legitimately
// negative.
func (s *ConsistencyService) CheckReferentialIntegrity(ctx context.Context) CheckResult {
	result := CheckResult{Check: "referential_integrity", Status: CheckStatusPassed, Details: "all commission references resolve"}

	orphanContracts, totalContracts, err := s.store.OrphanContractRefs(ctx, exampleLimit)
	if err != nil {
		return failed(result.Check, "query failed: %v", err)
	}
	orphanBerater, totalBerater, err := s.store.OrphanBeraterRefs(ctx, exampleLimit)
	if err != nil {
		return failed(result.Check, "query failed: %v", err)
	}
	if totalContracts > 0 || totalBerater > 0 {
		result.Status = CheckStatusFailed
		result.Details = fmt.Sprintf(
			"%d commissions reference missing contracts, %d reference missing employees",
			totalContracts, totalBerater,
		)
		result.Examples = append(idExamples(orphanContracts), idExamples(orphanBerater)...)
	}

	dupes, dupeTotal, err := s.store.DuplicateRowHashes(ctx, exampleLimit)
	if err != nil {
		return failed(result.Check, "query failed: %v", err)
	}
	if dupeTotal > 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%d duplicate row hashes (examples: %v)", dupeTotal, dupes))
	}

	_, negTotal, err := s.store.NegativeAmounts(ctx, exampleLimit)
	if err != nil {
		return failed(result.Check, "query failed: %v", err)
	}
	if negTotal > 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%d commissions with negative amounts (chargebacks)", negTotal))
	}
	return result
}

// RunAll executes every check and reports whether the data set is releasable.
func (s *ConsistencyService) RunAll(ctx context.Context) ([]CheckResult, bool) {
	results := []CheckResult{
		s.CheckSplitSums(ctx),
		s.CheckMatchingConsistency(ctx),
		s.CheckReferentialIntegrity(ctx),
	}
	ok := true
	for _, r := range results {
		if !r.Passed() {
			ok = false
		}
	}
	return results, ok
}

func failed(check, format string, args ...any) CheckResult {
	return CheckResult{Check: check, Status: CheckStatusFailed, Details: fmt.Sprintf(format, args...)}
}

func idExamples(ids []uint) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, fmt.Sprintf("%d", id))
	}
	return out
}
