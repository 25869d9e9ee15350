package service

import (
	"context"

	"github.com/ayo6706/payout-ledger/internal/observability"
	"go.uber.org/zap"
)

// ProjectImbalance describes one project whose books do not add up.
type ProjectImbalance struct {
	ProjectID string `json:"projectId"`
	Balance   int64  `json:"balance"`
	Funded    int64  `json:"funded"`
	Spent     int64  `json:"spent"`
	// InFlight is the part of Spent charged for payouts still settling.
	InFlight int64 `json:"inFlight"`
	// Drift is balance - (funded - spent); non-zero is a ledger defect.
	Drift int64 `json:"drift"`
	// UnrecordedCharges is spent minus the total cost of recorded payouts:
	// sats charged for payouts that were never recorded.
	UnrecordedCharges int64 `json:"unrecordedCharges"`
}

// ReconciliationReport is the result of a reconciliation run.
type ReconciliationReport struct {
	Projects   int                `json:"projects"`
	Balanced   bool               `json:"balanced"`
	Imbalances []ProjectImbalance `json:"imbalances"`
}

// ReconciliationService verifies balance conservation across all projects.
type ReconciliationService struct {
	ledger *LedgerService
}

// NewReconciliationService creates a reconciliation service.
func NewReconciliationService(ledger *LedgerService) *ReconciliationService {
	return &ReconciliationService{ledger: ledger}
}

// Check compares each project's balance with funded minus spent, and its
// settled spend with the payouts actually recorded. Charges for payouts still
// at the gateway are excluded from the second comparison.
func (s *ReconciliationService) Check() ReconciliationReport {
	books := s.ledger.books()

	report := ReconciliationReport{Projects: len(books), Balanced: true, Imbalances: []ProjectImbalance{}}
	for _, b := range books {
		drift := b.Balance - (b.Funded - b.Spent)
		unrecorded := b.Spent - b.inFlight - b.recorded
		if drift == 0 && unrecorded == 0 && b.Balance >= 0 {
			continue
		}
		report.Balanced = false
		report.Imbalances = append(report.Imbalances, ProjectImbalance{
			ProjectID:         b.ID,
			Balance:           b.Balance,
			Funded:            b.Funded,
			Spent:             b.Spent,
			InFlight:          b.inFlight,
			Drift:             drift,
			UnrecordedCharges: unrecorded,
		})
	}
	return report
}

// Run performs a check, reports imbalances to logs and metrics and returns the
// report it logged.
func (s *ReconciliationService) Run(ctx context.Context) (ReconciliationReport, error) {
	if err := ctx.Err(); err != nil {
		return ReconciliationReport{}, err
	}
	report := s.Check()
	if report.Balanced {
		zap.L().Info("Ledger Balanced", zap.Int("projects", report.Projects))
		return report, nil
	}

	for _, imb := range report.Imbalances {
		if imb.Drift != 0 || imb.Balance < 0 {
			observability.IncrementLedgerImbalance("drift")
			zap.L().Error("CRITICAL: ledger imbalance detected",
				zap.String("project_id", imb.ProjectID),
				zap.Int64("balance", imb.Balance),
				zap.Int64("drift", imb.Drift),
			)
		}
		if imb.UnrecordedCharges != 0 {
			observability.IncrementLedgerImbalance("unrecorded_charge")
			zap.L().Error("project charged for payouts that were never recorded",
				zap.String("project_id", imb.ProjectID),
				zap.Int64("unrecorded_charges", imb.UnrecordedCharges),
			)
		}
	}
	return report, nil
}
