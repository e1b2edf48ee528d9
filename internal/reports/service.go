package reports

import (
	"context"
	"time"
)

// RepositoryPort abstracts the read aggregations.
type RepositoryPort interface {
	AccountActivity(ctx context.Context, from, to *time.Time) ([]AccountActivity, error)
	ValuationRows(ctx context.Context, warehouseID int64) ([]ValuationRow, error)
}

// Service assembles the reporting views.
type Service struct {
	repo RepositoryPort
	now  func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, now: time.Now}
}

// TrialBalance nets posted activity per account up to asOf (zero time
// means now).
func (s *Service) TrialBalance(ctx context.Context, asOf time.Time) (TrialBalance, error) {
	if asOf.IsZero() {
		asOf = s.now().UTC()
	}
	activity, err := s.repo.AccountActivity(ctx, nil, &asOf)
	if err != nil {
		return TrialBalance{}, err
	}
	return BuildTrialBalance(asOf, activity), nil
}

// Valuation sums quantity times average cost per product and
// warehouse.
func (s *Service) Valuation(ctx context.Context, warehouseID int64) (InventoryValuation, error) {
	rows, err := s.repo.ValuationRows(ctx, warehouseID)
	if err != nil {
		return InventoryValuation{}, err
	}
	return BuildValuation(rows), nil
}

// ProfitLoss nets revenue and expense activity for the period.
func (s *Service) ProfitLoss(ctx context.Context, from, to *time.Time) (ProfitLoss, error) {
	activity, err := s.repo.AccountActivity(ctx, from, to)
	if err != nil {
		return ProfitLoss{}, err
	}
	return BuildProfitLoss(from, to, activity), nil
}
