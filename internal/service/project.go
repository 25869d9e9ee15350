package service

import (
	"context"
	"strings"

	"github.com/ayo6706/payout-ledger/internal/gateway"
	"github.com/ayo6706/payout-ledger/internal/models"
	"go.uber.org/zap"
)

// FundProject increments the project's balance by amount, creating the project
// on first funding.
func (s *LedgerService) FundProject(ctx context.Context, projectID string, amount int64) (*models.Project, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, newError(ErrValidation, map[string]any{"missingFields": []string{"projectId"}}, "projectId is required")
	}
	if amount <= 0 {
		return nil, newError(ErrInvalidAmount, map[string]any{"amount": amount}, "amount must be a positive integer")
	}

	account := s.projectOrCreate(projectID)
	account.mu.Lock()
	prev := account.balance
	account.balance += amount
	account.funded += amount
	account.mu.Unlock()

	s.audit.Write(ctx, "project", projectID, projectID, "funded", "", "", amount, map[string]any{"previous_balance": prev})
	zap.L().Info("project funded", zap.String("project_id", projectID), zap.Int64("amount", amount), zap.Int64("balance", prev+amount))

	project := account.snapshot()
	return &project, nil
}

// GetBalance returns the project's current balance.
func (s *LedgerService) GetBalance(ctx context.Context, projectID string) (*models.Project, error) {
	account := s.project(projectID)
	if account == nil {
		if s.opts.LegacyUnknownProjectZeroBalance {
			return &models.Project{ID: projectID}, nil
		}
		return nil, newError(ErrProjectNotFound, map[string]any{"projectId": projectID}, "project %s not found", projectID)
	}
	project := account.snapshot()
	return &project, nil
}

// FailureInjection returns the current failure-injection configuration.
func (s *LedgerService) FailureInjection() models.FailureInjection {
	return s.gateway.FailureInjection()
}

// ConfigureFailureInjection applies a partial update and returns the full configuration.
func (s *LedgerService) ConfigureFailureInjection(ctx context.Context, update gateway.FailureInjectionUpdate) models.FailureInjection {
	cfg := s.gateway.ConfigureFailureInjection(update)
	s.audit.Write(ctx, "failure_injection", "gateway", "", "configured", "", "", 0, map[string]any{
		"enabled":           cfg.Enabled,
		"timeoutRate":       cfg.TimeoutRate,
		"rollbackOnTimeout": cfg.RollbackOnTimeout,
	})
	zap.L().Info("failure injection configured",
		zap.Bool("enabled", cfg.Enabled),
		zap.Float64("timeout_rate", cfg.TimeoutRate),
		zap.Bool("rollback_on_timeout", cfg.RollbackOnTimeout),
	)
	return cfg
}
