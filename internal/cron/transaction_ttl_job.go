package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/tomascarrillo/shoply-backend/internal/transactions"
	"github.com/tomascarrillo/shoply-backend/pkg/enums"
	"github.com/tomascarrillo/shoply-backend/pkg/logger"
)

const transactionTTLJobName = "transaction_ttl"

// TransactionTTLJobParams configure the transaction sweeper.
type TransactionTTLJobParams struct {
	Logger *logger.Logger
	Repo   transactions.Repository
	// GracePeriod must exceed the provider's maximum webhook redelivery
	// delay, so a pending row is only expired once no late success signal
	// can still arrive for it.
	GracePeriod time.Duration
}

type transactionTTLJob struct {
	logg  *logger.Logger
	repo  transactions.Repository
	grace time.Duration
	now   func() time.Time
}

// NewTransactionTTLJob builds the job that expires stale pending
// transactions and reclaims finalized ones past the grace window.
func NewTransactionTTLJob(params TransactionTTLJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("transactions repository required")
	}
	if params.GracePeriod <= 0 {
		return nil, fmt.Errorf("grace period must be positive")
	}
	return &transactionTTLJob{
		logg:  params.Logger,
		repo:  params.Repo,
		grace: params.GracePeriod,
		now:   time.Now,
	}, nil
}

func (j *transactionTTLJob) Name() string { return transactionTTLJobName }

// Run expires pending transactions older than the grace window, then deletes
// terminal rows whose grace window has also passed. Expiry goes through the
// conditional pending->expired transition: a webhook that finalizes the row
// mid-sweep simply wins and the sweep moves on.
func (j *transactionTTLJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.grace)

	var errs error

	stale, err := j.repo.FindPendingBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("find stale pending transactions: %w", err)
	}
	var expired, skipped int
	for _, txn := range stale {
		won, err := j.repo.TransitionState(ctx, txn.ID, enums.TransactionStatePending, enums.TransactionStateExpired, nil)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire transaction %s: %w", txn.ID, err))
			continue
		}
		if won {
			expired++
		} else {
			skipped++
		}
	}
	if expired > 0 || skipped > 0 {
		j.logg.Info(ctx, fmt.Sprintf("expired %d stale pending transaction(s), %d finalized mid-sweep", expired, skipped))
	}

	terminal, err := j.repo.FindTerminalBefore(ctx, cutoff)
	if err != nil {
		return multierr.Append(errs, fmt.Errorf("find reclaimable transactions: %w", err))
	}
	var reclaimed int
	for _, txn := range terminal {
		if err := j.repo.Delete(ctx, txn.ID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("reclaim transaction %s: %w", txn.ID, err))
			continue
		}
		reclaimed++
	}
	if reclaimed > 0 {
		j.logg.Info(ctx, fmt.Sprintf("reclaimed %d finalized transaction(s)", reclaimed))
	}

	return errs
}
