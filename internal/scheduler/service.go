// Package scheduler drives payment execution. A tick scans the ledger for
// due work, claims each record under a lease, re-validates balance, calls
// the execution collaborator, and advances or retires the schedule. Ticks
// are safe to invoke repeatedly and concurrently: the conditional lease
// update is the guard against double execution, and expired leases make
// crashed executions reclaimable instead of stranded.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"arcpay/internal/domain"
	"arcpay/internal/ledger"
	"arcpay/internal/platform/metrics"
	"arcpay/internal/ports"
	"arcpay/internal/schedule"
	dErrors "arcpay/pkg/domain-errors"
)

// InsufficientFunds is recorded as lastError when the pre-execution
// balance check refuses a payment.
const InsufficientFunds = "InsufficientFunds"

// errNotClaimable signals the record was taken by another worker between
// the scan and the lease attempt. Expected, skipped silently.
var errNotClaimable = dErrors.New(dErrors.CodeConflict, "payment not claimable")

// TickReport summarizes one scan-and-execute cycle.
type TickReport struct {
	Executed int `json:"executed"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
}

// Options bound the retry and lease policy.
type Options struct {
	LeaseTTL    time.Duration
	Timeout     time.Duration
	MaxAttempts int
	BackoffBase time.Duration
	Workers     int
}

type Service struct {
	payments *ledger.Repository
	balances ports.BalanceFeed
	executor ports.Executor
	notifier ports.Notifier

	opts     Options
	workerID string
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	now      func() time.Time
}

func New(
	payments *ledger.Repository,
	balances ports.BalanceFeed,
	executor ports.Executor,
	notifier ports.Notifier,
	opts Options,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Service {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	host, _ := os.Hostname()
	return &Service{
		payments: payments,
		balances: balances,
		executor: executor,
		notifier: notifier,
		opts:     opts,
		workerID: fmt.Sprintf("%s-%s", host, uuid.NewString()[:8]),
		logger:   logger,
		metrics:  m,
		tracer:   otel.Tracer("arcpay/scheduler"),
		now:      time.Now,
	}
}

// WithClock pins the timestamp source for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WorkerID identifies this scheduler instance in lease-owner fields.
func (s *Service) WorkerID() string { return s.workerID }

// RunTick processes every due record once. Per-record failures never block
// the rest of the batch; only a failed due-scan aborts the tick (the work
// is retried on the next one).
func (s *Service) RunTick(ctx context.Context) (TickReport, error) {
	ctx, span := s.tracer.Start(ctx, "scheduler.tick")
	defer span.End()

	start := s.now()
	defer func() {
		s.metrics.TickDuration.Observe(time.Since(start).Seconds())
	}()

	now := start.UTC()
	candidates, err := s.payments.ListDue(ctx, now)
	if err != nil {
		return TickReport{}, err
	}

	var (
		mu     sync.Mutex
		report TickReport
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for _, candidate := range candidates {
		candidate := candidate
		g.Go(func() error {
			outcome := s.process(ctx, candidate, now)
			mu.Lock()
			switch outcome {
			case outcomeExecuted:
				report.Executed++
			case outcomeFailed:
				report.Failed++
			default:
				report.Skipped++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	span.SetAttributes(
		attribute.Int("tick.executed", report.Executed),
		attribute.Int("tick.failed", report.Failed),
		attribute.Int("tick.skipped", report.Skipped),
	)
	return report, nil
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeExecuted
	outcomeFailed
)

func (s *Service) process(ctx context.Context, candidate domain.PaymentRecord, now time.Time) outcome {
	claimed, reclaimed, err := s.acquireLease(ctx, candidate.ID, now)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeConflict) {
			// Another worker won the record; expected, not an error.
			s.metrics.LeaseConflicts.Inc()
			return outcomeSkipped
		}
		s.logger.ErrorContext(ctx, "lease acquisition failed",
			"payment_id", candidate.ID, "error", err)
		return outcomeSkipped
	}
	if reclaimed {
		s.metrics.LeaseReclaims.Inc()
		s.logger.WarnContext(ctx, "reclaimed expired lease; execution may duplicate",
			"payment_id", claimed.ID,
			"previous_owner", candidate.LeaseOwner,
		)
	}

	// Balance readings are advisory; re-check as close to execution as
	// possible, and never call the execution service on insufficient funds.
	balance, err := s.checkBalance(ctx, claimed.OwnerRef)
	if err != nil {
		return s.recordFailure(ctx, claimed, now, "balance feed unavailable: "+err.Error())
	}
	if balance.LessThan(claimed.Amount) {
		return s.recordInsufficientFunds(ctx, claimed, now)
	}

	ectx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	receipt, err := s.executor.Execute(ectx, claimed.RecipientRef, claimed.Amount)
	cancel()
	if err != nil {
		return s.recordFailure(ctx, claimed, now, err.Error())
	}
	return s.recordSuccess(ctx, claimed, receipt, now)
}

// acquireLease atomically transitions an eligible record to EXECUTING
// under this worker's lease. The eligibility re-check inside the store
// transaction is what makes concurrent ticks safe: at most one worker can
// move a given record out of APPROVED_SCHEDULED per lease cycle.
func (s *Service) acquireLease(ctx context.Context, id string, now time.Time) (domain.PaymentRecord, bool, error) {
	reclaimed := false
	rec, err := s.payments.UpdateByID(ctx, id, func(p *domain.PaymentRecord) error {
		if !p.DueAt(now) {
			return errNotClaimable
		}
		reclaimed = p.Status == domain.StatusExecuting
		expires := now.Add(s.opts.LeaseTTL)
		p.Status = domain.StatusExecuting
		p.LeaseOwner = s.workerID
		p.LeaseExpiresAt = &expires
		return nil
	})
	if err != nil {
		return domain.PaymentRecord{}, false, err
	}
	return rec, reclaimed, nil
}

func (s *Service) checkBalance(ctx context.Context, ownerRef string) (decimal.Decimal, error) {
	bctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	return s.balances.Balance(bctx, ownerRef)
}

func (s *Service) recordSuccess(ctx context.Context, rec domain.PaymentRecord, receipt domain.ExecutionReceipt, now time.Time) outcome {
	updated, err := s.payments.UpdateByID(ctx, rec.ID, func(p *domain.PaymentRecord) error {
		p.ExecutionCount++
		p.TotalSent = p.TotalSent.Add(p.Amount)
		p.ConfirmationRef = receipt.ConfirmationRef
		p.Attempts = 0
		p.LastError = ""
		p.LeaseOwner = ""
		p.LeaseExpiresAt = nil
		if p.Schedule.Recurring() {
			next, ok := schedule.NextRun(p.Schedule, now)
			if !ok {
				p.Status = domain.StatusCompleted
				p.NextRunAt = nil
				return nil
			}
			p.Status = domain.StatusApprovedScheduled
			p.NextRunAt = &next
		} else {
			p.Status = domain.StatusCompleted
			p.NextRunAt = nil
		}
		return nil
	})
	if err != nil {
		// The transfer went out but the ledger write failed; the lease will
		// expire and the sync validator surfaces the drift.
		s.logger.ErrorContext(ctx, "ledger update after execution failed",
			"payment_id", rec.ID, "error", err)
		return outcomeFailed
	}

	s.metrics.PaymentsExecuted.Inc()
	s.logger.InfoContext(ctx, "payment executed",
		"payment_id", updated.ID,
		"confirmation", receipt.ConfirmationRef,
		"execution_count", updated.ExecutionCount,
		"status", updated.Status,
	)
	s.notifier.Notify(ctx, domain.Notification{
		OwnerRef:  updated.OwnerRef,
		Channel:   domain.ChannelOwner,
		Kind:      domain.NotifyExecuted,
		PaymentID: updated.ID,
		Message:   fmt.Sprintf("payment of %s %s sent (confirmation %s)", updated.Amount, updated.Currency, receipt.ConfirmationRef),
		At:        now,
	})
	return outcomeExecuted
}

// recordFailure applies the bounded retry policy: re-arm with exponential
// backoff until the attempt budget is spent, then fail terminally.
func (s *Service) recordFailure(ctx context.Context, rec domain.PaymentRecord, now time.Time, reason string) outcome {
	updated, err := s.payments.UpdateByID(ctx, rec.ID, func(p *domain.PaymentRecord) error {
		p.Attempts++
		p.LastError = reason
		p.LeaseOwner = ""
		p.LeaseExpiresAt = nil
		if p.Attempts >= s.opts.MaxAttempts {
			p.Status = domain.StatusFailed
			p.NextRunAt = nil
			return nil
		}
		retryAt := now.Add(s.opts.BackoffBase << (p.Attempts - 1))
		p.Status = domain.StatusApprovedScheduled
		p.NextRunAt = &retryAt
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "ledger update after failure failed",
			"payment_id", rec.ID, "error", err)
		return outcomeFailed
	}

	s.metrics.PaymentsFailed.Inc()
	s.logger.WarnContext(ctx, "payment execution failed",
		"payment_id", updated.ID,
		"attempts", updated.Attempts,
		"status", updated.Status,
		"error", reason,
	)
	s.notifier.Notify(ctx, domain.Notification{
		OwnerRef:  updated.OwnerRef,
		Channel:   domain.ChannelOwner,
		Kind:      domain.NotifyFailed,
		PaymentID: updated.ID,
		Message:   "payment failed: " + reason,
		At:        now,
	})
	return outcomeFailed
}

// recordInsufficientFunds is terminal and never reaches the execution
// collaborator: the owner must top up and resubmit.
func (s *Service) recordInsufficientFunds(ctx context.Context, rec domain.PaymentRecord, now time.Time) outcome {
	updated, err := s.payments.UpdateByID(ctx, rec.ID, func(p *domain.PaymentRecord) error {
		p.Status = domain.StatusFailed
		p.LastError = InsufficientFunds
		p.NextRunAt = nil
		p.LeaseOwner = ""
		p.LeaseExpiresAt = nil
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "ledger update after funds check failed",
			"payment_id", rec.ID, "error", err)
		return outcomeFailed
	}

	s.metrics.PaymentsFailed.Inc()
	s.notifier.Notify(ctx, domain.Notification{
		OwnerRef:  updated.OwnerRef,
		Channel:   domain.ChannelOwner,
		Kind:      domain.NotifyFailed,
		PaymentID: updated.ID,
		Message:   "payment failed: insufficient funds",
		At:        now,
	})
	return outcomeFailed
}

// Loop invokes RunTick on the configured interval until ctx is cancelled.
func (s *Service) Loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunTick(ctx); err != nil {
				s.logger.ErrorContext(ctx, "scheduler tick failed", "error", err)
			}
		}
	}
}
