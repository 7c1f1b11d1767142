package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"arcpay/internal/docstore"
	"arcpay/internal/domain"
	"arcpay/internal/ledger"
	"arcpay/internal/platform/metrics"
	"arcpay/internal/ports/mocks"
)

var tickClock = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

type schedFixture struct {
	svc      *Service
	payments *ledger.Repository
	balances *mocks.MockBalanceFeed
	executor *mocks.MockExecutor
}

func newSchedFixture(t *testing.T, opts Options) *schedFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	store, err := docstore.NewFileStore(t.TempDir())
	require.NoError(t, err)

	if opts.LeaseTTL == 0 {
		opts.LeaseTTL = 5 * time.Minute
	}
	if opts.Timeout == 0 {
		opts.Timeout = time.Second
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 3
	}
	if opts.BackoffBase == 0 {
		opts.BackoffBase = time.Minute
	}

	f := &schedFixture{
		payments: ledger.New(store),
		balances: mocks.NewMockBalanceFeed(ctrl),
		executor: mocks.NewMockExecutor(ctrl),
	}
	notifier := mocks.NewMockNotifier(ctrl)
	notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).AnyTimes()

	f.svc = New(
		f.payments, f.balances, f.executor, notifier,
		opts,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics.New(prometheus.NewRegistry()),
	).WithClock(func() time.Time { return tickClock })
	return f
}

func (f *schedFixture) seed(t *testing.T, rec domain.PaymentRecord) domain.PaymentRecord {
	t.Helper()
	created, err := f.payments.Create(context.Background(), rec)
	require.NoError(t, err)
	return created
}

func dueOnce(id string, amount int64) domain.PaymentRecord {
	due := tickClock.Add(-time.Minute)
	return domain.PaymentRecord{
		ID:           id,
		OwnerRef:     "user-1",
		Amount:       decimal.NewFromInt(amount),
		Currency:     "USDC",
		RecipientRef: "R1",
		Schedule:     domain.Once(),
		Status:       domain.StatusApprovedScheduled,
		NextRunAt:    &due,
		TotalSent:    decimal.Zero,
	}
}

func TestTickExecutesDueOncePayment(t *testing.T) {
	f := newSchedFixture(t, Options{})
	f.seed(t, dueOnce("pay-1", 5))

	f.balances.EXPECT().Balance(gomock.Any(), "user-1").Return(decimal.NewFromInt(100), nil)
	f.executor.EXPECT().Execute(gomock.Any(), "R1", decimal.NewFromInt(5)).
		Return(domain.ExecutionReceipt{ConfirmationRef: "tx-abc123"}, nil)

	report, err := f.svc.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TickReport{Executed: 1}, report)

	rec, err := f.payments.GetByID(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, rec.Status)
	assert.Equal(t, 1, rec.ExecutionCount)
	assert.True(t, rec.TotalSent.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, "tx-abc123", rec.ConfirmationRef)
	assert.Nil(t, rec.NextRunAt)
	assert.Empty(t, rec.LeaseOwner)
}

func TestTickReArmsRecurringPayment(t *testing.T) {
	f := newSchedFixture(t, Options{})
	rec := dueOnce("pay-1", 5)
	rec.Schedule = domain.Weekly(time.Monday)
	f.seed(t, rec)

	f.balances.EXPECT().Balance(gomock.Any(), "user-1").Return(decimal.NewFromInt(100), nil)
	f.executor.EXPECT().Execute(gomock.Any(), "R1", gomock.Any()).
		Return(domain.ExecutionReceipt{ConfirmationRef: "tx-1"}, nil)

	report, err := f.svc.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Executed)

	got, err := f.payments.GetByID(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApprovedScheduled, got.Status)
	assert.Equal(t, 1, got.ExecutionCount)
	require.NotNil(t, got.NextRunAt)
	// tickClock is a Monday; the next run lands exactly a week out.
	assert.True(t, got.NextRunAt.Equal(tickClock.AddDate(0, 0, 7)))
}

func TestTickInsufficientFundsIsTerminalAndSkipsExecutor(t *testing.T) {
	f := newSchedFixture(t, Options{})
	f.seed(t, dueOnce("pay-1", 50))

	f.balances.EXPECT().Balance(gomock.Any(), "user-1").Return(decimal.NewFromInt(10), nil)
	// No executor expectation: any call fails the test.

	report, err := f.svc.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TickReport{Failed: 1}, report)

	rec, err := f.payments.GetByID(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, rec.Status)
	assert.Equal(t, InsufficientFunds, rec.LastError)
	assert.Nil(t, rec.NextRunAt)
}

func TestTickRetriesWithBackoffThenFailsTerminally(t *testing.T) {
	f := newSchedFixture(t, Options{MaxAttempts: 3, BackoffBase: time.Minute})
	f.seed(t, dueOnce("pay-1", 5))
	ctx := context.Background()

	f.balances.EXPECT().Balance(gomock.Any(), "user-1").Return(decimal.NewFromInt(100), nil).Times(3)
	f.executor.EXPECT().Execute(gomock.Any(), "R1", gomock.Any()).
		Return(domain.ExecutionReceipt{}, errors.New("execution service down")).Times(3)

	// Attempt 1: re-armed one backoff unit out.
	report, err := f.svc.RunTick(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Failed)
	rec, err := f.payments.GetByID(ctx, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApprovedScheduled, rec.Status)
	assert.Equal(t, 1, rec.Attempts)
	require.NotNil(t, rec.NextRunAt)
	assert.True(t, rec.NextRunAt.Equal(tickClock.Add(time.Minute)))

	// Attempt 2: backoff doubles.
	rearm(t, f.payments, "pay-1")
	_, err = f.svc.RunTick(ctx)
	require.NoError(t, err)
	rec, err = f.payments.GetByID(ctx, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Attempts)
	require.NotNil(t, rec.NextRunAt)
	assert.True(t, rec.NextRunAt.Equal(tickClock.Add(2*time.Minute)))

	// Attempt 3: budget spent, terminal failure.
	rearm(t, f.payments, "pay-1")
	_, err = f.svc.RunTick(ctx)
	require.NoError(t, err)
	rec, err = f.payments.GetByID(ctx, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, rec.Status)
	assert.Equal(t, 3, rec.Attempts)
	assert.Equal(t, "execution service down", rec.LastError)
	assert.Nil(t, rec.NextRunAt)

	// A further tick finds nothing due.
	report, err = f.svc.RunTick(ctx)
	require.NoError(t, err)
	assert.Equal(t, TickReport{}, report)
}

// rearm pulls the retry time back so the next tick sees the record as due.
func rearm(t *testing.T, payments *ledger.Repository, id string) {
	t.Helper()
	past := tickClock.Add(-time.Second)
	_, err := payments.UpdateByID(context.Background(), id, func(p *domain.PaymentRecord) error {
		p.NextRunAt = &past
		return nil
	})
	require.NoError(t, err)
}

func TestConcurrentTicksExecuteExactlyOnce(t *testing.T) {
	f := newSchedFixture(t, Options{})
	f.seed(t, dueOnce("pay-1", 5))

	f.balances.EXPECT().Balance(gomock.Any(), "user-1").Return(decimal.NewFromInt(100), nil).MaxTimes(1)
	f.executor.EXPECT().Execute(gomock.Any(), "R1", gomock.Any()).
		Return(domain.ExecutionReceipt{ConfirmationRef: "tx-1"}, nil).Times(1)

	const ticks = 8
	reports := make([]TickReport, ticks)
	var wg sync.WaitGroup
	for i := 0; i < ticks; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			report, err := f.svc.RunTick(context.Background())
			assert.NoError(t, err)
			reports[i] = report
		}()
	}
	wg.Wait()

	executed := 0
	for _, r := range reports {
		executed += r.Executed
	}
	assert.Equal(t, 1, executed)

	rec, err := f.payments.GetByID(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.ExecutionCount)
	assert.True(t, rec.TotalSent.Equal(decimal.NewFromInt(5)))
}

func TestTickReclaimsExpiredLease(t *testing.T) {
	f := newSchedFixture(t, Options{})
	rec := dueOnce("pay-1", 5)
	rec.Status = domain.StatusExecuting
	rec.LeaseOwner = "crashed-worker-1234"
	expired := tickClock.Add(-time.Minute)
	rec.LeaseExpiresAt = &expired
	rec.NextRunAt = nil
	f.seed(t, rec)

	f.balances.EXPECT().Balance(gomock.Any(), "user-1").Return(decimal.NewFromInt(100), nil)
	f.executor.EXPECT().Execute(gomock.Any(), "R1", gomock.Any()).
		Return(domain.ExecutionReceipt{ConfirmationRef: "tx-2"}, nil)

	report, err := f.svc.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Executed)

	got, err := f.payments.GetByID(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Empty(t, got.LeaseOwner)
}

func TestTickHeldLeaseIsNotTouched(t *testing.T) {
	f := newSchedFixture(t, Options{})
	rec := dueOnce("pay-1", 5)
	rec.Status = domain.StatusExecuting
	rec.LeaseOwner = "other-worker-1234"
	held := tickClock.Add(time.Minute)
	rec.LeaseExpiresAt = &held
	rec.NextRunAt = nil
	f.seed(t, rec)

	report, err := f.svc.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TickReport{}, report)

	got, err := f.payments.GetByID(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, "other-worker-1234", got.LeaseOwner)
}

func TestTickBalanceFeedFailureCountsAsAttempt(t *testing.T) {
	f := newSchedFixture(t, Options{MaxAttempts: 3})
	f.seed(t, dueOnce("pay-1", 5))

	f.balances.EXPECT().Balance(gomock.Any(), "user-1").
		Return(decimal.Decimal{}, errors.New("feed timeout"))

	report, err := f.svc.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	rec, err := f.payments.GetByID(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApprovedScheduled, rec.Status)
	assert.Equal(t, 1, rec.Attempts)
	assert.Contains(t, rec.LastError, "feed timeout")
}

func TestTickEmptyLedger(t *testing.T) {
	f := newSchedFixture(t, Options{})
	report, err := f.svc.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TickReport{}, report)
}
