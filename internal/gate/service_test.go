package gate

import (
	"context"
	"io"
	"log/slog"
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
	"arcpay/internal/recipients"
	"arcpay/internal/risklog"
	dErrors "arcpay/pkg/domain-errors"
)

var testClock = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

type gateFixture struct {
	svc         *Service
	payments    *ledger.Repository
	assessments risklog.Log
	whitelist   *recipients.Repository
	scorer      *mocks.MockRiskScorer
	verifier    *mocks.MockRecipientVerifier
	balances    *mocks.MockBalanceFeed
	notifier    *mocks.MockNotifier
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	store, err := docstore.NewFileStore(t.TempDir())
	require.NoError(t, err)

	f := &gateFixture{
		payments:    ledger.New(store),
		assessments: risklog.New(store),
		whitelist:   recipients.New(store),
		scorer:      mocks.NewMockRiskScorer(ctrl),
		verifier:    mocks.NewMockRecipientVerifier(ctrl),
		balances:    mocks.NewMockBalanceFeed(ctrl),
		notifier:    mocks.NewMockNotifier(ctrl),
	}
	// Notifications are fire-and-forget; no test asserts on their absence.
	f.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).AnyTimes()

	f.svc = New(
		f.payments, f.assessments, f.whitelist,
		f.scorer, f.verifier, f.balances, f.notifier,
		Policy{MediumThreshold: 0.6, HighThreshold: 0.85},
		time.Second,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics.New(prometheus.NewRegistry()),
	).WithClock(func() time.Time { return testClock })
	return f
}

func (f *gateFixture) expectVerified() {
	f.verifier.EXPECT().Verify(gomock.Any(), gomock.Any()).
		Return(domain.Verification{Status: domain.VerificationOK}, nil)
}

func (f *gateFixture) expectBalance(amount int64) {
	f.balances.EXPECT().Balance(gomock.Any(), gomock.Any()).
		Return(decimal.NewFromInt(amount), nil)
}

func (f *gateFixture) expectScore(score float64) {
	f.scorer.EXPECT().Score(gomock.Any(), gomock.Any()).
		Return(domain.RiskScore{Score: score, Rationale: "model output"}, nil)
}

func intentFixture() domain.PaymentIntent {
	return domain.PaymentIntent{
		Amount:       decimal.NewFromInt(50),
		RecipientRef: "R1",
		Schedule:     domain.Once(),
	}
}

func TestLowRiskSchedulesPayment(t *testing.T) {
	f := newGateFixture(t)
	f.expectVerified()
	f.expectBalance(1000)
	f.expectScore(0.2)

	res, err := f.svc.SubmitIntent(context.Background(), "user-1", intentFixture())
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionApprove, res.Decision)
	assert.Equal(t, domain.RiskLow, res.RiskLevel)
	assert.Equal(t, domain.StatusApprovedScheduled, res.Status)

	rec, err := f.payments.GetByID(context.Background(), res.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApprovedScheduled, rec.Status)
	require.NotNil(t, rec.NextRunAt)
	assert.True(t, rec.NextRunAt.Equal(testClock))
	assert.Equal(t, "USDC", rec.Currency)

	rows, err := f.assessments.ListByPaymentID(context.Background(), res.PaymentID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.DecisionApprove, rows[0].Decision)
}

func TestHighRiskDeniesAndRecordsNothingApproved(t *testing.T) {
	f := newGateFixture(t)
	f.expectVerified()
	f.expectBalance(1000)
	f.expectScore(0.95)

	res, err := f.svc.SubmitIntent(context.Background(), "user-1", intentFixture())
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionDeny, res.Decision)
	assert.Equal(t, domain.RiskHigh, res.RiskLevel)
	assert.Equal(t, domain.StatusDenied, res.Status)

	rec, err := f.payments.GetByID(context.Background(), res.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDenied, rec.Status)
	assert.Nil(t, rec.NextRunAt)
}

func TestMediumRiskNeedsConfirmationThenApproves(t *testing.T) {
	f := newGateFixture(t)
	ctx := context.Background()

	f.expectVerified()
	f.expectBalance(1000)
	f.expectScore(0.7)
	res, err := f.svc.SubmitIntent(ctx, "user-1", intentFixture())
	require.NoError(t, err)
	require.Equal(t, domain.DecisionNeedsConfirmation, res.Decision)
	require.Equal(t, domain.StatusPendingConfirmation, res.Status)

	f.expectVerified()
	f.expectBalance(1000)
	f.expectScore(0.7)
	confirmed := intentFixture()
	confirmed.PaymentID = res.PaymentID
	confirmed.Confirmed = true
	res2, err := f.svc.SubmitIntent(ctx, "user-1", confirmed)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionApprove, res2.Decision)
	assert.Equal(t, res.PaymentID, res2.PaymentID)
	assert.Equal(t, domain.StatusApprovedScheduled, res2.Status)

	rows, err := f.assessments.ListByPaymentID(ctx, res.PaymentID)
	require.NoError(t, err)
	assert.Len(t, rows, 2, "each evaluation appends its own assessment")
}

func TestResubmitApprovedPaymentConflictsWithoutReEvaluation(t *testing.T) {
	f := newGateFixture(t)
	ctx := context.Background()

	f.expectVerified()
	f.expectBalance(1000)
	f.expectScore(0.2)
	res, err := f.svc.SubmitIntent(ctx, "user-1", intentFixture())
	require.NoError(t, err)
	require.Equal(t, domain.StatusApprovedScheduled, res.Status)

	// No verifier/balance/scorer expectations: the resubmission must be
	// refused before any collaborator is consulted.
	resubmit := intentFixture()
	resubmit.PaymentID = res.PaymentID
	resubmit.Confirmed = true
	_, err = f.svc.SubmitIntent(ctx, "user-1", resubmit)
	assert.True(t, dErrors.Is(err, dErrors.CodeConflict))

	rows, err := f.assessments.ListByPaymentID(ctx, res.PaymentID)
	require.NoError(t, err)
	require.Len(t, rows, 1, "an activated schedule keeps exactly one approving assessment")
	assert.Equal(t, domain.DecisionApprove, rows[0].Decision)
}

func TestInvalidRecipientRejectedBeforeScoring(t *testing.T) {
	f := newGateFixture(t)
	intent := intentFixture()
	intent.RecipientRef = ""

	_, err := f.svc.SubmitIntent(context.Background(), "user-1", intent)
	assert.True(t, dErrors.Is(err, dErrors.CodeInvalidRecipient))

	rows, err := f.assessments.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows, "nothing is scored or recorded for an unverifiable request")
}

func TestVerificationFailureDeniesRegardlessOfScore(t *testing.T) {
	f := newGateFixture(t)
	f.verifier.EXPECT().Verify(gomock.Any(), "R1").
		Return(domain.Verification{Status: domain.VerificationFailed, Reason: "no such account"}, nil)
	f.expectBalance(1000)
	f.expectScore(0.1)

	res, err := f.svc.SubmitIntent(context.Background(), "user-1", intentFixture())
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionDeny, res.Decision)
	assert.Equal(t, domain.StatusDenied, res.Status)
}

func TestAmbiguousVerificationFlags(t *testing.T) {
	f := newGateFixture(t)
	f.verifier.EXPECT().Verify(gomock.Any(), "R1").
		Return(domain.Verification{Status: domain.VerificationAmbiguous}, nil)
	f.expectBalance(1000)
	f.expectScore(0.1)

	res, err := f.svc.SubmitIntent(context.Background(), "user-1", intentFixture())
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionFlag, res.Decision)
	assert.Equal(t, domain.StatusFlagged, res.Status)
}

func TestScorerUnavailableFailsClosed(t *testing.T) {
	f := newGateFixture(t)
	f.expectVerified()
	f.expectBalance(1000)
	f.scorer.EXPECT().Score(gomock.Any(), gomock.Any()).
		Return(domain.RiskScore{}, context.DeadlineExceeded)

	_, err := f.svc.SubmitIntent(context.Background(), "user-1", intentFixture())
	assert.True(t, dErrors.Is(err, dErrors.CodeCollaboratorUnavailable))

	records, err := f.payments.ListByOwner(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, records, "no payment is created when the risk model is unreachable")
}

func TestApprovalWithInsufficientBalanceDenies(t *testing.T) {
	f := newGateFixture(t)
	f.expectVerified()
	f.expectBalance(10)
	f.expectScore(0.1)

	res, err := f.svc.SubmitIntent(context.Background(), "user-1", intentFixture())
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionDeny, res.Decision)
	assert.Equal(t, "insufficient balance at approval time", res.Reason)
	assert.Equal(t, domain.StatusDenied, res.Status)
}

func TestFeatureSnapshotCarriesTrustTier(t *testing.T) {
	f := newGateFixture(t)
	ctx := context.Background()
	require.NoError(t, f.whitelist.Upsert(ctx, recipients.Entry{OwnerRef: "user-1", RecipientRef: "R1"}))

	f.expectVerified()
	f.expectBalance(1000)
	f.scorer.EXPECT().Score(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, features domain.FeatureSnapshot) (domain.RiskScore, error) {
			assert.Equal(t, domain.TierTrusted, features.TrustTier)
			assert.InDelta(t, 0.05, features.BalanceRatio, 1e-9)
			assert.False(t, features.Recurring)
			return domain.RiskScore{Score: 0.1}, nil
		})

	_, err := f.svc.SubmitIntent(ctx, "user-1", intentFixture())
	require.NoError(t, err)
}

func TestSubmitTextClassifiesFirst(t *testing.T) {
	f := newGateFixture(t)
	ctrl := gomock.NewController(t)
	classifier := mocks.NewMockIntentClassifier(ctrl)
	classifier.EXPECT().Classify(gomock.Any(), "pay 50 to R1").
		Return(intentFixture(), nil)

	f.expectVerified()
	f.expectBalance(1000)
	f.expectScore(0.2)

	res, err := f.svc.SubmitText(context.Background(), "user-1", "pay 50 to R1", classifier)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionApprove, res.Decision)
}

func TestCancelScheduledPayment(t *testing.T) {
	f := newGateFixture(t)
	ctx := context.Background()
	f.expectVerified()
	f.expectBalance(1000)
	f.expectScore(0.2)
	res, err := f.svc.SubmitIntent(ctx, "user-1", intentFixture())
	require.NoError(t, err)

	rec, err := f.svc.Cancel(ctx, res.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, rec.Status)
	assert.Nil(t, rec.NextRunAt)
}

func TestCancelDeniedPaymentConflicts(t *testing.T) {
	f := newGateFixture(t)
	ctx := context.Background()
	f.expectVerified()
	f.expectBalance(1000)
	f.expectScore(0.95)
	res, err := f.svc.SubmitIntent(ctx, "user-1", intentFixture())
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, res.PaymentID)
	assert.True(t, dErrors.Is(err, dErrors.CodeConflict))
}
