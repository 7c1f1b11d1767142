// Package gate implements the risk gate: it consumes a confirmed payment
// intent, assembles a feature snapshot, consults the risk scorer, applies
// decision policy, records the assessment, and schedules or refuses the
// payment. It is the only writer of risk-log rows and of the initial
// APPROVED_SCHEDULED / DENIED / FLAGGED / PENDING_CONFIRMATION statuses.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"arcpay/internal/domain"
	"arcpay/internal/ledger"
	"arcpay/internal/platform/metrics"
	"arcpay/internal/ports"
	"arcpay/internal/recipients"
	"arcpay/internal/risklog"
	"arcpay/internal/schedule"
	dErrors "arcpay/pkg/domain-errors"
)

// Result is the gate's answer to a submitted intent.
type Result struct {
	Decision  domain.Decision      `json:"decision"`
	RiskScore float64              `json:"riskScore"`
	RiskLevel domain.RiskLevel     `json:"riskLevel"`
	PaymentID string               `json:"paymentId,omitempty"`
	Status    domain.PaymentStatus `json:"status,omitempty"`
	Reason    string               `json:"reason"`
}

type Service struct {
	payments    *ledger.Repository
	assessments risklog.Log
	whitelist   *recipients.Repository
	scorer      ports.RiskScorer
	verifier    ports.RecipientVerifier
	balances    ports.BalanceFeed
	notifier    ports.Notifier

	policy  Policy
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

func New(
	payments *ledger.Repository,
	assessments risklog.Log,
	whitelist *recipients.Repository,
	scorer ports.RiskScorer,
	verifier ports.RecipientVerifier,
	balances ports.BalanceFeed,
	notifier ports.Notifier,
	policy Policy,
	timeout time.Duration,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		payments:    payments,
		assessments: assessments,
		whitelist:   whitelist,
		scorer:      scorer,
		verifier:    verifier,
		balances:    balances,
		notifier:    notifier,
		policy:      policy,
		timeout:     timeout,
		logger:      logger,
		metrics:     m,
		tracer:      otel.Tracer("arcpay/gate"),
		now:         time.Now,
	}
}

// WithClock pins the timestamp source for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// SubmitIntent runs the full evaluation. Every evaluation appends a risk
// assessment, including repeats; the ledger is only touched afterwards.
func (s *Service) SubmitIntent(ctx context.Context, ownerRef string, intent domain.PaymentIntent) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "gate.submit_intent")
	defer span.End()

	if ownerRef == "" {
		return Result{}, dErrors.New(dErrors.CodeValidation, "owner reference is required")
	}
	// Never score unverifiable requests.
	if err := intent.Validate(); err != nil {
		return Result{}, err
	}
	// A resubmission against an already-activated record must refuse up
	// front: evaluating it would append a second approving assessment for
	// the same schedule activation.
	if err := s.checkResubmittable(ctx, intent.PaymentID); err != nil {
		return Result{}, err
	}

	verification, err := s.verify(ctx, intent.RecipientRef)
	if err != nil {
		return Result{}, err
	}

	balance, err := s.balance(ctx, ownerRef)
	if err != nil {
		return Result{}, err
	}

	features, err := s.buildFeatures(ctx, ownerRef, intent, balance)
	if err != nil {
		return Result{}, err
	}

	score, err := s.score(ctx, features)
	if err != nil {
		// Fail closed: an unreachable risk model never approves.
		return Result{}, err
	}

	level := s.policy.Level(score.Score)
	decision := s.policy.Decide(level, verification, intent.Confirmed)
	reason := score.Rationale

	// Even an approving score cannot schedule more than the owner holds.
	if decision == domain.DecisionApprove && balance.Balance.LessThan(intent.Amount) {
		decision = domain.DecisionDeny
		reason = "insufficient balance at approval time"
	}

	paymentID := intent.PaymentID
	if paymentID == "" {
		paymentID = newPaymentID()
	}

	if _, err := s.assessments.Append(ctx, domain.RiskAssessment{
		PaymentID: paymentID,
		Request: domain.RequestSnapshot{
			OwnerRef:     ownerRef,
			RecipientRef: intent.RecipientRef,
			Amount:       intent.Amount,
			Balance:      balance.Balance,
			Schedule:     intent.Schedule,
			Confirmed:    intent.Confirmed,
		},
		Features:     features,
		Score:        score.Score,
		RiskLevel:    level,
		Decision:     decision,
		Rationale:    reason,
		Verification: verification,
	}); err != nil {
		return Result{}, err
	}

	span.SetAttributes(
		attribute.String("payment.id", paymentID),
		attribute.String("gate.decision", string(decision)),
		attribute.Float64("gate.score", score.Score),
	)
	s.metrics.IntentsEvaluated.WithLabelValues(string(decision)).Inc()

	result := Result{
		Decision:  decision,
		RiskScore: score.Score,
		RiskLevel: level,
		PaymentID: paymentID,
		Reason:    reason,
	}

	status, err := s.apply(ctx, ownerRef, paymentID, intent, decision, reason)
	if err != nil {
		return Result{}, err
	}
	result.Status = status

	s.logger.InfoContext(ctx, "gate decision",
		"payment_id", paymentID,
		"owner", ownerRef,
		"decision", decision,
		"risk_level", level,
		"score", score.Score,
	)
	return result, nil
}

// SubmitText classifies free text into an intent first, then evaluates it.
func (s *Service) SubmitText(ctx context.Context, ownerRef, text string, classifier ports.IntentClassifier) (Result, error) {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	intent, err := classifier.Classify(cctx, text)
	if err != nil {
		return Result{}, dErrors.Wrap(dErrors.CodeValidation, "intent could not be classified", err)
	}
	return s.SubmitIntent(ctx, ownerRef, intent)
}

// Cancel transitions a payment to CANCELLED. Only pre-execution states may
// be cancelled; an in-flight execution must complete or fail first.
func (s *Service) Cancel(ctx context.Context, paymentID string) (domain.PaymentRecord, error) {
	rec, err := s.payments.UpdateByID(ctx, paymentID, func(p *domain.PaymentRecord) error {
		if !p.Cancellable() {
			return dErrors.New(dErrors.CodeConflict,
				fmt.Sprintf("payment in status %s cannot be cancelled", p.Status))
		}
		p.Status = domain.StatusCancelled
		p.NextRunAt = nil
		return nil
	})
	if err != nil {
		return domain.PaymentRecord{}, err
	}
	s.notifier.Notify(ctx, domain.Notification{
		OwnerRef:  rec.OwnerRef,
		Channel:   domain.ChannelOwner,
		Kind:      domain.NotifyCancelled,
		PaymentID: rec.ID,
		Message:   "payment cancelled",
		At:        s.now().UTC(),
	})
	return rec, nil
}

type balanceReading struct {
	Balance decimal.Decimal
}

// checkResubmittable rejects re-evaluation of a payment id that has left
// the pre-execution states. Only records awaiting confirmation or already
// refused may be evaluated again; an approved or executing record keeps
// its single approving assessment.
func (s *Service) checkResubmittable(ctx context.Context, paymentID string) error {
	if paymentID == "" {
		return nil
	}
	rec, err := s.payments.GetByID(ctx, paymentID)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	switch rec.Status {
	case domain.StatusPendingConfirmation, domain.StatusFlagged, domain.StatusDenied:
		return nil
	}
	return dErrors.New(dErrors.CodeConflict,
		fmt.Sprintf("payment in status %s cannot be re-evaluated", rec.Status))
}

// verify calls the recipient verifier under the collaborator timeout.
func (s *Service) verify(ctx context.Context, recipientRef string) (domain.Verification, error) {
	vctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	verification, err := s.verifier.Verify(vctx, recipientRef)
	if err != nil {
		return domain.Verification{}, dErrors.Wrap(dErrors.CodeCollaboratorUnavailable, "recipient verifier unavailable", err)
	}
	return verification, nil
}

func (s *Service) balance(ctx context.Context, ownerRef string) (balanceReading, error) {
	bctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	balance, err := s.balances.Balance(bctx, ownerRef)
	if err != nil {
		return balanceReading{}, dErrors.Wrap(dErrors.CodeCollaboratorUnavailable, "balance feed unavailable", err)
	}
	return balanceReading{Balance: balance}, nil
}

func (s *Service) score(ctx context.Context, features domain.FeatureSnapshot) (domain.RiskScore, error) {
	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	score, err := s.scorer.Score(sctx, features)
	if err != nil {
		return domain.RiskScore{}, dErrors.Wrap(dErrors.CodeCollaboratorUnavailable, "risk model unavailable", err)
	}
	return score, nil
}

func (s *Service) buildFeatures(ctx context.Context, ownerRef string, intent domain.PaymentIntent, balance balanceReading) (domain.FeatureSnapshot, error) {
	tier, err := s.whitelist.TierFor(ctx, ownerRef, intent.RecipientRef)
	if err != nil {
		return domain.FeatureSnapshot{}, err
	}

	ratio := 0.0
	if balance.Balance.IsPositive() {
		ratio, _ = intent.Amount.Div(balance.Balance).Float64()
	}

	lastPaid, err := s.lastPaymentTo(ctx, ownerRef, intent.RecipientRef)
	if err != nil {
		return domain.FeatureSnapshot{}, err
	}

	return domain.FeatureSnapshot{
		Amount:           intent.Amount,
		Balance:          balance.Balance,
		BalanceRatio:     ratio,
		TrustTier:        tier,
		Recurring:        intent.Schedule.Recurring(),
		LastPaidSameRcpt: lastPaid,
	}, nil
}

// lastPaymentTo reports when the owner last successfully paid this
// recipient, feeding the recency signal.
func (s *Service) lastPaymentTo(ctx context.Context, ownerRef, recipientRef string) (*time.Time, error) {
	records, err := s.payments.ListWhere(ctx, func(p domain.PaymentRecord) bool {
		return p.OwnerRef == ownerRef && p.RecipientRef == recipientRef && p.ExecutionCount > 0
	})
	if err != nil {
		return nil, err
	}
	var latest *time.Time
	for _, rec := range records {
		t := rec.UpdatedAt
		if latest == nil || t.After(*latest) {
			latest = &t
		}
	}
	return latest, nil
}

// apply writes the decision outcome to the ledger and notifies. Only
// APPROVE schedules; everything else records the refusal.
func (s *Service) apply(ctx context.Context, ownerRef, paymentID string, intent domain.PaymentIntent, decision domain.Decision, reason string) (domain.PaymentStatus, error) {
	now := s.now().UTC()

	var status domain.PaymentStatus
	var nextRun *time.Time
	var kind domain.NotificationKind
	switch decision {
	case domain.DecisionApprove:
		status = domain.StatusApprovedScheduled
		next, ok := schedule.NextRun(intent.Schedule, now)
		if !ok {
			return "", dErrors.New(dErrors.CodeValidation, "schedule has no next run")
		}
		nextRun = &next
		kind = domain.NotifyScheduled
	case domain.DecisionNeedsConfirmation:
		status = domain.StatusPendingConfirmation
		kind = domain.NotifyNeedsConfirmation
	case domain.DecisionFlag:
		status = domain.StatusFlagged
		kind = domain.NotifyFlagged
	default:
		status = domain.StatusDenied
		kind = domain.NotifyDenied
	}

	rec, err := s.upsert(ctx, domain.PaymentRecord{
		ID:           paymentID,
		OwnerRef:     ownerRef,
		Amount:       intent.Amount,
		Currency:     currencyOrDefault(intent.Currency),
		RecipientRef: intent.RecipientRef,
		Schedule:     intent.Schedule,
		Status:       status,
		NextRunAt:    nextRun,
	})
	if err != nil {
		return "", err
	}

	s.notifier.Notify(ctx, domain.Notification{
		OwnerRef:  ownerRef,
		Channel:   domain.ChannelOwner,
		Kind:      kind,
		PaymentID: rec.ID,
		Message:   reason,
		At:        now,
	})
	if decision == domain.DecisionFlag {
		s.notifier.Notify(ctx, domain.Notification{
			OwnerRef:  ownerRef,
			Channel:   domain.ChannelOperator,
			Kind:      domain.NotifyFlagged,
			PaymentID: rec.ID,
			Message:   "manual review required: " + reason,
			At:        now,
		})
	}
	return rec.Status, nil
}

// upsert creates the record or, on resubmission, rewrites the gate-owned
// fields of an existing pre-execution record.
func (s *Service) upsert(ctx context.Context, rec domain.PaymentRecord) (domain.PaymentRecord, error) {
	updated, err := s.payments.UpdateByID(ctx, rec.ID, func(p *domain.PaymentRecord) error {
		switch p.Status {
		case domain.StatusPendingConfirmation, domain.StatusFlagged, domain.StatusDenied:
		default:
			return dErrors.New(dErrors.CodeConflict,
				fmt.Sprintf("payment in status %s cannot be re-evaluated", p.Status))
		}
		p.Amount = rec.Amount
		p.Currency = rec.Currency
		p.RecipientRef = rec.RecipientRef
		p.Schedule = rec.Schedule
		p.Status = rec.Status
		p.NextRunAt = rec.NextRunAt
		p.Attempts = 0
		p.LastError = ""
		return nil
	})
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, ledger.ErrNotFound) {
		return domain.PaymentRecord{}, err
	}
	return s.payments.Create(ctx, rec)
}

func currencyOrDefault(currency string) string {
	if currency == "" {
		return "USDC"
	}
	return currency
}

func newPaymentID() string {
	return "pay-" + uuid.NewString()[:8]
}
