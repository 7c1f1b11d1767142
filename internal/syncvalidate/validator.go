// Package syncvalidate audits ledger/risk-log consistency. It is read
// only: repairing a violation would mean re-deciding risk retroactively,
// so drift is reported loudly instead of corrected silently.
package syncvalidate

import (
	"context"
	"fmt"
	"log/slog"

	"arcpay/internal/domain"
	"arcpay/internal/ledger"
	"arcpay/internal/platform/metrics"
	"arcpay/internal/ports"
	"arcpay/internal/risklog"
)

// ViolationKind labels the class of drift found.
type ViolationKind string

const (
	// MissingApproval: a payment reached a scheduled/executed state with no
	// approving risk assessment on record.
	MissingApproval ViolationKind = "missing_approval"
	// ExecutedDespiteDecision: money moved although the latest assessment
	// did not approve.
	ExecutedDespiteDecision ViolationKind = "executed_despite_decision"
)

// Violation is one reported inconsistency.
type Violation struct {
	Kind      ViolationKind `json:"kind"`
	PaymentID string        `json:"paymentId"`
	Detail    string        `json:"detail"`
}

type Validator struct {
	payments    *ledger.Repository
	assessments risklog.Log
	notifier    ports.Notifier
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

func New(payments *ledger.Repository, assessments risklog.Log, notifier ports.Notifier, logger *slog.Logger, m *metrics.Metrics) *Validator {
	return &Validator{
		payments:    payments,
		assessments: assessments,
		notifier:    notifier,
		logger:      logger,
		metrics:     m,
	}
}

// Run cross-references every money-moving payment against the risk log.
// Any payment that is, or has been, scheduled or executed must have at
// least one assessment with decision APPROVE.
func (v *Validator) Run(ctx context.Context) ([]Violation, error) {
	assessments, err := v.assessments.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	byPayment := make(map[string][]domain.RiskAssessment, len(assessments))
	for _, a := range assessments {
		byPayment[a.PaymentID] = append(byPayment[a.PaymentID], a)
	}

	records, err := v.payments.ListWhere(ctx, func(domain.PaymentRecord) bool { return true })
	if err != nil {
		return nil, err
	}

	var violations []Violation
	for _, rec := range records {
		if !moneyMoving(rec) {
			continue
		}
		recAssessments := byPayment[rec.ID]
		if !hasApproval(recAssessments) {
			violations = append(violations, Violation{
				Kind:      MissingApproval,
				PaymentID: rec.ID,
				Detail:    fmt.Sprintf("status %s with no approving risk assessment", rec.Status),
			})
		}
		if rec.ExecutionCount > 0 {
			if latest, ok := latestDecision(recAssessments); ok && latest != domain.DecisionApprove {
				violations = append(violations, Violation{
					Kind:      ExecutedDespiteDecision,
					PaymentID: rec.ID,
					Detail:    fmt.Sprintf("executed %d time(s) while latest decision is %s", rec.ExecutionCount, latest),
				})
			}
		}
	}

	v.metrics.SyncViolations.Set(float64(len(violations)))
	if len(violations) > 0 {
		v.logger.ErrorContext(ctx, "sync validation found drift", "violations", len(violations))
		v.notifier.Notify(ctx, domain.Notification{
			Channel: domain.ChannelOperator,
			Kind:    domain.NotifyFlagged,
			Message: fmt.Sprintf("sync validator found %d violation(s)", len(violations)),
		})
	}
	return violations, nil
}

// moneyMoving reports whether the record is, or has been, in a state that
// moves funds. Completed and terminal-failed records that executed at
// least once still require an approval trail.
func moneyMoving(rec domain.PaymentRecord) bool {
	switch rec.Status {
	case domain.StatusApprovedScheduled, domain.StatusExecuting, domain.StatusCompleted:
		return true
	}
	return rec.ExecutionCount > 0
}

func hasApproval(assessments []domain.RiskAssessment) bool {
	for _, a := range assessments {
		if a.Decision == domain.DecisionApprove {
			return true
		}
	}
	return false
}

func latestDecision(assessments []domain.RiskAssessment) (domain.Decision, bool) {
	if len(assessments) == 0 {
		return "", false
	}
	latest := assessments[0]
	for _, a := range assessments[1:] {
		if a.CreatedAt.After(latest.CreatedAt) {
			latest = a
		}
	}
	return latest.Decision, true
}
