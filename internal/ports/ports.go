// Package ports declares the external collaborator contracts the
// orchestration core consumes. Implementations live outside the core
// (model-backed scorers, custodial payment APIs, ledger feeds); the core
// only ever sees these interfaces, so tests can substitute them freely.
package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"arcpay/internal/domain"
)

//go:generate mockgen -source=ports.go -destination=mocks/ports_mock.go -package=mocks

// RiskScorer is the opaque risk model. A failure here means the gate fails
// closed; it never assumes a favorable score.
type RiskScorer interface {
	Score(ctx context.Context, snapshot domain.FeatureSnapshot) (domain.RiskScore, error)
}

// RecipientVerifier answers whether a resolved recipient reference is
// payable. An ambiguous answer flags rather than denies.
type RecipientVerifier interface {
	Verify(ctx context.Context, recipientRef string) (domain.Verification, error)
}

// BalanceFeed reports the owner's current balance. Readings may be stale;
// callers re-check close to execution time.
type BalanceFeed interface {
	Balance(ctx context.Context, ownerRef string) (decimal.Decimal, error)
}

// Executor requests the actual funds transfer from the external payment
// service. The core records the outcome; it never settles funds itself.
type Executor interface {
	Execute(ctx context.Context, recipientRef string, amount decimal.Decimal) (domain.ExecutionReceipt, error)
}

// IntentClassifier turns free text into a structured payment intent.
type IntentClassifier interface {
	Classify(ctx context.Context, text string) (domain.PaymentIntent, error)
}

// Notifier delivers events to the owner or operator channel. Fire and
// forget: implementations log failures and never block the caller.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification)
}
