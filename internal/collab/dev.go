// Package collab holds development implementations of the collaborator
// ports. Production deployments replace these with adapters for the real
// risk model, custodial API and ledger feed; the core never knows the
// difference.
package collab

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"arcpay/internal/domain"
	"arcpay/internal/ports"
	dErrors "arcpay/pkg/domain-errors"
)

// HeuristicScorer grades a snapshot without a model: large transfers
// relative to balance, unknown recipients and recurring commitments push
// the score up.
type HeuristicScorer struct{}

var _ ports.RiskScorer = (*HeuristicScorer)(nil)

func (HeuristicScorer) Score(_ context.Context, snapshot domain.FeatureSnapshot) (domain.RiskScore, error) {
	score := 0.1
	reasons := []string{"baseline"}

	if snapshot.BalanceRatio > 1 {
		score += 0.6
		reasons = append(reasons, "amount exceeds balance")
	} else if snapshot.BalanceRatio > 0.5 {
		score += 0.3
		reasons = append(reasons, "amount above half of balance")
	}
	switch snapshot.TrustTier {
	case domain.TierUnknown:
		score += 0.3
		reasons = append(reasons, "recipient not whitelisted")
	case domain.TierKnown:
		score += 0.1
		reasons = append(reasons, "recipient known indirectly")
	}
	if snapshot.Recurring {
		score += 0.1
		reasons = append(reasons, "recurring commitment")
	}
	if snapshot.LastPaidSameRcpt != nil {
		score -= 0.1
		reasons = append(reasons, "previously paid recipient")
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return domain.RiskScore{Score: score, Rationale: strings.Join(reasons, "; ")}, nil
}

// StaticVerifier accepts any non-empty reference with a known prefix and
// reports everything else as ambiguous rather than failed.
type StaticVerifier struct{}

var _ ports.RecipientVerifier = (*StaticVerifier)(nil)

func (StaticVerifier) Verify(_ context.Context, recipientRef string) (domain.Verification, error) {
	if recipientRef == "" {
		return domain.Verification{Status: domain.VerificationFailed, Reason: "empty reference"}, nil
	}
	return domain.Verification{Status: domain.VerificationOK}, nil
}

// MemoryBalanceFeed serves balances from an in-process table. Useful for
// demos and tests; not a ledger.
type MemoryBalanceFeed struct {
	mu       sync.RWMutex
	balances map[string]decimal.Decimal
}

var _ ports.BalanceFeed = (*MemoryBalanceFeed)(nil)

func NewMemoryBalanceFeed() *MemoryBalanceFeed {
	return &MemoryBalanceFeed{balances: make(map[string]decimal.Decimal)}
}

func (f *MemoryBalanceFeed) Set(ownerRef string, balance decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[ownerRef] = balance
}

func (f *MemoryBalanceFeed) Balance(_ context.Context, ownerRef string) (decimal.Decimal, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.balances[ownerRef], nil
}

// EchoExecutor fabricates a confirmation reference without moving funds.
type EchoExecutor struct {
	delay time.Duration
}

var _ ports.Executor = (*EchoExecutor)(nil)

func NewEchoExecutor(delay time.Duration) *EchoExecutor {
	return &EchoExecutor{delay: delay}
}

func (e *EchoExecutor) Execute(ctx context.Context, _ string, _ decimal.Decimal) (domain.ExecutionReceipt, error) {
	if e.delay > 0 {
		select {
		case <-ctx.Done():
			return domain.ExecutionReceipt{}, ctx.Err()
		case <-time.After(e.delay):
		}
	}
	return domain.ExecutionReceipt{ConfirmationRef: "tx-" + uuid.NewString()[:8]}, nil
}

var payPattern = regexp.MustCompile(`(?i)^\s*(?:pay|send)\s+(\d+(?:\.\d+)?)\s+to\s+(\S+)(?:\s+every\s+(\w+))?\s*$`)

// RegexClassifier handles the narrow "pay N to R [every X]" phrasing so
// the text endpoint works without a model wired in.
type RegexClassifier struct{}

var _ ports.IntentClassifier = (*RegexClassifier)(nil)

func (RegexClassifier) Classify(_ context.Context, text string) (domain.PaymentIntent, error) {
	m := payPattern.FindStringSubmatch(text)
	if m == nil {
		return domain.PaymentIntent{}, dErrors.New(dErrors.CodeValidation, "ambiguous intent")
	}
	amount, err := decimal.NewFromString(m[1])
	if err != nil {
		return domain.PaymentIntent{}, dErrors.New(dErrors.CodeValidation, "ambiguous intent")
	}
	intent := domain.PaymentIntent{
		Amount:       amount,
		RecipientRef: m[2],
		Schedule:     domain.Once(),
		Confidence:   0.5,
	}
	if m[3] != "" {
		day, ok := weekdays[strings.ToLower(m[3])]
		if !ok {
			return domain.PaymentIntent{}, dErrors.New(dErrors.CodeValidation, "unrecognized schedule phrase")
		}
		intent.Schedule = domain.Weekly(day)
	}
	return intent, nil
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}
