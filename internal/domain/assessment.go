package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RiskLevel buckets a raw risk score via the configured thresholds.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Decision is the gate's verdict on an intent.
type Decision string

const (
	DecisionApprove           Decision = "APPROVE"
	DecisionDeny              Decision = "DENY"
	DecisionFlag              Decision = "FLAG"
	DecisionNeedsConfirmation Decision = "NEEDS_CONFIRMATION"
)

// TrustTier classifies the recipient relative to the owner's whitelist.
type TrustTier string

const (
	TierTrusted TrustTier = "trusted"
	TierKnown   TrustTier = "known"
	TierUnknown TrustTier = "unknown"
)

// VerificationStatus is the outcome of the recipient-validity check.
type VerificationStatus string

const (
	VerificationOK        VerificationStatus = "verified"
	VerificationFailed    VerificationStatus = "unverified"
	VerificationAmbiguous VerificationStatus = "unknown"
)

// Verification is the recipient verifier collaborator's answer.
type Verification struct {
	Status VerificationStatus `json:"status"`
	Reason string             `json:"reason,omitempty"`
}

// FeatureSnapshot holds the engineered signals handed to the risk scorer.
type FeatureSnapshot struct {
	Amount           decimal.Decimal `json:"amount"`
	Balance          decimal.Decimal `json:"balance"`
	BalanceRatio     float64         `json:"balanceRatio"`
	TrustTier        TrustTier       `json:"trustTier"`
	Recurring        bool            `json:"recurring"`
	LastPaidSameRcpt *time.Time      `json:"lastPaidSameRecipient,omitempty"`
}

// RiskScore is the risk scorer collaborator's answer.
type RiskScore struct {
	Score     float64 `json:"score"`
	Rationale string  `json:"rationale"`
}

// RequestSnapshot preserves the verbatim inputs seen at evaluation time so
// the audit trail stands on its own.
type RequestSnapshot struct {
	OwnerRef     string          `json:"ownerRef"`
	RecipientRef string          `json:"recipientRef"`
	Amount       decimal.Decimal `json:"amount"`
	Balance      decimal.Decimal `json:"balance"`
	Schedule     Schedule        `json:"schedule"`
	Confirmed    bool            `json:"confirmed"`
}

// RiskAssessment is one append-only audit row per risk evaluation. Rows are
// never mutated or deleted; the sync validator consumes them.
type RiskAssessment struct {
	ID           string          `json:"id"`
	PaymentID    string          `json:"paymentId"`
	Request      RequestSnapshot `json:"request"`
	Features     FeatureSnapshot `json:"features"`
	Score        float64         `json:"score"`
	RiskLevel    RiskLevel       `json:"riskLevel"`
	Decision     Decision        `json:"decision"`
	Rationale    string          `json:"rationale"`
	Verification Verification    `json:"verification"`
	CreatedAt    time.Time       `json:"createdAt"`
}
