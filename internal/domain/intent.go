package domain

import (
	"github.com/shopspring/decimal"

	dErrors "arcpay/pkg/domain-errors"
)

// PaymentIntent is the structured representation of a confirmed payment
// request, either built by a caller or produced by the intent classifier.
type PaymentIntent struct {
	// PaymentID is set when resubmitting a pending-confirmation payment.
	PaymentID    string          `json:"paymentId,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency,omitempty"`
	RecipientRef string          `json:"recipientRef"`
	Schedule     Schedule        `json:"schedule"`
	// Confirmed marks an explicit owner confirmation; required before a
	// medium-risk intent can be approved.
	Confirmed bool `json:"confirmed,omitempty"`
	// Confidence is reported by the classifier for text submissions.
	Confidence float64 `json:"confidence,omitempty"`
}

// Validate checks the intent before any collaborator is consulted.
func (i PaymentIntent) Validate() error {
	if i.RecipientRef == "" {
		return dErrors.New(dErrors.CodeInvalidRecipient, "recipient reference is required")
	}
	if !i.Amount.IsPositive() {
		return dErrors.New(dErrors.CodeValidation, "amount must be positive")
	}
	return i.Schedule.Validate()
}
