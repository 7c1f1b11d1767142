package domain

import (
	"time"

	"github.com/shopspring/decimal"

	dErrors "arcpay/pkg/domain-errors"
)

// PaymentStatus enumerates the payment lifecycle states.
type PaymentStatus string

const (
	StatusPendingConfirmation PaymentStatus = "PENDING_CONFIRMATION"
	StatusApprovedScheduled   PaymentStatus = "APPROVED_SCHEDULED"
	StatusFlagged             PaymentStatus = "FLAGGED"
	StatusDenied              PaymentStatus = "DENIED"
	StatusExecuting           PaymentStatus = "EXECUTING"
	StatusCompleted           PaymentStatus = "COMPLETED"
	StatusFailed              PaymentStatus = "FAILED"
	StatusCancelled           PaymentStatus = "CANCELLED"
)

// Valid reports whether the status belongs to the closed enumeration. The
// repositories reject records carrying anything else.
func (s PaymentStatus) Valid() bool {
	switch s {
	case StatusPendingConfirmation, StatusApprovedScheduled, StatusFlagged,
		StatusDenied, StatusExecuting, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// PaymentRecord is one scheduled or one-shot payment. The ledger repository
// owns its lifecycle; the scheduler is the only writer of execution state.
type PaymentRecord struct {
	ID              string          `json:"paymentId"`
	OwnerRef        string          `json:"ownerRef"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	RecipientRef    string          `json:"recipientRef"`
	Schedule        Schedule        `json:"schedule"`
	Status          PaymentStatus   `json:"status"`
	NextRunAt       *time.Time      `json:"nextRunAt,omitempty"`
	ExecutionCount  int             `json:"executionCount"`
	TotalSent       decimal.Decimal `json:"totalSent"`
	Attempts        int             `json:"attempts"`
	LeaseOwner      string          `json:"leaseOwner,omitempty"`
	LeaseExpiresAt  *time.Time      `json:"leaseExpiresAt,omitempty"`
	LastError       string          `json:"lastError,omitempty"`
	ConfirmationRef string          `json:"confirmationRef,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// DueAt reports whether the record is eligible for execution at now: either
// approved with a reached run time, or stuck executing on an expired lease.
func (p PaymentRecord) DueAt(now time.Time) bool {
	switch p.Status {
	case StatusApprovedScheduled:
		return p.NextRunAt != nil && !p.NextRunAt.After(now)
	case StatusExecuting:
		return p.LeaseExpiresAt != nil && !p.LeaseExpiresAt.After(now)
	}
	return false
}

// Cancellable reports whether an explicit cancel is permitted from the
// current state. In-flight executions must complete or fail first.
func (p PaymentRecord) Cancellable() bool {
	return p.Status == StatusApprovedScheduled || p.Status == StatusPendingConfirmation
}

// Validate enforces the closed enumerations and basic field invariants at
// the repository boundary.
func (p PaymentRecord) Validate() error {
	if p.ID == "" {
		return dErrors.New(dErrors.CodeValidation, "payment id is required")
	}
	if p.OwnerRef == "" {
		return dErrors.New(dErrors.CodeValidation, "owner reference is required")
	}
	if p.RecipientRef == "" {
		return dErrors.New(dErrors.CodeValidation, "recipient reference is required")
	}
	if !p.Amount.IsPositive() {
		return dErrors.New(dErrors.CodeValidation, "amount must be positive")
	}
	if !p.Status.Valid() {
		return dErrors.New(dErrors.CodeValidation, "unknown payment status "+string(p.Status))
	}
	if err := p.Schedule.Validate(); err != nil {
		return err
	}
	return nil
}
