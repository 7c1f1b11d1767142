package domain

import "time"

// NotificationKind labels what happened to a payment.
type NotificationKind string

const (
	NotifyScheduled         NotificationKind = "payment_scheduled"
	NotifyNeedsConfirmation NotificationKind = "payment_needs_confirmation"
	NotifyDenied            NotificationKind = "payment_denied"
	NotifyFlagged           NotificationKind = "payment_flagged"
	NotifyExecuted          NotificationKind = "payment_executed"
	NotifyFailed            NotificationKind = "payment_failed"
	NotifyCancelled         NotificationKind = "payment_cancelled"
)

// NotificationChannel routes an event to the owner or the operator desk.
type NotificationChannel string

const (
	ChannelOwner    NotificationChannel = "owner"
	ChannelOperator NotificationChannel = "operator"
)

// Notification is a fire-and-forget event for the notification sink.
// Delivery failure is logged by the sink, never surfaced to the caller.
type Notification struct {
	OwnerRef  string              `json:"ownerRef"`
	Channel   NotificationChannel `json:"channel"`
	Kind      NotificationKind    `json:"kind"`
	PaymentID string              `json:"paymentId,omitempty"`
	Message   string              `json:"message"`
	At        time.Time           `json:"at"`
}

// ExecutionReceipt is returned by the execution collaborator on success.
type ExecutionReceipt struct {
	ConfirmationRef string `json:"confirmationRef"`
}
