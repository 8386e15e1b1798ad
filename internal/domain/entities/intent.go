package entities

import (
	"time"
)

// ActionKind is the user-facing action that produced an intent
type ActionKind string

const (
	ActionStake   ActionKind = "stake"
	ActionUnstake ActionKind = "unstake"
	ActionRepay   ActionKind = "repay"
)

// IntentKind is the on-chain transaction an intent submits
type IntentKind string

const (
	IntentApprove IntentKind = "approve"
	IntentStake   IntentKind = "stake"
	IntentUnstake IntentKind = "unstake"
	IntentRepay   IntentKind = "repay"
)

// IntentStatus is the submission lifecycle state
type IntentStatus string

const (
	StatusIdle                 IntentStatus = "idle"
	StatusSubmitting           IntentStatus = "submitting"
	StatusAwaitingConfirmation IntentStatus = "awaiting_confirmation"
	StatusConfirmed            IntentStatus = "confirmed"
	StatusFailed               IntentStatus = "failed"
)

// IsTerminal reports whether no further transition can happen
func (s IntentStatus) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// InFlight reports whether a write is pending for the intent
func (s IntentStatus) InFlight() bool {
	return s == StatusSubmitting || s == StatusAwaitingConfirmation
}

// TransactionIntent describes one user action moving through the sequencer
type TransactionIntent struct {
	ID            string       `db:"id" json:"id"`
	WalletAddress string       `db:"wallet_address" json:"wallet_address"`
	TokenAddress  string       `db:"token_address" json:"token_address"`
	Action        ActionKind   `db:"action" json:"action"`
	Kind          IntentKind   `db:"kind" json:"kind"`
	Amount        string       `db:"amount" json:"amount"` // raw on-chain argument
	Status        IntentStatus `db:"status" json:"status"`
	TxHash        *string      `db:"tx_hash" json:"tx_hash,omitempty"`
	Error         *string      `db:"error" json:"error,omitempty"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
}

// NotificationKind is the severity of a lifecycle notification
type NotificationKind string

const (
	NotifyLoading NotificationKind = "loading"
	NotifySuccess NotificationKind = "success"
	NotifyError   NotificationKind = "error"
)

// Notification is user feedback about an intent
type Notification struct {
	Kind      NotificationKind `json:"kind"`
	Message   string           `json:"message"`
	DedupeKey string           `json:"dedupe_key,omitempty"`
	Wallet    string           `json:"wallet"`
	IntentID  string           `json:"intent_id,omitempty"`
	TxHash    string           `json:"tx_hash,omitempty"`
}
