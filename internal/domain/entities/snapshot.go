package entities

import (
	"math/big"
)

// ChainSnapshot is one batched read of everything the sequencer needs for a
// (wallet, token) pair. Each part carries its own error since batch elements
// resolve independently.
type ChainSnapshot struct {
	WalletAddress string
	TokenAddress  string

	Position    *RawPosition
	PositionErr error

	Pool    *PoolShareState
	PoolErr error

	Allowance    *big.Int
	AllowanceErr error

	Balance    *big.Int
	BalanceErr error
}

// ReceiptStatus is the observed outcome of a mined transaction
type ReceiptStatus string

const (
	ReceiptSuccess ReceiptStatus = "success"
	ReceiptFailure ReceiptStatus = "failure"
)
