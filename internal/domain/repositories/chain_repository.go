package repositories

import (
	"context"
	"math/big"

	"github.com/bimakw/vault-gateway/internal/domain/entities"
	"github.com/bimakw/vault-gateway/internal/domain/sequencer"
)

// LendingReader defines read access to the lending contract and token state
type LendingReader interface {
	// Snapshot reads position, pool share, allowance and balance in one
	// batch. Each part resolves independently and carries its own error.
	Snapshot(ctx context.Context, wallet string, token *entities.Token) (*entities.ChainSnapshot, error)

	// Position returns the raw position tuple for (wallet, token)
	Position(ctx context.Context, wallet, token string) (*entities.RawPosition, error)

	// PoolShare returns the user share and pool totals for (wallet, token)
	PoolShare(ctx context.Context, wallet, token string) (*entities.PoolShareState, error)

	// Allowance returns the ERC-20 allowance granted to the lending contract
	Allowance(ctx context.Context, wallet, token string) (*big.Int, error)

	// Balance returns the wallet's ERC-20 balance
	Balance(ctx context.Context, wallet, token string) (*big.Int, error)
}

// TransactionSubmitter defines write access to the chain
type TransactionSubmitter interface {
	// Account returns the signing address, false when no wallet is configured
	Account() (string, bool)

	// Submit signs and sends the call, returning the transaction hash
	Submit(ctx context.Context, call *sequencer.Call) (string, error)

	// AwaitReceipt blocks until the transaction is mined or ctx is done
	AwaitReceipt(ctx context.Context, txHash string) (entities.ReceiptStatus, error)

	// ReceiptStatus checks once, returning ok=false while still pending
	ReceiptStatus(ctx context.Context, txHash string) (status entities.ReceiptStatus, ok bool, err error)
}

// TokenMetadataFetcher resolves ERC-20 metadata from the chain
type TokenMetadataFetcher interface {
	FetchTokenMetadata(ctx context.Context, address string) (*entities.Token, error)
}
