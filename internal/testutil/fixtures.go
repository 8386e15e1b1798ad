package testutil

import (
	"math/big"
	"time"

	"github.com/bimakw/vault-gateway/internal/domain/entities"
)

// Common test addresses
const (
	USDTAddress    = "0x55d398326f99059ff775485246999027b3197955"
	USDCAddress    = "0x8ac76a51cc950d9822d68b83fe1ad97b32cd580d"
	LendingAddress = "0x9999999999999999999999999999999999999999"
	AliceAddress   = "0x1111111111111111111111111111111111111111"
	BobAddress     = "0x2222222222222222222222222222222222222222"
)

// Units returns amount whole tokens in base units
func Units(amount int64, decimals uint8) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return new(big.Int).Mul(big.NewInt(amount), scale)
}

// CreateTestToken creates a test token with default values
func CreateTestToken(opts ...TokenOption) *entities.Token {
	t := &entities.Token{
		Address:  USDTAddress,
		Name:     "Tether USD",
		Symbol:   "USDT",
		Decimals: 18,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

type TokenOption func(*entities.Token)

func TokenWithAddress(addr string) TokenOption {
	return func(t *entities.Token) {
		t.Address = addr
	}
}

func TokenWithName(name string) TokenOption {
	return func(t *entities.Token) {
		t.Name = name
	}
}

func TokenWithSymbol(symbol string) TokenOption {
	return func(t *entities.Token) {
		t.Symbol = symbol
	}
}

func TokenWithDecimals(dec uint8) TokenOption {
	return func(t *entities.Token) {
		t.Decimals = dec
	}
}

// CreateTestIntent creates an intent awaiting confirmation
func CreateTestIntent(opts ...IntentOption) entities.TransactionIntent {
	hash := "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	created := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	i := entities.TransactionIntent{
		ID:            "6f1c2a5e-8d3b-4c7a-9e21-0b5d4f3a2c10",
		WalletAddress: AliceAddress,
		TokenAddress:  USDTAddress,
		Action:        entities.ActionStake,
		Kind:          entities.IntentStake,
		Amount:        "1000000000000000000",
		Status:        entities.StatusAwaitingConfirmation,
		TxHash:        &hash,
		CreatedAt:     created,
		UpdatedAt:     created,
	}

	for _, opt := range opts {
		opt(&i)
	}

	return i
}

type IntentOption func(*entities.TransactionIntent)

func IntentWithID(id string) IntentOption {
	return func(i *entities.TransactionIntent) {
		i.ID = id
	}
}

func IntentWithWallet(wallet string) IntentOption {
	return func(i *entities.TransactionIntent) {
		i.WalletAddress = wallet
	}
}

func IntentWithKind(action entities.ActionKind, kind entities.IntentKind) IntentOption {
	return func(i *entities.TransactionIntent) {
		i.Action = action
		i.Kind = kind
	}
}

func IntentWithStatus(status entities.IntentStatus) IntentOption {
	return func(i *entities.TransactionIntent) {
		i.Status = status
	}
}

// IntentWithTxHash sets the hash; an empty hash clears it
func IntentWithTxHash(hash string) IntentOption {
	return func(i *entities.TransactionIntent) {
		if hash == "" {
			i.TxHash = nil
			return
		}
		i.TxHash = &hash
	}
}

func IntentCreatedAt(ts time.Time) IntentOption {
	return func(i *entities.TransactionIntent) {
		i.CreatedAt = ts
		i.UpdatedAt = ts
	}
}

// CreateTestSnapshot creates a snapshot with an absent position, an empty
// pool and zero allowance and balance
func CreateTestSnapshot(wallet string, token *entities.Token, opts ...SnapshotOption) *entities.ChainSnapshot {
	s := &entities.ChainSnapshot{
		WalletAddress: wallet,
		TokenAddress:  token.Address,
		Position:      entities.NewRawPosition(),
		Pool: &entities.PoolShareState{
			UserShare:    new(big.Int),
			TotalReserve: new(big.Int),
			TotalSupply:  new(big.Int),
		},
		Allowance: new(big.Int),
		Balance:   new(big.Int),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

type SnapshotOption func(*entities.ChainSnapshot)

// SnapshotWithPosition sets the raw position tuple in contract order
func SnapshotWithPosition(values ...*big.Int) SnapshotOption {
	return func(s *entities.ChainSnapshot) {
		s.Position = entities.NewRawPosition(values...)
	}
}

func SnapshotWithPool(share, reserve, supply *big.Int) SnapshotOption {
	return func(s *entities.ChainSnapshot) {
		s.Pool = &entities.PoolShareState{
			UserShare:    share,
			TotalReserve: reserve,
			TotalSupply:  supply,
		}
	}
}

func SnapshotWithAllowance(allowance *big.Int) SnapshotOption {
	return func(s *entities.ChainSnapshot) {
		s.Allowance = allowance
	}
}

func SnapshotWithBalance(balance *big.Int) SnapshotOption {
	return func(s *entities.ChainSnapshot) {
		s.Balance = balance
	}
}

// SnapshotWithPoolError makes the pool reads fail
func SnapshotWithPoolError(err error) SnapshotOption {
	return func(s *entities.ChainSnapshot) {
		s.Pool = nil
		s.PoolErr = err
	}
}
