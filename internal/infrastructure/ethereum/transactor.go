package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/bimakw/vault-gateway/internal/config"
	"github.com/bimakw/vault-gateway/internal/domain/entities"
	"github.com/bimakw/vault-gateway/internal/domain/repositories"
	"github.com/bimakw/vault-gateway/internal/domain/sequencer"
)

// ErrNoWallet is returned when a write is attempted without a signing key
var ErrNoWallet = errors.New("no wallet configured")

// TxBackend is the subset of the node API needed to sign, send and confirm
// transactions. *ethclient.Client satisfies it.
type TxBackend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Ensure Transactor implements repositories.TransactionSubmitter
var _ repositories.TransactionSubmitter = (*Transactor)(nil)

// Transactor signs lending calls with a local key and tracks their receipts
type Transactor struct {
	backend      TxBackend
	key          *ecdsa.PrivateKey
	from         common.Address
	chainID      *big.Int
	pollInterval time.Duration
	gasMult      float64
	logger       *zap.Logger

	// serializes nonce assignment across concurrent submissions
	mu sync.Mutex
}

// NewTransactor creates a transactor. An empty private key yields a
// read-only transactor whose Submit returns ErrNoWallet.
func NewTransactor(backend TxBackend, chainID *big.Int, walletCfg config.WalletConfig, ethCfg config.EthereumConfig, logger *zap.Logger) (*Transactor, error) {
	t := &Transactor{
		backend:      backend,
		chainID:      chainID,
		pollInterval: ethCfg.ReceiptPollInterval,
		gasMult:      ethCfg.GasLimitMultiplier,
		logger:       logger,
	}
	if t.pollInterval <= 0 {
		t.pollInterval = 3 * time.Second
	}
	if t.gasMult < 1 {
		t.gasMult = 1
	}

	keyHex := strings.TrimPrefix(strings.TrimSpace(walletCfg.PrivateKey), "0x")
	if keyHex == "" {
		logger.Warn("No wallet key configured, transaction submission disabled")
		return t, nil
	}

	key, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid wallet private key: %w", err)
	}
	t.key = key
	t.from = ethcrypto.PubkeyToAddress(key.PublicKey)

	logger.Info("Wallet loaded", zap.String("address", t.from.Hex()))
	return t, nil
}

// Account returns the signing address
func (t *Transactor) Account() (string, bool) {
	if t.key == nil {
		return "", false
	}
	return t.from.Hex(), true
}

// Submit signs and broadcasts call. It does not retry: a failure is final
// for the intent.
func (t *Transactor) Submit(ctx context.Context, call *sequencer.Call) (string, error) {
	if t.key == nil {
		return "", ErrNoWallet
	}

	to, data, err := PackCall(call)
	if err != nil {
		return "", err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// provider errors are returned unwrapped
	nonce, err := t.backend.PendingNonceAt(ctx, t.from)
	if err != nil {
		t.logSubmitError("get nonce", call, err)
		return "", err
	}

	gas, err := t.backend.EstimateGas(ctx, ethereum.CallMsg{From: t.from, To: &to, Data: data})
	if err != nil {
		t.logSubmitError("estimate gas", call, err)
		return "", err
	}
	gas = uint64(float64(gas) * t.gasMult)

	txData, err := t.buildTx(ctx, nonce, to, gas, data)
	if err != nil {
		t.logSubmitError("price transaction", call, err)
		return "", err
	}

	signed, err := types.SignTx(types.NewTx(txData), types.LatestSignerForChainID(t.chainID), t.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := t.backend.SendTransaction(ctx, signed); err != nil {
		t.logSubmitError("send transaction", call, err)
		return "", err
	}

	t.logger.Info("Transaction submitted",
		zap.String("method", string(call.Method)),
		zap.String("tx_hash", signed.Hash().Hex()),
		zap.Uint64("nonce", nonce),
	)
	return signed.Hash().Hex(), nil
}

func (t *Transactor) logSubmitError(step string, call *sequencer.Call, err error) {
	t.logger.Warn("Failed to "+step,
		zap.String("method", string(call.Method)),
		zap.String("token", call.Token),
		zap.Error(err),
	)
}

// buildTx prefers a dynamic-fee transaction and falls back to legacy pricing
// on chains without a base fee
func (t *Transactor) buildTx(ctx context.Context, nonce uint64, to common.Address, gas uint64, data []byte) (types.TxData, error) {
	head, err := t.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, err
	}

	if head != nil && head.BaseFee != nil {
		tip, err := t.backend.SuggestGasTipCap(ctx)
		if err != nil {
			return nil, err
		}
		feeCap := new(big.Int).Mul(head.BaseFee, big.NewInt(2))
		feeCap.Add(feeCap, tip)

		return &types.DynamicFeeTx{
			ChainID:   t.chainID,
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       gas,
			To:        &to,
			Data:      data,
		}, nil
	}

	price, err := t.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}
	return &types.LegacyTx{
		Nonce:    nonce,
		GasPrice: price,
		Gas:      gas,
		To:       &to,
		Data:     data,
	}, nil
}

// ReceiptStatus checks for a receipt once. ok is false while the transaction
// is still pending.
func (t *Transactor) ReceiptStatus(ctx context.Context, txHash string) (entities.ReceiptStatus, bool, error) {
	receipt, err := t.backend.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to fetch receipt: %w", err)
	}
	if receipt == nil {
		return "", false, nil
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return entities.ReceiptFailure, true, nil
	}
	return entities.ReceiptSuccess, true, nil
}

// AwaitReceipt polls until the transaction is mined. There is no deadline
// besides ctx; transient lookup errors are logged and polling continues.
func (t *Transactor) AwaitReceipt(ctx context.Context, txHash string) (entities.ReceiptStatus, error) {
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		status, ok, err := t.ReceiptStatus(ctx, txHash)
		if err != nil {
			t.logger.Warn("Receipt lookup failed", zap.String("tx_hash", txHash), zap.Error(err))
		} else if ok {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}
