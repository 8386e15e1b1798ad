package ethereum

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/bimakw/vault-gateway/internal/domain/entities"
	"github.com/bimakw/vault-gateway/internal/domain/repositories"
)

// ContractCaller is the read side of the node used by LendingReader
type ContractCaller interface {
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	BatchCall(ctx context.Context, elems []rpc.BatchElem) error
}

// Ensure LendingReader implements repositories.LendingReader
var _ repositories.LendingReader = (*LendingReader)(nil)

// LendingReader reads positions, pool shares and ERC-20 state
type LendingReader struct {
	caller  ContractCaller
	lending common.Address
	logger  *zap.Logger
}

// NewLendingReader creates a reader for the lending contract at lendingAddress
func NewLendingReader(caller ContractCaller, lendingAddress string, logger *zap.Logger) *LendingReader {
	return &LendingReader{
		caller:  caller,
		lending: common.HexToAddress(lendingAddress),
		logger:  logger,
	}
}

// ethCallArg mirrors the eth_call transaction object
type ethCallArg struct {
	To   string `json:"to"`
	Data string `json:"data"`
}

type readCall struct {
	contract *abi.ABI
	method   string
	target   common.Address
	args     []interface{}
}

// Snapshot reads everything the sequencer needs in one JSON-RPC batch
func (r *LendingReader) Snapshot(ctx context.Context, wallet string, token *entities.Token) (*entities.ChainSnapshot, error) {
	if !common.IsHexAddress(wallet) {
		return nil, fmt.Errorf("invalid wallet address %q", wallet)
	}
	if token == nil || !common.IsHexAddress(token.Address) {
		return nil, fmt.Errorf("invalid token")
	}

	user := common.HexToAddress(wallet)
	tok := common.HexToAddress(token.Address)

	calls := []readCall{
		{VaultABI, "getUserPosition", r.lending, []interface{}{user, tok}},
		{VaultABI, "userStakeTokenShare", r.lending, []interface{}{user, tok}},
		{VaultABI, "stakingReserve", r.lending, []interface{}{tok}},
		{VaultABI, "stakeTokenShareTotalSupply", r.lending, []interface{}{tok}},
		{ERC20ABI, "allowance", tok, []interface{}{user, r.lending}},
		{ERC20ABI, "balanceOf", tok, []interface{}{user}},
	}

	results, errs, err := r.batch(ctx, calls)
	if err != nil {
		return nil, err
	}

	snap := &entities.ChainSnapshot{
		WalletAddress: wallet,
		TokenAddress:  token.Address,
	}

	if errs[0] == nil {
		snap.Position, snap.PositionErr = decodePosition(results[0])
	} else {
		snap.PositionErr = errs[0]
	}

	pool := &entities.PoolShareState{}
	for i, dst := range []**big.Int{&pool.UserShare, &pool.TotalReserve, &pool.TotalSupply} {
		idx := i + 1
		if errs[idx] != nil {
			snap.PoolErr = errs[idx]
			break
		}
		v, err := unpackUint(VaultABI, calls[idx].method, results[idx])
		if err != nil {
			snap.PoolErr = err
			break
		}
		*dst = v
	}
	if snap.PoolErr == nil {
		snap.Pool = pool
	}

	if errs[4] == nil {
		snap.Allowance, snap.AllowanceErr = unpackUint(ERC20ABI, "allowance", results[4])
	} else {
		snap.AllowanceErr = errs[4]
	}

	if errs[5] == nil {
		snap.Balance, snap.BalanceErr = unpackUint(ERC20ABI, "balanceOf", results[5])
	} else {
		snap.BalanceErr = errs[5]
	}

	return snap, nil
}

// batch packs and sends calls together. The returned error covers transport
// failure only; per-call failures land in errs.
func (r *LendingReader) batch(ctx context.Context, calls []readCall) ([][]byte, []error, error) {
	elems := make([]rpc.BatchElem, len(calls))
	hexResults := make([]hexutil.Bytes, len(calls))

	for i, call := range calls {
		data, err := call.contract.Pack(call.method, call.args...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to pack %s: %w", call.method, err)
		}
		elems[i] = rpc.BatchElem{
			Method: "eth_call",
			Args: []interface{}{
				ethCallArg{
					To:   call.target.Hex(),
					Data: "0x" + hex.EncodeToString(data),
				},
				"latest",
			},
			Result: &hexResults[i],
		}
	}

	if err := r.caller.BatchCall(ctx, elems); err != nil {
		return nil, nil, fmt.Errorf("batch eth_call failed: %w", err)
	}

	results := make([][]byte, len(calls))
	errs := make([]error, len(calls))
	for i, elem := range elems {
		if elem.Error != nil {
			r.logger.Debug("Batched read failed",
				zap.String("method", calls[i].method),
				zap.Error(elem.Error),
			)
			errs[i] = fmt.Errorf("%s: %w", calls[i].method, elem.Error)
			continue
		}
		results[i] = hexResults[i]
	}
	return results, errs, nil
}

// Position returns the raw position tuple
func (r *LendingReader) Position(ctx context.Context, wallet, token string) (*entities.RawPosition, error) {
	data, err := r.call(ctx, VaultABI, "getUserPosition", r.lending, common.HexToAddress(wallet), common.HexToAddress(token))
	if err != nil {
		return nil, err
	}
	return decodePosition(data)
}

// PoolShare returns the user share and pool totals
func (r *LendingReader) PoolShare(ctx context.Context, wallet, token string) (*entities.PoolShareState, error) {
	user := common.HexToAddress(wallet)
	tok := common.HexToAddress(token)

	results, errs, err := r.batch(ctx, []readCall{
		{VaultABI, "userStakeTokenShare", r.lending, []interface{}{user, tok}},
		{VaultABI, "stakingReserve", r.lending, []interface{}{tok}},
		{VaultABI, "stakeTokenShareTotalSupply", r.lending, []interface{}{tok}},
	})
	if err != nil {
		return nil, err
	}

	methods := []string{"userStakeTokenShare", "stakingReserve", "stakeTokenShareTotalSupply"}
	values := make([]*big.Int, len(methods))
	for i, method := range methods {
		if errs[i] != nil {
			return nil, errs[i]
		}
		if values[i], err = unpackUint(VaultABI, method, results[i]); err != nil {
			return nil, err
		}
	}

	return &entities.PoolShareState{
		UserShare:    values[0],
		TotalReserve: values[1],
		TotalSupply:  values[2],
	}, nil
}

// Allowance returns the allowance granted by wallet to the lending contract
func (r *LendingReader) Allowance(ctx context.Context, wallet, token string) (*big.Int, error) {
	data, err := r.call(ctx, ERC20ABI, "allowance", common.HexToAddress(token), common.HexToAddress(wallet), r.lending)
	if err != nil {
		return nil, err
	}
	return unpackUint(ERC20ABI, "allowance", data)
}

// Balance returns the token balance of wallet
func (r *LendingReader) Balance(ctx context.Context, wallet, token string) (*big.Int, error) {
	data, err := r.call(ctx, ERC20ABI, "balanceOf", common.HexToAddress(token), common.HexToAddress(wallet))
	if err != nil {
		return nil, err
	}
	return unpackUint(ERC20ABI, "balanceOf", data)
}

func (r *LendingReader) call(ctx context.Context, contract *abi.ABI, method string, target common.Address, args ...interface{}) ([]byte, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	out, err := r.caller.CallContract(ctx, target, data)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}
	return out, nil
}

func decodePosition(data []byte) (*entities.RawPosition, error) {
	out, err := VaultABI.Unpack("getUserPosition", data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack getUserPosition: %w", err)
	}
	if len(out) != 6 {
		return nil, fmt.Errorf("unexpected position tuple length %d", len(out))
	}

	values := make([]*big.Int, len(out))
	for i, v := range out {
		b, ok := v.(*big.Int)
		if !ok {
			return nil, fmt.Errorf("unexpected position field %d type %T", i, v)
		}
		values[i] = b
	}
	return entities.NewRawPosition(values...), nil
}
