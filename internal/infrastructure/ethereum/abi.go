package ethereum

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/bimakw/vault-gateway/internal/domain/sequencer"
)

const vaultABIJSON = `[
	{"type":"function","name":"getUserPosition","stateMutability":"view",
	 "inputs":[{"name":"user","type":"address"},{"name":"token","type":"address"}],
	 "outputs":[
		{"name":"userEthAmount","type":"uint256"},
		{"name":"userStakeTokenAmount","type":"uint256"},
		{"name":"userBorrowedTokenAmount","type":"uint256"},
		{"name":"healthFactor","type":"uint256"},
		{"name":"price","type":"uint256"},
		{"name":"liquidatedPrice","type":"uint256"}]},
	{"type":"function","name":"userStakeTokenShare","stateMutability":"view",
	 "inputs":[{"name":"user","type":"address"},{"name":"token","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"stakingReserve","stateMutability":"view",
	 "inputs":[{"name":"token","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"stakeTokenShareTotalSupply","stateMutability":"view",
	 "inputs":[{"name":"token","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"stakeToken","stateMutability":"nonpayable",
	 "inputs":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[]},
	{"type":"function","name":"unStakeToken","stateMutability":"nonpayable",
	 "inputs":[{"name":"token","type":"address"},{"name":"share","type":"uint256"}],
	 "outputs":[]},
	{"type":"function","name":"repayAll","stateMutability":"nonpayable",
	 "inputs":[{"name":"token","type":"address"}],
	 "outputs":[]}
]`

const erc20ABIJSON = `[
	{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view",
	 "inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"allowance","stateMutability":"view",
	 "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable",
	 "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]}
]`

var (
	// VaultABI is the lending contract interface
	VaultABI = mustParseABI(vaultABIJSON)
	// ERC20ABI is the subset of ERC-20 the gateway uses
	ERC20ABI = mustParseABI(erc20ABIJSON)
)

// ParseABI parses a JSON ABI definition
func ParseABI(abiJSON string) (*abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func mustParseABI(abiJSON string) *abi.ABI {
	parsed, err := ParseABI(abiJSON)
	if err != nil {
		panic(fmt.Sprintf("invalid embedded ABI: %v", err))
	}
	return parsed
}

// PackCall encodes a planned call into its target address and calldata
func PackCall(call *sequencer.Call) (common.Address, []byte, error) {
	if call == nil {
		return common.Address{}, nil, fmt.Errorf("nil call")
	}
	if !common.IsHexAddress(call.Target) {
		return common.Address{}, nil, fmt.Errorf("invalid call target %q", call.Target)
	}
	if !common.IsHexAddress(call.Token) {
		return common.Address{}, nil, fmt.Errorf("invalid token address %q", call.Token)
	}

	target := common.HexToAddress(call.Target)
	token := common.HexToAddress(call.Token)

	var (
		data []byte
		err  error
	)
	switch call.Method {
	case sequencer.MethodApprove:
		if !common.IsHexAddress(call.Spender) {
			return common.Address{}, nil, fmt.Errorf("invalid spender %q", call.Spender)
		}
		data, err = ERC20ABI.Pack("approve", common.HexToAddress(call.Spender), amountOrZero(call.Amount))
	case sequencer.MethodStakeToken:
		data, err = VaultABI.Pack("stakeToken", token, amountOrZero(call.Amount))
	case sequencer.MethodUnStakeToken:
		data, err = VaultABI.Pack("unStakeToken", token, amountOrZero(call.Amount))
	case sequencer.MethodRepayAll:
		data, err = VaultABI.Pack("repayAll", token)
	default:
		return common.Address{}, nil, fmt.Errorf("unsupported call method %q", call.Method)
	}
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("failed to pack %s: %w", call.Method, err)
	}
	return target, data, nil
}

// unpackUint decodes a single uint256 return value
func unpackUint(contract *abi.ABI, method string, data []byte) (*big.Int, error) {
	out, err := contract.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("unexpected %s output count %d", method, len(out))
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected %s output type %T", method, out[0])
	}
	return v, nil
}

func amountOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
