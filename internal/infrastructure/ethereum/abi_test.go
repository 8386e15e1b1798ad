package ethereum

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bimakw/vault-gateway/internal/domain/sequencer"
)

const (
	testLending = "0x1111111111111111111111111111111111111111"
	testToken   = "0x55d398326f99059fF775485246999027B3197955"
	testWallet  = "0x2222222222222222222222222222222222222222"
)

func TestFunctionSelectors(t *testing.T) {
	tests := []struct {
		method   string
		selector []byte
		expected string
	}{
		{"name", ERC20ABI.Methods["name"].ID, "06fdde03"},
		{"symbol", ERC20ABI.Methods["symbol"].ID, "95d89b41"},
		{"decimals", ERC20ABI.Methods["decimals"].ID, "313ce567"},
		{"approve", ERC20ABI.Methods["approve"].ID, "095ea7b3"},
		{"allowance", ERC20ABI.Methods["allowance"].ID, "dd62ed3e"},
		{"balanceOf", ERC20ABI.Methods["balanceOf"].ID, "70a08231"},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			if got := hex.EncodeToString(tt.selector); got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestPackCall(t *testing.T) {
	amount := big.NewInt(1_000_000)

	tests := []struct {
		name       string
		call       *sequencer.Call
		wantTarget string
		wantMethod string
	}{
		{
			name:       "approve",
			call:       &sequencer.Call{Method: sequencer.MethodApprove, Target: testToken, Token: testToken, Spender: testLending, Amount: amount},
			wantTarget: testToken,
			wantMethod: "approve",
		},
		{
			name:       "stake",
			call:       &sequencer.Call{Method: sequencer.MethodStakeToken, Target: testLending, Token: testToken, Amount: amount},
			wantTarget: testLending,
			wantMethod: "stakeToken",
		},
		{
			name:       "unstake",
			call:       &sequencer.Call{Method: sequencer.MethodUnStakeToken, Target: testLending, Token: testToken, Amount: amount},
			wantTarget: testLending,
			wantMethod: "unStakeToken",
		},
		{
			name:       "repay",
			call:       &sequencer.Call{Method: sequencer.MethodRepayAll, Target: testLending, Token: testToken},
			wantTarget: testLending,
			wantMethod: "repayAll",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, data, err := PackCall(tt.call)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if target != common.HexToAddress(tt.wantTarget) {
				t.Errorf("expected target %s, got %s", tt.wantTarget, target.Hex())
			}
			if got := methodName(data[:4]); got != tt.wantMethod {
				t.Errorf("expected method %s, got %s", tt.wantMethod, got)
			}
		})
	}
}

func TestPackCall_ApproveMaxAmount(t *testing.T) {
	call := &sequencer.Call{
		Method:  sequencer.MethodApprove,
		Target:  testToken,
		Token:   testToken,
		Spender: testLending,
		Amount:  sequencer.MaxUint256(),
	}

	_, data, err := PackCall(call)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	args, err := ERC20ABI.Methods["approve"].Inputs.Unpack(data[4:])
	if err != nil {
		t.Fatalf("failed to unpack: %v", err)
	}
	if args[1].(*big.Int).Cmp(sequencer.MaxUint256()) != 0 {
		t.Errorf("expected max uint256 approval, got %s", args[1])
	}
}

func TestPackCall_Invalid(t *testing.T) {
	tests := []struct {
		name string
		call *sequencer.Call
	}{
		{"nil", nil},
		{"bad target", &sequencer.Call{Method: sequencer.MethodRepayAll, Target: "0x12", Token: testToken}},
		{"bad spender", &sequencer.Call{Method: sequencer.MethodApprove, Target: testToken, Token: testToken, Spender: ""}},
		{"unknown method", &sequencer.Call{Method: "borrow", Target: testLending, Token: testToken}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := PackCall(tt.call); err == nil {
				t.Error("expected error")
			}
		})
	}
}
