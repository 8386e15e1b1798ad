package ethereum

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"go.uber.org/zap"

	"github.com/bimakw/vault-gateway/internal/domain/entities"
)

func packUint(t *testing.T, method string, v int64) []byte {
	t.Helper()
	contract := VaultABI
	if _, ok := ERC20ABI.Methods[method]; ok {
		contract = ERC20ABI
	}
	out, err := contract.Methods[method].Outputs.Pack(big.NewInt(v))
	if err != nil {
		t.Fatalf("failed to pack %s: %v", method, err)
	}
	return out
}

func seededNode(t *testing.T) *fakeNode {
	t.Helper()
	node := newFakeNode()

	position, err := VaultABI.Methods["getUserPosition"].Outputs.Pack(
		big.NewInt(3), big.NewInt(0), big.NewInt(1000), big.NewInt(9500), big.NewInt(2), big.NewInt(1),
	)
	if err != nil {
		t.Fatalf("failed to pack position: %v", err)
	}
	node.respond("getUserPosition", position)
	node.respond("userStakeTokenShare", packUint(t, "userStakeTokenShare", 500))
	node.respond("stakingReserve", packUint(t, "stakingReserve", 1000))
	node.respond("stakeTokenShareTotalSupply", packUint(t, "stakeTokenShareTotalSupply", 800))
	node.respond("allowance", packUint(t, "allowance", 42))
	node.respond("balanceOf", packUint(t, "balanceOf", 7))
	return node
}

func TestLendingReader_Snapshot(t *testing.T) {
	node := seededNode(t)
	reader := NewLendingReader(node, testLending, zap.NewNop())

	snap, err := reader.Snapshot(context.Background(), testWallet, &entities.Token{Address: testToken, Decimals: 18})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if snap.PositionErr != nil || snap.PoolErr != nil || snap.AllowanceErr != nil || snap.BalanceErr != nil {
		t.Fatalf("unexpected part errors: %+v", snap)
	}
	if snap.Position.UserBorrowedTokenAmount.Int64() != 1000 || snap.Position.HealthFactor.Int64() != 9500 {
		t.Errorf("unexpected position %+v", snap.Position)
	}
	if snap.Pool.UserShare.Int64() != 500 || snap.Pool.TotalReserve.Int64() != 1000 || snap.Pool.TotalSupply.Int64() != 800 {
		t.Errorf("unexpected pool %+v", snap.Pool)
	}
	if snap.Allowance.Int64() != 42 {
		t.Errorf("unexpected allowance %s", snap.Allowance)
	}
	if snap.Balance.Int64() != 7 {
		t.Errorf("unexpected balance %s", snap.Balance)
	}
	if len(node.calls) != 6 {
		t.Errorf("expected 6 batched calls, got %d", len(node.calls))
	}
}

func TestLendingReader_SnapshotPartialFailure(t *testing.T) {
	node := seededNode(t)
	node.fail("allowance", errors.New("execution reverted"))
	node.fail("stakingReserve", errors.New("execution reverted"))
	reader := NewLendingReader(node, testLending, zap.NewNop())

	snap, err := reader.Snapshot(context.Background(), testWallet, &entities.Token{Address: testToken})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if snap.AllowanceErr == nil || snap.Allowance != nil {
		t.Error("expected allowance to fail on its own")
	}
	if snap.PoolErr == nil || snap.Pool != nil {
		t.Error("expected pool to fail when a pool read fails")
	}
	if snap.PositionErr != nil || snap.Position == nil {
		t.Error("expected position to resolve independently")
	}
	if snap.BalanceErr != nil || snap.Balance.Int64() != 7 {
		t.Error("expected balance to resolve independently")
	}
}

func TestLendingReader_SnapshotTransportError(t *testing.T) {
	node := seededNode(t)
	node.batchErr = errors.New("connection refused")
	reader := NewLendingReader(node, testLending, zap.NewNop())

	if _, err := reader.Snapshot(context.Background(), testWallet, &entities.Token{Address: testToken}); err == nil {
		t.Error("expected transport error")
	}
	if _, err := reader.Snapshot(context.Background(), "nope", &entities.Token{Address: testToken}); err == nil {
		t.Error("expected invalid wallet error")
	}
}

func TestLendingReader_SingleReads(t *testing.T) {
	reader := NewLendingReader(seededNode(t), testLending, zap.NewNop())
	ctx := context.Background()

	pos, err := reader.Position(ctx, testWallet, testToken)
	if err != nil || pos.UserEthAmount.Int64() != 3 {
		t.Errorf("Position() = %+v, %v", pos, err)
	}

	pool, err := reader.PoolShare(ctx, testWallet, testToken)
	if err != nil || pool.TotalSupply.Int64() != 800 {
		t.Errorf("PoolShare() = %+v, %v", pool, err)
	}

	allowance, err := reader.Allowance(ctx, testWallet, testToken)
	if err != nil || allowance.Int64() != 42 {
		t.Errorf("Allowance() = %v, %v", allowance, err)
	}

	balance, err := reader.Balance(ctx, testWallet, testToken)
	if err != nil || balance.Int64() != 7 {
		t.Errorf("Balance() = %v, %v", balance, err)
	}
}
