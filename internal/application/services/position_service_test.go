package services

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/bimakw/vault-gateway/internal/domain/entities"
	"github.com/bimakw/vault-gateway/internal/infrastructure/cache"
	"github.com/bimakw/vault-gateway/internal/testutil"
)

func TestPositionService_GetPosition(t *testing.T) {
	s := newStack(t, testutil.AliceAddress)
	ctx := context.Background()
	s.reader.SetSnapshot(testutil.CreateTestSnapshot(testutil.AliceAddress, s.token,
		testutil.SnapshotWithPosition(
			testutil.Units(2, 18), testutil.Units(1, 18), big.NewInt(0),
			big.NewInt(9500), testutil.Units(300, 18), testutil.Units(200, 18),
		),
	))

	response, err := s.positions.GetPosition(ctx, testutil.AliceAddress, testutil.USDTAddress)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p := response.Data
	if p == nil {
		t.Fatal("expected a position")
	}
	if p.Side != entities.SideStake {
		t.Errorf("expected Stake, got %s", p.Side)
	}
	if p.Size != "1.0000 USDT" {
		t.Errorf("expected size 1.0000 USDT, got %s", p.Size)
	}
	if p.Pair != "USDT/BNB" {
		t.Errorf("expected pair USDT/BNB, got %s", p.Pair)
	}
	if p.Collateral != "2.0000 BNB" {
		t.Errorf("expected collateral 2.0000 BNB, got %s", p.Collateral)
	}
	if p.HealthFactorPct != "95.00%" || !p.Warning {
		t.Errorf("expected warning at 95.00%%, got %s warning=%v", p.HealthFactorPct, p.Warning)
	}
}

func TestPositionService_GetPosition_Absent(t *testing.T) {
	s := newStack(t, testutil.AliceAddress)

	response, err := s.positions.GetPosition(context.Background(), testutil.AliceAddress, testutil.USDTAddress)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if response.Data != nil {
		t.Errorf("expected no position, got %+v", response.Data)
	}
}

func TestPositionService_Snapshot_ReadThrough(t *testing.T) {
	s := newStack(t, testutil.AliceAddress)
	ctx := context.Background()
	s.reader.SetSnapshot(testutil.CreateTestSnapshot(testutil.AliceAddress, s.token,
		testutil.SnapshotWithAllowance(big.NewInt(42)),
	))

	for i := 0; i < 3; i++ {
		snap, err := s.positions.Snapshot(ctx, testutil.AliceAddress, s.token)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if snap.Allowance.Cmp(big.NewInt(42)) != 0 {
			t.Errorf("expected allowance 42, got %s", snap.Allowance)
		}
	}

	if got := s.reader.CallCount("Snapshot"); got != 1 {
		t.Errorf("expected 1 chain read, got %d", got)
	}

	s.positions.InvalidatePart(ctx, testutil.AliceAddress, testutil.USDTAddress, cache.PartAllowance)
	if _, err := s.positions.Snapshot(ctx, testutil.AliceAddress, s.token); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := s.reader.CallCount("Snapshot"); got != 2 {
		t.Errorf("expected a fresh read after invalidation, got %d reads", got)
	}
}

func TestPositionService_Snapshot_FailedPartsNotCached(t *testing.T) {
	s := newStack(t, testutil.AliceAddress)
	ctx := context.Background()
	s.reader.SetSnapshot(testutil.CreateTestSnapshot(testutil.AliceAddress, s.token,
		testutil.SnapshotWithPoolError(errors.New("execution reverted")),
	))

	if _, err := s.positions.Snapshot(ctx, testutil.AliceAddress, s.token); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.cache.Has(cache.ReadKey(testutil.AliceAddress, testutil.USDTAddress, cache.PartPool)) {
		t.Error("expected failed pool read not to be cached")
	}
	if !s.cache.Has(cache.ReadKey(testutil.AliceAddress, testutil.USDTAddress, cache.PartBalance)) {
		t.Error("expected balance read to be cached")
	}
}

func TestPositionService_GetVault(t *testing.T) {
	s := newStack(t, testutil.AliceAddress)
	s.reader.SetSnapshot(testutil.CreateTestSnapshot(testutil.AliceAddress, s.token,
		testutil.SnapshotWithPool(testutil.Units(500, 18), testutil.Units(1000, 18), testutil.Units(1000, 18)),
		testutil.SnapshotWithBalance(testutil.Units(25, 18)),
		testutil.SnapshotWithAllowance(testutil.Units(3, 18)),
	))

	response, err := s.positions.GetVault(context.Background(), testutil.AliceAddress, testutil.USDTAddress)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	v := response.Data
	if v.Staked != "500.0000" {
		t.Errorf("expected staked 500.0000, got %s", v.Staked)
	}
	if v.StakedRaw != testutil.Units(500, 18).String() {
		t.Errorf("unexpected staked raw %s", v.StakedRaw)
	}
	if v.Balance != "25.0000" {
		t.Errorf("expected balance 25.0000, got %s", v.Balance)
	}
	if v.Allowance != testutil.Units(3, 18).String() {
		t.Errorf("unexpected allowance %s", v.Allowance)
	}
	if v.Errors != nil {
		t.Errorf("expected no read errors, got %v", v.Errors)
	}
}

func TestPositionService_GetVault_PartialFailure(t *testing.T) {
	s := newStack(t, testutil.AliceAddress)
	s.reader.SetSnapshot(testutil.CreateTestSnapshot(testutil.AliceAddress, s.token,
		testutil.SnapshotWithPoolError(errors.New("execution reverted")),
	))

	response, err := s.positions.GetVault(context.Background(), testutil.AliceAddress, testutil.USDTAddress)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if response.Data.Errors[cache.PartPool] != "execution reverted" {
		t.Errorf("expected pool error to be reported, got %v", response.Data.Errors)
	}
	if response.Data.Staked != "" {
		t.Errorf("expected no staked amount, got %s", response.Data.Staked)
	}
}

func TestPositionService_TransportFailure(t *testing.T) {
	s := newStack(t, testutil.AliceAddress)
	s.reader.SnapshotFunc = func(ctx context.Context, wallet string, token *entities.Token) (*entities.ChainSnapshot, error) {
		return nil, errors.New("connection refused")
	}

	if _, err := s.positions.GetPosition(context.Background(), testutil.AliceAddress, testutil.USDTAddress); err == nil {
		t.Error("expected error")
	}
}
