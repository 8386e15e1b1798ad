package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/bimakw/vault-gateway/internal/domain/entities"
	"github.com/bimakw/vault-gateway/internal/infrastructure/cache"
	"github.com/bimakw/vault-gateway/internal/testutil"
)

func setupTokenServiceTest() (*TokenService, *testutil.MockTokenRepository, *testutil.MockMetadataFetcher, *testutil.MockCache) {
	tokenRepo := testutil.NewMockTokenRepository()
	fetcher := testutil.NewMockMetadataFetcher()
	c := testutil.NewMockCache()

	service := NewTokenService(tokenRepo, fetcher, c, time.Hour, zap.NewNop())
	return service, tokenRepo, fetcher, c
}

func TestTokenService_Seed(t *testing.T) {
	service, tokenRepo, _, _ := setupTokenServiceTest()
	ctx := context.Background()

	tokens := []entities.Token{
		*testutil.CreateTestToken(),
		*testutil.CreateTestToken(testutil.TokenWithAddress(testutil.USDCAddress), testutil.TokenWithSymbol("USDC")),
	}
	if err := service.Seed(ctx, tokens); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	response, err := service.GetAllTokens(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(response.Data) != 2 {
		t.Fatalf("expected 2 tokens, got %d", len(response.Data))
	}
	if response.Data[0].Symbol != "USDC" || response.Data[1].Symbol != "USDT" {
		t.Errorf("expected tokens ordered by symbol, got %s, %s", response.Data[0].Symbol, response.Data[1].Symbol)
	}
	if tokenRepo.CallCount("Upsert") != 2 {
		t.Errorf("expected 2 upserts, got %d", tokenRepo.CallCount("Upsert"))
	}
}

func TestTokenService_Seed_Error(t *testing.T) {
	service, tokenRepo, _, _ := setupTokenServiceTest()
	tokenRepo.UpsertFunc = func(ctx context.Context, token *entities.Token) error {
		return errors.New("database error")
	}

	if err := service.Seed(context.Background(), []entities.Token{*testutil.CreateTestToken()}); err == nil {
		t.Error("expected error")
	}
}

func TestTokenService_Seed_CompletesFromChain(t *testing.T) {
	service, tokenRepo, fetcher, _ := setupTokenServiceTest()
	ctx := context.Background()

	fetcher.AddToken(testutil.CreateTestToken(
		testutil.TokenWithAddress(testutil.USDCAddress),
		testutil.TokenWithName("USD Coin"),
		testutil.TokenWithSymbol("USDC"),
		testutil.TokenWithDecimals(6),
	))

	tokens := []entities.Token{
		*testutil.CreateTestToken(),
		*testutil.CreateTestToken(
			testutil.TokenWithAddress(testutil.USDCAddress),
			testutil.TokenWithName(""),
			testutil.TokenWithSymbol("USDC"),
			testutil.TokenWithDecimals(0),
		),
	}
	if err := service.Seed(ctx, tokens); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	usdc, err := tokenRepo.GetByAddress(ctx, testutil.USDCAddress)
	if err != nil || usdc == nil {
		t.Fatalf("expected USDC in registry, got %v, %v", usdc, err)
	}
	if usdc.Name != "USD Coin" || usdc.Decimals != 6 {
		t.Errorf("expected chain metadata, got name=%q decimals=%d", usdc.Name, usdc.Decimals)
	}
	if fetcher.CallCount("FetchTokenMetadata") != 1 {
		t.Errorf("expected only the incomplete token fetched, got %d calls", fetcher.CallCount("FetchTokenMetadata"))
	}
}

func TestTokenService_Resolve_FromRegistry(t *testing.T) {
	service, tokenRepo, fetcher, c := setupTokenServiceTest()
	ctx := context.Background()
	tokenRepo.AddToken(testutil.CreateTestToken())

	token, err := service.Resolve(ctx, "0x55D398326F99059FF775485246999027B3197955")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token.Symbol != "USDT" {
		t.Errorf("expected USDT, got %s", token.Symbol)
	}
	if fetcher.CallCount("FetchTokenMetadata") != 0 {
		t.Error("expected no chain lookup for a registered token")
	}
	if !c.Has(cache.TokenKey(testutil.USDTAddress)) {
		t.Error("expected token to be cached")
	}

	// Second lookup is served from cache
	if _, err := service.Resolve(ctx, testutil.USDTAddress); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tokenRepo.CallCount("GetByAddress") != 1 {
		t.Errorf("expected 1 registry lookup, got %d", tokenRepo.CallCount("GetByAddress"))
	}
}

func TestTokenService_Resolve_FromChain(t *testing.T) {
	service, tokenRepo, fetcher, _ := setupTokenServiceTest()
	ctx := context.Background()
	fetcher.AddToken(testutil.CreateTestToken(
		testutil.TokenWithAddress(testutil.USDCAddress),
		testutil.TokenWithSymbol("USDC"),
	))

	token, err := service.Resolve(ctx, testutil.USDCAddress)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token.Symbol != "USDC" {
		t.Errorf("expected USDC, got %s", token.Symbol)
	}

	registered, _ := tokenRepo.GetByAddress(ctx, testutil.USDCAddress)
	if registered == nil {
		t.Error("expected resolved token to be registered")
	}
}

func TestTokenService_Resolve_Errors(t *testing.T) {
	service, _, _, _ := setupTokenServiceTest()
	ctx := context.Background()

	if _, err := service.Resolve(ctx, "not-an-address"); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("expected ErrInvalidAddress, got %v", err)
	}
	if _, err := service.Resolve(ctx, testutil.BobAddress); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestTokenService_Resolve_NoFetcher(t *testing.T) {
	service := NewTokenService(testutil.NewMockTokenRepository(), nil, nil, time.Hour, zap.NewNop())

	if _, err := service.Resolve(context.Background(), testutil.USDTAddress); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("expected ErrTokenNotFound, got %v", err)
	}
}
