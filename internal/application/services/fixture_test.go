package services

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/bimakw/vault-gateway/internal/config"
	"github.com/bimakw/vault-gateway/internal/domain/entities"
	"github.com/bimakw/vault-gateway/internal/domain/sequencer"
	"github.com/bimakw/vault-gateway/internal/infrastructure/cache"
	"github.com/bimakw/vault-gateway/internal/testutil"
)

// stack wires every service against in-memory mocks
type stack struct {
	tokenRepo *testutil.MockTokenRepository
	fetcher   *testutil.MockMetadataFetcher
	reader    *testutil.MockLendingReader
	submitter *testutil.MockSubmitter
	intents   *testutil.MockIntentRepository
	notifier  *testutil.MockNotifier
	cache     *testutil.MockCache
	registry  *sequencer.Registry

	tokens     *TokenService
	positions  *PositionService
	selection  *SelectionService
	sequencer  *SequencerService
	reconciler *ReconcilerService

	token *entities.Token
}

func newStack(t *testing.T, account string) *stack {
	t.Helper()
	logger := zap.NewNop()

	s := &stack{
		tokenRepo: testutil.NewMockTokenRepository(),
		fetcher:   testutil.NewMockMetadataFetcher(),
		reader:    testutil.NewMockLendingReader(),
		submitter: testutil.NewMockSubmitter(account),
		intents:   testutil.NewMockIntentRepository(),
		notifier:  testutil.NewMockNotifier(),
		cache:     testutil.NewMockCache(),
		registry:  sequencer.NewRegistry(),
		token:     testutil.CreateTestToken(),
	}
	s.tokenRepo.AddToken(s.token)

	s.tokens = NewTokenService(s.tokenRepo, s.fetcher, s.cache, time.Hour, logger)
	s.positions = NewPositionService(s.reader, s.tokens, s.cache, time.Minute, "", testutil.LendingAddress, logger)
	s.selection = NewSelectionService(cache.NewMemorySelectionStore(), s.tokens, s.registry, logger)
	s.sequencer = NewSequencerService(s.positions, s.selection, s.submitter, s.intents, s.notifier, s.registry, testutil.LendingAddress, logger)
	s.reconciler = NewReconcilerService(s.submitter, s.intents, s.notifier, s.positions, config.ReconcilerConfig{
		PollInterval: time.Hour,
		WorkerCount:  2,
		StaleAfter:   time.Minute,
		BatchSize:    10,
	}, logger)

	t.Cleanup(s.sequencer.Stop)
	return s
}

// waitForStatus polls the journal until the intent reaches status
func (s *stack) waitForStatus(t *testing.T, id string, status entities.IntentStatus) entities.TransactionIntent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		intent, ok := s.intents.Intent(id)
		if ok && intent.Status == status {
			return intent
		}
		if time.Now().After(deadline) {
			t.Fatalf("intent %s did not reach %s (last %+v)", id, status, intent)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// waitIdle polls the registry until the pair has nothing in flight
func (s *stack) waitIdle(t *testing.T, wallet string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.registry.Busy(wallet, s.token.Address) {
		if time.Now().After(deadline) {
			t.Fatal("pair still busy")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
