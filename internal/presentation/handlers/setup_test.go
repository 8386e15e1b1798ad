package handlers

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bimakw/vault-gateway/internal/application/services"
	"github.com/bimakw/vault-gateway/internal/domain/sequencer"
	"github.com/bimakw/vault-gateway/internal/infrastructure/cache"
	"github.com/bimakw/vault-gateway/internal/testutil"
)

type testAPI struct {
	router    chi.Router
	tokenRepo *testutil.MockTokenRepository
	reader    *testutil.MockLendingReader
	submitter *testutil.MockSubmitter
	intents   *testutil.MockIntentRepository
	registry  *sequencer.Registry
}

func setupAPI(t *testing.T, account string) *testAPI {
	t.Helper()
	logger := zap.NewNop()

	api := &testAPI{
		tokenRepo: testutil.NewMockTokenRepository(),
		reader:    testutil.NewMockLendingReader(),
		submitter: testutil.NewMockSubmitter(account),
		intents:   testutil.NewMockIntentRepository(),
		registry:  sequencer.NewRegistry(),
	}
	api.tokenRepo.AddToken(testutil.CreateTestToken())

	tokens := services.NewTokenService(api.tokenRepo, testutil.NewMockMetadataFetcher(), nil, time.Hour, logger)
	positions := services.NewPositionService(api.reader, tokens, nil, time.Minute, "", testutil.LendingAddress, logger)
	selection := services.NewSelectionService(cache.NewMemorySelectionStore(), tokens, api.registry, logger)
	seq := services.NewSequencerService(positions, selection, api.submitter, api.intents, testutil.NewMockNotifier(), api.registry, testutil.LendingAddress, logger)
	t.Cleanup(seq.Stop)

	r := chi.NewRouter()
	NewTokenHandler(tokens, logger).RegisterRoutes(r)
	NewWalletHandler(positions, selection, seq, logger).RegisterRoutes(r)
	NewActionHandler(seq, logger).RegisterRoutes(r, nil)
	api.router = r

	return api
}

func (a *testAPI) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
}
