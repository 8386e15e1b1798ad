package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bimakw/vault-gateway/internal/domain/entities"
	"github.com/bimakw/vault-gateway/internal/domain/repositories"
	"github.com/bimakw/vault-gateway/internal/domain/sequencer"
	"github.com/bimakw/vault-gateway/internal/infrastructure/cache"
)

type MockCall struct {
	Method string
	Args   []interface{}
}

// callLog records calls made on a mock
type callLog struct {
	mu    sync.Mutex
	Calls []MockCall
}

func (c *callLog) record(method string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, MockCall{Method: method, Args: args})
}

// CallCount returns how many times method was called
func (c *callLog) CallCount(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.Calls {
		if call.Method == method {
			n++
		}
	}
	return n
}

// MockTokenRepository is a mock implementation of TokenRepository
type MockTokenRepository struct {
	callLog
	mu     sync.RWMutex
	tokens map[string]*entities.Token

	// Function hooks
	GetByAddressFunc func(ctx context.Context, address string) (*entities.Token, error)
	GetAllFunc       func(ctx context.Context) ([]entities.Token, error)
	UpsertFunc       func(ctx context.Context, token *entities.Token) error
}

func NewMockTokenRepository() *MockTokenRepository {
	return &MockTokenRepository{
		tokens: make(map[string]*entities.Token),
	}
}

func (m *MockTokenRepository) GetByAddress(ctx context.Context, address string) (*entities.Token, error) {
	m.record("GetByAddress", address)

	if m.GetByAddressFunc != nil {
		return m.GetByAddressFunc(ctx, address)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if token, ok := m.tokens[strings.ToLower(address)]; ok {
		cp := *token
		return &cp, nil
	}
	return nil, nil
}

func (m *MockTokenRepository) GetAll(ctx context.Context) ([]entities.Token, error) {
	m.record("GetAll")

	if m.GetAllFunc != nil {
		return m.GetAllFunc(ctx)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]entities.Token, 0, len(m.tokens))
	for _, token := range m.tokens {
		result = append(result, *token)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Symbol < result[j].Symbol })
	return result, nil
}

func (m *MockTokenRepository) Upsert(ctx context.Context, token *entities.Token) error {
	m.record("Upsert", token)

	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, token)
	}

	m.AddToken(token)
	return nil
}

// AddToken adds a token to the mock store
func (m *MockTokenRepository) AddToken(token *entities.Token) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *token
	m.tokens[token.Key()] = &cp
}

var (
	_ repositories.TokenRepository      = (*MockTokenRepository)(nil)
	_ repositories.IntentRepository     = (*MockIntentRepository)(nil)
	_ repositories.LendingReader        = (*MockLendingReader)(nil)
	_ repositories.TransactionSubmitter = (*MockSubmitter)(nil)
	_ repositories.TokenMetadataFetcher = (*MockMetadataFetcher)(nil)
	_ repositories.Notifier             = (*MockNotifier)(nil)
)

// MockIntentRepository is an in-memory IntentRepository
type MockIntentRepository struct {
	callLog
	mu      sync.RWMutex
	intents map[string]*entities.TransactionIntent

	CreateFunc       func(ctx context.Context, intent *entities.TransactionIntent) error
	UpdateStatusFunc func(ctx context.Context, id string, status entities.IntentStatus, txHash, errMsg *string) error
	ListStaleFunc    func(ctx context.Context, before time.Time, limit int) ([]entities.TransactionIntent, error)
}

func NewMockIntentRepository() *MockIntentRepository {
	return &MockIntentRepository{
		intents: make(map[string]*entities.TransactionIntent),
	}
}

func (m *MockIntentRepository) Create(ctx context.Context, intent *entities.TransactionIntent) error {
	m.record("Create", intent.ID)

	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, intent)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.AddIntent(*intent)
	return nil
}

func (m *MockIntentRepository) UpdateStatus(ctx context.Context, id string, status entities.IntentStatus, txHash, errMsg *string) error {
	m.record("UpdateStatus", id, status)

	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, id, status, txHash, errMsg)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	intent, ok := m.intents[id]
	if !ok || intent.Status.IsTerminal() {
		return fmt.Errorf("%w: %s", repositories.ErrIntentNotPending, id)
	}
	intent.Status = status
	if txHash != nil {
		h := *txHash
		intent.TxHash = &h
	}
	if errMsg != nil {
		e := *errMsg
		intent.Error = &e
	}
	intent.UpdatedAt = time.Now()
	return nil
}

func (m *MockIntentRepository) GetByID(ctx context.Context, id string) (*entities.TransactionIntent, error) {
	m.record("GetByID", id)

	m.mu.RLock()
	defer m.mu.RUnlock()

	if intent, ok := m.intents[id]; ok {
		cp := *intent
		return &cp, nil
	}
	return nil, nil
}

func (m *MockIntentRepository) ListByWallet(ctx context.Context, wallet string, limit, offset int) ([]entities.TransactionIntent, error) {
	m.record("ListByWallet", wallet, limit, offset)

	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]entities.TransactionIntent, 0)
	for _, intent := range m.intents {
		if strings.EqualFold(intent.WalletAddress, wallet) {
			result = append(result, *intent)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })

	// Apply pagination
	if offset > len(result) {
		return []entities.TransactionIntent{}, nil
	}
	end := offset + limit
	if end > len(result) {
		end = len(result)
	}
	return result[offset:end], nil
}

func (m *MockIntentRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]entities.TransactionIntent, error) {
	m.record("ListStale", before, limit)

	if m.ListStaleFunc != nil {
		return m.ListStaleFunc(ctx, before, limit)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]entities.TransactionIntent, 0)
	for _, intent := range m.intents {
		if intent.Status.InFlight() && intent.UpdatedAt.Before(before) {
			result = append(result, *intent)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UpdatedAt.Before(result[j].UpdatedAt) })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// AddIntent stores an intent as is
func (m *MockIntentRepository) AddIntent(intent entities.TransactionIntent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intents[intent.ID] = &intent
}

// Intent returns a copy of the stored intent
func (m *MockIntentRepository) Intent(id string) (entities.TransactionIntent, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	intent, ok := m.intents[id]
	if !ok {
		return entities.TransactionIntent{}, false
	}
	return *intent, true
}

// MockLendingReader serves chain reads from fixed per-pair snapshots
type MockLendingReader struct {
	callLog
	mu        sync.RWMutex
	snapshots map[string]*entities.ChainSnapshot

	SnapshotFunc func(ctx context.Context, wallet string, token *entities.Token) (*entities.ChainSnapshot, error)
}

func NewMockLendingReader() *MockLendingReader {
	return &MockLendingReader{
		snapshots: make(map[string]*entities.ChainSnapshot),
	}
}

func pairKey(wallet, token string) string {
	return strings.ToLower(wallet) + ":" + strings.ToLower(token)
}

// SetSnapshot sets what reads for the pair return
func (m *MockLendingReader) SetSnapshot(snap *entities.ChainSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[pairKey(snap.WalletAddress, snap.TokenAddress)] = snap
}

// Update mutates the stored snapshot for the pair
func (m *MockLendingReader) Update(wallet, token string, fn func(*entities.ChainSnapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snapshots[pairKey(wallet, token)]
	if !ok {
		snap = &entities.ChainSnapshot{WalletAddress: wallet, TokenAddress: token}
		m.snapshots[pairKey(wallet, token)] = snap
	}
	fn(snap)
}

func (m *MockLendingReader) Snapshot(ctx context.Context, wallet string, token *entities.Token) (*entities.ChainSnapshot, error) {
	m.record("Snapshot", wallet, token.Address)

	if m.SnapshotFunc != nil {
		return m.SnapshotFunc(ctx, wallet, token)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	snap, ok := m.snapshots[pairKey(wallet, token.Address)]
	if !ok {
		return &entities.ChainSnapshot{
			WalletAddress: wallet,
			TokenAddress:  token.Address,
			Position:      entities.NewRawPosition(),
			Pool:          &entities.PoolShareState{UserShare: new(big.Int), TotalReserve: new(big.Int), TotalSupply: new(big.Int)},
			Allowance:     new(big.Int),
			Balance:       new(big.Int),
		}, nil
	}
	cp := *snap
	return &cp, nil
}

func (m *MockLendingReader) Position(ctx context.Context, wallet, token string) (*entities.RawPosition, error) {
	snap, err := m.Snapshot(ctx, wallet, &entities.Token{Address: token})
	if err != nil {
		return nil, err
	}
	return snap.Position, snap.PositionErr
}

func (m *MockLendingReader) PoolShare(ctx context.Context, wallet, token string) (*entities.PoolShareState, error) {
	snap, err := m.Snapshot(ctx, wallet, &entities.Token{Address: token})
	if err != nil {
		return nil, err
	}
	return snap.Pool, snap.PoolErr
}

func (m *MockLendingReader) Allowance(ctx context.Context, wallet, token string) (*big.Int, error) {
	snap, err := m.Snapshot(ctx, wallet, &entities.Token{Address: token})
	if err != nil {
		return nil, err
	}
	return snap.Allowance, snap.AllowanceErr
}

func (m *MockLendingReader) Balance(ctx context.Context, wallet, token string) (*big.Int, error) {
	snap, err := m.Snapshot(ctx, wallet, &entities.Token{Address: token})
	if err != nil {
		return nil, err
	}
	return snap.Balance, snap.BalanceErr
}

// MockSubmitter records submitted calls and resolves receipts on demand
type MockSubmitter struct {
	callLog
	mu        sync.Mutex
	account   string
	submitted []*sequencer.Call
	receipts  map[string]entities.ReceiptStatus
	seq       int

	SubmitFunc       func(ctx context.Context, call *sequencer.Call) (string, error)
	AwaitReceiptFunc func(ctx context.Context, txHash string) (entities.ReceiptStatus, error)
}

// NewMockSubmitter returns a submitter signing as account; empty means no wallet
func NewMockSubmitter(account string) *MockSubmitter {
	return &MockSubmitter{
		account:  account,
		receipts: make(map[string]entities.ReceiptStatus),
	}
}

func (m *MockSubmitter) Account() (string, bool) {
	return m.account, m.account != ""
}

func (m *MockSubmitter) Submit(ctx context.Context, call *sequencer.Call) (string, error) {
	m.record("Submit", call.Method)

	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, call)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.submitted = append(m.submitted, call)
	return fmt.Sprintf("0x%064x", m.seq), nil
}

func (m *MockSubmitter) AwaitReceipt(ctx context.Context, txHash string) (entities.ReceiptStatus, error) {
	m.record("AwaitReceipt", txHash)

	if m.AwaitReceiptFunc != nil {
		return m.AwaitReceiptFunc(ctx, txHash)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if status, ok := m.receipts[txHash]; ok {
		return status, nil
	}
	return entities.ReceiptSuccess, nil
}

func (m *MockSubmitter) ReceiptStatus(ctx context.Context, txHash string) (entities.ReceiptStatus, bool, error) {
	m.record("ReceiptStatus", txHash)

	m.mu.Lock()
	defer m.mu.Unlock()
	status, ok := m.receipts[txHash]
	return status, ok, nil
}

// SetReceipt makes txHash mined with status
func (m *MockSubmitter) SetReceipt(txHash string, status entities.ReceiptStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receipts[txHash] = status
}

// Submitted returns the calls submitted so far
func (m *MockSubmitter) Submitted() []*sequencer.Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*sequencer.Call, len(m.submitted))
	copy(out, m.submitted)
	return out
}

// MockMetadataFetcher resolves tokens from a fixed table
type MockMetadataFetcher struct {
	callLog
	mu     sync.RWMutex
	tokens map[string]*entities.Token
}

func NewMockMetadataFetcher() *MockMetadataFetcher {
	return &MockMetadataFetcher{tokens: make(map[string]*entities.Token)}
}

// AddToken makes address resolvable
func (m *MockMetadataFetcher) AddToken(token *entities.Token) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *token
	m.tokens[token.Key()] = &cp
}

func (m *MockMetadataFetcher) FetchTokenMetadata(ctx context.Context, address string) (*entities.Token, error) {
	m.record("FetchTokenMetadata", address)

	m.mu.RLock()
	defer m.mu.RUnlock()
	token, ok := m.tokens[strings.ToLower(address)]
	if !ok {
		return nil, fmt.Errorf("no contract at %s", address)
	}
	cp := *token
	return &cp, nil
}

// FetchMetadataBatch resolves each address in turn, omitting misses
func (m *MockMetadataFetcher) FetchMetadataBatch(ctx context.Context, addresses []string) (map[string]*entities.Token, error) {
	out := make(map[string]*entities.Token, len(addresses))
	for _, addr := range addresses {
		if token, err := m.FetchTokenMetadata(ctx, addr); err == nil {
			out[strings.ToLower(addr)] = token
		}
	}
	return out, nil
}

// MockNotifier collects notifications
type MockNotifier struct {
	mu            sync.Mutex
	notifications []entities.Notification

	NotifyFunc func(ctx context.Context, n entities.Notification) error
}

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) Notify(ctx context.Context, n entities.Notification) error {
	m.mu.Lock()
	m.notifications = append(m.notifications, n)
	m.mu.Unlock()

	if m.NotifyFunc != nil {
		return m.NotifyFunc(ctx, n)
	}
	return nil
}

// Notifications returns what was delivered so far
func (m *MockNotifier) Notifications() []entities.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]entities.Notification, len(m.notifications))
	copy(out, m.notifications)
	return out
}

// OfKind returns the delivered notifications of one kind
func (m *MockNotifier) OfKind(kind entities.NotificationKind) []entities.Notification {
	out := make([]entities.Notification, 0)
	for _, n := range m.Notifications() {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// MockCache is an in-memory cache storing JSON like the Redis cache does
type MockCache struct {
	callLog
	mu      sync.RWMutex
	entries map[string][]byte
}

var _ cache.Cache = (*MockCache)(nil)

func NewMockCache() *MockCache {
	return &MockCache{entries: make(map[string][]byte)}
}

func (m *MockCache) Get(_ context.Context, key string, dest interface{}) error {
	m.record("Get", key)

	m.mu.RLock()
	data, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return cache.ErrCacheMiss
	}
	return json.Unmarshal(data, dest)
}

func (m *MockCache) Set(ctx context.Context, key string, value interface{}) error {
	return m.SetWithTTL(ctx, key, value, 0)
}

func (m *MockCache) SetWithTTL(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.record("Set", key)

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = data
	return nil
}

func (m *MockCache) Delete(_ context.Context, key string) error {
	m.record("Delete", key)

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *MockCache) DeletePattern(_ context.Context, pattern string) error {
	m.record("DeletePattern", pattern)

	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.entries {
		if ok, _ := path.Match(pattern, key); ok {
			delete(m.entries, key)
		}
	}
	return nil
}

// Has reports whether key is cached
func (m *MockCache) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[key]
	return ok
}

// MockHealthChecker reports a fixed health state
type MockHealthChecker struct {
	callLog
	mu    sync.RWMutex
	Error error
}

func NewMockHealthChecker(healthy bool) *MockHealthChecker {
	m := &MockHealthChecker{}
	m.SetHealthy(healthy)
	return m
}

func (m *MockHealthChecker) HealthCheck(ctx context.Context) error {
	m.record("HealthCheck")

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Error
}

func (m *MockHealthChecker) SetHealthy(healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if healthy {
		m.Error = nil
	} else {
		m.Error = errors.New("health check failed")
	}
}
