package sequencer

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bimakw/vault-gateway/internal/domain/entities"
)

var (
	// ErrIntentInFlight is returned when a (wallet, token) pair already has a
	// write waiting on the chain
	ErrIntentInFlight    = errors.New("intent already in flight")
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
)

var transitions = map[entities.IntentStatus][]entities.IntentStatus{
	entities.StatusIdle:                 {entities.StatusSubmitting, entities.StatusFailed},
	entities.StatusSubmitting:           {entities.StatusAwaitingConfirmation, entities.StatusFailed},
	entities.StatusAwaitingConfirmation: {entities.StatusConfirmed, entities.StatusFailed},
}

// Lifecycle tracks a single intent from trigger to receipt
type Lifecycle struct {
	mu        sync.RWMutex
	intentID  string
	wallet    string
	token     string
	kind      entities.IntentKind
	status    entities.IntentStatus
	txHash    string
	err       string
	updatedAt time.Time
}

// NewLifecycle returns an idle lifecycle for the given intent
func NewLifecycle(intentID, wallet, token string, kind entities.IntentKind) *Lifecycle {
	return &Lifecycle{
		intentID:  intentID,
		wallet:    normalize(wallet),
		token:     normalize(token),
		kind:      kind,
		status:    entities.StatusIdle,
		updatedAt: time.Now(),
	}
}

// Snapshot is a copy of the lifecycle state
type Snapshot struct {
	IntentID  string
	Wallet    string
	Token     string
	Kind      entities.IntentKind
	Status    entities.IntentStatus
	TxHash    string
	Error     string
	UpdatedAt time.Time
}

func (l *Lifecycle) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Snapshot{
		IntentID:  l.intentID,
		Wallet:    l.wallet,
		Token:     l.token,
		Kind:      l.kind,
		Status:    l.status,
		TxHash:    l.txHash,
		Error:     l.err,
		UpdatedAt: l.updatedAt,
	}
}

func (l *Lifecycle) Status() entities.IntentStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status
}

func (l *Lifecycle) IntentID() string {
	return l.intentID
}

// Busy reports whether the lifecycle blocks another trigger
func (l *Lifecycle) Busy() bool {
	return l.Status().InFlight()
}

// Start moves Idle to Submitting
func (l *Lifecycle) Start() error {
	return l.move(entities.StatusSubmitting, func() {})
}

// Submitted records the transaction hash once the provider accepted the write
func (l *Lifecycle) Submitted(txHash string) error {
	return l.move(entities.StatusAwaitingConfirmation, func() { l.txHash = txHash })
}

// Confirm marks the receipt as observed
func (l *Lifecycle) Confirm() error {
	return l.move(entities.StatusConfirmed, func() {})
}

// Fail records the provider error message as given
func (l *Lifecycle) Fail(cause error) error {
	return l.move(entities.StatusFailed, func() {
		if cause != nil {
			l.err = cause.Error()
		}
	})
}

func (l *Lifecycle) move(to entities.IntentStatus, apply func()) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, allowed := range transitions[l.status] {
		if allowed == to {
			apply()
			l.status = to
			l.updatedAt = time.Now()
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.status, to)
}

// Registry holds the latest lifecycle per (wallet, token) and enforces at
// most one in-flight intent for each pair.
type Registry struct {
	mu     sync.Mutex
	byPair map[string]*Lifecycle
	byID   map[string]*Lifecycle
}

func NewRegistry() *Registry {
	return &Registry{
		byPair: make(map[string]*Lifecycle),
		byID:   make(map[string]*Lifecycle),
	}
}

// Begin creates a lifecycle in Submitting for the pair. It fails with
// ErrIntentInFlight while the previous one has not reached a terminal state.
func (r *Registry) Begin(intentID, wallet, token string, kind entities.IntentKind) (*Lifecycle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := pairKey(wallet, token)
	if current, ok := r.byPair[key]; ok && current.Busy() {
		return nil, fmt.Errorf("%w: %s", ErrIntentInFlight, current.IntentID())
	}

	lc := NewLifecycle(intentID, wallet, token, kind)
	if err := lc.Start(); err != nil {
		return nil, err
	}

	if prev, ok := r.byPair[key]; ok {
		delete(r.byID, prev.IntentID())
	}
	r.byPair[key] = lc
	r.byID[intentID] = lc
	return lc, nil
}

// Get returns the latest lifecycle for the pair
func (r *Registry) Get(wallet, token string) (*Lifecycle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lc, ok := r.byPair[pairKey(wallet, token)]
	return lc, ok
}

// Lookup finds a lifecycle by intent ID
func (r *Registry) Lookup(intentID string) (*Lifecycle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lc, ok := r.byID[intentID]
	return lc, ok
}

// Busy reports whether the pair has an in-flight intent
func (r *Registry) Busy(wallet, token string) bool {
	lc, ok := r.Get(wallet, token)
	return ok && lc.Busy()
}

// InFlight lists every in-flight lifecycle for a wallet
func (r *Registry) InFlight(wallet string) []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	wallet = normalize(wallet)
	out := make([]Snapshot, 0)
	for _, lc := range r.byPair {
		if lc.wallet == wallet && lc.Busy() {
			out = append(out, lc.Snapshot())
		}
	}
	return out
}

func pairKey(wallet, token string) string {
	return normalize(wallet) + ":" + normalize(token)
}

func normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
