package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/bimakw/vault-gateway/internal/domain/entities"
)

type recordingSender struct {
	mu   sync.Mutex
	name string
	err  error
	got  []entities.Notification
}

func (s *recordingSender) Send(_ context.Context, n entities.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, n)
	return s.err
}

func (s *recordingSender) Name() string { return s.name }

func TestDispatcher_Dedupe(t *testing.T) {
	rec := &recordingSender{name: "rec"}
	d := NewDispatcher([]Sender{rec}, time.Minute, zap.NewNop())
	ctx := context.Background()

	loading := entities.Notification{Kind: entities.NotifyLoading, Message: "Waiting for confirmation", DedupeKey: "intent-1"}
	success := entities.Notification{Kind: entities.NotifySuccess, Message: "Stake Successful!", DedupeKey: "intent-1"}

	_ = d.Notify(ctx, loading)
	_ = d.Notify(ctx, loading)
	_ = d.Notify(ctx, success)
	_ = d.Notify(ctx, entities.Notification{Kind: entities.NotifyError, Message: "no key"})
	_ = d.Notify(ctx, entities.Notification{Kind: entities.NotifyError, Message: "no key"})

	if len(rec.got) != 4 {
		t.Fatalf("expected 4 delivered notifications, got %d", len(rec.got))
	}
	if rec.got[1].Kind != entities.NotifySuccess {
		t.Errorf("expected success after suppressed loading, got %s", rec.got[1].Kind)
	}
}

func TestDispatcher_SenderFailureDoesNotBlockOthers(t *testing.T) {
	broken := &recordingSender{name: "broken", err: errors.New("down")}
	ok := &recordingSender{name: "ok"}
	d := NewDispatcher([]Sender{broken, ok}, 0, zap.NewNop())

	err := d.Notify(context.Background(), entities.Notification{Kind: entities.NotifySuccess, Message: "done"})
	if err == nil || !strings.Contains(err.Error(), "broken") {
		t.Errorf("expected aggregated error naming the sender, got %v", err)
	}
	if len(ok.got) != 1 {
		t.Errorf("expected healthy sender to receive the notification")
	}
}

func TestDedup_Expiry(t *testing.T) {
	d := NewDedup(time.Second)
	now := time.Unix(1000, 0)
	d.now = func() time.Time { return now }

	if d.IsDuplicate("a") {
		t.Fatal("first sighting must not be a duplicate")
	}
	if !d.IsDuplicate("a") {
		t.Fatal("second sighting inside window must be a duplicate")
	}

	now = now.Add(2 * time.Second)
	if d.IsDuplicate("a") {
		t.Error("sighting after window must not be a duplicate")
	}

	now = now.Add(5 * time.Second)
	d.Cleanup()
	if d.Len() != 0 {
		t.Errorf("expected cleanup to drop expired keys, got %d", d.Len())
	}
}

func TestWebhookSender(t *testing.T) {
	var payload map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	sender := NewWebhookSender(server.URL)
	err := sender.Send(context.Background(), entities.Notification{
		Kind:    entities.NotifyError,
		Wallet:  "0xabc",
		Message: "user rejected the request",
		TxHash:  "0x01",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	content := payload["content"]
	if !strings.Contains(content, "ERROR") || !strings.Contains(content, "user rejected the request") || !strings.Contains(content, "0x01") {
		t.Errorf("unexpected webhook content %q", content)
	}
}

func TestWebhookSender_BadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	err := NewWebhookSender(server.URL).Send(context.Background(), entities.Notification{Kind: entities.NotifySuccess})
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("expected status error, got %v", err)
	}
}

func TestChannel(t *testing.T) {
	if got := Channel("0xABC"); got != "notifications:0xabc" {
		t.Errorf("unexpected channel %s", got)
	}
}
