// Package notify fans lifecycle notifications out to every configured sender.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bimakw/vault-gateway/internal/domain/entities"
	"github.com/bimakw/vault-gateway/internal/domain/repositories"
)

// Sender is a single notification channel
type Sender interface {
	Send(ctx context.Context, n entities.Notification) error
	Name() string
}

// Ensure Dispatcher implements repositories.Notifier
var _ repositories.Notifier = (*Dispatcher)(nil)

// Dispatcher delivers each notification to all senders, suppressing repeats of
// the same (kind, dedupe key) inside the dedupe window
type Dispatcher struct {
	senders []Sender
	dedup   *Dedup
	logger  *zap.Logger
}

// NewDispatcher creates a dispatcher. A zero dedupeTTL disables suppression.
func NewDispatcher(senders []Sender, dedupeTTL time.Duration, logger *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		senders: senders,
		logger:  logger,
	}
	if dedupeTTL > 0 {
		d.dedup = NewDedup(dedupeTTL)
	}
	return d
}

// Notify sends n to every sender. One failing sender does not stop the others.
func (d *Dispatcher) Notify(ctx context.Context, n entities.Notification) error {
	if d.dedup != nil && n.DedupeKey != "" && d.dedup.IsDuplicate(string(n.Kind)+":"+n.DedupeKey) {
		d.logger.Debug("Duplicate notification suppressed",
			zap.String("kind", string(n.Kind)),
			zap.String("dedupe_key", n.DedupeKey),
		)
		return nil
	}

	var errs []string
	for _, s := range d.senders {
		if err := s.Send(ctx, n); err != nil {
			d.logger.Warn("Notification sender failed",
				zap.String("sender", s.Name()),
				zap.Error(err),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// Cleanup drops expired dedupe entries
func (d *Dispatcher) Cleanup() {
	if d.dedup != nil {
		d.dedup.Cleanup()
	}
}

// LogSender writes notifications to the structured log
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, n entities.Notification) error {
	fields := []zap.Field{
		zap.String("kind", string(n.Kind)),
		zap.String("wallet", n.Wallet),
		zap.String("intent_id", n.IntentID),
		zap.String("message", n.Message),
	}
	if n.TxHash != "" {
		fields = append(fields, zap.String("tx_hash", n.TxHash))
	}

	if n.Kind == entities.NotifyError {
		s.logger.Warn("Intent notification", fields...)
	} else {
		s.logger.Info("Intent notification", fields...)
	}
	return nil
}

func (s *LogSender) Name() string {
	return "log"
}
