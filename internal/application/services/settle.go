package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/bimakw/vault-gateway/internal/domain/entities"
	"github.com/bimakw/vault-gateway/internal/domain/repositories"
	"github.com/bimakw/vault-gateway/internal/infrastructure/cache"
)

// settler records the outcome of a mined intent and applies its side effects.
// Shared by the sequencer's receipt waits and the reconciler.
type settler struct {
	intents   repositories.IntentRepository
	notifier  repositories.Notifier
	positions *PositionService
	logger    *zap.Logger
}

// confirm marks the intent confirmed. An approval refreshes the allowance
// only; the approved action is not chained automatically.
func (s *settler) confirm(ctx context.Context, intent *entities.TransactionIntent) error {
	if err := s.intents.UpdateStatus(ctx, intent.ID, entities.StatusConfirmed, nil, nil); err != nil {
		if errors.Is(err, repositories.ErrIntentNotPending) {
			s.logger.Debug("Intent already settled", zap.String("intent_id", intent.ID))
			return nil
		}
		return fmt.Errorf("failed to confirm intent: %w", err)
	}
	intent.Status = entities.StatusConfirmed
	intentsTotal.WithLabelValues(string(intent.Kind), string(entities.StatusConfirmed)).Inc()

	s.logger.Info("Intent confirmed",
		zap.String("intent_id", intent.ID),
		zap.String("kind", string(intent.Kind)),
		zap.String("wallet", intent.WalletAddress),
		zap.String("token", intent.TokenAddress),
	)

	s.notify(ctx, intent, entities.NotifySuccess, successMessage(intent.Kind))

	if s.positions == nil {
		return nil
	}

	if intent.Kind == entities.IntentApprove {
		s.positions.InvalidatePart(ctx, intent.WalletAddress, intent.TokenAddress, cache.PartAllowance)
		s.refetch(ctx, intent)
		return nil
	}

	s.positions.Invalidate(ctx, intent.WalletAddress, intent.TokenAddress)
	return nil
}

// fail marks the intent failed with the provider message unchanged. Cached
// reads are left alone.
func (s *settler) fail(ctx context.Context, intent *entities.TransactionIntent, cause string) error {
	if err := s.intents.UpdateStatus(ctx, intent.ID, entities.StatusFailed, nil, &cause); err != nil {
		if errors.Is(err, repositories.ErrIntentNotPending) {
			s.logger.Debug("Intent already settled", zap.String("intent_id", intent.ID))
			return nil
		}
		return fmt.Errorf("failed to fail intent: %w", err)
	}
	intent.Status = entities.StatusFailed
	intent.Error = &cause
	intentsTotal.WithLabelValues(string(intent.Kind), string(entities.StatusFailed)).Inc()

	s.logger.Warn("Intent failed",
		zap.String("intent_id", intent.ID),
		zap.String("kind", string(intent.Kind)),
		zap.String("error", cause),
	)

	s.notify(ctx, intent, entities.NotifyError, cause)
	return nil
}

func (s *settler) refetch(ctx context.Context, intent *entities.TransactionIntent) {
	token, err := s.positions.tokens.Resolve(ctx, intent.TokenAddress)
	if err != nil {
		s.logger.Warn("Failed to resolve token for refetch", zap.Error(err))
		return
	}
	if _, err := s.positions.Snapshot(ctx, intent.WalletAddress, token); err != nil {
		s.logger.Warn("Failed to refetch reads", zap.Error(err))
	}
}

func (s *settler) notify(ctx context.Context, intent *entities.TransactionIntent, kind entities.NotificationKind, message string) {
	if s.notifier == nil {
		return
	}

	n := entities.Notification{
		Kind:      kind,
		Message:   message,
		DedupeKey: intent.ID,
		Wallet:    intent.WalletAddress,
		IntentID:  intent.ID,
	}
	if intent.TxHash != nil {
		n.TxHash = *intent.TxHash
	}

	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Warn("Failed to deliver notification",
			zap.String("intent_id", intent.ID),
			zap.Error(err),
		)
	}
}

func pendingMessage(kind entities.IntentKind, symbol string) string {
	switch kind {
	case entities.IntentApprove:
		return "Approving " + symbol + "..."
	case entities.IntentStake:
		return "Staking " + symbol + "..."
	case entities.IntentUnstake:
		return "Unstaking " + symbol + "..."
	default:
		return "Repaying " + symbol + "..."
	}
}

func successMessage(kind entities.IntentKind) string {
	switch kind {
	case entities.IntentApprove:
		return "Approve Successful!"
	case entities.IntentStake:
		return "Stake Successful!"
	case entities.IntentUnstake:
		return "Unstake Successful!"
	default:
		return "Repay Successful!"
	}
}
