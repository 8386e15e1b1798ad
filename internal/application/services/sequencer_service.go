package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bimakw/vault-gateway/internal/domain/entities"
	"github.com/bimakw/vault-gateway/internal/domain/repositories"
	"github.com/bimakw/vault-gateway/internal/domain/sequencer"
)

var (
	ErrNoWallet       = errors.New("no signing wallet configured")
	ErrWalletMismatch = errors.New("wallet is not the signing account")
	ErrActionDisabled = errors.New("action not available")
	ErrIntentNotFound = errors.New("intent not found")
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// ActionRequest names the action, the wallet and optionally the token. An
// empty token falls back to the wallet's selection.
type ActionRequest struct {
	Wallet string              `json:"wallet"`
	Token  string              `json:"token,omitempty"`
	Action entities.ActionKind `json:"action"`
	Amount string              `json:"amount,omitempty"`
}

// PlanPreview is a plan plus the context it was computed against
type PlanPreview struct {
	sequencer.Plan
	Enabled bool            `json:"enabled"`
	Wallet  string          `json:"wallet,omitempty"`
	Token   *entities.Token `json:"token,omitempty"`
}

// PlanResponse is the API response for plan previews
type PlanResponse struct {
	Data *PlanPreview `json:"data"`
}

// IntentResponse is the API response for a single intent
type IntentResponse struct {
	Data *entities.TransactionIntent `json:"data"`
}

// IntentListResponse is the API response for a wallet's intent history
type IntentListResponse struct {
	Data     []entities.TransactionIntent `json:"data"`
	InFlight []InFlightDTO                `json:"in_flight"`
}

// InFlightDTO is an in-flight lifecycle as seen by this process
type InFlightDTO struct {
	IntentID  string                `json:"intent_id"`
	Token     string                `json:"token"`
	Kind      entities.IntentKind   `json:"kind"`
	Status    entities.IntentStatus `json:"status"`
	TxHash    string                `json:"tx_hash,omitempty"`
	UpdatedAt string                `json:"updated_at"`
}

// SequencerService drives actions from plan to confirmation. At most one
// intent per (wallet, token) is in flight at a time.
type SequencerService struct {
	positions       *PositionService
	selection       *SelectionService
	submitter       repositories.TransactionSubmitter
	intents         repositories.IntentRepository
	registry        *sequencer.Registry
	settler         *settler
	lendingContract string
	logger          *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSequencerService creates a new sequencer service
func NewSequencerService(
	positions *PositionService,
	selection *SelectionService,
	submitter repositories.TransactionSubmitter,
	intents repositories.IntentRepository,
	notifier repositories.Notifier,
	registry *sequencer.Registry,
	lendingContract string,
	logger *zap.Logger,
) *SequencerService {
	ctx, cancel := context.WithCancel(context.Background())
	return &SequencerService{
		positions: positions,
		selection: selection,
		submitter: submitter,
		intents:   intents,
		registry:  registry,
		settler: &settler{
			intents:   intents,
			notifier:  notifier,
			positions: positions,
			logger:    logger,
		},
		lendingContract: lendingContract,
		logger:          logger,
		ctx:             ctx,
		cancel:          cancel,
	}
}

// Stop abandons outstanding receipt waits and waits for them to return.
// Intents left awaiting confirmation are settled by the reconciler.
func (s *SequencerService) Stop() {
	s.logger.Info("Stopping sequencer service")
	s.cancel()
	s.wg.Wait()
}

// Plan previews the next step for the request. Missing inputs produce a
// disabled plan rather than an error.
func (s *SequencerService) Plan(ctx context.Context, req ActionRequest) (*PlanPreview, error) {
	wallet := strings.TrimSpace(req.Wallet)
	if wallet == "" {
		if account, ok := s.submitter.Account(); ok {
			wallet = account
		}
	}
	if wallet != "" && !common.IsHexAddress(wallet) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, wallet)
	}

	pctx := sequencer.PlanContext{
		Wallet:          wallet,
		LendingContract: s.lendingContract,
	}

	if wallet != "" {
		token, err := s.token(ctx, wallet, req.Token)
		if err != nil {
			return nil, err
		}
		pctx.Token = token
	}

	if pctx.Token != nil {
		snap, err := s.positions.Snapshot(ctx, wallet, pctx.Token)
		if err != nil {
			return nil, err
		}
		if snap.PositionErr == nil {
			pctx.Position = snap.Position
		}
		if snap.PoolErr == nil {
			pctx.Pool = snap.Pool
		}
		if snap.AllowanceErr == nil {
			pctx.Allowance = snap.Allowance
		}
	}

	plan := sequencer.PlanAction(sequencer.Action{Kind: req.Action, Amount: req.Amount}, pctx)
	return &PlanPreview{
		Plan:    plan,
		Enabled: plan.Enabled(),
		Wallet:  wallet,
		Token:   pctx.Token,
	}, nil
}

func (s *SequencerService) token(ctx context.Context, wallet, address string) (*entities.Token, error) {
	if address != "" {
		return s.positions.tokens.Resolve(ctx, address)
	}
	return s.selection.Get(ctx, wallet)
}

// Trigger plans the request and submits the resulting call. The returned
// intent is AwaitingConfirmation, or Failed when submission was rejected.
func (s *SequencerService) Trigger(ctx context.Context, req ActionRequest) (*entities.TransactionIntent, error) {
	account, ok := s.submitter.Account()
	if !ok {
		return nil, ErrNoWallet
	}
	if req.Wallet == "" {
		req.Wallet = account
	} else if !strings.EqualFold(req.Wallet, account) {
		return nil, fmt.Errorf("%w: %s", ErrWalletMismatch, req.Wallet)
	}

	preview, err := s.Plan(ctx, req)
	if err != nil {
		return nil, err
	}
	if !preview.Enabled {
		return nil, fmt.Errorf("%w: %s", ErrActionDisabled, preview.Reason)
	}

	call := preview.Call
	token := preview.Token
	kind := call.IntentKind()
	id := uuid.NewString()

	lc, err := s.registry.Begin(id, account, token.Address, kind)
	if err != nil {
		return nil, err
	}

	// the intent outlives the request from here on
	ctx = context.WithoutCancel(ctx)

	now := time.Now().UTC()
	intent := &entities.TransactionIntent{
		ID:            id,
		WalletAddress: strings.ToLower(account),
		TokenAddress:  token.Key(),
		Action:        req.Action,
		Kind:          kind,
		Amount:        "0",
		Status:        entities.StatusSubmitting,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if call.Amount != nil {
		intent.Amount = call.Amount.String()
	}

	if err := s.intents.Create(ctx, intent); err != nil {
		_ = lc.Fail(err)
		return nil, err
	}

	s.logger.Info("Submitting intent",
		zap.String("intent_id", id),
		zap.String("kind", string(kind)),
		zap.String("method", string(call.Method)),
		zap.String("token", token.Symbol),
		zap.String("amount", intent.Amount),
	)
	s.settler.notify(ctx, intent, entities.NotifyLoading, pendingMessage(kind, token.Symbol))

	txHash, err := s.submitter.Submit(ctx, call)
	if err != nil {
		if ferr := s.settler.fail(ctx, intent, err.Error()); ferr != nil {
			s.logger.Error("Failed to record submission failure", zap.Error(ferr))
		}
		_ = lc.Fail(err)
		return intent, nil
	}

	if err := lc.Submitted(txHash); err != nil {
		return nil, err
	}
	intent.TxHash = &txHash
	intent.Status = entities.StatusAwaitingConfirmation
	if err := s.intents.UpdateStatus(ctx, id, entities.StatusAwaitingConfirmation, &txHash, nil); err != nil {
		s.logger.Error("Failed to record submitted intent",
			zap.String("intent_id", id),
			zap.String("tx_hash", txHash),
			zap.Error(err),
		)
	}

	intentsInFlight.Inc()
	s.wg.Add(1)
	go s.await(lc, *intent)

	return intent, nil
}

// await blocks on the receipt and settles the intent. There is no timeout:
// only Stop ends the wait early.
func (s *SequencerService) await(lc *sequencer.Lifecycle, intent entities.TransactionIntent) {
	defer s.wg.Done()
	defer intentsInFlight.Dec()

	start := time.Now()
	status, err := s.submitter.AwaitReceipt(s.ctx, *intent.TxHash)
	if err != nil {
		if s.ctx.Err() != nil {
			s.logger.Info("Receipt wait abandoned",
				zap.String("intent_id", intent.ID),
				zap.String("tx_hash", *intent.TxHash),
			)
			return
		}
		if ferr := s.settler.fail(s.ctx, &intent, err.Error()); ferr != nil {
			s.logger.Error("Failed to record receipt failure", zap.Error(ferr))
		}
		_ = lc.Fail(err)
		return
	}

	intentConfirmationSeconds.WithLabelValues(string(intent.Kind)).Observe(time.Since(start).Seconds())

	if status != entities.ReceiptSuccess {
		cause := fmt.Sprintf("transaction %s reverted", *intent.TxHash)
		if err := s.settler.fail(s.ctx, &intent, cause); err != nil {
			s.logger.Error("Failed to record reverted intent", zap.Error(err))
		}
		_ = lc.Fail(errors.New(cause))
		return
	}

	// settle before releasing the pair so the next plan sees fresh reads
	if err := s.settler.confirm(s.ctx, &intent); err != nil {
		s.logger.Error("Failed to record confirmed intent", zap.Error(err))
	}
	_ = lc.Confirm()
}

// Intent returns a persisted intent
func (s *SequencerService) Intent(ctx context.Context, id string) (*IntentResponse, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrIntentNotFound, id)
	}

	intent, err := s.intents.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if intent == nil {
		return nil, fmt.Errorf("%w: %s", ErrIntentNotFound, id)
	}
	return &IntentResponse{Data: intent}, nil
}

// History returns a wallet's newest intents and whatever it has in flight
func (s *SequencerService) History(ctx context.Context, wallet string, limit, offset int) (*IntentListResponse, error) {
	if !common.IsHexAddress(wallet) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, wallet)
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	intents, err := s.intents.ListByWallet(ctx, wallet, limit, offset)
	if err != nil {
		return nil, err
	}
	if intents == nil {
		intents = []entities.TransactionIntent{}
	}

	return &IntentListResponse{
		Data:     intents,
		InFlight: s.InFlight(wallet),
	}, nil
}

// InFlight lists the wallet's in-flight lifecycles
func (s *SequencerService) InFlight(wallet string) []InFlightDTO {
	snaps := s.registry.InFlight(wallet)
	out := make([]InFlightDTO, len(snaps))
	for i, snap := range snaps {
		out[i] = InFlightDTO{
			IntentID:  snap.IntentID,
			Token:     snap.Token,
			Kind:      snap.Kind,
			Status:    snap.Status,
			TxHash:    snap.TxHash,
			UpdatedAt: snap.UpdatedAt.UTC().Format(time.RFC3339),
		}
	}
	return out
}
