package services

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/bimakw/vault-gateway/internal/domain/entities"
	"github.com/bimakw/vault-gateway/internal/domain/sequencer"
	"github.com/bimakw/vault-gateway/internal/infrastructure/cache"
	"github.com/bimakw/vault-gateway/internal/testutil"
)

func stakeRequest(amount string) ActionRequest {
	return ActionRequest{
		Wallet: testutil.AliceAddress,
		Token:  testutil.USDTAddress,
		Action: entities.ActionStake,
		Amount: amount,
	}
}

func TestSequencerService_Plan_InputAbsentIsDisabled(t *testing.T) {
	s := newStack(t, testutil.AliceAddress)
	ctx := context.Background()

	tests := []struct {
		name   string
		req    ActionRequest
		reason string
		label  string
	}{
		{
			name:   "no token selected",
			req:    ActionRequest{Wallet: testutil.AliceAddress, Action: entities.ActionStake, Amount: "1"},
			reason: sequencer.ReasonNoToken,
			label:  sequencer.LabelStake,
		},
		{
			name:   "empty amount",
			req:    stakeRequest(""),
			reason: sequencer.ReasonNoAmount,
			label:  sequencer.LabelEnterAmount,
		},
		{
			name:   "zero amount",
			req:    stakeRequest("0"),
			reason: sequencer.ReasonZeroAmount,
			label:  sequencer.LabelStake,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			preview, err := s.sequencer.Plan(ctx, tt.req)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if preview.Enabled {
				t.Error("expected disabled plan")
			}
			if preview.Reason != tt.reason {
				t.Errorf("expected reason %q, got %q", tt.reason, preview.Reason)
			}
			if preview.Label != tt.label {
				t.Errorf("expected label %q, got %q", tt.label, preview.Label)
			}
		})
	}
}

func TestSequencerService_Plan_NoWallet(t *testing.T) {
	s := newStack(t, "")

	preview, err := s.sequencer.Plan(context.Background(), ActionRequest{Action: entities.ActionStake, Amount: "1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if preview.Reason != sequencer.ReasonNoWallet {
		t.Errorf("expected no wallet reason, got %q", preview.Reason)
	}
}

func TestSequencerService_Plan_UsesSelection(t *testing.T) {
	s := newStack(t, testutil.AliceAddress)
	ctx := context.Background()

	if _, err := s.selection.Select(ctx, testutil.AliceAddress, testutil.USDTAddress); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	preview, err := s.sequencer.Plan(ctx, ActionRequest{Wallet: testutil.AliceAddress, Action: entities.ActionStake, Amount: "1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if preview.Token == nil || preview.Token.Symbol != "USDT" {
		t.Fatalf("expected selected USDT, got %+v", preview.Token)
	}
	if preview.Kind != sequencer.PlanApprove {
		t.Errorf("expected approve first with zero allowance, got %s", preview.Kind)
	}
}

func TestSequencerService_Trigger_ApproveThenStake(t *testing.T) {
	s := newStack(t, testutil.AliceAddress)
	ctx := context.Background()
	s.reader.SetSnapshot(testutil.CreateTestSnapshot(testutil.AliceAddress, s.token))

	release := make(chan struct{})
	s.submitter.AwaitReceiptFunc = func(ctx context.Context, txHash string) (entities.ReceiptStatus, error) {
		select {
		case <-release:
			return entities.ReceiptSuccess, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	approve, err := s.sequencer.Trigger(ctx, stakeRequest("100"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if approve.Kind != entities.IntentApprove {
		t.Fatalf("expected approve intent, got %s", approve.Kind)
	}
	if approve.Status != entities.StatusAwaitingConfirmation {
		t.Errorf("expected awaiting confirmation, got %s", approve.Status)
	}
	if approve.Amount != testutil.Units(100, 18).String() {
		t.Errorf("expected approval of exactly 100 tokens, got %s", approve.Amount)
	}

	// A second trigger while the approval is pending is refused
	if _, err := s.sequencer.Trigger(ctx, stakeRequest("100")); !errors.Is(err, sequencer.ErrIntentInFlight) {
		t.Errorf("expected ErrIntentInFlight, got %v", err)
	}

	// The approval lands on chain before its receipt is observed
	s.reader.Update(testutil.AliceAddress, testutil.USDTAddress, func(snap *entities.ChainSnapshot) {
		snap.Allowance = testutil.Units(100, 18)
	})
	close(release)
	s.waitIdle(t, testutil.AliceAddress)

	confirmed := s.waitForStatus(t, approve.ID, entities.StatusConfirmed)
	if confirmed.TxHash == nil {
		t.Error("expected tx hash on confirmed intent")
	}

	success := s.notifier.OfKind(entities.NotifySuccess)
	if len(success) != 1 || success[0].Message != "Approve Successful!" {
		t.Errorf("expected approve success notification, got %+v", success)
	}

	// No automatic chaining
	if got := len(s.submitter.Submitted()); got != 1 {
		t.Fatalf("expected 1 submitted call, got %d", got)
	}

	stake, err := s.sequencer.Trigger(ctx, stakeRequest("100"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stake.Kind != entities.IntentStake {
		t.Errorf("expected stake after allowance update, got %s", stake.Kind)
	}

	calls := s.submitter.Submitted()
	if calls[1].Method != sequencer.MethodStakeToken || calls[1].Amount.Cmp(testutil.Units(100, 18)) != 0 {
		t.Errorf("unexpected stake call %+v", calls[1])
	}
}

func TestSequencerService_Trigger_SubmissionErrorIsVerbatim(t *testing.T) {
	s := newStack(t, testutil.AliceAddress)
	ctx := context.Background()
	s.reader.SetSnapshot(testutil.CreateTestSnapshot(testutil.AliceAddress, s.token,
		testutil.SnapshotWithAllowance(testutil.Units(1000, 18)),
	))

	s.submitter.SubmitFunc = func(ctx context.Context, call *sequencer.Call) (string, error) {
		return "", errors.New("insufficient funds for gas * price + value")
	}

	intent, err := s.sequencer.Trigger(ctx, stakeRequest("5"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if intent.Status != entities.StatusFailed {
		t.Fatalf("expected failed, got %s", intent.Status)
	}

	stored, _ := s.intents.Intent(intent.ID)
	if stored.Error == nil || *stored.Error != "insufficient funds for gas * price + value" {
		t.Errorf("expected verbatim error, got %v", stored.Error)
	}

	errs := s.notifier.OfKind(entities.NotifyError)
	if len(errs) != 1 || errs[0].Message != "insufficient funds for gas * price + value" {
		t.Errorf("expected verbatim error notification, got %+v", errs)
	}

	// Failed counts as idle
	if s.registry.Busy(testutil.AliceAddress, testutil.USDTAddress) {
		t.Error("expected pair to be idle after failure")
	}

	// No cache mutation on failure
	if s.cache.CallCount("DeletePattern") != 0 || s.cache.CallCount("Delete") != 0 {
		t.Error("expected cached reads to be left alone")
	}
}

func TestSequencerService_Trigger_SurvivesRequestCancel(t *testing.T) {
	s := newStack(t, testutil.AliceAddress)
	s.reader.SetSnapshot(testutil.CreateTestSnapshot(testutil.AliceAddress, s.token,
		testutil.SnapshotWithAllowance(testutil.Units(1000, 18)),
	))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.submitter.SubmitFunc = func(_ context.Context, call *sequencer.Call) (string, error) {
		// the client goes away while the transaction is being broadcast
		cancel()
		return "0x00000000000000000000000000000000000000000000000000000000000000ab", nil
	}
	release := make(chan struct{})
	s.submitter.AwaitReceiptFunc = func(ctx context.Context, txHash string) (entities.ReceiptStatus, error) {
		select {
		case <-release:
			return entities.ReceiptSuccess, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	intent, err := s.sequencer.Trigger(ctx, stakeRequest("5"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, _ := s.intents.Intent(intent.ID)
	if stored.Status != entities.StatusAwaitingConfirmation {
		t.Fatalf("expected awaiting confirmation in the journal, got %s", stored.Status)
	}
	if stored.TxHash == nil || *stored.TxHash != "0x00000000000000000000000000000000000000000000000000000000000000ab" {
		t.Fatalf("expected tx hash in the journal, got %v", stored.TxHash)
	}

	if err := s.reconciler.Reconcile(context.Background()); err != nil {
		t.Fatalf("unexpected reconcile error: %v", err)
	}

	close(release)
	s.waitForStatus(t, intent.ID, entities.StatusConfirmed)
	s.waitIdle(t, testutil.AliceAddress)

	if n := len(s.notifier.OfKind(entities.NotifySuccess)); n != 1 {
		t.Errorf("expected 1 success notification, got %d", n)
	}
	if n := len(s.notifier.OfKind(entities.NotifyError)); n != 0 {
		t.Errorf("expected no error notification, got %d", n)
	}
	if s.cache.CallCount("DeletePattern") == 0 {
		t.Error("expected cached reads to be invalidated")
	}
}

func TestSequencerService_Trigger_RevertedReceipt(t *testing.T) {
	s := newStack(t, testutil.AliceAddress)
	ctx := context.Background()
	s.reader.SetSnapshot(testutil.CreateTestSnapshot(testutil.AliceAddress, s.token,
		testutil.SnapshotWithAllowance(testutil.Units(1000, 18)),
	))
	s.submitter.AwaitReceiptFunc = func(ctx context.Context, txHash string) (entities.ReceiptStatus, error) {
		return entities.ReceiptFailure, nil
	}

	intent, err := s.sequencer.Trigger(ctx, stakeRequest("5"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	failed := s.waitForStatus(t, intent.ID, entities.StatusFailed)
	if failed.Error == nil || !strings.Contains(*failed.Error, "reverted") {
		t.Errorf("expected revert error, got %v", failed.Error)
	}
}

func TestSequencerService_Trigger_StakeConfirmationInvalidatesReads(t *testing.T) {
	s := newStack(t, testutil.AliceAddress)
	ctx := context.Background()
	s.reader.SetSnapshot(testutil.CreateTestSnapshot(testutil.AliceAddress, s.token,
		testutil.SnapshotWithAllowance(testutil.Units(1000, 18)),
	))

	intent, err := s.sequencer.Trigger(ctx, stakeRequest("5"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.waitIdle(t, testutil.AliceAddress)
	s.waitForStatus(t, intent.ID, entities.StatusConfirmed)

	if s.cache.Has(cache.ReadKey(testutil.AliceAddress, testutil.USDTAddress, cache.PartPool)) {
		t.Error("expected pool read to be invalidated")
	}
	if s.cache.CallCount("DeletePattern") != 1 {
		t.Errorf("expected one pattern invalidation, got %d", s.cache.CallCount("DeletePattern"))
	}
}

func TestSequencerService_Trigger_RepayBorrowApprovesMax(t *testing.T) {
	s := newStack(t, testutil.AliceAddress)
	ctx := context.Background()
	s.reader.SetSnapshot(testutil.CreateTestSnapshot(testutil.AliceAddress, s.token,
		testutil.SnapshotWithPosition(
			testutil.Units(2, 18), big.NewInt(0), testutil.Units(500, 18),
			big.NewInt(15000), testutil.Units(300, 18), testutil.Units(200, 18),
		),
		testutil.SnapshotWithAllowance(testutil.Units(10, 18)),
	))

	intent, err := s.sequencer.Trigger(ctx, ActionRequest{Token: testutil.USDTAddress, Action: entities.ActionRepay})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if intent.Kind != entities.IntentApprove {
		t.Fatalf("expected approve, got %s", intent.Kind)
	}
	if intent.Amount != sequencer.MaxUint256().String() {
		t.Errorf("expected max approval, got %s", intent.Amount)
	}
	if intent.Action != entities.ActionRepay {
		t.Errorf("expected repay action, got %s", intent.Action)
	}
}

func TestSequencerService_Trigger_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("no wallet", func(t *testing.T) {
		s := newStack(t, "")
		if _, err := s.sequencer.Trigger(ctx, stakeRequest("1")); !errors.Is(err, ErrNoWallet) {
			t.Errorf("expected ErrNoWallet, got %v", err)
		}
	})

	t.Run("wallet mismatch", func(t *testing.T) {
		s := newStack(t, testutil.BobAddress)
		if _, err := s.sequencer.Trigger(ctx, stakeRequest("1")); !errors.Is(err, ErrWalletMismatch) {
			t.Errorf("expected ErrWalletMismatch, got %v", err)
		}
	})

	t.Run("disabled plan", func(t *testing.T) {
		s := newStack(t, testutil.AliceAddress)
		if _, err := s.sequencer.Trigger(ctx, stakeRequest("")); !errors.Is(err, ErrActionDisabled) {
			t.Errorf("expected ErrActionDisabled, got %v", err)
		}
		if s.intents.CallCount("Create") != 0 {
			t.Error("expected no intent to be recorded")
		}
	})

	t.Run("unknown token", func(t *testing.T) {
		s := newStack(t, testutil.AliceAddress)
		req := stakeRequest("1")
		req.Token = testutil.BobAddress
		if _, err := s.sequencer.Trigger(ctx, req); !errors.Is(err, ErrTokenNotFound) {
			t.Errorf("expected ErrTokenNotFound, got %v", err)
		}
	})
}

func TestSequencerService_Stop_LeavesIntentAwaiting(t *testing.T) {
	s := newStack(t, testutil.AliceAddress)
	ctx := context.Background()
	s.reader.SetSnapshot(testutil.CreateTestSnapshot(testutil.AliceAddress, s.token,
		testutil.SnapshotWithAllowance(testutil.Units(1000, 18)),
	))
	s.submitter.AwaitReceiptFunc = func(ctx context.Context, txHash string) (entities.ReceiptStatus, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}

	intent, err := s.sequencer.Trigger(ctx, stakeRequest("5"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.sequencer.Stop()

	stored, _ := s.intents.Intent(intent.ID)
	if stored.Status != entities.StatusAwaitingConfirmation {
		t.Errorf("expected intent left for the reconciler, got %s", stored.Status)
	}
	if len(s.notifier.OfKind(entities.NotifyError)) != 0 {
		t.Error("expected no error notification on shutdown")
	}
}

func TestSequencerService_History(t *testing.T) {
	s := newStack(t, testutil.AliceAddress)
	ctx := context.Background()

	s.intents.AddIntent(testutil.CreateTestIntent(testutil.IntentWithID("a")))
	s.intents.AddIntent(testutil.CreateTestIntent(testutil.IntentWithID("b"), testutil.IntentWithWallet(testutil.BobAddress)))

	history, err := s.sequencer.History(ctx, testutil.AliceAddress, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history.Data) != 1 || history.Data[0].ID != "a" {
		t.Errorf("expected only alice's intent, got %+v", history.Data)
	}
	if history.InFlight == nil {
		t.Error("expected empty, non-nil in-flight list")
	}

	if _, err := s.sequencer.History(ctx, "bogus", 10, 0); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("expected ErrInvalidAddress, got %v", err)
	}
}

func TestSequencerService_Intent_NotFound(t *testing.T) {
	s := newStack(t, testutil.AliceAddress)

	_, err := s.sequencer.Intent(context.Background(), "9b2e7c1a-0000-4000-8000-000000000000")
	if !errors.Is(err, ErrIntentNotFound) {
		t.Errorf("expected ErrIntentNotFound, got %v", err)
	}

	_, err = s.sequencer.Intent(context.Background(), "not-a-uuid")
	if !errors.Is(err, ErrIntentNotFound) {
		t.Errorf("expected ErrIntentNotFound, got %v", err)
	}
}
