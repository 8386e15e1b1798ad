// Package sequencer decides which contract call a user action needs and
// tracks the submission lifecycle of that call.
package sequencer

import (
	"math/big"
	"strings"

	"github.com/holiman/uint256"

	"github.com/bimakw/vault-gateway/internal/domain/entities"
	"github.com/bimakw/vault-gateway/internal/domain/position"
	"github.com/bimakw/vault-gateway/internal/domain/units"
)

// PlanKind says whether a plan is runnable and what it runs first
type PlanKind string

const (
	PlanNone    PlanKind = "none"
	PlanApprove PlanKind = "approve"
	PlanExecute PlanKind = "execute"
)

// CallMethod is the contract function a Call invokes
type CallMethod string

const (
	MethodApprove      CallMethod = "approve"
	MethodStakeToken   CallMethod = "stakeToken"
	MethodUnStakeToken CallMethod = "unStakeToken"
	MethodRepayAll     CallMethod = "repayAll"
)

// Button labels
const (
	LabelEnterAmount = "Enter Amount"
	LabelApprove     = "Approve"
	LabelStake       = "Stake"
	LabelUnstake     = "Unstake"
	LabelRepay       = "Repay"
	LabelClose       = "Close"
)

// Reasons attached to a PlanNone
const (
	ReasonNoWallet      = "no wallet connected"
	ReasonNoToken       = "no token selected"
	ReasonNoAmount      = "no amount entered"
	ReasonInvalidAmount = "invalid amount"
	ReasonZeroAmount    = "amount must be greater than zero"
	ReasonNoPool        = "pool state not loaded"
	ReasonEmptyReserve  = "vault reserve is empty"
	ReasonNothingStaked = "nothing staked"
	ReasonExceedsStake  = "amount exceeds staked balance"
	ReasonNoPosition    = "no active position"
	ReasonOverflow      = "amount out of range"
	ReasonUnknownAction = "unknown action"
)

// Action is a user request against the selected token
type Action struct {
	Kind   entities.ActionKind `json:"action"`
	Amount string              `json:"amount,omitempty"`
}

// PlanContext carries the latest reads the decision depends on
type PlanContext struct {
	Wallet          string
	Token           *entities.Token
	LendingContract string
	Allowance       *big.Int
	Position        *entities.RawPosition
	Pool            *entities.PoolShareState
}

// Call is a single contract write
type Call struct {
	Method  CallMethod `json:"method"`
	Target  string     `json:"target"`
	Token   string     `json:"token"`
	Spender string     `json:"spender,omitempty"`
	Amount  *big.Int   `json:"amount,omitempty"`
}

// IntentKind maps the call to the intent kind recorded for it
func (c *Call) IntentKind() entities.IntentKind {
	switch c.Method {
	case MethodApprove:
		return entities.IntentApprove
	case MethodStakeToken:
		return entities.IntentStake
	case MethodUnStakeToken:
		return entities.IntentUnstake
	default:
		return entities.IntentRepay
	}
}

// Plan is the outcome of PlanAction
type Plan struct {
	Kind   PlanKind            `json:"kind"`
	Action entities.ActionKind `json:"action"`
	Call   *Call               `json:"call,omitempty"`
	Reason string              `json:"reason,omitempty"`
	Label  string              `json:"label"`
}

// Enabled reports whether the plan has a call to submit
func (p Plan) Enabled() bool {
	return p.Kind != PlanNone && p.Call != nil
}

// PlanAction decides the next contract call for action. Missing inputs and
// unmet preconditions produce a PlanNone with a reason, never an error.
func PlanAction(action Action, pctx PlanContext) Plan {
	switch action.Kind {
	case entities.ActionStake:
		return planStake(action, pctx)
	case entities.ActionUnstake:
		return planUnstake(action, pctx)
	case entities.ActionRepay:
		return planRepay(action, pctx)
	default:
		return none(action.Kind, "", ReasonUnknownAction)
	}
}

func planStake(action Action, pctx PlanContext) Plan {
	if p, ok := checkContext(action.Kind, LabelStake, pctx); !ok {
		return p
	}

	amount, reason := parseAmount(action.Amount, pctx.Token.Decimals)
	if reason != "" {
		return none(action.Kind, labelFor(reason, LabelStake), reason)
	}
	if _, overflow := uint256.FromBig(amount); overflow {
		return none(action.Kind, LabelStake, ReasonOverflow)
	}

	if lessThan(pctx.Allowance, amount) {
		return Plan{
			Kind:   PlanApprove,
			Action: action.Kind,
			Label:  LabelApprove,
			Call:   approveCall(pctx, amount),
		}
	}

	return Plan{
		Kind:   PlanExecute,
		Action: action.Kind,
		Label:  LabelStake,
		Call: &Call{
			Method: MethodStakeToken,
			Target: pctx.LendingContract,
			Token:  pctx.Token.Address,
			Amount: amount,
		},
	}
}

func planUnstake(action Action, pctx PlanContext) Plan {
	if p, ok := checkContext(action.Kind, LabelUnstake, pctx); !ok {
		return p
	}
	if strings.TrimSpace(action.Amount) == "" {
		return none(action.Kind, LabelEnterAmount, ReasonNoAmount)
	}
	if pctx.Pool == nil {
		return none(action.Kind, LabelUnstake, ReasonNoPool)
	}

	reserve, overflow := toUint256(pctx.Pool.TotalReserve)
	if overflow {
		return none(action.Kind, LabelUnstake, ReasonOverflow)
	}
	if reserve.IsZero() {
		return none(action.Kind, LabelUnstake, ReasonEmptyReserve)
	}

	share, reason := WithdrawalShare(action.Amount, pctx.Token.Decimals, pctx.Pool)
	if reason != "" {
		return none(action.Kind, labelFor(reason, LabelUnstake), reason)
	}

	return Plan{
		Kind:   PlanExecute,
		Action: action.Kind,
		Label:  LabelUnstake,
		Call: &Call{
			Method: MethodUnStakeToken,
			Target: pctx.LendingContract,
			Token:  pctx.Token.Address,
			Amount: share,
		},
	}
}

// WithdrawalShare converts a token amount into the pool share to burn.
// An amount equal to the full staked balance, either as displayed or exact,
// burns the whole user share so no dust is left behind.
func WithdrawalShare(amount string, decimals uint8, pool *entities.PoolShareState) (*big.Int, string) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, ReasonNoAmount
	}

	userShare, overflow := toUint256(pool.UserShare)
	if overflow {
		return nil, ReasonOverflow
	}

	if IsFullExit(amount, decimals, pool) {
		if userShare.IsZero() {
			return nil, ReasonNothingStaked
		}
		return userShare.ToBig(), ""
	}

	raw, reason := parseAmount(amount, decimals)
	if reason != "" {
		return nil, reason
	}

	value, overflow := uint256.FromBig(raw)
	if overflow {
		return nil, ReasonOverflow
	}
	supply, overflow := toUint256(pool.TotalSupply)
	if overflow {
		return nil, ReasonOverflow
	}
	reserve, overflow := toUint256(pool.TotalReserve)
	if overflow {
		return nil, ReasonOverflow
	}
	if reserve.IsZero() {
		return nil, ReasonEmptyReserve
	}

	share, overflow := new(uint256.Int).MulDivOverflow(value, supply, reserve)
	if overflow {
		return nil, ReasonOverflow
	}
	if share.Gt(userShare) {
		return nil, ReasonExceedsStake
	}
	return share.ToBig(), ""
}

// IsFullExit reports whether amount names the whole staked balance
func IsFullExit(amount string, decimals uint8, pool *entities.PoolShareState) bool {
	if pool == nil {
		return false
	}
	staked := position.StakedAmount(pool)
	amount = strings.TrimSpace(amount)

	if amount == StakedDisplay(staked, decimals) || amount == units.FormatUnits(staked, decimals) {
		return true
	}
	raw, err := units.ParseUnits(amount, decimals)
	return err == nil && raw.Sign() > 0 && raw.Cmp(staked) == 0
}

// StakedDisplay is the staked balance as shown next to the unstake input
func StakedDisplay(staked *big.Int, decimals uint8) string {
	return units.FormatFixed(staked, decimals, 4)
}

func planRepay(action Action, pctx PlanContext) Plan {
	if p, ok := checkContext(action.Kind, LabelRepay, pctx); !ok {
		return p
	}

	raw := pctx.Position
	if raw.IsAbsent() {
		return none(action.Kind, LabelClose, ReasonNoPosition)
	}

	if raw.UserBorrowedTokenAmount != nil && raw.UserBorrowedTokenAmount.Sign() > 0 {
		if lessThan(pctx.Allowance, raw.UserBorrowedTokenAmount) {
			return Plan{
				Kind:   PlanApprove,
				Action: action.Kind,
				Label:  LabelApprove,
				Call:   approveCall(pctx, MaxUint256()),
			}
		}
		return Plan{
			Kind:   PlanExecute,
			Action: action.Kind,
			Label:  LabelRepay,
			Call: &Call{
				Method: MethodRepayAll,
				Target: pctx.LendingContract,
				Token:  pctx.Token.Address,
			},
		}
	}

	return Plan{
		Kind:   PlanExecute,
		Action: action.Kind,
		Label:  LabelClose,
		Call: &Call{
			Method: MethodUnStakeToken,
			Target: pctx.LendingContract,
			Token:  pctx.Token.Address,
			Amount: new(big.Int).Set(raw.UserStakeTokenAmount),
		},
	}
}

// MaxUint256 returns 2^256 - 1
func MaxUint256() *big.Int {
	return new(uint256.Int).SetAllOne().ToBig()
}

func checkContext(kind entities.ActionKind, label string, pctx PlanContext) (Plan, bool) {
	if strings.TrimSpace(pctx.Wallet) == "" {
		return none(kind, label, ReasonNoWallet), false
	}
	if pctx.Token == nil || !pctx.Token.HasAddress() {
		return none(kind, label, ReasonNoToken), false
	}
	return Plan{}, true
}

func approveCall(pctx PlanContext, amount *big.Int) *Call {
	return &Call{
		Method:  MethodApprove,
		Target:  pctx.Token.Address,
		Token:   pctx.Token.Address,
		Spender: pctx.LendingContract,
		Amount:  amount,
	}
}

// parseAmount returns a reason instead of an error so callers can fold it
// straight into a disabled plan.
func parseAmount(s string, decimals uint8) (*big.Int, string) {
	if strings.TrimSpace(s) == "" {
		return nil, ReasonNoAmount
	}
	v, err := units.ParseUnits(s, decimals)
	if err != nil {
		return nil, ReasonInvalidAmount
	}
	if v.Sign() == 0 {
		return nil, ReasonZeroAmount
	}
	return v, ""
}

func labelFor(reason, fallback string) string {
	if reason == ReasonNoAmount {
		return LabelEnterAmount
	}
	return fallback
}

func lessThan(a, b *big.Int) bool {
	if a == nil {
		return b != nil && b.Sign() > 0
	}
	return a.Cmp(b) < 0
}

func toUint256(v *big.Int) (*uint256.Int, bool) {
	if v == nil {
		return new(uint256.Int), false
	}
	return uint256.FromBig(v)
}

func none(kind entities.ActionKind, label, reason string) Plan {
	return Plan{Kind: PlanNone, Action: kind, Label: label, Reason: reason}
}
