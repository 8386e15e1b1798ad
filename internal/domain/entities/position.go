package entities

import (
	"math/big"
)

// Side is the direction of an open position
type Side string

const (
	SideStake   Side = "Stake"
	SideBorrow  Side = "Borrow"
	SideUnknown Side = "Unknown"
)

// RawPosition is the tuple returned by the lending contract position query,
// in contract order.
type RawPosition struct {
	UserEthAmount           *big.Int `json:"user_eth_amount"`
	UserStakeTokenAmount    *big.Int `json:"user_stake_token_amount"`
	UserBorrowedTokenAmount *big.Int `json:"user_borrowed_token_amount"`
	HealthFactor            *big.Int `json:"health_factor"`    // scaled by 10^2
	Price                   *big.Int `json:"price"`            // scaled by 10^18
	LiquidatedPrice         *big.Int `json:"liquidated_price"` // scaled by 10^18
}

// NewRawPosition builds a tuple from the six contract outputs in order
func NewRawPosition(values ...*big.Int) *RawPosition {
	get := func(i int) *big.Int {
		if i < len(values) && values[i] != nil {
			return new(big.Int).Set(values[i])
		}
		return new(big.Int)
	}
	return &RawPosition{
		UserEthAmount:           get(0),
		UserStakeTokenAmount:    get(1),
		UserBorrowedTokenAmount: get(2),
		HealthFactor:            get(3),
		Price:                   get(4),
		LiquidatedPrice:         get(5),
	}
}

// IsAbsent reports whether the tuple describes no active position.
// A nil field counts as zero.
func (p *RawPosition) IsAbsent() bool {
	if p == nil {
		return true
	}
	return isZero(p.UserStakeTokenAmount) && isZero(p.UserBorrowedTokenAmount)
}

// DerivedPosition is the display-ready form of a RawPosition
type DerivedPosition struct {
	Pair             string       `json:"pair"`
	Side             Side         `json:"side"`
	Size             string       `json:"size"`
	Collateral       string       `json:"collateral"`
	LiquidationPrice string       `json:"liquidation_price"`
	MarkPrice        string       `json:"mark_price"`
	HealthFactorPct  string       `json:"health_factor_pct"`
	Warning          bool         `json:"warning"`
	Raw              *RawPosition `json:"raw"`
}

// PoolShareState is the pooled-vault accounting read for a (user, token) pair
type PoolShareState struct {
	UserShare    *big.Int `json:"user_share"`
	TotalReserve *big.Int `json:"total_reserve"`
	TotalSupply  *big.Int `json:"total_supply"`
}

func isZero(v *big.Int) bool {
	return v == nil || v.Sign() == 0
}
