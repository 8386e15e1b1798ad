// Package position turns raw lending contract tuples into display records.
package position

import (
	"math/big"

	"github.com/bimakw/vault-gateway/internal/domain/entities"
	"github.com/bimakw/vault-gateway/internal/domain/units"
)

const (
	// DefaultCollateralSymbol is the native asset posted as collateral
	DefaultCollateralSymbol = "BNB"

	priceDecimals        uint8 = 18
	healthFactorDecimals uint8 = 2
	collateralDecimals   uint8 = 18
	sizePlaces                 = 4
)

// healthFactorFloor is 100.00% in contract units
var healthFactorFloor = big.NewInt(10000)

// DerivePosition returns nil when either input is missing or the tuple holds
// neither stake nor debt.
func DerivePosition(raw *entities.RawPosition, token *entities.Token) *entities.DerivedPosition {
	return DeriveWithCollateral(raw, token, DefaultCollateralSymbol)
}

// DeriveWithCollateral is DerivePosition with an explicit collateral symbol
func DeriveWithCollateral(raw *entities.RawPosition, token *entities.Token, collateralSymbol string) *entities.DerivedPosition {
	if raw == nil || token == nil || raw.IsAbsent() {
		return nil
	}

	side, amount := sideOf(raw)

	return &entities.DerivedPosition{
		Pair:             token.Symbol + "/" + collateralSymbol,
		Side:             side,
		Size:             units.FormatFixed(amount, token.Decimals, sizePlaces) + " " + token.Symbol,
		Collateral:       units.FormatFixed(raw.UserEthAmount, collateralDecimals, sizePlaces) + " " + collateralSymbol,
		LiquidationPrice: units.FormatUnits(raw.LiquidatedPrice, priceDecimals),
		MarkPrice:        units.FormatUnits(raw.Price, priceDecimals),
		HealthFactorPct:  units.FormatFixed(raw.HealthFactor, healthFactorDecimals, 2) + "%",
		Warning:          raw.HealthFactor != nil && raw.HealthFactor.Cmp(healthFactorFloor) < 0,
		Raw:              raw,
	}
}

// sideOf picks the position side. Debt wins over stake.
func sideOf(raw *entities.RawPosition) (entities.Side, *big.Int) {
	switch {
	case positive(raw.UserBorrowedTokenAmount):
		return entities.SideBorrow, raw.UserBorrowedTokenAmount
	case positive(raw.UserStakeTokenAmount):
		return entities.SideStake, raw.UserStakeTokenAmount
	default:
		return entities.SideUnknown, new(big.Int)
	}
}

// StakedAmount converts a pool share into the underlying token amount.
// Zero supply yields zero.
func StakedAmount(state *entities.PoolShareState) *big.Int {
	if state == nil || !positive(state.TotalSupply) || state.UserShare == nil || state.TotalReserve == nil {
		return new(big.Int)
	}
	out := new(big.Int).Mul(state.UserShare, state.TotalReserve)
	return out.Quo(out, state.TotalSupply)
}

func positive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}
