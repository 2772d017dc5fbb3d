package mining

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrInvalidParams is returned when an admin attempts to install a
// parameter set that would corrupt the reward curve (nil values,
// negative values, zero cap). Invalid sets are rejected outright,
// never clamped.
var ErrInvalidParams = errors.New("invalid mining parameters")

// Params is the process-wide reward curve configuration. It is treated
// as an immutable snapshot: the engine copies it on install and hands
// out copies, so a settlement in flight never observes a mid-update
// mix of old and new values.
type Params struct {
	// Epsilon is the floor reward paid on any eligible trade.
	Epsilon *big.Int
	// Alpha scales the price-appreciation component.
	Alpha *big.Int
	// Gamma plus one is the divisor normalizing the price increase.
	Gamma *big.Int
	// Omega controls how fast the decay factor approaches one as
	// blocks elapse between qualifying trades.
	Omega *big.Int
	// PriceThreshold is the minimum trade price eligible for any
	// reward.
	PriceThreshold *big.Int
	// MaxRewardPerTrade caps the reward after the epsilon floor is
	// added.
	MaxRewardPerTrade *big.Int
}

// Validate rejects parameter sets that would divide by zero or emit
// negative rewards.
func (p Params) Validate() error {
	fields := map[string]*big.Int{
		"epsilon":           p.Epsilon,
		"alpha":             p.Alpha,
		"gamma":             p.Gamma,
		"omega":             p.Omega,
		"priceThreshold":    p.PriceThreshold,
		"maxRewardPerTrade": p.MaxRewardPerTrade,
	}
	for name, v := range fields {
		if v == nil {
			return fmt.Errorf("%w: %s is nil", ErrInvalidParams, name)
		}
		if v.Sign() < 0 {
			return fmt.Errorf("%w: %s is negative", ErrInvalidParams, name)
		}
	}

	if p.MaxRewardPerTrade.Sign() == 0 {
		return fmt.Errorf("%w: maxRewardPerTrade is zero", ErrInvalidParams)
	}

	// the floor branch of the curve pays epsilon without consulting the
	// cap, so a floor above the cap would breach it
	if p.Epsilon.Cmp(p.MaxRewardPerTrade) > 0 {
		return fmt.Errorf("%w: epsilon %s exceeds maxRewardPerTrade %s", ErrInvalidParams, p.Epsilon, p.MaxRewardPerTrade)
	}
	return nil
}

func (p Params) clone() Params {
	cp := func(v *big.Int) *big.Int {
		if v == nil {
			return nil
		}
		return new(big.Int).Set(v)
	}
	return Params{
		Epsilon:           cp(p.Epsilon),
		Alpha:             cp(p.Alpha),
		Gamma:             cp(p.Gamma),
		Omega:             cp(p.Omega),
		PriceThreshold:    cp(p.PriceThreshold),
		MaxRewardPerTrade: cp(p.MaxRewardPerTrade),
	}
}
