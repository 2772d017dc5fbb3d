package token

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MintRewardToken is an in-memory reward token with a mint-only
// supply. FailMints forces mint errors, which tests use to exercise
// the settlement engine's rollback of an otherwise valid trade.
type MintRewardToken struct {
	balances  map[common.Address]*big.Int
	FailMints bool
}

func NewMintRewardToken() *MintRewardToken {
	return &MintRewardToken{balances: make(map[common.Address]*big.Int)}
}

func (t *MintRewardToken) Mint(to common.Address, amount *big.Int) error {
	if t.FailMints {
		return errors.New("reward token: mint disabled")
	}
	t.balances[to] = new(big.Int).Add(t.BalanceOf(to), amount)
	return nil
}

func (t *MintRewardToken) BalanceOf(holder common.Address) *big.Int {
	if b, ok := t.balances[holder]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}
