// Package mining implements the liquidity mining reward curve: a
// price-history-aware emission function invoked as a side effect of
// every settled trade. All arithmetic is exact big integer math.
package mining

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/helinwang/log15"
)

// decayScale is the fixed denominator offset of the block-gap decay
// ratio: decay = omega*elapsed / (omega*elapsed + decayScale).
const decayScale = 1000000

// Record is the per-asset trading history the reward curve depends on.
// HighestPrice is monotonically non-decreasing across trades.
type Record struct {
	HighestPrice    *big.Int
	LastTradeHeight uint64
}

// HistoryStore persists price-history records keyed by asset
// identifier.
type HistoryStore interface {
	PriceHistory(asset common.Hash) (Record, bool)
	UpdatePriceHistory(asset common.Hash, r Record)
}

// RewardToken mints rewards to buyers.
type RewardToken interface {
	Mint(to common.Address, amount *big.Int) error
}

// Engine computes and mints the per-trade reward. It is driven by the
// settlement engine after a successful asset swap, inside the same
// atomic unit: a mint failure propagates up and rolls the trade back.
type Engine struct {
	mu            sync.Mutex
	enabled       bool
	whitelistOnly bool
	whitelist     map[common.Hash]bool
	params        Params
	token         RewardToken
	store         HistoryStore
}

func NewEngine(store HistoryStore) *Engine {
	return &Engine{
		store:     store,
		whitelist: make(map[common.Hash]bool),
	}
}

func (e *Engine) SetRewardToken(t RewardToken) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.token = t
}

func (e *Engine) Enable(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = on
}

func (e *Engine) EnableWhitelistOnly(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.whitelistOnly = on
}

func (e *Engine) WhitelistAsset(asset common.Hash, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.whitelist[asset] = ok
}

// SetParams validates and installs a new parameter snapshot.
func (e *Engine) SetParams(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.params = p.clone()
	return nil
}

func (e *Engine) Params() Params {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params.clone()
}

// OnTrade records a settled trade and mints the buyer's reward, if
// any. It returns the minted amount. The seller is never rewarded.
// The price-history record is updated for every trade that reaches the
// curve; trades filtered out up front (mining disabled, asset not
// whitelisted) leave the history untouched.
func (e *Engine) OnTrade(asset common.Hash, price *big.Int, height uint64, buyer common.Address) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.enabled {
		return new(big.Int), nil
	}
	if e.whitelistOnly && !e.whitelist[asset] {
		return new(big.Int), nil
	}
	if e.token == nil {
		return nil, errors.New("mining: reward token not configured")
	}
	if err := e.params.Validate(); err != nil {
		return nil, err
	}

	rec, ok := e.store.PriceHistory(asset)
	if !ok {
		rec = Record{HighestPrice: new(big.Int)}
	}

	elapsed := uint64(0)
	if height > rec.LastTradeHeight {
		elapsed = height - rec.LastTradeHeight
	}

	reward := rewardFor(e.params, price, rec.HighestPrice, elapsed)
	if reward.Sign() > 0 {
		if err := e.token.Mint(buyer, reward); err != nil {
			log.Warn("reward mint failed", "buyer", buyer.Hex(), "amount", reward, "err", err)
			return nil, err
		}
	}

	highest := rec.HighestPrice
	if price.Cmp(highest) > 0 {
		highest = new(big.Int).Set(price)
	}
	e.store.UpdatePriceHistory(asset, Record{
		HighestPrice:    highest,
		LastTradeHeight: height,
	})

	return reward, nil
}

// rewardFor evaluates the emission curve:
//
//	reward = alpha * ceil(log2(priceIncrease/(gamma+1) + 1))
//	         * (omega*elapsed) / (omega*elapsed + 1e6) + epsilon
//
// capped at maxRewardPerTrade after the epsilon floor is added. Trades
// at or below the price threshold earn nothing; trades above the
// threshold but below the historical high earn the bare floor.
func rewardFor(p Params, price, highest *big.Int, elapsed uint64) *big.Int {
	if price.Cmp(p.PriceThreshold) <= 0 {
		return new(big.Int)
	}

	increase := new(big.Int).Sub(price, highest)
	if increase.Sign() < 0 {
		return new(big.Int).Set(p.Epsilon)
	}

	normalized := new(big.Int).Div(increase, new(big.Int).Add(p.Gamma, big1))
	f := CeilLog2(new(big.Int).Add(normalized, big1))

	gapNumer := new(big.Int).Mul(p.Omega, new(big.Int).SetUint64(elapsed))
	gapDenom := new(big.Int).Add(gapNumer, big.NewInt(decayScale))

	reward := new(big.Int).Mul(p.Alpha, new(big.Int).SetUint64(f))
	reward.Mul(reward, gapNumer)
	reward.Div(reward, gapDenom)
	reward.Add(reward, p.Epsilon)

	if reward.Cmp(p.MaxRewardPerTrade) > 0 {
		reward.Set(p.MaxRewardPerTrade)
	}
	return reward
}
