package market

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/thetatoken/tdrop-marketplace/pkg/mining"
	"github.com/thetatoken/tdrop-marketplace/pkg/token"
)

const feeBasisPointsDenom = 10000

// Marketplace layers platform fees, payment whitelisting and
// liquidity mining over the settlement engine. Settlement routes
// transfers through the swap agent instead of per-maker proxies, so
// the payment leg can be decomposed into a seller earning and a
// platform fee inside the same atomic unit.
type Marketplace struct {
	*Exchange

	superAdmin   common.Address
	admin        common.Address
	feeRecipient common.Address

	agent  *SwapAgent
	mining *mining.Engine

	primaryBps   uint64
	secondaryBps uint64

	heightFn func() uint64
}

func NewMarketplace(chainID uint64, addr, superAdmin, admin, feeRecipient common.Address, registry *Registry, state *State, preds *PredicateRegistry, world *token.World) *Marketplace {
	return &Marketplace{
		Exchange:     NewExchange(chainID, addr, registry, state, preds, world),
		superAdmin:   superAdmin,
		admin:        admin,
		feeRecipient: feeRecipient,
		mining:       mining.NewEngine(state),
		heightFn:     func() uint64 { return 0 },
	}
}

func (m *Marketplace) requireAdmin(caller common.Address) error {
	if caller != m.admin && caller != m.superAdmin {
		return fmt.Errorf("%w: %s is not an admin", ErrUnauthorized, caller.Hex())
	}
	return nil
}

// SetAdmin replaces the admin. Only the super admin may do this.
func (m *Marketplace) SetAdmin(caller, admin common.Address) error {
	if caller != m.superAdmin {
		return fmt.Errorf("%w: %s is not the super admin", ErrUnauthorized, caller.Hex())
	}
	m.admin = admin
	return nil
}

func (m *Marketplace) SetPlatformFeeRecipient(caller, recipient common.Address) error {
	if err := m.requireAdmin(caller); err != nil {
		return err
	}
	m.feeRecipient = recipient
	return nil
}

func (m *Marketplace) SetPrimaryMarketFeeSplitBasisPoints(caller common.Address, bps uint64) error {
	if err := m.requireAdmin(caller); err != nil {
		return err
	}
	if bps > feeBasisPointsDenom {
		return fmt.Errorf("%w: basis points %d exceed %d", ErrConfigurationInvalid, bps, feeBasisPointsDenom)
	}
	m.primaryBps = bps
	return nil
}

func (m *Marketplace) SetSecondaryMarketFeeSplitBasisPoints(caller common.Address, bps uint64) error {
	if err := m.requireAdmin(caller); err != nil {
		return err
	}
	if bps > feeBasisPointsDenom {
		return fmt.Errorf("%w: basis points %d exceed %d", ErrConfigurationInvalid, bps, feeBasisPointsDenom)
	}
	m.secondaryBps = bps
	return nil
}

func (m *Marketplace) SetTokenSwapAgent(caller common.Address, agent *SwapAgent) error {
	if err := m.requireAdmin(caller); err != nil {
		return err
	}
	m.agent = agent
	return nil
}

func (m *Marketplace) SetRewardToken(caller common.Address, t mining.RewardToken) error {
	if err := m.requireAdmin(caller); err != nil {
		return err
	}
	m.mining.SetRewardToken(t)
	return nil
}

func (m *Marketplace) EnableLiquidityMining(caller common.Address, on bool) error {
	if err := m.requireAdmin(caller); err != nil {
		return err
	}
	m.mining.Enable(on)
	return nil
}

func (m *Marketplace) EnableMiningOnlyForWhitelistedAssets(caller common.Address, on bool) error {
	if err := m.requireAdmin(caller); err != nil {
		return err
	}
	m.mining.EnableWhitelistOnly(on)
	return nil
}

func (m *Marketplace) WhitelistMiningAsset(caller common.Address, asset common.Hash, ok bool) error {
	if err := m.requireAdmin(caller); err != nil {
		return err
	}
	m.mining.WhitelistAsset(asset, ok)
	return nil
}

func (m *Marketplace) UpdateLiquidityMiningParams(caller common.Address, p mining.Params) error {
	if err := m.requireAdmin(caller); err != nil {
		return err
	}
	if err := m.mining.SetParams(p); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigurationInvalid, err)
	}
	return nil
}

func (m *Marketplace) WhitelistPaymentToken(caller, tok common.Address, ok bool) error {
	if err := m.requireAdmin(caller); err != nil {
		return err
	}
	m.state.WhitelistPaymentToken(tok, ok)
	return nil
}

// SetHeightSource injects the block height used by the mining curve.
func (m *Marketplace) SetHeightSource(fn func() uint64) {
	m.heightFn = fn
}

func (m *Marketplace) Mining() *mining.Engine {
	return m.mining
}

// SplitFee returns (platformFee, sellerEarning) for a price under the
// given basis points: fee = floor(price * bps / 10000).
func SplitFee(price *big.Int, bps uint64) (*big.Int, *big.Int) {
	fee := new(big.Int).Mul(price, new(big.Int).SetUint64(bps))
	fee.Div(fee, big.NewInt(feeBasisPointsDenom))
	return fee, new(big.Int).Sub(price, fee)
}

// TradeNFT settles an item sale with the platform fee split and the
// post-settlement mining hand-off. Anyone may submit a token-for-token
// trade; value trades are submitted by the buyer with the price
// attached. A failed fee transfer or reward mint aborts the whole
// match.
func (m *Marketplace) TradeNFT(caller common.Address, value *big.Int, one *Order, sigOne Sig, callOne Call, two *Order, sigTwo Sig, callTwo Call, metadata common.Hash) (*MatchRecord, error) {
	sellOrder, sellCall, buyOrder := orientTrade(one, callOne, two, callTwo)
	if sellOrder == nil {
		return nil, fmt.Errorf("%w: no selling leg among selectors %s, %s", ErrPredicateRejected, one.StaticSelector, two.StaticSelector)
	}

	terms, err := DecodeTerms(sellOrder.StaticExtradata)
	if err != nil {
		return nil, fmt.Errorf("%w: bad selling terms: %v", ErrPredicateRejected, err)
	}

	nft := terms.Token0
	payToken := terms.Token1
	price := terms.Price
	seller := sellOrder.Maker
	buyer := buyOrder.Maker
	nativeLeg := payToken == common.Address{}
	asset := AssetKey(nft, terms.TokenID)

	// the whitelist check, the sold-before read and the fee split all
	// depend on shared state another settlement may be writing, so they
	// run inside the serialized section
	var fee, earning *big.Int
	pre := func() error {
		if !nativeLeg && !m.state.PaymentTokenAllowed(payToken) {
			return fmt.Errorf("%w: payment token %s not whitelisted", ErrPredicateRejected, payToken.Hex())
		}

		bps := m.primaryBps
		if m.state.SoldBefore(asset) {
			bps = m.secondaryBps
		}
		fee, earning = SplitFee(price, bps)
		return nil
	}

	exec := func() error {
		if m.agent == nil {
			return fmt.Errorf("%w: token swap agent not configured", ErrConfigurationInvalid)
		}

		itemArgs, err := token.DecodeTransferArgs(sellCall.Data)
		if err != nil {
			return fmt.Errorf("%w: bad item payload: %v", ErrExecutionFailed, err)
		}
		if err := m.agent.Transfer(m.addr, m.world, sellCall.Target, itemArgs); err != nil {
			return err
		}

		if nativeLeg {
			// value == price is already enforced by the predicates
			native := m.world.Native()
			if err := native.Transfer(caller, seller, earning); err != nil {
				return fmt.Errorf("%w: %v", ErrExecutionFailed, err)
			}
			if fee.Sign() > 0 {
				if err := native.Transfer(caller, m.feeRecipient, fee); err != nil {
					return fmt.Errorf("%w: %v", ErrExecutionFailed, err)
				}
			}
			return nil
		}

		if err := m.agent.Transfer(m.addr, m.world, payToken, token.TransferArgs{From: buyer, To: seller, Value: earning}); err != nil {
			return err
		}
		if fee.Sign() > 0 {
			if err := m.agent.Transfer(m.addr, m.world, payToken, token.TransferArgs{From: buyer, To: m.feeRecipient, Value: fee}); err != nil {
				return err
			}
		}
		return nil
	}

	post := func() error {
		if _, err := m.mining.OnTrade(asset, price, m.heightFn(), buyer); err != nil {
			return err
		}
		m.state.MarkSold(asset)
		return nil
	}

	return m.atomicMatch(caller, value, one, sigOne, callOne, two, sigTwo, callTwo, metadata, pre, exec, post)
}

// orientTrade identifies the selling (item) leg of a match.
func orientTrade(one *Order, callOne Call, two *Order, callTwo Call) (sellOrder *Order, sellCall Call, buyOrder *Order) {
	switch one.StaticSelector {
	case SelERC721ForERC20, SelERC721ForETH:
		return one, callOne, two
	}
	switch two.StaticSelector {
	case SelERC721ForERC20, SelERC721ForETH:
		return two, callTwo, one
	}
	return nil, Call{}, nil
}
