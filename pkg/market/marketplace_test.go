package market

import (
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thetatoken/tdrop-marketplace/pkg/mining"
	"github.com/thetatoken/tdrop-marketplace/pkg/token"
)

var (
	marketplaceAddr  = common.BytesToAddress([]byte("marketplace"))
	agentAddr        = common.BytesToAddress([]byte("swap-agent"))
	superAdminAddr   = common.BytesToAddress([]byte("super-admin"))
	adminAddr        = common.BytesToAddress([]byte("admin"))
	feeRecipientAddr = common.BytesToAddress([]byte("fee-recipient"))
	relayerAddr      = common.BytesToAddress([]byte("relayer"))
)

type mktbed struct {
	*testbed
	mkt   *Marketplace
	agent *SwapAgent
}

func newMktbed(t *testing.T) *mktbed {
	b := &mktbed{testbed: &testbed{}}
	b.sellerSK, b.seller = RandKeyPair()
	b.buyerSK, b.buyer = RandKeyPair()

	b.native = token.NewNativeLedger()
	b.nft = token.NewNonFungibleToken(nftAddr)
	b.erc20 = token.NewFungibleToken(erc20Addr)
	b.world = token.NewWorld(b.native)
	b.world.Register(nftAddr, b.nft)
	b.world.Register(erc20Addr, b.erc20)

	b.state = NewMemState()
	b.registry = NewRegistry(registryAddr, registryOwner, b.state)
	b.mkt = NewMarketplace(1, marketplaceAddr, superAdminAddr, adminAddr, feeRecipientAddr, b.registry, b.state, NewStaticMarket(staticTarget), b.world)
	b.exchange = b.mkt.Exchange
	b.mkt.SetClock(func() uint64 { return 1000 })

	b.agent = NewSwapAgent(agentAddr, superAdminAddr, adminAddr)
	require.NoError(t, b.agent.SetMarketplace(adminAddr, marketplaceAddr))
	require.NoError(t, b.mkt.SetTokenSwapAgent(adminAddr, b.agent))
	require.NoError(t, b.mkt.SetPrimaryMarketFeeSplitBasisPoints(adminAddr, 3000))
	require.NoError(t, b.mkt.SetSecondaryMarketFeeSplitBasisPoints(adminAddr, 1000))
	require.NoError(t, b.mkt.WhitelistPaymentToken(adminAddr, erc20Addr, true))

	// sellers and buyers approve the single swap agent once
	b.nft.Mint(b.seller, big.NewInt(7777))
	b.nft.SetApprovalForAll(b.seller, agentAddr, true)
	b.erc20.Mint(b.buyer, big.NewInt(1000))
	b.erc20.Approve(b.buyer, agentAddr, big.NewInt(99))

	return b
}

func (b *mktbed) trade(t *testing.T, caller common.Address, value *big.Int) (*MatchRecord, error) {
	t.Helper()
	sell, sellCall, buy, buyCall := b.tokenTrade()
	return b.mkt.TradeNFT(caller, value,
		sell, b.mkt.Sign(sell, b.sellerSK), sellCall,
		buy, b.mkt.Sign(buy, b.buyerSK), buyCall,
		common.Hash{})
}

func TestSplitFee(t *testing.T) {
	fee, earning := SplitFee(big.NewInt(99), 3000)
	assert.Equal(t, big.NewInt(29), fee)
	assert.Equal(t, big.NewInt(70), earning)

	fee, earning = SplitFee(big.NewInt(99), 0)
	assert.Zero(t, fee.Sign())
	assert.Equal(t, big.NewInt(99), earning)

	fee, earning = SplitFee(big.NewInt(99), 10000)
	assert.Equal(t, big.NewInt(99), fee)
	assert.Zero(t, earning.Sign())
}

func TestTradeNFTPrimarySale(t *testing.T) {
	b := newMktbed(t)

	_, err := b.trade(t, relayerAddr, nil)
	require.NoError(t, err)

	owner, _ := b.nft.OwnerOf(big.NewInt(7777))
	assert.Equal(t, b.buyer, owner)

	// price 99 at 3000 basis points: 29 to the platform, 70 to the
	// seller
	assert.Equal(t, big.NewInt(70), b.erc20.BalanceOf(b.seller))
	assert.Equal(t, big.NewInt(29), b.erc20.BalanceOf(feeRecipientAddr))
	assert.Equal(t, big.NewInt(901), b.erc20.BalanceOf(b.buyer))

	assert.True(t, b.state.SoldBefore(AssetKey(nftAddr, big.NewInt(7777))))
}

func TestTradeNFTSecondarySale(t *testing.T) {
	b := newMktbed(t)
	b.state.MarkSold(AssetKey(nftAddr, big.NewInt(7777)))

	_, err := b.trade(t, relayerAddr, nil)
	require.NoError(t, err)

	// a previously sold asset pays the secondary split: 9 and 90
	assert.Equal(t, big.NewInt(90), b.erc20.BalanceOf(b.seller))
	assert.Equal(t, big.NewInt(9), b.erc20.BalanceOf(feeRecipientAddr))
}

// gatedNFT stalls the first item transfer until released, keeping a
// settlement in flight while another one is submitted.
type gatedNFT struct {
	*token.NonFungibleToken
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedNFT) TransferFrom(operator, from, to common.Address, id *big.Int) error {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return g.NonFungibleToken.TransferFrom(operator, from, to, id)
}

func TestTradeNFTConcurrentResaleFeeSplit(t *testing.T) {
	b := newMktbed(t)
	buyer2SK, buyer2 := RandKeyPair()

	gated := &gatedNFT{
		NonFungibleToken: b.nft,
		entered:          make(chan struct{}),
		release:          make(chan struct{}),
	}
	b.world.Register(nftAddr, gated)

	b.nft.SetApprovalForAll(b.buyer, agentAddr, true)
	b.erc20.Mint(buyer2, big.NewInt(99))
	b.erc20.Approve(buyer2, agentAddr, big.NewInt(99))

	firstDone := make(chan error, 1)
	go func() {
		_, err := b.trade(t, relayerAddr, nil)
		firstDone <- err
	}()
	<-gated.entered

	// submit the resale while the first sale is still settling: it has
	// to wait for the settlement lock and must then classify against
	// the committed sold-before record, paying the secondary split
	sell := b.sellOrder(SelERC721ForERC20, Terms{
		Token0:  nftAddr,
		Token1:  erc20Addr,
		TokenID: big.NewInt(7777),
		Price:   big.NewInt(99),
	})
	sell.Maker = b.buyer
	buy := b.buyOrder(SelERC20ForERC721, Terms{
		Token0:  erc20Addr,
		Token1:  nftAddr,
		TokenID: big.NewInt(7777),
		Price:   big.NewInt(99),
	})
	buy.Maker = buyer2
	sellCall := Call{
		Target: nftAddr,
		Kind:   DirectCall,
		Data: token.EncodeTransferArgs(token.TransferArgs{
			From: b.buyer, To: buyer2, Value: big.NewInt(7777),
		}),
	}
	buyCall := Call{
		Target: erc20Addr,
		Kind:   DirectCall,
		Data: token.EncodeTransferArgs(token.TransferArgs{
			From: buyer2, To: b.buyer, Value: big.NewInt(99),
		}),
	}

	secondDone := make(chan error, 1)
	go func() {
		_, err := b.mkt.TradeNFT(relayerAddr, nil,
			sell, b.mkt.Sign(sell, b.buyerSK), sellCall,
			buy, b.mkt.Sign(buy, buyer2SK), buyCall,
			common.Hash{})
		secondDone <- err
	}()

	time.Sleep(50 * time.Millisecond)
	close(gated.release)

	require.NoError(t, <-firstDone)
	require.NoError(t, <-secondDone)

	// primary 29 on the first sale plus secondary 9 on the resale
	assert.Equal(t, big.NewInt(38), b.erc20.BalanceOf(feeRecipientAddr))
	owner, _ := b.nft.OwnerOf(big.NewInt(7777))
	assert.Equal(t, buyer2, owner)
}

func TestTradeNFTNativePayment(t *testing.T) {
	b := newMktbed(t)
	b.native.Mint(b.buyer, big.NewInt(100))

	sell := b.sellOrder(SelERC721ForETH, Terms{
		Token0:  nftAddr,
		TokenID: big.NewInt(7777),
		Price:   big.NewInt(99),
	})
	buy := b.buyOrder(SelETHForERC721, Terms{
		Token1:  nftAddr,
		TokenID: big.NewInt(7777),
		Price:   big.NewInt(99),
	})
	sellCall := Call{
		Target: nftAddr,
		Kind:   DirectCall,
		Data: token.EncodeTransferArgs(token.TransferArgs{
			From: b.seller, To: b.buyer, Value: big.NewInt(7777),
		}),
	}

	_, err := b.mkt.TradeNFT(b.buyer, big.NewInt(99),
		sell, b.mkt.Sign(sell, b.sellerSK), sellCall,
		buy, nil, Call{}, common.Hash{})
	require.NoError(t, err)

	assert.Equal(t, big.NewInt(70), b.native.BalanceOf(b.seller))
	assert.Equal(t, big.NewInt(29), b.native.BalanceOf(feeRecipientAddr))
	assert.Equal(t, big.NewInt(1), b.native.BalanceOf(b.buyer))
}

func TestTradeNFTPaymentTokenWhitelist(t *testing.T) {
	b := newMktbed(t)
	require.NoError(t, b.mkt.WhitelistPaymentToken(adminAddr, erc20Addr, false))

	_, err := b.trade(t, relayerAddr, nil)
	assert.ErrorIs(t, err, ErrPredicateRejected)
}

func miningParams() mining.Params {
	dec18 := func(n int64) *big.Int {
		d := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
		return d.Mul(d, big.NewInt(n))
	}
	return mining.Params{
		Epsilon:           dec18(1),
		Alpha:             dec18(1),
		Gamma:             new(big.Int).Sub(big.NewInt(10000000000000), big.NewInt(1)),
		Omega:             big.NewInt(100000),
		PriceThreshold:    new(big.Int).Div(dec18(3), big.NewInt(2)),
		MaxRewardPerTrade: dec18(1000),
	}
}

func enableMining(t *testing.T, b *mktbed) *token.MintRewardToken {
	t.Helper()
	tok := token.NewMintRewardToken()
	require.NoError(t, b.mkt.SetRewardToken(adminAddr, tok))
	require.NoError(t, b.mkt.UpdateLiquidityMiningParams(adminAddr, miningParams()))
	require.NoError(t, b.mkt.EnableLiquidityMining(adminAddr, true))
	b.mkt.SetHeightSource(func() uint64 { return 11 })
	return tok
}

func TestTradeNFTMintsReward(t *testing.T) {
	b := newMktbed(t)
	tok := enableMining(t, b)

	price := new(big.Int).Mul(big.NewInt(122), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	b.erc20.Mint(b.buyer, price)
	b.erc20.Approve(b.buyer, agentAddr, price)

	sell := b.sellOrder(SelERC721ForERC20, Terms{
		Token0:  nftAddr,
		Token1:  erc20Addr,
		TokenID: big.NewInt(7777),
		Price:   price,
	})
	buy := b.buyOrder(SelERC20ForERC721, Terms{
		Token0:  erc20Addr,
		Token1:  nftAddr,
		TokenID: big.NewInt(7777),
		Price:   price,
	})
	sellCall := Call{
		Target: nftAddr,
		Kind:   DirectCall,
		Data: token.EncodeTransferArgs(token.TransferArgs{
			From: b.seller, To: b.buyer, Value: big.NewInt(7777),
		}),
	}
	buyCall := Call{
		Target: erc20Addr,
		Kind:   DirectCall,
		Data: token.EncodeTransferArgs(token.TransferArgs{
			From: b.buyer, To: b.seller, Value: price,
		}),
	}

	_, err := b.mkt.TradeNFT(relayerAddr, nil,
		sell, b.mkt.Sign(sell, b.sellerSK), sellCall,
		buy, b.mkt.Sign(buy, b.buyerSK), buyCall,
		common.Hash{})
	require.NoError(t, err)

	// the buyer earns the reward, the seller earns nothing
	assert.True(t, tok.BalanceOf(b.buyer).Sign() > 0)
	assert.Zero(t, tok.BalanceOf(b.seller).Sign())

	rec, ok := b.state.PriceHistory(AssetKey(nftAddr, big.NewInt(7777)))
	require.True(t, ok)
	assert.Equal(t, price, rec.HighestPrice)
	assert.Equal(t, uint64(11), rec.LastTradeHeight)
}

func TestTradeNFTRewardMintFailureAborts(t *testing.T) {
	b := newMktbed(t)
	tok := enableMining(t, b)
	tok.FailMints = true

	price := new(big.Int).Mul(big.NewInt(122), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	b.erc20.Mint(b.buyer, price)
	b.erc20.Approve(b.buyer, agentAddr, price)
	before := b.erc20.BalanceOf(b.buyer)

	sell := b.sellOrder(SelERC721ForERC20, Terms{
		Token0:  nftAddr,
		Token1:  erc20Addr,
		TokenID: big.NewInt(7777),
		Price:   price,
	})
	buy := b.buyOrder(SelERC20ForERC721, Terms{
		Token0:  erc20Addr,
		Token1:  nftAddr,
		TokenID: big.NewInt(7777),
		Price:   price,
	})
	sellCall := Call{
		Target: nftAddr,
		Kind:   DirectCall,
		Data: token.EncodeTransferArgs(token.TransferArgs{
			From: b.seller, To: b.buyer, Value: big.NewInt(7777),
		}),
	}
	buyCall := Call{
		Target: erc20Addr,
		Kind:   DirectCall,
		Data: token.EncodeTransferArgs(token.TransferArgs{
			From: b.buyer, To: b.seller, Value: price,
		}),
	}

	_, err := b.mkt.TradeNFT(relayerAddr, nil,
		sell, b.mkt.Sign(sell, b.sellerSK), sellCall,
		buy, b.mkt.Sign(buy, b.buyerSK), buyCall,
		common.Hash{})
	require.Error(t, err)

	// the reward mint is a hard dependency: the whole trade unwinds
	owner, _ := b.nft.OwnerOf(big.NewInt(7777))
	assert.Equal(t, b.seller, owner)
	assert.Equal(t, before, b.erc20.BalanceOf(b.buyer))
	assert.Zero(t, b.erc20.BalanceOf(b.seller).Sign())
	assert.False(t, b.state.SoldBefore(AssetKey(nftAddr, big.NewInt(7777))))
	assert.Equal(t, uint64(0), b.state.Fill(b.mkt.OrderHash(sell)))
}

func TestTradeNFTAgentUnset(t *testing.T) {
	b := newMktbed(t)
	require.NoError(t, b.mkt.SetTokenSwapAgent(adminAddr, nil))

	_, err := b.trade(t, relayerAddr, nil)
	assert.ErrorIs(t, err, ErrConfigurationInvalid)
}

func TestMarketplaceAdminGating(t *testing.T) {
	b := newMktbed(t)
	stranger := common.BytesToAddress([]byte("stranger"))

	assert.ErrorIs(t, b.mkt.SetAdmin(adminAddr, stranger), ErrUnauthorized)
	require.NoError(t, b.mkt.SetAdmin(superAdminAddr, stranger))

	assert.ErrorIs(t, b.mkt.SetPlatformFeeRecipient(adminAddr, stranger), ErrUnauthorized)
	assert.ErrorIs(t, b.mkt.SetPrimaryMarketFeeSplitBasisPoints(adminAddr, 100), ErrUnauthorized)
	require.NoError(t, b.mkt.SetPrimaryMarketFeeSplitBasisPoints(stranger, 100))

	// the super admin retains every admin capability
	require.NoError(t, b.mkt.SetSecondaryMarketFeeSplitBasisPoints(superAdminAddr, 50))
}

func TestMarketplaceConfigValidation(t *testing.T) {
	b := newMktbed(t)

	assert.ErrorIs(t, b.mkt.SetPrimaryMarketFeeSplitBasisPoints(adminAddr, 10001), ErrConfigurationInvalid)
	assert.ErrorIs(t, b.mkt.SetSecondaryMarketFeeSplitBasisPoints(adminAddr, 20000), ErrConfigurationInvalid)

	bad := miningParams()
	bad.MaxRewardPerTrade = big.NewInt(0)
	assert.ErrorIs(t, b.mkt.UpdateLiquidityMiningParams(adminAddr, bad), ErrConfigurationInvalid)
}

func TestSwapAgentGating(t *testing.T) {
	b := newMktbed(t)
	stranger := common.BytesToAddress([]byte("stranger"))

	assert.ErrorIs(t, b.agent.SetMarketplace(stranger, stranger), ErrUnauthorized)

	// only the configured marketplace may direct the agent
	err := b.agent.Transfer(stranger, b.world, erc20Addr, token.TransferArgs{
		From: b.buyer, To: stranger, Value: big.NewInt(1),
	})
	assert.ErrorIs(t, err, ErrUnauthorized)
}
