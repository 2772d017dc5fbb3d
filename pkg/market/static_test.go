package market

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thetatoken/tdrop-marketplace/pkg/token"
)

func TestTermsRoundTrip(t *testing.T) {
	in := Terms{
		Token0:  nftAddr,
		Token1:  erc20Addr,
		TokenID: big.NewInt(7777),
		Price:   big.NewInt(99),
	}
	out, err := DecodeTerms(EncodeTerms(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = DecodeTerms([]byte{0xff, 0xff})
	assert.Error(t, err)
}

func tradeCalls(seller, buyer common.Address, tokenID, price *big.Int) (sellCall, buyCall Call) {
	sellCall = Call{
		Target: nftAddr,
		Kind:   DirectCall,
		Data: token.EncodeTransferArgs(token.TransferArgs{
			From: seller, To: buyer, Value: tokenID,
		}),
	}
	buyCall = Call{
		Target: erc20Addr,
		Kind:   DirectCall,
		Data: token.EncodeTransferArgs(token.TransferArgs{
			From: buyer, To: seller, Value: price,
		}),
	}
	return
}

func TestERC721ForERC20Predicate(t *testing.T) {
	seller := common.BytesToAddress([]byte("seller"))
	buyer := common.BytesToAddress([]byte("buyer"))
	terms := Terms{
		Token0:  nftAddr,
		Token1:  erc20Addr,
		TokenID: big.NewInt(7777),
		Price:   big.NewInt(99),
	}
	sellCall, buyCall := tradeCalls(seller, buyer, big.NewInt(7777), big.NewInt(99))

	assert.NoError(t, erc721ForERC20(terms, sellCall, buyCall, nil))

	// the buying side validates the mirrored terms against the same
	// call pair
	buyTerms := Terms{
		Token0:  erc20Addr,
		Token1:  nftAddr,
		TokenID: big.NewInt(7777),
		Price:   big.NewInt(99),
	}
	assert.NoError(t, erc20ForERC721(buyTerms, buyCall, sellCall, nil))
}

func TestERC721ForERC20PredicateRejects(t *testing.T) {
	seller := common.BytesToAddress([]byte("seller"))
	buyer := common.BytesToAddress([]byte("buyer"))
	terms := Terms{
		Token0:  nftAddr,
		Token1:  erc20Addr,
		TokenID: big.NewInt(7777),
		Price:   big.NewInt(99),
	}

	// underpayment
	sellCall, buyCall := tradeCalls(seller, buyer, big.NewInt(7777), big.NewInt(98))
	assert.Error(t, erc721ForERC20(terms, sellCall, buyCall, nil))

	// wrong item
	sellCall, buyCall = tradeCalls(seller, buyer, big.NewInt(7778), big.NewInt(99))
	assert.Error(t, erc721ForERC20(terms, sellCall, buyCall, nil))

	// payment routed to a third party
	sellCall, buyCall = tradeCalls(seller, buyer, big.NewInt(7777), big.NewInt(99))
	buyCall.Data = token.EncodeTransferArgs(token.TransferArgs{
		From: buyer, To: common.BytesToAddress([]byte("eve")), Value: big.NewInt(99),
	})
	assert.Error(t, erc721ForERC20(terms, sellCall, buyCall, nil))

	// native value attached to a token-for-token trade
	sellCall, buyCall = tradeCalls(seller, buyer, big.NewInt(7777), big.NewInt(99))
	assert.Error(t, erc721ForERC20(terms, sellCall, buyCall, big.NewInt(1)))

	// wrong token ledger targeted
	sellCall.Target = erc20Addr
	assert.Error(t, erc721ForERC20(terms, sellCall, buyCall, nil))
}

func TestERC721ForETHPredicate(t *testing.T) {
	seller := common.BytesToAddress([]byte("seller"))
	buyer := common.BytesToAddress([]byte("buyer"))
	terms := Terms{
		Token0:  nftAddr,
		TokenID: big.NewInt(7777),
		Price:   big.NewInt(99),
	}
	sellCall := Call{
		Target: nftAddr,
		Kind:   DirectCall,
		Data: token.EncodeTransferArgs(token.TransferArgs{
			From: seller, To: buyer, Value: big.NewInt(7777),
		}),
	}

	assert.NoError(t, erc721ForETH(terms, sellCall, Call{}, big.NewInt(99)))

	// the attached value must equal the price exactly
	assert.Error(t, erc721ForETH(terms, sellCall, Call{}, big.NewInt(98)))
	assert.Error(t, erc721ForETH(terms, sellCall, Call{}, big.NewInt(100)))
	assert.Error(t, erc721ForETH(terms, sellCall, Call{}, nil))

	// the counter leg must be a bare value placeholder
	assert.Error(t, erc721ForETH(terms, sellCall, sellCall, big.NewInt(99)))

	buyTerms := Terms{
		Token1:  nftAddr,
		TokenID: big.NewInt(7777),
		Price:   big.NewInt(99),
	}
	assert.NoError(t, ethForERC721(buyTerms, Call{}, sellCall, big.NewInt(99)))
}

func TestPredicateRegistryDispatch(t *testing.T) {
	seller := common.BytesToAddress([]byte("seller"))
	buyer := common.BytesToAddress([]byte("buyer"))
	preds := NewStaticMarket(staticTarget)

	o := &Order{
		Registry:       registryAddr,
		Maker:          seller,
		StaticTarget:   staticTarget,
		StaticSelector: SelERC721ForERC20,
		StaticExtradata: EncodeTerms(Terms{
			Token0:  nftAddr,
			Token1:  erc20Addr,
			TokenID: big.NewInt(7777),
			Price:   big.NewInt(99),
		}),
		MaximumFill: 1,
	}
	sellCall, buyCall := tradeCalls(seller, buyer, big.NewInt(7777), big.NewInt(99))

	assert.NoError(t, preds.Check(o, sellCall, buyCall, nil))

	// unknown selector
	o2 := *o
	o2.StaticSelector = "NoSuchShape"
	assert.ErrorIs(t, preds.Check(&o2, sellCall, buyCall, nil), ErrPredicateRejected)

	// unknown static target
	o3 := *o
	o3.StaticTarget = common.BytesToAddress([]byte("elsewhere"))
	assert.ErrorIs(t, preds.Check(&o3, sellCall, buyCall, nil), ErrPredicateRejected)

	// undecodable terms
	o4 := *o
	o4.StaticExtradata = []byte{0xff}
	assert.ErrorIs(t, preds.Check(&o4, sellCall, buyCall, nil), ErrPredicateRejected)
}
