package market

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/thetatoken/tdrop-marketplace/pkg/token"
)

// Terms is the commercial content of an order's static extradata: the
// two token addresses involved and the item id / price pair. The blob
// is opaque to the matching engine; predicates decode it.
type Terms struct {
	Token0  common.Address
	Token1  common.Address
	TokenID *big.Int
	Price   *big.Int
}

func EncodeTerms(t Terms) []byte {
	b, err := rlp.EncodeToBytes(t)
	if err != nil {
		// should never happen
		panic(err)
	}
	return b
}

func DecodeTerms(b []byte) (Terms, error) {
	var t Terms
	err := rlp.DecodeBytes(b, &t)
	if err != nil {
		return Terms{}, err
	}
	if t.TokenID == nil {
		t.TokenID = new(big.Int)
	}
	if t.Price == nil {
		t.Price = new(big.Int)
	}
	return t, nil
}

// PredicateFunc checks a proposed call (and its counter-call) against
// an order's terms. Predicates are pure: they read, they never mutate.
// value is the native amount attached to the settlement, nil or zero
// for token-for-token trades.
type PredicateFunc func(terms Terms, call, countercall Call, value *big.Int) error

type predicateKey struct {
	target   common.Address
	selector string
}

// PredicateRegistry dispatches an order's (static target, selector)
// pair to a registered predicate. Dispatch is capability style: an
// unknown pair simply fails the check.
type PredicateRegistry struct {
	preds map[predicateKey]PredicateFunc
}

func NewPredicateRegistry() *PredicateRegistry {
	return &PredicateRegistry{preds: make(map[predicateKey]PredicateFunc)}
}

func (r *PredicateRegistry) Register(target common.Address, selector string, fn PredicateFunc) {
	r.preds[predicateKey{target: target, selector: selector}] = fn
}

func (r *PredicateRegistry) Check(o *Order, call, countercall Call, value *big.Int) error {
	fn, ok := r.preds[predicateKey{target: o.StaticTarget, selector: o.StaticSelector}]
	if !ok {
		return fmt.Errorf("%w: no predicate %s at %s", ErrPredicateRejected, o.StaticSelector, o.StaticTarget.Hex())
	}

	terms, err := DecodeTerms(o.StaticExtradata)
	if err != nil {
		return fmt.Errorf("%w: bad terms: %v", ErrPredicateRejected, err)
	}

	if err := fn(terms, call, countercall, value); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPredicateRejected, o.StaticSelector, err)
	}
	return nil
}

// Static market selectors. A match is only recognized when the two
// orders' selectors form one of these complementary pairs.
const (
	SelERC721ForERC20 = "ERC721ForERC20"
	SelERC20ForERC721 = "ERC20ForERC721"
	SelERC721ForETH   = "ERC721ForETH"
	SelETHForERC721   = "ETHForERC721"
)

var counterSelector = map[string]string{
	SelERC721ForERC20: SelERC20ForERC721,
	SelERC20ForERC721: SelERC721ForERC20,
	SelERC721ForETH:   SelETHForERC721,
	SelETHForERC721:   SelERC721ForETH,
}

// NewStaticMarket returns a predicate registry with the standard trade
// shapes installed under the given static target address.
func NewStaticMarket(target common.Address) *PredicateRegistry {
	r := NewPredicateRegistry()
	r.Register(target, SelERC721ForERC20, erc721ForERC20)
	r.Register(target, SelERC20ForERC721, erc20ForERC721)
	r.Register(target, SelERC721ForETH, erc721ForETH)
	r.Register(target, SelETHForERC721, ethForERC721)
	return r
}

// erc721ForERC20 validates the selling leg of an item-for-fungible
// trade: this order's call hands over the item, the counter-call pays
// exactly the asking price in the agreed token.
func erc721ForERC20(terms Terms, call, countercall Call, value *big.Int) error {
	if value != nil && value.Sign() != 0 {
		return fmt.Errorf("unexpected native value")
	}

	if call.Target != terms.Token0 {
		return fmt.Errorf("call targets %s, terms name %s", call.Target.Hex(), terms.Token0.Hex())
	}
	if countercall.Target != terms.Token1 {
		return fmt.Errorf("counter call targets %s, terms name %s", countercall.Target.Hex(), terms.Token1.Hex())
	}

	item, err := token.DecodeTransferArgs(call.Data)
	if err != nil {
		return fmt.Errorf("bad item payload: %v", err)
	}
	payment, err := token.DecodeTransferArgs(countercall.Data)
	if err != nil {
		return fmt.Errorf("bad payment payload: %v", err)
	}

	if item.Value.Cmp(terms.TokenID) != 0 {
		return fmt.Errorf("token id mismatch: call %s, terms %s", item.Value, terms.TokenID)
	}
	if payment.Value.Cmp(terms.Price) != 0 {
		return fmt.Errorf("price mismatch: call %s, terms %s", payment.Value, terms.Price)
	}
	if item.To != payment.From || payment.To != item.From {
		return fmt.Errorf("legs do not settle between the same parties")
	}
	return nil
}

// erc20ForERC721 is the buying leg: this order's call pays, the
// counter-call delivers the item.
func erc20ForERC721(terms Terms, call, countercall Call, value *big.Int) error {
	return erc721ForERC20(Terms{
		Token0:  terms.Token1,
		Token1:  terms.Token0,
		TokenID: terms.TokenID,
		Price:   terms.Price,
	}, countercall, call, value)
}

// erc721ForETH validates the selling leg of an item-for-native-value
// trade. The attached value must equal the asking price exactly, which
// forces the buy and sell prices of a value trade to be identical.
func erc721ForETH(terms Terms, call, countercall Call, value *big.Int) error {
	if call.Target != terms.Token0 {
		return fmt.Errorf("call targets %s, terms name %s", call.Target.Hex(), terms.Token0.Hex())
	}
	if (terms.Token1 != common.Address{}) {
		return fmt.Errorf("native leg names token %s", terms.Token1.Hex())
	}
	if (countercall.Target != common.Address{}) || len(countercall.Data) != 0 {
		return fmt.Errorf("counter call is not a native value placeholder")
	}

	item, err := token.DecodeTransferArgs(call.Data)
	if err != nil {
		return fmt.Errorf("bad item payload: %v", err)
	}
	if item.Value.Cmp(terms.TokenID) != 0 {
		return fmt.Errorf("token id mismatch: call %s, terms %s", item.Value, terms.TokenID)
	}

	if value == nil || value.Cmp(terms.Price) != 0 {
		return fmt.Errorf("attached value %s does not equal price %s", value, terms.Price)
	}
	return nil
}

func ethForERC721(terms Terms, call, countercall Call, value *big.Int) error {
	return erc721ForETH(Terms{
		Token0:  terms.Token1,
		Token1:  terms.Token0,
		TokenID: terms.TokenID,
		Price:   terms.Price,
	}, countercall, call, value)
}
