// Package market implements the order matching and atomic settlement
// engine: signed orders, identity proxies, pluggable validation
// predicates and the two-sided match protocol, plus the marketplace
// layer that adds fee splits and liquidity mining on top.
package market

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	log "github.com/helinwang/log15"

	"github.com/thetatoken/tdrop-marketplace/pkg/token"
)

const sigCacheSize = 4096

// ContractSigner lets a contract account approve order hashes instead
// of producing a key signature.
type ContractSigner interface {
	ApprovesHash(hash common.Hash) bool
}

// MatchRecord is emitted for every committed match.
type MatchRecord struct {
	HashOne  common.Hash
	HashTwo  common.Hash
	Caller   common.Address
	Metadata common.Hash
	Value    *big.Int
}

// Exchange is the atomic two-order settlement engine. A match attempt
// walks Validate, Authorize, Predicate-check, Fill-account, Execute
// and Commit; a failure at any stage aborts the whole attempt with no
// observable state change. A single settlement mutex serializes match
// attempts, so two submissions racing for the same order's remaining
// capacity resolve in lock order and the loser fails fill accounting.
type Exchange struct {
	chainID  uint64
	addr     common.Address
	registry *Registry
	state    *State
	preds    *PredicateRegistry
	world    *token.World

	now             func() uint64
	sigCache        *lru.Cache
	contractSigners map[common.Address]ContractSigner

	mu sync.Mutex
}

func NewExchange(chainID uint64, addr common.Address, registry *Registry, state *State, preds *PredicateRegistry, world *token.World) *Exchange {
	cache, err := lru.New(sigCacheSize)
	if err != nil {
		panic(err)
	}

	return &Exchange{
		chainID:         chainID,
		addr:            addr,
		registry:        registry,
		state:           state,
		preds:           preds,
		world:           world,
		now:             func() uint64 { return uint64(time.Now().Unix()) },
		sigCache:        cache,
		contractSigners: make(map[common.Address]ContractSigner),
	}
}

func (x *Exchange) Addr() common.Address {
	return x.addr
}

func (x *Exchange) Registry() *Registry {
	return x.registry
}

func (x *Exchange) State() *State {
	return x.state
}

func (x *Exchange) World() *token.World {
	return x.world
}

// SetClock replaces the time source used for order time windows.
func (x *Exchange) SetClock(now func() uint64) {
	x.now = now
}

// RegisterContractSigner installs a hash-approval callback for a
// contract maker.
func (x *Exchange) RegisterContractSigner(addr common.Address, s ContractSigner) {
	x.contractSigners[addr] = s
}

// OrderHash returns the order's identity under this exchange's domain.
func (x *Exchange) OrderHash(o *Order) common.Hash {
	return o.Hash(x.chainID, x.addr)
}

// Sign produces the maker's authorization over an order.
func (x *Exchange) Sign(o *Order, sk SK) Sig {
	return sk.Sign(x.OrderHash(o))
}

// AtomicMatch settles two complementary orders as one indivisible
// operation. The caller must be one of the two makers; the other
// order's authorization comes from its signature.
func (x *Exchange) AtomicMatch(caller common.Address, value *big.Int, one *Order, sigOne Sig, callOne Call, two *Order, sigTwo Sig, callTwo Call, metadata common.Hash) (*MatchRecord, error) {
	if caller != one.Maker && caller != two.Maker {
		return nil, fmt.Errorf("%w: caller %s is neither maker", ErrUnauthorized, caller.Hex())
	}
	return x.AtomicMatchWith(caller, value, one, sigOne, callOne, two, sigTwo, callTwo, metadata)
}

// AtomicMatchWith is the relayer form: any caller may submit a match
// when both signatures are supplied.
func (x *Exchange) AtomicMatchWith(caller common.Address, value *big.Int, one *Order, sigOne Sig, callOne Call, two *Order, sigTwo Sig, callTwo Call, metadata common.Hash) (*MatchRecord, error) {
	exec := func() error {
		return x.executeLegs(caller, value, one, callOne, two, callTwo)
	}
	return x.atomicMatch(caller, value, one, sigOne, callOne, two, sigTwo, callTwo, metadata, nil, exec, nil)
}

// atomicMatch runs the match state machine. pre runs first, still under
// the settlement mutex, so layered engines read shared state (payment
// whitelists, sold-before records) serialized with every other match.
// exec performs the Execute stage against a world snapshot; post runs
// extra settlement work (fee-split bookkeeping, mining) inside the same
// atomic unit. Fill counters are written only after both succeed.
func (x *Exchange) atomicMatch(caller common.Address, value *big.Int, one *Order, sigOne Sig, callOne Call, two *Order, sigTwo Sig, callTwo Call, metadata common.Hash, pre func() error, exec func() error, post func() error) (*MatchRecord, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	now := x.now()
	if err := x.validateOrder(one, now); err != nil {
		return nil, err
	}
	if err := x.validateOrder(two, now); err != nil {
		return nil, err
	}

	if pre != nil {
		if err := pre(); err != nil {
			return nil, err
		}
	}

	if counterSelector[one.StaticSelector] != two.StaticSelector {
		return nil, fmt.Errorf("%w: %s and %s are not complementary", ErrPredicateRejected, one.StaticSelector, two.StaticSelector)
	}

	hashOne := x.OrderHash(one)
	hashTwo := x.OrderHash(two)
	if hashOne == hashTwo {
		return nil, fmt.Errorf("%w: order matched against itself", ErrPredicateRejected)
	}

	if err := x.authorize(one, hashOne, sigOne, caller); err != nil {
		return nil, err
	}
	if err := x.authorize(two, hashTwo, sigTwo, caller); err != nil {
		return nil, err
	}

	if err := x.preds.Check(one, callOne, callTwo, value); err != nil {
		return nil, err
	}
	if err := x.preds.Check(two, callTwo, callOne, value); err != nil {
		return nil, err
	}

	// whole-item trades consume one fill unit per match
	const fillAmount = 1
	fillOne := x.state.Fill(hashOne)
	if fillOne+fillAmount > one.MaximumFill {
		return nil, fmt.Errorf("%w: order %s filled %d of %d", ErrFillExhausted, hashOne.Hex(), fillOne, one.MaximumFill)
	}
	fillTwo := x.state.Fill(hashTwo)
	if fillTwo+fillAmount > two.MaximumFill {
		return nil, fmt.Errorf("%w: order %s filled %d of %d", ErrFillExhausted, hashTwo.Hex(), fillTwo, two.MaximumFill)
	}

	snap := x.world.Snapshot()
	err := exec()
	if err == nil && post != nil {
		err = post()
	}
	if err != nil {
		x.world.RevertToSnapshot(snap)
		log.Warn("match aborted", "one", hashOne.Hex(), "two", hashTwo.Hex(), "err", err)
		return nil, err
	}

	x.state.SetFill(hashOne, fillOne+fillAmount)
	x.state.SetFill(hashTwo, fillTwo+fillAmount)

	rec := &MatchRecord{
		HashOne:  hashOne,
		HashTwo:  hashTwo,
		Caller:   caller,
		Metadata: metadata,
		Value:    value,
	}
	log.Info("orders matched", "one", hashOne.Hex(), "two", hashTwo.Hex(), "caller", caller.Hex())
	return rec, nil
}

func (x *Exchange) validateOrder(o *Order, now uint64) error {
	if (o.Maker == common.Address{}) {
		return fmt.Errorf("%w: order has zero maker", ErrUnauthorized)
	}
	if o.Registry != x.registry.Addr() {
		return fmt.Errorf("%w: order references registry %s", ErrUnauthorized, o.Registry.Hex())
	}
	if now < o.ListingTime {
		return fmt.Errorf("%w: listed at %d, now %d", ErrNotYetListed, o.ListingTime, now)
	}
	if now > o.ExpirationTime {
		return fmt.Errorf("%w: expired at %d, now %d", ErrTermExpired, o.ExpirationTime, now)
	}
	return nil
}

// authorize accepts an order when the caller is its maker, when the
// maker is a contract that approves the hash, or when a signature over
// the hash recovers to the maker. Recovered signatures are cached per
// (hash, sig) so resubmissions skip pubkey recovery.
func (x *Exchange) authorize(o *Order, hash common.Hash, sig Sig, caller common.Address) error {
	if caller == o.Maker {
		return nil
	}

	if signer, ok := x.contractSigners[o.Maker]; ok {
		if signer.ApprovesHash(hash) {
			return nil
		}
		return fmt.Errorf("%w: contract maker %s rejects hash %s", ErrUnauthorized, o.Maker.Hex(), hash.Hex())
	}

	cacheKey := string(append(hash.Bytes(), sig...))
	if v, ok := x.sigCache.Get(cacheKey); ok {
		if v.(common.Address) == o.Maker {
			return nil
		}
		return fmt.Errorf("%w: signature does not recover to maker %s", ErrUnauthorized, o.Maker.Hex())
	}

	signer, err := RecoverSigner(hash, sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	x.sigCache.Add(cacheKey, signer)
	if signer != o.Maker {
		return fmt.Errorf("%w: signature recovers to %s, maker is %s", ErrUnauthorized, signer.Hex(), o.Maker.Hex())
	}
	return nil
}

// executeLegs is the fee-free Execute stage: each call is routed
// through its own maker's identity proxy, then any attached native
// value moves from the caller to the value recipient in full.
func (x *Exchange) executeLegs(caller common.Address, value *big.Int, one *Order, callOne Call, two *Order, callTwo Call) error {
	if err := x.executeCall(one.Maker, callOne); err != nil {
		return err
	}
	if err := x.executeCall(two.Maker, callTwo); err != nil {
		return err
	}

	if value != nil && value.Sign() > 0 {
		seller, ok := valueRecipient(one, two)
		if !ok {
			return fmt.Errorf("%w: value attached to a trade without a native leg", ErrExecutionFailed)
		}
		if err := x.world.Native().Transfer(caller, seller, value); err != nil {
			return fmt.Errorf("%w: %v", ErrExecutionFailed, err)
		}
	}
	return nil
}

// executeCall routes a call through the maker's identity proxy. A
// zero-target call is the placeholder for a native value leg and
// executes nothing.
func (x *Exchange) executeCall(maker common.Address, call Call) error {
	if (call.Target == common.Address{}) {
		return nil
	}

	proxy, ok := x.registry.Proxy(maker)
	if !ok {
		return fmt.Errorf("%w: maker %s has no identity proxy", ErrExecutionFailed, maker.Hex())
	}
	return proxy.Execute(x.addr, call, x.world)
}

// valueRecipient returns the maker selling an item for native value.
func valueRecipient(one, two *Order) (common.Address, bool) {
	if one.StaticSelector == SelERC721ForETH {
		return one.Maker, true
	}
	if two.StaticSelector == SelERC721ForETH {
		return two.Maker, true
	}
	return common.Address{}, false
}
