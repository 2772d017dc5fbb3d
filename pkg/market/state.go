package market

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"

	"github.com/thetatoken/tdrop-marketplace/pkg/mining"
)

// State is the persistent exchange state: fill counters keyed by order
// hash, per-asset price history, authentication grants, registered
// proxies, sold-before records and the payment token whitelist. It is
// a Merkle trie over a key/value store, so the whole marketplace state
// has a single root hash.
type State struct {
	db     *trie.Database
	diskDB ethdb.Database

	mu   sync.Mutex
	trie *trie.Trie
}

func NewState(diskDB ethdb.Database) *State {
	db := trie.NewDatabase(diskDB)
	t, err := trie.New(common.Hash{}, db)
	if err != nil {
		panic(err)
	}

	return &State{db: db, diskDB: diskDB, trie: t}
}

func NewMemState() *State {
	return NewState(ethdb.NewMemDatabase())
}

var (
	fillPrefix         = []byte{0}
	priceHistoryPrefix = []byte{1}
	grantPrefix        = []byte{2}
	proxyPrefix        = []byte{3}
	soldPrefix         = []byte{4}
	payWhitelistPrefix = []byte{5}
	bootstrapPrefix    = []byte{6}
)

func fillPath(hash common.Hash) []byte {
	return append(fillPrefix, hash[:]...)
}

func priceHistoryPath(asset common.Hash) []byte {
	return append(priceHistoryPrefix, asset[:]...)
}

func grantPath(addr common.Address) []byte {
	return append(grantPrefix, addr[:]...)
}

func proxyPath(owner common.Address) []byte {
	return append(proxyPrefix, owner[:]...)
}

func soldPath(asset common.Hash) []byte {
	return append(soldPrefix, asset[:]...)
}

func payWhitelistPath(addr common.Address) []byte {
	return append(payWhitelistPrefix, addr[:]...)
}

// AssetKey identifies one tradable item: a non-fungible token contract
// plus an item id.
func AssetKey(nft common.Address, tokenID *big.Int) common.Hash {
	if tokenID == nil {
		tokenID = new(big.Int)
	}
	return crypto.Keccak256Hash(nft[:], tokenID.Bytes())
}

// Fill returns the cumulative filled amount recorded for an order
// hash. The record persists forever; an exhausted or expired order can
// never be matched again.
func (s *State) Fill(hash common.Hash) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.trie.Get(fillPath(hash))
	if len(b) == 0 {
		return 0
	}

	var fill uint64
	err := rlp.DecodeBytes(b, &fill)
	if err != nil {
		panic(err)
	}
	return fill
}

func (s *State) SetFill(hash common.Hash, fill uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := rlp.EncodeToBytes(fill)
	if err != nil {
		panic(err)
	}
	s.trie.Update(fillPath(hash), b)
}

type priceHistoryRecord struct {
	HighestPrice    *big.Int
	LastTradeHeight uint64
}

// PriceHistory implements mining.HistoryStore.
func (s *State) PriceHistory(asset common.Hash) (mining.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.trie.Get(priceHistoryPath(asset))
	if len(b) == 0 {
		return mining.Record{}, false
	}

	var rec priceHistoryRecord
	err := rlp.DecodeBytes(b, &rec)
	if err != nil {
		panic(err)
	}
	return mining.Record{HighestPrice: rec.HighestPrice, LastTradeHeight: rec.LastTradeHeight}, true
}

func (s *State) UpdatePriceHistory(asset common.Hash, r mining.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	highest := r.HighestPrice
	if highest == nil {
		highest = new(big.Int)
	}

	b, err := rlp.EncodeToBytes(priceHistoryRecord{
		HighestPrice:    highest,
		LastTradeHeight: r.LastTradeHeight,
	})
	if err != nil {
		panic(err)
	}
	s.trie.Update(priceHistoryPath(asset), b)
}

// Bootstrapped reports whether the registry's one-shot initial grant
// has been used. The marker lives under its own key, never in the grant
// table, so it confers no authentication.
func (s *State) Bootstrapped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trie.Get(bootstrapPrefix)) > 0
}

func (s *State) SetBootstrapped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trie.Update(bootstrapPrefix, []byte{1})
}

func (s *State) Authenticated(addr common.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trie.Get(grantPath(addr))) > 0
}

func (s *State) SetAuthenticated(addr common.Address, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ok {
		s.trie.Update(grantPath(addr), []byte{1})
	} else {
		s.trie.Delete(grantPath(addr))
	}
}

func (s *State) ProxyAddr(owner common.Address) (common.Address, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.trie.Get(proxyPath(owner))
	if len(b) == 0 {
		return common.Address{}, false
	}
	return common.BytesToAddress(b), true
}

func (s *State) SetProxyAddr(owner, proxy common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trie.Update(proxyPath(owner), proxy[:])
}

// SoldBefore reports whether an asset has been sold through the
// marketplace before; it distinguishes primary from secondary market
// fee configurations.
func (s *State) SoldBefore(asset common.Hash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trie.Get(soldPath(asset))) > 0
}

func (s *State) MarkSold(asset common.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trie.Update(soldPath(asset), []byte{1})
}

func (s *State) PaymentTokenAllowed(addr common.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trie.Get(payWhitelistPath(addr))) > 0
}

func (s *State) WhitelistPaymentToken(addr common.Address, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ok {
		s.trie.Update(payWhitelistPath(addr), []byte{1})
	} else {
		s.trie.Delete(payWhitelistPath(addr))
	}
}

// Hash returns the state root.
func (s *State) Hash() common.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trie.Hash()
}

// Commit flushes the trie to the backing database and returns the new
// root.
func (s *State) Commit() (common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	root, err := s.trie.Commit(nil)
	if err != nil {
		return common.Hash{}, err
	}

	err = s.db.Commit(root, false)
	if err != nil {
		return common.Hash{}, err
	}
	return root, nil
}
