// Package token holds the asset collaborators the exchange settles
// against: fungible and non-fungible token ledgers, the native value
// ledger, and the reward token minted by liquidity mining. The
// exchange core only ever talks to these through the interfaces below.
package token

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TransferArgs is the payload of a low-level call routed through an
// identity proxy. The matching engine treats it as opaque bytes; only
// token backends and validation predicates decode it. Value is the
// amount for fungible tokens and the token id for non-fungible ones.
type TransferArgs struct {
	From  common.Address
	To    common.Address
	Value *big.Int
}

// Backend is the execution surface a proxy dispatches transfer calls
// to. Snapshot/RevertToSnapshot give the settlement engine atomic
// rollback over every ledger touched by a match attempt.
type Backend interface {
	TransferFrom(operator, from, to common.Address, value *big.Int) error
	Snapshot() int
	RevertToSnapshot(id int)
}

type Fungible interface {
	Backend
	Approve(owner, spender common.Address, amount *big.Int)
	BalanceOf(holder common.Address) *big.Int
	Mint(to common.Address, amount *big.Int)
}

type NonFungible interface {
	Backend
	SetApprovalForAll(owner, operator common.Address, approved bool)
	OwnerOf(id *big.Int) (common.Address, bool)
	Mint(to common.Address, id *big.Int)
}

// RewardToken is the liquidity mining emission surface.
type RewardToken interface {
	Mint(to common.Address, amount *big.Int) error
	BalanceOf(holder common.Address) *big.Int
}

// World maps token addresses to their backends plus the native value
// ledger. The settlement engine snapshots the whole world before
// executing a match and reverts it wholesale on any failure.
type World struct {
	backends map[common.Address]Backend
	native   *NativeLedger
}

func NewWorld(native *NativeLedger) *World {
	return &World{
		backends: make(map[common.Address]Backend),
		native:   native,
	}
}

func (w *World) Register(addr common.Address, b Backend) {
	w.backends[addr] = b
}

func (w *World) Backend(addr common.Address) (Backend, bool) {
	b, ok := w.backends[addr]
	return b, ok
}

func (w *World) Native() *NativeLedger {
	return w.native
}

// WorldSnapshot remembers one revert point per registered backend.
type WorldSnapshot struct {
	backends map[common.Address]int
	native   int
}

func (w *World) Snapshot() WorldSnapshot {
	s := WorldSnapshot{backends: make(map[common.Address]int, len(w.backends))}
	for addr, b := range w.backends {
		s.backends[addr] = b.Snapshot()
	}
	if w.native != nil {
		s.native = w.native.Snapshot()
	}
	return s
}

func (w *World) RevertToSnapshot(s WorldSnapshot) {
	for addr, id := range s.backends {
		w.backends[addr].RevertToSnapshot(id)
	}
	if w.native != nil {
		w.native.RevertToSnapshot(s.native)
	}
}
