package token

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// NonFungibleToken is an in-memory ledger of uniquely owned items.
// Ownership moves only through TransferFrom by the owner or an
// operator the owner approved for all items.
type NonFungibleToken struct {
	addr      common.Address
	owners    map[string]common.Address
	operators map[common.Address]map[common.Address]bool
	snapshots []nonFungibleSnapshot
}

type nonFungibleSnapshot struct {
	owners    map[string]common.Address
	operators map[common.Address]map[common.Address]bool
}

func NewNonFungibleToken(addr common.Address) *NonFungibleToken {
	return &NonFungibleToken{
		addr:      addr,
		owners:    make(map[string]common.Address),
		operators: make(map[common.Address]map[common.Address]bool),
	}
}

func (t *NonFungibleToken) Addr() common.Address {
	return t.addr
}

func idKey(id *big.Int) string {
	return id.String()
}

func (t *NonFungibleToken) Mint(to common.Address, id *big.Int) {
	t.owners[idKey(id)] = to
}

func (t *NonFungibleToken) OwnerOf(id *big.Int) (common.Address, bool) {
	owner, ok := t.owners[idKey(id)]
	return owner, ok
}

func (t *NonFungibleToken) SetApprovalForAll(owner, operator common.Address, approved bool) {
	m := t.operators[owner]
	if m == nil {
		m = make(map[common.Address]bool)
		t.operators[owner] = m
	}
	m[operator] = approved
}

func (t *NonFungibleToken) TransferFrom(operator, from, to common.Address, id *big.Int) error {
	owner, ok := t.owners[idKey(id)]
	if !ok {
		return fmt.Errorf("nonfungible transfer: unknown token %s", id)
	}

	if owner != from {
		return fmt.Errorf("nonfungible transfer: %s does not own token %s", from.Hex(), id)
	}

	if operator != from && !t.operators[from][operator] {
		return fmt.Errorf("nonfungible transfer: operator %s not approved", operator.Hex())
	}

	t.owners[idKey(id)] = to
	return nil
}

func (t *NonFungibleToken) Snapshot() int {
	owners := make(map[string]common.Address, len(t.owners))
	for k, v := range t.owners {
		owners[k] = v
	}

	operators := make(map[common.Address]map[common.Address]bool, len(t.operators))
	for k, v := range t.operators {
		inner := make(map[common.Address]bool, len(v))
		for ik, iv := range v {
			inner[ik] = iv
		}
		operators[k] = inner
	}

	t.snapshots = append(t.snapshots, nonFungibleSnapshot{owners: owners, operators: operators})
	return len(t.snapshots) - 1
}

func (t *NonFungibleToken) RevertToSnapshot(id int) {
	if id < 0 || id >= len(t.snapshots) {
		return
	}
	s := t.snapshots[id]
	t.owners = s.owners
	t.operators = s.operators
	t.snapshots = t.snapshots[:id]
}
