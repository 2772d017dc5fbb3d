package token

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// FungibleToken is an in-memory fungible token ledger with the usual
// balance/allowance semantics. It backs tests and the demo tooling;
// production deployments would wire a real token ledger behind the
// Fungible interface instead.
type FungibleToken struct {
	addr       common.Address
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
	snapshots  []fungibleSnapshot
}

type fungibleSnapshot struct {
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
}

func NewFungibleToken(addr common.Address) *FungibleToken {
	return &FungibleToken{
		addr:       addr,
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
	}
}

func (t *FungibleToken) Addr() common.Address {
	return t.addr
}

func (t *FungibleToken) Mint(to common.Address, amount *big.Int) {
	t.balances[to] = new(big.Int).Add(t.balanceOf(to), amount)
}

func (t *FungibleToken) Approve(owner, spender common.Address, amount *big.Int) {
	m := t.allowances[owner]
	if m == nil {
		m = make(map[common.Address]*big.Int)
		t.allowances[owner] = m
	}
	m[spender] = new(big.Int).Set(amount)
}

func (t *FungibleToken) Allowance(owner, spender common.Address) *big.Int {
	if a, ok := t.allowances[owner][spender]; ok {
		return new(big.Int).Set(a)
	}
	return new(big.Int)
}

func (t *FungibleToken) balanceOf(holder common.Address) *big.Int {
	if b, ok := t.balances[holder]; ok {
		return b
	}
	return new(big.Int)
}

func (t *FungibleToken) BalanceOf(holder common.Address) *big.Int {
	return new(big.Int).Set(t.balanceOf(holder))
}

// TransferFrom moves amount from one holder to another. The operator
// must either be the holder itself or hold a sufficient allowance,
// which is consumed by the transfer.
func (t *FungibleToken) TransferFrom(operator, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("fungible transfer: invalid amount")
	}

	if operator != from {
		allowed, ok := t.allowances[from][operator]
		if !ok || allowed.Cmp(amount) < 0 {
			return fmt.Errorf("fungible transfer: operator %s allowance too low", operator.Hex())
		}
		t.allowances[from][operator] = new(big.Int).Sub(allowed, amount)
	}

	b := t.balanceOf(from)
	if b.Cmp(amount) < 0 {
		return fmt.Errorf("fungible transfer: insufficient balance of %s", from.Hex())
	}

	t.balances[from] = new(big.Int).Sub(b, amount)
	t.balances[to] = new(big.Int).Add(t.balanceOf(to), amount)
	return nil
}

func (t *FungibleToken) Snapshot() int {
	t.snapshots = append(t.snapshots, fungibleSnapshot{
		balances:   copyBalances(t.balances),
		allowances: copyAllowances(t.allowances),
	})
	return len(t.snapshots) - 1
}

func (t *FungibleToken) RevertToSnapshot(id int) {
	if id < 0 || id >= len(t.snapshots) {
		return
	}
	s := t.snapshots[id]
	t.balances = s.balances
	t.allowances = s.allowances
	t.snapshots = t.snapshots[:id]
}

func copyBalances(m map[common.Address]*big.Int) map[common.Address]*big.Int {
	r := make(map[common.Address]*big.Int, len(m))
	for k, v := range m {
		r[k] = new(big.Int).Set(v)
	}
	return r
}

func copyAllowances(m map[common.Address]map[common.Address]*big.Int) map[common.Address]map[common.Address]*big.Int {
	r := make(map[common.Address]map[common.Address]*big.Int, len(m))
	for k, v := range m {
		r[k] = copyBalances(v)
	}
	return r
}
