package token

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// NativeLedger tracks native value balances. Value-for-asset legs are
// settled against it by the exchange directly; there is no operator
// concept, the exchange moves funds from whoever attached the value.
type NativeLedger struct {
	balances  map[common.Address]*big.Int
	snapshots []map[common.Address]*big.Int
}

func NewNativeLedger() *NativeLedger {
	return &NativeLedger{balances: make(map[common.Address]*big.Int)}
}

func (l *NativeLedger) Mint(to common.Address, amount *big.Int) {
	l.balances[to] = new(big.Int).Add(l.balanceOf(to), amount)
}

func (l *NativeLedger) balanceOf(holder common.Address) *big.Int {
	if b, ok := l.balances[holder]; ok {
		return b
	}
	return new(big.Int)
}

func (l *NativeLedger) BalanceOf(holder common.Address) *big.Int {
	return new(big.Int).Set(l.balanceOf(holder))
}

func (l *NativeLedger) Transfer(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("native transfer: invalid amount")
	}

	b := l.balanceOf(from)
	if b.Cmp(amount) < 0 {
		return fmt.Errorf("native transfer: insufficient balance of %s", from.Hex())
	}

	l.balances[from] = new(big.Int).Sub(b, amount)
	l.balances[to] = new(big.Int).Add(l.balanceOf(to), amount)
	return nil
}

func (l *NativeLedger) Snapshot() int {
	l.snapshots = append(l.snapshots, copyBalances(l.balances))
	return len(l.snapshots) - 1
}

func (l *NativeLedger) RevertToSnapshot(id int) {
	if id < 0 || id >= len(l.snapshots) {
		return
	}
	l.balances = l.snapshots[id]
	l.snapshots = l.snapshots[:id]
}
