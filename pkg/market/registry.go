package market

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	log "github.com/helinwang/log15"
)

// Registry issues identity proxies and keeps the set of exchange
// engines allowed to direct them. Users grant standing approvals to
// their own proxy address; the exchange only ever directs transfers
// the proxy is already approved for, it never holds custody itself.
type Registry struct {
	addr  common.Address
	owner common.Address
	state *State
}

func NewRegistry(addr, owner common.Address, state *State) *Registry {
	return &Registry{addr: addr, owner: owner, state: state}
}

func (r *Registry) Addr() common.Address {
	return r.addr
}

// RegisterProxy creates the owner's identity proxy, or returns the
// existing one. Registration is idempotent.
func (r *Registry) RegisterProxy(owner common.Address) *Proxy {
	if addr, ok := r.state.ProxyAddr(owner); ok {
		return &Proxy{owner: owner, addr: addr, registry: r}
	}

	addr := deriveProxyAddr(r.addr, owner)
	r.state.SetProxyAddr(owner, addr)
	log.Info("registered identity proxy", "owner", owner.Hex(), "proxy", addr.Hex())
	return &Proxy{owner: owner, addr: addr, registry: r}
}

// Proxy returns the owner's proxy if one has been registered.
func (r *Registry) Proxy(owner common.Address) (*Proxy, bool) {
	addr, ok := r.state.ProxyAddr(owner)
	if !ok {
		return nil, false
	}
	return &Proxy{owner: owner, addr: addr, registry: r}, true
}

// GrantInitialAuthentication installs the first authenticated exchange
// engine. It can be called exactly once, without an owner check, so a
// fresh deployment can bootstrap itself; every later change goes
// through the owner-gated setters.
func (r *Registry) GrantInitialAuthentication(exchange common.Address) error {
	if r.state.Bootstrapped() {
		return fmt.Errorf("%w: initial authentication already granted", ErrUnauthorized)
	}

	r.state.SetBootstrapped()
	r.state.SetAuthenticated(exchange, true)
	return nil
}

func (r *Registry) GrantAuthentication(caller, exchange common.Address) error {
	if caller != r.owner {
		return fmt.Errorf("%w: %s is not the registry owner", ErrUnauthorized, caller.Hex())
	}
	r.state.SetAuthenticated(exchange, true)
	return nil
}

// RevokeAuthentication withdraws an engine's grant. Revocation takes
// effect on the next match attempt; there is no in-flight cancel.
func (r *Registry) RevokeAuthentication(caller, exchange common.Address) error {
	if caller != r.owner {
		return fmt.Errorf("%w: %s is not the registry owner", ErrUnauthorized, caller.Hex())
	}
	r.state.SetAuthenticated(exchange, false)
	return nil
}

func (r *Registry) Authenticated(exchange common.Address) bool {
	return r.state.Authenticated(exchange)
}

func deriveProxyAddr(registry, owner common.Address) common.Address {
	h := crypto.Keccak256(registry[:], owner[:], []byte("identity-proxy"))
	return common.BytesToAddress(h[12:])
}
