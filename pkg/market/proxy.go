package market

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/thetatoken/tdrop-marketplace/pkg/token"
)

// Proxy is a per-account delegated-execution handle. Asset owners
// approve the proxy's address on their tokens once; the proxy then
// moves those assets, but only under commands from the owner itself or
// from an exchange engine the registry has authenticated.
type Proxy struct {
	owner    common.Address
	addr     common.Address
	registry *Registry
}

func (p *Proxy) Owner() common.Address {
	return p.owner
}

func (p *Proxy) Addr() common.Address {
	return p.addr
}

// Execute routes one call through the proxy. The caller check runs
// before anything else: an unauthenticated command never reaches a
// token ledger. Direct calls run under the proxy's standing approvals;
// delegate calls run under the owner's own identity.
func (p *Proxy) Execute(caller common.Address, call Call, world *token.World) error {
	if caller != p.owner && !p.registry.Authenticated(caller) {
		return fmt.Errorf("%w: %s may not direct proxy of %s", ErrUnauthorized, caller.Hex(), p.owner.Hex())
	}

	backend, ok := world.Backend(call.Target)
	if !ok {
		return fmt.Errorf("%w: no token ledger at %s", ErrExecutionFailed, call.Target.Hex())
	}

	args, err := token.DecodeTransferArgs(call.Data)
	if err != nil {
		return fmt.Errorf("%w: bad call payload: %v", ErrExecutionFailed, err)
	}

	operator := p.addr
	if call.Kind == DelegateCall {
		operator = p.owner
	}

	if err := backend.TransferFrom(operator, args.From, args.To, args.Value); err != nil {
		return fmt.Errorf("%w: %v", ErrExecutionFailed, err)
	}
	return nil
}
