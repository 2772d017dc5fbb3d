package market

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/thetatoken/tdrop-marketplace/pkg/token"
)

// SwapAgent is the marketplace's single transfer operator: users
// approve the agent's address once per token and the marketplace
// directs it during settlement. Only the configured marketplace may
// command the agent.
type SwapAgent struct {
	addr        common.Address
	superAdmin  common.Address
	admin       common.Address
	marketplace common.Address
}

func NewSwapAgent(addr, superAdmin, admin common.Address) *SwapAgent {
	return &SwapAgent{addr: addr, superAdmin: superAdmin, admin: admin}
}

func (a *SwapAgent) Addr() common.Address {
	return a.addr
}

func (a *SwapAgent) SetMarketplace(caller, marketplace common.Address) error {
	if caller != a.admin && caller != a.superAdmin {
		return fmt.Errorf("%w: %s may not configure the swap agent", ErrUnauthorized, caller.Hex())
	}
	a.marketplace = marketplace
	return nil
}

// Transfer moves value with the agent's standing approval on the
// target token. The caller must be the configured marketplace.
func (a *SwapAgent) Transfer(caller common.Address, world *token.World, target common.Address, args token.TransferArgs) error {
	if (a.marketplace == common.Address{}) || caller != a.marketplace {
		return fmt.Errorf("%w: %s may not direct the swap agent", ErrUnauthorized, caller.Hex())
	}

	backend, ok := world.Backend(target)
	if !ok {
		return fmt.Errorf("%w: no token ledger at %s", ErrExecutionFailed, target.Hex())
	}

	if err := backend.TransferFrom(a.addr, args.From, args.To, args.Value); err != nil {
		return fmt.Errorf("%w: %v", ErrExecutionFailed, err)
	}
	return nil
}
