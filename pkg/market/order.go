package market

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/google/uuid"
)

// CallKind distinguishes how a proxy routes a call: with the proxy's
// own standing authority, or delegated under the owner's identity.
type CallKind uint8

const (
	DirectCall CallKind = iota
	DelegateCall
)

// Call is a concrete low-level invocation paired one-to-one with an
// order. Data is opaque to the matching engine; only token backends
// and validation predicates interpret it. A zero target marks a native
// value leg with no call to execute.
type Call struct {
	Target common.Address
	Kind   CallKind
	Data   []byte
}

// Order is an immutable, signed intent to trade. Its identity is the
// hash of all fields, domain separated by chain id and exchange
// address; makers are responsible for unique salts per intent.
type Order struct {
	Registry        common.Address
	Maker           common.Address
	StaticTarget    common.Address
	StaticSelector  string
	StaticExtradata []byte
	MaximumFill     uint64
	ListingTime     uint64
	ExpirationTime  uint64
	Salt            *big.Int
}

// orderPreimage is the RLP layout the order hash commits to. ChainID
// and Exchange separate otherwise identical orders across deployments.
type orderPreimage struct {
	ChainID         uint64
	Exchange        common.Address
	Registry        common.Address
	Maker           common.Address
	StaticTarget    common.Address
	StaticSelector  string
	StaticExtradata []byte
	MaximumFill     uint64
	ListingTime     uint64
	ExpirationTime  uint64
	Salt            *big.Int
}

func (o *Order) Hash(chainID uint64, exchange common.Address) common.Hash {
	salt := o.Salt
	if salt == nil {
		salt = new(big.Int)
	}

	b, err := rlp.EncodeToBytes(orderPreimage{
		ChainID:         chainID,
		Exchange:        exchange,
		Registry:        o.Registry,
		Maker:           o.Maker,
		StaticTarget:    o.StaticTarget,
		StaticSelector:  o.StaticSelector,
		StaticExtradata: o.StaticExtradata,
		MaximumFill:     o.MaximumFill,
		ListingTime:     o.ListingTime,
		ExpirationTime:  o.ExpirationTime,
		Salt:            salt,
	})
	if err != nil {
		// should never happen
		panic(err)
	}

	return crypto.Keccak256Hash(b)
}

// NewSalt returns a random salt. Two orders with identical fields and
// salt collide, so every fresh intent needs a fresh salt.
func NewSalt() *big.Int {
	id := uuid.New()
	return new(big.Int).SetBytes(id[:])
}
