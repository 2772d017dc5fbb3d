package market

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SK wraps a secp256k1 private key used to sign order hashes.
type SK struct {
	key *ecdsa.PrivateKey
}

// Sig is a 65-byte recoverable secp256k1 signature over an order hash.
type Sig []byte

func RandKeyPair() (SK, common.Address) {
	key, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	return SK{key: key}, crypto.PubkeyToAddress(key.PublicKey)
}

func LoadSK(hexkey string) (SK, error) {
	key, err := crypto.HexToECDSA(hexkey)
	if err != nil {
		return SK{}, err
	}
	return SK{key: key}, nil
}

func (s SK) Addr() common.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

func (s SK) Hex() string {
	return fmt.Sprintf("%x", crypto.FromECDSA(s.key))
}

func (s SK) Sign(hash common.Hash) Sig {
	sig, err := crypto.Sign(hash[:], s.key)
	if err != nil {
		panic(err)
	}
	return Sig(sig)
}

// RecoverSigner returns the address that produced sig over hash.
// Authorization compares it against the order's maker, the same way an
// on-chain ecrecover check would.
func RecoverSigner(hash common.Hash, sig Sig) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}

	pub, err := crypto.SigToPub(hash[:], sig)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}
