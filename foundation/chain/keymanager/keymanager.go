// Package keymanager declares the key manager service contract used by the
// confidential execution support. A key bundle is created on first access for
// a contract and cached for the process lifetime. Bundles are never rotated
// or deleted.
package keymanager

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// KeySize is the size of every key material managed by the service.
const KeySize = 32

// ContractID is a 256-bit identifier for a confidential contract, derived by
// hashing the contract address.
type ContractID [KeySize]byte

// ContractIDFromAddress derives the contract identifier for an address.
func ContractIDFromAddress(address common.Address) ContractID {
	return ContractID(crypto.Keccak256Hash(address.Bytes()))
}

// InputKeyPair is the keypair used to encrypt transaction input destined for
// a confidential contract.
type InputKeyPair struct {
	PK [KeySize]byte
	SK [KeySize]byte
}

// KeyBundle is the set of keys associated with one contract.
type KeyBundle struct {
	InputKeyPair InputKeyPair
	StateKey     [KeySize]byte // Symmetric key used to encrypt persisted contract storage.
	Checksum     []byte        // Checksum of the key manager state.
}

// SignedPublicKey is a public key with an attestation over the key manager
// state that produced it.
type SignedPublicKey struct {
	Key       [KeySize]byte
	Checksum  []byte
	Signature []byte // Sign(sk, key || checksum) from the key manager.
}

// Client represents the behavior required to be implemented by any package
// providing key management for confidential contracts.
type Client interface {

	// GetOrCreateKeys returns the key bundle for the contract, creating one
	// on first access. The call is idempotent per contract id for the
	// process lifetime.
	GetOrCreateKeys(id ContractID) (KeyBundle, error)

	// GetPublicKey returns the signed public key for the contract if the
	// contract is known to the key manager.
	GetPublicKey(id ContractID) (*SignedPublicKey, error)
}
