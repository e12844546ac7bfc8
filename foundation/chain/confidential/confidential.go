// Package confidential bridges the key manager and the execution engine so
// persisted contract storage is opaque to anyone without the matching key
// bundle. Values are encrypted before they reach the store and decrypted on
// read. The simulation path runs without a context and accesses storage in
// plaintext, which is a deliberate simplification of this design.
package confidential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/oasislabs/oasis-chain/foundation/chain/keymanager"
	"github.com/oasislabs/oasis-chain/foundation/chain/storage"
)

// Context provides per-contract storage encryption backed by key bundles
// from the key manager. Bundles are fetched lazily and cached for the
// process lifetime.
type Context struct {
	km      keymanager.Client
	mu      sync.Mutex
	bundles map[keymanager.ContractID]keymanager.KeyBundle
}

// New constructs a confidential execution context against the specified key
// manager client.
func New(km keymanager.Client) *Context {
	return &Context{
		km:      km,
		bundles: make(map[keymanager.ContractID]keymanager.KeyBundle),
	}
}

// Keys returns the key bundle for the contract, asking the key manager to
// create one on first access.
func (c *Context) Keys(contract common.Address) (keymanager.KeyBundle, error) {
	id := keymanager.ContractIDFromAddress(contract)

	c.mu.Lock()
	defer c.mu.Unlock()

	if bundle, exists := c.bundles[id]; exists {
		return bundle, nil
	}

	bundle, err := c.km.GetOrCreateKeys(id)
	if err != nil {
		return keymanager.KeyBundle{}, fmt.Errorf("key manager: %w", err)
	}

	c.bundles[id] = bundle
	return bundle, nil
}

// WrapStore returns a view over the specified store that encrypts values
// under the contract's state key before persistence and decrypts them on
// read. Keys pass through unmodified.
func (c *Context) WrapStore(contract common.Address, store storage.KVStore) (storage.KVStore, error) {
	bundle, err := c.Keys(contract)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(bundle.StateKey[:])
	if err != nil {
		return nil, fmt.Errorf("constructing cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("constructing aead: %w", err)
	}

	return &cipherStore{store: store, aead: aead}, nil
}

// =============================================================================

// cipherStore is a KVStore view that seals values on the way in and opens
// them on the way out.
type cipherStore struct {
	store storage.KVStore
	aead  cipher.AEAD
}

// Get returns the decrypted value stored under the key. A value that fails
// to authenticate is treated as missing.
func (cs *cipherStore) Get(key []byte) ([]byte, bool) {
	sealed, exists := cs.store.Get(key)
	if !exists {
		return nil, false
	}

	return cs.open(sealed)
}

// Insert encrypts the value and stores it under the key, returning the
// decrypted previous value if one existed.
func (cs *cipherStore) Insert(key []byte, value []byte) ([]byte, bool) {
	old, existed := cs.store.Insert(key, cs.seal(value))
	if !existed {
		return nil, false
	}

	return cs.open(old)
}

// Remove deletes the value stored under the key, returning the decrypted
// previous value if one existed.
func (cs *cipherStore) Remove(key []byte) ([]byte, bool) {
	old, existed := cs.store.Remove(key)
	if !existed {
		return nil, false
	}

	return cs.open(old)
}

// seal encrypts the value with a fresh random nonce prepended to the
// ciphertext. crypto/rand never fails, so a write is never dropped.
func (cs *cipherStore) seal(value []byte) []byte {
	nonce := make([]byte, cs.aead.NonceSize())
	rand.Read(nonce)

	return cs.aead.Seal(nonce, nonce, value, nil)
}

// open authenticates and decrypts a sealed value.
func (cs *cipherStore) open(sealed []byte) ([]byte, bool) {
	ns := cs.aead.NonceSize()
	if len(sealed) < ns {
		return nil, false
	}

	value, err := cs.aead.Open(nil, sealed[:ns], sealed[ns:], nil)
	if err != nil {
		return nil, false
	}

	return value, true
}
