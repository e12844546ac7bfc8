package keymanager

import (
	"crypto/rand"
	"fmt"
	"sync"

	"golang.org/x/crypto/nacl/box"
)

// MockClient is a key manager client which stores everything locally. Keys
// are random per process and carry an empty checksum and signature, which is
// acceptable only as a non-production placeholder. A production client must
// be backed by a secure-enclave or threshold service.
type MockClient struct {
	mu   sync.Mutex
	keys map[ContractID]KeyBundle
}

// NewMockClient constructs a mock key manager client.
func NewMockClient() *MockClient {
	return &MockClient{
		keys: make(map[ContractID]KeyBundle),
	}
}

// GetOrCreateKeys returns the cached key bundle for the contract, generating
// a fresh one on first access.
func (mc *MockClient) GetOrCreateKeys(id ContractID) (KeyBundle, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if bundle, exists := mc.keys[id]; exists {
		return bundle, nil
	}

	bundle, err := generateBundle()
	if err != nil {
		return KeyBundle{}, fmt.Errorf("generating key bundle: %w", err)
	}

	mc.keys[id] = bundle
	return bundle, nil
}

// GetPublicKey returns the public key for the contract, creating the key
// bundle if it does not exist yet. The checksum and signature are empty in
// the mock.
func (mc *MockClient) GetPublicKey(id ContractID) (*SignedPublicKey, error) {
	bundle, err := mc.GetOrCreateKeys(id)
	if err != nil {
		return nil, err
	}

	return &SignedPublicKey{
		Key:      bundle.InputKeyPair.PK,
		Checksum: []byte{},
	}, nil
}

// generateBundle creates a random X25519 input keypair and a random
// symmetric state key.
func generateBundle() (KeyBundle, error) {
	pk, sk, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return KeyBundle{}, err
	}

	var stateKey [KeySize]byte
	if _, err := rand.Read(stateKey[:]); err != nil {
		return KeyBundle{}, err
	}

	return KeyBundle{
		InputKeyPair: InputKeyPair{PK: *pk, SK: *sk},
		StateKey:     stateKey,
		Checksum:     []byte{},
	}, nil
}
