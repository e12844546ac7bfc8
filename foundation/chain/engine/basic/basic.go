// Package basic is a reference execution engine for development and testing.
// It supports value transfers, contract creation, and a single contract
// operation: a call payload of [32-byte slot || value bytes] writes the value
// into the contract's persisted storage and emits a log. Contract storage is
// routed through the confidential context when one is provided. It is not an
// EVM and makes no attempt to be one.
package basic

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/oasislabs/oasis-chain/foundation/chain/confidential"
	"github.com/oasislabs/oasis-chain/foundation/chain/engine"
	"github.com/oasislabs/oasis-chain/foundation/chain/genesis"
	"github.com/oasislabs/oasis-chain/foundation/chain/storage"
)

// Gas schedule for the reference engine.
const (
	TxGas     = 21_000 // Base cost of any transaction.
	TxDataGas = 68     // Cost per byte of transaction payload.
	CreateGas = 32_000 // Additional cost of a contract creation.
	StoreGas  = 5_000  // Additional cost of a contract storage write.
)

// storeEventID is the topic identifying the storage-write event emitted by
// contract calls.
var storeEventID = crypto.Keccak256Hash([]byte("Store(bytes32,bytes)"))

// StoreEventID returns the log topic for contract storage writes.
func StoreEventID() common.Hash {
	return storeEventID
}

// =============================================================================

// Engine implements the engine.Engine and engine.StateReader interfaces
// against a key/value store. Apply/Commit pairs must be serialized by the
// caller; the chain's single-writer lock provides that.
type Engine struct {
	store   storage.KVStore
	mu      sync.Mutex
	pending *txState
}

// New constructs the reference engine and seeds the accounts funded by the
// genesis specification.
func New(store storage.KVStore, gen genesis.Genesis) (*Engine, error) {
	e := Engine{
		store: store,
	}

	for acct, balance := range gen.Balances {
		if !common.IsHexAddress(acct) {
			return nil, fmt.Errorf("genesis account %q is not a valid address", acct)
		}
		if err := writeAccount(store, common.HexToAddress(acct), account{Balance: balance}); err != nil {
			return nil, fmt.Errorf("seeding genesis account %q: %w", acct, err)
		}
	}

	return &e, nil
}

// Apply executes the transaction and stages the resulting state mutation
// for Commit. A failed Apply stages nothing.
func (e *Engine) Apply(env engine.EnvInfo, from common.Address, tx *types.Transaction, cctx *confidential.Context) (engine.Outcome, error) {
	ts := newTxState(e.store)

	outcome, err := e.transact(ts, from, tx, cctx, true)
	if err != nil {
		return engine.Outcome{}, err
	}

	e.mu.Lock()
	e.pending = ts
	e.mu.Unlock()

	return outcome, nil
}

// TransactVirtual executes the transaction against a throwaway staging view.
// The sender nonce and balance are not checked and no state mutation
// survives the call.
func (e *Engine) TransactVirtual(env engine.EnvInfo, from common.Address, tx *types.Transaction) (engine.Outcome, error) {
	ts := newTxState(e.store)

	return e.transact(ts, from, tx, nil, false)
}

// Commit persists the mutation staged by the last successful Apply.
func (e *Engine) Commit() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pending == nil {
		return nil
	}

	for key, m := range e.pending.stage {
		if m.remove {
			e.store.Remove([]byte(key))
			continue
		}
		e.store.Insert([]byte(key), m.value)
	}

	e.pending = nil
	return nil
}

// =============================================================================

// transact performs the execution semantics shared by Apply and
// TransactVirtual. With committing unset the nonce and balance checks are
// skipped.
func (e *Engine) transact(ts *txState, from common.Address, tx *types.Transaction, cctx *confidential.Context, committing bool) (engine.Outcome, error) {
	data := tx.Data()

	intrinsic := uint64(TxGas) + uint64(len(data))*TxDataGas
	if tx.To() == nil {
		intrinsic += CreateGas
	}
	if tx.Gas() < intrinsic {
		return engine.Outcome{}, fmt.Errorf("intrinsic gas %d exceeds gas limit %d", intrinsic, tx.Gas())
	}

	sender, err := readAccount(ts, from)
	if err != nil {
		return engine.Outcome{}, err
	}
	if committing && tx.Nonce() != sender.Nonce {
		return engine.Outcome{}, fmt.Errorf("invalid nonce: got %d, exp %d", tx.Nonce(), sender.Nonce)
	}

	gasUsed := intrinsic
	var logs []*types.Log
	var output []byte
	var exception string

	// Destination of the value transfer. For creations this is the fresh
	// contract address.
	destination := from

	switch {
	case tx.To() == nil:
		contract := crypto.CreateAddress(from, tx.Nonce())
		ts.Insert(codeKey(contract), data)
		destination = contract

	default:
		destination = *tx.To()

		_, hasCode := ts.Get(codeKey(destination))
		if hasCode && len(data) > 0 {
			switch {
			case len(data) < common.HashLength:
				exception = "invalid call input"
				output = data

			case gasUsed+StoreGas > tx.Gas():
				exception = "out of gas"
				gasUsed = tx.Gas()

			default:
				gasUsed += StoreGas

				slot := common.BytesToHash(data[:common.HashLength])
				value := data[common.HashLength:]

				view := storage.KVStore(ts)
				if cctx != nil {
					view, err = cctx.WrapStore(destination, ts)
					if err != nil {
						return engine.Outcome{}, fmt.Errorf("confidential context: %w", err)
					}
				}
				view.Insert(storageKey(destination, slot), value)

				logs = append(logs, &types.Log{
					Address: destination,
					Topics:  []common.Hash{storeEventID, slot},
					Data:    value,
				})
			}
		}
	}

	value := tx.Value()
	gasFee := new(big.Int).Mul(tx.GasPrice(), new(big.Int).SetUint64(gasUsed))
	cost := new(big.Int).Add(gasFee, value)
	if committing && sender.Balance.Cmp(cost) < 0 {
		return engine.Outcome{}, fmt.Errorf("insufficient balance: have %s, need %s", sender.Balance, cost)
	}

	// The fee is paid and the nonce advances even when the call itself
	// fails. The value only moves on success.
	sender.Nonce++
	sender.Balance = sub(sender.Balance, gasFee)

	if exception == "" && value.Sign() > 0 && destination != from {
		recipient, err := readAccount(ts, destination)
		if err != nil {
			return engine.Outcome{}, err
		}

		sender.Balance = sub(sender.Balance, value)
		recipient.Balance = new(big.Int).Add(recipient.Balance, value)

		if err := writeAccount(ts, destination, recipient); err != nil {
			return engine.Outcome{}, err
		}
	}

	if err := writeAccount(ts, from, sender); err != nil {
		return engine.Outcome{}, err
	}

	var bloom types.Bloom
	for _, l := range logs {
		bloom.Add(l.Address.Bytes())
		for _, topic := range l.Topics {
			bloom.Add(topic.Bytes())
		}
	}

	status := uint64(1)
	if exception != "" {
		status = 0
	}

	return engine.Outcome{
		GasUsed:    gasUsed,
		Refunded:   0,
		Logs:       logs,
		LogBloom:   bloom,
		StatusCode: status,
		Output:     output,
		Exception:  exception,
	}, nil
}

// =============================================================================
// StateReader support over committed state.

// Balance returns the committed balance for the account.
func (e *Engine) Balance(address common.Address) *big.Int {
	acct, err := readAccount(e.store, address)
	if err != nil {
		return new(big.Int)
	}
	return acct.Balance
}

// Nonce returns the committed nonce for the account.
func (e *Engine) Nonce(address common.Address) uint64 {
	acct, err := readAccount(e.store, address)
	if err != nil {
		return 0
	}
	return acct.Nonce
}

// Code returns the committed contract code for the account.
func (e *Engine) Code(address common.Address) []byte {
	code, _ := e.store.Get(codeKey(address))
	return code
}

// =============================================================================

// account is the persisted account record.
type account struct {
	Balance *big.Int `json:"balance"`
	Nonce   uint64   `json:"nonce"`
}

func accountKey(address common.Address) []byte {
	return []byte("account/" + address.Hex())
}

func codeKey(address common.Address) []byte {
	return []byte("code/" + address.Hex())
}

func storageKey(contract common.Address, slot common.Hash) []byte {
	return []byte("storage/" + contract.Hex() + "/" + slot.Hex())
}

func readAccount(store storage.KVStore, address common.Address) (account, error) {
	data, exists := store.Get(accountKey(address))
	if !exists {
		return account{Balance: new(big.Int)}, nil
	}

	var acct account
	if err := json.Unmarshal(data, &acct); err != nil {
		return account{}, fmt.Errorf("corrupt account record %s: %w", address, err)
	}
	if acct.Balance == nil {
		acct.Balance = new(big.Int)
	}

	return acct, nil
}

func writeAccount(store storage.KVStore, address common.Address, acct account) error {
	data, err := json.Marshal(acct)
	if err != nil {
		return fmt.Errorf("encoding account record %s: %w", address, err)
	}

	store.Insert(accountKey(address), data)
	return nil
}

// sub subtracts b from a, flooring at zero. The floor only matters on the
// virtual path where balance checks are skipped.
func sub(a *big.Int, b *big.Int) *big.Int {
	r := new(big.Int).Sub(a, b)
	if r.Sign() < 0 {
		return new(big.Int)
	}
	return r
}

// =============================================================================

// mutation is one staged store change.
type mutation struct {
	value  []byte
	remove bool
}

// txState is a staging view over the backing store. Reads see staged changes
// first, writes never touch the store until Commit.
type txState struct {
	store storage.KVStore
	stage map[string]mutation
}

func newTxState(store storage.KVStore) *txState {
	return &txState{
		store: store,
		stage: make(map[string]mutation),
	}
}

// Get implements the storage.KVStore interface.
func (ts *txState) Get(key []byte) ([]byte, bool) {
	if m, staged := ts.stage[string(key)]; staged {
		if m.remove {
			return nil, false
		}
		return m.value, true
	}

	return ts.store.Get(key)
}

// Insert implements the storage.KVStore interface.
func (ts *txState) Insert(key []byte, value []byte) ([]byte, bool) {
	old, existed := ts.Get(key)
	ts.stage[string(key)] = mutation{value: value}
	return old, existed
}

// Remove implements the storage.KVStore interface.
func (ts *txState) Remove(key []byte) ([]byte, bool) {
	old, existed := ts.Get(key)
	ts.stage[string(key)] = mutation{remove: true}
	return old, existed
}
