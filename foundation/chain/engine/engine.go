// Package engine declares the execution engine boundary. The chain consumes
// an engine for transaction execution semantics and treats it as an external
// collaborator: wire encoding, gas accounting, and the account model live
// behind this interface.
package engine

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/oasislabs/oasis-chain/foundation/chain/confidential"
)

// EnvInfo carries the execution environment for one transaction.
type EnvInfo struct {
	Number    uint64 // Block number the transaction will be included in.
	Timestamp uint64 // Block timestamp in seconds.
	GasLimit  uint64 // Gas ceiling for the execution.
}

// Outcome is the result of applying one transaction. An exception indicates
// a contract-level failure that carries output bytes and is recoverable by
// the caller. Infrastructure failures are reported through the error return
// instead.
type Outcome struct {
	GasUsed    uint64       `json:"gas_used"`
	Refunded   uint64       `json:"refunded"`
	Logs       []*types.Log `json:"logs"`
	LogBloom   types.Bloom  `json:"log_bloom"`
	StatusCode uint64       `json:"status_code"`
	Output     []byte       `json:"output"`
	Exception  string       `json:"exception,omitempty"`
}

// Reverted reports whether the outcome represents a contract-level failure.
func (o Outcome) Reverted() bool {
	return o.Exception != ""
}

// Engine represents the behavior required to be implemented by any package
// providing transaction execution semantics.
type Engine interface {

	// Apply executes the transaction against current state, staging the
	// resulting state mutation for Commit. A failed Apply leaves no pending
	// mutation behind. When a confidential context is provided, contract
	// storage access is routed through it.
	Apply(env EnvInfo, from common.Address, tx *types.Transaction, cctx *confidential.Context) (Outcome, error)

	// TransactVirtual executes the transaction without staging any state
	// mutation and without checking the sender nonce or balance. It is used
	// by the simulation path and never touches persisted state.
	TransactVirtual(env EnvInfo, from common.Address, tx *types.Transaction) (Outcome, error)

	// Commit persists the state mutation staged by the last successful
	// Apply. A commit failure indicates state corruption.
	Commit() error
}

// StateReader provides read access to committed account state for queries.
type StateReader interface {
	Balance(address common.Address) *big.Int
	Nonce(address common.Address) uint64
	Code(address common.Address) []byte
}
