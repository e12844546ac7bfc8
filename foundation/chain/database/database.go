// Package database defines the data model for the simulated chain: blocks,
// localized transactions, receipts, and the filter/identifier types used by
// queries and notifications.
package database

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Block represents a group of at most one transaction. The genesis block
// (number 0) contains none.
type Block struct {
	Number       uint64      `json:"number"`
	Timestamp    uint64      `json:"timestamp"`
	Hash         common.Hash `json:"hash"`
	GasUsed      uint64      `json:"gas_used"`
	GasLimit     uint64      `json:"gas_limit"`
	LogBloom     types.Bloom `json:"log_bloom"`
	Transactions []Tx        `json:"transactions"`
}

// NewBlock constructs a block with its derived hash.
func NewBlock(number uint64, timestamp uint64, gasUsed uint64, gasLimit uint64, logBloom types.Bloom) Block {
	return Block{
		Number:    number,
		Timestamp: timestamp,
		Hash:      BlockHash(number),
		GasUsed:   gasUsed,
		GasLimit:  gasLimit,
		LogBloom:  logBloom,
	}
}

// BlockHash derives a block hash from the block number alone. This provides
// uniqueness but no tamper-evidence, which is acceptable only for a
// test-only chain with a single writer.
func BlockHash(number uint64) common.Hash {
	return crypto.Keccak256Hash([]byte(strconv.FormatUint(number, 10)))
}

// Copy returns a deep enough copy of the block that callers can hold it
// without racing the chain state.
func (b Block) Copy() Block {
	txs := make([]Tx, len(b.Transactions))
	copy(txs, b.Transactions)
	b.Transactions = txs

	return b
}

// =============================================================================

// Tx is a transaction localized to its position inside a block.
type Tx struct {
	*types.Transaction
	From        common.Address `json:"from"`
	BlockNumber uint64         `json:"block_number"`
	BlockHash   common.Hash    `json:"block_hash"`
	Index       uint           `json:"transaction_index"`
}

// Receipt is the outcome record of one executed transaction, keyed by the
// transaction hash.
type Receipt struct {
	TransactionHash   common.Hash     `json:"transaction_hash"`
	TransactionIndex  uint            `json:"transaction_index"`
	BlockHash         common.Hash     `json:"block_hash"`
	BlockNumber       uint64          `json:"block_number"`
	CumulativeGasUsed uint64          `json:"cumulative_gas_used"`
	GasUsed           uint64          `json:"gas_used"`
	ContractAddress   *common.Address `json:"contract_address,omitempty"`
	Logs              []*types.Log    `json:"logs"`
	LogBloom          types.Bloom     `json:"log_bloom"`
	Status            uint64          `json:"status"`
}

// TxEntry describes a committed transaction for completed-transaction
// notification matching.
type TxEntry struct {
	Hash common.Hash     `json:"hash"`
	From common.Address  `json:"from"`
	To   *common.Address `json:"to,omitempty"`
}

// CallRequest describes a read-only simulated call. Unset fields take the
// simulation defaults.
type CallRequest struct {
	From     *common.Address
	To       *common.Address
	Gas      uint64
	GasPrice *big.Int
	Value    *big.Int
	Data     []byte
}
