package state

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/oasislabs/oasis-chain/foundation/chain/database"
	"github.com/oasislabs/oasis-chain/foundation/chain/engine"
)

// SubmitRawTransaction accepts a signed, binary-encoded transaction, runs
// the admission checks, and mines it into its own block. The call returns
// after the block is committed and the completed-transaction notification
// has been delivered, so a caller that subscribed beforehand observes the
// outcome without a race.
func (s *State) SubmitRawTransaction(data []byte) (common.Hash, engine.Outcome, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(data); err != nil {
		return common.Hash{}, engine.Outcome{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	if tx.Gas() > s.genesis.BlockGasLimit {
		return common.Hash{}, engine.Outcome{}, fmt.Errorf("%w: gas %d, limit %d", ErrGasTooHigh, tx.Gas(), s.genesis.BlockGasLimit)
	}

	from, err := types.Sender(s.signer, tx)
	if err != nil {
		return common.Hash{}, engine.Outcome{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	if tx.GasPrice().Cmp(s.genesis.MinGasPrice()) < 0 {
		return common.Hash{}, engine.Outcome{}, fmt.Errorf("%w: price %s, floor %s", ErrGasPriceTooLow, tx.GasPrice(), s.genesis.MinGasPrice())
	}

	entry, outcome, number, err := s.mineBlock(from, tx)
	if err != nil {
		return common.Hash{}, engine.Outcome{}, err
	}

	if sink := s.eventSink(); sink != nil {
		sink.NotifyCompletedTransaction(entry, outcome)
		sink.NotifyBlocks(number, number)
	}

	return tx.Hash(), outcome, nil
}

// mineBlock executes and commits the transaction into the next block under
// the writer lock. Validation, execution, commit, and indexing are one
// atomic step from the perspective of every reader.
func (s *State) mineBlock(from common.Address, tx *types.Transaction) (database.TxEntry, engine.Outcome, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.halted {
		return database.TxEntry{}, engine.Outcome{}, 0, ErrHalted
	}

	number := s.blockNumber + 1
	timestamp := uint64(time.Now().Unix())

	env := engine.EnvInfo{
		Number:    number,
		Timestamp: timestamp,
		GasLimit:  s.genesis.BlockGasLimit,
	}

	outcome, err := s.engine.Apply(env, from, tx, s.cctx)
	if err != nil {
		return database.TxEntry{}, engine.Outcome{}, 0, fmt.Errorf("applying transaction: %w", err)
	}

	// A failed commit means the chain data and the account state can no
	// longer be trusted to agree. Refuse all further writes.
	if err := s.engine.Commit(); err != nil {
		s.halted = true
		s.ev("state: mineBlock: CHAIN HALTED: commit of block %d failed: %s", number, err)
		return database.TxEntry{}, engine.Outcome{}, 0, fmt.Errorf("%w: %v", ErrHalted, err)
	}

	blockHash := database.BlockHash(number)
	txHash := tx.Hash()

	ltx := database.Tx{
		Transaction: tx,
		From:        from,
		BlockNumber: number,
		BlockHash:   blockHash,
		Index:       0,
	}

	for i, l := range outcome.Logs {
		l.BlockNumber = number
		l.BlockHash = blockHash
		l.TxHash = txHash
		l.TxIndex = 0
		l.Index = uint(i)
	}

	receipt := database.Receipt{
		TransactionHash:   txHash,
		TransactionIndex:  0,
		BlockHash:         blockHash,
		BlockNumber:       number,
		CumulativeGasUsed: outcome.GasUsed,
		GasUsed:           outcome.GasUsed,
		Logs:              outcome.Logs,
		LogBloom:          outcome.LogBloom,
		Status:            outcome.StatusCode,
	}
	if tx.To() == nil {
		contract := crypto.CreateAddress(from, tx.Nonce())
		receipt.ContractAddress = &contract
	}

	block := database.NewBlock(number, timestamp, outcome.GasUsed, s.genesis.BlockGasLimit, outcome.LogBloom)
	block.Transactions = []database.Tx{ltx}

	s.blocks[number] = block
	s.blockHashes[block.Hash] = number
	s.transactions[txHash] = ltx
	s.receipts[txHash] = receipt
	s.blockNumber = number

	s.ev("state: mineBlock: block %d mined: tx[%s] status[%d] gas[%d]", number, txHash, outcome.StatusCode, outcome.GasUsed)

	entry := database.TxEntry{
		Hash: txHash,
		From: from,
		To:   tx.To(),
	}

	return entry, outcome, number, nil
}
