package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/oasislabs/oasis-chain/foundation/chain/database"
	"github.com/oasislabs/oasis-chain/foundation/chain/genesis"
)

// RetrieveGenesis returns a copy of the genesis specification.
func (s *State) RetrieveGenesis() genesis.Genesis {
	return s.genesis
}

// RetrieveGasPrice returns the minimum gas price accepted for admission.
func (s *State) RetrieveGasPrice() *big.Int {
	return s.genesis.MinGasPrice()
}

// RetrieveBlockNumber returns the number of the latest block.
func (s *State) RetrieveBlockNumber() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.blockNumber
}

// RetrieveLatestBlock returns a copy of the current head block.
func (s *State) RetrieveLatestBlock() database.Block {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.blocks[s.blockNumber].Copy()
}

// RetrieveBlockByNumber returns a copy of the specified block if it exists.
func (s *State) RetrieveBlockByNumber(number uint64) (database.Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	block, exists := s.blocks[number]
	if !exists {
		return database.Block{}, false
	}

	return block.Copy(), true
}

// RetrieveBlockByHash returns a copy of the block with the specified hash if
// it exists.
func (s *State) RetrieveBlockByHash(hash common.Hash) (database.Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	number, exists := s.blockHashes[hash]
	if !exists {
		return database.Block{}, false
	}

	return s.blocks[number].Copy(), true
}

// RetrieveBlock resolves a symbolic, numeric, or hash block identifier.
func (s *State) RetrieveBlock(id database.BlockID) (database.Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	number, exists := s.resolveLocked(id)
	if !exists {
		return database.Block{}, false
	}

	block, exists := s.blocks[number]
	if !exists {
		return database.Block{}, false
	}

	return block.Copy(), true
}

// RetrieveTransaction returns the localized transaction with the specified
// hash if it has been committed.
func (s *State) RetrieveTransaction(hash common.Hash) (database.Tx, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, exists := s.transactions[hash]
	return tx, exists
}

// RetrieveTransactionByLocation returns the transaction at the specified
// index of the identified block.
func (s *State) RetrieveTransactionByLocation(id database.BlockID, index uint) (database.Tx, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	number, exists := s.resolveLocked(id)
	if !exists {
		return database.Tx{}, false
	}

	block, exists := s.blocks[number]
	if !exists || index >= uint(len(block.Transactions)) {
		return database.Tx{}, false
	}

	return block.Transactions[index], true
}

// RetrieveReceipt returns the receipt for the specified transaction hash if
// the transaction has been committed.
func (s *State) RetrieveReceipt(hash common.Hash) (database.Receipt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	receipt, exists := s.receipts[hash]
	return receipt, exists
}

// RetrieveLogs returns all committed logs matching the filter, ordered by
// block number and log index.
func (s *State) RetrieveLogs(filter database.LogFilter) ([]*types.Log, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fromBlock, exists := s.resolveLocked(filter.FromBlock)
	if !exists {
		return nil, fmt.Errorf("unknown from block %s", filter.FromBlock)
	}
	toBlock, exists := s.resolveLocked(filter.ToBlock)
	if !exists {
		return nil, fmt.Errorf("unknown to block %s", filter.ToBlock)
	}
	if toBlock > s.blockNumber {
		toBlock = s.blockNumber
	}

	var logs []*types.Log
	for number := fromBlock; number <= toBlock; number++ {
		block, exists := s.blocks[number]
		if !exists {
			continue
		}

		for _, tx := range block.Transactions {
			receipt, exists := s.receipts[tx.Hash()]
			if !exists {
				continue
			}

			for _, l := range receipt.Logs {
				if filter.Matches(l) {
					logs = append(logs, l)
				}
			}
		}
	}

	return logs, nil
}

// RetrieveBalance returns the committed balance of the account.
func (s *State) RetrieveBalance(address common.Address) *big.Int {
	return s.reader.Balance(address)
}

// RetrieveNonce returns the committed nonce of the account.
func (s *State) RetrieveNonce(address common.Address) uint64 {
	return s.reader.Nonce(address)
}

// RetrieveCode returns the committed contract code of the account.
func (s *State) RetrieveCode(address common.Address) []byte {
	return s.reader.Code(address)
}

// resolveLocked maps a block identifier to a committed block number. The
// caller must hold at least the read lock.
func (s *State) resolveLocked(id database.BlockID) (uint64, bool) {
	switch id.Kind {
	case database.KindLatest:
		return s.blockNumber, true
	case database.KindEarliest:
		return 0, true
	case database.KindHash:
		number, exists := s.blockHashes[id.Hash]
		return number, exists
	default:
		return id.Number, id.Number <= s.blockNumber
	}
}
