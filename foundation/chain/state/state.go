// Package state is the core API for the simulated chain. It owns the chain
// data (blocks, transactions, receipts), serializes all writes behind a
// single lock, and fans committed work out to a registered event sink.
package state

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/oasislabs/oasis-chain/foundation/chain/confidential"
	"github.com/oasislabs/oasis-chain/foundation/chain/database"
	"github.com/oasislabs/oasis-chain/foundation/chain/engine"
	"github.com/oasislabs/oasis-chain/foundation/chain/genesis"
	"github.com/oasislabs/oasis-chain/foundation/chain/keymanager"
	"github.com/oasislabs/oasis-chain/foundation/chain/simulator"
)

// EventHandler defines a function that is called when different events
// occur inside the chain.
type EventHandler func(v string, args ...any)

// EventSink receives notifications from the commit path. Completed
// transaction delivery is synchronous with the submit call; block
// notifications may be delivered asynchronously by the sink.
type EventSink interface {
	NotifyCompletedTransaction(entry database.TxEntry, outcome engine.Outcome)
	NotifyBlocks(fromBlock uint64, toBlock uint64)
}

// =============================================================================

// Config represents the configuration required to start the chain.
type Config struct {
	Genesis          genesis.Genesis
	Engine           engine.Engine
	Reader           engine.StateReader
	KMClient         keymanager.Client
	SimulatorWorkers int
	EvHandler        EventHandler
}

// State manages the simulated chain.
type State struct {
	genesis genesis.Genesis
	engine  engine.Engine
	reader  engine.StateReader
	cctx    *confidential.Context
	signer  types.Signer
	pool    *simulator.Pool
	ev      EventHandler

	mu           sync.RWMutex
	sink         EventSink
	halted       bool
	blockNumber  uint64
	blocks       map[uint64]database.Block
	blockHashes  map[common.Hash]uint64
	transactions map[common.Hash]database.Tx
	receipts     map[common.Hash]database.Receipt
}

// New constructs a new chain from the configuration. The genesis block is
// produced immediately so the chain is never empty.
func New(cfg Config) (*State, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("an execution engine is required")
	}
	if cfg.Reader == nil {
		return nil, fmt.Errorf("a state reader is required")
	}

	ev := cfg.EvHandler
	if ev == nil {
		ev = func(v string, args ...any) {}
	}

	var cctx *confidential.Context
	if cfg.KMClient != nil {
		cctx = confidential.New(cfg.KMClient)
	}

	workers := cfg.SimulatorWorkers
	if workers <= 0 {
		workers = 4
	}
	pool, err := simulator.New("chain", workers, simulator.EventHandler(ev))
	if err != nil {
		return nil, fmt.Errorf("constructing simulator pool: %w", err)
	}

	chainID := new(big.Int).SetUint64(cfg.Genesis.ChainID)

	s := State{
		genesis: cfg.Genesis,
		engine:  cfg.Engine,
		reader:  cfg.Reader,
		cctx:    cctx,
		signer:  types.LatestSignerForChainID(chainID),
		pool:    pool,
		ev:      ev,

		blocks:       make(map[uint64]database.Block),
		blockHashes:  make(map[common.Hash]uint64),
		transactions: make(map[common.Hash]database.Tx),
		receipts:     make(map[common.Hash]database.Receipt),
	}

	genesisBlock := database.NewBlock(0, uint64(cfg.Genesis.Date.Unix()), 0, cfg.Genesis.BlockGasLimit, types.Bloom{})
	genesisBlock.Transactions = []database.Tx{}
	s.blocks[0] = genesisBlock
	s.blockHashes[genesisBlock.Hash] = 0

	s.ev("state: chain started: chainid[%d] gaslimit[%d] floor[%d gwei]", cfg.Genesis.ChainID, cfg.Genesis.BlockGasLimit, cfg.Genesis.MinGasPriceGwei)

	return &s, nil
}

// Shutdown cleanly brings the chain down, draining the simulation pool.
func (s *State) Shutdown() {
	s.ev("state: shutdown: started")
	defer s.ev("state: shutdown: completed")

	s.pool.Shutdown()
}

// RegisterEventSink installs the sink that receives commit notifications.
// Only one sink is supported.
func (s *State) RegisterEventSink(sink EventSink) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sink = sink
}

// eventSink returns the registered sink under the read lock.
func (s *State) eventSink() EventSink {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sink
}
