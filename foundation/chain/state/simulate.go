package state

import (
	"context"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/oasislabs/oasis-chain/foundation/chain/database"
	"github.com/oasislabs/oasis-chain/foundation/chain/engine"
)

// simResult carries a simulation outcome back from the pool worker. The
// channel hand-off keeps abandoned tasks from racing the caller.
type simResult struct {
	outcome engine.Outcome
	err     error
}

// SimulateTransaction executes a read-only call on the simulation pool
// against current committed state. The call runs as if it were included in
// the next block but no state mutation survives and no block is produced.
func (s *State) SimulateTransaction(ctx context.Context, call database.CallRequest) (engine.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return engine.Outcome{}, err
	}

	result := make(chan simResult, 1)

	run := func(ctx context.Context) {
		outcome, err := s.simulate(call)
		result <- simResult{outcome: outcome, err: err}
	}

	if err := s.pool.Run(ctx, run); err != nil {
		return engine.Outcome{}, err
	}

	r := <-result
	if r.err != nil {
		return engine.Outcome{}, r.err
	}

	return r.outcome, nil
}

// EstimateGas simulates the call and reports the gas it consumed, including
// any refunded portion so the estimate is safe to use as a gas limit.
func (s *State) EstimateGas(ctx context.Context, call database.CallRequest) (uint64, error) {
	outcome, err := s.SimulateTransaction(ctx, call)
	if err != nil {
		return 0, err
	}

	return outcome.GasUsed + outcome.Refunded, nil
}

// simulate builds a virtual transaction from the call request and executes
// it without touching committed state.
func (s *State) simulate(call database.CallRequest) (engine.Outcome, error) {
	var from common.Address
	if call.From != nil {
		from = *call.From
	}

	gas := call.Gas
	if gas == 0 {
		gas = math.MaxUint64
	}
	gasPrice := call.GasPrice
	if gasPrice == nil {
		gasPrice = new(big.Int)
	}
	value := call.Value
	if value == nil {
		value = new(big.Int)
	}

	s.mu.RLock()
	number := s.blockNumber + 1
	s.mu.RUnlock()

	env := engine.EnvInfo{
		Number:    number,
		Timestamp: uint64(time.Now().Unix()),
		GasLimit:  math.MaxUint64,
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    s.reader.Nonce(from),
		To:       call.To,
		Value:    value,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     call.Data,
	})

	return s.engine.TransactVirtual(env, from, tx)
}
