// Package ethgrp maintains the group of handlers for the Ethereum-compatible
// surface of the gateway.
package ethgrp

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/oasislabs/oasis-chain/business/web/errs"
	"github.com/oasislabs/oasis-chain/foundation/chain/database"
	"github.com/oasislabs/oasis-chain/foundation/chain/state"
	"github.com/oasislabs/oasis-chain/foundation/validate"
	"github.com/oasislabs/oasis-chain/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of ethereum endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
}

// SubmitTransaction accepts a signed, binary-encoded transaction and mines
// it into the next block. The response is only sent after the block is
// committed.
func (h Handlers) SubmitTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var st submitTx
	if err := web.Decode(r, &st); err != nil {
		return err
	}
	if err := validate.Check(st); err != nil {
		return err
	}

	h.Log.Infow("submit tran", "traceid", v.TraceID, "bytes", len(st.Tx))

	hash, outcome, err := h.State.SubmitRawTransaction(st.Tx)
	if err != nil {
		return submitError(err)
	}

	result := submitResult{
		Hash:    hash,
		Status:  hexutil.Uint64(outcome.StatusCode),
		GasUsed: hexutil.Uint64(outcome.GasUsed),
		Output:  outcome.Output,
	}

	return web.Respond(ctx, w, result, http.StatusOK)
}

// Call simulates a transaction against current committed state and returns
// its output. Nothing is mined and no state survives the call.
func (h Handlers) Call(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var call callRequest
	if err := web.Decode(r, &call); err != nil {
		return err
	}

	outcome, err := h.State.SimulateTransaction(ctx, toCallRequest(call))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if outcome.Reverted() {
		err := fmt.Errorf("execution failed: %s", outcome.Exception)
		if len(outcome.Output) > 0 {
			err = fmt.Errorf("execution failed: %s: output %s", outcome.Exception, hexutil.Encode(outcome.Output))
		}
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	return web.Respond(ctx, w, callResult{Output: outcome.Output}, http.StatusOK)
}

// EstimateGas simulates a transaction and returns the gas it consumed.
func (h Handlers) EstimateGas(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var call callRequest
	if err := web.Decode(r, &call); err != nil {
		return err
	}

	gas, err := h.State.EstimateGas(ctx, toCallRequest(call))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	return web.Respond(ctx, w, estimateResult{Gas: hexutil.Uint64(gas)}, http.StatusOK)
}

// Genesis returns the genesis specification.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	gen := h.State.RetrieveGenesis()
	return web.Respond(ctx, w, gen, http.StatusOK)
}

// GasPrice returns the minimum gas price accepted for admission.
func (h Handlers) GasPrice(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	price := gasPriceResult{
		GasPrice: (*hexutil.Big)(h.State.RetrieveGasPrice()),
	}

	return web.Respond(ctx, w, price, http.StatusOK)
}

// Block returns the block identified by "latest", "earliest", a number, or
// a hash. Full transaction records are included when txs=true is set.
func (h Handlers) Block(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	id, err := database.ParseBlockID(web.Param(r, "id"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	dbBlock, exists := h.State.RetrieveBlock(id)
	if !exists {
		return errs.NewTrusted(errors.New("block not found"), http.StatusNotFound)
	}

	fullTxs := r.URL.Query().Get("txs") == "true"

	return web.Respond(ctx, w, toBlock(dbBlock, fullTxs), http.StatusOK)
}

// Transaction returns the committed transaction with the specified hash.
func (h Handlers) Transaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	hash, err := parseHash(web.Param(r, "hash"))
	if err != nil {
		return err
	}

	dbTx, exists := h.State.RetrieveTransaction(hash)
	if !exists {
		return errs.NewTrusted(errors.New("transaction not found"), http.StatusNotFound)
	}

	return web.Respond(ctx, w, toTx(dbTx), http.StatusOK)
}

// TransactionByLocation returns the transaction at the specified index of
// the identified block.
func (h Handlers) TransactionByLocation(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	id, err := database.ParseBlockID(web.Param(r, "id"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	var index uint
	if _, err := fmt.Sscanf(web.Param(r, "index"), "%d", &index); err != nil {
		return errs.NewTrusted(fmt.Errorf("invalid transaction index %q", web.Param(r, "index")), http.StatusBadRequest)
	}

	dbTx, exists := h.State.RetrieveTransactionByLocation(id, index)
	if !exists {
		return errs.NewTrusted(errors.New("transaction not found"), http.StatusNotFound)
	}

	return web.Respond(ctx, w, toTx(dbTx), http.StatusOK)
}

// Receipt returns the receipt for the specified transaction hash.
func (h Handlers) Receipt(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	hash, err := parseHash(web.Param(r, "hash"))
	if err != nil {
		return err
	}

	dbReceipt, exists := h.State.RetrieveReceipt(hash)
	if !exists {
		return errs.NewTrusted(errors.New("receipt not found"), http.StatusNotFound)
	}

	return web.Respond(ctx, w, toReceipt(dbReceipt), http.StatusOK)
}

// Logs returns all committed logs matching the filter in the request body.
func (h Handlers) Logs(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var lr logsRequest
	if err := web.Decode(r, &lr); err != nil {
		return err
	}

	fromBlock, err := database.ParseBlockID(lr.FromBlock)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}
	toBlock, err := database.ParseBlockID(lr.ToBlock)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	filter := database.LogFilter{
		FromBlock: fromBlock,
		ToBlock:   toBlock,
		Addresses: lr.Addresses,
		Topics:    lr.Topics,
	}

	logs, err := h.State.RetrieveLogs(filter)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}
	if logs == nil {
		logs = []*types.Log{}
	}

	return web.Respond(ctx, w, logs, http.StatusOK)
}

// Balance returns the committed balance of the specified account.
func (h Handlers) Balance(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	address, err := parseAddress(web.Param(r, "account"))
	if err != nil {
		return err
	}

	result := accountResult{
		Address: address,
		Balance: (*hexutil.Big)(h.State.RetrieveBalance(address)),
		Nonce:   hexutil.Uint64(h.State.RetrieveNonce(address)),
	}

	return web.Respond(ctx, w, result, http.StatusOK)
}

// Nonce returns the committed nonce of the specified account.
func (h Handlers) Nonce(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	address, err := parseAddress(web.Param(r, "account"))
	if err != nil {
		return err
	}

	result := accountResult{
		Address: address,
		Nonce:   hexutil.Uint64(h.State.RetrieveNonce(address)),
	}

	return web.Respond(ctx, w, result, http.StatusOK)
}

// Code returns the committed contract code of the specified account.
func (h Handlers) Code(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	address, err := parseAddress(web.Param(r, "account"))
	if err != nil {
		return err
	}

	result := accountResult{
		Address: address,
		Nonce:   hexutil.Uint64(h.State.RetrieveNonce(address)),
		Code:    h.State.RetrieveCode(address),
	}

	return web.Respond(ctx, w, result, http.StatusOK)
}

// =============================================================================

// submitError maps admission and chain errors to trusted responses.
func submitError(err error) error {
	switch {
	case errors.Is(err, state.ErrHalted):
		return errs.NewTrusted(err, http.StatusServiceUnavailable)
	default:
		return errs.NewTrusted(err, http.StatusBadRequest)
	}
}

func parseHash(s string) (common.Hash, error) {
	if len(s) != 2+2*common.HashLength || s[:2] != "0x" {
		return common.Hash{}, errs.NewTrusted(fmt.Errorf("invalid hash %q", s), http.StatusBadRequest)
	}
	return common.HexToHash(s), nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, errs.NewTrusted(fmt.Errorf("invalid address %q", s), http.StatusBadRequest)
	}
	return common.HexToAddress(s), nil
}
