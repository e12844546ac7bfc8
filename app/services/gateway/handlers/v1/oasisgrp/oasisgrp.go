// Package oasisgrp maintains the group of handlers for the confidential
// extensions of the gateway.
package oasisgrp

import (
	"context"
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/oasislabs/oasis-chain/business/web/errs"
	"github.com/oasislabs/oasis-chain/foundation/chain/keymanager"
	"github.com/oasislabs/oasis-chain/foundation/chain/state"
	"github.com/oasislabs/oasis-chain/foundation/validate"
	"github.com/oasislabs/oasis-chain/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of confidential extension endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	KM    keymanager.Client
}

// publicKey is the client view of a contract's signed public key.
type publicKey struct {
	Key       hexutil.Bytes `json:"key"`
	Checksum  hexutil.Bytes `json:"checksum"`
	Signature hexutil.Bytes `json:"signature"`
}

// invokeTx is what a client sends to invoke a confidential transaction.
type invokeTx struct {
	Data hexutil.Bytes `json:"data" validate:"required"`
}

// PublicKey returns the input encryption public key for the specified
// contract, creating the key bundle on first access.
func (h Handlers) PublicKey(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	contract := web.Param(r, "contract")
	if !common.IsHexAddress(contract) {
		return errs.NewTrusted(errors.New("invalid contract address"), http.StatusBadRequest)
	}

	id := keymanager.ContractIDFromAddress(common.HexToAddress(contract))

	spk, err := h.KM.GetPublicKey(id)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}
	if spk == nil {
		return errs.NewTrusted(errors.New("contract unknown to the key manager"), http.StatusNotFound)
	}

	pk := publicKey{
		Key:       spk.Key[:],
		Checksum:  spk.Checksum,
		Signature: spk.Signature,
	}

	return web.Respond(ctx, w, pk, http.StatusOK)
}

// Invoke submits a transaction destined for a confidential contract. The
// payload is the same signed binary encoding the ethereum surface accepts;
// storage written by the execution is sealed under the contract's state key.
func (h Handlers) Invoke(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var it invokeTx
	if err := web.Decode(r, &it); err != nil {
		return err
	}
	if err := validate.Check(it); err != nil {
		return err
	}

	h.Log.Infow("confidential invoke", "traceid", v.TraceID, "bytes", len(it.Data))

	hash, outcome, err := h.State.SubmitRawTransaction(it.Data)
	if err != nil {
		if errors.Is(err, state.ErrHalted) {
			return errs.NewTrusted(err, http.StatusServiceUnavailable)
		}
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	result := struct {
		Hash   string         `json:"transactionHash"`
		Status hexutil.Uint64 `json:"statusCode"`
		Output hexutil.Bytes  `json:"output,omitempty"`
	}{
		Hash:   hash.Hex(),
		Status: hexutil.Uint64(outcome.StatusCode),
		Output: outcome.Output,
	}

	return web.Respond(ctx, w, result, http.StatusOK)
}
