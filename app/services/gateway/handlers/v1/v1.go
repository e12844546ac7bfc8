// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/oasislabs/oasis-chain/app/services/gateway/handlers/v1/ethgrp"
	"github.com/oasislabs/oasis-chain/app/services/gateway/handlers/v1/oasisgrp"
	"github.com/oasislabs/oasis-chain/app/services/gateway/handlers/v1/subgrp"
	"github.com/oasislabs/oasis-chain/foundation/chain/keymanager"
	"github.com/oasislabs/oasis-chain/foundation/chain/pubsub"
	"github.com/oasislabs/oasis-chain/foundation/chain/state"
	"github.com/oasislabs/oasis-chain/foundation/events"
	"github.com/oasislabs/oasis-chain/foundation/web"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log   *zap.SugaredLogger
	State *state.State
	Hub   *pubsub.Hub
	KM    keymanager.Client
	Evts  *events.Events
}

// PublicRoutes binds all the version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	eth := ethgrp.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
	}

	app.Handle(http.MethodGet, version, "/genesis", eth.Genesis)
	app.Handle(http.MethodPost, version, "/eth/tx/submit", eth.SubmitTransaction)
	app.Handle(http.MethodPost, version, "/eth/call", eth.Call)
	app.Handle(http.MethodPost, version, "/eth/estimate", eth.EstimateGas)
	app.Handle(http.MethodGet, version, "/eth/gasprice", eth.GasPrice)
	app.Handle(http.MethodGet, version, "/eth/block/:id", eth.Block)
	app.Handle(http.MethodGet, version, "/eth/block/:id/tx/:index", eth.TransactionByLocation)
	app.Handle(http.MethodGet, version, "/eth/tx/:hash", eth.Transaction)
	app.Handle(http.MethodGet, version, "/eth/receipt/:hash", eth.Receipt)
	app.Handle(http.MethodPost, version, "/eth/logs", eth.Logs)
	app.Handle(http.MethodGet, version, "/eth/balance/:account", eth.Balance)
	app.Handle(http.MethodGet, version, "/eth/nonce/:account", eth.Nonce)
	app.Handle(http.MethodGet, version, "/eth/code/:account", eth.Code)

	oasis := oasisgrp.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
		KM:    cfg.KM,
	}

	app.Handle(http.MethodGet, version, "/oasis/publickey/:contract", oasis.PublicKey)
	app.Handle(http.MethodPost, version, "/oasis/invoke", oasis.Invoke)

	sub := subgrp.Handlers{
		Log:  cfg.Log,
		Hub:  cfg.Hub,
		Evts: cfg.Evts,
	}

	app.Handle(http.MethodGet, version, "/events", sub.Subscriptions)
	app.Handle(http.MethodGet, version, "/events/raw", sub.RawEvents)
}
