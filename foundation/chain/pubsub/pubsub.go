// Package pubsub maintains the subscription registries for chain
// notifications and fans committed work out to subscribers. Subscriptions
// only observe work committed after they are registered; there is no
// retroactive delivery.
package pubsub

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/oasislabs/oasis-chain/foundation/chain/database"
	"github.com/oasislabs/oasis-chain/foundation/chain/engine"
)

// Set of subscription kinds.
const (
	KindNewHeads               = "newHeads"
	KindLogs                   = "logs"
	KindCompletedTransaction   = "completedTransaction"
	KindNewPendingTransactions = "newPendingTransactions"
)

// Set of subscription errors.
var (
	ErrUnknownKind   = errors.New("unknown subscription kind")
	ErrInvalidParams = errors.New("invalid subscription parameters")
	ErrUnimplemented = errors.New("subscription kind is not implemented")
)

// EventHandler defines a function that is called when different events
// occur inside the hub.
type EventHandler func(v string, args ...any)

// Chain represents the read access the hub needs to materialize
// notifications from committed chain data.
type Chain interface {
	RetrieveBlockByNumber(number uint64) (database.Block, bool)
	RetrieveLogs(filter database.LogFilter) ([]*types.Log, error)
}

// =============================================================================

// TxFilter constrains completed-transaction notifications by sender and
// recipient. Nil fields are wildcards.
type TxFilter struct {
	From *common.Address `json:"from,omitempty"`
	To   *common.Address `json:"to,omitempty"`
}

// Matches reports whether the committed transaction satisfies the filter.
func (f TxFilter) Matches(entry database.TxEntry) bool {
	if f.From != nil && *f.From != entry.From {
		return false
	}

	if f.To != nil {
		if entry.To == nil || *f.To != *entry.To {
			return false
		}
	}

	return true
}

// Params carries the kind-specific subscription parameters.
type Params struct {
	Logs        *database.LogFilter `json:"logs,omitempty"`
	Transaction *TxFilter           `json:"transaction,omitempty"`
}

// TransactionOutcome is the payload of a completed-transaction event.
type TransactionOutcome struct {
	Hash   common.Hash `json:"hash"`
	Status uint64      `json:"status"`
	Output []byte      `json:"output,omitempty"`
}

// Event is one notification delivered to a subscriber. Exactly one of the
// payload fields is set, matching the kind.
type Event struct {
	SubscriptionID string              `json:"subscription_id"`
	Kind           string              `json:"kind"`
	Block          *database.Block     `json:"block,omitempty"`
	Log            *types.Log          `json:"log,omitempty"`
	Outcome        *TransactionOutcome `json:"outcome,omitempty"`
}

// Sink is the delivery function a subscriber registers. A non-nil error
// drops the subscription.
type Sink func(event Event) error

// =============================================================================

type logSub struct {
	filter database.LogFilter
	sink   Sink
}

type txSub struct {
	filter TxFilter
	sink   Sink
}

// Hub manages the three independent subscription registries.
type Hub struct {
	chain Chain
	ev    EventHandler

	headsMu sync.RWMutex
	heads   map[string]Sink

	logsMu sync.RWMutex
	logs   map[string]logSub

	txMu sync.RWMutex
	txs  map[string]txSub
}

// New constructs a hub reading committed data from the specified chain.
func New(chain Chain, ev EventHandler) *Hub {
	if ev == nil {
		ev = func(v string, args ...any) {}
	}

	return &Hub{
		chain: chain,
		ev:    ev,
		heads: make(map[string]Sink),
		logs:  make(map[string]logSub),
		txs:   make(map[string]txSub),
	}
}

// Subscribe registers a sink for the specified kind and returns the
// subscription id. Parameters are validated against the kind's shape.
func (h *Hub) Subscribe(kind string, params Params, sink Sink) (string, error) {
	id := uuid.NewString()

	switch kind {
	case KindNewHeads:
		if params.Logs != nil || params.Transaction != nil {
			return "", ErrInvalidParams
		}
		h.headsMu.Lock()
		h.heads[id] = sink
		h.headsMu.Unlock()

	case KindLogs:
		if params.Logs == nil || params.Transaction != nil {
			return "", ErrInvalidParams
		}
		h.logsMu.Lock()
		h.logs[id] = logSub{filter: *params.Logs, sink: sink}
		h.logsMu.Unlock()

	case KindCompletedTransaction:
		if params.Transaction == nil || params.Logs != nil {
			return "", ErrInvalidParams
		}
		h.txMu.Lock()
		h.txs[id] = txSub{filter: *params.Transaction, sink: sink}
		h.txMu.Unlock()

	case KindNewPendingTransactions:
		return "", ErrUnimplemented

	default:
		return "", ErrUnknownKind
	}

	h.ev("pubsub: subscribe: kind[%s] id[%s]", kind, id)
	return id, nil
}

// Unsubscribe removes the subscription from whichever registry holds it and
// reports whether it existed. Unsubscribing twice is not an error.
func (h *Hub) Unsubscribe(id string) bool {
	h.headsMu.Lock()
	if _, exists := h.heads[id]; exists {
		delete(h.heads, id)
		h.headsMu.Unlock()
		h.ev("pubsub: unsubscribe: id[%s]", id)
		return true
	}
	h.headsMu.Unlock()

	h.logsMu.Lock()
	if _, exists := h.logs[id]; exists {
		delete(h.logs, id)
		h.logsMu.Unlock()
		h.ev("pubsub: unsubscribe: id[%s]", id)
		return true
	}
	h.logsMu.Unlock()

	h.txMu.Lock()
	if _, exists := h.txs[id]; exists {
		delete(h.txs, id)
		h.txMu.Unlock()
		h.ev("pubsub: unsubscribe: id[%s]", id)
		return true
	}
	h.txMu.Unlock()

	return false
}

// =============================================================================
// EventSink support for the chain's commit path.

// NotifyBlocks fans the committed block range out to head and log
// subscribers. Delivery is asynchronous per subscriber so one slow consumer
// cannot stall the others or the submit path.
func (h *Hub) NotifyBlocks(fromBlock uint64, toBlock uint64) {
	h.headsMu.RLock()
	heads := make(map[string]Sink, len(h.heads))
	for id, sink := range h.heads {
		heads[id] = sink
	}
	h.headsMu.RUnlock()

	for id, sink := range heads {
		go h.deliverHeads(id, sink, fromBlock, toBlock)
	}

	h.logsMu.RLock()
	logs := make(map[string]logSub, len(h.logs))
	for id, sub := range h.logs {
		logs[id] = sub
	}
	h.logsMu.RUnlock()

	for id, sub := range logs {
		go h.deliverLogs(id, sub, fromBlock, toBlock)
	}
}

// NotifyCompletedTransaction delivers the outcome to every matching
// transaction subscriber before returning. Synchronous delivery lets a
// submitter that subscribed first observe its own outcome.
func (h *Hub) NotifyCompletedTransaction(entry database.TxEntry, outcome engine.Outcome) {
	h.txMu.RLock()
	txs := make(map[string]txSub, len(h.txs))
	for id, sub := range h.txs {
		txs[id] = sub
	}
	h.txMu.RUnlock()

	for id, sub := range txs {
		if !sub.filter.Matches(entry) {
			continue
		}

		event := Event{
			SubscriptionID: id,
			Kind:           KindCompletedTransaction,
			Outcome: &TransactionOutcome{
				Hash:   entry.Hash,
				Status: outcome.StatusCode,
				Output: outcome.Output,
			},
		}

		if err := sub.sink(event); err != nil {
			h.ev("pubsub: completed tx: id[%s] delivery failed: %s", id, err)
			h.Unsubscribe(id)
		}
	}
}

// deliverHeads sends one head event per committed block in the range.
func (h *Hub) deliverHeads(id string, sink Sink, fromBlock uint64, toBlock uint64) {
	for number := fromBlock; number <= toBlock; number++ {
		block, exists := h.chain.RetrieveBlockByNumber(number)
		if !exists {
			continue
		}

		event := Event{
			SubscriptionID: id,
			Kind:           KindNewHeads,
			Block:          &block,
		}

		if err := sink(event); err != nil {
			h.ev("pubsub: heads: id[%s] delivery failed: %s", id, err)
			h.Unsubscribe(id)
			return
		}
	}
}

// deliverLogs queries the committed range through the subscriber's filter,
// clamped so only the newly committed blocks are considered.
func (h *Hub) deliverLogs(id string, sub logSub, fromBlock uint64, toBlock uint64) {
	filter := sub.filter
	filter.FromBlock = clampFrom(sub.filter.FromBlock, fromBlock)
	filter.ToBlock = clampTo(sub.filter.ToBlock, toBlock)

	logs, err := h.chain.RetrieveLogs(filter)
	if err != nil {
		h.ev("pubsub: logs: id[%s] query failed: %s", id, err)
		return
	}

	for _, l := range logs {
		event := Event{
			SubscriptionID: id,
			Kind:           KindLogs,
			Log:            l,
		}

		if err := sub.sink(event); err != nil {
			h.ev("pubsub: logs: id[%s] delivery failed: %s", id, err)
			h.Unsubscribe(id)
			return
		}
	}
}

// clampFrom narrows the filter's lower bound to the committed range. Only a
// numeric bound above the range survives.
func clampFrom(id database.BlockID, fromBlock uint64) database.BlockID {
	if id.Kind == database.KindNumber && id.Number > fromBlock {
		return id
	}
	return database.NumberBlockID(fromBlock)
}

// clampTo narrows the filter's upper bound to the committed range. Only a
// numeric bound below the range survives.
func clampTo(id database.BlockID, toBlock uint64) database.BlockID {
	if id.Kind == database.KindNumber && id.Number < toBlock {
		return id
	}
	return database.NumberBlockID(toBlock)
}
