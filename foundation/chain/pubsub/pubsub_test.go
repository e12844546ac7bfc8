package pubsub_test

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/oasislabs/oasis-chain/foundation/chain/database"
	"github.com/oasislabs/oasis-chain/foundation/chain/engine"
	"github.com/oasislabs/oasis-chain/foundation/chain/pubsub"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

var (
	addrA = common.HexToAddress("0x1111111111111111111111111111111111111111")
	addrB = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

// =============================================================================

// fakeChain provides committed blocks and logs for hub deliveries.
type fakeChain struct {
	head   uint64
	blocks map[uint64]database.Block
	logs   []*types.Log
}

func (fc *fakeChain) RetrieveBlockByNumber(number uint64) (database.Block, bool) {
	block, exists := fc.blocks[number]
	return block, exists
}

func (fc *fakeChain) RetrieveLogs(filter database.LogFilter) ([]*types.Log, error) {
	resolve := func(id database.BlockID, def uint64) uint64 {
		switch id.Kind {
		case database.KindNumber:
			return id.Number
		case database.KindEarliest:
			return 0
		default:
			return def
		}
	}

	fromBlock := resolve(filter.FromBlock, 0)
	toBlock := resolve(filter.ToBlock, fc.head)

	var logs []*types.Log
	for _, l := range fc.logs {
		if l.BlockNumber < fromBlock || l.BlockNumber > toBlock {
			continue
		}
		if filter.Matches(l) {
			logs = append(logs, l)
		}
	}

	return logs, nil
}

func newFakeChain() *fakeChain {
	fc := fakeChain{
		head:   2,
		blocks: make(map[uint64]database.Block),
	}

	for number := uint64(0); number <= 2; number++ {
		fc.blocks[number] = database.NewBlock(number, uint64(time.Now().Unix()), 0, 16_000_000, types.Bloom{})
	}

	fc.logs = []*types.Log{
		{Address: addrA, BlockNumber: 1, Topics: []common.Hash{common.HexToHash("0x01")}},
		{Address: addrB, BlockNumber: 2, Topics: []common.Hash{common.HexToHash("0x02")}},
	}

	return &fc
}

func waitEvent(t *testing.T, ch chan pubsub.Event) pubsub.Event {
	t.Helper()

	select {
	case event := <-ch:
		return event
	case <-time.After(time.Second):
		t.Fatalf("\t%s\tShould receive an event before the deadline.", failed)
		return pubsub.Event{}
	}
}

// =============================================================================

func Test_SubscribeValidation(t *testing.T) {
	noop := func(event pubsub.Event) error { return nil }
	logFilter := database.LogFilter{FromBlock: database.EarliestBlockID(), ToBlock: database.LatestBlockID()}

	type table struct {
		name   string
		kind   string
		params pubsub.Params
		err    error
	}

	tt := []table{
		{name: "heads", kind: pubsub.KindNewHeads},
		{name: "heads with params", kind: pubsub.KindNewHeads, params: pubsub.Params{Logs: &logFilter}, err: pubsub.ErrInvalidParams},
		{name: "logs", kind: pubsub.KindLogs, params: pubsub.Params{Logs: &logFilter}},
		{name: "logs without filter", kind: pubsub.KindLogs, err: pubsub.ErrInvalidParams},
		{name: "completed tx", kind: pubsub.KindCompletedTransaction, params: pubsub.Params{Transaction: &pubsub.TxFilter{}}},
		{name: "completed tx without filter", kind: pubsub.KindCompletedTransaction, err: pubsub.ErrInvalidParams},
		{name: "pending txs", kind: pubsub.KindNewPendingTransactions, err: pubsub.ErrUnimplemented},
		{name: "unknown", kind: "bogus", err: pubsub.ErrUnknownKind},
	}

	t.Log("Given the need to validate subscription requests.")
	{
		hub := pubsub.New(newFakeChain(), nil)

		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen subscribing for %q.", testID, tst.name)
			{
				id, err := hub.Subscribe(tst.kind, tst.params, noop)

				if !errors.Is(err, tst.err) {
					t.Fatalf("\t%s\tTest %d:\tShould get error %v, got %v.", failed, testID, tst.err, err)
				}
				t.Logf("\t%s\tTest %d:\tShould get the expected result.", success, testID)

				if tst.err == nil && id == "" {
					t.Fatalf("\t%s\tTest %d:\tShould get a subscription id.", failed, testID)
				}
			}
		}
	}
}

func Test_HeadsDelivery(t *testing.T) {
	t.Log("Given the need to deliver new head notifications.")
	{
		t.Log("\tTest 0:\tWhen a block range commits after subscribing.")
		{
			hub := pubsub.New(newFakeChain(), nil)

			ch := make(chan pubsub.Event, 16)
			sink := func(event pubsub.Event) error {
				ch <- event
				return nil
			}

			id, err := hub.Subscribe(pubsub.KindNewHeads, pubsub.Params{}, sink)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to subscribe: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to subscribe.", success)

			hub.NotifyBlocks(1, 2)

			first := waitEvent(t, ch)
			second := waitEvent(t, ch)

			if first.Kind != pubsub.KindNewHeads || first.Block == nil || first.Block.Number != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould deliver block 1 first.", failed)
			}
			if second.Block == nil || second.Block.Number != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould deliver block 2 second.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould deliver the blocks in order.", success)

			if first.SubscriptionID != id {
				t.Fatalf("\t%s\tTest 0:\tShould carry the subscription id.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould carry the subscription id.", success)

			if !hub.Unsubscribe(id) {
				t.Fatalf("\t%s\tTest 0:\tShould report the removal.", failed)
			}
			if hub.Unsubscribe(id) {
				t.Fatalf("\t%s\tTest 0:\tShould be idempotent on a second remove.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould unsubscribe idempotently.", success)

			hub.NotifyBlocks(1, 2)
			time.Sleep(100 * time.Millisecond)
			select {
			case <-ch:
				t.Fatalf("\t%s\tTest 0:\tShould not deliver after unsubscribe.", failed)
			default:
				t.Logf("\t%s\tTest 0:\tShould not deliver after unsubscribe.", success)
			}
		}
	}
}

func Test_LogsDelivery(t *testing.T) {
	t.Log("Given the need to deliver matching log notifications.")
	{
		t.Log("\tTest 0:\tWhen logs commit inside the notified range.")
		{
			hub := pubsub.New(newFakeChain(), nil)

			ch := make(chan pubsub.Event, 16)
			sink := func(event pubsub.Event) error {
				ch <- event
				return nil
			}

			filter := database.LogFilter{
				FromBlock: database.EarliestBlockID(),
				ToBlock:   database.LatestBlockID(),
				Addresses: []common.Address{addrA},
			}

			if _, err := hub.Subscribe(pubsub.KindLogs, pubsub.Params{Logs: &filter}, sink); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to subscribe: %v", failed, err)
			}

			hub.NotifyBlocks(1, 2)

			event := waitEvent(t, ch)
			if event.Kind != pubsub.KindLogs || event.Log == nil || event.Log.Address != addrA {
				t.Fatalf("\t%s\tTest 0:\tShould deliver only the matching log.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould deliver only the matching log.", success)

			time.Sleep(100 * time.Millisecond)
			select {
			case <-ch:
				t.Fatalf("\t%s\tTest 0:\tShould not deliver the filtered-out log.", failed)
			default:
				t.Logf("\t%s\tTest 0:\tShould not deliver the filtered-out log.", success)
			}
		}

		t.Log("\tTest 1:\tWhen the notified range excludes the log's block.")
		{
			hub := pubsub.New(newFakeChain(), nil)

			ch := make(chan pubsub.Event, 16)
			sink := func(event pubsub.Event) error {
				ch <- event
				return nil
			}

			filter := database.LogFilter{
				FromBlock: database.EarliestBlockID(),
				ToBlock:   database.LatestBlockID(),
			}

			if _, err := hub.Subscribe(pubsub.KindLogs, pubsub.Params{Logs: &filter}, sink); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to subscribe: %v", failed, err)
			}

			// Only block 2 commits; the block 1 log must not be replayed.
			hub.NotifyBlocks(2, 2)

			event := waitEvent(t, ch)
			if event.Log == nil || event.Log.BlockNumber != 2 {
				t.Fatalf("\t%s\tTest 1:\tShould deliver only the block 2 log.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould deliver only the block 2 log.", success)

			time.Sleep(100 * time.Millisecond)
			select {
			case <-ch:
				t.Fatalf("\t%s\tTest 1:\tShould not replay earlier blocks.", failed)
			default:
				t.Logf("\t%s\tTest 1:\tShould not replay earlier blocks.", success)
			}
		}
	}
}

func Test_CompletedTransactionDelivery(t *testing.T) {
	entry := database.TxEntry{
		Hash: common.HexToHash("0xabc"),
		From: addrA,
		To:   &addrB,
	}
	outcome := engine.Outcome{StatusCode: 1, Output: []byte("out")}

	type table struct {
		name    string
		filter  pubsub.TxFilter
		matches bool
	}

	tt := []table{
		{name: "wildcard", filter: pubsub.TxFilter{}, matches: true},
		{name: "from hit", filter: pubsub.TxFilter{From: &addrA}, matches: true},
		{name: "from miss", filter: pubsub.TxFilter{From: &addrB}, matches: false},
		{name: "to hit", filter: pubsub.TxFilter{To: &addrB}, matches: true},
		{name: "to miss", filter: pubsub.TxFilter{To: &addrA}, matches: false},
		{name: "both hit", filter: pubsub.TxFilter{From: &addrA, To: &addrB}, matches: true},
	}

	t.Log("Given the need to deliver completed transaction outcomes.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen filtering with %q.", testID, tst.name)
			{
				hub := pubsub.New(newFakeChain(), nil)

				var got []pubsub.Event
				sink := func(event pubsub.Event) error {
					got = append(got, event)
					return nil
				}

				if _, err := hub.Subscribe(pubsub.KindCompletedTransaction, pubsub.Params{Transaction: &tst.filter}, sink); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to subscribe: %v", failed, testID, err)
				}

				// Delivery is synchronous, so the events are visible on return.
				hub.NotifyCompletedTransaction(entry, outcome)

				if tst.matches {
					if len(got) != 1 || got[0].Outcome == nil || got[0].Outcome.Hash != entry.Hash {
						t.Fatalf("\t%s\tTest %d:\tShould deliver the outcome.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould deliver the outcome.", success, testID)
				} else {
					if len(got) != 0 {
						t.Fatalf("\t%s\tTest %d:\tShould not deliver the outcome.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould not deliver the outcome.", success, testID)
				}
			}
		}
	}
}
