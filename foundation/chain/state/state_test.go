package state_test

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/oasislabs/oasis-chain/foundation/chain/confidential"
	"github.com/oasislabs/oasis-chain/foundation/chain/database"
	"github.com/oasislabs/oasis-chain/foundation/chain/engine"
	"github.com/oasislabs/oasis-chain/foundation/chain/engine/basic"
	"github.com/oasislabs/oasis-chain/foundation/chain/genesis"
	"github.com/oasislabs/oasis-chain/foundation/chain/keymanager"
	"github.com/oasislabs/oasis-chain/foundation/chain/pubsub"
	"github.com/oasislabs/oasis-chain/foundation/chain/state"
	"github.com/oasislabs/oasis-chain/foundation/chain/storage/memory"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

const chainID = 42261

var recipient = common.HexToAddress("0xff8c7955506c8f6ae9df7efbc3a26cc9105e1797")

// =============================================================================

func newChain(t *testing.T, key *ecdsa.PrivateKey) *state.State {
	t.Helper()

	address := crypto.PubkeyToAddress(key.PublicKey)
	oneHundredEth := new(big.Int).Mul(big.NewInt(100), big.NewInt(1e18))

	gen := genesis.Genesis{
		Date:            time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC),
		ChainID:         chainID,
		BlockGasLimit:   16_000_000,
		MinGasPriceGwei: 1,
		Balances: map[string]*big.Int{
			address.Hex(): oneHundredEth,
		},
	}

	eng, err := basic.New(memory.New(), gen)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the engine: %v", failed, err)
	}

	st, err := state.New(state.Config{
		Genesis:  gen,
		Engine:   eng,
		Reader:   eng,
		KMClient: keymanager.NewMockClient(),
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the chain: %v", failed, err)
	}
	t.Cleanup(st.Shutdown)

	return st
}

func signTx(t *testing.T, key *ecdsa.PrivateKey, signChainID uint64, nonce uint64, to *common.Address, value *big.Int, gas uint64, gasPriceGwei int64, data []byte) []byte {
	t.Helper()

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       to,
		Value:    value,
		Gas:      gas,
		GasPrice: new(big.Int).Mul(big.NewInt(gasPriceGwei), big.NewInt(1e9)),
		Data:     data,
	})

	signer := types.LatestSignerForChainID(new(big.Int).SetUint64(signChainID))
	signed, err := types.SignTx(tx, signer, key)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to sign the transaction: %v", failed, err)
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to encode the transaction: %v", failed, err)
	}

	return raw
}

// =============================================================================

func Test_SubmitLifecycle(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	sender := crypto.PubkeyToAddress(key.PublicKey)

	t.Log("Given the need to mine submitted transactions into blocks.")
	{
		t.Log("\tTest 0:\tWhen starting from genesis.")
		{
			st := newChain(t, key)

			if st.RetrieveBlockNumber() != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould start at block 0.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould start at block 0.", success)

			latest := st.RetrieveLatestBlock()
			if latest.Number != 0 || len(latest.Transactions) != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould have an empty genesis block.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould have an empty genesis block.", success)
		}

		t.Log("\tTest 1:\tWhen submitting a valid transfer.")
		{
			st := newChain(t, key)

			raw := signTx(t, key, chainID, 0, &recipient, big.NewInt(10), 21_000, 2, nil)

			hash, outcome, err := st.SubmitRawTransaction(raw)
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to submit: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould be able to submit.", success)

			if outcome.StatusCode != 1 || outcome.GasUsed != 21_000 {
				t.Fatalf("\t%s\tTest 1:\tShould report the outcome with the submit.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould report the outcome with the submit.", success)

			if st.RetrieveBlockNumber() != 1 {
				t.Fatalf("\t%s\tTest 1:\tShould have mined block 1.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould have mined block 1.", success)

			block, exists := st.RetrieveBlockByHash(database.BlockHash(1))
			if !exists || len(block.Transactions) != 1 || block.Transactions[0].Hash() != hash {
				t.Fatalf("\t%s\tTest 1:\tShould find the block by hash holding the transaction.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould find the block by hash holding the transaction.", success)

			tx, exists := st.RetrieveTransaction(hash)
			if !exists || tx.BlockNumber != 1 || tx.Index != 0 || tx.From != sender {
				t.Fatalf("\t%s\tTest 1:\tShould localize the transaction.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould localize the transaction.", success)

			receipt, exists := st.RetrieveReceipt(hash)
			if !exists || receipt.Status != 1 || receipt.GasUsed != 21_000 || receipt.BlockNumber != 1 {
				t.Fatalf("\t%s\tTest 1:\tShould record a successful receipt.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould record a successful receipt.", success)

			if st.RetrieveBalance(recipient).Cmp(big.NewInt(10)) != 0 {
				t.Fatalf("\t%s\tTest 1:\tShould credit the recipient.", failed)
			}
			if st.RetrieveNonce(sender) != 1 {
				t.Fatalf("\t%s\tTest 1:\tShould advance the sender nonce.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould apply the transfer to account state.", success)

			id, _ := database.ParseBlockID("latest")
			latest, exists := st.RetrieveBlock(id)
			if !exists || latest.Number != 1 {
				t.Fatalf("\t%s\tTest 1:\tShould resolve latest to block 1.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould resolve latest to block 1.", success)
		}

		t.Log("\tTest 2:\tWhen submitting several transfers.")
		{
			st := newChain(t, key)

			for nonce := uint64(0); nonce < 3; nonce++ {
				raw := signTx(t, key, chainID, nonce, &recipient, big.NewInt(1), 21_000, 1, nil)
				if _, _, err := st.SubmitRawTransaction(raw); err != nil {
					t.Fatalf("\t%s\tTest 2:\tShould be able to submit tx %d: %v", failed, nonce, err)
				}
			}

			if st.RetrieveBlockNumber() != 3 {
				t.Fatalf("\t%s\tTest 2:\tShould mine one block per transaction.", failed)
			}
			t.Logf("\t%s\tTest 2:\tShould mine one block per transaction.", success)

			for number := uint64(1); number <= 3; number++ {
				block, exists := st.RetrieveBlockByNumber(number)
				if !exists || block.Number != number || len(block.Transactions) != 1 {
					t.Fatalf("\t%s\tTest 2:\tShould have a gapless chain at block %d.", failed, number)
				}
			}
			t.Logf("\t%s\tTest 2:\tShould have a gapless chain.", success)
		}
	}
}

func Test_Admission(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	t.Log("Given the need to reject inadmissible transactions.")
	{
		st := newChain(t, key)

		type table struct {
			name string
			raw  []byte
			err  error
		}

		tt := []table{
			{name: "garbage bytes", raw: []byte{0xde, 0xad, 0xbe, 0xef}, err: state.ErrDecode},
			{name: "gas above block limit", raw: signTx(t, key, chainID, 0, &recipient, big.NewInt(1), 20_000_000, 1, nil), err: state.ErrGasTooHigh},
			{name: "wrong chain id", raw: signTx(t, key, 1, 0, &recipient, big.NewInt(1), 21_000, 1, nil), err: state.ErrBadSignature},
			{name: "gas price below floor", raw: signTx(t, key, chainID, 0, &recipient, big.NewInt(1), 21_000, 0, nil), err: state.ErrGasPriceTooLow},
		}

		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen submitting %q.", testID, tst.name)
			{
				if _, _, err := st.SubmitRawTransaction(tst.raw); !errors.Is(err, tst.err) {
					t.Fatalf("\t%s\tTest %d:\tShould get %v, got %v.", failed, testID, tst.err, err)
				}
				t.Logf("\t%s\tTest %d:\tShould get the admission error.", success, testID)
			}
		}

		if st.RetrieveBlockNumber() != 0 {
			t.Fatalf("\t%s\tShould leave the chain height unchanged.", failed)
		}
		t.Logf("\t%s\tShould leave the chain height unchanged.", success)
	}
}

func Test_ContractLogs(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	sender := crypto.PubkeyToAddress(key.PublicKey)

	t.Log("Given the need to query logs from committed contract calls.")
	{
		t.Log("\tTest 0:\tWhen deploying and calling a contract.")
		{
			st := newChain(t, key)

			deploy := signTx(t, key, chainID, 0, nil, big.NewInt(0), 100_000, 1, []byte{0x01})
			deployHash, _, err := st.SubmitRawTransaction(deploy)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to deploy: %v", failed, err)
			}

			receipt, exists := st.RetrieveReceipt(deployHash)
			if !exists || receipt.ContractAddress == nil {
				t.Fatalf("\t%s\tTest 0:\tShould record the contract address.", failed)
			}
			contract := *receipt.ContractAddress
			if contract != crypto.CreateAddress(sender, 0) {
				t.Fatalf("\t%s\tTest 0:\tShould derive the contract address from sender and nonce.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould record the contract address.", success)

			slot := common.HexToHash("0x02")
			payload := append(slot.Bytes(), []byte("value")...)
			call := signTx(t, key, chainID, 1, &contract, big.NewInt(0), 100_000, 1, payload)
			callHash, _, err := st.SubmitRawTransaction(call)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to call the contract: %v", failed, err)
			}

			filter := database.LogFilter{
				FromBlock: database.EarliestBlockID(),
				ToBlock:   database.LatestBlockID(),
				Addresses: []common.Address{contract},
			}

			logs, err := st.RetrieveLogs(filter)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to query logs: %v", failed, err)
			}
			if len(logs) != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould find one log, got %d.", failed, len(logs))
			}
			t.Logf("\t%s\tTest 0:\tShould find one log.", success)

			l := logs[0]
			if l.BlockNumber != 2 || l.TxHash != callHash || l.Topics[1] != slot {
				t.Fatalf("\t%s\tTest 0:\tShould localize the log to its block and transaction.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould localize the log to its block and transaction.", success)

			if len(st.RetrieveCode(contract)) == 0 {
				t.Fatalf("\t%s\tTest 0:\tShould expose the contract code.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould expose the contract code.", success)
		}
	}
}

func Test_SimulateAndEstimate(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	sender := crypto.PubkeyToAddress(key.PublicKey)

	t.Log("Given the need to simulate without mutating the chain.")
	{
		t.Log("\tTest 0:\tWhen estimating a transfer.")
		{
			st := newChain(t, key)

			call := database.CallRequest{
				From:  &sender,
				To:    &recipient,
				Value: big.NewInt(10),
			}

			gas, err := st.EstimateGas(context.Background(), call)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to estimate: %v", failed, err)
			}
			if gas != 21_000 {
				t.Fatalf("\t%s\tTest 0:\tShould estimate the base gas, got %d.", failed, gas)
			}
			t.Logf("\t%s\tTest 0:\tShould estimate the base gas.", success)

			if st.RetrieveBlockNumber() != 0 || st.RetrieveNonce(sender) != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould leave the chain untouched.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould leave the chain untouched.", success)
		}

		t.Log("\tTest 1:\tWhen the context is already cancelled.")
		{
			st := newChain(t, key)

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			call := database.CallRequest{To: &recipient}
			if _, err := st.SimulateTransaction(ctx, call); !errors.Is(err, context.Canceled) {
				t.Fatalf("\t%s\tTest 1:\tShould honor the cancelled context, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould honor the cancelled context.", success)
		}
	}
}

// =============================================================================

// recordingSink captures commit notifications for inspection.
type recordingSink struct {
	mu      sync.Mutex
	entries []database.TxEntry
	blocks  [][2]uint64
}

func (rs *recordingSink) NotifyCompletedTransaction(entry database.TxEntry, outcome engine.Outcome) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.entries = append(rs.entries, entry)
}

func (rs *recordingSink) NotifyBlocks(fromBlock uint64, toBlock uint64) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.blocks = append(rs.blocks, [2]uint64{fromBlock, toBlock})
}

func Test_EventSink(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	t.Log("Given the need to notify the sink on every commit.")
	{
		t.Log("\tTest 0:\tWhen submitting a transaction with a sink registered.")
		{
			st := newChain(t, key)

			var sink recordingSink
			st.RegisterEventSink(&sink)

			raw := signTx(t, key, chainID, 0, &recipient, big.NewInt(1), 21_000, 1, nil)
			hash, _, err := st.SubmitRawTransaction(raw)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to submit: %v", failed, err)
			}

			// Completed transaction delivery is synchronous with the submit.
			sink.mu.Lock()
			defer sink.mu.Unlock()

			if len(sink.entries) != 1 || sink.entries[0].Hash != hash {
				t.Fatalf("\t%s\tTest 0:\tShould deliver the completed transaction before returning.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould deliver the completed transaction before returning.", success)

			if len(sink.blocks) != 1 || sink.blocks[0] != [2]uint64{1, 1} {
				t.Fatalf("\t%s\tTest 0:\tShould announce the committed block range.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould announce the committed block range.", success)
		}
	}
}

// =============================================================================

// haltingEngine applies cleanly and then fails every commit.
type haltingEngine struct{}

func (haltingEngine) Apply(env engine.EnvInfo, from common.Address, tx *types.Transaction, cctx *confidential.Context) (engine.Outcome, error) {
	return engine.Outcome{GasUsed: 21_000, StatusCode: 1}, nil
}

func (haltingEngine) TransactVirtual(env engine.EnvInfo, from common.Address, tx *types.Transaction) (engine.Outcome, error) {
	return engine.Outcome{GasUsed: 21_000, StatusCode: 1}, nil
}

func (haltingEngine) Commit() error {
	return errors.New("commit failure")
}

func (haltingEngine) Balance(address common.Address) *big.Int { return new(big.Int) }
func (haltingEngine) Nonce(address common.Address) uint64     { return 0 }
func (haltingEngine) Code(address common.Address) []byte      { return nil }

func Test_Halting(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	t.Log("Given the need to halt the chain on a failed commit.")
	{
		t.Log("\tTest 0:\tWhen the engine cannot commit.")
		{
			gen := genesis.Default()

			st, err := state.New(state.Config{
				Genesis: gen,
				Engine:  haltingEngine{},
				Reader:  haltingEngine{},
			})
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to construct the chain: %v", failed, err)
			}
			t.Cleanup(st.Shutdown)

			raw := signTx(t, key, chainID, 0, &recipient, big.NewInt(1), 21_000, 1, nil)

			if _, _, err := st.SubmitRawTransaction(raw); !errors.Is(err, state.ErrHalted) {
				t.Fatalf("\t%s\tTest 0:\tShould surface the halt, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould surface the halt.", success)

			if _, _, err := st.SubmitRawTransaction(raw); !errors.Is(err, state.ErrHalted) {
				t.Fatalf("\t%s\tTest 0:\tShould refuse writes after the halt, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould refuse writes after the halt.", success)

			if st.RetrieveBlockNumber() != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould not expose the failed block.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould not expose the failed block.", success)
		}
	}
}

func Test_Scenario(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	t.Log("Given the need to run a full submit and subscribe flow.")
	{
		t.Log("\tTest 0:\tWhen running the chain with a hub attached.")
		{
			st := newChain(t, key)

			hub := pubsub.New(st, nil)
			st.RegisterEventSink(hub)

			raw := signTx(t, key, chainID, 0, &recipient, big.NewInt(1), 21_000, 1, nil)
			if _, _, err := st.SubmitRawTransaction(raw); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould mine the first transfer: %v", failed, err)
			}
			if st.RetrieveBlockNumber() != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould be at block 1.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould mine the first transfer into block 1.", success)

			raw = signTx(t, key, chainID, 1, &recipient, big.NewInt(1), 17_000_000, 1, nil)
			if _, _, err := st.SubmitRawTransaction(raw); !errors.Is(err, state.ErrGasTooHigh) {
				t.Fatalf("\t%s\tTest 0:\tShould reject the oversized transaction, got %v.", failed, err)
			}
			if st.RetrieveBlockNumber() != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould still be at block 1 after the rejection.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould leave the chain untouched by the rejection.", success)

			heads := make(chan database.Block, 1)
			id, err := hub.Subscribe(pubsub.KindNewHeads, pubsub.Params{}, func(event pubsub.Event) error {
				heads <- *event.Block
				return nil
			})
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to subscribe for heads: %v", failed, err)
			}

			raw = signTx(t, key, chainID, 1, &recipient, big.NewInt(1), 21_000, 1, nil)
			if _, _, err := st.SubmitRawTransaction(raw); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould mine the second transfer: %v", failed, err)
			}

			select {
			case block := <-heads:
				if block.Number != 2 {
					t.Fatalf("\t%s\tTest 0:\tShould deliver block 2, got %d.", failed, block.Number)
				}
				t.Logf("\t%s\tTest 0:\tShould deliver block 2 to the subscriber.", success)

			case <-time.After(time.Second):
				t.Fatalf("\t%s\tTest 0:\tShould deliver the head notification in time.", failed)
			}

			if !hub.Unsubscribe(id) {
				t.Fatalf("\t%s\tTest 0:\tShould report the subscription removed.", failed)
			}
			if hub.Unsubscribe(id) {
				t.Fatalf("\t%s\tTest 0:\tShould not report a second removal.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould unsubscribe exactly once.", success)
		}
	}
}
