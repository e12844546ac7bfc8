package ethgrp

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/oasislabs/oasis-chain/foundation/chain/database"
)

// submitTx is what a client sends to submit a signed transaction.
type submitTx struct {
	Tx hexutil.Bytes `json:"tx" validate:"required"`
}

// submitResult is returned after a transaction is mined.
type submitResult struct {
	Hash    common.Hash    `json:"txHash"`
	Status  hexutil.Uint64 `json:"status"`
	GasUsed hexutil.Uint64 `json:"gasUsed"`
	Output  hexutil.Bytes  `json:"output,omitempty"`
}

// callRequest is the payload for the call and estimate endpoints.
type callRequest struct {
	From     *common.Address `json:"from"`
	To       *common.Address `json:"to"`
	Gas      hexutil.Uint64  `json:"gas"`
	GasPrice *hexutil.Big    `json:"gasPrice"`
	Value    *hexutil.Big    `json:"value"`
	Data     hexutil.Bytes   `json:"data"`
}

// callResult carries the output of a simulated call.
type callResult struct {
	Output hexutil.Bytes `json:"output"`
}

// estimateResult carries a gas estimate.
type estimateResult struct {
	Gas hexutil.Uint64 `json:"gas"`
}

// gasPriceResult carries the minimum accepted gas price.
type gasPriceResult struct {
	GasPrice *hexutil.Big `json:"gasPrice"`
}

// logsRequest is the payload for the log query endpoint.
type logsRequest struct {
	FromBlock string           `json:"fromBlock"`
	ToBlock   string           `json:"toBlock"`
	Addresses []common.Address `json:"addresses"`
	Topics    [][]common.Hash  `json:"topics"`
}

// tx is the client view of a committed transaction.
type tx struct {
	Hash             common.Hash     `json:"hash"`
	From             common.Address  `json:"from"`
	To               *common.Address `json:"to"`
	Nonce            hexutil.Uint64  `json:"nonce"`
	Value            *hexutil.Big    `json:"value"`
	Gas              hexutil.Uint64  `json:"gas"`
	GasPrice         *hexutil.Big    `json:"gasPrice"`
	Input            hexutil.Bytes   `json:"input"`
	BlockHash        common.Hash     `json:"blockHash"`
	BlockNumber      hexutil.Uint64  `json:"blockNumber"`
	TransactionIndex hexutil.Uint    `json:"transactionIndex"`
}

// block is the client view of a block. Transactions holds full transaction
// records only when the client asks for them, otherwise just the hashes.
type block struct {
	Number       hexutil.Uint64 `json:"number"`
	Hash         common.Hash    `json:"hash"`
	Timestamp    hexutil.Uint64 `json:"timestamp"`
	GasUsed      hexutil.Uint64 `json:"gasUsed"`
	GasLimit     hexutil.Uint64 `json:"gasLimit"`
	LogsBloom    hexutil.Bytes  `json:"logsBloom"`
	TxHashes     []common.Hash  `json:"txHashes"`
	Transactions []tx           `json:"transactions,omitempty"`
}

// receipt is the client view of a transaction receipt.
type receipt struct {
	TransactionHash   common.Hash     `json:"transactionHash"`
	TransactionIndex  hexutil.Uint    `json:"transactionIndex"`
	BlockHash         common.Hash     `json:"blockHash"`
	BlockNumber       hexutil.Uint64  `json:"blockNumber"`
	CumulativeGasUsed hexutil.Uint64  `json:"cumulativeGasUsed"`
	GasUsed           hexutil.Uint64  `json:"gasUsed"`
	ContractAddress   *common.Address `json:"contractAddress"`
	Logs              []*types.Log    `json:"logs"`
	LogsBloom         hexutil.Bytes   `json:"logsBloom"`
	Status            hexutil.Uint64  `json:"status"`
}

// accountResult carries a single account query value.
type accountResult struct {
	Address common.Address `json:"address"`
	Balance *hexutil.Big   `json:"balance,omitempty"`
	Nonce   hexutil.Uint64 `json:"nonce"`
	Code    hexutil.Bytes  `json:"code,omitempty"`
}

func toTx(dbTx database.Tx) tx {
	return tx{
		Hash:             dbTx.Hash(),
		From:             dbTx.From,
		To:               dbTx.To(),
		Nonce:            hexutil.Uint64(dbTx.Nonce()),
		Value:            (*hexutil.Big)(dbTx.Value()),
		Gas:              hexutil.Uint64(dbTx.Gas()),
		GasPrice:         (*hexutil.Big)(dbTx.GasPrice()),
		Input:            dbTx.Data(),
		BlockHash:        dbTx.BlockHash,
		BlockNumber:      hexutil.Uint64(dbTx.BlockNumber),
		TransactionIndex: hexutil.Uint(dbTx.Index),
	}
}

func toBlock(dbBlock database.Block, fullTxs bool) block {
	hashes := make([]common.Hash, len(dbBlock.Transactions))
	for i, dbTx := range dbBlock.Transactions {
		hashes[i] = dbTx.Hash()
	}

	var txs []tx
	if fullTxs {
		txs = make([]tx, len(dbBlock.Transactions))
		for i, dbTx := range dbBlock.Transactions {
			txs[i] = toTx(dbTx)
		}
	}

	return block{
		Number:       hexutil.Uint64(dbBlock.Number),
		Hash:         dbBlock.Hash,
		Timestamp:    hexutil.Uint64(dbBlock.Timestamp),
		GasUsed:      hexutil.Uint64(dbBlock.GasUsed),
		GasLimit:     hexutil.Uint64(dbBlock.GasLimit),
		LogsBloom:    dbBlock.LogBloom.Bytes(),
		TxHashes:     hashes,
		Transactions: txs,
	}
}

func toReceipt(dbReceipt database.Receipt) receipt {
	return receipt{
		TransactionHash:   dbReceipt.TransactionHash,
		TransactionIndex:  hexutil.Uint(dbReceipt.TransactionIndex),
		BlockHash:         dbReceipt.BlockHash,
		BlockNumber:       hexutil.Uint64(dbReceipt.BlockNumber),
		CumulativeGasUsed: hexutil.Uint64(dbReceipt.CumulativeGasUsed),
		GasUsed:           hexutil.Uint64(dbReceipt.GasUsed),
		ContractAddress:   dbReceipt.ContractAddress,
		Logs:              dbReceipt.Logs,
		LogsBloom:         dbReceipt.LogBloom.Bytes(),
		Status:            hexutil.Uint64(dbReceipt.Status),
	}
}

func toCallRequest(call callRequest) database.CallRequest {
	return database.CallRequest{
		From:     call.From,
		To:       call.To,
		Gas:      uint64(call.Gas),
		GasPrice: call.GasPrice.ToInt(),
		Value:    call.Value.ToInt(),
		Data:     call.Data,
	}
}
