package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var (
	chainID  uint64
	nonce    uint64
	to       string
	value    string
	gas      uint64
	gasPrice uint64
	data     []byte
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Sign and submit a transaction",
	Run: func(cmd *cobra.Command, args []string) {
		privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
		if err != nil {
			log.Fatal(err)
		}

		amount, ok := new(big.Int).SetString(value, 10)
		if !ok {
			log.Fatalf("invalid value %q", value)
		}

		var toAddress *common.Address
		if to != "" {
			if !common.IsHexAddress(to) {
				log.Fatalf("invalid to address %q", to)
			}
			address := common.HexToAddress(to)
			toAddress = &address
		}

		tx := types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			To:       toAddress,
			Value:    amount,
			Gas:      gas,
			GasPrice: new(big.Int).Mul(new(big.Int).SetUint64(gasPrice), big.NewInt(1e9)),
			Data:     data,
		})

		signer := types.LatestSignerForChainID(new(big.Int).SetUint64(chainID))
		signedTx, err := types.SignTx(tx, signer, privateKey)
		if err != nil {
			log.Fatal(err)
		}

		encoded, err := signedTx.MarshalBinary()
		if err != nil {
			log.Fatal(err)
		}

		payload, err := json.Marshal(struct {
			Tx hexutil.Bytes `json:"tx"`
		}{
			Tx: encoded,
		})
		if err != nil {
			log.Fatal(err)
		}

		resp, err := http.Post(fmt.Sprintf("%s/v1/eth/tx/submit", url), "application/json", bytes.NewBuffer(payload))
		if err != nil {
			log.Fatal(err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			log.Fatal(err)
		}

		fmt.Println(string(body))
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().Uint64VarP(&chainID, "chainid", "c", 42261, "Chain id to sign for.")
	sendCmd.Flags().Uint64VarP(&nonce, "nonce", "n", 0, "Nonce of the sending account.")
	sendCmd.Flags().StringVarP(&to, "to", "t", "", "Recipient address. Empty deploys a contract.")
	sendCmd.Flags().StringVarP(&value, "value", "v", "0", "Value to send in wei.")
	sendCmd.Flags().Uint64VarP(&gas, "gas", "g", 100_000, "Gas limit for the transaction.")
	sendCmd.Flags().Uint64Var(&gasPrice, "gasprice", 1, "Gas price in gwei.")
	sendCmd.Flags().BytesHexVarP(&data, "data", "d", nil, "Data to send.")
}
