// Package genesis maintains access to the genesis specification. The
// specification is constructed once during startup and passed by value into
// the chain state constructor. There is no ambient global genesis state.
package genesis

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Genesis represents the chain specification applied at block 0.
type Genesis struct {
	Date            time.Time           `json:"date"`
	ChainID         uint64              `json:"chain_id"`           // The chain id represents an unique id for this running instance.
	BlockGasLimit   uint64              `json:"block_gas_limit"`    // Maximum amount of gas a single block (one transaction) can consume.
	MinGasPriceGwei uint64              `json:"min_gas_price_gwei"` // Floor price for transaction admission.
	Balances        map[string]*big.Int `json:"balances"`           // Accounts funded at block 0, in wei.
}

// Default returns the development chain specification used when no genesis
// file is provided.
func Default() Genesis {
	oneHundredEth := new(big.Int).Mul(big.NewInt(100), big.NewInt(1e18))

	return Genesis{
		Date:            time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC),
		ChainID:         42261,
		BlockGasLimit:   16_000_000,
		MinGasPriceGwei: 1,
		Balances: map[string]*big.Int{
			"0x7110316b618d20d0c44728ac2a3d683536ea682b": oneHundredEth,
			"0xff8c7955506c8f6ae9df7efbc3a26cc9105e1797": oneHundredEth,
		},
	}
}

// Load opens and consumes a genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, err
	}

	if err := genesis.validate(); err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}

// MinGasPrice returns the admission floor in wei.
func (g Genesis) MinGasPrice() *big.Int {
	return GweiToWei(g.MinGasPriceGwei)
}

// GweiToWei converts a Gwei denominated amount into wei.
func GweiToWei(gwei uint64) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(gwei), big.NewInt(1e9))
}

// validate performs basic sanity checks against the specification.
func (g Genesis) validate() error {
	if g.BlockGasLimit == 0 {
		return fmt.Errorf("genesis block gas limit must be set")
	}

	for account := range g.Balances {
		if !common.IsHexAddress(account) {
			return fmt.Errorf("genesis balance account %q is not a valid address", account)
		}
	}

	return nil
}
