package database

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Set of symbolic block identifier kinds.
const (
	KindLatest int = iota
	KindEarliest
	KindNumber
	KindHash
)

// BlockID identifies a block symbolically (latest, earliest), by number, or
// by hash.
type BlockID struct {
	Kind   int
	Number uint64
	Hash   common.Hash
}

// LatestBlockID returns the identifier for the current head block.
func LatestBlockID() BlockID {
	return BlockID{Kind: KindLatest}
}

// EarliestBlockID returns the identifier for the genesis block.
func EarliestBlockID() BlockID {
	return BlockID{Kind: KindEarliest}
}

// NumberBlockID returns the identifier for a specific block number.
func NumberBlockID(number uint64) BlockID {
	return BlockID{Kind: KindNumber, Number: number}
}

// HashBlockID returns the identifier for a specific block hash.
func HashBlockID(hash common.Hash) BlockID {
	return BlockID{Kind: KindHash, Hash: hash}
}

// ParseBlockID converts the string form of a block identifier. "pending"
// resolves to latest since there is no pending transaction pool to observe.
func ParseBlockID(s string) (BlockID, error) {
	switch strings.ToLower(s) {
	case "", "latest", "pending":
		return LatestBlockID(), nil
	case "earliest":
		return EarliestBlockID(), nil
	}

	if strings.HasPrefix(s, "0x") {
		if len(s) == 2+2*common.HashLength {
			return HashBlockID(common.HexToHash(s)), nil
		}

		number, err := strconv.ParseUint(s[2:], 16, 64)
		if err != nil {
			return BlockID{}, fmt.Errorf("invalid block id %q", s)
		}
		return NumberBlockID(number), nil
	}

	number, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return BlockID{}, fmt.Errorf("invalid block id %q", s)
	}

	return NumberBlockID(number), nil
}

// String returns the canonical string form of the identifier.
func (id BlockID) String() string {
	switch id.Kind {
	case KindLatest:
		return "latest"
	case KindEarliest:
		return "earliest"
	case KindHash:
		return id.Hash.Hex()
	default:
		return strconv.FormatUint(id.Number, 10)
	}
}

// MarshalJSON implements the json.Marshaler interface.
func (id BlockID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (id *BlockID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	parsed, err := ParseBlockID(s)
	if err != nil {
		return err
	}

	*id = parsed
	return nil
}
