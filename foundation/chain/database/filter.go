package database

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// LogFilter selects logs by inclusive block range, emitting address, and
// topics. Matching semantics: the address list is a disjunction (empty
// matches any address); topics match per position where each position is a
// disjunction and an empty position is a wildcard; a log with fewer topics
// than constrained positions does not match.
type LogFilter struct {
	FromBlock BlockID          `json:"from_block"`
	ToBlock   BlockID          `json:"to_block"`
	Addresses []common.Address `json:"addresses"`
	Topics    [][]common.Hash  `json:"topics"`
}

// Matches reports whether the log satisfies the address and topic
// constraints. The block range is enforced by the caller.
func (f LogFilter) Matches(l *types.Log) bool {
	if len(f.Addresses) > 0 {
		var found bool
		for _, address := range f.Addresses {
			if address == l.Address {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(f.Topics) > len(l.Topics) {
		return false
	}

	for i, position := range f.Topics {
		if len(position) == 0 {
			continue
		}

		var found bool
		for _, topic := range position {
			if topic == l.Topics[i] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}
