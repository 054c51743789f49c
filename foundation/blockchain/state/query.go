package state

import "github.com/ardanlabs/powledger/foundation/blockchain/database"

// QueryLatest represents to query the latest block in the chain.
const QueryLatest = ^uint64(0) >> 1

// =============================================================================

// QueryMempoolLength returns the current length of the mempool.
func (s *State) QueryMempoolLength() int {
	return s.mempool.Count()
}

// QueryChainLength returns the number of blocks in the chain.
func (s *State) QueryChainLength() int {
	return s.db.Length()
}

// QueryBlocksByIndex returns the set of blocks based on block indexes. Block
// indexes start at 1.
func (s *State) QueryBlocksByIndex(from uint64, to uint64) []database.Block {
	chain := s.db.Copy()
	latest := uint64(chain.Len())

	if from == QueryLatest {
		from = latest
		to = from
	}
	if to == QueryLatest || to > latest {
		to = latest
	}
	if from == 0 {
		from = 1
	}

	var out []database.Block
	for i := from; i <= to; i++ {
		out = append(out, chain[i-1])
	}

	return out
}
