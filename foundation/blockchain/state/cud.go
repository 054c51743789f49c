package state

import (
	"encoding/json"
	"fmt"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
)

// AddTransaction appends the transaction to the mempool and returns the
// index of the block the transaction is expected to be committed to.
func (s *State) AddTransaction(tx database.Tx) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.mempool.Add(tx)
	index := uint64(s.db.Length()) + 1

	s.evHandler("state: AddTransaction: tx[%s]: blk[%d]: mempool[%d]", tx, index, n)

	s.signalStartMining()

	return index
}

// SealBlock constructs the next block from the transactions in the mempool
// and appends it to the chain. An empty previous hash means the hash of the
// current latest block.
func (s *State) SealBlock(proof uint64, previousHash string) database.Block {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sealBlock(proof, previousHash)
}

// ReplaceChain overwrites the chain. Callers are responsible for validating
// the chain first.
func (s *State) ReplaceChain(chain database.Chain) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.replaceChain(chain)
}

// =============================================================================

// sealBlock performs the work of SealBlock. The caller must hold the lock so
// the mempool drain and the append happen as a single step.
func (s *State) sealBlock(proof uint64, previousHash string) database.Block {
	if previousHash == "" {
		previousHash = s.db.LatestBlock().Hash()
	}

	block := database.NewBlock(s.db.Length(), proof, previousHash, s.mempool.Drain())
	s.db.Write(block)

	s.evHandler("state: sealBlock: blk[%d]: hash[%s]: numTrans[%d]", block.Index, block.Hash(), len(block.Transactions))
	s.blockEvent(block)

	return block
}

// replaceChain performs the work of ReplaceChain. The caller must hold the lock.
func (s *State) replaceChain(chain database.Chain) error {
	if err := s.db.Replace(chain); err != nil {
		return fmt.Errorf("replace chain: %w", err)
	}

	s.evHandler("state: replaceChain: length[%d]: latest[%s]", chain.Len(), s.db.LatestBlock().Hash())

	// Any proof being searched for is now relative to a block that may no
	// longer be the tail.
	s.signalCancelMining()

	return nil
}

// blockEvent provides a specific event about a new block in the chain for
// application specific support.
func (s *State) blockEvent(block database.Block) {
	blockJSON, err := json.Marshal(block)
	if err != nil {
		blockJSON = []byte(fmt.Sprintf("%q", err.Error()))
	}

	s.evHandler(`viewer: block: {"hash":%q,"block":%s}`, block.Hash(), string(blockJSON))
}
