package state

import (
	"context"
	"errors"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/pow"
)

// ErrChainChanged is returned when the latest block changed while a proof
// was being searched for and the proof does not solve the new latest block.
var ErrChainChanged = errors.New("chain changed during mining, proof no longer valid")

// =============================================================================

// MineNewBlock solves the proof of work puzzle posed by the latest block,
// rewards this node and seals the mempool into a new block. The search runs
// without holding the state lock so transactions can keep arriving.
func (s *State) MineNewBlock(ctx context.Context) (database.Block, error) {
	s.evHandler("state: MineNewBlock: MINING: started")
	defer s.evHandler("state: MineNewBlock: MINING: completed")

	prevBlock := s.RetrieveLatestBlock()

	s.evHandler("state: MineNewBlock: MINING: perform POW: prevBlk[%d]: proof[%d]", prevBlock.Index, prevBlock.Proof)

	proof, err := pow.Solve(ctx, prevBlock.Proof, s.genesis.Difficulty, pow.EventHandler(s.evHandler))
	if err != nil {
		return database.Block{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Just check one more time we were not cancelled.
	if ctx.Err() != nil {
		return database.Block{}, ctx.Err()
	}

	// The chain may have been replaced while the search was running. The
	// proof is only good if it still solves the puzzle of the current tail.
	latest := s.db.LatestBlock()
	if latest.Hash() != prevBlock.Hash() {
		if !pow.IsValidProof(latest.Proof, proof, s.genesis.Difficulty) {
			s.evHandler("state: MineNewBlock: MINING: WARNING: latest block changed: blk[%d]: proof[%d] rejected", latest.Index, proof)
			return database.Block{}, ErrChainChanged
		}

		s.evHandler("state: MineNewBlock: MINING: latest block changed: blk[%d]: proof[%d] still valid", latest.Index, proof)
	}

	s.evHandler("state: MineNewBlock: MINING: reward: recipient[%s]: amount[%v]", s.nodeID, s.genesis.MiningReward)

	reward := database.NewTx(s.genesis.RewardSender, s.nodeID, s.genesis.MiningReward)
	s.mempool.Add(reward)

	return s.sealBlock(proof, ""), nil
}
