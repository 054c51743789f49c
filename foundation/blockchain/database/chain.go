package database

import (
	"errors"
	"fmt"

	"github.com/ardanlabs/powledger/foundation/blockchain/pow"
)

// ErrEmptyChain is returned when a chain without a genesis block is used.
var ErrEmptyChain = errors.New("chain has no blocks")

// =============================================================================

// Chain represents an ordered set of blocks where the first block is the
// genesis block.
type Chain []Block

// Len returns the number of blocks in the chain.
func (c Chain) Len() int {
	return len(c)
}

// Last returns the tail of the chain.
func (c Chain) Last() (Block, error) {
	if len(c) == 0 {
		return Block{}, ErrEmptyChain
	}

	return c[len(c)-1], nil
}

// Copy returns a copy of the chain that shares no memory with the original.
func (c Chain) Copy() Chain {
	cpy := make(Chain, len(c))
	for i, block := range c {
		trans := make([]Tx, len(block.Transactions))
		copy(trans, block.Transactions)

		block.Transactions = trans
		cpy[i] = block
	}

	return cpy
}

// Validate walks the chain from the second block onward checking each
// block against its parent. The genesis block is trusted as is. Each block
// must carry the hash of its parent and a proof that solves the puzzle
// posed by the parent's proof.
func (c Chain) Validate(difficulty uint) error {
	for i := 1; i < len(c); i++ {
		prev, cur := c[i-1], c[i]

		if hash := prev.Hash(); cur.PreviousHash != hash {
			return fmt.Errorf("block %d: parent block hash doesn't match, got %s, exp %s", i+1, cur.PreviousHash, hash)
		}

		if !pow.IsValidProof(prev.Proof, cur.Proof, difficulty) {
			return fmt.Errorf("block %d: proof %d does not solve parent proof %d", i+1, cur.Proof, prev.Proof)
		}
	}

	return nil
}

// IsValid reports if the chain passes validation.
func IsValid(chain Chain, difficulty uint) bool {
	return chain.Validate(difficulty) == nil
}
