package database

import (
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/digest"
	"github.com/ardanlabs/powledger/foundation/blockchain/genesis"
)

// GenesisPreviousHash is stored as the previous hash of the genesis block.
// A real hash is always 64 hex characters so this can never collide.
const GenesisPreviousHash = "1"

// =============================================================================

// Block represents a group of transactions batched together. The field set
// and JSON names are part of the wire format between nodes since the hash
// of a block is computed over its JSON form.
type Block struct {
	Index        uint64  `json:"index"`         // Position in the chain, genesis is 1.
	PreviousHash string  `json:"previous_hash"` // Hash of the block before this one.
	Proof        uint64  `json:"proof"`         // Solution to the puzzle posed by the previous proof.
	Timestamp    float64 `json:"timestamp"`     // Seconds since epoch the block was sealed.
	Transactions []Tx    `json:"transactions"`  // Transactions committed by this block.
}

// NewGenesisBlock constructs the first block of every chain.
func NewGenesisBlock(gen genesis.Genesis) Block {
	return Block{
		Index:        1,
		PreviousHash: GenesisPreviousHash,
		Proof:        gen.Proof,
		Timestamp:    gen.Timestamp(time.Now()),
		Transactions: []Tx{},
	}
}

// NewBlock constructs the block that follows a chain of the specified length.
// The transactions are copied so the caller is free to reuse the slice.
func NewBlock(chainLength int, proof uint64, previousHash string, trans []Tx) Block {
	cpy := make([]Tx, len(trans))
	copy(cpy, trans)

	return Block{
		Index:        uint64(chainLength) + 1,
		PreviousHash: previousHash,
		Proof:        proof,
		Timestamp:    Now(),
		Transactions: cpy,
	}
}

// Hash returns the unique hash for the Block.
func (b Block) Hash() string {

	// A block decoded from a peer always has a non-nil slice, so a nil slice
	// must hash the same way an empty one does.
	if b.Transactions == nil {
		b.Transactions = []Tx{}
	}

	return digest.Hash(b)
}

// IsGenesis reports if this block carries the genesis previous hash.
func (b Block) IsGenesis() bool {
	return b.PreviousHash == GenesisPreviousHash
}

// Now returns the current time as real valued seconds since epoch.
func Now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
