// Package database handles all the lower level support for maintaining the
// blockchain in memory: the block and transaction model, hashing of blocks
// and validation of a chain.
package database

import (
	"sync"

	"github.com/ardanlabs/powledger/foundation/blockchain/genesis"
)

// Database manages the chain of blocks for a node. The chain is never empty:
// it starts with the genesis block, grows by appending and is only ever
// replaced wholesale.
type Database struct {
	mu sync.RWMutex

	genesis genesis.Genesis
	chain   Chain
}

// New constructs a new database holding only the genesis block.
func New(gen genesis.Genesis) *Database {
	return &Database{
		genesis: gen,
		chain:   Chain{NewGenesisBlock(gen)},
	}
}

// Genesis returns the genesis information the database was created with.
func (db *Database) Genesis() genesis.Genesis {
	return db.genesis
}

// Write appends the block to the chain.
func (db *Database) Write(block Block) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.chain = append(db.chain, block)
}

// Replace overwrites the chain with the specified chain.
func (db *Database) Replace(chain Chain) error {
	if len(chain) == 0 {
		return ErrEmptyChain
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	db.chain = chain.Copy()
	return nil
}

// LatestBlock returns the tail of the chain.
func (db *Database) LatestBlock() Block {
	db.mu.RLock()
	defer db.mu.RUnlock()

	block, err := db.chain.Last()
	if err != nil {
		panic(err)
	}

	return block
}

// Length returns the number of blocks in the chain.
func (db *Database) Length() int {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return len(db.chain)
}

// Copy returns a copy of the chain.
func (db *Database) Copy() Chain {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.chain.Copy()
}
