// Package state is the core API for the blockchain and implements all the
// business rules and processing.
package state

import (
	"errors"
	"sync"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/powledger/foundation/blockchain/mempool"
	"github.com/ardanlabs/powledger/foundation/blockchain/peer"
)

// defaultPeerTimeout is how long a single peer has to return its chain
// when no timeout is configured.
const defaultPeerTimeout = 5 * time.Second

// =============================================================================

// EventHandler defines a function that is called when events
// occur in the processing of the blockchain.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for mining and consensus in the background.
type Worker interface {
	Shutdown()
	SignalStartMining()
	SignalCancelMining()
}

// =============================================================================

// Config represents the configuration required to start
// the blockchain node.
type Config struct {
	NodeID      string
	Host        string
	Genesis     genesis.Genesis
	KnownPeers  *peer.PeerSet
	Fetcher     ChainFetcher
	PeerTimeout time.Duration
	EvHandler   EventHandler
}

// State manages the blockchain database.
type State struct {
	mu sync.Mutex

	nodeID      string
	host        string
	evHandler   EventHandler
	peerTimeout time.Duration
	fetcher     ChainFetcher

	knownPeers *peer.PeerSet
	genesis    genesis.Genesis
	mempool    *mempool.Mempool
	db         *database.Database

	Worker Worker
}

// New constructs a new blockchain for data management. The chain starts
// with the genesis block and the mempool starts empty.
func New(cfg Config) (*State, error) {
	if cfg.NodeID == "" {
		return nil, errors.New("node id is required")
	}

	if cfg.Genesis.Difficulty > 64 {
		return nil, errors.New("difficulty is larger than the hash")
	}

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	knownPeers := cfg.KnownPeers
	if knownPeers == nil {
		knownPeers = peer.NewPeerSet()
	}

	peerTimeout := cfg.PeerTimeout
	if peerTimeout <= 0 {
		peerTimeout = defaultPeerTimeout
	}

	fetcher := cfg.Fetcher
	if fetcher == nil {
		fetcher = NewHTTPFetcher()
	}

	// Create the State to provide support for managing the blockchain.
	state := State{
		nodeID:      cfg.NodeID,
		host:        cfg.Host,
		evHandler:   ev,
		peerTimeout: peerTimeout,
		fetcher:     fetcher,

		knownPeers: knownPeers,
		genesis:    cfg.Genesis,
		mempool:    mempool.New(),
		db:         database.New(cfg.Genesis),
	}

	ev("state: New: genesis: blk[%s]: difficulty[%d]", state.db.LatestBlock().Hash(), cfg.Genesis.Difficulty)

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start everything up and running for the node.

	return &state, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {
	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	// Stop all blockchain writing activity.
	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	return nil
}

// =============================================================================

// signalStartMining asks the worker, if one is registered, to mine.
func (s *State) signalStartMining() {
	if s.Worker != nil {
		s.Worker.SignalStartMining()
	}
}

// signalCancelMining asks the worker, if one is registered, to stop any
// mining in progress.
func (s *State) signalCancelMining() {
	if s.Worker != nil {
		s.Worker.SignalCancelMining()
	}
}
