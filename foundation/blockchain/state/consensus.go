package state

import (
	"context"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/peer"
	"golang.org/x/sync/errgroup"
)

// maxPeerFetches is the number of peers queried at the same time during
// conflict resolution.
const maxPeerFetches = 8

// =============================================================================

// RegisterPeer parses the address and adds the peer to the set of known
// peers. It reports whether the peer was new. This node's own host is never
// added.
func (s *State) RegisterPeer(address string) (bool, error) {
	pr, err := peer.Parse(address)
	if err != nil {
		return false, err
	}

	if pr.Match(s.host) {
		s.evHandler("state: RegisterPeer: peer[%s]: ignored, this node", pr)
		return false, nil
	}

	added := s.knownPeers.Add(pr)
	if added {
		s.evHandler("state: RegisterPeer: peer[%s]: added", pr)
	}

	return added, nil
}

// candidate is the chain a peer returned during conflict resolution.
type candidate struct {
	peer  peer.Peer
	chain database.Chain
	valid bool
}

// ResolveConflicts implements the consensus rule: the longest valid chain
// wins. Every known peer is asked for its chain. A peer chain replaces the
// local chain only when it is strictly longer than every other candidate
// seen, including the local chain, and it passes validation. Peers that
// can't be reached or return garbage are skipped. It reports whether the
// local chain was replaced.
func (s *State) ResolveConflicts(ctx context.Context) (bool, error) {
	s.evHandler("state: ResolveConflicts: started")
	defer s.evHandler("state: ResolveConflicts: completed")

	peers := s.RetrieveKnownPeers()
	localLength := s.db.Length()

	// The peer list is sorted so candidates are considered in the same
	// order no matter which fetch finishes first.
	candidates := make([]*candidate, len(peers))

	var g errgroup.Group
	g.SetLimit(maxPeerFetches)

	for i, pr := range peers {
		i, pr := i, pr
		g.Go(func() error {
			candidates[i] = s.fetchCandidate(ctx, pr, localLength)
			return nil
		})
	}
	g.Wait()

	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	maxLength := localLength
	var newChain database.Chain
	for _, c := range candidates {
		if c == nil {
			continue
		}

		if c.chain.Len() > maxLength && c.valid {
			s.evHandler("state: ResolveConflicts: peer[%s]: candidate: length[%d]", c.peer, c.chain.Len())
			maxLength = c.chain.Len()
			newChain = c.chain
		}
	}

	if newChain == nil {
		s.evHandler("state: ResolveConflicts: local chain is authoritative: length[%d]", localLength)
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// The local chain may have grown while the peers were being asked.
	if current := s.db.Length(); current >= newChain.Len() {
		s.evHandler("state: ResolveConflicts: local chain grew to length[%d]: candidate length[%d] dropped", current, newChain.Len())
		return false, nil
	}

	if err := s.replaceChain(newChain); err != nil {
		return false, err
	}

	return true, nil
}

// fetchCandidate retrieves the chain for the peer. A chain that isn't longer
// than the local chain is never validated since it can't win.
func (s *State) fetchCandidate(ctx context.Context, pr peer.Peer, localLength int) *candidate {
	ctx, cancel := context.WithTimeout(ctx, s.peerTimeout)
	defer cancel()

	resp, err := s.fetcher.FetchChain(ctx, pr)
	if err != nil {
		s.evHandler("state: ResolveConflicts: peer[%s]: WARNING: skipped: %s", pr, err)
		return nil
	}

	if resp.Length != resp.Chain.Len() {
		s.evHandler("state: ResolveConflicts: peer[%s]: WARNING: skipped: reported length[%d] chain length[%d]", pr, resp.Length, resp.Chain.Len())
		return nil
	}

	c := candidate{
		peer:  pr,
		chain: resp.Chain,
	}

	if c.chain.Len() <= localLength {
		s.evHandler("state: ResolveConflicts: peer[%s]: length[%d]: not longer", pr, c.chain.Len())
		return &c
	}

	if err := c.chain.Validate(s.genesis.Difficulty); err != nil {
		s.evHandler("state: ResolveConflicts: peer[%s]: WARNING: invalid chain: %s", pr, err)
		return &c
	}

	c.valid = true
	return &c
}
