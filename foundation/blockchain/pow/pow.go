// Package pow implements the proof of work puzzle. A proof is only
// meaningful relative to the proof of the block before it.
package pow

import (
	"context"
	"strconv"
	"strings"

	"github.com/ardanlabs/powledger/foundation/blockchain/digest"
)

// DefaultDifficulty is the number of leading zeros a solved hash needs.
const DefaultDifficulty = 4

// reportEvery is how many attempts pass between progress events.
const reportEvery = 1_000_000

// EventHandler defines a function that is called when events
// occur while solving the puzzle.
type EventHandler func(v string, args ...any)

// =============================================================================

// IsValidProof concatenates the two proofs as text, hashes the result and
// checks the hash starts with difficulty zeros.
func IsValidProof(lastProof uint64, proof uint64, difficulty uint) bool {
	guess := strconv.FormatUint(lastProof, 10) + strconv.FormatUint(proof, 10)
	return isHashSolved(difficulty, digest.Text(guess))
}

// Solve searches the non-negative integers in order, starting at zero, and
// returns the first proof that is valid for lastProof. The search can only
// be stopped by cancelling the context.
func Solve(ctx context.Context, lastProof uint64, difficulty uint, ev EventHandler) (uint64, error) {
	if ev == nil {
		ev = func(string, ...any) {}
	}

	ev("pow: Solve: MINING: started: lastProof[%d]: difficulty[%d]", lastProof, difficulty)
	defer ev("pow: Solve: MINING: completed")

	var proof uint64
	for {
		if proof%reportEvery == 0 {
			if ctx.Err() != nil {
				ev("pow: Solve: MINING: CANCELLED: attempts[%d]", proof)
				return 0, ctx.Err()
			}

			if proof > 0 {
				ev("pow: Solve: MINING: attempts[%d]", proof)
			}
		}

		if IsValidProof(lastProof, proof, difficulty) {
			ev("pow: Solve: MINING: SOLVED: lastProof[%d]: proof[%d]", lastProof, proof)
			return proof, nil
		}

		proof++
	}
}

// isHashSolved checks the hash to make sure it complies with
// the POW rules. We need to match a difficulty number of 0's.
func isHashSolved(difficulty uint, hash string) bool {
	if int(difficulty) > len(hash) {
		return false
	}

	return strings.Count(hash[:difficulty], "0") == int(difficulty)
}
