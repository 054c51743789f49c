// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/pow"
)

// Default values used when no genesis file is provided.
const (
	DefaultProof        = 100
	DefaultMiningReward = 1
	DefaultRewardSender = "0"
)

// Genesis represents the genesis file.
type Genesis struct {
	Date         time.Time `json:"date"`          // Timestamp of the genesis block. Zero means process start.
	Difficulty   uint      `json:"difficulty"`    // Number of 0's needed to solve the proof of work.
	Proof        uint64    `json:"proof"`         // Proof stored in the genesis block.
	MiningReward float64   `json:"mining_reward"` // Reward for mining a block.
	RewardSender string    `json:"reward_sender"` // Sender recorded on the reward transaction.
}

// Default returns the genesis information used by every node that
// was not given a genesis file.
func Default() Genesis {
	return Genesis{
		Difficulty:   pow.DefaultDifficulty,
		Proof:        DefaultProof,
		MiningReward: DefaultMiningReward,
		RewardSender: DefaultRewardSender,
	}
}

// =============================================================================

// Load opens and consumes the genesis file. Fields missing from the file
// keep their default values. An empty path returns the defaults.
func Load(path string) (Genesis, error) {
	genesis := Default()
	if path == "" {
		return genesis, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, fmt.Errorf("decoding genesis %q: %w", path, err)
	}

	if genesis.Difficulty > 64 {
		return Genesis{}, fmt.Errorf("difficulty %d is larger than the hash", genesis.Difficulty)
	}

	return genesis, nil
}

// Timestamp returns the genesis date as seconds since epoch, or the
// provided fallback when no date was configured.
func (g Genesis) Timestamp(fallback time.Time) float64 {
	t := g.Date
	if t.IsZero() {
		t = fallback
	}

	return float64(t.UnixNano()) / float64(time.Second)
}
