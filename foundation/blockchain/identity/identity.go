// Package identity provides the identity a node is known by. The identity
// is the recipient of the reward for every block the node mines.
package identity

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// Load returns the identity for the node. When a key path is provided the
// identity is the account address of the ECDSA key stored there, and the
// key is generated on first use so the identity survives restarts. Without
// a key path a random identity is produced for the life of the process.
func Load(keyPath string) (string, error) {
	if keyPath == "" {
		return strings.ReplaceAll(uuid.NewString(), "-", ""), nil
	}

	privateKey, err := crypto.LoadECDSA(keyPath)
	switch {
	case err == nil:

	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(filepath.Dir(keyPath), 0700); err != nil {
			return "", fmt.Errorf("creating key folder: %w", err)
		}

		privateKey, err = crypto.GenerateKey()
		if err != nil {
			return "", fmt.Errorf("generating key: %w", err)
		}

		if err := crypto.SaveECDSA(keyPath, privateKey); err != nil {
			return "", fmt.Errorf("saving key: %w", err)
		}

	default:
		return "", fmt.Errorf("loading key %q: %w", keyPath, err)
	}

	return crypto.PubkeyToAddress(privateKey.PublicKey).Hex(), nil
}
