package keys

import (
	"context"
	"fmt"

	"golang.org/x/crypto/argon2"

	"docvault/internal/config"
	"docvault/internal/crypto/envelope"
)

// LocalCustodian derives the root key from an operator passphrase with
// argon2id and wraps KEKs with it in-process. Suitable for single-node
// deployments and tests; production tenants use the remote custodian.
type LocalCustodian struct {
	rootKey []byte
}

// argon2id parameters: 64 MiB, 1 pass, 4 lanes.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// NewLocalCustodian derives the root key from the configured passphrase
// and salt.
func NewLocalCustodian(cfg config.KeysConfig) (*LocalCustodian, error) {
	if cfg.Passphrase == "" {
		return nil, fmt.Errorf("local custodian requires a passphrase")
	}
	salt := []byte(cfg.Salt)
	if len(salt) == 0 {
		salt = []byte("docvault-root-v1")
	}
	key := argon2.IDKey([]byte(cfg.Passphrase), salt, argonTime, argonMemory, argonThreads, envelope.KeySize)
	return &LocalCustodian{rootKey: key}, nil
}

func (c *LocalCustodian) Name() string { return "local" }

func (c *LocalCustodian) Wrap(ctx context.Context, plaintext []byte) ([]byte, error) {
	return envelope.Wrap(ctx, c.rootKey, plaintext)
}

func (c *LocalCustodian) Unwrap(ctx context.Context, blob []byte) ([]byte, error) {
	return envelope.Unwrap(ctx, c.rootKey, blob)
}

// Close wipes the derived root key.
func (c *LocalCustodian) Close() {
	envelope.Wipe(c.rootKey)
}
