package app

import (
	"fmt"

	"github.com/amanthanvi/quarters/internal/crypto"
)

// Hasher turns plaintext credentials into argon2id PHC strings.
type Hasher struct {
	params crypto.Argon2Params
}

func NewHasher(params crypto.Argon2Params) (*Hasher, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("new credential hasher: %w", err)
	}
	return &Hasher{params: params}, nil
}

// Hash leaves secret untouched; callers own wiping it.
func (h *Hasher) Hash(secret []byte) (string, error) {
	return crypto.HashCredential(secret, h.params)
}

func (h *Hasher) Verify(secret []byte, encoded string) error {
	return crypto.VerifyCredential(secret, encoded)
}
