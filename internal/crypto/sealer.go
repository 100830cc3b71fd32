package crypto

import (
	"errors"
	"fmt"
	"sync"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/chacha20poly1305"
)

var ErrSealerDestroyed = errors.New("sealer destroyed")

// Sealer encrypts opaque payloads under a key derived from a passphrase.
// Sealed output is salt || nonce || ciphertext, so a payload sealed under an
// older salt can still be opened with the same passphrase.
type Sealer struct {
	mu         sync.Mutex
	params     Argon2Params
	passphrase *memguard.LockedBuffer
	salt       []byte
	keys       map[string]*memguard.LockedBuffer
}

// NewSealer copies passphrase into locked memory and wipes the caller's
// slice.
func NewSealer(passphrase []byte, params Argon2Params) (*Sealer, error) {
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("new sealer: %w: passphrase must not be empty", ErrInvalidArgon2Params)
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("new sealer: %w", err)
	}
	salt, err := randomNonce(params.SaltLen)
	if err != nil {
		return nil, fmt.Errorf("new sealer: %w", err)
	}
	return &Sealer{
		params:     params,
		passphrase: memguard.NewBufferFromBytes(passphrase),
		salt:       salt,
		keys:       map[string]*memguard.LockedBuffer{},
	}, nil
}

func (s *Sealer) Seal(plaintext, aad []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := s.keyFor(s.salt)
	if err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}
	nonce, err := randomNonce(chacha20poly1305.NonceSizeX)
	if err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}
	ciphertext, err := SealXChaCha20Poly1305(key.Bytes(), nonce, plaintext, aad)
	if err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}

	out := make([]byte, 0, len(s.salt)+len(nonce)+len(ciphertext))
	out = append(out, s.salt...)
	out = append(out, nonce...)
	return append(out, ciphertext...), nil
}

func (s *Sealer) Open(sealed, aad []byte) ([]byte, error) {
	saltLen := s.params.SaltLen
	if len(sealed) < saltLen+chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return nil, fmt.Errorf("open: %w: sealed payload too short", ErrInvalidAEADInput)
	}
	salt := sealed[:saltLen]
	nonce := sealed[saltLen : saltLen+chacha20poly1305.NonceSizeX]
	ciphertext := sealed[saltLen+chacha20poly1305.NonceSizeX:]

	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := s.keyFor(salt)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	plaintext, err := OpenXChaCha20Poly1305(key.Bytes(), nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	return plaintext, nil
}

// Destroy wipes the passphrase and every derived key.
func (s *Sealer) Destroy() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.passphrase.Destroy()
	for salt, key := range s.keys {
		key.Destroy()
		delete(s.keys, salt)
	}
}

// keyFor must be called with mu held.
func (s *Sealer) keyFor(salt []byte) (*memguard.LockedBuffer, error) {
	if !s.passphrase.IsAlive() {
		return nil, ErrSealerDestroyed
	}
	if key, ok := s.keys[string(salt)]; ok {
		return key, nil
	}

	master, err := DeriveKeyFromPassphrase(s.passphrase.Bytes(), salt, s.params)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(master)

	derived, err := DeriveBackupKey(master, salt)
	if err != nil {
		return nil, err
	}
	key := memguard.NewBufferFromBytes(derived)
	s.keys[string(salt)] = key
	return key, nil
}
