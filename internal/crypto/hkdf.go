package crypto

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const backupSealInfo = "quarters-backup-seal-v1"

var ErrInvalidHKDFInput = errors.New("invalid hkdf input")

func DeriveHKDFSHA256(ikm, salt, info []byte, length int) ([]byte, error) {
	if len(ikm) == 0 {
		return nil, fmt.Errorf("%w: ikm must not be empty", ErrInvalidHKDFInput)
	}
	if length <= 0 {
		return nil, fmt.Errorf("%w: length must be > 0", ErrInvalidHKDFInput)
	}

	r := hkdf.New(sha256.New, ikm, salt, info)
	out := make([]byte, length)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("derive hkdf-sha256 output: %w", err)
	}
	return out, nil
}

// DeriveBackupKey turns a stretched passphrase into the key that seals
// backup slots.
func DeriveBackupKey(master, salt []byte) ([]byte, error) {
	key, err := DeriveHKDFSHA256(master, salt, []byte(backupSealInfo), int(DefaultArgon2KeyLen))
	if err != nil {
		return nil, fmt.Errorf("derive backup key: %w", err)
	}
	return key, nil
}
