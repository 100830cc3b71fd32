package crypto

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/argon2"
)

var (
	ErrInvalidCredentialHash = errors.New("invalid credential hash")
	ErrCredentialMismatch    = errors.New("credential mismatch")
)

var phcEncoding = base64.RawStdEncoding

// HashCredential returns an argon2id hash in PHC string form:
//
//	$argon2id$v=19$m=65536,t=3,p=4$<salt>$<key>
func HashCredential(secret []byte, params Argon2Params) (string, error) {
	salt, err := randomNonce(params.SaltLen)
	if err != nil {
		return "", fmt.Errorf("hash credential: %w", err)
	}
	key, err := DeriveKeyFromPassphrase(secret, salt, params)
	if err != nil {
		return "", fmt.Errorf("hash credential: %w", err)
	}
	defer memguard.WipeBytes(key)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, params.Memory, params.Iterations, params.Parallelism,
		phcEncoding.EncodeToString(salt), phcEncoding.EncodeToString(key)), nil
}

// VerifyCredential checks secret against a hash produced by HashCredential.
// It returns ErrCredentialMismatch when the secret is wrong.
func VerifyCredential(secret []byte, encoded string) error {
	params, salt, want, err := parseCredentialHash(encoded)
	if err != nil {
		return err
	}
	got, err := DeriveKeyFromPassphrase(secret, salt, params)
	if err != nil {
		return fmt.Errorf("verify credential: %w", err)
	}
	defer memguard.WipeBytes(got)

	if subtle.ConstantTimeCompare(got, want) != 1 {
		return ErrCredentialMismatch
	}
	return nil
}

func parseCredentialHash(encoded string) (Argon2Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Argon2Params{}, nil, nil, fmt.Errorf("%w: unexpected format", ErrInvalidCredentialHash)
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return Argon2Params{}, nil, nil, fmt.Errorf("%w: version: %v", ErrInvalidCredentialHash, err)
	}
	if version != argon2.Version {
		return Argon2Params{}, nil, nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidCredentialHash, version)
	}

	var params Argon2Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Iterations, &params.Parallelism); err != nil {
		return Argon2Params{}, nil, nil, fmt.Errorf("%w: parameters: %v", ErrInvalidCredentialHash, err)
	}

	salt, err := phcEncoding.DecodeString(parts[4])
	if err != nil {
		return Argon2Params{}, nil, nil, fmt.Errorf("%w: salt: %v", ErrInvalidCredentialHash, err)
	}
	key, err := phcEncoding.DecodeString(parts[5])
	if err != nil {
		return Argon2Params{}, nil, nil, fmt.Errorf("%w: key: %v", ErrInvalidCredentialHash, err)
	}
	params.SaltLen = len(salt)
	params.KeyLen = uint32(len(key))
	return params, salt, key, nil
}
