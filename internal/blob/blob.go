// Package blob provides the durable key/value keyspace that state images and
// backup slots are written to.
package blob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound   = errors.New("blob: not found")
	ErrInvalidKey = errors.New("blob: invalid key")
)

type Keyspace interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	// List returns the entries whose key starts with prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]Entry, error)
}

type Entry struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// ValidateKey accepts slash separated segments of letters, digits, '.', '-'
// and '_'. Segments may not be empty or start with a dot.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == "" {
			return fmt.Errorf("%w: empty segment in %q", ErrInvalidKey, key)
		}
		if segment[0] == '.' {
			return fmt.Errorf("%w: segment %q in %q starts with a dot", ErrInvalidKey, segment, key)
		}
		for _, r := range segment {
			if !isKeyRune(r) {
				return fmt.Errorf("%w: character %q in %q", ErrInvalidKey, r, key)
			}
		}
	}
	return nil
}

func isKeyRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '.', r == '-', r == '_':
		return true
	default:
		return false
	}
}
