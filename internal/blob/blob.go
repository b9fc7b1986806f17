// Package blob stores application attachments in an object store.
package blob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrObjectExists is returned by Put when the key is already taken.
var ErrObjectExists = errors.New("object already exists")

// Store is an object store addressed by key.
type Store interface {
	// Put writes data under key and fails with ErrObjectExists rather than overwrite.
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// RemoveMany deletes keys. Missing keys are not an error; keys that could
	// not be deleted are reported in a *RemoveError.
	RemoveMany(ctx context.Context, keys []string) error
	// Sign returns a time-limited URL for reading key.
	Sign(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// RemoveError lists the keys a RemoveMany call could not delete.
type RemoveError struct {
	Failed map[string]string
}

func (e *RemoveError) Error() string {
	keys := make([]string, 0, len(e.Failed))
	for k, reason := range e.Failed {
		keys = append(keys, fmt.Sprintf("%s (%s)", k, reason))
	}
	return fmt.Sprintf("failed to remove %d objects: %s", len(e.Failed), strings.Join(keys, ", "))
}
