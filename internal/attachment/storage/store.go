// Package storage implements attachment byte storage on the local filesystem
// and on a remote blob service, and the coordinator that routes between them
// while a migration is in progress.
package storage

import (
	"context"
	"errors"
	"io"

	"github.com/lk2023060901/attachment-store/internal/attachment/types"
)

// Backend names used in logs, metrics and health reports
const (
	BackendFileSystem = "filesystem"
	BackendRemote     = "remote"
)

// ErrNotFound is wrapped by read and move failures on absent attachments
var ErrNotFound = errors.New("attachment not found")

// ReadFunc consumes attachment bytes. The reader is only valid during the call.
type ReadFunc func(r io.Reader) error

// Store is the capability set every backend implements. All returned errors
// carry one of the attachment error codes.
type Store interface {
	// Put stores the bytes read from r under the attachment's identity,
	// replacing any previous content.
	Put(ctx context.Context, meta types.Metadata, r io.Reader) (types.Metadata, error)
	Get(ctx context.Context, meta types.Metadata, fn ReadFunc) error
	Exists(ctx context.Context, meta types.Metadata) (bool, error)
	// Delete removes the bytes. Deleting absent bytes succeeds.
	Delete(ctx context.Context, meta types.Metadata) error
	// Move relocates the bytes from the directory of oldIssueKey to that of
	// newIssueKey. Neither key is read from the metadata store.
	Move(ctx context.Context, meta types.Metadata, oldIssueKey, newIssueKey string) error
	// Errors returns nil when the backend is healthy
	Errors(ctx context.Context) *types.HealthReport
}

// Read runs fn against the attachment's bytes and returns its result
func Read[T any](ctx context.Context, s Store, meta types.Metadata, fn func(io.Reader) (T, error)) (T, error) {
	var out T
	err := s.Get(ctx, meta, func(r io.Reader) error {
		v, err := fn(r)
		out = v
		return err
	})
	return out, err
}

// ReadAll returns the attachment's bytes
func ReadAll(ctx context.Context, s Store, meta types.Metadata) ([]byte, error) {
	return Read(ctx, s, meta, io.ReadAll)
}

func discard(r io.Reader) error {
	_, err := io.Copy(io.Discard, r)
	return err
}
