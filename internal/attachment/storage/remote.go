package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"

	"github.com/lk2023060901/attachment-store/internal/attachment/types"
	apperrors "github.com/lk2023060901/attachment-store/internal/pkg/errors"
	"github.com/lk2023060901/attachment-store/internal/pkg/logger"
	"go.uber.org/zap"
)

// DefaultKeyPrefix is the object key prefix for attachment blobs
const DefaultKeyPrefix = "attachments"

// ErrBackendUnavailable is wrapped when no blob client is configured
var ErrBackendUnavailable = errors.New("remote blob client unavailable")

// BlobInfo is what a head request reports about a stored blob
type BlobInfo struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// BlobClient is the remote blob service. Absence is reported through found,
// not through err. Delete of an absent key succeeds.
type BlobClient interface {
	Get(ctx context.Context, key string) (rc io.ReadCloser, found bool, err error)
	Put(ctx context.Context, key string, r io.Reader, size int64, info BlobInfo) error
	Delete(ctx context.Context, key string) error
	Head(ctx context.Context, key string) (info *BlobInfo, found bool, err error)
}

// Pinger is implemented by blob clients that can check connectivity
type Pinger interface {
	Ping(ctx context.Context) error
}

// RemoteStore keeps attachments in a blob service, addressed by attachment id
type RemoteStore struct {
	client BlobClient
	prefix string
	logger *logger.Logger
}

// NewRemoteStore creates a remote backend. A nil client yields a store whose
// every call fails with the backend unavailable code without doing I/O.
func NewRemoteStore(client BlobClient, prefix string, log *logger.Logger) *RemoteStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RemoteStore{
		client: client,
		prefix: prefix,
		logger: logger.OrDefault(log).Named("attachment.remote"),
	}
}

// Available reports whether a blob client is configured
func (s *RemoteStore) Available() bool {
	return s.client != nil
}

// ObjectKey returns the blob key of an attachment
func (s *RemoteStore) ObjectKey(key types.Key) string {
	return s.prefix + "/" + key.StoredName()
}

func (s *RemoteStore) unavailable(id int64) error {
	return apperrors.Wrapf(ErrBackendUnavailable, apperrors.ErrAttachmentBackendUnavailable, "attachment %d", id)
}

// Put uploads the bytes. The original filename travels as object metadata.
func (s *RemoteStore) Put(ctx context.Context, meta types.Metadata, r io.Reader) (types.Metadata, error) {
	if s.client == nil {
		return meta, s.unavailable(meta.ID)
	}

	key := s.ObjectKey(meta.Key())
	size := readerSize(r)
	info := BlobInfo{
		ContentType: meta.MimeType,
		Metadata: map[string]string{
			"attachment-id": strconv.FormatInt(meta.ID, 10),
			"issue-id":      strconv.FormatInt(meta.IssueID, 10),
			"filename":      url.QueryEscape(meta.Filename),
		},
	}

	if err := s.client.Put(ctx, key, r, size, info); err != nil {
		return meta, apperrors.Wrapf(err, apperrors.ErrAttachmentWrite, "put %s", key)
	}

	if size >= 0 {
		meta.Filesize = size
	}
	s.logger.Debug("attachment uploaded",
		zap.Int64("attachment_id", meta.ID),
		zap.String("key", key))
	return meta, nil
}

// Get streams the blob into fn
func (s *RemoteStore) Get(ctx context.Context, meta types.Metadata, fn ReadFunc) error {
	if s.client == nil {
		return s.unavailable(meta.ID)
	}

	key := s.ObjectKey(meta.Key())
	rc, found, err := s.client.Get(ctx, key)
	if err != nil {
		return apperrors.Wrapf(err, apperrors.ErrAttachmentRead, "get %s", key)
	}
	if !found {
		return apperrors.Wrapf(fmt.Errorf("%w: %s", ErrNotFound, key), apperrors.ErrAttachmentRead, "attachment %d", meta.ID)
	}
	defer rc.Close()

	if err := fn(rc); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrAttachmentRead, "get %s", key)
	}
	return nil
}

// Exists issues a head request
func (s *RemoteStore) Exists(ctx context.Context, meta types.Metadata) (bool, error) {
	if s.client == nil {
		return false, s.unavailable(meta.ID)
	}

	key := s.ObjectKey(meta.Key())
	_, found, err := s.client.Head(ctx, key)
	if err != nil {
		return false, apperrors.Wrapf(err, apperrors.ErrAttachmentRead, "head %s", key)
	}
	return found, nil
}

// Delete removes the blob
func (s *RemoteStore) Delete(ctx context.Context, meta types.Metadata) error {
	if s.client == nil {
		return s.unavailable(meta.ID)
	}

	key := s.ObjectKey(meta.Key())
	if err := s.client.Delete(ctx, key); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrAttachmentDelete, "delete %s", key)
	}
	return nil
}

// Move is a no-op: blobs are addressed by attachment id, not by issue
func (s *RemoteStore) Move(_ context.Context, meta types.Metadata, _, _ string) error {
	if s.client == nil {
		return s.unavailable(meta.ID)
	}
	return nil
}

// Errors reports an unavailable client, or a failed ping when supported
func (s *RemoteStore) Errors(ctx context.Context) *types.HealthReport {
	if s.client == nil {
		return types.NewHealthReport(BackendRemote, ErrBackendUnavailable.Error())
	}
	if p, ok := s.client.(Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return types.NewHealthReport(BackendRemote, err.Error())
		}
	}
	return nil
}

// readerSize returns the remaining length of r, or -1 when unknown
func readerSize(r io.Reader) int64 {
	switch v := r.(type) {
	case interface{ Len() int }:
		return int64(v.Len())
	case *os.File:
		info, err := v.Stat()
		if err != nil || !info.Mode().IsRegular() {
			return -1
		}
		pos, err := v.Seek(0, io.SeekCurrent)
		if err != nil {
			return -1
		}
		return info.Size() - pos
	}
	return -1
}
