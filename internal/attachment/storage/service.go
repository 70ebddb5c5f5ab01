package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	attpath "github.com/lk2023060901/attachment-store/internal/attachment/path"
	"github.com/lk2023060901/attachment-store/internal/attachment/types"
	apperrors "github.com/lk2023060901/attachment-store/internal/pkg/errors"
	"github.com/lk2023060901/attachment-store/internal/pkg/logger"
	"github.com/lk2023060901/attachment-store/internal/pkg/workerpool"
	"go.uber.org/zap"
)

// MetadataSource is the attachment metadata store
type MetadataSource interface {
	Create(ctx context.Context, meta types.Metadata) error
	Get(ctx context.Context, id int64) (types.Metadata, error)
	ListByIssue(ctx context.Context, issueID int64) ([]types.Metadata, error)
	Delete(ctx context.Context, id int64) error
}

// AttachmentService implements attachment and issue level operations on top
// of a Store. Fan-out work runs through async.
type AttachmentService struct {
	store    Store
	async    *AsyncStore
	meta     MetadataSource
	resolver *attpath.Resolver
	logger   *logger.Logger
}

// NewAttachmentService creates the service. async must wrap store.
func NewAttachmentService(store Store, async *AsyncStore, meta MetadataSource, resolver *attpath.Resolver, log *logger.Logger) *AttachmentService {
	return &AttachmentService{
		store:    store,
		async:    async,
		meta:     meta,
		resolver: resolver,
		logger:   logger.OrDefault(log).Named("attachment.service"),
	}
}

// Create inserts the metadata row and then stores the bytes. When the bytes
// cannot be stored the row is removed again.
func (s *AttachmentService) Create(ctx context.Context, meta types.Metadata, r io.Reader) (types.Metadata, error) {
	if err := s.meta.Create(ctx, meta); err != nil {
		return meta, apperrors.Wrapf(err, apperrors.ErrAttachmentWrite, "create attachment %d", meta.ID)
	}

	stored, err := s.store.Put(ctx, meta, r)
	if err != nil {
		if derr := s.meta.Delete(ctx, meta.ID); derr != nil {
			s.logger.Error("failed to remove metadata of unstored attachment",
				zap.Int64("attachment_id", meta.ID),
				zap.Error(derr))
		}
		return meta, err
	}
	return stored, nil
}

// Delete removes the bytes and then the metadata row. The row is kept when
// the bytes cannot be removed so the attachment stays addressable.
func (s *AttachmentService) Delete(ctx context.Context, attachmentID int64) error {
	meta, err := s.meta.Get(ctx, attachmentID)
	if err != nil {
		return apperrors.Wrapf(err, apperrors.ErrAttachmentDelete, "load attachment %d", attachmentID)
	}
	if err := s.store.Delete(ctx, meta); err != nil {
		return err
	}
	if err := s.meta.Delete(ctx, attachmentID); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrAttachmentDelete, "delete attachment %d", attachmentID)
	}
	return nil
}

// Stream loads the attachment's metadata and streams its bytes into fn
func (s *AttachmentService) Stream(ctx context.Context, attachmentID int64, fn ReadFunc) error {
	meta, err := s.meta.Get(ctx, attachmentID)
	if err != nil {
		return apperrors.Wrapf(err, apperrors.ErrAttachmentRead, "load attachment %d", attachmentID)
	}
	return s.store.Get(ctx, meta, fn)
}

// MoveIssueAttachments moves every attachment of an issue from the directory
// of oldIssueKey to that of newIssueKey. Moves run concurrently; a failed one
// is logged and skipped. The count of moved attachments is returned.
func (s *AttachmentService) MoveIssueAttachments(ctx context.Context, issueID int64, oldIssueKey, newIssueKey string) (int, error) {
	metas, err := s.meta.ListByIssue(ctx, issueID)
	if err != nil {
		return 0, apperrors.Wrapf(err, apperrors.ErrAttachmentMove, "list attachments of issue %d", issueID)
	}

	futures := make([]*workerpool.Future[struct{}], len(metas))
	for i, meta := range metas {
		futures[i] = s.async.Move(ctx, meta, oldIssueKey, newIssueKey)
	}

	moved := 0
	for i, f := range futures {
		if _, err := f.Await(ctx); err != nil {
			s.logger.Warn("failed to move attachment",
				zap.Int64("attachment_id", metas[i].ID),
				zap.Int64("issue_id", issueID),
				zap.String("old_issue_key", oldIssueKey),
				zap.String("new_issue_key", newIssueKey),
				zap.Error(err))
			continue
		}
		moved++
	}
	return moved, ctx.Err()
}

// Missing returns the attachments of an issue whose bytes the store does not
// hold. Existence checks run concurrently.
func (s *AttachmentService) Missing(ctx context.Context, issueID int64) ([]types.Metadata, error) {
	metas, err := s.meta.ListByIssue(ctx, issueID)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrAttachmentRead, "list attachments of issue %d", issueID)
	}

	futures := make([]*workerpool.Future[bool], len(metas))
	for i, meta := range metas {
		futures[i] = s.async.Exists(ctx, meta)
	}

	var missing []types.Metadata
	for i, f := range futures {
		ok, err := f.Await(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			missing = append(missing, metas[i])
		}
	}
	return missing, nil
}

// DeleteIssueDirectory removes an issue's attachment directory once it is
// empty. An empty thumbnail subdirectory is removed first. A missing
// directory is not an error; a non-directory or read-only one is.
func (s *AttachmentService) DeleteIssueDirectory(ctx context.Context, issueKey string) error {
	dir, err := s.resolver.IssueDirectory(ctx, issueKey)
	if err != nil {
		return apperrors.Wrapf(err, apperrors.ErrAttachmentDelete, "issue %s", issueKey)
	}

	if err := attpath.CheckWritableDir(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return apperrors.Wrapf(err, apperrors.ErrAttachmentDelete, "issue %s", issueKey)
	}

	s.removeIfEmpty(filepath.Join(dir, attpath.ThumbnailSubdir))
	s.removeIfEmpty(dir)
	return nil
}

func (s *AttachmentService) removeIfEmpty(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Error("unable to read attachment directory", zap.String("dir", dir), zap.Error(err))
		}
		return
	}
	if len(entries) > 0 {
		s.logger.Warn("attachment directory not empty, keeping it",
			zap.String("dir", dir),
			zap.Int("entries", len(entries)))
		return
	}
	if err := os.Remove(dir); err != nil {
		s.logger.Error("unable to delete attachment directory", zap.String("dir", dir), zap.Error(err))
	}
}
