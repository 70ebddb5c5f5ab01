package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	attpath "github.com/lk2023060901/attachment-store/internal/attachment/path"
	"github.com/lk2023060901/attachment-store/internal/attachment/types"
	apperrors "github.com/lk2023060901/attachment-store/internal/pkg/errors"
	"github.com/lk2023060901/attachment-store/internal/pkg/logger"
	"go.uber.org/zap"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// FileSystemStore keeps attachments under the resolver's root
type FileSystemStore struct {
	resolver *attpath.Resolver
	logger   *logger.Logger
}

// NewFileSystemStore creates a filesystem backend
func NewFileSystemStore(resolver *attpath.Resolver, log *logger.Logger) *FileSystemStore {
	return &FileSystemStore{
		resolver: resolver,
		logger:   logger.OrDefault(log).Named("attachment.fs"),
	}
}

// Resolver exposes the path resolver the store writes through
func (s *FileSystemStore) Resolver() *attpath.Resolver {
	return s.resolver
}

// TempDirectory implements TempDirProvider
func (s *FileSystemStore) TempDirectory() (string, error) {
	return s.resolver.TempDirectory()
}

// Put writes to a temp file next to the target, syncs it and renames it into
// place, so readers never see a partial file.
func (s *FileSystemStore) Put(ctx context.Context, meta types.Metadata, r io.Reader) (types.Metadata, error) {
	target, err := s.resolver.FileFor(ctx, meta)
	if err != nil {
		return meta, apperrors.Wrapf(err, apperrors.ErrAttachmentWrite, "attachment %d", meta.ID)
	}

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return meta, apperrors.Wrapf(err, apperrors.ErrAttachmentWrite, "create directory %s", dir)
	}

	tmp := filepath.Join(dir, fmt.Sprintf(".%d.%s.tmp", meta.ID, uuid.NewString()))
	n, err := writeFile(tmp, r)
	if err != nil {
		_ = os.Remove(tmp)
		return meta, apperrors.Wrapf(err, apperrors.ErrAttachmentWrite, "attachment %d", meta.ID)
	}

	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return meta, apperrors.Wrapf(err, apperrors.ErrAttachmentWrite, "rename into %s", target)
	}

	s.logger.Debug("attachment stored",
		zap.Int64("attachment_id", meta.ID),
		zap.String("path", target),
		zap.Int64("size", n))

	meta.Filesize = n
	return meta, nil
}

func writeFile(name string, r io.Reader) (int64, error) {
	f, err := os.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePerm)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(f, r)
	if err != nil {
		_ = f.Close()
		return n, err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return n, err
	}
	return n, f.Close()
}

// Get opens the stored file and hands it to fn
func (s *FileSystemStore) Get(ctx context.Context, meta types.Metadata, fn ReadFunc) error {
	name, err := s.resolver.FileFor(ctx, meta)
	if err != nil {
		return apperrors.Wrapf(err, apperrors.ErrAttachmentRead, "attachment %d", meta.ID)
	}

	f, err := os.Open(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return apperrors.Wrapf(err, apperrors.ErrAttachmentRead, "attachment %d", meta.ID)
	}
	defer f.Close()

	if err := fn(f); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrAttachmentRead, "attachment %d", meta.ID)
	}
	return nil
}

// Exists reports whether the stored file is present
func (s *FileSystemStore) Exists(ctx context.Context, meta types.Metadata) (bool, error) {
	name, err := s.resolver.FileFor(ctx, meta)
	if err != nil {
		return false, apperrors.Wrapf(err, apperrors.ErrAttachmentRead, "attachment %d", meta.ID)
	}

	info, err := os.Stat(name)
	switch {
	case err == nil:
		return !info.IsDir(), nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, apperrors.Wrapf(err, apperrors.ErrAttachmentRead, "stat %s", name)
	}
}

// Delete removes the stored file. A missing file is logged and ignored.
func (s *FileSystemStore) Delete(ctx context.Context, meta types.Metadata) error {
	name, err := s.resolver.FileFor(ctx, meta)
	if err != nil {
		return apperrors.Wrapf(err, apperrors.ErrAttachmentDelete, "attachment %d", meta.ID)
	}

	if err := os.Remove(name); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("attachment file already gone",
				zap.Int64("attachment_id", meta.ID),
				zap.String("path", name))
			return nil
		}
		return apperrors.Wrapf(err, apperrors.ErrAttachmentDelete, "remove %s", name)
	}
	return nil
}

// Move renames the stored file from the old issue's directory into the new
// one. The source is resolved from oldIssueKey, not from the metadata store.
func (s *FileSystemStore) Move(ctx context.Context, meta types.Metadata, oldIssueKey, newIssueKey string) error {
	srcDir, err := s.resolver.IssueDirectory(ctx, oldIssueKey)
	if err != nil {
		return apperrors.Wrapf(err, apperrors.ErrAttachmentMove, "attachment %d", meta.ID)
	}
	src := attpath.FilePath(srcDir, meta.ID)

	dstDir, err := s.resolver.IssueDirectory(ctx, newIssueKey)
	if err != nil {
		return apperrors.Wrapf(err, apperrors.ErrAttachmentMove, "attachment %d", meta.ID)
	}
	dst := attpath.FilePath(dstDir, meta.ID)
	if src == dst {
		return nil
	}

	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = fmt.Errorf("%w: %s", ErrNotFound, src)
		}
		return apperrors.Wrapf(err, apperrors.ErrAttachmentMove, "attachment %d", meta.ID)
	}

	if err := os.MkdirAll(dstDir, dirPerm); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrAttachmentMove, "create directory %s", dstDir)
	}
	if err := os.Rename(src, dst); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrAttachmentMove, "rename %s to %s", src, dst)
	}

	s.logger.Debug("attachment moved",
		zap.Int64("attachment_id", meta.ID),
		zap.String("from", src),
		zap.String("to", dst))
	return nil
}

// Errors reports a missing, non-directory or read-only root or temp directory
func (s *FileSystemStore) Errors(_ context.Context) *types.HealthReport {
	return types.NewHealthReport(BackendFileSystem, s.resolver.CheckDirectories()...)
}
