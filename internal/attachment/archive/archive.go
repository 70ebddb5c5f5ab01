// Package archive builds zip bundles of an issue's attachments and inspects
// existing zip attachments entry by entry.
package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/lk2023060901/attachment-store/internal/attachment/storage"
	"github.com/lk2023060901/attachment-store/internal/attachment/types"
	apperrors "github.com/lk2023060901/attachment-store/internal/pkg/errors"
	"github.com/lk2023060901/attachment-store/internal/pkg/logger"
	"go.uber.org/zap"
)

// ErrEntryNotFound is returned when an entry index is past the end of the archive
var ErrEntryNotFound = errors.New("zip entry not found")

// Builder writes attachment bundles
type Builder struct {
	store  storage.Store
	logger *logger.Logger
}

// NewBuilder creates a builder reading attachment bytes from store
func NewBuilder(store storage.Store, log *logger.Logger) *Builder {
	return &Builder{
		store:  store,
		logger: logger.OrDefault(log).Named("attachment.archive"),
	}
}

// Build writes one entry per attachment into a new temp zip under dir and
// returns its path. Entry names are de-duplicated in input order. The caller
// removes the file.
func (b *Builder) Build(ctx context.Context, dir string, metas []types.Metadata) (string, error) {
	f, err := os.CreateTemp(dir, "attachments-*.zip")
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrAttachmentWrite, "create zip")
	}
	name := f.Name()

	if err := b.write(ctx, f, metas); err != nil {
		_ = f.Close()
		b.remove(name)
		return "", err
	}
	if err := f.Close(); err != nil {
		b.remove(name)
		return "", apperrors.Wrap(err, apperrors.ErrAttachmentWrite, "close zip")
	}

	b.logger.Debug("attachment zip built",
		zap.String("path", name),
		zap.Int("entries", len(metas)))
	return name, nil
}

func (b *Builder) write(ctx context.Context, w io.Writer, metas []types.Metadata) error {
	zw := zip.NewWriter(w)
	names := newNameSet()

	for _, meta := range metas {
		header := &zip.FileHeader{
			Name:     names.unique(entryName(meta)),
			Method:   zip.Deflate,
			Modified: meta.CreatedAt,
		}
		ew, err := zw.CreateHeader(header)
		if err != nil {
			return apperrors.Wrapf(err, apperrors.ErrAttachmentWrite, "zip entry %s", header.Name)
		}

		err = b.store.Get(ctx, meta, func(r io.Reader) error {
			_, err := io.Copy(ew, r)
			return err
		})
		if err != nil {
			return apperrors.Wrapf(err, apperrors.ErrAttachmentRead, "attachment %d", meta.ID)
		}
	}

	if err := zw.Close(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrAttachmentWrite, "finish zip")
	}
	return nil
}

func (b *Builder) remove(name string) {
	if err := os.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		b.logger.Error("failed to remove partial zip",
			zap.String("path", name),
			zap.Error(apperrors.Wrap(err, apperrors.ErrAttachmentCleanup)))
	}
}

// entryName keeps the last path element of the stored filename so that an
// entry never lands outside the extraction directory.
func entryName(meta types.Metadata) string {
	name := path.Base(strings.ReplaceAll(meta.Filename, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		return strconv.FormatInt(meta.ID, 10)
	}
	return name
}

// nameSet hands out names not seen before: X, X.1, X.2, ...
type nameSet struct {
	seen map[string]struct{}
}

func newNameSet() *nameSet {
	return &nameSet{seen: make(map[string]struct{})}
}

func (s *nameSet) unique(name string) string {
	for {
		if _, ok := s.seen[name]; !ok {
			s.seen[name] = struct{}{}
			return name
		}
		name = nextName(name)
	}
}

// nextName bumps a trailing numeric suffix, or appends ".1" when there is none
func nextName(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 && isDigits(name[i+1:]) {
		if n, err := strconv.Atoi(name[i+1:]); err == nil {
			return name[:i+1] + strconv.Itoa(n+1)
		}
	}
	return name + ".1"
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// IsZip reports whether name opens as a zip with at least one entry
func IsZip(name string) bool {
	r, err := zip.OpenReader(name)
	if err != nil {
		return false
	}
	defer r.Close()
	return len(r.File) > 0
}

// OpenEntry scans the archive from the start to entry index and returns a
// reader over that entry's bytes. Closing it closes the archive.
func OpenEntry(name string, index int) (io.ReadCloser, *Entry, error) {
	r, err := zip.OpenReader(name)
	if err != nil {
		return nil, nil, apperrors.Wrapf(err, apperrors.ErrAttachmentRead, "open zip %s", name)
	}

	for i, f := range r.File {
		if i != index {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			_ = r.Close()
			return nil, nil, apperrors.Wrapf(err, apperrors.ErrAttachmentRead, "zip entry %d", index)
		}
		entry := describe(i, f, nil)
		return &entryReader{ReadCloser: rc, archive: r}, &entry, nil
	}

	_ = r.Close()
	return nil, nil, fmt.Errorf("%w: index %d", ErrEntryNotFound, index)
}

type entryReader struct {
	io.ReadCloser
	archive *zip.ReadCloser
}

func (e *entryReader) Close() error {
	return errors.Join(e.ReadCloser.Close(), e.archive.Close())
}
