package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	attpath "github.com/lk2023060901/attachment-store/internal/attachment/path"
	"github.com/lk2023060901/attachment-store/internal/attachment/storage"
	"github.com/lk2023060901/attachment-store/internal/attachment/types"
	apperrors "github.com/lk2023060901/attachment-store/internal/pkg/errors"
	"github.com/lk2023060901/attachment-store/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *storage.FileSystemStore {
	t.Helper()
	issues := attpath.IssueLookupFunc(func(context.Context, int64) (string, error) { return "ZIP-1", nil })
	return storage.NewFileSystemStore(attpath.NewResolver(t.TempDir(), nil, issues, logger.NewNop()), logger.NewNop())
}

// writeZip creates a zip holding the given names; names ending in "/" are directories
func writeZip(t *testing.T, names ...string) string {
	t.Helper()
	name := filepath.Join(t.TempDir(), "fixture.zip")
	f, err := os.Create(name)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for _, n := range names {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: n, Modified: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)})
		require.NoError(t, err)
		if !strings.HasSuffix(n, "/") {
			_, err = io.WriteString(w, "body of "+n)
			require.NoError(t, err)
		}
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return name
}

func TestBuild_DeduplicatesNames(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	var metas []types.Metadata
	for i := 1; i <= 3; i++ {
		meta := types.Metadata{ID: int64(i), IssueID: 1, Filename: "a.txt"}
		_, err := store.Put(ctx, meta, strings.NewReader(fmt.Sprintf("copy %d", i)))
		require.NoError(t, err)
		metas = append(metas, meta)
	}

	name, err := NewBuilder(store, logger.NewNop()).Build(ctx, t.TempDir(), metas)
	require.NoError(t, err)
	assert.True(t, IsZip(name))

	r, err := zip.OpenReader(name)
	require.NoError(t, err)
	defer r.Close()

	var got []string
	for _, f := range r.File {
		got = append(got, f.Name)
	}
	assert.Equal(t, []string{"a.txt", "a.txt.1", "a.txt.2"}, got)

	rc, entry, err := OpenEntry(name, 2)
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "copy 3", string(b))
	assert.Equal(t, "a.txt.2", entry.Name)
}

func TestBuild_MissingAttachmentRemovesZip(t *testing.T) {
	dir := t.TempDir()
	store := newStore(t)

	_, err := NewBuilder(store, logger.NewNop()).Build(context.Background(), dir,
		[]types.Metadata{{ID: 1, IssueID: 1, Filename: "gone.txt"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.True(t, apperrors.IsAttachmentError(err))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNameSet(t *testing.T) {
	names := newNameSet()
	in := []string{"a.txt", "a.txt", "a.txt.1", "a.txt", "report", "report", "v.2", "v.2"}
	var out []string
	for _, n := range in {
		out = append(out, names.unique(n))
	}
	assert.Equal(t, []string{"a.txt", "a.txt.1", "a.txt.2", "a.txt.3", "report", "report.1", "v.2", "v.3"}, out)
}

func TestEntryName(t *testing.T) {
	assert.Equal(t, "passwd", entryName(types.Metadata{ID: 1, Filename: "../../etc/passwd"}))
	assert.Equal(t, "evil.exe", entryName(types.Metadata{ID: 1, Filename: `C:\tmp\evil.exe`}))
	assert.Equal(t, "7", entryName(types.Metadata{ID: 7, Filename: ""}))
}

func TestIsZip(t *testing.T) {
	dir := t.TempDir()

	assert.True(t, IsZip(writeZip(t, "one.txt")))

	empty := writeZip(t)
	assert.False(t, IsZip(empty))

	plain := filepath.Join(dir, "plain.zip")
	require.NoError(t, os.WriteFile(plain, []byte("not a zip"), 0o644))
	assert.False(t, IsZip(plain))

	assert.False(t, IsZip(filepath.Join(dir, "missing.zip")))
}

func TestList_Cap(t *testing.T) {
	var names []string
	for i := 0; i < 10; i++ {
		names = append(names, fmt.Sprintf("file-%d.txt", i))
	}
	listing, err := List(writeZip(t, names...), 3, All)
	require.NoError(t, err)

	assert.Len(t, listing.Entries, 3)
	assert.Equal(t, 10, listing.TotalNumberOfEntriesAvailable)
	assert.True(t, listing.IsMoreAvailable)
	assert.Equal(t, []int{0, 1, 2}, []int{listing.Entries[0].Index, listing.Entries[1].Index, listing.Entries[2].Index})
}

func TestList_Criteria(t *testing.T) {
	name := writeZip(t, "docs/", "docs/readme.md", "docs/img/", "docs/img/logo.png", "top.txt")

	files, err := List(name, 100, FilesOnly)
	require.NoError(t, err)
	assert.Equal(t, 3, files.TotalNumberOfEntriesAvailable)
	assert.False(t, files.IsMoreAvailable)

	dirs, err := List(name, 100, DirectoriesOnly)
	require.NoError(t, err)
	require.Len(t, dirs.Entries, 2)
	assert.True(t, dirs.Entries[1].Directory)
	assert.Equal(t, 1, dirs.Entries[1].Depth)
	assert.Equal(t, 2, dirs.Entries[1].Index)

	all, err := List(name, 100, All)
	require.NoError(t, err)
	assert.Equal(t, 5, all.TotalNumberOfEntriesAvailable)

	logo := all.Entries[3]
	assert.Equal(t, "docs/img/logo.png", logo.Name)
	assert.Equal(t, "png", logo.Extension)
	assert.Equal(t, "image/png", logo.MimeType)
	assert.Equal(t, 2, logo.Depth)
	assert.Equal(t, int64(len("body of docs/img/logo.png")), logo.Size)
	assert.Equal(t, 2024, logo.Modified.Year())

	top := all.Entries[4]
	assert.Equal(t, 0, top.Depth)
	assert.Contains(t, top.MimeType, "text/plain")
}

func TestList_SniffsUnknownExtension(t *testing.T) {
	listing, err := List(writeZip(t, "NOTES"), 10, All)
	require.NoError(t, err)
	require.Len(t, listing.Entries, 1)
	assert.Equal(t, "", listing.Entries[0].Extension)
	assert.Contains(t, listing.Entries[0].MimeType, "text/plain")
}

func TestOpenEntry_NotFound(t *testing.T) {
	name := writeZip(t, "a", "b")

	_, _, err := OpenEntry(name, 2)
	assert.ErrorIs(t, err, ErrEntryNotFound)

	_, _, err = OpenEntry(name, -1)
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestAbbreviate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"short/path.txt", "short/path.txt"},
		{"root/aaaaaaaaaa/bbbbbbbbbb/cccccccccc/file.txt", "root/.../bbbbbbbbbb/cccccccccc/file.txt"},
		{"root/aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa/f.txt", "root/.../f.txt"},
		{strings.Repeat("x", 50) + ".txt", "..." + strings.Repeat("x", 33) + ".txt"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := abbreviate(tt.in)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len([]rune(got)), MaxAbbreviatedLength)
		})
	}
}

func TestParseCriteria(t *testing.T) {
	c, ok := ParseCriteria("files")
	assert.True(t, ok)
	assert.Equal(t, FilesOnly, c)

	c, ok = ParseCriteria("DIRS")
	assert.True(t, ok)
	assert.Equal(t, DirectoriesOnly, c)

	_, ok = ParseCriteria("links")
	assert.False(t, ok)
}
