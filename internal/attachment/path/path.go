// Package path computes where attachment bytes live on disk.
//
// Layout under the attachment root:
//
//	<root>/<ORIGINAL>/<ORIGINAL-123>/<attachment id>
//	<root>/<ORIGINAL>/<ORIGINAL-123>/thumbs/
//	<root>/tmp/
//
// Directories are keyed by the project's original key so that renaming a
// project never moves files on disk.
package path

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lk2023060901/attachment-store/internal/attachment/types"
	"github.com/lk2023060901/attachment-store/internal/pkg/logger"
	"go.uber.org/zap"
)

const (
	// ThumbnailSubdir holds generated thumbnails inside an issue directory
	ThumbnailSubdir = "thumbs"
	// TempSubdir holds in-flight uploads and dual-write buffers
	TempSubdir = "tmp"

	dirPerm = 0o755
)

// ProjectLookup resolves a project's original key. ok is false when no
// project with that key exists.
type ProjectLookup interface {
	OriginalProjectKey(ctx context.Context, projectKey string) (originalKey string, ok bool, err error)
}

// IssueLookup resolves the key of the issue an attachment belongs to
type IssueLookup interface {
	IssueKey(ctx context.Context, issueID int64) (string, error)
}

// IssueLookupFunc adapts a function to IssueLookup
type IssueLookupFunc func(ctx context.Context, issueID int64) (string, error)

func (f IssueLookupFunc) IssueKey(ctx context.Context, issueID int64) (string, error) {
	return f(ctx, issueID)
}

// ResolveDirectory joins root with the issue directory. When the project has
// been renamed the issue key's project segment is rewritten to the original
// key. An empty originalProjectKey means the project was never renamed.
func ResolveDirectory(root, currentProjectKey, originalProjectKey, issueKey string) string {
	if originalProjectKey == "" {
		originalProjectKey = currentProjectKey
	}

	dirKey := issueKey
	if originalProjectKey != currentProjectKey {
		dirKey = originalProjectKey + "-" + IssueNumber(issueKey)
	}

	return filepath.Join(root, originalProjectKey, dirKey)
}

// FilePath is the stored file for an attachment: its decimal id inside dir
func FilePath(dir string, attachmentID int64) string {
	return filepath.Join(dir, strconv.FormatInt(attachmentID, 10))
}

// ProjectKey returns the project segment of an issue key ("ABC" for "ABC-12")
func ProjectKey(issueKey string) string {
	if i := strings.LastIndexByte(issueKey, '-'); i > 0 {
		return issueKey[:i]
	}
	return issueKey
}

// IssueNumber returns the numeric segment of an issue key ("12" for "ABC-12")
func IssueNumber(issueKey string) string {
	if i := strings.LastIndexByte(issueKey, '-'); i >= 0 {
		return issueKey[i+1:]
	}
	return issueKey
}

// Resolver computes attachment locations under one root
type Resolver struct {
	root     string
	projects ProjectLookup
	issues   IssueLookup
	logger   *logger.Logger
}

// NewResolver creates a resolver. projects may be nil, in which case every
// project key is treated as its own original key.
func NewResolver(root string, projects ProjectLookup, issues IssueLookup, log *logger.Logger) *Resolver {
	return &Resolver{
		root:     filepath.Clean(root),
		projects: projects,
		issues:   issues,
		logger:   logger.OrDefault(log).Named("attachment.path"),
	}
}

// Root returns the attachment root directory
func (r *Resolver) Root() string {
	return r.root
}

// IssueDirectory returns the directory holding an issue's attachments.
// The directory is not created.
func (r *Resolver) IssueDirectory(ctx context.Context, issueKey string) (string, error) {
	current := ProjectKey(issueKey)
	original := current

	if r.projects != nil {
		key, ok, err := r.projects.OriginalProjectKey(ctx, current)
		if err != nil {
			return "", fmt.Errorf("lookup project %s: %w", current, err)
		}
		if ok {
			original = key
		} else {
			// 导入校验阶段项目可能还不存在
			r.logger.Debug("project not found, using given key as original",
				zap.String("project_key", current))
		}
	}

	return ResolveDirectory(r.root, current, original, issueKey), nil
}

// DirectoryFor returns the issue directory of the attachment's owning issue
func (r *Resolver) DirectoryFor(ctx context.Context, meta types.Metadata) (string, error) {
	if r.issues == nil {
		return "", fmt.Errorf("no issue lookup configured")
	}
	issueKey, err := r.issues.IssueKey(ctx, meta.IssueID)
	if err != nil {
		return "", fmt.Errorf("lookup issue %d: %w", meta.IssueID, err)
	}
	return r.IssueDirectory(ctx, issueKey)
}

// FileFor returns the stored file path of an attachment
func (r *Resolver) FileFor(ctx context.Context, meta types.Metadata) (string, error) {
	dir, err := r.DirectoryFor(ctx, meta)
	if err != nil {
		return "", err
	}
	return FilePath(dir, meta.ID), nil
}

// ThumbnailDirectory returns the issue's thumbnail directory, creating it
func (r *Resolver) ThumbnailDirectory(ctx context.Context, issueKey string) (string, error) {
	dir, err := r.IssueDirectory(ctx, issueKey)
	if err != nil {
		return "", err
	}
	thumbs := filepath.Join(dir, ThumbnailSubdir)
	if err := os.MkdirAll(thumbs, dirPerm); err != nil {
		return "", fmt.Errorf("create thumbnail directory: %w", err)
	}
	return thumbs, nil
}

// TempDirectory returns the shared temporary directory, creating it
func (r *Resolver) TempDirectory() (string, error) {
	dir := filepath.Join(r.root, TempSubdir)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("create temp directory: %w", err)
	}
	return dir, nil
}

// CheckDirectories returns one message per unusable directory among the
// root and the temp directory. Nothing is created.
func (r *Resolver) CheckDirectories() []string {
	var messages []string
	for _, dir := range []string{r.root, filepath.Join(r.root, TempSubdir)} {
		if err := CheckWritableDir(dir); err != nil {
			messages = append(messages, err.Error())
		}
	}
	return messages
}

// CheckWritableDir returns nil when dir is a directory the process can
// create files in. It creates and removes a temp file to find out.
func CheckWritableDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("directory %s does not exist: %w", dir, os.ErrNotExist)
		}
		return fmt.Errorf("cannot stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	f, err := os.CreateTemp(dir, ".writecheck-*")
	if err != nil {
		return fmt.Errorf("directory %s is not writable: %w", dir, err)
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return nil
}
