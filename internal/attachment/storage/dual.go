package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/lk2023060901/attachment-store/internal/attachment/types"
	apperrors "github.com/lk2023060901/attachment-store/internal/pkg/errors"
	"github.com/lk2023060901/attachment-store/internal/pkg/logger"
	"github.com/lk2023060901/attachment-store/internal/pkg/workerpool"
	"go.uber.org/zap"
)

// TempDirProvider supplies the directory dual writes are buffered in
type TempDirProvider interface {
	TempDirectory() (string, error)
}

// DualOptions tunes the coordinator
type DualOptions struct {
	// WarmRemoteReads makes FS_PRIMARY reads first read and drop the remote copy
	WarmRemoteReads bool
	Metrics         *Metrics
}

// DualStore routes every call to a primary backend chosen by the current
// mode and replicates writes, deletes and moves to the secondary backend on
// the executor. Only the primary's outcome is returned to callers.
type DualStore struct {
	fs       Store
	remote   Store
	temp     TempDirProvider
	selector *ModeSelector
	pool     *workerpool.Pool
	opts     DualOptions
	logger   *logger.Logger
}

// NewDualStore creates the coordinator. The pool is owned by the caller, who
// shuts it down after the coordinator is no longer used.
func NewDualStore(fs, remote Store, temp TempDirProvider, selector *ModeSelector, pool *workerpool.Pool, opts DualOptions, log *logger.Logger) *DualStore {
	return &DualStore{
		fs:       fs,
		remote:   remote,
		temp:     temp,
		selector: selector,
		pool:     pool,
		opts:     opts,
		logger:   logger.OrDefault(log).Named("attachment.dual"),
	}
}

type route struct {
	mode          types.StorageMode
	primary       Store
	primaryName   string
	secondary     Store
	secondaryName string
}

func (d *DualStore) route(ctx context.Context) route {
	mode := d.selector.Mode(ctx)
	switch mode {
	case types.ModeFSPrimary:
		return route{mode, d.fs, BackendFileSystem, d.remote, BackendRemote}
	case types.ModeRemotePrimary:
		return route{mode, d.remote, BackendRemote, d.fs, BackendFileSystem}
	case types.ModeRemoteOnly:
		return route{mode: mode, primary: d.remote, primaryName: BackendRemote}
	default:
		return route{mode: types.ModeFSOnly, primary: d.fs, primaryName: BackendFileSystem}
	}
}

// Mode returns the mode the next call would run in
func (d *DualStore) Mode(ctx context.Context) types.StorageMode {
	return d.selector.Mode(ctx)
}

// Replication is the pending secondary copy of a write. It resolves with the
// secondary's error, or with the executor's rejection when the copy was dropped.
type Replication = workerpool.Future[struct{}]

// Put writes to the primary and, once that succeeded, queues the secondary
// write. Only the primary's outcome is returned.
func (d *DualStore) Put(ctx context.Context, meta types.Metadata, r io.Reader) (types.Metadata, error) {
	stored, _, err := d.PutReplicated(ctx, meta, r)
	return stored, err
}

// PutReplicated is Put that also hands back the secondary copy. Without a
// secondary the replication is already resolved. With one the source is
// buffered to a temp file first since r can only be read once.
func (d *DualStore) PutReplicated(ctx context.Context, meta types.Metadata, r io.Reader) (types.Metadata, *Replication, error) {
	rt := d.route(ctx)
	start := time.Now()

	if rt.secondary == nil {
		stored, err := rt.primary.Put(ctx, meta, r)
		d.opts.Metrics.observe("put", rt.mode.String(), start, err)
		return stored, workerpool.Resolved(struct{}{}, nil), err
	}

	tmp, err := d.buffer(meta, r)
	if err != nil {
		d.opts.Metrics.observe("put", rt.mode.String(), start, err)
		return meta, nil, err
	}

	stored, err := putFromFile(ctx, rt.primary, meta, tmp)
	d.opts.Metrics.observe("put", rt.mode.String(), start, err)
	if err != nil {
		d.removeTemp(tmp, meta.ID)
		return meta, nil, err
	}

	replication := d.runSecondary(ctx, "put", rt, meta, func(ctx context.Context) error {
		defer d.removeTemp(tmp, meta.ID)
		_, err := putFromFile(ctx, rt.secondary, meta, tmp)
		return err
	}, func() {
		d.removeTemp(tmp, meta.ID)
	})

	return stored, replication, nil
}

// Get reads according to the mode:
//   - FS_ONLY, REMOTE_ONLY: the sole backend
//   - FS_PRIMARY: optional discard read on remote, then filesystem
//   - REMOTE_PRIMARY: filesystem when the file exists there, else remote
func (d *DualStore) Get(ctx context.Context, meta types.Metadata, fn ReadFunc) error {
	rt := d.route(ctx)
	start := time.Now()
	err := d.get(ctx, rt, meta, fn)
	d.opts.Metrics.observe("get", rt.mode.String(), start, err)
	return err
}

func (d *DualStore) get(ctx context.Context, rt route, meta types.Metadata, fn ReadFunc) error {
	switch rt.mode {
	case types.ModeFSPrimary:
		if d.opts.WarmRemoteReads {
			if err := d.remote.Get(ctx, meta, discard); err != nil {
				d.logger.Debug("remote warm read failed",
					zap.Int64("attachment_id", meta.ID),
					zap.Error(err))
			}
		}
		return d.fs.Get(ctx, meta, fn)

	case types.ModeRemotePrimary:
		if d.existsOnFileSystem(ctx, meta) {
			return d.fs.Get(ctx, meta, fn)
		}
		return d.remote.Get(ctx, meta, fn)

	default:
		return rt.primary.Get(ctx, meta, fn)
	}
}

// Exists follows the same precedence as Get
func (d *DualStore) Exists(ctx context.Context, meta types.Metadata) (bool, error) {
	rt := d.route(ctx)
	if rt.mode == types.ModeRemotePrimary && d.existsOnFileSystem(ctx, meta) {
		return true, nil
	}
	return rt.primary.Exists(ctx, meta)
}

func (d *DualStore) existsOnFileSystem(ctx context.Context, meta types.Metadata) bool {
	ok, err := d.fs.Exists(ctx, meta)
	if err != nil {
		d.logger.Warn("filesystem existence check failed, falling back to remote",
			zap.Int64("attachment_id", meta.ID),
			zap.Error(err))
		return false
	}
	return ok
}

// Delete removes from the primary and queues removal from the secondary
func (d *DualStore) Delete(ctx context.Context, meta types.Metadata) error {
	rt := d.route(ctx)
	start := time.Now()
	err := rt.primary.Delete(ctx, meta)
	d.opts.Metrics.observe("delete", rt.mode.String(), start, err)

	if rt.secondary != nil {
		d.runSecondary(ctx, "delete", rt, meta, func(ctx context.Context) error {
			return rt.secondary.Delete(ctx, meta)
		}, nil)
	}
	return err
}

// Move relocates on the primary and queues the move on the secondary
func (d *DualStore) Move(ctx context.Context, meta types.Metadata, oldIssueKey, newIssueKey string) error {
	rt := d.route(ctx)
	start := time.Now()
	err := rt.primary.Move(ctx, meta, oldIssueKey, newIssueKey)
	d.opts.Metrics.observe("move", rt.mode.String(), start, err)

	if rt.secondary != nil {
		d.runSecondary(ctx, "move", rt, meta, func(ctx context.Context) error {
			return rt.secondary.Move(ctx, meta, oldIssueKey, newIssueKey)
		}, nil)
	}
	return err
}

// Errors returns the primary's report. An unhealthy secondary is only logged.
func (d *DualStore) Errors(ctx context.Context) *types.HealthReport {
	rt := d.route(ctx)
	if rt.secondary != nil {
		if report := rt.secondary.Errors(ctx); report != nil {
			d.logger.Warn("secondary backend unhealthy",
				zap.String("backend", rt.secondaryName),
				zap.String("mode", rt.mode.String()),
				zap.Strings("messages", report.Messages))
		}
	}
	return rt.primary.Errors(ctx)
}

// Wait blocks until queued secondary operations have finished
func (d *DualStore) Wait() {
	d.pool.Wait()
}

// runSecondary queues fn on the executor. With a blocking executor this waits
// for capacity. Failures are logged and counted, never returned to the
// caller of the primary operation; onDrop runs when the executor refuses the task.
func (d *DualStore) runSecondary(ctx context.Context, op string, rt route, meta types.Metadata, fn func(context.Context) error, onDrop func()) *Replication {
	// 次要写入不随调用方取消
	bg := context.WithoutCancel(ctx)
	log := d.logger.With(
		zap.String("op", op),
		zap.String("backend", rt.secondaryName),
		zap.String("mode", rt.mode.String()),
		zap.Int64("attachment_id", meta.ID))

	f, err := workerpool.TryGo(d.pool, func() (struct{}, error) {
		err := fn(bg)
		if err != nil {
			d.opts.Metrics.secondaryFailed(op, rt.secondaryName)
			log.Warn("secondary backend operation failed", zap.Error(err))
		}
		return struct{}{}, err
	})
	if err != nil {
		d.opts.Metrics.secondaryDrop()
		log.Error("secondary backend operation dropped", zap.Error(err))
		if onDrop != nil {
			onDrop()
		}
	}
	return f
}

func (d *DualStore) buffer(meta types.Metadata, r io.Reader) (string, error) {
	dir, err := d.temp.TempDirectory()
	if err != nil {
		return "", apperrors.Wrapf(err, apperrors.ErrAttachmentWrite, "attachment %d", meta.ID)
	}

	f, err := os.CreateTemp(dir, fmt.Sprintf("dual-%d-*", meta.ID))
	if err != nil {
		return "", apperrors.Wrapf(err, apperrors.ErrAttachmentWrite, "buffer attachment %d", meta.ID)
	}

	_, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		d.removeTemp(f.Name(), meta.ID)
		return "", apperrors.Wrapf(err, apperrors.ErrAttachmentWrite, "buffer attachment %d", meta.ID)
	}
	return f.Name(), nil
}

func (d *DualStore) removeTemp(name string, id int64) {
	if err := os.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		d.logger.Error("failed to remove dual write buffer",
			zap.Int64("attachment_id", id),
			zap.String("path", name),
			zap.Error(apperrors.Wrap(err, apperrors.ErrAttachmentCleanup)))
	}
}

func putFromFile(ctx context.Context, s Store, meta types.Metadata, name string) (types.Metadata, error) {
	f, err := os.Open(name)
	if err != nil {
		return meta, apperrors.Wrapf(err, apperrors.ErrAttachmentWrite, "open buffer for attachment %d", meta.ID)
	}
	defer f.Close()
	return s.Put(ctx, meta, f)
}
