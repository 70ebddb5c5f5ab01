package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lk2023060901/attachment-store/internal/attachment/types"
	apperrors "github.com/lk2023060901/attachment-store/internal/pkg/errors"
	"github.com/lk2023060901/attachment-store/internal/pkg/logger"
	"github.com/lk2023060901/attachment-store/internal/pkg/workerpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dualFixture struct {
	dual    *DualStore
	fs      *fakeStore
	remote  *fakeStore
	events  *eventLog
	flags   *StaticFlags
	pool    *workerpool.Pool
	metrics *Metrics
	tempDir string
}

func newDualFixture(t *testing.T, mode types.StorageMode, poolCfg *workerpool.Config, warm bool) *dualFixture {
	t.Helper()

	if poolCfg == nil {
		poolCfg = &workerpool.Config{Size: 4}
	}
	pool, err := workerpool.New(poolCfg, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(pool.Shutdown)

	events := &eventLog{}
	f := &dualFixture{
		fs:      newFakeStore(BackendFileSystem, events),
		remote:  newFakeStore(BackendRemote, events),
		events:  events,
		flags:   NewStaticFlags(types.FlagsFor(mode)),
		pool:    pool,
		metrics: NewMetrics(prometheus.NewRegistry()),
		tempDir: filepath.Join(t.TempDir(), "tmp"),
	}
	f.dual = NewDualStore(f.fs, f.remote, dirProvider(f.tempDir), NewModeSelector(f.flags), pool,
		DualOptions{WarmRemoteReads: warm, Metrics: f.metrics}, logger.NewNop())
	return f
}

func TestDualStore_WriteGating(t *testing.T) {
	tests := []struct {
		mode           types.StorageMode
		wantFS         bool
		wantRemote     bool
		primaryBackend string
	}{
		{types.ModeFSOnly, true, false, BackendFileSystem},
		{types.ModeFSPrimary, true, true, BackendFileSystem},
		{types.ModeRemotePrimary, true, true, BackendRemote},
		{types.ModeRemoteOnly, false, true, BackendRemote},
	}

	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			f := newDualFixture(t, tt.mode, nil, false)
			meta := types.Metadata{ID: 1, IssueID: 1}

			stored, err := f.dual.Put(context.Background(), meta, strings.NewReader("payload"))
			require.NoError(t, err)
			assert.Equal(t, int64(7), stored.Filesize)
			f.dual.Wait()

			_, inFS := f.fs.content(1)
			_, inRemote := f.remote.content(1)
			assert.Equal(t, tt.wantFS, inFS)
			assert.Equal(t, tt.wantRemote, inRemote)

			// 主存储必须先开始写入
			first := f.events.snapshot()[0]
			assert.Equal(t, event{tt.primaryBackend, "put", "start"}, first)

			assertDirEmpty(t, f.tempDir)
		})
	}
}

func TestDualStore_SecondaryStartsAfterPrimaryFinished(t *testing.T) {
	for _, mode := range []types.StorageMode{types.ModeFSPrimary, types.ModeRemotePrimary} {
		t.Run(mode.String(), func(t *testing.T) {
			f := newDualFixture(t, mode, nil, false)
			_, err := f.dual.Put(context.Background(), types.Metadata{ID: 2}, strings.NewReader("abc"))
			require.NoError(t, err)
			f.dual.Wait()

			primary, secondary := BackendFileSystem, BackendRemote
			if mode == types.ModeRemotePrimary {
				primary, secondary = secondary, primary
			}
			primaryEnd := f.events.index(event{primary, "put", "end"})
			secondaryStart := f.events.index(event{secondary, "put", "start"})
			require.NotEqual(t, -1, primaryEnd)
			require.NotEqual(t, -1, secondaryStart)
			assert.Less(t, primaryEnd, secondaryStart)

			got, _ := f.remote.content(2)
			assert.Equal(t, "abc", got)
		})
	}
}

func TestDualStore_PrimaryFailureSkipsSecondary(t *testing.T) {
	f := newDualFixture(t, types.ModeFSPrimary, nil, false)
	boom := errors.New("disk full")
	f.fs.fail("put", boom)

	_, err := f.dual.Put(context.Background(), types.Metadata{ID: 3}, strings.NewReader("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, apperrors.Is(err, apperrors.ErrAttachmentWrite))
	f.dual.Wait()

	assert.Zero(t, f.events.count(BackendRemote, "put"))
	assertDirEmpty(t, f.tempDir)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.operations.WithLabelValues("put", "FS_PRIMARY", "error")))
}

func TestDualStore_SecondaryFailureIsSwallowed(t *testing.T) {
	f := newDualFixture(t, types.ModeRemotePrimary, nil, false)
	f.fs.fail("put", errors.New("read-only filesystem"))

	stored, err := f.dual.Put(context.Background(), types.Metadata{ID: 4}, strings.NewReader("data"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), stored.Filesize)
	f.dual.Wait()

	got, ok := f.remote.content(4)
	require.True(t, ok)
	assert.Equal(t, "data", got)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.secondaryFailures.WithLabelValues("put", BackendFileSystem)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.operations.WithLabelValues("put", "REMOTE_PRIMARY", "ok")))
	assertDirEmpty(t, f.tempDir)
}

func TestDualStore_SecondaryIgnoresCallerCancellation(t *testing.T) {
	f := newDualFixture(t, types.ModeFSPrimary, nil, false)

	release := make(chan struct{})
	seen := make(chan error, 1)
	f.remote.putHook = func(ctx context.Context) {
		<-release
		seen <- ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	_, err := f.dual.Put(ctx, types.Metadata{ID: 5}, strings.NewReader("late"))
	require.NoError(t, err)
	cancel()
	close(release)
	f.dual.Wait()

	assert.NoError(t, <-seen)
	got, _ := f.remote.content(5)
	assert.Equal(t, "late", got)
}

func TestDualStore_OverloadDropsSecondary(t *testing.T) {
	f := newDualFixture(t, types.ModeFSPrimary, &workerpool.Config{Size: 1, Nonblocking: true}, false)

	release := make(chan struct{})
	require.NoError(t, f.pool.Submit(func() { <-release }))

	_, err := f.dual.Put(context.Background(), types.Metadata{ID: 6}, strings.NewReader("x"))
	require.NoError(t, err)
	close(release)
	f.dual.Wait()

	_, inFS := f.fs.content(6)
	assert.True(t, inFS)
	assert.Zero(t, f.events.count(BackendRemote, "put"))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.secondaryDropped))
	assertDirEmpty(t, f.tempDir)
}

func TestDualStore_ReadPrecedence(t *testing.T) {
	ctx := context.Background()

	t.Run("remote primary prefers filesystem copy", func(t *testing.T) {
		f := newDualFixture(t, types.ModeRemotePrimary, nil, false)
		f.fs.seed(1, "from-fs")
		f.remote.seed(1, "from-remote")
		f.remote.seed(2, "only-remote")

		got, err := ReadAll(ctx, f.dual, types.Metadata{ID: 1})
		require.NoError(t, err)
		assert.Equal(t, "from-fs", string(got))

		got, err = ReadAll(ctx, f.dual, types.Metadata{ID: 2})
		require.NoError(t, err)
		assert.Equal(t, "only-remote", string(got))

		ok, err := f.dual.Exists(ctx, types.Metadata{ID: 2})
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("remote primary falls back when filesystem check fails", func(t *testing.T) {
		f := newDualFixture(t, types.ModeRemotePrimary, nil, false)
		f.fs.fail("exists", errors.New("permission denied"))
		f.remote.seed(1, "remote")

		got, err := ReadAll(ctx, f.dual, types.Metadata{ID: 1})
		require.NoError(t, err)
		assert.Equal(t, "remote", string(got))
	})

	t.Run("fs primary never serves remote bytes", func(t *testing.T) {
		f := newDualFixture(t, types.ModeFSPrimary, nil, true)
		f.remote.seed(1, "remote")

		err := f.dual.Get(ctx, types.Metadata{ID: 1}, discard)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("remote only never touches filesystem", func(t *testing.T) {
		f := newDualFixture(t, types.ModeRemoteOnly, nil, false)
		f.fs.seed(1, "fs")

		err := f.dual.Get(ctx, types.Metadata{ID: 1}, discard)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Zero(t, f.events.count(BackendFileSystem, "get"))
		assert.Zero(t, f.events.count(BackendFileSystem, "exists"))
	})
}

func TestDualStore_WarmRemoteReads(t *testing.T) {
	ctx := context.Background()

	for _, warm := range []bool{true, false} {
		f := newDualFixture(t, types.ModeFSPrimary, nil, warm)
		f.fs.seed(1, "fs")
		f.remote.fail("get", errors.New("timeout"))

		got, err := ReadAll(ctx, f.dual, types.Metadata{ID: 1})
		require.NoError(t, err)
		assert.Equal(t, "fs", string(got))

		want := 0
		if warm {
			want = 1
		}
		assert.Equal(t, want, f.events.count(BackendRemote, "get"), "warm=%v", warm)
	}
}

func TestDualStore_DeleteAndMove(t *testing.T) {
	ctx := context.Background()
	f := newDualFixture(t, types.ModeFSPrimary, nil, false)
	f.fs.seed(1, "a")
	f.remote.seed(1, "a")
	f.remote.fail("delete", errors.New("gone away"))
	f.remote.fail("move", errors.New("gone away"))

	require.NoError(t, f.dual.Delete(ctx, types.Metadata{ID: 1}))
	require.NoError(t, f.dual.Move(ctx, types.Metadata{ID: 1}, "OLD-1", "NEW-1"))
	f.dual.Wait()

	_, ok := f.fs.content(1)
	assert.False(t, ok)
	assert.Equal(t, 1, f.events.count(BackendRemote, "delete"))
	assert.Equal(t, 1, f.events.count(BackendRemote, "move"))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.secondaryFailures.WithLabelValues("delete", BackendRemote)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.secondaryFailures.WithLabelValues("move", BackendRemote)))

	// 主存储的错误直接返回
	f.fs.fail("delete", errors.New("busy"))
	err := f.dual.Delete(ctx, types.Metadata{ID: 1})
	assert.True(t, apperrors.Is(err, apperrors.ErrAttachmentDelete))
}

func TestDualStore_SingleBackendModesDoNotReplicate(t *testing.T) {
	ctx := context.Background()
	f := newDualFixture(t, types.ModeFSOnly, nil, false)

	require.NoError(t, f.dual.Delete(ctx, types.Metadata{ID: 1}))
	require.NoError(t, f.dual.Move(ctx, types.Metadata{ID: 1}, "W-1", "X-1"))
	f.dual.Wait()

	assert.Zero(t, f.events.count(BackendRemote, "delete"))
	assert.Zero(t, f.events.count(BackendRemote, "move"))
}

func TestDualStore_Errors(t *testing.T) {
	ctx := context.Background()
	f := newDualFixture(t, types.ModeFSPrimary, nil, false)

	f.remote.health = types.NewHealthReport(BackendRemote, "bucket missing")
	assert.Nil(t, f.dual.Errors(ctx))

	f.fs.health = types.NewHealthReport(BackendFileSystem, "root not writable")
	report := f.dual.Errors(ctx)
	require.NotNil(t, report)
	assert.Equal(t, BackendFileSystem, report.Backend)

	f.flags.Apply(types.Flags{RemoteOnly: true})
	report = f.dual.Errors(ctx)
	require.NotNil(t, report)
	assert.Equal(t, BackendRemote, report.Backend)
}

func TestDualStore_ModeChangesBetweenCalls(t *testing.T) {
	ctx := context.Background()
	f := newDualFixture(t, types.ModeFSOnly, nil, false)

	_, err := f.dual.Put(ctx, types.Metadata{ID: 1}, strings.NewReader("one"))
	require.NoError(t, err)

	f.flags.Apply(types.Flags{RemoteOnly: true})
	assert.Equal(t, types.ModeRemoteOnly, f.dual.Mode(ctx))

	_, err = f.dual.Put(ctx, types.Metadata{ID: 2}, strings.NewReader("two"))
	require.NoError(t, err)
	f.dual.Wait()

	_, ok := f.remote.content(1)
	assert.False(t, ok)
	_, ok = f.fs.content(2)
	assert.False(t, ok)
	got, _ := f.remote.content(2)
	assert.Equal(t, "two", got)
}

func TestDualStore_NilMetrics(t *testing.T) {
	f := newDualFixture(t, types.ModeFSPrimary, nil, false)
	f.dual.opts.Metrics = nil

	_, err := f.dual.Put(context.Background(), types.Metadata{ID: 1}, strings.NewReader("x"))
	require.NoError(t, err)
	f.dual.Wait()
}

func TestDualStore_PutReplicated(t *testing.T) {
	t.Run("resolves with the secondary outcome", func(t *testing.T) {
		f := newDualFixture(t, types.ModeFSPrimary, nil, false)
		boom := errors.New("remote down")
		f.remote.fail("put", boom)

		stored, rep, err := f.dual.PutReplicated(context.Background(), types.Metadata{ID: 1}, strings.NewReader("abc"))
		require.NoError(t, err)
		assert.Equal(t, int64(3), stored.Filesize)

		_, repErr := rep.Await(context.Background())
		assert.ErrorIs(t, repErr, boom)
		assertDirEmpty(t, f.tempDir)
	})

	t.Run("dropped copy resolves with the rejection", func(t *testing.T) {
		f := newDualFixture(t, types.ModeFSPrimary, &workerpool.Config{Size: 1, Nonblocking: true}, false)
		release := make(chan struct{})
		require.NoError(t, f.pool.Submit(func() { <-release }))
		defer close(release)

		_, rep, err := f.dual.PutReplicated(context.Background(), types.Metadata{ID: 2}, strings.NewReader("x"))
		require.NoError(t, err)
		_, repErr := rep.Get()
		assert.ErrorIs(t, repErr, workerpool.ErrPoolOverload)
	})

	t.Run("blocking pool waits instead of dropping", func(t *testing.T) {
		f := newDualFixture(t, types.ModeFSPrimary, &workerpool.Config{Size: 1}, false)
		for id := int64(1); id <= 10; id++ {
			_, rep, err := f.dual.PutReplicated(context.Background(), types.Metadata{ID: id}, strings.NewReader("x"))
			require.NoError(t, err)
			_, repErr := rep.Get()
			require.NoError(t, repErr)
		}
		assert.Equal(t, 10, f.events.count(BackendRemote, "put"))
		assert.Zero(t, testutil.ToFloat64(f.metrics.secondaryDropped))
	})

	t.Run("no secondary is already resolved", func(t *testing.T) {
		f := newDualFixture(t, types.ModeRemoteOnly, nil, false)
		_, rep, err := f.dual.PutReplicated(context.Background(), types.Metadata{ID: 3}, strings.NewReader("x"))
		require.NoError(t, err)
		select {
		case <-rep.Done():
		default:
			t.Fatal("replication should be resolved")
		}
	})
}
