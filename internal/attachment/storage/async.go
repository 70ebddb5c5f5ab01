package storage

import (
	"context"
	"io"

	"github.com/lk2023060901/attachment-store/internal/attachment/types"
	"github.com/lk2023060901/attachment-store/internal/pkg/workerpool"
)

// AsyncStore runs Store calls on a pool and hands back futures. Abandoning a
// future does not stop the call behind it.
type AsyncStore struct {
	store Store
	pool  *workerpool.Pool
}

// NewAsyncStore wraps store. The pool is owned by the caller.
func NewAsyncStore(store Store, pool *workerpool.Pool) *AsyncStore {
	return &AsyncStore{store: store, pool: pool}
}

// Put consumes r on a worker. The caller must not touch r until the future resolves.
func (a *AsyncStore) Put(ctx context.Context, meta types.Metadata, r io.Reader) *workerpool.Future[types.Metadata] {
	return workerpool.Go(a.pool, func() (types.Metadata, error) {
		return a.store.Put(ctx, meta, r)
	})
}

// Get runs fn against the attachment's bytes on a worker
func (a *AsyncStore) Get(ctx context.Context, meta types.Metadata, fn ReadFunc) *workerpool.Future[struct{}] {
	return workerpool.Go(a.pool, func() (struct{}, error) {
		return struct{}{}, a.store.Get(ctx, meta, fn)
	})
}

func (a *AsyncStore) Exists(ctx context.Context, meta types.Metadata) *workerpool.Future[bool] {
	return workerpool.Go(a.pool, func() (bool, error) {
		return a.store.Exists(ctx, meta)
	})
}

func (a *AsyncStore) Delete(ctx context.Context, meta types.Metadata) *workerpool.Future[struct{}] {
	return workerpool.Go(a.pool, func() (struct{}, error) {
		return struct{}{}, a.store.Delete(ctx, meta)
	})
}

func (a *AsyncStore) Move(ctx context.Context, meta types.Metadata, oldIssueKey, newIssueKey string) *workerpool.Future[struct{}] {
	return workerpool.Go(a.pool, func() (struct{}, error) {
		return struct{}{}, a.store.Move(ctx, meta, oldIssueKey, newIssueKey)
	})
}

// Errors is answered inline; health checks do no heavy I/O
func (a *AsyncStore) Errors(ctx context.Context) *workerpool.Future[*types.HealthReport] {
	return workerpool.Resolved(a.store.Errors(ctx), nil)
}
