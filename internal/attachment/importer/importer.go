// Package importer replays every filesystem attachment into the storage
// coordinator during a migration cutover.
package importer

import (
	"context"
	"fmt"
	"io"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/lk2023060901/attachment-store/internal/attachment/storage"
	"github.com/lk2023060901/attachment-store/internal/attachment/types"
	apperrors "github.com/lk2023060901/attachment-store/internal/pkg/errors"
	"github.com/lk2023060901/attachment-store/internal/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// DefaultConcurrency is used when Import is given a non-positive limit
const DefaultConcurrency = 8

// DoneFunc is called once per attempted attachment with its outcome
type DoneFunc func(meta types.Metadata, err error)

// replicatingStore is a destination whose writes are also copied to a second
// backend. An item counts as imported only once that copy has landed.
type replicatingStore interface {
	PutReplicated(ctx context.Context, meta types.Metadata, r io.Reader) (types.Metadata, *storage.Replication, error)
}

// Importer copies attachments from a source store into a destination store.
// A run is one-shot and not resumable; puts overwrite by id, so re-running
// from the start is safe.
type Importer struct {
	source storage.Store
	dest   storage.Store
	logger *logger.Logger
}

// New creates an importer reading from source (the filesystem backend) and
// writing into dest (the coordinator).
func New(source, dest storage.Store, log *logger.Logger) *Importer {
	return &Importer{
		source: source,
		dest:   dest,
		logger: logger.OrDefault(log).Named("attachment.importer"),
	}
}

// abortSlot holds the first failure of a run
type abortSlot struct {
	cause atomic.Pointer[error]
}

func (s *abortSlot) set(err error) bool {
	return s.cause.CompareAndSwap(nil, &err)
}

func (s *abortSlot) get() error {
	if p := s.cause.Load(); p != nil {
		return *p
	}
	return nil
}

// Import walks items in order with at most concurrency puts in flight. The
// first failure stops the walk: nothing more is submitted, in-flight puts are
// waited for and their results ignored. Enumeration errors abort the same way.
func (im *Importer) Import(ctx context.Context, items iter.Seq2[types.Metadata, error], concurrency int, onEachDone DoneFunc) error {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	jobID := uuid.NewString()
	log := im.logger.With(zap.String("job_id", jobID), zap.Int("concurrency", concurrency))
	log.Info("attachment import started")

	var (
		slot      abortSlot
		wg        sync.WaitGroup
		submitted atomic.Int64
		succeeded atomic.Int64
		sem       = semaphore.NewWeighted(int64(concurrency))
		start     = time.Now()
	)

	for meta, err := range items {
		if err != nil {
			slot.set(fmt.Errorf("enumerate attachments: %w", err))
			break
		}

		// 槽位满时在这里阻塞
		if err := sem.Acquire(ctx, 1); err != nil {
			slot.set(err)
			break
		}
		if slot.get() != nil {
			sem.Release(1)
			break
		}

		submitted.Add(1)
		wg.Add(1)
		go func(meta types.Metadata) {
			defer wg.Done()
			defer sem.Release(1)

			err := im.copy(ctx, meta)
			if err != nil {
				if slot.set(err) {
					log.Error("attachment import failed, aborting",
						zap.Int64("attachment_id", meta.ID),
						zap.Error(err))
				} else {
					log.Debug("attachment import failed after abort",
						zap.Int64("attachment_id", meta.ID),
						zap.Error(err))
				}
			} else {
				succeeded.Add(1)
			}
			if onEachDone != nil {
				onEachDone(meta, err)
			}
		}(meta)
	}

	wg.Wait()

	fields := []zap.Field{
		zap.Int64("submitted", submitted.Load()),
		zap.Int64("succeeded", succeeded.Load()),
		zap.Duration("elapsed", time.Since(start)),
	}
	cause := slot.get()
	if cause == nil {
		log.Info("attachment import finished", fields...)
		return nil
	}

	log.Error("attachment import aborted", append(fields, zap.Error(cause))...)
	if apperrors.IsAttachmentError(cause) {
		return cause
	}
	return apperrors.Wrapf(cause, apperrors.ErrAttachmentImportAborted, "job %s", jobID)
}

// copy streams one attachment from source into dest. A put failure is
// reported as is, not as a failure of the surrounding read. When dest
// replicates, the secondary copy is awaited and its failure fails the item.
func (im *Importer) copy(ctx context.Context, meta types.Metadata) error {
	rep, replicating := im.dest.(replicatingStore)

	var (
		putErr      error
		replication *storage.Replication
	)
	err := im.source.Get(ctx, meta, func(r io.Reader) error {
		if replicating {
			_, replication, putErr = rep.PutReplicated(ctx, meta, r)
		} else {
			_, putErr = im.dest.Put(ctx, meta, r)
		}
		return putErr
	})
	if putErr != nil {
		return putErr
	}
	if err != nil || replication == nil {
		return err
	}

	if _, err := replication.Await(ctx); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrAttachmentWrite, "replicate attachment %d", meta.ID)
	}
	return nil
}

// Slice adapts a slice to the source sequence Import expects
func Slice(metas []types.Metadata) iter.Seq2[types.Metadata, error] {
	return func(yield func(types.Metadata, error) bool) {
		for _, m := range metas {
			if !yield(m, nil) {
				return
			}
		}
	}
}
