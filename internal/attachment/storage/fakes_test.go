package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"

	attpath "github.com/lk2023060901/attachment-store/internal/attachment/path"
	"github.com/lk2023060901/attachment-store/internal/attachment/types"
	apperrors "github.com/lk2023060901/attachment-store/internal/pkg/errors"
	"github.com/lk2023060901/attachment-store/internal/pkg/logger"
	"github.com/stretchr/testify/require"
)

// memBlobClient is an in-memory BlobClient
type memBlobClient struct {
	mu      sync.Mutex
	objects map[string][]byte
	infos   map[string]BlobInfo
	failAll error
	pingErr error
}

func newMemBlobClient() *memBlobClient {
	return &memBlobClient{objects: map[string][]byte{}, infos: map[string]BlobInfo{}}
}

func (c *memBlobClient) Get(_ context.Context, key string) (io.ReadCloser, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll != nil {
		return nil, false, c.failAll
	}
	b, ok := c.objects[key]
	if !ok {
		return nil, false, nil
	}
	return io.NopCloser(bytes.NewReader(b)), true, nil
}

func (c *memBlobClient) Put(_ context.Context, key string, r io.Reader, size int64, info BlobInfo) error {
	if c.failAll != nil {
		return c.failAll
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if size >= 0 && int64(len(b)) != size {
		return fmt.Errorf("size mismatch: declared %d, got %d", size, len(b))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[key] = b
	c.infos[key] = info
	return nil
}

func (c *memBlobClient) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll != nil {
		return c.failAll
	}
	delete(c.objects, key)
	return nil
}

func (c *memBlobClient) Head(_ context.Context, key string) (*BlobInfo, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll != nil {
		return nil, false, c.failAll
	}
	b, ok := c.objects[key]
	if !ok {
		return nil, false, nil
	}
	info := c.infos[key]
	info.Size = int64(len(b))
	return &info, true, nil
}

func (c *memBlobClient) Ping(context.Context) error {
	return c.pingErr
}

// event records one call made against a fakeStore
type event struct {
	store string
	op    string
	phase string // start or end
}

type eventLog struct {
	mu     sync.Mutex
	events []event
}

func (l *eventLog) add(e event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) snapshot() []event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]event(nil), l.events...)
}

func (l *eventLog) index(e event) int {
	for i, got := range l.snapshot() {
		if got == e {
			return i
		}
	}
	return -1
}

func (l *eventLog) count(store, op string) int {
	n := 0
	for _, e := range l.snapshot() {
		if e.store == store && e.op == op && e.phase == "start" {
			n++
		}
	}
	return n
}

// fakeStore is an in-memory Store that records calls and can be told to fail
type fakeStore struct {
	name string
	log  *eventLog

	mu      sync.Mutex
	data    map[int64][]byte
	failOn  map[string]error
	health  *types.HealthReport
	putHook func(ctx context.Context)
}

func newFakeStore(name string, log *eventLog) *fakeStore {
	return &fakeStore{name: name, log: log, data: map[int64][]byte{}, failOn: map[string]error{}}
}

func (s *fakeStore) fail(op string, err error) {
	s.mu.Lock()
	s.failOn[op] = err
	s.mu.Unlock()
}

func (s *fakeStore) seed(id int64, content string) {
	s.mu.Lock()
	s.data[id] = []byte(content)
	s.mu.Unlock()
}

func (s *fakeStore) content(id int64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.data[id]
	return string(b), ok
}

func (s *fakeStore) begin(op string) (func(), error) {
	s.log.add(event{s.name, op, "start"})
	s.mu.Lock()
	err := s.failOn[op]
	s.mu.Unlock()
	return func() { s.log.add(event{s.name, op, "end"}) }, err
}

func (s *fakeStore) Put(ctx context.Context, meta types.Metadata, r io.Reader) (types.Metadata, error) {
	end, err := s.begin("put")
	defer end()
	if s.putHook != nil {
		s.putHook(ctx)
	}
	if err != nil {
		return meta, apperrors.Wrap(err, apperrors.ErrAttachmentWrite)
	}
	b, rerr := io.ReadAll(r)
	if rerr != nil {
		return meta, apperrors.Wrap(rerr, apperrors.ErrAttachmentWrite)
	}
	s.mu.Lock()
	s.data[meta.ID] = b
	s.mu.Unlock()
	meta.Filesize = int64(len(b))
	return meta, nil
}

func (s *fakeStore) Get(_ context.Context, meta types.Metadata, fn ReadFunc) error {
	end, err := s.begin("get")
	defer end()
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrAttachmentRead)
	}
	b, ok := s.content(meta.ID)
	if !ok {
		return apperrors.Wrap(ErrNotFound, apperrors.ErrAttachmentRead)
	}
	return fn(bytes.NewReader([]byte(b)))
}

func (s *fakeStore) Exists(_ context.Context, meta types.Metadata) (bool, error) {
	end, err := s.begin("exists")
	defer end()
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.ErrAttachmentRead)
	}
	_, ok := s.content(meta.ID)
	return ok, nil
}

func (s *fakeStore) Delete(_ context.Context, meta types.Metadata) error {
	end, err := s.begin("delete")
	defer end()
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrAttachmentDelete)
	}
	s.mu.Lock()
	delete(s.data, meta.ID)
	s.mu.Unlock()
	return nil
}

func (s *fakeStore) Move(_ context.Context, _ types.Metadata, _, _ string) error {
	end, err := s.begin("move")
	defer end()
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrAttachmentMove)
	}
	return nil
}

func (s *fakeStore) Errors(context.Context) *types.HealthReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.health
}

// dirProvider is a TempDirProvider over a fixed directory
type dirProvider string

func (d dirProvider) TempDirectory() (string, error) {
	return string(d), os.MkdirAll(string(d), 0o755)
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	require.NoError(t, err)
	require.Empty(t, entries, "expected %s to be empty", dir)
}

// newTestResolver resolves every issue id to "ABC-<id>"
func newTestResolver(root string) *attpath.Resolver {
	issues := attpath.IssueLookupFunc(func(_ context.Context, id int64) (string, error) {
		return fmt.Sprintf("ABC-%d", id), nil
	})
	return attpath.NewResolver(root, nil, issues, logger.NewNop())
}
