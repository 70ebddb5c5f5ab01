package workerpool

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lk2023060901/attachment-store/internal/pkg/logger"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

var (
	ErrPoolClosed   = errors.New("worker pool is closed")
	ErrPoolOverload = errors.New("worker pool is overloaded")
)

// Config Worker Pool 配置
type Config struct {
	Size           int           `mapstructure:"size"`            // worker 数量
	Nonblocking    bool          `mapstructure:"nonblocking"`     // 满载时立即返回 ErrPoolOverload
	ExpiryDuration time.Duration `mapstructure:"expiry_duration"` // 空闲 worker 回收时间
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Size:           32,
		Nonblocking:    false,
		ExpiryDuration: 10 * time.Second,
	}
}

// Statistics 统计信息
type Statistics struct {
	Submitted int64
	Completed int64
	Rejected  int64
	Panicked  int64
}

// Pool is an explicitly owned bounded executor. Callers must Shutdown it.
type Pool struct {
	pool   *ants.Pool
	config *Config
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool

	submitted atomic.Int64
	completed atomic.Int64
	rejected  atomic.Int64
	panicked  atomic.Int64

	logger *logger.Logger
}

// New 创建 Worker Pool
func New(config *Config, log *logger.Logger) (*Pool, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Size <= 0 {
		return nil, fmt.Errorf("invalid worker pool size: %d", config.Size)
	}
	log = logger.OrDefault(log)

	p := &Pool{
		config: config,
		logger: log,
	}

	opts := []ants.Option{
		ants.WithNonblocking(config.Nonblocking),
		ants.WithPanicHandler(func(v interface{}) {
			p.panicked.Add(1)
			log.Error("worker panic", zap.Any("error", v))
		}),
	}
	if config.ExpiryDuration > 0 {
		opts = append(opts, ants.WithExpiryDuration(config.ExpiryDuration))
	}

	antsPool, err := ants.NewPool(config.Size, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ants pool: %w", err)
	}
	p.pool = antsPool

	return p, nil
}

// Submit 提交任务
func (p *Pool) Submit(task func()) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrPoolClosed
	}
	p.wg.Add(1)
	p.mu.RUnlock()

	err := p.pool.Submit(func() {
		defer func() {
			p.completed.Add(1)
			p.wg.Done()
		}()
		task()
	})
	if err != nil {
		p.wg.Done()
		p.rejected.Add(1)
		switch {
		case errors.Is(err, ants.ErrPoolOverload):
			return ErrPoolOverload
		case errors.Is(err, ants.ErrPoolClosed):
			return ErrPoolClosed
		}
		return err
	}

	p.submitted.Add(1)
	return nil
}

// Running 获取运行中的 worker 数量
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Cap 返回 worker 容量
func (p *Pool) Cap() int {
	return p.pool.Cap()
}

// Stats 获取统计信息
func (p *Pool) Stats() Statistics {
	return Statistics{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Rejected:  p.rejected.Load(),
		Panicked:  p.panicked.Load(),
	}
}

// Wait blocks until every accepted task has finished
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Shutdown stops accepting tasks, waits for in-flight tasks and releases workers
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.wg.Wait()
	p.pool.Release()

	stats := p.Stats()
	p.logger.Info("worker pool stopped",
		zap.Int64("submitted", stats.Submitted),
		zap.Int64("completed", stats.Completed),
		zap.Int64("rejected", stats.Rejected))
}
