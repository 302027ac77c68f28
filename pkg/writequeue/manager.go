// Package writequeue provides a per-key serial write queue
// Package writequeue 提供按键串行化的写队列
// Operations submitted under the same key run one at a time in FIFO order, different keys run concurrently.
// 同一个键下提交的操作按 FIFO 顺序逐个执行，不同键之间并发执行。
package writequeue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Error definitions
// 错误定义
var (
	// ErrWriteQueueFull returned when the key's queue is full
	// ErrWriteQueueFull 当键的写队列已满时返回
	ErrWriteQueueFull = errors.New("write queue is full")
	// ErrWriteQueueClosed returned when the manager is closed
	// ErrWriteQueueClosed 当写队列管理器已关闭时返回
	ErrWriteQueueClosed = errors.New("write queue is closed")
	// ErrWriteTimeout returned when waiting for the operation timed out
	// ErrWriteTimeout 当等待写操作超时时返回
	ErrWriteTimeout = errors.New("write operation timeout")
)

// Config write queue configuration
// Config 写队列配置
type Config struct {
	// QueueCapacity per-key queue capacity, default 64
	// QueueCapacity 每个键的队列容量，默认 64
	QueueCapacity int
	// WriteTimeout max wait for one operation, default 60 seconds
	// WriteTimeout 单个操作的最长等待时间，默认 60 秒
	WriteTimeout time.Duration
	// IdleTimeout idle queue cleanup timeout, default 5 minutes
	// IdleTimeout 空闲队列清理超时，默认 5 分钟
	IdleTimeout time.Duration
}

// DefaultConfig returns default configuration
// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		QueueCapacity: 64,
		WriteTimeout:  60 * time.Second,
		IdleTimeout:   5 * time.Minute,
	}
}

type writeOp struct {
	ctx    context.Context
	fn     func() error
	result chan error
}

// keyQueue single key write queue
// keyQueue 单个键的写队列
type keyQueue struct {
	key      string
	ch       chan writeOp
	lastUsed atomic.Int64
	stopCh   chan struct{}
	done     chan struct{}
}

// Manager manages write queues for all keys
// Manager 管理所有键的写队列
type Manager struct {
	config Config
	logger *zap.Logger

	mu     sync.RWMutex
	queues map[string]*keyQueue
	closed bool

	executed atomic.Int64

	cleanupStop chan struct{}
	cleanupDone chan struct{}
}

// New creates a write queue manager, nil cfg means default configuration
// New 创建写队列管理器，cfg 为 nil 时使用默认配置
func New(cfg *Config, logger *zap.Logger) *Manager {
	c := DefaultConfig()
	if cfg != nil {
		if cfg.QueueCapacity > 0 {
			c.QueueCapacity = cfg.QueueCapacity
		}
		if cfg.WriteTimeout > 0 {
			c.WriteTimeout = cfg.WriteTimeout
		}
		if cfg.IdleTimeout > 0 {
			c.IdleTimeout = cfg.IdleTimeout
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{
		config:      c,
		logger:      logger,
		queues:      make(map[string]*keyQueue),
		cleanupStop: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
	go m.cleanupIdleQueues()

	return m
}

// Execute runs fn after every earlier operation submitted under key has finished
// Execute 在同一键下之前提交的操作全部完成后执行 fn
func (m *Manager) Execute(ctx context.Context, key string, fn func() error) error {
	result := make(chan error, 1)
	if err := m.submit(key, writeOp{ctx: ctx, fn: fn, result: result}); err != nil {
		return err
	}

	timeout := m.config.WriteTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrWriteTimeout
	}
}

// submit 在读锁内投递操作，清理协程持写锁删除队列，因此不会向已停止的队列投递
func (m *Manager) submit(key string, op writeOp) error {
	for {
		q, err := m.getOrCreateQueue(key)
		if err != nil {
			return err
		}

		m.mu.RLock()
		if m.closed {
			m.mu.RUnlock()
			return ErrWriteQueueClosed
		}
		if m.queues[key] != q {
			// 队列在两次加锁之间被清理，重新获取
			m.mu.RUnlock()
			continue
		}
		q.lastUsed.Store(time.Now().UnixNano())
		select {
		case q.ch <- op:
			err = nil
		default:
			err = ErrWriteQueueFull
		}
		m.mu.RUnlock()
		return err
	}
}

// getOrCreateQueue gets or lazily creates the queue and its worker
// getOrCreateQueue 获取或懒加载创建队列及其 worker
func (m *Manager) getOrCreateQueue(key string) (*keyQueue, error) {
	m.mu.RLock()
	q, ok := m.queues[key]
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, ErrWriteQueueClosed
	}
	if ok {
		return q, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrWriteQueueClosed
	}
	if q, ok = m.queues[key]; ok {
		return q, nil
	}
	q = &keyQueue{
		key:    key,
		ch:     make(chan writeOp, m.config.QueueCapacity),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	q.lastUsed.Store(time.Now().UnixNano())
	m.queues[key] = q
	go m.worker(q)
	m.logger.Debug("created write queue", zap.String("key", key))
	return q, nil
}

func (m *Manager) worker(q *keyQueue) {
	defer close(q.done)
	for {
		select {
		case <-q.stopCh:
			m.drainQueue(q)
			return
		case op := <-q.ch:
			m.executeOp(q, op)
		}
	}
}

func (m *Manager) executeOp(q *keyQueue, op writeOp) {
	q.lastUsed.Store(time.Now().UnixNano())

	select {
	case <-op.ctx.Done():
		op.result <- op.ctx.Err()
		return
	default:
	}

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("write queue operation panic", zap.String("key", q.key), zap.Any("panic", r))
				err = fmt.Errorf("write queue operation panic: %v", r)
			}
		}()
		err = op.fn()
	}()
	m.executed.Add(1)
	op.result <- err
}

func (m *Manager) drainQueue(q *keyQueue) {
	for {
		select {
		case op := <-q.ch:
			m.executeOp(q, op)
		default:
			return
		}
	}
}

func (m *Manager) cleanupIdleQueues() {
	defer close(m.cleanupDone)
	ticker := time.NewTicker(m.config.IdleTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-m.cleanupStop:
			return
		case <-ticker.C:
			m.doCleanup()
		}
	}
}

func (m *Manager) doCleanup() {
	now := time.Now().UnixNano()
	idle := m.config.IdleTimeout.Nanoseconds()

	m.mu.Lock()
	defer m.mu.Unlock()
	for key, q := range m.queues {
		if now-q.lastUsed.Load() > idle && len(q.ch) == 0 {
			close(q.stopCh)
			delete(m.queues, key)
			m.logger.Debug("cleaned up idle write queue", zap.String("key", key))
		}
	}
}

// Shutdown stops accepting operations and waits for queued ones to finish
// Shutdown 停止接收新操作并等待已排队操作完成
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	queues := make([]*keyQueue, 0, len(m.queues))
	for _, q := range m.queues {
		close(q.stopCh)
		queues = append(queues, q)
	}
	m.queues = make(map[string]*keyQueue)
	m.mu.Unlock()

	close(m.cleanupStop)

	done := make(chan struct{})
	go func() {
		for _, q := range queues {
			<-q.done
		}
		<-m.cleanupDone
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		m.logger.Warn("write queue manager shutdown timeout")
		return ctx.Err()
	}
}

// QueueCount returns the number of live key queues
// QueueCount 返回当前活跃队列数量
func (m *Manager) QueueCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.queues)
}

// QueuedCount returns the number of operations waiting under key
// QueuedCount 返回指定键队列中等待的操作数
func (m *Manager) QueuedCount(key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if q, ok := m.queues[key]; ok {
		return len(q.ch)
	}
	return 0
}

// IsClosed returns if manager is closed
// IsClosed 返回管理器是否已关闭
func (m *Manager) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// Metrics write queue manager metrics
// Metrics 写队列管理器指标
type Metrics struct {
	QueueCapacity int
	ActiveQueues  int
	Executed      int64
	IsClosed      bool
}

// GetMetrics gets current metrics
// GetMetrics 获取当前指标
func (m *Manager) GetMetrics() Metrics {
	return Metrics{
		QueueCapacity: m.config.QueueCapacity,
		ActiveQueues:  m.QueueCount(),
		Executed:      m.executed.Load(),
		IsClosed:      m.IsClosed(),
	}
}
