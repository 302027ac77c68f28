// Package safe_close coordinates the shutdown of long running goroutines
// Package safe_close 协调长时间运行的 goroutine 的关闭
package safe_close

import (
	"sync"
)

// SafeClose broadcasts one close signal to every attached worker and waits for all of them to call done
// SafeClose 向所有挂载的协程广播一次关闭信号，并等待它们全部调用 done
type SafeClose struct {
	closeOnce sync.Once
	closeCh   chan struct{}
	wg        sync.WaitGroup

	mu  sync.Mutex
	err error
}

func NewSafeClose() *SafeClose {
	return &SafeClose{closeCh: make(chan struct{})}
}

// Attach runs fn in a new goroutine; fn must call done when it has stopped
// Attach 在新协程中执行 fn，fn 停止后必须调用 done
func (s *SafeClose) Attach(fn func(done func(), closeSignal <-chan struct{})) {
	s.wg.Add(1)
	var once sync.Once
	done := func() { once.Do(s.wg.Done) }
	go fn(done, s.closeCh)
}

// SendCloseSignal closes the signal channel once; the first non-nil err is kept
// SendCloseSignal 只关闭一次信号通道，保留第一个非空错误
func (s *SafeClose) SendCloseSignal(err error) {
	if err != nil {
		s.mu.Lock()
		if s.err == nil {
			s.err = err
		}
		s.mu.Unlock()
	}
	s.closeOnce.Do(func() { close(s.closeCh) })
}

// CloseSignal returns the broadcast channel
// CloseSignal 返回广播通道
func (s *SafeClose) CloseSignal() <-chan struct{} {
	return s.closeCh
}

// WaitClosed blocks until every attached worker called done
// WaitClosed 阻塞直到所有挂载的协程都调用了 done
func (s *SafeClose) WaitClosed() error {
	s.wg.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
