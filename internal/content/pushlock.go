package content

import (
	"context"
	"sync"
)

// keyLock one holder per key; entries live only while someone holds or waits for them
// keyLock 每个键同一时间只有一个持有者，条目仅在有持有者或等待者时存在
type keyLock struct {
	mu      sync.Mutex
	entries map[string]*keyLockEntry
}

type keyLockEntry struct {
	ch   chan struct{}
	refs int
}

// Lock waits for key and returns its release func; ctx cancellation abandons the wait
// Lock 等待获取键并返回释放函数，ctx 取消时放弃等待
func (l *keyLock) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	if l.entries == nil {
		l.entries = make(map[string]*keyLockEntry)
	}
	e, ok := l.entries[key]
	if !ok {
		e = &keyLockEntry{ch: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.drop(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.drop(key, e)
		})
	}, nil
}

func (l *keyLock) drop(key string, e *keyLockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}
