package service

import "sync"

// runLocker 进程内按 run 串行化写操作，不同 run 互不阻塞。
// 多实例部署时由 runs.version 乐观锁兜底。
type runLocker struct {
	mu    sync.Mutex
	locks map[string]*runLock
}

type runLock struct {
	mu   sync.Mutex
	refs int
}

func newRunLocker() *runLocker {
	return &runLocker{locks: make(map[string]*runLock)}
}

// Lock 返回解锁函数；无人持有时回收条目，避免 map 无限增长
func (l *runLocker) Lock(runID string) func() {
	l.mu.Lock()
	lk, ok := l.locks[runID]
	if !ok {
		lk = &runLock{}
		l.locks[runID] = lk
	}
	lk.refs++
	l.mu.Unlock()

	lk.mu.Lock()
	return func() {
		lk.mu.Unlock()
		l.mu.Lock()
		lk.refs--
		if lk.refs == 0 {
			delete(l.locks, runID)
		}
		l.mu.Unlock()
	}
}

func (l *runLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
