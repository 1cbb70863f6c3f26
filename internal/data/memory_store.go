package data

import (
	"context"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// memoryWindow is one key's fixed window.
type memoryWindow struct {
	count int32
	reset time.Time
}

// MemoryRateLimitStore is the in-process counter store for fixed-window
// rate limiting. A background sweeper removes expired windows so idle keys
// do not accumulate.
type MemoryRateLimitStore struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow

	now    func() time.Time
	logger *log.Helper

	stop    chan struct{}
	sweepWG sync.WaitGroup
	closed  bool
}

// MemoryStoreOption customizes a MemoryRateLimitStore at construction.
type MemoryStoreOption func(*MemoryRateLimitStore)

// WithMemoryStoreClock overrides the store's time source for tests.
func WithMemoryStoreClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryRateLimitStore) { s.now = now }
}

// NewMemoryRateLimitStore creates the store. A positive sweepInterval
// starts the background sweeper.
func NewMemoryRateLimitStore(sweepInterval time.Duration, logger log.Logger, opts ...MemoryStoreOption) *MemoryRateLimitStore {
	s := &MemoryRateLimitStore{
		windows: make(map[string]*memoryWindow),
		now:     time.Now,
		logger:  log.NewHelper(logger),
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if sweepInterval > 0 {
		s.sweepWG.Add(1)
		go s.sweepLoop(sweepInterval)
	}
	return s
}

// Hit records one request against the window for key. A fresh window
// starts when none exists or the previous one expired.
func (s *MemoryRateLimitStore) Hit(_ context.Context, key string, window time.Duration) (int32, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || !s.now().Before(w.reset) {
		w = &memoryWindow{reset: s.now().Add(window)}
		s.windows[key] = w
	}
	w.count++
	return w.count, w.reset, nil
}

// Reset clears the window entry for key.
func (s *MemoryRateLimitStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
	return nil
}

// Sweep removes expired windows and returns how many were removed.
func (s *MemoryRateLimitStore) Sweep(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, w := range s.windows {
		if !s.now().Before(w.reset) {
			delete(s.windows, key)
			removed++
		}
	}
	return removed, nil
}

// Size returns the number of tracked windows, expired ones included.
func (s *MemoryRateLimitStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

func (s *MemoryRateLimitStore) sweepLoop(interval time.Duration) {
	defer s.sweepWG.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if removed, _ := s.Sweep(context.Background()); removed > 0 {
				s.logger.Debugf("swept %d expired rate limit windows", removed)
			}
		}
	}
}

// Close stops the background sweeper. Safe to call more than once.
func (s *MemoryRateLimitStore) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	close(s.stop)
	s.sweepWG.Wait()
}
