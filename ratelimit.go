package main

import (
	"sync"
	"time"
)

// RateLimiter is a fixed-window quota keyed by an arbitrary string (the
// MAIL FROM address). Backed by an in-process map guarded by a mutex, the
// same fixed-window technique mox's ratelimit.Limiter uses for its
// IP-keyed windows, simplified to a single window and a single key shape
// since spec §4.C asks for neither IP subnetting nor multiple windows.
//
// The store must be shared across relay processes to be correct under
// horizontal scaling (spec §4.C); this in-process implementation is the
// single-process default — swap counterStore for a networked
// implementation (e.g. a Redis INCR+EXPIRE pair) without touching callers.
type counterStore interface {
	// get increments the counter for id in the current window and returns
	// the remaining quota and the window's reset time (unix seconds).
	get(id string) (remaining int64, resetUnix int64)
}

type memoryCounterStore struct {
	mu     sync.Mutex
	max    int64
	window time.Duration
	counts map[string]*windowCount
}

type windowCount struct {
	count    int64
	windowID int64
}

func newMemoryCounterStore(max int64, window time.Duration) *memoryCounterStore {
	return &memoryCounterStore{
		max:    max,
		window: window,
		counts: make(map[string]*windowCount),
	}
}

func (s *memoryCounterStore) get(id string) (int64, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	windowID := now.UnixNano() / int64(s.window)
	resetUnix := (windowID + 1) * int64(s.window) / int64(time.Second)

	wc, ok := s.counts[id]
	if !ok || wc.windowID != windowID {
		wc = &windowCount{windowID: windowID}
		s.counts[id] = wc
	}
	wc.count++

	// remaining reflects quota available for *this* request, so the
	// max-th request still sees remaining == 1 (accepted) and only the
	// (max+1)-th sees remaining == 0.
	remaining := s.max - wc.count + 1
	if remaining < 0 {
		remaining = 0
	}
	return remaining, resetUnix
}

// RateLimiter enforces spec §4.C: callers reject when remaining == 0.
type RateLimiter struct {
	store counterStore
}

func NewRateLimiter(max int64, window time.Duration) *RateLimiter {
	return &RateLimiter{store: newMemoryCounterStore(max, window)}
}

// Check returns nil if id is still within quota, or a RateLimited(451)
// RelayError with a human-readable retry hint otherwise.
func (rl *RateLimiter) Check(id string) error {
	remaining, resetUnix := rl.store.get(id)
	if remaining > 0 {
		return nil
	}
	now := time.Now().UnixMilli()
	retryMs := resetUnix*1000 - now
	if retryMs < 0 {
		retryMs = 0
	}
	retry := time.Duration(retryMs) * time.Millisecond
	return newKindErr(KindRateLimited, "rate limit exceeded, retry in "+retry.Round(time.Second).String())
}
