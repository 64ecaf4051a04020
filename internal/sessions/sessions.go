// Package sessions implements C8: the in-memory bearer-token-to-identity
// map, with a periodic sweep that expires stale records and tears down
// their associated pool. Grounded almost directly on the teacher's
// internal/server/session_store.go SessionStore (sessions map guarded by a
// sync.RWMutex, SetSession/GetSession/RemoveSession/Count renamed to token
// semantics); the expiry sweep is new, modeled on
// internal/oauth/coordinator.go's StaleFlowTimeout cleanup idea generalized
// from a one-shot stale check into a ticking goroutine.
package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/errs"
	"go.uber.org/zap"
)

// Record is spec.md §3's TokenRecord entity.
type Record struct {
	Token     string
	Identity  string
	PoolKey   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the record's expiresAt has passed as of now.
func (r Record) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// PoolCloser is the seam through which Store tears down a session's pool on
// expiry or explicit removal, without this package depending on
// internal/pool directly.
type PoolCloser func(ctx context.Context, poolKey string)

// Store is the in-memory token->Record map.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Record
	maxSize  int
	closePool PoolCloser
	logger   *zap.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  bool
}

// NewStore builds an empty Store capped at maxConcurrentSessions entries
// (spec.md §4.8; 0 or negative means unbounded).
func NewStore(maxConcurrentSessions int, closePool PoolCloser, logger *zap.Logger) *Store {
	return &Store{
		sessions:  make(map[string]*Record),
		maxSize:   maxConcurrentSessions,
		closePool: closePool,
		logger:    logger,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Put inserts a new Record, rejecting with ResourceExhausted if the store is
// already at its configured cap (spec.md §4.8).
func (s *Store) Put(rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxSize > 0 && len(s.sessions) >= s.maxSize {
		if _, exists := s.sessions[rec.Token]; !exists {
			return errs.ResourceExhausted("maximum concurrent sessions (%d) reached", s.maxSize)
		}
	}
	s.sessions[rec.Token] = rec
	return nil
}

// Get resolves a bearer token to its Record. A miss or an expired record
// both report ok=false — the dispatcher (C9) treats both identically as an
// AuthenticationError, per spec.md §4.9 step 1.
func (s *Store) Get(token string) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[token]
	if !ok || rec.Expired(time.Now()) {
		return nil, false
	}
	return rec, true
}

// Delete removes token's record (explicit logout) and tears down its pool.
func (s *Store) Delete(ctx context.Context, token string) {
	s.mu.Lock()
	rec, ok := s.sessions[token]
	delete(s.sessions, token)
	s.mu.Unlock()

	if ok && s.closePool != nil {
		s.closePool(ctx, rec.PoolKey)
	}
}

// Count reports the number of live (including not-yet-swept-expired)
// records currently held.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// sweepExpired removes every record whose expiresAt has passed and tears
// down its pool, per spec.md §4.8.
func (s *Store) sweepExpired(ctx context.Context) {
	now := time.Now()

	s.mu.Lock()
	var expired []*Record
	for token, rec := range s.sessions {
		if rec.Expired(now) {
			expired = append(expired, rec)
			delete(s.sessions, token)
		}
	}
	s.mu.Unlock()

	for _, rec := range expired {
		if s.logger != nil {
			s.logger.Info("token session expired", zap.String("pool_key", rec.PoolKey))
		}
		if s.closePool != nil {
			s.closePool(ctx, rec.PoolKey)
		}
	}
}

// StartSweeper launches the background expiry sweeper that runs every
// interval until Stop is called, per spec.md §4.8 ("A background task runs
// every cleanupIntervalSeconds").
func (s *Store) StartSweeper(ctx context.Context, interval time.Duration) {
	s.started = true
	go func() {
		defer close(s.doneCh)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweepExpired(ctx)
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the sweeper goroutine and waits for it to exit.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	if s.started {
		<-s.doneCh
	}
}
