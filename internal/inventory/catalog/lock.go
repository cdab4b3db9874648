package catalog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/medsupply/medsupply-backend/internal/inventory/domain"
	"github.com/medsupply/medsupply-backend/pkg/logger"
)

// ErrLockHeld is returned by TryLock when another commit owns the scope
var ErrLockHeld = errors.New("scope lock is held")

// ScopeLocker grants exclusive commit access to a scope. TryLock never waits.
type ScopeLocker interface {
	TryLock(ctx context.Context, scope domain.Scope) (unlock func(), err error)
}

// LocalLocker serializes commits inside one process
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalLocker creates an in-process scope locker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

// TryLock implements ScopeLocker
func (l *LocalLocker) TryLock(_ context.Context, scope domain.Scope) (func(), error) {
	key := scope.Key()

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[key]; busy {
		return nil, ErrLockHeld
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

// LockClient is the redis surface used for distributed scope locks
type LockClient interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, key, token string) (bool, error)
	LockKey(scope string) string
}

// RedisLocker serializes commits across service replicas.
// The TTL bounds how long a crashed holder can block a scope.
type RedisLocker struct {
	client LockClient
	ttl    time.Duration
	logger *logger.Logger
}

// NewRedisLocker creates a distributed scope locker
func NewRedisLocker(client LockClient, ttl time.Duration, log *logger.Logger) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl, logger: log}
}

// TryLock implements ScopeLocker
func (l *RedisLocker) TryLock(ctx context.Context, scope domain.Scope) (func(), error) {
	key := l.client.LockKey(scope.Key())

	token, ok, err := l.client.AcquireLock(ctx, key, l.ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			released, err := l.client.ReleaseLock(releaseCtx, key, token)
			if err != nil {
				l.logger.Error().Err(err).Str("lock", key).Msg("failed to release scope lock")
				return
			}
			if !released {
				l.logger.Warn().Str("lock", key).Msg("scope lock expired before release")
			}
		})
	}, nil
}
