// Package coordination wraps the external coordination service (Redis)
// used by the chunk scheduler for atomic set-if-absent-with-TTL locks,
// per-field hash state, and key deletion.
package coordination

import "context"

// Service is the minimal contract the chunk scheduler needs from the
// coordination service. It is implemented against Redis in production
// (see RedisService) and against an in-process map in tests (see
// NewMemoryService).
type Service interface {
	// AcquireLock attempts to create key with NX semantics and the
	// given TTL, storing value. Returns true if the lock was acquired.
	AcquireLock(ctx context.Context, key, value string, ttl int64) (bool, error)

	// RenewLock extends an already-held lock's TTL. It is a no-op
	// (returns no error) if the key no longer exists.
	RenewLock(ctx context.Context, key string, ttl int64) error

	// ReleaseLock deletes the lock key unconditionally.
	ReleaseLock(ctx context.Context, key string) error

	// LockExists reports whether a lock key is currently present.
	LockExists(ctx context.Context, key string) (bool, error)

	// HashSet stores a field in a hash map key.
	HashSet(ctx context.Context, key, field, value string) error

	// HashGetAll returns every field/value pair in a hash map key.
	HashGetAll(ctx context.Context, key string) (map[string]string, error)

	// HashLen returns the number of fields in a hash map key.
	HashLen(ctx context.Context, key string) (int, error)

	// Delete removes a key outright (used by reset()).
	Delete(ctx context.Context, key string) error

	// Close releases the underlying connection.
	Close() error
}
