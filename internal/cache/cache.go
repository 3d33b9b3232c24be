// Package cache define la abstracción de cache usada para sesiones de
// claims gathering y rate limiting.
//
// Backends:
//   - memory (in-process, para desarrollo/testing)
//   - redis (distribuido, para producción)
package cache

import (
	"context"
	"time"
)

// Cache es un KV simple con TTL. Los valores son bytes opacos; los callers
// serializan lo que necesiten (normalmente JSON).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, key string)
}
