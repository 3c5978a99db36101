package cache

import (
	"context"
	"time"
)

// NoopCache satisfies Cache without a backend. Selected at startup when
// Redis is not configured or unreachable; every read is a miss.
type NoopCache struct{}

func NewNoop() *NoopCache { return &NoopCache{} }

func (*NoopCache) Get(context.Context, string, interface{}) bool          { return false }
func (*NoopCache) Set(context.Context, string, interface{}, time.Duration) {}
func (*NoopCache) InvalidatePattern(context.Context, string)               {}
