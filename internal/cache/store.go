package cache

import "context"

// Store persists translation records by key. Implementations are safe for
// concurrent use.
type Store interface {
	TryGet(ctx context.Context, key Key) (Record, bool, error)
	// GetBatch returns only the keys that are present.
	GetBatch(ctx context.Context, keys []Key) (map[Key]Record, error)
	Upsert(ctx context.Context, record Record) error
	UpsertMany(ctx context.Context, records []Record) error
	DeleteAll(ctx context.Context) error
}

type Logger interface {
	Warn(format string, args ...any)
	Error(format string, args ...any)
}
