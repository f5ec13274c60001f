package state

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"

	"otprelay/internal/config"
	"otprelay/internal/constants"
)

// Deps carries the connections already opened by the bootstrap. Unused fields may be nil.
type Deps struct {
	Redis    *redis.Client
	Postgres *sql.DB
	SQLite   config.SQLiteConfig
}

func New(ctx context.Context, backend string, deps Deps) (Store, error) {
	switch backend {
	case "", constants.BackendMemory:
		return NewMemoryStore(), nil
	case constants.BackendRedis:
		if deps.Redis == nil {
			return nil, fmt.Errorf("state backend %q requires a redis connection", backend)
		}
		return NewRedisStore(deps.Redis, constants.StateKeyPrefix), nil
	case constants.BackendPostgres:
		if deps.Postgres == nil {
			return nil, fmt.Errorf("state backend %q requires a postgres connection", backend)
		}
		return NewPostgresStore(deps.Postgres), nil
	case constants.BackendSQLite:
		return OpenSQLite(ctx, deps.SQLite.Path)
	default:
		return nil, fmt.Errorf("unsupported state backend: %s", backend)
	}
}
