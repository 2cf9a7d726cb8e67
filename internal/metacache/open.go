package metacache

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Backend names accepted by Open
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQL    = "sql"
)

// Backends lists the accepted backend names
var Backends = []string{BackendNone, BackendMemory, BackendRedis, BackendSQL}

// Options selects and configures a backend
type Options struct {
	Backend string
	TTL     time.Duration
	Prefix  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Driver is a registered database/sql driver name such as "pgx", "postgres" or "sqlite3"
	Driver string
	DSN    string
	Table  string
}

// Open builds the configured store. The returned close function releases the
// backend's connections. BackendNone yields a nil Store.
func Open(ctx context.Context, opts Options) (Store, func() error, error) {
	config := DefaultConfig()
	if opts.TTL != 0 {
		config.DefaultTTL = opts.TTL
	}
	if opts.Prefix != "" {
		config.Prefix = opts.Prefix
	}
	noop := func() error { return nil }

	switch opts.Backend {
	case "", BackendNone:
		return nil, noop, nil

	case BackendMemory:
		m := NewMemoryStore(config)
		return m, m.Close, nil

	case BackendRedis:
		rc := DefaultRedisConfig()
		if opts.RedisAddr != "" {
			rc.Addr = opts.RedisAddr
		}
		rc.Password = opts.RedisPassword
		rc.DB = opts.RedisDB
		rc.Config = config
		r, err := NewRedisStore(ctx, rc)
		if err != nil {
			return nil, noop, fmt.Errorf("connect to redis at %s: %w", rc.Addr, err)
		}
		return r, r.Close, nil

	case BackendSQL:
		if opts.Driver == "" || opts.DSN == "" {
			return nil, noop, fmt.Errorf("sql cache backend requires a driver and dsn")
		}
		db, err := sql.Open(opts.Driver, opts.DSN)
		if err != nil {
			return nil, noop, fmt.Errorf("open %s database: %w", opts.Driver, err)
		}
		dc := DefaultDatabaseConfig(db)
		if opts.Table != "" {
			dc.TableName = opts.Table
		}
		dc.Config = config
		s, err := NewDatabaseStore(ctx, dc)
		if err != nil {
			_ = db.Close()
			return nil, noop, err
		}
		return s, db.Close, nil

	default:
		return nil, noop, fmt.Errorf("unknown metadata cache backend %q", opts.Backend)
	}
}
