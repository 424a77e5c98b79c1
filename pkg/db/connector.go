// Initialization of Redis client to be used internally in Hearth.

package db

import (
	"Hearth/pkg/log"
	"context"
	"crypto/tls"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

// RedisDB represents a redis client connection to be used internally in Hearth.
// The same client backs the publisher and the dedicated pub/sub connection of the subscriber.
type RedisDB struct {
	client *redis.Client
}

// Options needed to reach the redis-server.
type Options struct {
	Addr       string
	Username   string
	Password   string
	DB         int
	TLS        bool
	MaxRetries int
}

// Client returns the redis client wrapped by RedisDB.
func (db *RedisDB) Client() *redis.Client {
	return db.client
}

// Returns a new Redis DB connection wrapped up by RedisDB struct.
// MaxRetries bounds the retries go-redis makes per command before the call fails.
func NewDbConnection(opts Options) (*RedisDB, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis address is empty")
	}
	ropts := &redis.Options{
		Addr:       opts.Addr,
		Username:   opts.Username,
		Password:   opts.Password,
		DB:         opts.DB,
		MaxRetries: opts.MaxRetries,
	}
	if opts.MaxRetries == 0 {
		// go-redis treats 0 as "use the default of 3", -1 disables retries.
		ropts.MaxRetries = -1
	}
	if opts.TLS {
		ropts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return &RedisDB{client: redis.NewClient(ropts)}, nil
}

// Helper to check connection status of redis client to redis-server.
// Equivalent to a PING request on redis-server, returns PONG on success.
func (db *RedisDB) CheckDbConnection(ctx context.Context, logger log.Logger) error {
	logger.WithCtx(ctx).Debug().Msg("Checking DB Connection . . .")
	if cnterr := db.Client().Ping(ctx).Err(); cnterr != nil {
		// Most likely, DB connection failure
		return errors.Wrap(cnterr, "redis client couldn't PING the redis-server")
	}
	logger.WithCtx(ctx).Debug().Msg("Connection to DB Successful")
	return nil
}

// Helper to close the RedisDB client, should be called before closing the server.
func (db *RedisDB) CloseDbConnection(ctx context.Context) error {
	return db.Client().Close()
}
