package redislock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/wms-platform/ingredient-stock/pkg/errors"
	"github.com/wms-platform/ingredient-stock/pkg/logging"
)

// ErrLeaseNotObtained is returned when another replica keeps the key past the retry budget
var ErrLeaseNotObtained = errors.New("stock key lease is held by another owner")

func init() {
	apperrors.RegisterDomainError(ErrLeaseNotObtained, func(string) *apperrors.AppError {
		return apperrors.ErrServiceUnavailable("stock key lease")
	})
}

// Config holds lease configuration
type Config struct {
	Addr       string
	Password   string
	DB         int
	KeyPrefix  string
	TTL        time.Duration
	RetryDelay time.Duration
	MaxRetries int
}

// DefaultConfig returns the default lease configuration
func DefaultConfig(addr string) *Config {
	return &Config{
		Addr:       addr,
		KeyPrefix:  "ingredient-stock:lease:",
		TTL:        10 * time.Second,
		RetryDelay: 25 * time.Millisecond,
		MaxRetries: 200,
	}
}

// Guard grants cross-replica single-writer ownership of a stock key with a Redis lock.
// It satisfies keyed.Guard.
type Guard struct {
	locker *redislock.Client
	config *Config
	logger *logging.Logger
}

// NewClient opens a Redis client from config and pings it
func NewClient(ctx context.Context, config *Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", config.Addr, err)
	}
	return client, nil
}

// NewGuard creates a guard backed by an existing Redis client
func NewGuard(client redis.UniversalClient, config *Config, logger *logging.Logger) *Guard {
	if config == nil {
		config = DefaultConfig("")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Guard{
		locker: redislock.New(client),
		config: config,
		logger: logger.WithComponent("redis-lease"),
	}
}

// Acquire obtains the lease for key, retrying with a linear backoff until the
// retry budget or ctx runs out
func (g *Guard) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	lockKey := g.config.KeyPrefix + key
	lock, err := g.locker.Obtain(ctx, lockKey, g.config.TTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(g.config.RetryDelay), g.config.MaxRetries),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		g.logger.Warn("Could not obtain stock key lease", "key", key)
		return nil, fmt.Errorf("%w: %s", ErrLeaseNotObtained, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to obtain lease for %s: %w", key, err)
	}

	return func(ctx context.Context) error {
		err := lock.Release(ctx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			// TTL expired while the job ran; another owner may already hold it
			g.logger.Warn("Stock key lease expired before release", "key", key, "ttl", g.config.TTL)
			return nil
		}
		return err
	}, nil
}
