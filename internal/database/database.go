package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/config"
)

const connectTimeout = 10 * time.Second

// Database holds the stores the engine reads and writes. PostgreSQL is the
// catalog and durable interaction log, Redis holds recent events (hot) and
// computed lists (warm), Neo4j is the optional interaction graph.
type Database struct {
	PG     *pgxpool.Pool
	Neo4j  neo4j.DriverWithContext // nil unless neo4j.enabled
	Redis  *RedisClients
	logger *logrus.Logger
}

type RedisClients struct {
	Hot  *redis.Client
	Warm *redis.Client
}

// New connects to every configured store and fails if any of them is
// unreachable. Stores opened before the failure are closed again.
func New(cfg *config.Config, logger *logrus.Logger) (*Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	db := &Database{logger: logger}

	pool, err := openPostgres(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}
	db.PG = pool
	logger.WithField("max_conns", pool.Config().MaxConns).Info("PostgreSQL connection established")

	db.Redis = &RedisClients{
		Hot:  newRedisClient(cfg.Redis.Hot),
		Warm: newRedisClient(cfg.Redis.Warm),
	}
	for role, client := range map[string]*redis.Client{"hot": db.Redis.Hot, "warm": db.Redis.Warm} {
		if err := client.Ping(ctx).Err(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to ping Redis %s at %s: %w", role, client.Options().Addr, err)
		}
	}
	logger.Info("Redis connections established")

	if cfg.Neo4j.Enabled {
		driver, err := openNeo4j(ctx, &cfg.Neo4j)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		db.Neo4j = driver
		logger.WithField("url", cfg.Neo4j.URL).Info("Neo4j connection established")
	}

	return db, nil
}

func openPostgres(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PostgreSQL config: %w", err)
	}

	if cfg.MaxConnections > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConnections)
	}
	poolConfig.MaxConnIdleTime = cfg.MaxIdleTime
	poolConfig.MaxConnLifetime = cfg.MaxLifetime
	poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}
	return pool, nil
}

func openNeo4j(ctx context.Context, cfg *config.Neo4jConfig) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.URL,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
		func(c *neo4j.Config) {
			if cfg.MaxPoolSize > 0 {
				c.MaxConnectionPoolSize = cfg.MaxPoolSize
			}
			c.ConnectionAcquisitionTimeout = 5 * time.Second
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to verify Neo4j connectivity: %w", err)
	}
	return driver, nil
}

func newRedisClient(cfg config.RedisInstanceConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.URL,
		MaxRetries:   cfg.MaxRetries,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})
}

// Close releases every open store and reports all close failures together.
func (db *Database) Close() error {
	var errs []error

	if db.Redis != nil {
		for role, client := range map[string]*redis.Client{"hot": db.Redis.Hot, "warm": db.Redis.Warm} {
			if client == nil {
				continue
			}
			if err := client.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close Redis %s: %w", role, err))
			}
		}
	}

	if db.Neo4j != nil {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		if err := db.Neo4j.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Neo4j: %w", err))
		}
	}

	if db.PG != nil {
		db.PG.Close()
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	db.logger.Info("Database connections closed")
	return nil
}
