package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore backs the MessageStore contract with a Redis keyspace: each
// session's records live in a hash (seq -> bytes) plus a small metadata
// hash for last_seq/creation_time, so multiple engine instances can share
// one store behind a common Redis deployment. Modeled on the teacher's
// RedisCache client configuration (pool sizing, timeouts, key prefixing).
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisConfig mirrors the teacher's cache.RedisConfig shape, scoped to what
// a store instance needs.
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultRedisConfig returns sane defaults for a store-backing Redis client.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Address:      "localhost:6379",
		PoolSize:     50,
		MinIdleConns: 5,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// OpenRedisStore connects to Redis and returns a RedisStore scoped to the
// given session key prefix (typically derived from the Session Identity).
func OpenRedisStore(ctx context.Context, cfg RedisConfig, sessionPrefix string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("store: connecting to redis: %w", err)
	}

	return &RedisStore{client: client, prefix: sessionPrefix}, nil
}

func (s *RedisStore) recordsKey() string  { return s.prefix + ":records" }
func (s *RedisStore) metaKey() string     { return s.prefix + ":meta" }

func (s *RedisStore) Append(ctx context.Context, seq uint64, bytes []byte) error {
	field := strconv.FormatUint(seq, 10)

	exists, err := s.client.HExists(ctx, s.recordsKey(), field).Result()
	if err != nil {
		return fmt.Errorf("store: checking existing record: %w", err)
	}
	if exists {
		return ErrSeqAlreadyPresent
	}

	lastSeq, err := s.LastSeq(ctx)
	if err != nil {
		return err
	}
	if seq != lastSeq+1 {
		return ErrSeqOutOfOrder
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.recordsKey(), field, bytes)
	pipe.HSet(ctx, s.metaKey(), "last_seq", seq)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store: appending record: %w", err)
	}
	return nil
}

func (s *RedisStore) GetRange(ctx context.Context, from, toInclusive uint64) ([]Record, error) {
	to := toInclusive
	if to == 0 {
		var err error
		to, err = s.LastSeq(ctx)
		if err != nil {
			return nil, err
		}
	}
	if from == 0 {
		from = 1
	}

	fields := make([]string, 0, to-from+1)
	for seq := from; seq <= to; seq++ {
		fields = append(fields, strconv.FormatUint(seq, 10))
	}
	values, err := s.client.HMGet(ctx, s.recordsKey(), fields...).Result()
	if err != nil {
		return nil, fmt.Errorf("store: fetching range: %w", err)
	}

	out := make([]Record, 0, len(values))
	for i, v := range values {
		if v == nil {
			return nil, fmt.Errorf("%w: sequence %d missing", ErrGap, from+uint64(i))
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("store: unexpected value type for sequence %d", from+uint64(i))
		}
		out = append(out, Record{Seq: from + uint64(i), Bytes: []byte(s)})
	}
	return out, nil
}

func (s *RedisStore) ResetTo(ctx context.Context, seq uint64) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.recordsKey())
	pipe.HSet(ctx, s.metaKey(), "last_seq", seq-1, "creation_time", time.Now().UTC().Format(time.RFC3339Nano))
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("store: resetting store: %w", err)
	}
	return nil
}

func (s *RedisStore) LastSeq(ctx context.Context) (uint64, error) {
	v, err := s.client.HGet(ctx, s.metaKey(), "last_seq").Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: reading last_seq: %w", err)
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("store: parsing last_seq: %w", err)
	}
	return n, nil
}

func (s *RedisStore) CreationTime(ctx context.Context) (time.Time, error) {
	v, err := s.client.HGet(ctx, s.metaKey(), "creation_time").Result()
	if err == redis.Nil {
		now := time.Now().UTC()
		if setErr := s.client.HSet(ctx, s.metaKey(), "creation_time", now.Format(time.RFC3339Nano)).Err(); setErr != nil {
			return time.Time{}, fmt.Errorf("store: initializing creation_time: %w", setErr)
		}
		return now, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("store: reading creation_time: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("store: parsing creation_time: %w", err)
	}
	return t, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
