package store

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"chemviz-client-go/internal/domain/auth/model"
	"chemviz-client-go/internal/platform/errors"
)

type redisStore struct {
	client    *redis.Client
	ttl       time.Duration
	prefix    string
	namespace string
}

// NewRedis constructs a redis-backed session store. A zero TTL keeps the
// pair until it is cleared.
func NewRedis(cfg Config) (Store, error) {
	if cfg.Redis == nil {
		return nil, errors.New(errors.KindConfig, "store.redis", "redis configuration missing")
	}
	if cfg.Redis.Addr == "" {
		return nil, errors.New(errors.KindConfig, "store.redis", "redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(errors.KindStorage, "store.redis", "redis ping failed", err)
	}

	prefix := cfg.Redis.Prefix
	if prefix == "" {
		prefix = "chemviz:session:"
	}

	return &redisStore{
		client:    client,
		ttl:       cfg.Redis.TTL,
		prefix:    prefix,
		namespace: namespaceOf(cfg),
	}, nil
}

func (s *redisStore) key() string {
	return s.prefix + s.namespace
}

func (s *redisStore) Load(ctx context.Context) (model.Credentials, error) {
	raw, err := s.client.Get(ctx, s.key()).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return model.Credentials{}, nil
	}
	if err != nil {
		return model.Credentials{}, errors.Wrap(errors.KindStorage, "store.redis.load", "failed to load credentials", err)
	}
	var creds model.Credentials
	if err := sonic.Unmarshal(raw, &creds); err != nil {
		return model.Credentials{}, errors.Wrap(errors.KindStorage, "store.redis.decode", "failed to decode credentials", err)
	}
	return creds, nil
}

func (s *redisStore) Save(ctx context.Context, creds model.Credentials) error {
	creds.UpdatedAt = time.Now()
	data, err := sonic.Marshal(creds)
	if err != nil {
		return errors.Wrap(errors.KindStorage, "store.redis.encode", "failed to encode credentials", err)
	}
	err = s.client.Set(ctx, s.key(), data, s.ttl).Err()
	return errors.Wrap(errors.KindStorage, "store.redis.save", "failed to save credentials", err)
}

// SaveAccessToken rewrites the stored value inside a WATCH transaction; the
// refresh token read in the transaction is the one written back.
func (s *redisStore) SaveAccessToken(ctx context.Context, access string) error {
	key := s.key()
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		creds := model.Credentials{}
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case stderrors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if err := sonic.Unmarshal(raw, &creds); err != nil {
				return err
			}
		}
		creds.AccessToken = access
		creds.UpdatedAt = time.Now()
		data, err := sonic.Marshal(creds)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}, key)
	return errors.Wrap(errors.KindStorage, "store.redis.save_access", "failed to update access token", err)
}

func (s *redisStore) Clear(ctx context.Context) error {
	err := s.client.Del(ctx, s.key()).Err()
	return errors.Wrap(errors.KindStorage, "store.redis.clear", "failed to clear credentials", err)
}

func (s *redisStore) Stats(ctx context.Context) (map[string]any, error) {
	exists, err := s.client.Exists(ctx, s.key()).Result()
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "store.redis.stats", "failed to inspect key", err)
	}
	ttl, err := s.client.TTL(ctx, s.key()).Result()
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "store.redis.stats", "failed to read ttl", err)
	}
	return map[string]any{
		"type":        "redis",
		"namespace":   s.namespace,
		"key":         s.key(),
		"stored":      exists == 1,
		"ttl_seconds": int(ttl.Seconds()),
	}, nil
}

func (s *redisStore) Close(context.Context) error {
	return s.client.Close()
}
