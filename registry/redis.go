package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
	"go.uber.org/multierr"
)

// DefaultRedisPrefix is the default prefix of the keys written to Redis.
const DefaultRedisPrefix = "sniroute"

// scanBatchSize is the COUNT hint passed to SCAN.
const scanBatchSize = 100

// Redis is a Registry backed by a Redis server.
//
// Clear is implemented by scanning for and deleting the namespace's keys, it
// is not atomic: values written concurrently with a Clear may survive it.
type Redis struct {
	Client *redis.Client
	Prefix string
}

// Get returns the value stored under k.
func (r *Redis) Get(ctx context.Context, k Key) (string, bool, error) {
	v, err := r.Client.Get(ctx, r.redisKey(k)).Result()
	if err == redis.Nil {
		return "", false, nil
	} else if err != nil {
		return "", false, err
	}

	return v, true, nil
}

// Set stores value under k.
func (r *Redis) Set(ctx context.Context, k Key, value string) error {
	return r.Client.Set(ctx, r.redisKey(k), value, 0).Err()
}

// Clear deletes every key in the given namespace.
func (r *Redis) Clear(ctx context.Context, ns Namespace) error {
	var err error

	scanErr := r.scan(ctx, ns, func(keys []string) {
		err = multierr.Append(err, r.Client.Del(ctx, keys...).Err())
	})

	return multierr.Append(scanErr, err)
}

// Entries returns every value in the given namespace.
func (r *Redis) Entries(ctx context.Context, ns Namespace) (map[string]string, error) {
	result := map[string]string{}
	prefix := r.namespacePrefix(ns)

	var err error
	scanErr := r.scan(ctx, ns, func(keys []string) {
		values, e := r.Client.MGet(ctx, keys...).Result()
		if e != nil {
			err = multierr.Append(err, e)
			return
		}

		for i, v := range values {
			// keys deleted between SCAN and MGET come back as nil
			if s, ok := v.(string); ok {
				result[strings.TrimPrefix(keys[i], prefix)] = s
			}
		}
	})

	if err = multierr.Append(scanErr, err); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *Redis) scan(ctx context.Context, ns Namespace, fn func([]string)) error {
	var cursor uint64
	match := r.namespacePrefix(ns) + "*"

	for {
		keys, next, err := r.Client.Scan(ctx, cursor, match, scanBatchSize).Result()
		if err != nil {
			return err
		}

		if len(keys) > 0 {
			fn(keys)
		}

		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (r *Redis) namespacePrefix(ns Namespace) string {
	prefix := r.Prefix
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}

	return fmt.Sprintf("%s:%s:", prefix, ns)
}

func (r *Redis) redisKey(k Key) string {
	return r.namespacePrefix(k.Namespace) + k.Name
}
