package stagingstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Get returns the string value stored at key.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return Do(ctx, c, DefaultClassifier, func(ctx context.Context) (string, error) {
		v, err := c.rdb.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return "", ErrNoSuchKey
		}

		return v, err
	})
}

// Set stores value at key with an optional expiry (zero means no expiry).
func (c *Client) Set(ctx context.Context, key, value string, expiry time.Duration) error {
	_, err := Do(ctx, c, DefaultClassifier, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.rdb.Set(ctx, key, value, expiry).Err()
	})

	return err
}

// HIncrBy atomically increments field in the hash at key by incr, returning
// the field's new value.
func (c *Client) HIncrBy(ctx context.Context, key, field string, incr int64) (int64, error) {
	return Do(ctx, c, DefaultClassifier, func(ctx context.Context) (int64, error) {
		return c.rdb.HIncrBy(ctx, key, field, incr).Result()
	})
}

// HSetNX sets field in the hash at key to value only if the field does not
// already exist. Used to cache spawnpoint coordinates once per spawnpoint.
func (c *Client) HSetNX(ctx context.Context, key, field, value string) (bool, error) {
	return Do(ctx, c, DefaultClassifier, func(ctx context.Context) (bool, error) {
		return c.rdb.HSetNX(ctx, key, field, value).Result()
	})
}

// HGetAll returns all fields and values in the hash at key.
func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return Do(ctx, c, DefaultClassifier, func(ctx context.Context) (map[string]string, error) {
		return c.rdb.HGetAll(ctx, key).Result()
	})
}

// HLen returns the number of fields in the hash at key.
func (c *Client) HLen(ctx context.Context, key string) (int64, error) {
	return Do(ctx, c, DefaultClassifier, func(ctx context.Context) (int64, error) {
		return c.rdb.HLen(ctx, key).Result()
	})
}

// RPush appends value to the list at key, returning the list's new length.
func (c *Client) RPush(ctx context.Context, key string, value string) (int64, error) {
	return Do(ctx, c, DefaultClassifier, func(ctx context.Context) (int64, error) {
		return c.rdb.RPush(ctx, key, value).Result()
	})
}

// LRange returns elements [start, stop] from the list at key.
func (c *Client) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return Do(ctx, c, DefaultClassifier, func(ctx context.Context) ([]string, error) {
		return c.rdb.LRange(ctx, key, start, stop).Result()
	})
}

// LLen returns the length of the list at key.
func (c *Client) LLen(ctx context.Context, key string) (int64, error) {
	return Do(ctx, c, DefaultClassifier, func(ctx context.Context) (int64, error) {
		return c.rdb.LLen(ctx, key).Result()
	})
}

// Exists reports whether key is present in the staging store.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	n, err := Do(ctx, c, DefaultClassifier, func(ctx context.Context) (int64, error) {
		return c.rdb.Exists(ctx, key).Result()
	})

	return n > 0, err
}

// Rename atomically renames key to newKey. Returns ErrNoSuchKey, unwrapped
// and un-retried, when key has already disappeared — the expected race
// between a buffer's EXISTS probe and its drain RENAME.
func (c *Client) Rename(ctx context.Context, key, newKey string) error {
	classify := func(err error) ErrorKind {
		if translateRenameErr(err) == ErrNoSuchKey {
			return KindSemantic
		}

		return KindTransient
	}

	_, err := Do(ctx, c, classify, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, translateRenameErr(c.rdb.Rename(ctx, key, newKey).Err())
	})

	return err
}

// Del deletes one or more keys, ignoring a key that is already absent.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	_, err := Do(ctx, c, DefaultClassifier, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.rdb.Del(ctx, keys...).Err()
	})

	return err
}

// Keys returns all keys matching pattern. Intended for the narrow startup
// scan RecoverStaleStagingKeys performs; not for hot-path use since KEYS
// blocks the store while scanning.
func (c *Client) Keys(ctx context.Context, pattern string) ([]string, error) {
	return Do(ctx, c, DefaultClassifier, func(ctx context.Context) ([]string, error) {
		return c.rdb.Keys(ctx, pattern).Result()
	})
}

// Eval runs a Lua script by SHA, loading it into the script cache on a
// NOSCRIPT reply. Every leader-election and time-series-pruning script user
// shares this helper rather than reimplementing the load-on-miss dance.
func (c *Client) Eval(ctx context.Context, script *redis.Script, keys []string, args ...interface{}) (interface{}, error) {
	return Do(ctx, c, DefaultClassifier, func(ctx context.Context) (interface{}, error) {
		return script.Run(ctx, c.rdb, keys, args...).Result()
	})
}
