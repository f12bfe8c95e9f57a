package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DialRedis connects to addr and verifies the connection with a PING.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("verify redis connection: %w", err)
	}
	return client, nil
}

// RedisTagStore is a TagStore shared by every API and worker process.
// Tag generations live in their own keys and are bumped with INCR.
type RedisTagStore struct {
	rdb    redis.Cmdable
	prefix string
}

type redisEntry struct {
	Body json.RawMessage  `json:"body"`
	Tags map[string]int64 `json:"tags,omitempty"`
}

// NewRedisTagStore creates a store namespacing every key with prefix.
func NewRedisTagStore(rdb redis.Cmdable, prefix string) *RedisTagStore {
	if prefix == "" {
		prefix = "phimhub:"
	}
	return &RedisTagStore{rdb: rdb, prefix: prefix}
}

func (s *RedisTagStore) entryKey(key string) string { return s.prefix + "entry:" + key }
func (s *RedisTagStore) tagKey(tag string) string   { return s.prefix + "tag:" + tag }

func (s *RedisTagStore) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	raw, err := s.rdb.Get(ctx, s.entryKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	var e redisEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		// Corrupt entries are dropped rather than served.
		_ = s.rdb.Del(ctx, s.entryKey(key)).Err()
		return nil, false, nil
	}
	if len(e.Tags) == 0 {
		return e.Body, true, nil
	}

	tags := sortedTags(e.Tags)
	current, err := s.generations(ctx, tags)
	if err != nil {
		return nil, false, err
	}
	for i, tag := range tags {
		if current[i] != e.Tags[tag] {
			_ = s.rdb.Del(ctx, s.entryKey(key)).Err()
			return nil, false, nil
		}
	}
	return e.Body, true, nil
}

func (s *RedisTagStore) Set(ctx context.Context, key string, body json.RawMessage, ttl time.Duration, tags ...string) error {
	gens, err := s.Snapshot(ctx, tags...)
	if err != nil {
		return err
	}
	return s.SetAt(ctx, key, body, ttl, gens)
}

func (s *RedisTagStore) Snapshot(ctx context.Context, tags ...string) (Generations, error) {
	var clean []string
	for _, t := range tags {
		if t != "" {
			clean = append(clean, t)
		}
	}
	gens := make(Generations, len(clean))
	if len(clean) == 0 {
		return gens, nil
	}
	vals, err := s.generations(ctx, clean)
	if err != nil {
		return nil, err
	}
	for i, t := range clean {
		gens[t] = vals[i]
	}
	return gens, nil
}

func (s *RedisTagStore) SetAt(ctx context.Context, key string, body json.RawMessage, ttl time.Duration, gens Generations) error {
	if ttl <= 0 {
		return s.rdb.Del(ctx, s.entryKey(key)).Err()
	}
	e := redisEntry{Body: body}
	if len(gens) > 0 {
		e.Tags = make(map[string]int64, len(gens))
		for t, g := range gens {
			e.Tags[t] = g
		}
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.entryKey(key), b, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisTagStore) InvalidateTag(ctx context.Context, tag string) error {
	if tag == "" {
		return ErrEmptyTag
	}
	if err := s.rdb.Incr(ctx, s.tagKey(tag)).Err(); err != nil {
		return fmt.Errorf("redis incr tag %s: %w", tag, err)
	}
	return nil
}

func (s *RedisTagStore) generations(ctx context.Context, tags []string) ([]int64, error) {
	keys := make([]string, len(tags))
	for i, t := range tags {
		keys[i] = s.tagKey(t)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget tags: %w", err)
	}
	out := make([]int64, len(tags))
	for i, v := range vals {
		out[i] = parseGeneration(v)
	}
	return out, nil
}

func parseGeneration(v any) int64 {
	switch x := v.(type) {
	case string:
		n, _ := strconv.ParseInt(x, 10, 64)
		return n
	case int64:
		return x
	default:
		return 0
	}
}

func sortedTags(m map[string]int64) []string {
	tags := make([]string, 0, len(m))
	for t := range m {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}
