package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/guglxni/quotefusion/internal/model"
)

// redisValue is the wire shape stored at each Redis key: enough to
// reconstruct hit_count and popularity accounting across the cluster
// without a second lookup.
type redisValue struct {
	Record   model.RawRecord `json:"record"`
	HitCount int64           `json:"hit_count"`
	CachedAt time.Time       `json:"cached_at"`
}

// Redis is the optional shared/durable cache-core backend. It honors the
// same key format and TTL-by-class contract as Memory, trading the
// in-process LRU accounting for Redis's own TTL-based expiry (eviction
// under memory pressure is delegated to the Redis server's own maxmemory
// policy rather than reimplemented here).
type Redis struct {
	client   *redis.Client
	cfg      Config
	prefix   string
	onChange func()
}

func NewRedis(addr string, cfg Config) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		cfg:    cfg,
		prefix: "quotefusion:",
	}
}

const redisOpTimeout = 2 * time.Second

func (r *Redis) ttlFor(class model.DataClass) time.Duration {
	m := &Memory{cfg: r.cfg}
	return m.ttlFor(class)
}

func (r *Redis) Get(key string) (model.RawRecord, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	b, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		return model.RawRecord{}, false
	}
	var v redisValue
	if err := json.Unmarshal(b, &v); err != nil {
		return model.RawRecord{}, false
	}
	v.HitCount++
	if updated, err := json.Marshal(v); err == nil {
		r.client.Set(ctx, r.prefix+key, updated, redis.KeepTTL)
	}
	return v.Record, true
}

func (r *Redis) Put(provider model.Provider, class model.DataClass, symbol string, data model.RawRecord) (string, error) {
	key := model.CacheKey(provider, class, symbol)
	return key, r.putAt(key, r.ttlFor(class), data)
}

func (r *Redis) PutAlias(aliasKey string, expiresAt time.Time, data model.RawRecord) error {
	ttl := time.Until(expiresAt)
	if ttl < 0 {
		ttl = 0
	}
	return r.putAt(aliasKey, ttl, data)
}

func (r *Redis) putAt(key string, ttl time.Duration, data model.RawRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	v := redisValue{Record: data, CachedAt: time.Now()}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.prefix+key, b, ttl).Err()
}

func (r *Redis) InvalidateProvider(provider model.Provider) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	iter := r.client.Scan(ctx, 0, r.prefix+string(provider)+":*", 100).Iterator()
	evicted := false
	for iter.Next(ctx) {
		r.client.Del(ctx, iter.Val())
		evicted = true
	}
	if evicted && r.onChange != nil {
		r.onChange()
	}
}

// InvalidateExpired is a no-op: Redis expires keys natively via TTL, so
// there is no sweep here to notify on.
func (r *Redis) InvalidateExpired() {}

// OnChange registers fn to be invoked after InvalidateProvider actually
// removes one or more keys. Redis's own TTL expiry is silent to this
// process, so only explicit invalidation can be observed here.
func (r *Redis) OnChange(fn func()) {
	r.onChange = fn
}

func (r *Redis) GetPopular(limit int) []string {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	type kv struct {
		key string
		hit int64
	}
	var all []kv
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		b, err := r.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var v redisValue
		if json.Unmarshal(b, &v) == nil {
			all = append(all, kv{key: iter.Val()[len(r.prefix):], hit: v.HitCount})
		}
	}
	for i := 0; i < len(all) && i < limit; i++ {
		maxIdx := i
		for j := i + 1; j < len(all); j++ {
			if all[j].hit > all[maxIdx].hit {
				maxIdx = j
			}
		}
		all[i], all[maxIdx] = all[maxIdx], all[i]
	}
	if limit > len(all) {
		limit = len(all)
	}
	out := make([]string, limit)
	for i := 0; i < limit; i++ {
		out[i] = all[i].key
	}
	return out
}

func (r *Redis) Clear() {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		r.client.Del(ctx, iter.Val())
	}
}

// CurrentSize reports Redis's own memory usage for the prefixed keyspace as
// a best-effort estimate (DBSIZE scoped by key count times an average entry
// size is not meaningful across a shared instance, so this sums MEMORY
// USAGE per key instead).
func (r *Redis) CurrentSize() int64 {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	var total int64
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		if n, err := r.client.MemoryUsage(ctx, iter.Val()).Result(); err == nil {
			total += n
		}
	}
	return total
}
