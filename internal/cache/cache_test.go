package cache

import (
	"strings"
	"testing"
	"time"

	"github.com/guglxni/quotefusion/internal/model"
)

func testMemory(maxSize int64) *Memory {
	return NewMemory(Config{
		MaxSizeBytes:              maxSize,
		CompressionThresholdBytes: 1 << 20, // disabled by default in small tests
		MaxConcurrentOps:          4,
		TTL:                       TTLPolicy{Default: time.Minute},
	})
}

func rec(symbol string, price float64) model.RawRecord {
	return model.RawRecord{Symbol: symbol, PriceUSD: price, LastUpdated: time.Now(), Source: model.ProviderCoinGecko}
}

func TestMemory_PutThenGet(t *testing.T) {
	m := testMemory(1 << 20)
	key, err := m.Put(model.ProviderCoinGecko, model.DataClassPrice, "BTC", rec("BTC", 50000))
	if err != nil {
		t.Fatalf("put failed: %v", err)
	}

	got, ok := m.Get(key)
	if !ok {
		t.Fatal("expected a hit immediately after put")
	}
	if got.PriceUSD != 50000 {
		t.Errorf("expected price 50000, got %v", got.PriceUSD)
	}
}

func TestMemory_GetMissForUnknownKey(t *testing.T) {
	m := testMemory(1 << 20)
	if _, ok := m.Get("nonexistent"); ok {
		t.Error("expected a miss for an unknown key")
	}
}

func TestMemory_ExpiredEntryIsAMiss(t *testing.T) {
	m := NewMemory(Config{
		MaxSizeBytes:     1 << 20,
		MaxConcurrentOps: 4,
		TTL:              TTLPolicy{Default: 5 * time.Millisecond},
	})
	key, _ := m.Put(model.ProviderCoinGecko, model.DataClassPrice, "ETH", rec("ETH", 3000))
	time.Sleep(10 * time.Millisecond)
	if _, ok := m.Get(key); ok {
		t.Error("expected the entry to be expired")
	}
}

func TestMemory_LRUEvictsOldestWhenOverBudget(t *testing.T) {
	// Budget large enough for exactly one small entry.
	raw, _, _, _ := encode(rec("AAA", 1), 1<<20)
	m := testMemory(int64(len(raw)) + 1)

	m.Put(model.ProviderCoinGecko, model.DataClassPrice, "AAA", rec("AAA", 1))
	m.Put(model.ProviderCoinGecko, model.DataClassPrice, "BBB", rec("BBB", 2))

	k1 := model.CacheKey(model.ProviderCoinGecko, model.DataClassPrice, "AAA")
	k2 := model.CacheKey(model.ProviderCoinGecko, model.DataClassPrice, "BBB")
	if _, ok := m.Get(k1); ok {
		t.Error("expected the first-inserted entry to have been evicted to make room")
	}
	if _, ok := m.Get(k2); !ok {
		t.Error("expected the most recently inserted entry to survive")
	}
}

func TestMemory_PutAliasUsesExplicitExpiry(t *testing.T) {
	m := testMemory(1 << 20)
	aliasKey := model.CacheKey(model.ProviderBinance, model.DataClassPrice, "BTC")
	expiresAt := time.Now().Add(time.Hour)

	if err := m.PutAlias(aliasKey, expiresAt, rec("BTC", 51000)); err != nil {
		t.Fatalf("put alias failed: %v", err)
	}
	got, ok := m.Get(aliasKey)
	if !ok {
		t.Fatal("expected the alias entry to be retrievable")
	}
	if got.PriceUSD != 51000 {
		t.Errorf("expected aliased price 51000, got %v", got.PriceUSD)
	}
}

func TestMemory_InvalidateProvider(t *testing.T) {
	m := testMemory(1 << 20)
	m.Put(model.ProviderCoinGecko, model.DataClassPrice, "BTC", rec("BTC", 1))
	m.Put(model.ProviderBinance, model.DataClassPrice, "BTC", rec("BTC", 2))

	m.InvalidateProvider(model.ProviderCoinGecko)

	k1 := model.CacheKey(model.ProviderCoinGecko, model.DataClassPrice, "BTC")
	k2 := model.CacheKey(model.ProviderBinance, model.DataClassPrice, "BTC")
	if _, ok := m.Get(k1); ok {
		t.Error("expected coingecko's entry to be invalidated")
	}
	if _, ok := m.Get(k2); !ok {
		t.Error("expected binance's entry to survive")
	}
}

func TestMemory_InvalidateExpired(t *testing.T) {
	m := NewMemory(Config{MaxSizeBytes: 1 << 20, MaxConcurrentOps: 4, TTL: TTLPolicy{Default: 5 * time.Millisecond}})
	m.Put(model.ProviderCoinGecko, model.DataClassPrice, "BTC", rec("BTC", 1))
	time.Sleep(10 * time.Millisecond)
	m.InvalidateExpired()
	if m.CurrentSize() != 0 {
		t.Errorf("expected size 0 after sweeping expired entries, got %d", m.CurrentSize())
	}
}

func TestMemory_GetPopularOrdersByHitCount(t *testing.T) {
	m := testMemory(1 << 20)
	k1, _ := m.Put(model.ProviderCoinGecko, model.DataClassPrice, "BTC", rec("BTC", 1))
	k2, _ := m.Put(model.ProviderCoinGecko, model.DataClassPrice, "ETH", rec("ETH", 2))

	m.Get(k2)
	m.Get(k2)
	m.Get(k1)

	popular := m.GetPopular(2)
	if len(popular) != 2 || popular[0] != k2 {
		t.Errorf("expected %q to be most popular, got %v", k2, popular)
	}
}

func TestMemory_Clear(t *testing.T) {
	m := testMemory(1 << 20)
	m.Put(model.ProviderCoinGecko, model.DataClassPrice, "BTC", rec("BTC", 1))
	m.Clear()
	if m.CurrentSize() != 0 {
		t.Errorf("expected size 0 after Clear, got %d", m.CurrentSize())
	}
}

func TestMemory_OnChange_FiresOnLRUEviction(t *testing.T) {
	raw, _, _, _ := encode(rec("AAA", 1), 1<<20)
	m := testMemory(int64(len(raw)) + 1)

	calls := 0
	m.OnChange(func() { calls++ })

	m.Put(model.ProviderCoinGecko, model.DataClassPrice, "AAA", rec("AAA", 1))
	if calls != 0 {
		t.Errorf("expected no notification for an insert that evicts nothing, got %d", calls)
	}
	m.Put(model.ProviderCoinGecko, model.DataClassPrice, "BBB", rec("BBB", 2))
	if calls != 1 {
		t.Errorf("expected a notification once the size bound evicts AAA, got %d", calls)
	}
}

func TestMemory_OnChange_FiresOnInvalidateExpired(t *testing.T) {
	m := NewMemory(Config{MaxSizeBytes: 1 << 20, MaxConcurrentOps: 4, TTL: TTLPolicy{Default: 5 * time.Millisecond}})
	calls := 0
	m.OnChange(func() { calls++ })

	m.Put(model.ProviderCoinGecko, model.DataClassPrice, "BTC", rec("BTC", 1))
	m.InvalidateExpired()
	if calls != 0 {
		t.Errorf("expected no notification when nothing has expired yet, got %d", calls)
	}

	time.Sleep(10 * time.Millisecond)
	m.InvalidateExpired()
	if calls != 1 {
		t.Errorf("expected one notification once the sweep removes the expired entry, got %d", calls)
	}
}

func TestMemory_OnChange_FiresOnInvalidateProvider(t *testing.T) {
	m := testMemory(1 << 20)
	calls := 0
	m.OnChange(func() { calls++ })

	m.InvalidateProvider(model.ProviderCoinGecko)
	if calls != 0 {
		t.Errorf("expected no notification when the provider has no entries, got %d", calls)
	}

	m.Put(model.ProviderCoinGecko, model.DataClassPrice, "BTC", rec("BTC", 1))
	m.InvalidateProvider(model.ProviderCoinGecko)
	if calls != 1 {
		t.Errorf("expected one notification for a provider invalidation that removes an entry, got %d", calls)
	}
}

func TestMemory_CompressionIsTransparent(t *testing.T) {
	m := NewMemory(Config{
		MaxSizeBytes:              1 << 20,
		CompressionThresholdBytes: 10, // force compression on nearly anything
		MaxConcurrentOps:          4,
		TTL:                       TTLPolicy{Default: time.Minute},
	})
	big := rec(strings.Repeat("X", 500), 123.456)
	key, err := m.Put(model.ProviderCoinGecko, model.DataClassPrice, "BIG", big)
	if err != nil {
		t.Fatalf("put failed: %v", err)
	}
	got, ok := m.Get(key)
	if !ok {
		t.Fatal("expected a hit on a compressed entry")
	}
	if got.Symbol != big.Symbol || got.PriceUSD != big.PriceUSD {
		t.Error("compression round-trip must be the exact inverse of encode")
	}
}
