package cache

import (
	"testing"
	"time"
)

func TestPolicyThresholdBoundary(t *testing.T) {
	p := DefaultPolicy()
	const mib10 = 10 * 1024 * 1024

	testCases := []struct {
		size  int64
		cache bool
	}{
		{0, true},
		{2 * 1024 * 1024, true},
		{mib10 - 1, true},
		{mib10, true},
		{mib10 + 1, false},
		{50 * 1024 * 1024, false},
	}
	for _, tc := range testCases {
		if got := p.ShouldCache(tc.size); got != tc.cache {
			t.Fatalf("size %d: expected cache=%v, got %v", tc.size, tc.cache, got)
		}
	}
}

func TestPolicyExpired(t *testing.T) {
	p := Policy{TTL: 300000 * time.Millisecond}
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	asset := Asset{CreatedAt: created}

	if p.Expired(asset, created.Add(p.TTL)) {
		t.Fatalf("恰好等于 TTL 时不应过期")
	}
	if !p.Expired(asset, created.Add(300001*time.Millisecond)) {
		t.Fatalf("超过 TTL 1ms 应过期")
	}
	if !p.ExpiresAt(asset).Equal(created.Add(5 * time.Minute)) {
		t.Fatalf("unexpected ExpiresAt %v", p.ExpiresAt(asset))
	}
}
