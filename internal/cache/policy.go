package cache

import "time"

// 默认策略：资源保留 5 分钟，超过 10 MiB 的资源直接返回源站链接。
const (
	DefaultTTL           = 5 * time.Minute
	DefaultSizeThreshold = 10 * 1024 * 1024
)

// Policy 汇总 TTL 与体积阈值，供编排层决定缓存策略、供 Sweeper 判断过期。
type Policy struct {
	TTL           time.Duration
	SizeThreshold int64
}

// DefaultPolicy 返回默认 TTL 与阈值组合。
func DefaultPolicy() Policy {
	return Policy{TTL: DefaultTTL, SizeThreshold: DefaultSizeThreshold}
}

// ShouldCache 判断探测到的体积是否走本地缓存。size 为 0 表示未知，同样走缓存；
// 只有严格大于阈值时才返回直链。
func (p Policy) ShouldCache(size int64) bool {
	return size <= p.SizeThreshold
}

// Expired 判断资源在 now 时刻是否已超过 TTL。
func (p Policy) Expired(asset Asset, now time.Time) bool {
	return expired(asset.CreatedAt, now, p.TTL)
}

// ExpiresAt 返回资源最早可被回收的时间点。
func (p Policy) ExpiresAt(asset Asset) time.Time {
	return asset.CreatedAt.Add(p.TTL)
}

func expired(createdAt, now time.Time, ttl time.Duration) bool {
	return now.Sub(createdAt) > ttl
}
