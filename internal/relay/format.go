package relay

import (
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// ttlMagnitudes 只描述时长本身，不带 “ago/from now” 之类的方向标签。
var ttlMagnitudes = []humanize.RelTimeMagnitude{
	{D: time.Second, Format: "now", DivBy: time.Second},
	{D: 2 * time.Second, Format: "1 second", DivBy: 1},
	{D: time.Minute, Format: "%d seconds", DivBy: time.Second},
	{D: 2 * time.Minute, Format: "1 minute", DivBy: 1},
	{D: time.Hour, Format: "%d minutes", DivBy: time.Minute},
	{D: 2 * time.Hour, Format: "1 hour", DivBy: 1},
	{D: humanize.Day, Format: "%d hours", DivBy: time.Hour},
	{D: math.MaxInt64, Format: "%d days", DivBy: humanize.Day},
}

// FormatTTL 将 TTL 渲染为 “5 minutes” 形式的提示文本。
func FormatTTL(ttl time.Duration) string {
	now := time.Unix(0, 0)
	return strings.TrimSpace(humanize.CustomRelTime(now, now.Add(ttl), "", "", ttlMagnitudes))
}

// FormatSize 以二进制单位渲染体积；0 表示源站未声明体积。
func FormatSize(size int64) string {
	if size <= 0 {
		return "unknown"
	}
	return humanize.IBytes(uint64(size))
}
