package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/media-relay/media-relay/internal/cache"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述服务级运行参数：监听、日志、缓存目录与缓存策略。
type GlobalConfig struct {
	ListenPort        int      `mapstructure:"ListenPort"`
	LogLevel          string   `mapstructure:"LogLevel"`
	LogFilePath       string   `mapstructure:"LogFilePath"`
	LogMaxSize        int      `mapstructure:"LogMaxSize"`
	LogMaxBackups     int      `mapstructure:"LogMaxBackups"`
	LogCompress       bool     `mapstructure:"LogCompress"`
	StoragePath       string   `mapstructure:"StoragePath"`
	CacheTTL          Duration `mapstructure:"CacheTTL"`
	SweepInterval     Duration `mapstructure:"SweepInterval"`
	SizeThreshold     int64    `mapstructure:"SizeThreshold"`
	ProbeTimeout      Duration `mapstructure:"ProbeTimeout"`
	UpstreamTimeout   Duration `mapstructure:"UpstreamTimeout"`
	PublicBaseURL     string   `mapstructure:"PublicBaseURL"`
	PublicDir         string   `mapstructure:"PublicDir"`
	DownloadRateLimit int      `mapstructure:"DownloadRateLimit"`
}

// ResolverConfig 描述外部解析服务的位置与协议细节。
type ResolverConfig struct {
	ServiceURL     string   `mapstructure:"ServiceURL"`
	APIPath        string   `mapstructure:"APIPath"`
	TokenElementID string   `mapstructure:"TokenElementID"`
	Timeout        Duration `mapstructure:"Timeout"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global   GlobalConfig   `mapstructure:",squash"`
	Resolver ResolverConfig `mapstructure:"Resolver"`
}

// CachePolicy 将 TTL 与直链阈值转换为缓存层策略。
func (c *Config) CachePolicy() cache.Policy {
	return cache.Policy{
		TTL:           c.Global.CacheTTL.DurationValue(),
		SizeThreshold: c.Global.SizeThreshold,
	}
}

// ResolverHost 仅输出解析服务的 host，避免在日志中泄露路径或查询参数。
func (r ResolverConfig) ResolverHost() string {
	trimmed := strings.TrimSpace(r.ServiceURL)
	if idx := strings.Index(trimmed, "://"); idx >= 0 {
		trimmed = trimmed[idx+3:]
	}
	if idx := strings.IndexAny(trimmed, "/?#"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return trimmed
}
