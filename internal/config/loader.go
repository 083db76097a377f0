package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/media-relay/media-relay/internal/cache"
	"github.com/media-relay/media-relay/internal/fetcher"
	"github.com/media-relay/media-relay/internal/resolver"
)

// 默认值与文档中的配置表保持一致。
const (
	DefaultListenPort  = 3000
	DefaultStoragePath = "./uploads"
)

// Load 读取并解析 TOML 配置文件，同时注入默认值、环境变量覆盖与校验逻辑。
// path 为空时跳过文件读取，仅使用默认值与环境变量。
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	applyGlobalDefaults(&cfg.Global)
	applyResolverDefaults(&cfg.Resolver)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absStorage, err := filepath.Abs(cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.StoragePath = absStorage

	if cfg.Global.PublicDir != "" {
		absPublic, err := filepath.Abs(cfg.Global.PublicDir)
		if err != nil {
			return nil, fmt.Errorf("无法解析静态目录: %w", err)
		}
		cfg.Global.PublicDir = absPublic
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", DefaultListenPort)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StoragePath", DefaultStoragePath)
	v.SetDefault("CacheTTL", "5m")
	v.SetDefault("SweepInterval", "1m")
	v.SetDefault("SizeThreshold", cache.DefaultSizeThreshold)
	v.SetDefault("ProbeTimeout", "10s")
	v.SetDefault("UpstreamTimeout", "2m")
	v.SetDefault("PublicBaseURL", "")
	v.SetDefault("PublicDir", "")
	v.SetDefault("DownloadRateLimit", 0)
	v.SetDefault("Resolver.APIPath", resolver.DefaultAPIPath)
	v.SetDefault("Resolver.TokenElementID", resolver.DefaultTokenElementID)
	v.SetDefault("Resolver.Timeout", "30s")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = DefaultListenPort
	}
	if strings.TrimSpace(g.StoragePath) == "" {
		g.StoragePath = DefaultStoragePath
	}
	if g.CacheTTL.DurationValue() == 0 {
		g.CacheTTL = Duration(cache.DefaultTTL)
	}
	if g.SweepInterval.DurationValue() == 0 {
		g.SweepInterval = Duration(cache.DefaultSweepInterval)
	}
	if g.SizeThreshold == 0 {
		g.SizeThreshold = cache.DefaultSizeThreshold
	}
	if g.ProbeTimeout.DurationValue() == 0 {
		g.ProbeTimeout = Duration(fetcher.DefaultProbeTimeout)
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(fetcher.DefaultFetchTimeout)
	}
	g.PublicBaseURL = strings.TrimRight(strings.TrimSpace(g.PublicBaseURL), "/")
}

func applyResolverDefaults(r *ResolverConfig) {
	r.ServiceURL = strings.TrimSpace(r.ServiceURL)
	if strings.TrimSpace(r.APIPath) == "" {
		r.APIPath = resolver.DefaultAPIPath
	}
	if strings.TrimSpace(r.TokenElementID) == "" {
		r.TokenElementID = resolver.DefaultTokenElementID
	}
	if r.Timeout.DurationValue() == 0 {
		r.Timeout = Duration(resolver.DefaultTimeout)
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
