package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// envOverrides 列出允许通过环境变量覆盖的字段，便于容器部署时免改配置文件。
type envOverrides struct {
	ServiceURL  string `env:"SERVICE_API_URL"`
	ListenPort  int    `env:"PORT"`
	StoragePath string `env:"MEDIA_RELAY_STORAGE"`
}

// applyEnvOverrides 在文件配置之上叠加环境变量，空值不覆盖。
func applyEnvOverrides(cfg *Config) error {
	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return fmt.Errorf("解析环境变量失败: %w", err)
	}

	if value := strings.TrimSpace(overrides.ServiceURL); value != "" {
		cfg.Resolver.ServiceURL = value
	}
	if overrides.ListenPort != 0 {
		cfg.Global.ListenPort = overrides.ListenPort
	}
	if value := strings.TrimSpace(overrides.StoragePath); value != "" {
		cfg.Global.StoragePath = value
	}
	return nil
}
