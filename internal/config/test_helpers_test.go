package config

import (
	"os"
	"path/filepath"
	"testing"
)

func testConfigPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join("testdata", name)
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("写入临时配置失败: %v", err)
	}
	return path
}

// clearEnvOverrides 确保宿主环境中的变量不会干扰断言。
func clearEnvOverrides(t *testing.T) {
	t.Helper()
	t.Setenv("SERVICE_API_URL", "")
	t.Setenv("PORT", "")
	t.Setenv("MEDIA_RELAY_STORAGE", "")
}
