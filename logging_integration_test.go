package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoggingFallbackToStdout(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root 可以无视目录权限")
	}
	clearEnvOverrides(t)
	dir := t.TempDir()
	blocked := filepath.Join(dir, "blocked")
	if err := os.Mkdir(blocked, 0o755); err != nil {
		t.Fatalf("创建目录失败: %v", err)
	}
	if err := os.Chmod(blocked, 0o000); err != nil {
		t.Fatalf("设置目录权限失败: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(blocked, 0o755) })

	logPath := filepath.Join(blocked, "sub", "media-relay.log")
	configPath := writeConfigFile(t, fmt.Sprintf(`
LogLevel = "info"
LogFilePath = %q
StoragePath = %q
ListenPort = 3000

[Resolver]
ServiceURL = "https://resolver.example.com"
`, logPath, filepath.Join(dir, "uploads")))

	useBufferWriters(t)
	code := run(cliOptions{configPath: configPath, checkOnly: true})
	if code != 0 {
		t.Fatalf("日志 fallback 不应导致失败，得到 %d", code)
	}
	t.Log(stdOut.(*bytes.Buffer).String())
}

func TestCheckConfigWritesRotatedLogFile(t *testing.T) {
	clearEnvOverrides(t)
	dir := t.TempDir()
	logPath := filepath.Join(dir, "logs", "media-relay.log")
	configPath := writeConfigFile(t, fmt.Sprintf(`
LogFilePath = %q
StoragePath = %q

[Resolver]
ServiceURL = "https://resolver.example.com"
`, logPath, filepath.Join(dir, "uploads")))

	useBufferWriters(t)
	if code := run(cliOptions{configPath: configPath, checkOnly: true}); code != 0 {
		t.Fatalf("期望退出码 0，得到 %d", code)
	}
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("日志文件未创建: %v", err)
	}
	if !strings.Contains(string(data), `"action":"check_config"`) {
		t.Fatalf("日志文件应包含 check_config 记录: %s", string(data))
	}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(file, []byte(strings.TrimSpace(content)), 0o600); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}
	return file
}
