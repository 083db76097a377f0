package cache

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// DefaultExtension 在下载地址无法推断扩展名时使用。
const DefaultExtension = ".mp4"

// idBytes 决定 id 的熵宽度：16 字节 = 128 bit，渲染为 32 位小写十六进制。
const idBytes = 16

var (
	idPattern  = regexp.MustCompile(`^[0-9a-f]{32}$`)
	extPattern = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)
)

// Allocate 为新资源生成随机 id，并从解析后的下载地址路径推断扩展名。
// 地址无法解析或扩展名不合法时回退到 DefaultExtension，不会返回错误。
func Allocate(resolvedURL string) (id, ext string) {
	return newID(), extensionFor(resolvedURL)
}

func newID() string {
	var buf [idBytes]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(fmt.Sprintf("cache: read random id: %v", err))
	}
	return hex.EncodeToString(buf[:])
}

func extensionFor(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return DefaultExtension
	}
	ext := strings.ToLower(path.Ext(parsed.Path))
	if !extPattern.MatchString(ext) {
		return DefaultExtension
	}
	return ext
}

// splitName 将 <id><ext> 拆分为 id 与扩展名，格式不合法时返回 false，
// 同时保证文件名不会逃逸出存储目录。
func splitName(name string) (id, ext string, ok bool) {
	if len(name) <= idBytes*2 {
		return "", "", false
	}
	id, ext = name[:idBytes*2], name[idBytes*2:]
	if !idPattern.MatchString(id) || !extPattern.MatchString(ext) {
		return "", "", false
	}
	return id, ext, true
}
