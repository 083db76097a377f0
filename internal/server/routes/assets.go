package routes

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/media-relay/media-relay/internal/cache"
	"github.com/media-relay/media-relay/internal/relay"
	"github.com/media-relay/media-relay/internal/server"
)

// RegisterAssetRoutes 挂载 GET /uploads/:name，直接从缓存目录流式输出。
// 资源被回收后返回 404，重复请求结果一致。
func RegisterAssetRoutes(app *fiber.App, store cache.Store, policy cache.Policy, logger *logrus.Logger) {
	if app == nil || store == nil {
		return
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	app.Get(strings.TrimSuffix(relay.UploadsPrefix, "/")+"/:name", func(c fiber.Ctx) error {
		name := c.Params("name")
		result, err := store.Open(c.Context(), name)
		if err != nil {
			if errors.Is(err, cache.ErrNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
			}
			logger.WithError(err).WithFields(logrus.Fields{
				"action":     "asset",
				"request_id": server.RequestID(c),
				"file_name":  name,
			}).Error("asset_open_failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "storage_failed"})
		}

		asset := result.Asset
		c.Type(strings.TrimPrefix(asset.Extension, "."))
		if remaining := time.Until(policy.ExpiresAt(asset)); remaining > 0 && policy.TTL > 0 {
			c.Set(fiber.HeaderCacheControl, fmt.Sprintf("private, max-age=%d", int(remaining.Seconds())))
		} else {
			c.Set(fiber.HeaderCacheControl, "no-store")
		}
		c.Set(fiber.HeaderLastModified, asset.CreatedAt.UTC().Format(time.RFC1123))
		return c.SendStream(result.Reader, int(asset.SizeBytes))
	})
}
