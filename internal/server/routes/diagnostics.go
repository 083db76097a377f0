package routes

import (
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/media-relay/media-relay/internal/cache"
	"github.com/media-relay/media-relay/internal/relay"
	"github.com/media-relay/media-relay/internal/version"
)

// RegisterDiagnosticsRoutes 暴露 /-/healthz 与 /-/cache 诊断接口，供运维查看缓存驻留情况，
// 并允许通过 DELETE /-/cache/:name 提前驱逐单个资源。
func RegisterDiagnosticsRoutes(app *fiber.App, store cache.Store, policy cache.Policy) {
	if app == nil || store == nil {
		return
	}

	app.Get("/-/healthz", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "version": version.Full()})
	})

	app.Get("/-/cache", func(c fiber.Ctx) error {
		assets, err := store.List(c.Context())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "storage_failed"})
		}
		return c.JSON(cachePayload{
			TTLSeconds:    int64(policy.TTL / time.Second),
			SizeThreshold: relay.FormatSize(policy.SizeThreshold),
			Assets:        encodeAssets(assets, policy, time.Now()),
		})
	})

	app.Delete("/-/cache/:name", func(c fiber.Ctx) error {
		if err := store.Remove(c.Context(), c.Params("name")); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "storage_failed"})
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}

type cachePayload struct {
	TTLSeconds    int64          `json:"ttl_seconds"`
	SizeThreshold string         `json:"size_threshold"`
	Assets        []assetPayload `json:"assets"`
}

type assetPayload struct {
	FileName         string `json:"file_name"`
	SizeBytes        int64  `json:"size_bytes"`
	Size             string `json:"size"`
	AgeSeconds       int64  `json:"age_seconds"`
	ExpiresInSeconds int64  `json:"expires_in_seconds"`
	Expired          bool   `json:"expired"`
}

func encodeAssets(assets []cache.Asset, policy cache.Policy, now time.Time) []assetPayload {
	result := make([]assetPayload, 0, len(assets))
	for _, asset := range assets {
		remaining := policy.ExpiresAt(asset).Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		result = append(result, assetPayload{
			FileName:         asset.FileName(),
			SizeBytes:        asset.SizeBytes,
			Size:             relay.FormatSize(asset.SizeBytes),
			AgeSeconds:       int64(now.Sub(asset.CreatedAt) / time.Second),
			ExpiresInSeconds: int64(remaining / time.Second),
			Expired:          policy.Expired(asset, now),
		})
	}
	return result
}
