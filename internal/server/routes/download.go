package routes

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/media-relay/media-relay/internal/logging"
	"github.com/media-relay/media-relay/internal/relay"
	"github.com/media-relay/media-relay/internal/server"
)

// Retriever 是 /download 依赖的检索流程，测试中可替换。
type Retriever interface {
	Retrieve(ctx context.Context, req relay.Request) (*relay.Result, error)
}

// DownloadOptions 汇总 /download 路由的依赖。
type DownloadOptions struct {
	Retriever Retriever
	Logger    *logrus.Logger
	// PublicBaseURL 非空时替代请求推导出的 scheme://host。
	PublicBaseURL string
	// RateLimit 为每分钟允许的请求数，0 表示不限流。
	RateLimit int
}

type downloadRequest struct {
	URL string `json:"url"`
}

// RegisterDownloadRoutes 挂载 POST /download。
func RegisterDownloadRoutes(app *fiber.App, opts DownloadOptions) {
	if app == nil || opts.Retriever == nil {
		return
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	limiter := newDownloadLimiter(opts.RateLimit)

	app.Post("/download", func(c fiber.Ctx) error {
		started := time.Now()
		requestID := server.RequestID(c)

		if limiter != nil && !limiter.Allow() {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate_limited"})
		}

		result, err := opts.Retriever.Retrieve(c.Context(), relay.Request{
			Input:   readDownloadInput(c),
			BaseURL: server.BaseURL(c, opts.PublicBaseURL),
		})

		fields := logging.RequestFields(requestID, c.Method(), c.Path())
		fields["action"] = "download"
		fields["elapsed_ms"] = time.Since(started).Milliseconds()
		if err != nil {
			return renderRetrievalError(c, logger, fields, err)
		}

		for key, value := range logging.RetrievalFields(result.FileName, result.SizeBytes, result.IsDirectLink) {
			fields[key] = value
		}
		fields["upstream"] = result.OriginalURL
		logger.WithFields(fields).Info("download_complete")
		return c.JSON(result)
	})
}

// readDownloadInput 同时接受 JSON 与表单请求体中的 url 字段。
func readDownloadInput(c fiber.Ctx) string {
	contentType := strings.ToLower(string(c.Request().Header.ContentType()))
	if strings.HasPrefix(contentType, fiber.MIMEApplicationJSON) {
		var payload downloadRequest
		if err := json.Unmarshal(c.Body(), &payload); err != nil {
			return ""
		}
		return payload.URL
	}
	return c.FormValue("url")
}

// newDownloadLimiter 将“每分钟 N 次”换算为令牌桶，突发上限为 N。
func newDownloadLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
}
