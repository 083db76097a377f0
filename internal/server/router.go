package server

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/media-relay/media-relay/internal/logging"
)

// AppOptions controls how the Fiber application is assembled.
type AppOptions struct {
	Logger *logrus.Logger
	// BodyLimit caps request bodies; zero keeps Fiber's default.
	BodyLimit int
	// BaseContext 是所有请求上下文的父级，取消后进行中的检索随之中止。
	BaseContext context.Context
}

const contextKeyRequestID = "_mediarelay_request_id"

// NewApp builds a Fiber application with request-id, access-log and
// structured error handling. Routes are registered by the caller.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}

	app := fiber.New(fiber.Config{
		AppName:       "media-relay",
		CaseSensitive: true,
		BodyLimit:     opts.BodyLimit,
		ErrorHandler:  errorHandler(opts.Logger),
	})

	// 访问日志位于 recover 之外，panic 同样会留下一条 500 记录。
	base := opts.BaseContext
	if base == nil {
		base = context.Background()
	}
	app.Use(requestContextMiddleware(base))
	app.Use(accessLogMiddleware(opts.Logger))
	app.Use(recover.New())
	app.Use(cors.New())

	return app, nil
}

// requestContextMiddleware 为每个请求生成 ID 并写回 X-Request-ID 头，
// 同时挂上可取消的上下文：base 取消、连接所属服务关闭或处理结束时都会触发。
func requestContextMiddleware(base context.Context) fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)

		ctx, cancel := context.WithCancel(base)
		defer cancel()
		stop := context.AfterFunc(c.RequestCtx(), cancel)
		defer stop()
		c.SetContext(ctx)

		return c.Next()
	}
}

// accessLogMiddleware 在请求结束后输出一条 action=http 的访问日志。
func accessLogMiddleware(logger *logrus.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		started := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = statusFromError(err)
		}

		fields := logging.RequestFields(RequestID(c), c.Method(), c.Path())
		fields["action"] = "http"
		fields["status"] = status
		fields["elapsed_ms"] = time.Since(started).Milliseconds()
		entry := logger.WithFields(fields)
		if status >= fiber.StatusInternalServerError {
			entry.Warn("request_complete")
		} else {
			entry.Info("request_complete")
		}
		return err
	}
}

// errorHandler 将未被路由处理的错误统一渲染为 {"error": code}。
func errorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		status := statusFromError(err)
		code := "internal"
		switch status {
		case fiber.StatusNotFound:
			code = "not_found"
		case fiber.StatusMethodNotAllowed:
			code = "method_not_allowed"
		case fiber.StatusRequestEntityTooLarge:
			code = "payload_too_large"
		default:
			var fe *fiber.Error
			if errors.As(err, &fe) && status < fiber.StatusInternalServerError {
				code = fe.Message
			}
		}

		if status >= fiber.StatusInternalServerError {
			logger.WithError(err).WithFields(logrus.Fields{
				"action":     "http_error",
				"request_id": RequestID(c),
				"path":       c.Path(),
			}).Error("unhandled_error")
		}
		return c.Status(status).JSON(fiber.Map{"error": code})
	}
}

func statusFromError(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return fiber.StatusInternalServerError
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

// BaseURL 返回调用方可见的 scheme://host；配置了 publicBase 时优先使用。
func BaseURL(c fiber.Ctx, publicBase string) string {
	if publicBase != "" {
		return publicBase
	}
	return c.BaseURL()
}
