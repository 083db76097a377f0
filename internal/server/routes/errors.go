package routes

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/media-relay/media-relay/internal/apperr"
)

// 对外只暴露固定文案，内部路径与上游细节仅写入日志。
var safeMessages = map[apperr.Kind]string{
	apperr.KindResolution: "failed to resolve media url",
	apperr.KindUpstream:   "failed to download media",
	apperr.KindIO:         "failed to store media",
	apperr.KindConflict:   "cache name collision, please retry",
	apperr.KindInternal:   "internal error",
}

// renderRetrievalError 将检索错误映射为 HTTP 状态与 JSON 响应，并记录 download_failed 日志。
func renderRetrievalError(c fiber.Ctx, logger *logrus.Logger, fields logrus.Fields, err error) error {
	kind := apperr.KindOf(err)
	fields["error_kind"] = string(kind)
	fields["step"] = apperr.StepOf(err)

	status, body := retrievalErrorResponse(err)
	fields["status"] = status

	entry := logger.WithError(err).WithFields(fields)
	if status >= fiber.StatusInternalServerError {
		entry.Error("download_failed")
	} else {
		entry.Warn("download_failed")
	}
	return c.Status(status).JSON(body)
}

func retrievalErrorResponse(err error) (int, fiber.Map) {
	kind := apperr.KindOf(err)
	switch {
	case kind == apperr.KindInvalidInput:
		return fiber.StatusBadRequest, fiber.Map{"error": "Invalid URL format"}
	case errors.Is(err, apperr.ErrNoMedia):
		return fiber.StatusNotFound, fiber.Map{"error": apperr.ErrNoMedia.Error()}
	}
	message, ok := safeMessages[kind]
	if !ok {
		message = safeMessages[apperr.KindInternal]
	}
	return fiber.StatusInternalServerError, fiber.Map{
		"error":   string(kind),
		"message": message,
	}
}
