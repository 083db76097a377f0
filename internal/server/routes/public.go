package routes

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/static"
)

// RegisterPublicRoutes 在配置了静态目录时挂载前端页面，需在其它路由之后注册。
func RegisterPublicRoutes(app *fiber.App, dir string) {
	if app == nil || dir == "" {
		return
	}
	app.Get("/*", static.New(dir))
}
