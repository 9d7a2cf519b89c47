package server

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AppOptions 描述状态服务依赖的组件。
type AppOptions struct {
	Logger  *logrus.Logger
	Source  StatusSource
	Origin  string
	Version string
}

const contextKeyRequestID = "_indexfs_request_id"

// NewApp 构建状态服务：recover、请求 ID 中间件以及 /-/ 下的诊断路由。
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Source == nil {
		return nil, errors.New("status source is required")
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
		AppName:       "indexfs",
	})

	app.Use(recover.New())
	app.Use(requestIDMiddleware())

	registerStatusRoutes(app, opts)

	app.Use(func(c fiber.Ctx) error {
		path := string(c.Request().URI().Path())
		opts.Logger.WithFields(logrus.Fields{
			"action":     "status_route",
			"path":       path,
			"request_id": RequestID(c),
		}).Debug("unknown status route")
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": notFoundCode(path),
		})
	})

	return app, nil
}

// requestIDMiddleware 为每个请求生成 ID，写入 Locals 与响应头。
func requestIDMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// RequestID returns the request identifier stored by the middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}

func notFoundCode(path string) string {
	if isDiagnosticsPath(path) {
		return "route_not_found"
	}
	return "not_a_status_path"
}
