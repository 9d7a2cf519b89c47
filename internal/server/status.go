package server

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/sirupsen/logrus"

	"github.com/indexfs/indexfs/internal/indexfs"
	"github.com/indexfs/indexfs/internal/metrics"
)

// StatusSource 提供状态页所需的文件系统快照，由 *indexfs.FileSystem 实现。
type StatusSource interface {
	Stats() indexfs.Stats
	Purge() int
	TTL() time.Duration
}

type statusPayload struct {
	Version    string        `json:"version"`
	Origin     string        `json:"origin"`
	TTLSeconds float64       `json:"ttl_seconds"`
	Stats      indexfs.Stats `json:"stats"`
}

func registerStatusRoutes(app *fiber.App, opts AppOptions) {
	app.Get("/-/status", func(c fiber.Ctx) error {
		return c.JSON(statusPayload{
			Version:    opts.Version,
			Origin:     opts.Origin,
			TTLSeconds: opts.Source.TTL().Seconds(),
			Stats:      opts.Source.Stats(),
		})
	})

	app.Get("/-/metrics", adaptor.HTTPHandler(metrics.Handler()))

	app.Post("/-/purge", func(c fiber.Ctx) error {
		removed := opts.Source.Purge()
		opts.Logger.WithFields(logrus.Fields{
			"action":     "cache_purge",
			"removed":    removed,
			"request_id": RequestID(c),
		}).Info("expired cache entries purged")
		return c.JSON(fiber.Map{"removed": removed})
	})
}
