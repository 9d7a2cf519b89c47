package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/indexfs/indexfs/internal/config"
	"github.com/indexfs/indexfs/internal/indexfs"
	"github.com/indexfs/indexfs/internal/logging"
	"github.com/indexfs/indexfs/internal/mount"
	"github.com/indexfs/indexfs/internal/server"
	"github.com/indexfs/indexfs/internal/upstream"
	"github.com/indexfs/indexfs/internal/version"
)

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		os.Exit(parseErrorExit(err))
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath,
		config.WithMount(opts.origin, opts.mountPoint),
		config.WithVerbose(opts.verbose),
		config.WithForeground(opts.foreground),
	)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["origin"] = cfg.Mount.Origin
		fields["mountpoint"] = cfg.Mount.MountPoint
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	if !cfg.Mount.Foreground {
		pid, err := startDetached(opts.args)
		if err != nil {
			fields := logging.BaseFields("daemonize", opts.configPath)
			fields["pid"] = pid
			logger.WithFields(fields).WithError(err).Error("后台挂载失败")
			fmt.Fprintf(stdErr, "后台挂载失败: %v\n", err)
			return 1
		}
		fields := logging.BaseFields("daemonize", opts.configPath)
		fields["pid"] = pid
		logger.WithFields(fields).Info("已转入后台运行")
		return 0
	}

	notify := readyNotifier()
	if err := serve(cfg, opts.configPath, logger, func() { notify(nil) }); err != nil {
		notify(err)
		logger.WithFields(logging.BaseFields("serve", opts.configPath)).WithError(err).Error("挂载失败")
		fmt.Fprintf(stdErr, "挂载失败: %v\n", err)
		return 1
	}
	return 0
}

// serve 按“配置 → upstream 客户端 → FileSystem → FUSE 挂载 → 状态服务”顺序启动，
// 挂载与状态服务就绪后调用 ready，收到 SIGINT/SIGTERM 后卸载并返回。
func serve(cfg *config.Config, configPath string, logger *logrus.Logger, ready func()) error {
	client, err := upstream.NewClient(upstream.Options{
		Origin:         cfg.Mount.Origin,
		Timeout:        cfg.Global.UpstreamTimeout.DurationValue(),
		MaxRedirects:   cfg.Global.MaxRedirects,
		MaxConnections: cfg.Global.MaxConnections,
		UserAgent:      userAgent(cfg),
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	fsys, err := indexfs.New(indexfs.Options{
		Client:   client,
		TTL:      cfg.Global.CacheTTL.DurationValue(),
		Coalesce: cfg.Global.CoalesceMisses,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	fuseServer, err := mount.Mount(cfg.Mount.MountPoint, fsys, mount.Options{
		Source:     cfg.Mount.Origin,
		AllowOther: cfg.Mount.AllowOther,
		Debug:      cfg.Mount.FuseDebug,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	fields := logging.BaseFields("startup", configPath)
	fields["origin"] = cfg.Mount.Origin
	fields["mountpoint"] = cfg.Mount.MountPoint
	fields["cache_ttl"] = cfg.Global.CacheTTL.DurationValue().String()
	fields["max_connections"] = cfg.Global.MaxConnections
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("文件系统已挂载")

	app, err := startStatusServer(cfg, fsys, logger)
	if err != nil {
		_ = fuseServer.Unmount()
		return err
	}

	ready()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		if err := fuseServer.Unmount(); err != nil {
			logger.WithField("action", "unmount").WithError(err).Warn("卸载失败")
		}
	}()

	fuseServer.Wait()
	stop()

	if app != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = app.ShutdownWithContext(shutdownCtx)
	}
	logger.WithFields(logging.BaseFields("shutdown", configPath)).Info("文件系统已卸载")
	return nil
}

// startStatusServer 在配置了 StatusListen 时后台启动 Fiber 状态服务。
func startStatusServer(cfg *config.Config, fsys *indexfs.FileSystem, logger *logrus.Logger) (*fiber.App, error) {
	if cfg.Global.StatusListen == "" {
		return nil, nil
	}
	app, err := server.NewApp(server.AppOptions{
		Logger:  logger,
		Source:  fsys,
		Origin:  cfg.Mount.Origin,
		Version: version.Full(),
	})
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"addr":   cfg.Global.StatusListen,
	}).Info("状态服务启动")

	go func() {
		if err := app.Listen(cfg.Global.StatusListen, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
			logger.WithField("action", "listen").WithError(err).Error("状态服务退出")
		}
	}()
	return app, nil
}

func userAgent(cfg *config.Config) string {
	if cfg.Global.UserAgent != "" {
		return cfg.Global.UserAgent
	}
	return "indexfs/" + version.Version
}
