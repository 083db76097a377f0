package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/media-relay/media-relay/internal/cache"
	"github.com/media-relay/media-relay/internal/config"
	"github.com/media-relay/media-relay/internal/fetcher"
	"github.com/media-relay/media-relay/internal/logging"
	"github.com/media-relay/media-relay/internal/relay"
	"github.com/media-relay/media-relay/internal/resolver"
	"github.com/media-relay/media-relay/internal/server"
	"github.com/media-relay/media-relay/internal/server/routes"
	"github.com/media-relay/media-relay/internal/version"
)

const (
	defaultConfigPath = "config.toml"
	shutdownTimeout   = 10 * time.Second
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
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
		fields["resolver_host"] = cfg.Resolver.ResolverHost()
		fields["storage_path"] = cfg.Global.StoragePath
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	application, err := newApplication(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化服务失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["storage_path"] = cfg.Global.StoragePath
	fields["resolver_host"] = cfg.Resolver.ResolverHost()
	fields["cache_ttl"] = relay.FormatTTL(cfg.Global.CacheTTL.DurationValue())
	fields["size_threshold"] = relay.FormatSize(cfg.Global.SizeThreshold)
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.serve(ctx, cfg.Global.ListenPort); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务异常退出: %v\n", err)
		return 1
	}
	logger.WithField("action", "shutdown").Info("服务已退出")
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
// 未显式指定且默认 config.toml 不存在时返回空路径，仅使用默认值与环境变量。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("media-relay", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 MEDIA_RELAY_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("MEDIA_RELAY_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			path = defaultConfigPath
		}
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

// application 持有一次运行所需的全部组件。
type application struct {
	app     *fiber.App
	store   cache.Store
	sweeper *cache.Sweeper
	logger  *logrus.Logger
	// cancelRequests 取消所有进行中请求的上下文，关闭时先于 Fiber Shutdown 调用。
	cancelRequests context.CancelFunc
}

// newApplication 按“缓存目录 → 上游客户端 → 解析/下载 → 编排 → Fiber 路由”顺序装配服务。
func newApplication(cfg *config.Config, logger *logrus.Logger) (*application, error) {
	store, err := cache.NewStore(cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("初始化缓存目录失败: %w", err)
	}

	httpClient := server.NewUpstreamClient(cfg)
	resolverClient, err := resolver.New(httpClient, resolver.Options{
		ServiceURL:     cfg.Resolver.ServiceURL,
		APIPath:        cfg.Resolver.APIPath,
		TokenElementID: cfg.Resolver.TokenElementID,
		Timeout:        cfg.Resolver.Timeout.DurationValue(),
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化解析客户端失败: %w", err)
	}
	assetFetcher := fetcher.New(httpClient, fetcher.Options{
		ProbeTimeout: cfg.Global.ProbeTimeout.DurationValue(),
		FetchTimeout: cfg.Global.UpstreamTimeout.DurationValue(),
		Logger:       logger,
	})

	policy := cfg.CachePolicy()
	sweeper := cache.NewSweeper(store, policy.TTL, cfg.Global.SweepInterval.DurationValue(), logger)

	service, err := relay.NewService(relay.Options{
		Resolver: resolverClient,
		Fetcher:  assetFetcher,
		Store:    store,
		Policy:   policy,
		Sweeper:  sweeper,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	requestCtx, cancelRequests := context.WithCancel(context.Background())
	app, err := server.NewApp(server.AppOptions{Logger: logger, BaseContext: requestCtx})
	if err != nil {
		cancelRequests()
		return nil, err
	}
	routes.RegisterDiagnosticsRoutes(app, store, policy)
	routes.RegisterDownloadRoutes(app, routes.DownloadOptions{
		Retriever:     service,
		Logger:        logger,
		PublicBaseURL: cfg.Global.PublicBaseURL,
		RateLimit:     cfg.Global.DownloadRateLimit,
	})
	routes.RegisterAssetRoutes(app, store, policy, logger)
	routes.RegisterPublicRoutes(app, cfg.Global.PublicDir)

	return &application{
		app:            app,
		store:          store,
		sweeper:        sweeper,
		logger:         logger,
		cancelRequests: cancelRequests,
	}, nil
}

// serve 在同一个 errgroup 中运行 HTTP 服务与后台回收，ctx 结束后优雅关闭。
func (a *application) serve(ctx context.Context, port int) error {
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return a.sweeper.Run(groupCtx)
	})

	group.Go(func() error {
		a.logger.WithFields(logrus.Fields{
			"action": "listen",
			"port":   port,
		}).Info("Fiber 服务启动")
		return a.app.Listen(fmt.Sprintf(":%d", port), fiber.ListenConfig{DisableStartupMessage: true})
	})

	group.Go(func() error {
		<-groupCtx.Done()
		// 先中止进行中的检索，未完成的临时文件随之清理。
		a.cancelRequests()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("关闭 HTTP 服务失败: %w", err)
		}
		return nil
	})

	return group.Wait()
}
