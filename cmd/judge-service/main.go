package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	commonmw "coderush/internal/common/http/middleware"
	"coderush/internal/judge/controller"
	"coderush/internal/judge/exercise"
	"coderush/internal/judge/repository"
	"coderush/internal/judge/sandbox"
	"coderush/internal/judge/sandbox/compiler"
	"coderush/internal/judge/sandbox/config"
	"coderush/internal/judge/sandbox/engine"
	"coderush/internal/judge/sandbox/observer"
	"coderush/internal/judge/sandbox/runner"
	"coderush/internal/judge/service"
	"coderush/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/judge_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(appCfg); err != nil {
		logger.Error(context.Background(), "judge service exited", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(appCfg *AppConfig) error {
	ctx := context.Background()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observer.NewPrometheusRecorder(registry)

	localRepo := config.NewLocalRepository(appCfg.Language.Languages, appCfg.Language.Profiles)
	eng, err := engine.NewEngine(appCfg.Sandbox, localRepo)
	if err != nil {
		return fmt.Errorf("init sandbox engine: %w", err)
	}
	comp := compiler.NewCompilerWithObserver(eng, localRepo, appCfg.Judge.WorkRoot, metrics)
	jobRunner := runner.NewRunnerWithObserver(eng, localRepo, appCfg.Judge.WorkRoot, metrics)
	validator := sandbox.NewValidator(comp, jobRunner)
	validator.SetMetricsRecorder(metrics)
	validator.SetCaseParallelism(appCfg.Judge.CaseParallelism)

	catalog, err := exercise.NewStaticCatalog(appCfg.Exercises)
	if err != nil {
		return fmt.Errorf("init exercise catalog: %w", err)
	}
	statusRepo, err := repository.NewStatusRepository(appCfg.Status.TTL)
	if err != nil {
		return fmt.Errorf("init status repository: %w", err)
	}
	judgeSvc, err := service.NewService(service.Config{
		Validator:       validator,
		Catalog:         catalog,
		StatusRepo:      statusRepo,
		DefaultLanguage: appCfg.Judge.DefaultLanguage,
		DefaultExercise: appCfg.Judge.DefaultExercise,
		MaxSourceBytes:  appCfg.Judge.MaxSourceBytes,
		MaxInFlight:     appCfg.Judge.MaxInFlight,
		QueueWait:       appCfg.Judge.QueueWait,
		TimeLimit:       appCfg.Judge.TimeLimit,
		SubmitTimeout:   appCfg.Judge.SubmitTimeout,
		StatusTimeout:   appCfg.Status.Timeout,
	})
	if err != nil {
		return fmt.Errorf("init judge service: %w", err)
	}
	validator.SetStatusReporter(sandbox.MultiStatusReporter{sandbox.LogStatusReporter{}, judgeSvc})

	logger.Info(ctx, "judge configured",
		zap.Strings("languages", localRepo.LanguageIDs()),
		zap.Int("exercises", len(catalog.List(ctx))),
		zap.Int("max_in_flight", appCfg.Judge.MaxInFlight),
		zap.Bool("helper", appCfg.Sandbox.HelperPath != ""),
		zap.Bool("cgroup", appCfg.Sandbox.EnableCgroup),
	)

	judgeCtl := controller.NewJudgeController(judgeSvc, appCfg.Judge.ExposeWarnings)
	servers := []*http.Server{
		buildHTTPServer(appCfg, appCfg.Server.Addr, func(r gin.IRouter) {
			r.GET(appCfg.Server.MetricsPath, gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
			judgeCtl.Register(r)
		}),
		buildHTTPServer(appCfg, appCfg.Server.AdminAddr, judgeCtl.RegisterAdmin),
	}
	listeners := make([]net.Listener, 0, len(servers))
	for _, srv := range servers {
		listener, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			for _, l := range listeners {
				_ = l.Close()
			}
			return fmt.Errorf("init http listener %s: %w", srv.Addr, err)
		}
		listeners = append(listeners, listener)
	}

	errCh := make(chan error, len(servers))
	for i, srv := range servers {
		go func(srv *http.Server, listener net.Listener) {
			logger.Info(ctx, "judge http server started", zap.String("addr", srv.Addr))
			errCh <- srv.Serve(listener)
		}(srv, listeners[i])
	}

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var serveErr error
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("http server stopped: %w", err)
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, defaultShutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(timeoutCtx); err != nil {
			logger.Error(ctx, "http server shutdown failed", zap.String("addr", srv.Addr), zap.Error(err))
		}
	}
	return serveErr
}

func buildHTTPServer(cfg *AppConfig, addr string, mount func(gin.IRouter)) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(commonmw.RequestLogger())
	mount(router)

	return &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}
