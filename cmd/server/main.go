package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/fiberspec/internal/api"
	"github.com/wfunc/fiberspec/internal/config"
	"github.com/wfunc/fiberspec/internal/database"
	"github.com/wfunc/fiberspec/internal/errors"
	"github.com/wfunc/fiberspec/internal/logger"
	"github.com/wfunc/fiberspec/internal/middleware"
	"github.com/wfunc/fiberspec/internal/service"
	"github.com/wfunc/fiberspec/internal/utils"
	"github.com/wfunc/fiberspec/internal/websocket"
	"go.uber.org/zap"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Server 服务器实例
type Server struct {
	cfg      *config.Config
	logger   *zap.Logger
	services *service.Services
	hub      *websocket.Hub
	http     *http.Server
	errCh    chan error
	cancel   context.CancelFunc
}

func main() {
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		showVersion = flag.Bool("version", false, "显示版本信息")
		issueToken  = flag.String("issue-token", "", "为指定操作员签发令牌后退出")
	)
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	// 加载配置
	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()

	if *issueToken != "" {
		if err := printToken(cfg, *issueToken); err != nil {
			fmt.Printf("签发令牌失败: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	// 初始化日志系统
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Cleanup()

	server := NewServer(cfg)
	if err := server.Start(); err != nil {
		logger.GetLogger().Error("Server failed to start", zap.Error(err))
		server.Shutdown()
		logger.Cleanup()
		os.Exit(1)
	}

	server.WaitForShutdown()
	server.Shutdown()
	logger.GetLogger().Info("Server stopped")
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger.GetLogger(),
		errCh:  make(chan error, 1),
	}
}

// Start 启动服务器
func (s *Server) Start() error {
	s.logger.Info("Starting fiber spectrograph server",
		zap.String("version", Version),
		zap.String("band", s.cfg.Spectrograph.Band),
		zap.Bool("simulate", s.cfg.Spectrograph.Simulate),
	)

	if err := s.initDatabase(); err != nil {
		return err
	}

	s.services = service.NewServices(database.GetDB(), s.cfg, logger.GetModuleLogger("spectrograph"))

	hubCtx, hubCancel := context.WithCancel(context.Background())
	s.cancel = hubCancel
	s.hub = websocket.NewHub(logger.GetModuleLogger("websocket"))
	go s.hub.Run(hubCtx)
	s.services.Spectrograph.SetEventPublisher(s.hub)

	// 连接失败时仍对外提供服务，故障通过 /health 与 /state 暴露
	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.services.Spectrograph.Start(startCtx); err != nil {
		s.logger.Error("Spectrograph unavailable, serving in degraded mode", zap.Error(err))
	}

	s.startHTTP()

	config.Watch(func(newCfg *config.Config) {
		logger.SetLevel(newCfg.Log.Level)
		s.logger.Info("Configuration reloaded", zap.String("log_level", logger.Level()))
	})
	return nil
}

// initDatabase 初始化数据库
func (s *Server) initDatabase() error {
	if err := database.Init(&s.cfg.Database); err != nil {
		return errors.Wrap(err, errors.ErrDatabaseConnect)
	}
	if s.cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(); err != nil {
			return errors.Wrap(err, errors.ErrDatabaseConnect, "migration failed")
		}
	}
	return nil
}

// startHTTP 启动HTTP服务
func (s *Server) startHTTP() {
	gin.SetMode(ginMode(s.cfg.Server.Mode))

	var jwtManager *utils.JWTManager
	if s.cfg.Security.JWT.Secret != "" {
		jwtManager = utils.NewJWTManager(s.cfg.Security.JWT.Secret, tokenExpiry(s.cfg))
	} else {
		s.logger.Warn("JWT secret not set, exposure commands are unauthenticated")
	}

	router := api.NewRouter(database.GetDB(), s.services, middleware.NewAuthMiddleware(jwtManager), s.hub, s.logger)
	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:      router.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			s.errCh <- err
		}
	}()
}

// WaitForShutdown 等待退出信号或HTTP服务异常
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		s.logger.Info("Received signal", zap.String("signal", sig.String()))
	case err := <-s.errCh:
		s.logger.Error("HTTP server failed", zap.Error(err))
	}
}

// Shutdown 优雅关闭：停止接收请求，取消曝光并断开光谱仪，最后关闭数据库
func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	// 先断开设备，阻塞中的曝光请求随之返回
	if s.services != nil {
		s.services.Spectrograph.Stop()
	}

	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			s.logger.Warn("HTTP shutdown incomplete", zap.Error(err))
		}
	}

	// 关闭事件订阅连接
	if s.cancel != nil {
		s.cancel()
	}

	if err := database.Close(); err != nil {
		s.logger.Error("Failed to close database", zap.Error(err))
	}
}

// ginMode 运行模式映射到 gin 模式
func ginMode(mode string) string {
	switch mode {
	case "production", gin.ReleaseMode:
		return gin.ReleaseMode
	case gin.TestMode:
		return gin.TestMode
	default:
		return gin.DebugMode
	}
}

func tokenExpiry(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Security.JWT.ExpireHours) * time.Hour
}

// printToken 签发操作员令牌
func printToken(cfg *config.Config, operator string) error {
	if cfg.Security.JWT.Secret == "" {
		return fmt.Errorf("security.jwt.secret is not configured")
	}
	token, err := utils.NewJWTManager(cfg.Security.JWT.Secret, tokenExpiry(cfg)).GenerateToken(operator)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("光纤光谱仪控制服务\n")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
