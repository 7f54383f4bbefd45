// Package http 提供HTTP服务器功能
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"finedu/config"
	"finedu/logger"
	"finedu/monitoring"
)

// Routes 注册一组路由
type Routes interface {
	Register(mux *http.ServeMux)
}

// Server HTTP服务器
type Server struct {
	server  *http.Server
	handler http.Handler
	log     *zap.Logger
}

// NewServer 创建HTTP服务器，metrics可为nil
func NewServer(cfg config.HTTP, log *zap.Logger, metrics *monitoring.MetricsCollector, routes ...Routes) *Server {
	log = logger.OrNop(log)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	for _, r := range routes {
		r.Register(mux)
	}

	// 创建中间件链
	chain := Chain(
		RecoveryMiddleware(log),            // 1. 恢复中间件（最先执行，捕获panic）
		LoggerMiddleware(log),              // 2. 日志中间件
		MetricsMiddleware(metrics),         //    请求计数
		SecurityHeadersMiddleware,          // 3. 安全头中间件
		CORSMiddleware(cfg.AllowedOrigins), // 4. CORS中间件
		TimeoutMiddleware(cfg.Timeout),     // 5. 超时中间件
		RequestSizeMiddleware(1<<20),       // 6. 请求体大小限制
	)
	handler := chain(mux)

	port := cfg.Port
	if port == 0 {
		port = 8080
	}
	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		handler: handler,
		log:     log,
	}
}

// Handler 返回带中间件的处理器，测试使用
func (s *Server) Handler() http.Handler { return s.handler }

// Start 启动服务器，阻塞直到关闭
func (s *Server) Start() error {
	s.log.Info("starting http server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop 停止服务器
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	s.log.Info("shutting down http server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// Addr 返回服务器地址
func (s *Server) Addr() string {
	return s.server.Addr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
