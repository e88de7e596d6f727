// server/server.go

package server

import (
	"context"
	"fmt"
	"net/http"

	"backend/internal/logger"

	"github.com/gin-gonic/gin"
)

// Server HTTP 服务封装，支持优雅停机
type Server struct {
	router *gin.Engine
	srv    *http.Server
}

// New 用已组装好的路由创建服务
func New(router *gin.Engine) *Server {
	return &Server{router: router}
}

// Start 启动监听，阻塞直到服务退出
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.srv = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	logger.Info("HTTP 服务启动 %s", addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop 优雅停机
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
