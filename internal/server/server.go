package server

import (
	"context"
	"net/http"

	"github.com/disgoorg/snowflake/v2"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"massdm_panel/internal/config"
	"massdm_panel/internal/discord"
	"massdm_panel/internal/massdm"
)

// PanelAPI 路由层需要的 Discord 客户端能力
type PanelAPI interface {
	massdm.DiscordAPI

	// CurrentUser 获取当前 Bot 用户
	CurrentUser(ctx context.Context) (*discord.User, error)

	// Guild 获取服务器概要
	Guild(ctx context.Context, guildID snowflake.ID) (*discord.Guild, error)

	// Roles 获取服务器全部身份组
	Roles(ctx context.Context, guildID snowflake.ID) ([]discord.Role, error)
}

// ClientFactory 按 Bot Token 构造 Discord 客户端
// Token 随每个请求提交，客户端因此按请求创建
type ClientFactory func(token string) (PanelAPI, error)

// Server 群发控制面板 HTTP 服务
type Server struct {
	echo      *echo.Echo
	cfg       *config.Config
	newClient ClientFactory
}

// Option 自定义服务行为
type Option func(*Server)

// WithClientFactory 覆盖 Discord 客户端工厂（测试时使用）
func WithClientFactory(factory ClientFactory) Option {
	return func(s *Server) {
		if factory != nil {
			s.newClient = factory
		}
	}
}

// errorResponse 统一错误响应体
type errorResponse struct {
	Error string `json:"error"`
}

// New 创建面板服务：注册中间件与路由
// 所有请求级客户端共享同一个出站限速器
func New(cfg *config.Config, opts ...Option) *Server {
	s := &Server{cfg: cfg}

	maxRPS := cfg.Discord.MaxRPS
	if maxRPS <= 0 {
		maxRPS = 40
	}
	limiter := rate.NewLimiter(rate.Limit(maxRPS), maxRPS)

	s.newClient = func(token string) (PanelAPI, error) {
		return discord.NewClient(cfg.Discord, token, discord.WithLimiter(limiter))
	}

	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit("1M"))

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	api := e.Group("/api")
	api.POST("/connect", s.handleConnect)
	api.POST("/roles", s.handleRoles)
	api.POST("/send", s.handleSend)

	s.echo = e
	return s
}

// Handler 返回底层 http.Handler
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start 在配置的端口上监听并阻塞
func (s *Server) Start() error {
	return s.echo.Start(":" + s.cfg.Port)
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
