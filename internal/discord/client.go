package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"golang.org/x/time/rate"

	"massdm_panel/internal/config"
)

// DefaultBaseURL Discord REST API v10 官方地址
const DefaultBaseURL = "https://discord.com/api/v10"

// Client 封装与 Discord REST API 的 HTTP 通讯，绑定单个 Bot Token
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option 自定义客户端行为
type Option func(*Client)

// WithHTTPClient 自定义 HTTP 客户端（测试时使用）
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBaseURL 覆盖 API 基础地址（测试或反向代理时使用）
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithLimiter 注入出站限速器（多个任务共享同一个预算时使用）
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		if l != nil {
			c.limiter = l
		}
	}
}

// NewClient 根据配置为单个 Bot Token 创建客户端
func NewClient(cfg config.DiscordConfig, token string, opts ...Option) (*Client, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("discord bot token is empty")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	maxRPS := cfg.MaxRPS
	if maxRPS <= 0 {
		maxRPS = 40
	}

	client := &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(maxRPS), maxRPS),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// CurrentUser 获取当前 Bot 用户，同时用于校验 Token 是否有效
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/users/@me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Guild 获取服务器概要（附带成员/在线人数估算）
func (c *Client) Guild(ctx context.Context, guildID snowflake.ID) (*Guild, error) {
	var guild Guild
	path := fmt.Sprintf("/guilds/%s?with_counts=true", guildID)
	if err := c.do(ctx, http.MethodGet, path, nil, &guild); err != nil {
		return nil, err
	}
	return &guild, nil
}

// Roles 获取服务器全部身份组
func (c *Client) Roles(ctx context.Context, guildID snowflake.ID) ([]Role, error) {
	var roles []Role
	path := fmt.Sprintf("/guilds/%s/roles", guildID)
	if err := c.do(ctx, http.MethodGet, path, nil, &roles); err != nil {
		return nil, err
	}
	return roles, nil
}

// GuildMembers 拉取一页服务器成员，after 为上一页最后一个用户 ID
func (c *Client) GuildMembers(ctx context.Context, guildID, after snowflake.ID, limit int) ([]Member, error) {
	var members []Member
	path := fmt.Sprintf("/guilds/%s/members?limit=%d&after=%s", guildID, limit, after)
	if err := c.do(ctx, http.MethodGet, path, nil, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// CreateDM 打开与指定用户的私信频道
func (c *Client) CreateDM(ctx context.Context, userID snowflake.ID) (*Channel, error) {
	payload := map[string]string{"recipient_id": userID.String()}
	var channel Channel
	if err := c.do(ctx, http.MethodPost, "/users/@me/channels", payload, &channel); err != nil {
		return nil, err
	}
	return &channel, nil
}

// CreateMessage 向频道发送消息
func (c *Client) CreateMessage(ctx context.Context, channelID snowflake.ID, payload MessagePayload) (*Message, error) {
	var msg Message
	path := fmt.Sprintf("/channels/%s/messages", channelID)
	if err := c.do(ctx, http.MethodPost, path, payload, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// EditMessage 编辑已发送的消息
func (c *Client) EditMessage(ctx context.Context, channelID, messageID snowflake.ID, payload MessagePayload) (*Message, error) {
	var msg Message
	path := fmt.Sprintf("/channels/%s/messages/%s", channelID, messageID)
	if err := c.do(ctx, http.MethodPatch, path, payload, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// do 执行一次 REST 调用，并把 2xx 响应解析到 out
// 429 返回 *RateLimitError，其余非 2xx 返回 *APIError
func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request body failed: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("User-Agent", "DiscordBot (massdm_panel, 1.0)")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request discord api failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read discord response failed: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return parseRateLimit(resp, body)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(resp.StatusCode, body)
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode discord response failed: %w", err)
		}
	}

	return nil
}

// parseRateLimit 解析 429 响应
// 优先取响应体的 retry_after（秒，可能带小数），缺失时回退 Retry-After 头
func parseRateLimit(resp *http.Response, body []byte) *RateLimitError {
	var rl struct {
		Message    string  `json:"message"`
		RetryAfter float64 `json:"retry_after"`
		Global     bool    `json:"global"`
	}

	wait := 0.0
	if json.Unmarshal(body, &rl) == nil && rl.RetryAfter > 0 {
		wait = rl.RetryAfter
	} else if ra := resp.Header.Get("Retry-After"); ra != "" {
		if parsed, err := strconv.ParseFloat(ra, 64); err == nil && parsed > 0 {
			wait = parsed
		}
	}
	if wait <= 0 {
		wait = 1.0
	}

	return &RateLimitError{
		RetryAfter: time.Duration(wait*1000) * time.Millisecond,
		Global:     rl.Global,
	}
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}

	var payload struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		apiErr.Code = payload.Code
		apiErr.Message = payload.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = truncate(string(body), 256)
	}

	return apiErr
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
