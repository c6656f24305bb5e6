package server

import (
	"net/http"
	"strings"

	"github.com/disgoorg/snowflake/v2"
	"github.com/labstack/echo/v4"

	"massdm_panel/internal/discord"
	"massdm_panel/internal/logger"
)

// connectRequest 面板连接请求
type connectRequest struct {
	BotToken string `json:"botToken"`
	GuildID  string `json:"guildId"`
}

// guildResponse 服务器概要响应
type guildResponse struct {
	ID                       string `json:"id"`
	Name                     string `json:"name"`
	Icon                     string `json:"icon,omitempty"`
	ApproximateMemberCount   int    `json:"approximateMemberCount"`
	ApproximatePresenceCount int    `json:"approximatePresenceCount"`
}

// handleConnect 校验 Bot Token 并返回目标服务器概要
func (s *Server) handleConnect(c echo.Context) error {
	var req connectRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}

	guildID, err := snowflake.Parse(strings.TrimSpace(req.GuildID))
	if err != nil || guildID == 0 {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "guildId is invalid"})
	}

	client, err := s.newClient(req.BotToken)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	ctx := c.Request().Context()

	bot, err := client.CurrentUser(ctx)
	if err != nil {
		if discord.IsUnauthorized(err) {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: "invalid bot token"})
		}
		logger.L().Errorf("Token validation failed: err=%v", err)
		return c.JSON(http.StatusBadGateway, errorResponse{Error: "failed to reach discord"})
	}

	guild, err := client.Guild(ctx, guildID)
	if err != nil {
		if discord.IsNotFound(err) || discord.IsForbidden(err) {
			return c.JSON(http.StatusNotFound, errorResponse{Error: "guild not found or bot not in guild"})
		}
		logger.L().Errorf("Guild fetch failed: guild_id=%s, err=%v", guildID, err)
		return c.JSON(http.StatusBadGateway, errorResponse{Error: "failed to reach discord"})
	}

	logger.L().Infof("Panel connected: bot=%s, guild_id=%s, approx_members=%d",
		bot.Username, guild.ID, guild.ApproximateMemberCount)

	return c.JSON(http.StatusOK, guildResponse{
		ID:                       guild.ID.String(),
		Name:                     guild.Name,
		Icon:                     guild.Icon,
		ApproximateMemberCount:   guild.ApproximateMemberCount,
		ApproximatePresenceCount: guild.ApproximatePresenceCount,
	})
}
