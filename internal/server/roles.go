package server

import (
	"net/http"
	"sort"
	"strings"

	"github.com/disgoorg/snowflake/v2"
	"github.com/labstack/echo/v4"

	"massdm_panel/internal/discord"
	"massdm_panel/internal/logger"
)

// roleResponse 可选身份组
type roleResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Color    int    `json:"color"`
	Position int    `json:"position"`
}

// handleRoles 返回可作为群发目标的身份组
// 过滤 @everyone 与托管身份组，按位置从高到低排序
func (s *Server) handleRoles(c echo.Context) error {
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

	roles, err := client.Roles(c.Request().Context(), guildID)
	if err != nil {
		if discord.IsUnauthorized(err) {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: "invalid bot token"})
		}
		if discord.IsNotFound(err) || discord.IsForbidden(err) {
			return c.JSON(http.StatusNotFound, errorResponse{Error: "guild not found or bot not in guild"})
		}
		logger.L().Errorf("Role fetch failed: guild_id=%s, err=%v", guildID, err)
		return c.JSON(http.StatusBadGateway, errorResponse{Error: "failed to reach discord"})
	}

	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		if role.Name == "@everyone" || role.Managed {
			continue
		}
		out = append(out, roleResponse{
			ID:       role.ID.String(),
			Name:     role.Name,
			Color:    role.Color,
			Position: role.Position,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Position > out[j].Position })

	return c.JSON(http.StatusOK, out)
}
