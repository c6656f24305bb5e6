package massdm

import (
	"context"
	"fmt"
	"strings"

	"github.com/disgoorg/snowflake/v2"

	"massdm_panel/internal/discord"
	"massdm_panel/internal/logger"
)

// 进度卡片样式
const (
	progressBarCells = 20
	colorBlue        = 0x3498DB
	colorGreen       = 0x2ECC71
)

// statusReporter 维护状态频道里的进度消息：创建一次，之后原地编辑
// 任何失败只记日志并停用后续更新，不影响群发主流程
type statusReporter struct {
	api       DiscordAPI
	channelID snowflake.ID
	messageID snowflake.ID
	disabled  bool
}

func newStatusReporter(api DiscordAPI, channelID snowflake.ID) *statusReporter {
	return &statusReporter{
		api:       api,
		channelID: channelID,
		disabled:  channelID == 0,
	}
}

// start 发送初始进度消息并记住其 ID
func (s *statusReporter) start(ctx context.Context, c Counters) {
	if s.disabled {
		return
	}

	msg, err := s.api.CreateMessage(ctx, s.channelID, discord.MessagePayload{
		Embeds: []discord.Embed{progressEmbed(c, "Mass DM Started", false)},
	})
	if err != nil {
		logger.L().Warnf("Status message create failed, updates disabled: channel_id=%s, err=%v", s.channelID, err)
		s.disabled = true
		return
	}
	s.messageID = msg.ID
}

// update 原地编辑进度消息，done 为 true 时切换为完成样式
func (s *statusReporter) update(ctx context.Context, c Counters, done bool) {
	if s.disabled || s.messageID == 0 {
		return
	}

	title := "Mass DM In Progress..."
	if done {
		title = "Mass DM Complete!"
	}

	_, err := s.api.EditMessage(ctx, s.channelID, s.messageID, discord.MessagePayload{
		Embeds: []discord.Embed{progressEmbed(c, title, done)},
	})
	if err != nil {
		logger.L().Warnf("Status message edit failed: channel_id=%s, message_id=%s, err=%v",
			s.channelID, s.messageID, err)
	}
}

// progressEmbed 构造进度卡片：20 格进度条、百分比与各项计数
func progressEmbed(c Counters, title string, done bool) discord.Embed {
	pct := 0
	if c.Total > 0 {
		pct = c.Processed() * 100 / c.Total
	}
	filled := pct / 5
	bar := strings.Repeat("█", filled) + strings.Repeat("░", progressBarCells-filled)

	icon := "📨"
	color := colorBlue
	if done {
		icon = "✅"
		color = colorGreen
	}

	return discord.Embed{
		Title: fmt.Sprintf("%s %s", icon, title),
		Color: color,
		Fields: []discord.EmbedField{
			{
				Name:  "Progress",
				Value: fmt.Sprintf("`%s` %d%% (%d/%d)", bar, pct, c.Processed(), c.Total),
			},
			{Name: "Sent", Value: fmt.Sprintf("```\n%d\n```", c.Sent), Inline: true},
			{Name: "Failed", Value: fmt.Sprintf("```\n%d\n```", c.Failed), Inline: true},
			{Name: "DM Closed", Value: fmt.Sprintf("```\n%d\n```", c.DMClosed), Inline: true},
		},
		Footer: &discord.EmbedFooter{Text: "Discord Mass DM Panel"},
	}
}
