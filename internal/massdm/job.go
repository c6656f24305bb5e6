package massdm

import (
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"massdm_panel/internal/discord"
)

// Mode 群发目标模式
type Mode string

const (
	// ModeAll 发送给全部非机器人成员
	ModeAll Mode = "all"
	// ModeRoles 仅发送给持有任一指定身份组的成员
	ModeRoles Mode = "roles"
)

// 延迟参数边界（秒）
const (
	defaultDelaySeconds = 2.0
	maxDelaySeconds     = 30.0
)

// JobRequest 面板提交的群发任务原始载荷
type JobRequest struct {
	BotToken        string   `json:"botToken"`
	GuildID         string   `json:"guildId"`
	Message         string   `json:"message"`
	Mode            string   `json:"mode"`
	RoleIDs         []string `json:"roleIds"`
	Delay           *float64 `json:"delay"`
	StatusChannelID string   `json:"statusChannelId"`
}

// Job 校验归一化后的任务描述，任务生命周期内不可变
type Job struct {
	BotToken        string
	GuildID         snowflake.ID
	Message         string
	Mode            Mode
	RoleIDs         []snowflake.ID
	Delay           time.Duration
	StatusChannelID snowflake.ID
}

// Job 校验并归一化请求
// 延迟缺省 2 秒、上限 30 秒，显式 0 表示不间隔；消息允许为空
func (r JobRequest) Job() (*Job, error) {
	job := &Job{
		BotToken: strings.TrimSpace(r.BotToken),
		Message:  r.Message,
	}

	if job.BotToken == "" {
		return nil, fmt.Errorf("botToken is required")
	}

	guildID, err := snowflake.Parse(strings.TrimSpace(r.GuildID))
	if err != nil || guildID == 0 {
		return nil, fmt.Errorf("guildId is invalid")
	}
	job.GuildID = guildID

	switch Mode(r.Mode) {
	case ModeAll:
		job.Mode = ModeAll
	case ModeRoles:
		job.Mode = ModeRoles
	default:
		return nil, fmt.Errorf("mode must be %q or %q", ModeAll, ModeRoles)
	}

	if job.Mode == ModeRoles {
		if len(r.RoleIDs) == 0 {
			return nil, fmt.Errorf("roleIds is required when mode is %q", ModeRoles)
		}
		for _, raw := range r.RoleIDs {
			id, err := snowflake.Parse(strings.TrimSpace(raw))
			if err != nil || id == 0 {
				return nil, fmt.Errorf("roleIds contains invalid id: %s", raw)
			}
			job.RoleIDs = append(job.RoleIDs, id)
		}
	}

	delay := defaultDelaySeconds
	if r.Delay != nil {
		delay = *r.Delay
		if delay < 0 {
			return nil, fmt.Errorf("delay must be >= 0")
		}
		if delay > maxDelaySeconds {
			delay = maxDelaySeconds
		}
	}
	job.Delay = time.Duration(delay * float64(time.Second))

	if raw := strings.TrimSpace(r.StatusChannelID); raw != "" {
		id, err := snowflake.Parse(raw)
		if err != nil || id == 0 {
			return nil, fmt.Errorf("statusChannelId is invalid")
		}
		job.StatusChannelID = id
	}

	return job, nil
}

// FilterMembers 按任务模式筛选收件人
// 机器人账号一律跳过；roles 模式下仅保留持有任一指定身份组的成员
func FilterMembers(members []discord.Member, mode Mode, roleIDs []snowflake.ID) []discord.Member {
	wanted := make(map[snowflake.ID]struct{}, len(roleIDs))
	for _, id := range roleIDs {
		wanted[id] = struct{}{}
	}

	targets := make([]discord.Member, 0, len(members))
	for _, m := range members {
		if m.User.Bot {
			continue
		}
		if mode == ModeRoles && !hasAnyRole(m, wanted) {
			continue
		}
		targets = append(targets, m)
	}
	return targets
}

func hasAnyRole(m discord.Member, wanted map[snowflake.ID]struct{}) bool {
	for _, id := range m.Roles {
		if _, ok := wanted[id]; ok {
			return true
		}
	}
	return false
}

// renderMessage 将模板中的 <user> 占位符替换为成员提及
func renderMessage(template string, userID snowflake.ID) string {
	return strings.ReplaceAll(template, "<user>", "<@"+userID.String()+">")
}
