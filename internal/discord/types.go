package discord

import (
	"github.com/disgoorg/snowflake/v2"
)

// User Discord 用户对象（仅保留本服务用到的字段）
type User struct {
	ID         snowflake.ID `json:"id"`
	Username   string       `json:"username"`
	GlobalName string       `json:"global_name"`
	Bot        bool         `json:"bot"`
}

// Member 服务器成员对象
type Member struct {
	User  User           `json:"user"`
	Nick  string         `json:"nick"`
	Roles []snowflake.ID `json:"roles"`
}

// DisplayName 返回成员展示名：昵称 > 全局名 > 用户名
func (m Member) DisplayName() string {
	if m.Nick != "" {
		return m.Nick
	}
	if m.User.GlobalName != "" {
		return m.User.GlobalName
	}
	return m.User.Username
}

// Guild 服务器概要（with_counts=true 时附带人数估算）
type Guild struct {
	ID                       snowflake.ID `json:"id"`
	Name                     string       `json:"name"`
	Icon                     string       `json:"icon"`
	ApproximateMemberCount   int          `json:"approximate_member_count"`
	ApproximatePresenceCount int          `json:"approximate_presence_count"`
}

// Role 服务器身份组
type Role struct {
	ID       snowflake.ID `json:"id"`
	Name     string       `json:"name"`
	Color    int          `json:"color"`
	Position int          `json:"position"`
	Managed  bool         `json:"managed"`
}

// Channel 频道对象（私信发送只需要 ID）
type Channel struct {
	ID snowflake.ID `json:"id"`
}

// Message 已创建的消息
type Message struct {
	ID        snowflake.ID `json:"id"`
	ChannelID snowflake.ID `json:"channel_id"`
}

// MessagePayload 创建/编辑消息的请求体
type MessagePayload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

// Embed 消息内嵌卡片
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
}

// EmbedField 内嵌卡片字段
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// EmbedFooter 内嵌卡片页脚
type EmbedFooter struct {
	Text string `json:"text"`
}
