package discord

import (
	"context"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"massdm_panel/internal/logger"
)

// memberPageLimit 单页成员数上限（Discord 允许的最大值）
const memberPageLimit = 1000

// ListAllMembers 以游标分页拉取服务器全部成员
// 按用户 ID 去重；遇到限流时等待服务端指示的时长后用同一游标重试，
// 短页或空页即为最后一页
func (c *Client) ListAllMembers(ctx context.Context, guildID snowflake.ID) ([]Member, error) {
	var (
		members []Member
		after   snowflake.ID
	)
	seen := make(map[snowflake.ID]struct{})

	for {
		page, err := c.GuildMembers(ctx, guildID, after, memberPageLimit)
		if err != nil {
			if rl, ok := AsRateLimit(err); ok {
				logger.L().Warnf("Member page rate limited: guild_id=%s, after=%s, retry_after=%v",
					guildID, after, rl.RetryAfter)
				if err := sleepContext(ctx, rl.RetryAfter); err != nil {
					return nil, err
				}
				continue
			}
			return nil, err
		}

		for _, m := range page {
			if _, ok := seen[m.User.ID]; ok {
				continue
			}
			seen[m.User.ID] = struct{}{}
			members = append(members, m)
		}

		if len(page) < memberPageLimit {
			return members, nil
		}
		after = page[len(page)-1].User.ID
	}
}

// sleepContext 可取消的等待
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
