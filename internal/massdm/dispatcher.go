package massdm

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"

	"massdm_panel/internal/discord"
	"massdm_panel/internal/logger"
)

// DiscordAPI 群发流程依赖的 Discord 客户端能力
type DiscordAPI interface {
	// ListAllMembers 拉取服务器全部成员
	ListAllMembers(ctx context.Context, guildID snowflake.ID) ([]discord.Member, error)

	// CreateDM 打开与指定用户的私信频道
	CreateDM(ctx context.Context, userID snowflake.ID) (*discord.Channel, error)

	// CreateMessage 向频道发送消息
	CreateMessage(ctx context.Context, channelID snowflake.ID, payload discord.MessagePayload) (*discord.Message, error)

	// EditMessage 编辑已发送的消息
	EditMessage(ctx context.Context, channelID, messageID snowflake.ID, payload discord.MessagePayload) (*discord.Message, error)
}

// statusEditInterval 每处理多少个成员编辑一次状态消息
const statusEditInterval = 5

// Runner 顺序执行单个群发任务
type Runner struct {
	api   DiscordAPI
	sleep func(ctx context.Context, d time.Duration) error
}

// RunnerOption 自定义 Runner 行为
type RunnerOption func(*Runner)

// WithSleep 自定义等待函数（测试时使用）
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) RunnerOption {
	return func(r *Runner) {
		if sleep != nil {
			r.sleep = sleep
		}
	}
}

// NewRunner 创建群发执行器
func NewRunner(api DiscordAPI, opts ...RunnerOption) *Runner {
	r := &Runner{
		api:   api,
		sleep: sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// outcome 单个成员的处理结果
type outcome struct {
	status  Status
	message string
	err     error
}

// Run 执行一次群发任务，把事件按发生顺序写入 events，返回前关闭 events
// ctx 取消后在当前成员结果判定完成的安全点停止，之后不再发事件、不再调远端
func (r *Runner) Run(ctx context.Context, job *Job, events chan<- Event) {
	jobID := uuid.New().String()

	defer close(events)
	defer func() {
		if rec := recover(); rec != nil {
			logger.L().Errorf("Mass DM job panicked: job_id=%s, panic=%v", jobID, rec)
			r.emit(ctx, events, errorEvent(fmt.Sprintf("internal error: %v", rec)))
		}
	}()

	r.dispatch(ctx, job, events, jobID)
}

func (r *Runner) dispatch(ctx context.Context, job *Job, events chan<- Event, jobID string) {
	start := time.Now()

	logger.L().Infof("Starting mass DM job: job_id=%s, guild_id=%s, mode=%s, delay=%v",
		jobID, job.GuildID, job.Mode, job.Delay)

	r.emit(ctx, events, logEvent(StatusInfo, "Fetching server members..."))

	members, err := r.api.ListAllMembers(ctx, job.GuildID)
	if err != nil {
		if ctx.Err() != nil {
			logger.L().Infof("Mass DM job cancelled during member fetch: job_id=%s", jobID)
			return
		}
		logger.L().Errorf("Member fetch failed: job_id=%s, guild_id=%s, err=%v", jobID, job.GuildID, err)
		r.emit(ctx, events, errorEvent(fmt.Sprintf("failed to fetch members: %v", err)))
		return
	}

	targets := FilterMembers(members, job.Mode, job.RoleIDs)
	counters := Counters{Total: len(targets)}

	r.emit(ctx, events, logEvent(StatusInfo, fmt.Sprintf("Found %d members to message", counters.Total)))
	r.emit(ctx, events, progressEvent(counters))

	if counters.Total == 0 {
		r.emit(ctx, events, completeEvent(counters))
		logger.L().Infof("Mass DM job completed: job_id=%s, total=0", jobID)
		return
	}

	status := newStatusReporter(r.api, job.StatusChannelID)
	status.start(ctx, counters)

	for i, member := range targets {
		if ctx.Err() != nil {
			logger.L().Infof("Mass DM job cancelled: job_id=%s, processed=%d/%d",
				jobID, counters.Processed(), counters.Total)
			return
		}

		out := r.sendOne(ctx, job, member, events)
		if ctx.Err() != nil {
			// 取消打断的调用不计结果，也不再发事件
			logger.L().Infof("Mass DM job cancelled: job_id=%s, processed=%d/%d",
				jobID, counters.Processed(), counters.Total)
			return
		}

		counters.record(out)

		switch out.status {
		case StatusFailed:
			logger.L().Errorf("DM send failed: job_id=%s, user_id=%s, err=%v", jobID, member.User.ID, out.err)
		default:
			logger.L().Debugf("Member processed: job_id=%s, user_id=%s, status=%s", jobID, member.User.ID, out.status)
		}

		r.emit(ctx, events, memberLogEvent(out.status, out.message, member.User.Username))
		r.emit(ctx, events, progressEvent(counters))

		if counters.Processed()%statusEditInterval == 0 {
			status.update(ctx, counters, false)
		}

		if i < len(targets)-1 && job.Delay > 0 {
			if err := r.sleep(ctx, job.Delay); err != nil {
				logger.L().Infof("Mass DM job cancelled during delay: job_id=%s, processed=%d/%d",
					jobID, counters.Processed(), counters.Total)
				return
			}
		}
	}

	status.update(ctx, counters, true)
	r.emit(ctx, events, completeEvent(counters))

	logger.L().Infof("Mass DM job completed: job_id=%s, sent=%d, failed=%d, dm_closed=%d, duration=%v",
		jobID, counters.Sent, counters.Failed, counters.DMClosed, time.Since(start))
}

// sendOne 处理单个成员：开私信频道，再发送个性化消息
// 两步中的 HTTP 403 都视为对方关闭私信
func (r *Runner) sendOne(ctx context.Context, job *Job, member discord.Member, events chan<- Event) outcome {
	name := member.DisplayName()

	var channel *discord.Channel
	err := r.withRateLimitRetry(ctx, events, member.User.Username, func() error {
		var err error
		channel, err = r.api.CreateDM(ctx, member.User.ID)
		return err
	})
	if err != nil {
		return classify(err, name)
	}

	content := renderMessage(job.Message, member.User.ID)
	err = r.withRateLimitRetry(ctx, events, member.User.Username, func() error {
		_, err := r.api.CreateMessage(ctx, channel.ID, discord.MessagePayload{Content: content})
		return err
	})
	if err != nil {
		return classify(err, name)
	}

	return outcome{status: StatusSuccess, message: fmt.Sprintf("Sent to %s", name)}
}

// withRateLimitRetry 执行一次调用；遇到限流时等待指示时长后重试一次
// 重试的结果即最终结果，哪怕再次限流也不继续重试
func (r *Runner) withRateLimitRetry(ctx context.Context, events chan<- Event, username string, call func() error) error {
	err := call()
	rl, ok := discord.AsRateLimit(err)
	if !ok {
		return err
	}

	r.emit(ctx, events, memberLogEvent(StatusRateLimit,
		fmt.Sprintf("Rate limited, waiting %.1fs", rl.RetryAfter.Seconds()), username))

	if err := r.sleep(ctx, rl.RetryAfter); err != nil {
		return err
	}

	return call()
}

// classify 把发送错误映射为成员结果
func classify(err error, name string) outcome {
	if discord.IsForbidden(err) {
		return outcome{
			status:  StatusDMClosed,
			message: fmt.Sprintf("%s has DMs disabled", name),
			err:     err,
		}
	}
	return outcome{
		status:  StatusFailed,
		message: fmt.Sprintf("Failed to DM %s: %v", name, err),
		err:     err,
	}
}

func (c *Counters) record(out outcome) {
	switch out.status {
	case StatusSuccess:
		c.Sent++
	case StatusDMClosed:
		c.DMClosed++
	default:
		c.Failed++
	}
}

// emit 推送事件；ctx 已取消时丢弃
func (r *Runner) emit(ctx context.Context, events chan<- Event, ev Event) {
	select {
	case <-ctx.Done():
	case events <- ev:
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
