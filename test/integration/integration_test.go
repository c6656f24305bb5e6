//go:build integration

package integration

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"massdm_panel/internal/config"
	"massdm_panel/internal/server"
)

// fakeDiscord 进程内模拟的 Discord REST API
// 服务器 500 里有四名成员：alice/bob 持有身份组 900，
// carol 没有身份组，helper 是机器人；bob 关闭了私信
type fakeDiscord struct {
	mu           sync.Mutex
	limited      bool
	memberSends  []string
	statusBodies []string
}

func (f *fakeDiscord) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bot integration-token" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"code":0,"message":"401: Unauthorized"}`)
			return
		}

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/users/@me":
			fmt.Fprint(w, `{"id":"1","username":"panelbot","bot":true}`)

		case r.Method == http.MethodGet && r.URL.Path == "/guilds/500":
			fmt.Fprint(w, `{"id":"500","name":"Crew HQ","approximate_member_count":4,"approximate_presence_count":2}`)

		case r.Method == http.MethodGet && r.URL.Path == "/guilds/500/roles":
			fmt.Fprint(w, `[
				{"id":"500","name":"@everyone","color":0,"position":0,"managed":false},
				{"id":"901","name":"AutoMod","color":0,"position":7,"managed":true},
				{"id":"900","name":"Crew","color":3447003,"position":3,"managed":false}
			]`)

		case r.Method == http.MethodGet && r.URL.Path == "/guilds/500/members":
			fmt.Fprint(w, `[
				{"user":{"id":"101","username":"alice","global_name":"Alice"},"roles":["900"]},
				{"user":{"id":"102","username":"bob"},"roles":["900"]},
				{"user":{"id":"103","username":"carol"},"roles":[]},
				{"user":{"id":"104","username":"helper","bot":true},"roles":["900"]}
			]`)

		case r.Method == http.MethodPost && r.URL.Path == "/users/@me/channels":
			var req struct {
				RecipientID string `json:"recipient_id"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("failed to decode dm request: %v", err)
			}
			if req.RecipientID == "102" {
				w.WriteHeader(http.StatusForbidden)
				fmt.Fprint(w, `{"code":50007,"message":"Cannot send messages to this user"}`)
				return
			}
			fmt.Fprintf(w, `{"id":"9%s"}`, req.RecipientID)

		case r.Method == http.MethodPost && r.URL.Path == "/channels/8888/messages":
			f.recordStatus(r.Body)
			fmt.Fprint(w, `{"id":"7777","channel_id":"8888"}`)

		case r.Method == http.MethodPatch && r.URL.Path == "/channels/8888/messages/7777":
			f.recordStatus(r.Body)
			fmt.Fprint(w, `{"id":"7777","channel_id":"8888"}`)

		case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/channels/9") && strings.HasSuffix(r.URL.Path, "/messages"):
			f.mu.Lock()
			defer f.mu.Unlock()

			// 第一条成员私信先限流一次，验证重试链路
			if !f.limited {
				f.limited = true
				w.WriteHeader(http.StatusTooManyRequests)
				fmt.Fprint(w, `{"message":"You are being rate limited.","retry_after":0.01,"global":false}`)
				return
			}

			var payload struct {
				Content string `json:"content"`
			}
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				t.Fatalf("failed to decode message payload: %v", err)
			}
			f.memberSends = append(f.memberSends, payload.Content)
			fmt.Fprint(w, `{"id":"7000","channel_id":"9101"}`)

		default:
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}
}

func (f *fakeDiscord) recordStatus(body io.Reader) {
	raw, _ := io.ReadAll(body)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusBodies = append(f.statusBodies, string(raw))
}

func setupPanel(t *testing.T) (*httptest.Server, *fakeDiscord) {
	t.Helper()

	fake := &fakeDiscord{}
	discordSrv := httptest.NewServer(fake.handler(t))
	t.Cleanup(discordSrv.Close)

	cfg := &config.Config{
		Port: "0",
		Discord: config.DiscordConfig{
			BaseURL: discordSrv.URL,
			Timeout: 5 * time.Second,
			MaxRPS:  1000,
		},
	}

	panel := httptest.NewServer(server.New(cfg).Handler())
	t.Cleanup(panel.Close)

	return panel, fake
}

func postJSON(t *testing.T, url, body string) (int, string) {
	t.Helper()

	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return resp.StatusCode, string(raw)
}

func TestPanelEndToEndFlow(t *testing.T) {
	t.Parallel()

	panel, fake := setupPanel(t)

	// 第一步：连接并校验服务器概要
	code, body := postJSON(t, panel.URL+"/api/connect", `{"botToken":"integration-token","guildId":"500"}`)
	if code != http.StatusOK {
		t.Fatalf("connect failed: status=%d, body=%s", code, body)
	}

	var guild struct {
		Name                   string `json:"name"`
		ApproximateMemberCount int    `json:"approximateMemberCount"`
	}
	if err := json.Unmarshal([]byte(body), &guild); err != nil {
		t.Fatalf("failed to decode connect response: %v", err)
	}
	if guild.Name != "Crew HQ" {
		t.Fatalf("unexpected guild name: got %q, want %q", guild.Name, "Crew HQ")
	}
	if guild.ApproximateMemberCount != 4 {
		t.Fatalf("unexpected member count: got %d, want %d", guild.ApproximateMemberCount, 4)
	}

	// 第二步：身份组列表应过滤 @everyone 与托管身份组
	code, body = postJSON(t, panel.URL+"/api/roles", `{"botToken":"integration-token","guildId":"500"}`)
	if code != http.StatusOK {
		t.Fatalf("roles failed: status=%d, body=%s", code, body)
	}

	var roles []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal([]byte(body), &roles); err != nil {
		t.Fatalf("failed to decode roles response: %v", err)
	}
	if len(roles) != 1 || roles[0].Name != "Crew" {
		t.Fatalf("unexpected roles: %#v", roles)
	}

	// 第三步：按身份组群发并消费整条 SSE 流
	code, body = postJSON(t, panel.URL+"/api/send",
		`{"botToken":"integration-token","guildId":"500","message":"Hello <user>!","mode":"roles","roleIds":["900"],"delay":0,"statusChannelId":"8888"}`)
	if code != http.StatusOK {
		t.Fatalf("send failed: status=%d, body=%s", code, body)
	}

	events := parseSSE(t, body)
	if len(events) == 0 {
		t.Fatalf("no events in stream: %s", body)
	}
	if events[0].name != "log" || !strings.Contains(events[0].data, "Fetching server members") {
		t.Fatalf("unexpected first event: %+v", events[0])
	}

	var sawRateLimit, sawDMClosed bool
	for _, ev := range events {
		if ev.name != "log" {
			continue
		}
		if strings.Contains(ev.data, "Rate limited") {
			sawRateLimit = true
		}
		if strings.Contains(ev.data, "bob has DMs disabled") {
			sawDMClosed = true
		}
	}
	if !sawRateLimit {
		t.Fatalf("expected a rate limit log event, got: %s", body)
	}
	if !sawDMClosed {
		t.Fatalf("expected a dm_closed log event, got: %s", body)
	}

	last := events[len(events)-1]
	if last.name != "complete" {
		t.Fatalf("expected complete terminal event, got %+v", last)
	}

	var counters struct {
		Sent     int `json:"sent"`
		Failed   int `json:"failed"`
		Total    int `json:"total"`
		DMClosed int `json:"dmClosed"`
	}
	if err := json.Unmarshal([]byte(last.data), &counters); err != nil {
		t.Fatalf("failed to decode counters: %v", err)
	}
	if counters.Sent != 1 || counters.Failed != 0 || counters.Total != 2 || counters.DMClosed != 1 {
		t.Fatalf("unexpected counters: %+v", counters)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()

	if len(fake.memberSends) != 1 || fake.memberSends[0] != "Hello <@101>!" {
		t.Fatalf("unexpected member sends: %#v", fake.memberSends)
	}
	if len(fake.statusBodies) != 2 {
		t.Fatalf("unexpected status message count: got %d, want %d", len(fake.statusBodies), 2)
	}
	if !strings.Contains(fake.statusBodies[0], "Mass DM Started") {
		t.Fatalf("unexpected status create body: %s", fake.statusBodies[0])
	}
	if !strings.Contains(fake.statusBodies[1], "Mass DM Complete!") {
		t.Fatalf("unexpected final status body: %s", fake.statusBodies[1])
	}
}

// sseEvent 按名称与 data 行拆出的单个事件
type sseEvent struct {
	name string
	data string
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()

	var events []sseEvent
	for _, block := range strings.Split(strings.TrimSpace(body), "\n\n") {
		var ev sseEvent
		for _, line := range strings.Split(block, "\n") {
			if strings.HasPrefix(line, "event: ") {
				ev.name = strings.TrimPrefix(line, "event: ")
			}
			if strings.HasPrefix(line, "data: ") {
				ev.data = strings.TrimPrefix(line, "data: ")
			}
		}
		if ev.name != "" {
			events = append(events, ev)
		}
	}
	return events
}
