package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"massdm_panel/internal/logger"
	"massdm_panel/internal/massdm"
)

// handleSend 接收群发任务并以 SSE 推送执行进度
// 响应流以 complete 或 error 事件结束；客户端断开即取消任务
func (s *Server) handleSend(c echo.Context) error {
	var req massdm.JobRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}

	job, err := req.Job()
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	client, err := s.newClient(job.BotToken)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	// 请求上下文取消（客户端断开）即任务的取消信号
	events := make(chan massdm.Event)
	runner := massdm.NewRunner(client)
	go runner.Run(c.Request().Context(), job, events)

	for ev := range events {
		if err := writeEvent(w, ev); err != nil {
			// 连接已断开，继续排空通道等待任务退出
			logger.L().Debugf("SSE write failed: err=%v", err)
		}
	}

	return nil
}
