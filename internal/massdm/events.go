package massdm

// SSE 事件名
const (
	EventLog      = "log"
	EventProgress = "progress"
	EventComplete = "complete"
	EventError    = "error"
)

// Status log 事件分类，前端据此决定日志行样式
type Status string

const (
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusDMClosed  Status = "dm_closed"
	StatusRateLimit Status = "ratelimit"
	StatusInfo      Status = "info"
	StatusError     Status = "error"
)

// Counters 运行计数
// 不变式：Sent+Failed+DMClosed 处理过程中不超过 Total，结束时等于 Total
type Counters struct {
	Sent     int `json:"sent"`
	Failed   int `json:"failed"`
	Total    int `json:"total"`
	DMClosed int `json:"dmClosed"`
}

// Processed 已判定结果的成员数
func (c Counters) Processed() int {
	return c.Sent + c.Failed + c.DMClosed
}

// Event 推送给面板的单个事件，Data 会序列化为 SSE 的 data 行
type Event struct {
	Name string
	Data interface{}
}

// LogPayload log 事件载荷
type LogPayload struct {
	Status   Status `json:"status"`
	Message  string `json:"message"`
	Username string `json:"username,omitempty"`
}

// ErrorPayload error 事件载荷
type ErrorPayload struct {
	Message string `json:"message"`
}

func logEvent(status Status, message string) Event {
	return Event{Name: EventLog, Data: LogPayload{Status: status, Message: message}}
}

func memberLogEvent(status Status, message, username string) Event {
	return Event{Name: EventLog, Data: LogPayload{Status: status, Message: message, Username: username}}
}

func progressEvent(c Counters) Event {
	return Event{Name: EventProgress, Data: c}
}

func completeEvent(c Counters) Event {
	return Event{Name: EventComplete, Data: c}
}

func errorEvent(message string) Event {
	return Event{Name: EventError, Data: ErrorPayload{Message: message}}
}
