package server

import (
	"encoding/json"
	"fmt"

	"github.com/labstack/echo/v4"

	"massdm_panel/internal/massdm"
)

// writeEvent 写出一个 SSE 命名事件并立即刷出
func writeEvent(w *echo.Response, ev massdm.Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("encode event failed: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, data); err != nil {
		return err
	}

	w.Flush()
	return nil
}
