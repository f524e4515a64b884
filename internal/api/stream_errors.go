package api

import (
	"net/http"
	"strconv"
	"strings"

	"latera/internal/logging"
)

// streamError describes a websocket or SSE stream that was refused or failed.
// CloseCode only applies to websockets.
type streamError struct {
	Status    int
	CloseCode int
	Message   string
	Err       error
}

func (e streamError) withDefaults() streamError {
	if e.Status == 0 {
		e.Status = http.StatusInternalServerError
	}
	e.Message = strings.TrimSpace(e.Message)
	if e.Message == "" {
		e.Message = http.StatusText(e.Status)
	}
	return e
}

// log reports e at warning level, or error level for 5xx statuses.
func (e streamError) log(logger *logging.Logger, r *http.Request, msg string) {
	if logger == nil || r == nil {
		return
	}
	fields := map[string]string{
		"path":    r.URL.Path,
		"status":  strconv.Itoa(e.Status),
		"message": e.Message,
	}
	if e.CloseCode != 0 {
		fields["close_code"] = strconv.Itoa(e.CloseCode)
	}
	if r.RemoteAddr != "" {
		fields["remote_addr"] = r.RemoteAddr
	}
	if e.Err != nil {
		fields["error"] = e.Err.Error()
	}
	if e.Status >= http.StatusInternalServerError {
		logger.Error(msg, fields)
		return
	}
	logger.Warn(msg, fields)
}
