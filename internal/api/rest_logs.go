package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"latera/internal/logging"
)

type logQuery struct {
	Limit     int
	Level     logging.Level
	Component string
	Since     *time.Time
}

func (h *RestHandler) handleLogs(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	buffer := h.Logger.Buffer()
	if buffer == nil {
		return &apiError{Status: http.StatusServiceUnavailable, Message: "log buffer unavailable"}
	}
	query, err := parseLogQuery(r)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, filterLogEntries(buffer.List(), query))
	return nil
}

func parseLogQuery(r *http.Request) (logQuery, *apiError) {
	values := r.URL.Query()
	query := logQuery{
		Limit:     100,
		Component: strings.TrimSpace(values.Get("component")),
	}

	if rawLimit := strings.TrimSpace(values.Get("limit")); rawLimit != "" {
		limit, err := strconv.Atoi(rawLimit)
		if err != nil || limit <= 0 {
			return query, &apiError{Status: http.StatusBadRequest, Message: "invalid limit"}
		}
		query.Limit = limit
	}

	if rawSince := strings.TrimSpace(values.Get("since")); rawSince != "" {
		parsed, err := time.Parse(time.RFC3339, rawSince)
		if err != nil {
			return query, &apiError{Status: http.StatusBadRequest, Message: "invalid since timestamp"}
		}
		query.Since = &parsed
	}

	if rawLevel := strings.TrimSpace(values.Get("level")); rawLevel != "" {
		level, ok := logging.ParseLevel(rawLevel)
		if !ok {
			return query, &apiError{Status: http.StatusBadRequest, Message: "invalid log level"}
		}
		query.Level = level
	}

	return query, nil
}

// matches applies every filter except Limit.
func (q logQuery) matches(entry logging.LogEntry) bool {
	switch {
	case q.Level != "" && !logging.LevelAtLeast(entry.Level, q.Level):
		return false
	case q.Component != "" && entry.Component() != q.Component:
		return false
	case q.Since != nil && entry.Timestamp.Before(*q.Since):
		return false
	}
	return true
}

// filterLogEntries keeps the newest Limit entries that match query.
func filterLogEntries(entries []logging.LogEntry, query logQuery) []logging.LogEntry {
	filtered := make([]logging.LogEntry, 0, len(entries))
	for _, entry := range entries {
		if query.matches(entry) {
			filtered = append(filtered, entry)
		}
	}
	if query.Limit > 0 && len(filtered) > query.Limit {
		filtered = filtered[len(filtered)-query.Limit:]
	}
	return filtered
}

// LogsSSEHandler streams new log entries as "log" events. It accepts the
// filters of GET /api/logs; limit is ignored.
type LogsSSEHandler struct {
	Logger            *logging.Logger
	AuthToken         string
	HeartbeatInterval time.Duration
}

func (h *LogsSSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !requireSSEToken(w, r, h.AuthToken, h.Logger) {
		return
	}
	query, apiErr := parseLogQuery(r)
	if apiErr != nil {
		writeSSEHTTPError(w, r, h.Logger, streamError{Status: apiErr.Status, Message: apiErr.Message})
		return
	}
	output, cancel := h.Logger.Subscribe(query.Level)
	defer cancel()

	serveSSEStream(w, r, sseStreamConfig[logging.LogEntry]{
		Logger: h.Logger,
		Output: output,
		BuildPayload: func(entry logging.LogEntry) (any, bool) {
			return entry, query.matches(entry)
		},
		EventName:         func(logging.LogEntry) string { return "log" },
		HeartbeatInterval: h.HeartbeatInterval,
	})
}
