package logging

import (
	"strings"
	"time"
)

type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// levelOrder ranks levels from least to most severe; the index is the rank.
var levelOrder = []Level{LevelDebug, LevelInfo, LevelWarning, LevelError}

var levelAliases = map[string]Level{
	"trace": LevelDebug,
	"warn":  LevelWarning,
}

// ParseLevel accepts level names case-insensitively plus the trace and warn
// aliases.
func ParseLevel(value string) (Level, bool) {
	name := strings.ToLower(strings.TrimSpace(value))
	if alias, ok := levelAliases[name]; ok {
		return alias, true
	}
	for _, level := range levelOrder {
		if string(level) == name {
			return level, true
		}
	}
	return "", false
}

// LevelAtLeast reports whether level is at or above minLevel. An empty
// minLevel admits everything.
func LevelAtLeast(level, minLevel Level) bool {
	return minLevel == "" || levelRank(level) >= levelRank(minLevel)
}

// levelRank treats unknown levels as info.
func levelRank(level Level) int {
	for rank, known := range levelOrder {
		if known == level {
			return rank
		}
	}
	return 1
}

func normalizeLevel(level Level) Level {
	return levelOrder[levelRank(level)]
}

// letter is the one-character tag used in text output.
func (level Level) letter() string {
	return strings.ToUpper(string(levelOrder[levelRank(level)][0:1]))
}

const (
	FieldComponent   = "latera.component"
	FieldCorrelation = "correlation_id"
	FieldOperation   = "operation"
)

type LogEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Level     Level             `json:"level"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
}

// Component returns the component name the entry was logged under.
func (entry LogEntry) Component() string {
	if entry.Context == nil {
		return ""
	}
	return entry.Context[FieldComponent]
}
