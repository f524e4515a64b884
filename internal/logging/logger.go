package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const DefaultBufferSize = 1000

// Logger writes leveled entries to an output, an in-memory buffer and a hub of
// live subscribers. Child loggers created with With or For share all three.
type Logger struct {
	buffer      *LogBuffer
	output      *lockedWriter
	minLevel    Level
	baseContext map[string]string
	hub         *LogHub
	now         func() time.Time
}

type lockedWriter struct {
	mu     sync.Mutex
	writer io.Writer
}

func (w *lockedWriter) writeLine(line string) {
	if w == nil || w.writer == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, _ = io.WriteString(w.writer, line+"\n")
}

func NewLogger(buffer *LogBuffer, minLevel Level) *Logger {
	return NewLoggerWithOutput(buffer, minLevel, os.Stderr)
}

func NewLoggerWithOutput(buffer *LogBuffer, minLevel Level, output io.Writer) *Logger {
	if buffer == nil {
		buffer = NewLogBuffer(DefaultBufferSize)
	}
	if output == nil {
		output = io.Discard
	}
	return &Logger{
		buffer:   buffer,
		output:   &lockedWriter{writer: output},
		minLevel: normalizeLevel(minLevel),
		hub:      NewLogHub(),
		now:      time.Now,
	}
}

// Discard returns a logger that only keeps entries in a small buffer.
func Discard() *Logger {
	return NewLoggerWithOutput(NewLogBuffer(64), LevelError, io.Discard)
}

func (l *Logger) Buffer() *LogBuffer {
	if l == nil {
		return nil
	}
	return l.buffer
}

// Subscribe streams new entries at or above minLevel.
func (l *Logger) Subscribe(minLevel Level) (<-chan LogEntry, func()) {
	if l == nil || l.hub == nil {
		return closedEntries(), func() {}
	}
	return l.hub.Subscribe(minLevel, 0)
}

func (l *Logger) With(fields map[string]string) *Logger {
	if l == nil {
		return l
	}
	return &Logger{
		buffer:      l.buffer,
		output:      l.output,
		minLevel:    l.minLevel,
		baseContext: cloneFields(l.baseContext, fields),
		hub:         l.hub,
		now:         l.now,
	}
}

// For returns a child logger tagged with a component name.
func (l *Logger) For(component string) *Logger {
	return l.With(map[string]string{FieldComponent: component})
}

// WithCorrelation returns a child logger tagged with a fresh correlation id for
// one operation, along with the id.
func (l *Logger) WithCorrelation(operation string) (*Logger, string) {
	id := NewCorrelationID()
	fields := map[string]string{FieldCorrelation: id}
	if operation = strings.TrimSpace(operation); operation != "" {
		fields[FieldOperation] = operation
	}
	return l.With(fields), id
}

func (l *Logger) Debug(message string, fields map[string]string) {
	l.log(LevelDebug, message, fields)
}

func (l *Logger) Info(message string, fields map[string]string) {
	l.log(LevelInfo, message, fields)
}

func (l *Logger) Warn(message string, fields map[string]string) {
	l.log(LevelWarning, message, fields)
}

func (l *Logger) Error(message string, fields map[string]string) {
	l.log(LevelError, message, fields)
}

func (l *Logger) Enabled(level Level) bool {
	if l == nil {
		return false
	}
	return levelRank(level) >= levelRank(l.minLevel)
}

func (l *Logger) log(level Level, message string, fields map[string]string) {
	if l == nil || !l.Enabled(level) {
		return
	}

	entry := LogEntry{
		Timestamp: l.now().UTC(),
		Level:     level,
		Message:   message,
		Context:   cloneFields(l.baseContext, fields),
	}
	l.buffer.Add(entry)
	l.hub.Broadcast(entry)
	l.output.writeLine(formatEntry(entry))
}

func cloneFields(base, extra map[string]string) map[string]string {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	combined := make(map[string]string, len(base)+len(extra))
	for key, value := range base {
		combined[key] = value
	}
	for key, value := range extra {
		combined[key] = value
	}
	return combined
}

// formatEntry renders `[hh:mm:ss.mmm] [I] [component] message key="value"`.
func formatEntry(entry LogEntry) string {
	builder := strings.Builder{}
	builder.WriteString("[")
	builder.WriteString(entry.Timestamp.Format("15:04:05.000"))
	builder.WriteString("] [")
	builder.WriteString(entry.Level.letter())
	builder.WriteString("] [")
	component := entry.Component()
	if component == "" {
		component = "latera"
	}
	builder.WriteString(component)
	builder.WriteString("] ")
	builder.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Context))
	for key := range entry.Context {
		if key == FieldComponent {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		builder.WriteString(" ")
		builder.WriteString(fmt.Sprintf("%s=%s", key, strconv.Quote(entry.Context[key])))
	}
	return builder.String()
}
