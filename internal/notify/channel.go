package notify

import (
	"context"
	"strconv"
	"sync"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/singleflight"

	"latera/internal/coreerr"
	"latera/internal/logging"
)

const (
	TypeFileAdded = "file_added"
	defaultTitle  = "Latera"
)

// Channel is the user-visible notification side effect.
type Channel interface {
	Init(ctx context.Context) error
	ShowFileAdded(ctx context.Context, fileName string) error
}

// SinkChannel adapts a Sink into a Channel. Initialization is memoized:
// concurrent callers share one in-flight attempt, success is kept, and a
// failed attempt is retried by the next caller.
type SinkChannel struct {
	sink   Sink
	title  string
	clock  clock.Clock
	logger *logging.Logger

	group    singleflight.Group
	mu       sync.Mutex
	ready    bool
	attempts int
}

var _ Channel = (*SinkChannel)(nil)

type ChannelOptions struct {
	Title  string
	Clock  clock.Clock
	Logger *logging.Logger
}

func NewSinkChannel(sink Sink, options ChannelOptions) *SinkChannel {
	if sink == nil {
		sink = NewMemorySink()
	}
	title := options.Title
	if title == "" {
		title = defaultTitle
	}
	clk := options.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &SinkChannel{
		sink:   sink,
		title:  title,
		clock:  clk,
		logger: logger.For("notify"),
	}
}

func (c *SinkChannel) Init(ctx context.Context) error {
	if c.Ready() {
		return nil
	}
	_, err, _ := c.group.Do("init", func() (interface{}, error) {
		c.mu.Lock()
		if c.ready {
			c.mu.Unlock()
			return nil, nil
		}
		c.attempts++
		attempt := c.attempts
		c.mu.Unlock()

		if initializer, ok := c.sink.(Initializer); ok {
			if err := initializer.Init(ctx); err != nil {
				c.logger.Warn("notification channel init failed", map[string]string{
					"attempt": strconv.Itoa(attempt),
					"error":   err.Error(),
				})
				return nil, coreerr.Initialization("notification channel init failed", err)
			}
		}

		c.mu.Lock()
		c.ready = true
		c.mu.Unlock()
		c.logger.Info("notification channel ready", map[string]string{
			"attempt": strconv.Itoa(attempt),
		})
		return nil, nil
	})
	return err
}

func (c *SinkChannel) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// InitAttempts returns how many initialization attempts have run.
func (c *SinkChannel) InitAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// ShowFileAdded initializes the channel when needed, then emits.
func (c *SinkChannel) ShowFileAdded(ctx context.Context, fileName string) error {
	if err := c.Init(ctx); err != nil {
		return err
	}
	event := Event{
		Type:       TypeFileAdded,
		Title:      c.title,
		Message:    "New file: " + fileName,
		Fields:     map[string]string{"file_name": fileName},
		OccurredAt: c.clock.Now().UTC(),
	}
	if err := c.sink.Emit(ctx, event); err != nil {
		return coreerr.Notification("show notification failed", err)
	}
	return nil
}
