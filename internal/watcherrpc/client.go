package watcherrpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/sourcegraph/jsonrpc2"

	"latera/internal/coreerr"
	"latera/internal/event"
	"latera/internal/logging"
	"latera/internal/metrics"
	"latera/internal/watcher"
)

const defaultRequestTimeout = 10 * time.Second

type ClientOptions struct {
	Logger         *logging.Logger
	Registry       *metrics.Registry
	RequestTimeout time.Duration
	// OnClose runs once after the connection is gone, for example to reap a
	// child process.
	OnClose func() error
}

// Client is a watcher.Boundary backed by a remote watcher.
type Client struct {
	conn    *jsonrpc2.Conn
	bus     *event.Bus[watcher.Signal]
	logger  *logging.Logger
	timeout time.Duration
	onClose func() error

	mu        sync.Mutex
	watching  bool
	closing   bool
	closeOnce sync.Once
	closeErr  error
	lost      chan struct{}
}

var _ watcher.Boundary = (*Client)(nil)

func NewClient(ctx context.Context, rwc io.ReadWriteCloser, options ClientOptions) *Client {
	logger := options.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	timeout := options.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	client := &Client{
		bus: event.NewBus[watcher.Signal](context.Background(), event.BusOptions{
			Name:     "watcher_rpc_signals",
			Delivery: event.BlockWhenFull,
			Registry: options.Registry,
			Logger:   logger,
		}),
		logger:  logger.For("watcher_rpc_client"),
		timeout: timeout,
		onClose: options.OnClose,
		lost:    make(chan struct{}),
	}

	stream := jsonrpc2.NewBufferedStream(rwc, jsonrpc2.VSCodeObjectCodec{})
	client.conn = jsonrpc2.NewConn(ctx, stream, jsonrpc2.HandlerWithError(client.handle))
	go client.watchDisconnect()
	return client
}

func (c *Client) StartWatching(ctx context.Context, overridePath string) watcher.WatchResult {
	var reply StartReply
	if err := c.call(ctx, MethodStart, StartParams{OverridePath: overridePath}, &reply); err != nil {
		return watcher.WatchFailed(err)
	}
	c.setWatching(true)
	return watcher.Watched(reply.WatchDir)
}

// StopWatching maps a remote "not running" answer to success.
func (c *Client) StopWatching(ctx context.Context) *coreerr.Error {
	err := c.call(ctx, MethodStop, nil, nil)
	c.setWatching(false)
	if err != nil && err.Code == coreerr.CodeWatcherNotRunning {
		return nil
	}
	return err
}

func (c *Client) Status(ctx context.Context) (StatusReply, *coreerr.Error) {
	var reply StatusReply
	if err := c.call(ctx, MethodStatus, nil, &reply); err != nil {
		return StatusReply{}, err
	}
	c.setWatching(reply.Watching)
	return reply, nil
}

func (c *Client) Subscribe() (<-chan watcher.Signal, func()) {
	return c.bus.Subscribe()
}

func (c *Client) IsWatching() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.watching
}

// Lost is closed once the connection to the remote watcher is gone.
func (c *Client) Lost() <-chan struct{} {
	return c.lost
}

// Close drops the connection and closes every subscriber channel.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closing = true
		c.mu.Unlock()

		c.closeErr = c.conn.Close()
		<-c.lost
		if c.onClose != nil {
			if err := c.onClose(); err != nil && c.closeErr == nil {
				c.closeErr = err
			}
		}
		c.bus.Close()
	})
	if errors.Is(c.closeErr, jsonrpc2.ErrClosed) {
		return nil
	}
	return c.closeErr
}

func (c *Client) call(ctx context.Context, method string, params, result interface{}) *coreerr.Error {
	if ctx == nil {
		ctx = context.Background()
	}
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.conn.Call(callCtx, method, params, result); err != nil {
		failure := classifyCallError(err)
		c.logger.Warn("watcher rpc call failed", withMethod(failure.Fields(), method))
		return failure
	}
	return nil
}

func classifyCallError(err error) *coreerr.Error {
	var rpcErr *jsonrpc2.Error
	if errors.As(err, &rpcErr) {
		return coreerr.Classify(rpcErr.Message)
	}
	if errors.Is(err, jsonrpc2.ErrClosed) || errors.Is(err, io.EOF) {
		return coreerr.Stream("watcher connection closed", err)
	}
	return coreerr.FromStreamError(err)
}

func (c *Client) handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
	switch req.Method {
	case NotifyFileAdded:
		var params FileAddedParams
		if err := decodeParams(req, &params); err != nil {
			c.bus.Publish(watcher.ErrorSignal(coreerr.Stream("malformed file_added notification", err)))
			return nil, nil
		}
		c.bus.Publish(watcher.DataSignal(params.event()))
	case NotifyError:
		var params ErrorParams
		if err := decodeParams(req, &params); err != nil {
			c.bus.Publish(watcher.ErrorSignal(coreerr.Stream("malformed error notification", err)))
			return nil, nil
		}
		c.bus.Publish(watcher.ErrorSignal(coreerr.Classify(params.Message)))
	case NotifyDone:
		c.setWatching(false)
		c.bus.Publish(watcher.DoneSignal())
	default:
		if !req.Notif {
			return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "method not found: " + req.Method}
		}
	}
	return nil, nil
}

// watchDisconnect turns a lost connection into an error followed by done,
// unless the client is being closed on purpose.
func (c *Client) watchDisconnect() {
	<-c.conn.DisconnectNotify()

	c.mu.Lock()
	closing := c.closing
	c.watching = false
	c.mu.Unlock()

	if !closing {
		c.logger.Warn("watcher connection lost", nil)
		c.bus.Publish(watcher.ErrorSignal(coreerr.Stream("watcher connection lost", nil)))
		c.bus.Publish(watcher.DoneSignal())
	}
	close(c.lost)
}

func (c *Client) setWatching(watching bool) {
	c.mu.Lock()
	c.watching = watching
	c.mu.Unlock()
}

func decodeParams(req *jsonrpc2.Request, target interface{}) error {
	if req.Params == nil {
		return errors.New("missing params")
	}
	return json.Unmarshal(*req.Params, target)
}

func withMethod(fields map[string]string, method string) map[string]string {
	if fields == nil {
		fields = map[string]string{}
	}
	fields["method"] = method
	return fields
}
