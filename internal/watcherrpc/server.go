package watcherrpc

import (
	"context"
	"encoding/json"
	"io"

	"github.com/sourcegraph/jsonrpc2"

	"latera/internal/coreerr"
	"latera/internal/logging"
	"latera/internal/watcher"
)

// Server exposes a watcher.Boundary to one JSON-RPC peer.
type Server struct {
	boundary watcher.Boundary
	logger   *logging.Logger
}

type watchDirReporter interface {
	WatchDir() string
}

func NewServer(boundary watcher.Boundary, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{
		boundary: boundary,
		logger:   logger.For("watcher_rpc_server"),
	}
}

type serverSession struct {
	server *Server
	flush  chan chan struct{}
}

// Serve handles requests on rwc until the peer disconnects or ctx ends. The
// watcher is stopped before Serve returns.
func (s *Server) Serve(ctx context.Context, rwc io.ReadWriteCloser) error {
	signals, cancel := s.boundary.Subscribe()
	defer cancel()

	session := &serverSession{
		server: s,
		flush:  make(chan chan struct{}),
	}
	stream := jsonrpc2.NewBufferedStream(rwc, jsonrpc2.VSCodeObjectCodec{})
	conn := jsonrpc2.NewConn(ctx, stream, jsonrpc2.HandlerWithError(session.handle))

	forwardDone := make(chan struct{})
	go func() {
		defer close(forwardDone)
		session.forward(ctx, conn, signals)
	}()

	s.logger.Info("watcher rpc connected", nil)
	select {
	case <-conn.DisconnectNotify():
	case <-ctx.Done():
		_ = conn.Close()
		<-conn.DisconnectNotify()
	}

	if err := s.boundary.StopWatching(context.Background()); err != nil {
		s.logger.Warn("stop on disconnect failed", err.Fields())
	}
	cancel()
	<-forwardDone
	s.logger.Info("watcher rpc disconnected", nil)
	return nil
}

func (session *serverSession) handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
	server := session.server
	switch req.Method {
	case MethodStart:
		var params StartParams
		if req.Params != nil {
			if err := json.Unmarshal(*req.Params, &params); err != nil {
				return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: "InvalidPath: " + err.Error()}
			}
		}
		result := server.boundary.StartWatching(ctx, params.OverridePath)
		if !result.OK() {
			return nil, wireError(result.Err)
		}
		return StartReply{WatchDir: result.WatchDir}, nil
	case MethodStop:
		if !server.boundary.IsWatching() {
			return nil, wireError(coreerr.WatcherNotRunning())
		}
		err := server.boundary.StopWatching(ctx)
		session.flushSignals(ctx)
		if err != nil {
			return nil, wireError(err)
		}
		return struct{}{}, nil
	case MethodStatus:
		reply := StatusReply{Watching: server.boundary.IsWatching()}
		if reporter, ok := server.boundary.(watchDirReporter); ok {
			reply.WatchDir = reporter.WatchDir()
		}
		return reply, nil
	default:
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "method not found: " + req.Method}
	}
}

// forward relays watcher signals as notifications. It is the only reader of
// signals, so a flush request is answered only after every signal received
// so far has been written.
func (session *serverSession) forward(ctx context.Context, conn *jsonrpc2.Conn, signals <-chan watcher.Signal) {
	for {
		select {
		case signal, ok := <-signals:
			if !ok {
				return
			}
			session.send(ctx, conn, signal)
		case reply := <-session.flush:
			session.drain(ctx, conn, signals)
			close(reply)
		}
	}
}

func (session *serverSession) drain(ctx context.Context, conn *jsonrpc2.Conn, signals <-chan watcher.Signal) {
	for {
		select {
		case signal, ok := <-signals:
			if !ok {
				return
			}
			session.send(ctx, conn, signal)
		default:
			return
		}
	}
}

func (session *serverSession) flushSignals(ctx context.Context) {
	reply := make(chan struct{})
	select {
	case session.flush <- reply:
	case <-ctx.Done():
		return
	}
	select {
	case <-reply:
	case <-ctx.Done():
	}
}

func (session *serverSession) send(ctx context.Context, conn *jsonrpc2.Conn, signal watcher.Signal) {
	var err error
	switch signal.Kind {
	case watcher.SignalData:
		err = conn.Notify(ctx, NotifyFileAdded, fileAddedParams(signal.Event))
	case watcher.SignalError:
		err = conn.Notify(ctx, NotifyError, ErrorParams{Message: signal.Err.Marker()})
	case watcher.SignalDone:
		err = conn.Notify(ctx, NotifyDone, struct{}{})
	}
	if err != nil {
		session.server.logger.Warn("notify peer failed", map[string]string{
			"signal": string(signal.Kind),
			"error":  err.Error(),
		})
	}
}

// wireError renders a CoreError as the opaque text that crosses the boundary.
func wireError(err *coreerr.Error) *jsonrpc2.Error {
	return &jsonrpc2.Error{Code: jsonrpc2.CodeInternalError, Message: err.Marker()}
}
