package api

import (
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"latera/internal/logging"
)

const (
	wsBufferSize   = 1024
	wsWriteTimeout = 10 * time.Second
	// Close reasons travel in a control frame, which caps the payload at 125 bytes.
	wsMaxCloseReason = 123
)

var errWSNilOutput = errors.New("websocket output channel is nil")

type wsStreamConfig[T any] struct {
	Logger         *logging.Logger
	AllowedOrigins []string
	// Conn is used as is when set; otherwise the request is upgraded.
	Conn         *websocket.Conn
	Output       <-chan T
	BuildPayload func(T) (any, bool)
	WriteTimeout time.Duration
	// PingInterval enables keepalive pings; zero disables them.
	PingInterval time.Duration
}

func requireWSToken(w http.ResponseWriter, r *http.Request, token string, logger *logging.Logger) bool {
	if validateToken(r, token) {
		return true
	}
	writeWSError(w, r, nil, logger, streamError{Status: http.StatusUnauthorized, Message: "unauthorized"})
	return false
}

func upgradeWebSocket(w http.ResponseWriter, r *http.Request, allowedOrigins []string) (*websocket.Conn, error) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  wsBufferSize,
		WriteBufferSize: wsBufferSize,
		CheckOrigin: func(req *http.Request) bool {
			return isOriginAllowed(req, allowedOrigins)
		},
	}
	return upgrader.Upgrade(w, r, nil)
}

// isOriginAllowed admits requests without an Origin, origins on the allow
// list, and same-host origins when no list is configured.
func isOriginAllowed(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Hostname() == "" {
		return false
	}
	if len(allowed) == 0 {
		return strings.EqualFold(parsed.Hostname(), requestHostname(r))
	}
	for _, candidate := range allowed {
		if strings.EqualFold(origin, candidate) || strings.EqualFold(parsed.Hostname(), candidate) {
			return true
		}
	}
	return false
}

func requestHostname(r *http.Request) string {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.Trim(host, "[]")
}

// wsSession owns one upgraded connection. The writer goroutine is the only
// writer on conn; the request goroutine is the only reader.
type wsSession[T any] struct {
	conn         *websocket.Conn
	output       <-chan T
	buildPayload func(T) (any, bool)
	writeTimeout time.Duration
	pingInterval time.Duration
	done         chan struct{}
}

func newWSSession[T any](conn *websocket.Conn, config wsStreamConfig[T]) *wsSession[T] {
	session := &wsSession[T]{
		conn:         conn,
		output:       config.Output,
		buildPayload: config.BuildPayload,
		writeTimeout: config.WriteTimeout,
		pingInterval: config.PingInterval,
		done:         make(chan struct{}),
	}
	if session.writeTimeout <= 0 {
		session.writeTimeout = wsWriteTimeout
	}
	if session.buildPayload == nil {
		session.buildPayload = func(value T) (any, bool) { return value, true }
	}
	return session
}

// writeLoop forwards output until it closes, the peer goes away or the
// session is stopped. A closed output ends with a normal close frame so the
// reader side unblocks.
func (s *wsSession[T]) writeLoop() {
	var ping <-chan time.Time
	if s.pingInterval > 0 {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}
	for {
		select {
		case <-s.done:
			return
		case <-ping:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeTimeout)); err != nil {
				return
			}
		case value, ok := <-s.output:
			if !ok {
				s.close(websocket.CloseNormalClosure, "stream closed")
				return
			}
			payload, send := s.buildPayload(value)
			if !send {
				continue
			}
			if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
				return
			}
			if err := s.conn.WriteJSON(payload); err != nil {
				return
			}
		}
	}
}

// readUntilClosed drains client frames; the stream is one-way.
func (s *wsSession[T]) readUntilClosed() {
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *wsSession[T]) close(code int, reason string) {
	if len(reason) > wsMaxCloseReason {
		reason = reason[:wsMaxCloseReason]
	}
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(s.writeTimeout))
	_ = s.conn.Close()
}

func serveWSStream[T any](w http.ResponseWriter, r *http.Request, config wsStreamConfig[T]) {
	if config.Output == nil {
		streamError{Message: "websocket stream unavailable", Err: errWSNilOutput}.withDefaults().log(config.Logger, r, "websocket error")
		return
	}
	conn := config.Conn
	if conn == nil {
		var err error
		if conn, err = upgradeWebSocket(w, r, config.AllowedOrigins); err != nil {
			streamError{
				Status:  http.StatusBadRequest,
				Message: "websocket upgrade failed",
				Err:     err,
			}.log(config.Logger, r, "websocket error")
			return
		}
	}

	session := newWSSession(conn, config)
	go session.writeLoop()
	session.readUntilClosed()
	close(session.done)
	_ = conn.Close()
}

// writeWSError closes conn with a close frame when it is set and answers
// with a plain HTTP error otherwise.
func writeWSError(w http.ResponseWriter, r *http.Request, conn *websocket.Conn, logger *logging.Logger, wsErr streamError) {
	wsErr = wsErr.withDefaults()
	if wsErr.CloseCode == 0 {
		wsErr.CloseCode = closeCodeForStatus(wsErr.Status)
	}
	wsErr.log(logger, r, "websocket error")
	if conn == nil {
		http.Error(w, wsErr.Message, wsErr.Status)
		return
	}
	session := &wsSession[struct{}]{conn: conn, writeTimeout: wsWriteTimeout}
	session.close(wsErr.CloseCode, wsErr.Message)
}

func closeCodeForStatus(status int) int {
	switch {
	case status == http.StatusBadRequest:
		return websocket.CloseProtocolError
	case status == http.StatusServiceUnavailable:
		return websocket.CloseTryAgainLater
	case status >= http.StatusInternalServerError:
		return websocket.CloseInternalServerErr
	default:
		return websocket.ClosePolicyViolation
	}
}
