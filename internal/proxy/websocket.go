// Package proxy relays a client websocket to the shared browser's DevTools endpoint.
package proxy

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const dialTimeout = 10 * time.Second

// DevTools clients send no Origin; browsers do, and only same-host pages may connect
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	},
}

// DebuggerSource exposes the DevTools websocket of the running browser.
// An empty URL means no browser is running.
type DebuggerSource interface {
	DebuggerURL() string
}

type Server struct {
	source DebuggerSource
	dialer *websocket.Dialer
	logger *zap.Logger
}

func NewServer(source DebuggerSource, logger *zap.Logger) *Server {
	return &Server{
		source: source,
		dialer: websocket.DefaultDialer,
		logger: logger,
	}
}

// HandleDebugConnection upgrades the request and pipes CDP frames both ways
// until either side closes.
func (s *Server) HandleDebugConnection(w http.ResponseWriter, r *http.Request) {
	target := s.source.DebuggerURL()
	if target == "" {
		http.Error(w, "Browser is not running", http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), dialTimeout)
	defer cancel()

	browserConn, _, err := s.dialer.DialContext(ctx, target, nil)
	if err != nil {
		s.logger.Error("Failed to connect to browser", zap.String("target", target), zap.Error(err))
		http.Error(w, "Failed to connect to browser", http.StatusBadGateway)
		return
	}
	defer browserConn.Close()

	clientConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Failed to upgrade debug connection", zap.Error(err))
		return
	}
	defer clientConn.Close()

	s.logger.Info("Debug client connected", zap.String("remote", r.RemoteAddr))

	errChan := make(chan error, 2)
	go func() {
		errChan <- s.pipe(clientConn, browserConn, "client->browser")
	}()
	go func() {
		errChan <- s.pipe(browserConn, clientConn, "browser->client")
	}()

	err = <-errChan
	var closeErr *websocket.CloseError
	if err != nil && !errors.As(err, &closeErr) {
		s.logger.Warn("Debug proxy stopped", zap.Error(err))
	}

	s.logger.Info("Debug client disconnected", zap.String("remote", r.RemoteAddr))
}

func (s *Server) pipe(src, dst *websocket.Conn, direction string) error {
	for {
		messageType, message, err := src.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("Websocket read failed", zap.String("direction", direction), zap.Error(err))
			}
			return err
		}

		if err := dst.WriteMessage(messageType, message); err != nil {
			return err
		}
	}
}
