package proxy

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticSource string

func (s staticSource) DebuggerURL() string { return string(s) }

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestProxyRelaysFrames(t *testing.T) {
	// stand-in for the browser: echoes every frame with a prefix
	browser := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, append([]byte("echo:"), msg...)); err != nil {
				return
			}
		}
	}))
	defer browser.Close()

	srv := NewServer(staticSource(wsURL(browser.URL)), zap.NewNop())
	front := httptest.NewServer(http.HandlerFunc(srv.HandleDebugConnection))
	defer front.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(front.URL), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"id":1,"method":"Browser.getVersion"}`)))
	_, reply, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, `echo:{"id":1,"method":"Browser.getVersion"}`, string(reply))
}

func TestProxyRejectsCrossOriginPages(t *testing.T) {
	browser := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer browser.Close()

	srv := NewServer(staticSource(wsURL(browser.URL)), zap.NewNop())
	front := httptest.NewServer(http.HandlerFunc(srv.HandleDebugConnection))
	defer front.Close()

	header := http.Header{}
	header.Set("Origin", "https://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(front.URL), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestProxyWithoutBrowser(t *testing.T) {
	srv := NewServer(staticSource(""), zap.NewNop())

	rec := httptest.NewRecorder()
	srv.HandleDebugConnection(rec, httptest.NewRequest(http.MethodGet, "/api/debug/ws", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestProxyBrowserUnreachable(t *testing.T) {
	srv := NewServer(staticSource("ws://127.0.0.1:1/devtools/browser"), zap.NewNop())

	rec := httptest.NewRecorder()
	srv.HandleDebugConnection(rec, httptest.NewRequest(http.MethodGet, "/api/debug/ws", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
