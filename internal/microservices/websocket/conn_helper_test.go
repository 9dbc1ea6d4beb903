package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// newConnPair returns the server side and the peer side of one live WebSocket
func newConnPair(t *testing.T) (server *websocket.Conn, peer *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	conns := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- c
	}))
	t.Cleanup(srv.Close)

	peer, _, err := websocket.DefaultDialer.Dial(wsURL(srv.URL, ""), nil)
	require.NoError(t, err)
	t.Cleanup(func() { peer.Close() })

	select {
	case server = <-conns:
	case <-time.After(2 * time.Second):
		t.Fatal("server side of the connection never arrived")
	}
	t.Cleanup(func() { server.Close() })
	return server, peer
}

func wsURL(httpURL, path string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + path
}

// readFrame reads one text frame from the peer with a deadline
func readFrame(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	msgType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, msgType)
	return data
}
