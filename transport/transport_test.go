package transport

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialServer(t *testing.T, s *Server) (*httptest.Server, *websocket.Conn) {
	t.Helper()
	hs := httptest.NewServer(s.Handler())
	t.Cleanup(hs.Close)
	wsURL := "ws" + strings.TrimPrefix(hs.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return hs, conn
}

func TestServeIndexReturnsIndexHTML(t *testing.T) {
	s := New(func() string { return "<html>hi</html>" }, t.TempDir(), func(string, Frame) error { return nil })
	hs := httptest.NewServer(s.Handler())
	defer hs.Close()

	resp, err := hs.Client().Get(hs.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "<html>hi</html>", string(body))
}

func TestBroadcastFansOutToAllPeers(t *testing.T) {
	s := New(func() string { return "" }, t.TempDir(), func(string, Frame) error { return nil })
	go s.Run()

	_, connA := dialServer(t, s)
	_, connB := dialServer(t, s)

	waitForPeers(t, s, 2)

	s.Broadcast(Frame{"kind": "cell", "hashid": "abc"})

	var gotA, gotB Frame
	require.NoError(t, connA.ReadJSON(&gotA))
	require.NoError(t, connB.ReadJSON(&gotB))
	assert.Equal(t, "cell", gotA["kind"])
	assert.Equal(t, "cell", gotB["kind"])
}

func TestInboundFrameDispatchedByKind(t *testing.T) {
	seen := make(chan string, 1)
	s := New(func() string { return "" }, t.TempDir(), func(kind string, frame Frame) error {
		seen <- kind
		return nil
	})
	go s.Run()
	_, conn := dialServer(t, s)

	require.NoError(t, conn.WriteJSON(Frame{"kind": "ping"}))

	select {
	case kind := <-seen:
		assert.Equal(t, "ping", kind)
	case <-time.After(2 * time.Second):
		t.Fatal("inbound handler was not invoked")
	}
}

func TestSlowPeerIsDroppedNotBlocking(t *testing.T) {
	s := New(func() string { return "" }, t.TempDir(), func(string, Frame) error { return nil })
	go s.Run()

	_, fastConn := dialServer(t, s)
	waitForPeers(t, s, 1)

	// Register a synthetic peer whose send buffer is already full and
	// whose writePump was never started to drain it, so Run's non-blocking
	// select is forced to take the drop branch on the next broadcast.
	_, deadConn := dialServer(t, s)
	deadConn.Close()
	slow := &peer{conn: deadConn, send: make(chan Frame, 16)}
	for i := 0; i < cap(slow.send); i++ {
		slow.send <- Frame{"kind": "filler"}
	}
	s.mu.Lock()
	s.peers[slow] = struct{}{}
	s.mu.Unlock()

	s.Broadcast(Frame{"kind": "cell", "hashid": "xyz"})

	var got Frame
	require.NoError(t, fastConn.ReadJSON(&got))
	assert.Equal(t, "cell", got["kind"])

	s.mu.Lock()
	_, stillRegistered := s.peers[slow]
	s.mu.Unlock()
	assert.False(t, stillRegistered, "full peer should have been dropped")
}

func waitForPeers(t *testing.T, s *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		count := len(s.peers)
		s.mu.Unlock()
		if count >= n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d peers", n)
}
