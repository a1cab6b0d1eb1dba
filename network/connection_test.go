package network

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// wsPair dials a throwaway websocket server and hands back both ends.
func wsPair(t *testing.T) (server *websocket.Conn, client *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	serverSide := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		serverSide <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	select {
	case server = <-serverSide:
	case <-time.After(2 * time.Second):
		t.Fatal("server side of the websocket never arrived")
	}
	return server, client
}

func TestWSConnection_RoundTrip(t *testing.T) {
	serverConn, clientConn := wsPair(t)
	conn := NewWSConnection(serverConn)
	defer conn.Close()

	if err := conn.Send(MustEnvelope(KindRoomList, RoomList{})); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, data, err := clientConn.ReadMessage()
	if err != nil {
		t.Fatalf("client read failed: %v", err)
	}
	if msgType != websocket.TextMessage {
		t.Errorf("expected a text frame, got type %d", msgType)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("client received a malformed envelope: %v", err)
	}
	if env.Type != KindRoomList {
		t.Errorf("expected type %q, got %q", KindRoomList, env.Type)
	}

	// And the other direction.
	out, _ := json.Marshal(MustEnvelope(KindHeartbeat, nil))
	if err := clientConn.WriteMessage(websocket.TextMessage, out); err != nil {
		t.Fatalf("client write failed: %v", err)
	}
	got, err := conn.ReadEnvelope()
	if err != nil {
		t.Fatalf("ReadEnvelope failed: %v", err)
	}
	if got.Type != KindHeartbeat {
		t.Errorf("expected type %q, got %q", KindHeartbeat, got.Type)
	}
}

func TestWSConnection_RejectsMalformedFrames(t *testing.T) {
	serverConn, clientConn := wsPair(t)
	conn := NewWSConnection(serverConn)
	defer conn.Close()

	cases := []struct {
		name    string
		msgType int
		data    []byte
	}{
		{"binary frame", websocket.BinaryMessage, []byte{0x01, 0x02}},
		{"broken json", websocket.TextMessage, []byte(`{"v":1,`)},
		{"missing type", websocket.TextMessage, []byte(`{"v":1}`)},
	}
	for _, tc := range cases {
		if err := clientConn.WriteMessage(tc.msgType, tc.data); err != nil {
			t.Fatalf("%s: client write failed: %v", tc.name, err)
		}
		if _, err := conn.ReadEnvelope(); !errors.Is(err, ErrBadEnvelope) {
			t.Errorf("%s: expected ErrBadEnvelope, got %v", tc.name, err)
		}
	}
}

func TestWSConnection_SendAfterClose(t *testing.T) {
	serverConn, _ := wsPair(t)
	conn := NewWSConnection(serverConn)

	if err := conn.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// Close is idempotent.
	if err := conn.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	if err := conn.Send(MustEnvelope(KindHeartbeat, nil)); !errors.Is(err, ErrConnClosed) {
		t.Errorf("expected ErrConnClosed, got %v", err)
	}
}

func TestWSConnection_FullQueueDropsConnection(t *testing.T) {
	serverConn, _ := wsPair(t)

	// No writer goroutine, so nothing drains the queue.
	conn := &WSConnection{
		conn:     serverConn,
		outbound: make(chan *Envelope, 2),
		closed:   make(chan struct{}),
	}

	env := MustEnvelope(KindHeartbeat, nil)
	if err := conn.Send(env); err != nil {
		t.Fatalf("first Send failed: %v", err)
	}
	if err := conn.Send(env); err != nil {
		t.Fatalf("second Send failed: %v", err)
	}

	// A backlogged peer is dropped, not waited on.
	if err := conn.Send(env); !errors.Is(err, ErrSendQueueFull) {
		t.Fatalf("expected ErrSendQueueFull, got %v", err)
	}
	if err := conn.Send(env); !errors.Is(err, ErrConnClosed) {
		t.Errorf("expected ErrConnClosed after the drop, got %v", err)
	}
}
