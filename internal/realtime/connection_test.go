package realtime

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// newSocketPair upgrades a loopback websocket and hands back both ends.
func newSocketPair(t *testing.T) (server, client *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	accepted := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted <- ws
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	select {
	case server = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("upgrade timed out")
	}
	return server, client
}

func TestConnection_DeliversPayload(t *testing.T) {
	server, client := newSocketPair(t)
	conn := NewConnection("u1", "s1", server)
	conn.Start()
	defer conn.Close(websocket.CloseNormalClosure, "test done")

	if err := conn.Send([]byte(`{"hello":true}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if string(payload) != `{"hello":true}` {
		t.Fatalf("payload = %s", payload)
	}
}

func TestConnection_SendAfterCloseReturnsError(t *testing.T) {
	server, _ := newSocketPair(t)
	conn := NewConnection("u1", "s1", server)
	conn.Start()

	conn.Close(websocket.CloseNormalClosure, "bye")
	if err := conn.Send([]byte("late")); !errors.Is(err, ErrConnClosed) {
		t.Fatalf("err = %v, want ErrConnClosed", err)
	}
}

func TestConnection_ConcurrentSendAndClose(t *testing.T) {
	server, _ := newSocketPair(t)
	conn := NewConnection("u1", "s1", server)
	conn.Start()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = conn.Send([]byte("tick"))
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		conn.Close(websocket.CloseGoingAway, "racing close")
	}()
	wg.Wait()

	// Double close stays a no-op.
	conn.Close(websocket.CloseGoingAway, "again")
}

func TestConnection_CloseIsIdempotent(t *testing.T) {
	server, _ := newSocketPair(t)
	conn := NewConnection("u1", "s1", server)
	conn.Start()

	conn.Close(websocket.CloseNormalClosure, "first")
	conn.Close(websocket.CloseNormalClosure, "second")
}
