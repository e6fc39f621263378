// README: Hub tests: concurrent broadcast safety and driver-presence edges.
package http

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"primetransportes/internal/modules/corrida"
)

// presenceRecorder captures the visibility callbacks fired by the hub.
type presenceRecorder struct {
	mu    sync.Mutex
	calls []bool
}

func (p *presenceRecorder) set(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, v)
}

func (p *presenceRecorder) snapshot() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]bool, len(p.calls))
	copy(out, p.calls)
	return out
}

// newHubServer serves the hub on /ws with the role taken from a query param,
// standing in for the JWT middleware.
func newHubServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		c.Set(ctxRole, corrida.Role(c.Query("role")))
		hub.Handle(c)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dialHub(t *testing.T, srv *httptest.Server, role string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?role=" + role
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", role, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func clientCount(h *Hub) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// waitFor polls cond until it holds; register/unregister run in the server's
// connection goroutines.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestHubBroadcastConcurrent(t *testing.T) {
	hub := NewHub(nil, nil)
	srv := newHubServer(t, hub)
	conn := dialHub(t, srv, "admin")
	waitFor(t, func() bool { return clientCount(hub) == 1 }, "client never registered")

	// Drain everything the hub sends until the connection closes.
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Reloads fan in from the realtime event path, the poll tick and the
	// visibility transition at once; the hub must serialize the writes.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				hub.Broadcast(map[string]string{"event": "corridas_reloaded"})
			}
		}()
	}
	wg.Wait()

	conn.Close()
	<-drained
}

func TestHubDriverPresenceEdges(t *testing.T) {
	rec := &presenceRecorder{}
	hub := NewHub(rec.set, nil)
	srv := newHubServer(t, hub)

	// Non-driver clients never touch presence.
	dialHub(t, srv, "admin")
	waitFor(t, func() bool { return clientCount(hub) == 1 }, "admin never registered")
	if calls := rec.snapshot(); len(calls) != 0 {
		t.Fatalf("presence fired for a non-driver: %v", calls)
	}

	// First driver crosses 0→1.
	driver1 := dialHub(t, srv, "motorista")
	waitFor(t, func() bool { return len(rec.snapshot()) == 1 }, "no presence call for first driver")
	if calls := rec.snapshot(); !calls[0] {
		t.Fatalf("first driver reported as %v, want true", calls[0])
	}

	// A second driver is not a crossing.
	driver2 := dialHub(t, srv, "motorista")
	waitFor(t, func() bool { return clientCount(hub) == 3 }, "second driver never registered")
	if calls := rec.snapshot(); len(calls) != 1 {
		t.Fatalf("presence fired on second driver: %v", calls)
	}

	// Dropping one of two drivers is not a crossing either.
	driver1.Close()
	waitFor(t, func() bool { return clientCount(hub) == 2 }, "first driver never unregistered")
	if calls := rec.snapshot(); len(calls) != 1 {
		t.Fatalf("presence fired while a driver remained: %v", calls)
	}

	// The last driver leaving crosses 1→0.
	driver2.Close()
	waitFor(t, func() bool { return len(rec.snapshot()) == 2 }, "no presence call for last driver leaving")
	if calls := rec.snapshot(); calls[1] {
		t.Fatalf("last driver leaving reported as %v, want false", calls[1])
	}
}
