package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func wsURL(srv string) string {
	return "ws" + strings.TrimPrefix(srv, "http") + "/ws/tasks"
}

// dialListener connects a websocket client and waits until its session is
// registered on the bus, so no subsequent mutation can race the subscribe.
func dialListener(t *testing.T, e *testEnv) *websocket.Conn {
	t.Helper()

	before := e.bus.SubscriberCount()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(e.srv.URL), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	waitForCount(t, e, before+1)
	return conn
}

func waitForCount(t *testing.T, e *testEnv, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for e.bus.SubscriberCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber count stuck at %d, want %d", e.bus.SubscriberCount(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read event: %v", err)
	}

	var ev map[string]interface{}
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode event %q: %v", data, err)
	}
	return ev
}

func TestListenerReceivesLifecycleEvents(t *testing.T) {
	e := newTestEnv(t, workingCatalog)
	conn := dialListener(t, e)

	// Create → created event with full snapshot.
	resp, _ := e.do(t, "POST", "/tasks", map[string]interface{}{"title": "Buy milk"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d", resp.StatusCode)
	}

	ev := readEvent(t, conn)
	if ev["event"] != "created" || ev["task_id"] != float64(1) {
		t.Fatalf("unexpected event %v", ev)
	}
	task, ok := ev["task"].(map[string]interface{})
	if !ok {
		t.Fatalf("created event missing task snapshot: %v", ev)
	}
	if task["id"] != float64(1) || task["title"] != "Buy milk" || task["completed"] != false {
		t.Errorf("unexpected snapshot %v", task)
	}

	// Update → updated event with resulting snapshot.
	e.do(t, "PATCH", "/tasks/1", map[string]interface{}{"completed": true})
	ev = readEvent(t, conn)
	if ev["event"] != "updated" {
		t.Fatalf("expected updated event, got %v", ev)
	}
	if snap := ev["task"].(map[string]interface{}); snap["completed"] != true {
		t.Errorf("updated snapshot not current: %v", snap)
	}

	// Delete → deleted event with no snapshot.
	e.do(t, "DELETE", "/tasks/1", nil)
	ev = readEvent(t, conn)
	if ev["event"] != "deleted" || ev["task_id"] != float64(1) {
		t.Fatalf("expected deleted event, got %v", ev)
	}
	if _, present := ev["task"]; present {
		t.Errorf("deleted event must omit task payload: %v", ev)
	}
}

func TestListenerJoinedAfterMutationMissesIt(t *testing.T) {
	e := newTestEnv(t, workingCatalog)

	e.do(t, "POST", "/tasks", map[string]interface{}{"title": "before anyone listened"})

	conn := dialListener(t, e)

	// The only event this listener may see is one published after it joined.
	e.do(t, "POST", "/tasks", map[string]interface{}{"title": "after"})

	ev := readEvent(t, conn)
	if ev["task_id"] != float64(2) {
		t.Fatalf("listener saw a pre-subscription event: %v", ev)
	}
}

func TestTwoListenersBothReceive(t *testing.T) {
	e := newTestEnv(t, workingCatalog)
	first := dialListener(t, e)
	second := dialListener(t, e)

	e.do(t, "POST", "/tasks", map[string]interface{}{"title": "shared"})

	for _, conn := range []*websocket.Conn{first, second} {
		ev := readEvent(t, conn)
		if ev["event"] != "created" || ev["task_id"] != float64(1) {
			t.Errorf("listener missed event: %v", ev)
		}
	}
}

func TestDisconnectRemovesSession(t *testing.T) {
	e := newTestEnv(t, workingCatalog)

	conn := dialListener(t, e)
	stayer := dialListener(t, e)

	conn.Close()
	waitForCount(t, e, 1)

	// The surviving listener is unaffected.
	e.do(t, "POST", "/tasks", map[string]interface{}{"title": "still flowing"})
	ev := readEvent(t, stayer)
	if ev["event"] != "created" {
		t.Errorf("surviving listener should still receive events, got %v", ev)
	}
}

func TestInboundClientTextIsDiscarded(t *testing.T) {
	e := newTestEnv(t, workingCatalog)
	conn := dialListener(t, e)

	// Clients may send arbitrary text as a liveness signal; the server
	// accepts and ignores it.
	if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
		t.Fatalf("send ping text: %v", err)
	}

	e.do(t, "POST", "/tasks", map[string]interface{}{"title": "after client ping"})
	ev := readEvent(t, conn)
	if ev["event"] != "created" {
		t.Errorf("session should survive inbound text, got %v", ev)
	}
}

func TestServerSendsPingProbes(t *testing.T) {
	e := newTestEnv(t, workingCatalog)
	conn := dialListener(t, e)

	pinged := make(chan struct{}, 1)
	conn.SetPingHandler(func(string) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return conn.WriteMessage(websocket.PongMessage, nil)
	})

	// Pings only surface while a read is in flight.
	go func() {
		conn.SetReadDeadline(time.Now().Add(8 * time.Second))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-pinged:
	case <-time.After(7 * time.Second):
		t.Fatal("no liveness probe within ping interval")
	}
}
