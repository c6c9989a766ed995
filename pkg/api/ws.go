package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"taskpulse/pkg/bus"
	"taskpulse/pkg/logger"
)

const (
	// Liveness probe cadence. A session whose probe fails is torn down.
	pingInterval = 5 * time.Second
	// Per-message write deadline.
	writeWait = 10 * time.Second
	// How long the read side tolerates silence before declaring the
	// connection half-open. Inbound client text and pongs both reset it.
	readWait = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Same-origin requests have no Origin header
		}
		if isAllowedOrigin(origin) {
			return true
		}
		logger.WarnCF("ws", "Rejected WebSocket from disallowed origin", map[string]interface{}{"origin": origin})
		return false
	},
}

// wsSession bridges one bus subscription to one WebSocket connection. The
// write pump drains the subscription queue and sends liveness probes; the
// read pump discards inbound client text, using it only as a liveness
// signal. Either pump failing closes the connection, which unblocks the
// other and ends the session.
type wsSession struct {
	conn *websocket.Conn
	sub  *bus.Subscription

	closeOnce sync.Once
}

// handleWebSocket upgrades the request and starts a listener session.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.ErrorCF("ws", "WebSocket upgrade failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	sess := &wsSession{
		conn: conn,
		sub:  s.bus.Subscribe(),
	}

	logger.DebugCF("ws", "Listener connected", map[string]interface{}{
		"session": sess.sub.ID(),
	})

	go sess.writePump()
	go sess.readPump()
}

// teardown unsubscribes from the bus and closes the connection. Both pumps
// call it; whichever fails first wins and the close unblocks the other.
func (sess *wsSession) teardown() {
	sess.closeOnce.Do(func() {
		sess.sub.Close()
		sess.conn.Close()
		logger.DebugCF("ws", "Listener disconnected", map[string]interface{}{
			"session": sess.sub.ID(),
		})
	})
}

func (sess *wsSession) readPump() {
	defer sess.teardown()

	sess.conn.SetReadLimit(512)
	sess.conn.SetReadDeadline(time.Now().Add(readWait))
	sess.conn.SetPongHandler(func(string) error {
		sess.conn.SetReadDeadline(time.Now().Add(readWait))
		return nil
	})

	for {
		// Inbound payloads are discarded; any traffic counts as liveness.
		if _, _, err := sess.conn.ReadMessage(); err != nil {
			return
		}
		sess.conn.SetReadDeadline(time.Now().Add(readWait))
	}
}

func (sess *wsSession) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		sess.teardown()
	}()

	for {
		select {
		case ev, ok := <-sess.sub.Events():
			if !ok {
				// Unsubscribed (bus shutdown or slow-consumer drop).
				sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
				sess.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(ev)
			if err != nil {
				logger.ErrorCF("ws", "Event marshal failed", map[string]interface{}{
					"error": err.Error(),
				})
				continue
			}

			sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sess.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sess.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
