package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/vitalwatch-io/vw-alert-engine/pkg/broadcast"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Dashboards and companion apps connect from their own origins.
		return true
	},
}

// StreamHandler serves per-subject event streams over websocket. Each
// connection gets its own hub subscription; a connection that cannot
// keep up loses events rather than stalling publishers.
type StreamHandler struct {
	hub *broadcast.Hub
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(hub *broadcast.Hub) *StreamHandler {
	return &StreamHandler{hub: hub}
}

// Serve upgrades the request and relays the subject's alert and
// emergency events until the client disconnects.
func (h *StreamHandler) Serve(c echo.Context) error {
	subjectID := c.Param("id")

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logrus.Errorf("Websocket upgrade failed for subject %s: %v", subjectID, err)
		return err
	}

	sub := h.hub.Subscribe(subjectID)
	logrus.Infof("Stream client connected for subject %s", subjectID)

	go h.writePump(conn, sub, subjectID)
	go h.readPump(conn, sub, subjectID)
	return nil
}

// writePump relays hub events to the connection and keeps it alive with
// pings. It owns all writes on the connection.
func (h *StreamHandler) writePump(conn *websocket.Conn, sub *broadcast.Subscription, subjectID string) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.Close()
		conn.Close()
	}()

	for {
		select {
		case event, ok := <-sub.Events():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				logrus.Debugf("Stream write for subject %s failed: %v", subjectID, err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains the connection so pong handlers fire, and tears the
// subscription down when the client goes away.
func (h *StreamHandler) readPump(conn *websocket.Conn, sub *broadcast.Subscription, subjectID string) {
	defer func() {
		sub.Close()
		conn.Close()
		logrus.Infof("Stream client disconnected for subject %s", subjectID)
	}()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logrus.Debugf("Stream read for subject %s failed: %v", subjectID, err)
			}
			return
		}
	}
}
