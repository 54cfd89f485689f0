package api

import (
	"net/http"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/olx-analyzer/backend/internal/models"
)

// WebSocket message types for the progress protocol
const (
	// Client -> Server messages
	MsgTypePing = "ping"

	// Server -> Client messages
	MsgTypeProgress = "progress"
	MsgTypeComplete = "complete"
	MsgTypeError    = "error"
	MsgTypePong     = "pong"
)

// WSMessage is one progress frame.
type WSMessage struct {
	Type      string                  `json:"type"`
	Session   *models.DocumentSession `json:"session,omitempty"`
	Message   string                  `json:"message,omitempty"`
	Timestamp int64                   `json:"timestamp"`
}

// progressStreamer pushes session snapshots to websocket clients until the
// load finishes.
type progressStreamer struct {
	sessionMgr SessionManager
	upgrader   websocket.Upgrader
	interval   time.Duration
	timeout    time.Duration
}

func newProgressStreamer(sessionMgr SessionManager) *progressStreamer {
	return &progressStreamer{
		sessionMgr: sessionMgr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow connections from dev server
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
		},
		interval: 200 * time.Millisecond,
		timeout:  30 * time.Minute,
	}
}

func (p *progressStreamer) serve(c echo.Context, id string, onDone func(*models.DocumentSession)) error {
	ws, err := p.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader already wrote the HTTP error.
		glog.V(1).Infof("[WebSocket] upgrade for %s failed: %v", shortID(id), err)
		return nil
	}
	defer ws.Close()
	glog.V(1).Infof("[WebSocket] progress client connected for %s", shortID(id))

	// Reads run on their own goroutine so pings are answered while loading.
	pings := make(chan struct{}, 1)
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			var msg WSMessage
			if err := ws.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					glog.V(1).Infof("[WebSocket] connection error: %v", err)
				}
				return
			}
			if msg.Type == MsgTypePing {
				select {
				case pings <- struct{}{}:
				default:
				}
			}
		}
	}()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	deadline := time.NewTimer(p.timeout)
	defer deadline.Stop()

	var lastProgress float64 = -1
	for {
		sess, ok := p.sessionMgr.GetSession(id)
		if !ok {
			p.send(ws, WSMessage{Type: MsgTypeError, Message: "session not found"})
			return nil
		}
		switch sess.Status {
		case models.SessionStatusComplete:
			onDone(sess)
			p.send(ws, WSMessage{Type: MsgTypeComplete, Session: sess})
			return nil
		case models.SessionStatusError:
			onDone(sess)
			msg := "load failed"
			if len(sess.Errors) > 0 {
				msg = sess.Errors[0]
			}
			p.send(ws, WSMessage{Type: MsgTypeError, Session: sess, Message: msg})
			return nil
		}
		if sess.Progress != lastProgress {
			lastProgress = sess.Progress
			if err := p.send(ws, WSMessage{Type: MsgTypeProgress, Session: sess}); err != nil {
				return nil
			}
		}

		select {
		case <-ticker.C:
		case <-pings:
			if err := p.send(ws, WSMessage{Type: MsgTypePong}); err != nil {
				return nil
			}
		case <-closed:
			glog.V(1).Infof("[WebSocket] progress client for %s disconnected", shortID(id))
			return nil
		case <-deadline.C:
			p.send(ws, WSMessage{Type: MsgTypeError, Message: "timed out waiting for session"})
			return nil
		}
	}
}

func (p *progressStreamer) send(ws *websocket.Conn, msg WSMessage) error {
	msg.Timestamp = time.Now().UnixMilli()
	ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	err := ws.WriteJSON(msg)
	if err != nil {
		glog.V(1).Infof("[WebSocket] write failed: %v", err)
	}
	return err
}
