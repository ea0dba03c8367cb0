// Websocket HTTP handler.
//
//   - GET /ws/sessions/{id}  (attach to a session's realtime channel)
//
// The socket is outbound-biased: the server pushes message, session,
// reaction, and read events; the only inbound frames it honors are typing
// pulses, which are rebroadcast to the peer without persistence.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/quietline/go-support-backend/internal/http/middleware"
	"github.com/quietline/go-support-backend/internal/realtime"
)

const (
	wsReadLimit    = 4 << 10
	wsPongWait     = 60 * time.Second
	maxTypingPulse = 1 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin enforcement happens at the proxy; the service itself cannot
	// distinguish trusted origins in every deployment.
	CheckOrigin: func(*http.Request) bool { return true },
}

// AttachWS godoc
// @ID          attachWS
// @Summary     Attach to a session's realtime channel
// @Description Upgrades to a websocket carrying the session's event stream.
// @Description A reconnect replaces the caller's previous socket.
// @Tags        Realtime
// @Param       id  path  string  true  "Session ID"  format(uuid)
// @Success     101
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /ws/sessions/{id} [get]
func (h *Handlers) AttachWS(c *gin.Context) {
	ctx := c.Request.Context()
	uid := middleware.UserID(c)
	sessionID := c.Param("id")

	// Participant check before the upgrade; an ended session can still be
	// attached to so the client receives the terminal event on reconnect.
	if _, err := h.sessions.Get(ctx, sessionID, uid); err != nil {
		failSessionErr(c, err)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote its own error response.
		return
	}

	conn := realtime.NewConnection(uid, sessionID, ws)
	h.hub.Attach(conn)
	middleware.WSConnected()

	go h.readLoop(conn, ws)
}

// readLoop consumes inbound frames until the socket dies. Typing pulses are
// throttled per connection and rebroadcast; everything else is ignored.
func (h *Handlers) readLoop(conn *realtime.Connection, ws *websocket.Conn) {
	defer func() {
		h.hub.Detach(conn)
		conn.Close(websocket.CloseNormalClosure, "read loop done")
		middleware.WSDisconnected()
	}()

	ws.SetReadLimit(wsReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(wsPongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	var lastPulse time.Time
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var ev realtime.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			continue
		}
		if ev.Type != realtime.TypeTyping {
			continue
		}
		if since := time.Since(lastPulse); since < maxTypingPulse {
			continue
		}
		lastPulse = time.Now()

		pulse := realtime.NewEvent(realtime.TypeTyping, realtime.EventPulse, realtime.TypingPayload{
			SessionID: conn.SessionID,
			UserID:    conn.UserID,
		})
		h.hub.Broadcast(conn.SessionID, pulse, conn.UserID)
	}
}
