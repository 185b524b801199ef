package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"kiosk-gateway/entities"
	"kiosk-gateway/logging"
	"kiosk-gateway/ws"
)

type StateReader interface {
	Current() entities.DeviceState
}

// WSHandler serves the local dashboard feed.
type WSHandler struct {
	mgr   *ws.Manager
	state StateReader
	log   *zap.SugaredLogger
}

func NewWSHandler(mgr *ws.Manager, state StateReader) *WSHandler {
	return &WSHandler{mgr: mgr, state: state, log: logging.For("ws")}
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// HandleDashboardWS upgrades to websocket and streams state changes and events.
// GET /ws?id=<client_id>
func (h *WSHandler) HandleDashboardWS(c *gin.Context) {
	clientID := c.Query("id")
	if clientID == "" {
		clientID = uuid.NewString()
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warnw("Websocket upgrade failed", "error", err)
		return
	}

	// The first frame tells the dashboard where the device stands.
	hello, _ := json.Marshal(ws.Message{
		Type:      ws.MessageState,
		Timestamp: time.Now().UTC(),
		Data:      entities.StateChange{To: h.state.Current(), Reason: "connected"},
	})
	if err := conn.WriteMessage(websocket.TextMessage, hello); err != nil {
		_ = conn.Close()
		return
	}

	h.mgr.Register(clientID, conn)
	h.log.Infow("Dashboard connected", "client", clientID)
	defer func() {
		h.mgr.Unregister(clientID)
		h.log.Infow("Dashboard disconnected", "client", clientID)
	}()

	// Dashboards only listen; reading keeps control frames flowing and
	// notices the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debugw("Dashboard read error", "client", clientID, "error", err)
			}
			return
		}
	}
}

// GetConnectedDashboards GET /ws/clients
func (h *WSHandler) GetConnectedDashboards(c *gin.Context) {
	clients := h.mgr.List()
	c.JSON(http.StatusOK, gin.H{"clients": clients, "count": len(clients)})
}
