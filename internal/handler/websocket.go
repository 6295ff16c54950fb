package handler

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/CageChen/fxv/internal/logging"
	"github.com/CageChen/fxv/internal/watcher"
)

// Notification types sent over the websocket.
const (
	MessageTreeChanged = "treeChanged"
	MessageFileChange  = "fileChange"
)

const writeTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	// Clients are local tools and browsers on other ports.
	CheckOrigin: func(*http.Request) bool { return true },
}

// WSMessage is one notification.
type WSMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// TreeChanged is the payload of a treeChanged message.
type TreeChanged struct {
	Workspace string `json:"workspace"`
}

// FileChange is the payload of a fileChange message.
type FileChange struct {
	Workspace string `json:"workspace"`
	Event     string `json:"event"`
	Path      string `json:"path"`
}

// WSHandler pushes tree and file change notifications to connected clients.
type WSHandler struct {
	logger *zap.Logger

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}

	// a gorilla connection allows one writer at a time
	writeMu sync.Mutex
}

// NewWSHandler creates a websocket handler. It logs nothing until SetLogger is called.
func NewWSHandler() *WSHandler {
	return &WSHandler{
		logger: zap.NewNop(),
		conns:  make(map[*websocket.Conn]struct{}),
	}
}

// SetLogger sets the logger used for connection events.
func (h *WSHandler) SetLogger(l *zap.Logger) {
	h.logger = logging.OrNop(l)
}

// HandleWS upgrades the request and keeps the connection until the client goes away.
// Incoming messages are read and discarded.
func (h *WSHandler) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", zap.String("remote", c.Request.RemoteAddr))

	defer h.drop(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// OnTreeChanged announces a newly published tree.
func (h *WSHandler) OnTreeChanged(name string) {
	h.send(MessageTreeChanged, TreeChanged{Workspace: name})
}

// OnFileChange announces a watcher event.
func (h *WSHandler) OnFileChange(event watcher.Event) {
	h.send(MessageFileChange, FileChange{
		Workspace: event.Workspace,
		Event:     event.Type.String(),
		Path:      event.Path,
	})
}

// ClientCount returns the number of connected clients.
func (h *WSHandler) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *WSHandler) drop(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.conns[conn]
	delete(h.conns, conn)
	h.mu.Unlock()
	if ok {
		_ = conn.Close()
	}
}

func (h *WSHandler) send(kind string, payload any) {
	data, err := json.Marshal(WSMessage{Type: kind, Payload: payload})
	if err != nil {
		h.logger.Error("encoding websocket message", zap.String("type", kind), zap.Error(err))
		return
	}

	h.mu.Lock()
	targets := make([]*websocket.Conn, 0, len(h.conns))
	for conn := range h.conns {
		targets = append(targets, conn)
	}
	h.mu.Unlock()

	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	for _, conn := range targets {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Debug("dropping websocket client", zap.Error(err))
			h.drop(conn)
		}
	}
}
