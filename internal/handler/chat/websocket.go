package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/timemachine/backend/internal/handler/apierror"
	"github.com/zhouzirui/timemachine/backend/internal/service/session"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// WebSocketHandler 通过WebSocket进行实时对话
type WebSocketHandler struct {
	sessions *session.Service
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(sessions *session.Service, logger *zap.Logger) *WebSocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketHandler{
		sessions: sessions,
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterWebSocketRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/chat/{scenarioID}/ws", h.handleWebSocket)
}

// Inbound frame types.
const (
	frameText = "text"
	frameHint = "hint"
	frameEnd  = "end"
)

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type textMessage struct {
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// wsConn serialises writes; gorilla allows one concurrent writer.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "scenarioID")

	view, err := h.sessions.LoadInitialView(r.Context(), sessionID)
	if err != nil {
		apierror.Respond(w, h.logger, "chat.ws", err)
		return
	}

	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer raw.Close()
	conn := &wsConn{conn: raw}

	log := h.logger.With(zap.String("session", sessionID))
	log.Info("websocket connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_ = raw.SetReadDeadline(time.Now().Add(readTimeout))
	raw.SetPongHandler(func(string) error {
		return raw.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go h.pingLoop(ctx, conn)

	h.send(conn, sessionID, "connected", map[string]any{
		"actor_name":      view.ActorName,
		"initial_message": view.OpeningLine,
		"current_state":   view.State,
	})

	for {
		var msg inboundMessage
		if err := raw.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
		_ = raw.SetReadDeadline(time.Now().Add(readTimeout))

		h.handleMessage(ctx, conn, sessionID, &msg)
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, conn *wsConn, sessionID string, msg *inboundMessage) {
	switch msg.Type {
	case frameText:
		var text textMessage
		if err := json.Unmarshal(msg.Data, &text); err != nil {
			h.sendError(conn, sessionID, "invalid text payload")
			return
		}
		result, err := h.sessions.SubmitTurn(ctx, sessionID, text.Text)
		if err != nil {
			h.sendServiceError(conn, sessionID, err)
			return
		}
		h.send(conn, sessionID, "reply", turnResponse{
			AIResponse:   result.Reply,
			UpdatedState: result.NewState,
		})
	case frameHint:
		hint, err := h.sessions.RequestHint(ctx, sessionID)
		if err != nil {
			h.sendServiceError(conn, sessionID, err)
			return
		}
		h.send(conn, sessionID, "hint", hintResponse{HintMessage: hint.Text})
	case frameEnd:
		phase, err := h.sessions.EndSimulation(ctx, sessionID)
		if err != nil {
			h.sendServiceError(conn, sessionID, err)
			return
		}
		h.send(conn, sessionID, "phase", endResponse{Phase: phase})
	default:
		h.sendError(conn, sessionID, "unsupported message type: "+msg.Type)
	}
}

func (h *WebSocketHandler) send(conn *wsConn, sessionID, kind string, data interface{}) {
	msg := outgoingMessage{
		Type:      kind,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	if err := conn.writeJSON(msg); err != nil {
		h.logger.Debug("websocket write failed", zap.String("type", kind), zap.Error(err))
	}
}

func (h *WebSocketHandler) sendError(conn *wsConn, sessionID, message string) {
	h.send(conn, sessionID, "error", map[string]any{"message": message})
}

func (h *WebSocketHandler) sendServiceError(conn *wsConn, sessionID string, err error) {
	status := apierror.Status(err)
	if status >= http.StatusInternalServerError {
		h.logger.Warn("websocket operation failed", zap.String("session", sessionID), zap.Error(err))
	}
	h.send(conn, sessionID, "error", map[string]any{
		"message": apierror.Message(err),
		"status":  status,
	})
}

// pingLoop 定期发送ping消息
func (h *WebSocketHandler) pingLoop(ctx context.Context, conn *wsConn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		}
	}
}
