package ws

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/RavenWorks247/AgroPredict/internal/handler/chat"
	"github.com/RavenWorks247/AgroPredict/internal/observability"
	"github.com/RavenWorks247/AgroPredict/internal/service/analysis"
	"github.com/RavenWorks247/AgroPredict/pkg/utils"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// Handler 通过 WebSocket 提供分析与追问
type Handler struct {
	advisor  chat.Advisor
	contexts chat.Contexts
	metrics  *observability.Metrics
	upgrader websocket.Upgrader

	readTimeout  time.Duration
	pingInterval time.Duration
}

// New 创建WebSocket处理器
func New(advisor chat.Advisor, contexts chat.Contexts, metrics *observability.Metrics) *Handler {
	return &Handler{
		advisor:  advisor,
		contexts: contexts,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		readTimeout:  readTimeout,
		pingInterval: pingInterval,
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/chat", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id" validate:"required,excludesall=/"`
	UserID    string `json:"user_id" validate:"required,excludesall=/"`
	Text      string `json:"text"`
}

type outgoingMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// conn serializes writes; gorilla allows one concurrent writer.
type conn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (c *conn) write(msg outgoingMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.WriteJSON(msg)
}

func (c *conn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	c := &conn{Conn: raw}
	defer c.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_ = c.SetReadDeadline(time.Now().Add(h.readTimeout))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(h.readTimeout))
	})

	go h.pingLoop(ctx, c)

	for {
		var msg inboundMessage
		if err := c.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[websocket] read error: %v", err)
			}
			return
		}
		h.metrics.IncWSMessage("in", msg.Type)

		out := h.handleMessage(ctx, &msg)
		h.metrics.IncWSMessage("out", out.Type)
		if err := c.write(out); err != nil {
			log.Printf("[websocket] write failed: %v", err)
			return
		}
		// 模型调用可能超过读超时，回复后重新计时
		_ = c.SetReadDeadline(time.Now().Add(h.readTimeout))
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *inboundMessage) outgoingMessage {
	if err := utils.Validate(msg); err != nil {
		return errorMessage("Please provide session_id and user_id")
	}

	switch msg.Type {
	case "analyze":
		result, err := h.advisor.Analyze(ctx, msg.UserID, msg.SessionID, msg.Text)
		if err != nil {
			return advisorError("analyze", err)
		}
		return outgoingMessage{Type: msg.Type, Data: map[string]string{"crop_analysis": result}}
	case "chat":
		result, err := h.advisor.Chat(ctx, msg.UserID, msg.SessionID, msg.Text)
		if err != nil {
			return advisorError("chat", err)
		}
		return outgoingMessage{Type: msg.Type, Data: map[string]string{"response": result}}
	case "clear":
		if err := h.contexts.Clear(ctx, msg.UserID, msg.SessionID); err != nil {
			log.Printf("[websocket] clear failed user=%s session=%s: %v", msg.UserID, msg.SessionID, err)
			return errorMessage("An internal error occurred while processing the request")
		}
		return outgoingMessage{Type: msg.Type, Data: map[string]string{
			"message": fmt.Sprintf("Context cleared for user %s, session %s", msg.UserID, msg.SessionID),
		}}
	default:
		return errorMessage(fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

func advisorError(op string, err error) outgoingMessage {
	switch {
	case errors.Is(err, analysis.ErrExtractionFailed):
		return errorMessage("Could not extract crop and region from the sentence")
	case errors.Is(err, analysis.ErrInvalidInput):
		return errorMessage("Please provide text in the message")
	default:
		log.Printf("[websocket] %s failed: %v", op, err)
		return errorMessage("An internal error occurred while processing the request")
	}
}

func errorMessage(message string) outgoingMessage {
	return outgoingMessage{Type: "error", Data: utils.ErrorResponse{Error: message}}
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, c *conn) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}
