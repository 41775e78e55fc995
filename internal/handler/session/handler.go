package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/RavenWorks247/AgroPredict/internal/model/chat"
	sessionservice "github.com/RavenWorks247/AgroPredict/internal/service/session"
	"github.com/RavenWorks247/AgroPredict/pkg/utils"
)

const (
	msgSaveFields = "Please provide user_id, session_id, and session_data in the request"
	msgLoadFields = "Please provide user_id and session_id"
	msgListFields = "Please provide user_id"
	msgNotFound   = "Session not found"
	msgInternal   = "An internal error occurred while processing the request"

	// TimestampLayout renders creation times with microseconds and a numeric
	// UTC offset.
	TimestampLayout = "2006-01-02T15:04:05.000000-07:00"
)

// Records persists saved session documents.
type Records interface {
	Save(ctx context.Context, userID, sessionID string, data json.RawMessage) error
	Load(ctx context.Context, userID, sessionID string) (json.RawMessage, error)
	List(ctx context.Context, userID string) ([]chat.SessionSummary, error)
}

// Handler 会话存档的HTTP处理器
type Handler struct {
	records Records
}

// New 创建会话存档处理器
func New(records Records) *Handler {
	return &Handler{records: records}
}

// RegisterRoutes 注册会话存档相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/save_session", h.handleSave)
	r.Get("/load_session", h.handleLoad)
	r.Get("/list_sessions", h.handleList)
}

type saveRequest struct {
	UserID      string          `json:"user_id" validate:"required,excludesall=/"`
	SessionID   string          `json:"session_id" validate:"required,excludesall=/"`
	SessionData json.RawMessage `json:"session_data" validate:"required"`
}

type loadRequest struct {
	UserID    string `validate:"required,excludesall=/"`
	SessionID string `validate:"required,excludesall=/"`
}

type listRequest struct {
	UserID string `validate:"required,excludesall=/"`
}

func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, msgSaveFields)
		return
	}

	if err := h.records.Save(r.Context(), req.UserID, req.SessionID, req.SessionData); err != nil {
		if errors.Is(err, sessionservice.ErrInvalidRecord) {
			utils.RespondError(w, http.StatusBadRequest, msgSaveFields)
			return
		}
		log.Printf("[session] save failed user=%s session=%s: %v", req.UserID, req.SessionID, err)
		utils.RespondError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Session saved for user %s, session %s", req.UserID, req.SessionID),
	})
}

func (h *Handler) handleLoad(w http.ResponseWriter, r *http.Request) {
	req := loadRequest{
		UserID:    r.URL.Query().Get("user_id"),
		SessionID: r.URL.Query().Get("session_id"),
	}
	if err := utils.Validate(req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, msgLoadFields)
		return
	}

	data, err := h.records.Load(r.Context(), req.UserID, req.SessionID)
	if errors.Is(err, sessionservice.ErrSessionNotFound) {
		utils.RespondError(w, http.StatusNotFound, msgNotFound)
		return
	}
	if err != nil {
		log.Printf("[session] load failed user=%s session=%s: %v", req.UserID, req.SessionID, err)
		utils.RespondError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	utils.RespondJSON(w, http.StatusOK, data)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	req := listRequest{UserID: r.URL.Query().Get("user_id")}
	if err := utils.Validate(req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, msgListFields)
		return
	}

	summaries, err := h.records.List(r.Context(), req.UserID)
	if err != nil {
		log.Printf("[session] list failed user=%s: %v", req.UserID, err)
		utils.RespondError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	out := make(map[string]string, len(summaries))
	for _, s := range summaries {
		out[s.ID] = s.CreatedAt.In(time.UTC).Format(TimestampLayout)
	}
	utils.RespondJSON(w, http.StatusOK, out)
}
