package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/RavenWorks247/AgroPredict/internal/model/chat"
	"github.com/RavenWorks247/AgroPredict/internal/service/analysis"
	"github.com/RavenWorks247/AgroPredict/pkg/utils"
)

const (
	msgAnalyzeFields = "Please provide a sentence, session_id, and user_id in the request"
	msgChatFields    = "Please provide a message, session_id, and user_id in the request"
	msgContextFields = "Please provide user_id and session_id"
	msgClearFields   = "Please provide a session_id and user_id in the request"
	msgExtraction    = "Could not extract crop and region from the sentence"
	msgInternal      = "An internal error occurred while processing the request"
)

// Advisor runs analyze and chat exchanges.
type Advisor interface {
	Analyze(ctx context.Context, userID, sessionID, sentence string) (string, error)
	Chat(ctx context.Context, userID, sessionID, message string) (string, error)
}

// Contexts exposes the rolling conversation window.
type Contexts interface {
	History(ctx context.Context, userID, sessionID string) ([]chat.Message, error)
	Clear(ctx context.Context, userID, sessionID string) error
}

// Handler 顾问对话的HTTP处理器
type Handler struct {
	advisor  Advisor
	contexts Contexts
}

// New 创建对话处理器
func New(advisor Advisor, contexts Contexts) *Handler {
	return &Handler{
		advisor:  advisor,
		contexts: contexts,
	}
}

// RegisterRoutes 注册对话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/analyze", h.handleAnalyze)
	r.Post("/chat", h.handleChat)
	r.Get("/context", h.handleContext)
	r.Post("/clear_context", h.handleClearContext)
}

type analyzeRequest struct {
	Sentence  string `json:"sentence" validate:"required"`
	SessionID string `json:"session_id" validate:"required,excludesall=/"`
	UserID    string `json:"user_id" validate:"required,excludesall=/"`
}

type chatRequest struct {
	Message   string `json:"message" validate:"required"`
	SessionID string `json:"session_id" validate:"required,excludesall=/"`
	UserID    string `json:"user_id" validate:"required,excludesall=/"`
}

type keyRequest struct {
	SessionID string `json:"session_id" validate:"required,excludesall=/"`
	UserID    string `json:"user_id" validate:"required,excludesall=/"`
}

// handleAnalyze 抽取作物与地区并生成适宜性分析
func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, msgAnalyzeFields)
		return
	}

	result, err := h.advisor.Analyze(r.Context(), req.UserID, req.SessionID, req.Sentence)
	if err != nil {
		respondAdvisorError(w, "analyze", err, msgAnalyzeFields)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"crop_analysis": result})
}

// handleChat 追问
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, msgChatFields)
		return
	}

	result, err := h.advisor.Chat(r.Context(), req.UserID, req.SessionID, req.Message)
	if err != nil {
		respondAdvisorError(w, "chat", err, msgChatFields)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"response": result})
}

// handleContext 返回未过期的对话上下文
func (h *Handler) handleContext(w http.ResponseWriter, r *http.Request) {
	req := keyRequest{
		UserID:    r.URL.Query().Get("user_id"),
		SessionID: r.URL.Query().Get("session_id"),
	}
	if err := utils.Validate(req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, msgContextFields)
		return
	}

	history, err := h.contexts.History(r.Context(), req.UserID, req.SessionID)
	if err != nil {
		log.Printf("[chat] read context failed user=%s session=%s: %v", req.UserID, req.SessionID, err)
		utils.RespondError(w, http.StatusInternalServerError, msgInternal)
		return
	}
	if history == nil {
		history = []chat.Message{}
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{"context": history})
}

// handleClearContext 清空对话上下文
func (h *Handler) handleClearContext(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, msgClearFields)
		return
	}

	if err := h.contexts.Clear(r.Context(), req.UserID, req.SessionID); err != nil {
		log.Printf("[chat] clear context failed user=%s session=%s: %v", req.UserID, req.SessionID, err)
		utils.RespondError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Context cleared for user %s, session %s", req.UserID, req.SessionID),
	})
}

func respondAdvisorError(w http.ResponseWriter, op string, err error, fieldsMsg string) {
	switch {
	case errors.Is(err, analysis.ErrExtractionFailed):
		utils.RespondError(w, http.StatusBadRequest, msgExtraction)
	case errors.Is(err, analysis.ErrInvalidInput):
		utils.RespondError(w, http.StatusBadRequest, fieldsMsg)
	default:
		log.Printf("[chat] %s failed: %v", op, err)
		utils.RespondError(w, http.StatusInternalServerError, msgInternal)
	}
}
