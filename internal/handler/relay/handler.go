package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/RavenWorks247/AgroPredict/pkg/utils"
)

const (
	msgInvalidJSON   = "Please provide a valid JSON request"
	msgUnknownShape  = "Please provide either 'sentence' for crop analysis or 'message' for chat"
	msgBackendStatus = "Error from Gemini service"
	msgBackendDown   = "Failed to communicate with Gemini service"
	msgContextStatus = "Error retrieving context from Gemini service"

	maxBodyBytes = 1 << 20
)

// Handler 将前端请求转发给后端服务
type Handler struct {
	backendURL string
	client     *http.Client
}

// New 创建转发处理器
func New(backendURL string, timeout time.Duration) *Handler {
	return &Handler{
		backendURL: strings.TrimRight(backendURL, "/"),
		client:     &http.Client{Timeout: timeout},
	}
}

// RegisterRoutes 注册转发路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.handleForward)
	r.Options("/", preflight(http.MethodPost))
	r.Get("/context", h.handleContext)
	r.Options("/context", preflight(http.MethodGet))
}

func preflight(method string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", method)
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		h.Set("Access-Control-Max-Age", "3600")
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleForward 根据请求内容选择 /analyze 或 /chat
func (h *Handler) handleForward(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || len(fields) == 0 {
		log.Printf("[relay] invalid request body: %q", body)
		utils.RespondError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}

	var endpoint string
	switch {
	case fields["sentence"] != nil:
		endpoint = "/analyze"
	case fields["message"] != nil:
		endpoint = "/chat"
	default:
		utils.RespondError(w, http.StatusBadRequest, msgUnknownShape)
		return
	}

	requestID := uuid.NewString()
	status, payload, err := h.do(r.Context(), http.MethodPost, h.backendURL+endpoint, requestID, body)
	if err != nil {
		log.Printf("[relay] request=%s %s failed: %v", requestID, endpoint, err)
		utils.RespondError(w, http.StatusInternalServerError, msgBackendDown)
		return
	}
	if status != http.StatusOK || !json.Valid(payload) {
		log.Printf("[relay] request=%s %s returned status=%d body=%s", requestID, endpoint, status, payload)
		utils.RespondError(w, http.StatusInternalServerError, msgBackendStatus)
		return
	}

	log.Printf("[relay] request=%s %s ok", requestID, endpoint)
	writeRaw(w, payload)
}

// handleContext 透传查询参数获取上下文
func (h *Handler) handleContext(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	target := h.backendURL + "/context"
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	requestID := uuid.NewString()
	status, payload, err := h.do(r.Context(), http.MethodGet, target, requestID, nil)
	if err != nil {
		log.Printf("[relay] request=%s /context failed: %v", requestID, err)
		utils.RespondError(w, http.StatusInternalServerError, msgBackendDown)
		return
	}
	if status != http.StatusOK || !json.Valid(payload) {
		log.Printf("[relay] request=%s /context returned status=%d body=%s", requestID, status, payload)
		utils.RespondError(w, http.StatusInternalServerError, msgContextStatus)
		return
	}

	writeRaw(w, payload)
}

func (h *Handler) do(ctx context.Context, method, target, requestID string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-Id", requestID)

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, payload, nil
}

func writeRaw(w http.ResponseWriter, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(payload); err != nil {
		log.Printf("[relay] write response failed: %v", err)
	}
}
