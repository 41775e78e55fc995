package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var ErrQAFailed = errors.New("question answering request failed")

// HuggingFaceQA calls a hosted extractive question-answering model.
type HuggingFaceQA struct {
	baseURL string
	model   string
	token   string
	client  *http.Client
}

func NewHuggingFaceQA(baseURL, model, token string) *HuggingFaceQA {
	return &HuggingFaceQA{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		token:   token,
		client:  &http.Client{},
	}
}

type qaRequest struct {
	Inputs qaInputs `json:"inputs"`
}

type qaInputs struct {
	Question string `json:"question"`
	Context  string `json:"context"`
}

type qaAnswer struct {
	Answer string  `json:"answer"`
	Score  float64 `json:"score"`
}

func (h *HuggingFaceQA) Answer(ctx context.Context, question, passage string) (string, error) {
	body, err := json.Marshal(qaRequest{Inputs: qaInputs{Question: question, Context: passage}})
	if err != nil {
		return "", fmt.Errorf("marshal qa request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/"+h.model, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create qa request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send qa request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read qa response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d: %s", ErrQAFailed, resp.StatusCode, string(raw))
	}

	return parseAnswer(raw)
}

// parseAnswer accepts a single answer object or a ranked list, in which case
// the first entry wins.
func parseAnswer(raw []byte) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var answers []qaAnswer
		if err := json.Unmarshal(trimmed, &answers); err != nil {
			return "", fmt.Errorf("parse qa response: %w", err)
		}
		if len(answers) == 0 {
			return "", nil
		}
		return answers[0].Answer, nil
	}

	var answer qaAnswer
	if err := json.Unmarshal(trimmed, &answer); err != nil {
		return "", fmt.Errorf("parse qa response: %w", err)
	}
	return answer.Answer, nil
}
