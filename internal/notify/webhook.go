package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gatepass/internal/notify/models"
)

// WebhookSender hands outbound messages to a chat relay over HTTP. The relay
// owns the chat platform credentials and answers with the id it assigned.
//
//	POST {base}/send  {"to":..,"text":..,"actions":[..]}  -> {"message_id":".."}
//	POST {base}/edit  {"chat_id":..,"message_id":..,"text":..}
type WebhookSender struct {
	baseURL    string
	httpClient *http.Client
}

// NewWebhookSender validates the relay URL and builds a sender.
func NewWebhookSender(baseURL string, timeout time.Duration) (*WebhookSender, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid relay url %q: %w", baseURL, err)
	}
	return &WebhookSender{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type sendResponse struct {
	MessageID string `json:"message_id"`
}

type editRequest struct {
	models.MessageRef
	Text string `json:"text"`
}

func (s *WebhookSender) Send(ctx context.Context, msg models.Message) (models.MessageRef, error) {
	body, err := s.post(ctx, "/send", msg)
	if err != nil {
		return models.MessageRef{}, err
	}
	var resp sendResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.MessageRef{}, fmt.Errorf("decode relay response: %w", err)
	}
	return models.MessageRef{Chat: msg.To, MessageID: resp.MessageID}, nil
}

func (s *WebhookSender) Edit(ctx context.Context, ref models.MessageRef, text string) error {
	_, err := s.post(ctx, "/edit", editRequest{MessageRef: ref, Text: text})
	return err
}

func (s *WebhookSender) post(ctx context.Context, path string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode relay request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("relay %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read relay response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return body, fmt.Errorf("relay %s: status %d", path, resp.StatusCode)
	}
	return body, nil
}
