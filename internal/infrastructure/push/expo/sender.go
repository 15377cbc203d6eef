package expopush

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ark-network/watchtower/internal/core/ports"
)

const endpoint = "https://exp.host/--/api/v2/push/send"

// Sender posts to the Expo push API: a single plain JSON POST, no SDK
// required (see DESIGN.md).
type Sender struct {
	http *http.Client
}

func New() *Sender {
	return &Sender{http: &http.Client{Timeout: 30 * time.Second}}
}

var _ ports.PushSender = (*Sender)(nil)

type expoRequest struct {
	To    string                 `json:"to"`
	Title string                 `json:"title"`
	Body  string                 `json:"body"`
	Data  map[string]interface{} `json:"data"`
}

type expoResponse struct {
	Data struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"data"`
}

func (s *Sender) Send(ctx context.Context, msg ports.PushMessage) error {
	payload, err := json.Marshal(expoRequest{
		To:    msg.To,
		Title: msg.Title,
		Body:  msg.Body,
		Data:  msg.Data,
	})
	if err != nil {
		return fmt.Errorf("expo push: encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("expo push: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("expo push: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("expo push: unexpected status %s", resp.Status)
	}

	var out expoResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("expo push: decode response: %w", err)
	}
	if out.Data.Status == "error" {
		return fmt.Errorf("expo push: delivery error: %s", out.Data.Message)
	}
	return nil
}
