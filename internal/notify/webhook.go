package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// WebhookChannel posts incident messages to an external integration endpoint,
// one request per user. 4xx responses are permanent failures; 5xx and network
// errors are transient and left to the dispatcher's retry policy.
type WebhookChannel struct {
	ChannelName string
	URL         string
	Client      *http.Client
}

type webhookPayload struct {
	UserID     string `json:"user_id"`
	IncidentID string `json:"incident_id"`
	Title      string `json:"title"`
	Body       string `json:"body"`
}

func (c WebhookChannel) Name() string {
	return c.ChannelName
}

func (c WebhookChannel) Send(ctx context.Context, userID string, msg Message) error {
	if c.Client == nil {
		c.Client = &http.Client{Timeout: 15 * time.Second}
	}

	payload := webhookPayload{
		UserID:     userID,
		IncidentID: msg.IncidentID,
		Title:      msg.Title,
		Body:       msg.Body,
	}
	b, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewBuffer(b))
	if err != nil {
		return Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return Permanent(fmt.Errorf("webhook rejected delivery: status %d", resp.StatusCode))
	default:
		return errors.New("webhook delivery error: status " + resp.Status)
	}
}
