package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

var (
	// timeout is the timeout for webhook request. Default to 30 seconds.
	timeout = 30 * time.Second
)

// TurnPayload describes a finished or rejected chat turn.
type TurnPayload struct {
	URL            string `json:"url"`
	EventType      string `json:"eventType"`
	Owner          string `json:"owner"`
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId,omitempty"`
	Retrieval      bool   `json:"retrieval"`
	Error          string `json:"error,omitempty"`
	DurationMs     int64  `json:"durationMs"`
	Timestamp      int64  `json:"timestamp"`
}

// Post posts the payload to the webhook endpoint.
func Post(ctx context.Context, payload *TurnPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal webhook request to %s", payload.URL)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, payload.URL, bytes.NewBuffer(body))
	if err != nil {
		return errors.Wrapf(err, "failed to construct webhook request to %s", payload.URL)
	}

	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "failed to post webhook to %s", payload.URL)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "failed to read webhook response from %s", payload.URL)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("failed to post webhook %s, status code: %d, response body: %s", payload.URL, resp.StatusCode, b)
	}

	// Receivers may answer with an empty body; a JSON body must carry code 0.
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	response := &struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	}{}
	if err := json.Unmarshal(b, response); err != nil {
		return errors.Wrapf(err, "failed to unmarshal webhook response from %s", payload.URL)
	}
	if response.Code != 0 {
		return errors.Errorf("receive error code sent by webhook server, code %d, msg: %s", response.Code, response.Message)
	}
	return nil
}

// PostAsync posts the payload in a new goroutine and does not wait for the
// response. The request is detached from ctx's cancellation; failures are
// only logged.
func PostAsync(ctx context.Context, payload *TurnPayload) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := Post(ctx, payload); err != nil {
			slog.Warn("Failed to dispatch webhook asynchronously",
				slog.String("url", payload.URL),
				slog.String("event_type", payload.EventType),
				slog.Any("err", err))
		}
	}()
}
