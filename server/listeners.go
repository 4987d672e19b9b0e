package server

import (
	"context"
	"log/slog"

	"github.com/hrygo/vectorwave/ai/chat"
	"github.com/hrygo/vectorwave/ai/metrics"
	"github.com/hrygo/vectorwave/plugin/webhook"
)

// subscribeListeners attaches the logging, metrics and webhook listeners.
func subscribeListeners(bus *chat.EventBus, exporter *metrics.PrometheusExporter, webhookURL string) {
	bus.Subscribe(logTurnEvent)
	if exporter != nil {
		bus.Subscribe(metricsListener(exporter))
	}
	if webhookURL != "" {
		bus.Subscribe(webhookListener(webhookURL),
			chat.EventTurnCompleted, chat.EventTurnFailed, chat.EventTurnRejected)
	}
}

func logTurnEvent(_ context.Context, event *chat.TurnEvent) error {
	attrs := []any{
		"event", string(event.Type),
		"owner", event.Owner,
		"conversation_id", event.ConversationID,
		"retrieval", event.Retrieval,
	}
	switch event.Type {
	case chat.EventTurnFailed, chat.EventTurnRejected:
		slog.Debug("Turn event", append(attrs, "error_kind", chat.KindName(event.Err))...)
	default:
		slog.Debug("Turn event", attrs...)
	}
	return nil
}

func metricsListener(exporter *metrics.PrometheusExporter) chat.TurnEventListener {
	return func(_ context.Context, event *chat.TurnEvent) error {
		switch event.Type {
		case chat.EventTurnStarted:
			exporter.TurnStarted()
		case chat.EventTurnCompleted:
			exporter.TurnFinished(event.Retrieval, event.Duration, "")
		case chat.EventTurnFailed:
			exporter.TurnFinished(event.Retrieval, event.Duration, chat.KindName(event.Err))
		case chat.EventTurnRejected:
			exporter.TurnRejected(chat.KindName(event.Err))
		}
		return nil
	}
}

func webhookListener(url string) chat.TurnEventListener {
	return func(ctx context.Context, event *chat.TurnEvent) error {
		payload := &webhook.TurnPayload{
			URL:            url,
			EventType:      string(event.Type),
			Owner:          event.Owner,
			ConversationID: event.ConversationID,
			MessageID:      event.AssistantMessageID,
			Retrieval:      event.Retrieval,
			DurationMs:     event.Duration.Milliseconds(),
			Timestamp:      event.Time.UnixMilli(),
		}
		if event.Err != nil {
			payload.Error = chat.KindName(event.Err)
		}
		// A slow receiver must not hold up the turn that published the event.
		webhook.PostAsync(ctx, payload)
		return nil
	}
}
