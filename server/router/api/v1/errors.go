package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/vectorwave/ai/chat"
	"github.com/hrygo/vectorwave/ai/document"
	"github.com/hrygo/vectorwave/ai/observability/logging"
)

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// statusOf maps service errors onto HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, chat.ErrValidation), errors.Is(err, document.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrConversationNotFound), errors.Is(err, document.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, chat.ErrTurnInProgress):
		return http.StatusConflict
	case errors.Is(err, chat.ErrRetrieval), errors.Is(err, chat.ErrCompletion), errors.Is(err, document.ErrIndexing):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with the mapped status. Server-side causes are logged
// and not echoed to the client.
func writeError(c echo.Context, err error) error {
	status := statusOf(err)
	body := errorResponse{Error: err.Error(), Kind: chat.KindName(err)}
	if status >= http.StatusInternalServerError {
		logging.FromContext(c.Request().Context()).Error("Request failed",
			"path", c.Path(),
			"status", status,
			"error", err,
		)
		body.Error = http.StatusText(status)
	}
	return c.JSON(status, body)
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: msg, Kind: "validation"})
}
