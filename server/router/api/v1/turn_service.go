package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/vectorwave/ai/chat"
)

type submitTurnRequest struct {
	Text       string           `json:"text"`
	Attachment *chat.Attachment `json:"attachment"`
	Retrieval  bool             `json:"retrieval"`
}

// SubmitTurn runs a chat turn and answers once the reply is stored.
func (s *APIV1Service) SubmitTurn(c echo.Context) error {
	req := &submitTurnRequest{}
	if err := c.Bind(req); err != nil {
		return badRequest(c, "invalid request body")
	}

	session := s.Sessions.GetOrCreate(ownerOf(c))
	session.Touch()
	result, err := s.TurnOrchestrator.SubmitTurn(c.Request().Context(), session, chat.Turn{
		ConversationID: c.Param("id"),
		UserText:       req.Text,
		Attachment:     req.Attachment,
		Retrieval:      req.Retrieval,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}
