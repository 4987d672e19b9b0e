package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/vectorwave/store"
)

type conversationRequest struct {
	Title string `json:"title"`
}

type listConversationsResponse struct {
	Conversations []*store.Conversation `json:"conversations"`
}

func (s *APIV1Service) CreateConversation(c echo.Context) error {
	req := &conversationRequest{}
	if err := c.Bind(req); err != nil {
		return badRequest(c, "invalid request body")
	}
	conv, err := s.ConversationService.Create(c.Request().Context(), ownerOf(c), req.Title)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, conv)
}

func (s *APIV1Service) ListConversations(c echo.Context) error {
	list, err := s.ConversationService.List(c.Request().Context(), ownerOf(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, listConversationsResponse{Conversations: list})
}

func (s *APIV1Service) GetConversation(c echo.Context) error {
	conv, err := s.ConversationService.Get(c.Request().Context(), ownerOf(c), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, conv)
}

func (s *APIV1Service) RenameConversation(c echo.Context) error {
	req := &conversationRequest{}
	if err := c.Bind(req); err != nil {
		return badRequest(c, "invalid request body")
	}
	conv, err := s.ConversationService.Rename(c.Request().Context(), ownerOf(c), c.Param("id"), req.Title)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, conv)
}

func (s *APIV1Service) DeleteConversation(c echo.Context) error {
	if err := s.ConversationService.Delete(c.Request().Context(), ownerOf(c), c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListMessages returns the session's view, which includes a turn in flight.
func (s *APIV1Service) ListMessages(c echo.Context) error {
	view, err := s.ConversationService.Messages(c.Request().Context(), ownerOf(c), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}
