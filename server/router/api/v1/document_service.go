package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/vectorwave/ai/observability/logging"
	"github.com/hrygo/vectorwave/store"
)

type uploadDocumentRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type renameDocumentRequest struct {
	Title string `json:"title"`
}

type listDocumentsResponse struct {
	Documents []*store.Document `json:"documents"`
}

// indexingFailedResponse reports a stored document whose embedding failed.
type indexingFailedResponse struct {
	errorResponse
	Document *store.Document `json:"document"`
}

func (s *APIV1Service) UploadDocument(c echo.Context) error {
	req := &uploadDocumentRequest{}
	if err := c.Bind(req); err != nil {
		return badRequest(c, "invalid request body")
	}
	doc, err := s.DocumentService.Upload(c.Request().Context(), ownerOf(c), req.Title, req.Content)
	if err != nil {
		if doc == nil {
			return writeError(c, err)
		}
		// The row exists; clients retry with reindex.
		status := statusOf(err)
		logging.FromContext(c.Request().Context()).Warn("Document stored but not indexed",
			"document_id", doc.ID,
			"error", err,
		)
		return c.JSON(status, indexingFailedResponse{
			errorResponse: errorResponse{Error: http.StatusText(status), Kind: "indexing"},
			Document:      doc,
		})
	}
	return c.JSON(http.StatusCreated, doc)
}

func (s *APIV1Service) ListDocuments(c echo.Context) error {
	docs, err := s.DocumentService.List(c.Request().Context(), ownerOf(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, listDocumentsResponse{Documents: docs})
}

func (s *APIV1Service) GetDocument(c echo.Context) error {
	doc, err := s.DocumentService.Get(c.Request().Context(), ownerOf(c), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, doc)
}

func (s *APIV1Service) RenameDocument(c echo.Context) error {
	req := &renameDocumentRequest{}
	if err := c.Bind(req); err != nil {
		return badRequest(c, "invalid request body")
	}
	doc, err := s.DocumentService.Rename(c.Request().Context(), ownerOf(c), c.Param("id"), req.Title)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, doc)
}

func (s *APIV1Service) DeleteDocument(c echo.Context) error {
	if err := s.DocumentService.Delete(c.Request().Context(), ownerOf(c), c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *APIV1Service) ReindexDocument(c echo.Context) error {
	doc, err := s.DocumentService.Reindex(c.Request().Context(), ownerOf(c), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, doc)
}
