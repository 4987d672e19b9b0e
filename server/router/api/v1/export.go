package v1

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/feeds"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/hrygo/vectorwave/store"
)

// Export formats.
const (
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
	FormatRSS      = "rss"
)

var errUnknownFormat = errors.New("format must be markdown, html or rss")

// TranscriptExporter renders a conversation's complete messages.
type TranscriptExporter struct {
	instanceURL string
	md          goldmark.Markdown
}

func NewTranscriptExporter(instanceURL string) *TranscriptExporter {
	return &TranscriptExporter{
		instanceURL: strings.TrimRight(instanceURL, "/"),
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
	}
}

// Export returns the rendered transcript and its content type.
func (x *TranscriptExporter) Export(conv *store.Conversation, messages []*store.Message, format string) ([]byte, string, error) {
	switch format {
	case "", FormatMarkdown:
		return []byte(x.Markdown(conv, messages)), "text/markdown; charset=utf-8", nil
	case FormatHTML:
		body, err := x.HTML(conv, messages)
		return body, echo.MIMETextHTMLCharsetUTF8, err
	case FormatRSS:
		body, err := x.RSS(conv, messages)
		return []byte(body), "application/rss+xml; charset=utf-8", err
	default:
		return nil, "", errUnknownFormat
	}
}

// Markdown renders one section per complete message.
func (*TranscriptExporter) Markdown(conv *store.Conversation, messages []*store.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", conv.Title)
	for _, m := range messages {
		if m.Status != store.MessageStatusComplete {
			continue
		}
		fmt.Fprintf(&b, "\n### %s\n\n", label(m))
		if m.Kind == store.MessageKindText {
			b.WriteString(m.Content)
			b.WriteString("\n")
			continue
		}
		// Context blocks are quoted so their own markup stays inert.
		for _, line := range strings.Split(m.Content, "\n") {
			b.WriteString("> ")
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (x *TranscriptExporter) HTML(conv *store.Conversation, messages []*store.Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := x.md.Convert([]byte(x.Markdown(conv, messages)), &buf); err != nil {
		return nil, errors.Wrap(err, "failed to render transcript")
	}
	return buf.Bytes(), nil
}

// RSS renders each complete message as a feed item.
func (x *TranscriptExporter) RSS(conv *store.Conversation, messages []*store.Message) (string, error) {
	link := x.instanceURL + "/api/v1/conversations/" + conv.ID
	feed := &feeds.Feed{
		Title:   conv.Title,
		Link:    &feeds.Link{Href: link},
		Author:  &feeds.Author{Name: conv.Owner},
		Created: time.UnixMilli(conv.CreatedTs),
		Updated: time.UnixMilli(conv.UpdatedTs),
	}
	for _, m := range messages {
		if m.Status != store.MessageStatusComplete {
			continue
		}
		feed.Items = append(feed.Items, &feeds.Item{
			Id:          m.ID,
			Title:       label(m),
			Link:        &feeds.Link{Href: link + "#" + m.ID},
			Description: m.Content,
			Created:     time.UnixMilli(m.CreatedTs),
		})
	}
	rss, err := feed.ToRss()
	if err != nil {
		return "", errors.Wrap(err, "failed to render feed")
	}
	return rss, nil
}

func label(m *store.Message) string {
	switch {
	case m.Kind == store.MessageKindFileAttachment:
		return "Attachment"
	case m.Kind == store.MessageKindRetrievedContext:
		return "Retrieved context"
	case m.Sender == store.MessageSenderAssistant:
		return "Assistant"
	default:
		return "User"
	}
}

func (s *APIV1Service) ExportConversation(c echo.Context) error {
	format := c.QueryParam("format")
	conv, history, err := s.ConversationService.History(c.Request().Context(), ownerOf(c), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	body, contentType, err := s.Exporter.Export(conv, history, format)
	if err != nil {
		if errors.Is(err, errUnknownFormat) {
			return badRequest(c, err.Error())
		}
		return writeError(c, err)
	}
	return c.Blob(http.StatusOK, contentType, body)
}
