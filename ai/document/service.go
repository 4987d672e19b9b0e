// Package document stores user documents and keeps their paragraphs
// embedded in the owner's vector namespace.
package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/hrygo/vectorwave/ai/vector"
	"github.com/hrygo/vectorwave/store"
)

// MaxTitleLength bounds document titles, in runes.
const MaxTitleLength = 200

const (
	// DefaultConcurrency is how many batches are embedded at once.
	DefaultConcurrency = 4
	// DefaultBatchSize is how many paragraphs go into one embedding request.
	DefaultBatchSize = 16
)

var (
	ErrNotFound   = errors.New("document not found")
	ErrValidation = errors.New("invalid document")
	// ErrIndexing wraps embedding and vector index failures.
	ErrIndexing = errors.New("document indexing failed")
)

// Gateway is the durable storage behind Service.
type Gateway interface {
	CreateDocument(ctx context.Context, create *store.Document) (*store.Document, error)
	ListDocuments(ctx context.Context, find *store.FindDocument) ([]*store.Document, error)
	GetDocument(ctx context.Context, id string) (*store.Document, error)
	UpdateDocument(ctx context.Context, update *store.UpdateDocument) (*store.Document, error)
	DeleteDocument(ctx context.Context, id string) error
}

// Embedder turns texts into vectors, one per text in input order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Observer receives pipeline counts. It may be nil.
type Observer interface {
	RecordChunksEmbedded(n int)
	RecordVectorsDeleted(n int64)
}

// Config holds the collaborators of a Service.
type Config struct {
	Gateway     Gateway
	Embedder    Embedder
	Index       vector.Index
	Observer    Observer
	Concurrency int
	BatchSize   int
}

// Service manages documents and their embeddings.
type Service struct {
	gateway     Gateway
	embedder    Embedder
	index       vector.Index
	observer    Observer
	concurrency int
	batchSize   int
}

// NewService creates a Service.
func NewService(cfg Config) *Service {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Service{
		gateway:     cfg.Gateway,
		embedder:    cfg.Embedder,
		index:       cfg.Index,
		observer:    cfg.Observer,
		concurrency: cfg.Concurrency,
		batchSize:   cfg.BatchSize,
	}
}

// Paragraphs splits content on newlines and drops blank paragraphs.
func Paragraphs(content string) []string {
	var out []string
	for _, p := range strings.Split(content, "\n") {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

// Upload stores the document, then embeds it. When embedding fails the
// document row is kept with a zero chunk count and the error is returned
// along with it, so the caller can retry with Reindex.
func (s *Service) Upload(ctx context.Context, owner, title, content string) (*store.Document, error) {
	title, err := normalizeTitle(title)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: content is empty", ErrValidation)
	}

	doc, err := s.gateway.CreateDocument(ctx, &store.Document{Owner: owner, Title: title, Content: content})
	if err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	slog.Info("Created document", "owner", owner, "document_id", doc.ID)

	indexed, err := s.embed(ctx, doc)
	if err != nil {
		return doc, err
	}
	return indexed, nil
}

// List returns the owner's documents in upload order.
func (s *Service) List(ctx context.Context, owner string) ([]*store.Document, error) {
	return s.gateway.ListDocuments(ctx, &store.FindDocument{Owner: &owner})
}

// Get returns the document if owner owns it, else ErrNotFound.
func (s *Service) Get(ctx context.Context, owner, id string) (*store.Document, error) {
	doc, err := s.gateway.GetDocument(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if doc.Owner != owner {
		return nil, ErrNotFound
	}
	return doc, nil
}

func (s *Service) Rename(ctx context.Context, owner, id, title string) (*store.Document, error) {
	if _, err := s.Get(ctx, owner, id); err != nil {
		return nil, err
	}
	title, err := normalizeTitle(title)
	if err != nil {
		return nil, err
	}
	now := time.Now().UnixMilli()
	return s.gateway.UpdateDocument(ctx, &store.UpdateDocument{ID: id, Title: &title, UpdatedTs: &now})
}

// Delete removes the document row, then its vectors.
func (s *Service) Delete(ctx context.Context, owner, id string) error {
	if _, err := s.Get(ctx, owner, id); err != nil {
		return err
	}
	if err := s.gateway.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	removed, err := s.index.DeleteByPrefix(ctx, owner, vector.DocumentPrefix(id))
	if err != nil {
		return fmt.Errorf("delete document vectors: %w", err)
	}
	s.recordDeleted(removed)
	slog.Info("Deleted document", "owner", owner, "document_id", id, "vectors_removed", removed)
	return nil
}

// Reindex drops the document's vectors and embeds it again.
func (s *Service) Reindex(ctx context.Context, owner, id string) (*store.Document, error) {
	doc, err := s.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	removed, err := s.index.DeleteByPrefix(ctx, owner, vector.DocumentPrefix(id))
	if err != nil {
		return nil, fmt.Errorf("%w: delete document vectors: %w", ErrIndexing, err)
	}
	s.recordDeleted(removed)
	return s.embed(ctx, doc)
}

func (s *Service) embed(ctx context.Context, doc *store.Document) (*store.Document, error) {
	paragraphs := Paragraphs(doc.Content)
	entries := make([]vector.Entry, len(paragraphs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for start := 0; start < len(paragraphs); start += s.batchSize {
		end := min(start+s.batchSize, len(paragraphs))
		g.Go(func() error {
			vecs, err := s.embedder.EmbedBatch(gctx, paragraphs[start:end])
			if err != nil {
				return fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
			}
			if len(vecs) != end-start {
				return fmt.Errorf("embed chunks %d-%d: got %d vectors", start, end-1, len(vecs))
			}
			for j, vec := range vecs {
				i := start + j
				entries[i] = vector.Entry{ID: vector.ChunkID(doc.ID, i), Vector: vec, MetadataText: paragraphs[i]}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		slog.Warn("Document embedding failed", "document_id", doc.ID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrIndexing, err)
	}

	if err := s.index.Upsert(ctx, doc.Owner, entries); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexing, err)
	}
	if s.observer != nil {
		s.observer.RecordChunksEmbedded(len(entries))
	}

	count := int32(len(entries))
	now := time.Now().UnixMilli()
	updated, err := s.gateway.UpdateDocument(ctx, &store.UpdateDocument{ID: doc.ID, ChunkCount: &count, UpdatedTs: &now})
	if err != nil {
		return nil, fmt.Errorf("record chunk count: %w", err)
	}
	slog.Debug("Indexed document", "document_id", doc.ID, "chunks", count)
	return updated, nil
}

func (s *Service) recordDeleted(n int64) {
	if s.observer != nil && n > 0 {
		s.observer.RecordVectorsDeleted(n)
	}
}

func normalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("%w: title is required", ErrValidation)
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", fmt.Errorf("%w: title longer than %d characters", ErrValidation, MaxTitleLength)
	}
	return title, nil
}
