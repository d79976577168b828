package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mohamedazimal27/rag-docmind/internal/model"
	"github.com/mohamedazimal27/rag-docmind/internal/storage"
)

const (
	DefaultBatchSize   = 10
	DefaultConcurrency = 4
)

// Embedder turns texts into vectors, one per input and in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Filter restricts a query to one owner. OwnerID is required.
type Filter struct {
	OwnerID uint
}

// Store persists chunk embeddings in one SQLite collection per user.
type Store struct {
	layout      storage.Layout
	embedder    Embedder
	batchSize   int
	concurrency int
	logger      *slog.Logger
}

type Option func(*Store)

func WithBatchSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

func WithConcurrency(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(layout storage.Layout, embedder Embedder, opts ...Option) *Store {
	s := &Store{
		layout:      layout,
		embedder:    embedder,
		batchSize:   DefaultBatchSize,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add embeds chunks and writes them to the user's collection. Every chunk must
// belong to userID. Nothing is written unless every embedding succeeds.
func (s *Store) Add(ctx context.Context, userID uint, chunks []model.Chunk) error {
	if userID == 0 {
		return fmt.Errorf("%w: user id is required", model.ErrInvalidInput)
	}
	if len(chunks) == 0 {
		return nil
	}
	for _, ch := range chunks {
		if ch.UserID != userID {
			return fmt.Errorf("%w: chunk %s owned by %d, collection %s",
				model.ErrOwnerMismatch, ch.ID, ch.UserID, CollectionName(userID))
		}
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
	}
	vectors, err := s.embedAll(ctx, texts)
	if err != nil {
		return err
	}

	coll, err := openCollection(ctx, s.layout.VectorDir(userID), userID, true)
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrStorage, err)
	}
	defer coll.Close()

	if err := coll.upsert(ctx, chunks, vectors); err != nil {
		return fmt.Errorf("%w: %w", model.ErrStorage, err)
	}
	s.logger.Info("chunks stored",
		"collection", coll.name,
		"chunks", len(chunks),
	)
	return nil
}

// embedAll embeds texts in batches, running up to s.concurrency batches at
// once. The result is aligned with texts.
func (s *Store) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for start := 0; start < len(texts); start += s.batchSize {
		end := min(start+s.batchSize, len(texts))
		g.Go(func() error {
			batch, err := s.embedder.Embed(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("%w: batch %d-%d: %w", model.ErrEmbedding, start, end-1, err)
			}
			if len(batch) != end-start {
				return fmt.Errorf("%w: batch %d-%d returned %d vectors for %d texts",
					model.ErrEmbedding, start, end-1, len(batch), end-start)
			}
			for i, v := range batch {
				if len(v) == 0 {
					return fmt.Errorf("%w: empty vector for text %d", model.ErrEmbedding, start+i)
				}
				vectors[start+i] = v
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Query returns up to k chunks from the user's collection ranked by cosine
// similarity to text, highest first. Ties keep insertion order. A user with no
// collection gets an empty result.
func (s *Store) Query(ctx context.Context, userID uint, text string, k int, filter Filter) ([]model.ScoredChunk, error) {
	if filter.OwnerID == 0 {
		return nil, fmt.Errorf("%w: owner filter is required", model.ErrInvalidInput)
	}
	if userID == 0 {
		return nil, fmt.Errorf("%w: user id is required", model.ErrInvalidInput)
	}
	if filter.OwnerID != userID {
		return nil, fmt.Errorf("%w: filter owner %d, collection %s",
			model.ErrOwnerMismatch, filter.OwnerID, CollectionName(userID))
	}
	if k <= 0 || strings.TrimSpace(text) == "" {
		return []model.ScoredChunk{}, nil
	}

	coll, err := openCollection(ctx, s.layout.VectorDir(userID), userID, false)
	if errors.Is(err, errNoCollection) {
		return []model.ScoredChunk{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrStorage, err)
	}
	defer coll.Close()

	records, err := coll.listByOwner(ctx, filter.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrStorage, err)
	}
	if len(records) == 0 {
		return []model.ScoredChunk{}, nil
	}

	vecs, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("%w: query: %w", model.ErrEmbedding, err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("%w: query returned %d vectors", model.ErrEmbedding, len(vecs))
	}
	query := vecs[0]

	results := make([]model.ScoredChunk, 0, len(records))
	for _, rec := range records {
		if rec.Chunk.UserID != filter.OwnerID {
			continue
		}
		results = append(results, model.ScoredChunk{
			Chunk: rec.Chunk,
			Score: cosineSimilarity(query, rec.Embedding),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Count returns how many chunks the user's collection holds.
func (s *Store) Count(ctx context.Context, userID uint) (int, error) {
	coll, err := openCollection(ctx, s.layout.VectorDir(userID), userID, false)
	if errors.Is(err, errNoCollection) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %w", model.ErrStorage, err)
	}
	defer coll.Close()

	var n int
	if err := coll.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE owner_id = ?`, int64(userID)).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count records: %w", model.ErrStorage, err)
	}
	return n, nil
}
