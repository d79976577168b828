package rag

import (
	"context"
	"strings"

	"github.com/mohamedazimal27/rag-docmind/internal/model"
	"github.com/mohamedazimal27/rag-docmind/internal/vectorstore"
)

const DefaultK = 4

// Querier is the part of the vector store the retriever needs.
type Querier interface {
	Query(ctx context.Context, userID uint, text string, k int, filter vectorstore.Filter) ([]model.ScoredChunk, error)
}

// Retriever fetches the top-k chunks for a question, always filtered to the
// asking user.
type Retriever struct {
	store Querier
	k     int
}

func NewRetriever(store Querier, k int) *Retriever {
	if k <= 0 {
		k = DefaultK
	}
	return &Retriever{store: store, k: k}
}

func (r *Retriever) K() int { return r.k }

func (r *Retriever) Retrieve(ctx context.Context, userID uint, question string) ([]model.ScoredChunk, error) {
	return r.store.Query(ctx, userID, question, r.k, vectorstore.Filter{OwnerID: userID})
}

// FormatContext renders results, in rank order, as citation-annotated blocks:
//
//	Content: <text>
//	Source: <document name>, Ref: <page or row range>
func FormatContext(results []model.ScoredChunk) string {
	blocks := make([]string, 0, len(results))
	for _, r := range results {
		blocks = append(blocks, "Content: "+r.Chunk.Content+
			"\nSource: "+r.Chunk.DocumentName+", Ref: "+r.Chunk.Provenance.String())
	}
	return strings.Join(blocks, "\n\n")
}
