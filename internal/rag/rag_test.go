package rag

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedazimal27/rag-docmind/internal/model"
	"github.com/mohamedazimal27/rag-docmind/internal/storage"
	"github.com/mohamedazimal27/rag-docmind/internal/vectorstore"
)

type stubGenerator struct {
	answer  string
	err     error
	prompts []string
}

func (g *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	return g.answer, g.err
}

type letterEmbedder struct{}

// Embed counts letters a-z, enough to make identical texts score 1.0.
func (letterEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, 26)
		for _, r := range strings.ToLower(t) {
			if r >= 'a' && r <= 'z' {
				v[r-'a']++
			}
		}
		out[i] = v
	}
	return out, nil
}

type recordingQuerier struct {
	gotUser   uint
	gotK      int
	gotFilter vectorstore.Filter
}

func (q *recordingQuerier) Query(_ context.Context, userID uint, _ string, k int, filter vectorstore.Filter) ([]model.ScoredChunk, error) {
	q.gotUser, q.gotK, q.gotFilter = userID, k, filter
	return nil, nil
}

func scored(content, doc string, prov model.Provenance) model.ScoredChunk {
	return model.ScoredChunk{Chunk: model.Chunk{Content: content, DocumentName: doc, Provenance: prov}}
}

func TestRetriever_AlwaysFiltersByUser(t *testing.T) {
	q := &recordingQuerier{}
	r := NewRetriever(q, 0)
	_, err := r.Retrieve(context.Background(), 12, "q")
	require.NoError(t, err)

	assert.Equal(t, uint(12), q.gotUser)
	assert.Equal(t, DefaultK, q.gotK)
	assert.Equal(t, vectorstore.Filter{OwnerID: 12}, q.gotFilter)
}

func TestFormatContext(t *testing.T) {
	got := FormatContext([]model.ScoredChunk{
		scored("Revenue rose 12%.", "report.pdf", model.PageRef(3)),
		scored("id: 7 | name: Ada", "people.csv", model.RowRangeRef(0, 9)),
		scored("loose", "misc.txt", model.Provenance{}),
	})
	want := "Content: Revenue rose 12%.\nSource: report.pdf, Ref: Page 3" +
		"\n\nContent: id: 7 | name: Ada\nSource: people.csv, Ref: rows 0-9" +
		"\n\nContent: loose\nSource: misc.txt, Ref: Unknown Location"
	assert.Equal(t, want, got)
	assert.Empty(t, FormatContext(nil))
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyStrict, p)

	p, err = ParsePolicy(" Partial ")
	require.NoError(t, err)
	assert.Equal(t, PolicyPartial, p)

	_, err = ParsePolicy("lenient")
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestSynthesizer_PromptCarriesContextAndQuestion(t *testing.T) {
	gen := &stubGenerator{answer: "Answer: 12%\nSources:\n   - File: report.pdf | Page/Row: Page 3"}
	s := NewSynthesizer(gen, PolicyStrict, nil)

	results := []model.ScoredChunk{scored("Revenue rose 12%.", "report.pdf", model.PageRef(3))}
	answer := s.Answer(context.Background(), "How much did revenue rise?", results)

	assert.Equal(t, gen.answer, answer)
	require.Len(t, gen.prompts, 1)
	prompt := gen.prompts[0]
	assert.Contains(t, prompt, "Source: report.pdf, Ref: Page 3")
	assert.Contains(t, prompt, "Question: How much did revenue rise?")
	assert.Contains(t, prompt, "- File: <filename> | Page/Row: <reference>")
	assert.Contains(t, prompt, "explicitly refuse")
}

func TestSynthesizer_PartialPolicyPrompt(t *testing.T) {
	s := NewSynthesizer(&stubGenerator{}, PolicyPartial, nil)
	prompt := s.Prompt("q", []model.ScoredChunk{scored("x", "a.txt", model.PageRef(1))})
	assert.Contains(t, prompt, "summarize the relevant parts")
	assert.NotEqual(t, s.Refusal(), NewSynthesizer(nil, PolicyStrict, nil).Refusal())
}

func TestSynthesizer_EmptyResultsRefuseWithoutGenerating(t *testing.T) {
	for _, policy := range []Policy{PolicyStrict, PolicyPartial} {
		gen := &stubGenerator{answer: "should not be used"}
		s := NewSynthesizer(gen, policy, nil)
		assert.Equal(t, s.Refusal(), s.Answer(context.Background(), "anything?", nil))
		assert.Empty(t, gen.prompts)
	}
}

func TestSynthesizer_GenerationFailureFallsBack(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	s := NewSynthesizer(&stubGenerator{err: errors.New("timeout")}, PolicyStrict, logger)

	answer := s.Answer(context.Background(), "q", []model.ScoredChunk{scored("x", "a.txt", model.PageRef(1))})
	assert.Equal(t, FallbackAnswer, answer)
	assert.Contains(t, logs.String(), "answer generation failed")
}

func TestSynthesizer_EmptyAnswerFallsBack(t *testing.T) {
	s := NewSynthesizer(&stubGenerator{answer: "  \n"}, PolicyStrict, nil)
	answer := s.Answer(context.Background(), "q", []model.ScoredChunk{scored("x", "a.txt", model.PageRef(1))})
	assert.Equal(t, FallbackAnswer, answer)
}

func TestSynthesizer_UncitedAnswerRefuses(t *testing.T) {
	results := []model.ScoredChunk{scored("opens at 9am", "notes.txt", model.PageRef(1))}

	for _, policy := range []Policy{PolicyStrict, PolicyPartial} {
		s := NewSynthesizer(&stubGenerator{answer: "The shop opens at 9am."}, policy, nil)
		assert.Equal(t, s.Refusal(), s.Answer(context.Background(), "when?", results))
	}

	cited := []string{
		"Answer: 9am\nSources:\n   - File: notes.txt | Page/Row: Page 1",
		"Answer: 9am\n2. Sources:\n   - File: notes.txt | Page/Row: Page 1",
		"**Answer:** 9am\n**Sources:**\n- File: notes.txt | Page/Row: Page 1",
	}
	for _, answer := range cited {
		s := NewSynthesizer(&stubGenerator{answer: answer}, PolicyStrict, nil)
		assert.Equal(t, answer, s.Answer(context.Background(), "when?", results))
	}
}

// User A's fact must never reach an answer for user B, who has uploaded nothing.
func TestAnswer_OtherUsersDataNeverUsed(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.New(storage.NewLayout(t.TempDir()), letterEmbedder{})
	require.NoError(t, store.Add(ctx, 1, []model.Chunk{{
		ID:           "fact",
		Content:      "The launch code is zebra.",
		UserID:       1,
		DocumentName: "secret.txt",
		Provenance:   model.PageRef(1),
	}}))

	gen := &stubGenerator{answer: "Answer: zebra"}
	retriever := NewRetriever(store, 4)
	synth := NewSynthesizer(gen, PolicyStrict, nil)

	results, err := retriever.Retrieve(ctx, 2, "What is the launch code?")
	require.NoError(t, err)
	assert.Empty(t, results)

	answer := synth.Answer(ctx, "What is the launch code?", results)
	assert.Equal(t, synth.Refusal(), answer)
	assert.NotContains(t, answer, "zebra")
	assert.Empty(t, gen.prompts)

	results, err = retriever.Retrieve(ctx, 1, "What is the launch code?")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "fact", results[0].Chunk.ID)
}
