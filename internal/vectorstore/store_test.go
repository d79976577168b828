package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedazimal27/rag-docmind/internal/model"
	"github.com/mohamedazimal27/rag-docmind/internal/storage"
)

// hashEmbedder maps each word to a bucket so texts sharing words are similar.
type hashEmbedder struct {
	mu      sync.Mutex
	calls   int
	batches [][]string
	err     error
	short   bool
}

func (e *hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.batches = append(e.batches, append([]string(nil), texts...))
	e.mu.Unlock()

	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v := make([]float32, 32)
		for _, w := range strings.Fields(strings.ToLower(t)) {
			h := fnv.New32a()
			h.Write([]byte(w))
			v[h.Sum32()%32]++
		}
		out = append(out, v)
	}
	if e.short && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (e *hashEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func newChunk(id string, userID uint, content string) model.Chunk {
	return model.Chunk{
		ID:           id,
		Content:      content,
		UserID:       userID,
		DocumentName: "notes.txt",
		SourceFile:   "/data/notes.txt",
		Provenance:   model.PageRef(1),
	}
}

func newTestStore(t *testing.T, emb Embedder, opts ...Option) (*Store, storage.Layout) {
	t.Helper()
	layout := storage.NewLayout(t.TempDir())
	return New(layout, emb, opts...), layout
}

func TestCollectionName(t *testing.T) {
	assert.Equal(t, "user_42_docs", CollectionName(42))
}

func TestStore_QueryIsScopedToOwner(t *testing.T) {
	ctx := context.Background()
	emb := &hashEmbedder{}
	s, _ := newTestStore(t, emb)

	require.NoError(t, s.Add(ctx, 1, []model.Chunk{
		newChunk("a1", 1, "apples are red and sweet"),
		newChunk("a2", 1, "the orchard opens in autumn"),
	}))
	require.NoError(t, s.Add(ctx, 2, []model.Chunk{
		newChunk("b1", 2, "apples are red and sweet"),
	}))

	res, err := s.Query(ctx, 1, "red apples", 10, Filter{OwnerID: 1})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "a1", res[0].Chunk.ID)
	for _, r := range res {
		assert.Equal(t, uint(1), r.Chunk.UserID)
	}

	res, err = s.Query(ctx, 2, "red apples", 10, Filter{OwnerID: 2})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "b1", res[0].Chunk.ID)
}

func TestStore_QueryRequiresOwnerFilter(t *testing.T) {
	s, _ := newTestStore(t, &hashEmbedder{})

	_, err := s.Query(context.Background(), 1, "anything", 4, Filter{})
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = s.Query(context.Background(), 1, "anything", 4, Filter{OwnerID: 2})
	assert.ErrorIs(t, err, model.ErrOwnerMismatch)
}

func TestStore_QueryWithoutCollection(t *testing.T) {
	emb := &hashEmbedder{}
	s, _ := newTestStore(t, emb)

	res, err := s.Query(context.Background(), 5, "hello", 4, Filter{OwnerID: 5})
	require.NoError(t, err)
	assert.Empty(t, res)
	assert.Zero(t, emb.callCount())
}

func TestStore_QueryRespectsK(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, &hashEmbedder{})

	var chunks []model.Chunk
	for i := 0; i < 6; i++ {
		chunks = append(chunks, newChunk(fmt.Sprintf("c%d", i), 1, fmt.Sprintf("fact number %d", i)))
	}
	require.NoError(t, s.Add(ctx, 1, chunks))

	res, err := s.Query(ctx, 1, "fact", 4, Filter{OwnerID: 1})
	require.NoError(t, err)
	assert.Len(t, res, 4)
	for i := 1; i < len(res); i++ {
		assert.GreaterOrEqual(t, res[i-1].Score, res[i].Score)
	}
}

func TestStore_TiesKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, &hashEmbedder{})

	require.NoError(t, s.Add(ctx, 1, []model.Chunk{
		newChunk("first", 1, "same words here"),
		newChunk("second", 1, "same words here"),
		newChunk("third", 1, "same words here"),
	}))

	for i := 0; i < 3; i++ {
		res, err := s.Query(ctx, 1, "same words here", 3, Filter{OwnerID: 1})
		require.NoError(t, err)
		require.Len(t, res, 3)
		assert.Equal(t, []string{"first", "second", "third"},
			[]string{res[0].Chunk.ID, res[1].Chunk.ID, res[2].Chunk.ID})
	}
}

func TestStore_AddEmbeddingFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	emb := &hashEmbedder{err: errors.New("provider down")}
	s, layout := newTestStore(t, emb)

	err := s.Add(ctx, 1, []model.Chunk{newChunk("x", 1, "text")})
	assert.ErrorIs(t, err, model.ErrEmbedding)

	_, statErr := os.Stat(filepath.Join(layout.VectorDir(1), collectionFile))
	assert.True(t, os.IsNotExist(statErr))

	n, err := s.Count(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_AddPartialBatchFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	good := &hashEmbedder{}
	s, layout := newTestStore(t, good)
	require.NoError(t, s.Add(ctx, 1, []model.Chunk{newChunk("keep", 1, "existing")}))

	short := &hashEmbedder{short: true}
	s2 := New(layout, short, WithBatchSize(2))
	err := s2.Add(ctx, 1, []model.Chunk{
		newChunk("n1", 1, "one"),
		newChunk("n2", 1, "two"),
		newChunk("n3", 1, "three"),
	})
	assert.ErrorIs(t, err, model.ErrEmbedding)

	n, err := s.Count(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_AddRejectsForeignChunks(t *testing.T) {
	emb := &hashEmbedder{}
	s, _ := newTestStore(t, emb)

	err := s.Add(context.Background(), 1, []model.Chunk{
		newChunk("mine", 1, "ok"),
		newChunk("theirs", 2, "not ok"),
	})
	assert.ErrorIs(t, err, model.ErrOwnerMismatch)
	assert.Zero(t, emb.callCount())

	err = s.Add(context.Background(), 0, []model.Chunk{newChunk("x", 0, "ok")})
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestStore_BatchesEmbeddingCalls(t *testing.T) {
	emb := &hashEmbedder{}
	s, _ := newTestStore(t, emb, WithBatchSize(10), WithConcurrency(2))

	chunks := make([]model.Chunk, 25)
	for i := range chunks {
		chunks[i] = newChunk(fmt.Sprintf("c%02d", i), 1, fmt.Sprintf("line %d", i))
	}
	require.NoError(t, s.Add(context.Background(), 1, chunks))

	assert.Equal(t, 3, emb.callCount())
	sizes := map[int]int{}
	for _, b := range emb.batches {
		sizes[len(b)]++
	}
	assert.Equal(t, map[int]int{10: 2, 5: 1}, sizes)

	n, err := s.Count(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 25, n)
}

func TestStore_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	layout := storage.NewLayout(t.TempDir())

	first := New(layout, &hashEmbedder{})
	chunk := newChunk("row", 3, "revenue grew in march")
	chunk.Provenance = model.RowRangeRef(10, 19)
	require.NoError(t, first.Add(ctx, 3, []model.Chunk{chunk}))

	second := New(layout, &hashEmbedder{})
	res, err := second.Query(ctx, 3, "march revenue", 1, Filter{OwnerID: 3})
	require.NoError(t, err)
	require.Len(t, res, 1)

	got := res[0].Chunk
	assert.Equal(t, chunk.ID, got.ID)
	assert.Equal(t, chunk.Content, got.Content)
	assert.Equal(t, chunk.DocumentName, got.DocumentName)
	assert.Equal(t, chunk.SourceFile, got.SourceFile)
	assert.Equal(t, "rows 10-19", got.Provenance.String())
}

func TestStore_AddUpsertsByChunkID(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, &hashEmbedder{})

	require.NoError(t, s.Add(ctx, 1, []model.Chunk{newChunk("dup", 1, "old text")}))
	require.NoError(t, s.Add(ctx, 1, []model.Chunk{newChunk("dup", 1, "new text")}))

	n, err := s.Count(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	res, err := s.Query(ctx, 1, "text", 1, Filter{OwnerID: 1})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "new text", res[0].Chunk.Content)
}

func TestStore_StorageFailure(t *testing.T) {
	s, layout := newTestStore(t, &hashEmbedder{})

	// A regular file where the vectors directory should be.
	require.NoError(t, os.MkdirAll(layout.UserDir(1), 0o750))
	require.NoError(t, os.WriteFile(layout.VectorDir(1), []byte("x"), 0o640))

	err := s.Add(context.Background(), 1, []model.Chunk{newChunk("x", 1, "text")})
	assert.ErrorIs(t, err, model.ErrStorage)
}

func TestStore_RejectsCollectionOfAnotherUser(t *testing.T) {
	ctx := context.Background()
	s, layout := newTestStore(t, &hashEmbedder{})
	require.NoError(t, s.Add(ctx, 1, []model.Chunk{newChunk("x", 1, "secret")}))

	data, err := os.ReadFile(filepath.Join(layout.VectorDir(1), collectionFile))
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(layout.VectorDir(2), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(layout.VectorDir(2), collectionFile), data, 0o640))

	_, err = s.Query(ctx, 2, "secret", 4, Filter{OwnerID: 2})
	assert.ErrorIs(t, err, model.ErrStorage)
}

func TestFloat32Codec(t *testing.T) {
	in := []float32{0, 1.5, -2.25, 3e-7}
	assert.Equal(t, in, bytesToFloat32Slice(float32SliceToBytes(in)))
	assert.Nil(t, bytesToFloat32Slice(nil))
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, cosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 2}))
}

func TestStore_ConcurrentFirstAdds(t *testing.T) {
	ctx := context.Background()

	for round := 0; round < 10; round++ {
		s, _ := newTestStore(t, &hashEmbedder{})

		const writers = 8
		var wg sync.WaitGroup
		errs := make([]error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = s.Add(ctx, 7, []model.Chunk{
					newChunk(fmt.Sprintf("r%d-c%d", round, i), 7, fmt.Sprintf("chunk number %d", i)),
				})
			}(i)
		}
		wg.Wait()

		for i, err := range errs {
			require.NoError(t, err, "round %d writer %d", round, i)
		}
		n, err := s.Count(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, writers, n)
	}
}
