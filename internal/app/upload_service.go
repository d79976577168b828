package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/mohamedazimal27/rag-docmind/internal/ingest"
	"github.com/mohamedazimal27/rag-docmind/internal/model"
	"github.com/mohamedazimal27/rag-docmind/internal/storage"
)

const (
	DefaultMaxFilesPerUser = 15
	UploadStatusSuccess    = "success"
)

// ChunkStore is where chunks go after extraction.
type ChunkStore interface {
	Add(ctx context.Context, userID uint, chunks []model.Chunk) error
}

type UploadService struct {
	files     *storage.FileStore
	extractor *ingest.Extractor
	chunker   *ingest.Chunker
	store     ChunkStore
	maxFiles  int
	logger    *slog.Logger
}

type UploadInput struct {
	UserID   uint
	Filename string
	Content  []byte
}

type UploadResult struct {
	Filename        string `json:"filename"`
	Status          string `json:"status"`
	ChunksProcessed int    `json:"chunks_processed"`
	TotalFiles      int    `json:"total_files"`
}

func NewUploadService(
	files *storage.FileStore,
	extractor *ingest.Extractor,
	chunker *ingest.Chunker,
	store ChunkStore,
	maxFiles int,
	logger *slog.Logger,
) *UploadService {
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFilesPerUser
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadService{
		files:     files,
		extractor: extractor,
		chunker:   chunker,
		store:     store,
		maxFiles:  maxFiles,
		logger:    logger,
	}
}

// Upload stores the raw file and indexes it for the user. The file cap and
// the format are checked before anything is written. The raw copy is staged
// and only replaces a stored file of the same name once indexing succeeds, so
// a failed upload removes nothing but its own staged copy.
func (s *UploadService) Upload(ctx context.Context, input UploadInput) (*UploadResult, error) {
	if input.UserID == 0 {
		return nil, ErrInvalidInput
	}
	name, err := storage.CleanFilename(input.Filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	count, err := s.files.Count(input.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrStorage, err)
	}
	if count >= s.maxFiles {
		return nil, fmt.Errorf("%w (max %d files)", model.ErrFileLimitExceeded, s.maxFiles)
	}
	if _, err := ingest.KindFromFilename(name); err != nil {
		return nil, err
	}

	path, err := s.files.Path(input.UserID, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	staged, err := s.files.Stage(input.UserID, input.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrStorage, err)
	}

	chunks, err := s.index(ctx, input.UserID, name, path, input.Content)
	if err != nil {
		s.discard(input.UserID, name, staged)
		s.logger.Warn("upload rejected", "user_id", input.UserID, "file", name, "error", err)
		return nil, err
	}
	if _, err := s.files.Commit(input.UserID, name, staged); err != nil {
		s.discard(input.UserID, name, staged)
		s.logger.Error("commit upload failed", "user_id", input.UserID, "file", name, "chunks", chunks, "error", err)
		return nil, fmt.Errorf("%w: %w", model.ErrStorage, err)
	}

	total, err := s.files.Count(input.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrStorage, err)
	}
	s.logger.Info("upload indexed",
		"user_id", input.UserID,
		"file", name,
		"chunks", chunks,
		"total_files", total,
	)
	return &UploadResult{
		Filename:        name,
		Status:          UploadStatusSuccess,
		ChunksProcessed: chunks,
		TotalFiles:      total,
	}, nil
}

// index runs extract, chunk and store, returning the number of chunks stored.
func (s *UploadService) index(ctx context.Context, userID uint, name, path string, content []byte) (int, error) {
	docs, err := s.extractor.Extract(model.RawUpload{
		UserID:     userID,
		Filename:   name,
		Content:    content,
		Extension:  filepath.Ext(name),
		SourceFile: path,
	})
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, fmt.Errorf("%w: no extractable content", model.ErrExtraction)
	}

	chunks := s.chunker.Chunk(docs)
	if err := s.store.Add(ctx, userID, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

func (s *UploadService) discard(userID uint, name, staged string) {
	if err := s.files.Remove(staged); err != nil {
		s.logger.Error("remove staged upload", "user_id", userID, "file", name, "error", err)
	}
}

// ListFiles returns the names of the user's uploaded originals.
func (s *UploadService) ListFiles(userID uint) ([]string, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	names, err := s.files.List(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrStorage, err)
	}
	return names, nil
}

// MaxFiles is the per-user upload cap.
func (s *UploadService) MaxFiles() int { return s.maxFiles }
