package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/mohamedazimal27/rag-docmind/internal/model"
	"github.com/mohamedazimal27/rag-docmind/internal/rag"
)

var ErrQuestionEmpty = errors.New("question is empty")

// historyWindow is how many recent messages History loads and caches.
const historyWindow = 200

// Retriever returns the asking user's most relevant chunks.
type Retriever interface {
	Retrieve(ctx context.Context, userID uint, question string) ([]model.ScoredChunk, error)
}

// Synthesizer produces the final answer text; it never fails.
type Synthesizer interface {
	Answer(ctx context.Context, question string, results []model.ScoredChunk) string
}

type AsyncMessagePublisher interface {
	Publish(ctx context.Context, msg model.Message) error
}

type HistoryCache interface {
	GetHistory(ctx context.Context, userID uint) ([]model.Message, bool, error)
	SetHistory(ctx context.Context, userID uint, messages []model.Message) error
	Invalidate(ctx context.Context, userID uint) error
	IsDirty(ctx context.Context, userID uint) (bool, error)
}

type MessageLister interface {
	ListRecentByUserID(userID uint, limit int) ([]model.Message, error)
}

type ChatService struct {
	retriever    Retriever
	synthesizer  Synthesizer
	publisher    AsyncMessagePublisher
	historyCache HistoryCache
	messages     MessageLister
	logger       *slog.Logger
}

type AskInput struct {
	UserID   uint
	Question string
}

func NewChatService(
	retriever Retriever,
	synthesizer Synthesizer,
	publisher AsyncMessagePublisher,
	historyCache HistoryCache,
	messages MessageLister,
	logger *slog.Logger,
) *ChatService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{
		retriever:    retriever,
		synthesizer:  synthesizer,
		publisher:    publisher,
		historyCache: historyCache,
		messages:     messages,
		logger:       logger,
	}
}

// Ask answers question from the user's own documents. Retrieval and
// generation failures turn into rag.FallbackAnswer; only bad input is an
// error.
func (s *ChatService) Ask(ctx context.Context, input AskInput) (string, error) {
	if input.UserID == 0 {
		return "", ErrInvalidInput
	}
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return "", ErrQuestionEmpty
	}

	var answer string
	results, err := s.retriever.Retrieve(ctx, input.UserID, question)
	if err != nil {
		s.logger.Error("retrieval failed", "user_id", input.UserID, "error", err)
		answer = rag.FallbackAnswer
	} else {
		answer = s.synthesizer.Answer(ctx, question, results)
	}
	s.logger.Info("question answered",
		"user_id", input.UserID,
		"retrieved", len(results),
	)

	s.recordTurn(ctx, input.UserID, question, answer)
	return answer, nil
}

// recordTurn hands the question and answer to the persistence queue. Failures
// are logged; the caller already has its answer.
func (s *ChatService) recordTurn(ctx context.Context, userID uint, question, answer string) {
	if s.publisher == nil {
		return
	}
	if s.historyCache != nil {
		if err := s.historyCache.Invalidate(ctx, userID); err != nil {
			s.logger.Warn("invalidate history cache failed", "user_id", userID, "error", err)
		}
	}

	now := time.Now()
	turn := []model.Message{
		{UserID: userID, Role: model.RoleUser, Content: question, CreatedAt: now},
		{UserID: userID, Role: model.RoleAssistant, Content: answer, CreatedAt: now.Add(time.Millisecond)},
	}
	for _, msg := range turn {
		if err := s.publisher.Publish(ctx, msg); err != nil {
			s.logger.Error("enqueue transcript failed", "user_id", userID, "role", msg.Role, "error", err)
			return
		}
	}
}

// History returns the user's latest limit messages, oldest first, served from
// Redis when the cached copy is clean.
func (s *ChatService) History(ctx context.Context, userID uint, limit int) ([]model.Message, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	if s.messages == nil {
		return []model.Message{}, nil
	}

	if s.historyCache != nil {
		dirty, err := s.historyCache.IsDirty(ctx, userID)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.historyCache.GetHistory(ctx, userID); cacheErr == nil && hit {
				return trimMessages(cached, limit), nil
			}
		}
	}

	// The cache always holds the full window so any limit can be served from it.
	messages, err := s.messages.ListRecentByUserID(userID, historyWindow)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		if dirty, dirtyErr := s.historyCache.IsDirty(ctx, userID); dirtyErr == nil && !dirty {
			_ = s.historyCache.SetHistory(ctx, userID, messages)
		}
	}
	return trimMessages(messages, limit), nil
}

func trimMessages(messages []model.Message, limit int) []model.Message {
	if limit <= 0 || limit >= len(messages) {
		return messages
	}
	return messages[len(messages)-limit:]
}
