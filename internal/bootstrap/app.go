package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/mohamedazimal27/rag-docmind/internal/ai"
	appsvc "github.com/mohamedazimal27/rag-docmind/internal/app"
	"github.com/mohamedazimal27/rag-docmind/internal/cache"
	"github.com/mohamedazimal27/rag-docmind/internal/config"
	"github.com/mohamedazimal27/rag-docmind/internal/ingest"
	"github.com/mohamedazimal27/rag-docmind/internal/model"
	mysqlClient "github.com/mohamedazimal27/rag-docmind/internal/platform/mysql"
	rabbitmqClient "github.com/mohamedazimal27/rag-docmind/internal/platform/rabbitmq"
	redisClient "github.com/mohamedazimal27/rag-docmind/internal/platform/redis"
	"github.com/mohamedazimal27/rag-docmind/internal/rag"
	"github.com/mohamedazimal27/rag-docmind/internal/repository"
	"github.com/mohamedazimal27/rag-docmind/internal/storage"
	"github.com/mohamedazimal27/rag-docmind/internal/transport/http/handler"
	"github.com/mohamedazimal27/rag-docmind/internal/vectorstore"
	"github.com/mohamedazimal27/rag-docmind/internal/worker"
)

type App struct {
	Config *config.Config
	Logger *slog.Logger

	MySQL            *gorm.DB
	Redis            *redis.Client
	MQConn           *amqp.Connection
	Publisher        *rabbitmqClient.TranscriptPublisher
	TranscriptWorker *worker.TranscriptWorker

	AuthService   *appsvc.AuthService
	UploadService *appsvc.UploadService
	ChatService   *appsvc.ChatService

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	logger := NewLogger(cfg.App.LogLevel, cfg.App.Env)
	slog.SetDefault(logger)

	a := &App{Config: cfg, Logger: logger, StartedAt: time.Now()}
	if err := a.connect(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	if err := a.wire(); err != nil {
		_ = a.Close()
		return nil, err
	}

	a.TranscriptWorker = worker.NewTranscriptWorker(a.MQConn, repository.NewMessageRepository(a.MySQL), cfg.RabbitMQ.TranscriptQueue, logger)
	if err := a.TranscriptWorker.Start(ctx); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("start transcript worker failed: %w", err)
	}
	return a, nil
}

func (a *App) connect(ctx context.Context) error {
	cfg := a.Config

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN())
	if err != nil {
		return err
	}
	a.MySQL = mysqlDB
	if err := mysqlDB.AutoMigrate(&model.User{}, &model.Message{}); err != nil {
		return fmt.Errorf("auto migrate tables failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	a.Redis = redisCli

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		return err
	}
	a.MQConn = mqConn
	return nil
}

// wire builds the ingestion and question-answering pipeline.
func (a *App) wire() error {
	cfg := a.Config

	policy, err := rag.ParsePolicy(cfg.RAG.RefusalPolicy)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o750); err != nil {
		return fmt.Errorf("create data dir failed: %w", err)
	}

	layout := storage.NewLayout(cfg.Storage.DataDir)
	files := storage.NewFileStore(layout)

	llmClient := ai.NewOpenAICompatibleClient(time.Duration(cfg.LLM.TimeoutSeconds) * time.Second)
	embedder := ai.NewEmbedder(llmClient, ai.EmbeddingConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.EmbeddingModel,
	})
	generator := ai.NewGenerator(llmClient, ai.ChatConfig{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
	})

	store := vectorstore.New(layout, embedder,
		vectorstore.WithBatchSize(cfg.RAG.EmbeddingBatchSize),
		vectorstore.WithConcurrency(cfg.RAG.EmbeddingConcurrency),
		vectorstore.WithLogger(a.Logger.With("component", "vectorstore")),
	)

	a.Publisher = rabbitmqClient.NewTranscriptPublisher(a.MQConn, cfg.RabbitMQ.TranscriptQueue)
	historyCache := cache.NewHistoryCache(
		a.Redis,
		time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second,
	)

	a.AuthService = appsvc.NewAuthService(
		repository.NewUserRepository(a.MySQL),
		files,
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.JWTExpireMinute)*time.Minute,
	)
	a.UploadService = appsvc.NewUploadService(
		files,
		ingest.NewExtractor(cfg.RAG.RowsPerBlock),
		ingest.NewChunker(ingest.WithChunkSize(cfg.RAG.ChunkSize), ingest.WithOverlap(cfg.RAG.ChunkOverlap)),
		store,
		cfg.Storage.MaxFilesPerUser,
		a.Logger.With("component", "upload"),
	)
	a.ChatService = appsvc.NewChatService(
		rag.NewRetriever(store, cfg.RAG.RetrievalK),
		rag.NewSynthesizer(generator, policy, a.Logger.With("component", "synthesizer")),
		a.Publisher,
		historyCache,
		repository.NewMessageRepository(a.MySQL),
		a.Logger.With("component", "chat"),
	)
	return nil
}

// HealthChecks lists the dependencies /healthz reports on.
func (a *App) HealthChecks() map[string]handler.Checker {
	return map[string]handler.Checker{
		"mysql": func(ctx context.Context) error { return mysqlClient.Ping(ctx, a.MySQL) },
		"redis": func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() },
		"rabbitmq": func(context.Context) error {
			return rabbitmqClient.Ping(a.MQConn)
		},
		"data_dir": func(context.Context) error {
			_, err := os.Stat(a.Config.Storage.DataDir)
			return err
		},
	}
}

func (a *App) Close() error {
	var closeErr error
	if a.TranscriptWorker != nil {
		a.TranscriptWorker.Close()
	}
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		if err := mysqlClient.Close(a.MySQL); err != nil {
			closeErr = err
		}
	}
	return closeErr
}

// NewLogger returns a text logger in dev and a JSON logger elsewhere.
func NewLogger(level, env string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if env == "dev" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
