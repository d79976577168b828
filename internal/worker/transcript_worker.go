package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/mohamedazimal27/rag-docmind/internal/model"
	"github.com/mohamedazimal27/rag-docmind/internal/platform/rabbitmq"
)

// errBadTranscript marks a delivery that can never be stored.
var errBadTranscript = errors.New("invalid transcript message")

// MessageWriter stores one transcript turn.
type MessageWriter interface {
	Create(message *model.Message) error
}

// TranscriptWorker drains the transcript queue into MySQL.
type TranscriptWorker struct {
	conn      *amqp.Connection
	repo      MessageWriter
	queueName string
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTranscriptWorker(conn *amqp.Connection, repo MessageWriter, queueName string, logger *slog.Logger) *TranscriptWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &TranscriptWorker{
		conn:      conn,
		repo:      repo,
		queueName: queueName,
		logger:    logger.With("worker", "transcript", "queue", queueName),
	}
}

func (w *TranscriptWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if _, err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	if err := ch.Qos(16, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					w.logger.Warn("delivery channel closed")
					return
				}
				if err := w.handle(d.Body); err != nil {
					// Malformed payloads are dropped; storage failures go back
					// on the queue once.
					requeue := !errors.Is(err, errBadTranscript) && !d.Redelivered
					w.logger.Error("persist transcript failed", "error", err, "requeue", requeue)
					_ = d.Nack(false, requeue)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	w.logger.Info("worker started")
	return nil
}

func (w *TranscriptWorker) handle(body []byte) error {
	var msg model.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: %w", errBadTranscript, err)
	}
	if msg.UserID == 0 || strings.TrimSpace(msg.Content) == "" {
		return fmt.Errorf("%w: missing user or content", errBadTranscript)
	}
	if msg.Role != model.RoleUser && msg.Role != model.RoleAssistant {
		return fmt.Errorf("%w: unknown role %q", errBadTranscript, msg.Role)
	}
	msg.ID = 0
	return w.repo.Create(&msg)
}

func (w *TranscriptWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
