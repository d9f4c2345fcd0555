package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"bookswap/internal/domain"
	"bookswap/internal/metrics"
	"bookswap/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const defaultDeadLetterKey = "bookswap:notifications:deadletter"

// NotificationWorker delivers queued system messages to the exchange
// conversation. Tasks live in the notify_queue table, so nothing is lost on
// restart; Notify only persists the task and wakes the loop.
type NotificationWorker struct {
	queue         domain.NotificationQueue
	sink          domain.NotificationSink
	redis         *redis.Client
	retryPolicy   RetryPolicy
	wake          chan struct{}
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

type Options struct {
	Redis         *redis.Client
	DeadLetterKey string
	PollInterval  time.Duration
	BatchSize     int
}

func NewNotificationWorker(
	queue domain.NotificationQueue,
	sink domain.NotificationSink,
	retry RetryPolicy,
	opts Options,
	logger *zerolog.Logger,
) *NotificationWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if opts.DeadLetterKey == "" {
		opts.DeadLetterKey = defaultDeadLetterKey
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "notify_worker").Logger()

	return &NotificationWorker{
		queue:         queue,
		sink:          sink,
		redis:         opts.Redis,
		retryPolicy:   retry,
		wake:          make(chan struct{}, 1),
		deadLetterKey: opts.DeadLetterKey,
		pollInterval:  opts.PollInterval,
		batchSize:     opts.BatchSize,
		logger:        &l,
	}
}

// Notify queues a system message for the exchange.
func (w *NotificationWorker) Notify(ctx context.Context, exchangeID int64, text string) error {
	if exchangeID == 0 {
		return errors.New("exchange id is required")
	}
	if strings.TrimSpace(text) == "" {
		return errors.New("message body is required")
	}

	task := models.NotificationTask{
		ExchangeID: exchangeID,
		Body:       text,
		Status:     models.TaskPending,
	}
	if err := w.queue.CreateNotificationTask(ctx, &task); err != nil {
		return fmt.Errorf("persist notification task: %w", err)
	}

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return nil
}

// Start runs the delivery loop until ctx is done.
func (w *NotificationWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("notification worker started")
	defer w.logger.Info().Msg("notification worker stopped")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		if n := w.RunOnce(ctx); n == w.batchSize {
			// a full batch means more may be waiting
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-w.wake:
		case <-ticker.C:
		}
	}
}

// RunOnce processes one batch of due tasks and returns its size.
func (w *NotificationWorker) RunOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	tasks, err := w.queue.GetPendingNotificationTasks(ctx, w.batchSize)
	if err != nil {
		w.logger.Error().Err(err).Msg("fetch pending notifications")
		return 0
	}
	for i := range tasks {
		w.processTask(ctx, &tasks[i])
	}
	return len(tasks)
}

func (w *NotificationWorker) processTask(ctx context.Context, task *models.NotificationTask) {
	if err := w.sink.PostSystemMessage(ctx, task.ExchangeID, task.Body); err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			w.failTask(ctx, task, err)
			return
		}
		w.retryOrFail(ctx, task, err)
		return
	}

	metrics.IncNotification(models.TaskCompleted)
	if err := w.queue.UpdateNotificationTaskStatus(ctx, task.ID, models.TaskCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark notification completed")
	}
}

func (w *NotificationWorker) retryOrFail(ctx context.Context, task *models.NotificationTask, cause error) {
	attempt := task.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.failTask(ctx, task, cause)
		return
	}

	metrics.IncNotification(models.TaskRetry)
	next := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.queue.UpdateNotificationTaskStatus(ctx, task.ID, models.TaskRetry, cause.Error(), &next); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark notification retry")
	}
	w.logger.Warn().Err(cause).Int64("task_id", task.ID).Int("attempt", attempt).Time("next_retry_at", next).
		Msg("notification delivery failed")
}

func (w *NotificationWorker) failTask(ctx context.Context, task *models.NotificationTask, cause error) {
	metrics.IncNotification(models.TaskFailed)
	if err := w.queue.UpdateNotificationTaskStatus(ctx, task.ID, models.TaskFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark notification failed")
	}
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Int64("exchange_id", task.ExchangeID).Msg("notification dropped")
	w.pushDeadLetter(ctx, task, cause)
}

func (w *NotificationWorker) pushDeadLetter(ctx context.Context, task *models.NotificationTask, cause error) {
	if w.redis == nil {
		return
	}
	msg := cause.Error()
	task.LastError = &msg
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("encode dead letter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("push dead letter")
	}
}
