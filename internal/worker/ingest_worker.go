package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/time/rate"

	"GoCDN/config"
	"GoCDN/internal/mq"
	"GoCDN/internal/repo"
	"GoCDN/internal/service"
	"GoCDN/internal/task"
)

type dlqMessage struct {
	TaskID   uint64    `json:"task_id"`
	Attempt  int       `json:"attempt"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

// IngestWorker consumes ingest tasks from RabbitMQ with bounded concurrency
// and a fetch rate limit.
type IngestWorker struct {
	cfg     *config.Config
	tasks   repo.TaskStore
	manager *task.Manager
}

// NewIngestWorker builds a worker over the task manager.
func NewIngestWorker(cfg *config.Config, tasks repo.TaskStore, manager *task.Manager) *IngestWorker {
	return &IngestWorker{
		cfg:     cfg,
		tasks:   tasks,
		manager: manager,
	}
}

// Run consumes until ctx is done or the broker connection drops.
func (w *IngestWorker) Run(ctx context.Context) error {
	client, err := mq.Dial(w.cfg.RabbitMQURL)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.DeclareTopology(); err != nil {
		return err
	}

	prefetch := w.cfg.RabbitMQPrefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := client.Channel.Qos(prefetch, 0, false); err != nil {
		return err
	}

	deliveries, err := client.Channel.Consume(
		mq.QueueTasks,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	concurrency := w.cfg.IngestWorkerConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)

	burst := w.cfg.IngestBurst
	if burst <= 0 {
		burst = 1
	}
	var limiter *rate.Limiter
	if w.cfg.IngestRate <= 0 {
		limiter = rate.NewLimiter(rate.Inf, burst)
	} else {
		limiter = rate.NewLimiter(rate.Limit(w.cfg.IngestRate), burst)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("ingest worker: delivery channel closed")
			}
			sem <- struct{}{}
			go func(d amqp.Delivery) {
				defer func() { <-sem }()
				w.handleMessage(ctx, client, limiter, d)
			}(delivery)
		}
	}
}

func (w *IngestWorker) handleMessage(ctx context.Context, client *mq.Client, limiter *rate.Limiter, delivery amqp.Delivery) {
	var msg task.IngestMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		log.Printf("ingest worker: invalid message: %v", err)
		_ = delivery.Ack(false)
		return
	}

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			_ = delivery.Nack(false, true)
			return
		}
	}

	if err := w.manager.Process(ctx, msg.TaskID); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			_ = delivery.Nack(false, true)
			return
		}
		if shouldRetry(err) {
			if err := w.scheduleRetry(ctx, client, msg, err); err != nil {
				log.Printf("ingest worker: retry schedule failed: %v", err)
				_ = delivery.Nack(false, true)
				return
			}
		} else {
			if err := w.markFailed(ctx, client, msg, err); err != nil {
				log.Printf("ingest worker: mark failed failed: %v", err)
				_ = delivery.Nack(false, true)
				return
			}
		}
	}

	_ = delivery.Ack(false)
}

// shouldRetry keeps transient upstream failures on the retry path and sends
// deterministic ones straight to the DLQ.
func shouldRetry(err error) bool {
	if errors.Is(err, repo.ErrNotFound) {
		return false
	}
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		return false
	}
	var httpErr *service.HTTPStatusError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == http.StatusRequestTimeout || httpErr.StatusCode == http.StatusTooManyRequests {
			return true
		}
		return httpErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}

func (w *IngestWorker) scheduleRetry(ctx context.Context, client *mq.Client, msg task.IngestMessage, procErr error) error {
	maxRetry := w.cfg.IngestRetryMax
	if maxRetry < 0 {
		maxRetry = 0
	}
	nextAttempt := msg.Attempt + 1
	if maxRetry == 0 || nextAttempt > maxRetry {
		return w.markFailed(ctx, client, msg, procErr)
	}

	delay := pickRetryDelay(nextAttempt, w.cfg.IngestRetryDelays)
	nextRetryAt := time.Now().Add(delay)
	if err := w.tasks.MarkRetrying(ctx, msg.TaskID, procErr.Error(), nextAttempt, nextRetryAt); err != nil {
		return err
	}

	msg.Attempt = nextAttempt
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return client.PublishRetry(ctx, body, delay)
}

func (w *IngestWorker) markFailed(ctx context.Context, client *mq.Client, msg task.IngestMessage, procErr error) error {
	if err := w.tasks.MarkFailed(ctx, msg.TaskID, procErr.Error()); err != nil {
		return err
	}

	dlq := dlqMessage{
		TaskID:   msg.TaskID,
		Attempt:  msg.Attempt,
		Error:    procErr.Error(),
		FailedAt: time.Now(),
	}
	body, err := json.Marshal(dlq)
	if err != nil {
		return err
	}
	if err := client.PublishDLQ(ctx, body); err != nil {
		log.Printf("ingest worker: dlq publish failed: %v", err)
	}
	return nil
}

func pickRetryDelay(attempt int, delays []time.Duration) time.Duration {
	if len(delays) == 0 {
		return 0
	}
	index := attempt - 1
	if index < 0 {
		index = 0
	}
	if index >= len(delays) {
		return delays[len(delays)-1]
	}
	return delays[index]
}
