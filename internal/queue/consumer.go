package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/streadway/amqp"

	"github.com/rentfolio/notification-service/internal/dispatch"
	"github.com/rentfolio/notification-service/internal/models"
	"github.com/rentfolio/notification-service/pkg/metrics"
)

const (
	exchangeName  = "notifications.direct"
	attemptHeader = "x-attempt"
	retryKey      = "deliveries.retry"
)

// Consumer is the queue-backed dispatch runtime: it pulls delivery requests
// off the main queue, invokes the channel task once per delivery, and mediates
// retries through a TTL wait queue that dead-letters back onto the main
// queue. Attempt counts live in message headers, never in process state, so
// concurrent tenants and channels cannot leak into each other.
type Consumer struct {
	conn        *amqp.Connection
	queue       string
	waitQueue   string
	deadLetter  string
	prefetch    int
	workerCount int
	tasks       map[models.Channel]dispatch.Task
	policy      dispatch.Policy
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

type ConsumerConfig struct {
	Queue           string
	WaitQueue       string
	DeadLetterQueue string
	Prefetch        int
	WorkerCount     int
}

func NewConsumer(conn *amqp.Connection, cfg ConsumerConfig, tasks []dispatch.Task, policy dispatch.Policy, m *metrics.Metrics, logger *slog.Logger) *Consumer {
	if cfg.Queue == "" {
		cfg.Queue = "deliveries.queue"
	}
	if cfg.WaitQueue == "" {
		cfg.WaitQueue = "deliveries.wait"
	}
	if cfg.DeadLetterQueue == "" {
		cfg.DeadLetterQueue = "deliveries.dead"
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 50
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 5
	}
	byChannel := make(map[models.Channel]dispatch.Task, len(tasks))
	for _, task := range tasks {
		byChannel[task.Channel()] = task
	}
	return &Consumer{
		conn:        conn,
		queue:       cfg.Queue,
		waitQueue:   cfg.WaitQueue,
		deadLetter:  cfg.DeadLetterQueue,
		prefetch:    cfg.Prefetch,
		workerCount: cfg.WorkerCount,
		tasks:       byChannel,
		policy:      policy,
		metrics:     m,
		logger:      logger,
	}
}

// Start declares the topology and consumes until the context is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := c.declareTopology(ch); err != nil {
		return fmt.Errorf("queue setup failed: %w", err)
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("qos configuration failed: %w", err)
	}

	deliveries, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for i := 0; i < c.workerCount; i++ {
		pubCh, err := c.conn.Channel()
		if err != nil {
			return fmt.Errorf("opening publish channel for worker %d: %w", i, err)
		}
		wg.Add(1)
		go func(pubCh *amqp.Channel) {
			defer wg.Done()
			defer pubCh.Close()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-deliveries:
					if !ok {
						return
					}
					c.handle(ctx, pubCh, msg)
				}
			}
		}(pubCh)
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

func (c *Consumer) declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(exchangeName, "direct", true, false, false, false, nil); err != nil {
		return err
	}

	// Malformed payloads are rejected into the dead-letter queue.
	mainArgs := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": c.deadLetter,
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, mainArgs); err != nil {
		return err
	}
	for _, channel := range []models.Channel{models.ChannelEmail, models.ChannelSMS, models.ChannelTelegram} {
		if err := ch.QueueBind(c.queue, string(channel), exchangeName, false, nil); err != nil {
			return err
		}
	}
	if err := ch.QueueBind(c.queue, retryKey, exchangeName, false, nil); err != nil {
		return err
	}

	// Retried messages park here with a per-message TTL, then dead-letter
	// back onto the main queue.
	waitArgs := amqp.Table{
		"x-dead-letter-exchange":    exchangeName,
		"x-dead-letter-routing-key": retryKey,
	}
	if _, err := ch.QueueDeclare(c.waitQueue, true, false, false, false, waitArgs); err != nil {
		return err
	}

	_, err := ch.QueueDeclare(c.deadLetter, true, false, false, false, nil)
	return err
}

func (c *Consumer) handle(ctx context.Context, pubCh *amqp.Channel, msg amqp.Delivery) {
	var req models.DeliveryRequest
	if err := json.Unmarshal(msg.Body, &req); err != nil {
		c.logger.Error("failed to decode delivery request, dead-lettering", slog.Any("error", err))
		_ = msg.Reject(false)
		return
	}

	task, ok := c.tasks[req.Channel]
	if !ok {
		c.logger.Error("no task registered for channel, dead-lettering",
			slog.String("request_id", req.ID), slog.String("channel", string(req.Channel)))
		_ = msg.Reject(false)
		return
	}

	attempt := attemptFrom(msg.Headers)
	c.metrics.Consumed(req.Channel)

	state, err := task.Run(ctx, &req, attempt)
	switch state {
	case models.StateSucceeded:
		c.metrics.Delivered(req.Channel)
		_ = msg.Ack(false)
	case models.StateTerminallyFailed:
		// The task already logged at high severity and recorded the failure;
		// nothing is re-raised past this point.
		c.metrics.Failed(req.Channel)
		_ = msg.Ack(false)
	case models.StateAwaitingRetry:
		c.metrics.Retried(req.Channel)
		if err := c.scheduleRetry(pubCh, msg, &req, attempt); err != nil {
			c.logger.Error("failed to schedule retry, requeueing",
				slog.String("request_id", req.ID), slog.Any("error", err))
			_ = msg.Nack(false, true)
			return
		}
		_ = msg.Ack(false)
	default:
		c.logger.Error("task returned unexpected state",
			slog.String("request_id", req.ID), slog.String("state", string(state)), slog.Any("error", err))
		_ = msg.Reject(false)
	}
}

// scheduleRetry parks the message in the wait queue for the policy's delay,
// with the incremented attempt number in its headers.
func (c *Consumer) scheduleRetry(pubCh *amqp.Channel, msg amqp.Delivery, req *models.DeliveryRequest, attempt int) error {
	delay := c.policy.Delay(attempt)
	return pubCh.Publish("", c.waitQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    req.ID,
		Body:         msg.Body,
		Expiration:   strconv.FormatInt(delay.Milliseconds(), 10),
		Headers:      amqp.Table{attemptHeader: int32(attempt + 1)},
	})
}

func attemptFrom(headers amqp.Table) int {
	if headers == nil {
		return 1
	}
	switch v := headers[attemptHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 1
}
