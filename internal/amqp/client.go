// Package amqp carries materialization jobs over RabbitMQ. Topology: a
// durable work queue, a retry queue whose expired messages dead-letter
// back to the work queue (exponential backoff via per-message TTL), and a
// terminal dead queue for jobs that exhausted their attempts.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"
)

type Client struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	queueName    string
	maxAttempts  int
}

func NewClient(url, exchangeName, queueName string, maxAttempts int) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		queueName:    queueName,
		maxAttempts:  maxAttempts,
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queues: %w", err)
	}

	return client, nil
}

func (c *Client) dlxName() string   { return c.exchangeName + ".dlx" }
func (c *Client) retryName() string { return c.queueName + ".retry" }
func (c *Client) deadName() string  { return c.queueName + ".dead" }

func (c *Client) setup() error {
	for _, exchange := range []string{c.exchangeName, c.dlxName()} {
		err := c.channel.ExchangeDeclare(
			exchange, // name
			"direct", // type
			true,     // durable
			false,    // auto-deleted
			false,    // internal
			false,    // no-wait
			nil,      // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", exchange, err)
		}
	}

	// Work queue; rejected deliveries land in the terminal dead queue.
	_, err := c.channel.QueueDeclare(c.queueName, true, false, false, false, amqp091.Table{
		"x-dead-letter-exchange":    c.dlxName(),
		"x-dead-letter-routing-key": c.deadName(),
	})
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", c.queueName, err)
	}
	if err := c.channel.QueueBind(c.queueName, c.queueName, c.exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", c.queueName, err)
	}

	// Retry queue: messages wait out their per-message TTL, then
	// dead-letter straight back onto the work queue.
	_, err = c.channel.QueueDeclare(c.retryName(), true, false, false, false, amqp091.Table{
		"x-dead-letter-exchange":    c.exchangeName,
		"x-dead-letter-routing-key": c.queueName,
	})
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", c.retryName(), err)
	}
	if err := c.channel.QueueBind(c.retryName(), c.retryName(), c.exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", c.retryName(), err)
	}

	// Terminal dead-letter queue, drained by operators only.
	if _, err := c.channel.QueueDeclare(c.deadName(), true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", c.deadName(), err)
	}
	if err := c.channel.QueueBind(c.deadName(), c.deadName(), c.dlxName(), false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", c.deadName(), err)
	}

	return nil
}

// PublishMaterialization enqueues one materialization job.
func (c *Client) PublishMaterialization(ctx context.Context, job *MaterializeJob) error {
	return c.publish(ctx, c.queueName, job, 0)
}

func (c *Client) publish(ctx context.Context, routingKey string, job *MaterializeJob, expiration time.Duration) error {
	body, err := job.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	publishing := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		MessageId:    job.JobID,
		Body:         body,
	}
	if expiration > 0 {
		publishing.Expiration = strconv.FormatInt(expiration.Milliseconds(), 10)
	}

	err = c.channel.PublishWithContext(ctx, c.exchangeName, routingKey, false, false, publishing)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}

	slog.InfoContext(ctx, "Published materialization job",
		"job_id", job.JobID,
		"transaction_id", job.TransactionID,
		"routing_key", routingKey,
		"attempt", job.Attempt)

	return nil
}

// Handler processes one job. A returned error sends the job through the
// retry queue; after maxAttempts the job is dead-lettered.
type Handler func(ctx context.Context, job *MaterializeJob) error

// Consume processes jobs with up to workers concurrent handlers until ctx
// is cancelled or the channel closes.
func (c *Client) Consume(ctx context.Context, workers int, handler Handler) error {
	if workers < 1 {
		workers = 1
	}
	if err := c.channel.Qos(workers, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	msgs, err := c.channel.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack (we want manual ack)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming materialization jobs", "queue", c.queueName, "workers", workers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping job consumption", "reason", ctx.Err())
			waitErr := g.Wait()
			if waitErr != nil && !errors.Is(waitErr, context.Canceled) {
				return waitErr
			}
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				if err := g.Wait(); err != nil {
					return err
				}
				return fmt.Errorf("message channel closed")
			}
			d := delivery
			g.Go(func() error {
				c.handleDelivery(gctx, d, handler)
				return nil
			})
		}
	}
}

func (c *Client) handleDelivery(ctx context.Context, delivery amqp091.Delivery, handler Handler) {
	job, err := MaterializeJobFromJSON(delivery.Body)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to unmarshal job, dead-lettering", "error", err)
		_ = delivery.Nack(false, false) // straight to the dead queue
		return
	}

	if err := handler(ctx, job); err != nil {
		c.retryOrBury(ctx, delivery, job, err)
		return
	}

	_ = delivery.Ack(false)
}

// retryOrBury either schedules a delayed retry or, once attempts are
// exhausted, rejects the delivery into the dead queue.
func (c *Client) retryOrBury(ctx context.Context, delivery amqp091.Delivery, job *MaterializeJob, cause error) {
	if job.Attempt+1 >= c.maxAttempts {
		slog.ErrorContext(ctx, "Job exhausted retries, dead-lettering",
			"job_id", job.JobID,
			"transaction_id", job.TransactionID,
			"attempt", job.Attempt,
			"error", cause)
		_ = delivery.Nack(false, false)
		return
	}

	retry := *job
	retry.Attempt++
	backoff := exponentialBackoff(job.Attempt)

	if err := c.publish(ctx, c.retryName(), &retry, backoff); err != nil {
		// Could not reach the retry queue; requeue the original so the
		// job is not lost (immediate redelivery, no backoff).
		slog.ErrorContext(ctx, "Failed to schedule retry, requeueing",
			"job_id", job.JobID, "error", err)
		_ = delivery.Nack(false, true)
		return
	}

	slog.WarnContext(ctx, "Job failed, retry scheduled",
		"job_id", job.JobID,
		"transaction_id", job.TransactionID,
		"attempt", retry.Attempt,
		"backoff", backoff,
		"error", cause)
	_ = delivery.Ack(false)
}

// exponentialBackoff doubles from one second and caps at thirty.
func exponentialBackoff(attempt int) time.Duration {
	if attempt > 5 {
		attempt = 5
	}
	backoff := time.Second << attempt
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}

// isConnectionError reports whether err looks like a broken broker
// connection rather than a per-message failure.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{
		"connection refused",
		"connection closed",
		"unexpected EOF",
		"broken pipe",
		"use of closed network connection",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
