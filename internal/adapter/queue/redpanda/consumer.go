package redpanda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/hybrid-capture/internal/domain"
)

// Handler processes one Job pulled off the jobs topic, returning the
// terminal status a Capture Worker run reached and a human-readable error
// summary when that status is domain.JobFailed.
type Handler func(ctx domain.Context, job domain.Job) (domain.JobStatus, string)

// Consumer is a consumer-group reader over TopicJobs backed by a dynamic
// worker pool, adaptive poll backoff and a RetryManager for failed jobs.
type Consumer struct {
	client  *kgo.Client
	topic   string
	groupID string
	handler Handler
	retry   *RetryManager

	poller *AdaptivePoller

	minWorkers    int
	maxWorkers    int
	activeWorkers int32
	jobQueue      chan *kgo.Record
	shutdown      chan struct{}
	wg            sync.WaitGroup
}

// NewConsumer constructs a Consumer over TopicJobs with a 2-10 worker range.
func NewConsumer(brokers []string, groupID string, handler Handler, retry *RetryManager) (*Consumer, error) {
	return NewConsumerWithConfig(brokers, groupID, handler, retry, 2, 10)
}

// NewConsumerWithConfig constructs a Consumer with an explicit worker range,
// letting callers size the pool to the volume a deployment expects.
func NewConsumerWithConfig(brokers []string, groupID string, handler Handler, retry *RetryManager, minWorkers, maxWorkers int) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=redpanda.NewConsumer: no seed brokers provided")
	}
	if groupID == "" {
		return nil, fmt.Errorf("op=redpanda.NewConsumer: %w: missing group id", domain.ErrInvalidArgument)
	}
	if handler == nil {
		return nil, fmt.Errorf("op=redpanda.NewConsumer: %w: missing handler", domain.ErrInvalidArgument)
	}

	ctx := context.Background()
	tempClient, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return nil, fmt.Errorf("op=redpanda.NewConsumer temp_client: %w", err)
	}
	if err := createTopicIfNotExists(ctx, tempClient, TopicJobs, jobsPartitions, jobsReplicationFactor); err != nil {
		slog.Warn("failed to create jobs topic, it may already exist", slog.Any("error", err))
	}
	tempClient.Close()

	kotelTracer := kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))
	kotelService := kotel.NewKotel(kotel.WithTracer(kotelTracer))

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(TopicJobs),
		kgo.FetchIsolationLevel(kgo.ReadCommitted()),
		kgo.RequireStableFetchOffsets(),
		kgo.AutoCommitMarks(),
		kgo.AutoCommitInterval(time.Second),
		kgo.WithHooks(kotelService.Hooks()...),
	)
	if err != nil {
		return nil, fmt.Errorf("op=redpanda.NewConsumer client: %w", err)
	}

	return &Consumer{
		client:        client,
		topic:         TopicJobs,
		groupID:       groupID,
		handler:       handler,
		retry:         retry,
		poller:        NewAdaptivePoller(100 * time.Millisecond),
		minWorkers:    minWorkers,
		maxWorkers:    maxWorkers,
		activeWorkers: int32(minWorkers),
		jobQueue:      make(chan *kgo.Record, maxWorkers*2),
		shutdown:      make(chan struct{}),
	}, nil
}

// Start begins fetching and processing until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	slog.Info("starting redpanda consumer",
		slog.String("group_id", c.groupID),
		slog.String("topic", c.topic),
		slog.Int("min_workers", c.minWorkers),
		slog.Int("max_workers", c.maxWorkers))

	for i := 0; i < c.minWorkers; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i)
	}
	go c.scaler(ctx)

	c.fetchLoop(ctx)
	close(c.shutdown)
	c.wg.Wait()
	return ctx.Err()
}

// fetchLoop polls the broker and queues records for worker goroutines,
// sleeping for the poller's interval when a poll returns no records or
// errors. Only errors count as poller failures; an empty poll counts as a
// success.
func (c *Consumer) fetchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		interval := c.poller.GetNextInterval()
		fetches := c.client.PollFetches(ctx)
		if ctx.Err() != nil {
			return
		}

		if errs := fetches.Errors(); len(errs) > 0 {
			for _, e := range errs {
				slog.Error("fetch error", slog.String("topic", e.Topic), slog.Int("partition", int(e.Partition)), slog.Any("error", e.Err))
			}
			c.poller.RecordFailure()
			time.Sleep(interval)
			continue
		}

		if fetches.NumRecords() == 0 {
			c.poller.RecordSuccess()
			time.Sleep(interval)
			continue
		}
		c.poller.RecordSuccess()

		fetches.EachRecord(func(record *kgo.Record) {
			select {
			case c.jobQueue <- record:
			default:
				slog.Warn("job queue full, processing inline", slog.Int64("offset", record.Offset))
				if err := c.processRecord(ctx, record); err != nil {
					slog.Error("inline job processing failed", slog.Any("error", err))
				}
			}
		})
	}
}

// scaler adjusts the worker pool size to the queue backlog every two
// seconds, never dropping below minWorkers or exceeding maxWorkers.
func (c *Consumer) scaler(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		case <-ticker.C:
			backlog := len(c.jobQueue)
			active := int(atomic.LoadInt32(&c.activeWorkers))
			if backlog > 0 && active < c.maxWorkers {
				atomic.AddInt32(&c.activeWorkers, 1)
				c.wg.Add(1)
				go c.worker(ctx, active)
			}
		}
	}
}

// worker dequeues records and processes them until shutdown.
func (c *Consumer) worker(ctx context.Context, id int) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		case record, ok := <-c.jobQueue:
			if !ok || record == nil {
				return
			}
			if err := c.processRecord(ctx, record); err != nil {
				slog.Error("record processing failed", slog.Int("worker", id), slog.Any("error", err))
			}
		}
	}
}

// processRecord decodes the Job carried by record, runs it through handler,
// and either commits the offset (success or a non-retryable terminal
// failure already routed to the dead-letter topic) or requeues it.
func (c *Consumer) processRecord(ctx context.Context, record *kgo.Record) error {
	tracer := otel.Tracer("queue.consumer")
	ctx, span := tracer.Start(ctx, "redpanda.ProcessJob")
	defer span.End()

	var job domain.Job
	if err := json.Unmarshal(record.Value, &job); err != nil {
		c.client.MarkCommitRecords(record)
		return fmt.Errorf("op=redpanda.processRecord unmarshal: %w", err)
	}

	attempt := attemptFromHeaders(record.Headers)
	status, lastErr := c.handler(ctx, job)
	job.Status = status
	job.LastError = lastErr

	if status != domain.JobFailed {
		c.client.MarkCommitRecords(record)
		return nil
	}

	if c.retry == nil {
		c.client.MarkCommitRecords(record)
		return fmt.Errorf("job %s failed: %s", job.ID, lastErr)
	}

	if err := c.retry.Handle(ctx, job, attempt, errors.New(lastErr)); err != nil {
		return fmt.Errorf("op=redpanda.processRecord retry: %w", err)
	}
	c.client.MarkCommitRecords(record)
	return nil
}

// Close shuts down the underlying Kafka client.
func (c *Consumer) Close() error {
	if c.client != nil {
		c.client.Close()
	}
	return nil
}
