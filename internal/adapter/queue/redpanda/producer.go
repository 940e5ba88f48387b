package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fairyhunter13/hybrid-capture/internal/domain"
)

// TopicJobs is the Kafka/Redpanda topic the low-latency back-end publishes
// Jobs to for Capture Workers to consume.
const TopicJobs = "hybrid-capture-jobs"

// TopicJobsDLQ receives Jobs that exhausted their retry budget in Consumer.
const TopicJobsDLQ = "hybrid-capture-jobs-dlq"

const (
	jobsPartitions        = int32(8)
	jobsReplicationFactor = int16(1)
)

// Producer wraps a transactional Kafka producer and implements
// domain.LowLatencyQueue.
type Producer struct {
	client *kgo.Client
	topic  string
	// transactionChan serializes transactions: franz-go's transactional
	// client supports only one in-flight transaction at a time.
	transactionChan chan struct{}
}

// NewProducer constructs a Producer with exactly-once semantics against the
// default jobs topic.
func NewProducer(brokers []string) (*Producer, error) {
	return NewProducerWithTransactionalID(brokers, "hybrid-capture-producer", TopicJobs)
}

// NewProducerWithTransactionalID constructs a Producer with a custom
// transactional ID and topic, letting tests isolate producers from one
// another without a shared Kafka cluster state.
func NewProducerWithTransactionalID(brokers []string, transactionalID, topic string) (*Producer, error) {
	slog.Info("creating redpanda producer",
		slog.Any("brokers", brokers),
		slog.String("transactional_id", transactionalID),
		slog.String("topic", topic))

	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.TransactionalID(transactionalID),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1000000),
	)
	if err != nil {
		return nil, fmt.Errorf("redpanda client: %w", err)
	}

	if err := createTopicIfNotExists(context.Background(), client, topic, jobsPartitions, jobsReplicationFactor); err != nil {
		slog.Warn("failed to create topic, it may already exist", slog.String("topic", topic), slog.Any("error", err))
	}

	return &Producer{
		client:          client,
		topic:           topic,
		transactionChan: make(chan struct{}, 1),
	}, nil
}

// Publish produces job with exactly-once semantics, keyed by repository id
// so all of a repository's jobs land on the same partition in publish
// order. Consumer hands records to a concurrent worker pool, so jobs of
// one repository can still be processed in parallel.
func (p *Producer) Publish(ctx domain.Context, job domain.Job) error {
	return p.publishWithAttempt(ctx, job, 0)
}

// publishWithAttempt is Publish plus an explicit delivery-attempt count,
// used by RetryManager to requeue a Job with its attempt header incremented.
func (p *Producer) publishWithAttempt(ctx domain.Context, job domain.Job, attempt int) error {
	select {
	case p.transactionChan <- struct{}{}:
		defer func() { <-p.transactionChan }()
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := p.client.BeginTransaction(); err != nil {
		return fmt.Errorf("op=redpanda.Publish begin_tx: %w", err)
	}

	b, err := json.Marshal(job)
	if err != nil {
		p.abort(ctx, job.ID, err)
		return fmt.Errorf("op=redpanda.Publish marshal: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(job.RepositoryID),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: "job_id", Value: []byte(job.ID)},
			{Key: "kind", Value: []byte(job.Kind)},
			{Key: attemptHeader, Value: []byte(strconv.Itoa(attempt))},
		},
	}

	e := kgo.AbortingFirstErrPromise(p.client)
	p.client.Produce(ctx, record, e.Promise())
	if err := e.Err(); err != nil {
		p.abort(ctx, job.ID, err)
		return fmt.Errorf("op=redpanda.Publish produce: %w", err)
	}

	if err := p.client.EndTransaction(ctx, kgo.TryCommit); err != nil {
		return fmt.Errorf("op=redpanda.Publish commit: %w", err)
	}

	slog.Info("job published", slog.String("job_id", job.ID), slog.String("topic", p.topic))
	return nil
}

func (p *Producer) abort(ctx context.Context, jobID string, cause error) {
	if abortErr := p.client.EndTransaction(ctx, kgo.TryAbort); abortErr != nil {
		slog.Error("failed to abort transaction", slog.String("job_id", jobID), slog.Any("error", abortErr), slog.Any("cause", cause))
	}
}

// Close closes the producer's Kafka client.
func (p *Producer) Close() error {
	if p.client != nil {
		p.client.Close()
	}
	return nil
}
