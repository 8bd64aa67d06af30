// Package nats carries the two event streams of the ingest pipeline over
// core NATS.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/shiftlog-retrieval/internal/infrastructure/resilience"
)

const workerQueueGroup = "shiftlog-workers"

// Queue carries ingest jobs, load-balanced across workers, and corpus
// changes, fanned out to every corpus owner.
type Queue struct {
	conn          *nats.Conn
	subject       string
	corpusSubject string
	executor      *resilience.Executor
}

type Options struct {
	ClientName           string
	CorpusSubject        string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func (o Options) withDefaults(subject string) Options {
	if o.ClientName == "" {
		o.ClientName = "shiftlog-retrieval"
	}
	if o.CorpusSubject == "" {
		o.CorpusSubject = subject + ".corpus"
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 2 * time.Second
	}
	if o.ReconnectWait <= 0 {
		o.ReconnectWait = 2 * time.Second
	}
	if o.MaxReconnects <= 0 {
		o.MaxReconnects = 60
	}
	if o.RetryOnFailedConnect == nil {
		retry := true
		o.RetryOnFailedConnect = &retry
	}
	return o
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, errors.New("nats: ingest subject is required")
	}
	options = options.withDefaults(subject)

	conn, err := nats.Connect(
		url,
		nats.Name(options.ClientName),
		nats.Timeout(options.ConnectTimeout),
		nats.ReconnectWait(options.ReconnectWait),
		nats.MaxReconnects(options.MaxReconnects),
		nats.RetryOnFailedConnect(*options.RetryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:          conn,
		subject:       subject,
		corpusSubject: options.CorpusSubject,
		executor:      options.ResilienceExecutor,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// ingestJob is the payload of one ingest event.
type ingestJob struct {
	DocumentID  string    `json:"document_id"`
	PublishedAt time.Time `json:"published_at"`
}

func (q *Queue) PublishDocumentIngested(ctx context.Context, documentID string) error {
	if strings.TrimSpace(documentID) == "" {
		return errors.New("nats: document id is required")
	}
	data, err := json.Marshal(ingestJob{DocumentID: documentID, PublishedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal ingest job: %w", err)
	}
	return q.publish(ctx, "nats.publish_ingest", q.subject, data)
}

// SubscribeDocumentIngested blocks until ctx ends. Each job goes to exactly
// one worker of the queue group.
func (q *Queue) SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, workerQueueGroup, func(msg *nats.Msg) {
		job, err := decodeIngestJob(msg.Data)
		if err != nil {
			slog.Error("ingest_event_invalid", "error", err)
			return
		}
		dispatch(ctx, func(handlerCtx context.Context) error {
			return handler(handlerCtx, job.DocumentID)
		}, "ingest_handler_failed", "document_id", job.DocumentID)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe ingest: %w", err)
	}
	return q.serve(ctx, sub)
}

func decodeIngestJob(data []byte) (ingestJob, error) {
	var job ingestJob
	if err := json.Unmarshal(data, &job); err != nil {
		return ingestJob{}, fmt.Errorf("decode ingest job: %w", err)
	}
	if strings.TrimSpace(job.DocumentID) == "" {
		return ingestJob{}, errors.New("decode ingest job: missing document id")
	}
	return job, nil
}

// dispatch runs one message handler unless the subscription is shutting
// down, logging a failure under event with attrs.
func dispatch(ctx context.Context, handle func(context.Context) error, event string, attrs ...any) {
	if ctx.Err() != nil {
		return
	}
	handlerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := handle(handlerCtx); err != nil {
		slog.Error(event, append(attrs, "error", err)...)
	}
}

func (q *Queue) publish(ctx context.Context, operation, subject string, data []byte) error {
	call := func(context.Context) error {
		if err := q.conn.Publish(subject, data); err != nil {
			return fmt.Errorf("nats publish %s: %w", subject, err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, operation, call, classifyPublishError)
	} else {
		err = call(ctx)
	}
	return resilience.WrapTemporary(operation, err, classifyPublishError)
}

// classifyPublishError retries connection-level failures only.
func classifyPublishError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err),
		errors.Is(err, nats.ErrNoServers),
		errors.Is(err, nats.ErrTimeout),
		errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrConnectionReconnecting),
		errors.Is(err, nats.ErrDisconnected):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

// serve blocks until ctx ends, then drains sub.
func (q *Queue) serve(ctx context.Context, sub *nats.Subscription) error {
	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
