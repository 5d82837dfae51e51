package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/BranchZeroDevs/DataDistillerAI/internal/core/domain"
	"github.com/BranchZeroDevs/DataDistillerAI/internal/infrastructure/resilience"
)

// Bus carries the two pipeline event streams over core NATS subjects.
// Subscribers join per-subject queue groups, so each event is handed to one
// member of the consumer pool. Handlers are expected to be idempotent.
type Bus struct {
	conn              *nats.Conn
	submittedSubject  string
	chunkReadySubject string
	executor          *resilience.Executor
}

const (
	ingestorQueueGroup = "ingestors"
	embedderQueueGroup = "embedders"
)

func New(url, submittedSubject, chunkReadySubject string) (*Bus, error) {
	return NewWithOptions(url, submittedSubject, chunkReadySubject, Options{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func NewWithOptions(url, submittedSubject, chunkReadySubject string, options Options) (*Bus, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("data-distiller"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("nats reconnected: %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Bus{
		conn:              conn,
		submittedSubject:  submittedSubject,
		chunkReadySubject: chunkReadySubject,
		executor:          options.ResilienceExecutor,
	}, nil
}

func (b *Bus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

func (b *Bus) PublishDocumentSubmitted(ctx context.Context, event domain.DocumentSubmitted) error {
	return b.publish(ctx, b.submittedSubject, event)
}

func (b *Bus) PublishChunkReady(ctx context.Context, event domain.ChunkReady) error {
	return b.publish(ctx, b.chunkReadySubject, event)
}

func (b *Bus) publish(ctx context.Context, subject string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	call := func(_ context.Context) error {
		if err := b.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish %s: %w", subject, err)
		}
		return nil
	}

	if b.executor != nil {
		err = b.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

func (b *Bus) SubscribeDocumentSubmitted(ctx context.Context, handler func(context.Context, domain.DocumentSubmitted) error) error {
	return subscribe(ctx, b, b.submittedSubject, ingestorQueueGroup, handler)
}

func (b *Bus) SubscribeChunkReady(ctx context.Context, handler func(context.Context, domain.ChunkReady) error) error {
	return subscribe(ctx, b, b.chunkReadySubject, embedderQueueGroup, handler)
}

// subscribe joins the queue group and blocks until ctx is done, then drains
// so in-flight handlers finish before the consumer exits.
func subscribe[E any](ctx context.Context, b *Bus, subject, group string, handler func(context.Context, E) error) error {
	sub, err := b.conn.QueueSubscribe(subject, group, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		var event E
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			log.Printf("drop malformed event on %s: %v", subject, err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, event); err != nil {
			log.Printf("handler error on %s: %v", subject, err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := b.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
