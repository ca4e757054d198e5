package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/mamadbah2/chatrelay/internal/domain/models"
	"github.com/mamadbah2/chatrelay/internal/repository/mongodb"
)

// ErrAlreadySubscribed is returned by Subscribe while a subscription is active.
var ErrAlreadySubscribed = errors.New("ingestor already subscribed")

// Source opens change streams over the event log.
type Source interface {
	Watch(ctx context.Context, resumeAfter bson.Raw) (mongodb.ChangeStream, error)
}

// CursorStore persists the resume position of a named subscription.
type CursorStore interface {
	Load(ctx context.Context, name string) (bson.Raw, error)
	Save(ctx context.Context, name string, token bson.Raw) error
}

// Handler processes one inserted event.
type Handler interface {
	Handle(ctx context.Context, event models.ExternalEvent)
}

// Options tunes an Ingestor.
type Options struct {
	// Name identifies the subscription in the cursor store.
	Name string
	// Concurrency caps the number of events handled at once.
	Concurrency int64
	// EventTimeout bounds the handling of a single event.
	EventTimeout time.Duration
	// ReconnectDelay is the pause before a failed stream is reopened.
	ReconnectDelay time.Duration
	// Resume persists resume tokens and restarts from the last one.
	// Without it a new subscription starts from the current time.
	Resume bool
}

// Ingestor feeds event log insertions to a handler, one goroutine per event.
type Ingestor struct {
	source  Source
	cursors CursorStore
	handler Handler
	opts    Options
	sem     *semaphore.Weighted
	logger  *zap.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	inflight sync.WaitGroup
}

// NewIngestor wires an ingestor. cursors may be nil when Resume is off.
func NewIngestor(source Source, cursors CursorStore, handler Handler, opts Options, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Name == "" {
		opts.Name = "external-events"
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.EventTimeout <= 0 {
		opts.EventTimeout = 2 * time.Minute
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = time.Second
	}
	if cursors == nil {
		opts.Resume = false
	}

	return &Ingestor{
		source:  source,
		cursors: cursors,
		handler: handler,
		opts:    opts,
		sem:     semaphore.NewWeighted(opts.Concurrency),
		logger:  logger,
	}
}

// Subscribe starts consuming the event log in the background. The
// subscription ends when ctx is cancelled or Unsubscribe is called.
func (i *Ingestor) Subscribe(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.cancel != nil {
		return ErrAlreadySubscribed
	}

	loopCtx, cancel := context.WithCancel(ctx)
	i.cancel = cancel
	i.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		i.run(loopCtx)
	}(i.done)

	i.logger.Info("event log subscription started",
		zap.String("name", i.opts.Name),
		zap.Bool("resume", i.opts.Resume),
		zap.Int64("concurrency", i.opts.Concurrency),
	)
	return nil
}

// Unsubscribe stops reading the stream and waits for the read loop to exit.
// Events already handed to the handler run to completion.
func (i *Ingestor) Unsubscribe() {
	i.mu.Lock()
	cancel, done := i.cancel, i.done
	i.cancel, i.done = nil, nil
	i.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	i.logger.Info("event log subscription stopped", zap.String("name", i.opts.Name))
}

// Drain waits for in-flight events or for ctx to end.
func (i *Ingestor) Drain(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		i.inflight.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (i *Ingestor) run(ctx context.Context) {
	var token bson.Raw
	if i.opts.Resume {
		saved, err := i.cursors.Load(ctx, i.opts.Name)
		if err != nil {
			i.logger.Error("failed to load resume token, starting from now", zap.Error(err))
		}
		token = saved
	}

	for ctx.Err() == nil {
		stream, err := i.source.Watch(ctx, token)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			i.logger.Error("failed to open change stream", zap.Error(err), zap.Duration("retry_in", i.opts.ReconnectDelay))
			i.pause(ctx)
			continue
		}

		token = i.consume(ctx, stream, token)

		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := stream.Close(closeCtx); err != nil {
			i.logger.Warn("failed to close change stream", zap.Error(err))
		}
		cancel()

		if ctx.Err() != nil {
			return
		}
		i.logger.Warn("change stream ended, reconnecting", zap.Duration("retry_in", i.opts.ReconnectDelay))
		i.pause(ctx)
	}
}

// consume reads the stream until it fails or ctx ends and returns the last
// resume token seen.
func (i *Ingestor) consume(ctx context.Context, stream mongodb.ChangeStream, token bson.Raw) bson.Raw {
	for stream.Next(ctx) {
		event, err := stream.Event()
		if err != nil {
			i.logger.Error("failed to decode event log insertion", zap.Error(err))
		} else if !i.dispatch(ctx, event) {
			return token
		}

		if next := stream.ResumeToken(); len(next) > 0 {
			token = next
			i.saveToken(ctx, token)
		}
	}

	if err := stream.Err(); err != nil && ctx.Err() == nil {
		i.logger.Error("change stream error", zap.Error(err))
	}
	return token
}

// dispatch hands event to the handler once a concurrency slot is free. It
// reports false when ctx ended before a slot was acquired.
func (i *Ingestor) dispatch(ctx context.Context, event models.ExternalEvent) bool {
	if err := i.sem.Acquire(ctx, 1); err != nil {
		return false
	}

	i.inflight.Add(1)
	go func() {
		defer i.inflight.Done()
		defer i.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				i.logger.Error("event handler panicked", zap.Any("panic", r), zap.String("event_id", event.ID.Hex()))
			}
		}()

		eventCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), i.opts.EventTimeout)
		defer cancel()
		i.handler.Handle(eventCtx, event)
	}()
	return true
}

func (i *Ingestor) saveToken(ctx context.Context, token bson.Raw) {
	if !i.opts.Resume {
		return
	}
	if err := i.cursors.Save(ctx, i.opts.Name, token); err != nil && ctx.Err() == nil {
		i.logger.Warn("failed to persist resume token", zap.Error(err))
	}
}

func (i *Ingestor) pause(ctx context.Context) {
	timer := time.NewTimer(i.opts.ReconnectDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
