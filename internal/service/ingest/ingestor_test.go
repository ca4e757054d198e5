package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/mamadbah2/chatrelay/internal/domain/models"
	"github.com/mamadbah2/chatrelay/internal/repository/mongodb"
)

// fakeStream yields its events then blocks until the context ends.
type fakeStream struct {
	events []models.ExternalEvent
	pos    int
	closed atomic.Bool
}

func (s *fakeStream) Next(ctx context.Context) bool {
	if s.pos < len(s.events) {
		s.pos++
		return true
	}
	<-ctx.Done()
	return false
}

func (s *fakeStream) Event() (models.ExternalEvent, error) { return s.events[s.pos-1], nil }

func (s *fakeStream) ResumeToken() bson.Raw {
	raw, _ := bson.Marshal(bson.D{{Key: "_data", Value: s.events[s.pos-1].Object}})
	return raw
}

func (s *fakeStream) Err() error { return nil }

func (s *fakeStream) Close(context.Context) error {
	s.closed.Store(true)
	return nil
}

type fakeSource struct {
	mu       sync.Mutex
	streams  []*fakeStream
	failures int
	calls    int
	resumes  []bson.Raw
}

func (s *fakeSource) Watch(_ context.Context, resumeAfter bson.Raw) (mongodb.ChangeStream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.resumes = append(s.resumes, resumeAfter)
	if s.failures > 0 {
		s.failures--
		return nil, errors.New("replica set unavailable")
	}
	if len(s.streams) == 0 {
		return &fakeStream{}, nil
	}
	stream := s.streams[0]
	s.streams = s.streams[1:]
	return stream, nil
}

func (s *fakeSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeCursors struct {
	mu     sync.Mutex
	loaded bson.Raw
	saved  []bson.Raw
}

func (c *fakeCursors) Load(context.Context, string) (bson.Raw, error) { return c.loaded, nil }

func (c *fakeCursors) Save(_ context.Context, _ string, token bson.Raw) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saved = append(c.saved, token)
	return nil
}

func (c *fakeCursors) savedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.saved)
}

// recordingHandler completes events in the order they finish. Events whose
// Object is listed in gates wait for the gate to close first.
type recordingHandler struct {
	mu        sync.Mutex
	completed []string
	gates     map[string]chan struct{}
	running   atomic.Int32
	peak      atomic.Int32
}

func (h *recordingHandler) Handle(ctx context.Context, event models.ExternalEvent) {
	n := h.running.Add(1)
	defer h.running.Add(-1)
	for {
		p := h.peak.Load()
		if n <= p || h.peak.CompareAndSwap(p, n) {
			break
		}
	}

	if gate, ok := h.gates[event.Object]; ok {
		select {
		case <-gate:
		case <-ctx.Done():
			return
		}
	}

	h.mu.Lock()
	h.completed = append(h.completed, event.Object)
	h.mu.Unlock()
}

func (h *recordingHandler) order() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.completed...)
}

func event(label string) models.ExternalEvent {
	return models.ExternalEvent{WebhookPayload: models.WebhookPayload{Object: label}}
}

func TestIngestorCompletesOutOfArrivalOrder(t *testing.T) {
	slowMedia := make(chan struct{})
	handler := &recordingHandler{gates: map[string]chan struct{}{"media": slowMedia}}
	source := &fakeSource{streams: []*fakeStream{{events: []models.ExternalEvent{event("media"), event("text")}}}}

	ingestor := NewIngestor(source, nil, handler, Options{Concurrency: 4}, nil)
	require.NoError(t, ingestor.Subscribe(context.Background()))
	defer ingestor.Unsubscribe()

	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"text"}, handler.order())
	}, time.Second, 5*time.Millisecond)

	close(slowMedia)
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"text", "media"}, handler.order())
	}, time.Second, 5*time.Millisecond)
}

func TestIngestorCapsConcurrency(t *testing.T) {
	gate := make(chan struct{})
	handler := &recordingHandler{gates: map[string]chan struct{}{"a": gate, "b": gate, "c": gate}}
	source := &fakeSource{streams: []*fakeStream{{events: []models.ExternalEvent{event("a"), event("b"), event("c")}}}}

	ingestor := NewIngestor(source, nil, handler, Options{Concurrency: 2}, nil)
	require.NoError(t, ingestor.Subscribe(context.Background()))
	defer ingestor.Unsubscribe()

	assert.Eventually(t, func() bool { return handler.running.Load() == 2 }, time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return handler.running.Load() > 2 }, 50*time.Millisecond, 5*time.Millisecond)

	close(gate)
	assert.Eventually(t, func() bool { return len(handler.order()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), handler.peak.Load())
}

func TestIngestorReconnectsAfterWatchFailure(t *testing.T) {
	handler := &recordingHandler{}
	source := &fakeSource{
		failures: 2,
		streams:  []*fakeStream{{events: []models.ExternalEvent{event("text")}}},
	}

	ingestor := NewIngestor(source, nil, handler, Options{ReconnectDelay: time.Millisecond}, nil)
	require.NoError(t, ingestor.Subscribe(context.Background()))
	defer ingestor.Unsubscribe()

	assert.Eventually(t, func() bool { return len(handler.order()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, source.callCount())
}

func TestIngestorResumesFromSavedToken(t *testing.T) {
	saved, err := bson.Marshal(bson.D{{Key: "_data", Value: "previous"}})
	require.NoError(t, err)

	cursors := &fakeCursors{loaded: saved}
	handler := &recordingHandler{}
	source := &fakeSource{streams: []*fakeStream{{events: []models.ExternalEvent{event("one"), event("two")}}}}

	ingestor := NewIngestor(source, cursors, handler, Options{Resume: true}, nil)
	require.NoError(t, ingestor.Subscribe(context.Background()))
	defer ingestor.Unsubscribe()

	assert.Eventually(t, func() bool { return cursors.savedCount() == 2 }, time.Second, 5*time.Millisecond)

	source.mu.Lock()
	assert.Equal(t, bson.Raw(saved), source.resumes[0])
	source.mu.Unlock()

	cursors.mu.Lock()
	last := cursors.saved[1]
	cursors.mu.Unlock()
	assert.Equal(t, "two", last.Lookup("_data").StringValue())
}

func TestIngestorWithoutResumeStartsFromNow(t *testing.T) {
	cursors := &fakeCursors{loaded: bson.Raw{0x05}}
	source := &fakeSource{streams: []*fakeStream{{events: []models.ExternalEvent{event("one")}}}}
	handler := &recordingHandler{}

	ingestor := NewIngestor(source, cursors, handler, Options{}, nil)
	require.NoError(t, ingestor.Subscribe(context.Background()))
	defer ingestor.Unsubscribe()

	assert.Eventually(t, func() bool { return len(handler.order()) == 1 }, time.Second, 5*time.Millisecond)
	source.mu.Lock()
	assert.Nil(t, source.resumes[0])
	source.mu.Unlock()
	assert.Zero(t, cursors.savedCount())
}

func TestUnsubscribeClosesStreamAndAllowsResubscribe(t *testing.T) {
	stream := &fakeStream{}
	source := &fakeSource{streams: []*fakeStream{stream}}
	ingestor := NewIngestor(source, nil, &recordingHandler{}, Options{}, nil)

	require.NoError(t, ingestor.Subscribe(context.Background()))
	assert.ErrorIs(t, ingestor.Subscribe(context.Background()), ErrAlreadySubscribed)

	assert.Eventually(t, func() bool { return source.callCount() == 1 }, time.Second, 5*time.Millisecond)
	ingestor.Unsubscribe()
	assert.True(t, stream.closed.Load())

	require.NoError(t, ingestor.Subscribe(context.Background()))
	ingestor.Unsubscribe()
}

func TestUnsubscribeLeavesInflightEventsRunning(t *testing.T) {
	gate := make(chan struct{})
	handler := &recordingHandler{gates: map[string]chan struct{}{"slow": gate}}
	source := &fakeSource{streams: []*fakeStream{{events: []models.ExternalEvent{event("slow")}}}}
	ingestor := NewIngestor(source, nil, handler, Options{}, nil)

	require.NoError(t, ingestor.Subscribe(context.Background()))
	assert.Eventually(t, func() bool { return handler.running.Load() == 1 }, time.Second, 5*time.Millisecond)
	ingestor.Unsubscribe()

	close(gate)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, ingestor.Drain(ctx))
	assert.Equal(t, []string{"slow"}, handler.order())
}
