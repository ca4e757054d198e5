package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mamadbah2/chatrelay/internal/domain/models"
	"github.com/mamadbah2/chatrelay/internal/service/outbound"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var errInternal = errors.New("internal error")

// Dispatcher sends client-originated messages to the provider.
type Dispatcher interface {
	Send(ctx context.Context, msg models.OutboundMessage) (*outbound.Result, error)
}

// MessageLog records what clients send.
type MessageLog interface {
	Append(ctx context.Context, msg models.ChatMessage) error
}

// Options configures the hub.
type Options struct {
	IdentityHeader  string
	SendBuffer      int
	DispatchTimeout time.Duration
}

// Hub tracks connected websocket clients, relays broadcasts to all of them
// and forwards their send requests.
type Hub struct {
	dispatcher Dispatcher
	messages   MessageLog
	opts       Options
	upgrader   websocket.Upgrader
	logger     *zap.Logger

	mu      sync.RWMutex
	clients map[string]*client
}

// NewHub wires a gateway hub.
func NewHub(dispatcher Dispatcher, messages MessageLog, opts Options, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.IdentityHeader == "" {
		opts.IdentityHeader = "user-id"
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = 30 * time.Second
	}

	return &Hub{
		dispatcher: dispatcher,
		messages:   messages,
		opts:       opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Clients authenticate with the identity header, not by origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[string]*client),
	}
}

// ServeHTTP upgrades the request once the identity header is present exactly
// once. Anything else is refused before the upgrade and never registered.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	values := r.Header.Values(h.opts.IdentityHeader)
	if len(values) != 1 || strings.TrimSpace(values[0]) == "" {
		h.logger.Info("socket connection refused: missing or ambiguous identity",
			zap.String("header", h.opts.IdentityHeader),
			zap.Int("values", len(values)),
			zap.String("remote_addr", r.RemoteAddr),
		)
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("socket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		id:     uuid.NewString(),
		userID: strings.TrimSpace(values[0]),
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, h.opts.SendBuffer),
	}
	h.register(c)

	go c.writePump()
	go c.readPump()
}

// Broadcast relays an event to every connected client. A client whose buffer
// is full misses the event.
func (h *Hub) Broadcast(event string, payload any) {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		h.logger.Error("failed to encode broadcast", zap.String("event", event), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if !c.enqueue(frame) {
			h.logger.Warn("client send buffer full, dropping frame",
				zap.String("client_id", c.id),
				zap.String("event", event),
			)
		}
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		close(c.send)
		delete(h.clients, id)
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.logger.Info("client connected", zap.String("client_id", c.id), zap.String("user_id", c.userID))
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	if ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	h.mu.Unlock()
	if ok {
		h.logger.Info("client disconnected", zap.String("client_id", c.id), zap.String("user_id", c.userID))
	}
}

// handleFrame processes one client frame. Failures, panics included, are
// reported to that client only and keep the connection open.
func (h *Hub) handleFrame(c *client, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("panic while handling client frame", zap.String("client_id", c.id), zap.Any("panic", r))
			c.sendError(errInternal)
		}
	}()

	if err := h.dispatchFrame(c, data); err != nil {
		h.logger.Warn("client frame failed", zap.String("client_id", c.id), zap.Error(err))
		c.sendError(err)
	}
}

func (h *Hub) dispatchFrame(c *client, data []byte) error {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}

	switch frame.Event {
	case models.EventMessage:
		return h.handleMessage(c, frame)
	case models.EventChatMessage:
		return h.handleChatMessage(c, frame)
	default:
		h.logger.Debug("ignoring client event", zap.String("client_id", c.id), zap.String("event", frame.Event))
		return nil
	}
}

// handleChatMessage records free text from a client and echoes it to everyone.
func (h *Hub) handleChatMessage(c *client, frame Frame) error {
	content, err := decodeText(frame.Data)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.opts.DispatchTimeout)
	defer cancel()

	h.recordChat(ctx, c, content)
	return nil
}

// handleMessage sends an outbound message. Only messages that build are
// recorded and echoed.
func (h *Hub) handleMessage(c *client, frame Frame) error {
	msg, content, err := decodeOutbound(frame.Data)
	if err != nil {
		return err
	}
	if _, err := outbound.Validate(msg); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.opts.DispatchTimeout)
	defer cancel()

	h.recordChat(ctx, c, content)

	result, err := h.dispatcher.Send(ctx, msg)
	if err != nil {
		return err
	}
	if !result.Dispatched {
		h.logger.Info("client message not dispatched",
			zap.String("client_id", c.id),
			zap.String("phone_number_id", msg.PhoneID),
			zap.String("reason", result.Reason),
		)
	}
	return nil
}

// recordChat stores content for the client's user and broadcasts it. A failed
// write is logged; the echo still goes out.
func (h *Hub) recordChat(ctx context.Context, c *client, content string) {
	now := time.Now().UTC()
	if err := h.messages.Append(ctx, models.ChatMessage{
		Content:   content,
		UserID:    c.userID,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		h.logger.Error("failed to record chat message", zap.String("user_id", c.userID), zap.Error(err))
	}
	h.Broadcast(models.EventChatMessage, models.ChatMessageBroadcast{Content: content, UserID: c.userID})
}
