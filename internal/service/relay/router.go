package relay

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/mamadbah2/chatrelay/internal/domain/models"
	"github.com/mamadbah2/chatrelay/internal/service/chatbots"
	"github.com/mamadbah2/chatrelay/internal/service/media"
)

const messagesField = "messages"

var (
	// ErrNotActionable is returned for envelopes without a "messages" change.
	ErrNotActionable = errors.New("envelope has no messages change")
	// ErrMissingRoutingKey is returned when metadata.phone_number_id is absent.
	ErrMissingRoutingKey = errors.New("envelope has no phone_number_id")
	// ErrMissingSender is returned when no contact wa_id is present.
	ErrMissingSender = errors.New("envelope has no sender wa_id")
	// ErrNoMessage is returned when the change carries no message.
	ErrNoMessage = errors.New("envelope has no message")
)

// ChatBotResolver yields the routing configuration of a phone line.
type ChatBotResolver interface {
	Resolve(ctx context.Context, phoneID string) (*models.ChatBot, error)
}

// MediaProcessor copies an inbound attachment into object storage.
type MediaProcessor interface {
	Process(ctx context.Context, req media.Request) (models.MediaDescriptor, error)
}

// Broadcaster fans a payload out to every connected client.
type Broadcaster interface {
	Broadcast(event string, payload any)
}

// Router turns stored webhook envelopes into client broadcasts.
type Router struct {
	resolver    ChatBotResolver
	media       MediaProcessor
	broadcaster Broadcaster
	stats       *Stats
	logger      *zap.Logger
}

// NewRouter wires an event router. stats may be nil.
func NewRouter(resolver ChatBotResolver, mediaProcessor MediaProcessor, broadcaster Broadcaster, stats *Stats, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if stats == nil {
		stats = NewStats()
	}
	return &Router{
		resolver:    resolver,
		media:       mediaProcessor,
		broadcaster: broadcaster,
		stats:       stats,
		logger:      logger,
	}
}

// Route decides what a single envelope should broadcast. Only the first
// change and its first message are considered. The returned error explains
// why an envelope was dropped.
func (r *Router) Route(ctx context.Context, payload models.WebhookPayload) (models.Broadcast, error) {
	if len(payload.Entry) == 0 || len(payload.Entry[0].Changes) == 0 {
		return nil, ErrNotActionable
	}
	change := payload.Entry[0].Changes[0]
	if change.Field != messagesField {
		return nil, ErrNotActionable
	}

	value := change.Value
	phoneID := strings.TrimSpace(value.Metadata.PhoneNumberID)
	if phoneID == "" {
		return nil, ErrMissingRoutingKey
	}
	if len(value.Contacts) == 0 || strings.TrimSpace(value.Contacts[0].WaID) == "" {
		return nil, ErrMissingSender
	}
	if len(value.Messages) == 0 {
		return nil, ErrNoMessage
	}
	message := value.Messages[0]

	bot, err := r.resolver.Resolve(ctx, phoneID)
	if err != nil {
		return nil, err
	}

	if message.Type.IsMedia() {
		attachment, _ := message.Media()
		descriptor, err := r.media.Process(ctx, media.Request{
			PhoneID:     phoneID,
			Token:       bot.WhatsAppKey,
			MessageType: message.Type,
			Media:       attachment,
		})
		if err != nil {
			return nil, err
		}
		return models.NewMediaBroadcast(descriptor), nil
	}

	return models.TextBroadcast{Type: string(message.Type), Body: message.TextBody()}, nil
}

// Handle routes one stored event and broadcasts the result. Failures are
// logged and counted, never returned, so the subscription keeps running.
func (r *Router) Handle(ctx context.Context, event models.ExternalEvent) {
	r.stats.received()

	fields := []zap.Field{zap.String("event_id", event.ID.Hex())}
	if phoneID := routingKey(event.WebhookPayload); phoneID != "" {
		fields = append(fields, zap.String("phone_number_id", phoneID))
	}

	broadcast, err := r.Route(ctx, event.WebhookPayload)
	if err != nil {
		r.drop(err, fields)
		return
	}

	r.broadcaster.Broadcast(models.EventNewExternalEvent, broadcast)
	r.stats.broadcasted()
	r.logger.Debug("event broadcast", append(fields, zap.String("type", broadcast.BroadcastType()))...)
}

func (r *Router) drop(err error, fields []zap.Field) {
	reason := dropReason(err)
	r.stats.dropped(reason)
	fields = append(fields, zap.String("reason", reason), zap.Error(err))

	var stepErr *media.StepError
	switch {
	case errors.Is(err, ErrNotActionable), errors.Is(err, ErrMissingRoutingKey),
		errors.Is(err, ErrMissingSender), errors.Is(err, ErrNoMessage):
		r.logger.Info("event dropped", fields...)
	case errors.Is(err, chatbots.ErrChatBotNotFound), errors.Is(err, chatbots.ErrMissingToken):
		r.logger.Warn("event dropped: chatbot not configured", fields...)
	case errors.As(err, &stepErr):
		r.stats.mediaFailed(stepErr.Step)
		r.logger.Warn("event dropped: media pipeline failed", append(fields, zap.String("step", string(stepErr.Step)))...)
	case errors.Is(err, media.ErrNoMedia):
		r.logger.Warn("event dropped: media payload missing", fields...)
	default:
		r.logger.Error("event dropped", fields...)
	}
}

func dropReason(err error) string {
	var stepErr *media.StepError
	switch {
	case errors.Is(err, ErrNotActionable):
		return "not_actionable"
	case errors.Is(err, ErrMissingRoutingKey):
		return "missing_routing_key"
	case errors.Is(err, ErrMissingSender):
		return "missing_sender"
	case errors.Is(err, ErrNoMessage):
		return "no_message"
	case errors.Is(err, chatbots.ErrChatBotNotFound):
		return "chatbot_not_found"
	case errors.Is(err, chatbots.ErrMissingToken):
		return "missing_token"
	case errors.As(err, &stepErr):
		return "media_" + string(stepErr.Step)
	case errors.Is(err, media.ErrNoMedia):
		return "media_missing"
	default:
		return "error"
	}
}

func routingKey(payload models.WebhookPayload) string {
	if len(payload.Entry) == 0 || len(payload.Entry[0].Changes) == 0 {
		return ""
	}
	return payload.Entry[0].Changes[0].Value.Metadata.PhoneNumberID
}
