package outbound

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/mamadbah2/chatrelay/internal/domain/models"
	"github.com/mamadbah2/chatrelay/internal/service/chatbots"
)

// ChatBotResolver yields the routing configuration of a phone line.
type ChatBotResolver interface {
	Resolve(ctx context.Context, phoneID string) (*models.ChatBot, error)
}

// Sender posts a built request body to the provider.
type Sender interface {
	SendMessage(ctx context.Context, phoneID, token string, body any) (map[string]any, error)
}

// Result reports what happened to a send request. Dispatched is false when the
// phone line has no usable configuration; Reason then names the cause.
type Result struct {
	Dispatched bool
	Reason     string
	Response   map[string]any
}

// Service dispatches client-originated messages to the provider.
type Service struct {
	resolver ChatBotResolver
	sender   Sender
	logger   *zap.Logger
}

// NewService wires an outbound dispatcher.
func NewService(resolver ChatBotResolver, sender Sender, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{resolver: resolver, sender: sender, logger: logger}
}

// Send validates and builds the message, resolves the chatbot for its phone
// line and posts the body with that chatbot's token.
//
// Validation and provider failures are returned. A phone line without a
// configuration or token is not an error: nothing is sent and the returned
// Result says why.
func (s *Service) Send(ctx context.Context, msg models.OutboundMessage) (*Result, error) {
	body, err := Validate(msg)
	if err != nil {
		return nil, err
	}

	phoneID := strings.TrimSpace(msg.PhoneID)
	bot, err := s.resolver.Resolve(ctx, phoneID)
	switch {
	case errors.Is(err, chatbots.ErrChatBotNotFound), errors.Is(err, chatbots.ErrMissingToken):
		s.logger.Warn("outbound message skipped",
			zap.String("phone_number_id", phoneID),
			zap.String("reason", err.Error()),
		)
		return &Result{Reason: err.Error()}, nil
	case err != nil:
		return nil, err
	}

	resp, err := s.sender.SendMessage(ctx, phoneID, bot.WhatsAppKey, body)
	if err != nil {
		s.logger.Error("failed to send outbound message",
			zap.String("phone_number_id", phoneID),
			zap.String("type", string(body.Type)),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("outbound message sent",
		zap.String("phone_number_id", phoneID),
		zap.String("to", body.To),
		zap.String("type", string(body.Type)),
	)
	return &Result{Dispatched: true, Response: resp}, nil
}
