package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mamadbah2/chatrelay/internal/domain/models"
)

var (
	// ErrMissingVerifyParams is returned when hub.mode or hub.verify_token is empty.
	ErrMissingVerifyParams = errors.New("missing mode or verify token")
	// ErrInvalidVerifyToken is returned when the verify token does not match.
	ErrInvalidVerifyToken = errors.New("invalid verify token")
	// ErrInvalidPayload is returned for bodies that are not a webhook envelope.
	ErrInvalidPayload = errors.New("invalid webhook payload")
	// ErrEmptyPayload is returned for envelopes without entries.
	ErrEmptyPayload = errors.New("webhook payload has no entries")
)

// EventAppender persists received envelopes, unaltered, into the event log.
type EventAppender interface {
	Append(ctx context.Context, raw []byte) (string, error)
}

// Service receives provider callbacks. Stored envelopes reach clients through
// the event log subscription, not through this service.
type Service struct {
	verifyToken string
	events      EventAppender
	logger      *zap.Logger
}

// NewService wires a webhook receiver.
func NewService(verifyToken string, events EventAppender, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{verifyToken: verifyToken, events: events, logger: logger}
}

// VerifyWebhookToken validates the callback verification handshake and
// returns the challenge to echo.
func (s *Service) VerifyWebhookToken(mode, verifyToken, challenge string) (string, error) {
	if mode == "" || verifyToken == "" {
		return "", ErrMissingVerifyParams
	}

	if !strings.EqualFold(mode, "subscribe") {
		return "", fmt.Errorf("unsupported hub.mode %s", mode)
	}

	if s.verifyToken == "" || verifyToken != s.verifyToken {
		return "", ErrInvalidVerifyToken
	}

	return challenge, nil
}

// HandleWebhook checks that raw is an envelope with entries and appends it to
// the event log as received.
func (s *Service) HandleWebhook(ctx context.Context, raw []byte) (string, error) {
	var payload models.WebhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if len(payload.Entry) == 0 {
		return "", ErrEmptyPayload
	}

	id, err := s.events.Append(ctx, raw)
	if err != nil {
		return "", err
	}

	s.logger.Debug("webhook stored",
		zap.String("event_id", id),
		zap.String("object", payload.Object),
		zap.Int("entries", len(payload.Entry)),
	)
	return id, nil
}
