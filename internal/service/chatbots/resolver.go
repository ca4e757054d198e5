package chatbots

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/mamadbah2/chatrelay/internal/domain/models"
	"github.com/mamadbah2/chatrelay/internal/repository/mongodb"
)

var (
	// ErrChatBotNotFound indicates no live chatbot is bound to the routing key.
	ErrChatBotNotFound = errors.New("chatbot configuration not found")
	// ErrMissingToken indicates the chatbot exists but cannot authenticate with the provider.
	ErrMissingToken = errors.New("chatbot configuration has no access token")
)

// Finder loads chatbot documents by provider phone number id.
type Finder interface {
	FindByPhoneID(ctx context.Context, phoneID string) (*models.ChatBot, error)
}

// Resolver looks up per-line routing configuration and guarantees that a
// returned chatbot carries an access token.
type Resolver struct {
	finder Finder
	cache  *cache.Cache
	logger *zap.Logger
}

// NewResolver wires a resolver. A positive ttl keeps usable configurations in
// memory for that long; zero or negative looks up the store on every call.
func NewResolver(finder Finder, ttl time.Duration, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{finder: finder, logger: logger}
	if ttl > 0 {
		r.cache = cache.New(ttl, 2*ttl)
	}
	return r
}

// Resolve returns the chatbot for phoneID, ErrChatBotNotFound or ErrMissingToken.
func (r *Resolver) Resolve(ctx context.Context, phoneID string) (*models.ChatBot, error) {
	phoneID = strings.TrimSpace(phoneID)
	if phoneID == "" {
		return nil, ErrChatBotNotFound
	}

	if r.cache != nil {
		if cached, ok := r.cache.Get(phoneID); ok {
			return cached.(*models.ChatBot), nil
		}
	}

	bot, err := r.finder.FindByPhoneID(ctx, phoneID)
	if err != nil {
		if errors.Is(err, mongodb.ErrNotFound) {
			return nil, ErrChatBotNotFound
		}
		return nil, fmt.Errorf("resolve chatbot %s: %w", phoneID, err)
	}
	if bot == nil {
		return nil, ErrChatBotNotFound
	}
	if !bot.HasToken() {
		return nil, ErrMissingToken
	}

	if r.cache != nil {
		r.cache.SetDefault(phoneID, bot)
	}
	r.logger.Debug("chatbot resolved", zap.String("phone_number_id", phoneID), zap.String("chatbot", bot.Name))
	return bot, nil
}
