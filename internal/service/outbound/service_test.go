package outbound

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/chatrelay/internal/domain/models"
	"github.com/mamadbah2/chatrelay/internal/service/chatbots"
)

type fakeResolver struct {
	bot   *models.ChatBot
	err   error
	calls int
}

func (r *fakeResolver) Resolve(context.Context, string) (*models.ChatBot, error) {
	r.calls++
	return r.bot, r.err
}

type sentRequest struct {
	phoneID string
	token   string
	body    any
}

type fakeSender struct {
	sent []sentRequest
	resp map[string]any
	err  error
}

func (s *fakeSender) SendMessage(_ context.Context, phoneID, token string, body any) (map[string]any, error) {
	s.sent = append(s.sent, sentRequest{phoneID: phoneID, token: token, body: body})
	return s.resp, s.err
}

func textMessage() models.OutboundMessage {
	return models.OutboundMessage{PhoneID: "PN1", To: "15550001", Type: models.OutboundText, Body: "hi"}
}

func TestSendDispatchesWithChatBotToken(t *testing.T) {
	resolver := &fakeResolver{bot: &models.ChatBot{PhoneID: "PN1", WhatsAppKey: "tok"}}
	sender := &fakeSender{resp: map[string]any{"messages": []any{map[string]any{"id": "wamid.1"}}}}
	svc := NewService(resolver, sender, nil)

	result, err := svc.Send(context.Background(), textMessage())
	require.NoError(t, err)
	assert.True(t, result.Dispatched)
	assert.Equal(t, sender.resp, result.Response)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "PN1", sender.sent[0].phoneID)
	assert.Equal(t, "tok", sender.sent[0].token)
	body, ok := sender.sent[0].body.(*RequestBody)
	require.True(t, ok)
	assert.Equal(t, "hi", body.Text.Body)
}

func TestSendWithoutConfigurationMakesNoCall(t *testing.T) {
	for _, cause := range []error{chatbots.ErrChatBotNotFound, chatbots.ErrMissingToken} {
		t.Run(cause.Error(), func(t *testing.T) {
			sender := &fakeSender{}
			svc := NewService(&fakeResolver{err: cause}, sender, nil)

			result, err := svc.Send(context.Background(), textMessage())
			require.NoError(t, err)
			assert.False(t, result.Dispatched)
			assert.Equal(t, cause.Error(), result.Reason)
			assert.Empty(t, sender.sent)
		})
	}
}

func TestSendValidatesBeforeAnyLookup(t *testing.T) {
	resolver := &fakeResolver{bot: &models.ChatBot{WhatsAppKey: "tok"}}
	sender := &fakeSender{}
	svc := NewService(resolver, sender, nil)

	_, err := svc.Send(context.Background(), models.OutboundMessage{PhoneID: "PN1", To: "1", Type: models.OutboundInteractive})
	assertValidation(t, err, "interactive")
	assert.Zero(t, resolver.calls)
	assert.Empty(t, sender.sent)
}

func TestSendRequiresRecipient(t *testing.T) {
	resolver := &fakeResolver{bot: &models.ChatBot{WhatsAppKey: "tok"}}
	sender := &fakeSender{}
	svc := NewService(resolver, sender, nil)

	_, err := svc.Send(context.Background(), models.OutboundMessage{PhoneID: "PN1", Type: models.OutboundText, Body: "hi"})
	assertValidation(t, err, "to")
	assert.Zero(t, resolver.calls)
	assert.Empty(t, sender.sent)
}

func TestSendPropagatesProviderError(t *testing.T) {
	boom := errors.New("whatsapp api error: invalid recipient")
	svc := NewService(&fakeResolver{bot: &models.ChatBot{WhatsAppKey: "tok"}}, &fakeSender{err: boom}, nil)

	_, err := svc.Send(context.Background(), textMessage())
	assert.ErrorIs(t, err, boom)
}

func TestSendPropagatesStoreError(t *testing.T) {
	boom := errors.New("mongo down")
	sender := &fakeSender{}
	svc := NewService(&fakeResolver{err: boom}, sender, nil)

	_, err := svc.Send(context.Background(), textMessage())
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, sender.sent)
}
