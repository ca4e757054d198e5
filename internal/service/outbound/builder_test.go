package outbound

import (
	"encoding/json"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/chatrelay/internal/domain/models"
)

func decodeMessage(t *testing.T, raw string) models.OutboundMessage {
	t.Helper()
	var msg models.OutboundMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	return msg
}

func buildJSON(t *testing.T, msg models.OutboundMessage) string {
	t.Helper()
	body, err := Build(msg)
	require.NoError(t, err)
	out, err := json.Marshal(body)
	require.NoError(t, err)
	return string(out)
}

func TestBuildFixtures(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "text",
			input: `{"to":"15550001","type":"text","body":"hello"}`,
			want:  `{"messaging_product":"whatsapp","to":"15550001","type":"text","text":{"body":"hello"}}`,
		},
		{
			name:  "untyped defaults to text",
			input: `{"to":"15550001","body":"hello"}`,
			want:  `{"messaging_product":"whatsapp","to":"15550001","type":"text","text":{"body":"hello"}}`,
		},
		{
			name:  "image",
			input: `{"to":"15550001","type":"image","mediaUrl":"https://x/a.jpg","body":"look"}`,
			want:  `{"messaging_product":"whatsapp","to":"15550001","type":"image","image":{"link":"https://x/a.jpg","caption":"look"}}`,
		},
		{
			name:  "untyped media url defaults to image",
			input: `{"to":"15550001","mediaUrl":"https://x/a.jpg"}`,
			want:  `{"messaging_product":"whatsapp","to":"15550001","type":"image","image":{"link":"https://x/a.jpg","caption":""}}`,
		},
		{
			name:  "untyped media url uses media type",
			input: `{"to":"15550001","mediaUrl":"https://x/a.mp4","mediaType":"video","body":"clip"}`,
			want:  `{"messaging_product":"whatsapp","to":"15550001","type":"video","video":{"link":"https://x/a.mp4","caption":"clip"}}`,
		},
		{
			name:  "audio has no caption",
			input: `{"to":"15550001","type":"audio","mediaUrl":"https://x/a.ogg","body":"ignored"}`,
			want:  `{"messaging_product":"whatsapp","to":"15550001","type":"audio","audio":{"link":"https://x/a.ogg"}}`,
		},
		{
			name:  "document keeps filename",
			input: `{"to":"15550001","type":"document","mediaUrl":"https://x/a.pdf","body":"invoice","filename":"a.pdf"}`,
			want:  `{"messaging_product":"whatsapp","to":"15550001","type":"document","document":{"link":"https://x/a.pdf","caption":"invoice","filename":"a.pdf"}}`,
		},
		{
			name:  "filename only applies to documents",
			input: `{"to":"15550001","type":"image","mediaUrl":"https://x/a.jpg","filename":"a.jpg"}`,
			want:  `{"messaging_product":"whatsapp","to":"15550001","type":"image","image":{"link":"https://x/a.jpg","caption":""}}`,
		},
		{
			name:  "sticker",
			input: `{"to":"15550001","type":"sticker","mediaUrl":"https://x/s.webp"}`,
			want:  `{"messaging_product":"whatsapp","to":"15550001","type":"sticker","sticker":{"link":"https://x/s.webp"}}`,
		},
		{
			name:  "contacts pass through",
			input: `{"to":"15550001","type":"contacts","contacts":[{"name":{"formatted_name":"Ada"},"phones":[{"phone":"+1555"}]}]}`,
			want:  `{"messaging_product":"whatsapp","to":"15550001","type":"contacts","contacts":[{"name":{"formatted_name":"Ada"},"phones":[{"phone":"+1555"}]}]}`,
		},
		{
			name:  "location passes through",
			input: `{"to":"15550001","type":"location","location":{"latitude":12.97,"longitude":77.59,"name":"Office","address":"Bangalore"}}`,
			want:  `{"messaging_product":"whatsapp","to":"15550001","type":"location","location":{"latitude":12.97,"longitude":77.59,"name":"Office","address":"Bangalore"}}`,
		},
		{
			name: "interactive button",
			input: `{"to":"15550001","type":"interactive","body":"pick one","interactive":{"subtype":"button","headerText":"Hi","footerText":"bye",
				"action":{"buttons":[{"type":"reply","reply":{"id":"r1","title":"Yes"}},{"type":"reply","reply":{"id":"r2","title":"No"}}]}}}`,
			want: `{"messaging_product":"whatsapp","to":"15550001","type":"interactive","interactive":{"type":"button",
				"header":{"type":"text","text":"Hi"},"body":{"text":"pick one"},"footer":{"text":"bye"},
				"action":{"buttons":[{"type":"reply","reply":{"id":"r1","title":"Yes"}},{"type":"reply","reply":{"id":"r2","title":"No"}}]}}}`,
		},
		{
			name: "interactive list",
			input: `{"to":"15550001","type":"interactive","interactive":{"subtype":"list","bodyText":"menu",
				"action":{"buttonText":"View","sections":[{"title":"S1","rows":[{"id":"o1","title":"One","description":"first"}]}]}}}`,
			want: `{"messaging_product":"whatsapp","to":"15550001","type":"interactive","interactive":{"type":"list","body":{"text":"menu"},
				"action":{"button":"View","sections":[{"title":"S1","rows":[{"id":"o1","title":"One","description":"first"}]}]}}}`,
		},
		{
			name: "interactive cta_url",
			input: `{"to":"15550001","type":"interactive","body":"visit","interactive":{"subtype":"cta_url",
				"action":{"displayText":"Open","url":"https://example.com"}}}`,
			want: `{"messaging_product":"whatsapp","to":"15550001","type":"interactive","interactive":{"type":"cta_url","body":{"text":"visit"},
				"action":{"name":"cta_url","parameters":{"display_text":"Open","url":"https://example.com"}}}}`,
		},
		{
			name: "interactive flow",
			input: `{"to":"15550001","type":"interactive","interactive":{"subtype":"flow","bodyText":"fill",
				"action":{"name":"flow","flowMessageVersion":"3","flowId":"722368960430909","flowCta":"Sign Up"}}}`,
			want: `{"messaging_product":"whatsapp","to":"15550001","type":"interactive","interactive":{"type":"flow","body":{"text":"fill"},
				"action":{"name":"flow","parameters":{"flow_message_version":"3","flow_id":"722368960430909","flow_cta":"Sign Up"}}}}`,
		},
		{
			name: "interactive address ignores header",
			input: `{"to":"15550001","type":"interactive","body":"where?","interactive":{"subtype":"address_message","headerText":"dropped",
				"action":{"country":"IN"}}}`,
			want: `{"messaging_product":"whatsapp","to":"15550001","type":"interactive","interactive":{"type":"address_message","body":{"text":"where?"},
				"action":{"name":"address_message","parameters":{"country":"IN"}}}}`,
		},
		{
			name:  "interactive location request",
			input: `{"to":"15550001","type":"interactive","body":"share","interactive":{"subtype":"location_request_message","action":{}}}`,
			want: `{"messaging_product":"whatsapp","to":"15550001","type":"interactive","interactive":{"type":"location_request_message","body":{"text":"share"},
				"action":{"name":"send_location"}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildJSON(t, decodeMessage(t, tt.input))
			assert.JSONEq(t, tt.want, got)
		})
	}
}

func TestBuildInteractiveButtonFromClientPayload(t *testing.T) {
	msg := decodeMessage(t, `{"type":"interactive","interactive":{"subtype":"button","action":{"buttons":[{"type":"reply","reply":{"id":"r1","title":"Yes"}}]}}}`)

	body, err := Build(msg)
	require.NoError(t, err)
	require.NotNil(t, body.Interactive)
	assert.Equal(t, models.InteractiveButton, body.Interactive.Type)

	action, ok := body.Interactive.Action.(buttonAction)
	require.True(t, ok)
	assert.Equal(t, "r1", action.Buttons[0].Reply.ID)
}

func TestBuildLeavesRecipientToValidate(t *testing.T) {
	msg := models.OutboundMessage{To: "  ", Type: models.OutboundText, Body: "x"}

	body, err := Build(msg)
	require.NoError(t, err)
	assert.Empty(t, body.To)

	_, err = Validate(msg)
	assertValidation(t, err, "to")

	msg.To = " 15550001 "
	body, err = Validate(msg)
	require.NoError(t, err)
	assert.Equal(t, "15550001", body.To)
}

func TestBuildIsDeterministic(t *testing.T) {
	msg := decodeMessage(t, `{"to":"15550001","type":"interactive","body":"x","interactive":{"subtype":"list","headerText":"h","footerText":"f",
		"action":{"buttonText":"View","sections":[{"title":"S1","rows":[{"id":"o1","title":"One"}]}]}}}`)

	first := buildJSON(t, msg)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, buildJSON(t, msg))
	}
}

func assertValidation(t *testing.T, err error, field string) *goerrors.Error {
	t.Helper()
	require.Error(t, err)

	var rich *goerrors.Error
	require.True(t, goerrors.As(err, &rich), "expected go-errors envelope, got %T", err)
	assert.Equal(t, goerrors.CategoryValidation, rich.Category)
	assert.Equal(t, http.StatusBadRequest, rich.Code)
	assert.Equal(t, TextCodeInvalidMessage, rich.TextCode)

	fields := rich.AllValidationErrors()
	require.NotEmpty(t, fields)
	assert.Equal(t, field, fields[0].Field)
	return rich
}

func TestBuildInteractiveWithoutOptions(t *testing.T) {
	_, err := Build(models.OutboundMessage{To: "15550001", Type: models.OutboundInteractive})
	assertValidation(t, err, "interactive")
}

func TestBuildUnsupportedTypeNamesIt(t *testing.T) {
	_, err := Build(models.OutboundMessage{To: "15550001", Type: "hologram"})
	rich := assertValidation(t, err, "type")
	assert.Contains(t, rich.AllValidationErrors()[0].Message, "hologram")
}

func TestBuildUnsupportedInteractiveSubtype(t *testing.T) {
	_, err := Build(models.OutboundMessage{
		To:          "15550001",
		Type:        models.OutboundInteractive,
		Interactive: &models.InteractiveOptions{Subtype: "carousel"},
	})
	rich := assertValidation(t, err, "interactive.subtype")
	assert.Contains(t, rich.AllValidationErrors()[0].Message, "carousel")
}

func TestBuildRejectsInvalidMessages(t *testing.T) {
	tests := []struct {
		name  string
		msg   models.OutboundMessage
		field string
	}{
		{"media without url", models.OutboundMessage{To: "1", Type: models.OutboundImage}, "mediaUrl"},
		{"media type mismatch", models.OutboundMessage{To: "1", Type: models.OutboundImage, MediaType: models.OutboundVideo, MediaURL: "u"}, "mediaType"},
		{"sticker without url", models.OutboundMessage{To: "1", Type: models.OutboundSticker}, "mediaUrl"},
		{"contacts empty", models.OutboundMessage{To: "1", Type: models.OutboundContacts}, "contacts"},
		{"location missing", models.OutboundMessage{To: "1", Type: models.OutboundLocation}, "location"},
		{
			"button without buttons",
			models.OutboundMessage{To: "1", Type: models.OutboundInteractive, Interactive: &models.InteractiveOptions{Subtype: models.InteractiveButton}},
			"interactive.action.buttons",
		},
		{
			"cta without url",
			models.OutboundMessage{To: "1", Type: models.OutboundInteractive, Interactive: &models.InteractiveOptions{
				Subtype: models.InteractiveCTAURL, Action: json.RawMessage(`{"displayText":"Open"}`),
			}},
			"interactive.action.url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.msg)
			assertValidation(t, err, tt.field)
		})
	}
}

func TestBuildMalformedActionIsValidationError(t *testing.T) {
	_, err := Build(models.OutboundMessage{
		To:   "1",
		Type: models.OutboundInteractive,
		Interactive: &models.InteractiveOptions{
			Subtype: models.InteractiveButton,
			Action:  json.RawMessage(`{"buttons":"nope"}`),
		},
	})
	require.Error(t, err)

	var rich *goerrors.Error
	require.True(t, goerrors.As(err, &rich))
	assert.Equal(t, goerrors.CategoryValidation, rich.Category)
}
