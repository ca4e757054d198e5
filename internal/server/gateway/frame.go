package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"

	"github.com/mamadbah2/chatrelay/internal/domain/models"
)

var (
	errMissingData = errors.New("message frame has no data")
	errEmptyText   = errors.New("chat message is empty")
)

// Frame is the envelope of every websocket text message.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outgoingFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// ErrorPayload is sent to a single client when one of its frames fails.
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func encodeFrame(event string, payload any) ([]byte, error) {
	return json.Marshal(outgoingFrame{Event: event, Data: payload})
}

func errorPayload(err error) ErrorPayload {
	payload := ErrorPayload{Message: err.Error()}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		payload.Code = rich.TextCode
	}
	return payload
}

// decodeText returns the text of a chat message frame. A JSON string is
// unquoted; any other value is kept in its raw JSON form.
func decodeText(data json.RawMessage) (string, error) {
	raw := bytes.TrimSpace(data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", errMissingData
	}
	if raw[0] != '"' {
		return string(raw), nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return "", fmt.Errorf("decode chat message: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", errEmptyText
	}
	return text, nil
}

// decodeOutbound accepts the message either as a JSON-encoded string or as an
// object and returns it with its raw text form.
func decodeOutbound(data json.RawMessage) (models.OutboundMessage, string, error) {
	var msg models.OutboundMessage

	raw := bytes.TrimSpace(data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return msg, "", errMissingData
	}

	content := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &content); err != nil {
			return msg, "", fmt.Errorf("decode message string: %w", err)
		}
		raw = []byte(content)
	}

	if err := json.Unmarshal(raw, &msg); err != nil {
		return msg, "", fmt.Errorf("decode outbound message: %w", err)
	}
	return msg, content, nil
}
