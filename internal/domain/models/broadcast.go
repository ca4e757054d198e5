package models

// Real-time event names.
const (
	EventNewExternalEvent = "new external event"
	EventMessage          = "message"
	EventError            = "error"
	EventChatMessage      = "chat message"
)

// Broadcast is a payload relayed to every connected client.
type Broadcast interface {
	BroadcastType() string
}

// TextBroadcast echoes a non-media inbound message. Body is omitted when the
// message carried no text payload.
type TextBroadcast struct {
	Type string  `json:"type"`
	Body *string `json:"body,omitempty"`
}

// BroadcastType implements Broadcast.
func (b TextBroadcast) BroadcastType() string { return b.Type }

// MediaDescriptor is the result of a successful media pipeline run.
type MediaDescriptor struct {
	MediaType string
	URL       string
	Caption   string
	Filename  string
}

// MediaBroadcast announces a stored attachment.
type MediaBroadcast struct {
	Type      string `json:"type"`
	MediaType string `json:"mediaType"`
	URL       string `json:"url"`
	Caption   string `json:"caption"`
	Filename  string `json:"filename"`
}

// BroadcastType implements Broadcast.
func (b MediaBroadcast) BroadcastType() string { return b.Type }

// NewMediaBroadcast wraps a descriptor into its wire form.
func NewMediaBroadcast(d MediaDescriptor) MediaBroadcast {
	return MediaBroadcast{
		Type:      "media",
		MediaType: d.MediaType,
		URL:       d.URL,
		Caption:   d.Caption,
		Filename:  d.Filename,
	}
}

// ChatMessageBroadcast echoes a client-originated message to every client.
type ChatMessageBroadcast struct {
	Content string `json:"content"`
	UserID  string `json:"userId"`
}
