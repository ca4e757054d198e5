package models

// WebhookPayload mirrors the structure sent by Meta's WhatsApp Cloud API webhook callbacks.
// The same shape is persisted in the event log, so bson tags follow the json names.
type WebhookPayload struct {
	Object string         `json:"object" bson:"object"`
	Entry  []WebhookEntry `json:"entry" bson:"entry"`
}

// WebhookEntry represents one entry payload within the webhook body.
type WebhookEntry struct {
	ID      string          `json:"id" bson:"id"`
	Changes []WebhookChange `json:"changes" bson:"changes"`
}

// WebhookChange captures the actual notification contents.
type WebhookChange struct {
	Value WebhookValue `json:"value" bson:"value"`
	Field string       `json:"field" bson:"field"`
}

// WebhookValue contains message metadata, contacts and message events sent by users.
type WebhookValue struct {
	MessagingProduct string           `json:"messaging_product" bson:"messaging_product"`
	Metadata         Metadata         `json:"metadata" bson:"metadata"`
	Contacts         []Contact        `json:"contacts,omitempty" bson:"contacts,omitempty"`
	Messages         []InboundMessage `json:"messages,omitempty" bson:"messages,omitempty"`
	Statuses         []MessageStatus  `json:"statuses,omitempty" bson:"statuses,omitempty"`
	Errors           []WebhookError   `json:"errors,omitempty" bson:"errors,omitempty"`
}

// Metadata contains WhatsApp phone identifiers for the business account.
type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number" bson:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id" bson:"phone_number_id"`
}

// Contact represents the WhatsApp user initiating the conversation.
type Contact struct {
	Profile ContactProfile `json:"profile" bson:"profile"`
	WaID    string         `json:"wa_id" bson:"wa_id"`
}

// ContactProfile contains the human-friendly contact name.
type ContactProfile struct {
	Name string `json:"name" bson:"name"`
}

// MessageType is the discriminator of an inbound message.
type MessageType string

const (
	MessageTypeText        MessageType = "text"
	MessageTypeImage       MessageType = "image"
	MessageTypeVideo       MessageType = "video"
	MessageTypeDocument    MessageType = "document"
	MessageTypeAudio       MessageType = "audio"
	MessageTypeSticker     MessageType = "sticker"
	MessageTypeReaction    MessageType = "reaction"
	MessageTypeButton      MessageType = "button"
	MessageTypeInteractive MessageType = "interactive"
	MessageTypeLocation    MessageType = "location"
	MessageTypeContacts    MessageType = "contacts"
)

// InboundMessage aggregates all supported inbound WhatsApp message shapes.
// Type selects which of the optional payloads is populated.
type InboundMessage struct {
	From        string              `json:"from" bson:"from"`
	ID          string              `json:"id" bson:"id"`
	To          string              `json:"to,omitempty" bson:"to,omitempty"`
	Timestamp   string              `json:"timestamp" bson:"timestamp"`
	Type        MessageType         `json:"type" bson:"type"`
	Text        *TextContent        `json:"text,omitempty" bson:"text,omitempty"`
	Reaction    *ReactionContent    `json:"reaction,omitempty" bson:"reaction,omitempty"`
	Button      *ButtonContent      `json:"button,omitempty" bson:"button,omitempty"`
	Interactive *InteractiveContent `json:"interactive,omitempty" bson:"interactive,omitempty"`
	Context     *MessageContext     `json:"context,omitempty" bson:"context,omitempty"`
	Referral    *Referral           `json:"referral,omitempty" bson:"referral,omitempty"`
	Image       *MediaContent       `json:"image,omitempty" bson:"image,omitempty"`
	Video       *MediaContent       `json:"video,omitempty" bson:"video,omitempty"`
	Document    *MediaContent       `json:"document,omitempty" bson:"document,omitempty"`
	Audio       *MediaContent       `json:"audio,omitempty" bson:"audio,omitempty"`
	Errors      []WebhookError      `json:"errors,omitempty" bson:"errors,omitempty"`
}

// IsMedia reports whether the message type carries a downloadable attachment.
func (t MessageType) IsMedia() bool {
	switch t {
	case MessageTypeImage, MessageTypeVideo, MessageTypeDocument, MessageTypeAudio:
		return true
	default:
		return false
	}
}

// Media returns the attachment matching the message type. The boolean is false
// for non-media types and for media types whose payload is missing.
func (m InboundMessage) Media() (*MediaContent, bool) {
	var media *MediaContent
	switch m.Type {
	case MessageTypeImage:
		media = m.Image
	case MessageTypeVideo:
		media = m.Video
	case MessageTypeDocument:
		media = m.Document
	case MessageTypeAudio:
		media = m.Audio
	default:
		return nil, false
	}
	return media, media != nil
}

// TextBody returns the text body, or nil when the message has no text payload.
func (m InboundMessage) TextBody() *string {
	if m.Text == nil {
		return nil
	}
	body := m.Text.Body
	return &body
}

// TextContent contains text messages body.
type TextContent struct {
	Body string `json:"body" bson:"body"`
}

// ReactionContent is an emoji reaction to an earlier message.
type ReactionContent struct {
	MessageID string `json:"message_id" bson:"message_id"`
	Emoji     string `json:"emoji" bson:"emoji"`
}

// ButtonContent is a quick-reply button press on a template message.
type ButtonContent struct {
	Payload string `json:"payload" bson:"payload"`
	Text    string `json:"text" bson:"text"`
}

// InteractiveContent represents button/list/flow replies.
type InteractiveContent struct {
	Type        string       `json:"type" bson:"type"`
	ButtonReply *ButtonReply `json:"button_reply,omitempty" bson:"button_reply,omitempty"`
	ListReply   *ListReply   `json:"list_reply,omitempty" bson:"list_reply,omitempty"`
	NFMReply    *NFMReply    `json:"nfm_reply,omitempty" bson:"nfm_reply,omitempty"`
}

// ButtonReply models a pressed button payload.
type ButtonReply struct {
	ID    string `json:"id" bson:"id"`
	Title string `json:"title" bson:"title"`
}

// ListReply models a selected list item payload.
type ListReply struct {
	ID          string `json:"id" bson:"id"`
	Title       string `json:"title" bson:"title"`
	Description string `json:"description" bson:"description"`
}

// NFMReply carries a submitted flow form.
type NFMReply struct {
	Name         string `json:"name" bson:"name"`
	Body         string `json:"body" bson:"body"`
	ResponseJSON string `json:"response_json" bson:"response_json"`
}

// MessageContext links a reply to the message it answers.
type MessageContext struct {
	From  string `json:"from" bson:"from"`
	ID    string `json:"id" bson:"id"`
	WaMID string `json:"wamid,omitempty" bson:"wamid,omitempty"`
}

// Referral describes the ad or post a conversation started from.
type Referral struct {
	SourceURL  string `json:"source_url" bson:"source_url"`
	SourceType string `json:"source_type" bson:"source_type"`
	SourceID   string `json:"source_id" bson:"source_id"`
	Headline   string `json:"headline" bson:"headline"`
	MediaType  string `json:"media_type" bson:"media_type"`
	ImageURL   string `json:"image_url" bson:"image_url"`
}

// MediaContent represents media attachments metadata.
type MediaContent struct {
	ID       string `json:"id" bson:"id"`
	MimeType string `json:"mime_type" bson:"mime_type"`
	Sha256   string `json:"sha256" bson:"sha256"`
	Caption  string `json:"caption,omitempty" bson:"caption,omitempty"`
	Filename string `json:"filename,omitempty" bson:"filename,omitempty"`
	Link     string `json:"link,omitempty" bson:"link,omitempty"`
}

// MessageStatus represents delivery/read receipts coming from WhatsApp.
type MessageStatus struct {
	ID          string `json:"id" bson:"id"`
	Status      string `json:"status" bson:"status"`
	Timestamp   string `json:"timestamp" bson:"timestamp"`
	RecipientID string `json:"recipient_id" bson:"recipient_id"`
}

// WebhookError exposes errors returned from Meta during webhook notifications.
type WebhookError struct {
	Code    int    `json:"code" bson:"code"`
	Title   string `json:"title" bson:"title"`
	Message string `json:"message,omitempty" bson:"message,omitempty"`
	Detail  string `json:"detail,omitempty" bson:"detail,omitempty"`
}
