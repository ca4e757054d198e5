package models

import "encoding/json"

// OutboundType enumerates the message kinds the provider accepts.
type OutboundType string

const (
	OutboundText        OutboundType = "text"
	OutboundImage       OutboundType = "image"
	OutboundVideo       OutboundType = "video"
	OutboundAudio       OutboundType = "audio"
	OutboundDocument    OutboundType = "document"
	OutboundSticker     OutboundType = "sticker"
	OutboundContacts    OutboundType = "contacts"
	OutboundLocation    OutboundType = "location"
	OutboundInteractive OutboundType = "interactive"
)

// InteractiveSubtype enumerates interactive message layouts.
type InteractiveSubtype string

const (
	InteractiveButton          InteractiveSubtype = "button"
	InteractiveList            InteractiveSubtype = "list"
	InteractiveCTAURL          InteractiveSubtype = "cta_url"
	InteractiveFlow            InteractiveSubtype = "flow"
	InteractiveAddress         InteractiveSubtype = "address_message"
	InteractiveLocationRequest InteractiveSubtype = "location_request_message"
)

// OutboundMessage is the logical description of a message a client asks us to send.
// It arrives over the socket gateway or the HTTP send endpoint.
type OutboundMessage struct {
	PhoneID     string              `json:"phoneId"`
	To          string              `json:"to"`
	Type        OutboundType        `json:"type,omitempty"`
	Body        string              `json:"body,omitempty"`
	MediaURL    string              `json:"mediaUrl,omitempty"`
	MediaType   OutboundType        `json:"mediaType,omitempty"`
	Filename    string              `json:"filename,omitempty"`
	Interactive *InteractiveOptions `json:"interactive,omitempty"`
	Contacts    []json.RawMessage   `json:"contacts,omitempty"`
	Location    *Location           `json:"location,omitempty"`
}

// InteractiveOptions describes an interactive message. Action is decoded
// according to Subtype.
type InteractiveOptions struct {
	Subtype    InteractiveSubtype `json:"subtype"`
	HeaderText string             `json:"headerText,omitempty"`
	BodyText   *string            `json:"bodyText,omitempty"`
	FooterText string             `json:"footerText,omitempty"`
	Action     json.RawMessage    `json:"action,omitempty"`
}

// Location is a pin shared with the recipient.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

// ReplyButton is a single quick-reply button.
type ReplyButton struct {
	Type  string     `json:"type"`
	Reply ReplyTitle `json:"reply"`
}

// ReplyTitle identifies a reply button.
type ReplyTitle struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ListSection groups rows of a list message.
type ListSection struct {
	Title string    `json:"title,omitempty"`
	Rows  []ListRow `json:"rows"`
}

// ListRow is a selectable list entry.
type ListRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}
