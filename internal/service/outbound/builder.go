package outbound

import (
	"encoding/json"
	"strings"

	"github.com/mamadbah2/chatrelay/internal/domain/models"
)

const messagingProduct = "whatsapp"

// RequestBody is the Cloud API payload for POST /{phone-id}/messages.
// Exactly one of the typed fields is set, matching Type.
type RequestBody struct {
	MessagingProduct string              `json:"messaging_product"`
	To               string              `json:"to"`
	Type             models.OutboundType `json:"type"`
	Text             *TextPayload        `json:"text,omitempty"`
	Image            *MediaPayload       `json:"image,omitempty"`
	Video            *MediaPayload       `json:"video,omitempty"`
	Audio            *MediaPayload       `json:"audio,omitempty"`
	Document         *MediaPayload       `json:"document,omitempty"`
	Sticker          *StickerPayload     `json:"sticker,omitempty"`
	Contacts         []json.RawMessage   `json:"contacts,omitempty"`
	Location         *models.Location    `json:"location,omitempty"`
	Interactive      *InteractivePayload `json:"interactive,omitempty"`
}

// TextPayload carries a plain text body.
type TextPayload struct {
	Body string `json:"body"`
}

// MediaPayload references a hosted file. Caption is nil for audio.
type MediaPayload struct {
	Link     string  `json:"link"`
	Caption  *string `json:"caption,omitempty"`
	Filename string  `json:"filename,omitempty"`
}

// StickerPayload references a hosted sticker image.
type StickerPayload struct {
	Link string `json:"link"`
}

// InteractivePayload is the provider form of an interactive message. Action
// holds one of the subtype-specific wire shapes.
type InteractivePayload struct {
	Type   models.InteractiveSubtype `json:"type"`
	Header *InteractiveHeader        `json:"header,omitempty"`
	Body   InteractiveText           `json:"body"`
	Footer *InteractiveText          `json:"footer,omitempty"`
	Action any                       `json:"action"`
}

// InteractiveHeader is always a text header.
type InteractiveHeader struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// InteractiveText wraps body and footer text.
type InteractiveText struct {
	Text string `json:"text"`
}

// content is the closed set of outbound payload variants.
type content interface {
	outboundType() models.OutboundType
}

type textContent struct{ body string }

type mediaContent struct {
	kind     models.OutboundType
	link     string
	caption  string
	filename string
}

type stickerContent struct{ link string }

type contactsContent struct{ contacts []json.RawMessage }

type locationContent struct{ location models.Location }

type interactiveContent struct {
	subtype models.InteractiveSubtype
	header  string
	body    string
	footer  string
	action  action
}

func (textContent) outboundType() models.OutboundType        { return models.OutboundText }
func (c mediaContent) outboundType() models.OutboundType     { return c.kind }
func (stickerContent) outboundType() models.OutboundType     { return models.OutboundSticker }
func (contactsContent) outboundType() models.OutboundType    { return models.OutboundContacts }
func (locationContent) outboundType() models.OutboundType    { return models.OutboundLocation }
func (interactiveContent) outboundType() models.OutboundType { return models.OutboundInteractive }

// action is the closed set of interactive actions, decoded from the client's
// camelCase shapes.
type action interface {
	subtype() models.InteractiveSubtype
}

type buttonAction struct {
	Buttons []models.ReplyButton `json:"buttons"`
}

type listAction struct {
	ButtonText string               `json:"buttonText"`
	Sections   []models.ListSection `json:"sections"`
}

type ctaURLAction struct {
	Name        string `json:"name"`
	DisplayText string `json:"displayText"`
	URL         string `json:"url"`
}

type flowAction struct {
	Name               string `json:"name"`
	FlowMessageVersion string `json:"flowMessageVersion"`
	FlowID             string `json:"flowId"`
	FlowCTA            string `json:"flowCta"`
}

type addressAction struct {
	Country string `json:"country"`
}

type locationRequestAction struct{}

func (buttonAction) subtype() models.InteractiveSubtype  { return models.InteractiveButton }
func (listAction) subtype() models.InteractiveSubtype    { return models.InteractiveList }
func (ctaURLAction) subtype() models.InteractiveSubtype  { return models.InteractiveCTAURL }
func (flowAction) subtype() models.InteractiveSubtype    { return models.InteractiveFlow }
func (addressAction) subtype() models.InteractiveSubtype { return models.InteractiveAddress }
func (locationRequestAction) subtype() models.InteractiveSubtype {
	return models.InteractiveLocationRequest
}

// Wire forms of the interactive actions.
type (
	listActionBody struct {
		Button   string               `json:"button"`
		Sections []models.ListSection `json:"sections"`
	}
	namedActionBody struct {
		Name       string `json:"name"`
		Parameters any    `json:"parameters,omitempty"`
	}
	ctaURLParameters struct {
		DisplayText string `json:"display_text"`
		URL         string `json:"url"`
	}
	flowParameters struct {
		FlowMessageVersion string `json:"flow_message_version"`
		FlowID             string `json:"flow_id"`
		FlowCTA            string `json:"flow_cta"`
	}
	addressParameters struct {
		Country string `json:"country"`
	}
)

// Build maps a logical outbound message onto the provider request body.
// It performs no I/O and the same input always renders the same JSON. The
// recipient is copied as given; Validate checks it before dispatch.
func Build(msg models.OutboundMessage) (*RequestBody, error) {
	c, err := decode(msg)
	if err != nil {
		return nil, err
	}
	return render(strings.TrimSpace(msg.To), c)
}

// Validate builds msg and additionally requires a recipient, returning the
// body that would be dispatched.
func Validate(msg models.OutboundMessage) (*RequestBody, error) {
	body, err := Build(msg)
	if err != nil {
		return nil, err
	}
	if body.To == "" {
		return nil, validationError("to", "recipient is required")
	}
	return body, nil
}

// ResolveType applies the defaulting rules for a message without an explicit
// type: a media URL implies its media type (image when unspecified), anything
// else is text.
func ResolveType(msg models.OutboundMessage) models.OutboundType {
	if msg.Type != "" {
		return msg.Type
	}
	if msg.MediaURL != "" {
		if msg.MediaType != "" {
			return msg.MediaType
		}
		return models.OutboundImage
	}
	return models.OutboundText
}

func decode(msg models.OutboundMessage) (content, error) {
	kind := ResolveType(msg)

	switch kind {
	case models.OutboundText:
		return textContent{body: msg.Body}, nil

	case models.OutboundImage, models.OutboundVideo, models.OutboundAudio, models.OutboundDocument:
		if msg.MediaType != "" && msg.MediaType != kind {
			return nil, validationError("mediaType", "media type %q does not match message type %q", msg.MediaType, kind)
		}
		if strings.TrimSpace(msg.MediaURL) == "" {
			return nil, validationError("mediaUrl", "%s message requires a media url", kind)
		}
		return mediaContent{kind: kind, link: msg.MediaURL, caption: msg.Body, filename: msg.Filename}, nil

	case models.OutboundSticker:
		if strings.TrimSpace(msg.MediaURL) == "" {
			return nil, validationError("mediaUrl", "sticker message requires a media url")
		}
		return stickerContent{link: msg.MediaURL}, nil

	case models.OutboundContacts:
		if len(msg.Contacts) == 0 {
			return nil, validationError("contacts", "contacts message requires at least one contact")
		}
		return contactsContent{contacts: msg.Contacts}, nil

	case models.OutboundLocation:
		if msg.Location == nil {
			return nil, validationError("location", "location message requires a location")
		}
		return locationContent{location: *msg.Location}, nil

	case models.OutboundInteractive:
		return decodeInteractive(msg)

	default:
		return nil, validationError("type", "unsupported message type %q", kind)
	}
}

func decodeInteractive(msg models.OutboundMessage) (content, error) {
	opts := msg.Interactive
	if opts == nil {
		return nil, validationError("interactive", "interactive message requires interactive options")
	}

	act, err := decodeAction(opts.Subtype, opts.Action)
	if err != nil {
		return nil, err
	}

	ic := interactiveContent{subtype: opts.Subtype, body: msg.Body, action: act}
	if opts.BodyText != nil {
		ic.body = *opts.BodyText
	}
	// Address and location requests do not take a header or footer.
	switch opts.Subtype {
	case models.InteractiveButton, models.InteractiveList, models.InteractiveCTAURL, models.InteractiveFlow:
		ic.header = opts.HeaderText
		ic.footer = opts.FooterText
	}
	return ic, nil
}

func decodeAction(subtype models.InteractiveSubtype, raw json.RawMessage) (action, error) {
	switch subtype {
	case models.InteractiveButton:
		var a buttonAction
		if err := unmarshalAction(raw, &a); err != nil {
			return nil, err
		}
		if len(a.Buttons) == 0 {
			return nil, validationError("interactive.action.buttons", "button message requires at least one button")
		}
		return a, nil

	case models.InteractiveList:
		var a listAction
		if err := unmarshalAction(raw, &a); err != nil {
			return nil, err
		}
		if len(a.Sections) == 0 {
			return nil, validationError("interactive.action.sections", "list message requires at least one section")
		}
		return a, nil

	case models.InteractiveCTAURL:
		a := ctaURLAction{Name: string(models.InteractiveCTAURL)}
		if err := unmarshalAction(raw, &a); err != nil {
			return nil, err
		}
		if a.URL == "" {
			return nil, validationError("interactive.action.url", "cta_url message requires a url")
		}
		return a, nil

	case models.InteractiveFlow:
		a := flowAction{Name: string(models.InteractiveFlow)}
		if err := unmarshalAction(raw, &a); err != nil {
			return nil, err
		}
		if a.FlowID == "" {
			return nil, validationError("interactive.action.flowId", "flow message requires a flow id")
		}
		return a, nil

	case models.InteractiveAddress:
		var a addressAction
		if err := unmarshalAction(raw, &a); err != nil {
			return nil, err
		}
		return a, nil

	case models.InteractiveLocationRequest:
		return locationRequestAction{}, nil

	default:
		return nil, validationError("interactive.subtype", "unsupported interactive subtype %q", subtype)
	}
}

func unmarshalAction(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return decodeError(err, "interactive.action")
	}
	return nil
}

func render(to string, c content) (*RequestBody, error) {
	body := &RequestBody{
		MessagingProduct: messagingProduct,
		To:               to,
		Type:             c.outboundType(),
	}

	switch v := c.(type) {
	case textContent:
		body.Text = &TextPayload{Body: v.body}

	case mediaContent:
		payload := &MediaPayload{Link: v.link}
		if v.kind != models.OutboundAudio {
			caption := v.caption
			payload.Caption = &caption
		}
		if v.kind == models.OutboundDocument {
			payload.Filename = v.filename
		}
		switch v.kind {
		case models.OutboundImage:
			body.Image = payload
		case models.OutboundVideo:
			body.Video = payload
		case models.OutboundAudio:
			body.Audio = payload
		case models.OutboundDocument:
			body.Document = payload
		}

	case stickerContent:
		body.Sticker = &StickerPayload{Link: v.link}

	case contactsContent:
		body.Contacts = v.contacts

	case locationContent:
		loc := v.location
		body.Location = &loc

	case interactiveContent:
		payload, err := renderInteractive(v)
		if err != nil {
			return nil, err
		}
		body.Interactive = payload

	default:
		return nil, validationError("type", "unsupported message type %q", c.outboundType())
	}

	return body, nil
}

func renderInteractive(c interactiveContent) (*InteractivePayload, error) {
	payload := &InteractivePayload{
		Type: c.subtype,
		Body: InteractiveText{Text: c.body},
	}
	if c.header != "" {
		payload.Header = &InteractiveHeader{Type: "text", Text: c.header}
	}
	if c.footer != "" {
		payload.Footer = &InteractiveText{Text: c.footer}
	}

	switch a := c.action.(type) {
	case buttonAction:
		payload.Action = buttonAction{Buttons: a.Buttons}
	case listAction:
		payload.Action = listActionBody{Button: a.ButtonText, Sections: a.Sections}
	case ctaURLAction:
		payload.Action = namedActionBody{Name: a.Name, Parameters: ctaURLParameters{DisplayText: a.DisplayText, URL: a.URL}}
	case flowAction:
		payload.Action = namedActionBody{Name: a.Name, Parameters: flowParameters{
			FlowMessageVersion: a.FlowMessageVersion,
			FlowID:             a.FlowID,
			FlowCTA:            a.FlowCTA,
		}}
	case addressAction:
		payload.Action = namedActionBody{Name: string(models.InteractiveAddress), Parameters: addressParameters{Country: a.Country}}
	case locationRequestAction:
		payload.Action = namedActionBody{Name: "send_location"}
	default:
		return nil, validationError("interactive.subtype", "unsupported interactive subtype %q", c.subtype)
	}

	return payload, nil
}
