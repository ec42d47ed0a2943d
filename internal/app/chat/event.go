/*
Package chat is the realtime fan-out core of the messenger.

A Hub admits websocket connections (credential + membership gate), runs one Session per
connection, and fans persisted events out to every live connection of a chat through the
Registry and Dispatcher. Wire events are closed tagged variants decoded and encoded here.
*/
package chat

import (
	"encoding/json"
	"unicode/utf8"

	"github.com/google/uuid"

	"itamchat/internal/app/store"
)

// EventType is the `type` tag of a wire frame.
type EventType string

const (
	TypeMessage EventType = "message"
	TypeSeen    EventType = "seen"
	TypePing    EventType = "ping"
	TypePong    EventType = "pong"
	TypeError   EventType = "error"
)

const (
	// MaxTextLength is the maximum text_content length in characters.
	MaxTextLength = 4000

	// MaxImageURLLength is the maximum image_content length in bytes.
	MaxImageURLLength = 2048

	// MaxSeenBatch is the maximum number of ids in one seen frame.
	MaxSeenBatch = 100
)

// Client-facing error reasons.
const (
	ReasonInvalidPayload   = "Invalid payload"
	ReasonContentRequired  = "text or image required"
	ReasonUnknownEvent     = "unknown event type"
	ReasonTextTooLong      = "text too long"
	ReasonImageURLTooLong  = "image url too long"
	ReasonTooManyIDs       = "too many message ids"
	ReasonSendFailed       = "failed to send message"
	ReasonRecordSeenFailed = "failed to record seen"
)

// InboundEvent is a decoded client frame: SendMessage, MarkSeen or Ping.
type InboundEvent interface {
	inbound()
}

// SendMessage asks to persist and broadcast a message. Empty fields are absent.
type SendMessage struct {
	Text     string
	ImageURL string
}

// MarkSeen reports that the sender has seen the listed messages.
// Ids are kept verbatim; invalid ones are skipped for storage but echoed back.
type MarkSeen struct {
	MessageIDs []string
}

// Ping asks for a Pong.
type Ping struct{}

func (SendMessage) inbound() {}
func (MarkSeen) inbound()    {}
func (Ping) inbound()        {}

type inboundFrame struct {
	Type         EventType `json:"type"`
	TextContent  *string   `json:"text_content"`
	ImageContent *string   `json:"image_content"`
	MessageIDs   []string  `json:"message_ids"`
}

// DecodeInbound parses and validates one client frame.
// Failures are *ProtocolError values carrying the reason for the sender.
func DecodeInbound(data []byte) (InboundEvent, error) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, protocolError(ErrMalformedPayload, ReasonInvalidPayload)
	}

	switch frame.Type {
	case TypeMessage:
		ev := SendMessage{}
		if frame.TextContent != nil {
			ev.Text = *frame.TextContent
		}
		if frame.ImageContent != nil {
			ev.ImageURL = *frame.ImageContent
		}
		if ev.Text == "" && ev.ImageURL == "" {
			return nil, protocolError(ErrValidation, ReasonContentRequired)
		}
		if utf8.RuneCountInString(ev.Text) > MaxTextLength {
			return nil, protocolError(ErrValidation, ReasonTextTooLong)
		}
		if len(ev.ImageURL) > MaxImageURLLength {
			return nil, protocolError(ErrValidation, ReasonImageURLTooLong)
		}
		return ev, nil

	case TypeSeen:
		if len(frame.MessageIDs) > MaxSeenBatch {
			return nil, protocolError(ErrValidation, ReasonTooManyIDs)
		}
		ids := frame.MessageIDs
		if ids == nil {
			ids = []string{}
		}
		return MarkSeen{MessageIDs: ids}, nil

	case TypePing:
		return Ping{}, nil

	default:
		return nil, protocolError(ErrUnknownEvent, ReasonUnknownEvent)
	}
}

// OutboundEvent is a server frame: MessageCreated, SeenUpdated, Pong or ErrorEvent.
type OutboundEvent interface {
	json.Marshaler
	Type() EventType
}

// MessageCreated announces a persisted message.
type MessageCreated struct {
	Message store.Message
}

// SeenUpdated announces that UserID has seen MessageIDs.
type SeenUpdated struct {
	UserID     uuid.UUID
	MessageIDs []string
}

// Pong answers a Ping.
type Pong struct{}

// ErrorEvent reports an in-session failure to the sender only.
type ErrorEvent struct {
	Reason string
}

func (MessageCreated) Type() EventType { return TypeMessage }
func (SeenUpdated) Type() EventType    { return TypeSeen }
func (Pong) Type() EventType           { return TypePong }
func (ErrorEvent) Type() EventType     { return TypeError }

func (e MessageCreated) MarshalJSON() ([]byte, error) {
	msg := e.Message
	if msg.SeenBy == nil {
		msg.SeenBy = []store.SeenReceipt{}
	}
	return json.Marshal(struct {
		Type    EventType     `json:"type"`
		Message store.Message `json:"message"`
	}{TypeMessage, msg})
}

func (e SeenUpdated) MarshalJSON() ([]byte, error) {
	ids := e.MessageIDs
	if ids == nil {
		ids = []string{}
	}
	return json.Marshal(struct {
		Type       EventType `json:"type"`
		UserID     uuid.UUID `json:"user_id"`
		MessageIDs []string  `json:"message_ids"`
	}{TypeSeen, e.UserID, ids})
}

func (Pong) MarshalJSON() ([]byte, error) {
	return []byte(`{"type":"pong"}`), nil
}

func (e ErrorEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type  EventType `json:"type"`
		Error string    `json:"error"`
	}{TypeError, e.Reason})
}

// Encode serializes an outbound event into a wire frame.
func Encode(event OutboundEvent) ([]byte, error) {
	return json.Marshal(event)
}
