// Package channels defines the transport abstraction used by the bridge.
// A transport (WhatsApp, the local console) implements Channel to deliver
// inbound messages and accept replies; optional capabilities such as media,
// receipts and reactions are separate interfaces discovered at runtime.
package channels

import (
	"context"
	"errors"
	"time"
)

// MessageType identifies the kind of message content.
type MessageType string

const (
	MessageText     MessageType = "text"
	MessageImage    MessageType = "image"
	MessageAudio    MessageType = "audio"
	MessageVideo    MessageType = "video"
	MessageDocument MessageType = "document"
	MessageSticker  MessageType = "sticker"
	MessageLocation MessageType = "location"
	MessageContact  MessageType = "contact"
	MessageReaction MessageType = "reaction"
	MessageUnknown  MessageType = "unknown"
)

// Channel is implemented by every transport.
type Channel interface {
	// Name returns the channel identifier (e.g. "whatsapp").
	Name() string

	Connect(ctx context.Context) error
	Disconnect() error

	// Send delivers a text message to a chat.
	Send(ctx context.Context, to string, message *OutgoingMessage) error

	// Receive returns the stream of inbound messages.
	Receive() <-chan *IncomingMessage

	IsConnected() bool
	Health() HealthStatus
}

// MediaChannel is a Channel that can send and fetch media.
type MediaChannel interface {
	Channel

	SendMedia(ctx context.Context, to string, media *MediaMessage) error

	// DownloadMedia returns the raw bytes and MIME type of an inbound
	// message's attachment.
	DownloadMedia(ctx context.Context, msg *IncomingMessage) ([]byte, string, error)
}

// ReceiptChannel is a Channel that can acknowledge messages as read.
type ReceiptChannel interface {
	Channel

	MarkRead(ctx context.Context, chatID string, messageIDs []string) error
}

// ReactionChannel is a Channel that can react to a message with an emoji.
type ReactionChannel interface {
	Channel

	SendReaction(ctx context.Context, chatID, messageID, emoji string) error
}

// IncomingMessage is a message received from any transport.
type IncomingMessage struct {
	// ID is the unique message identifier in the source channel.
	ID string

	// Channel identifies the source channel (e.g. "whatsapp").
	Channel string

	// From is the sender identifier on the platform.
	From string

	// FromName is the sender display name, if known.
	FromName string

	// ChatID is the group or DM identifier replies go to.
	ChatID string

	IsGroup bool

	// Mentioned is set by the transport when the bot was addressed in a
	// group (its identity in the mention list or the trigger word in text).
	Mentioned bool

	Type MessageType

	// Text is the body of a text message or the caption of media.
	Text string

	Timestamp time.Time

	// ReplyTo is the ID of the quoted message, if any.
	ReplyTo string

	Media    *MediaInfo
	Location *LocationInfo
	Contact  *ContactInfo
}

// OutgoingMessage is a text reply.
type OutgoingMessage struct {
	Content string

	// ReplyTo quotes the given message ID.
	ReplyTo string
}

// MediaMessage is a media file to be sent.
type MediaMessage struct {
	// Type is one of image, audio, video, document.
	Type MessageType

	Data     []byte
	MimeType string
	Filename string
	Caption  string

	// Voice marks audio as a push-to-talk voice note.
	Voice bool
}

// MediaInfo describes media attached to an inbound message.
type MediaInfo struct {
	Type     MessageType
	MimeType string
	Filename string
	FileSize uint64
	Caption  string
	Duration uint32

	// Voice is true for push-to-talk voice notes.
	Voice bool

	// Transport-specific download references.
	URL           string
	DirectPath    string
	MediaKey      []byte
	FileSHA256    []byte
	FileEncSHA256 []byte
}

// LocationInfo contains shared coordinates.
type LocationInfo struct {
	Latitude  float64
	Longitude float64
	Name      string
}

// ContactInfo contains a shared contact card.
type ContactInfo struct {
	DisplayName string
	VCard       string
}

// HealthStatus represents the health state of a channel.
type HealthStatus struct {
	Connected     bool
	LastMessageAt time.Time
	ErrorCount    int
	Details       map[string]any
}

var (
	ErrChannelDisconnected = errors.New("channel is not connected")
	ErrChannelNotFound     = errors.New("channel not found")
	ErrMediaNotSupported   = errors.New("media not supported by this channel")
	ErrNotSupported        = errors.New("operation not supported by this channel")
)
