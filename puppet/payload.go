package puppet

import "time"

// MessageType classifies a message payload.
type MessageType string

const (
	MessageTypeUnknown     MessageType = "unknown"
	MessageTypeText        MessageType = "text"
	MessageTypeImage       MessageType = "image"
	MessageTypeAudio       MessageType = "audio"
	MessageTypeVideo       MessageType = "video"
	MessageTypeAttachment  MessageType = "attachment"
	MessageTypeContactCard MessageType = "contact-card"
	MessageTypeURLLink     MessageType = "url-link"
	MessageTypeMiniProgram MessageType = "mini-program"
	MessageTypeLocation    MessageType = "location"
	MessageTypeRecalled    MessageType = "recalled"
	MessageTypeEmoticon    MessageType = "emoticon"
)

// MessagePayload is the full data record for a message, fetched once from
// the puppet. TalkerID is always set; at most one of ListenerID and RoomID
// determines the conversation the message belongs to.
type MessagePayload struct {
	ID         string      `json:"id"`
	TalkerID   string      `json:"talkerId"`
	ListenerID string      `json:"listenerId,omitempty"`
	RoomID     string      `json:"roomId,omitempty"`
	Type       MessageType `json:"type"`
	Text       string      `json:"text,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
	MentionIDs []string    `json:"mentionIds,omitempty"`
}

// ContactPayload is the full data record for a contact.
type ContactPayload struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Alias  string `json:"alias,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// RoomPayload is the full data record for a room.
type RoomPayload struct {
	ID        string   `json:"id"`
	Topic     string   `json:"topic"`
	MemberIDs []string `json:"memberIds,omitempty"`
}

// FileBox describes a file or media blob carried by a message.
type FileBox struct {
	Name     string `json:"name"`
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// URLLinkPayload describes a shared web link.
type URLLinkPayload struct {
	URL          string `json:"url"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
}

// MiniProgramPayload describes a shared mini-app reference.
type MiniProgramPayload struct {
	AppID       string `json:"appId"`
	Username    string `json:"username,omitempty"`
	Title       string `json:"title,omitempty"`
	PagePath    string `json:"pagePath,omitempty"`
	Description string `json:"description,omitempty"`
	ThumbURL    string `json:"thumbUrl,omitempty"`
}

// LocationPayload describes a shared geographic location.
type LocationPayload struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
	Accuracy  float64 `json:"accuracy,omitempty"`
}
