// Package puppet defines the backend contract of the SDK. A puppet owns the
// actual chat-platform protocol (transport, sessions, reconnection); the
// entity layer reaches it only through the calls below.
package puppet

import "context"

// Puppet is the interface every backend implementation must satisfy.
//
// Send and forward operations return the id of the newly created message,
// or an empty string when the platform does not report one.
type Puppet interface {
	// Kind returns the puppet identifier (e.g. "memory", "irc").
	Kind() string

	// SelfID returns the identity of the active session.
	SelfID() string

	// Start connects the puppet and begins emitting message events.
	Start(ctx context.Context) error

	// Stop gracefully disconnects the puppet.
	Stop(ctx context.Context) error

	// OnMessage registers a handler invoked with the id of each inbound message.
	OnMessage(handler func(messageID string))

	MessageSearch(ctx context.Context, query string) ([]string, error)
	MessagePayload(ctx context.Context, messageID string) (*MessagePayload, error)

	MessageSendText(ctx context.Context, conversationID, text string, mentionIDs []string) (string, error)
	MessageSendContact(ctx context.Context, conversationID, contactID string) (string, error)
	MessageSendFile(ctx context.Context, conversationID string, file *FileBox) (string, error)
	MessageSendURL(ctx context.Context, conversationID string, link *URLLinkPayload) (string, error)
	MessageSendMiniProgram(ctx context.Context, conversationID string, app *MiniProgramPayload) (string, error)
	MessageSendLocation(ctx context.Context, conversationID string, location *LocationPayload) (string, error)

	MessageForward(ctx context.Context, conversationID, messageID string) (string, error)
	MessageRecall(ctx context.Context, messageID string) (bool, error)

	MessageFile(ctx context.Context, messageID string) (*FileBox, error)
	MessageContact(ctx context.Context, messageID string) (string, error)
	MessageURL(ctx context.Context, messageID string) (*URLLinkPayload, error)
	MessageMiniProgram(ctx context.Context, messageID string) (*MiniProgramPayload, error)
	MessageLocation(ctx context.Context, messageID string) (*LocationPayload, error)

	ContactPayload(ctx context.Context, contactID string) (*ContactPayload, error)
	RoomPayload(ctx context.Context, roomID string) (*RoomPayload, error)
	RoomMembers(ctx context.Context, roomID string) ([]string, error)
}
