package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/warble-im/warble/internal/logging"
	"github.com/warble-im/warble/puppet"
)

// Client is a puppet.Puppet backed by a remote puppet server.
type Client struct {
	endpoint string
	token    string
	log      *logging.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	pending map[string]chan Frame
	handler func(messageID string)
	selfID  string
	started bool
}

// NewClient creates a client for the WebSocket endpoint, for example
// "ws://host:9301/ws". It does not connect until Start.
func NewClient(endpoint, token string, log *logging.Logger) *Client {
	return &Client{
		endpoint: endpoint,
		token:    token,
		log:      log.Sub("remote"),
		pending:  make(map[string]chan Frame),
	}
}

func (c *Client) Kind() string { return "remote" }

// SelfID returns the backend session identity learned during Start, or ""
// before the client has connected.
func (c *Client) SelfID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selfID
}

// OnMessage registers the inbound message handler.
func (c *Client) OnMessage(handler func(messageID string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// Start dials the server, performs the connect handshake, and begins
// receiving events.
func (c *Client) Start(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", c.endpoint, err)
	}
	conn.SetReadLimit(maxFrameBytes)

	hello, err := c.connect(conn)
	if err != nil {
		conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.selfID = hello.SelfID
	c.started = true
	c.mu.Unlock()

	c.log.Info().
		Str("endpoint", c.endpoint).
		Str("backend", hello.Kind).
		Str("selfId", hello.SelfID).
		Msg("connected to remote puppet")

	go c.readLoop()
	return nil
}

// connect performs the handshake on a fresh connection.
func (c *Client) connect(conn *websocket.Conn) (*HelloOK, error) {
	req, err := NewRequest(uuid.New().String(), "connect", ConnectParams{
		Protocol: ProtocolVersion,
		Token:    c.token,
	})
	if err != nil {
		return nil, err
	}
	if err := conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("sending connect: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	defer conn.SetReadDeadline(time.Time{})

	var frame Frame
	if err := conn.ReadJSON(&frame); err != nil {
		return nil, fmt.Errorf("reading hello: %w", err)
	}
	if frame.Error != nil {
		return nil, fmt.Errorf("connect rejected: %s (%s)", frame.Error.Message, frame.Error.Code)
	}

	var hello HelloOK
	if err := json.Unmarshal(frame.Payload, &hello); err != nil {
		return nil, fmt.Errorf("parsing hello: %w", err)
	}
	if hello.Protocol != ProtocolVersion {
		return nil, fmt.Errorf("server speaks protocol %d, want %d", hello.Protocol, ProtocolVersion)
	}
	return &hello, nil
}

// Stop closes the connection. Pending calls fail.
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.started = false
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return conn.Close()
}

// readLoop receives frames until the connection dies, routing responses to
// pending calls and events to the message handler. Every exit path fails
// the in-flight calls so none of them blocks past the connection.
func (c *Client) readLoop() {
	defer c.failPending()
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn().Err(err).Msg("connection lost")
			}
			return
		}

		switch frame.Type {
		case FrameTypeResponse:
			c.mu.Lock()
			ch, ok := c.pending[frame.ID]
			if ok {
				delete(c.pending, frame.ID)
			}
			c.mu.Unlock()
			if ok {
				ch <- frame
			}

		case FrameTypeEvent:
			c.handleEvent(frame)
		}
	}
}

func (c *Client) handleEvent(frame Frame) {
	if frame.Event != "message" {
		c.log.Debug().Str("event", frame.Event).Msg("ignoring unknown event")
		return
	}
	var ev MessageEvent
	if err := json.Unmarshal(frame.Payload, &ev); err != nil {
		c.log.Warn().Err(err).Msg("bad message event")
		return
	}

	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	if handler != nil {
		handler(ev.MessageID)
	}
}

// failPending unblocks every in-flight call after the connection drops.
func (c *Client) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		delete(c.pending, id)
		close(ch)
	}
}

// call sends a request and decodes the response payload into result.
// A nil result discards the payload.
func (c *Client) call(ctx context.Context, method string, params, result any) error {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return fmt.Errorf("calling %s: %w", method, puppet.ErrNotStarted)
	}
	id := uuid.New().String()
	ch := make(chan Frame, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	req, err := NewRequest(id, method, params)
	if err != nil {
		c.dropPending(id)
		return err
	}

	c.writeMu.Lock()
	err = conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		c.dropPending(id)
		return fmt.Errorf("sending %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		c.dropPending(id)
		return ctx.Err()
	case frame, ok := <-ch:
		if !ok {
			return fmt.Errorf("%s: connection closed", method)
		}
		if frame.Error != nil {
			return decodeError(method, frame.Error)
		}
		if result == nil {
			return nil
		}
		if err := json.Unmarshal(frame.Payload, result); err != nil {
			return fmt.Errorf("decoding %s response: %w", method, err)
		}
		return nil
	}
}

func (c *Client) dropPending(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// decodeError maps wire error codes back to the puppet sentinels so
// errors.Is works across the connection.
func decodeError(method string, shape *ErrorShape) error {
	switch shape.Code {
	case CodeNotFound:
		return fmt.Errorf("%s: %s: %w", method, shape.Message, puppet.ErrNotFound)
	case CodeUnsupported:
		return fmt.Errorf("%s: %s: %w", method, shape.Message, puppet.ErrUnsupported)
	default:
		return fmt.Errorf("%s: %s (%s)", method, shape.Message, shape.Code)
	}
}

var _ puppet.Puppet = (*Client)(nil)

func (c *Client) MessageSearch(ctx context.Context, query string) ([]string, error) {
	var res searchResult
	if err := c.call(ctx, "message.search", searchParams{Query: query}, &res); err != nil {
		return nil, err
	}
	return res.IDs, nil
}

func (c *Client) MessagePayload(ctx context.Context, messageID string) (*puppet.MessagePayload, error) {
	var m puppet.MessagePayload
	if err := c.call(ctx, "message.payload", idParams{ID: messageID}, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) MessageSendText(ctx context.Context, conversationID, text string, mentionIDs []string) (string, error) {
	var res sentResult
	err := c.call(ctx, "message.sendText", sendTextParams{
		ConversationID: conversationID,
		Text:           text,
		MentionIDs:     mentionIDs,
	}, &res)
	return res.MessageID, err
}

func (c *Client) MessageSendContact(ctx context.Context, conversationID, contactID string) (string, error) {
	var res sentResult
	err := c.call(ctx, "message.sendContact", sendContactParams{
		ConversationID: conversationID,
		ContactID:      contactID,
	}, &res)
	return res.MessageID, err
}

func (c *Client) MessageSendFile(ctx context.Context, conversationID string, file *puppet.FileBox) (string, error) {
	return c.sendPayload(ctx, "message.sendFile", conversationID, file)
}

func (c *Client) MessageSendURL(ctx context.Context, conversationID string, link *puppet.URLLinkPayload) (string, error) {
	return c.sendPayload(ctx, "message.sendUrl", conversationID, link)
}

func (c *Client) MessageSendMiniProgram(ctx context.Context, conversationID string, app *puppet.MiniProgramPayload) (string, error) {
	return c.sendPayload(ctx, "message.sendMiniProgram", conversationID, app)
}

func (c *Client) MessageSendLocation(ctx context.Context, conversationID string, location *puppet.LocationPayload) (string, error) {
	return c.sendPayload(ctx, "message.sendLocation", conversationID, location)
}

func (c *Client) sendPayload(ctx context.Context, method, conversationID string, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	var res sentResult
	err = c.call(ctx, method, sendPayloadParams{ConversationID: conversationID, Payload: raw}, &res)
	return res.MessageID, err
}

func (c *Client) MessageForward(ctx context.Context, conversationID, messageID string) (string, error) {
	var res sentResult
	err := c.call(ctx, "message.forward", forwardParams{
		ConversationID: conversationID,
		MessageID:      messageID,
	}, &res)
	return res.MessageID, err
}

func (c *Client) MessageRecall(ctx context.Context, messageID string) (bool, error) {
	var res recallResult
	err := c.call(ctx, "message.recall", idParams{ID: messageID}, &res)
	return res.Recalled, err
}

func (c *Client) MessageFile(ctx context.Context, messageID string) (*puppet.FileBox, error) {
	var f puppet.FileBox
	if err := c.call(ctx, "message.file", idParams{ID: messageID}, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (c *Client) MessageContact(ctx context.Context, messageID string) (string, error) {
	var res cardResult
	err := c.call(ctx, "message.contact", idParams{ID: messageID}, &res)
	return res.ContactID, err
}

func (c *Client) MessageURL(ctx context.Context, messageID string) (*puppet.URLLinkPayload, error) {
	var u puppet.URLLinkPayload
	if err := c.call(ctx, "message.url", idParams{ID: messageID}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) MessageMiniProgram(ctx context.Context, messageID string) (*puppet.MiniProgramPayload, error) {
	var m puppet.MiniProgramPayload
	if err := c.call(ctx, "message.miniProgram", idParams{ID: messageID}, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) MessageLocation(ctx context.Context, messageID string) (*puppet.LocationPayload, error) {
	var l puppet.LocationPayload
	if err := c.call(ctx, "message.location", idParams{ID: messageID}, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (c *Client) ContactPayload(ctx context.Context, contactID string) (*puppet.ContactPayload, error) {
	var p puppet.ContactPayload
	if err := c.call(ctx, "contact.payload", idParams{ID: contactID}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) RoomPayload(ctx context.Context, roomID string) (*puppet.RoomPayload, error) {
	var r puppet.RoomPayload
	if err := c.call(ctx, "room.payload", idParams{ID: roomID}, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) RoomMembers(ctx context.Context, roomID string) ([]string, error) {
	var res membersResult
	if err := c.call(ctx, "room.members", idParams{ID: roomID}, &res); err != nil {
		return nil, err
	}
	return res.MemberIDs, nil
}
