// Package irc implements a puppet over IRC using the girc library.
// Channels map to rooms and nicks map to contacts. IRC servers keep no
// message history, so all traffic is archived locally and payload fetch
// and search are served from the archive.
package irc

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lrstanley/girc"

	"github.com/warble-im/warble/history"
	"github.com/warble-im/warble/internal/config"
	"github.com/warble-im/warble/internal/logging"
	"github.com/warble-im/warble/puppet"
)

// Puppet implements puppet.Puppet for IRC. Only text can be sent; url
// links are rendered to text, everything else reports ErrUnsupported.
type Puppet struct {
	cfg     config.IRCConfig
	client  *girc.Client
	archive *history.Store
	log     *logging.Logger

	mu      sync.RWMutex
	handler func(messageID string)
	running bool
}

var _ puppet.Puppet = (*Puppet)(nil)

// New creates an IRC puppet from configuration. The archive must be open;
// it backs MessagePayload and MessageSearch.
func New(cfg config.IRCConfig, archive *history.Store, log *logging.Logger) *Puppet {
	return &Puppet{
		cfg:     cfg,
		archive: archive,
		log:     log.Sub("irc"),
	}
}

func (p *Puppet) Kind() string   { return "irc" }
func (p *Puppet) SelfID() string { return p.cfg.Nick }

func (p *Puppet) OnMessage(handler func(messageID string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = handler
}

// Start connects to the IRC server and blocks until the connection ends
// or the context is cancelled.
func (p *Puppet) Start(ctx context.Context) error {
	port := p.cfg.Port
	if port == 0 {
		if p.cfg.UseTLS {
			port = 6697
		} else {
			port = 6667
		}
	}

	gircCfg := girc.Config{
		Server:  p.cfg.Server,
		Port:    port,
		Nick:    p.cfg.Nick,
		User:    p.cfg.Nick,
		Name:    "Warble IRC Puppet",
		SSL:     p.cfg.UseTLS,
		Version: "Warble/1.0",
	}

	if p.cfg.UseTLS {
		gircCfg.TLSConfig = &tls.Config{
			ServerName: p.cfg.Server,
		}
	}

	if p.cfg.SASL && p.cfg.Password != "" {
		gircCfg.SASL = &girc.SASLPlain{
			User: p.cfg.Nick,
			Pass: p.cfg.Password,
		}
	} else if p.cfg.Password != "" {
		gircCfg.ServerPass = p.cfg.Password
	}

	p.client = girc.New(gircCfg)
	p.client.Handlers.Add(girc.CONNECTED, p.onConnected)
	p.client.Handlers.Add(girc.PRIVMSG, p.onPrivmsg)
	p.client.Handlers.Add(girc.DISCONNECTED, p.onDisconnected)

	p.mu.Lock()
	p.running = true
	p.mu.Unlock()

	p.log.Info().
		Str("server", p.cfg.Server).
		Int("port", port).
		Str("nick", p.cfg.Nick).
		Strs("channels", p.cfg.Channels).
		Bool("tls", p.cfg.UseTLS).
		Msg("connecting to IRC")

	// Connect() blocks, so run it aside and race it against the context.
	errCh := make(chan error, 1)
	go func() {
		errCh <- p.client.Connect()
	}()

	select {
	case err := <-errCh:
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
		if err != nil {
			return fmt.Errorf("irc connect: %w", err)
		}
		return nil
	case <-ctx.Done():
		p.client.Close()
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
		return ctx.Err()
	}
}

// Stop gracefully disconnects from the IRC server.
func (p *Puppet) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil && p.client.IsConnected() {
		p.log.Info().Msg("disconnecting from IRC")
		p.client.Quit("warble shutting down")
	}
	p.running = false
	return nil
}

func (p *Puppet) onConnected(_ *girc.Client, e girc.Event) {
	p.log.Info().Str("nick", p.client.GetNick()).Msg("connected to IRC")
	for _, ch := range p.cfg.Channels {
		p.log.Info().Str("channel", ch).Msg("joining channel")
		p.client.Cmd.Join(ch)
	}
}

func (p *Puppet) onDisconnected(_ *girc.Client, e girc.Event) {
	p.log.Warn().Msg("disconnected from IRC")
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
}

func (p *Puppet) onPrivmsg(_ *girc.Client, e girc.Event) {
	if e.Source == nil {
		return
	}
	if e.Source.Name == p.client.GetNick() {
		return
	}

	m := p.payloadFromEvent(e)
	if err := p.archive.Put(m); err != nil {
		p.log.Error().Err(err).Str("messageId", m.ID).Msg("archiving inbound message")
		return
	}

	p.mu.RLock()
	handler := p.handler
	p.mu.RUnlock()
	if handler != nil {
		handler(m.ID)
	}
}

// payloadFromEvent maps a PRIVMSG onto a message payload. Channel traffic
// becomes room messages; anything else is a direct message to us.
func (p *Puppet) payloadFromEvent(e girc.Event) *puppet.MessagePayload {
	body := e.Last()
	if e.IsAction() {
		body = e.StripAction()
	}

	m := &puppet.MessagePayload{
		ID:        uuid.New().String(),
		TalkerID:  e.Source.Name,
		Type:      puppet.MessageTypeText,
		Text:      body,
		Timestamp: time.Now(),
	}
	if e.IsFromChannel() {
		m.RoomID = e.Params[0]
	} else {
		m.ListenerID = p.cfg.Nick
	}
	return m
}

// --- message operations ---

func (p *Puppet) MessageSearch(ctx context.Context, query string) ([]string, error) {
	return p.archive.Search(query, 0)
}

func (p *Puppet) MessagePayload(ctx context.Context, messageID string) (*puppet.MessagePayload, error) {
	return p.archive.Get(messageID)
}

func (p *Puppet) MessageSendText(ctx context.Context, conversationID, text string, mentionIDs []string) (string, error) {
	if p.client == nil || !p.client.IsConnected() {
		return "", fmt.Errorf("sending to %s: %w", conversationID, puppet.ErrNotStarted)
	}

	// IRC PRIVMSG has a ~512 byte line limit and no embedded newlines.
	lines := splitMessage(text, 400)
	for _, line := range lines {
		p.client.Cmd.Message(conversationID, line)
	}

	m := &puppet.MessagePayload{
		ID:         uuid.New().String(),
		TalkerID:   p.cfg.Nick,
		Type:       puppet.MessageTypeText,
		Text:       text,
		Timestamp:  time.Now(),
		MentionIDs: mentionIDs,
	}
	if girc.IsValidChannel(conversationID) {
		m.RoomID = conversationID
	} else {
		m.ListenerID = conversationID
	}
	if err := p.archive.Put(m); err != nil {
		return "", fmt.Errorf("archiving outbound message: %w", err)
	}

	p.log.Debug().Str("to", conversationID).Int("lines", len(lines)).Msg("sent IRC message")
	return m.ID, nil
}

// MessageSendURL renders the link as text, the closest IRC can get to a
// link card.
func (p *Puppet) MessageSendURL(ctx context.Context, conversationID string, link *puppet.URLLinkPayload) (string, error) {
	text := link.URL
	if link.Title != "" {
		text = fmt.Sprintf("%s <%s>", link.Title, link.URL)
	}
	return p.MessageSendText(ctx, conversationID, text, nil)
}

func (p *Puppet) MessageSendContact(ctx context.Context, conversationID, contactID string) (string, error) {
	return "", fmt.Errorf("irc cannot send contact cards: %w", puppet.ErrUnsupported)
}

func (p *Puppet) MessageSendFile(ctx context.Context, conversationID string, file *puppet.FileBox) (string, error) {
	return "", fmt.Errorf("irc cannot send files: %w", puppet.ErrUnsupported)
}

func (p *Puppet) MessageSendMiniProgram(ctx context.Context, conversationID string, app *puppet.MiniProgramPayload) (string, error) {
	return "", fmt.Errorf("irc cannot send mini-programs: %w", puppet.ErrUnsupported)
}

func (p *Puppet) MessageSendLocation(ctx context.Context, conversationID string, location *puppet.LocationPayload) (string, error) {
	return "", fmt.Errorf("irc cannot send locations: %w", puppet.ErrUnsupported)
}

// MessageForward resends the archived text of the source message.
func (p *Puppet) MessageForward(ctx context.Context, conversationID, messageID string) (string, error) {
	src, err := p.archive.Get(messageID)
	if err != nil {
		return "", err
	}
	if src.Type != puppet.MessageTypeText {
		return "", fmt.Errorf("forwarding %s messages over irc: %w", src.Type, puppet.ErrUnsupported)
	}
	return p.MessageSendText(ctx, conversationID, src.Text, nil)
}

func (p *Puppet) MessageRecall(ctx context.Context, messageID string) (bool, error) {
	return false, fmt.Errorf("irc cannot recall messages: %w", puppet.ErrUnsupported)
}

func (p *Puppet) MessageFile(ctx context.Context, messageID string) (*puppet.FileBox, error) {
	return nil, fmt.Errorf("irc has no file payloads: %w", puppet.ErrUnsupported)
}

func (p *Puppet) MessageContact(ctx context.Context, messageID string) (string, error) {
	return "", fmt.Errorf("irc has no contact cards: %w", puppet.ErrUnsupported)
}

func (p *Puppet) MessageURL(ctx context.Context, messageID string) (*puppet.URLLinkPayload, error) {
	return nil, fmt.Errorf("irc has no url payloads: %w", puppet.ErrUnsupported)
}

func (p *Puppet) MessageMiniProgram(ctx context.Context, messageID string) (*puppet.MiniProgramPayload, error) {
	return nil, fmt.Errorf("irc has no mini-program payloads: %w", puppet.ErrUnsupported)
}

func (p *Puppet) MessageLocation(ctx context.Context, messageID string) (*puppet.LocationPayload, error) {
	return nil, fmt.Errorf("irc has no location payloads: %w", puppet.ErrUnsupported)
}

// ContactPayload maps a nick onto a contact. IRC nicks are free-form, so
// unknown nicks resolve to a minimal payload rather than an error.
func (p *Puppet) ContactPayload(ctx context.Context, contactID string) (*puppet.ContactPayload, error) {
	c := &puppet.ContactPayload{ID: contactID, Name: contactID}
	if p.client != nil && p.client.IsConnected() {
		if user := p.client.LookupUser(contactID); user != nil && user.Extras.Name != "" {
			c.Alias = user.Extras.Name
		}
	}
	return c, nil
}

// RoomPayload maps an IRC channel onto a room. The channel must be one we
// currently share, since IRC exposes no state for others.
func (p *Puppet) RoomPayload(ctx context.Context, roomID string) (*puppet.RoomPayload, error) {
	if p.client == nil || !p.client.IsConnected() {
		return nil, fmt.Errorf("room %s: %w", roomID, puppet.ErrNotStarted)
	}
	ch := p.client.LookupChannel(roomID)
	if ch == nil {
		return nil, fmt.Errorf("channel %s: %w", roomID, puppet.ErrNotFound)
	}
	return &puppet.RoomPayload{
		ID:        roomID,
		Topic:     strings.TrimSpace(ch.Topic),
		MemberIDs: ch.UserList,
	}, nil
}

func (p *Puppet) RoomMembers(ctx context.Context, roomID string) ([]string, error) {
	r, err := p.RoomPayload(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return r.MemberIDs, nil
}

// splitMessage breaks a long message into chunks suitable for IRC.
// Each newline in the input produces a separate chunk; blank lines are
// dropped since an empty PRIVMSG is not a valid message. Lines longer
// than maxLen are further split at the byte boundary.
func splitMessage(text string, maxLen int) []string {
	var chunks []string
	for _, line := range strings.Split(text, "\n") {
		for len(line) > maxLen {
			chunks = append(chunks, line[:maxLen])
			line = line[maxLen:]
		}
		if line != "" {
			chunks = append(chunks, line)
		}
	}
	return chunks
}
