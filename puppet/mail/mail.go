// Package mail implements a read-only puppet over IMAP. Each new mail in
// the watched mailbox surfaces as an inbound text message whose text is
// the subject line. Mail has no conversations to speak into, so every
// send operation reports ErrUnsupported.
package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/google/uuid"

	"github.com/warble-im/warble/internal/config"
	"github.com/warble-im/warble/internal/logging"
	"github.com/warble-im/warble/puppet"
)

// Puppet implements puppet.Puppet for an IMAP mailbox.
type Puppet struct {
	cfg config.MailConfig
	log *logging.Logger

	mu       sync.Mutex
	conn     *client.Client
	handler  func(messageID string)
	messages map[string]*puppet.MessagePayload
	order    []string
	contacts map[string]*puppet.ContactPayload
	seen     uint32
	cancel   context.CancelFunc
}

var _ puppet.Puppet = (*Puppet)(nil)

// New creates a mail puppet from configuration.
func New(cfg config.MailConfig, log *logging.Logger) *Puppet {
	return &Puppet{
		cfg:      cfg,
		log:      log.Sub("mail"),
		messages: make(map[string]*puppet.MessagePayload),
		contacts: make(map[string]*puppet.ContactPayload),
	}
}

func (p *Puppet) Kind() string   { return "mail" }
func (p *Puppet) SelfID() string { return p.cfg.Username }

func (p *Puppet) OnMessage(handler func(messageID string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = handler
}

// Start connects to the IMAP server and begins polling the mailbox. It
// returns once the session is established; polling runs until Stop or
// context cancellation.
func (p *Puppet) Start(ctx context.Context) error {
	port := p.cfg.Port
	if port == 0 {
		port = 993
	}
	addr := fmt.Sprintf("%s:%d", p.cfg.Host, port)

	p.log.Info().Str("addr", addr).Str("mailbox", p.cfg.Mailbox).Msg("connecting to IMAP")

	conn, err := client.DialTLS(addr, &tls.Config{ServerName: p.cfg.Host})
	if err != nil {
		return fmt.Errorf("imap dial %s: %w", addr, err)
	}
	if err := conn.Login(p.cfg.Username, p.cfg.Password); err != nil {
		conn.Logout()
		return fmt.Errorf("imap login: %w", err)
	}

	// Record the current message count so only mail arriving after Start
	// is surfaced.
	mbox, err := conn.Select(p.cfg.Mailbox, true)
	if err != nil {
		conn.Logout()
		return fmt.Errorf("selecting %s: %w", p.cfg.Mailbox, err)
	}

	pollCtx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	p.conn = conn
	p.seen = mbox.Messages
	p.cancel = cancel
	p.mu.Unlock()

	p.log.Info().Uint32("existing", mbox.Messages).Msg("mailbox selected")

	go p.poll(pollCtx)
	return nil
}

// Stop disconnects from the IMAP server.
func (p *Puppet) Stop(ctx context.Context) error {
	p.mu.Lock()
	conn := p.conn
	cancel := p.cancel
	p.conn = nil
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		p.log.Info().Msg("logging out of IMAP")
		return conn.Logout()
	}
	return nil
}

// poll periodically checks the mailbox for new messages.
func (p *Puppet) poll(ctx context.Context) {
	interval := time.Duration(p.cfg.PollSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.fetchNew(); err != nil {
				p.log.Warn().Err(err).Msg("mailbox poll failed")
			}
		}
	}
}

// fetchNew pulls envelopes for messages beyond the last seen sequence
// number and dispatches them.
func (p *Puppet) fetchNew() error {
	p.mu.Lock()
	conn := p.conn
	seen := p.seen
	p.mu.Unlock()
	if conn == nil {
		return puppet.ErrNotStarted
	}

	mbox, err := conn.Select(p.cfg.Mailbox, true)
	if err != nil {
		return fmt.Errorf("selecting %s: %w", p.cfg.Mailbox, err)
	}
	if mbox.Messages <= seen {
		return nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddRange(seen+1, mbox.Messages)

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- conn.Fetch(seqset, []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid}, messages)
	}()

	var ids []string
	for msg := range messages {
		if msg.Envelope == nil {
			continue
		}
		m := p.record(msg)
		ids = append(ids, m.ID)
	}
	if err := <-done; err != nil {
		return fmt.Errorf("fetching messages: %w", err)
	}

	p.mu.Lock()
	p.seen = mbox.Messages
	handler := p.handler
	p.mu.Unlock()

	if handler != nil {
		for _, id := range ids {
			handler(id)
		}
	}
	return nil
}

// record converts a fetched mail into a message payload and learns the
// sender as a contact.
func (p *Puppet) record(msg *imap.Message) *puppet.MessagePayload {
	env := msg.Envelope

	from := "unknown"
	name := ""
	if len(env.From) > 0 {
		from = env.From[0].Address()
		name = env.From[0].PersonalName
	}
	if name == "" {
		name = from
	}

	m := &puppet.MessagePayload{
		ID:         uuid.New().String(),
		TalkerID:   from,
		ListenerID: p.cfg.Username,
		Type:       puppet.MessageTypeText,
		Text:       env.Subject,
		Timestamp:  env.Date,
	}

	p.mu.Lock()
	p.messages[m.ID] = m
	p.order = append(p.order, m.ID)
	p.contacts[from] = &puppet.ContactPayload{ID: from, Name: name}
	p.mu.Unlock()

	p.log.Debug().Str("from", from).Str("subject", env.Subject).Msg("mail received")
	return m
}

// --- message operations ---

// MessageSearch matches subjects by substring, oldest first.
func (p *Puppet) MessageSearch(ctx context.Context, query string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var ids []string
	for _, id := range p.order {
		if query == "" || strings.Contains(p.messages[id].Text, query) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (p *Puppet) MessagePayload(ctx context.Context, messageID string) (*puppet.MessagePayload, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.messages[messageID]
	if !ok {
		return nil, fmt.Errorf("message %s: %w", messageID, puppet.ErrNotFound)
	}
	cp := *m
	return &cp, nil
}

func (p *Puppet) MessageSendText(ctx context.Context, conversationID, text string, mentionIDs []string) (string, error) {
	return "", fmt.Errorf("mail puppet is read-only: %w", puppet.ErrUnsupported)
}

func (p *Puppet) MessageSendContact(ctx context.Context, conversationID, contactID string) (string, error) {
	return "", fmt.Errorf("mail puppet is read-only: %w", puppet.ErrUnsupported)
}

func (p *Puppet) MessageSendFile(ctx context.Context, conversationID string, file *puppet.FileBox) (string, error) {
	return "", fmt.Errorf("mail puppet is read-only: %w", puppet.ErrUnsupported)
}

func (p *Puppet) MessageSendURL(ctx context.Context, conversationID string, link *puppet.URLLinkPayload) (string, error) {
	return "", fmt.Errorf("mail puppet is read-only: %w", puppet.ErrUnsupported)
}

func (p *Puppet) MessageSendMiniProgram(ctx context.Context, conversationID string, app *puppet.MiniProgramPayload) (string, error) {
	return "", fmt.Errorf("mail puppet is read-only: %w", puppet.ErrUnsupported)
}

func (p *Puppet) MessageSendLocation(ctx context.Context, conversationID string, location *puppet.LocationPayload) (string, error) {
	return "", fmt.Errorf("mail puppet is read-only: %w", puppet.ErrUnsupported)
}

func (p *Puppet) MessageForward(ctx context.Context, conversationID, messageID string) (string, error) {
	return "", fmt.Errorf("mail puppet is read-only: %w", puppet.ErrUnsupported)
}

func (p *Puppet) MessageRecall(ctx context.Context, messageID string) (bool, error) {
	return false, fmt.Errorf("mail puppet is read-only: %w", puppet.ErrUnsupported)
}

func (p *Puppet) MessageFile(ctx context.Context, messageID string) (*puppet.FileBox, error) {
	return nil, fmt.Errorf("mail has no file payloads: %w", puppet.ErrUnsupported)
}

func (p *Puppet) MessageContact(ctx context.Context, messageID string) (string, error) {
	return "", fmt.Errorf("mail has no contact cards: %w", puppet.ErrUnsupported)
}

func (p *Puppet) MessageURL(ctx context.Context, messageID string) (*puppet.URLLinkPayload, error) {
	return nil, fmt.Errorf("mail has no url payloads: %w", puppet.ErrUnsupported)
}

func (p *Puppet) MessageMiniProgram(ctx context.Context, messageID string) (*puppet.MiniProgramPayload, error) {
	return nil, fmt.Errorf("mail has no mini-program payloads: %w", puppet.ErrUnsupported)
}

func (p *Puppet) MessageLocation(ctx context.Context, messageID string) (*puppet.LocationPayload, error) {
	return nil, fmt.Errorf("mail has no location payloads: %w", puppet.ErrUnsupported)
}

// ContactPayload resolves senders learned from envelopes. The session
// identity always resolves.
func (p *Puppet) ContactPayload(ctx context.Context, contactID string) (*puppet.ContactPayload, error) {
	if contactID == p.cfg.Username {
		return &puppet.ContactPayload{ID: contactID, Name: contactID}, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.contacts[contactID]
	if !ok {
		return nil, fmt.Errorf("contact %s: %w", contactID, puppet.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (p *Puppet) RoomPayload(ctx context.Context, roomID string) (*puppet.RoomPayload, error) {
	return nil, fmt.Errorf("mail has no rooms: %w", puppet.ErrUnsupported)
}

func (p *Puppet) RoomMembers(ctx context.Context, roomID string) ([]string, error) {
	return nil, fmt.Errorf("mail has no rooms: %w", puppet.ErrUnsupported)
}
