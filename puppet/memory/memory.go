// Package memory implements an in-process puppet backed by maps. It is the
// reference backend used by tests and the demo bot: payloads are seeded
// directly and sends append new messages instead of hitting a network.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warble-im/warble/internal/logging"
	"github.com/warble-im/warble/puppet"
)

// Puppet is an in-memory puppet.Puppet implementation.
//
// The exported error fields let tests inject failures: a non-nil SearchErr
// fails MessageSearch, SendErr fails every send/forward, and ids listed in
// FailPayloads fail MessagePayload.
type Puppet struct {
	selfID string
	log    *logging.Logger

	mu        sync.Mutex
	contacts  map[string]*puppet.ContactPayload
	rooms     map[string]*puppet.RoomPayload
	messages  map[string]*puppet.MessagePayload
	order     []string
	files     map[string]*puppet.FileBox
	urls      map[string]*puppet.URLLinkPayload
	apps      map[string]*puppet.MiniProgramPayload
	locations map[string]*puppet.LocationPayload
	cards     map[string]string
	recalled  map[string]bool

	payloadCalls map[string]int
	contactCalls map[string]int
	handler      func(messageID string)
	running      bool

	SearchErr    error
	SendErr      error
	FailPayloads map[string]bool

	// VoidSends makes send and forward operations succeed without
	// reporting a new message id, like platforms that return nothing.
	VoidSends bool
}

var _ puppet.Puppet = (*Puppet)(nil)

// New creates a memory puppet whose session identity is selfID.
func New(selfID string, log *logging.Logger) *Puppet {
	return &Puppet{
		selfID:       selfID,
		log:          log.Sub("memory"),
		contacts:     make(map[string]*puppet.ContactPayload),
		rooms:        make(map[string]*puppet.RoomPayload),
		messages:     make(map[string]*puppet.MessagePayload),
		files:        make(map[string]*puppet.FileBox),
		urls:         make(map[string]*puppet.URLLinkPayload),
		apps:         make(map[string]*puppet.MiniProgramPayload),
		locations:    make(map[string]*puppet.LocationPayload),
		cards:        make(map[string]string),
		recalled:     make(map[string]bool),
		payloadCalls: make(map[string]int),
		contactCalls: make(map[string]int),
		FailPayloads: make(map[string]bool),
	}
}

func (p *Puppet) Kind() string   { return "memory" }
func (p *Puppet) SelfID() string { return p.selfID }

// Start marks the puppet running. There is nothing to connect to.
func (p *Puppet) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = true
	return nil
}

// Stop marks the puppet stopped.
func (p *Puppet) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
	return nil
}

func (p *Puppet) OnMessage(handler func(messageID string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = handler
}

// --- seeding helpers ---

// AddContact seeds a contact payload.
func (p *Puppet) AddContact(c puppet.ContactPayload) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.contacts[c.ID] = &c
}

// AddRoom seeds a room payload.
func (p *Puppet) AddRoom(r puppet.RoomPayload) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rooms[r.ID] = &r
}

// AddMessage seeds a message payload, filling id and timestamp when absent,
// and returns the id.
func (p *Puppet) AddMessage(m puppet.MessagePayload) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addMessageLocked(m)
}

func (p *Puppet) addMessageLocked(m puppet.MessagePayload) string {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.Type == "" {
		m.Type = puppet.MessageTypeText
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	p.messages[m.ID] = &m
	p.order = append(p.order, m.ID)
	return m.ID
}

// SetFile seeds the file payload for a message id.
func (p *Puppet) SetFile(messageID string, f puppet.FileBox) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.files[messageID] = &f
}

// SetURL seeds the url-link payload for a message id.
func (p *Puppet) SetURL(messageID string, u puppet.URLLinkPayload) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.urls[messageID] = &u
}

// SetMiniProgram seeds the mini-program payload for a message id.
func (p *Puppet) SetMiniProgram(messageID string, m puppet.MiniProgramPayload) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.apps[messageID] = &m
}

// SetLocation seeds the location payload for a message id.
func (p *Puppet) SetLocation(messageID string, l puppet.LocationPayload) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.locations[messageID] = &l
}

// SetCard seeds the shared-contact id for a contact-card message.
func (p *Puppet) SetCard(messageID, contactID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cards[messageID] = contactID
}

// Inject stores an inbound message and fires the registered handler,
// simulating the platform delivering a message.
func (p *Puppet) Inject(m puppet.MessagePayload) string {
	p.mu.Lock()
	id := p.addMessageLocked(m)
	handler := p.handler
	p.mu.Unlock()

	if handler != nil {
		handler(id)
	}
	return id
}

// PayloadCalls reports how many times MessagePayload was called for id.
func (p *Puppet) PayloadCalls(messageID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.payloadCalls[messageID]
}

// ContactCalls reports how many times ContactPayload was called for id.
func (p *Puppet) ContactCalls(contactID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.contactCalls[contactID]
}

// --- puppet.Puppet message operations ---

// MessageSearch returns ids of messages whose text contains the query,
// in insertion order. An empty query matches everything.
func (p *Puppet) MessageSearch(ctx context.Context, query string) ([]string, error) {
	if p.SearchErr != nil {
		return nil, p.SearchErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	var ids []string
	for _, id := range p.order {
		m := p.messages[id]
		if query == "" || strings.Contains(m.Text, query) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (p *Puppet) MessagePayload(ctx context.Context, messageID string) (*puppet.MessagePayload, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloadCalls[messageID]++
	if p.FailPayloads[messageID] {
		return nil, fmt.Errorf("payload %s: %w", messageID, puppet.ErrNotFound)
	}
	m, ok := p.messages[messageID]
	if !ok {
		return nil, fmt.Errorf("message %s: %w", messageID, puppet.ErrNotFound)
	}
	cp := *m
	return &cp, nil
}

func (p *Puppet) MessageSendText(ctx context.Context, conversationID, text string, mentionIDs []string) (string, error) {
	return p.send(conversationID, puppet.MessagePayload{
		Type:       puppet.MessageTypeText,
		Text:       text,
		MentionIDs: mentionIDs,
	})
}

func (p *Puppet) MessageSendContact(ctx context.Context, conversationID, contactID string) (string, error) {
	id, err := p.send(conversationID, puppet.MessagePayload{Type: puppet.MessageTypeContactCard})
	if err != nil || id == "" {
		return id, err
	}
	p.SetCard(id, contactID)
	return id, nil
}

func (p *Puppet) MessageSendFile(ctx context.Context, conversationID string, file *puppet.FileBox) (string, error) {
	id, err := p.send(conversationID, puppet.MessagePayload{Type: puppet.MessageTypeAttachment, Text: file.Name})
	if err != nil || id == "" {
		return id, err
	}
	p.SetFile(id, *file)
	return id, nil
}

func (p *Puppet) MessageSendURL(ctx context.Context, conversationID string, link *puppet.URLLinkPayload) (string, error) {
	id, err := p.send(conversationID, puppet.MessagePayload{Type: puppet.MessageTypeURLLink, Text: link.URL})
	if err != nil || id == "" {
		return id, err
	}
	p.SetURL(id, *link)
	return id, nil
}

func (p *Puppet) MessageSendMiniProgram(ctx context.Context, conversationID string, app *puppet.MiniProgramPayload) (string, error) {
	id, err := p.send(conversationID, puppet.MessagePayload{Type: puppet.MessageTypeMiniProgram, Text: app.Title})
	if err != nil || id == "" {
		return id, err
	}
	p.SetMiniProgram(id, *app)
	return id, nil
}

func (p *Puppet) MessageSendLocation(ctx context.Context, conversationID string, location *puppet.LocationPayload) (string, error) {
	id, err := p.send(conversationID, puppet.MessagePayload{Type: puppet.MessageTypeLocation, Text: location.Name})
	if err != nil || id == "" {
		return id, err
	}
	p.SetLocation(id, *location)
	return id, nil
}

// MessageForward copies the source message into the target conversation.
func (p *Puppet) MessageForward(ctx context.Context, conversationID, messageID string) (string, error) {
	if p.SendErr != nil {
		return "", p.SendErr
	}
	p.mu.Lock()
	src, ok := p.messages[messageID]
	p.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("forward source %s: %w", messageID, puppet.ErrNotFound)
	}
	return p.send(conversationID, puppet.MessagePayload{
		Type: src.Type,
		Text: src.Text,
	})
}

func (p *Puppet) MessageRecall(ctx context.Context, messageID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.messages[messageID]; !ok {
		return false, nil
	}
	p.recalled[messageID] = true
	return true, nil
}

func (p *Puppet) MessageFile(ctx context.Context, messageID string) (*puppet.FileBox, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.files[messageID]
	if !ok {
		return nil, fmt.Errorf("file for %s: %w", messageID, puppet.ErrNotFound)
	}
	cp := *f
	return &cp, nil
}

func (p *Puppet) MessageContact(ctx context.Context, messageID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.cards[messageID]
	if !ok {
		return "", fmt.Errorf("card for %s: %w", messageID, puppet.ErrNotFound)
	}
	return c, nil
}

func (p *Puppet) MessageURL(ctx context.Context, messageID string) (*puppet.URLLinkPayload, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.urls[messageID]
	if !ok {
		return nil, fmt.Errorf("url for %s: %w", messageID, puppet.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (p *Puppet) MessageMiniProgram(ctx context.Context, messageID string) (*puppet.MiniProgramPayload, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.apps[messageID]
	if !ok {
		return nil, fmt.Errorf("mini-program for %s: %w", messageID, puppet.ErrNotFound)
	}
	cp := *m
	return &cp, nil
}

func (p *Puppet) MessageLocation(ctx context.Context, messageID string) (*puppet.LocationPayload, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locations[messageID]
	if !ok {
		return nil, fmt.Errorf("location for %s: %w", messageID, puppet.ErrNotFound)
	}
	cp := *l
	return &cp, nil
}

func (p *Puppet) ContactPayload(ctx context.Context, contactID string) (*puppet.ContactPayload, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.contactCalls[contactID]++
	c, ok := p.contacts[contactID]
	if !ok {
		return nil, fmt.Errorf("contact %s: %w", contactID, puppet.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (p *Puppet) RoomPayload(ctx context.Context, roomID string) (*puppet.RoomPayload, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("room %s: %w", roomID, puppet.ErrNotFound)
	}
	cp := *r
	cp.MemberIDs = append([]string(nil), r.MemberIDs...)
	return &cp, nil
}

func (p *Puppet) RoomMembers(ctx context.Context, roomID string) ([]string, error) {
	r, err := p.RoomPayload(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return r.MemberIDs, nil
}

// send appends an outbound message from the current session to the target
// conversation. Room targets are recognized by id; anything else is
// treated as an individual contact.
func (p *Puppet) send(conversationID string, m puppet.MessagePayload) (string, error) {
	if p.SendErr != nil {
		return "", p.SendErr
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	m.TalkerID = p.selfID
	if _, ok := p.rooms[conversationID]; ok {
		m.RoomID = conversationID
	} else {
		m.ListenerID = conversationID
		// Unknown targets get a stub contact so the resulting message
		// can still be hydrated.
		if _, ok := p.contacts[conversationID]; !ok {
			p.contacts[conversationID] = &puppet.ContactPayload{ID: conversationID, Name: conversationID}
		}
	}
	id := p.addMessageLocked(m)

	p.log.Debug().Str("to", conversationID).Str("type", string(m.Type)).Msg("message sent")
	if p.VoidSends {
		return "", nil
	}
	return id, nil
}
