package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/warble-im/warble/internal/logging"
	"github.com/warble-im/warble/puppet"
)

const maxFrameBytes = 4 * 1024 * 1024

// Server exposes a puppet over WebSocket. Every connected client sees the
// same backend session and receives its message events.
type Server struct {
	backend  puppet.Puppet
	token    string
	log      *logging.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*serverConn]struct{}

	httpServer *http.Server
}

type serverConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *serverConn) writeFrame(f Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(f)
}

// NewServer creates a server fronting the given backend puppet. An empty
// token disables authentication.
func NewServer(backend puppet.Puppet, token string, log *logging.Logger) *Server {
	s := &Server{
		backend: backend,
		token:   token,
		log:     log.Sub("remote-server"),
		conns:   make(map[*serverConn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	backend.OnMessage(s.broadcastMessage)
	return s
}

// Handler returns the WebSocket endpoint handler, for mounting on an
// existing mux or test server.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handleWebSocket)
}

// Start listens on addr and blocks until the context is cancelled or the
// listener fails. The caller owns the backend puppet's lifecycle.
func (s *Server) Start(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", s.Handler())

	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.log.Info().Str("addr", ln.Addr().String()).Str("backend", s.backend.Kind()).Msg("remote puppet server ready")

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down remote puppet server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.closeAll()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.conn.Close()
	}
}

// broadcastMessage fans a backend message event out to every connection.
func (s *Server) broadcastMessage(messageID string) {
	frame, err := NewEvent("message", MessageEvent{MessageID: messageID})
	if err != nil {
		s.log.Error().Err(err).Msg("encoding message event")
		return
	}

	s.mu.Lock()
	conns := make([]*serverConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		if err := c.writeFrame(frame); err != nil {
			s.log.Warn().Err(err).Msg("dropping event for stalled connection")
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	sc := &serverConn{conn: conn}
	if err := s.handshake(sc); err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("handshake failed")
		conn.Close()
		return
	}

	s.mu.Lock()
	s.conns[sc] = struct{}{}
	s.mu.Unlock()
	s.log.Debug().Str("remote", r.RemoteAddr).Msg("client connected")

	defer func() {
		s.mu.Lock()
		delete(s.conns, sc)
		s.mu.Unlock()
		conn.Close()
	}()

	s.readLoop(r.Context(), sc)
}

// handshake reads the connect request and answers with the backend identity.
func (s *Server) handshake(sc *serverConn) error {
	sc.conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	defer sc.conn.SetReadDeadline(time.Time{})

	var frame Frame
	if err := sc.conn.ReadJSON(&frame); err != nil {
		return fmt.Errorf("reading connect: %w", err)
	}
	if frame.Type != FrameTypeRequest || frame.Method != "connect" {
		sc.writeFrame(NewErrorResponse(frame.ID, ErrorShape{Code: CodeInvalidParams, Message: "expected connect request"}))
		return fmt.Errorf("expected connect request, got type=%s method=%s", frame.Type, frame.Method)
	}

	var params ConnectParams
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		sc.writeFrame(NewErrorResponse(frame.ID, ErrorShape{Code: CodeInvalidParams, Message: "invalid connect params"}))
		return fmt.Errorf("parsing connect params: %w", err)
	}
	if s.token != "" && params.Token != s.token {
		sc.writeFrame(NewErrorResponse(frame.ID, ErrorShape{Code: CodeUnauthorized, Message: "bad token"}))
		return errors.New("bad token")
	}

	hello, err := NewResponse(frame.ID, HelloOK{
		Protocol: ProtocolVersion,
		Kind:     s.backend.Kind(),
		SelfID:   s.backend.SelfID(),
	})
	if err != nil {
		return err
	}
	return sc.writeFrame(hello)
}

func (s *Server) readLoop(ctx context.Context, sc *serverConn) {
	for {
		var frame Frame
		if err := sc.conn.ReadJSON(&frame); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Msg("client closed connection")
			} else {
				s.log.Warn().Err(err).Msg("read error")
			}
			return
		}
		if frame.Type != FrameTypeRequest {
			continue
		}
		s.dispatch(ctx, sc, frame)
	}
}

// dispatch routes a request frame to the backend puppet and writes the
// response.
func (s *Server) dispatch(ctx context.Context, sc *serverConn, frame Frame) {
	payload, err := s.call(ctx, frame)
	if err != nil {
		sc.writeFrame(NewErrorResponse(frame.ID, shapeError(err)))
		return
	}
	resp, err := NewResponse(frame.ID, payload)
	if err != nil {
		sc.writeFrame(NewErrorResponse(frame.ID, ErrorShape{Code: CodeInternal, Message: err.Error()}))
		return
	}
	sc.writeFrame(resp)
}

// call invokes the backend method named by the frame and returns the
// response payload.
func (s *Server) call(ctx context.Context, frame Frame) (any, error) {
	b := s.backend
	switch frame.Method {
	case "message.search":
		var p searchParams
		if err := unmarshalParams(frame, &p); err != nil {
			return nil, err
		}
		ids, err := b.MessageSearch(ctx, p.Query)
		if err != nil {
			return nil, err
		}
		return searchResult{IDs: ids}, nil

	case "message.payload":
		var p idParams
		if err := unmarshalParams(frame, &p); err != nil {
			return nil, err
		}
		return b.MessagePayload(ctx, p.ID)

	case "message.sendText":
		var p sendTextParams
		if err := unmarshalParams(frame, &p); err != nil {
			return nil, err
		}
		id, err := b.MessageSendText(ctx, p.ConversationID, p.Text, p.MentionIDs)
		if err != nil {
			return nil, err
		}
		return sentResult{MessageID: id}, nil

	case "message.sendContact":
		var p sendContactParams
		if err := unmarshalParams(frame, &p); err != nil {
			return nil, err
		}
		id, err := b.MessageSendContact(ctx, p.ConversationID, p.ContactID)
		if err != nil {
			return nil, err
		}
		return sentResult{MessageID: id}, nil

	case "message.sendFile":
		var p sendPayloadParams
		var file puppet.FileBox
		if err := unmarshalSendPayload(frame, &p, &file); err != nil {
			return nil, err
		}
		id, err := b.MessageSendFile(ctx, p.ConversationID, &file)
		if err != nil {
			return nil, err
		}
		return sentResult{MessageID: id}, nil

	case "message.sendUrl":
		var p sendPayloadParams
		var link puppet.URLLinkPayload
		if err := unmarshalSendPayload(frame, &p, &link); err != nil {
			return nil, err
		}
		id, err := b.MessageSendURL(ctx, p.ConversationID, &link)
		if err != nil {
			return nil, err
		}
		return sentResult{MessageID: id}, nil

	case "message.sendMiniProgram":
		var p sendPayloadParams
		var app puppet.MiniProgramPayload
		if err := unmarshalSendPayload(frame, &p, &app); err != nil {
			return nil, err
		}
		id, err := b.MessageSendMiniProgram(ctx, p.ConversationID, &app)
		if err != nil {
			return nil, err
		}
		return sentResult{MessageID: id}, nil

	case "message.sendLocation":
		var p sendPayloadParams
		var loc puppet.LocationPayload
		if err := unmarshalSendPayload(frame, &p, &loc); err != nil {
			return nil, err
		}
		id, err := b.MessageSendLocation(ctx, p.ConversationID, &loc)
		if err != nil {
			return nil, err
		}
		return sentResult{MessageID: id}, nil

	case "message.forward":
		var p forwardParams
		if err := unmarshalParams(frame, &p); err != nil {
			return nil, err
		}
		id, err := b.MessageForward(ctx, p.ConversationID, p.MessageID)
		if err != nil {
			return nil, err
		}
		return sentResult{MessageID: id}, nil

	case "message.recall":
		var p idParams
		if err := unmarshalParams(frame, &p); err != nil {
			return nil, err
		}
		ok, err := b.MessageRecall(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		return recallResult{Recalled: ok}, nil

	case "message.file":
		var p idParams
		if err := unmarshalParams(frame, &p); err != nil {
			return nil, err
		}
		return b.MessageFile(ctx, p.ID)

	case "message.contact":
		var p idParams
		if err := unmarshalParams(frame, &p); err != nil {
			return nil, err
		}
		contactID, err := b.MessageContact(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		return cardResult{ContactID: contactID}, nil

	case "message.url":
		var p idParams
		if err := unmarshalParams(frame, &p); err != nil {
			return nil, err
		}
		return b.MessageURL(ctx, p.ID)

	case "message.miniProgram":
		var p idParams
		if err := unmarshalParams(frame, &p); err != nil {
			return nil, err
		}
		return b.MessageMiniProgram(ctx, p.ID)

	case "message.location":
		var p idParams
		if err := unmarshalParams(frame, &p); err != nil {
			return nil, err
		}
		return b.MessageLocation(ctx, p.ID)

	case "contact.payload":
		var p idParams
		if err := unmarshalParams(frame, &p); err != nil {
			return nil, err
		}
		return b.ContactPayload(ctx, p.ID)

	case "room.payload":
		var p idParams
		if err := unmarshalParams(frame, &p); err != nil {
			return nil, err
		}
		return b.RoomPayload(ctx, p.ID)

	case "room.members":
		var p idParams
		if err := unmarshalParams(frame, &p); err != nil {
			return nil, err
		}
		ids, err := b.RoomMembers(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		return membersResult{MemberIDs: ids}, nil

	default:
		return nil, &protocolError{code: CodeBadMethod, msg: "unknown method: " + frame.Method}
	}
}

type protocolError struct {
	code string
	msg  string
}

func (e *protocolError) Error() string { return e.msg }

func unmarshalParams(frame Frame, dst any) error {
	if err := json.Unmarshal(frame.Params, dst); err != nil {
		return &protocolError{code: CodeInvalidParams, msg: err.Error()}
	}
	return nil
}

func unmarshalSendPayload(frame Frame, p *sendPayloadParams, payload any) error {
	if err := unmarshalParams(frame, p); err != nil {
		return err
	}
	if err := json.Unmarshal(p.Payload, payload); err != nil {
		return &protocolError{code: CodeInvalidParams, msg: err.Error()}
	}
	return nil
}

// shapeError converts a backend error into the wire error format.
func shapeError(err error) ErrorShape {
	var perr *protocolError
	switch {
	case errors.As(err, &perr):
		return ErrorShape{Code: perr.code, Message: perr.msg}
	case errors.Is(err, puppet.ErrNotFound):
		return ErrorShape{Code: CodeNotFound, Message: err.Error()}
	case errors.Is(err, puppet.ErrUnsupported):
		return ErrorShape{Code: CodeUnsupported, Message: err.Error()}
	default:
		return ErrorShape{Code: CodeInternal, Message: err.Error()}
	}
}
