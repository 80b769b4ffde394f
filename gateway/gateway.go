package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/parley/broadcast"
	"github.com/hupe1980/parley/core"
	"github.com/hupe1980/parley/engine"
	"github.com/hupe1980/parley/logging"
)

// CommandType discriminates inbound client frames.
type CommandType string

const (
	// CommandJoin subscribes the connection to a conversation's feed.
	CommandJoin CommandType = "join"
	// CommandLeave detaches the connection from a conversation's feed.
	CommandLeave CommandType = "leave"
	// CommandUserMessage injects a human message into the transcript.
	CommandUserMessage CommandType = "userMessage"
	// CommandPause suspends turn scheduling.
	CommandPause CommandType = "pause"
	// CommandResume reactivates a paused conversation.
	CommandResume CommandType = "resume"
	// CommandStop terminates the conversation.
	CommandStop CommandType = "stop"
	// CommandAddParticipant admits a registered participant mid-conversation.
	CommandAddParticipant CommandType = "addParticipant"
)

// Command is the inbound JSON frame sent by clients.
type Command struct {
	Type           CommandType `json:"type"`
	ConversationID string      `json:"conversation_id"`
	ParticipantID  string      `json:"participant_id,omitempty"`
	Sender         string      `json:"sender,omitempty"`
	Text           string      `json:"text,omitempty"`
}

// FrameType discriminates outbound server frames.
type FrameType string

const (
	// FrameSnapshot carries the transcript committed before the
	// subscription began. Sent exactly once per join, before any live
	// frame for that conversation.
	FrameSnapshot FrameType = "snapshot"
	// FrameNotification carries one live notification.
	FrameNotification FrameType = "notification"
	// FrameError reports a rejected command.
	FrameError FrameType = "error"
)

// Frame is the outbound JSON frame pushed to clients.
type Frame struct {
	Type           FrameType          `json:"type"`
	ConversationID string             `json:"conversation_id,omitempty"`
	Messages       []core.Message     `json:"messages,omitempty"`
	Notification   *core.Notification `json:"notification,omitempty"`
	Error          string             `json:"error,omitempty"`
}

// Options configures the Gateway.
type Options struct {
	// Logger defaults to NoOp.
	Logger logging.Logger

	// WriteTimeout bounds each outbound frame write.
	WriteTimeout time.Duration

	// SendBufferSize sets the per-connection outbound frame buffer. A
	// connection that cannot drain its buffer is closed rather than
	// allowed to stall the conversation feed.
	SendBufferSize int
}

// Gateway bridges websocket clients to the conversation engine. One
// connection can follow any number of conversations; commands are dispatched
// as they arrive and every rejected command produces an error frame instead
// of closing the connection.
type Gateway struct {
	engine         *engine.Engine
	logger         logging.Logger
	writeTimeout   time.Duration
	sendBufferSize int
}

// New creates a Gateway serving the given engine.
func New(e *engine.Engine, optFns ...func(o *Options)) *Gateway {
	opts := Options{
		Logger:         logging.NoOpLogger{},
		WriteTimeout:   10 * time.Second,
		SendBufferSize: 64,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Gateway{
		engine:         e,
		logger:         opts.Logger,
		writeTimeout:   opts.WriteTimeout,
		sendBufferSize: opts.SendBufferSize,
	}
}

// ServeHTTP upgrades the request to a websocket and runs the session until
// the client disconnects or the request context ends.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		g.logger.Warn("gateway: accept: %v", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "session ended")

	s := &session{
		gateway: g,
		conn:    conn,
		out:     make(chan Frame, g.sendBufferSize),
		feeds:   make(map[string]*feed),
	}
	if err := s.run(r.Context()); err != nil {
		g.logger.Debug("gateway: session closed: %v", err)
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

// feed is one active conversation subscription owned by a session.
type feed struct {
	sub    *broadcast.Subscription
	cancel context.CancelFunc
}

// session owns a single websocket connection. All writes funnel through the
// out channel so the write pump is the only goroutine touching the socket's
// write side.
type session struct {
	gateway *Gateway
	conn    *websocket.Conn
	out     chan Frame

	mu    sync.Mutex
	feeds map[string]*feed
}

func (s *session) run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return s.readPump(ctx) })
	group.Go(func() error { return s.writePump(ctx) })
	err := group.Wait()
	s.closeFeeds()
	return err
}

func (s *session) readPump(ctx context.Context) error {
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			return err
		}
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			s.send(ctx, Frame{Type: FrameError, Error: "malformed command: " + err.Error()})
			continue
		}
		s.dispatch(ctx, cmd)
	}
}

func (s *session) writePump(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-s.out:
			data, err := json.Marshal(f)
			if err != nil {
				s.gateway.logger.Error("gateway: marshal frame: %v", err)
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, s.gateway.writeTimeout)
			err = s.conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

func (s *session) dispatch(ctx context.Context, cmd Command) {
	e := s.gateway.engine
	var err error
	switch cmd.Type {
	case CommandJoin:
		s.join(ctx, cmd.ConversationID)
		return
	case CommandLeave:
		s.leave(cmd.ConversationID)
		return
	case CommandUserMessage:
		err = e.SendUserMessage(cmd.ConversationID, cmd.Sender, cmd.Text)
	case CommandPause:
		err = e.Pause(cmd.ConversationID)
	case CommandResume:
		err = e.Resume(cmd.ConversationID)
	case CommandStop:
		err = e.Stop(cmd.ConversationID)
	case CommandAddParticipant:
		err = e.AddParticipant(cmd.ConversationID, cmd.ParticipantID)
	default:
		s.send(ctx, Frame{Type: FrameError, ConversationID: cmd.ConversationID, Error: "unknown command type " + string(cmd.Type)})
		return
	}
	if err != nil {
		s.send(ctx, Frame{Type: FrameError, ConversationID: cmd.ConversationID, Error: err.Error()})
	}
}

// join subscribes to the conversation and starts a forwarder that emits the
// snapshot frame followed by live notification frames. Joining twice is a
// no-op.
func (s *session) join(ctx context.Context, conversationID string) {
	s.mu.Lock()
	if _, ok := s.feeds[conversationID]; ok {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	sub, err := s.gateway.engine.Subscribe(conversationID)
	if err != nil {
		s.send(ctx, Frame{Type: FrameError, ConversationID: conversationID, Error: err.Error()})
		return
	}

	fctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.feeds[conversationID] = &feed{sub: sub, cancel: cancel}
	s.mu.Unlock()

	go s.forward(fctx, conversationID, sub)
}

func (s *session) leave(conversationID string) {
	s.mu.Lock()
	f, ok := s.feeds[conversationID]
	if ok {
		delete(s.feeds, conversationID)
	}
	s.mu.Unlock()
	if ok {
		f.cancel()
		f.sub.Close()
	}
}

// forward pushes the snapshot, then relays live notifications until the
// subscription or the session ends. The snapshot precedes every live frame
// for the conversation because the forwarder is the only producer for it.
func (s *session) forward(ctx context.Context, conversationID string, sub *broadcast.Subscription) {
	s.send(ctx, Frame{
		Type:           FrameSnapshot,
		ConversationID: conversationID,
		Messages:       sub.Snapshot,
	})
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-sub.C:
			if !ok {
				return
			}
			s.send(ctx, Frame{
				Type:           FrameNotification,
				ConversationID: conversationID,
				Notification:   &n,
			})
		}
	}
}

// send queues a frame for the write pump, dropping it if the session is
// already tearing down.
func (s *session) send(ctx context.Context, f Frame) {
	select {
	case s.out <- f:
	case <-ctx.Done():
	}
}

func (s *session) closeFeeds() {
	s.mu.Lock()
	feeds := s.feeds
	s.feeds = make(map[string]*feed)
	s.mu.Unlock()
	for _, f := range feeds {
		f.cancel()
		f.sub.Close()
	}
}
