package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"itamchat/internal/app/store"
	"itamchat/internal/pkg/logx"
	"itamchat/internal/pkg/randx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client. Sized for the
	// longest valid message even when every character arrives as a \uXXXX\uXXXX escape.
	maxMessageSize = 12*MaxTextLength + 6*MaxImageURLLength + 1024

	// capacity of the outbound queue of a session.
	sendQueueSize = 256

	// upper bound for a single persistence call made while handling an event.
	persistTimeout = 5 * time.Second
)

// Session owns one websocket connection bound to a (chat, user) pair for its lifetime.
//
// Three goroutines cooperate: the socket reader, the event loop (Run) which handles
// one frame at a time, and the write pump which is the only writer on the connection.
type Session struct {
	id     uuid.UUID
	chatID uuid.UUID
	userID uuid.UUID

	conn       *websocket.Conn
	store      Store
	registry   *Registry
	dispatcher *Dispatcher

	// a buffered channel used to queue frames waiting to be sent to the client.
	send chan []byte

	// ctx is cancelled when the session closes; in-flight persistence derives from it.
	ctx    context.Context
	cancel context.CancelFunc

	// mu guards closed, closeCode, closeReason and the close of send.
	mu          sync.Mutex
	closed      bool
	closeCode   int
	closeReason string

	// writerDone is closed when the write pump has exited.
	writerDone chan struct{}

	logger zerolog.Logger
}

func newSession(conn *websocket.Conn, chatID, userID uuid.UUID, st Store, registry *Registry, dispatcher *Dispatcher) *Session {
	id := randx.ID()
	ctx, cancel := context.WithCancel(context.Background())

	return &Session{
		id:         id,
		chatID:     chatID,
		userID:     userID,
		conn:       conn,
		store:      st,
		registry:   registry,
		dispatcher: dispatcher,
		send:       make(chan []byte, sendQueueSize),
		ctx:        ctx,
		cancel:     cancel,
		writerDone: make(chan struct{}),
		logger: logx.Logger().With().
			Str("session_id", id.String()).
			Str("chat_id", chatID.String()).
			Str("user_id", userID.String()).
			Logger(),
	}
}

// ID returns the session identifier used in logs.
func (s *Session) ID() uuid.UUID { return s.id }

// UserID returns the authenticated user of the session.
func (s *Session) UserID() uuid.UUID { return s.userID }

// Deliver queues frame for the write pump without blocking.
func (s *Session) Deliver(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrPeerClosed
	}

	select {
	case s.send <- frame:
		return nil
	default:
		s.logger.Warn().Int("queue_len", len(s.send)).Msg("Session send queue full, dropping frame")
		return ErrSendQueueFull
	}
}

// Close closes the session with a normal closure.
func (s *Session) Close() {
	s.CloseWith(websocket.CloseNormalClosure, "")
}

// CloseWith closes the session: it stops accepting frames, cancels in-flight
// persistence and lets the write pump send a close frame with code and reason.
// Only the first call has an effect.
func (s *Session) CloseWith(code int, reason string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.closeCode = code
	s.closeReason = reason
	close(s.send)
	s.mu.Unlock()

	s.cancel()
}

// Run drives the session until the connection ends. The caller must have
// registered the session; Run unregisters it before returning.
func (s *Session) Run() {
	s.logger.Info().Msg("Session started.")

	go s.writePump()

	frames := make(chan []byte)
	go s.readPump(frames)

	for frame := range frames {
		if s.ctx.Err() != nil {
			continue
		}
		s.handleFrame(frame)
	}

	s.cleanup()
}

// readPump reads frames from the connection and hands them to the event loop one
// at a time. frames is unbuffered: the reader holds at most one frame while the
// loop is busy, and the loop never starts a frame before the previous one's
// persistence and broadcast are done. Reading ahead keeps pong handling and
// disconnect detection alive during slow persistence.
// Any read error ends the session and removes it from the registry at once, even
// while the event loop is still busy with a persistence call.
func (s *Session) readPump(frames chan<- []byte) {
	defer close(frames)
	defer func() {
		s.registry.Unregister(s.chatID, s)
		s.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)

	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Info().Err(err).Msg("Error reading frame (client close/going away)")
			}
			return
		}

		select {
		case frames <- frame:
		case <-s.ctx.Done():
			return
		}
	}
}

// cleanup runs after the event loop has stopped.
func (s *Session) cleanup() {
	s.logger.Info().Msg("Session cleanup starting.")

	s.registry.Unregister(s.chatID, s)
	s.Close()

	select {
	case <-s.writerDone:
	case <-time.After(writeWait):
		s.logger.Warn().Msg("Write pump did not finish in time.")
	}

	if err := s.conn.Close(); err != nil {
		s.logger.Debug().Err(err).Msg("Session connection close error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := s.store.TouchLastSeen(ctx, s.userID); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to update last_seen")
	}
}

// handleFrame decodes and dispatches one inbound frame.
func (s *Session) handleFrame(frame []byte) {
	event, err := DecodeInbound(frame)
	if err != nil {
		var protoErr *ProtocolError
		if errors.As(err, &protoErr) {
			s.logger.Debug().Err(err).Msg("Rejected inbound frame")
			s.reply(ErrorEvent{Reason: protoErr.Reason})
			return
		}
		s.reply(ErrorEvent{Reason: ReasonInvalidPayload})
		return
	}

	switch ev := event.(type) {
	case SendMessage:
		s.handleSendMessage(ev)
	case MarkSeen:
		s.handleMarkSeen(ev)
	case Ping:
		s.reply(Pong{})
	}
}

// handleSendMessage persists the message, then broadcasts it to the whole chat,
// the sender included. Nothing is broadcast unless the write succeeded.
func (s *Session) handleSendMessage(ev SendMessage) {
	params := store.NewMessage{ChatID: s.chatID, FromUserID: s.userID}
	if ev.Text != "" {
		params.TextContent = &ev.Text
	}
	if ev.ImageURL != "" {
		params.ImageContent = &ev.ImageURL
	}

	ctx, cancel := context.WithTimeout(s.ctx, persistTimeout)
	msg, err := s.store.CreateMessage(ctx, params)
	cancel()

	if s.ctx.Err() != nil {
		s.logger.Info().Msg("Session closed during persistence, broadcast suppressed.")
		return
	}

	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to persist message")
		s.reply(ErrorEvent{Reason: ReasonSendFailed})
		return
	}

	delivered := s.dispatcher.Broadcast(s.chatID, MessageCreated{Message: *msg})
	s.logger.Debug().Str("message_id", msg.ID.String()).Int("delivered", delivered).Msg("Message broadcast.")
}

// handleMarkSeen records a receipt per valid id and broadcasts the submitted ids.
// Duplicates and unknown messages are ignored. An id whose receipt could not be
// stored is left out of the broadcast and reported to the sender once the rest
// of the batch has been tried.
func (s *Session) handleMarkSeen(ev MarkSeen) {
	seen := make([]string, 0, len(ev.MessageIDs))
	failed := 0

	for _, raw := range ev.MessageIDs {
		messageID, err := uuid.Parse(raw)
		if err != nil {
			seen = append(seen, raw)
			continue
		}

		ctx, cancel := context.WithTimeout(s.ctx, persistTimeout)
		err = s.store.RecordSeen(ctx, s.chatID, messageID, s.userID)
		cancel()

		if s.ctx.Err() != nil {
			return
		}

		switch {
		case err == nil, errors.Is(err, store.ErrAlreadySeen), errors.Is(err, store.ErrNotFound):
			seen = append(seen, raw)
		default:
			s.logger.Error().Err(err).Str("message_id", raw).Msg("Failed to record seen")
			failed++
		}
	}

	if failed > 0 {
		s.reply(ErrorEvent{Reason: ReasonRecordSeenFailed})
		if len(seen) == 0 {
			return
		}
	}

	s.dispatcher.Broadcast(s.chatID, SeenUpdated{UserID: s.userID, MessageIDs: seen})
}

// reply sends event to this session only.
func (s *Session) reply(event OutboundEvent) {
	frame, err := Encode(event)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error marshaling reply")
		return
	}

	if err := s.Deliver(frame); err != nil {
		s.logger.Warn().Err(err).Str("event_type", string(event.Type())).Msg("Failed to queue reply")
	}
}

// writePump handles writing frames from the send channel to the WebSocket connection.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		close(s.writerDone)

		// ensure the connection is closed on exit so the reader unblocks
		if err := s.conn.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("Session connection close error in writePump")
		}
	}()

	for {
		select {
		case frame, ok := <-s.send:
			if !ok {
				s.writeCloseFrame()
				return
			}
			if !s.writeFrame(frame) {
				return
			}

		case <-ticker.C:
			if !s.writePing() {
				return
			}
		}
	}
}

// writeFrame writes one text frame. Returns false if the pump should terminate.
func (s *Session) writeFrame(frame []byte) bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		s.logger.Info().Err(err).Msg("Error writing frame")
		return false
	}

	return true
}

// writePing sends a periodic WebSocket Ping message to maintain the connection heartbeat.
func (s *Session) writePing() bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		s.logger.Info().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}

func (s *Session) writeCloseFrame() {
	s.mu.Lock()
	code, reason := s.closeCode, s.closeReason
	s.mu.Unlock()

	msg := websocket.FormatCloseMessage(code, reason)
	if err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		s.logger.Debug().Err(err).Msg("Error writing close frame")
	}
}
