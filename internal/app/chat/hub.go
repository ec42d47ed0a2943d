package chat

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"itamchat/internal/pkg/logx"
)

// Hub struct owns the realtime core: the registry of live sessions, the dispatcher
// and the collaborators sessions need.
type Hub struct {
	store      Store
	verifier   Verifier
	registry   *Registry
	dispatcher *Dispatcher

	// mu protects closed and orders wg.Add against Shutdown's wg.Wait.
	mu     sync.Mutex
	closed bool

	// wg tracks running sessions.
	wg sync.WaitGroup

	// structured logger with Hub context.
	logger zerolog.Logger
}

// NewHub constructs and returns a new Hub instance.
func NewHub(st Store, verifier Verifier) *Hub {
	registry := NewRegistry()

	return &Hub{
		store:      st,
		verifier:   verifier,
		registry:   registry,
		dispatcher: NewDispatcher(registry),
		logger:     logx.Component("Hub"),
	}
}

// Serve runs a session for an admitted connection until it ends.
func (h *Hub) Serve(conn *websocket.Conn, chatID, userID uuid.UUID) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		h.Reject(conn, ErrHubClosed)
		return ErrHubClosed
	}
	h.wg.Add(1)
	h.mu.Unlock()
	defer h.wg.Done()

	session := newSession(conn, chatID, userID, h.store, h.registry, h.dispatcher)

	if err := h.registry.Register(chatID, session); err != nil {
		if errors.Is(err, ErrRegistryClosed) {
			err = ErrHubClosed
		}
		h.Reject(conn, err)
		return err
	}

	h.logger.Info().
		Str("session_id", session.ID().String()).
		Str("chat_id", chatID.String()).
		Str("user_id", userID.String()).
		Int("chat_connections", h.registry.Len(chatID)).
		Msg("Session registered.")

	session.Run()
	return nil
}

// Broadcast fans event out to every live session of chatID.
func (h *Hub) Broadcast(chatID uuid.UUID, event OutboundEvent) int {
	return h.dispatcher.Broadcast(chatID, event)
}

// Stats returns the number of chats with live sessions and the number of sessions.
func (h *Hub) Stats() (chats int, connections int) {
	return h.registry.Stats()
}

// Shutdown refuses new sessions, closes every live one with "going away" and waits
// for them to finish or for ctx to expire.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.logger.Info().Msg("Shutting down Hub...")

	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	peers := h.registry.Drain()
	for _, peer := range peers {
		closePeer(peer, websocket.CloseGoingAway, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info().Int("closed_sessions", len(peers)).Msg("Hub shutdown complete.")
		return nil
	case <-ctx.Done():
		h.logger.Warn().Msg("Hub shutdown timed out waiting for sessions.")
		return ctx.Err()
	}
}
