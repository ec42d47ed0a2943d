package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"itamchat/internal/pkg/auth/jwt"
)

// CredentialFromRequest extracts the bearer credential from a handshake request.
// The `token` query parameter takes precedence over the Authorization header.
func CredentialFromRequest(r *http.Request) (string, bool) {
	if token := r.URL.Query().Get("token"); token != "" {
		return token, true
	}
	return jwt.BearerToken(r.Header.Get("Authorization"))
}

// Admit authenticates the handshake and checks that the user belongs to chatID.
// It fails with ErrUnauthenticated, ErrNotAMember or ErrPersistence; nothing is
// registered in either case.
func (h *Hub) Admit(ctx context.Context, r *http.Request, chatID uuid.UUID) (uuid.UUID, error) {
	credential, ok := CredentialFromRequest(r)
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: missing credential", ErrUnauthenticated)
	}

	userID, err := h.verifier.Verify(credential)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	member, err := h.store.IsMember(ctx, chatID, userID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: membership lookup: %v", ErrPersistence, err)
	}
	if !member {
		return uuid.Nil, ErrNotAMember
	}

	return userID, nil
}

// RejectCode maps an Admit failure to the websocket close code and reason sent to the client.
func RejectCode(err error) (int, string) {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return websocket.ClosePolicyViolation, "unauthenticated"
	case errors.Is(err, ErrNotAMember):
		return websocket.ClosePolicyViolation, "not a member of this chat"
	case errors.Is(err, ErrHubClosed):
		return websocket.CloseGoingAway, "server shutting down"
	default:
		return websocket.CloseInternalServerErr, "internal error"
	}
}

// Reject closes an upgraded connection that failed admission with the matching close frame.
func (h *Hub) Reject(conn *websocket.Conn, err error) {
	code, reason := RejectCode(err)

	h.logger.Info().Err(err).Int("close_code", code).Msg("Connection rejected.")

	msg := websocket.FormatCloseMessage(code, reason)
	if werr := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); werr != nil {
		h.logger.Debug().Err(werr).Msg("Failed to write reject close frame")
	}
	_ = conn.Close()
}
