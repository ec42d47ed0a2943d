package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"itamchat/internal/app/chat/mocks"
)

func TestCredentialFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		target string
		header string
		want   string
		ok     bool
	}{
		{name: "query", target: "/ws?token=q", want: "q", ok: true},
		{name: "header", target: "/ws", header: "Bearer h", want: "h", ok: true},
		{name: "lowercase scheme", target: "/ws", header: "bearer h", want: "h", ok: true},
		{name: "query wins", target: "/ws?token=q", header: "Bearer h", want: "q", ok: true},
		{name: "empty query falls back", target: "/ws?token=", header: "Bearer h", want: "h", ok: true},
		{name: "basic scheme", target: "/ws", header: "Basic h", ok: false},
		{name: "bearer without token", target: "/ws", header: "Bearer ", ok: false},
		{name: "none", target: "/ws", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			got, ok := CredentialFromRequest(r)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestRejectCode(t *testing.T) {
	tests := []struct {
		err    error
		code   int
		reason string
	}{
		{err: fmt.Errorf("%w: missing credential", ErrUnauthenticated), code: websocket.ClosePolicyViolation, reason: "unauthenticated"},
		{err: ErrNotAMember, code: websocket.ClosePolicyViolation, reason: "not a member of this chat"},
		{err: ErrHubClosed, code: websocket.CloseGoingAway, reason: "server shutting down"},
		{err: fmt.Errorf("%w: timeout", ErrPersistence), code: websocket.CloseInternalServerErr, reason: "internal error"},
		{err: ErrAlreadyRegistered, code: websocket.CloseInternalServerErr, reason: "internal error"},
	}

	for _, tt := range tests {
		code, reason := RejectCode(tt.err)
		require.Equal(t, tt.code, code, tt.err.Error())
		require.Equal(t, tt.reason, reason, tt.err.Error())
	}
}

func TestAdmitErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)
	verifier := mocks.NewMockVerifier(ctrl)
	hub := NewHub(st, verifier)

	chatID, member, stranger, broken := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	verifier.EXPECT().Verify(gomock.Any()).DoAndReturn(func(credential string) (uuid.UUID, error) {
		return uuid.Parse(credential)
	}).AnyTimes()
	st.EXPECT().IsMember(gomock.Any(), chatID, member).Return(true, nil).AnyTimes()
	st.EXPECT().IsMember(gomock.Any(), chatID, stranger).Return(false, nil).AnyTimes()
	st.EXPECT().IsMember(gomock.Any(), chatID, broken).Return(false, errors.New("pool closed")).AnyTimes()

	admit := func(target string) (uuid.UUID, error) {
		return hub.Admit(context.Background(), httptest.NewRequest(http.MethodGet, target, nil), chatID)
	}

	userID, err := admit("/ws?token=" + member.String())
	require.NoError(t, err)
	require.Equal(t, member, userID)

	_, err = admit("/ws")
	require.ErrorIs(t, err, ErrUnauthenticated)

	_, err = admit("/ws?token=garbage")
	require.ErrorIs(t, err, ErrUnauthenticated)

	_, err = admit("/ws?token=" + stranger.String())
	require.ErrorIs(t, err, ErrNotAMember)

	_, err = admit("/ws?token=" + broken.String())
	require.ErrorIs(t, err, ErrPersistence)
}

func TestHandshakeRejections(t *testing.T) {
	h := newHarness(t)
	member, stranger, broken := uuid.New(), uuid.New(), uuid.New()

	h.store.EXPECT().IsMember(gomock.Any(), h.chatID, member).Return(true, nil).AnyTimes()
	h.store.EXPECT().IsMember(gomock.Any(), h.chatID, stranger).Return(false, nil).AnyTimes()
	h.store.EXPECT().IsMember(gomock.Any(), h.chatID, broken).Return(false, errors.New("pool closed")).AnyTimes()

	tests := []struct {
		name   string
		query  string
		header http.Header
		code   int
		reason string
	}{
		{name: "no credential", code: websocket.ClosePolicyViolation, reason: "unauthenticated"},
		{name: "bad token", query: "token=garbage", code: websocket.ClosePolicyViolation, reason: "unauthenticated"},
		{name: "bad header token", header: http.Header{"Authorization": {"Bearer garbage"}}, code: websocket.ClosePolicyViolation, reason: "unauthenticated"},
		{name: "not a member", query: "token=" + stranger.String(), code: websocket.ClosePolicyViolation, reason: "not a member of this chat"},
		{name: "membership lookup fails", query: "token=" + broken.String(), code: websocket.CloseInternalServerErr, reason: "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := h.dialWith(tt.query, tt.header)

			closeErr := readClose(t, conn)
			require.Equal(t, tt.code, closeErr.Code)
			require.Equal(t, tt.reason, closeErr.Text)
			require.Equal(t, 0, h.hub.registry.Len(h.chatID))
		})
	}
}

func TestHandshakeHeaderCredential(t *testing.T) {
	h := newHarness(t)
	alice := uuid.New()
	h.members(alice)

	conn := h.dialWith("", http.Header{"Authorization": {"Bearer " + alice.String()}})
	h.waitConnections(1)
	expectPong(t, conn)
}

func TestHandshakeQueryTokenWinsOverHeader(t *testing.T) {
	h := newHarness(t)
	alice := uuid.New()
	h.members(alice)

	conn := h.dialWith("token="+alice.String(), http.Header{"Authorization": {"Bearer garbage"}})
	h.waitConnections(1)
	expectPong(t, conn)
}
