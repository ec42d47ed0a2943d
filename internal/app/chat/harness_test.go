package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"itamchat/internal/app/chat/mocks"
)

const readTimeout = 2 * time.Second

// harness serves a single chat through a real Hub behind an httptest server.
// Credentials are plain user ids; the mocked verifier parses them.
type harness struct {
	t        *testing.T
	hub      *Hub
	store    *mocks.MockStore
	verifier *mocks.MockVerifier
	srv      *httptest.Server
	chatID   uuid.UUID

	mu      sync.Mutex
	touched []uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	ctrl := gomock.NewController(t)
	h := &harness{
		t:        t,
		store:    mocks.NewMockStore(ctrl),
		verifier: mocks.NewMockVerifier(ctrl),
		chatID:   uuid.New(),
	}
	h.hub = NewHub(h.store, h.verifier)

	h.verifier.EXPECT().Verify(gomock.Any()).DoAndReturn(func(credential string) (uuid.UUID, error) {
		return uuid.Parse(credential)
	}).AnyTimes()

	h.store.EXPECT().TouchLastSeen(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, userID uuid.UUID) error {
		h.mu.Lock()
		h.touched = append(h.touched, userID)
		h.mu.Unlock()
		return nil
	}).AnyTimes()

	upgrader := websocket.Upgrader{}
	h.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, admitErr := h.hub.Admit(r.Context(), r, h.chatID)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		if admitErr != nil {
			h.hub.Reject(conn, admitErr)
			return
		}

		_ = h.hub.Serve(conn, h.chatID, userID)
	}))

	// cleanups run in reverse: sessions are shut down before the server closes
	t.Cleanup(h.srv.Close)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.hub.Shutdown(ctx)
	})

	return h
}

// members makes exactly the given users members of the chat.
func (h *harness) members(userIDs ...uuid.UUID) {
	set := make(map[uuid.UUID]bool, len(userIDs))
	for _, id := range userIDs {
		set[id] = true
	}

	h.store.EXPECT().IsMember(gomock.Any(), h.chatID, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ uuid.UUID, userID uuid.UUID) (bool, error) {
			return set[userID], nil
		}).AnyTimes()
}

func (h *harness) wsURL(query string) string {
	u := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/"
	if query != "" {
		u += "?" + query
	}
	return u
}

func (h *harness) dialWith(query string, header http.Header) *websocket.Conn {
	h.t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(h.wsURL(query), header)
	require.NoError(h.t, err)
	h.t.Cleanup(func() { _ = conn.Close() })

	return conn
}

// connect dials as userID and waits until the session is registered.
func (h *harness) connect(userID uuid.UUID) *websocket.Conn {
	h.t.Helper()

	before := h.hub.registry.Len(h.chatID)
	conn := h.dialWith("token="+userID.String(), nil)
	h.waitConnections(before + 1)

	return conn
}

func (h *harness) waitConnections(n int) {
	h.t.Helper()

	require.Eventually(h.t, func() bool {
		return h.hub.registry.Len(h.chatID) == n
	}, readTimeout, 10*time.Millisecond)
}

func (h *harness) wasTouched(userID uuid.UUID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, id := range h.touched {
		if id == userID {
			return true
		}
	}
	return false
}

func send(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

type wireEvent struct {
	Type       string          `json:"type"`
	Message    json.RawMessage `json:"message"`
	UserID     string          `json:"user_id"`
	MessageIDs []string        `json:"message_ids"`
	Error      string          `json:"error"`
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readTimeout)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev wireEvent
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

// expectPong pings and requires the very next frame to be the pong.
func expectPong(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	send(t, conn, `{"type":"ping"}`)
	require.Equal(t, "pong", readEvent(t, conn).Type)
}

// readClose reads until the server closes the connection and returns the close frame.
func readClose(t *testing.T, conn *websocket.Conn) *websocket.CloseError {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readTimeout)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}

		var closeErr *websocket.CloseError
		require.ErrorAs(t, err, &closeErr)
		return closeErr
	}
}
