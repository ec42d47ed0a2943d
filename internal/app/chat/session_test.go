package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"itamchat/internal/app/store"
)

// persisted returns a CreateMessage stub that echoes params as a stored message.
func persisted() func(context.Context, store.NewMessage) (*store.Message, error) {
	return func(_ context.Context, params store.NewMessage) (*store.Message, error) {
		return &store.Message{
			ID:           uuid.New(),
			ChatID:       params.ChatID,
			FromUserID:   params.FromUserID,
			TextContent:  params.TextContent,
			ImageContent: params.ImageContent,
			CreatedAt:    time.Now().UTC(),
		}, nil
	}
}

func TestSessionMessageAndSeenFanOut(t *testing.T) {
	h := newHarness(t)
	alice, bob := uuid.New(), uuid.New()
	h.members(alice, bob)

	var stored store.NewMessage
	h.store.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, params store.NewMessage) (*store.Message, error) {
			stored = params
			return persisted()(ctx, params)
		}).Times(1)

	connA := h.connect(alice)
	connB := h.connect(bob)

	send(t, connA, `{"type":"message","text_content":"hello"}`)

	var fromA, fromB store.Message
	evA := readEvent(t, connA)
	require.Equal(t, "message", evA.Type)
	require.NoError(t, json.Unmarshal(evA.Message, &fromA))

	evB := readEvent(t, connB)
	require.Equal(t, "message", evB.Type)
	require.NoError(t, json.Unmarshal(evB.Message, &fromB))

	require.Equal(t, fromA.ID, fromB.ID)
	require.Equal(t, h.chatID, fromB.ChatID)
	require.Equal(t, alice, fromB.FromUserID)
	require.NotNil(t, fromB.TextContent)
	require.Equal(t, "hello", *fromB.TextContent)
	require.Nil(t, fromB.ImageContent)
	require.Empty(t, fromB.SeenBy)

	require.Equal(t, h.chatID, stored.ChatID)
	require.Equal(t, alice, stored.FromUserID)
	require.Nil(t, stored.ImageContent)

	h.store.EXPECT().RecordSeen(gomock.Any(), h.chatID, fromB.ID, bob).Return(nil).Times(1)

	send(t, connB, `{"type":"seen","message_ids":["`+fromB.ID.String()+`"]}`)

	for _, conn := range []*websocket.Conn{connA, connB} {
		ev := readEvent(t, conn)
		require.Equal(t, "seen", ev.Type)
		require.Equal(t, bob.String(), ev.UserID)
		require.Equal(t, []string{fromB.ID.String()}, ev.MessageIDs)
	}
}

func TestSessionImageMessage(t *testing.T) {
	h := newHarness(t)
	alice := uuid.New()
	h.members(alice)

	h.store.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).DoAndReturn(persisted()).Times(1)

	conn := h.connect(alice)
	send(t, conn, `{"type":"message","image_content":"https://cdn.example/chats/x.png"}`)

	ev := readEvent(t, conn)
	require.Equal(t, "message", ev.Type)

	var msg store.Message
	require.NoError(t, json.Unmarshal(ev.Message, &msg))
	require.Nil(t, msg.TextContent)
	require.NotNil(t, msg.ImageContent)
	require.Equal(t, "https://cdn.example/chats/x.png", *msg.ImageContent)
}

func TestSessionAcceptsLongestMultiByteMessages(t *testing.T) {
	h := newHarness(t)
	alice, bob := uuid.New(), uuid.New()
	h.members(alice, bob)

	h.store.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).DoAndReturn(persisted()).Times(2)

	connA := h.connect(alice)
	connB := h.connect(bob)

	cjk := strings.Repeat("汉", MaxTextLength)
	emoji := strings.Repeat("😀", MaxTextLength)

	frames := map[string]string{
		cjk:   `{"type":"message","text_content":"` + cjk + `"}`,
		emoji: `{"type":"message","text_content":"` + strings.Repeat(`\ud83d\ude00`, MaxTextLength) + `"}`,
	}

	for text, frame := range frames {
		send(t, connA, frame)

		for _, conn := range []*websocket.Conn{connA, connB} {
			ev := readEvent(t, conn)
			require.Equal(t, "message", ev.Type)

			var msg store.Message
			require.NoError(t, json.Unmarshal(ev.Message, &msg))
			require.NotNil(t, msg.TextContent)
			require.Equal(t, text, *msg.TextContent)
		}
	}

	send(t, connA, `{"type":"message","text_content":"`+cjk+`汉"}`)
	ev := readEvent(t, connA)
	require.Equal(t, "error", ev.Type)
	require.Equal(t, ReasonTextTooLong, ev.Error)

	expectPong(t, connA)
	require.Equal(t, 2, h.hub.registry.Len(h.chatID))
}

func TestSessionMalformedFrameIsNotFatal(t *testing.T) {
	h := newHarness(t)
	alice := uuid.New()
	h.members(alice)

	conn := h.connect(alice)

	send(t, conn, `this is not json`)
	ev := readEvent(t, conn)
	require.Equal(t, "error", ev.Type)
	require.Equal(t, ReasonInvalidPayload, ev.Error)

	expectPong(t, conn)
	require.Equal(t, 1, h.hub.registry.Len(h.chatID))
}

func TestSessionRejectsInvalidEvents(t *testing.T) {
	h := newHarness(t)
	alice, bob := uuid.New(), uuid.New()
	h.members(alice, bob)

	connA := h.connect(alice)
	connB := h.connect(bob)

	tests := []struct {
		frame  string
		reason string
	}{
		{frame: `{"type":"message","text_content":""}`, reason: ReasonContentRequired},
		{frame: `{"type":"message"}`, reason: ReasonContentRequired},
		{frame: `{"type":"typing"}`, reason: ReasonUnknownEvent},
		{frame: `{"type":"message","text_content":["x"]}`, reason: ReasonInvalidPayload},
	}

	for _, tt := range tests {
		send(t, connA, tt.frame)
		ev := readEvent(t, connA)
		require.Equal(t, "error", ev.Type, tt.frame)
		require.Equal(t, tt.reason, ev.Error, tt.frame)
	}

	// errors go to the sender only
	expectPong(t, connB)
}

func TestSessionPersistenceFailureIsNotBroadcast(t *testing.T) {
	h := newHarness(t)
	alice, bob := uuid.New(), uuid.New()
	h.members(alice, bob)

	h.store.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection refused")).Times(1)

	connA := h.connect(alice)
	connB := h.connect(bob)

	send(t, connA, `{"type":"message","text_content":"lost"}`)

	ev := readEvent(t, connA)
	require.Equal(t, "error", ev.Type)
	require.Equal(t, ReasonSendFailed, ev.Error)

	expectPong(t, connB)
	expectPong(t, connA)
}

func TestSessionSeenIgnoresDuplicatesAndUnknownMessages(t *testing.T) {
	h := newHarness(t)
	alice, bob := uuid.New(), uuid.New()
	h.members(alice, bob)

	messageID := uuid.New()
	gomock.InOrder(
		h.store.EXPECT().RecordSeen(gomock.Any(), h.chatID, messageID, alice).Return(nil),
		h.store.EXPECT().RecordSeen(gomock.Any(), h.chatID, messageID, alice).Return(store.ErrAlreadySeen),
		h.store.EXPECT().RecordSeen(gomock.Any(), h.chatID, messageID, alice).Return(store.ErrNotFound),
	)

	connA := h.connect(alice)
	connB := h.connect(bob)

	frame := `{"type":"seen","message_ids":["` + messageID.String() + `"]}`
	for range 3 {
		send(t, connA, frame)

		for _, conn := range []*websocket.Conn{connA, connB} {
			ev := readEvent(t, conn)
			require.Equal(t, "seen", ev.Type)
			require.Equal(t, alice.String(), ev.UserID)
			require.Equal(t, []string{messageID.String()}, ev.MessageIDs)
		}
	}
}

func TestSessionSeenEchoesInvalidIDs(t *testing.T) {
	h := newHarness(t)
	alice := uuid.New()
	h.members(alice)

	valid := uuid.New()
	h.store.EXPECT().RecordSeen(gomock.Any(), h.chatID, valid, alice).Return(nil).Times(1)

	conn := h.connect(alice)
	send(t, conn, `{"type":"seen","message_ids":["not-a-uuid","`+valid.String()+`"]}`)

	ev := readEvent(t, conn)
	require.Equal(t, "seen", ev.Type)
	require.Equal(t, []string{"not-a-uuid", valid.String()}, ev.MessageIDs)

	send(t, conn, `{"type":"seen","message_ids":[]}`)
	ev = readEvent(t, conn)
	require.Equal(t, "seen", ev.Type)
	require.Empty(t, ev.MessageIDs)
}

func TestSessionSeenFailureSkipsOnlyFailedIDs(t *testing.T) {
	h := newHarness(t)
	alice, bob := uuid.New(), uuid.New()
	h.members(alice, bob)

	first, broken, last := uuid.New(), uuid.New(), uuid.New()
	gomock.InOrder(
		h.store.EXPECT().RecordSeen(gomock.Any(), h.chatID, first, alice).Return(nil),
		h.store.EXPECT().RecordSeen(gomock.Any(), h.chatID, broken, alice).Return(errors.New("disk I/O error")),
		h.store.EXPECT().RecordSeen(gomock.Any(), h.chatID, last, alice).Return(nil),
	)

	connA := h.connect(alice)
	connB := h.connect(bob)

	send(t, connA, `{"type":"seen","message_ids":["`+first.String()+`","`+broken.String()+`","`+last.String()+`"]}`)

	ev := readEvent(t, connA)
	require.Equal(t, "error", ev.Type)
	require.Equal(t, ReasonRecordSeenFailed, ev.Error)

	for _, conn := range []*websocket.Conn{connA, connB} {
		ev := readEvent(t, conn)
		require.Equal(t, "seen", ev.Type)
		require.Equal(t, []string{first.String(), last.String()}, ev.MessageIDs)
	}
}

func TestSessionSeenFailureIsNotBroadcast(t *testing.T) {
	h := newHarness(t)
	alice, bob := uuid.New(), uuid.New()
	h.members(alice, bob)

	h.store.EXPECT().RecordSeen(gomock.Any(), h.chatID, gomock.Any(), alice).Return(errors.New("disk I/O error")).Times(2)

	connA := h.connect(alice)
	connB := h.connect(bob)

	send(t, connA, `{"type":"seen","message_ids":["`+uuid.NewString()+`","`+uuid.NewString()+`"]}`)

	ev := readEvent(t, connA)
	require.Equal(t, "error", ev.Type)
	require.Equal(t, ReasonRecordSeenFailed, ev.Error)

	expectPong(t, connA)
	expectPong(t, connB)
}

func TestSessionDisconnectUnregisters(t *testing.T) {
	h := newHarness(t)
	alice, bob := uuid.New(), uuid.New()
	h.members(alice, bob)

	connA := h.connect(alice)
	connB := h.connect(bob)

	require.NoError(t, connA.Close())
	h.waitConnections(1)

	require.Eventually(t, func() bool { return h.wasTouched(alice) }, readTimeout, 10*time.Millisecond)
	require.False(t, h.wasTouched(bob))

	expectPong(t, connB)
}

func TestSessionCloseDuringPersistenceSuppressesBroadcast(t *testing.T) {
	h := newHarness(t)
	alice, bob := uuid.New(), uuid.New()
	h.members(alice, bob)

	started := make(chan struct{})
	returned := make(chan struct{})
	h.store.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ store.NewMessage) (*store.Message, error) {
			defer close(returned)
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}).Times(1)

	connA := h.connect(alice)
	connB := h.connect(bob)

	send(t, connA, `{"type":"message","text_content":"in flight"}`)

	select {
	case <-started:
	case <-time.After(readTimeout):
		t.Fatal("CreateMessage was not called")
	}

	require.NoError(t, connA.Close())
	h.waitConnections(1)

	select {
	case <-returned:
	case <-time.After(readTimeout):
		t.Fatal("persistence was not cancelled")
	}

	expectPong(t, connB)
}
