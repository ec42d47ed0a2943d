package handler

import (
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"itamchat/internal/app/store"
	"itamchat/internal/app/user"
	"itamchat/internal/pkg/errs"
	"itamchat/internal/pkg/resp"
)

func TestSearchUsers(t *testing.T) {
	app := newTestApp(t, false)
	ann := app.signUp("ann", "")
	app.signUp("annie", "")
	app.signUp("bob", "Annabel")

	res, env := app.do(http.MethodGet, "/search?q=ANN", ann.Token, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	page := decodeData[resp.Page[user.SearchResult]](t, env)
	require.Equal(t, 2, page.Total)
	require.Equal(t, 20, page.Limit)
	require.Zero(t, page.Offset)
	require.Len(t, page.Items, 2)
	require.Equal(t, "annie", page.Items[0].Username)
	require.Equal(t, "bob", page.Items[1].Username)
	require.NotContains(t, string(env.Data), "email")

	res, env = app.do(http.MethodGet, "/search?q=ann&limit=1&offset=1", ann.Token, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	page = decodeData[resp.Page[user.SearchResult]](t, env)
	require.Equal(t, 2, page.Total)
	require.Len(t, page.Items, 1)
	require.Equal(t, "bob", page.Items[0].Username)

	for _, query := range []string{"", "?q=", "?q=%20%20", "?q=" + strings.Repeat("a", 101), "?q=a&limit=0", "?q=a&limit=101", "?q=a&offset=-1"} {
		res, env := app.do(http.MethodGet, "/search"+query, ann.Token, nil)
		require.Equal(t, http.StatusBadRequest, res.StatusCode, query)
		require.Equal(t, errs.ErrInvalidParams, env.Code, query)
	}
}

func TestDirectChatLifecycle(t *testing.T) {
	app := newTestApp(t, false)
	alice := app.signUp("alice", "Alice")
	bob := app.signUp("bob", "")
	carol := app.signUp("carol", "")

	res, env := app.do(http.MethodPost, "/chats", alice.Token, map[string]any{"user_id": bob.ID})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	created := decodeData[ChatDetail](t, env)
	require.False(t, created.IsGroup)
	require.Equal(t, "bob", *created.Name)
	require.Len(t, created.Users, 2)

	// the pair already has a direct chat
	res, env = app.do(http.MethodPost, "/chats", bob.Token, map[string]any{"user_id": alice.ID})
	require.Equal(t, http.StatusOK, res.StatusCode)
	again := decodeData[ChatDetail](t, env)
	require.Equal(t, created.ID, again.ID)
	require.Equal(t, "Alice", *again.Name)

	res, env = app.do(http.MethodPost, "/chats/"+created.ID.String()+"/messages", alice.Token, map[string]any{"text_content": "hi bob"})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	sent := decodeData[store.Message](t, env)
	require.Equal(t, alice.ID, sent.FromUserID)
	require.Equal(t, "hi bob", *sent.TextContent)
	require.NotNil(t, sent.SeenBy)

	res, env = app.do(http.MethodGet, "/chats", bob.Token, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	list := decodeData[resp.Page[ChatPreview]](t, env)
	require.Equal(t, 1, list.Total)
	require.Equal(t, "Alice", list.Items[0].Name)
	require.NotNil(t, list.Items[0].LastMessage)
	require.Equal(t, sent.ID, list.Items[0].LastMessage.ID)

	res, env = app.do(http.MethodGet, "/chats/"+created.ID.String()+"?limit=10", bob.Token, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	history := decodeData[ChatWithMessages](t, env)
	require.Equal(t, created.ID, history.Chat.ID)
	require.Equal(t, 1, history.Total)
	require.Equal(t, 10, history.Limit)
	require.Len(t, history.Messages, 1)
	require.Equal(t, sent.ID, history.Messages[0].ID)
	require.Len(t, history.Chat.Users, 2)

	for _, path := range []string{"/chats/" + created.ID.String(), "/chats/" + uuid.NewString()} {
		res, env = app.do(http.MethodGet, path, carol.Token, nil)
		require.Equal(t, http.StatusNotFound, res.StatusCode)
		require.Equal(t, errs.ErrChatNotFound, env.Code)
	}

	res, env = app.do(http.MethodPost, "/chats/"+created.ID.String()+"/messages", carol.Token, map[string]any{"text_content": "let me in"})
	require.Equal(t, http.StatusNotFound, res.StatusCode)
	require.Equal(t, errs.ErrChatNotFound, env.Code)

	res, env = app.do(http.MethodGet, "/chats/not-a-uuid", carol.Token, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	require.Equal(t, errs.ErrInvalidParams, env.Code)
}

func TestCreateDirectChatErrors(t *testing.T) {
	app := newTestApp(t, false)
	alice := app.signUp("alice", "")

	tests := []struct {
		name   string
		body   map[string]any
		status int
		code   int
	}{
		{name: "no peer", body: map[string]any{}, status: http.StatusBadRequest, code: errs.ErrChatMembersInvalid},
		{name: "self", body: map[string]any{"user_id": alice.ID}, status: http.StatusBadRequest, code: errs.ErrChatMembersInvalid},
		{name: "unknown user", body: map[string]any{"user_id": uuid.New()}, status: http.StatusNotFound, code: errs.ErrUserNotFound},
		{name: "malformed id", body: map[string]any{"user_id": "nope"}, status: http.StatusBadRequest, code: errs.ErrInvalidJSONFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, env := app.do(http.MethodPost, "/chats", alice.Token, tt.body)
			require.Equal(t, tt.status, res.StatusCode)
			require.Equal(t, tt.code, env.Code)
		})
	}
}

func TestCreateGroupChat(t *testing.T) {
	app := newTestApp(t, false)
	alice := app.signUp("alice", "")
	bob := app.signUp("bob", "")
	carol := app.signUp("carol", "")

	res, env := app.do(http.MethodPost, "/chats", alice.Token, map[string]any{
		"is_group": true,
		"name":     "  Weekend  ",
		"user_ids": []uuid.UUID{bob.ID, carol.ID, bob.ID, alice.ID},
	})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	group := decodeData[ChatDetail](t, env)
	require.True(t, group.IsGroup)
	require.Equal(t, "Weekend", *group.Name)
	require.Len(t, group.Users, 3)

	res, env = app.do(http.MethodPost, "/chats", alice.Token, map[string]any{"is_group": true, "user_ids": []uuid.UUID{bob.ID}})
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	require.Equal(t, errs.ErrGroupNameRequired, env.Code)

	res, env = app.do(http.MethodPost, "/chats", alice.Token, map[string]any{"is_group": true, "name": "Solo"})
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	require.Equal(t, errs.ErrChatMembersInvalid, env.Code)

	res, env = app.do(http.MethodPost, "/chats", alice.Token, map[string]any{"is_group": true, "name": "Ghosts", "user_ids": []uuid.UUID{uuid.New()}})
	require.Equal(t, http.StatusNotFound, res.StatusCode)
	require.Equal(t, errs.ErrUserNotFound, env.Code)

	res, env = app.do(http.MethodGet, "/chats", carol.Token, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	list := decodeData[resp.Page[ChatPreview]](t, env)
	require.Len(t, list.Items, 1)
	require.Equal(t, "Weekend", list.Items[0].Name)
	require.Nil(t, list.Items[0].LastMessage)
}

func TestSendMessageValidation(t *testing.T) {
	app := newTestApp(t, false)
	alice := app.signUp("alice", "")
	bob := app.signUp("bob", "")
	chatID := app.directChat(alice, bob)
	path := "/chats/" + chatID.String() + "/messages"

	tests := []struct {
		name string
		body map[string]any
		code int
	}{
		{name: "empty", body: map[string]any{}, code: errs.ErrMessageContentRequired},
		{name: "blank strings", body: map[string]any{"text_content": "", "image_content": ""}, code: errs.ErrMessageContentRequired},
		{name: "text too long", body: map[string]any{"text_content": strings.Repeat("ы", 4001)}, code: errs.ErrMessageContentTooLong},
		{name: "image url too long", body: map[string]any{"image_content": strings.Repeat("u", 2049)}, code: errs.ErrMessageContentTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, env := app.do(http.MethodPost, path, alice.Token, tt.body)
			require.Equal(t, http.StatusBadRequest, res.StatusCode)
			require.Equal(t, tt.code, env.Code)
		})
	}

	res, env := app.do(http.MethodPost, path, alice.Token, map[string]any{"text_content": strings.Repeat("ы", 4000), "image_content": "/files?k=x"})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	msg := decodeData[store.Message](t, env)
	require.NotNil(t, msg.TextContent)
	require.NotNil(t, msg.ImageContent)
}
