package handler

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"itamchat/internal/app/storage"
	"itamchat/internal/pkg/errs"
)

func multipartImage(t *testing.T, fileName, mimeType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+fileName+`"`)
	header.Set("Content-Type", mimeType)

	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	return &body, writer.FormDataContentType()
}

func TestPresignImageUpload(t *testing.T) {
	app := newTestApp(t, true)
	alice := app.signUp("alice", "")
	bob := app.signUp("bob", "")
	carol := app.signUp("carol", "")
	chatID := app.directChat(alice, bob)
	path := "/chats/" + chatID.String() + "/images/presign"

	res, env := app.do(http.MethodPost, path, alice.Token, map[string]any{
		"file_name": "Cat.PNG",
		"mime_type": "image/png",
		"file_size": 1024,
	})
	require.Equal(t, http.StatusOK, res.StatusCode, env.Message)

	out := decodeData[ImageUploadOutput](t, env)
	require.True(t, strings.HasPrefix(out.FileKey, "chats/"+chatID.String()+"/"))
	require.True(t, strings.HasSuffix(out.FileKey, ".png"))
	require.Contains(t, out.UploadURL, "X-Amz-Signature")
	require.Equal(t, "/files?k="+url.QueryEscape(out.FileKey), out.ImageURL)

	tests := []struct {
		name  string
		token string
		body  map[string]any
		code  int
	}{
		{name: "wrong type", token: alice.Token, body: map[string]any{"file_name": "notes.txt", "mime_type": "text/plain", "file_size": 10}, code: errs.ErrFileTypeInvalid},
		{name: "extension mismatch", token: alice.Token, body: map[string]any{"file_name": "cat.jpg", "mime_type": "image/png", "file_size": 10}, code: errs.ErrFileTypeInvalid},
		{name: "too large", token: alice.Token, body: map[string]any{"file_name": "cat.png", "mime_type": "image/png", "file_size": storage.MaxImageSize + 1}, code: errs.ErrFileSizeTooLarge},
		{name: "not a member", token: carol.Token, body: map[string]any{"file_name": "cat.png", "mime_type": "image/png", "file_size": 10}, code: errs.ErrChatNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, env := app.do(http.MethodPost, path, tt.token, tt.body)
			require.Equal(t, tt.code, env.Code)
		})
	}
}

func TestUploadAndDownloadImage(t *testing.T) {
	app := newTestApp(t, true)
	alice := app.signUp("alice", "")
	bob := app.signUp("bob", "")
	carol := app.signUp("carol", "")
	chatID := app.directChat(alice, bob)

	content := []byte("\x89PNG\r\n\x1a\nfake image")
	body, contentType := multipartImage(t, "cat.png", "image/png", content)

	req, err := http.NewRequest(http.MethodPost, app.srv.URL+"/chats/"+chatID.String()+"/images", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)

	res, env := app.send(req, alice.Token)
	require.Equal(t, http.StatusCreated, res.StatusCode, env.Message)

	out := decodeData[ImageUploadOutput](t, env)
	require.Empty(t, out.UploadURL)
	require.Equal(t, content, app.storage.stored(out.FileKey))

	res, _ = app.do(http.MethodGet, out.ImageURL, bob.Token, nil)
	require.Equal(t, http.StatusFound, res.StatusCode)
	require.Equal(t, "https://bucket.test/"+out.FileKey+"?X-Amz-Signature=get", res.Header.Get("Location"))

	for _, tc := range []struct {
		token string
		key   string
	}{
		{token: carol.Token, key: out.FileKey},
		{token: bob.Token, key: "chats/" + chatID.String() + "/missing.png"},
		{token: bob.Token, key: "avatars/x.png"},
		{token: bob.Token, key: "chats/" + chatID.String() + "/../x.png"},
	} {
		res, env := app.do(http.MethodGet, "/files?k="+url.QueryEscape(tc.key), tc.token, nil)
		require.Equal(t, http.StatusNotFound, res.StatusCode, tc.key)
		require.Equal(t, errs.ErrFileKeyInvalid, env.Code, tc.key)
	}
}

func TestUploadImageRejectsBadFiles(t *testing.T) {
	app := newTestApp(t, true)
	alice := app.signUp("alice", "")
	bob := app.signUp("bob", "")
	chatID := app.directChat(alice, bob)

	tests := []struct {
		name     string
		fileName string
		mimeType string
		content  []byte
		code     int
	}{
		{name: "text file", fileName: "notes.txt", mimeType: "text/plain", content: []byte("hello"), code: errs.ErrFileTypeInvalid},
		{name: "empty", fileName: "cat.png", mimeType: "image/png", content: nil, code: errs.ErrInvalidParams},
		{name: "too large", fileName: "cat.png", mimeType: "image/png", content: bytes.Repeat([]byte{1}, storage.MaxImageSize+1), code: errs.ErrFileSizeTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType := multipartImage(t, tt.fileName, tt.mimeType, tt.content)

			req, err := http.NewRequest(http.MethodPost, app.srv.URL+"/chats/"+chatID.String()+"/images", body)
			require.NoError(t, err)
			req.Header.Set("Content-Type", contentType)

			res, env := app.send(req, alice.Token)
			require.Equal(t, http.StatusBadRequest, res.StatusCode)
			require.Equal(t, tt.code, env.Code)
		})
	}
}
