/*
Package handler provides the HTTP handler function for WebSocket connection upgrading and initialization.

HandleWebSocket admits the connection (credential and membership) before upgrading; a
refused connection is still upgraded so the client receives a close frame carrying the
reason, and it never reaches the hub's registry.
*/
package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"itamchat/internal/pkg/logx"
	"itamchat/internal/pkg/resp"
)

// HandleWebSocket creates an HTTP HandlerFunc serving `GET /ws/chats/{chat_id}`.
func HandleWebSocket(upgrader websocket.Upgrader, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chatID, customErr := chatIDParam(r)
		if customErr != nil {
			logx.Warn("WebSocket request rejected: malformed chat id")
			resp.RespondError(w, r, customErr)
			return
		}

		userID, admitErr := deps.Hub.Admit(r.Context(), r, chatID)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket", "chat_id", chatID.String())
			return
		}

		if admitErr != nil {
			deps.Hub.Reject(conn, admitErr)
			return
		}

		logx.Info("WebSocket connection established", "chat_id", chatID.String(), "user_id", userID.String())

		if err := deps.Hub.Serve(conn, chatID, userID); err != nil {
			logx.Warn("WebSocket session refused", "chat_id", chatID.String(), "error", err.Error())
		}
	}
}
