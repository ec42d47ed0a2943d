package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"itamchat/internal/app/chat"
	"itamchat/internal/app/storage"
	"itamchat/internal/app/store"
	"itamchat/internal/configs"
	"itamchat/internal/pkg/auth/jwt"
	"itamchat/internal/pkg/errs"
	"itamchat/internal/pkg/randx"
)

// AppDeps carries everything the handlers need.
// StorageService is nil when object storage is not configured.
type AppDeps struct {
	Hub            *chat.Hub
	Config         *configs.AppConfig
	Store          store.Store
	StorageService storage.StorageService
	Verifier       *jwt.Verifier
}

// currentUserID returns the caller set by jwt.RequireIdentity.
func currentUserID(r *http.Request) (uuid.UUID, *errs.CustomError) {
	userID, ok := jwt.GetUserIDFromContext(r)
	if !ok {
		return uuid.Nil, errs.NewError(errs.ErrUnauthenticated)
	}
	return userID, nil
}

// chatIDParam parses the {chat_id} path parameter.
func chatIDParam(r *http.Request) (uuid.UUID, *errs.CustomError) {
	chatID, err := randx.ParseID(chi.URLParam(r, "chat_id"))
	if err != nil {
		return uuid.Nil, errs.NewError(errs.ErrInvalidParams)
	}
	return chatID, nil
}

// requireMember fails with ErrChatNotFound unless userID is a member of chatID.
// Missing and foreign chats look the same.
func (deps *AppDeps) requireMember(r *http.Request, chatID, userID uuid.UUID) *errs.CustomError {
	member, err := deps.Store.IsMember(r.Context(), chatID, userID)
	if err != nil {
		return errs.NewError(errs.ErrPersistenceFailed, err)
	}
	if !member {
		return errs.NewError(errs.ErrChatNotFound)
	}
	return nil
}
