/*
Package handler provides HTTP handler functions for account registration and login.
*/
package handler

import (
	"errors"
	"net/http"
	"strings"

	"itamchat/internal/app/store"
	"itamchat/internal/app/user"
	"itamchat/internal/pkg/auth/jwt"
	"itamchat/internal/pkg/errs"
	"itamchat/internal/pkg/logx"
	"itamchat/internal/pkg/req"
	"itamchat/internal/pkg/resp"
)

type RegisterInput struct {
	Email     string  `json:"email" validate:"required,email,max=255"`
	Username  string  `json:"username" validate:"required,min=3,max=50"`
	Password  string  `json:"password" validate:"required,min=8,max=256"`
	FirstName *string `json:"first_name,omitempty" validate:"omitempty,max=100"`
	LastName  *string `json:"last_name,omitempty" validate:"omitempty,max=100"`
	Avatar    *string `json:"avatar,omitempty" validate:"omitempty,max=2048"`
}

// HandleRegister creates an account with a unique email and username and returns its public view.
func HandleRegister(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input RegisterInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		hashedPassword, err := user.HashPassword(input.Password)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
			return
		}

		created, err := deps.Store.CreateUser(r.Context(), store.NewUser{
			Email:        strings.TrimSpace(input.Email),
			Username:     strings.TrimSpace(input.Username),
			PasswordHash: hashedPassword,
			FirstName:    input.FirstName,
			LastName:     input.LastName,
			Avatar:       input.Avatar,
		})
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				logx.Warn("registration conflict: email or username already exists", "username", input.Username)
				resp.RespondError(w, r, errs.NewError(errs.ErrUserAlreadyExists))
				return
			}

			resp.RespondError(w, r, errs.NewError(errs.ErrPersistenceFailed, err))
			return
		}

		logx.Info("User registered", "user_id", created.ID.String())
		resp.RespondCreated(w, r, created.Public())
	}
}

type LoginInput struct {
	UsernameOrEmail string `json:"username_or_email" validate:"required,max=255"`
	Password        string `json:"password" validate:"required,max=256"`
}

// TokenOutput is the body of a successful login.
type TokenOutput struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// HandleLogin verifies the credentials and issues a bearer token.
// Tokens issued in development mode carry no expiry.
func HandleLogin(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input LoginInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		account, err := deps.Store.GetUserByLogin(r.Context(), strings.TrimSpace(input.UsernameOrEmail))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				logx.Warn("login: unknown account", "login", input.UsernameOrEmail)
				resp.RespondError(w, r, errs.NewError(errs.ErrInvalidCredentials))
				return
			}

			resp.RespondError(w, r, errs.NewError(errs.ErrPersistenceFailed, err))
			return
		}

		if err := user.CheckPassword(account.PasswordHash, input.Password); err != nil {
			logx.Warn("login: password mismatch", "user_id", account.ID.String())
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidCredentials))
			return
		}

		token, err := jwt.GenerateToken(account.ID, deps.Config.JWTSecret, deps.Config.TokenTTL())
		if err != nil {
			logx.Error(err, "login: jwt generation failed")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, TokenOutput{AccessToken: token, TokenType: "bearer"})
	}
}
