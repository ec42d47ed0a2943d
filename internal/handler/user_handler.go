package handler

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"

	"itamchat/internal/app/user"
	"itamchat/internal/pkg/errs"
	"itamchat/internal/pkg/req"
	"itamchat/internal/pkg/resp"
)

// maxSearchQueryLength bounds the `q` parameter of user search, in characters.
const maxSearchQueryLength = 100

// HandleSearchUsers finds other users whose username, first or last name starts with `q`.
func HandleSearchUsers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, customErr := currentUserID(r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		query := strings.TrimSpace(r.URL.Query().Get("q"))
		if query == "" || utf8.RuneCountInString(query) > maxSearchQueryLength {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		limit, offset, customErr := req.Pagination(r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		users, total, err := deps.Store.SearchUsers(r.Context(), callerID, query, limit, offset)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrPersistenceFailed, err))
			return
		}

		items := lo.Map(users, func(u user.User, _ int) user.SearchResult {
			return u.SearchResult()
		})

		resp.RespondSuccess(w, r, resp.NewPage(items, total, limit, offset))
	}
}
