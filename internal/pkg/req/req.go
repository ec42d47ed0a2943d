/*
Package req provides helpers for HTTP request parsing and data binding.

BindJSON decodes a strict JSON body and validates it against `validate` struct tags;
Pagination reads the limit/offset query parameters shared by every listing endpoint.
*/
package req

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"itamchat/internal/pkg/errs"
)

const (
	// MaxBodyBytes caps JSON request bodies.
	MaxBodyBytes int64 = 1 << 20

	// DefaultLimit is the page size used when the client sends none.
	DefaultLimit = 20

	// MaxLimit is the largest page size a client may request.
	MaxLimit = 100
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// BindJSON decodes the request body into dst and runs struct validation on it.
func BindJSON(w http.ResponseWriter, r *http.Request, dst any) *errs.CustomError {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return errs.NewError(errs.ErrUnsupportedMediaType)
	}

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}

	if decoder.More() {
		return errs.NewError(errs.ErrExtraContentInBody)
	}

	if err := validate.Struct(dst); err != nil {
		return errs.NewError(errs.ErrInvalidParams)
	}

	return nil
}

// Pagination reads `limit` (1..MaxLimit, default DefaultLimit) and `offset` (>= 0, default 0).
func Pagination(r *http.Request) (limit int, offset int, customErr *errs.CustomError) {
	query := r.URL.Query()

	limit = DefaultLimit
	if raw := query.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > MaxLimit {
			return 0, 0, errs.NewError(errs.ErrInvalidParams)
		}
		limit = v
	}

	if raw := query.Get("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return 0, 0, errs.NewError(errs.ErrInvalidParams)
		}
		offset = v
	}

	return limit, offset, nil
}
