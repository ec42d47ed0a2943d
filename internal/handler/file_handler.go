package handler

import (
	"errors"
	"net/http"

	"itamchat/internal/app/storage"
	"itamchat/internal/pkg/errs"
	"itamchat/internal/pkg/logx"
	"itamchat/internal/pkg/req"
	"itamchat/internal/pkg/resp"
)

// multipartOverhead is the slack allowed above MaxImageSize for multipart framing.
const multipartOverhead = 64 << 10

// PresignUploadInput defines the JSON input structure for generating upload URL.
type PresignUploadInput struct {
	FileName string `json:"file_name" validate:"required,max=255"`
	MimeType string `json:"mime_type" validate:"required,max=100"`
	FileSize int64  `json:"file_size" validate:"required"`
}

// ImageUploadOutput tells the client where an image lives and what to put into image_content.
type ImageUploadOutput struct {
	UploadURL string `json:"upload_url,omitempty"`
	FileKey   string `json:"file_key"`
	ImageURL  string `json:"image_url"`
}

// HandlePresignImageUpload creates an HTTP HandlerFunc to generate a time-limited,
// pre-signed URL for uploading an image into a chat the caller belongs to.
func HandlePresignImageUpload(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.StorageService == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrFeatureDisabled))
			return
		}

		callerID, customErr := currentUserID(r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		chatID, customErr := chatIDParam(r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		var input PresignUploadInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if customErr := storage.ValidateImageSize(input.FileSize); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if customErr := storage.ValidateImageType(input.FileName, input.MimeType); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if customErr := deps.requireMember(r, chatID, callerID); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		fileKey := storage.ChatImageKey(chatID, input.FileName)

		url, err := deps.StorageService.PresignUpload(
			r.Context(),
			fileKey,
			input.MimeType,
			input.FileSize,
			storage.PresignedURLDuration,
		)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		resp.RespondSuccess(w, r, ImageUploadOutput{
			UploadURL: url,
			FileKey:   fileKey,
			ImageURL:  deps.StorageService.ImageURL(fileKey),
		})
	}
}

// HandleUploadImage accepts a multipart `file` field and stores it through the server,
// for clients that cannot PUT to the bucket directly.
func HandleUploadImage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.StorageService == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrFeatureDisabled))
			return
		}

		callerID, customErr := currentUserID(r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		chatID, customErr := chatIDParam(r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if customErr := deps.requireMember(r, chatID, callerID); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, storage.MaxImageSize+multipartOverhead)

		file, header, err := r.FormFile("file")
		if err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				resp.RespondError(w, r, errs.NewError(errs.ErrFileSizeTooLarge, storage.MaxImageSizeMB))
				return
			}
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}
		defer file.Close()

		if customErr := storage.ValidateImageSize(header.Size); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		mimeType := header.Header.Get("Content-Type")
		if customErr := storage.ValidateImageType(header.Filename, mimeType); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		fileKey := storage.ChatImageKey(chatID, header.Filename)
		if err := deps.StorageService.Upload(r.Context(), fileKey, mimeType, file); err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		logx.Info("Chat image uploaded", "chat_id", chatID.String(), "file_key", fileKey, "size", header.Size)

		resp.RespondCreated(w, r, ImageUploadOutput{
			FileKey:  fileKey,
			ImageURL: deps.StorageService.ImageURL(fileKey),
		})
	}
}

// HandleDownloadImage redirects to a pre-signed download URL for `k`, an image key
// of a chat the caller belongs to.
func HandleDownloadImage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.StorageService == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrFeatureDisabled))
			return
		}

		callerID, customErr := currentUserID(r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		fileKey := r.URL.Query().Get("k")
		chatID, err := storage.ChatIDFromKey(fileKey)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrFileKeyInvalid))
			return
		}

		if customErr := deps.requireMember(r, chatID, callerID); customErr != nil {
			if customErr.Code == errs.ErrChatNotFound {
				customErr = errs.NewError(errs.ErrFileKeyInvalid)
			}
			resp.RespondError(w, r, customErr)
			return
		}

		if _, err := deps.StorageService.Stat(r.Context(), fileKey); err != nil {
			if errors.Is(err, storage.ErrObjectNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrFileKeyInvalid))
				return
			}
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		url, err := deps.StorageService.PresignDownload(r.Context(), fileKey, storage.PresignedURLDuration)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		http.Redirect(w, r, url, http.StatusFound)
	}
}
