/*
Package errs provides custom error types and application-level error code constants.

This file maps each error code to its CustomError template: the client-facing message
and the HTTP status used when the error is returned from a REST endpoint.
*/
package errs

import "net/http"

var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:        {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType: {Code: ErrUnsupportedMediaType, Message: "Unsupported request format.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:    {Code: ErrInvalidJSONFormat, Message: "Unsupported request format.", Status: http.StatusBadRequest},
	ErrExtraContentInBody:   {Code: ErrExtraContentInBody, Message: "Request contains unexpected data.", Status: http.StatusBadRequest},
	ErrRateLimitExceeded:    {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	// 2xxx: Chat and Content Errors
	ErrChatNotFound:           {Code: ErrChatNotFound, Message: "Chat not found", Status: http.StatusNotFound},
	ErrNotAMember:             {Code: ErrNotAMember, Message: "Not a member of this chat", Status: http.StatusForbidden},
	ErrChatMembersInvalid:     {Code: ErrChatMembersInvalid, Message: "Invalid chat members.", Status: http.StatusBadRequest},
	ErrGroupNameRequired:      {Code: ErrGroupNameRequired, Message: "Group chats need a name.", Status: http.StatusBadRequest},
	ErrMessageContentRequired: {Code: ErrMessageContentRequired, Message: "text_content or image_content is required", Status: http.StatusBadRequest},
	ErrMessageContentTooLong:  {Code: ErrMessageContentTooLong, Message: "Message is too long.", Status: http.StatusBadRequest},
	ErrFileSizeTooLarge:       {Code: ErrFileSizeTooLarge, Message: "File is too large (max %d MB).", Status: http.StatusBadRequest},
	ErrFileTypeInvalid:        {Code: ErrFileTypeInvalid, Message: "Unsupported image type.", Status: http.StatusBadRequest},
	ErrFileKeyInvalid:         {Code: ErrFileKeyInvalid, Message: "Invalid file.", Status: http.StatusNotFound},

	// 3xxx: Identity Errors
	ErrUnauthenticated:    {Code: ErrUnauthenticated, Message: "Not authenticated", Status: http.StatusUnauthorized},
	ErrInvalidCredentials: {Code: ErrInvalidCredentials, Message: "Invalid credentials", Status: http.StatusUnauthorized},
	ErrUserAlreadyExists:  {Code: ErrUserAlreadyExists, Message: "Email or username already in use", Status: http.StatusBadRequest},
	ErrUserNotFound:       {Code: ErrUserNotFound, Message: "User not found", Status: http.StatusNotFound},

	// 5xxx: Internal System Errors
	ErrUnknown:           {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrPersistenceFailed: {Code: ErrPersistenceFailed, Message: "Could not save your changes. Please try again.", Status: http.StatusInternalServerError},
	ErrFileStorageFailed: {Code: ErrFileStorageFailed, Message: "File upload failed. Please try again.", Status: http.StatusBadGateway},
	ErrFeatureDisabled:   {Code: ErrFeatureDisabled, Message: "This feature is not available.", Status: http.StatusNotImplemented},
}
