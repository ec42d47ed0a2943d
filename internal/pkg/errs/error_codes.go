/*
Package errs provides custom error types and application-level error code constants.

These codes identify business and system failures both inside the server and in
responses returned to clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body is not valid JSON for the endpoint.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007
)

// 2xxx: Chat and Content Errors
const (
	// ErrChatNotFound indicates that the chat does not exist or the caller is not a member.
	ErrChatNotFound = 2101

	// ErrNotAMember indicates an authenticated user tried to join a chat they do not belong to.
	ErrNotAMember = 2102

	// ErrChatMembersInvalid indicates an invalid member list when creating a chat.
	ErrChatMembersInvalid = 2103

	// ErrGroupNameRequired indicates a group chat was created without a name.
	ErrGroupNameRequired = 2104

	// ErrMessageContentRequired indicates a message carried neither text nor image.
	ErrMessageContentRequired = 2201

	// ErrMessageContentTooLong indicates the message text or image URL exceeded its limit.
	ErrMessageContentTooLong = 2202

	// ErrFileSizeTooLarge indicates an image upload exceeded the size limit.
	ErrFileSizeTooLarge = 2301

	// ErrFileTypeInvalid indicates an image upload with a disallowed type or mismatched extension.
	ErrFileTypeInvalid = 2302

	// ErrFileKeyInvalid indicates a file key outside any chat the caller can access.
	ErrFileKeyInvalid = 2303
)

// 3xxx: Identity Errors
const (
	// ErrUnauthenticated indicates a missing, malformed, invalid or expired credential.
	ErrUnauthenticated = 3001

	// ErrInvalidCredentials indicates a login with an unknown account or wrong password.
	ErrInvalidCredentials = 3002

	// ErrUserAlreadyExists indicates the email or username is already taken.
	ErrUserAlreadyExists = 3003

	// ErrUserNotFound indicates the referenced user does not exist.
	ErrUserNotFound = 3004
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrPersistenceFailed indicates the database rejected or failed an operation.
	ErrPersistenceFailed = 5001

	// ErrFileStorageFailed indicates the object storage service failed.
	ErrFileStorageFailed = 5002

	// ErrFeatureDisabled indicates the feature depends on a service that is not configured.
	ErrFeatureDisabled = 5003
)
