/*
Package store is the persistence gateway for users, chats, memberships, messages and
read receipts.

Two implementations satisfy Store: Postgres (pgx pool, production) and SQLite
(modernc, development and tests). Both return the sentinel errors below so callers
never inspect driver errors.
*/
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"itamchat/internal/app/user"
)

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when a write collides with a unique constraint.
	ErrConflict = errors.New("store: conflict")

	// ErrAlreadySeen is returned by RecordSeen for a receipt that already exists.
	ErrAlreadySeen = errors.New("store: message already seen")
)

// Chat is a direct (two members) or group conversation.
type Chat struct {
	ID        uuid.UUID
	IsGroup   bool
	Name      *string
	Avatar    *string
	CreatedAt time.Time
}

// SeenReceipt records that a user has seen a message.
type SeenReceipt struct {
	UserID uuid.UUID `json:"user_id"`
	SeenAt time.Time `json:"seen_at"`
}

// Message is a persisted chat message. SeenBy is never nil.
type Message struct {
	ID           uuid.UUID     `json:"id"`
	ChatID       uuid.UUID     `json:"chat_id"`
	FromUserID   uuid.UUID     `json:"from_user_id"`
	TextContent  *string       `json:"text_content"`
	ImageContent *string       `json:"image_content"`
	CreatedAt    time.Time     `json:"created_at"`
	SeenBy       []SeenReceipt `json:"seen_by"`
}

// ChatSummary is one row of a user's chat list.
type ChatSummary struct {
	Chat        Chat
	Members     []user.User
	LastMessage *Message
}

// NewUser holds the fields of an account to create. PasswordHash is already hashed.
type NewUser struct {
	Email        string
	Username     string
	PasswordHash string
	FirstName    *string
	LastName     *string
	Avatar       *string
}

// NewMessage holds the fields of a message to create. At least one content field is set.
type NewMessage struct {
	ChatID       uuid.UUID
	FromUserID   uuid.UUID
	TextContent  *string
	ImageContent *string
}

// CreateChatParams describes a chat to create together with its members.
type CreateChatParams struct {
	IsGroup   bool
	Name      *string
	Avatar    *string
	MemberIDs []uuid.UUID
}

// Store is the full persistence contract of the service.
type Store interface {
	CreateUser(ctx context.Context, params NewUser) (*user.User, error)
	GetUser(ctx context.Context, userID uuid.UUID) (*user.User, error)
	GetUserByLogin(ctx context.Context, login string) (*user.User, error)
	SearchUsers(ctx context.Context, callerID uuid.UUID, query string, limit, offset int) ([]user.User, int, error)
	TouchLastSeen(ctx context.Context, userID uuid.UUID) error

	CreateChat(ctx context.Context, params CreateChatParams) (*Chat, error)
	FindDirectChat(ctx context.Context, a, b uuid.UUID) (*Chat, error)
	GetChat(ctx context.Context, chatID uuid.UUID) (*Chat, error)
	ListChats(ctx context.Context, userID uuid.UUID, limit, offset int) ([]ChatSummary, int, error)
	ListMembers(ctx context.Context, chatID uuid.UUID) ([]user.User, error)
	IsMember(ctx context.Context, chatID, userID uuid.UUID) (bool, error)

	CreateMessage(ctx context.Context, params NewMessage) (*Message, error)
	ListMessages(ctx context.Context, chatID uuid.UUID, limit, offset int) ([]Message, int, error)
	RecordSeen(ctx context.Context, chatID, messageID, userID uuid.UUID) error

	Close() error
}

// searchPattern escapes LIKE wildcards in query and turns it into a lowercase prefix pattern.
func searchPattern(query string) string {
	var b []rune
	for _, r := range strings.ToLower(query) {
		if r == '%' || r == '_' || r == '\\' {
			b = append(b, '\\')
		}
		b = append(b, r)
	}
	return string(b) + "%"
}
