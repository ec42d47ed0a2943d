//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks
package chat

import (
	"context"

	"github.com/google/uuid"

	"itamchat/internal/app/store"
)

// Store is the slice of the persistence gateway the realtime core consumes.
// RecordSeen returns store.ErrAlreadySeen for a duplicate receipt and
// store.ErrNotFound when the message is not in the chat; both are swallowed.
type Store interface {
	IsMember(ctx context.Context, chatID, userID uuid.UUID) (bool, error)
	CreateMessage(ctx context.Context, params store.NewMessage) (*store.Message, error)
	RecordSeen(ctx context.Context, chatID, messageID, userID uuid.UUID) error
	TouchLastSeen(ctx context.Context, userID uuid.UUID) error
}

// Verifier validates a bearer credential and yields the user it identifies.
type Verifier interface {
	Verify(credential string) (uuid.UUID, error)
}
