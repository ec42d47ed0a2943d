/*
Package randx generates identifiers.

Chats, users, messages and live sessions are identified by random (v4) UUIDs drawn
from crypto/rand through google/uuid.
*/
package randx

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ID returns a new random UUID.
func ID() uuid.UUID {
	return uuid.New()
}

// ParseID parses s as a UUID, rejecting the nil UUID.
func ParseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id %q: %w", s, err)
	}
	if id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("invalid id %q: nil uuid", s)
	}
	return id, nil
}

// ObjectKey builds a storage key `<prefix>/<uuid><ext>` keeping the lowercased
// extension of fileName.
func ObjectKey(prefix string, fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	return fmt.Sprintf("%s/%s%s", strings.TrimSuffix(prefix, "/"), uuid.NewString(), ext)
}
