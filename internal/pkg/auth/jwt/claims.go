package jwt

import (
	"fmt"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
)

// Payload defines the claims carried by access tokens.
// The user identity travels in the standard `sub` claim. `exp` is omitted for
// tokens issued in development mode.
type Payload struct {
	jwt.StandardClaims
}

// UserID parses the subject claim as a user identifier.
func (p *Payload) UserID() (uuid.UUID, error) {
	id, err := uuid.Parse(p.Subject)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: subject %q", ErrInvalidSubject, p.Subject)
	}
	return id, nil
}
