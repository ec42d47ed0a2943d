package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
)

// TokenIssuer identifies the issuer of the token.
const TokenIssuer = "ITAMChat-Server"

var (
	// ErrInvalidToken is returned for tokens that fail parsing, signature or time checks.
	ErrInvalidToken = errors.New("invalid or expired token")

	// ErrTokenMissingExpiry is returned for non-expiring tokens outside development mode.
	ErrTokenMissingExpiry = errors.New("token has no expiry")

	// ErrInvalidSubject is returned when the subject claim is not a user id.
	ErrInvalidSubject = errors.New("token subject is not a user id")
)

// GenerateToken signs an HS256 access token for userID.
// A non-positive ttl produces a token without `exp`.
func GenerateToken(userID uuid.UUID, secretKey string, ttl time.Duration) (string, error) {
	now := time.Now()

	payload := &Payload{
		StandardClaims: jwt.StandardClaims{
			Subject:  userID.String(),
			IssuedAt: now.Unix(),
			Issuer:   TokenIssuer,
		},
	}
	if ttl > 0 {
		payload.ExpiresAt = now.Add(ttl).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)

	return token.SignedString([]byte(secretKey))
}

// ParseToken parses and validates tokenString with secretKey.
// Expiry is enforced when present; absence of `exp` is left to the caller.
func ParseToken(tokenString string, secretKey string) (*Payload, error) {
	claims := &Payload{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secretKey), nil
	})

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// Verifier validates bearer credentials and yields the user identity they carry.
type Verifier struct {
	secretKey        string
	allowNonExpiring bool
}

// NewVerifier creates a Verifier. allowNonExpiring is set in development mode only.
func NewVerifier(secretKey string, allowNonExpiring bool) *Verifier {
	return &Verifier{secretKey: secretKey, allowNonExpiring: allowNonExpiring}
}

// Verify returns the user id carried by credential.
func (v *Verifier) Verify(credential string) (uuid.UUID, error) {
	payload, err := ParseToken(credential, v.secretKey)
	if err != nil {
		return uuid.Nil, err
	}

	if payload.ExpiresAt == 0 && !v.allowNonExpiring {
		return uuid.Nil, ErrTokenMissingExpiry
	}

	return payload.UserID()
}
