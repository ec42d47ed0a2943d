/*
Package user contains the account model and the identity rules built on it.

It defines the stored User record, the views handed to clients (Public for chat members,
SearchResult for search hits), password hashing and the display-name rule used for
direct chats.
*/
package user

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrPasswordMismatch is returned by CheckPassword for a wrong password.
var ErrPasswordMismatch = errors.New("password does not match")

// User is a registered account as stored by the persistence layer.
type User struct {
	ID           uuid.UUID
	Email        string
	Username     string
	PasswordHash string
	FirstName    *string
	LastName     *string
	Avatar       *string
	LastSeen     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Public is the user representation visible to other members of a chat.
type Public struct {
	ID        uuid.UUID  `json:"id"`
	Email     string     `json:"email"`
	Username  string     `json:"username"`
	FirstName *string    `json:"first_name"`
	LastName  *string    `json:"last_name"`
	Avatar    *string    `json:"avatar"`
	LastSeen  *time.Time `json:"last_seen"`
}

// SearchResult is the reduced view returned by user search.
type SearchResult struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	FirstName *string   `json:"first_name"`
	LastName  *string   `json:"last_name"`
	Avatar    *string   `json:"avatar"`
}

// Public returns the member-visible view of u.
func (u *User) Public() Public {
	return Public{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Avatar:    u.Avatar,
		LastSeen:  u.LastSeen,
	}
}

// SearchResult returns the search view of u.
func (u *User) SearchResult() SearchResult {
	return SearchResult{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Avatar:    u.Avatar,
	}
}

// DisplayName is "first last" when either part is set, the username otherwise.
func (u *User) DisplayName() string {
	parts := make([]string, 0, 2)
	for _, p := range []*string{u.FirstName, u.LastName} {
		if p != nil && strings.TrimSpace(*p) != "" {
			parts = append(parts, strings.TrimSpace(*p))
		}
	}
	if len(parts) == 0 {
		return u.Username
	}
	return strings.Join(parts, " ")
}

// prehash folds the password into a fixed 44-byte string so bcrypt's 72-byte
// input limit never truncates long passwords.
func prehash(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(prehash(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares password with a hash produced by HashPassword.
func CheckPassword(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), prehash(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordMismatch
	}
	return err
}
