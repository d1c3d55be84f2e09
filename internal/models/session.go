package models

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Session represents an authenticated dashboard viewer. Created on login,
// removed on logout or when the TTL elapses. It is always passed explicitly;
// there is no process-wide current user.
type Session struct {
	ID        string    `json:"id"`
	Token     string    `json:"-"`
	Viewer    string    `json:"viewer"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired checks if the session TTL has elapsed
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// GenerateSessionToken creates a cryptographically random 48-char hex token
func GenerateSessionToken() (string, error) {
	bytes := make([]byte, 24)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// LoginRequest carries the delegated Graph token the viewer obtained from
// their own sign-in; the server validates it against /me to learn who they are.
type LoginRequest struct {
	GraphToken string `json:"graph_token"`
}

// LoginResponse is returned after creating a session
type LoginResponse struct {
	Token     string    `json:"token"`
	Viewer    string    `json:"viewer"`
	ExpiresAt time.Time `json:"expires_at"`
}
