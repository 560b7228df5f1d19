/**
 * @description
 * Admin authentication: bcrypt credential checks, HS256 session tokens carried
 * in an HTTP-only cookie, and the in-memory session table that lets logout
 * revoke a token before it expires.
 *
 * @dependencies
 * - github.com/golang-jwt/jwt/v5: token signing and validation.
 * - golang.org/x/crypto/bcrypt: password verification.
 * - github.com/google/uuid: session identifiers.
 */
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	authCookieName    = "auth_token"
	sessionCookieName = "session_id"
	tokenTTL          = 24 * time.Hour
)

var (
	errMissingToken   = errors.New("authentication required")
	errInvalidToken   = errors.New("invalid or expired token")
	errSessionRevoked = errors.New("session expired")
)

// AdminClaims are the claims carried by an admin token.
type AdminClaims struct {
	AdminID   int64  `json:"admin_id"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// AdminSession is a signed-in dashboard session.
type AdminSession struct {
	ID        string
	AdminID   int64
	Username  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// AdminSessions tracks live dashboard sessions.
type AdminSessions struct {
	mu       sync.Mutex
	sessions map[string]AdminSession
	now      func() time.Time
}

func NewAdminSessions() *AdminSessions {
	return &AdminSessions{sessions: make(map[string]AdminSession), now: time.Now}
}

// Create starts a session that lives as long as its token.
func (s *AdminSessions) Create(adminID int64, username string) AdminSession {
	now := s.now()
	session := AdminSession{
		ID:        uuid.NewString(),
		AdminID:   adminID,
		Username:  username,
		CreatedAt: now,
		ExpiresAt: now.Add(tokenTTL),
	}
	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()
	return session
}

// Valid reports whether id is a live session belonging to adminID.
func (s *AdminSessions) Valid(id string, adminID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	return ok && session.AdminID == adminID && s.now().Before(session.ExpiresAt)
}

func (s *AdminSessions) Revoke(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Sweep drops expired sessions and returns how many were removed.
func (s *AdminSessions) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for id, session := range s.sessions {
		if !now.Before(session.ExpiresAt) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// HashPassword produces the bcrypt hash stored for an admin.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (h *Handler) signToken(session AdminSession) (string, error) {
	claims := AdminClaims{
		AdminID:   session.AdminID,
		SessionID: session.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.Username,
			IssuedAt:  jwt.NewNumericDate(session.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.jwtSecret)
}

func (h *Handler) parseToken(raw string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		return h.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(h.now))
	if err != nil || !token.Valid {
		return nil, errInvalidToken
	}
	return claims, nil
}

// authenticate reads the token from the auth cookie, or a Bearer header for API clients.
func (h *Handler) authenticate(r *http.Request) (*AdminClaims, error) {
	raw := ""
	if cookie, err := r.Cookie(authCookieName); err == nil {
		raw = cookie.Value
	} else if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		raw = strings.TrimPrefix(header, "Bearer ")
	}
	if raw == "" {
		return nil, errMissingToken
	}

	claims, err := h.parseToken(raw)
	if err != nil {
		return nil, err
	}
	if !h.sessions.Valid(claims.SessionID, claims.AdminID) {
		return nil, errSessionRevoked
	}
	return claims, nil
}

func (h *Handler) setAuthCookies(w http.ResponseWriter, token string, session AdminSession) {
	for name, value := range map[string]string{authCookieName: token, sessionCookieName: session.ID} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    value,
			Path:     "/",
			Expires:  session.ExpiresAt,
			HttpOnly: true,
			Secure:   h.secureCookies,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func (h *Handler) clearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{authCookieName, sessionCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   h.secureCookies,
			SameSite: http.SameSiteLaxMode,
		})
	}
}
