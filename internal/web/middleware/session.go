package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/rollcall/internal/database"
)

const (
	sessionCookieName = "rollcall_session"
	sessionDuration   = 24 * time.Hour
	storeTimeout      = 5 * time.Second
)

// Session is an authenticated owner session
type Session struct {
	ID          string    `json:"id"`
	OwnerKey    string    `json:"owner_key"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// SessionManager handles session creation and validation. Sessions live in memory
// and are written through to store when one is configured, so they survive restarts.
type SessionManager struct {
	secret   []byte
	store    database.SessionStore
	sessions map[string]*Session
	mu       sync.RWMutex

	stopOnce sync.Once
	stop     chan struct{}
}

// NewSessionManager creates a new session manager. store may be nil.
func NewSessionManager(secret string, store database.SessionStore) *SessionManager {
	if secret == "" {
		secret = "rollcall-dev-secret-change-in-production"
	}
	return &SessionManager{
		secret:   []byte(secret),
		store:    store,
		sessions: make(map[string]*Session),
		stop:     make(chan struct{}),
	}
}

// CreateSession creates a new session for an owner
func (sm *SessionManager) CreateSession(ctx context.Context, ownerKey, displayName string) (*Session, error) {
	idBytes := make([]byte, 32)
	if _, err := rand.Read(idBytes); err != nil {
		return nil, err
	}
	now := time.Now()
	session := &Session{
		ID:          base64.URLEncoding.EncodeToString(idBytes),
		OwnerKey:    ownerKey,
		DisplayName: displayName,
		CreatedAt:   now,
		ExpiresAt:   now.Add(sessionDuration),
	}

	if sm.store != nil {
		if err := sm.store.Save(ctx, toStored(session)); err != nil {
			return nil, err
		}
	}

	sm.mu.Lock()
	sm.sessions[session.ID] = session
	sm.mu.Unlock()

	return session, nil
}

// GetSession retrieves a session by ID, falling back to the store on a cache miss
func (sm *SessionManager) GetSession(ctx context.Context, sessionID string) *Session {
	sm.mu.RLock()
	session, ok := sm.sessions[sessionID]
	sm.mu.RUnlock()

	if ok {
		if time.Now().After(session.ExpiresAt) {
			sm.DeleteSession(ctx, sessionID)
			return nil
		}
		return session
	}

	if sm.store == nil {
		return nil
	}
	stored, err := sm.store.Get(ctx, sessionID)
	if err != nil {
		slog.Warn("session lookup failed", "error", err)
		return nil
	}
	if stored == nil {
		return nil
	}
	session = fromStored(stored)

	sm.mu.Lock()
	sm.sessions[sessionID] = session
	sm.mu.Unlock()
	return session
}

// DeleteSession removes a session
func (sm *SessionManager) DeleteSession(ctx context.Context, sessionID string) {
	sm.mu.Lock()
	delete(sm.sessions, sessionID)
	sm.mu.Unlock()

	if sm.store != nil {
		if err := sm.store.Delete(ctx, sessionID); err != nil {
			slog.Warn("failed to delete session", "error", err)
		}
	}
}

// Cleanup drops expired sessions from memory and the store
func (sm *SessionManager) Cleanup(ctx context.Context) int64 {
	now := time.Now()
	var removed int64

	sm.mu.Lock()
	for id, s := range sm.sessions {
		if now.After(s.ExpiresAt) {
			delete(sm.sessions, id)
			removed++
		}
	}
	sm.mu.Unlock()

	if sm.store != nil {
		n, err := sm.store.DeleteExpired(ctx, now)
		if err != nil {
			slog.Warn("failed to delete expired sessions", "error", err)
		} else if n > removed {
			removed = n
		}
	}
	return removed
}

// StartCleanup runs Cleanup every interval until Stop is called
func (sm *SessionManager) StartCleanup(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-sm.stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
				if n := sm.Cleanup(ctx); n > 0 {
					slog.Debug("expired sessions removed", "count", n)
				}
				cancel()
			}
		}
	}()
}

// Stop ends the cleanup goroutine
func (sm *SessionManager) Stop() {
	sm.stopOnce.Do(func() { close(sm.stop) })
}

// SetSessionCookie sets the session cookie on the response
func (sm *SessionManager) SetSessionCookie(w http.ResponseWriter, session *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.ID + "." + sm.signData(session.ID),
		Path:     "/",
		HttpOnly: true,
		Secure:   false, // Set to true in production with HTTPS
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessionDuration.Seconds()),
	})
}

// ClearSessionCookie removes the session cookie
func (sm *SessionManager) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// GetSessionFromRequest extracts the session from the cookie or a bearer token
func (sm *SessionManager) GetSessionFromRequest(r *http.Request) *Session {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		if sessionID, signature, ok := strings.Cut(cookie.Value, "."); ok && sm.verifySignature(sessionID, signature) {
			if session := sm.GetSession(r.Context(), sessionID); session != nil {
				return session
			}
		}
	}

	if sessionID, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && sessionID != "" {
		if session := sm.GetSession(r.Context(), sessionID); session != nil {
			return session
		}
	}

	return nil
}

func (sm *SessionManager) signData(data string) string {
	h := hmac.New(sha256.New, sm.secret)
	h.Write([]byte(data))
	return base64.URLEncoding.EncodeToString(h.Sum(nil))
}

func (sm *SessionManager) verifySignature(data, signature string) bool {
	return hmac.Equal([]byte(signature), []byte(sm.signData(data)))
}

func toStored(s *Session) *database.StoredSession {
	return &database.StoredSession{
		ID:          s.ID,
		OwnerKey:    s.OwnerKey,
		DisplayName: s.DisplayName,
		CreatedAt:   s.CreatedAt,
		ExpiresAt:   s.ExpiresAt,
	}
}

func fromStored(s *database.StoredSession) *Session {
	return &Session{
		ID:          s.ID,
		OwnerKey:    s.OwnerKey,
		DisplayName: s.DisplayName,
		CreatedAt:   s.CreatedAt,
		ExpiresAt:   s.ExpiresAt,
	}
}

// SessionData is the JSON shape of a session returned to clients
type SessionData struct {
	SessionID   string `json:"session_id"`
	OwnerKey    string `json:"owner_key"`
	DisplayName string `json:"display_name"`
	ExpiresAt   string `json:"expires_at"`
}

// ToJSON returns the session data for JSON response
func (s *Session) ToJSON() SessionData {
	return SessionData{
		SessionID:   s.ID,
		OwnerKey:    s.OwnerKey,
		DisplayName: s.DisplayName,
		ExpiresAt:   s.ExpiresAt.Format(time.RFC3339),
	}
}

// MarshalJSON implements json.Marshaler
func (s *Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.ToJSON())
}
