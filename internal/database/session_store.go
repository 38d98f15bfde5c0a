package database

import (
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
)

// sealedPrefix marks session rows stored encrypted
const sealedPrefix = "sealed:"

// DBSessionStore implements gorilla/sessions.Store using the SQLite database.
// The cookie carries only the signed session ID; values live in the sessions table.
type DBSessionStore struct {
	db      *DB
	codecs  []securecookie.Codec
	options *sessions.Options
	sealer  *Sealer
}

// NewDBSessionStore creates a new database-backed session store
func NewDBSessionStore(db *DB, keyPairs ...[]byte) *DBSessionStore {
	return &DBSessionStore{
		db:     db,
		codecs: securecookie.CodecsFromPairs(keyPairs...),
		options: &sessions.Options{
			Path:     "/",
			MaxAge:   86400 * 7, // 7 days
			HttpOnly: true,
			Secure:   false, // Set to true in production with HTTPS
			SameSite: http.SameSiteLaxMode,
		},
	}
}

// SetOptions sets the session options
func (s *DBSessionStore) SetOptions(options *sessions.Options) {
	s.options = options
}

// SetSealer enables encryption of stored session values
func (s *DBSessionStore) SetSealer(sealer *Sealer) {
	s.sealer = sealer
}

// Get returns a session for the given name after adding it to the registry
func (s *DBSessionStore) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

// New creates a new session, loading stored values when the cookie names a live session.
// Unknown, expired or undecodable sessions start empty.
func (s *DBSessionStore) New(r *http.Request, name string) (*sessions.Session, error) {
	session := sessions.NewSession(s, name)
	opts := *s.options
	session.Options = &opts
	session.IsNew = true

	cookie, err := r.Cookie(name)
	if err != nil {
		return session, nil
	}

	sessionID := ""
	if err := securecookie.DecodeMulti(name, cookie.Value, &sessionID, s.codecs...); err != nil {
		return session, nil
	}

	data, err := s.loadFromDB(sessionID)
	if err != nil {
		return session, nil
	}

	// JSON yields map[string]interface{}; session.Values is keyed by interface{}
	var values map[string]interface{}
	if err := json.Unmarshal(data, &values); err != nil {
		return session, nil
	}
	for k, v := range values {
		session.Values[k] = v
	}

	session.ID = sessionID
	session.IsNew = false
	return session, nil
}

// Save persists the session to the database
func (s *DBSessionStore) Save(r *http.Request, w http.ResponseWriter, session *sessions.Session) error {
	// Delete session if MaxAge is negative
	if session.Options.MaxAge < 0 {
		if session.ID != "" {
			if err := s.deleteFromDB(session.ID); err != nil {
				return err
			}
		}
		http.SetCookie(w, sessions.NewCookie(session.Name(), "", session.Options))
		return nil
	}

	if session.ID == "" {
		session.ID = s.generateSessionID()
	}

	values := make(map[string]interface{})
	for k, v := range session.Values {
		if key, ok := k.(string); ok {
			values[key] = v
		}
	}

	data, err := json.Marshal(values)
	if err != nil {
		return err
	}

	expiresAt := time.Now().Add(time.Duration(session.Options.MaxAge) * time.Second)
	if err := s.saveToDB(session.ID, data, expiresAt); err != nil {
		return err
	}

	encoded, err := securecookie.EncodeMulti(session.Name(), session.ID, s.codecs...)
	if err != nil {
		return err
	}

	http.SetCookie(w, sessions.NewCookie(session.Name(), encoded, session.Options))
	return nil
}

// generateSessionID creates a random session identifier
func (s *DBSessionStore) generateSessionID() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		// Fallback to timestamp-based ID if crypto/rand fails
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return base64.URLEncoding.EncodeToString(b)
}

func (s *DBSessionStore) saveToDB(sessionID string, data []byte, expiresAt time.Time) error {
	stored := string(data)
	if s.sealer != nil {
		sealed, err := s.sealer.Seal(data)
		if err != nil {
			return fmt.Errorf("failed to seal session: %w", err)
		}
		stored = sealedPrefix + base64.StdEncoding.EncodeToString(sealed)
	}

	_, err := s.db.Exec(`
		INSERT INTO sessions (session_id, data, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			data = excluded.data,
			expires_at = excluded.expires_at
	`, sessionID, stored, expiresAt.UTC())
	return err
}

func (s *DBSessionStore) loadFromDB(sessionID string) ([]byte, error) {
	var data string
	var expiresAt time.Time
	err := s.db.QueryRow(`
		SELECT data, expires_at FROM sessions
		WHERE session_id = ?
	`, sessionID).Scan(&data, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session not found")
	}
	if err != nil {
		return nil, err
	}
	if !expiresAt.After(time.Now()) {
		return nil, fmt.Errorf("session expired")
	}

	if !strings.HasPrefix(data, sealedPrefix) {
		return []byte(data), nil
	}
	if s.sealer == nil {
		return nil, fmt.Errorf("session is sealed but no key is configured")
	}
	sealed, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(data, sealedPrefix))
	if err != nil {
		return nil, fmt.Errorf("failed to decode sealed session: %w", err)
	}
	return s.sealer.Open(sealed)
}

func (s *DBSessionStore) deleteFromDB(sessionID string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE session_id = ?`, sessionID)
	return err
}

// CleanupExpiredSessions removes expired sessions and returns how many were deleted
func (s *DBSessionStore) CleanupExpiredSessions() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM sessions WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
