package workspace

import (
	"net/http"

	"github.com/gorilla/sessions"
)

const (
	// SessionName is the cookie name carrying the workspace session
	SessionName = "tariff-workspace"
	stateKey    = "workspace"
)

// Store loads and saves workspaces through a gorilla session store
type Store struct {
	sessions sessions.Store
}

// NewStore wraps a session store
func NewStore(s sessions.Store) *Store {
	return &Store{sessions: s}
}

// Load returns the request's workspace. A missing or unreadable session yields a new workspace.
func (s *Store) Load(r *http.Request) (*Workspace, error) {
	sess, err := s.sessions.Get(r, SessionName)
	if err != nil {
		return New(), nil
	}
	data, _ := sess.Values[stateKey].(string)
	ws, err := Decode(data)
	if err != nil {
		return New(), nil
	}
	return ws, nil
}

// Save stores the workspace in the request's session and writes the cookie
func (s *Store) Save(w http.ResponseWriter, r *http.Request, ws *Workspace) error {
	sess, err := s.sessions.Get(r, SessionName)
	if err != nil && sess == nil {
		return err
	}
	data, err := ws.Encode()
	if err != nil {
		return err
	}
	sess.Values[stateKey] = data
	return sess.Save(r, w)
}

// Reset discards the workspace and expires the session
func (s *Store) Reset(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.sessions.Get(r, SessionName)
	if err != nil && sess == nil {
		return err
	}
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}
