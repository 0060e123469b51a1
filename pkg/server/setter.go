package server

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/interstate-love-song/broker/pkg/protocol"
	"github.com/interstate-love-song/broker/pkg/session"
)

// Session cookie and fallback header names. Certain PCoIP client versions
// require the exact Set-Cookie header casing, which is the Go canonical
// form, and some fail to echo cookies at all; those are keyed by the
// CLIENT-LOG-ID header they send instead.
const (
	sessionCookieName = "JSESSIONID"
	sessionHeaderName = "CLIENT-LOG-ID"
)

// SessionSetter gives the endpoint a narrow, non-owning handle on the
// per-client session: the protocol handler never learns about cookies,
// headers, or storage media.
type SessionSetter interface {
	// ID returns the session key, for locking.
	ID() string

	// Get returns the current session, or nil when there is none.
	Get(ctx context.Context) (*protocol.Session, error)

	// Set persists the session; setting nil deletes it.
	Set(ctx context.Context, sess *protocol.Session) error
}

// cookieSessionSetter keys the session by the JSESSIONID cookie and emits
// Set-Cookie whenever a session is persisted.
type cookieSessionSetter struct {
	sessions *session.Manager
	id       string
	w        http.ResponseWriter
}

func (s *cookieSessionSetter) ID() string { return s.id }

func (s *cookieSessionSetter) Get(ctx context.Context) (*protocol.Session, error) {
	return s.sessions.Load(ctx, s.id)
}

func (s *cookieSessionSetter) Set(ctx context.Context, sess *protocol.Session) error {
	if sess == nil {
		return s.sessions.Delete(ctx, s.id)
	}

	if err := s.sessions.Store(ctx, s.id, sess); err != nil {
		return err
	}

	http.SetCookie(s.w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    s.id,
		Secure:   true,
		HttpOnly: true,
	})
	return nil
}

// headerSessionSetter keys the session by the CLIENT-LOG-ID request header.
// It still emits the cookie so a client that starts echoing cookies keeps
// its session.
type headerSessionSetter struct {
	cookieSessionSetter
}

// newSessionSetter picks the session key for the request: the JSESSIONID
// cookie when the client echoes it, the CLIENT-LOG-ID header as fallback,
// and a fresh id otherwise.
func newSessionSetter(sessions *session.Manager, w http.ResponseWriter, r *http.Request) SessionSetter {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		return &cookieSessionSetter{sessions: sessions, id: cookie.Value, w: w}
	}

	if logID := r.Header.Get(sessionHeaderName); logID != "" {
		return &headerSessionSetter{cookieSessionSetter{sessions: sessions, id: logID, w: w}}
	}

	return &cookieSessionSetter{sessions: sessions, id: uuid.NewString(), w: w}
}
