// internal/accounts/session.go
package accounts

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"gymdesk/internal/httpjson"
)

const (
	SessionName = "gymdesk-session"

	isAuthKey = "is_authenticated"
	userIDKey = "user_id"
	userName  = "user_name"
	userEmail = "user_email"
)

// SessionUser is what is kept in the session cookie and injected into the
// request context.
type SessionUser struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name"`
}

type ctxKey string

const currentUserKey ctxKey = "currentUser"

// CurrentUser returns the signed-in owner and a found flag.
func CurrentUser(r *http.Request) (*SessionUser, bool) {
	return UserFromContext(r.Context())
}

// UserFromContext returns the owner LoadSessionUser stored in ctx.
func UserFromContext(ctx context.Context) (*SessionUser, bool) {
	u, ok := ctx.Value(currentUserKey).(*SessionUser)
	return u, ok
}

// WithUser returns ctx carrying u as the signed-in owner.
func WithUser(ctx context.Context, u *SessionUser) context.Context {
	return context.WithValue(ctx, currentUserKey, u)
}

// Sessions issues and reads signed owner session cookies.
type Sessions struct {
	store *sessions.CookieStore
	log   *zap.Logger
}

// NewSessions creates a cookie store signed with sessionKey. With secure set
// cookies are Secure and SameSite=None; otherwise SameSite=Lax so they work
// over plain http on localhost.
func NewSessions(sessionKey string, secure bool, logger *zap.Logger) (*Sessions, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sessionKey == "" {
		return nil, errors.New("session key is empty; provide at least 32 random chars")
	}
	if len(sessionKey) < 32 {
		logger.Warn("session key is short; 32+ chars recommended",
			zap.Int("length", len(sessionKey)))
	}

	store := sessions.NewCookieStore([]byte(sessionKey))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   7 * 24 * 60 * 60,
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if secure {
		store.Options.SameSite = http.SameSiteNoneMode
	}

	return &Sessions{store: store, log: logger}, nil
}

// get returns the request's session, falling back to a fresh one when the
// cookie cannot be decoded.
func (s *Sessions) get(r *http.Request) *sessions.Session {
	sess, err := s.store.Get(r, SessionName)
	if err != nil {
		var scErr securecookie.Error
		if errors.As(err, &scErr) && scErr.IsDecode() {
			s.log.Debug("session cookie invalid, using fresh session", zap.Error(err))
		} else {
			s.log.Warn("session store error, using fresh session", zap.Error(err))
		}
	}
	return sess
}

// SignIn marks the session as belonging to u.
func (s *Sessions) SignIn(w http.ResponseWriter, r *http.Request, u *User) error {
	sess := s.get(r)
	sess.Values[isAuthKey] = true
	sess.Values[userIDKey] = u.ID.String()
	sess.Values[userName] = u.Name
	sess.Values[userEmail] = u.Email
	if err := sess.Save(r, w); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// SignOut expires the session cookie.
func (s *Sessions) SignOut(w http.ResponseWriter, r *http.Request) error {
	sess := s.get(r)
	for k := range sess.Values {
		delete(sess.Values, k)
	}
	sess.Options.MaxAge = -1
	if err := sess.Save(r, w); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// LoadSessionUser injects the owner into the request context when the
// session is signed in.
func (s *Sessions) LoadSessionUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := s.get(r)
		if isAuth, _ := sess.Values[isAuthKey].(bool); isAuth {
			id, err := uuid.Parse(getString(sess, userIDKey))
			if err == nil {
				r = r.WithContext(WithUser(r.Context(), &SessionUser{
					ID:    id,
					Name:  getString(sess, userName),
					Email: getString(sess, userEmail),
				}))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSignedIn rejects requests without a signed-in owner.
func RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentUser(r); !ok {
			httpjson.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func getString(s *sessions.Session, key string) string {
	if v, ok := s.Values[key].(string); ok {
		return v
	}
	return ""
}
