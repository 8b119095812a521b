// Package auth signs admins in against the configured credentials and
// keeps them in a signed cookie session.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"golang.org/x/crypto/bcrypt"

	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/config"
)

const (
	SessionName = "ss_session"
	RoleAdmin   = "admin"

	sessionMaxAge = 8 * time.Hour
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotConfigured      = errors.New("admin credentials are not configured")
)

// Session is what the cookie carries.
type Session struct {
	Email    string    `json:"email"`
	Role     string    `json:"role"`
	IssuedAt time.Time `json:"issued_at"`
}

func (s Session) IsAdmin() bool { return s.Role == RoleAdmin }

type Manager struct {
	store    *sessions.CookieStore
	email    string
	password string
	hash     []byte
	now      func() time.Time
}

// NewManager builds the cookie store. An empty secret is only accepted by
// config in development; a random key is used then, so sessions do not
// survive a restart.
func NewManager(admin config.Admin, secret string, secure bool) (*Manager, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = securecookie.GenerateRandomKey(32)
		if key == nil {
			return nil, errors.New("generate session key")
		}
	}
	store := sessions.NewCookieStore(key)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(sessionMaxAge / time.Second),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &Manager{
		store:    store,
		email:    strings.ToLower(strings.TrimSpace(admin.Email)),
		password: admin.Password,
		hash:     []byte(admin.PasswordHash),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Authenticate checks email and password. The bcrypt hash wins over the
// plain password when both are configured.
func (m *Manager) Authenticate(email, password string) error {
	if m.email == "" || (len(m.hash) == 0 && m.password == "") {
		return ErrNotConfigured
	}
	email = strings.ToLower(strings.TrimSpace(email))
	emailOK := subtle.ConstantTimeCompare([]byte(email), []byte(m.email)) == 1
	var passOK bool
	if len(m.hash) > 0 {
		passOK = bcrypt.CompareHashAndPassword(m.hash, []byte(password)) == nil
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(password), []byte(m.password)) == 1
	}
	if !emailOK || !passOK {
		return ErrInvalidCredentials
	}
	return nil
}

// Login authenticates and issues an admin session.
func (m *Manager) Login(w http.ResponseWriter, r *http.Request, email, password string) (Session, error) {
	if err := m.Authenticate(email, password); err != nil {
		return Session{}, err
	}
	s := Session{Email: m.email, Role: RoleAdmin, IssuedAt: m.now()}
	if err := m.Issue(w, r, s); err != nil {
		return Session{}, err
	}
	return s, nil
}

// Issue writes s into the session cookie.
func (m *Manager) Issue(w http.ResponseWriter, r *http.Request, s Session) error {
	sess, _ := m.store.Get(r, SessionName)
	sess.Values["email"] = s.Email
	sess.Values["role"] = s.Role
	sess.Values["issued_at"] = s.IssuedAt.Unix()
	if err := sess.Save(r, w); err != nil {
		return errors.Wrap(err, "save session")
	}
	return nil
}

func (m *Manager) Logout(w http.ResponseWriter, r *http.Request) error {
	sess, _ := m.store.Get(r, SessionName)
	sess.Values = map[any]any{}
	sess.Options.MaxAge = -1
	if err := sess.Save(r, w); err != nil {
		return errors.Wrap(err, "clear session")
	}
	return nil
}

// Current returns the session carried by r. Tampered, expired or empty
// cookies yield ok=false.
func (m *Manager) Current(r *http.Request) (Session, bool) {
	sess, err := m.store.Get(r, SessionName)
	if err != nil || sess.IsNew {
		return Session{}, false
	}
	email, _ := sess.Values["email"].(string)
	role, _ := sess.Values["role"].(string)
	issued, _ := sess.Values["issued_at"].(int64)
	if email == "" {
		return Session{}, false
	}
	issuedAt := time.Unix(issued, 0).UTC()
	if m.now().Sub(issuedAt) > sessionMaxAge {
		return Session{}, false
	}
	return Session{Email: email, Role: role, IssuedAt: issuedAt}, true
}
