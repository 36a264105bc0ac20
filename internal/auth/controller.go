// Package auth manages the administrator login state.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/kalambet/feedbackdesk/internal/client"
	"github.com/kalambet/feedbackdesk/internal/events"
	"github.com/kalambet/feedbackdesk/internal/feedback"
	"github.com/kalambet/feedbackdesk/internal/session"
)

// User-facing login messages.
const (
	MsgInvalidCredentials = "Invalid username or password."
	MsgLoginUnreachable   = "Could not connect to server for login. Check backend."
)

var (
	// ErrInvalidCredentials is returned by Login when the probe is rejected.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrNotAdmin is returned by privileged operations attempted while logged out.
	ErrNotAdmin = errors.New("not logged in as admin")
)

// State is the login state.
type State int

const (
	LoggedOut State = iota
	LoggedIn
)

func (s State) String() string {
	if s == LoggedIn {
		return "logged_in"
	}
	return "logged_out"
}

// Trust records what the server has said about the current token.
type Trust int

const (
	// TrustUnknown: the token was restored from disk and not yet used.
	TrustUnknown Trust = iota
	// TrustTrusted: the server accepted the token.
	TrustTrusted
	// TrustRejected: the server refused the token; the session was dropped.
	TrustRejected
)

func (t Trust) String() string {
	switch t {
	case TrustTrusted:
		return "trusted"
	case TrustRejected:
		return "rejected"
	default:
		return "unverified"
	}
}

// Prober is the API call used to check credentials.
type Prober interface {
	ListFeedback(ctx context.Context, token string) ([]feedback.Record, error)
}

// Controller owns the session and reports admin status changes on the bus.
type Controller struct {
	api    Prober
	store  *session.Store
	bus    *events.Bus
	logger *slog.Logger

	mu         sync.RWMutex
	state      State
	sess       session.Session
	trust      Trust
	loginError string
}

// NewController creates a logged-out controller. Call Restore to pick up a
// persisted session.
func NewController(api Prober, store *session.Store, bus *events.Bus, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{api: api, store: store, bus: bus, logger: logger}
}

// Restore derives the initial state from the session store. A stored token is
// taken as a login without asking the server; Trust stays TrustUnknown until
// the first privileged call answers.
func (c *Controller) Restore() error {
	sess, ok, err := c.store.Load()
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !ok {
		c.state, c.sess, c.trust = LoggedOut, session.Session{}, TrustUnknown
		return nil
	}
	c.state, c.sess, c.trust = LoggedIn, sess, TrustUnknown
	return nil
}

// Login probes the admin-only list endpoint with a freshly encoded credential.
// On success the session is persisted and AdminChanged is published.
func (c *Controller) Login(ctx context.Context, username, password string) error {
	c.setLoginError("")
	token := session.EncodeBasic(username, password)

	_, err := c.api.ListFeedback(ctx, token)
	if err != nil {
		var se *client.ServerError
		switch {
		case errors.Is(err, client.ErrUnauthorized):
			c.setLoginError(MsgInvalidCredentials)
			return ErrInvalidCredentials
		case client.IsNetwork(err):
			c.setLoginError(MsgLoginUnreachable)
			return fmt.Errorf("login: %w", err)
		case errors.As(err, &se):
			c.setLoginError(fmt.Sprintf("Login failed: %d %s", se.Status, http.StatusText(se.Status)))
			return fmt.Errorf("login: %w", err)
		default:
			c.setLoginError("Login failed: " + err.Error())
			return fmt.Errorf("login: %w", err)
		}
	}

	sess := session.Session{Token: token, Username: username}
	if err := c.store.Save(sess); err != nil {
		return fmt.Errorf("persisting session: %w", err)
	}

	c.mu.Lock()
	c.state, c.sess, c.trust = LoggedIn, sess, TrustTrusted
	c.mu.Unlock()

	c.logger.Info("admin logged in", "username", username)
	c.bus.Publish(events.Event{Kind: events.AdminChanged, Admin: true, Ctx: ctx})
	return nil
}

// Logout clears the persisted session and publishes AdminChanged.
func (c *Controller) Logout(ctx context.Context) error {
	if err := c.store.Clear(); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}

	c.mu.Lock()
	c.state, c.sess, c.trust = LoggedOut, session.Session{}, TrustUnknown
	c.mu.Unlock()

	c.logger.Info("admin logged out")
	c.bus.Publish(events.Event{Kind: events.AdminChanged, Admin: false, Ctx: ctx})
	return nil
}

// Observe updates Trust from the outcome of a privileged call made with the
// current token. A rejection drops the session and publishes AdminChanged.
func (c *Controller) Observe(ctx context.Context, err error) {
	c.mu.Lock()
	if c.state != LoggedIn {
		c.mu.Unlock()
		return
	}
	switch {
	case err == nil:
		c.trust = TrustTrusted
		c.mu.Unlock()
		return
	case !errors.Is(err, client.ErrUnauthorized):
		c.mu.Unlock()
		return
	}
	user := c.sess.Username
	c.state, c.sess, c.trust = LoggedOut, session.Session{}, TrustRejected
	c.mu.Unlock()

	c.logger.Warn("stored admin session rejected by server, logging out", "username", user)
	if cerr := c.store.Clear(); cerr != nil {
		c.logger.Error("clearing rejected session", "error", cerr)
	}
	c.bus.Publish(events.Event{Kind: events.AdminChanged, Admin: false, Ctx: ctx})
}

func (c *Controller) setLoginError(msg string) {
	c.mu.Lock()
	c.loginError = msg
	c.mu.Unlock()
}

// State returns the current login state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsAdmin reports whether a session is held.
func (c *Controller) IsAdmin() bool { return c.State() == LoggedIn }

// Token returns the current credential, or "" when logged out.
func (c *Controller) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sess.Token
}

// Username returns the logged-in admin name.
func (c *Controller) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sess.Username
}

// Trust returns what is known about the token's validity.
func (c *Controller) Trust() Trust {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.trust
}

// LoginError returns the message from the last failed login, or "".
func (c *Controller) LoginError() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loginError
}
