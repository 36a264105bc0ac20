// Package app is the root orchestrator: it owns the feedback list, the
// aggregate rating, the admin flag and the edit target, and reloads them
// whenever a controller reports a change.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/feedbackdesk/internal/auth"
	"github.com/kalambet/feedbackdesk/internal/client"
	"github.com/kalambet/feedbackdesk/internal/events"
	"github.com/kalambet/feedbackdesk/internal/feedback"
)

// User-facing orchestrator messages.
const (
	MsgEditNotAdmin    = "You must be logged in as an admin to edit feedback."
	MsgDeleteNotAdmin  = "You must be logged in as an admin to delete feedback."
	MsgEditFetchFailed = "Failed to fetch feedback for editing."
	MsgEditNetwork     = "Network error while trying to fetch feedback for edit."
	MsgDeleteConfirm   = "Are you sure you want to delete this feedback?"
	MsgDeleted         = "Feedback deleted successfully!"
	MsgDeleteNetwork   = "Network error during delete."
	msgDeleteFailedFmt = "Failed to delete feedback: %s"
	msgEditingFmt      = "Editing feedback #%d"
)

// ErrDeclined is returned by RequestDelete when the user does not confirm.
var ErrDeclined = errors.New("delete not confirmed")

// API is the subset of the feedback client the orchestrator calls directly.
type API interface {
	ListFeedback(ctx context.Context, token string) ([]feedback.Record, error)
	GetFeedback(ctx context.Context, id int64, token string) (feedback.Record, error)
	DeleteFeedback(ctx context.Context, id int64, token string) error
	AverageRating(ctx context.Context) (float64, error)
}

// Session is the admin session as seen by the orchestrator. *auth.Controller satisfies it.
type Session interface {
	Restore() error
	IsAdmin() bool
	Token() string
	Observe(ctx context.Context, err error)
}

// Editor receives the record to edit. *form.Controller satisfies it.
type Editor interface {
	Edit(rec feedback.Record)
}

// Confirmer asks the user to approve a destructive action.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// Level classifies a notice.
type Level int

const (
	Info Level = iota
	Success
	Failure
	// Focus asks the view to bring the form forward.
	Focus
)

// Notifier shows messages to the user.
type Notifier interface {
	Notify(level Level, msg string)
}

// Deps are the Orchestrator's collaborators.
type Deps struct {
	API       API
	Session   Session
	Editor    Editor
	Bus       *events.Bus
	Confirmer Confirmer
	Notifier  Notifier
	Logger    *slog.Logger
}

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	api     API
	sess    Session
	editor  Editor
	confirm Confirmer
	notify  Notifier
	logger  *slog.Logger

	mu      sync.RWMutex
	list    []feedback.Record
	average *float64
	admin   bool
	editing *feedback.Record
}

// New builds an Orchestrator and subscribes it to deps.Bus.
func New(deps Deps) *Orchestrator {
	o := &Orchestrator{
		api:     deps.API,
		sess:    deps.Session,
		editor:  deps.Editor,
		confirm: deps.Confirmer,
		notify:  deps.Notifier,
		logger:  deps.Logger,
		list:    []feedback.Record{},
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.notify == nil {
		o.notify = discardNotifier{}
	}
	if deps.Bus != nil {
		deps.Bus.Subscribe(o.handle)
	}
	return o
}

func (o *Orchestrator) handle(e events.Event) {
	switch e.Kind {
	case events.AdminChanged:
		o.mu.Lock()
		o.admin = e.Admin
		if !e.Admin {
			o.editing = nil
		}
		o.mu.Unlock()
		o.Reload(e.Context())
	case events.FeedbackChanged:
		o.Reload(e.Context())
	case events.EditEnded:
		o.mu.Lock()
		o.editing = nil
		o.mu.Unlock()
	}
}

// Init derives admin status from the persisted session and loads data.
func (o *Orchestrator) Init(ctx context.Context) error {
	if err := o.sess.Restore(); err != nil {
		return fmt.Errorf("restoring session: %w", err)
	}
	o.mu.Lock()
	o.admin = o.sess.IsAdmin()
	o.mu.Unlock()

	o.Reload(ctx)
	return nil
}

// Reload fetches the list and the aggregate concurrently and returns once
// both have settled. Each failure falls back on its own: an empty list or
// an unavailable aggregate.
func (o *Orchestrator) Reload(ctx context.Context) {
	token := o.sess.Token()

	var (
		list    []feedback.Record
		listErr error
		avg     *float64
	)

	// Neither fetch returns an error: each falls back on its own so a failed
	// list never cancels the aggregate or the other way round.
	var g errgroup.Group
	g.Go(func() error {
		list, listErr = o.api.ListFeedback(ctx, token)
		switch {
		case errors.Is(listErr, client.ErrUnauthorized):
			o.logger.Debug("not authorized to list feedback, showing empty list")
			list = []feedback.Record{}
		case listErr != nil:
			o.logger.Warn("loading feedback failed", "error", listErr)
			list = []feedback.Record{}
		}
		return nil
	})
	g.Go(func() error {
		v, err := o.api.AverageRating(ctx)
		if err != nil {
			o.logger.Warn("loading average rating failed", "error", err)
			return nil
		}
		avg = &v
		return nil
	})
	g.Wait()

	o.mu.Lock()
	o.list = list
	o.average = avg
	o.mu.Unlock()

	if token != "" {
		o.sess.Observe(ctx, listErr)
	}
}

// RequestEdit loads record id into the form. Admin only.
func (o *Orchestrator) RequestEdit(ctx context.Context, id int64) (feedback.Record, error) {
	if !o.sess.IsAdmin() {
		o.notify.Notify(Failure, MsgEditNotAdmin)
		return feedback.Record{}, auth.ErrNotAdmin
	}

	rec, err := o.api.GetFeedback(ctx, id, o.sess.Token())
	o.sess.Observe(ctx, err)
	if err != nil {
		if client.IsNetwork(err) {
			o.notify.Notify(Failure, MsgEditNetwork)
		} else {
			o.notify.Notify(Failure, MsgEditFetchFailed)
		}
		return feedback.Record{}, fmt.Errorf("fetching feedback %d: %w", id, err)
	}

	o.mu.Lock()
	o.editing = &rec
	o.mu.Unlock()

	if o.editor != nil {
		o.editor.Edit(rec)
	}
	o.notify.Notify(Focus, fmt.Sprintf(msgEditingFmt, id))
	return rec, nil
}

// RequestDelete removes record id after the user confirms. Admin only.
func (o *Orchestrator) RequestDelete(ctx context.Context, id int64) error {
	if !o.sess.IsAdmin() {
		o.notify.Notify(Failure, MsgDeleteNotAdmin)
		return auth.ErrNotAdmin
	}

	if o.confirm == nil {
		return ErrDeclined
	}
	ok, err := o.confirm.Confirm(ctx, MsgDeleteConfirm)
	if err != nil {
		return fmt.Errorf("confirming delete: %w", err)
	}
	if !ok {
		return ErrDeclined
	}

	err = o.api.DeleteFeedback(ctx, id, o.sess.Token())
	o.sess.Observe(ctx, err)
	if err != nil {
		if client.IsNetwork(err) {
			o.notify.Notify(Failure, MsgDeleteNetwork)
		} else {
			o.notify.Notify(Failure, fmt.Sprintf(msgDeleteFailedFmt, deleteFailureText(err)))
		}
		return fmt.Errorf("deleting feedback %d: %w", id, err)
	}

	o.mu.Lock()
	if o.editing != nil && o.editing.ID == id {
		o.editing = nil
	}
	o.mu.Unlock()

	o.Reload(ctx)
	o.notify.Notify(Success, MsgDeleted)
	return nil
}

func deleteFailureText(err error) string {
	if msg := client.Message(err); msg != "" {
		return msg
	}
	if status := client.Status(err); status != 0 {
		return http.StatusText(status)
	}
	return err.Error()
}

// Feedback returns a copy of the current list.
func (o *Orchestrator) Feedback() []feedback.Record {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]feedback.Record, len(o.list))
	copy(out, o.list)
	return out
}

// Average returns the aggregate rating and whether it is available.
func (o *Orchestrator) Average() (float64, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.average == nil {
		return 0, false
	}
	return *o.average, true
}

// IsAdmin returns the admin flag as last reported.
func (o *Orchestrator) IsAdmin() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.admin
}

// EditTarget returns the record being edited, if any.
func (o *Orchestrator) EditTarget() (feedback.Record, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.editing == nil {
		return feedback.Record{}, false
	}
	return *o.editing, true
}

type discardNotifier struct{}

func (discardNotifier) Notify(Level, string) {}
