// Package form holds the feedback form's input state, validation and submission.
package form

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/kalambet/feedbackdesk/internal/auth"
	"github.com/kalambet/feedbackdesk/internal/client"
	"github.com/kalambet/feedbackdesk/internal/events"
	"github.com/kalambet/feedbackdesk/internal/feedback"
)

// User-facing form messages.
const (
	MsgCorrectErrors = "Please correct the errors in the form."
	MsgSubmitting    = "Submitting feedback..."
	MsgSubmitted     = "Feedback submitted successfully!"
	MsgUpdated       = "Feedback updated successfully!"
	MsgEditNotAdmin  = "You must be logged in as an admin to edit feedback."
	MsgUnreachable   = "Could not connect to the server. Please try again."
)

var (
	// ErrInvalid is returned by Submit when validation fails.
	ErrInvalid = errors.New("form has validation errors")
	// ErrSubmitInProgress is returned when Submit is called while another submit is in flight.
	ErrSubmitInProgress = errors.New("submit already in progress")
)

// Mode tells whether the form creates a new record or edits an existing one.
type Mode int

const (
	Create Mode = iota
	Edit
)

// API is the subset of the feedback client the form needs.
type API interface {
	CreateFeedback(ctx context.Context, sub feedback.Submission) (feedback.Record, error)
	UpdateFeedback(ctx context.Context, id int64, sub feedback.Submission, token string) (feedback.Record, error)
}

// Credentials exposes the admin session to the form. *auth.Controller satisfies it.
type Credentials interface {
	IsAdmin() bool
	Token() string
	Observe(ctx context.Context, err error)
}

// Fields is the editable input.
type Fields struct {
	Name     string
	Email    string
	Rating   int // 0 means unselected
	Comments string
}

// Controller is the feedback form.
type Controller struct {
	api   API
	creds Credentials
	bus   *events.Bus

	mu          sync.Mutex
	mode        Mode
	id          int64
	fields      Fields
	fieldErrors feedback.FieldErrors
	success     string
	formError   string
	submitting  bool
}

func NewController(api API, creds Credentials, bus *events.Bus) *Controller {
	return &Controller{api: api, creds: creds, bus: bus, fieldErrors: feedback.FieldErrors{}}
}

// Fill replaces the input fields. Mode and messages are untouched.
func (c *Controller) Fill(f Fields) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fields = f
}

// Fields returns the current input.
func (c *Controller) Fields() Fields {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fields
}

// Edit switches to edit mode and pre-fills every field from rec.
func (c *Controller) Edit(rec feedback.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = Edit
	c.id = rec.ID
	c.fields = Fields{
		Name:     feedback.Value(rec.CustomerName),
		Email:    feedback.Value(rec.Email),
		Rating:   rec.Rating,
		Comments: rec.Comments,
	}
	c.clearMessagesLocked()
}

// Cancel leaves edit mode and resets the form.
func (c *Controller) Cancel(ctx context.Context) {
	c.mu.Lock()
	wasEdit := c.mode == Edit
	c.resetLocked()
	c.clearMessagesLocked()
	c.mu.Unlock()

	if wasEdit {
		c.bus.Publish(events.Event{Kind: events.EditEnded, Ctx: ctx})
	}
}

// Mode returns the current mode and, in Edit mode, the backing record id.
func (c *Controller) Mode() (Mode, int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode, c.id
}

// Validate checks every field, records the failures and reports overall validity.
func (c *Controller) Validate() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.validateLocked()
}

func (c *Controller) validateLocked() bool {
	c.clearMessagesLocked()
	c.fieldErrors = feedback.Validate(c.fields.Email, c.fields.Rating, c.fields.Comments)
	return c.fieldErrors.Valid()
}

// Submit validates and then creates or updates. Field contents survive any
// failure so they can be corrected.
func (c *Controller) Submit(ctx context.Context) (feedback.Record, error) {
	c.mu.Lock()
	if c.submitting {
		c.mu.Unlock()
		return feedback.Record{}, ErrSubmitInProgress
	}
	if !c.validateLocked() {
		c.formError = MsgCorrectErrors
		c.mu.Unlock()
		return feedback.Record{}, ErrInvalid
	}
	mode, id := c.mode, c.id
	if mode == Edit && !c.creds.IsAdmin() {
		c.formError = MsgEditNotAdmin
		c.mu.Unlock()
		return feedback.Record{}, auth.ErrNotAdmin
	}
	sub := feedback.Submission{
		CustomerName: feedback.Optional(c.fields.Name),
		Email:        feedback.Optional(c.fields.Email),
		Rating:       c.fields.Rating,
		Comments:     strings.TrimSpace(c.fields.Comments),
	}
	c.submitting = true
	c.success = MsgSubmitting
	c.mu.Unlock()

	var (
		rec feedback.Record
		err error
	)
	if mode == Edit {
		rec, err = c.api.UpdateFeedback(ctx, id, sub, c.creds.Token())
		c.creds.Observe(ctx, err)
	} else {
		rec, err = c.api.CreateFeedback(ctx, sub)
	}

	c.mu.Lock()
	c.submitting = false
	if err != nil {
		c.success = ""
		c.formError = failureMessage(err)
		c.mu.Unlock()
		return feedback.Record{}, fmt.Errorf("submitting feedback: %w", err)
	}
	c.resetLocked()
	if mode == Edit {
		c.success = MsgUpdated
	} else {
		c.success = MsgSubmitted
	}
	c.mu.Unlock()

	if mode == Edit {
		c.bus.Publish(events.Event{Kind: events.EditEnded, Ctx: ctx})
	}
	c.bus.Publish(events.Event{Kind: events.FeedbackChanged, Ctx: ctx})
	return rec, nil
}

func failureMessage(err error) string {
	if msg := client.Message(err); msg != "" {
		return msg
	}
	if client.IsNetwork(err) {
		return MsgUnreachable
	}
	if status := client.Status(err); status != 0 {
		return fmt.Sprintf("Error: %d %s", status, http.StatusText(status))
	}
	return "Error: " + err.Error()
}

func (c *Controller) resetLocked() {
	c.mode = Create
	c.id = 0
	c.fields = Fields{}
	c.fieldErrors = feedback.FieldErrors{}
}

func (c *Controller) clearMessagesLocked() {
	c.fieldErrors = feedback.FieldErrors{}
	c.success = ""
	c.formError = ""
}

// FieldErrors returns a copy of the per-field messages from the last validation.
func (c *Controller) FieldErrors() feedback.FieldErrors {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(feedback.FieldErrors, len(c.fieldErrors))
	for k, v := range c.fieldErrors {
		out[k] = v
	}
	return out
}

// Success returns the current status line ("" when none).
func (c *Controller) Success() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.success
}

// Error returns the current form-level error ("" when none).
func (c *Controller) Error() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.formError
}

// Submitting reports whether a submit is in flight.
func (c *Controller) Submitting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitting
}
