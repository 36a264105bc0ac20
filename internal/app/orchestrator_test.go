package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/feedbackdesk/internal/auth"
	"github.com/kalambet/feedbackdesk/internal/client"
	"github.com/kalambet/feedbackdesk/internal/events"
	"github.com/kalambet/feedbackdesk/internal/form"
	"github.com/kalambet/feedbackdesk/internal/session"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type route struct {
	status int
	body   string
}

// fakeAPI is an httptest server answering from a route table that tests may
// change between calls.
type fakeAPI struct {
	mu       sync.Mutex
	server   *httptest.Server
	routes   map[string]route
	requests []recordedRequest
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{routes: map[string]route{}}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.requests = append(f.requests, recordedRequest{r.Method, r.URL.Path, string(body), r.Header.Get("Authorization")})
		rt, ok := f.routes[r.Method+" "+r.URL.Path]
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(rt.status)
		io.WriteString(w, rt.body)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeAPI) set(key string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[key] = route{status, body}
}

func (f *fakeAPI) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.Method+" "+r.Path == key {
			n++
		}
	}
	return n
}

func (f *fakeAPI) last(key string) recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.requests) - 1; i >= 0; i-- {
		if f.requests[i].Method+" "+f.requests[i].Path == key {
			return f.requests[i]
		}
	}
	return recordedRequest{}
}

type notice struct {
	level Level
	msg   string
}

type recorder struct {
	mu      sync.Mutex
	notices []notice
}

func (r *recorder) Notify(level Level, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, notice{level, msg})
}

func (r *recorder) lastMsg() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return ""
	}
	return r.notices[len(r.notices)-1].msg
}

type answer struct {
	yes     bool
	prompts []string
}

func (a *answer) Confirm(_ context.Context, prompt string) (bool, error) {
	a.prompts = append(a.prompts, prompt)
	return a.yes, nil
}

type world struct {
	api     *fakeAPI
	store   *session.Store
	auth    *auth.Controller
	form    *form.Controller
	orch    *Orchestrator
	notes   *recorder
	confirm *answer
}

func newWorld(t *testing.T) *world {
	t.Helper()
	w := &world{
		api:     newFakeAPI(t),
		store:   session.NewStore(session.NewMemoryBackend()),
		notes:   &recorder{},
		confirm: &answer{yes: true},
	}
	c := client.New(w.api.server.URL+"/api", client.WithHTTPClient(w.api.server.Client()))
	bus := events.NewBus()
	w.auth = auth.NewController(c, w.store, bus, nil)
	w.form = form.NewController(c, w.auth, bus)
	w.orch = New(Deps{
		API: c, Session: w.auth, Editor: w.form, Bus: bus,
		Confirmer: w.confirm, Notifier: w.notes,
	})
	return w
}

func (w *world) loginAs(t *testing.T, user, pass string) string {
	t.Helper()
	tok := session.EncodeBasic(user, pass)
	require.NoError(t, w.store.Save(session.Session{Token: tok, Username: user}))
	require.NoError(t, w.auth.Restore())
	return tok
}

func rec(id int64, rating int, comments string) string {
	return fmt.Sprintf(`{"id":%d,"customerName":null,"email":null,"rating":%d,"comments":%q,"submissionDate":"2025-06-01T10:30:00"}`, id, rating, comments)
}

var ctx = context.Background()

func TestNonAdminLoadShowsEmptyList(t *testing.T) {
	w := newWorld(t)
	w.api.set("GET /api/feedback", http.StatusForbidden, "")
	w.api.set("GET /api/feedback/average-rating", 200, "3.5")

	require.NoError(t, w.orch.Init(ctx))

	assert.False(t, w.orch.IsAdmin())
	assert.Empty(t, w.orch.Feedback())
	avg, ok := w.orch.Average()
	assert.True(t, ok)
	assert.Equal(t, 3.5, avg)
	assert.Empty(t, w.api.last("GET /api/feedback").Auth)
}

func TestReloadToleratesIndependentFailures(t *testing.T) {
	w := newWorld(t)
	tok := w.loginAs(t, "admin", "adminpass")
	w.api.set("GET /api/feedback", 200, "["+rec(1, 5, "Absolutely wonderful")+"]")
	w.api.set("GET /api/feedback/average-rating", 500, `{"message":"db down"}`)

	require.NoError(t, w.orch.Init(ctx))

	assert.True(t, w.orch.IsAdmin())
	assert.Len(t, w.orch.Feedback(), 1)
	_, ok := w.orch.Average()
	assert.False(t, ok, "aggregate must fall back to unavailable")
	assert.Equal(t, "Basic "+tok, w.api.last("GET /api/feedback").Auth)
	assert.Equal(t, auth.TrustTrusted, w.auth.Trust())
}

func TestReloadIsIdempotent(t *testing.T) {
	w := newWorld(t)
	w.loginAs(t, "admin", "adminpass")
	w.api.set("GET /api/feedback", 200, "["+rec(1, 5, "Absolutely wonderful")+","+rec(2, 3, "It was fine I guess")+"]")
	w.api.set("GET /api/feedback/average-rating", 200, "4")

	require.NoError(t, w.orch.Init(ctx))
	first := w.orch.Feedback()
	w.orch.Reload(ctx)
	assert.Equal(t, first, w.orch.Feedback())
}

func TestLoginWithWrongCredentials(t *testing.T) {
	w := newWorld(t)
	w.api.set("GET /api/feedback", http.StatusUnauthorized, "")
	w.api.set("GET /api/feedback/average-rating", 200, "0")
	require.NoError(t, w.orch.Init(ctx))

	err := w.auth.Login(ctx, "admin", "wrong")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	assert.False(t, w.orch.IsAdmin())
	assert.Equal(t, "Invalid username or password.", w.auth.LoginError())
	_, ok, _ := w.store.Load()
	assert.False(t, ok)
}

func TestLoginAndLogoutReload(t *testing.T) {
	w := newWorld(t)
	w.api.set("GET /api/feedback", 200, "["+rec(1, 5, "Absolutely wonderful")+"]")
	w.api.set("GET /api/feedback/average-rating", 200, "5")
	require.NoError(t, w.orch.Init(ctx))
	before := w.api.count("GET /api/feedback/average-rating")

	require.NoError(t, w.auth.Login(ctx, "admin", "adminpass"))
	assert.True(t, w.orch.IsAdmin())
	assert.Len(t, w.orch.Feedback(), 1)
	assert.Equal(t, before+1, w.api.count("GET /api/feedback/average-rating"))

	w.api.set("GET /api/feedback", http.StatusForbidden, "")
	require.NoError(t, w.auth.Logout(ctx))
	assert.False(t, w.orch.IsAdmin())
	assert.Empty(t, w.orch.Feedback())
	assert.Equal(t, before+2, w.api.count("GET /api/feedback/average-rating"))
}

func TestStaleTokenIsRejectedOnReload(t *testing.T) {
	w := newWorld(t)
	w.loginAs(t, "admin", "old-password")
	w.api.set("GET /api/feedback", http.StatusUnauthorized, "")
	w.api.set("GET /api/feedback/average-rating", 200, "4")

	require.NoError(t, w.orch.Init(ctx))

	assert.False(t, w.orch.IsAdmin())
	assert.Equal(t, auth.TrustRejected, w.auth.Trust())
	_, ok, _ := w.store.Load()
	assert.False(t, ok)
}

func TestAdminDeletesAfterConfirmation(t *testing.T) {
	w := newWorld(t)
	tok := w.loginAs(t, "admin", "adminpass")
	w.api.set("GET /api/feedback", 200, "["+rec(5, 1, "Terrible experience overall")+"]")
	w.api.set("GET /api/feedback/average-rating", 200, "1")
	require.NoError(t, w.orch.Init(ctx))

	w.api.set("DELETE /api/feedback/5", http.StatusNoContent, "")
	w.api.set("GET /api/feedback", 200, "[]")
	w.api.set("GET /api/feedback/average-rating", 200, "0")
	lists := w.api.count("GET /api/feedback")
	avgs := w.api.count("GET /api/feedback/average-rating")

	require.NoError(t, w.orch.RequestDelete(ctx, 5))

	assert.Equal(t, []string{MsgDeleteConfirm}, w.confirm.prompts)
	assert.Equal(t, "Basic "+tok, w.api.last("DELETE /api/feedback/5").Auth)
	assert.Equal(t, lists+1, w.api.count("GET /api/feedback"))
	assert.Equal(t, avgs+1, w.api.count("GET /api/feedback/average-rating"))
	assert.Empty(t, w.orch.Feedback())
	assert.Equal(t, MsgDeleted, w.notes.lastMsg())
}

func TestDeleteDeclinedIssuesNoRequest(t *testing.T) {
	w := newWorld(t)
	w.loginAs(t, "admin", "adminpass")
	w.api.set("GET /api/feedback", 200, "[]")
	w.api.set("GET /api/feedback/average-rating", 200, "0")
	require.NoError(t, w.orch.Init(ctx))
	w.confirm.yes = false

	assert.ErrorIs(t, w.orch.RequestDelete(ctx, 5), ErrDeclined)
	assert.Zero(t, w.api.count("DELETE /api/feedback/5"))
}

func TestDeleteRequiresAdmin(t *testing.T) {
	w := newWorld(t)
	assert.ErrorIs(t, w.orch.RequestDelete(ctx, 5), auth.ErrNotAdmin)
	assert.Equal(t, MsgDeleteNotAdmin, w.notes.lastMsg())
	assert.Empty(t, w.confirm.prompts)
}

func TestDeleteFailureReportsServerMessage(t *testing.T) {
	w := newWorld(t)
	w.loginAs(t, "admin", "adminpass")
	w.api.set("DELETE /api/feedback/9", http.StatusNotFound, `{"message":"Feedback not found with id 9"}`)

	err := w.orch.RequestDelete(ctx, 9)
	assert.ErrorIs(t, err, client.ErrNotFound)
	assert.Equal(t, "Failed to delete feedback: Feedback not found with id 9", w.notes.lastMsg())
}

func TestEditFlow(t *testing.T) {
	w := newWorld(t)
	tok := w.loginAs(t, "admin", "adminpass")
	w.api.set("GET /api/feedback", 200, "["+rec(3, 4, "Lovely staff and fast service")+"]")
	w.api.set("GET /api/feedback/average-rating", 200, "4")
	w.api.set("GET /api/feedback/3", 200, `{"id":3,"customerName":"Ana","email":"ana@example.com","rating":4,"comments":"Lovely staff and fast service","submissionDate":"2025-06-01T10:30:00"}`)
	w.api.set("PUT /api/feedback/3", 200, rec(3, 2, "Lovely staff but slow service"))
	require.NoError(t, w.orch.Init(ctx))

	_, err := w.orch.RequestEdit(ctx, 3)
	require.NoError(t, err)

	target, ok := w.orch.EditTarget()
	require.True(t, ok)
	assert.Equal(t, int64(3), target.ID)
	assert.Equal(t, form.Fields{Name: "Ana", Email: "ana@example.com", Rating: 4, Comments: "Lovely staff and fast service"}, w.form.Fields())
	assert.Equal(t, "Editing feedback #3", w.notes.lastMsg())

	f := w.form.Fields()
	f.Rating, f.Comments = 2, "Lovely staff but slow service"
	w.form.Fill(f)
	_, err = w.form.Submit(ctx)
	require.NoError(t, err)

	put := w.api.last("PUT /api/feedback/3")
	assert.Equal(t, "Basic "+tok, put.Auth)
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(put.Body), &body))
	assert.Equal(t, "Ana", body["customerName"])
	assert.Equal(t, float64(2), body["rating"])

	_, ok = w.orch.EditTarget()
	assert.False(t, ok, "edit target clears after a successful submit")
	assert.Equal(t, form.MsgUpdated, w.form.Success())
}

func TestEditRequiresAdmin(t *testing.T) {
	w := newWorld(t)
	_, err := w.orch.RequestEdit(ctx, 3)
	assert.ErrorIs(t, err, auth.ErrNotAdmin)
	assert.Equal(t, MsgEditNotAdmin, w.notes.lastMsg())
	assert.Zero(t, w.api.count("GET /api/feedback/3"))
}

func TestEditFetchFailure(t *testing.T) {
	w := newWorld(t)
	w.loginAs(t, "admin", "adminpass")

	_, err := w.orch.RequestEdit(ctx, 42)
	assert.ErrorIs(t, err, client.ErrNotFound)
	assert.Equal(t, MsgEditFetchFailed, w.notes.lastMsg())
	_, ok := w.orch.EditTarget()
	assert.False(t, ok)
}

func TestCreateRoundTripReloads(t *testing.T) {
	w := newWorld(t)
	w.api.set("GET /api/feedback", http.StatusForbidden, "")
	w.api.set("GET /api/feedback/average-rating", 200, "0")
	require.NoError(t, w.orch.Init(ctx))
	w.api.set("POST /api/feedback", http.StatusCreated, rec(7, 5, "Best coffee in town"))
	avgs := w.api.count("GET /api/feedback/average-rating")

	w.form.Fill(form.Fields{Rating: 5, Comments: "Best coffee in town"})
	_, err := w.form.Submit(ctx)
	require.NoError(t, err)

	assert.True(t, strings.Contains(w.api.last("POST /api/feedback").Body, `"comments":"Best coffee in town"`))
	assert.Equal(t, avgs+1, w.api.count("GET /api/feedback/average-rating"))
}
