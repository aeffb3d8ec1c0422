package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixstream/fixstream/internal/actionstore"
	"github.com/fixstream/fixstream/internal/dispatcher"
	"github.com/fixstream/fixstream/internal/models"
	"github.com/fixstream/fixstream/internal/resolver"
)

type stubTargets struct{}

func (stubTargets) ResolveBaseline(ctx context.Context, name string) (resolver.Baseline, error) {
	if name != "Patch_A" {
		return resolver.Baseline{}, resolver.ErrBaselineNotFound
	}
	return resolver.Baseline{Site: "SiteA", FixletID: "123"}, nil
}

func (stubTargets) ResolveGroup(ctx context.Context, name string) (models.TargetGroup, error) {
	return models.TargetGroup{Name: name, ID: "42", Site: "ActionSite", Kind: models.GroupAutomatic}, nil
}

type stubConsole struct{}

func (stubConsole) Query(ctx context.Context, relevance string) ([]string, error) {
	return nil, nil
}

func (stubConsole) SubmitAction(ctx context.Context, document string) (string, error) {
	return `<Action><ID>991</ID></Action>`, nil
}

func newTestServer(t *testing.T) (*Server, *actionstore.Store) {
	t.Helper()
	store := actionstore.New(nil)
	disp := dispatcher.New(dispatcher.Options{
		Targets:   stubTargets{},
		Console:   stubConsole{},
		Store:     store,
		UTCOffset: func() time.Duration { return 0 },
	})
	return New(disp, store, nil, ""), store
}

func TestTriggerEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	body := `{"baselineName":"Patch_A","groupName":"SRV-GRP","stage":"Pilot","window":{"hours":2},"triggeredBy":"operator"}`

	req := httptest.NewRequest(http.MethodPost, "/actions/", strings.NewReader(body))
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Contains(t, rr.Body.String(), `"actionId":"991"`)
	assert.Contains(t, rr.Body.String(), `"completionOffset":"PT2H"`)
	_, ok := store.Get("991")
	assert.True(t, ok)
}

func TestTriggerEndpointValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/actions/", strings.NewReader(`{"groupName":"SRV-GRP"}`))
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "validation")
}

func TestTriggerEndpointNotFoundMapping(t *testing.T) {
	srv, _ := newTestServer(t)
	body := `{"baselineName":"Missing","groupName":"SRV-GRP","window":{"hours":2}}`

	req := httptest.NewRequest(http.MethodPost, "/actions/", strings.NewReader(body))
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "not-found")
}

func TestTriggerEndpointRejectsUnknownFields(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/actions/", strings.NewReader(`{"bogus": true}`))
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListAndLatestAndGet(t *testing.T) {
	srv, store := newTestServer(t)
	require.NoError(t, store.Insert(context.Background(), models.ActionRecord{
		ActionID:     "7",
		CreatedAt:    time.Now().UTC(),
		BaselineName: "Patch_A",
	}))

	req := httptest.NewRequest(http.MethodGet, "/actions/", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"actionId":"7"`)

	req = httptest.NewRequest(http.MethodGet, "/actions/latest", nil)
	rr = httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"actionId":"7"`)

	req = httptest.NewRequest(http.MethodGet, "/actions/7", nil)
	rr = httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/actions/999", nil)
	rr = httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestLatestEmpty(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/actions/latest", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"ok":true`)
}
