package invitation_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fkhayef/bankroll/internal/invitation"
	"github.com/fkhayef/bankroll/pkg/middleware"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func (f *fixture) server(t *testing.T) *httptest.Server {
	t.Helper()

	r := chi.NewRouter()
	r.Use(middleware.TestUserMiddleware)
	r.Mount("/invitations", invitation.NewHandler(f.issuer, f.resolver).Routes())

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path string, userID int64, body any) (int, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-User-ID", strconv.FormatInt(userID, 10))

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func TestHandlerEmailInviteRoundTrip(t *testing.T) {
	f := setup(t)
	srv := f.server(t)

	status, env := call(t, srv, http.MethodPost, "/invitations/email", f.owner.ID, invitation.EmailInviteRequest{
		GroupID: f.group.ID,
		Email:   "Bob@Example.com",
	})
	require.Equal(t, http.StatusCreated, status)

	var created invitation.InvitationResponse
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, "bob@example.com", created.Invitee)
	assert.Equal(t, invitation.StatusPending, created.Status)
	require.NotEmpty(t, created.Link)

	inv, err := f.store.GetInvitation(context.Background(), created.ID)
	require.NoError(t, err)
	token := inv.Token
	assert.Equal(t, "https://bankroll.test/invite/"+token, created.Link)

	status, env = call(t, srv, http.MethodGet, "/invitations/"+token, f.bob.ID, nil)
	require.Equal(t, http.StatusOK, status)
	var preview invitation.Preview
	require.NoError(t, json.Unmarshal(env.Data, &preview))
	assert.Equal(t, "Ski chalet", preview.GroupName)
	assert.Equal(t, "owner", preview.InviterName)

	// Same address again is a conflict
	status, env = call(t, srv, http.MethodPost, "/invitations/email", f.owner.ID, invitation.EmailInviteRequest{
		GroupID: f.group.ID,
		Email:   "bob@example.com",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.False(t, env.Success)

	status, _ = call(t, srv, http.MethodPost, "/invitations/"+token+"/accept", f.carol.ID, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = call(t, srv, http.MethodPost, "/invitations/"+token+"/accept", f.bob.ID, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, f.isMember(t, f.bob.ID))

	status, env = call(t, srv, http.MethodPost, "/invitations/"+token+"/accept", f.bob.ID, nil)
	assert.Equal(t, http.StatusConflict, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "ALREADY_RESOLVED", env.Error.Code)
}

func TestHandlerProtectedLink(t *testing.T) {
	f := setup(t)
	srv := f.server(t)

	status, env := call(t, srv, http.MethodPost, "/invitations/link", f.owner.ID, map[string]any{
		"group_id": f.group.ID,
		"password": "hunter2",
	})
	require.Equal(t, http.StatusCreated, status)
	var created invitation.InvitationResponse
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.True(t, created.PasswordProtected)

	inv, err := f.store.GetInvitation(context.Background(), created.ID)
	require.NoError(t, err)

	status, _ = call(t, srv, http.MethodPost, "/invitations/"+inv.Token+"/verify-password", f.carol.ID, map[string]string{"password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = call(t, srv, http.MethodPost, "/invitations/"+inv.Token+"/accept", f.carol.ID, map[string]string{"password": "hunter2"})
	assert.Equal(t, http.StatusOK, status)

	status, _ = call(t, srv, http.MethodPost, "/invitations/"+inv.Token+"/decline", f.eve.ID, nil)
	assert.Equal(t, http.StatusConflict, status)
}

func TestHandlerRejectsNonManagers(t *testing.T) {
	f := setup(t)
	srv := f.server(t)

	status, _ := call(t, srv, http.MethodPost, "/invitations/email", f.eve.ID, invitation.EmailInviteRequest{
		GroupID: f.group.ID,
		Email:   "someone@example.com",
	})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = call(t, srv, http.MethodGet, "/invitations/sent?group_id="+strconv.FormatInt(f.group.ID, 10), f.eve.ID, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = call(t, srv, http.MethodGet, "/invitations/sent?group_id=abc", f.owner.ID, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}
