package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/projectdesk/projectdesk/internal/model"
	"github.com/projectdesk/projectdesk/internal/server/middleware"
	"github.com/projectdesk/projectdesk/internal/service"
	"github.com/projectdesk/projectdesk/internal/store"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

const (
	testSecret        = "test-secret-for-integration-tests"
	testAdminPassword = "bootstrap-password-1"
)

// testEnv holds the shared state for integration tests: an in-memory store
// with a bootstrapped protected admin and a fully wired Server.
type testEnv struct {
	server  *Server
	store   *store.Store
	authSvc *service.AuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.New(store.DriverSQLite, "")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	authSvc, err := service.NewAuthService(st, service.Config{
		Secret:            testSecret,
		Algorithm:         "HS256",
		TokenTTL:          time.Hour,
		MinPasswordLength: 8,
		AdminEmail:        "admin@example.com",
		AdminPassword:     testAdminPassword,
	})
	if err != nil {
		t.Fatalf("service.NewAuthService: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := authSvc.Bootstrap(context.Background(), logger); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	srv := New(DefaultConfig(), st, authSvc, logger)
	return &testEnv{server: srv, store: st, authSvc: authSvc}
}

// do performs a request against the server, optionally with a bearer token
// and a JSON body.
func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(buf)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	return rr
}

// login performs a form-encoded login and returns the recorder.
func (e *testEnv) login(t *testing.T, username, password string) *httptest.ResponseRecorder {
	t.Helper()

	form := url.Values{"username": {username}, "password": {password}}
	req := httptest.NewRequest("POST", "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	return rr
}

// mustLogin logs in and returns the bearer token.
func (e *testEnv) mustLogin(t *testing.T, username, password string) string {
	t.Helper()

	rr := e.login(t, username, password)
	if rr.Code != http.StatusOK {
		t.Fatalf("login %s: status %d, body %s", username, rr.Code, rr.Body.String())
	}
	var tok model.Token
	if err := json.Unmarshal(rr.Body.Bytes(), &tok); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	if tok.TokenType != "bearer" {
		t.Fatalf("token_type: got %q, want %q", tok.TokenType, "bearer")
	}
	return tok.AccessToken
}

// createUser creates a user through the API as the given admin token.
func (e *testEnv) createUser(t *testing.T, adminToken, username, email, password string, admin bool) model.User {
	t.Helper()

	rr := e.do(t, "POST", "/users", adminToken, map[string]interface{}{
		"username": username,
		"email":    email,
		"password": password,
		"admin":    admin,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create user %s: status %d, body %s", username, rr.Code, rr.Body.String())
	}
	var u model.User
	if err := json.Unmarshal(rr.Body.Bytes(), &u); err != nil {
		t.Fatalf("decode user: %v", err)
	}
	return u
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) model.ErrorResponse {
	t.Helper()
	var resp model.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error envelope from %q: %v", rr.Body.String(), err)
	}
	return resp
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

func TestHealthEndpoints(t *testing.T) {
	e := newTestEnv(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := e.do(t, "GET", path, "", nil)
		if rr.Code != http.StatusOK {
			t.Errorf("%s: status %d", path, rr.Code)
		}
	}
}

// ---------------------------------------------------------------------------
// Login
// ---------------------------------------------------------------------------

func TestLoginReturnsBearerToken(t *testing.T) {
	e := newTestEnv(t)

	token := e.mustLogin(t, "admin", testAdminPassword)
	if token == "" {
		t.Fatal("expected non-empty access token")
	}
}

func TestLoginFailureShapesIdentical(t *testing.T) {
	e := newTestEnv(t)

	wrongPassword := e.login(t, "admin", "wrong-password-entirely")
	unknownUser := e.login(t, "nosuchuser", testAdminPassword)

	if wrongPassword.Code != http.StatusUnauthorized || unknownUser.Code != http.StatusUnauthorized {
		t.Fatalf("statuses: %d and %d, want both 401", wrongPassword.Code, unknownUser.Code)
	}
	if wrongPassword.Body.String() != unknownUser.Body.String() {
		t.Errorf("bodies differ:\n%s\n%s", wrongPassword.Body.String(), unknownUser.Body.String())
	}
	for _, rr := range []*httptest.ResponseRecorder{wrongPassword, unknownUser} {
		if got := rr.Header().Get("WWW-Authenticate"); got != "Bearer" {
			t.Errorf("WWW-Authenticate: got %q, want %q", got, "Bearer")
		}
	}
}

// ---------------------------------------------------------------------------
// Request authentication and /me
// ---------------------------------------------------------------------------

func TestMe(t *testing.T) {
	e := newTestEnv(t)
	token := e.mustLogin(t, "admin", testAdminPassword)

	rr := e.do(t, "GET", "/me", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rr.Code, rr.Body.String())
	}

	var profile model.Profile
	if err := json.Unmarshal(rr.Body.Bytes(), &profile); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if profile.Username != "admin" || !profile.Admin {
		t.Errorf("unexpected profile: %+v", profile)
	}
}

func TestAuthenticationFailuresCollapse(t *testing.T) {
	e := newTestEnv(t)

	cases := map[string]string{
		"no token":      "",
		"garbage token": "garbage.token.here",
	}
	for name, token := range cases {
		rr := e.do(t, "GET", "/me", token, nil)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s: status %d, want 401", name, rr.Code)
		}
		if got := rr.Header().Get("WWW-Authenticate"); got != "Bearer" {
			t.Errorf("%s: WWW-Authenticate %q, want %q", name, got, "Bearer")
		}
		resp := decodeError(t, rr)
		if resp.Error.Message != "Could not validate credentials" {
			t.Errorf("%s: message %q", name, resp.Error.Message)
		}
	}
}

// ---------------------------------------------------------------------------
// Sliding-token renewal
// ---------------------------------------------------------------------------

func TestRefreshTokenHeader(t *testing.T) {
	e := newTestEnv(t)
	token := e.mustLogin(t, "admin", testAdminPassword)

	rr := e.do(t, "GET", "/me", token, nil)
	fresh := rr.Header().Get(middleware.RefreshHeader)
	if fresh == "" {
		t.Fatal("expected X-Refresh-Token on authenticated response")
	}
	if subject, err := e.authSvc.VerifyToken(fresh); err != nil || subject != "admin" {
		t.Errorf("renewed token: subject=%q err=%v", subject, err)
	}
}

func TestRefreshTokenAbsentForInvalidToken(t *testing.T) {
	e := newTestEnv(t)

	// Renewal must be silent: the header is absent, and the request outcome
	// is whatever it would have been anyway.
	rr := e.do(t, "GET", "/healthz", "garbage.token", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rr.Code)
	}
	if got := rr.Header().Get(middleware.RefreshHeader); got != "" {
		t.Errorf("expected no refresh header, got %q", got)
	}

	rr = e.do(t, "GET", "/healthz", "", nil)
	if got := rr.Header().Get(middleware.RefreshHeader); got != "" {
		t.Errorf("expected no refresh header without a token, got %q", got)
	}
}

// ---------------------------------------------------------------------------
// User management
// ---------------------------------------------------------------------------

func TestUserCRUD(t *testing.T) {
	e := newTestEnv(t)
	adminToken := e.mustLogin(t, "admin", testAdminPassword)

	alice := e.createUser(t, adminToken, "alice", "alice@x.com", "longenough1", false)
	if alice.IsDeleted {
		t.Error("new user must not be deleted")
	}
	if alice.Admin {
		t.Error("new user must not be admin")
	}

	// Get
	rr := e.do(t, "GET", fmt.Sprintf("/users/%d", alice.ID), adminToken, nil)
	if rr.Code != http.StatusOK {
		t.Errorf("get user: status %d", rr.Code)
	}

	// List contains alice and admin
	rr = e.do(t, "GET", "/users", adminToken, nil)
	var users []model.User
	if err := json.Unmarshal(rr.Body.Bytes(), &users); err != nil {
		t.Fatalf("decode users: %v", err)
	}
	if len(users) != 2 {
		t.Errorf("users: got %d, want 2", len(users))
	}

	// Patch email
	rr = e.do(t, "PATCH", fmt.Sprintf("/users/%d", alice.ID), adminToken,
		map[string]interface{}{"email": "alice2@x.com"})
	if rr.Code != http.StatusOK {
		t.Fatalf("patch user: status %d, body %s", rr.Code, rr.Body.String())
	}
	var patched model.User
	json.Unmarshal(rr.Body.Bytes(), &patched)
	if patched.Email != "alice2@x.com" {
		t.Errorf("email: got %q", patched.Email)
	}

	// Delete
	rr = e.do(t, "DELETE", fmt.Sprintf("/users/%d", alice.ID), adminToken, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete user: status %d", rr.Code)
	}

	// Gone from reads
	rr = e.do(t, "GET", fmt.Sprintf("/users/%d", alice.ID), adminToken, nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("get deleted user: status %d, want 404", rr.Code)
	}

	// And can no longer log in
	rr = e.login(t, "alice", "longenough1")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("login as deleted user: status %d, want 401", rr.Code)
	}
}

func TestUserValidation(t *testing.T) {
	e := newTestEnv(t)
	adminToken := e.mustLogin(t, "admin", testAdminPassword)

	cases := []struct {
		name string
		body map[string]interface{}
	}{
		{"short username", map[string]interface{}{
			"username": "ab", "email": "a@x.com", "password": "longenough1"}},
		{"long username", map[string]interface{}{
			"username": strings.Repeat("a", 51), "email": "a@x.com", "password": "longenough1"}},
		{"bad email", map[string]interface{}{
			"username": "valid", "email": "not-an-email", "password": "longenough1"}},
		{"short password", map[string]interface{}{
			"username": "valid", "email": "a@x.com", "password": "short"}},
	}
	for _, tc := range cases {
		rr := e.do(t, "POST", "/users", adminToken, tc.body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d, want 400", tc.name, rr.Code)
		}
	}
}

func TestUserDuplicateConflict(t *testing.T) {
	e := newTestEnv(t)
	adminToken := e.mustLogin(t, "admin", testAdminPassword)

	alice := e.createUser(t, adminToken, "alice", "alice@x.com", "longenough1", false)

	// Same username, different email
	rr := e.do(t, "POST", "/users", adminToken, map[string]interface{}{
		"username": "alice", "email": "other@x.com", "password": "longenough1"})
	if rr.Code != http.StatusConflict {
		t.Errorf("duplicate username: status %d, want 409", rr.Code)
	}

	// Same email, different username
	rr = e.do(t, "POST", "/users", adminToken, map[string]interface{}{
		"username": "other", "email": "alice@x.com", "password": "longenough1"})
	if rr.Code != http.StatusConflict {
		t.Errorf("duplicate email: status %d, want 409", rr.Code)
	}

	// A deleted user's username stays reserved.
	rr = e.do(t, "DELETE", fmt.Sprintf("/users/%d", alice.ID), adminToken, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d", rr.Code)
	}
	rr = e.do(t, "POST", "/users", adminToken, map[string]interface{}{
		"username": "alice", "email": "fresh@x.com", "password": "longenough1"})
	if rr.Code != http.StatusConflict {
		t.Errorf("reuse of deleted username: status %d, want 409", rr.Code)
	}
}

func TestUserRoutesAdminOnly(t *testing.T) {
	e := newTestEnv(t)
	adminToken := e.mustLogin(t, "admin", testAdminPassword)
	e.createUser(t, adminToken, "alice", "alice@x.com", "longenough1", false)
	aliceToken := e.mustLogin(t, "alice", "longenough1")

	paths := []struct {
		method, path string
	}{
		{"GET", "/users"},
		{"POST", "/users"},
		{"GET", "/users/1"},
		{"PATCH", "/users/1"},
		{"DELETE", "/users/1"},
	}
	for _, p := range paths {
		rr := e.do(t, p.method, p.path, aliceToken, map[string]interface{}{})
		if rr.Code != http.StatusForbidden {
			t.Errorf("%s %s as non-admin: status %d, want 403", p.method, p.path, rr.Code)
		}
	}
}

func TestProtectedAdminImmunity(t *testing.T) {
	e := newTestEnv(t)
	adminToken := e.mustLogin(t, "admin", testAdminPassword)

	// A second, unprotected admin tries to take down the bootstrap admin.
	e.createUser(t, adminToken, "second", "second@x.com", "longenough1", true)
	secondToken := e.mustLogin(t, "second", "longenough1")

	protected, err := e.store.GetProtectedAdmin(context.Background())
	if err != nil {
		t.Fatalf("GetProtectedAdmin: %v", err)
	}

	for _, token := range []string{adminToken, secondToken} {
		rr := e.do(t, "PATCH", fmt.Sprintf("/users/%d", protected.ID), token,
			map[string]interface{}{"admin": false})
		if rr.Code != http.StatusForbidden {
			t.Errorf("downgrade protected admin: status %d, want 403", rr.Code)
		}

		rr = e.do(t, "DELETE", fmt.Sprintf("/users/%d", protected.ID), token, nil)
		if rr.Code != http.StatusForbidden {
			t.Errorf("delete protected admin: status %d, want 403", rr.Code)
		}
	}

	// The account is untouched.
	got, err := e.store.GetProtectedAdmin(context.Background())
	if err != nil {
		t.Fatalf("GetProtectedAdmin after attempts: %v", err)
	}
	if !got.Admin || got.IsDeleted {
		t.Errorf("protected admin mutated: %+v", got)
	}
}

// ---------------------------------------------------------------------------
// Projects
// ---------------------------------------------------------------------------

func TestProjectTenantIsolation(t *testing.T) {
	e := newTestEnv(t)
	adminToken := e.mustLogin(t, "admin", testAdminPassword)

	alice := e.createUser(t, adminToken, "alice", "alice@x.com", "longenough1", false)
	e.createUser(t, adminToken, "bob", "bob@x.com", "longenough1", false)
	aliceToken := e.mustLogin(t, "alice", "longenough1")
	bobToken := e.mustLogin(t, "bob", "longenough1")

	// Fresh tenant starts empty.
	rr := e.do(t, "GET", "/projects", aliceToken, nil)
	var projects []model.Project
	json.Unmarshal(rr.Body.Bytes(), &projects)
	if len(projects) != 0 {
		t.Fatalf("expected empty list, got %+v", projects)
	}

	// Alice creates a project; she owns it.
	rr = e.do(t, "POST", "/projects", aliceToken, map[string]interface{}{
		"name": "p1", "data": "opaque blob"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create project: status %d, body %s", rr.Code, rr.Body.String())
	}
	var p1 model.Project
	json.Unmarshal(rr.Body.Bytes(), &p1)
	if p1.UserID != alice.ID {
		t.Errorf("owner: got %d, want %d", p1.UserID, alice.ID)
	}

	// Invisible to bob: filtered out of the list, 403 on direct access.
	rr = e.do(t, "GET", "/projects", bobToken, nil)
	projects = nil
	json.Unmarshal(rr.Body.Bytes(), &projects)
	if len(projects) != 0 {
		t.Errorf("bob sees foreign projects: %+v", projects)
	}
	rr = e.do(t, "GET", fmt.Sprintf("/projects/%d", p1.ID), bobToken, nil)
	if rr.Code != http.StatusForbidden {
		t.Errorf("cross-tenant get: status %d, want 403", rr.Code)
	}
	rr = e.do(t, "PATCH", fmt.Sprintf("/projects/%d", p1.ID), bobToken,
		map[string]interface{}{"name": "stolen"})
	if rr.Code != http.StatusForbidden {
		t.Errorf("cross-tenant patch: status %d, want 403", rr.Code)
	}
	rr = e.do(t, "DELETE", fmt.Sprintf("/projects/%d", p1.ID), bobToken, nil)
	if rr.Code != http.StatusForbidden {
		t.Errorf("cross-tenant delete: status %d, want 403", rr.Code)
	}

	// Admin sees and reaches everything.
	rr = e.do(t, "GET", "/projects", adminToken, nil)
	projects = nil
	json.Unmarshal(rr.Body.Bytes(), &projects)
	if len(projects) != 1 {
		t.Errorf("admin list: got %d projects, want 1", len(projects))
	}
	rr = e.do(t, "GET", fmt.Sprintf("/projects/%d", p1.ID), adminToken, nil)
	if rr.Code != http.StatusOK {
		t.Errorf("admin get: status %d", rr.Code)
	}
}

func TestProjectOwnershipTransfer(t *testing.T) {
	e := newTestEnv(t)
	adminToken := e.mustLogin(t, "admin", testAdminPassword)

	alice := e.createUser(t, adminToken, "alice", "alice@x.com", "longenough1", false)
	bob := e.createUser(t, adminToken, "bob", "bob@x.com", "longenough1", false)
	aliceToken := e.mustLogin(t, "alice", "longenough1")

	rr := e.do(t, "POST", "/projects", aliceToken, map[string]interface{}{"name": "p1"})
	var p1 model.Project
	json.Unmarshal(rr.Body.Bytes(), &p1)

	// Non-admin cannot hand the project to someone else.
	rr = e.do(t, "PATCH", fmt.Sprintf("/projects/%d", p1.ID), aliceToken,
		map[string]interface{}{"user_id": bob.ID})
	if rr.Code != http.StatusForbidden {
		t.Errorf("transfer by owner: status %d, want 403", rr.Code)
	}

	// Admin can, to a live user.
	rr = e.do(t, "PATCH", fmt.Sprintf("/projects/%d", p1.ID), adminToken,
		map[string]interface{}{"user_id": bob.ID})
	if rr.Code != http.StatusOK {
		t.Fatalf("transfer by admin: status %d, body %s", rr.Code, rr.Body.String())
	}
	var moved model.Project
	json.Unmarshal(rr.Body.Bytes(), &moved)
	if moved.UserID != bob.ID {
		t.Errorf("owner after transfer: got %d, want %d", moved.UserID, bob.ID)
	}

	// But never to a deleted one.
	rr = e.do(t, "DELETE", fmt.Sprintf("/users/%d", alice.ID), adminToken, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete alice: status %d", rr.Code)
	}
	rr = e.do(t, "PATCH", fmt.Sprintf("/projects/%d", p1.ID), adminToken,
		map[string]interface{}{"user_id": alice.ID})
	if rr.Code != http.StatusNotFound {
		t.Errorf("transfer to deleted user: status %d, want 404", rr.Code)
	}
}

func TestProjectCreateOwnerRules(t *testing.T) {
	e := newTestEnv(t)
	adminToken := e.mustLogin(t, "admin", testAdminPassword)

	alice := e.createUser(t, adminToken, "alice", "alice@x.com", "longenough1", false)
	bob := e.createUser(t, adminToken, "bob", "bob@x.com", "longenough1", false)
	aliceToken := e.mustLogin(t, "alice", "longenough1")

	// Naming someone else is admin-only.
	rr := e.do(t, "POST", "/projects", aliceToken, map[string]interface{}{
		"name": "p1", "user_id": bob.ID})
	if rr.Code != http.StatusForbidden {
		t.Errorf("create for other user: status %d, want 403", rr.Code)
	}

	// Naming yourself explicitly is fine.
	rr = e.do(t, "POST", "/projects", aliceToken, map[string]interface{}{
		"name": "p1", "user_id": alice.ID})
	if rr.Code != http.StatusCreated {
		t.Errorf("create for self: status %d, want 201", rr.Code)
	}

	// Admin can create on behalf of any live user.
	rr = e.do(t, "POST", "/projects", adminToken, map[string]interface{}{
		"name": "p2", "user_id": bob.ID})
	if rr.Code != http.StatusCreated {
		t.Errorf("admin create for bob: status %d, want 201", rr.Code)
	}
	var p2 model.Project
	json.Unmarshal(rr.Body.Bytes(), &p2)
	if p2.UserID != bob.ID {
		t.Errorf("owner: got %d, want %d", p2.UserID, bob.ID)
	}

	// But not for a missing owner.
	rr = e.do(t, "POST", "/projects", adminToken, map[string]interface{}{
		"name": "p3", "user_id": 99999})
	if rr.Code != http.StatusNotFound {
		t.Errorf("create for missing owner: status %d, want 404", rr.Code)
	}
}

func TestProjectValidation(t *testing.T) {
	e := newTestEnv(t)
	adminToken := e.mustLogin(t, "admin", testAdminPassword)

	for _, name := range []string{"", strings.Repeat("x", 256)} {
		rr := e.do(t, "POST", "/projects", adminToken, map[string]interface{}{"name": name})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("name length %d: status %d, want 400", len(name), rr.Code)
		}
	}
}

func TestProjectSoftDelete(t *testing.T) {
	e := newTestEnv(t)
	adminToken := e.mustLogin(t, "admin", testAdminPassword)

	rr := e.do(t, "POST", "/projects", adminToken, map[string]interface{}{"name": "p1"})
	var p1 model.Project
	json.Unmarshal(rr.Body.Bytes(), &p1)

	rr = e.do(t, "DELETE", fmt.Sprintf("/projects/%d", p1.ID), adminToken, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d", rr.Code)
	}

	// Deleted projects read as missing, and deleting twice is a 404.
	rr = e.do(t, "GET", fmt.Sprintf("/projects/%d", p1.ID), adminToken, nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("get after delete: status %d, want 404", rr.Code)
	}
	rr = e.do(t, "DELETE", fmt.Sprintf("/projects/%d", p1.ID), adminToken, nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("double delete: status %d, want 404", rr.Code)
	}
}
