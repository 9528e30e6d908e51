package auth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"
)

var testCreds = Credentials{
	Username:     "user@example.com",
	Password:     "hunter2",
	ClientID:     "client-id",
	ClientSecret: "client-secret",
}

// tokenServer fakes the OAuth token endpoint and counts grants by type.
type tokenServer struct {
	*httptest.Server

	mu             sync.Mutex
	passwordGrants int
	refreshGrants  int
	lastForm       url.Values

	expiresIn     string // empty omits expires_in
	refreshToken  string
	failRefresh   bool
	omitToken     bool
	tokenSequence int
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()
	ts := &tokenServer{expiresIn: "10800", refreshToken: "refresh-1"}
	ts.Server = httptest.NewServer(http.HandlerFunc(ts.handle))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *tokenServer) handle(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ts.mu.Lock()
	ts.lastForm = r.PostForm
	grantType := r.PostForm.Get("grant_type")
	switch grantType {
	case "password":
		ts.passwordGrants++
	case "refresh_token":
		ts.refreshGrants++
	}
	failRefresh := ts.failRefresh && grantType == "refresh_token"
	omitToken := ts.omitToken
	expiresIn := ts.expiresIn
	refreshToken := ts.refreshToken
	ts.tokenSequence++
	sequence := ts.tokenSequence
	ts.mu.Unlock()

	if failRefresh {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	body := `{"token_type":"Bearer"`
	if !omitToken {
		body += `,"access_token":"access-` + strconv.Itoa(sequence) + `"`
	}
	if refreshToken != "" {
		body += `,"refresh_token":"` + refreshToken + `"`
	}
	if expiresIn != "" {
		body += `,"expires_in":` + expiresIn
	}
	body += `}`
	_, _ = io.WriteString(w, body)
}

func (ts *tokenServer) counts() (password, refresh int) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.passwordGrants, ts.refreshGrants
}

func newTestManager(t *testing.T, ts *tokenServer) *Manager {
	t.Helper()
	m, err := NewManager(Declaration{Provider: "netatmo", TokenURL: ts.URL}, testCreds, nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestAuthenticateStoresToken(t *testing.T) {
	ts := newTokenServer(t)
	m := newTestManager(t, ts)
	ctx := context.Background()

	if err := m.Authenticate(ctx); err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	ts.mu.Lock()
	form := ts.lastForm
	ts.mu.Unlock()
	for key, want := range map[string]string{
		"grant_type":    "password",
		"username":      testCreds.Username,
		"password":      testCreds.Password,
		"client_id":     testCreds.ClientID,
		"client_secret": testCreds.ClientSecret,
	} {
		if got := form.Get(key); got != want {
			t.Fatalf("form %s = %q, want %q", key, got, want)
		}
	}

	m.mu.Lock()
	accessToken, refreshToken, expiresAt := m.accessToken, m.refreshToken, m.expiresAt
	m.mu.Unlock()

	if accessToken == "" {
		t.Fatalf("expected access token to be stored")
	}
	if refreshToken != "refresh-1" {
		t.Fatalf("unexpected refresh token: %q", refreshToken)
	}

	want := time.Now().Add(10800*time.Second - expiryMargin)
	if delta := expiresAt.Sub(want); delta < -5*time.Second || delta > 5*time.Second {
		t.Fatalf("expiresAt off by %s", delta)
	}
}

func TestAuthenticateDefaultsLifetimeWhenExpiresInOmitted(t *testing.T) {
	ts := newTokenServer(t)
	ts.expiresIn = ""
	m := newTestManager(t, ts)

	if err := m.Authenticate(context.Background()); err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	m.mu.Lock()
	expiresAt := m.expiresAt
	m.mu.Unlock()

	want := time.Now().Add(defaultTokenLifetime - expiryMargin)
	if delta := expiresAt.Sub(want); delta < -5*time.Second || delta > 5*time.Second {
		t.Fatalf("expiresAt off by %s", delta)
	}
}

func TestAuthenticateMissingAccessToken(t *testing.T) {
	ts := newTokenServer(t)
	ts.omitToken = true
	m := newTestManager(t, ts)

	err := m.Authenticate(context.Background())
	if err == nil {
		t.Fatalf("expected error for missing access_token")
	}
	var authErr *Error
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *auth.Error, got %T: %v", err, err)
	}
}

func TestEnsureValidFreshTokenMakesNoCall(t *testing.T) {
	ts := newTokenServer(t)
	m := newTestManager(t, ts)
	ctx := context.Background()

	if err := m.Authenticate(ctx); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if err := m.EnsureValid(ctx); err != nil {
		t.Fatalf("ensure valid: %v", err)
	}

	password, refresh := ts.counts()
	if password != 1 || refresh != 0 {
		t.Fatalf("expected 1 password grant and 0 refreshes, got %d/%d", password, refresh)
	}
}

func TestEnsureValidRefreshesStaleToken(t *testing.T) {
	ts := newTokenServer(t)
	m := newTestManager(t, ts)
	ctx := context.Background()

	if err := m.Authenticate(ctx); err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	m.mu.Lock()
	previous := m.accessToken
	m.expiresAt = time.Now().Add(-time.Second)
	m.mu.Unlock()

	if err := m.EnsureValid(ctx); err != nil {
		t.Fatalf("ensure valid: %v", err)
	}

	password, refresh := ts.counts()
	if password != 1 || refresh != 1 {
		t.Fatalf("expected exactly one refresh, got password=%d refresh=%d", password, refresh)
	}

	m.mu.Lock()
	current := m.accessToken
	m.mu.Unlock()
	if current == previous {
		t.Fatalf("expected a new access token after refresh")
	}
}

func TestRefreshWithoutRefreshTokenAuthenticates(t *testing.T) {
	ts := newTokenServer(t)
	ts.refreshToken = ""
	m := newTestManager(t, ts)

	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	password, refresh := ts.counts()
	if password != 1 || refresh != 0 {
		t.Fatalf("expected password grant fallback, got password=%d refresh=%d", password, refresh)
	}
}

func TestRefreshFailureFallsBackToAuthenticate(t *testing.T) {
	ts := newTokenServer(t)
	m := newTestManager(t, ts)
	ctx := context.Background()

	if err := m.Authenticate(ctx); err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	ts.mu.Lock()
	ts.failRefresh = true
	ts.mu.Unlock()

	if err := m.Refresh(ctx); err != nil {
		t.Fatalf("refresh should self-heal via re-auth: %v", err)
	}

	password, refresh := ts.counts()
	if password != 2 || refresh != 1 {
		t.Fatalf("expected refresh then password fallback, got password=%d refresh=%d", password, refresh)
	}

	token, err := m.AccessToken(ctx)
	if err != nil {
		t.Fatalf("access token after fallback: %v", err)
	}
	if token == "" {
		t.Fatalf("expected usable token after fallback")
	}
}

func TestAccessTokenConcurrent(t *testing.T) {
	ts := newTokenServer(t)
	m := newTestManager(t, ts)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := m.AccessToken(ctx)
			if err != nil {
				errs <- err
				return
			}
			if token == "" {
				errs <- errors.New("empty token")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent access token: %v", err)
	}
}

func TestStatePersistenceRoundTrip(t *testing.T) {
	ts := newTokenServer(t)
	statePath := filepath.Join(t.TempDir(), "auth", "netatmo.json")

	m, err := NewManager(Declaration{Provider: "netatmo", TokenURL: ts.URL, StatePath: statePath}, testCreds, nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := m.Authenticate(context.Background()); err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	info, err := os.Stat(statePath)
	if err != nil {
		t.Fatalf("stat state: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("state file perms = %v, want 0600", info.Mode().Perm())
	}

	seeded, err := NewManager(Declaration{Provider: "netatmo", TokenURL: ts.URL, StatePath: statePath}, testCreds, nil)
	if err != nil {
		t.Fatalf("new seeded manager: %v", err)
	}

	seeded.mu.Lock()
	refreshToken := seeded.refreshToken
	seeded.mu.Unlock()
	if refreshToken != "refresh-1" {
		t.Fatalf("expected seeded refresh token, got %q", refreshToken)
	}

	// A seeded manager refreshes instead of replaying the password grant.
	if err := seeded.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh from seeded state: %v", err)
	}
	password, refresh := ts.counts()
	if password != 1 || refresh != 1 {
		t.Fatalf("expected seeded refresh, got password=%d refresh=%d", password, refresh)
	}
}

func TestNewManagerValidation(t *testing.T) {
	if _, err := NewManager(Declaration{TokenURL: "https://example.com"}, testCreds, nil); err == nil {
		t.Fatalf("expected provider validation error")
	}
	if _, err := NewManager(Declaration{Provider: "netatmo"}, testCreds, nil); err == nil {
		t.Fatalf("expected tokenURL validation error")
	}
	creds := testCreds
	creds.Password = ""
	if _, err := NewManager(Declaration{Provider: "netatmo", TokenURL: "https://example.com"}, creds, nil); err == nil {
		t.Fatalf("expected credential validation error")
	}
}
