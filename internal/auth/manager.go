package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

const (
	// expiryMargin renews tokens ahead of their server-side expiry so a
	// token handed to a caller is never about to lapse mid-flight.
	expiryMargin = 5 * time.Minute

	// defaultTokenLifetime applies when the server omits expires_in.
	defaultTokenLifetime = 10800 * time.Second

	requestTimeout = 10 * time.Second
)

// Credentials are the password-grant inputs. Immutable for the manager's
// lifetime; the manager never derives or rewrites them.
type Credentials struct {
	Username     string
	Password     string
	ClientID     string
	ClientSecret string
}

func (c Credentials) validate() error {
	if c.Username == "" {
		return fmt.Errorf("username is required")
	}
	if c.Password == "" {
		return fmt.Errorf("password is required")
	}
	if c.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("client_secret is required")
	}
	return nil
}

// Declaration defines the token endpoint contract for a provider.
type Declaration struct {
	Provider  string
	TokenURL  string
	StatePath string
}

// Manager owns the credential pair and the current token state. It produces
// a valid access token for every outbound call, handling initial auth,
// proactive expiry-based refresh, and refresh-to-auth fallback.
//
// Token mutations are applied atomically under mu: a caller never observes
// an access token paired with another token's expiry. Concurrent callers may
// each trigger a redundant refresh; the triple is replaced as a unit either
// way, so the extra round trip is wasted but harmless.
type Manager struct {
	decl       Declaration
	creds      Credentials
	config     *oauth2.Config
	httpClient *http.Client
	blobStore  BlobStore

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time
}

// NewManager builds a manager for one provider. The blob store is optional;
// when present, refresh state is mirrored there and recovered from it on
// construction so a restart can skip the password grant.
func NewManager(decl Declaration, creds Credentials, blobStore BlobStore) (*Manager, error) {
	if decl.Provider == "" {
		return nil, fmt.Errorf("provider is required")
	}
	if decl.TokenURL == "" {
		return nil, fmt.Errorf("tokenURL is required")
	}
	if err := creds.validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		decl:       decl,
		creds:      creds,
		blobStore:  blobStore,
		httpClient: &http.Client{Timeout: requestTimeout},
		config: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  decl.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}

	m.seedRefreshToken()

	return m, nil
}

// Authenticate performs the password grant and replaces the token state.
// This is the fallback path whenever no usable refresh token exists.
func (m *Manager) Authenticate(ctx context.Context) error {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	token, err := m.config.PasswordCredentialsToken(ctx, m.creds.Username, m.creds.Password)
	if err != nil {
		authFailure.WithLabelValues(m.decl.Provider).Inc()
		tokenValid.WithLabelValues(m.decl.Provider).Set(0)
		return &Error{Op: "authenticate", Err: err}
	}
	if token.AccessToken == "" {
		authFailure.WithLabelValues(m.decl.Provider).Inc()
		tokenValid.WithLabelValues(m.decl.Provider).Set(0)
		return &Error{Op: "authenticate", Err: fmt.Errorf("response missing access_token")}
	}

	m.store(token)
	authSuccess.WithLabelValues(m.decl.Provider).Inc()
	tokenValid.WithLabelValues(m.decl.Provider).Set(1)
	m.persist(ctx)
	return nil
}

// Refresh exchanges the held refresh token for a new access token. Without a
// refresh token, or when the exchange fails, it falls back to Authenticate;
// refresh failures are expected to be self-healing via full re-auth.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	refreshToken := m.refreshToken
	m.mu.Unlock()

	if refreshToken == "" {
		return m.Authenticate(ctx)
	}

	tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	source := m.config.TokenSource(tokenCtx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		slog.Warn("token refresh failed; re-authenticating",
			"provider", m.decl.Provider, "error", err)
		refreshFailure.WithLabelValues(m.decl.Provider).Inc()
		return m.Authenticate(ctx)
	}

	m.store(token)
	refreshSuccess.WithLabelValues(m.decl.Provider).Inc()
	tokenValid.WithLabelValues(m.decl.Provider).Set(1)
	m.persist(ctx)
	return nil
}

// EnsureValid makes sure an access token is held and not past its renewal
// deadline. It cannot guarantee validity against server-side revocation;
// callers handle that reactively with a single Refresh and retry.
func (m *Manager) EnsureValid(ctx context.Context) error {
	m.mu.Lock()
	accessToken := m.accessToken
	expiresAt := m.expiresAt
	m.mu.Unlock()

	if accessToken == "" {
		return m.Authenticate(ctx)
	}
	if !time.Now().Before(expiresAt) {
		return m.Refresh(ctx)
	}
	return nil
}

// AccessToken returns a valid bearer token, authenticating or refreshing
// first when needed.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	if err := m.EnsureValid(ctx); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accessToken, nil
}

// store replaces the token triple as a unit. A rotated refresh token is
// adopted; an omitted one keeps the previous value.
func (m *Manager) store(token *oauth2.Token) {
	expiry := token.Expiry
	if expiry.IsZero() {
		expiry = time.Now().Add(defaultTokenLifetime)
	}

	m.mu.Lock()
	m.accessToken = token.AccessToken
	if token.RefreshToken != "" {
		m.refreshToken = token.RefreshToken
	}
	m.expiresAt = expiry.Add(-expiryMargin)
	m.mu.Unlock()
}

func (m *Manager) seedRefreshToken() {
	state, err := LoadState(m.decl.StatePath)
	if err != nil && m.blobStore != nil {
		state, err = m.loadFromBlob(context.Background())
	}
	if err != nil {
		return
	}
	if state.ClientID != m.creds.ClientID {
		slog.Debug("ignoring persisted refresh state for different client",
			"provider", m.decl.Provider)
		return
	}
	m.mu.Lock()
	m.refreshToken = state.RefreshToken
	m.mu.Unlock()
}

// persist mirrors the refresh state to disk and blob storage. Best effort:
// the freshly issued token is usable regardless.
func (m *Manager) persist(ctx context.Context) {
	m.mu.Lock()
	refreshToken := m.refreshToken
	m.mu.Unlock()

	if refreshToken == "" {
		return
	}

	state := State{
		SchemaVersion: SchemaVersion,
		ClientID:      m.creds.ClientID,
		RefreshToken:  refreshToken,
	}

	if m.decl.StatePath != "" {
		if err := WriteState(m.decl.StatePath, state); err != nil {
			slog.Warn("persist refresh state failed",
				"provider", m.decl.Provider, "error", err)
		}
	}
	if m.blobStore != nil {
		if err := m.persistBlob(ctx, state); err != nil {
			remotePersistOK.WithLabelValues(m.decl.Provider).Set(0)
			slog.Warn("mirror refresh state failed",
				"provider", m.decl.Provider, "error", err)
			return
		}
		remotePersistOK.WithLabelValues(m.decl.Provider).Set(1)
	}
}
