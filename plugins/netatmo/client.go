package netatmo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/joshp123/intercomd/internal/auth"
)

// appVersion is the fixed client version the setstate endpoint expects.
const appVersion = "4.1.1.3"

// APIError is a non-success response from the Netatmo API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("netatmo api error %d: %s", e.Status, strings.TrimSpace(e.Body))
}

// TransportError is a network-level failure before any HTTP status arrived.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("netatmo request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Client talks to the Netatmo intercom API. Every call goes out with a
// token the auth manager considers valid; a forbidden response gets exactly
// one refresh and one retry, and the retry's outcome is final.
type Client struct {
	apiURL      string
	setStateURL string
	auth        *auth.Manager
	httpClient  *http.Client
}

func NewClient(cfg Config, manager *auth.Manager) (*Client, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if manager == nil {
		return nil, fmt.Errorf("auth manager is required")
	}

	return &Client{
		apiURL:      cfg.APIURL,
		setStateURL: cfg.SetStateURL,
		auth:        manager,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// HomesData fetches the raw account topology.
func (c *Client) HomesData(ctx context.Context) (HomesData, error) {
	body, err := c.do(ctx, http.MethodGet, c.apiURL+"/homesdata", nil)
	if err != nil {
		return HomesData{}, err
	}

	var resp struct {
		Body HomesData `json:"body"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return HomesData{}, fmt.Errorf("decode homesdata: %w", err)
	}
	return resp.Body, nil
}

// DoorModules flattens the topology into controllable doors. Homes without
// a bridge module are skipped entirely; a home with doors but no bridge is
// non-controllable and excluded on purpose. Order follows the upstream
// response, and an empty result is not an error.
func (c *Client) DoorModules(ctx context.Context) ([]DoorModule, error) {
	data, err := c.HomesData(ctx)
	if err != nil {
		return nil, err
	}
	return extractDoorModules(data), nil
}

func extractDoorModules(data HomesData) []DoorModule {
	var doors []DoorModule
	for _, home := range data.Homes {
		bridgeID := findBridge(home)
		if bridgeID == "" {
			continue
		}
		for _, module := range home.Modules {
			if module.Type != moduleTypeDoor {
				continue
			}
			doors = append(doors, DoorModule{
				HomeID:     home.ID,
				HomeName:   home.Name,
				Timezone:   home.Timezone,
				BridgeID:   bridgeID,
				ModuleID:   module.ID,
				ModuleName: module.Name,
			})
		}
	}
	return doors
}

func findBridge(home Home) string {
	for _, module := range home.Modules {
		if module.Type == moduleTypeBridge {
			return module.ID
		}
	}
	return ""
}

// OpenDoor releases one door. The API has no explicit open verb, only a
// lock-state toggle; lock:false is the release command. The response is
// required to be well-formed JSON but is otherwise uninterpreted, and any
// momentary/auto-reset behavior is the caller's concern.
func (c *Client) OpenDoor(ctx context.Context, homeID, timezone, bridgeID, moduleID string) error {
	payload := map[string]any{
		"app_type":    "app_camera",
		"app_version": appVersion,
		"home": map[string]any{
			"timezone": timezone,
			"id":       homeID,
			"modules": []map[string]any{
				{
					"bridge": bridgeID,
					"lock":   false,
					"id":     moduleID,
				},
			},
		},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode setstate payload: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, c.setStateURL, data)
	if err != nil {
		return err
	}

	var result any
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("decode setstate response: %w", err)
	}
	slog.Debug("door open response", "module_id", moduleID, "response", result)
	return nil
}

// do wraps one authenticated call: token assurance, bearer header, and the
// one-shot reactive retry on a forbidden status.
func (c *Client) do(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
	token, err := c.auth.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	status, body, err := c.send(ctx, method, url, payload, token)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	if status == http.StatusForbidden {
		slog.Debug("netatmo rejected token; refreshing once", "url", url)
		if err := c.auth.Refresh(ctx); err != nil {
			return nil, err
		}
		token, err = c.auth.AccessToken(ctx)
		if err != nil {
			return nil, err
		}
		status, body, err = c.send(ctx, method, url, payload, token)
		if err != nil {
			return nil, &TransportError{Err: err}
		}
	}

	if status < 200 || status >= 300 {
		return nil, &APIError{Status: status, Body: string(body)}
	}
	return body, nil
}

func (c *Client) send(ctx context.Context, method, url string, payload []byte, token string) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}
