package smartapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/smartapp-tw/smartapp/pkg/common"
	"github.com/smartapp-tw/smartapp/pkg/log"
	"github.com/smartapp-tw/smartapp/pkg/types"
)

// Client talks to the Panasonic Smart App cloud. All authenticated calls share
// one capability token and one pacing budget; the zero value is not usable,
// construct via New or Configured.
type Client struct {
	client   *http.Client
	baseURL  string
	account  string
	password string
	limiter  *rate.Limiter

	mu           sync.Mutex // guards the token pair
	refreshToken string
	cpToken      string
	tokenGen     uint64

	authMu sync.Mutex // serializes recovery-driven re-auth

	catMu   sync.Mutex // guards devices and catalog
	devices []types.Device
	catalog *catalog

	lastRequestID atomic.Uint64
}

// Config holds the Client's construction parameters. Proxy and BaseURL may be
// empty.
type Config struct {
	Account  string
	Password string
	Proxy    string
	BaseURL  string
}

// New creates a Client for the given account.
func New(cfg Config) (*Client, error) {
	if cfg.Account == "" {
		return nil, fmt.Errorf("missing account")
	}
	if cfg.Password == "" {
		return nil, fmt.Errorf("missing password")
	}
	httpClient, err := common.HTTPClient(requestTimeout, cfg.Proxy)
	if err != nil {
		return nil, err
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		client:   httpClient,
		baseURL:  baseURL,
		account:  cfg.Account,
		password: cfg.Password,
		limiter:  rate.NewLimiter(rate.Every(secondsBetweenRequest), 1),
	}, nil
}

type tokenResponse struct {
	RefreshToken string `json:"RefreshToken"`
	CPToken      string `json:"CPToken"`
}

// Login authenticates with the stored account credentials and rotates both
// tokens. Credentials are never logged.
func (c *Client) Login(ctx context.Context) error {
	log.Ctx(ctx).InfoContext(ctx, "logging in to smart app")
	body := map[string]string{"MemId": c.account, "PW": c.password, "AppToken": appToken}
	var res tokenResponse
	if err := c.request(ctx, http.MethodPost, pathLogin, nil, nil, body, &res); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if res.CPToken == "" || res.RefreshToken == "" {
		return ErrLoginFailed
	}
	c.storeTokens(res)
	log.Ctx(ctx).DebugContext(ctx, "smart app login success")
	return nil
}

// RefreshTokens exchanges the stored refresh token for a new token pair. Both
// tokens rotate on success.
func (c *Client) RefreshTokens(ctx context.Context) error {
	c.mu.Lock()
	rt := c.refreshToken
	c.mu.Unlock()
	if rt == "" {
		return ErrRefreshTokenNotFound
	}

	log.Ctx(ctx).InfoContext(ctx, "refreshing smart app tokens")
	var res tokenResponse
	if err := c.request(ctx, http.MethodPost, pathRefreshToken, nil, nil, map[string]string{"RefreshToken": rt}, &res); err != nil {
		return err
	}
	if res.CPToken == "" || res.RefreshToken == "" {
		return ErrInvalidRefreshToken
	}
	c.storeTokens(res)
	return nil
}

func (c *Client) storeTokens(res tokenResponse) {
	c.mu.Lock()
	c.refreshToken = res.RefreshToken
	c.cpToken = res.CPToken
	c.tokenGen++
	c.mu.Unlock()
}

// capabilityToken returns the current capability token along with its
// generation. The generation lets recovery detect that another call already
// rotated the tokens.
func (c *Client) capabilityToken() (string, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cpToken, c.tokenGen
}

// SetCommand issues a single control command to the device identified by its
// auth key. Callers observe the effect by re-polling; no local state is
// updated here.
func (c *Client) SetCommand(ctx context.Context, auth string, command int, value string) error {
	log.Ctx(ctx).DebugContext(ctx, "sending smart app command",
		slog.Int("commandType", command),
		slog.String("value", value),
	)
	q := url.Values{}
	q.Set("DeviceID", "1")
	q.Set("CommandType", strconv.Itoa(command))
	q.Set("Value", value)
	return c.authed(ctx, func(ctx context.Context, token string) error {
		h := http.Header{}
		h.Set("cptoken", token)
		h.Set("auth", auth)
		return c.request(ctx, http.MethodGet, pathSetCommand, h, q, nil, nil)
	})
}

// WriteCommandCode converts a status code like "0x01" into the write code the
// vendor expects on DeviceSetCommand (0x80 + status code).
func WriteCommandCode(statusCode string) (int, error) {
	s := strings.TrimPrefix(strings.ToLower(statusCode), "0x")
	n, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid status code %q: %w", statusCode, err)
	}
	return int(n) | 0x80, nil
}

// request is the single wire primitive. Every call waits on the shared pacing
// limiter first, so the account-wide request rate stays under the vendor's
// threshold no matter how many logical operations run concurrently.
func (c *Client) request(ctx context.Context, method, path string, header http.Header, query url.Values, body, dest interface{}) error {
	reqID := c.lastRequestID.Add(1)

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return err
	}
	u.Path, err = url.JoinPath(u.Path, path)
	if err != nil {
		return err
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var payload io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(b)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), payload)
	if err != nil {
		return err
	}
	if header != nil {
		req.Header = header.Clone()
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// login carries credentials, keep it out of the logs
	if path != pathLogin {
		log.Ctx(ctx).DebugContext(ctx, "smart app request",
			slog.Uint64("id", reqID),
			slog.String("method", method),
			slog.String("path", path),
		)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		// an unreachable appliance surfaces as a transport error on its
		// device-scoped call
		return fmt.Errorf("%w: %v", ErrDeviceOffline, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceOffline, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		if dest != nil && len(raw) > 0 {
			if err := json.Unmarshal(raw, dest); err != nil {
				log.Ctx(ctx).DebugContext(ctx, "unparseable response body, treating as empty",
					slog.Uint64("id", reqID),
					slog.Any("error", err),
				)
			}
		}
		return nil
	case http.StatusExpectationFailed:
		return c.expectationError(ctx, reqID, raw)
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		log.Ctx(ctx).ErrorContext(ctx, "smart app request failed",
			slog.Uint64("id", reqID),
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(raw)),
		)
		return nil
	}
}

// expectationError maps a 417 body's StateMsg onto the error taxonomy. The
// vendor's strings are undocumented; anything unrecognized degrades to a
// generic login failure rather than guessing new semantics.
func (c *Client) expectationError(ctx context.Context, reqID uint64, raw []byte) error {
	var er struct {
		StateMsg string `json:"StateMsg"`
	}
	if err := json.Unmarshal(raw, &er); err != nil {
		// invalid CPToken or something else entirely
		return ErrLoginFailed
	}
	switch er.StateMsg {
	case stateMsgDeviceOffline, stateMsgDeviceNoResponse, stateMsgDeviceJPInfo, stateMsgDeviceJPFailed:
		return ErrDeviceOffline
	case stateMsgCPTokenExpired, stateMsgCPTokenInvalid:
		return ErrTokenExpired
	case stateMsgInvalidRefreshToken:
		return ErrInvalidRefreshToken
	case stateMsgRateLimited:
		return ErrRateLimited
	default:
		log.Ctx(ctx).ErrorContext(ctx, "smart app api error",
			slog.Uint64("id", reqID),
			slog.String("stateMsg", er.StateMsg),
		)
		return ErrLoginFailed
	}
}
