package smartapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func infLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Inf, 1)
}

func newTestClient(t *testing.T, ts *httptest.Server) *Client {
	t.Helper()
	return &Client{
		client:   ts.Client(),
		baseURL:  ts.URL,
		account:  "user@example.com",
		password: "secret",
		limiter:  infLimiter(),
	}
}

func writeJSON(t *testing.T, w http.ResponseWriter, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestLogin(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/Userlogin1", r.URL.Path)
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "user@example.com", body["MemId"])
			assert.Equal(t, "secret", body["PW"])
			assert.Equal(t, appToken, body["AppToken"])
			writeJSON(t, w, map[string]string{"RefreshToken": "r1", "CPToken": "c1"})
		}))
		defer ts.Close()

		c := newTestClient(t, ts)
		require.NoError(t, c.Login(context.Background()))

		token, gen := c.capabilityToken()
		assert.Equal(t, "c1", token)
		assert.Equal(t, uint64(1), gen)
		c.mu.Lock()
		assert.Equal(t, "r1", c.refreshToken)
		c.mu.Unlock()
	})

	t.Run("UnrecognizableBody", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, map[string]string{})
		}))
		defer ts.Close()

		c := newTestClient(t, ts)
		err := c.Login(context.Background())
		require.ErrorIs(t, err, ErrLoginFailed)
	})

	t.Run("RateLimited", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer ts.Close()

		c := newTestClient(t, ts)
		err := c.Login(context.Background())
		require.ErrorIs(t, err, ErrRateLimited)
	})
}

func TestRefreshTokens(t *testing.T) {
	t.Run("WithoutStoredToken", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("no request expected")
		}))
		defer ts.Close()

		c := newTestClient(t, ts)
		require.ErrorIs(t, c.RefreshTokens(context.Background()), ErrRefreshTokenNotFound)
	})

	t.Run("RotatesBothTokens", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/RefreshToken1", r.URL.Path)
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "r1", body["RefreshToken"])
			writeJSON(t, w, map[string]string{"RefreshToken": "r2", "CPToken": "c2"})
		}))
		defer ts.Close()

		c := newTestClient(t, ts)
		c.storeTokens(tokenResponse{RefreshToken: "r1", CPToken: "c1"})
		require.NoError(t, c.RefreshTokens(context.Background()))

		token, _ := c.capabilityToken()
		assert.Equal(t, "c2", token)
		c.mu.Lock()
		assert.Equal(t, "r2", c.refreshToken)
		c.mu.Unlock()
	})

	t.Run("RejectedToken", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusExpectationFailed)
			writeJSON(t, w, map[string]string{"StateMsg": stateMsgInvalidRefreshToken})
		}))
		defer ts.Close()

		c := newTestClient(t, ts)
		c.storeTokens(tokenResponse{RefreshToken: "stale", CPToken: "c1"})
		require.ErrorIs(t, c.RefreshTokens(context.Background()), ErrInvalidRefreshToken)
	})
}

// An expired capability token triggers exactly one refresh and the replayed
// call carries the new token.
func TestTokenRotationOnExpiry(t *testing.T) {
	var mu sync.Mutex
	var listTokens []string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/Userlogin1":
			writeJSON(t, w, map[string]string{"RefreshToken": "r1", "CPToken": "c1"})
		case "/RefreshToken1":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "r1", body["RefreshToken"])
			writeJSON(t, w, map[string]string{"RefreshToken": "r2", "CPToken": "c2"})
		case "/UserGetRegisteredGwList2":
			mu.Lock()
			listTokens = append(listTokens, r.Header.Get("cptoken"))
			mu.Unlock()
			if r.Header.Get("cptoken") != "c2" {
				w.WriteHeader(http.StatusExpectationFailed)
				writeJSON(t, w, map[string]string{"StateMsg": stateMsgCPTokenExpired})
				return
			}
			writeJSON(t, w, map[string]interface{}{
				"GwList":      []map[string]interface{}{{"GWID": "GW1", "Auth": "a1", "DeviceType": "1"}},
				"CommandList": []interface{}{},
			})
		default:
			http.Error(w, "not found: "+r.URL.Path, http.StatusNotFound)
		}
	}))
	defer ts.Close()

	c := newTestClient(t, ts)
	require.NoError(t, c.Login(context.Background()))

	devices, err := c.GetDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "GW1", devices[0].GWID)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"c1", "c2"}, listTokens, "failed call with c1, replay with c2")
}

func TestSetCommand(t *testing.T) {
	t.Run("QueryAndHeaders", func(t *testing.T) {
		var called bool
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			require.Equal(t, "/DeviceSetCommand", r.URL.Path)
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "c1", r.Header.Get("cptoken"))
			assert.Equal(t, "auth-1", r.Header.Get("auth"))
			q := r.URL.Query()
			assert.Equal(t, "1", q.Get("DeviceID"))
			assert.Equal(t, "129", q.Get("CommandType"))
			assert.Equal(t, "0", q.Get("Value"))
			w.WriteHeader(http.StatusOK)
		}))
		defer ts.Close()

		c := newTestClient(t, ts)
		c.storeTokens(tokenResponse{RefreshToken: "r1", CPToken: "c1"})
		require.NoError(t, c.SetCommand(context.Background(), "auth-1", 129, "0"))
		assert.True(t, called)
	})

	t.Run("ReloginOnUnknownStateMsg", func(t *testing.T) {
		var setCalls, loginCalls int
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/Userlogin1":
				loginCalls++
				writeJSON(t, w, map[string]string{"RefreshToken": "r2", "CPToken": "c2"})
			case "/DeviceSetCommand":
				setCalls++
				if setCalls == 1 {
					w.WriteHeader(http.StatusExpectationFailed)
					writeJSON(t, w, map[string]string{"StateMsg": "something undocumented"})
					return
				}
				assert.Equal(t, "c2", r.Header.Get("cptoken"))
				w.WriteHeader(http.StatusOK)
			}
		}))
		defer ts.Close()

		c := newTestClient(t, ts)
		c.storeTokens(tokenResponse{RefreshToken: "r1", CPToken: "c1"})
		require.NoError(t, c.SetCommand(context.Background(), "auth-1", 129, "0"))
		assert.Equal(t, 2, setCalls)
		assert.Equal(t, 1, loginCalls)
	})
}

func TestWriteCommandCode(t *testing.T) {
	code, err := WriteCommandCode("0x01")
	require.NoError(t, err)
	assert.Equal(t, 129, code)

	code, err = WriteCommandCode("0x0E")
	require.NoError(t, err)
	assert.Equal(t, 142, code)

	code, err = WriteCommandCode("0x1f")
	require.NoError(t, err)
	assert.Equal(t, 159, code)

	_, err = WriteCommandCode("zz")
	require.Error(t, err)
}

// Every request waits on the shared limiter, so calls issued back to back are
// spaced out in time.
func TestRequestPacing(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c := newTestClient(t, ts)
	c.limiter = rate.NewLimiter(rate.Every(50*time.Millisecond), 1)

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, c.request(context.Background(), http.MethodGet, pathDeviceOverview, nil, nil, nil, nil))
	}
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestRequestStatusMapping(t *testing.T) {
	t.Run("UnknownStatusDegradesToEmpty", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer ts.Close()

		c := newTestClient(t, ts)
		var dest map[string]string
		require.NoError(t, c.request(context.Background(), http.MethodGet, pathDeviceOverview, nil, nil, nil, &dest))
		assert.Empty(t, dest)
	})

	t.Run("InvalidBodyTreatedAsEmpty", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("not json"))
		}))
		defer ts.Close()

		c := newTestClient(t, ts)
		var dest map[string]string
		require.NoError(t, c.request(context.Background(), http.MethodGet, pathDeviceOverview, nil, nil, nil, &dest))
		assert.Empty(t, dest)
	})

	t.Run("OfflineStateMsg", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusExpectationFailed)
			writeJSON(t, w, map[string]string{"StateMsg": stateMsgDeviceOffline})
		}))
		defer ts.Close()

		c := newTestClient(t, ts)
		err := c.request(context.Background(), http.MethodPost, pathDeviceGetInfo, nil, nil, nil, nil)
		require.ErrorIs(t, err, ErrDeviceOffline)
	})

	t.Run("Unreachable", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		ts.Close() // connection refused

		c := newTestClient(t, ts)
		err := c.request(context.Background(), http.MethodGet, pathDeviceOverview, nil, nil, nil, nil)
		require.ErrorIs(t, err, ErrDeviceOffline)
	})
}
