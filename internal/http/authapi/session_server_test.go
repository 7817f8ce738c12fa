package authapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authd/internal/services/credentials"
	"authd/internal/services/session"
	"authd/internal/storage/memory"
)

func newSessionTestServer(t *testing.T, ttl time.Duration) *httptest.Server {
	t.Helper()

	store := newMemStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	creds, err := credentials.New(logger, store, store, 6, testBcryptCost)
	require.NoError(t, err)

	sessions := session.New(logger, memory.New(), ttl)

	server := NewSessionServer(logger, creds, sessions, ttl, "memory")

	ts := httptest.NewServer(server.Routes())
	t.Cleanup(ts.Close)

	return ts
}

func postJSONWith(t *testing.T, client *http.Client, url string, body any) *http.Response {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := client.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)

	return resp
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, cookie := range resp.Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

// sessionClient carries cookies across requests like a browser would.
func sessionClient(t *testing.T, ts *httptest.Server) *http.Client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	client := &http.Client{Jar: jar}
	t.Cleanup(client.CloseIdleConnections)

	return client
}

func TestSessionFlow(t *testing.T) {
	ts := newSessionTestServer(t, time.Hour)
	client := sessionClient(t, ts)

	email := gofakeit.Email()
	password := randomPassword()

	// Register and login.
	resp := postJSONWith(t, client, ts.URL+"/register", registerRequest{Email: email, Password: password})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postJSONWith(t, client, ts.URL+"/login", loginRequest{Email: email, Password: password})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	cookie := findCookie(resp, sessionCookieName)
	require.NotNil(t, cookie)
	assert.NotEmpty(t, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "/", cookie.Path)

	// Profile rides the cookie.
	resp, err := client.Get(ts.URL + "/profile")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	user := decodeBody[profileResponse](t, resp)
	assert.Equal(t, email, user.Email)

	// Session metadata never echoes the full id.
	resp, err = client.Get(ts.URL + "/session")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	info := decodeBody[sessionInfoResponse](t, resp)
	assert.Equal(t, "memory", info.Backend)
	assert.NotEqual(t, cookie.Value, info.SessionID)
	assert.True(t, info.ExpiresAt.After(info.CreatedAt))

	// Logout clears the cookie and kills the session.
	resp = postJSONWith(t, client, ts.URL+"/logout", struct{}{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	cleared := findCookie(resp, sessionCookieName)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)

	resp, err = client.Get(ts.URL + "/profile")
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// Logout without a session still succeeds.
	resp = postJSONWith(t, client, ts.URL+"/logout", struct{}{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestSessionProfile_NoCookie(t *testing.T) {
	ts := newSessionTestServer(t, time.Hour)

	resp, err := ts.Client().Get(ts.URL + "/profile")
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	errBody := decodeBody[errorResponse](t, resp)
	assert.Equal(t, genericAuthFailure, errBody.Error)
}

func TestSessionProfile_Expired(t *testing.T) {
	ts := newSessionTestServer(t, -time.Minute)
	client := sessionClient(t, ts)

	email := gofakeit.Email()
	password := randomPassword()

	postJSONWith(t, client, ts.URL+"/register", registerRequest{Email: email, Password: password}).Body.Close()
	postJSONWith(t, client, ts.URL+"/login", loginRequest{Email: email, Password: password}).Body.Close()

	resp, err := client.Get(ts.URL + "/profile")
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestSessionLogin_WrongPassword(t *testing.T) {
	ts := newSessionTestServer(t, time.Hour)
	client := sessionClient(t, ts)

	email := gofakeit.Email()

	postJSONWith(t, client, ts.URL+"/register", registerRequest{Email: email, Password: randomPassword()}).Body.Close()

	resp := postJSONWith(t, client, ts.URL+"/login", loginRequest{Email: email, Password: "wrong-password"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	assert.Nil(t, findCookie(resp, sessionCookieName))
}
