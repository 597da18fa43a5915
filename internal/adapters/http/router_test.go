package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dkeye/Chat/internal/adapters/signal"
	"github.com/dkeye/Chat/internal/app"
	"github.com/dkeye/Chat/internal/app/orch"
	"github.com/dkeye/Chat/internal/auth"
	"github.com/dkeye/Chat/internal/config"
	"github.com/dkeye/Chat/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testAPI struct {
	router *gin.Engine
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store, err := storage.Open(storage.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := &config.Config{Mode: "test", Secret: "cookie-secret", HistoryLimit: 50, JWT: config.JWT{AccessTTL: time.Hour}}
	svc := auth.NewService(store, auth.NewJWTManager(auth.JWTConfig{Secret: "s", AccessTTL: time.Hour, RefreshTTL: time.Hour}), auth.NewPasswordHasher(bcrypt.MinCost))
	reg := app.NewRegistry()
	disp := app.NewDispatcher(app.SimplePolicy{})
	o := orch.New(reg, app.NewHub(store, reg, disp), disp)

	api := &API{
		Orch:         o,
		Auth:         svc,
		Rooms:        store,
		Signal:       signal.NewSignalWSController(o, svc, signal.Options{}),
		HistoryLimit: cfg.HistoryLimit,
	}
	return &testAPI{router: SetupRouter(context.Background(), cfg, api)}
}

type call struct {
	method, path, token string
	body                any
	cookies             []*http.Cookie
}

func (a *testAPI) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if c.body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(c.body))
	}
	r := httptest.NewRequest(c.method, c.path, &buf)
	r.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		r.Header.Set("Authorization", "Bearer "+c.token)
	}
	for _, ck := range c.cookies {
		r.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

// signup registers and logs in name, returning the access token.
func (a *testAPI) signup(t *testing.T, name string) string {
	t.Helper()
	w := a.do(t, call{method: http.MethodPost, path: "/api/auth/register", body: map[string]string{
		"username": name, "email": name + "@example.com", "password": "passw0rd!",
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = a.do(t, call{method: http.MethodPost, path: "/api/auth/login", body: map[string]string{
		"email": name + "@example.com", "password": "passw0rd!",
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[auth.Tokens](t, w).AccessToken
}

func TestHealthz(t *testing.T) {
	a := newTestAPI(t)
	w := a.do(t, call{method: http.MethodGet, path: "/healthz"})
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"ok","connections":0,"rooms":0}`, w.Body.String())
}

func TestAuthEndpoints(t *testing.T) {
	t.Run("login sets a session usable instead of a bearer token", func(t *testing.T) {
		req := require.New(t)
		a := newTestAPI(t)
		a.signup(t, "alice")
		w := a.do(t, call{method: http.MethodPost, path: "/api/auth/login", body: map[string]string{
			"email": "alice@example.com", "password": "passw0rd!",
		}})
		req.Equal(http.StatusOK, w.Code)
		cookies := w.Result().Cookies()
		req.NotEmpty(cookies)

		w = a.do(t, call{method: http.MethodGet, path: "/api/auth/me", cookies: cookies})
		req.Equal(http.StatusOK, w.Code)
		me := decode[auth.Profile](t, w)
		req.Equal("alice", me.Username)
		req.NotContains(w.Body.String(), "passwordHash")
	})

	t.Run("refresh issues a working access token", func(t *testing.T) {
		req := require.New(t)
		a := newTestAPI(t)
		a.signup(t, "alice")
		w := a.do(t, call{method: http.MethodPost, path: "/api/auth/login", body: map[string]string{
			"email": "alice@example.com", "password": "passw0rd!",
		}})
		tokens := decode[auth.Tokens](t, w)

		w = a.do(t, call{method: http.MethodPost, path: "/api/auth/refresh-token", body: map[string]string{"refreshToken": tokens.RefreshToken}})
		req.Equal(http.StatusOK, w.Code)
		access := decode[map[string]string](t, w)["accessToken"]
		w = a.do(t, call{method: http.MethodGet, path: "/api/auth/me", token: access})
		req.Equal(http.StatusOK, w.Code)
	})

	t.Run("errors map to statuses", func(t *testing.T) {
		req := require.New(t)
		a := newTestAPI(t)
		a.signup(t, "alice")

		w := a.do(t, call{method: http.MethodPost, path: "/api/auth/register", body: map[string]string{
			"username": "alice", "email": "alice@example.com", "password": "passw0rd!",
		}})
		req.Equal(http.StatusConflict, w.Code)
		req.Equal("conflict", decode[map[string]string](t, w)["code"])

		w = a.do(t, call{method: http.MethodPost, path: "/api/auth/login", body: map[string]string{
			"email": "alice@example.com", "password": "nope",
		}})
		req.Equal(http.StatusUnauthorized, w.Code)

		w = a.do(t, call{method: http.MethodPost, path: "/api/auth/login", body: map[string]string{}})
		req.Equal(http.StatusBadRequest, w.Code)

		w = a.do(t, call{method: http.MethodGet, path: "/api/chat/rooms"})
		req.Equal(http.StatusUnauthorized, w.Code)
		req.Equal("authentication_error", decode[map[string]string](t, w)["code"])
	})
}

func TestChatEndpoints(t *testing.T) {
	req := require.New(t)
	a := newTestAPI(t)
	alice := a.signup(t, "alice")
	bob := a.signup(t, "bob")

	w := a.do(t, call{method: http.MethodPost, path: "/api/chat/rooms", token: alice, body: map[string]any{"name": "general"}})
	req.Equal(http.StatusCreated, w.Code, w.Body.String())
	general := decode[roomResponse](t, w)
	req.False(general.IsPrivate)
	req.Equal(1, general.Members)

	w = a.do(t, call{method: http.MethodPost, path: "/api/chat/rooms", token: alice, body: map[string]any{"name": "secret", "isPrivate": true}})
	req.Equal(http.StatusCreated, w.Code)
	secret := decode[roomResponse](t, w)

	w = a.do(t, call{method: http.MethodGet, path: "/api/chat/rooms", token: bob})
	req.Equal(http.StatusOK, w.Code)
	req.Len(decode[[]roomResponse](t, w), 1)

	w = a.do(t, call{method: http.MethodPost, path: "/api/chat/rooms/" + string(secret.ID) + "/join", token: bob})
	req.Equal(http.StatusForbidden, w.Code)
	w = a.do(t, call{method: http.MethodGet, path: "/api/chat/rooms/" + string(secret.ID) + "/messages", token: bob})
	req.Equal(http.StatusForbidden, w.Code)

	w = a.do(t, call{method: http.MethodPost, path: "/api/chat/rooms/" + string(general.ID) + "/join", token: bob})
	req.Equal(http.StatusOK, w.Code, w.Body.String())

	for _, content := range []string{"first", "second", "third"} {
		w = a.do(t, call{method: http.MethodPost, path: "/api/chat/messages", token: bob, body: map[string]string{"roomId": string(general.ID), "content": content}})
		req.Equal(http.StatusCreated, w.Code, w.Body.String())
		time.Sleep(time.Millisecond)
	}
	w = a.do(t, call{method: http.MethodPost, path: "/api/chat/messages", token: bob, body: map[string]string{"roomId": string(general.ID), "content": ""}})
	req.Equal(http.StatusBadRequest, w.Code)

	w = a.do(t, call{method: http.MethodGet, path: "/api/chat/rooms/" + string(general.ID) + "/messages?limit=2", token: alice})
	req.Equal(http.StatusOK, w.Code)
	page := decode[[]messageResponse](t, w)
	req.Len(page, 2)
	req.Equal("second", page[0].Content)
	req.Equal("third", page[1].Content)
	req.False(page[0].IsCurrentUser)

	before := page[0].Timestamp.Format(time.RFC3339Nano)
	w = a.do(t, call{method: http.MethodGet, path: "/api/chat/rooms/" + string(general.ID) + "/messages?before=" + before, token: bob})
	req.Equal(http.StatusOK, w.Code)
	older := decode[[]messageResponse](t, w)
	req.Len(older, 1)
	req.Equal("first", older[0].Content)
	req.True(older[0].IsCurrentUser)

	w = a.do(t, call{method: http.MethodGet, path: "/api/chat/rooms/" + string(general.ID) + "/messages?limit=x", token: bob})
	req.Equal(http.StatusBadRequest, w.Code)

	w = a.do(t, call{method: http.MethodPost, path: "/api/chat/rooms/" + string(general.ID) + "/leave", token: bob})
	req.Equal(http.StatusOK, w.Code)
	w = a.do(t, call{method: http.MethodGet, path: "/api/chat/rooms", token: bob})
	rooms := decode[[]roomResponse](t, w)
	req.Len(rooms, 1)
	req.Equal(1, rooms[0].Members)

	w = a.do(t, call{method: http.MethodPost, path: "/api/chat/rooms/missing/join", token: bob})
	req.Equal(http.StatusNotFound, w.Code)
}
