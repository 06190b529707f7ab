package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/DoyleJ11/chess-relay/internal/archive"
	"github.com/DoyleJ11/chess-relay/internal/gateway"
	"github.com/DoyleJ11/chess-relay/internal/hub"
	"github.com/DoyleJ11/chess-relay/internal/session"
	"github.com/DoyleJ11/chess-relay/internal/supervisor"
	"github.com/DoyleJ11/chess-relay/internal/types"
	"github.com/DoyleJ11/chess-relay/internal/ws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	gw      *gateway.Gateway
	hub     *hub.Hub
	handler http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zap.NewNop()
	store := session.NewStore(log)
	h := hub.NewHub(context.Background(), store, log, 64)
	sup := supervisor.New(store, h, archive.Nop{}, time.Minute, log)
	gw := gateway.New(store, sup, h, log)
	t.Cleanup(func() {
		sup.Stop()
		h.Shutdown()
	})

	return &fixture{
		gw:  gw,
		hub: h,
		handler: SetupRoutes(Deps{
			Gateway:        gw,
			Hub:            h,
			AllowedOrigins: []string{"http://localhost:5173"},
			WS: ws.Options{
				OutboxSize:      16,
				PingInterval:    time.Minute,
				WriteTimeout:    time.Second,
				MaxMessageBytes: 1 << 16,
			},
			Log: log,
		}),
	}
}

func (f *fixture) do(method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestGenerateCode(t *testing.T) {
	re := regexp.MustCompile(`^[A-Z0-9]{6}$`)
	for range 100 {
		c, err := GenerateCode()
		require.NoError(t, err)
		assert.Regexp(t, re, c)
	}
}

func TestCodeFrom_SkipsBiasedBytes(t *testing.T) {
	// 252..255 would over-weight the first symbols, so they are dropped
	stream := []byte{255, 0, 252, 1, 35, 36, 71, 253, 25, 2, 254, 3}
	c, err := codeFrom(bytes.NewReader(stream))
	require.NoError(t, err)
	assert.Equal(t, "AB9A9Z", c)
}

func TestCodeFrom_ShortRead(t *testing.T) {
	_, err := codeFrom(bytes.NewReader([]byte{1, 2, 3}))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestFreeCode_RegeneratesOnCollision(t *testing.T) {
	codes := []string{"AAAAAA", "BBBBBB", "CCCCCC"}
	i := 0
	gen := func() (string, error) {
		c := codes[i]
		i++
		return c, nil
	}
	taken := map[string]bool{"AAAAAA": true, "BBBBBB": true}

	c, err := freeCode(func(s string) bool { return taken[s] }, gen)
	require.NoError(t, err)
	assert.Equal(t, "CCCCCC", c)
}

func TestFreeCode_GivesUp(t *testing.T) {
	_, err := freeCode(
		func(string) bool { return true },
		func() (string, error) { return "AAAAAA", nil },
	)
	assert.ErrorIs(t, err, errCodeSpaceExhausted)

	boom := errors.New("no entropy")
	_, err = freeCode(
		func(string) bool { return false },
		func() (string, error) { return "", boom },
	)
	assert.ErrorIs(t, err, boom)
}

func TestCreateSession(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/sessions")
	require.Equal(t, http.StatusCreated, rec.Code)

	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Len(t, body.Code, 6)
	assert.False(t, f.gw.Exists(body.Code))
}

func TestGetSession(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/sessions/NOPE00")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	out := make(chan types.ServerMessage, 8)
	f.hub.Register("c1", out)
	require.NoError(t, f.gw.Join("c1", "ABC123", "Alice"))

	rec = f.do(http.MethodGet, "/sessions/ABC123")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var view gateway.SessionView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	assert.Equal(t, "ABC123", view.SessionID)
	require.Len(t, view.Players, 1)
	assert.Equal(t, "Alice", view.Players[0].DisplayName)
	assert.Equal(t, string(supervisor.StateConnected), view.Players[0].State)
	assert.Nil(t, view.State)
}

func TestHealthzAndIndex(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz").Code)

	rec := f.do(http.MethodGet, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "running")
}

func TestCORS(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/sessions", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
