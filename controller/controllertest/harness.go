// Package controllertest runs controllers against the in-memory store with
// real access tokens.
package controllertest

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"flowboard/dto"
	"flowboard/middleware"
	"flowboard/services"
	"flowboard/session"

	"github.com/gin-gonic/gin"
)

// Owner owns the seeded demo project; "teammate" is a plain member.
const Owner = "owner"

var secret = []byte("controller-test-secret")

type Harness struct {
	Router   *gin.Engine
	Memory   *services.Memory
	Sessions *session.Manager
}

func New(t testing.TB, register ...func(gin.IRoutes, *session.Manager)) *Harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if err := dto.RegisterValidators(); err != nil {
		t.Fatalf("RegisterValidators() err=%v", err)
	}
	mem := services.NewMemory()
	services.SeedDemo(mem, Owner)
	sessions := session.NewManager(mem.For, time.Hour)
	t.Cleanup(sessions.Close)

	router := gin.New()
	api := router.Group("/", middleware.AccessTokenMiddleware(secret))
	for _, reg := range register {
		reg(api, sessions)
	}
	return &Harness{Router: router, Memory: mem, Sessions: sessions}
}

// Do sends body as JSON on behalf of userID; an empty userID sends no token.
func (h *Harness) Do(t testing.TB, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := services.CreateAccessToken(secret, userID, "", time.Hour)
		if err != nil {
			t.Fatalf("CreateAccessToken() err=%v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.Router.ServeHTTP(w, req)
	return w
}

// Decode unmarshals the recorded body into v.
func Decode(t testing.TB, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func Expect(t testing.TB, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status=%d, want %d (body %s)", w.Code, status, w.Body.String())
	}
}

