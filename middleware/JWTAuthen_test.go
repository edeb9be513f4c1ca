package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"flowboard/services"

	"github.com/gin-gonic/gin"
)

var secret = []byte("test-secret")

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AccessTokenMiddleware(secret), func(c *gin.Context) {
		c.String(http.StatusOK, c.MustGet("userId").(string))
	})
	return r
}

func TestAccessTokenMiddleware(t *testing.T) {
	valid, err := services.CreateAccessToken(secret, "user-1", "u@example.com", time.Hour)
	if err != nil {
		t.Fatalf("CreateAccessToken() err=%v", err)
	}
	expired, _ := services.CreateAccessToken(secret, "user-1", "", -time.Minute)
	forged, _ := services.CreateAccessToken([]byte("other"), "user-1", "", time.Hour)
	anonymous, _ := services.CreateAccessToken(secret, "", "", time.Hour)

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{name: "valid", header: "Bearer " + valid, status: http.StatusOK, body: "user-1"},
		{name: "missing", header: "", status: http.StatusUnauthorized},
		{name: "no bearer prefix", header: valid, status: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + expired, status: http.StatusForbidden},
		{name: "wrong secret", header: "Bearer " + forged, status: http.StatusForbidden},
		{name: "no user id", header: "Bearer " + anonymous, status: http.StatusUnauthorized},
	}
	r := newRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.status {
				t.Fatalf("status=%d, want %d (body %s)", w.Code, tt.status, w.Body.String())
			}
			if tt.body != "" && w.Body.String() != tt.body {
				t.Fatalf("body=%q, want %q", w.Body.String(), tt.body)
			}
		})
	}
}
