package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"voice-agent/internal/config"

	"github.com/gin-gonic/gin"
)

func TestRequireAccessToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	m, err := NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	issued := time.Unix(1700000000, 0).UTC()
	m.now = func() time.Time { return issued.Add(10 * time.Second) }
	pair, err := m.IssuePair(issued, "ops", "operator")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	r := gin.New()
	r.GET("/x", RequireAccessToken(m), func(c *gin.Context) {
		role, _ := Role(c.Request.Context())
		c.String(http.StatusOK, c.GetString(GinKeySubject)+"/"+role)
	})
	call := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	if w := call("Bearer " + pair.AccessToken); w.Code != http.StatusOK || w.Body.String() != "ops/operator" {
		t.Fatalf("expected identity passed through, got %d %q", w.Code, w.Body.String())
	}
	for _, h := range []string{"", "Bearer ", "Basic abc", "Bearer " + pair.RefreshToken} {
		if w := call(h); w.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", h, w.Code)
		}
	}

	m.now = func() time.Time { return issued.Add(time.Hour) }
	if w := call("Bearer " + pair.AccessToken); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected expired token rejected, got %d", w.Code)
	}
}
