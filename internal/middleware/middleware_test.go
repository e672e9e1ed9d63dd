package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuth() *service.AuthService {
	return service.NewAuthService(&config.Config{JWTSecret: "rahasia", JWTExpiry: time.Hour})
}

func token(t *testing.T, auth *service.AuthService, typ service.TokenType, perms ...string) string {
	t.Helper()
	tok, err := auth.IssueToken(typ, 7, 1, perms)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	return tok
}

func TestRequireStudentJWT(t *testing.T) {
	auth := newAuth()
	r := gin.New()
	r.GET("/x", RequireStudentJWT(auth), func(c *gin.Context) {
		c.String(http.StatusOK, "%d", GetClaims(c).UserID)
	})

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"no token", "", "", http.StatusUnauthorized},
		{"garbage", "Bearer abc", "", http.StatusUnauthorized},
		{"admin token", "Bearer " + token(t, auth, service.TokenTypeAdmin), "", http.StatusForbidden},
		{"student header", "Bearer " + token(t, auth, service.TokenTypeStudent), "", http.StatusOK},
		{"student query", "", token(t, auth, service.TokenTypeStudent), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := "/x"
			if tt.query != "" {
				url += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, url, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestRequirePermission(t *testing.T) {
	auth := newAuth()
	r := gin.New()
	r.POST("/force", RequireAdminJWT(auth), RequirePermission(model.PermissionAttemptsForceSubmit), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	for _, tc := range []struct {
		perms []string
		want  int
	}{
		{nil, http.StatusForbidden},
		{[]string{string(model.PermissionExamsMonitor)}, http.StatusForbidden},
		{[]string{string(model.PermissionAttemptsForceSubmit)}, http.StatusNoContent},
	} {
		req := httptest.NewRequest(http.MethodPost, "/force", nil)
		req.Header.Set("Authorization", "Bearer "+token(t, auth, service.TokenTypeAdmin, tc.perms...))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Fatalf("perms %v: status = %d, want %d", tc.perms, w.Code, tc.want)
		}
	}
}

func TestRateLimiterPerStudent(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	for i := 0; i < 2; i++ {
		if !rl.Allow("student:1") {
			t.Fatalf("request %d rejected inside burst", i+1)
		}
	}
	if rl.Allow("student:1") {
		t.Fatal("burst exceeded but allowed")
	}
	if !rl.Allow("student:2") {
		t.Fatal("other student throttled")
	}

	rl.cleanup(time.Now().Add(visitorIdleTTL + time.Second))
	if len(rl.visitors) != 0 {
		t.Fatalf("idle visitors kept: %d", len(rl.visitors))
	}
}

func TestBrotliCompressesLargeBodies(t *testing.T) {
	large := strings.Repeat("soal ", 1000)
	r := gin.New()
	r.Use(Brotli())
	r.GET("/large", func(c *gin.Context) { c.String(http.StatusOK, large) })
	r.GET("/small", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	req := httptest.NewRequest(http.MethodGet, "/large", nil)
	req.Header.Set("Accept-Encoding", "gzip, br")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Header().Get("Content-Encoding") != "br" {
		t.Fatalf("Content-Encoding = %q", w.Header().Get("Content-Encoding"))
	}
	body, err := io.ReadAll(brotli.NewReader(w.Body))
	if err != nil || string(body) != large {
		t.Fatalf("decoded body mismatch (len %d): %v", len(body), err)
	}

	req = httptest.NewRequest(http.MethodGet, "/small", nil)
	req.Header.Set("Accept-Encoding", "br")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Header().Get("Content-Encoding") != "" || w.Body.String() != "ok" {
		t.Fatalf("small body = %q (%q)", w.Body.String(), w.Header().Get("Content-Encoding"))
	}
}

func TestNoStore(t *testing.T) {
	r := gin.New()
	r.GET("/x", NoStore(), func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("Cache-Control = %q", w.Header().Get("Cache-Control"))
	}
}
