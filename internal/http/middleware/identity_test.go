package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Identity())
	r.GET("/who", func(c *gin.Context) {
		uid, ok := UserID(c)
		if !ok {
			c.String(http.StatusOK, "anon")
			return
		}
		c.JSON(http.StatusOK, gin.H{"uid": uid})
	})

	cases := []struct {
		name, header, query string
		code                int
		body                string
	}{
		{"header", "7", "", http.StatusOK, `{"uid":7}`},
		{"query fallback", "", "?user_id=12", http.StatusOK, `{"uid":12}`},
		{"header wins", " 3 ", "?user_id=12", http.StatusOK, `{"uid":3}`},
		{"anonymous", "", "", http.StatusOK, "anon"},
		{"non numeric", "bob", "", http.StatusBadRequest, ""},
		{"zero", "0", "", http.StatusBadRequest, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/who"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set(HeaderUserID, tc.header)
			}
			r.ServeHTTP(w, req)
			if w.Code != tc.code {
				t.Fatalf("status=%d want %d", w.Code, tc.code)
			}
			if tc.body != "" && w.Body.String() != tc.body {
				t.Fatalf("body=%q want %q", w.Body.String(), tc.body)
			}
		})
	}
}

func TestRequireUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Identity(), RequireUser())
	r.GET("/me", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(HeaderUserID, "5")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
}
