package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestSanitizeBase(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/", ""},
		{"api", "/api"},
		{"/api", "/api"},
		{"/api/", "/api"},
		{" api ", "/api"},
	}
	for _, c := range cases {
		if got := sanitizeBase(c.in); got != c.want {
			t.Fatalf("sanitizeBase(%q)=%q want %q", c.in, got, c.want)
		}
	}
}

func TestQueryTabID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		query string
		ok    bool
	}{
		{"tab_id=12", true},
		{"tab_id=0", true},
		{"", false},
		{"tab_id=-3", false},
		{"tab_id=abc", false},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		c.Request = httptest.NewRequest(http.MethodPost, "/x?"+tc.query, nil)
		_, ok := queryTabID(c)
		if ok != tc.ok {
			t.Fatalf("queryTabID(%q) ok=%v want %v", tc.query, ok, tc.ok)
		}
		if !ok && rec.Code != http.StatusBadRequest {
			t.Fatalf("queryTabID(%q) wrote %d, want 400", tc.query, rec.Code)
		}
	}
}
