package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	logs "github.com/danmuck/xrsync/internal/logging"
	"github.com/danmuck/xrsync/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
)

func TestAccessKeyValidate(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		name    string
		stored  string
		input   string
		wantErr error
	}{
		{name: "empty key denied", stored: "", input: "abc", wantErr: ErrUnauthorized},
		{name: "mismatched key denied", stored: "abc", input: "xyz", wantErr: ErrUnauthorized},
		{name: "matching key accepted", stored: "abc", input: "abc", wantErr: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := AccessKey(tc.stored).Validate(tc.input)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected err %v, got %v", tc.wantErr, err)
			}
			logs.Logf("auth/access-key: stored=%q input=%q err=%v", tc.stored, tc.input, err)
		})
	}
}

func TestForKeyAndHeader(t *testing.T) {
	testlog.Start(t)
	if err := ForKey("  ").Validate(""); err != nil {
		t.Fatalf("blank key should leave the relay open, got %v", err)
	}
	if Header("") != nil {
		t.Fatalf("expected no header without a key")
	}

	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	for k, v := range Header("s3cret") {
		req.Header[k] = v
	}
	if got := BearerKey(req); got != "s3cret" {
		t.Fatalf("bearer key=%q", got)
	}
	if err := ForKey("s3cret").Validate(BearerKey(req)); err != nil {
		t.Fatalf("round trip rejected: %v", err)
	}
	req.Header.Set("Authorization", "Basic abc")
	if got := BearerKey(req); got != "" {
		t.Fatalf("basic auth read as bearer: %q", got)
	}
}

func TestRequire(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/session", Require(AccessKey("k")), func(c *gin.Context) { c.Status(http.StatusOK) })

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/session", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous code=%d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	req.Header.Set("Authorization", "bearer k")
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("authorized code=%d", rr.Code)
	}
}
