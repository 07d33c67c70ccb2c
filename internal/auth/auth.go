// Package auth gates relay access behind a shared key sent as a bearer
// token on the websocket upgrade.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	logs "github.com/danmuck/xrsync/internal/logging"
	"github.com/gin-gonic/gin"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

const bearerPrefix = "Bearer "

type Validator interface {
	Validate(key string) error
}

// AccessKey accepts exactly one shared key. An empty key rejects everyone.
type AccessKey string

func (k AccessKey) Validate(key string) error {
	if k == "" || subtle.ConstantTimeCompare([]byte(k), []byte(key)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// Open accepts any key, including none.
type Open struct{}

func (Open) Validate(string) error {
	return nil
}

// ForKey returns Open for an empty key and AccessKey otherwise.
func ForKey(key string) Validator {
	key = strings.TrimSpace(key)
	if key == "" {
		return Open{}
	}
	return AccessKey(key)
}

// Header returns the request header a client sends to present key, or nil
// when there is no key.
func Header(key string) http.Header {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	h := http.Header{}
	h.Set("Authorization", bearerPrefix+key)
	return h
}

// BearerKey extracts the key from an Authorization header.
func BearerKey(r *http.Request) string {
	v := r.Header.Get("Authorization")
	if len(v) < len(bearerPrefix) || !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}

// Require aborts with 401 unless the request's bearer key validates.
func Require(v Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := v.Validate(BearerKey(c.Request)); err != nil {
			logs.Warnf("auth.Require rejected path=%s remote=%s", c.Request.URL.Path, c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Next()
	}
}
