package main

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	constants "github.com/CodeAndHammer/lockcards/internal/constants"
	util "github.com/CodeAndHammer/lockcards/internal/util"
)

// cspDirectives covers what the drill page loads: htmx from jsDelivr, its own script and
// stylesheet, and the inline indicator styles htmx injects.
var cspDirectives = []string{
	"default-src 'self'",
	"script-src 'self' https://cdn.jsdelivr.net",
	"style-src 'self' 'unsafe-inline'",
	"img-src 'self' data:",
	"connect-src 'self'",
	"object-src 'none'",
	"base-uri 'self'",
	"form-action 'self'",
	"frame-ancestors 'none'",
}

var contentSecurityPolicy = strings.Join(cspDirectives, "; ")

func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Content-Security-Policy", contentSecurityPolicy)
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "same-origin")
		h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		if c.Request.TLS != nil {
			h.Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		}
		c.Next()
	}
}

// getLimiter returns the key's limiter, creating it on first use, and marks it as
// recently used so cleanup keeps it.
func (app *App) getLimiter(key string) *rate.Limiter {
	now := time.Now()

	app.LimiterMutex.Lock()
	defer app.LimiterMutex.Unlock()

	if entry, ok := app.LimiterMap[key]; ok {
		entry.LastAccess = now
		return entry.Limiter
	}

	rps := app.RateLimitRPS
	if rps <= 0 {
		rps = 1
	}
	burst := app.RateLimitBurst
	if burst <= 0 {
		burst = rps
	}
	entry := &RateLimiterWithTime{
		Limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		LastAccess: now,
	}
	app.LimiterMap[key] = entry
	return entry.Limiter
}

// rateLimitMiddleware throttles state-changing drill actions per browser, falling
// back to the client IP before a client id cookie exists.
func (app *App) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if clientID, err := c.Cookie(constants.ClientCookieName); err == nil && clientID != "" {
			key = constants.ClientKeyPrefix + clientID
		}
		if app.getLimiter(key).Allow() {
			c.Next()
			return
		}
		util.LogWarnCtx(c.Request.Context(), "Rate limit exceeded for %s on %s", key, c.FullPath())
		if c.GetHeader("HX-Request") == "true" {
			c.Header("HX-Trigger", "rate-limit-exceeded")
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests. Please slow down."})
	}
}

func (app *App) cleanupStaleRateLimiters() {
	app.LimiterMutex.Lock()
	defer app.LimiterMutex.Unlock()

	cutoffTime := time.Now().Add(-app.RateLimiterTTL)
	removedCount := 0
	for key, limWithTime := range app.LimiterMap {
		if limWithTime.LastAccess.Before(cutoffTime) {
			delete(app.LimiterMap, key)
			removedCount++
		}
	}

	if removedCount > 0 {
		util.LogInfo("Cleaned up %d stale rate limiters", removedCount)
	}
}

const maxRequestIDLength = 64

// requestIDMiddleware propagates a caller's X-Request-Id when it looks sane and mints a
// uuid otherwise.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := strings.TrimSpace(c.GetHeader("X-Request-Id"))
		if reqID == "" || len(reqID) > maxRequestIDLength || strings.ContainsAny(reqID, "\r\n") {
			reqID = uuid.NewString()
		}
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), constants.RequestIDKey, reqID))
		c.Header("X-Request-Id", reqID)
		c.Next()
	}
}

func isStateChanging(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// validateCSRFMiddleware applies the double-submit check: the token from the
// X-CSRF-Token header (htmx) or the csrf_token form field (plain forms) must equal the cookie.
func (app *App) validateCSRFMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isStateChanging(c.Request.Method) {
			c.Next()
			return
		}
		cookie, _ := c.Cookie(constants.CSRFCookieName)
		token := c.GetHeader("X-CSRF-Token")
		if token == "" {
			token = c.PostForm(constants.CSRFCookieName)
		}
		if cookie == "" || subtle.ConstantTimeCompare([]byte(token), []byte(cookie)) != 1 {
			util.LogWarnCtx(c.Request.Context(), "Rejected %s %s: csrf token mismatch", c.Request.Method, c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid csrf token"})
			return
		}
		c.Next()
	}
}

// csrfMiddleware issues the csrf cookie on first contact and exposes the token to
// templates under the cookie's name.
func (app *App) csrfMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(constants.CSRFCookieName)
		if err != nil || len(token) != hex.EncodedLen(csrfTokenBytes) {
			token, err = newCSRFToken()
			if err != nil {
				util.LogWarnCtx(c.Request.Context(), "Failed to generate csrf token: %v", err)
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(constants.CSRFCookieName, token, int(app.CookieMaxAge.Seconds()), "/", "", app.IsProduction, false)
		}
		c.Set(constants.CSRFCookieName, token)
		c.Next()
	}
}

const csrfTokenBytes = 32

func newCSRFToken() (string, error) {
	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
