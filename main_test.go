package main

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	constants "github.com/CodeAndHammer/lockcards/internal/constants"
	util "github.com/CodeAndHammer/lockcards/internal/util"
)

var testCSRFToken = strings.Repeat("ab", 32)

func newTestApp() *App {
	return &App{
		CookieMaxAge:   time.Hour,
		RateLimitRPS:   1,
		RateLimitBurst: 2,
		RateLimiterTTL: time.Minute,
		LimiterMap:     make(map[string]*RateLimiterWithTime),
	}
}

func newMiddlewareRouter(app *App) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(requestIDMiddleware())
	r.Use(app.csrfMiddleware())
	r.Use(app.validateCSRFMiddleware())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, util.RequestID(c.Request.Context()))
	})
	r.POST("/next", app.rateLimitMiddleware(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestRequestIDMiddleware(t *testing.T) {
	r := newMiddlewareRouter(newTestApp())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-Id"))
	assert.Equal(t, "abc-123", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
	assert.Equal(t, w.Header().Get("X-Request-Id"), w.Body.String())
}

func TestCSRF_RejectsPostWithoutToken(t *testing.T) {
	r := newMiddlewareRouter(newTestApp())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/next", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCSRF_AcceptsMatchingHeaderOrForm(t *testing.T) {
	r := newMiddlewareRouter(newTestApp())
	cookie := &http.Cookie{Name: constants.CSRFCookieName, Value: testCSRFToken}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/next", nil)
	req.AddCookie(cookie)
	req.Header.Set("X-CSRF-Token", cookie.Value)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	form := url.Values{constants.CSRFCookieName: {cookie.Value}}
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/next", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookie)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/next", nil)
	req.AddCookie(cookie)
	req.Header.Set("X-CSRF-Token", "something-else")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCSRF_IssuesCookieOnFirstVisit(t *testing.T) {
	r := newMiddlewareRouter(newTestApp())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	var found bool
	for _, c := range w.Result().Cookies() {
		if c.Name == constants.CSRFCookieName {
			found = true
			assert.Len(t, c.Value, 64)
		}
	}
	assert.True(t, found)
}

func TestRateLimitMiddleware(t *testing.T) {
	app := newTestApp()
	r := newMiddlewareRouter(app)
	cookie := &http.Cookie{Name: constants.CSRFCookieName, Value: testCSRFToken}

	post := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/next", nil)
		req.AddCookie(cookie)
		req.Header.Set("X-CSRF-Token", cookie.Value)
		req.Header.Set("HX-Request", "true")
		r.ServeHTTP(w, req)
		return w
	}

	require.Equal(t, http.StatusNoContent, post().Code)
	require.Equal(t, http.StatusNoContent, post().Code)
	w := post()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate-limit-exceeded", w.Header().Get("HX-Trigger"))
	assert.Equal(t, 1, app.limiterCount())
}

func TestSecurityHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(securityHeadersMiddleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	csp := w.Header().Get("Content-Security-Policy")
	assert.Contains(t, csp, "script-src 'self' https://cdn.jsdelivr.net")
	assert.Contains(t, csp, "frame-ancestors 'none'")
	assert.NotContains(t, csp, "fonts")
	assert.NotContains(t, csp, "unsafe-eval")
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
}

func TestRequestIDMiddleware_ReplacesOversizedID(t *testing.T) {
	r := newMiddlewareRouter(newTestApp())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", strings.Repeat("x", 200))
	r.ServeHTTP(w, req)

	id := w.Header().Get("X-Request-Id")
	assert.Len(t, id, 36)
	assert.Equal(t, id, w.Body.String())
}

func TestRateLimitMiddleware_KeysByClient(t *testing.T) {
	app := newTestApp()
	r := newMiddlewareRouter(app)
	cookie := &http.Cookie{Name: constants.CSRFCookieName, Value: testCSRFToken}

	post := func(clientID string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/next", nil)
		req.AddCookie(cookie)
		req.AddCookie(&http.Cookie{Name: constants.ClientCookieName, Value: clientID})
		req.Header.Set("X-CSRF-Token", cookie.Value)
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusNoContent, post("client-aaaaaaaa"))
	assert.Equal(t, http.StatusNoContent, post("client-aaaaaaaa"))
	assert.Equal(t, http.StatusTooManyRequests, post("client-aaaaaaaa"))
	assert.Equal(t, http.StatusNoContent, post("client-bbbbbbbb"), "another browser on the same IP has its own budget")
	assert.Equal(t, 2, app.limiterCount())
}

func TestGetLimiter_ReusesAndTouches(t *testing.T) {
	app := newTestApp()
	first := app.getLimiter("k")
	app.LimiterMap["k"].LastAccess = time.Now().Add(-time.Hour)

	second := app.getLimiter("k")
	require.Same(t, first, second)
	assert.WithinDuration(t, time.Now(), app.LimiterMap["k"].LastAccess, time.Second)
}

func TestCleanupStaleRateLimiters(t *testing.T) {
	app := newTestApp()
	app.LimiterMap["old"] = &RateLimiterWithTime{LastAccess: time.Now().Add(-time.Hour)}
	app.LimiterMap["fresh"] = &RateLimiterWithTime{LastAccess: time.Now()}

	app.cleanupStaleRateLimiters()

	assert.Equal(t, 1, app.limiterCount())
	_, ok := app.LimiterMap["fresh"]
	assert.True(t, ok)
}
