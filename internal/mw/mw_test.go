package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"fanctl-backend/internal/auth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, method, path string, header http.Header) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	r.ServeHTTP(w, req)
	return w
}

func TestResponseCache(t *testing.T) {
	rc := NewResponseCache(time.Minute)
	calls := 0
	r := gin.New()
	r.Use(rc.Invalidate())
	r.GET("/items", rc.Cache(), func(c *gin.Context) {
		calls++
		c.JSON(http.StatusOK, gin.H{"calls": calls})
	})
	r.POST("/items", func(c *gin.Context) { c.Status(http.StatusCreated) })
	r.POST("/fail", func(c *gin.Context) { c.Status(http.StatusBadRequest) })

	first := serve(r, http.MethodGet, "/items", nil)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	second := serve(r, http.MethodGet, "/items", nil)
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "application/json; charset=utf-8", second.Header().Get("Content-Type"))
	assert.Equal(t, 1, calls)

	serve(r, http.MethodPost, "/fail", nil)
	serve(r, http.MethodGet, "/items", nil)
	assert.Equal(t, 1, calls, "failed writes keep the cache")

	serve(r, http.MethodPost, "/items", nil)
	third := serve(r, http.MethodGet, "/items", nil)
	assert.Equal(t, "MISS", third.Header().Get("X-Cache"))
	assert.Equal(t, 2, calls)
}

func TestRateLimiter(t *testing.T) {
	r := gin.New()
	r.Use(RateLimiter(rate.Limit(1), 2))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/", nil).Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(r, http.MethodGet, "/", nil).Code)
}

func TestIPRateLimiter_ReusesLimiterPerIP(t *testing.T) {
	l := NewIPRateLimiter(rate.Limit(1), 1)
	assert.Same(t, l.GetLimiter("10.0.0.1"), l.GetLimiter("10.0.0.1"))
	assert.NotSame(t, l.GetLimiter("10.0.0.1"), l.GetLimiter("10.0.0.2"))
}

func TestAuthenticateAndRequireRole(t *testing.T) {
	const secret = "s3cret"
	r := gin.New()
	r.GET("/read", Authenticate(secret), func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		require.True(t, ok)
		c.String(http.StatusOK, claims.Subject)
	})
	r.POST("/write", Authenticate(secret), RequireRole("SuperAdmin"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	admin, err := auth.IssueToken("alice", "SuperAdmin", secret, time.Minute)
	require.NoError(t, err)
	viewer, err := auth.IssueToken("bob", "Viewer", secret, time.Minute)
	require.NoError(t, err)
	bearer := func(token string) http.Header { return http.Header{"Authorization": {"Bearer " + token}} }

	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/read", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/read", bearer("junk")).Code)

	w := serve(r, http.MethodGet, "/read", bearer(viewer))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "bob", w.Body.String())

	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodPost, "/write", bearer(viewer)).Code)
	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodPost, "/write", bearer(admin)).Code)
}
