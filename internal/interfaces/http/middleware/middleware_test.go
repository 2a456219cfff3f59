package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yametee/storefront-api/internal/config"
	"github.com/yametee/storefront-api/internal/pkg/auth"
	"github.com/yametee/storefront-api/internal/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func securityConfig() config.SecurityConfig {
	return config.SecurityConfig{CartCookieName: "cart_session", CartCookieMaxAge: time.Hour}
}

func TestCartSession_IssuesAndKeepsToken(t *testing.T) {
	r := gin.New()
	r.Use(CartSession(securityConfig(), false))
	r.GET("/cart", func(c *gin.Context) {
		c.String(http.StatusOK, CartOwner(c).SessionToken)
	})

	w := serve(r, httptest.NewRequest(http.MethodGet, "/cart", nil))
	require.Equal(t, http.StatusOK, w.Code)
	issued := w.Header().Get(CartSessionHeader)
	assert.True(t, auth.ValidCartToken(issued))
	assert.Equal(t, issued, w.Body.String())
	assert.Contains(t, w.Header().Get("Set-Cookie"), "cart_session="+issued)

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.AddCookie(&http.Cookie{Name: "cart_session", Value: issued})
	w = serve(r, req)
	assert.Equal(t, issued, w.Body.String())

	other, err := auth.NewCartToken()
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set(CartSessionHeader, other)
	req.AddCookie(&http.Cookie{Name: "cart_session", Value: issued})
	w = serve(r, req)
	assert.Equal(t, other, w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set(CartSessionHeader, "forged")
	w = serve(r, req)
	assert.NotEqual(t, "forged", w.Body.String())
	assert.True(t, auth.ValidCartToken(w.Body.String()))
}

type fakeLimiter struct {
	counts map[string]int
	err    error
}

func (l *fakeLimiter) Hit(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if l.err != nil {
		return 0, 0, l.err
	}
	l.counts[key]++
	return l.counts[key], 30 * time.Second, nil
}

func TestRateLimit(t *testing.T) {
	limiter := &fakeLimiter{counts: map[string]int{}}
	r := gin.New()
	r.Use(RateLimit(limiter, 2, logger.Discard()))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "31", w.Header().Get("Retry-After"))
}

func TestRateLimit_FailsOpen(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(&fakeLimiter{err: errors.New("redis down")}, 1, logger.Discard()))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	}
}

func TestAuthAndAdmin(t *testing.T) {
	jwtManager := auth.NewJWTManager(config.JWTConfig{Secret: "test-secret", Issuer: "test", AccessTokenExpiry: time.Hour})
	r := gin.New()
	admin := r.Group("/admin", AuthMiddleware(jwtManager), AdminMiddleware())
	admin.GET("/orders", func(c *gin.Context) {
		email, _ := GetUserEmailFromContext(c)
		c.String(http.StatusOK, email)
	})

	w := serve(r, httptest.NewRequest(http.MethodGet, "/admin/orders", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)

	shopper, err := jwtManager.GenerateAccessToken(7, "ana@example.com", false)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
	req.Header.Set("Authorization", "Bearer "+shopper)
	assert.Equal(t, http.StatusForbidden, serve(r, req).Code)

	staff, err := jwtManager.GenerateAccessToken(1, "ops@example.com", true)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
	req.Header.Set("Authorization", "Bearer "+staff)
	w = serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ops@example.com", w.Body.String())
}

func TestOptionalAuthSetsCartOwner(t *testing.T) {
	jwtManager := auth.NewJWTManager(config.JWTConfig{Secret: "test-secret", Issuer: "test", AccessTokenExpiry: time.Hour})
	r := gin.New()
	r.Use(OptionalAuthMiddleware(jwtManager), CartSession(securityConfig(), false))
	r.GET("/cart", func(c *gin.Context) {
		owner := CartOwner(c)
		if owner.CustomerID == nil {
			c.String(http.StatusOK, "guest")
			return
		}
		c.String(http.StatusOK, "customer")
	})

	assert.Equal(t, "guest", serve(r, httptest.NewRequest(http.MethodGet, "/cart", nil)).Body.String())

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set("Authorization", "Bearer expired-or-bad")
	assert.Equal(t, "guest", serve(r, req).Body.String())

	token, err := jwtManager.GenerateAccessToken(7, "ana@example.com", false)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	assert.Equal(t, "customer", serve(r, req).Body.String())
}

func TestRequestIDAndTimeout(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Timeout(20*time.Millisecond))
	r.GET("/slow", func(c *gin.Context) {
		<-c.Request.Context().Done()
	})
	r.GET("/fast", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/slow", nil))
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/fast", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	w = serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
}

func TestRequestSizeLimit(t *testing.T) {
	r := gin.New()
	r.Use(RequestSizeLimit(8))
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
	req.ContentLength = 1024
	assert.Equal(t, http.StatusRequestEntityTooLarge, serve(r, req).Code)
}
