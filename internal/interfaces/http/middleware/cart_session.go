package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yametee/storefront-api/internal/config"
	"github.com/yametee/storefront-api/internal/domain/cart"
	"github.com/yametee/storefront-api/internal/pkg/auth"
)

const (
	CartSessionHeader = "X-Cart-Session"
	cartSessionKey    = "cart_session"
)

// CartSession resolves the guest cart token from the cookie or the
// X-Cart-Session header, issuing a fresh one when neither carries a valid
// token. The token is echoed in both so API clients without cookies can keep it.
func CartSession(cfg config.SecurityConfig, secureCookie bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader(CartSessionHeader)
		if !auth.ValidCartToken(token) {
			token, _ = c.Cookie(cfg.CartCookieName)
		}

		if !auth.ValidCartToken(token) {
			fresh, err := auth.NewCartToken()
			if err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "Failed to start cart session",
				})
				return
			}
			token = fresh
		}

		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(cfg.CartCookieName, token, int(cfg.CartCookieMaxAge.Seconds()), "/", "", secureCookie, true)
		c.Header(CartSessionHeader, token)
		c.Set(cartSessionKey, token)
		c.Next()
	}
}

// CartOwner returns who is acting on the cart in this request: the
// authenticated customer when present, else the guest session.
func CartOwner(c *gin.Context) cart.Owner {
	owner := cart.Owner{SessionToken: c.GetString(cartSessionKey)}
	if id, ok := GetCustomerIDFromContext(c); ok {
		owner.CustomerID = &id
	}
	return owner
}
