package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yametee/storefront-api/internal/pkg/auth"
)

const (
	customerIDKey = "customer_id"
	userEmailKey  = "user_email"
	isAdminKey    = "is_admin"
)

func setClaims(c *gin.Context, claims *auth.Claims) {
	c.Set(customerIDKey, claims.CustomerID)
	c.Set(userEmailKey, claims.Email)
	c.Set(isAdminKey, claims.IsAdmin)
}

// AuthMiddleware requires a valid access token
func AuthMiddleware(jwtManager *auth.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header required",
			})
			return
		}

		tokenString := auth.ExtractTokenFromHeader(authHeader)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid authorization header format",
			})
			return
		}

		claims, err := jwtManager.ValidateAccessToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			return
		}

		setClaims(c, claims)
		c.Next()
	}
}

// AdminMiddleware ensures the user is an admin. It must run after AuthMiddleware.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(isAdminKey); !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
			})
			return
		}

		if !IsAdminFromContext(c) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Admin access required",
			})
			return
		}

		c.Next()
	}
}

// OptionalAuthMiddleware attaches the customer when a valid token is sent
// and continues anonymously otherwise
func OptionalAuthMiddleware(jwtManager *auth.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := auth.ExtractTokenFromHeader(c.GetHeader("Authorization"))
		if tokenString == "" {
			c.Next()
			return
		}

		if claims, err := jwtManager.ValidateAccessToken(tokenString); err == nil {
			setClaims(c, claims)
		}
		c.Next()
	}
}

// GetCustomerIDFromContext extracts the customer id from gin context
func GetCustomerIDFromContext(c *gin.Context) (uint, bool) {
	id, ok := c.Get(customerIDKey)
	if !ok {
		return 0, false
	}
	v, ok := id.(uint)
	return v, ok && v != 0
}

// GetUserEmailFromContext extracts user email from gin context
func GetUserEmailFromContext(c *gin.Context) (string, bool) {
	email, exists := c.Get(userEmailKey)
	if !exists {
		return "", false
	}
	s, ok := email.(string)
	return s, ok
}

// IsAdminFromContext checks if user is admin from gin context
func IsAdminFromContext(c *gin.Context) bool {
	v, _ := c.Get(isAdminKey)
	isAdmin, _ := v.(bool)
	return isAdmin
}
