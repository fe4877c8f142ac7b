package middlewares

import (
	"net/http"
	"strings"

	"bitbucket.org/gezisoft/agency_backend/models"
	"bitbucket.org/gezisoft/agency_backend/utils"
	"github.com/gin-gonic/gin"
)

// AuthMiddleware validates a bearer JWT and stashes the claims into the
// request context. Requests without a token pass through; tenant resolution
// downstream rejects them.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")

		if auth == "" {
			c.Next()
			return
		}

		bearer := "Bearer "
		if strings.HasPrefix(auth, bearer) {
			auth = auth[len(bearer):]
		}

		validate, err := utils.JwtValidate(auth)
		if err != nil || !validate.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		claims, _ := validate.Claims.(*utils.JwtCustomClaim)
		if claims == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx := c.Request.Context()
		ctx = utils.SetUsernameInContext(ctx, claims.Username)
		ctx = utils.SetUserIdInContext(ctx, claims.ID)
		if claims.Role == models.UserRoleAdmin {
			ctx = utils.SetIsAdminInContext(ctx, true)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
