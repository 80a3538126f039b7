package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/shopsphere/shopsphere-api/internal/dto"
	"github.com/shopsphere/shopsphere-api/internal/model"
	"github.com/shopsphere/shopsphere-api/internal/service"
)

const (
	ctxUserID   = "userID"
	ctxUserRole = "userRole"
	ctxUserName = "userName"
)

func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			abort(c, http.StatusUnauthorized, "Not authorized to access this route")
			return
		}

		token, err := jwt.Parse(header[7:], func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			abort(c, http.StatusUnauthorized, "Not authorized, token failed")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			abort(c, http.StatusUnauthorized, "Not authorized, token failed")
			return
		}

		sub, _ := claims["sub"].(string)
		if sub == "" {
			abort(c, http.StatusUnauthorized, "Not authorized, token failed")
			return
		}

		role, _ := claims["role"].(string)
		name, _ := claims["name"].(string)
		c.Set(ctxUserID, sub)
		c.Set(ctxUserRole, role)
		c.Set(ctxUserName, name)
		c.Next()
	}
}

func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetUserRole(c) != model.RoleAdmin {
			abort(c, http.StatusForbidden, "Admin access required")
			return
		}
		c.Next()
	}
}

func GetUserID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

func GetUserRole(c *gin.Context) string {
	return c.GetString(ctxUserRole)
}

// GetActor returns the authenticated caller as seen by the service layer.
func GetActor(c *gin.Context) service.Actor {
	return service.Actor{
		ID:   GetUserID(c),
		Name: c.GetString(ctxUserName),
		Role: GetUserRole(c),
	}
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, dto.Envelope{Success: false, Message: message})
}
