// README: JWT-based role middleware. Role selection only; access enforcement
// belongs to the storage layer's policy.
package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"primetransportes/internal/modules/corrida"
)

const (
	ctxRole = "role"
	ctxAtor = "ator"
)

func requireAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid claims"})
			return
		}
		role, _ := claims["role"].(string)
		nome, _ := claims["nome"].(string)
		if role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing role claim"})
			return
		}

		c.Set(ctxRole, corrida.Role(role))
		c.Set(ctxAtor, nome)
		c.Next()
	}
}

func roleFrom(c *gin.Context) corrida.Role {
	if v, ok := c.Get(ctxRole); ok {
		if r, ok := v.(corrida.Role); ok {
			return r
		}
	}
	return ""
}

func atorFrom(c *gin.Context) string {
	if v, ok := c.Get(ctxAtor); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
