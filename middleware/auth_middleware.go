package middleware

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"facc/database"
	"facc/utils"
)

// Context keys set by AuthMiddleware
const (
	KeyUserID = "userID"
	KeyEmail  = "email"
	KeyRole   = "role"
)

// AuthMiddleware validates JWT tokens and extracts user information.
// A missing token is 401, a token that does not verify is 403.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		parts := strings.Fields(c.GetHeader("Authorization"))
		if len(parts) < 2 {
			log.Printf("Authentication failed: no token provided [%s]", RequestID(c))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Token no proporcionado"})
			return
		}

		claims, err := utils.ValidateJWT(secret, parts[1])
		if err != nil {
			log.Printf("Authentication failed: invalid token - %v [%s]", err, RequestID(c))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "Token inválido"})
			return
		}

		c.Set(KeyUserID, claims.UserID)
		c.Set(KeyEmail, claims.Email)
		c.Set(KeyRole, claims.Role)

		c.Next()
	}
}

// RoleAuthMiddleware validates user roles
func RoleAuthMiddleware(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get(KeyRole)
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Usuario no autenticado"})
			return
		}

		userRole, _ := role.(string)
		for _, r := range roles {
			if r == userRole {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "No tiene permisos para realizar esta acción"})
	}
}

// AdminAuthMiddleware admits administrators and superusers.
func AdminAuthMiddleware() gin.HandlerFunc {
	return RoleAuthMiddleware(database.RoleAdmin, database.RoleSuperuser)
}

// ProcessAuthMiddleware admits the roles that prepare requisitions, payment
// requests and records.
func ProcessAuthMiddleware() gin.HandlerFunc {
	return RoleAuthMiddleware(
		database.RolePromotor,
		database.RoleTecnico,
		database.RoleCoordinacion,
		database.RoleAdmin,
		database.RoleSuperuser,
	)
}

// ApproverAuthMiddleware admits the roles that approve or reject.
func ApproverAuthMiddleware() gin.HandlerFunc {
	return RoleAuthMiddleware(database.RoleAdmin, database.RolePresidencia, database.RoleSuperuser)
}
