package controllers

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"facc/audit"
	"facc/database"
	"facc/store"
	"facc/utils"
)

// LoginRequest contains the credentials for login
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login handles user login
func (ctl *Controller) Login(c *gin.Context) {
	var req LoginRequest
	if err := bindJSON(c, &req, "Datos de acceso inválidos"); err != nil {
		log.Printf("Login attempt failed: invalid credentials payload for %q", req.Email)
		respondError(c, err, "")
		return
	}

	ctx := c.Request.Context()
	doc, err := ctl.store.Read(ctx)
	if err != nil {
		respondError(c, err, "Error en el servidor")
		return
	}
	users, err := store.Decode[database.User](doc, store.Users)
	if err != nil {
		respondError(c, err, "Error en el servidor")
		return
	}

	var user *database.User
	for i := range users {
		if strings.EqualFold(users[i].Email, req.Email) {
			user = &users[i]
			break
		}
	}
	if user == nil || !ctl.checkPassword(ctx, user, req.Password) {
		log.Printf("Login attempt failed: invalid credentials for %s", req.Email)
		ctl.recorder.Record(ctx, actor(c), audit.Event{
			ActionType: audit.ActionLogin,
			EntityType: audit.EntitySession,
			NewValues:  gin.H{"email": req.Email, "success": false},
		})
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Credenciales inválidas"})
		return
	}

	token, err := utils.GenerateJWT(ctl.cfg.JWTSecret, user.ID, user.Email, user.Role, ctl.now().Add(ctl.cfg.JWTExpiration()))
	if err != nil {
		respondError(c, err, "Error en el servidor")
		return
	}

	a := actor(c)
	a.UserID = &user.ID
	ctl.recorder.Record(ctx, a, audit.Event{
		ActionType: audit.ActionLogin,
		EntityType: audit.EntitySession,
		EntityID:   user.ID,
		NewValues:  gin.H{"email": user.Email, "success": true},
	})
	log.Printf("User logged in successfully: %s", user.Email)

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  user.Sanitized(),
	})
}

// checkPassword verifies password against the stored hash. Accounts that
// still carry a plaintext password are upgraded to a hash on success.
func (ctl *Controller) checkPassword(ctx context.Context, user *database.User, password string) bool {
	if user.PasswordHash != "" {
		return utils.CheckPasswordHash(password, user.PasswordHash)
	}
	if user.Password == "" || user.Password != password {
		return false
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		log.Printf("Error hashing legacy password for %s: %v", user.Email, err)
		return true
	}
	_, err = store.UpdateByID(ctx, ctl.store, store.Users, user.ID, func(u *database.User) error {
		u.Password = ""
		u.PasswordHash = hash
		return nil
	})
	if err != nil {
		log.Printf("Error upgrading legacy password for %s: %v", user.Email, err)
	}
	return true
}

// Logout records the end of a session. Tokens are stateless, so the client
// simply discards it.
func (ctl *Controller) Logout(c *gin.Context) {
	ctl.recorder.Record(c.Request.Context(), actor(c), audit.Event{
		ActionType: audit.ActionLogout,
		EntityType: audit.EntitySession,
		EntityID:   currentUserID(c),
	})
	c.JSON(http.StatusOK, gin.H{"message": "Sesión cerrada"})
}

// Me returns the authenticated user
func (ctl *Controller) Me(c *gin.Context) {
	doc, err := ctl.store.Read(c.Request.Context())
	if err != nil {
		respondError(c, err, "Error al obtener usuario")
		return
	}
	user, err := store.FindByID[database.User](doc, store.Users, currentUserID(c))
	if err != nil {
		respondError(c, err, "Error al obtener usuario")
		return
	}
	c.JSON(http.StatusOK, user.Sanitized())
}
