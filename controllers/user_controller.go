package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"facc/audit"
	"facc/database"
	"facc/store"
	"facc/utils"
)

// CreateUserRequest contains the data for a new user
type CreateUserRequest struct {
	Name     string `json:"name" binding:"required"`
	Lastname string `json:"lastname"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role" binding:"required,role"`
}

// UpdateUserRequest contains the fields that may change. Empty fields are
// left as they are.
type UpdateUserRequest struct {
	Name     string `json:"name"`
	Lastname string `json:"lastname"`
	Email    string `json:"email" binding:"omitempty,email"`
	Password string `json:"password"`
	Role     string `json:"role" binding:"omitempty,role"`
}

// ListUsers returns every user without credentials
func (ctl *Controller) ListUsers(c *gin.Context) {
	doc, err := ctl.store.Read(c.Request.Context())
	if err != nil {
		respondError(c, err, "Error al obtener usuarios")
		return
	}
	users, err := store.Decode[database.User](doc, store.Users)
	if err != nil {
		respondError(c, err, "Error al obtener usuarios")
		return
	}
	for i := range users {
		users[i] = users[i].Sanitized()
	}
	c.JSON(http.StatusOK, users)
}

// CreateUser adds a user
func (ctl *Controller) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := bindJSON(c, &req, "Datos de usuario inválidos"); err != nil {
		respondError(c, err, "")
		return
	}
	user, err := CreateUserAccount(c.Request.Context(), ctl.store, ctl.recorder, actor(c), req)
	if err != nil {
		respondError(c, err, "Error al crear usuario")
		return
	}
	c.JSON(http.StatusCreated, user)
}

// CreateUserAccount validates req, stores the user with a hashed password
// and records the creation. The returned user carries no credentials.
func CreateUserAccount(ctx context.Context, s store.Store, rec *audit.Recorder, a audit.Actor, req CreateUserRequest) (database.User, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if err := validate(req, "Datos de usuario inválidos"); err != nil {
		return database.User{}, err
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return database.User{}, err
	}
	user := &database.User{
		Name:         req.Name,
		Lastname:     strings.TrimSpace(req.Lastname),
		Email:        req.Email,
		PasswordHash: hash,
		Role:         req.Role,
	}

	err = s.Update(ctx, func(doc *store.Document) error {
		if err := ensureEmailFree(doc, user.Email, 0); err != nil {
			return err
		}
		return store.Insert(doc, store.Users, user, time.Now())
	})
	if err != nil {
		return database.User{}, err
	}

	created := user.Sanitized()
	rec.Record(ctx, a, audit.Event{
		ActionType: audit.ActionCreate,
		EntityType: audit.EntityUser,
		EntityID:   created.ID,
		NewValues:  created,
	})
	return created, nil
}

func ensureEmailFree(doc *store.Document, email string, exceptID int64) error {
	users, err := store.Decode[database.User](doc, store.Users)
	if err != nil {
		return err
	}
	for _, u := range users {
		if u.ID != exceptID && strings.EqualFold(u.Email, email) {
			return utils.BadRequest("El email ya está registrado")
		}
	}
	return nil
}

// UpdateUser changes a user's data
func (ctl *Controller) UpdateUser(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		respondError(c, err, "")
		return
	}
	var req UpdateUserRequest
	if err := bindJSON(c, &req, "Datos de usuario inválidos"); err != nil {
		respondError(c, err, "")
		return
	}

	user, err := ctl.updateUser(c, id, req)
	if err != nil {
		respondError(c, err, "Error al actualizar usuario")
		return
	}
	c.JSON(http.StatusOK, user)
}

func (ctl *Controller) updateUser(c *gin.Context, id int64, req UpdateUserRequest) (database.User, error) {
	ctx := c.Request.Context()

	var hash string
	if req.Password != "" {
		h, err := utils.HashPassword(req.Password)
		if err != nil {
			return database.User{}, err
		}
		hash = h
	}

	var before, after database.User
	err := ctl.store.Update(ctx, func(doc *store.Document) error {
		user, err := store.FindByID[database.User](doc, store.Users, id)
		if err != nil {
			return utils.NotFound("Usuario no encontrado")
		}
		before = user.Sanitized()

		if req.Email != "" {
			email := strings.ToLower(strings.TrimSpace(req.Email))
			if err := ensureEmailFree(doc, email, id); err != nil {
				return err
			}
			user.Email = email
		}
		if req.Name != "" {
			user.Name = req.Name
		}
		if req.Lastname != "" {
			user.Lastname = req.Lastname
		}
		if req.Role != "" {
			user.Role = req.Role
		}
		if hash != "" {
			user.Password = ""
			user.PasswordHash = hash
		}
		user.Touch(ctl.now())

		after = user.Sanitized()
		return store.Replace(doc, store.Users, &user)
	})
	if err != nil {
		return database.User{}, err
	}

	ctl.recorder.Record(ctx, actor(c), audit.Event{
		ActionType: audit.ActionUpdate,
		EntityType: audit.EntityUser,
		EntityID:   id,
		OldValues:  before,
		NewValues:  after,
	})
	return after, nil
}

// DeleteUser removes a user
func (ctl *Controller) DeleteUser(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		respondError(c, err, "")
		return
	}
	if id == currentUserID(c) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "No puede eliminar su propio usuario"})
		return
	}

	ctx := c.Request.Context()
	var old database.User
	err = ctl.store.Update(ctx, func(doc *store.Document) error {
		user, err := store.FindByID[database.User](doc, store.Users, id)
		if err != nil {
			return utils.NotFound("Usuario no encontrado")
		}
		old = user.Sanitized()
		return store.Remove(doc, store.Users, id)
	})
	if err != nil {
		respondError(c, err, "Error al eliminar usuario")
		return
	}

	ctl.recorder.Record(ctx, actor(c), audit.Event{
		ActionType: audit.ActionDelete,
		EntityType: audit.EntityUser,
		EntityID:   id,
		OldValues:  old,
	})
	c.JSON(http.StatusOK, gin.H{"message": "Usuario eliminado"})
}

// GetProfile returns the profile of the authenticated user
func (ctl *Controller) GetProfile(c *gin.Context) {
	ctl.Me(c)
}

// UpdateProfile lets the authenticated user change their own name, email
// and password. The role cannot be changed this way.
func (ctl *Controller) UpdateProfile(c *gin.Context) {
	var req UpdateUserRequest
	if err := bindJSON(c, &req, "Datos de perfil inválidos"); err != nil {
		respondError(c, err, "")
		return
	}
	req.Role = ""

	user, err := ctl.updateUser(c, currentUserID(c), req)
	if err != nil {
		respondError(c, err, "Error al actualizar perfil")
		return
	}
	c.JSON(http.StatusOK, user)
}
