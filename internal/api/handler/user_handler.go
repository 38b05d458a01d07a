package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"

	"github.com/99minutos/direct-messaging/internal/core/domain"
	"github.com/99minutos/direct-messaging/internal/core/ports"
)

// UserHandler serves the user directory.
type UserHandler struct {
	directory ports.DirectoryService
}

func NewUserHandler(directory ports.DirectoryService) *UserHandler {
	return &UserHandler{directory: directory}
}

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
}

func toUserResponse(u *domain.User) userResponse {
	return userResponse{ID: u.ID, Username: u.Username, CreatedAt: u.CreatedAt}
}

// List handles GET /api/users.
//
// @Summary      List contacts
// @Description  Every registered user except the caller, ordered by username
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   userResponse
// @Failure      401  {object}  map[string]string
// @Router       /api/users [get]
func (h *UserHandler) List(c echo.Context) error {
	identity, err := ctxIdentity(c)
	if err != nil {
		return err
	}

	users, err := h.directory.Contacts(c.Request().Context(), identity)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, lo.Map(users, func(u *domain.User, _ int) userResponse {
		return toUserResponse(u)
	}))
}

// Me handles GET /api/users/me.
//
// @Summary      Current user
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  userResponse
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/users/me [get]
func (h *UserHandler) Me(c echo.Context) error {
	identity, err := ctxIdentity(c)
	if err != nil {
		return err
	}

	user, err := h.directory.Me(c.Request().Context(), identity)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserResponse(user))
}

// Get handles GET /api/users/:id.
//
// @Summary      Get a user by id
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "User id"
// @Success      200  {object}  userResponse
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/users/{id} [get]
func (h *UserHandler) Get(c echo.Context) error {
	if _, err := ctxIdentity(c); err != nil {
		return err
	}

	user, err := h.directory.User(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserResponse(user))
}
