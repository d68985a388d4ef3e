package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"accounts/internal/errors"
	"accounts/internal/model"
	"accounts/internal/service"
)

// UserHandler serves profile endpoints.
type UserHandler struct {
	svc service.UserService
}

// NewUserHandler creates a handler layer.
func NewUserHandler(svc service.UserService) *UserHandler {
	return &UserHandler{svc: svc}
}

// MeResponse lists the users visible to the caller.
type MeResponse struct {
	User  string         `json:"user"`
	Users []UserResponse `json:"users"`
}

// UpdateResponse acknowledges a profile update.
type UpdateResponse struct {
	Update       string `json:"update"`
	ProfileImage string `json:"profile_image"`
}

func (h *UserHandler) present(ctx context.Context, u *model.User) (UserResponse, error) {
	url, err := h.svc.ProfileImageURL(ctx, u)
	if err != nil {
		return UserResponse{}, err
	}
	return newUserResponse(u, url), nil
}

// Me godoc
// @Summary Current user
// @Description Returns the caller; staff receive every user.
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} MeResponse
// @Failure 401 {object} errors.ErrorResponse
// @Router /users/me [get]
func (h *UserHandler) Me(c echo.Context) error {
	ctx := c.Request().Context()
	users, err := h.svc.Me(ctx, PrincipalFrom(c))
	if err != nil {
		return respondError(err)
	}

	out := make([]UserResponse, 0, len(users))
	for i := range users {
		resp, err := h.present(ctx, &users[i])
		if err != nil {
			return respondError(err)
		}
		out = append(out, resp)
	}

	var email string
	if claims := ClaimsFrom(c); claims != nil {
		email = claims.Email
	}
	return c.JSON(http.StatusOK, MeResponse{User: email, Users: out})
}

// GetUser godoc
// @Summary Get user by id
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Success 200 {object} UserResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /users/{id} [get]
func (h *UserHandler) GetUser(c echo.Context) error {
	id, err := userID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	user, err := h.svc.GetUser(ctx, PrincipalFrom(c), id)
	if err != nil {
		return respondError(err)
	}
	resp, err := h.present(ctx, user)
	if err != nil {
		return respondError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

// UpdateUser godoc
// @Summary Update a profile
// @Description Every "address" value becomes the complete address list when at least one is sent.
// @Tags users
// @Accept mpfd
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Param name formData string false "Display name"
// @Param address formData []string false "Address lines" collectionFormat(multi)
// @Param profile_image formData file false "Profile image (jpg, jpeg, png)"
// @Success 202 {object} UpdateResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /users/{id} [patch]
func (h *UserHandler) UpdateUser(c echo.Context) error {
	id, err := userID(c)
	if err != nil {
		return err
	}
	in, err := updateInput(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	user, err := h.svc.UpdateUser(ctx, PrincipalFrom(c), id, in)
	if err != nil {
		return respondError(err)
	}
	url, err := h.svc.ProfileImageURL(ctx, user)
	if err != nil {
		return respondError(err)
	}
	return c.JSON(http.StatusAccepted, UpdateResponse{Update: user.Email, ProfileImage: url})
}

// updateInput reads the form fields of a profile update. The image file
// stays open until the response is written.
func updateInput(c echo.Context) (service.UpdateInput, error) {
	var in service.UpdateInput
	form, err := c.FormParams()
	if err != nil {
		return in, invalidRequest()
	}
	if names, ok := form["name"]; ok && len(names) > 0 {
		name := names[0]
		in.Name = &name
	}
	if addresses, ok := form["address"]; ok {
		in.Addresses = addresses
	}

	if !strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		return in, nil
	}
	fh, err := c.FormFile("profile_image")
	if err == http.ErrMissingFile {
		return in, nil
	}
	if err != nil {
		return in, invalidRequest()
	}
	f, err := fh.Open()
	if err != nil {
		return in, invalidRequest()
	}
	c.Response().After(func() { f.Close() })
	in.Image = &service.ImageUpload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Size:        fh.Size,
		Body:        f,
	}
	return in, nil
}

// userID parses the :id path parameter. Non-numeric ids do not match any user.
func userID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusNotFound, errors.ErrorResponse{
			Error: "not found",
			Code:  "NOT_FOUND",
		})
	}
	return uint(id), nil
}
