package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"accounts/internal/errors"
	"accounts/internal/model"
)

// ResultResponse is the plain acknowledgement body used by several endpoints.
type ResultResponse struct {
	Result string `json:"result"`
}

// AddressResponse is the public view of an address.
type AddressResponse struct {
	ID          uint   `json:"id"`
	UserAddress string `json:"user_address"`
}

// UserResponse is the public view of a user.
type UserResponse struct {
	ID           uint              `json:"id"`
	Email        string            `json:"email"`
	Name         string            `json:"name"`
	ProfileImage string            `json:"profile_image"`
	DateJoined   time.Time         `json:"date_joined"`
	LastLogin    *time.Time        `json:"last_login,omitempty"`
	Addresses    []AddressResponse `json:"addresses"`
}

func newUserResponse(u *model.User, imageURL string) UserResponse {
	addresses := make([]AddressResponse, 0, len(u.Addresses))
	for _, a := range u.Addresses {
		addresses = append(addresses, AddressResponse{ID: a.ID, UserAddress: a.UserAddress})
	}
	return UserResponse{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		ProfileImage: imageURL,
		DateJoined:   u.DateJoined,
		LastLogin:    u.LastLogin,
		Addresses:    addresses,
	}
}

// respondError maps err onto the shared error body.
func respondError(err error) error {
	httpErr := errors.MapErrorToHTTP(err)
	return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
}

func invalidRequest() error {
	return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
		Error: "invalid request body",
		Code:  "INVALID_REQUEST",
	})
}
