package handler

import (
	stderrors "errors"
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"

	"accounts/internal/errors"
	"accounts/internal/service"
)

// mailRetryAfter is the Retry-After value, in seconds, sent when mail delivery fails.
const mailRetryAfter = "60"

// PasswordHandler serves the forgot-password flow.
type PasswordHandler struct {
	resets service.PasswordResetService
}

// NewPasswordHandler creates a password handler.
func NewPasswordHandler(resets service.PasswordResetService) *PasswordHandler {
	return &PasswordHandler{resets: resets}
}

// ForgotPasswordRequest names the account to reset.
type ForgotPasswordRequest struct {
	Email string `json:"email" form:"email" validate:"required,email"`
}

// ResetPasswordRequest is posted by the reset page.
type ResetPasswordRequest struct {
	Password        string `form:"password"`
	ConfirmPassword string `form:"confirm_password"`
}

// ResetPage feeds the reset_password.html template.
type ResetPage struct {
	Action  string
	Message string
	Errors  []string
}

// ForgotPassword godoc
// @Summary Request a password reset mail
// @Tags users
// @Accept json,mpfd
// @Produce json
// @Param request body ForgotPasswordRequest true "Account email"
// @Success 200 {object} ResultResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} ResultResponse
// @Failure 503 {object} ResultResponse
// @Router /users/forget-password [post]
func (h *PasswordHandler) ForgotPassword(c echo.Context) error {
	var req ForgotPasswordRequest
	if err := c.Bind(&req); err != nil {
		return invalidRequest()
	}
	if err := c.Validate(&req); err != nil {
		return respondError(err)
	}

	err := h.resets.RequestReset(c.Request().Context(), req.Email)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, ResultResponse{Result: "Mail sent successfully"})
	case stderrors.Is(err, errors.ErrNotFound):
		return c.JSON(http.StatusNotFound, ResultResponse{Result: "Email not registered"})
	case stderrors.Is(err, errors.ErrMailDelivery):
		c.Response().Header().Set(echo.HeaderRetryAfter, mailRetryAfter)
		return c.JSON(http.StatusServiceUnavailable, ResultResponse{Result: "Error sending mail"})
	default:
		return respondError(err)
	}
}

// ResetPasswordForm godoc
// @Summary Show the reset form
// @Tags users
// @Produce html
// @Param uid path string true "Encoded user id"
// @Param token path string true "Reset token"
// @Success 200 {string} string "reset form"
// @Failure 400 {string} string "invalid link page"
// @Router /users/reset-password/{uid}/{token} [get]
func (h *PasswordHandler) ResetPasswordForm(c echo.Context) error {
	if _, err := h.resets.CheckToken(c.Request().Context(), c.Param("uid"), c.Param("token")); err != nil {
		return c.Render(http.StatusBadRequest, TemplateErrorPassword, nil)
	}
	return c.Render(http.StatusOK, TemplateResetPassword, ResetPage{Action: c.Request().URL.Path})
}

// ResetPassword godoc
// @Summary Submit a new password
// @Tags users
// @Accept x-www-form-urlencoded
// @Produce html
// @Param uid path string true "Encoded user id"
// @Param token path string true "Reset token"
// @Param password formData string true "New password"
// @Param confirm_password formData string true "New password again"
// @Success 200 {string} string "confirmation page"
// @Failure 400 {string} string "form with errors"
// @Router /users/reset-password/{uid}/{token} [post]
func (h *PasswordHandler) ResetPassword(c echo.Context) error {
	page := ResetPage{Action: c.Request().URL.Path}

	var form ResetPasswordRequest
	if err := c.Bind(&form); err != nil {
		page.Errors = []string{"invalid request body"}
		return c.Render(http.StatusBadRequest, TemplateResetPassword, page)
	}

	err := h.resets.ResetPassword(c.Request().Context(), c.Param("uid"), c.Param("token"), form.Password, form.ConfirmPassword)
	if err == nil {
		page.Message = "Password Updated"
		return c.Render(http.StatusOK, TemplateResetPassword, page)
	}

	var verr *errors.ValidationError
	switch {
	case stderrors.Is(err, errors.ErrInvalidToken):
		page.Errors = []string{errors.ErrInvalidToken.Error()}
	case stderrors.As(err, &verr):
		page.Errors = formErrors(verr)
	default:
		return respondError(err)
	}
	return c.Render(http.StatusBadRequest, TemplateResetPassword, page)
}

// formErrors flattens field messages for display, labelling the password field.
func formErrors(verr *errors.ValidationError) []string {
	fields := make([]string, 0, len(verr.Fields))
	for f := range verr.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var out []string
	for _, f := range fields {
		for _, msg := range verr.Fields[f] {
			switch f {
			case "password":
				out = append(out, "Password: "+msg)
			case "confirm_password":
				out = append(out, "Confirm Password: "+msg)
			default:
				out = append(out, msg)
			}
		}
	}
	return out
}
