package router

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
	echoSwagger "github.com/swaggo/echo-swagger"

	"accounts/internal/auth"
	apperrors "accounts/internal/errors"
	"accounts/internal/handler"
	"accounts/internal/metrics"
)

// Operation names one endpoint of the users API.
type Operation int

const (
	OpRegister Operation = iota
	OpLogin
	OpRefresh
	OpLogout
	OpMe
	OpGetUser
	OpUpdateUser
	OpForgotPassword
	OpResetPasswordForm
	OpResetPassword
)

var operationNames = map[Operation]string{
	OpRegister:          "register",
	OpLogin:             "login",
	OpRefresh:           "refresh",
	OpLogout:            "logout",
	OpMe:                "me",
	OpGetUser:           "get_user",
	OpUpdateUser:        "update_user",
	OpForgotPassword:    "forgot_password",
	OpResetPasswordForm: "reset_password_form",
	OpResetPassword:     "reset_password",
}

func (o Operation) String() string {
	if name, ok := operationNames[o]; ok {
		return name
	}
	return fmt.Sprintf("operation(%d)", int(o))
}

// Authorizer decides whether a route needs a bearer token.
type Authorizer int

const (
	Public Authorizer = iota
	Authenticated
)

// Route binds an operation to its method, path and guard.
type Route struct {
	Op      Operation
	Method  string
	Path    string
	Auth    Authorizer
	Handler echo.HandlerFunc
}

// Deps carries everything Register wires together.
type Deps struct {
	JWT     *auth.JWTService
	Tokens  auth.TokenStoreInterface
	Metrics *metrics.Metrics

	Auth      *handler.AuthHandler
	Users     *handler.UserHandler
	Passwords *handler.PasswordHandler
	Health    *handler.HealthHandler

	// MediaPrefix and MediaRoot serve locally stored uploads when both are set.
	MediaPrefix string
	MediaRoot   string
}

// Routes returns the operation table. Paths are relative to /api/users.
func Routes(d Deps) []Route {
	return []Route{
		{OpRegister, http.MethodPost, "/register", Public, d.Auth.Register},
		{OpLogin, http.MethodPost, "/login", Public, d.Auth.Login},
		{OpRefresh, http.MethodPost, "/refresh", Public, d.Auth.Refresh},
		{OpLogout, http.MethodGet, "/logout", Authenticated, d.Auth.Logout},
		{OpMe, http.MethodGet, "/me", Authenticated, d.Users.Me},
		{OpForgotPassword, http.MethodPost, "/forget-password", Public, d.Passwords.ForgotPassword},
		{OpResetPasswordForm, http.MethodGet, "/reset-password/:uid/:token", Public, d.Passwords.ResetPasswordForm},
		{OpResetPassword, http.MethodPost, "/reset-password/:uid/:token", Public, d.Passwords.ResetPassword},
		{OpGetUser, http.MethodGet, "/:id", Authenticated, d.Users.GetUser},
		{OpUpdateUser, http.MethodPatch, "/:id", Authenticated, d.Users.UpdateUser},
	}
}

// Register wires routes and middleware.
func Register(e *echo.Echo, d Deps) {
	e.Validator = NewValidator()
	e.Renderer = handler.NewTemplateRenderer()

	e.Use(middleware.RequestID())
	e.Use(requestLogger())
	e.Use(middleware.Recover())
	e.Use(requestMetrics(d.Metrics))

	if d.Health != nil {
		e.GET("/healthz", d.Health.Health)
	} else {
		e.GET("/healthz", func(c echo.Context) error {
			return c.String(http.StatusOK, "ok")
		})
	}
	e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))
	e.GET("/swagger/*", echoSwagger.WrapHandler)
	if d.MediaPrefix != "" && d.MediaRoot != "" {
		e.Static(d.MediaPrefix, d.MediaRoot)
	}

	users := e.Group("/api/users")
	requireToken := jwtMiddleware(d.JWT, d.Tokens)
	for _, r := range Routes(d) {
		var mw []echo.MiddlewareFunc
		if r.Auth == Authenticated {
			mw = append(mw, requireToken)
		}
		users.Add(r.Method, r.Path, r.Handler, mw...).Name = r.Op.String()
	}
}

// jwtMiddleware accepts "Bearer" and "Token" prefixed access tokens and
// rejects those revoked by logout.
func jwtMiddleware(jwtService *auth.JWTService, tokens auth.TokenStoreInterface) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		ContextKey:  handler.ClaimsKey,
		TokenLookup: "header:" + echo.HeaderAuthorization + ":Bearer ,header:" + echo.HeaderAuthorization + ":Token ",
		ParseTokenFunc: func(c echo.Context, token string) (interface{}, error) {
			claims, err := jwtService.ValidateAccessToken(token)
			if err != nil {
				return nil, err
			}
			revoked, err := tokens.IsAccessTokenBlacklisted(c.Request().Context(), claims.ID)
			if err != nil {
				return nil, err
			}
			if revoked {
				return nil, auth.ErrInvalidToken
			}
			return claims, nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusUnauthorized, apperrors.ErrorResponse{
				Error: apperrors.ErrUnauthorized.Error(),
				Code:  "UNAUTHORIZED",
			})
		},
	})
}

// requestLogger logs the route pattern rather than the raw URI so reset
// tokens never reach the log.
func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogRoutePath: true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil {
				ev = log.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("route", v.RoutePath).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}

func requestMetrics(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			status := c.Response().Status
			if err != nil && !c.Response().Committed {
				status = http.StatusInternalServerError
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				}
			}
			m.HTTPRequest(c.Request().Method, c.Path(), status)
			return err
		}
	}
}

// CustomValidator wraps validator for Echo and reports failures as
// field-keyed validation errors.
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator names fields after their json or form tag.
func NewValidator() *CustomValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, key := range []string{"json", "form"} {
			name, _, _ := strings.Cut(f.Tag.Get(key), ",")
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	return &CustomValidator{validator: v}
}

// Validate implements echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	err := cv.validator.Struct(i)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	verr := &apperrors.ValidationError{}
	for _, fe := range fieldErrs {
		verr.Add(fe.Field(), fieldMessage(fe))
	}
	return verr
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
	default:
		return "Enter a valid value."
	}
}
