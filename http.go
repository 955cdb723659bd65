package edutrack

import (
	"net/http"

	"github.com/edutrack/edutrack/middleware/jwtware"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RouteAuthenticator wires the Authenticator into HTTP middleware and
// translates rich errors into the JSON envelope the API speaks.
type RouteAuthenticator struct {
	auth         Authenticator
	cfg          Config
	validator    TokenValidator
	Debug        bool
	Logger       Logger
	ErrorHandler func(c router.Context, err error) error
}

func NewHTTPAuthenticator(auther Authenticator, cfg Config) (*RouteAuthenticator, error) {
	a := &RouteAuthenticator{
		cfg:    cfg,
		auth:   auther,
		Logger: defLogger{},
	}

	if ts, ok := auther.(interface{ TokenService() TokenService }); ok {
		a.validator = ts.TokenService()
	} else {
		a.validator = NewTokenService(
			[]byte(cfg.GetSigningKey()),
			cfg.GetTokenExpiration(),
			cfg.GetIssuer(),
			cfg.GetAudience(),
			defLogger{},
		)
	}

	a.ErrorHandler = a.defaultErrHandler

	return a, nil
}

func (a *RouteAuthenticator) ProtectedRoute(cfg Config, errorHandler func(router.Context, error) error) router.MiddlewareFunc {
	return jwtware.New(jwtware.Config{
		ErrorHandler:   errorHandler,
		TokenValidator: jwtValidatorAdapter{a.validator},
		SigningKey: jwtware.SigningKey{
			Key:    []byte(cfg.GetSigningKey()),
			JWTAlg: cfg.GetSigningMethod(),
		},
		AuthScheme:  cfg.GetAuthScheme(),
		ContextKey:  cfg.GetContextKey(),
		TokenLookup: cfg.GetTokenLookup(),
	})
}

// jwtValidatorAdapter bridges the root package TokenValidator to the
// middleware's mirrored interface.
type jwtValidatorAdapter struct {
	validator TokenValidator
}

func (a jwtValidatorAdapter) Validate(tokenString string) (jwtware.AuthClaims, error) {
	claims, err := a.validator.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// RequireRole gates a route on an exact role claim. Used for the
// admin-only student management endpoints.
func (a *RouteAuthenticator) RequireRole(role UserRole) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			claims, ok := GetRouterClaims(ctx, a.cfg.GetContextKey())
			if !ok {
				return a.ErrorHandler(ctx, ErrUnableToFindSession)
			}

			if !claims.HasRole(string(role)) {
				return a.ErrorHandler(ctx, errors.New("access denied", errors.CategoryAuthz).
					WithCode(errors.CodeForbidden).
					WithMetadata(map[string]any{"required_role": string(role)}))
			}

			return next(ctx)
		}
	}
}

// RequireMinimumRole gates a route on the role hierarchy rather than an
// exact match.
func (a *RouteAuthenticator) RequireMinimumRole(role UserRole) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			claims, ok := GetRouterClaims(ctx, a.cfg.GetContextKey())
			if !ok {
				return a.ErrorHandler(ctx, ErrUnableToFindSession)
			}

			if !claims.IsAtLeast(role) {
				return a.ErrorHandler(ctx, errors.New("access denied", errors.CategoryAuthz).
					WithCode(errors.CodeForbidden).
					WithMetadata(map[string]any{"minimum_role": string(role)}))
			}

			return next(ctx)
		}
	}
}

// MakeAuthErrorHandler translates middleware token failures. When optional
// is true the request proceeds unauthenticated instead of failing.
func (a *RouteAuthenticator) MakeAuthErrorHandler(optional bool) func(router.Context, error) error {
	return func(ctx router.Context, err error) error {
		var richErr *errors.Error

		if IsTokenExpiredError(err) {
			richErr = ErrTokenExpired
		} else if IsMalformedError(err) {
			richErr = ErrTokenMalformed
		} else {
			richErr = errors.Wrap(err, errors.CategoryAuth, "Invalid authentication token").
				WithCode(errors.CodeUnauthorized)
		}

		if optional {
			a.Logger.Info("Optional auth failed, proceeding", "error", richErr.Message)
			return ctx.Next()
		}

		return a.ErrorHandler(ctx, richErr)
	}
}

func (a *RouteAuthenticator) defaultErrHandler(c router.Context, err error) error {
	richErr := AsRichError(err)

	a.Logger.Info(
		"Request error handler",
		"error", richErr.Message,
		"category", richErr.Category,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	return RenderError(c, richErr)
}

// AsRichError normalizes any error into a *errors.Error carrying a category.
func AsRichError(err error) *errors.Error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}
	return richErr
}

// StatusFromError maps error categories onto HTTP status codes.
func StatusFromError(err *errors.Error) int {
	switch err.Category {
	case errors.CategoryAuth:
		return http.StatusUnauthorized
	case errors.CategoryAuthz:
		return http.StatusForbidden
	case errors.CategoryConflict:
		return http.StatusConflict
	case errors.CategoryNotFound:
		return http.StatusNotFound
	case errors.CategoryValidation, errors.CategoryBadInput:
		return http.StatusBadRequest
	default:
		if err.Code >= http.StatusBadRequest && err.Code < 600 {
			return err.Code
		}
		return http.StatusInternalServerError
	}
}

// RenderError writes the JSON error envelope for the given error.
func RenderError(c router.Context, err error) error {
	richErr := AsRichError(err)
	status := StatusFromError(richErr)

	msg := richErr.Message
	if status == http.StatusInternalServerError {
		// internal details stay in the logs
		msg = "Internal server error"
	}

	return c.JSON(status, map[string]any{
		"msg": msg,
	})
}
