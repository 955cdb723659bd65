package edutrack

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

type Middleware interface {
	ProtectedRoute(cfg Config, errorHandler func(router.Context, error) error) router.MiddlewareFunc
	RequireRole(role UserRole) router.MiddlewareFunc
}

// AuthControllerRoutes holds the paths the auth endpoints are mounted at.
type AuthControllerRoutes struct {
	Signup         string
	Verify         string
	Login          string
	Forgot         string
	Reset          string
	ChangePassword string
}

// DefaultAuthControllerRoutes returns the paths the JSON API serves.
func DefaultAuthControllerRoutes() *AuthControllerRoutes {
	return &AuthControllerRoutes{
		Signup:         "/api/auth/signup",
		Verify:         "/api/auth/verify/:token",
		Login:          "/api/auth/login",
		Forgot:         "/api/auth/forgot",
		Reset:          "/api/auth/reset/:token",
		ChangePassword: "/api/auth/change-password",
	}
}

// RegisterAuthRoutes mounts the authentication endpoints under /api/auth.
func RegisterAuthRoutes[T any](app router.Router[T], controller *AuthController) {
	app.Post(controller.Routes.Signup, controller.Signup).SetName("auth.signup")
	app.Get(controller.Routes.Verify, controller.VerifyEmail).SetName("auth.verify")
	app.Post(controller.Routes.Login, controller.Login).SetName("auth.login")
	app.Post(controller.Routes.Forgot, controller.ForgotPassword).SetName("auth.forgot")
	app.Post(controller.Routes.Reset, controller.ResetPassword).SetName("auth.reset")
}

// RegisterChangePasswordRoute mounts the authenticated password change
// endpoint; callers wrap it with the protected route middleware.
func RegisterChangePasswordRoute[T any](app router.Router[T], controller *AuthController, protected router.MiddlewareFunc) {
	app.Post(controller.Routes.ChangePassword, protected(controller.ChangePassword)).SetName("auth.change-password")
}

type AuthController struct {
	Debug        bool
	Logger       Logger
	Repo         RepositoryManager
	Auther       Authenticator
	Mailer       Mailer
	Activity     ActivitySink
	Config       Config
	Routes       *AuthControllerRoutes
	ErrorHandler func(router.Context, error) error
}

type AuthControllerOption func(*AuthController) *AuthController

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:       defLogger{},
		Activity:     noopActivitySink{},
		Routes:       DefaultAuthControllerRoutes(),
		ErrorHandler: RenderError,
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in auth controller...")
	}

	if c.Auther == nil {
		panic("Missing Authenticator in auth controller...")
	}

	if c.Config == nil {
		panic("Missing Config in auth controller...")
	}

	return c
}

func WithControllerRepo(repo RepositoryManager) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Repo = repo
		return c
	}
}

func WithControllerAuther(auther Authenticator) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Auther = auther
		return c
	}
}

func WithControllerMailer(mailer Mailer) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Mailer = mailer
		return c
	}
}

func WithControllerConfig(cfg Config) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Config = cfg
		return c
	}
}

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithControllerActivitySink(sink ActivitySink) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Activity = normalizeActivitySink(sink)
		return c
	}
}

// SignupPayload is the request body for account creation.
type SignupPayload struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Course   string `json:"course"`
	Role     string `json:"role"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (r SignupPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Role, validation.In(RoleStudent, RoleAdmin)),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 100)),
	)
}

func (a *AuthController) Signup(ctx router.Context) error {
	payload := new(SignupPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("signup parse payload", "error", err)
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse request body"))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("signup validate payload", "error", err)
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryValidation, err.Error()))
	}

	if a.Debug {
		fmt.Println("======= AUTH SIGNUP ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("==========================")
	}

	msg := SignupMessage{
		Name:     payload.Name,
		Email:    payload.Email,
		Phone:    payload.Phone,
		Course:   payload.Course,
		Role:     payload.Role,
		Password: payload.Password,
	}

	signup := NewSignupHandler(a.Repo, a.Mailer).
		WithActivitySink(a.Activity).
		WithLogger(a.Logger)

	if err := signup.Execute(ctx.Context(), msg); err != nil {
		a.Logger.Error("signup handler error", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusCreated, map[string]any{
		"msg": "User registered, please verify your email",
	})
}

func (a *AuthController) VerifyEmail(ctx router.Context) error {
	token := ctx.Param("token", "")

	verify := NewVerifyEmailHandler(a.Repo).
		WithActivitySink(a.Activity).
		WithLogger(a.Logger)

	if err := verify.Execute(ctx.Context(), VerifyEmailMessage{Token: token}); err != nil {
		a.Logger.Error("email verification error", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"msg": "Email verified successfully",
	})
}

// LoginPayload is the request body for session creation.
type LoginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (r LoginPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *AuthController) Login(ctx router.Context) error {
	payload := new(LoginPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login parse payload", "error", err)
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse request body"))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("login validate payload", "error", err)
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryValidation, err.Error()))
	}

	token, err := a.Auther.Login(ctx.Context(), payload.Email, payload.Password)
	if err != nil {
		a.Logger.Error("login error", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	session, err := a.Auther.SessionFromToken(token)
	if err != nil {
		a.Logger.Error("login session decode error", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	role := RoleStudent
	if so, ok := session.(*SessionObject); ok {
		role = so.GetRole()
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"token": token,
		"role":  string(role),
	})
}

// ForgotPasswordPayload is the request body for requesting a reset link.
type ForgotPasswordPayload struct {
	Email string `json:"email"`
}

// Validate will run validation rules
func (r ForgotPasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (a *AuthController) ForgotPassword(ctx router.Context) error {
	payload := new(ForgotPasswordPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("forgot password parse payload", "error", err)
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse request body"))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("forgot password validate payload", "error", err)
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryValidation, err.Error()))
	}

	initReset := NewInitializePasswordResetHandler(a.Repo, a.Mailer).
		WithActivitySink(a.Activity).
		WithLogger(a.Logger)

	if err := initReset.Execute(ctx.Context(), InitializePasswordResetMessage{Email: payload.Email}); err != nil {
		a.Logger.Error("forgot password handler error", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"msg": "Password reset email sent",
	})
}

// ResetPasswordPayload is the request body carrying the new password.
type ResetPasswordPayload struct {
	Password string `json:"password"`
}

// Validate will run validation rules
func (r ResetPasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.Required, validation.Length(6, 100)),
	)
}

func (a *AuthController) ResetPassword(ctx router.Context) error {
	token := ctx.Param("token", "")
	payload := new(ResetPasswordPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("reset password parse payload", "error", err)
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse request body"))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("reset password validate payload", "error", err)
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryValidation, err.Error()))
	}

	finalizeReset := NewFinalizePasswordResetHandler(a.Repo).
		WithActivitySink(a.Activity).
		WithLogger(a.Logger)

	msg := FinalizePasswordResetMessage{
		Token:    token,
		Password: payload.Password,
	}

	if err := finalizeReset.Execute(ctx.Context(), msg); err != nil {
		a.Logger.Error("reset password handler error", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"msg": "Password reset successful",
	})
}

// ChangePasswordPayload is the request body for authenticated password
// changes.
type ChangePasswordPayload struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// Validate will run validation rules
func (r ChangePasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.OldPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(6, 100)),
	)
}

func (a *AuthController) ChangePassword(ctx router.Context) error {
	claims, ok := GetRouterClaims(ctx, a.Config.GetContextKey())
	if !ok {
		return a.ErrorHandler(ctx, ErrUnableToFindSession)
	}

	payload := new(ChangePasswordPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("change password parse payload", "error", err)
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse request body"))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("change password validate payload", "error", err)
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryValidation, err.Error()))
	}

	change := NewChangePasswordHandler(a.Repo).
		WithActivitySink(a.Activity).
		WithLogger(a.Logger)

	msg := ChangePasswordMessage{
		UserID:      claims.UserID(),
		OldPassword: payload.OldPassword,
		NewPassword: payload.NewPassword,
	}

	if err := change.Execute(ctx.Context(), msg); err != nil {
		a.Logger.Error("change password handler error", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"msg": "Password changed successfully",
	})
}
