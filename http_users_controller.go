package edutrack

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
)

// RegisterUserRoutes mounts the profile and student management endpoints.
// The protected middleware applies to every route, adminOnly additionally
// gates the student management surface.
func RegisterUserRoutes[T any](app router.Router[T], controller *UsersController, protected, adminOnly router.MiddlewareFunc) {
	app.Get("/api/users/profile", protected(controller.GetProfile)).SetName("users.profile.get")
	app.Put("/api/users/profile", protected(controller.UpdateProfile)).SetName("users.profile.put")

	app.Get("/api/users/students", protected(adminOnly(controller.ListStudents))).SetName("users.students.list")
	app.Post("/api/users/students", protected(adminOnly(controller.CreateStudent))).SetName("users.students.create")
	app.Put("/api/users/students/:id", protected(adminOnly(controller.UpdateStudent))).SetName("users.students.update")
	app.Delete("/api/users/students/:id", protected(adminOnly(controller.DeleteStudent))).SetName("users.students.delete")
}

type UsersController struct {
	Logger        Logger
	Repo          RepositoryManager
	Config        Config
	Activity      ActivitySink
	ErrorHandler  func(router.Context, error) error
	DefaultRegion string
}

type UsersControllerOption func(*UsersController) *UsersController

func NewUsersController(opts ...UsersControllerOption) *UsersController {
	c := &UsersController{
		Logger:        defLogger{},
		Activity:      noopActivitySink{},
		ErrorHandler:  RenderError,
		DefaultRegion: "US",
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in users controller...")
	}

	if c.Config == nil {
		panic("Missing Config in users controller...")
	}

	return c
}

func WithUsersRepo(repo RepositoryManager) UsersControllerOption {
	return func(c *UsersController) *UsersController {
		c.Repo = repo
		return c
	}
}

func WithUsersConfig(cfg Config) UsersControllerOption {
	return func(c *UsersController) *UsersController {
		c.Config = cfg
		return c
	}
}

func WithUsersLogger(logger Logger) UsersControllerOption {
	return func(c *UsersController) *UsersController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithUsersActivitySink(sink ActivitySink) UsersControllerOption {
	return func(c *UsersController) *UsersController {
		c.Activity = normalizeActivitySink(sink)
		return c
	}
}

func WithUsersDefaultRegion(region string) UsersControllerOption {
	return func(c *UsersController) *UsersController {
		if region != "" {
			c.DefaultRegion = region
		}
		return c
	}
}

func (a *UsersController) currentUser(ctx router.Context) (*User, error) {
	claims, ok := GetRouterClaims(ctx, a.Config.GetContextKey())
	if !ok {
		return nil, ErrUnableToFindSession
	}

	user, err := a.Repo.Users().GetByID(ctx.Context(), claims.UserID())
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load current user")
	}

	return user, nil
}

func (a *UsersController) GetProfile(ctx router.Context) error {
	user, err := a.currentUser(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, user)
}

// UpdateProfilePayload carries the mutable profile fields.
type UpdateProfilePayload struct {
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Course string `json:"course"`
}

// Validate will run validation rules
func (r UpdateProfilePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Length(1, 200)),
		validation.Field(&r.Course, validation.Length(0, 200)),
	)
}

func (a *UsersController) UpdateProfile(ctx router.Context) error {
	user, err := a.currentUser(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	payload := new(UpdateProfilePayload)
	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("profile update parse payload", "error", err)
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse request body"))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("profile update validate payload", "error", err)
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryValidation, err.Error()))
	}

	if payload.Name != "" {
		user.Name = payload.Name
	}
	if payload.Course != "" {
		user.Course = payload.Course
	}
	if payload.Phone != "" {
		phone, err := a.normalizePhone(payload.Phone)
		if err != nil {
			return a.ErrorHandler(ctx, err)
		}
		user.Phone = phone
	}

	updated, err := a.Repo.Users().Update(ctx.Context(), user)
	if err != nil {
		a.Logger.Error("profile update error", "error", err)
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update profile"))
	}

	return ctx.JSON(router.StatusOK, updated)
}

// StudentListResponse is the paginated students envelope.
type StudentListResponse struct {
	Students    []*User `json:"students"`
	TotalPages  int     `json:"totalPages"`
	CurrentPage int     `json:"currentPage"`
}

func (a *UsersController) ListStudents(ctx router.Context) error {
	page := ctx.QueryInt("page", 1)
	limit := ctx.QueryInt("limit", 10)
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	students, total, err := a.Repo.Users().ListStudents(ctx.Context(), page, limit)
	if err != nil {
		a.Logger.Error("list students error", "error", err)
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list students"))
	}

	return ctx.JSON(router.StatusOK, StudentListResponse{
		Students:    students,
		TotalPages:  TotalPages(total, limit),
		CurrentPage: page,
	})
}

// CreateStudentPayload is the admin-facing student creation body. Students
// created here are verified up front, no confirmation email is involved.
type CreateStudentPayload struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Course   string `json:"course"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (r CreateStudentPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 100)),
	)
}

func (a *UsersController) CreateStudent(ctx router.Context) error {
	payload := new(CreateStudentPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("create student parse payload", "error", err)
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse request body"))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("create student validate payload", "error", err)
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryValidation, err.Error()))
	}

	if existing, err := a.Repo.Users().GetByEmail(ctx.Context(), payload.Email); err == nil && existing != nil {
		return a.ErrorHandler(ctx, goerrors.New("user already exists", goerrors.CategoryConflict).
			WithTextCode("USER_EXISTS").
			WithMetadata(map[string]any{"email": payload.Email}))
	} else if err != nil && !goerrors.IsNotFound(err) {
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check for existing user"))
	}

	hash, err := HashPassword(payload.Password)
	if err != nil {
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password provided"))
	}

	phone := payload.Phone
	if phone != "" {
		if phone, err = a.normalizePhone(phone); err != nil {
			return a.ErrorHandler(ctx, err)
		}
	}

	student := &User{
		Name:         payload.Name,
		Email:        payload.Email,
		Phone:        phone,
		Course:       payload.Course,
		Role:         RoleStudent,
		PasswordHash: hash,
		IsVerified:   true,
	}

	created, err := a.Repo.Users().Create(ctx.Context(), student)
	if err != nil {
		a.Logger.Error("create student error", "error", err)
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryConflict, "could not create student"))
	}

	return ctx.JSON(router.StatusCreated, created)
}

// UpdateStudentPayload carries the mutable student fields.
type UpdateStudentPayload struct {
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Course string `json:"course"`
}

// Validate will run validation rules
func (r UpdateStudentPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Length(1, 200)),
		validation.Field(&r.Course, validation.Length(0, 200)),
	)
}

func (a *UsersController) UpdateStudent(ctx router.Context) error {
	id, err := a.studentID(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	payload := new(UpdateStudentPayload)
	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("update student parse payload", "error", err)
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse request body"))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("update student validate payload", "error", err)
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryValidation, err.Error()))
	}

	student, err := a.Repo.Users().GetByID(ctx.Context(), id.String())
	if err != nil {
		if goerrors.IsNotFound(err) {
			return a.ErrorHandler(ctx, studentNotFound(id))
		}
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load student"))
	}

	if student.Role != RoleStudent {
		return a.ErrorHandler(ctx, studentNotFound(id))
	}

	if payload.Name != "" {
		student.Name = payload.Name
	}
	if payload.Course != "" {
		student.Course = payload.Course
	}
	if payload.Phone != "" {
		phone, err := a.normalizePhone(payload.Phone)
		if err != nil {
			return a.ErrorHandler(ctx, err)
		}
		student.Phone = phone
	}

	updated, err := a.Repo.Users().Update(ctx.Context(), student)
	if err != nil {
		a.Logger.Error("update student error", "error", err)
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update student"))
	}

	return ctx.JSON(router.StatusOK, updated)
}

func (a *UsersController) DeleteStudent(ctx router.Context) error {
	id, err := a.studentID(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := a.Repo.Users().DeleteStudent(ctx.Context(), id); err != nil {
		if goerrors.IsNotFound(err) {
			return a.ErrorHandler(ctx, studentNotFound(id))
		}
		a.Logger.Error("delete student error", "error", err)
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete student"))
	}

	a.recordDeletion(ctx, id)

	return ctx.JSON(router.StatusOK, map[string]any{
		"msg": "Student deleted successfully",
	})
}

func (a *UsersController) studentID(ctx router.Context) (uuid.UUID, error) {
	raw := ctx.Param("id", "")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, goerrors.New("invalid student id", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"id": raw})
	}
	return id, nil
}

func (a *UsersController) normalizePhone(raw string) (string, error) {
	num, err := phonenumbers.Parse(raw, a.DefaultRegion)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", goerrors.New("invalid phone number", goerrors.CategoryValidation).
			WithMetadata(map[string]any{"phone": raw})
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func (a *UsersController) recordDeletion(ctx router.Context, id uuid.UUID) {
	actorID := ""
	if claims, ok := GetRouterClaims(ctx, a.Config.GetContextKey()); ok {
		actorID = claims.UserID()
	}

	event := ActivityEvent{
		EventType: ActivityEventStudentDeleted,
		Actor: ActorRef{
			ID:   actorID,
			Type: "user",
		},
		UserID:     id.String(),
		Metadata:   map[string]any{},
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(a.Activity).Record(context.WithoutCancel(ctx.Context()), event); err != nil {
		a.Logger.Warn("activity sink error during student deletion: %v", err)
	}
}

func studentNotFound(id uuid.UUID) *goerrors.Error {
	return goerrors.New("student not found", goerrors.CategoryNotFound).
		WithCode(goerrors.CodeNotFound).
		WithMetadata(map[string]any{"id": id.String()})
}
