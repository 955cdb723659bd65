package edutrack

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ConsumeActionTokenSQL clears the token triplet only when the stored token
// matches, carries the expected kind, and has not expired. Concurrent callers
// race on the conditional write: exactly one sees the row, the rest get an
// empty result and must report the token as invalid or expired.
var ConsumeActionTokenSQL = `UPDATE "users" AS "usr"
SET
	"action_token" = NULL,
	"action_token_kind" = NULL,
	"action_token_expiry" = NULL
WHERE
	"usr"."deleted_at" IS NULL
AND "usr"."action_token" = ?
AND "usr"."action_token_kind" = ?
AND "usr"."action_token_expiry" > ?
RETURNING *;`

// ResetUserPasswordSQL also flips is_verified: a consumed reset link proves
// control of the mailbox just as well as a verification link does.
var ResetUserPasswordSQL = `UPDATE "users" AS "usr"
SET
	"is_verified" = TRUE,
	"password_hash" = ?
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

var SetActionTokenSQL = `UPDATE "users" AS "usr"
SET
	"action_token" = ?,
	"action_token_kind" = ?,
	"action_token_expiry" = ?
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

var MarkVerifiedSQL = `UPDATE "users" AS "usr"
SET
	"is_verified" = TRUE
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

type Users interface {
	repository.Repository[*User]

	TrackAttemptedLogin(ctx context.Context, user *User) error
	TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, user *User) error
	TrackSuccessfulLogin(ctx context.Context, user *User) error
	TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, user *User) error

	Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error)

	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)

	SetActionToken(ctx context.Context, id uuid.UUID, kind ActionTokenKind, token string, expiry time.Time) error
	SetActionTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, kind ActionTokenKind, token string, expiry time.Time) error
	ConsumeActionToken(ctx context.Context, kind ActionTokenKind, token string) (*User, error)
	ConsumeActionTokenTx(ctx context.Context, tx bun.IDB, kind ActionTokenKind, token string) (*User, error)

	MarkVerified(ctx context.Context, id uuid.UUID) error
	MarkVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error

	ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error

	ListStudents(ctx context.Context, page, limit int) ([]*User, int, error)
	DeleteStudent(ctx context.Context, id uuid.UUID) error
	DeleteStudentTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	prepareUserDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", strings.TrimSpace(email)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"email": email})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) SetActionToken(ctx context.Context, id uuid.UUID, kind ActionTokenKind, token string, expiry time.Time) error {
	return a.SetActionTokenTx(ctx, a.db, id, kind, token, expiry)
}

func (a *users) SetActionTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, kind ActionTokenKind, token string, expiry time.Time) error {
	res, err := a.Repository.RawTx(ctx, tx, SetActionTokenSQL, token, kind, expiry, id.String())
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return nil
}

func (a *users) ConsumeActionToken(ctx context.Context, kind ActionTokenKind, token string) (*User, error) {
	return a.ConsumeActionTokenTx(ctx, a.db, kind, token)
}

func (a *users) ConsumeActionTokenTx(ctx context.Context, tx bun.IDB, kind ActionTokenKind, token string) (*User, error) {
	if token == "" {
		return nil, ErrActionTokenInvalid
	}

	res, err := a.Repository.RawTx(ctx, tx, ConsumeActionTokenSQL, token, kind, time.Now())
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, ErrActionTokenInvalid
	}

	return res[0], nil
}

func (a *users) MarkVerified(ctx context.Context, id uuid.UUID) error {
	return a.MarkVerifiedTx(ctx, a.db, id)
}

func (a *users) MarkVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	res, err := a.Repository.RawTx(ctx, tx, MarkVerifiedSQL, id.String())
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return nil
}

func (a *users) ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return a.ResetPasswordTx(ctx, a.db, id, passwordHash)
}

func (a *users) ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	res, err := a.Repository.RawTx(ctx, tx, ResetUserPasswordSQL, passwordHash, id.String())
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return nil
}

func (a *users) ListStudents(ctx context.Context, page, limit int) ([]*User, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	records := []*User{}
	count, err := a.db.NewSelect().
		Model(&records).
		Where("?TableAlias.user_role = ?", RoleStudent).
		Order("created_at ASC").
		Limit(limit).
		Offset((page - 1) * limit).
		ScanAndCount(ctx)

	if err != nil {
		return nil, 0, err
	}

	return records, count, nil
}

func (a *users) DeleteStudent(ctx context.Context, id uuid.UUID) error {
	return a.DeleteStudentTx(ctx, a.db, id)
}

// DeleteStudentTx soft-deletes the record only when it still carries the
// student role; admin records are never deletable through this path.
func (a *users) DeleteStudentTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	res, err := tx.NewDelete().
		Model((*User)(nil)).
		Where("?TableAlias.id = ?", id.String()).
		Where("?TableAlias.user_role = ?", RoleStudent).
		Exec(ctx)

	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return nil
}

func (a *users) TrackSuccessfulLogin(ctx context.Context, user *User) error {
	return a.TrackSuccessfulLoginTx(ctx, a.db, user)
}

func (a *users) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, user *User) error {
	// NOTE: Updating using the ORM fails due to a bug, it wont reset
	// login_attempt_at, login_attempts fields.
	loggedInAt := time.Now()
	_, err := tx.NewRaw(`
		UPDATE "users" AS "usr"
		SET
			"loggedin_at" = ?,
			"login_attempt_at" = NULL,
			"login_attempts" = 0
		WHERE
			("usr".id = ?)
			AND "usr"."deleted_at" IS NULL;
	`, loggedInAt, user.ID).Exec(ctx)

	return err
}

func (a *users) TrackAttemptedLogin(ctx context.Context, user *User) error {
	return a.TrackAttemptedLoginTx(ctx, a.db, user)
}

func (a *users) TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, user *User) error {
	criteria := []repository.UpdateCriteria{
		repository.UpdateByID(user.ID.String()),
	}

	record := &User{}
	record.ID = user.ID
	record.LoginAttempts = user.LoginAttempts + 1
	now := time.Now()
	record.LoginAttemptAt = &now

	_, err := a.Repository.UpdateTx(ctx, tx, record, criteria...)

	return err
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	if record.Role == "" {
		record.Role = RoleStudent
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

// TotalPages computes the page count the students listing reports.
func TotalPages(total, limit int) int {
	if limit < 1 {
		return 0
	}
	pages := total / limit
	if total%limit != 0 {
		pages++
	}
	return pages
}
