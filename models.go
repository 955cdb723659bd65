package edutrack

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRole is the user's role
type UserRole = string

const (
	// RoleStudent is the default role for self-registered users
	RoleStudent UserRole = "student"
	// RoleAdmin can manage student records
	RoleAdmin UserRole = "admin"
)

// ActionTokenKind tags what a pending action token may be consumed for.
type ActionTokenKind = string

const (
	// ActionTokenVerify confirms ownership of the signup email address
	ActionTokenVerify ActionTokenKind = "verify"
	// ActionTokenReset authorizes a password reset
	ActionTokenReset ActionTokenKind = "reset"
)

// User is the user model
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`

	ID           uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role         UserRole  `bun:"user_role,notnull" json:"role,omitempty"`
	Name         string    `bun:"name,notnull" json:"name,omitempty"`
	Email        string    `bun:"email,notnull,unique" json:"email,omitempty"`
	Course       string    `bun:"course" json:"course,omitempty"`
	Phone        string    `bun:"phone_number" json:"phone_number,omitempty"`
	PasswordHash string    `bun:"password_hash" json:"-"`
	IsVerified   bool      `bun:"is_verified" json:"is_verified"`

	// The action token triplet is either fully present or fully absent; the
	// conditional update in repo_users.go clears all three in one statement.
	ActionToken       string     `bun:"action_token,nullzero" json:"-"`
	ActionTokenKind   string     `bun:"action_token_kind,nullzero" json:"-"`
	ActionTokenExpiry *time.Time `bun:"action_token_expiry,nullzero" json:"-"`

	LoginAttempts  int        `bun:"login_attempts" json:"-"`
	LoginAttemptAt *time.Time `bun:"login_attempt_at" json:"-"`
	LoggedInAt     *time.Time `bun:"loggedin_at" json:"-"`

	CreatedAt *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// HasPendingActionToken reports whether an unexpired token of the given kind
// is attached to the record.
func (u *User) HasPendingActionToken(kind ActionTokenKind, now time.Time) bool {
	if u.ActionToken == "" || u.ActionTokenExpiry == nil {
		return false
	}
	return u.ActionTokenKind == kind && now.Before(*u.ActionTokenExpiry)
}

// SetActionToken attaches a token triplet to the record.
func (u *User) SetActionToken(kind ActionTokenKind, token string, expiry time.Time) *User {
	u.ActionToken = token
	u.ActionTokenKind = kind
	u.ActionTokenExpiry = &expiry
	return u
}

// ClearActionToken removes the token triplet from the record.
func (u *User) ClearActionToken() *User {
	u.ActionToken = ""
	u.ActionTokenKind = ""
	u.ActionTokenExpiry = nil
	return u
}
