package edutrack_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"

	"github.com/edutrack/edutrack"
)

type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

// memUsers is an in-memory Users implementation. Only the methods the
// handlers exercise are overridden; everything else panics through the
// embedded nil interface, which is exactly what we want in a test.
type memUsers struct {
	edutrack.Users

	mu        sync.Mutex
	byID      map[uuid.UUID]*edutrack.User
	order     []uuid.UUID
	createErr error
}

func newMemUsers() *memUsers {
	return &memUsers{byID: map[uuid.UUID]*edutrack.User{}}
}

func clone(u *edutrack.User) *edutrack.User {
	cp := *u
	return &cp
}

func notFound(meta map[string]any) error {
	return repository.NewRecordNotFound().WithMetadata(meta)
}

func (s *memUsers) GetByEmail(ctx context.Context, email string) (*edutrack.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.order {
		if u := s.byID[id]; u.Email == email && u.DeletedAt == nil {
			return clone(u), nil
		}
	}
	return nil, notFound(map[string]any{"email": email})
}

func (s *memUsers) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*edutrack.User, error) {
	return s.GetByEmail(ctx, email)
}

func (s *memUsers) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*edutrack.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, notFound(map[string]any{"id": id})
	}
	if u, ok := s.byID[uid]; ok && u.DeletedAt == nil {
		return clone(u), nil
	}
	return nil, notFound(map[string]any{"id": id})
}

func (s *memUsers) Create(ctx context.Context, record *edutrack.User, criteria ...repository.InsertCriteria) (*edutrack.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.createErr != nil {
		return nil, s.createErr
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.Role == "" {
		record.Role = edutrack.RoleStudent
	}
	now := time.Now()
	record.CreatedAt = &now

	s.byID[record.ID] = clone(record)
	s.order = append(s.order, record.ID)

	return clone(record), nil
}

func (s *memUsers) CreateTx(ctx context.Context, tx bun.IDB, record *edutrack.User, criteria ...repository.InsertCriteria) (*edutrack.User, error) {
	return s.Create(ctx, record, criteria...)
}

func (s *memUsers) Update(ctx context.Context, record *edutrack.User, criteria ...repository.UpdateCriteria) (*edutrack.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[record.ID]; !ok {
		return nil, notFound(map[string]any{"id": record.ID.String()})
	}
	s.byID[record.ID] = clone(record)

	return clone(record), nil
}

func (s *memUsers) SetActionToken(ctx context.Context, id uuid.UUID, kind edutrack.ActionTokenKind, token string, expiry time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok || u.DeletedAt != nil {
		return notFound(map[string]any{"id": id.String()})
	}
	u.SetActionToken(kind, token, expiry)

	return nil
}

func (s *memUsers) SetActionTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, kind edutrack.ActionTokenKind, token string, expiry time.Time) error {
	return s.SetActionToken(ctx, id, kind, token, expiry)
}

// ConsumeActionToken mirrors the conditional UPDATE in the real repository:
// the check and the clear happen under one lock, so concurrent consumers of
// the same token see exactly one winner.
func (s *memUsers) ConsumeActionToken(ctx context.Context, kind edutrack.ActionTokenKind, token string) (*edutrack.User, error) {
	if token == "" {
		return nil, edutrack.ErrActionTokenInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.byID {
		if u.DeletedAt != nil {
			continue
		}
		if u.ActionToken == token && u.ActionTokenKind == kind &&
			u.ActionTokenExpiry != nil && u.ActionTokenExpiry.After(time.Now()) {
			u.ClearActionToken()
			return clone(u), nil
		}
	}

	return nil, edutrack.ErrActionTokenInvalid
}

func (s *memUsers) ConsumeActionTokenTx(ctx context.Context, tx bun.IDB, kind edutrack.ActionTokenKind, token string) (*edutrack.User, error) {
	return s.ConsumeActionToken(ctx, kind, token)
}

func (s *memUsers) MarkVerified(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok || u.DeletedAt != nil {
		return notFound(map[string]any{"id": id.String()})
	}
	u.IsVerified = true

	return nil
}

func (s *memUsers) MarkVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	return s.MarkVerified(ctx, id)
}

func (s *memUsers) ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok || u.DeletedAt != nil {
		return notFound(map[string]any{"id": id.String()})
	}
	u.PasswordHash = passwordHash
	u.IsVerified = true

	return nil
}

func (s *memUsers) ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	return s.ResetPassword(ctx, id, passwordHash)
}

func (s *memUsers) TrackAttemptedLogin(ctx context.Context, user *edutrack.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[user.ID]
	if !ok {
		return notFound(map[string]any{"id": user.ID.String()})
	}
	u.LoginAttempts = user.LoginAttempts + 1
	now := time.Now()
	u.LoginAttemptAt = &now

	return nil
}

func (s *memUsers) TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, user *edutrack.User) error {
	return s.TrackAttemptedLogin(ctx, user)
}

func (s *memUsers) TrackSuccessfulLogin(ctx context.Context, user *edutrack.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[user.ID]
	if !ok {
		return notFound(map[string]any{"id": user.ID.String()})
	}
	now := time.Now()
	u.LoggedInAt = &now
	u.LoginAttemptAt = nil
	u.LoginAttempts = 0

	return nil
}

func (s *memUsers) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, user *edutrack.User) error {
	return s.TrackSuccessfulLogin(ctx, user)
}

func (s *memUsers) ListStudents(ctx context.Context, page, limit int) ([]*edutrack.User, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	students := []*edutrack.User{}
	for _, id := range s.order {
		if u := s.byID[id]; u.Role == edutrack.RoleStudent && u.DeletedAt == nil {
			students = append(students, clone(u))
		}
	}

	total := len(students)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return students[start:end], total, nil
}

func (s *memUsers) DeleteStudent(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok || u.DeletedAt != nil || u.Role != edutrack.RoleStudent {
		return notFound(map[string]any{"id": id.String()})
	}
	now := time.Now()
	u.DeletedAt = &now

	return nil
}

func (s *memUsers) DeleteStudentTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	return s.DeleteStudent(ctx, id)
}

// memRepo satisfies RepositoryManager without a database; RunInTx simply
// invokes the callback with a zero transaction the stub never touches.
type memRepo struct {
	users *memUsers
}

func newMemRepo() *memRepo {
	return &memRepo{users: newMemUsers()}
}

func (m *memRepo) Users() edutrack.Users { return m.users }

func (m *memRepo) Validate() error { return nil }

func (m *memRepo) MustValidate() {}

func (m *memRepo) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return f(ctx, bun.Tx{})
	}
}

var _ edutrack.RepositoryManager = (*memRepo)(nil)

type sentMail struct {
	To      string
	Subject string
	Body    string
}

type captureMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *captureMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: body})

	return nil
}

func (m *captureMailer) messages() []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]sentMail, len(m.sent))
	copy(out, m.sent)

	return out
}

type captureSink struct {
	mu     sync.Mutex
	events []edutrack.ActivityEvent
}

func (s *captureSink) Record(_ context.Context, event edutrack.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, event)

	return nil
}

func (s *captureSink) byType(t edutrack.ActivityEventType) []edutrack.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []edutrack.ActivityEvent{}
	for _, e := range s.events {
		if e.EventType == t {
			out = append(out, e)
		}
	}

	return out
}

// seedUser inserts a user with a MinCost hash; comparison does not care
// about the cost so tests stay fast.
func seedUser(t *testing.T, users *memUsers, email, password string, role edutrack.UserRole, verified bool) *edutrack.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	user := &edutrack.User{
		Name:         "Test User",
		Email:        email,
		Role:         role,
		PasswordHash: string(hash),
		IsVerified:   verified,
	}

	created, err := users.Create(context.Background(), user)
	require.NoError(t, err)

	return created
}
