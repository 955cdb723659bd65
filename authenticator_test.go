package edutrack_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edutrack/edutrack"
)

type testAuthConfig struct{}

func (testAuthConfig) GetSigningKey() string     { return "test-signing-key" }
func (testAuthConfig) GetSigningMethod() string  { return "HS256" }
func (testAuthConfig) GetContextKey() string     { return "user" }
func (testAuthConfig) GetTokenExpiration() int   { return 1 }
func (testAuthConfig) GetTokenLookup() string    { return "header:Authorization" }
func (testAuthConfig) GetAuthScheme() string     { return "Bearer" }
func (testAuthConfig) GetIssuer() string         { return "edutrack-test" }
func (testAuthConfig) GetAudience() []string     { return []string{"edutrack"} }

func TestAutherLogin(t *testing.T) {
	ctx := context.Background()

	newAuther := func(users *memUsers, sink edutrack.ActivitySink) *edutrack.Auther {
		provider := edutrack.NewUserProvider(users).WithLogger(testLogger{})
		return edutrack.NewAuthenticator(provider, testAuthConfig{}).
			WithLogger(testLogger{}).
			WithActivitySink(sink)
	}

	t.Run("issues a token whose session carries the role", func(t *testing.T) {
		users := newMemUsers()
		sink := &captureSink{}
		seedUser(t, users, "pepe@example.com", "password123", edutrack.RoleAdmin, true)

		auther := newAuther(users, sink)

		token, err := auther.Login(ctx, "pepe@example.com", "password123")
		require.NoError(t, err)
		require.NotEmpty(t, token)

		session, err := auther.SessionFromToken(token)
		require.NoError(t, err)

		so, ok := session.(*edutrack.SessionObject)
		require.True(t, ok)
		assert.Equal(t, edutrack.RoleAdmin, so.GetRole())
		assert.Equal(t, "edutrack-test", session.GetIssuer())

		assert.Len(t, sink.byType(edutrack.ActivityEventLoginSuccess), 1)
	})

	t.Run("bad credentials fail and emit a failure event", func(t *testing.T) {
		users := newMemUsers()
		sink := &captureSink{}
		seedUser(t, users, "pepe@example.com", "password123", edutrack.RoleStudent, true)

		auther := newAuther(users, sink)

		_, err := auther.Login(ctx, "pepe@example.com", "wrong")
		assert.ErrorIs(t, err, edutrack.ErrMismatchedHashAndPassword)

		assert.Len(t, sink.byType(edutrack.ActivityEventLoginFailure), 1)
	})

	t.Run("unverified accounts cannot obtain a token", func(t *testing.T) {
		users := newMemUsers()
		seedUser(t, users, "fresh@example.com", "password123", edutrack.RoleStudent, false)

		auther := newAuther(users, &captureSink{})

		_, err := auther.Login(ctx, "fresh@example.com", "password123")
		assert.ErrorIs(t, err, edutrack.ErrEmailNotVerified)
	})

	t.Run("signup then verify then login end to end", func(t *testing.T) {
		repo := newMemRepo()
		auther := newAuther(repo.users, &captureSink{})

		var verifyToken string
		signup := edutrack.NewSignupHandler(repo, nil).WithLogger(testLogger{})
		require.NoError(t, signup.Execute(ctx, edutrack.SignupMessage{
			Name:     "Pepe Rone",
			Email:    "pepe@example.com",
			Password: "password123",
			OnResponse: func(r *edutrack.SignupResponse) {
				verifyToken = r.VerificationToken
			},
		}))

		_, err := auther.Login(ctx, "pepe@example.com", "password123")
		assert.ErrorIs(t, err, edutrack.ErrEmailNotVerified)

		verify := edutrack.NewVerifyEmailHandler(repo).WithLogger(testLogger{})
		require.NoError(t, verify.Execute(ctx, edutrack.VerifyEmailMessage{Token: verifyToken}))

		token, err := auther.Login(ctx, "pepe@example.com", "password123")
		require.NoError(t, err)

		session, err := auther.SessionFromToken(token)
		require.NoError(t, err)

		so := session.(*edutrack.SessionObject)
		assert.Equal(t, edutrack.RoleStudent, so.GetRole())
	})
}

func TestAutherSessionFromToken(t *testing.T) {
	users := newMemUsers()
	provider := edutrack.NewUserProvider(users).WithLogger(testLogger{})
	auther := edutrack.NewAuthenticator(provider, testAuthConfig{}).WithLogger(testLogger{})

	t.Run("rejects garbage tokens", func(t *testing.T) {
		_, err := auther.SessionFromToken("not.a.token")
		assert.Error(t, err)
	})

	t.Run("rejects tokens signed with another key", func(t *testing.T) {
		other := edutrack.NewTokenService([]byte("other-key"), 1, "edutrack-test", []string{"edutrack"}, testLogger{})

		identity := &MockIdentity{}
		identity.On("ID").Return("user-123")
		identity.On("Role").Return("student")

		token, err := other.Generate(identity)
		require.NoError(t, err)

		_, err = auther.SessionFromToken(token)
		assert.Error(t, err)
	})

	t.Run("honors a custom token validator", func(t *testing.T) {
		custom := edutrack.TokenValidatorFunc(func(string) (edutrack.AuthClaims, error) {
			return nil, edutrack.ErrTokenExpired
		})

		customAuther := edutrack.NewAuthenticator(provider, testAuthConfig{}).
			WithLogger(testLogger{}).
			WithTokenValidator(custom)

		_, err := customAuther.SessionFromToken("anything")
		assert.ErrorIs(t, err, edutrack.ErrTokenExpired)
	})
}

func TestAutherIdentityFromSession(t *testing.T) {
	ctx := context.Background()
	users := newMemUsers()
	seeded := seedUser(t, users, "pepe@example.com", "password123", edutrack.RoleStudent, true)

	provider := edutrack.NewUserProvider(users).WithLogger(testLogger{})
	auther := edutrack.NewAuthenticator(provider, testAuthConfig{}).WithLogger(testLogger{})

	identity, err := auther.IdentityFromSession(ctx, &edutrack.SessionObject{UserID: "pepe@example.com"})
	require.NoError(t, err)
	assert.Equal(t, seeded.ID.String(), identity.ID())
}
