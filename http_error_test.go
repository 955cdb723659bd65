package edutrack_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edutrack/edutrack"
)

func TestStatusFromError(t *testing.T) {
	tests := []struct {
		name string
		err  *goerrors.Error
		want int
	}{
		{
			name: "auth maps to unauthorized",
			err:  goerrors.New("bad credentials", goerrors.CategoryAuth),
			want: http.StatusUnauthorized,
		},
		{
			name: "authz maps to forbidden",
			err:  goerrors.New("access denied", goerrors.CategoryAuthz),
			want: http.StatusForbidden,
		},
		{
			name: "conflict maps to conflict",
			err:  goerrors.New("user exists", goerrors.CategoryConflict),
			want: http.StatusConflict,
		},
		{
			name: "not found maps to not found",
			err:  goerrors.New("no such student", goerrors.CategoryNotFound),
			want: http.StatusNotFound,
		},
		{
			name: "validation maps to bad request",
			err:  goerrors.New("invalid payload", goerrors.CategoryValidation),
			want: http.StatusBadRequest,
		},
		{
			name: "bad input maps to bad request",
			err:  goerrors.New("unparseable body", goerrors.CategoryBadInput),
			want: http.StatusBadRequest,
		},
		{
			name: "explicit code in range wins for uncategorized errors",
			err:  goerrors.New("teapot", goerrors.CategoryInternal).WithCode(http.StatusTeapot),
			want: http.StatusTeapot,
		},
		{
			name: "everything else is an internal error",
			err:  goerrors.New("boom", goerrors.CategoryInternal),
			want: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, edutrack.StatusFromError(tt.err))
		})
	}
}

func TestAsRichError(t *testing.T) {
	t.Run("rich errors pass through untouched", func(t *testing.T) {
		rich := goerrors.New("user exists", goerrors.CategoryConflict)
		assert.Same(t, rich, edutrack.AsRichError(rich))
	})

	t.Run("plain errors are wrapped as internal", func(t *testing.T) {
		rich := edutrack.AsRichError(errors.New("db exploded"))
		assert.Equal(t, goerrors.CategoryInternal, rich.Category)
		assert.Equal(t, goerrors.CodeInternal, rich.Code)
	})
}

func TestRenderError(t *testing.T) {
	render := func(t *testing.T, err error, wantStatus int) map[string]any {
		t.Helper()

		ctx := router.NewMockContext()

		var body map[string]any
		ctx.On("JSON", wantStatus, mock.Anything).Run(func(args mock.Arguments) {
			body = args.Get(1).(map[string]any)
		}).Return(nil)

		require.NoError(t, edutrack.RenderError(ctx, err))
		ctx.AssertExpectations(t)

		return body
	}

	t.Run("writes the msg envelope with the mapped status", func(t *testing.T) {
		body := render(t, goerrors.New("User already exists", goerrors.CategoryConflict), http.StatusConflict)
		assert.Equal(t, "User already exists", body["msg"])
	})

	t.Run("masks internal error details", func(t *testing.T) {
		body := render(t, goerrors.New("dsn user=postgres leaked", goerrors.CategoryInternal), http.StatusInternalServerError)
		assert.Equal(t, "Internal server error", body["msg"])
	})

	t.Run("plain errors are masked too", func(t *testing.T) {
		body := render(t, errors.New("driver: bad connection"), http.StatusInternalServerError)
		assert.Equal(t, "Internal server error", body["msg"])
	})

	t.Run("action token failures surface the shared message", func(t *testing.T) {
		body := render(t, edutrack.ErrActionTokenInvalid, http.StatusBadRequest)
		assert.Equal(t, "invalid or expired token", body["msg"])
	})
}

func newTestHTTPAuthenticator(t *testing.T) *edutrack.RouteAuthenticator {
	t.Helper()

	provider := edutrack.NewUserProvider(newMemUsers()).WithLogger(testLogger{})
	auther := edutrack.NewAuthenticator(provider, testAuthConfig{}).WithLogger(testLogger{})

	httpAuth, err := edutrack.NewHTTPAuthenticator(auther, testAuthConfig{})
	require.NoError(t, err)
	httpAuth.Logger = testLogger{}

	return httpAuth
}

func claimsContext(role string) *router.MockContext {
	ctx := router.NewMockContext()
	ctx.LocalsMock["user"] = &edutrack.JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user123"},
		UID:              "user123",
		UserRole:         role,
	}
	return ctx
}

func TestRequireRole(t *testing.T) {
	httpAuth := newTestHTTPAuthenticator(t)
	adminOnly := httpAuth.RequireRole(edutrack.RoleAdmin)

	t.Run("matching role reaches the handler", func(t *testing.T) {
		ctx := claimsContext("admin")

		nextCalled := false
		err := adminOnly(func(router.Context) error {
			nextCalled = true
			return nil
		})(ctx)

		require.NoError(t, err)
		assert.True(t, nextCalled)
	})

	t.Run("wrong role is forbidden", func(t *testing.T) {
		ctx := claimsContext("student")

		var body map[string]any
		ctx.On("JSON", http.StatusForbidden, mock.Anything).Run(func(args mock.Arguments) {
			body = args.Get(1).(map[string]any)
		}).Return(nil)

		err := adminOnly(func(router.Context) error {
			t.Fatal("handler must not run")
			return nil
		})(ctx)

		require.NoError(t, err)
		assert.Equal(t, "access denied", body["msg"])
	})

	t.Run("missing claims are unauthorized", func(t *testing.T) {
		ctx := router.NewMockContext()

		var body map[string]any
		ctx.On("JSON", http.StatusUnauthorized, mock.Anything).Run(func(args mock.Arguments) {
			body = args.Get(1).(map[string]any)
		}).Return(nil)

		err := adminOnly(func(router.Context) error {
			t.Fatal("handler must not run")
			return nil
		})(ctx)

		require.NoError(t, err)
		assert.Equal(t, "unable to find session", body["msg"])
	})
}

func TestRequireMinimumRole(t *testing.T) {
	httpAuth := newTestHTTPAuthenticator(t)

	t.Run("a higher role clears the bar", func(t *testing.T) {
		ctx := claimsContext("admin")

		nextCalled := false
		err := httpAuth.RequireMinimumRole(edutrack.RoleStudent)(func(router.Context) error {
			nextCalled = true
			return nil
		})(ctx)

		require.NoError(t, err)
		assert.True(t, nextCalled)
	})

	t.Run("a lower role is forbidden", func(t *testing.T) {
		ctx := claimsContext("student")
		ctx.On("JSON", http.StatusForbidden, mock.Anything).Return(nil)

		err := httpAuth.RequireMinimumRole(edutrack.RoleAdmin)(func(router.Context) error {
			t.Fatal("handler must not run")
			return nil
		})(ctx)

		require.NoError(t, err)
		ctx.AssertExpectations(t)
	})
}

func TestMakeAuthErrorHandler(t *testing.T) {
	httpAuth := newTestHTTPAuthenticator(t)

	t.Run("expired tokens get the expiry message", func(t *testing.T) {
		ctx := router.NewMockContext()

		var body map[string]any
		ctx.On("JSON", http.StatusUnauthorized, mock.Anything).Run(func(args mock.Arguments) {
			body = args.Get(1).(map[string]any)
		}).Return(nil)

		handler := httpAuth.MakeAuthErrorHandler(false)
		require.NoError(t, handler(ctx, errors.New("token is expired")))
		assert.Equal(t, "authentication token has expired", body["msg"])
	})

	t.Run("malformed tokens get the generic invalid message", func(t *testing.T) {
		ctx := router.NewMockContext()

		var body map[string]any
		ctx.On("JSON", http.StatusUnauthorized, mock.Anything).Run(func(args mock.Arguments) {
			body = args.Get(1).(map[string]any)
		}).Return(nil)

		handler := httpAuth.MakeAuthErrorHandler(false)
		require.NoError(t, handler(ctx, errors.New("token is malformed: bad segments")))
		assert.Equal(t, "invalid authentication token", body["msg"])
	})

	t.Run("other failures become generic auth errors", func(t *testing.T) {
		ctx := router.NewMockContext()

		var body map[string]any
		ctx.On("JSON", http.StatusUnauthorized, mock.Anything).Run(func(args mock.Arguments) {
			body = args.Get(1).(map[string]any)
		}).Return(nil)

		handler := httpAuth.MakeAuthErrorHandler(false)
		require.NoError(t, handler(ctx, errors.New("signature verification failed")))
		assert.Equal(t, "Invalid authentication token", body["msg"])
	})

	t.Run("optional auth proceeds unauthenticated", func(t *testing.T) {
		ctx := router.NewMockContext()

		handler := httpAuth.MakeAuthErrorHandler(true)
		require.NoError(t, handler(ctx, errors.New("token is expired")))
		assert.True(t, ctx.NextCalled)
	})
}
