package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqarly/aqarly/pkg/auth"
	"github.com/aqarly/aqarly/pkg/ownership"
)

type fakeValidator struct {
	user *auth.User
	err  error
}

func (f *fakeValidator) ValidateToken(ctx context.Context, token string) (*auth.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.user, nil
}

func TestAuthMiddlewareSetsUser(t *testing.T) {
	user := &auth.User{ID: 42}
	mw := NewAuthMiddleware(&fakeValidator{user: user}, false)

	var seen *auth.User
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer aqly_sometoken")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, int64(42), seen.ID)
}

func TestAuthMiddlewareRejections(t *testing.T) {
	tests := []struct {
		name   string
		header string
		err    error
		want   int
	}{
		{"missing header", "", nil, http.StatusUnauthorized},
		{"bad format", "Token abc", nil, http.StatusUnauthorized},
		{"invalid token", "Bearer nope", auth.ErrInvalidToken, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw := NewAuthMiddleware(&fakeValidator{user: &auth.User{ID: 1}, err: tt.err}, false)
			handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler must not run")
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestAuthMiddlewareOptionalPassesThrough(t *testing.T) {
	mw := NewAuthMiddleware(&fakeValidator{err: auth.ErrInvalidToken}, true)
	called := false
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		_, ok := UserFromContext(r.Context())
		assert.False(t, ok)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.True(t, called)
}

type fakeOwnershipGetter struct {
	byUUID map[string]*ownership.Ownership
}

func (f *fakeOwnershipGetter) GetByUUID(ctx context.Context, ownershipUUID string) (*ownership.Ownership, error) {
	if o, ok := f.byUUID[ownershipUUID]; ok {
		return o, nil
	}
	return nil, ownership.ErrOwnershipNotFound
}

func (f *fakeOwnershipGetter) Get(ctx context.Context, id int64) (*ownership.Ownership, error) {
	for _, o := range f.byUUID {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, ownership.ErrOwnershipNotFound
}

func ownershipFixture() *OwnershipScopeMiddleware {
	getter := &fakeOwnershipGetter{byUUID: map[string]*ownership.Ownership{
		"own-5": {ID: 5, UUID: "own-5", Name: "Fifth", Active: true},
		"own-6": {ID: 6, UUID: "own-6", Name: "Sixth", Active: false},
	}}
	return NewOwnershipScopeMiddleware(ownership.NewResolver(getter))
}

func withUser(req *http.Request, user *auth.User) *http.Request {
	mw := NewAuthMiddleware(&fakeValidator{user: user}, false)
	var out *http.Request
	mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { out = r })).
		ServeHTTP(httptest.NewRecorder(), func() *http.Request {
			req.Header.Set("Authorization", "Bearer aqly_x")
			return req
		}())
	return out
}

func TestOwnershipScopeMiddleware(t *testing.T) {
	member := &auth.User{
		ID:          42,
		Memberships: []auth.OwnershipMembership{{OwnershipID: 5, IsDefault: true}},
	}

	t.Run("header selects the scope", func(t *testing.T) {
		mw := ownershipFixture()
		var scope *ownership.Context
		handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope, _ = ScopeFromContext(r.Context())
		}))

		req := withUser(httptest.NewRequest(http.MethodGet, "/", nil), member)
		req.Header.Set(OwnershipHeader, "own-5")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, scope)
		assert.Equal(t, int64(5), scope.OwnershipID)
	})

	t.Run("unknown ownership is 404", func(t *testing.T) {
		mw := ownershipFixture()
		handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		req := withUser(httptest.NewRequest(http.MethodGet, "/", nil), member)
		req.Header.Set(OwnershipHeader, "own-404")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("inactive ownership is 403", func(t *testing.T) {
		mw := ownershipFixture()
		handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		req := withUser(httptest.NewRequest(http.MethodGet, "/", nil), member)
		req.Header.Set(OwnershipHeader, "own-6")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("no selection and no membership is 400", func(t *testing.T) {
		mw := ownershipFixture()
		handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		req := withUser(httptest.NewRequest(http.MethodGet, "/", nil), &auth.User{ID: 7})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unauthenticated request is rejected", func(t *testing.T) {
		mw := ownershipFixture()
		handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	rl := NewRateLimiter(client, &RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute}, "test")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, err := rl.Allow(ctx, "k")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, err := rl.Allow(ctx, "k")
	require.NoError(t, err)
	assert.False(t, allowed)

	remaining, err := rl.Remaining(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	require.NoError(t, rl.Reset(ctx, "k"))
	allowed, err = rl.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRateLimitMiddlewareBlocksOverLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	m := &RateLimitMiddleware{
		userLimiter: NewRateLimiter(client, &RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}, "u"),
		anonLimiter: NewRateLimiter(client, &RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}, "a"),
	}
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
