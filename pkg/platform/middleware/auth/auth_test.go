package auth

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	id "nftregistry/pkg/domain"
	"nftregistry/pkg/requestcontext"
)

type validatorFunc func(string) (*JWTClaims, error)

func (f validatorFunc) ValidateToken(token string) (*JWTClaims, error) { return f(token) }

var validator = validatorFunc(func(token string) (*JWTClaims, error) {
	switch token {
	case "good":
		return &JWTClaims{Account: "alice", JTI: "j1"}, nil
	case "blank-subject":
		return &JWTClaims{}, nil
	default:
		return nil, errors.New("bad token")
	}
})

func serve(mw func(http.Handler) http.Handler, header string) (*httptest.ResponseRecorder, id.AccountID, bool) {
	var account id.AccountID
	called := false
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		account = requestcontext.Account(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr, account, called
}

func TestAuthenticate(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mw := Authenticate(validator, logger)

	t.Run("valid token sets account", func(t *testing.T) {
		_, account, called := serve(mw, "Bearer good")
		assert.True(t, called)
		assert.Equal(t, id.AccountID("alice"), account)
	})

	t.Run("anonymous passes through", func(t *testing.T) {
		_, account, called := serve(mw, "")
		assert.True(t, called)
		assert.True(t, account.IsZero())
	})

	t.Run("invalid token rejected", func(t *testing.T) {
		rr, _, called := serve(mw, "Bearer nope")
		assert.False(t, called)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("non bearer scheme rejected", func(t *testing.T) {
		rr, _, called := serve(mw, "Basic abc")
		assert.False(t, called)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("empty subject rejected", func(t *testing.T) {
		rr, _, called := serve(mw, "Bearer blank-subject")
		assert.False(t, called)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestRequireAuth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rr, _, called := serve(RequireAuth(validator, logger), "")
	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "Missing or invalid Authorization header")
}
