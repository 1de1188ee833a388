package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAuthenticate_AcceptsConfiguredKey(t *testing.T) {
	hash, err := HashKey("s3cret")
	require.NoError(t, err)

	a := New([]string{hash})
	require.True(t, a.Authenticate("s3cret"))
	require.False(t, a.Authenticate("wrong"))
	require.False(t, a.Authenticate(""))
}

func TestMiddleware_RejectsMissingKey(t *testing.T) {
	hash, err := HashKey("s3cret")
	require.NoError(t, err)
	a := New([]string{hash})

	called := false
	h := a.Middleware(func(w http.ResponseWriter, r *http.Request) { called = true })

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	h(rr, req)

	require.False(t, called)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMiddleware_AllowsValidKey(t *testing.T) {
	hash, err := HashKey("s3cret")
	require.NoError(t, err)
	a := New([]string{hash})

	called := false
	h := a.Middleware(func(w http.ResponseWriter, r *http.Request) { called = true })

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "s3cret")
	h(rr, req)

	require.True(t, called)
}
