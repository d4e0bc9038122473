package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestSessionIssuesAndKeepsCookie(t *testing.T) {
	var seen string
	handler := Session("sid", time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SessionFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, "sid", cookies[0].Name)
	require.Equal(t, seen, cookies[0].Value)
	require.True(t, cookies[0].HttpOnly)
	_, err := uuid.Parse(seen)
	require.NoError(t, err)

	first := seen
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: first})
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, first, seen)
}

func TestSessionReplacesForgedValue(t *testing.T) {
	var seen string
	handler := Session("sid", time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SessionFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "../../approvedStories"})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NotEqual(t, "../../approvedStories", seen)
	_, err := uuid.Parse(seen)
	require.NoError(t, err)
}
