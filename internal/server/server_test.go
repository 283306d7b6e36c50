package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/memohai/forum/internal/logger"
)

func TestShouldSkipJWT(t *testing.T) {
	t.Parallel()

	cases := []struct {
		method string
		path   string
		want   bool
	}{
		{method: http.MethodGet, path: "/ping", want: true},
		{method: http.MethodHead, path: "/health", want: true},
		{method: http.MethodGet, path: "/smileys", want: true},
		{method: http.MethodGet, path: "/messages/12", want: true},
		{method: http.MethodPut, path: "/messages/12", want: false},
		{method: http.MethodPost, path: "/messages", want: false},
		{method: http.MethodPost, path: "/admin/smileys/reload", want: false},
		{method: http.MethodGet, path: "/admin/messages", want: false},
	}

	for _, tc := range cases {
		got := shouldSkipJWT(tc.method, tc.path)
		if got != tc.want {
			t.Fatalf("%s %q want=%v got=%v", tc.method, tc.path, tc.want, got)
		}
	}
}

type echoHandler struct{}

func (echoHandler) Register(e *echo.Echo) {
	e.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") })
	e.POST("/messages", func(c echo.Context) error { return c.NoContent(http.StatusCreated) })
}

func TestServerRequiresTokenOutsideSkipPaths(t *testing.T) {
	t.Parallel()

	srv := NewServer(logger.Discard(), "", "secret", echoHandler{}, nil)

	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/messages", nil))
	assert.Contains(t, []int{http.StatusBadRequest, http.StatusUnauthorized}, rec.Code)
}
