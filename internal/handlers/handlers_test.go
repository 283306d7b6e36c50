package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/forum/internal/auth"
	"github.com/memohai/forum/internal/logger"
	"github.com/memohai/forum/internal/message"
	"github.com/memohai/forum/internal/metrics"
	"github.com/memohai/forum/internal/processor"
	"github.com/memohai/forum/internal/reprocess"
	"github.com/memohai/forum/internal/server"
	"github.com/memohai/forum/internal/smiley"
)

const testJWTSecret = "handler-test-secret"

type testEnv struct {
	echo    *echo.Echo
	store   *message.MemoryStore
	codec   *reprocess.Codec
	smileys *smiley.Map
	reg     *prometheus.Registry
}

type flakyStore struct {
	*message.MemoryStore
	failList bool
}

func (s *flakyStore) ListPage(ctx context.Context, q message.PageQuery) ([]message.Message, error) {
	if s.failList {
		return nil, errors.New("connection reset")
	}
	return s.MemoryStore.ListPage(ctx, q)
}

func newTestEnv(t *testing.T, store message.Store, mem *message.MemoryStore) *testEnv {
	t.Helper()
	log := logger.Discard()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	smileys := smiley.NewMap(log, smiley.SourceFunc(func(context.Context) ([]smiley.Smiley, error) {
		return []smiley.Smiley{{ID: 1, Code: ":)", Path: "/s/smile.gif", SortOrder: 1002}}, nil
	}))
	require.NoError(t, smileys.Reload(context.Background()))
	proc := processor.New(log, smileys, nil, processor.Limits{MaxBodyRunes: 200})
	saver := message.NewRetryingSaver(log, store, message.DefaultMaxRetries, m)
	codec, err := reprocess.NewCodec([]byte("state-secret"))
	require.NoError(t, err)

	srv := server.NewServer(log, "", testJWTSecret,
		NewPingHandler(log, nil),
		NewMessageHandler(log, message.NewService(log, store, saver, proc)),
		NewSmileyHandler(log, smileys),
		NewBatchHandler(log, reprocess.NewController(log, store, saver, proc, 2, m), codec),
		NewMetricsHandler(reg),
	)
	return &testEnv{echo: srv.Echo(), store: mem, codec: codec, smileys: smileys, reg: reg}
}

func (env *testEnv) do(t *testing.T, method, path, body, role string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if role != "" {
		token, _, err := auth.GenerateToken("user-1", role, testJWTSecret, time.Minute)
		require.NoError(t, err)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestMessageLifecycle(t *testing.T) {
	t.Parallel()

	mem := message.NewMemoryStore()
	env := newTestEnv(t, mem, mem)

	rec := env.do(t, http.MethodPost, "/messages", `{"body":"hi :)"}`, auth.RoleMember)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[message.Message](t, rec)
	assert.Contains(t, created.DisplayBody, `class="smiley"`)
	assert.True(t, created.Processed)

	rec = env.do(t, http.MethodGet, "/messages/1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPut, "/messages/1", `{"body":"<b>edited</b>"}`, auth.RoleMember)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	edited := decode[message.Message](t, rec)
	assert.Equal(t, "<b>edited</b>", edited.DisplayBody)

	rec = env.do(t, http.MethodDelete, "/messages/1", "", auth.RoleMember)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, http.MethodGet, "/messages/1", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMessageValidation(t *testing.T) {
	t.Parallel()

	mem := message.NewMemoryStore()
	env := newTestEnv(t, mem, mem)

	rec := env.do(t, http.MethodPost, "/messages", `{"body":"   "}`, auth.RoleMember)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decode[validationResponse](t, rec)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "body", resp.Errors[0].Field)
	assert.Equal(t, "required", resp.Errors[0].Code)

	rec = env.do(t, http.MethodPost, "/messages", `{"body":"`+strings.Repeat("a", 201)+`"}`, auth.RoleMember)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "too_long", decode[validationResponse](t, rec).Errors[0].Code)

	rec = env.do(t, http.MethodGet, "/messages/abc", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	n, _ := mem.Count(context.Background(), message.Filter{})
	assert.Zero(t, n)
}

func TestMessagePreview(t *testing.T) {
	t.Parallel()

	mem := message.NewMemoryStore()
	env := newTestEnv(t, mem, mem)

	rec := env.do(t, http.MethodPost, "/messages/preview", `{"body":"see www.example.com"}`, auth.RoleMember)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[processor.Result](t, rec)
	assert.Contains(t, res.DisplayBody, `href="http://www.example.com/"`)
	assert.Equal(t, 0, mem.Saves())
}

func TestSmileyRoutes(t *testing.T) {
	t.Parallel()

	mem := message.NewMemoryStore()
	env := newTestEnv(t, mem, mem)

	rec := env.do(t, http.MethodGet, "/smileys", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[SmileyListResponse](t, rec)
	require.Len(t, list.Items, 1)
	assert.Equal(t, 1, list.Items[0].Column)
	assert.Equal(t, 2, list.Items[0].Row)

	rec = env.do(t, http.MethodPost, "/admin/smileys/reload", "", auth.RoleMember)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = env.do(t, http.MethodPost, "/admin/smileys/reload", "", auth.RoleAdmin)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBatchRunsToCompletion(t *testing.T) {
	t.Parallel()

	mem := message.NewMemoryStore()
	for _, body := range []string{"one", "two", "three"} {
		_, err := mem.Create(context.Background(), message.Message{OriginalBody: body})
		require.NoError(t, err)
	}
	env := newTestEnv(t, mem, mem)

	rec := env.do(t, http.MethodPost, "/admin/messages/process-messages/start", "", auth.RoleAdmin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[BatchResponse](t, rec)
	assert.Equal(t, -1, resp.CurrentStep)
	assert.Equal(t, 2, resp.TotalSteps)
	assert.False(t, resp.Complete)

	processed := 0
	for i := 0; i < 2; i++ {
		rec = env.do(t, http.MethodPost, "/admin/messages/continue", `{"token":"`+resp.Token+`"}`, auth.RoleAdmin)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp = decode[BatchResponse](t, rec)
		require.NotNil(t, resp.Outcome)
		processed += resp.Outcome.Processed
	}
	assert.True(t, resp.Complete)
	assert.Equal(t, 3, processed)

	n, _ := mem.Count(context.Background(), message.Filter{Unprocessed: true})
	assert.Zero(t, n)

	rec = env.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "forum_batch_pages_total")
}

func TestBatchRejections(t *testing.T) {
	t.Parallel()

	mem := message.NewMemoryStore()
	env := newTestEnv(t, mem, mem)

	rec := env.do(t, http.MethodPost, "/admin/messages/recount-replies/start", "", auth.RoleAdmin)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/admin/messages/continue", `{"token":"forged.token"}`, auth.RoleAdmin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/admin/messages/process-messages/start", "", auth.RoleMember)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestBatchFailedPageKeepsToken(t *testing.T) {
	t.Parallel()

	mem := message.NewMemoryStore()
	_, err := mem.Create(context.Background(), message.Message{OriginalBody: "one"})
	require.NoError(t, err)
	store := &flakyStore{MemoryStore: mem, failList: true}
	env := newTestEnv(t, store, mem)

	rec := env.do(t, http.MethodPost, "/admin/messages/reprocess-messages/start", "", auth.RoleAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	start := decode[BatchResponse](t, rec)

	rec = env.do(t, http.MethodPost, "/admin/messages/continue", `{"token":"`+start.Token+`"}`, auth.RoleAdmin)
	require.Equal(t, http.StatusConflict, rec.Code)
	failed := decode[BatchResponse](t, rec)
	assert.Equal(t, start.CurrentStep, failed.CurrentStep)
	assert.NotEmpty(t, failed.Error)

	st, err := env.codec.Decode(failed.Token)
	require.NoError(t, err)
	assert.Equal(t, -1, st.CurrentStep)
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("db down") }

func TestHealth(t *testing.T) {
	t.Parallel()

	e := echo.New()
	NewPingHandler(logger.Discard(), downPinger{}).Register(e)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
