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

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/linkvault/internal/auth"
	"github.com/MrSnakeDoc/linkvault/internal/broadcast"
	"github.com/MrSnakeDoc/linkvault/internal/domain"
	"github.com/MrSnakeDoc/linkvault/internal/httpserver/deps"
	"github.com/MrSnakeDoc/linkvault/internal/logger"
)

// ---- fakes -----------------------------------------------------------------

type fakeBookmarks struct {
	add    func(ctx context.Context, owner uuid.UUID, in domain.NewBookmark) (domain.Bookmark, error)
	list   func(ctx context.Context, owner uuid.UUID, f domain.ListFilter) ([]domain.Bookmark, error)
	delete func(ctx context.Context, owner uuid.UUID, id string) (domain.Bookmark, error)
	tags   func(ctx context.Context, owner uuid.UUID) ([]string, error)
}

func (f *fakeBookmarks) AddBookmark(ctx context.Context, owner uuid.UUID, in domain.NewBookmark) (domain.Bookmark, error) {
	return f.add(ctx, owner, in)
}
func (f *fakeBookmarks) GetBookmarks(ctx context.Context, owner uuid.UUID, fl domain.ListFilter) ([]domain.Bookmark, error) {
	return f.list(ctx, owner, fl)
}
func (f *fakeBookmarks) DeleteBookmark(ctx context.Context, owner uuid.UUID, id string) (domain.Bookmark, error) {
	return f.delete(ctx, owner, id)
}
func (f *fakeBookmarks) GetAllTags(ctx context.Context, owner uuid.UUID) ([]string, error) {
	return f.tags(ctx, owner)
}

var _ deps.Bookmarks = (*fakeBookmarks)(nil)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func testDeps(b deps.Bookmarks) deps.Deps {
	return deps.Deps{Logger: logger.Nop(), Bookmarks: b, StartTime: time.Now()}
}

func asOwner(r *http.Request, owner uuid.UUID) *http.Request {
	return r.WithContext(auth.WithOwnerID(r.Context(), owner))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorDetail {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

// ---- AddBookmark -----------------------------------------------------------

func TestAddBookmark_Created(t *testing.T) {
	owner := uuid.New()
	var got domain.NewBookmark
	h := AddBookmark(testDeps(&fakeBookmarks{
		add: func(_ context.Context, o uuid.UUID, in domain.NewBookmark) (domain.Bookmark, error) {
			assert.Equal(t, owner, o)
			got = in
			return domain.Bookmark{ID: uuid.New(), OwnerID: o, Title: in.Title, URL: in.URL, Tags: []string{"frontend"}}, nil
		},
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/bookmarks", strings.NewReader(`{"title":"Next.js Docs","url":"https://nextjs.org/docs"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, asOwner(req, owner))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Next.js Docs", got.Title)

	var b domain.Bookmark
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	assert.Equal(t, owner, b.OwnerID)
	assert.Equal(t, []string{"frontend"}, b.Tags)
	assert.Contains(t, rec.Body.String(), `"user_id"`)
}

func TestAddBookmark_BadBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty", body: ""},
		{name: "not json", body: "title=x"},
		{name: "unknown field", body: `{"title":"t","url":"https://x.example","tags":["x"]}`},
		{name: "two objects", body: `{"title":"t","url":"https://x.example"}{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := AddBookmark(testDeps(&fakeBookmarks{
				add: func(context.Context, uuid.UUID, domain.NewBookmark) (domain.Bookmark, error) {
					t.Fatal("service must not be called")
					return domain.Bookmark{}, nil
				},
			}))
			req := httptest.NewRequest(http.MethodPost, "/api/bookmarks", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, asOwner(req, uuid.New()))

			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "invalid_input", decodeError(t, rec).Code)
		})
	}
}

func TestAddBookmark_TooLarge(t *testing.T) {
	h := AddBookmark(testDeps(&fakeBookmarks{}))
	req := httptest.NewRequest(http.MethodPost, "/api/bookmarks", strings.NewReader(`{"title":"`+strings.Repeat("x", 100)+`"}`))
	rec := httptest.NewRecorder()
	req.Body = http.MaxBytesReader(rec, req.Body, 16)
	h.ServeHTTP(rec, asOwner(req, uuid.New()))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestAddBookmark_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "unauthorized", err: domain.ErrUnauthorized, wantStatus: http.StatusUnauthorized, wantCode: "unauthorized"},
		{name: "validation", err: &domain.ValidationError{Field: "url", Reason: "is required"}, wantStatus: http.StatusBadRequest, wantCode: "invalid_input"},
		{name: "upstream", err: domain.ErrUpstream, wantStatus: http.StatusBadGateway, wantCode: "upstream_failure"},
		{name: "unknown", err: errors.New("surprise"), wantStatus: http.StatusInternalServerError, wantCode: "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := AddBookmark(testDeps(&fakeBookmarks{
				add: func(context.Context, uuid.UUID, domain.NewBookmark) (domain.Bookmark, error) {
					return domain.Bookmark{}, tt.err
				},
			}))
			req := httptest.NewRequest(http.MethodPost, "/api/bookmarks", strings.NewReader(`{"title":"t","url":"u"}`))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, asOwner(req, uuid.New()))

			require.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
		})
	}
}

func TestAddBookmark_ValidationMessageNamesField(t *testing.T) {
	h := AddBookmark(testDeps(&fakeBookmarks{
		add: func(context.Context, uuid.UUID, domain.NewBookmark) (domain.Bookmark, error) {
			return domain.Bookmark{}, &domain.ValidationError{Field: "url", Reason: "is required"}
		},
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/bookmarks", strings.NewReader(`{"title":"t"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, asOwner(req, uuid.New()))

	assert.Contains(t, decodeError(t, rec).Message, "url")
}

// ---- ListBookmarks / Tags ----------------------------------------------------

func TestListBookmarks_PassesQuery(t *testing.T) {
	var got domain.ListFilter
	h := ListBookmarks(testDeps(&fakeBookmarks{
		list: func(_ context.Context, _ uuid.UUID, f domain.ListFilter) ([]domain.Bookmark, error) {
			got = f
			return nil, nil
		},
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/bookmarks?q=react&tag=frontend", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, asOwner(req, uuid.New()))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "react", got.Search)
	assert.Equal(t, "frontend", got.Tag)
	assert.JSONEq(t, `[]`, rec.Body.String(), "empty list is [] not null")
}

func TestTags(t *testing.T) {
	h := Tags(testDeps(&fakeBookmarks{
		tags: func(context.Context, uuid.UUID) ([]string, error) { return []string{"ai", "go"}, nil },
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, asOwner(httptest.NewRequest(http.MethodGet, "/api/tags", nil), uuid.New()))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["ai","go"]`, rec.Body.String())
}

// ---- DeleteBookmark ----------------------------------------------------------

func deleteRequest(id string, owner uuid.UUID) *http.Request {
	req := httptest.NewRequest(http.MethodDelete, "/api/bookmarks/"+id, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	return req.WithContext(auth.WithOwnerID(ctx, owner))
}

func TestDeleteBookmark_OK(t *testing.T) {
	id := uuid.NewString()
	var gotID string
	h := DeleteBookmark(testDeps(&fakeBookmarks{
		delete: func(_ context.Context, _ uuid.UUID, i string) (domain.Bookmark, error) {
			gotID = i
			return domain.Bookmark{}, nil
		},
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, deleteRequest(id, uuid.New()))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, gotID)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
}

func TestDeleteBookmark_NotFound(t *testing.T) {
	h := DeleteBookmark(testDeps(&fakeBookmarks{
		delete: func(context.Context, uuid.UUID, string) (domain.Bookmark, error) {
			return domain.Bookmark{}, domain.ErrNotFound
		},
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, deleteRequest("nope", uuid.New()))

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Code)
}

// ---- ops endpoints -----------------------------------------------------------

func TestHealthz(t *testing.T) {
	d := testDeps(nil)
	d.Version = "v1.2.3"
	d.StartTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d.TimeNow = func() time.Time { return d.StartTime.Add(90 * time.Second) }
	rec := httptest.NewRecorder()
	Healthz(d).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body healthzResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "v1.2.3", body.Version)
	assert.Equal(t, float64(90), body.UptimeSeconds)
	assert.True(t, body.StartedAt.Equal(d.StartTime))
}

func TestReadyz(t *testing.T) {
	up := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name       string
		pg, rd     deps.Pinger
		wantStatus int
	}{
		{name: "all up", pg: up, rd: up, wantStatus: http.StatusOK},
		{name: "postgres down", pg: down, rd: up, wantStatus: http.StatusServiceUnavailable},
		{name: "redis down", pg: up, rd: down, wantStatus: http.StatusServiceUnavailable},
		{name: "not configured", wantStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := testDeps(nil)
			d.Postgres, d.Redis = tt.pg, tt.rd
			rec := httptest.NewRecorder()
			Readyz(d).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

type fakeOutbox struct{ stats broadcast.Stats }

func (f fakeOutbox) Stats() broadcast.Stats { return f.stats }

type fakeDeadLetters struct{ n int64 }

func (f fakeDeadLetters) DeadLetterCount(context.Context) (int64, error) { return f.n, nil }

type fakeReplay struct{ last time.Time }

func (f fakeReplay) LastRun() time.Time { return f.last }
func (f fakeReplay) Replayed() uint64   { return 7 }

func TestInfra(t *testing.T) {
	up := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("timeout") })

	d := testDeps(nil)
	d.Postgres, d.Redis = up, down
	d.AIProvider = "gemini"
	d.Outbox = fakeOutbox{stats: broadcast.Stats{Published: 5, DeadLettered: 2}}
	d.DeadLetters = fakeDeadLetters{n: 2}
	d.Replay = fakeReplay{last: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}

	rec := httptest.NewRecorder()
	Infra(d).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/infra", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Mode       string                     `json:"mode"`
		Components map[string]componentStatus `json:"components"`
		Outbox     map[string]any             `json:"outbox"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Mode)
	assert.True(t, body.Components["postgres"].OK)
	assert.False(t, body.Components["redis"].OK)
	assert.Equal(t, "gemini+fallback", body.Components["enrichment"].Mode)
	assert.EqualValues(t, 5, body.Outbox["published"])
	assert.EqualValues(t, 2, body.Outbox["dead_letter_depth"])
	assert.EqualValues(t, 7, body.Outbox["replayed"])
	assert.Equal(t, "2026-01-02T03:04:05Z", body.Outbox["last_replay"])
}

func TestDetermineMode(t *testing.T) {
	assert.Equal(t, "critical", determineMode(map[string]componentStatus{"postgres": {OK: false}, "redis": {OK: true}}))
	assert.Equal(t, "degraded", determineMode(map[string]componentStatus{"postgres": {OK: true}, "redis": {OK: false}}))
	assert.Equal(t, "operational", determineMode(map[string]componentStatus{"postgres": {OK: true}, "redis": {OK: true}}))
}

func TestReplay(t *testing.T) {
	trigger := make(chan struct{}, 1)
	d := testDeps(nil)
	d.ReplayTrigger = trigger

	rec := httptest.NewRecorder()
	Replay(d).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/replay", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, trigger, 1)

	rec = httptest.NewRecorder()
	Replay(d).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/replay", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code, "a pending trigger is not queued twice")

	rec = httptest.NewRecorder()
	Replay(testDeps(nil)).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/replay", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
