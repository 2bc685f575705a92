package review

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/exam-dataset/internal/edits"
)

const testDataset = `{"id":"24_56_q1","year":"2024","group":"5-6","problem_statement":"Wie viele Ecken?","sol_A":"1","sol_B":"2","sol_C":"3","sol_D":"4","sol_E":"5","answer":"C","quality":{"needs_review":false}}
{"id":"24_56_q2","year":"2024","group":"5-6","problem_statement":"","sol_A":null,"answer":null,"quality":{"ocr_short_text":true,"needs_review":true}}
{"id":"23_34_q1","year":"2023","group":"3-4","problem_statement":"Welche Farbe?","sol_A":"rot","answer":null,"quality":{}}
`

type fixture struct {
	dir     string
	store   *Store
	handler http.Handler
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	datasetPath := filepath.Join(dir, "dataset.jsonl")
	require.NoError(t, os.WriteFile(datasetPath, []byte(testDataset), 0o644))
	crops := filepath.Join(dir, "crops", "question")
	require.NoError(t, os.MkdirAll(crops, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(crops, "24_56_q1.png"), []byte("png"), 0o644))

	store, err := NewStore(datasetPath, filepath.Join(dir, "edits.json"))
	require.NoError(t, err)
	opts.CropsDir = filepath.Join(dir, "crops")
	srv := NewServer(store, opts, log.New(io.Discard, "", 0))
	return &fixture{dir: dir, store: store, handler: srv.Handler()}
}

func (f *fixture) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	var body map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func recordIDs(body map[string]any) []string {
	var ids []string
	for _, r := range body["records"].([]any) {
		ids = append(ids, r.(map[string]any)["id"].(string))
	}
	return ids
}

func TestListRecordsFilters(t *testing.T) {
	f := newFixture(t, Options{})

	w, body := f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/records", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"23_34_q1", "24_56_q2"}, recordIDs(body))

	_, body = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/records?filter=all&year=2024", nil))
	assert.Equal(t, []string{"24_56_q1", "24_56_q2"}, recordIDs(body))

	_, body = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/records?filter=all&q=ecken", nil))
	assert.Equal(t, []string{"24_56_q1"}, recordIDs(body))

	_, body = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/records?needs_review=true&group=3-4", nil))
	assert.Equal(t, []string{"23_34_q1"}, recordIDs(body))
}

func TestStoreSkipsInvalidLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataset.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"id\":\"a\"}\nnot json\n{\"id\":\"b\"}\n"), 0o644))
	store, err := NewStore(path, filepath.Join(t.TempDir(), "edits.json"))
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 2, NeedsReview: 2}, store.Stats())

	empty, err := NewStore(filepath.Join(t.TempDir(), "missing.jsonl"), "")
	require.NoError(t, err)
	assert.Empty(t, empty.List(Filter{Kind: FilterAll}))
}

func TestGetRecord(t *testing.T) {
	f := newFixture(t, Options{})

	w, body := f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/records/24_56_q1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	rec := body["record"].(map[string]any)
	assert.Equal(t, "C", rec["answer"])
	assert.Equal(t, false, rec["quality"].(map[string]any)["answer_missing"])
	assert.Equal(t, false, body["needs_review"])

	w, _ = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/records/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateRecordFromForm(t *testing.T) {
	f := newFixture(t, Options{})

	form := url.Values{
		"problem_statement": {"Welche Farbe hat der Himmel?"},
		"sol_A":             {"rot"},
		"answer":            {"A"},
		"reviewed":          {"on"},
		"action":            {"mark_reviewed"},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/records/23_34_q1", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w, body := f.do(t, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	rec := body["record"].(map[string]any)
	assert.Equal(t, "Welche Farbe hat der Himmel?", rec["problem_statement"])
	assert.Equal(t, "A", rec["answer"])
	assert.Equal(t, false, rec["quality"].(map[string]any)["needs_review"])

	saved := edits.Load(filepath.Join(f.dir, "edits.json"))
	require.Contains(t, saved, "23_34_q1")
	assert.True(t, saved["23_34_q1"].Reviewed())
	_, hasSolA := saved["23_34_q1"]["sol_A"]
	assert.False(t, hasSolA, "unchanged fields are not stored")

	_, body = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/records?filter=unreviewed", nil))
	assert.NotContains(t, recordIDs(body), "23_34_q1")
}

func TestUpdateRecordFromJSON(t *testing.T) {
	f := newFixture(t, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/records/24_56_q2", strings.NewReader(`{"answer":"E","sol_A":"eins"}`))
	req.Header.Set("Content-Type", "application/json")
	w, body := f.do(t, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "E", body["record"].(map[string]any)["answer"])

	req = httptest.NewRequest(http.MethodPost, "/api/v1/records/24_56_q2", strings.NewReader(`[1,2]`))
	req.Header.Set("Content-Type", "application/json")
	w, _ = f.do(t, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/records/missing", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w, _ = f.do(t, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestApplyEdits(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.store.Update("24_56_q2", edits.Patch{"answer": "B"}, false)
	require.NoError(t, err)

	w, body := f.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/apply", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, filepath.Join(f.dir, "dataset.edited.jsonl"), body["output"])
	assert.Equal(t, float64(3), body["records"])
	assert.Equal(t, float64(1), body["patched"])

	_, body = f.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/apply?only_reviewed=true", nil))
	assert.Equal(t, float64(0), body["patched"])
}

func TestIndexAndCrops(t *testing.T) {
	f := newFixture(t, Options{})

	w, _ := f.do(t, httptest.NewRequest(http.MethodGet, "/?filter=all", nil))
	require.Equal(t, http.StatusOK, w.Code)
	html := w.Body.String()
	assert.Contains(t, html, "3 records, 0 edited, 2 need review")
	assert.Contains(t, html, `href="/api/v1/records/24_56_q1"`)
	assert.Contains(t, html, "ocr_short_text")

	w, _ = f.do(t, httptest.NewRequest(http.MethodGet, "/crops/question/24_56_q1.png", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "png", w.Body.String())
}

func signToken(t *testing.T, secret, issuer string, expires time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Reviewer: "reviewer@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestJWTAuth(t *testing.T) {
	f := newFixture(t, Options{JWTSecret: "s3cret", JWTIssuer: "exam-review"})
	get := func(token string) (int, map[string]any) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
		if token != "" {
			req.Header.Set("Authorization", token)
		}
		w, body := f.do(t, req)
		return w.Code, body
	}

	code, body := get("")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Authorization header required", body["error"])

	code, _ = get("Token abc")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body = get("Bearer " + signToken(t, "wrong", "exam-review", time.Now().Add(time.Hour)))
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Invalid token signature", body["error"])

	code, body = get("Bearer " + signToken(t, "s3cret", "exam-review", time.Now().Add(-time.Hour)))
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Token expired", body["error"])

	code, body = get("Bearer " + signToken(t, "s3cret", "someone-else", time.Now().Add(time.Hour)))
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Invalid token issuer", body["error"])

	code, body = get("bearer " + signToken(t, "s3cret", "exam-review", time.Now().Add(time.Hour)))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(3), body["total"])

	w, _ := f.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
