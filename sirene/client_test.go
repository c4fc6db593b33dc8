package sirene

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pageJSON(t *testing.T, cursor, next string, records ...map[string]any) []byte {
	t.Helper()

	if records == nil {
		records = []map[string]any{}
	}

	body, err := json.Marshal(map[string]any{
		"header": map[string]any{
			"statut":         200,
			"message":        "OK",
			"total":          len(records),
			"curseur":        cursor,
			"curseurSuivant": next,
		},
		"etablissements": records,
	})
	require.NoError(t, err)

	return body
}

type sleepRecorder struct {
	waits []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)

	return nil
}

func newTestClient(url string, now time.Time, rec *sleepRecorder) *Client {
	return NewClient(ClientConfig{
		SearchURL: url,
		StatusURL: url,
		Token:     "token-123",
		Now:       func() time.Time { return now },
		Sleep:     rec.sleep,
	})
}

func TestRateLimitWait(t *testing.T) {
	tests := []struct {
		second   int
		expected time.Duration
	}{
		{59, 2 * time.Second},
		{0, 61 * time.Second},
		{30, 31 * time.Second},
	}

	for _, test := range tests {
		now := time.Date(2024, 3, 1, 10, 15, test.second, 0, time.UTC)
		assert.Equal(t, test.expected, RateLimitWait(now), "second %d", test.second)
	}
}

func TestSearchRetriesOnceAfterRateLimit(t *testing.T) {
	for _, second := range []int{59, 0} {
		var calls int32

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) == 1 {
				w.WriteHeader(http.StatusTooManyRequests)

				return
			}

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(pageJSON(t, "*", "*", map[string]any{"siret": "12345678900011"}))
		}))

		rec := &sleepRecorder{}
		now := time.Date(2024, 3, 1, 10, 15, second, 0, time.UTC)

		page, err := newTestClient(srv.URL, now, rec).Search(context.Background(), SearchRequest{Query: "q"})
		srv.Close()

		require.NoError(t, err)
		assert.Len(t, page.Records, 1)
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
		assert.Equal(t, []time.Duration{RateLimitWait(now)}, rec.waits)
	}
}

func TestSearchServerErrorRetriesAreCapped(t *testing.T) {
	var calls int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	rec := &sleepRecorder{}

	_, err := newTestClient(srv.URL, time.Now(), rec).Search(context.Background(), SearchRequest{Query: "q"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServer)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)

	assert.Equal(t, int32(maxServerRetries+1), atomic.LoadInt32(&calls))
	require.Len(t, rec.waits, maxServerRetries)

	for _, w := range rec.waits {
		assert.Equal(t, 60*time.Second, w)
	}
}

func TestSearchRecoversFromServerError(t *testing.T) {
	var calls int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)

			return
		}

		_, _ = w.Write(pageJSON(t, "*", "AoE", map[string]any{"siret": "1"}))
	}))
	defer srv.Close()

	rec := &sleepRecorder{}

	page, err := newTestClient(srv.URL, time.Now(), rec).Search(context.Background(), SearchRequest{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, "AoE", page.NextCursor)
	assert.Len(t, rec.waits, 2)
}

func TestSearchClassifiesErrors(t *testing.T) {
	tests := []struct {
		status   int
		body     string
		expected error
		message  string
	}{
		{http.StatusBadRequest, `{"header":{"statut":400,"message":"Erreur de syntaxe"}}`, ErrBadRequest, "Erreur de syntaxe"},
		{http.StatusNotFound, `{"header":{"statut":404,"message":"Aucun élément trouvé"}}`, ErrNotFound, "Aucun élément trouvé"},
		{http.StatusUnauthorized, ``, ErrUnauthorized, ""},
		{http.StatusNotAcceptable, ``, ErrNotAcceptable, ""},
		{http.StatusRequestURITooLong, `<html>too long</html>`, ErrURITooLong, ""},
		{http.StatusServiceUnavailable, ``, ErrUnexpectedStatus, ""},
	}

	for _, test := range tests {
		var calls int32

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(test.status)
			_, _ = w.Write([]byte(test.body))
		}))

		rec := &sleepRecorder{}

		_, err := newTestClient(srv.URL, time.Now(), rec).Search(context.Background(), SearchRequest{Query: "q"})
		srv.Close()

		require.Error(t, err, "status %d", test.status)
		assert.ErrorIs(t, err, test.expected)

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, test.message, apiErr.Message)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "status %d must not be retried", test.status)
		assert.Empty(t, rec.waits)
	}
}

func TestSearchMalformedResponse(t *testing.T) {
	tests := []struct {
		body string
		key  string
	}{
		{`{"etablissements":[]}`, "header"},
		{`{"header":{"curseurSuivant":"*"},"etablissements":[]}`, "header.curseur"},
		{`{"header":{"curseur":"*"},"etablissements":[]}`, "header.curseurSuivant"},
		{`{"header":{"curseur":"*","curseurSuivant":"*"}}`, "etablissements"},
	}

	for _, test := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(test.body))
		}))

		_, err := newTestClient(srv.URL, time.Now(), &sleepRecorder{}).Search(context.Background(), SearchRequest{Query: "q"})
		srv.Close()

		var malformed *MalformedResponseError
		require.True(t, errors.As(err, &malformed), "body %s", test.body)
		assert.Equal(t, test.key, malformed.Key)
	}
}

func TestSearchGetParametersAndGzip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))
		assert.Equal(t, "gzip", r.Header.Get("Accept-Encoding"))

		q := r.URL.Query()
		assert.Equal(t, "dateDernierTraitementEtablissement:2024-03-01", q.Get("q"))
		assert.Equal(t, "siren,siret", q.Get("champs"))
		assert.Equal(t, "1000", q.Get("nombre"))
		assert.Equal(t, "*", q.Get("curseur"))
		assert.Empty(t, q.Get("date"))

		var buf bytes.Buffer

		gz := gzip.NewWriter(&buf)
		_, _ = gz.Write(pageJSON(t, "*", "next", map[string]any{"siret": "1"}, map[string]any{"siret": "2"}))
		_ = gz.Close()

		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	page, err := newTestClient(srv.URL, time.Now(), &sleepRecorder{}).Search(context.Background(), SearchRequest{
		Query:    UpdatesQuery("2024-03-01"),
		Fields:   []string{"siren", "siret"},
		Count:    DefaultPageSize,
		Cursor:   FirstCursor,
		Compress: true,
	})
	require.NoError(t, err)
	assert.Len(t, page.Records, 2)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, "*", page.Cursor)
	assert.Equal(t, "next", page.NextCursor)
}

func TestSearchPostForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "2024-03-01", r.PostForm.Get("date"))
		assert.Equal(t, "abc", r.PostForm.Get("curseur"))
		assert.Equal(t, ProspectsQuery([]string{"56.10A"}), r.PostForm.Get("q"))

		_, _ = w.Write(pageJSON(t, "abc", "abc"))
	}))
	defer srv.Close()

	page, err := newTestClient(srv.URL, time.Now(), &sleepRecorder{}).Search(context.Background(), SearchRequest{
		Query:  ProspectsQuery([]string{"56.10A"}),
		Cursor: "abc",
		Date:   "2024-03-01",
		Method: http.MethodPost,
	})
	require.NoError(t, err)
	assert.True(t, page.Done())
	assert.Empty(t, page.Records)
}

func TestSearchRejectsInvalidDate(t *testing.T) {
	c := NewClient(ClientConfig{SearchURL: "http://127.0.0.1:0"})

	_, err := c.Search(context.Background(), SearchRequest{Date: "01/03/2024"})
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"etatService": "UP",
			"versionService": "3.11",
			"datesDernieresMisesAJourDesDonnees": [
				{"collection": "Unités Légales", "dateDerniereMiseADisposition": "2024-03-01T23:00:00.000"},
				{"collection": "Établissements", "dateDernierTraitementMaximum": null}
			]
		}`))
	}))
	defer srv.Close()

	status, err := newTestClient(srv.URL, time.Now(), &sleepRecorder{}).Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "3.11", status.VersionService)
	require.Len(t, status.Updates, 2)
	assert.Equal(t, "Établissements", status.Updates[1].Collection)
	assert.Empty(t, status.Updates[1].DateDernierTraitementMaximum)
}

func TestStatusDoesNotRetryServerErrors(t *testing.T) {
	var calls int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, time.Now(), &sleepRecorder{}).Status(context.Background())
	assert.ErrorIs(t, err, ErrServer)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

type observerRecorder struct {
	statuses []int
	reasons  []string
}

func (o *observerRecorder) ObserveResponse(_ string, status int) {
	o.statuses = append(o.statuses, status)
}

func (o *observerRecorder) ObserveBackoff(reason string, _ time.Duration) {
	o.reasons = append(o.reasons, reason)
}

func TestSearchNotifiesObserver(t *testing.T) {
	var calls int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)

			return
		}

		_, _ = w.Write(pageJSON(t, "*", "*"))
	}))
	defer srv.Close()

	obs := &observerRecorder{}
	rec := &sleepRecorder{}

	c := NewClient(ClientConfig{SearchURL: srv.URL, Observer: obs, Sleep: rec.sleep})

	_, err := c.Search(context.Background(), SearchRequest{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, []int{http.StatusTooManyRequests, http.StatusOK}, obs.statuses)
	assert.Equal(t, []string{"rate_limited"}, obs.reasons)
}
