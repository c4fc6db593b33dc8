package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounters(t *testing.T) {
	r := NewRecorder()

	r.ObserveResponse("siret", 200)
	r.ObserveResponse("siret", 200)
	r.ObserveResponse("siret", 429)
	r.ObserveBackoff("rate_limited", 2*time.Second)
	r.ObserveBackoff("rate_limited", 61*time.Second)
	r.RowExported("sirc")

	assert.InDelta(t, 2, testutil.ToFloat64(r.apiResponses.WithLabelValues("siret", "200")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.apiResponses.WithLabelValues("siret", "429")), 0)
	assert.InDelta(t, 63, testutil.ToFloat64(r.backoffSeconds.WithLabelValues("rate_limited")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.rowsExported.WithLabelValues("sirc")), 0)
}

func TestRecorderRunFinished(t *testing.T) {
	r := NewRecorder()

	started := time.Date(2024, 3, 2, 6, 0, 0, 0, time.UTC)
	finished := started.Add(90 * time.Second)

	r.RunFinished("updates", started, finished, errors.New("boom"))
	assert.InDelta(t, 0, testutil.ToFloat64(r.lastSuccess), 0)

	r.RunFinished("updates", started, finished, nil)
	assert.InDelta(t, float64(finished.Unix()), testutil.ToFloat64(r.lastSuccess), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.runsTotal.WithLabelValues("updates", "failure")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.runsTotal.WithLabelValues("updates", "success")), 0)
}

func TestWriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.ObserveResponse("siret", 200)

	path := filepath.Join(t.TempDir(), "sirene.prom")
	require.NoError(t, r.WriteTextfile(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `sirene_api_responses_total{endpoint="siret",status="200"} 1`)
}
