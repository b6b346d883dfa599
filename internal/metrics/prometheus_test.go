package metrics_test

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vuramp/vuramp/internal/metrics"
)

func TestExporterServesSnapshot(t *testing.T) {
	c := metrics.NewCollector()
	c.Register(nil, []string{"status is 200"})
	c.SetVUs(4, 5)
	c.RecordRequest(10*time.Millisecond, nil, &metrics.RequestMetadata{Step: "GET /", StatusCode: 200})
	c.RecordRequest(30*time.Millisecond, kindError{metrics.KindNetwork}, &metrics.RequestMetadata{Step: "GET /"})
	c.RecordCheck("status is 200", true, nil)
	c.RecordCheck("status is 200", false, kindError{metrics.KindNetwork})

	exp := metrics.NewExporter()
	exp.Update(c.Stats(time.Second))

	srv := httptest.NewServer(exp.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, "vuramp_vus 4")
	assert.Contains(t, text, "vuramp_vus_target 5")
	assert.Contains(t, text, `vuramp_requests{outcome="failure"} 1`)
	assert.Contains(t, text, `vuramp_errors{kind="network"} 1`)
	assert.Contains(t, text, `vuramp_checks{check="status is 200",result="pass"} 1`)
	assert.Contains(t, text, "vuramp_check_rate 0.5")
	assert.Contains(t, text, "vuramp_requests_per_sec 2")
}

func TestExportersAreIndependent(t *testing.T) {
	a := metrics.NewExporter()
	b := metrics.NewExporter()

	a.Update(metrics.Stats{VUs: 3, Iterations: 9})
	b.Update(metrics.Stats{VUs: 1})

	assert.Contains(t, scrape(t, a), "vuramp_iterations 9")
	assert.Contains(t, scrape(t, b), "vuramp_vus 1")
	assert.NotContains(t, scrape(t, b), "vuramp_vus 3")
}

func scrape(t *testing.T, exp *metrics.Exporter) string {
	t.Helper()
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	return rec.Body.String()
}
