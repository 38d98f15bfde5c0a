package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestInstrument(t *testing.T) {
	h := Instrument("/test/teapot", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(RequestsTotal.WithLabelValues("/test/teapot", "GET", "418"))
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/test/teapot", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(RequestsTotal.WithLabelValues("/test/teapot", "GET", "418")))
}

func TestRecordUpload(t *testing.T) {
	RecordUpload("metricsTest", 12, time.Millisecond, nil)
	RecordUpload("metricsTest", 5, time.Millisecond, errors.New("bad file"))

	assert.Equal(t, 12.0, testutil.ToFloat64(RowsIngested.WithLabelValues("metricsTest")))
	assert.Equal(t, 1.0, testutil.ToFloat64(UploadsTotal.WithLabelValues("metricsTest", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(UploadsTotal.WithLabelValues("metricsTest", "failed")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	TariffLookupMisses.Inc()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "tariff_lookup_misses_total"))
}
