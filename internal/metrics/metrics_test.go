package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSegment(t *testing.T) {
	before := testutil.ToFloat64(SegmentsDownloadedTotal.WithLabelValues("metrics-test"))
	RecordSegment("metrics-test", 188)
	RecordSegment("metrics-test", 376)

	assert.Equal(t, before+2, testutil.ToFloat64(SegmentsDownloadedTotal.WithLabelValues("metrics-test")))
	assert.Equal(t, float64(564), testutil.ToFloat64(SegmentBytesTotal.WithLabelValues("metrics-test")))
}

func TestSetSessionsOpenAndForget(t *testing.T) {
	SetSessionsOpen("metrics-forget", 2)
	assert.Equal(t, float64(2), testutil.ToFloat64(SessionsOpen.WithLabelValues("metrics-forget")))

	RecordSegmentFailure("metrics-forget", "fetch")
	ForgetStream("metrics-forget")

	// A fresh child starts from zero after the series was removed.
	assert.Equal(t, float64(0), testutil.ToFloat64(SessionsOpen.WithLabelValues("metrics-forget")))
	assert.Equal(t, float64(0), testutil.ToFloat64(SegmentFailuresTotal.WithLabelValues("metrics-forget", "fetch")))
}

func TestRecordRemux(t *testing.T) {
	before := testutil.ToFloat64(RemuxTotal.WithLabelValues("completed"))
	RecordRemux("completed", 1500*time.Millisecond)
	RecordRemux("empty", 0)

	assert.Equal(t, before+1, testutil.ToFloat64(RemuxTotal.WithLabelValues("completed")))
}

func TestHandler(t *testing.T) {
	RecordStall("metrics-handler")

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `hls2vod_downloader_stalls_total{stream="metrics-handler"} 1`)
}
