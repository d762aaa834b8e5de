package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandler_ExposesCollectors(t *testing.T) {
	SessionFrames.Set(12)
	UploadsTotal.WithLabelValues(OutcomeLoaded).Inc()
	EditJobsTotal.WithLabelValues("completed").Inc()

	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		"facekit_session_frames 12",
		`facekit_uploads_total{outcome="loaded"}`,
		`facekit_edit_jobs_total{status="completed"}`,
		"facekit_extraction_duration_seconds_bucket",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
