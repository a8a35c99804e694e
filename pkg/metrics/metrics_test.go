package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("pipeline"),
				WithHistogramBuckets([]float64{1, 10, 100}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then collectors are registered under the namespace", func() {
				So(manager, ShouldNotBeNil)
				manager.submissions.WithLabelValues("accepted").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "test_pipeline_submissions_total" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When empty options are given", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithNamespace(""), WithSubsystem(""), WithHistogramBuckets(nil), WithPrometheusRegistry(registry))

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "spinta")
				So(manager.subsystem, ShouldEqual, "coach")
				So(manager.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics", t, func() {
		Convey("When recording pipeline metrics", func() {
			before := testutil.ToFloat64(globalManager.confirmations.WithLabelValues("success"))
			RecordConfirmation("success")

			Convey("Then the counter moves", func() {
				So(testutil.ToFloat64(globalManager.confirmations.WithLabelValues("success")), ShouldEqual, before+1)
			})
		})

		Convey("When recording every metric family", func() {
			So(func() {
				RecordUploadAccepted("matchVideo")
				RecordUploadRejected("matchVideo", "too_large")
				RecordUploadTypeMismatch("opponentLogo")
				RecordSubmission("invalid")
				RecordValidationFailure("opponentName")
				RecordAnalysis("fixture", "success", 12)
				RecordAnalysisFallback()
				AddAnalysisInFlight(1)
				AddAnalysisInFlight(-1)
				RecordLogin("failure")
				UpdateRuns("preview", 1)
				RecordBackendRequest("login", "200", 3)
				RecordHTTPRequest("matches", "POST", "202")
				RecordHTTPRequestDuration("matches", "POST", "202", 4)
				UpdateQueueSize(2)
				UpdateQueueCapacity(64)
				RecordQueueEnqueue()
				RecordQueueRejected()
				UpdateWorkerCount(2)
				RecordWorkerError()
				RecordErrorByComponent("worker", "analysis_error")
				UpdateSystemMemoryUsage(1024)
				UpdateSystemGoroutineCount(10)
			}, ShouldNotPanic)

			Convey("Then the registry exposes them", func() {
				families, err := GetRegistry().Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				joined := strings.Join(names, ",")
				So(joined, ShouldContainSubstring, "spinta_coach_analysis_fallbacks_total")
				So(joined, ShouldContainSubstring, "spinta_coach_backend_requests_total")
			})
		})
	})
}
