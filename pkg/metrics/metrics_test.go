package metrics

import (
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then collectors use the finishline namespace", func() {
				So(manager.namespace, ShouldEqual, "finishline")
				manager.fusionPasses.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "finishline_recognition_fusion_passes_total" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("review"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithConstLabels(map[string]string{"site": "berlin"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the options are applied", func() {
				So(manager.namespace, ShouldEqual, "test")
				So(manager.subsystem, ShouldEqual, "review")
				So(manager.histogramBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})

				manager.claims.WithLabelValues("acquired").Inc()
				expected := `
# HELP test_review_claims_total Claim attempts by outcome
# TYPE test_review_claims_total counter
test_review_claims_total{outcome="acquired",site="berlin"} 1
`
				So(testutil.GatherAndCompare(registry, strings.NewReader(expected), "test_review_claims_total"), ShouldBeNil)
			})
		})

		Convey("When empty options are passed", func() {
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithHistogramBuckets(nil),
				WithPrometheusRegistry(prometheus.NewRegistry()),
			)

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "finishline")
				So(manager.subsystem, ShouldEqual, "recognition")
				So(manager.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording fusion metrics", func() {
			before := testutil.ToFloat64(globalManager.fusionPasses)
			RecordFusionPass(12.5)
			RecordRecognitions("REVIEW", 3)
			RecordRecognitions("DISCARD", 0)
			RecordQueueItemsCreated(2)
			RecordImageStatus("COMPLETE")

			Convey("Then counters advance", func() {
				So(testutil.ToFloat64(globalManager.fusionPasses), ShouldEqual, before+1)
				So(testutil.ToFloat64(globalManager.recognitions.WithLabelValues("REVIEW")), ShouldBeGreaterThanOrEqualTo, 3)
				So(testutil.ToFloat64(globalManager.recognitions.WithLabelValues("DISCARD")), ShouldEqual, 0)
			})
		})

		Convey("When recording review metrics", func() {
			before := testutil.ToFloat64(globalManager.decisions.WithLabelValues("approve", "ok"))
			RecordDecision("approve", "ok")
			RecordClaim("conflict")
			RecordClaimsReleased(4)
			RecordItemsPurged(0)
			UpdateReviewQueueItems("PENDING", 7)
			RecordNotification("websocket")
			RecordNotificationError("slack")

			Convey("Then counters and gauges reflect the calls", func() {
				So(testutil.ToFloat64(globalManager.decisions.WithLabelValues("approve", "ok")), ShouldEqual, before+1)
				So(testutil.ToFloat64(globalManager.reviewQueueItems.WithLabelValues("PENDING")), ShouldEqual, 7)
				So(testutil.ToFloat64(globalManager.notificationErrors.WithLabelValues("slack")), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("When recording pipeline and system metrics", func() {
			So(func() {
				RecordFusionError()
				RecordDetectionCall("detect_faces", "ok", 3.2)
				RecordBibDetections(2)
				RecordBibStartListMiss()
				RecordHTTPRequest("/queue", "GET", "200")
				RecordHTTPRequestDuration("/queue", "GET", "200", 1.5)
				RecordRepositoryUpdateLatency(0.3)
				RecordRepositoryQueryLatency(0.1)
				RecordJobDuplicate()
				UpdateQueueSize(3)
				UpdateQueueCapacity(100)
				UpdateQueueUtilization(0.03)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				RecordQueueProcessingLatency(4)
				UpdateWorkerCount(4)
				UpdateWorkerActiveCount(1)
				UpdateWorkerIdleCount(3)
				RecordWorkerProcessingLatency(20)
				RecordWorkerError()
				RecordWorkerRetry()
				RecordErrorByComponent("review", "conflict")
				RecordErrorByEndpoint("/queue/{id}/approve", "POST", "conflict")
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.2)
			}, ShouldNotPanic)
			So(testutil.ToFloat64(globalManager.queueCapacity), ShouldEqual, 100)
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	Convey("Given metrics recorded from many goroutines", t, func() {
		before := testutil.ToFloat64(globalManager.claims.WithLabelValues("takeover"))

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				RecordClaim("takeover")
				RecordHTTPRequest("/queue", "GET", "200")
			}()
		}
		wg.Wait()

		Convey("Then no increments are lost", func() {
			So(testutil.ToFloat64(globalManager.claims.WithLabelValues("takeover")), ShouldEqual, before+50)
		})
	})
}

func TestGetRegistry(t *testing.T) {
	Convey("Given the package registry", t, func() {
		So(GetRegistry(), ShouldNotBeNil)
		So(GetRegistry(), ShouldEqual, customRegistry)
	})
}
