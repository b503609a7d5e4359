package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danmuck/bece/internal/testutil/testlog"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("node-a", "GET", "/health", 200, 12*time.Millisecond)
	RecordPacketReceived("node-a", "log")
	RecordPacketSent("node-a", "resend", "tcp")
	RecordHandlerDuration("node-a", time.Millisecond)
}

func TestLinkCountersAdvance(t *testing.T) {
	testlog.Start(t)
	before := testutil.ToFloat64(checksumFailures.WithLabelValues("node-b"))
	RecordChecksumFailure("node-b")
	RecordChecksumFailure("node-b")
	if got := testutil.ToFloat64(checksumFailures.WithLabelValues("node-b")) - before; got != 2 {
		t.Fatalf("checksum failures: got=%v want=2", got)
	}

	RecordResendRequest("node-b", "crc", 3)
	if got := testutil.ToFloat64(resendsOutstanding.WithLabelValues("node-b")); got != 3 {
		t.Fatalf("outstanding: got=%v want=3", got)
	}
	RecordResendsOutstanding("node-b", 0)
	if got := testutil.ToFloat64(resendsOutstanding.WithLabelValues("node-b")); got != 0 {
		t.Fatalf("outstanding after resolve: got=%v want=0", got)
	}

	RecordArenaHighWater("node-b", 512)
	if got := testutil.ToFloat64(arenaHighWater.WithLabelValues("node-b")); got != 512 {
		t.Fatalf("high water: got=%v want=512", got)
	}
}

func TestRequestMetricsMiddlewareUsesRoutePattern(t *testing.T) {
	testlog.Start(t)
	r := chi.NewRouter()
	r.Use(RequestMetricsMiddleware("node-c"))
	r.Use(RequestLogger(ComponentLogger("node-c", "test")))
	r.Get("/commands/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/commands/12", nil))
	if rr.Code != http.StatusTeapot {
		t.Fatalf("status: got=%d", rr.Code)
	}
	got := testutil.ToFloat64(httpRequests.WithLabelValues("node-c", "GET", "/commands/{id}", "418"))
	if got != 1 {
		t.Fatalf("request counter: got=%v want=1", got)
	}
}
