package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/docvault/docvault-backend/internal/platform/requestdata"
)

func newTraceTestRouter(t *testing.T) (*gin.Engine, *requestdata.TraceData) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	seen := &requestdata.TraceData{}
	router := gin.New()
	router.Use(AttachTraceContext())
	router.GET("/ping", func(c *gin.Context) {
		if td := requestdata.GetTraceData(c.Request.Context()); td != nil {
			*seen = *td
		}
		c.Status(http.StatusNoContent)
	})
	return router, seen
}

func TestAttachTraceContextGeneratesIDs(t *testing.T) {
	router, seen := newTraceTestRouter(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	router.ServeHTTP(rec, req)

	if seen.TraceID == "" || seen.RequestID == "" {
		t.Fatalf("handler context missing trace data: %+v", seen)
	}
	if got := rec.Header().Get("X-Trace-Id"); got != seen.TraceID {
		t.Fatalf("X-Trace-Id header = %q, context has %q", got, seen.TraceID)
	}
	if got := rec.Header().Get("X-Request-Id"); got != seen.RequestID {
		t.Fatalf("X-Request-Id header = %q, context has %q", got, seen.RequestID)
	}
}

func TestAttachTraceContextHonorsCallerHeaders(t *testing.T) {
	router, seen := newTraceTestRouter(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Trace-Id", "trace-from-caller")
	req.Header.Set("X-Request-Id", "req-from-caller")
	router.ServeHTTP(rec, req)

	if seen.TraceID != "trace-from-caller" || seen.RequestID != "req-from-caller" {
		t.Fatalf("caller IDs not propagated: %+v", seen)
	}
	if got := rec.Header().Get("X-Request-Id"); got != "req-from-caller" {
		t.Fatalf("X-Request-Id header = %q, want caller value", got)
	}
}
