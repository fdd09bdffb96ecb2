package metrics

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerServesRunMetrics(t *testing.T) {
	LogLine("stderr")
	RunStarted()
	RunFinished("killed", true)

	handler := Handler(slog.New(slog.NewTextHandler(io.Discard, nil)))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `cmdpanel_log_lines_total{source="stderr"}`)
	assert.Contains(t, body, `cmdpanel_runs_finished_total{result="killed"}`)
	assert.Contains(t, body, "cmdpanel_runs_active")
	assert.Contains(t, body, "promhttp_metric_handler_requests_total")
}
