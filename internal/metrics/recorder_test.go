package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"reaper-go/internal/reaper"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder(nil)

	r.PurgeSucceeded()
	r.PurgeSucceeded()
	r.PurgeFailed()
	r.BlobDeleteFailed()
	r.SweepCompleted(&reaper.SweepResult{Due: 4, Purged: 2, Failed: 1, Skipped: 1}, 2*time.Second)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"purges success", testutil.ToFloat64(r.purges.WithLabelValues("success")), 2},
		{"purges failure", testutil.ToFloat64(r.purges.WithLabelValues("failure")), 1},
		{"blob failures", testutil.ToFloat64(r.blobFailures), 1},
		{"sweeps", testutil.ToFloat64(r.sweeps), 1},
		{"due", testutil.ToFloat64(r.sweepAccounts.WithLabelValues("due")), 4},
		{"purged", testutil.ToFloat64(r.sweepAccounts.WithLabelValues("purged")), 2},
		{"skipped", testutil.ToFloat64(r.sweepAccounts.WithLabelValues("skipped")), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder(nil)
	r.PurgeSucceeded()

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if !strings.Contains(string(body), `reaper_purges_total{result="success"} 1`) {
		t.Errorf("metrics output missing purge counter:\n%s", body)
	}
}
