package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestEngineMetricsCache(t *testing.T) {
	name := "test-engine-1"

	// Clean state
	DeleteEngineMetrics(name)

	if m := GetEngineMetrics(name); m != nil {
		t.Error("expected nil for unknown engine")
	}

	SetEngineStatus(name, "online")
	RecordBoot(name, BootSucceeded)
	RecordBoot(name, BootFailed)
	RecordExit(name, ExitPanic)
	RecordLine(name, "continue")
	RecordLine(name, "ready")

	m := GetEngineMetrics(name)
	if m == nil {
		t.Fatal("expected non-nil metrics")
	}
	if m.Status != "online" {
		t.Errorf("Status = %q, want online", m.Status)
	}
	if m.Boots != 1 || m.BootFailures != 1 {
		t.Errorf("Boots = %v, BootFailures = %v, want 1 and 1", m.Boots, m.BootFailures)
	}
	if m.Panics != 1 || m.Quits != 0 {
		t.Errorf("Panics = %v, Quits = %v, want 1 and 0", m.Panics, m.Quits)
	}
	if m.Lines != 2 {
		t.Errorf("Lines = %v, want 2", m.Lines)
	}

	// Returned value is a copy
	m.Status = "modified"
	if GetEngineMetrics(name).Status != "online" {
		t.Error("cache should not be modified through returned pointer")
	}

	DeleteEngineMetrics(name)
	if GetEngineMetrics(name) != nil {
		t.Error("expected nil after delete")
	}
}

func TestStatusGaugeIsOneHot(t *testing.T) {
	name := "test-engine-gauge"
	DeleteEngineMetrics(name)
	defer DeleteEngineMetrics(name)

	SetEngineStatus(name, "booting")
	SetEngineStatus(name, "online")

	for _, s := range Statuses {
		want := 0.0
		if s == "online" {
			want = 1
		}
		if got := testutil.ToFloat64(engineStatus.WithLabelValues(name, s)); got != want {
			t.Errorf("status{%s} = %v, want %v", s, got, want)
		}
	}
}

func TestBootCounter(t *testing.T) {
	name := "test-engine-counter"
	DeleteEngineMetrics(name)
	defer DeleteEngineMetrics(name)

	RecordBoot(name, BootSucceeded)
	RecordBoot(name, BootSucceeded)

	if got := testutil.ToFloat64(engineBoots.WithLabelValues(name, BootSucceeded)); got != 2 {
		t.Errorf("boots_total{success} = %v, want 2", got)
	}
}

func TestEngineMetricsConcurrency(_ *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := "concurrent-engine"
			for j := 0; j < 100; j++ {
				RecordLine(name, "continue")
				_ = GetEngineMetrics(name)
				_ = GetAllEngineMetrics()
			}
		}()
	}
	wg.Wait()
	DeleteEngineMetrics("concurrent-engine")
}

func TestHandlerServesEngineMetrics(t *testing.T) {
	name := "test-engine-http"
	DeleteEngineMetrics(name)
	defer DeleteEngineMetrics(name)
	RecordExit(name, ExitQuit)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "synthnode_engine_exits_total") {
		t.Error("expected synthnode_engine_exits_total in output")
	}
}
