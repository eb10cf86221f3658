// Package metrics provides Prometheus metrics for engine lifecycles.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	engineStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "synthnode",
		Subsystem: "engine",
		Name:      "status",
		Help:      "1 for the engine's current lifecycle status, 0 otherwise",
	}, []string{"name", "status"})

	engineBoots = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "synthnode",
		Subsystem: "engine",
		Name:      "boots_total",
		Help:      "Boot attempts by result",
	}, []string{"name", "result"})

	engineExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "synthnode",
		Subsystem: "engine",
		Name:      "exits_total",
		Help:      "Engine exits by kind (quit or panic)",
	}, []string{"name", "kind"})

	engineLines = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "synthnode",
		Subsystem: "engine",
		Name:      "output_lines_total",
		Help:      "Engine output lines by classification",
	}, []string{"name", "class"})

	// Local cache for the status API.
	engineCache   = make(map[string]*EngineMetrics)
	engineCacheMu sync.RWMutex
)

// Boot results.
const (
	BootSucceeded = "success"
	BootFailed    = "failure"
)

// Exit kinds.
const (
	ExitQuit  = "quit"
	ExitPanic = "panic"
)

// Statuses reported by the status gauge. Kept in sync with lifecycle.Status.
var Statuses = []string{"offline", "booting", "online", "quitting"}

// EngineMetrics holds current metric values for an engine instance.
type EngineMetrics struct {
	Status       string
	Boots        float64
	BootFailures float64
	Quits        float64
	Panics       float64
	Lines        float64
}

// SetEngineStatus marks status as the current one for the named engine.
func SetEngineStatus(name, status string) {
	for _, s := range Statuses {
		v := 0.0
		if s == status {
			v = 1
		}
		engineStatus.WithLabelValues(name, s).Set(v)
	}
	updateCache(name, func(m *EngineMetrics) { m.Status = status })
}

// RecordBoot counts a boot attempt with result BootSucceeded or BootFailed.
func RecordBoot(name, result string) {
	engineBoots.WithLabelValues(name, result).Inc()
	updateCache(name, func(m *EngineMetrics) {
		if result == BootSucceeded {
			m.Boots++
		} else {
			m.BootFailures++
		}
	})
}

// RecordExit counts an engine exit of kind ExitQuit or ExitPanic.
func RecordExit(name, kind string) {
	engineExits.WithLabelValues(name, kind).Inc()
	updateCache(name, func(m *EngineMetrics) {
		if kind == ExitPanic {
			m.Panics++
		} else {
			m.Quits++
		}
	})
}

// RecordLine counts one classified output line.
func RecordLine(name, class string) {
	engineLines.WithLabelValues(name, class).Inc()
	updateCache(name, func(m *EngineMetrics) { m.Lines++ })
}

// DeleteEngineMetrics removes all metrics for an engine.
func DeleteEngineMetrics(name string) {
	engineStatus.DeletePartialMatch(prometheus.Labels{"name": name})
	engineBoots.DeletePartialMatch(prometheus.Labels{"name": name})
	engineExits.DeletePartialMatch(prometheus.Labels{"name": name})
	engineLines.DeletePartialMatch(prometheus.Labels{"name": name})

	engineCacheMu.Lock()
	delete(engineCache, name)
	engineCacheMu.Unlock()
}

// GetEngineMetrics returns current metric values for an engine.
func GetEngineMetrics(name string) *EngineMetrics {
	engineCacheMu.RLock()
	defer engineCacheMu.RUnlock()
	if m, ok := engineCache[name]; ok {
		dup := *m
		return &dup
	}
	return nil
}

// GetAllEngineMetrics returns metrics for all known engines.
func GetAllEngineMetrics() map[string]*EngineMetrics {
	engineCacheMu.RLock()
	defer engineCacheMu.RUnlock()
	result := make(map[string]*EngineMetrics, len(engineCache))
	for name, m := range engineCache {
		dup := *m
		result[name] = &dup
	}
	return result
}

func updateCache(name string, update func(*EngineMetrics)) {
	engineCacheMu.Lock()
	defer engineCacheMu.Unlock()
	m, ok := engineCache[name]
	if !ok {
		m = &EngineMetrics{}
		engineCache[name] = m
	}
	update(m)
}
