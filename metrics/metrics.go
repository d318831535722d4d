package metrics

import (
	"net/http"
	"os"

	"github.com/dominant-strategies/go-mempool/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
)

// enabled is checked by the constructor functions for all of the standard
// metrics. If it is false, the metric returned is a stub.
//
// This global kill-switch helps quantify the observer effect and makes
// for less cluttered pprof profiles.
var enabled = true

func EnableMetrics() {
	enabled = true
}

func DisableMetrics() {
	enabled = false
}

func MetricsEnabled() bool {
	return enabled
}

// NewGaugeVec registers a labelled gauge family. The pool keys every meter by
// a single "label" dimension the way the node does.
func NewGaugeVec(name string, help string) *prometheus.GaugeVec {
	if !enabled {
		return nil
	}
	gaugeVec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: name,
		Help: help,
	}, []string{"label"})
	prometheus.MustRegister(gaugeVec)
	return gaugeVec
}

func NewGauge(name string, help string) prometheus.Gauge {
	if !enabled {
		return nil
	}
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: name,
		Help: help,
	})
	prometheus.MustRegister(gauge)
	return gauge
}

func NewCounter(name string, help string) prometheus.Counter {
	if !enabled {
		return nil
	}
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: name,
		Help: help,
	})
	prometheus.MustRegister(counter)
	return counter
}

func NewHistogram(name string, help string) prometheus.Histogram {
	if !enabled {
		return nil
	}
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: name,
		Help: help,
	})
	prometheus.MustRegister(histogram)
	return histogram
}

// StartProcessMetrics serves the prometheus endpoint together with CPU and
// memory usage of this process, refreshed on every scrape.
func StartProcessMetrics(listenAddr string) {
	// Short circuit if the metrics system is disabled
	if !enabled {
		return
	}
	procGauges := defineProcessMetrics()
	go serveHTTPMetrics(listenAddr, procGauges)
}

func defineProcessMetrics() *prometheus.GaugeVec {
	procGauges := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "process_usage",
			Help: "CPU and memory usage of the pool process",
		},
		[]string{"usage_type"},
	)
	prometheus.MustRegister(procGauges)
	return procGauges
}

func serveHTTPMetrics(listenAddr string, procGauges *prometheus.GaugeVec) {
	http.Handle("/metrics", promhttp.InstrumentMetricHandler(
		prometheus.DefaultRegisterer, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			collectProcessMetrics(procGauges)
			promhttp.Handler().ServeHTTP(w, r)
		}),
	))
	if err := http.ListenAndServe(listenAddr, nil); err != nil {
		log.WithField("err", err).Error("Metrics endpoint terminated")
	}
}

func collectProcessMetrics(procGauges *prometheus.GaugeVec) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.WithField("err", err).Error("Failed to get process handle")
		return
	}

	percent, err := proc.CPUPercent()
	if err != nil {
		log.WithField("err", err).Error("Failed to get CPU percent")
	} else {
		procGauges.WithLabelValues("cpu_process").Set(percent)
	}

	usage, err := cpu.Percent(0, false)
	if err != nil {
		log.WithField("err", err).Error("Failed to get system CPU percent")
	} else if len(usage) > 0 {
		procGauges.WithLabelValues("cpu_system").Set(usage[0])
	}

	memInfo, err := proc.MemoryInfo()
	if err != nil {
		log.WithField("err", err).Error("Failed to get memory info")
	} else {
		procGauges.WithLabelValues("mem_rss").Set(float64(memInfo.RSS))
		procGauges.WithLabelValues("mem_swap").Set(float64(memInfo.Swap))
	}

	threads, err := proc.NumThreads()
	if err != nil {
		log.WithField("err", err).Error("Failed to get thread count")
	} else {
		procGauges.WithLabelValues("threads").Set(float64(threads))
	}
}
