// Registers:
//
//	#OptionFlow_scan_success_total
//	#OptionFlow_scan_errors_total
//	#OptionFlow_oi_fetch_success_total
//	#OptionFlow_oi_fetch_errors_total
//	#OptionFlow_cluster_events_total
//	#go_* and process_* system metrics
//
// Exposes them on :2112/metrics using Prometheus HTTP handler
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once          sync.Once
	scanSuccess   *prometheus.CounterVec
	scanErrors    *prometheus.CounterVec
	oiSuccess     *prometheus.CounterVec
	oiErrors      *prometheus.CounterVec
	clusterEvents *prometheus.CounterVec
)

func Init() {
	once.Do(func() {
		scanSuccess = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "OptionFlow_scan_success_total",
				Help: "Number of completed option-chain scans",
			},
			[]string{"ticker"},
		)

		scanErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "OptionFlow_scan_errors_total",
				Help: "Number of failed option-chain scans",
			},
			[]string{"ticker", "kind"},
		)

		oiSuccess = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "OptionFlow_oi_fetch_success_total",
				Help: "Number of completed paginated open-interest fetches",
			},
			[]string{"ticker"},
		)

		oiErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "OptionFlow_oi_fetch_errors_total",
				Help: "Number of failed paginated open-interest fetches",
			},
			[]string{"ticker", "kind"},
		)

		clusterEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "OptionFlow_cluster_events_total",
				Help: "Number of emitted continuous-purchase cluster events",
			},
			[]string{"ticker", "direction"},
		)

		_ = prometheus.Register(scanSuccess)
		_ = prometheus.Register(scanErrors)
		_ = prometheus.Register(oiSuccess)
		_ = prometheus.Register(oiErrors)
		_ = prometheus.Register(clusterEvents)
		_ = prometheus.Register(collectors.NewGoCollector())
		_ = prometheus.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe("0.0.0.0:2112", nil); err != nil {
				panic("metrics server failed: " + err.Error())
			}
		}()
	})
}

// IncrementScanSuccess increases the scan success counter for a ticker.
func IncrementScanSuccess(ticker string) {
	if scanSuccess != nil {
		scanSuccess.WithLabelValues(ticker).Inc()
	}
}

// IncrementScanError increases the scan error counter for a ticker.
func IncrementScanError(ticker, kind string) {
	if scanErrors != nil {
		scanErrors.WithLabelValues(ticker, kind).Inc()
	}
}

// IncrementOISuccess increases the open-interest fetch success counter.
func IncrementOISuccess(ticker string) {
	if oiSuccess != nil {
		oiSuccess.WithLabelValues(ticker).Inc()
	}
}

// IncrementOIError increases the open-interest fetch error counter.
func IncrementOIError(ticker, kind string) {
	if oiErrors != nil {
		oiErrors.WithLabelValues(ticker, kind).Inc()
	}
}

// IncrementClusterEvent increases the cluster event counter.
func IncrementClusterEvent(ticker, direction string) {
	if clusterEvents != nil {
		clusterEvents.WithLabelValues(ticker, direction).Inc()
	}
}
