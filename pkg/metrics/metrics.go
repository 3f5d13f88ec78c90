// Package metrics keeps process-wide counters for the converter and serves
// them in the Prometheus text format.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds all application metrics
type Metrics struct {
	// Request metrics
	requestsTotal    uint64
	requestsDuration sync.Map // URL path -> *sync.Map(bucket -> *uint64)
	requestsInFlight int64
	requestsByStatus sync.Map // Status code -> *uint64

	// Conversion metrics
	conversionsTotal    uint64
	passthroughTotal    uint64
	conversionsBySource sync.Map // Source* -> *uint64
	conversionsByDepth  sync.Map // bits per pixel -> *uint64
	conversionDuration  sync.Map // bucket -> *uint64
	bytesIn             uint64
	bytesOut            uint64

	// Error metrics
	errorsTotal  uint64
	errorsByType sync.Map // Error type -> *uint64

	// Upstream fetch metrics
	fetchesTotal uint64
	fetchErrors  uint64
}

var (
	globalMetrics = &Metrics{}
	startTime     = time.Now()
)

// Get returns the global metrics instance
func Get() *Metrics {
	return globalMetrics
}

// Reset resets all metrics (for testing)
func Reset() {
	globalMetrics = &Metrics{}
	startTime = time.Now()
}

func incMap(m *sync.Map, key any) {
	count, _ := m.LoadOrStore(key, new(uint64))
	atomic.AddUint64(count.(*uint64), 1)
}

// Request metrics

func (m *Metrics) IncRequests() {
	atomic.AddUint64(&m.requestsTotal, 1)
}

func (m *Metrics) IncRequestInFlight() {
	atomic.AddInt64(&m.requestsInFlight, 1)
}

func (m *Metrics) DecRequestInFlight() {
	atomic.AddInt64(&m.requestsInFlight, -1)
}

func (m *Metrics) GetRequestsInFlight() int64 {
	return atomic.LoadInt64(&m.requestsInFlight)
}

func (m *Metrics) RecordRequestDuration(path string, duration time.Duration) {
	val, _ := m.requestsDuration.LoadOrStore(path, &sync.Map{})
	incMap(val.(*sync.Map), getBucket(duration))
}

func (m *Metrics) RecordRequestStatus(status int) {
	incMap(&m.requestsByStatus, status)
}

// Conversion metrics

// Where the pixels of a converted icon came from.
const (
	SourcePassthrough = "passthrough" // embedded PNG returned unchanged
	SourceBitmap      = "bitmap"      // legacy DIB decoded by the strict decoder
	SourcePNG         = "png"         // embedded PNG decoded and re-encoded
	SourceLenient     = "lenient"     // fallback decoder
)

// RecordConversion counts one successful conversion. bpp is only recorded
// for bitmap sources.
func (m *Metrics) RecordConversion(source string, bpp int, in, out int, duration time.Duration) {
	atomic.AddUint64(&m.conversionsTotal, 1)
	atomic.AddUint64(&m.bytesIn, uint64(in))
	atomic.AddUint64(&m.bytesOut, uint64(out))
	if source == SourcePassthrough {
		atomic.AddUint64(&m.passthroughTotal, 1)
	}
	incMap(&m.conversionsBySource, source)
	if source == SourceBitmap && bpp > 0 {
		incMap(&m.conversionsByDepth, bpp)
	}
	incMap(&m.conversionDuration, getBucket(duration))
}

func (m *Metrics) GetConversions() uint64 {
	return atomic.LoadUint64(&m.conversionsTotal)
}

func (m *Metrics) GetPassthroughs() uint64 {
	return atomic.LoadUint64(&m.passthroughTotal)
}

func (m *Metrics) GetConversionsBySource(source string) uint64 {
	v, ok := m.conversionsBySource.Load(source)
	if !ok {
		return 0
	}
	return atomic.LoadUint64(v.(*uint64))
}

// Error metrics

func (m *Metrics) IncError(errorType string) {
	atomic.AddUint64(&m.errorsTotal, 1)
	incMap(&m.errorsByType, errorType)
}

func (m *Metrics) GetErrors(errorType string) uint64 {
	v, ok := m.errorsByType.Load(errorType)
	if !ok {
		return 0
	}
	return atomic.LoadUint64(v.(*uint64))
}

// Upstream fetch metrics

func (m *Metrics) IncFetch() {
	atomic.AddUint64(&m.fetchesTotal, 1)
}

func (m *Metrics) IncFetchError() {
	atomic.AddUint64(&m.fetchErrors, 1)
}

// Prometheus exposition

func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		m.WriteText(w)
	}
}

// WriteText writes every metric in the text exposition format.
func (m *Metrics) WriteText(w io.Writer) {
	e := &exposition{w: w, typed: map[string]bool{}}

	e.write("ico2png_build_info", "gauge", 1, map[string]string{"version": "1.0.0"})
	e.write("ico2png_uptime_seconds", "gauge", time.Since(startTime).Seconds(), nil)

	e.write("ico2png_requests_total", "counter", atomic.LoadUint64(&m.requestsTotal), nil)
	e.write("ico2png_requests_in_flight", "gauge", m.GetRequestsInFlight(), nil)
	m.requestsDuration.Range(func(key, value any) bool {
		path := key.(string)
		value.(*sync.Map).Range(func(k, v any) bool {
			e.write("ico2png_request_duration_milliseconds_bucket", "counter", atomic.LoadUint64(v.(*uint64)), map[string]string{
				"path": path,
				"le":   k.(string),
			})
			return true
		})
		return true
	})
	m.requestsByStatus.Range(func(key, value any) bool {
		status := key.(int)
		e.write("ico2png_requests_by_status_total", "counter", atomic.LoadUint64(value.(*uint64)), map[string]string{
			"status": http.StatusText(status),
			"code":   fmt.Sprintf("%d", status),
		})
		return true
	})

	e.write("ico2png_conversions_total", "counter", atomic.LoadUint64(&m.conversionsTotal), nil)
	e.write("ico2png_png_passthrough_total", "counter", atomic.LoadUint64(&m.passthroughTotal), nil)
	m.conversionsBySource.Range(func(key, value any) bool {
		e.write("ico2png_conversions_by_source_total", "counter", atomic.LoadUint64(value.(*uint64)), map[string]string{
			"source": key.(string),
		})
		return true
	})
	m.conversionsByDepth.Range(func(key, value any) bool {
		e.write("ico2png_conversions_by_depth_total", "counter", atomic.LoadUint64(value.(*uint64)), map[string]string{
			"bpp": fmt.Sprintf("%d", key.(int)),
		})
		return true
	})
	m.conversionDuration.Range(func(key, value any) bool {
		e.write("ico2png_conversion_duration_milliseconds_bucket", "counter", atomic.LoadUint64(value.(*uint64)), map[string]string{
			"le": key.(string),
		})
		return true
	})
	e.write("ico2png_input_bytes_total", "counter", atomic.LoadUint64(&m.bytesIn), nil)
	e.write("ico2png_output_bytes_total", "counter", atomic.LoadUint64(&m.bytesOut), nil)

	e.write("ico2png_errors_total", "counter", atomic.LoadUint64(&m.errorsTotal), nil)
	m.errorsByType.Range(func(key, value any) bool {
		e.write("ico2png_errors_by_type_total", "counter", atomic.LoadUint64(value.(*uint64)), map[string]string{
			"type": key.(string),
		})
		return true
	})

	e.write("ico2png_fetches_total", "counter", atomic.LoadUint64(&m.fetchesTotal), nil)
	e.write("ico2png_fetch_errors_total", "counter", atomic.LoadUint64(&m.fetchErrors), nil)
}

type exposition struct {
	w     io.Writer
	typed map[string]bool
}

// write emits one sample; the TYPE line is written once per metric name.
func (e *exposition) write(name, metricType string, value any, labels map[string]string) {
	if !e.typed[name] {
		fmt.Fprintf(e.w, "# TYPE %s %s\n", name, metricType)
		e.typed[name] = true
	}

	fmt.Fprint(e.w, name)
	if len(labels) > 0 {
		keys := make([]string, 0, len(labels))
		for k := range labels {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, fmt.Sprintf("%s=%q", k, labels[k]))
		}
		fmt.Fprint(e.w, "{"+strings.Join(pairs, ",")+"}")
	}
	fmt.Fprint(e.w, " ")

	switch v := value.(type) {
	case int:
		fmt.Fprintf(e.w, "%d", v)
	case int64:
		fmt.Fprintf(e.w, "%d", v)
	case uint64:
		fmt.Fprintf(e.w, "%d", v)
	case float64:
		fmt.Fprintf(e.w, "%.6f", v)
	}
	fmt.Fprint(e.w, "\n")
}

func getBucket(d time.Duration) string {
	ms := float64(d) / float64(time.Millisecond)
	buckets := []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}
	for _, b := range buckets {
		if ms <= b {
			return fmt.Sprintf("%.0f", b)
		}
	}
	return "+Inf"
}

// Middleware for automatic request tracking
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := Get()
		m.IncRequests()
		m.IncRequestInFlight()
		defer m.DecRequestInFlight()

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		m.RecordRequestDuration(r.URL.Path, time.Since(start))
		m.RecordRequestStatus(sw.status)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
