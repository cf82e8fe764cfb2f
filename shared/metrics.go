package shared

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ServiceMetrics tracks request counters for a single service. The shape
// drift counter is the one operators actually watch: a rising value means the
// scraped site changed its markup and the classifiers are flying blind.
type ServiceMetrics struct {
	ServiceName           string        `json:"service_name"`
	TotalRequests         int64         `json:"total_requests"`
	SuccessfulRequests    int64         `json:"successful_requests"`
	FailedRequests        int64         `json:"failed_requests"`
	ShapeDriftCount       int64         `json:"shape_drift_count"`
	TotalProcessingTime   time.Duration `json:"total_processing_time"`
	AverageProcessingTime time.Duration `json:"average_processing_time"`
	LastUpdated           time.Time     `json:"last_updated"`
	mutex                 sync.RWMutex
}

// NewServiceMetrics creates a new metrics tracker for a service.
func NewServiceMetrics(serviceName string) *ServiceMetrics {
	return &ServiceMetrics{
		ServiceName: serviceName,
		LastUpdated: time.Now(),
	}
}

// RecordRequest records a request with its success status and processing time.
func (m *ServiceMetrics) RecordRequest(success bool, processingTime time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.TotalRequests++
	m.TotalProcessingTime += processingTime
	m.AverageProcessingTime = time.Duration(int64(m.TotalProcessingTime) / m.TotalRequests)

	if success {
		m.SuccessfulRequests++
	} else {
		m.FailedRequests++
	}

	m.LastUpdated = time.Now()
}

// RecordShapeDrift records a parse failure against markup that loaded fine.
func (m *ServiceMetrics) RecordShapeDrift() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.ShapeDriftCount++
	m.LastUpdated = time.Now()
}

// GetSuccessRate returns the success rate as a percentage.
func (m *ServiceMetrics) GetSuccessRate() float64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if m.TotalRequests == 0 {
		return 0.0
	}

	return float64(m.SuccessfulRequests) / float64(m.TotalRequests) * 100.0
}

// Snapshot returns a copy of the counters for reporting endpoints.
func (m *ServiceMetrics) Snapshot() map[string]interface{} {
	successRate := m.GetSuccessRate()

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return map[string]interface{}{
		"total_requests":             m.TotalRequests,
		"successful_requests":        m.SuccessfulRequests,
		"failed_requests":            m.FailedRequests,
		"shape_drift_count":          m.ShapeDriftCount,
		"success_rate_percent":       successRate,
		"average_processing_time_ms": m.AverageProcessingTime.Milliseconds(),
	}
}

// LogSummary logs a metrics summary.
func (m *ServiceMetrics) LogSummary() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	logrus.WithFields(logrus.Fields{
		"service_name":            m.ServiceName,
		"total_requests":          m.TotalRequests,
		"successful_requests":     m.SuccessfulRequests,
		"failed_requests":         m.FailedRequests,
		"shape_drift_count":       m.ShapeDriftCount,
		"average_processing_time": m.AverageProcessingTime,
		"last_updated":            m.LastUpdated,
	}).Info("Service metrics summary")
}

// HTTPMetrics tracks outbound HTTP client behavior per origin.
type HTTPMetrics struct {
	TotalRequests      int64         `json:"total_requests"`
	SuccessfulRequests int64         `json:"successful_requests"`
	FailedRequests     int64         `json:"failed_requests"`
	TimeoutRequests    int64         `json:"timeout_requests"`
	StatusCodeCounts   map[int]int64 `json:"status_code_counts"`
	mutex              sync.RWMutex
}

// NewHTTPMetrics creates a new HTTP metrics tracker.
func NewHTTPMetrics() *HTTPMetrics {
	return &HTTPMetrics{
		StatusCodeCounts: make(map[int]int64),
	}
}

// RecordHTTPRequest records an outbound request with its result.
func (hm *HTTPMetrics) RecordHTTPRequest(success bool, statusCode int, isTimeout bool) {
	hm.mutex.Lock()
	defer hm.mutex.Unlock()

	hm.TotalRequests++
	if success {
		hm.SuccessfulRequests++
	} else {
		hm.FailedRequests++
	}
	if isTimeout {
		hm.TimeoutRequests++
	}
	if statusCode > 0 {
		hm.StatusCodeCounts[statusCode]++
	}
}

// Snapshot returns a copy of the outbound HTTP counters.
func (hm *HTTPMetrics) Snapshot() map[string]interface{} {
	hm.mutex.RLock()
	defer hm.mutex.RUnlock()

	statusCodes := make(map[int]int64, len(hm.StatusCodeCounts))
	for code, count := range hm.StatusCodeCounts {
		statusCodes[code] = count
	}

	return map[string]interface{}{
		"total_requests":      hm.TotalRequests,
		"successful_requests": hm.SuccessfulRequests,
		"failed_requests":     hm.FailedRequests,
		"timeout_requests":    hm.TimeoutRequests,
		"status_code_counts":  statusCodes,
	}
}

// LogHTTPSummary logs outbound HTTP metrics.
func (hm *HTTPMetrics) LogHTTPSummary() {
	hm.mutex.RLock()
	defer hm.mutex.RUnlock()

	logrus.WithFields(logrus.Fields{
		"total_requests":      hm.TotalRequests,
		"successful_requests": hm.SuccessfulRequests,
		"failed_requests":     hm.FailedRequests,
		"timeout_requests":    hm.TimeoutRequests,
		"status_code_counts":  hm.StatusCodeCounts,
	}).Info("HTTP metrics summary")
}
