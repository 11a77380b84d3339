// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-hwkey.
//
// go-hwkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package metrics provides Prometheus instrumentation for key boundary
// operations. Collectors are registered with the default registry.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all hwkey metrics
	Namespace = "hwkey"

	// Label names
	LabelOperation = "operation"
	LabelBackend   = "backend"
	LabelStatus    = "status"
	LabelErrorType = "error_type"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Operation names
	OpCreateKey    = "create_key"
	OpGetPublicKey = "get_public_key"
	OpKeyAgreement = "key_agreement"

	// Error types
	ErrorTypeCapacity  = "capacity"
	ErrorTypeMalformed = "malformed"
	ErrorTypeProvider  = "provider"
	ErrorTypePanic     = "panic"
)

var (
	// OperationsTotal tracks boundary operations by type, backend, and status.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_total",
			Help:      "Total number of key boundary operations by type, backend, and status",
		},
		[]string{LabelOperation, LabelBackend, LabelStatus},
	)

	// OperationDuration tracks the duration of boundary operations in seconds.
	// Hardware round trips dominate, so buckets reach into seconds.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of key boundary operations in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{LabelOperation, LabelBackend},
	)

	// ErrorsTotal tracks failed operations by operation, backend, and error type.
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total number of errors by operation, backend, and error type",
		},
		[]string{LabelOperation, LabelBackend, LabelErrorType},
	)

	// enabled tracks whether metrics collection is enabled
	enabled atomic.Bool
)

func init() {
	enabled.Store(true)
}

// RecordOperation records an operation with its duration in seconds.
//
// Example:
//
//	start := time.Now()
//	ok := boundary.KeyAgreement(key, peer, out, &length)
//	status := metrics.StatusSuccess
//	if !ok {
//	    status = metrics.StatusError
//	}
//	metrics.RecordOperation(metrics.OpKeyAgreement, "tpm2", status, time.Since(start).Seconds())
func RecordOperation(operation, backend, status string, duration float64) {
	if !enabled.Load() {
		return
	}
	OperationsTotal.WithLabelValues(operation, backend, status).Inc()
	OperationDuration.WithLabelValues(operation, backend).Observe(duration)
}

// RecordError records a failure with its error type (use ErrorType* constants).
func RecordError(operation, backend, errorType string) {
	if !enabled.Load() {
		return
	}
	ErrorsTotal.WithLabelValues(operation, backend, errorType).Inc()
}

// Observe records the outcome of an operation that started at start. An
// empty errorType records success.
func Observe(operation, backend string, start time.Time, errorType string) {
	status := StatusSuccess
	if errorType != "" {
		status = StatusError
		RecordError(operation, backend, errorType)
	}
	RecordOperation(operation, backend, status, time.Since(start).Seconds())
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection.
func Disable() {
	enabled.Store(false)
}

// IsEnabled returns whether metrics collection is currently enabled.
func IsEnabled() bool {
	return enabled.Load()
}
