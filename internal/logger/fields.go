package logger

import (
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements for log aggregation and querying.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// RPC dispatch
	// ========================================================================
	KeyMethod    = "method"     // Dispatched method name
	KeyRequestID = "request_id" // Request ID assigned by the host
	KeyWorkerID  = "worker_id"  // Identifies this worker among a host's pool
	KeyCodec     = "codec"      // Active codec name
	KeyStatus    = "status"     // Operation status (ok/error)

	// ========================================================================
	// Client / socket identification
	// ========================================================================
	KeyClientIP    = "client_ip"    // Client IP address, when over TCP
	KeySocketPath  = "socket_path"  // Unix socket path the worker is bound to
	KeyConnectionID = "connection_id" // Connection identifier

	// ========================================================================
	// Operation metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyReason     = "reason"      // Cancellation reason
	KeyAttempt    = "attempt"     // Retry attempt number
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// Method returns a slog.Attr for the dispatched method name
func Method(name string) slog.Attr {
	return slog.String(KeyMethod, name)
}

// RequestID returns a slog.Attr for the request ID
func RequestID(id uint64) slog.Attr {
	return slog.Uint64(KeyRequestID, id)
}

// WorkerID returns a slog.Attr identifying the worker process
func WorkerID(id string) slog.Attr {
	return slog.String(KeyWorkerID, id)
}

// Codec returns a slog.Attr for the active codec name
func Codec(name string) slog.Attr {
	return slog.String(KeyCodec, name)
}

// Status returns a slog.Attr for operation status
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// ClientIP returns a slog.Attr for client IP address
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// SocketPath returns a slog.Attr for the bound Unix socket path
func SocketPath(path string) slog.Attr {
	return slog.String(KeySocketPath, path)
}

// ConnectionID returns a slog.Attr for connection identifier
func ConnectionID(id string) slog.Attr {
	return slog.String(KeyConnectionID, id)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Reason returns a slog.Attr for a cancellation reason
func Reason(reason string) slog.Attr {
	return slog.String(KeyReason, reason)
}

// Attempt returns a slog.Attr for retry attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}
