package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for RPC spans, following OpenTelemetry semantic
// conventions where applicable.
const (
	AttrRPCMethod    = "rpc.method"
	AttrRPCRequestID = "rpc.request_id"
	AttrWorkerID     = "worker.id"
)

// RPCMethod returns an attribute for the dispatched method name.
func RPCMethod(method string) attribute.KeyValue {
	return attribute.String(AttrRPCMethod, method)
}

// RPCRequestID returns an attribute for the request ID.
func RPCRequestID(id uint64) attribute.KeyValue {
	return attribute.Int64(AttrRPCRequestID, int64(id))
}

// WorkerID returns an attribute identifying the worker process.
func WorkerID(id string) attribute.KeyValue {
	return attribute.String(AttrWorkerID, id)
}

// StartRPCSpan starts a span named "pyproc.<method>" with the standard
// method/request-id/worker-id attributes, mirroring the convention of
// setting a fixed attribute set per operation kind before handing control
// to the caller for anything request-specific. The "pyproc." prefix is part
// of the wire-level tracing contract and must not be renamed.
func StartRPCSpan(ctx context.Context, method string, requestID uint64, workerID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		RPCMethod(method),
		RPCRequestID(requestID),
		WorkerID(workerID),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, "pyproc."+method, trace.WithAttributes(allAttrs...))
}
