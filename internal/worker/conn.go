// Package worker implements the dispatch loop and connection lifecycle
// that turn a bound Unix socket into a running coworker process: accept a
// single connection, read framed requests, dispatch them against a
// registry, and write framed replies, with cooperative cancellation
// layered on top.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"go.opentelemetry.io/otel/propagation"

	"github.com/procbridge/coworker/internal/bytesize"
	"github.com/procbridge/coworker/internal/cancel"
	"github.com/procbridge/coworker/internal/codec"
	"github.com/procbridge/coworker/internal/frame"
	"github.com/procbridge/coworker/internal/logger"
	"github.com/procbridge/coworker/internal/protocol"
	"github.com/procbridge/coworker/internal/registry"
	"github.com/procbridge/coworker/internal/telemetry"
	"github.com/procbridge/coworker/pkg/bufpool"
)

// Error taxonomy for connection-level failures. Only ErrFraming and
// ErrDecode (and a broken pipe on write) terminate a connection; none of
// them terminate the worker process itself.
var (
	// ErrFraming classifies a malformed or truncated frame. The
	// connection is closed without a reply.
	ErrFraming = errors.New("worker: protocol framing error")

	// ErrDecode classifies a frame that failed to decode under the
	// active codec. A best-effort {id: 0, error} reply is attempted
	// before the connection closes.
	ErrDecode = errors.New("worker: protocol decode error")

	// ErrUnknownEnvelope classifies a "type" discriminator the worker
	// doesn't recognize. The frame is skipped; no reply, connection stays
	// open.
	ErrUnknownEnvelope = errors.New("worker: unknown envelope type")

	// ErrHandlerPanic wraps a recovered panic from inside a handler
	// invocation into an ordinary error response.
	ErrHandlerPanic = errors.New("worker: handler panicked")
)

const (
	kindRequest      = "request"
	kindCancellation = "cancellation"
	kindUnknown      = "unknown"
)

// conn serves exactly one client connection end to end: read, classify,
// dispatch, reply, in a loop, until a clean EOF, a framing error, or a
// broken pipe on write.
type conn struct {
	fc          *frame.Conn
	codec       codec.Codec
	registry    *registry.Registry
	cancelMgr   *cancel.Manager
	workerID    string
	connID      string
	sideChannel bool
}

func newConn(nc net.Conn, c codec.Codec, reg *registry.Registry, maxFrame bytesize.ByteSize, pool *bufpool.Pool, workerID string, sideChannel bool) *conn {
	connID := uuid.NewString()
	logger.Debug("connection established", logger.WorkerID(workerID), logger.ConnectionID(connID))
	return &conn{
		fc:          frame.New(nc, maxFrame, pool),
		codec:       c,
		registry:    reg,
		cancelMgr:   cancel.NewManager(logger.With("component", "cancel")),
		workerID:    workerID,
		connID:      connID,
		sideChannel: sideChannel,
	}
}

// serve runs the read/dispatch loop until the connection ends.
func (cn *conn) serve(ctx context.Context) {
	defer cn.cancelMgr.CancelAll("connection closed")

	if cn.sideChannel {
		cn.serveWithSideChannel(ctx)
		return
	}
	cn.serveSequential(ctx)
}

// serveSequential reads, classifies, and dispatches one frame at a time
// on a single goroutine. Cancellation frames are only observed between
// requests, since the loop is blocked inside dispatchOne while a handler
// runs.
func (cn *conn) serveSequential(ctx context.Context) {
	for {
		data, err := cn.fc.ReadFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				err = fmt.Errorf("%w: %v", ErrFraming, err)
				logger.Warn("frame read error, closing connection", logger.Err(err))
			}
			return
		}

		kind, req, can, err := classify(data, cn.codec)
		cn.fc.Release(data)
		if err != nil {
			logger.Warn("decode error, closing connection", logger.Err(err))
			cn.writeResponse(protocol.Response{ID: 0, OK: false, Error: err.Error()})
			return
		}

		switch kind {
		case kindCancellation:
			cn.cancelMgr.Cancel(can.ID, can.Reason)
			continue
		case kindUnknown:
			logger.Warn("unknown envelope type, skipping frame", logger.Err(ErrUnknownEnvelope))
			continue
		}

		resp := cn.dispatchOne(ctx, req)
		if !cn.writeResponse(resp) {
			return
		}
	}
}

// queuedItem is one unit of work handed from the reader goroutine to the
// dispatch loop in side-channel mode: either a request to dispatch, or a
// terminal read/decode error.
type queuedItem struct {
	req protocol.Request
	err error
}

// serveWithSideChannel runs a dedicated reader goroutine that keeps
// draining frames off the socket even while dispatchOne blocks in a
// handler. Cancellation envelopes are applied the instant the reader
// observes them; request frames are queued, in order, for the dispatch
// goroutine below. This is what lets a cancellation reach a long-running
// handler without waiting for it to return first.
func (cn *conn) serveWithSideChannel(ctx context.Context) {
	items := make(chan queuedItem, 64)
	go cn.readLoop(items)

	for item := range items {
		if item.err != nil {
			if errors.Is(item.err, ErrDecode) {
				cn.writeResponse(protocol.Response{ID: 0, OK: false, Error: item.err.Error()})
			} else if !errors.Is(item.err, io.EOF) {
				logger.Warn("frame read error, closing connection", logger.Err(fmt.Errorf("%w: %v", ErrFraming, item.err)))
			}
			return
		}

		resp := cn.dispatchOne(ctx, item.req)
		if !cn.writeResponse(resp) {
			// The peer is gone. Close the socket so the reader
			// goroutine's blocked ReadFrame unblocks with an error
			// instead of leaking.
			_ = cn.fc.Close()
			for range items {
			}
			return
		}
	}
}

// readLoop drains frames for serveWithSideChannel. It never touches the
// codec concurrently with the dispatch goroutine's own decoding, since
// decoding a frame's bytes happens entirely here before handing the
// result off.
func (cn *conn) readLoop(items chan<- queuedItem) {
	defer close(items)

	for {
		data, err := cn.fc.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				// The client hung up: cancel the in-flight request now,
				// while its handler is still running.
				cn.cancelMgr.CancelAll("connection closed")
			}
			items <- queuedItem{err: err}
			return
		}

		kind, req, can, err := classify(data, cn.codec)
		cn.fc.Release(data)
		if err != nil {
			items <- queuedItem{err: err}
			return
		}

		switch kind {
		case kindCancellation:
			cn.cancelMgr.Cancel(can.ID, can.Reason)
		case kindUnknown:
			logger.Warn("unknown envelope type, skipping frame", logger.Err(ErrUnknownEnvelope))
		default:
			items <- queuedItem{req: req}
		}
	}
}

// classify decodes data into a generic map first so the "type"
// discriminator can be inspected regardless of which codec produced it,
// then commits to decoding the relevant payload into a concrete Request
// or Cancellation. A frame with no "type" key is the legacy bare-request
// format and is decoded directly.
func classify(data []byte, c codec.Codec) (kind string, req protocol.Request, can protocol.Cancellation, err error) {
	var raw protocol.RawMessage
	if err := c.Decode(data, &raw); err != nil {
		return "", protocol.Request{}, protocol.Cancellation{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	envType, ok := raw.HasEnvelopeType()
	if !ok {
		if err := decodeInto(map[string]any(raw), &req); err != nil {
			return "", protocol.Request{}, protocol.Cancellation{}, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return kindRequest, req, protocol.Cancellation{}, nil
	}

	switch envType {
	case protocol.EnvelopeRequest:
		if err := decodeInto(raw["payload"], &req); err != nil {
			return "", protocol.Request{}, protocol.Cancellation{}, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return kindRequest, req, protocol.Cancellation{}, nil
	case protocol.EnvelopeCancellation:
		if err := decodeInto(raw["payload"], &can); err != nil {
			return "", protocol.Request{}, protocol.Cancellation{}, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return kindCancellation, protocol.Request{}, can, nil
	default:
		return kindUnknown, protocol.Request{}, protocol.Cancellation{}, nil
	}
}

// decodeInto re-shapes a generically-decoded value (a map[string]any, or
// nested maps of the same) into a concrete struct, weakly typed so that a
// JSON/msgpack numeric type (e.g. float64) converts cleanly into request
// IDs declared as uint64.
func decodeInto(src, dst any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           dst,
	})
	if err != nil {
		return err
	}
	return dec.Decode(src)
}

// dispatchOne looks up req.Method, invokes its handler under tracing and
// cancellation scope, and turns the outcome into a Response. It never
// returns an error itself — every failure mode is encoded in the
// returned Response.
func (cn *conn) dispatchOne(ctx context.Context, req protocol.Request) protocol.Response {
	h, ok := cn.registry.Lookup(req.Method)
	if !ok {
		return protocol.Response{
			ID:    req.ID,
			OK:    false,
			Error: fmt.Sprintf("Method '%s' not found", req.Method),
		}
	}

	lc := logger.NewLogContext(cn.workerID).WithMethod(req.Method).WithRequestID(req.ID)
	ctx = logger.WithContext(ctx, lc)
	ctx = extractTraceContext(ctx, req.Headers)

	ctx, span := telemetry.StartRPCSpan(ctx, req.Method, req.ID, cn.workerID)
	defer span.End()

	var result any
	err := cn.cancelMgr.Track(req.ID, func(sig *cancel.Signal) error {
		return cn.invoke(ctx, h, req, sig, &result)
	})

	resp := protocol.Response{ID: req.ID, Headers: injectTraceContext(ctx)}

	var cancelled *cancel.Cancelled
	switch {
	case err == nil:
		resp.OK = true
		resp.Body = result
	case errors.As(err, &cancelled):
		resp.Error = cancelled.Error()
		logger.InfoCtx(ctx, "request cancelled", logger.Reason(cancelled.Reason), logger.ConnectionID(cn.connID))
	default:
		resp.Error = err.Error()
		telemetry.RecordError(ctx, err)
		logger.ErrorCtx(ctx, "handler error", logger.Err(err), logger.ConnectionID(cn.connID))
	}

	return resp
}

// invoke calls the handler, recovering a panic into ErrHandlerPanic so a
// single bad handler can't take the worker process down.
func (cn *conn) invoke(ctx context.Context, h registry.Handler, req protocol.Request, sig *cancel.Signal, result *any) (invokeErr error) {
	defer func() {
		if r := recover(); r != nil {
			invokeErr = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()

	res, err := h.Invoke(ctx, req.Body, sig)
	if err != nil {
		return err
	}
	*result = res
	return nil
}

// writeResponse encodes and writes resp, reporting whether the
// connection should stay open. A broken pipe is logged at debug level
// only, since the peer disconnecting mid-reply (e.g. right after sending
// a cancellation) is an expected outcome, not an error.
func (cn *conn) writeResponse(resp protocol.Response) bool {
	data, err := cn.codec.Encode(resp)
	if err != nil {
		logger.Error("failed to encode response", logger.Err(err))
		return false
	}

	if err := cn.fc.WriteFrame(data); err != nil {
		if errors.Is(err, frame.ErrPeerGone) {
			logger.Debug("peer gone while writing response")
		} else {
			logger.Warn("write error, closing connection", logger.Err(err))
		}
		return false
	}
	return true
}

// headerCarrier adapts the plain map[string]string used by Request and
// Response headers to otel's propagation.TextMapCarrier, since neither
// type is an http.Header.
type headerCarrier map[string]string

func (h headerCarrier) Get(key string) string { return h[key] }

func (h headerCarrier) Set(key, value string) { h[key] = value }

func (h headerCarrier) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	return keys
}

// extractTraceContext pulls a W3C trace context out of headers, if
// present, and returns a context carrying it as the active parent span.
func extractTraceContext(ctx context.Context, headers map[string]string) context.Context {
	if len(headers) == 0 {
		return ctx
	}
	return propagation.TraceContext{}.Extract(ctx, headerCarrier(headers))
}

// injectTraceContext returns a header map carrying ctx's span context, or
// nil when telemetry is disabled — Response.Headers is omitempty, so a
// nil return means the field is absent entirely, matching spec's "MUST
// NOT appear when tracing is disabled" requirement.
func injectTraceContext(ctx context.Context) map[string]string {
	if !telemetry.IsEnabled() {
		return nil
	}
	carrier := headerCarrier{}
	propagation.TraceContext{}.Inject(ctx, carrier)
	if len(carrier) == 0 {
		return nil
	}
	return carrier
}
