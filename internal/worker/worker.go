package worker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/procbridge/coworker/internal/codec"
	"github.com/procbridge/coworker/internal/logger"
	"github.com/procbridge/coworker/internal/registry"
	"github.com/procbridge/coworker/pkg/bufpool"
	"github.com/procbridge/coworker/pkg/config"
)

// ErrMissingSocketPath is returned when a Worker is constructed without a
// socket path. It is pkg/config.ErrMissingSocketPath re-exported so
// callers only need to import internal/worker's own error taxonomy.
var ErrMissingSocketPath = config.ErrMissingSocketPath

// Worker binds a single Unix domain socket and serves exactly one client
// connection at a time: accept, dispatch synchronously via conn.serve,
// close, accept the next. A coworker process never fans in multiple
// connections; the host gets concurrency by running a pool of
// single-connection worker processes.
type Worker struct {
	cfg      *config.Config
	registry *registry.Registry
	codec    codec.Codec
	pool     *bufpool.Pool
	id       string

	listener   net.Listener
	listenerMu sync.RWMutex

	shutdown       chan struct{}
	shutdownOnce   sync.Once
	shutdownCtx    context.Context
	cancelRequests context.CancelFunc

	activeConn   net.Conn
	activeConnMu sync.RWMutex

	// ListenerReady is closed once the socket is bound. Tests wait on
	// this before dialing.
	ListenerReady chan struct{}
}

// New constructs a Worker from cfg and reg. It resolves cfg.Codec eagerly
// so an invalid codec name is reported at construction, before anything
// touches the filesystem.
func New(cfg *config.Config, reg *registry.Registry) (*Worker, error) {
	if cfg.SocketPath == "" {
		return nil, ErrMissingSocketPath
	}

	c, err := codec.Resolve(cfg.Codec)
	if err != nil {
		return nil, err
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	return &Worker{
		cfg:            cfg,
		registry:       reg,
		codec:          c,
		pool:           bufpool.NewPool(nil),
		id:             workerID(),
		shutdown:       make(chan struct{}),
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
		ListenerReady:  make(chan struct{}),
	}, nil
}

// ID returns the worker's identifier, used in logs and trace attributes.
func (w *Worker) ID() string { return w.id }

// Serve binds the socket and accepts connections, one at a time, until
// ctx is cancelled or Stop is called. It unlinks any stale socket file
// left behind by a prior, uncleanly-terminated process before binding,
// and unlinks it again on the way out.
func (w *Worker) Serve(ctx context.Context) error {
	if err := removeStaleSocket(w.cfg.SocketPath); err != nil {
		return fmt.Errorf("worker: removing stale socket: %w", err)
	}

	listener, err := net.Listen("unix", w.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("worker: listen on %s: %w", w.cfg.SocketPath, err)
	}

	w.listenerMu.Lock()
	w.listener = listener
	w.listenerMu.Unlock()
	close(w.ListenerReady)

	logger.Info("worker listening", logger.SocketPath(w.cfg.SocketPath), logger.WorkerID(w.id))
	if !w.cfg.SideChannelCancellationEnabled() {
		logger.Warn("side-channel cancellation disabled: cancellation is only delivered between requests")
	}

	go func() {
		<-ctx.Done()
		logger.Debug("shutdown signal received", logger.Err(ctx.Err()))
		w.initiateShutdown()
	}()

	for {
		nc, err := listener.Accept()
		if err != nil {
			select {
			case <-w.shutdown:
				return w.drainAndUnlink()
			default:
				logger.Debug("accept error", logger.Err(err))
				continue
			}
		}

		w.serveOneConnection(nc)
	}
}

// serveOneConnection runs the dispatch loop synchronously against nc,
// tracking it as the active connection so shutdown can interrupt a
// blocking read.
func (w *Worker) serveOneConnection(nc net.Conn) {
	w.activeConnMu.Lock()
	w.activeConn = nc
	w.activeConnMu.Unlock()

	defer func() {
		_ = nc.Close()
		w.activeConnMu.Lock()
		w.activeConn = nil
		w.activeConnMu.Unlock()
	}()

	logger.Debug("connection accepted", logger.WorkerID(w.id))
	c := newConn(nc, w.codec, w.registry, w.cfg.MaxFrameSize, w.pool, w.id, w.cfg.SideChannelCancellationEnabled())
	c.serve(w.shutdownCtx)
	logger.Debug("connection closed", logger.WorkerID(w.id))
}

// Stop initiates graceful shutdown from outside the Serve goroutine (e.g.
// a signal handler not tied to ctx).
func (w *Worker) Stop() {
	w.initiateShutdown()
}

// initiateShutdown breaks the accept loop, closes the listening socket,
// interrupts any blocking read on the active connection, and cancels the
// shutdown context so handlers threading it through observe cancellation
// immediately. Safe to call more than once or concurrently.
func (w *Worker) initiateShutdown() {
	w.shutdownOnce.Do(func() {
		logger.Debug("shutdown initiated", logger.WorkerID(w.id))
		close(w.shutdown)

		w.listenerMu.Lock()
		if w.listener != nil {
			_ = w.listener.Close()
		}
		w.listenerMu.Unlock()

		w.interruptBlockingRead()
		w.cancelRequests()
	})
}

// drainAndUnlink waits up to cfg.ShutdownTimeout for the active
// connection to finish its current request, force-closing it if the
// timeout elapses, then unlinks the socket file.
func (w *Worker) drainAndUnlink() error {
	done := make(chan struct{})
	go func() {
		w.waitForIdle()
		close(done)
	}()

	var shutdownErr error
	select {
	case <-done:
		logger.Info("graceful shutdown complete", logger.WorkerID(w.id))
	case <-time.After(w.cfg.ShutdownTimeout):
		logger.Warn("shutdown timeout exceeded, forcing connection closed", logger.WorkerID(w.id))
		w.forceCloseActiveConnection()
		shutdownErr = fmt.Errorf("worker: shutdown timeout exceeded, connection force-closed")
	}

	if err := os.Remove(w.cfg.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to unlink socket on shutdown", logger.Err(err))
	}

	return shutdownErr
}

// interruptBlockingRead sets a short read deadline on the active
// connection, if any, to unblock a pending frame read during shutdown.
func (w *Worker) interruptBlockingRead() {
	w.activeConnMu.RLock()
	nc := w.activeConn
	w.activeConnMu.RUnlock()
	if nc == nil {
		return
	}
	_ = nc.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
}

func (w *Worker) forceCloseActiveConnection() {
	w.activeConnMu.RLock()
	nc := w.activeConn
	w.activeConnMu.RUnlock()
	if nc != nil {
		_ = nc.Close()
	}
}

// waitForIdle blocks until no connection is active.
func (w *Worker) waitForIdle() {
	for {
		w.activeConnMu.RLock()
		idle := w.activeConn == nil
		w.activeConnMu.RUnlock()
		if idle {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// removeStaleSocket removes an existing socket file at path, if any,
// tolerating its absence.
func removeStaleSocket(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// workerID builds a human-readable identifier for this process, used in
// logs and trace attributes to distinguish workers in a host's pool.
func workerID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
