package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/untoldecay/LoomLog/internal/scheduler"
	"github.com/untoldecay/LoomLog/internal/storage"
)

// ServerVersion is stamped by the daemon from the CLI version before the
// server starts, so compatibility checks compare real versions.
var ServerVersion = "0.0.0"

const (
	defaultMaxConns       = 32
	defaultRequestTimeout = 30 * time.Second
	maxRequestBytes       = 1 << 20
	connIdleTimeout       = 5 * time.Minute
)

// Control is the capture-loop surface the server drives on behalf of
// clients. *scheduler.Scheduler satisfies it.
type Control interface {
	SyncNow(ctx context.Context) error
	Status(ctx context.Context) (scheduler.Report, error)
}

// Server answers control requests on a unix socket. One instance per
// daemon; the daemon owns the singleton lock, so a pre-existing socket file
// at startup is stale and gets replaced.
type Server struct {
	socketPath string
	dbPath     string
	store      storage.Storage
	control    Control

	mu       sync.Mutex
	listener net.Listener
	started  bool
	shutdown bool

	shutdownChan chan struct{}
	shutdownOnce sync.Once
	stopOnce     sync.Once
	readyChan    chan struct{}
	doneChan     chan struct{}

	startTime    time.Time
	lastActivity atomic.Value

	maxConns       int
	activeConns    int32
	connSemaphore  chan struct{}
	requestTimeout time.Duration
}

// NewServer builds a server for the given socket. control may be nil when
// no capture loop runs (sync_now then reports an error; status omits loop
// fields).
func NewServer(socketPath string, store storage.Storage, control Control, dbPath string) *Server {
	maxConns := defaultMaxConns
	if env := os.Getenv("LOOM_DAEMON_MAX_CONNS"); env != "" {
		var n int
		if _, err := fmt.Sscanf(env, "%d", &n); err == nil && n > 0 {
			maxConns = n
		}
	}
	requestTimeout := defaultRequestTimeout
	if env := os.Getenv("LOOM_DAEMON_REQUEST_TIMEOUT"); env != "" {
		if d, err := time.ParseDuration(env); err == nil && d > 0 {
			requestTimeout = d
		}
	}

	s := &Server{
		socketPath:     socketPath,
		dbPath:         dbPath,
		store:          store,
		control:        control,
		shutdownChan:   make(chan struct{}),
		readyChan:      make(chan struct{}),
		doneChan:       make(chan struct{}),
		startTime:      time.Now(),
		maxConns:       maxConns,
		connSemaphore:  make(chan struct{}, maxConns),
		requestTimeout: requestTimeout,
	}
	s.lastActivity.Store(time.Now())
	return s
}

// WaitReady closes once the socket is listening.
func (s *Server) WaitReady() <-chan struct{} {
	return s.readyChan
}

// ShutdownRequested closes when a client sends the shutdown operation. The
// daemon watches this to begin its ordered teardown.
func (s *Server) ShutdownRequested() <-chan struct{} {
	return s.shutdownChan
}

// Start listens on the socket and serves until ctx is canceled or Stop is
// called. It returns after the socket is cleaned up.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	s.started = true
	s.mu.Unlock()

	if err := EnsureSocketDir(s.socketPath); err != nil {
		return fmt.Errorf("failed to create socket dir: %w", err)
	}
	if endpointExists(s.socketPath) {
		// The daemon lock is held by this process, so whatever is at the
		// path belongs to a dead daemon.
		_ = os.Remove(s.socketPath)
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.socketPath, err)
	}
	_ = os.Chmod(s.socketPath, 0o600)

	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		_ = ln.Close()
		_ = CleanupSocket(s.socketPath)
		close(s.doneChan)
		return nil
	}
	s.listener = ln
	s.mu.Unlock()

	close(s.readyChan)
	defer func() {
		_ = CleanupSocket(s.socketPath)
		close(s.doneChan)
	}()

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.doneChan:
		}
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isShutdown() || ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}
		select {
		case s.connSemaphore <- struct{}{}:
			go s.handleConn(ctx, conn)
		default:
			s.refuse(conn)
		}
	}
}

// Stop closes the listener; Start finishes cleanup and returns. Safe to
// call more than once or before Start.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.shutdown = true
		ln := s.listener
		s.mu.Unlock()
		if ln != nil {
			_ = ln.Close()
		}
	})
}

func (s *Server) isShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

func (s *Server) signalShutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdownChan) })
}

// refuse answers a connection over the limit without serving it.
func (s *Server) refuse(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	resp := Response{Success: false, Error: fmt.Sprintf("daemon at connection limit (%d)", s.maxConns)}
	data, _ := json.Marshal(resp)
	_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
	_, _ = conn.Write(append(data, '\n'))
}

// handleConn serves newline-delimited requests until the client hangs up,
// the connection idles out, or a shutdown request completes.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	atomic.AddInt32(&s.activeConns, 1)
	defer func() {
		atomic.AddInt32(&s.activeConns, -1)
		<-s.connSemaphore
		_ = conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), maxRequestBytes)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(connIdleTimeout))
		if !scanner.Scan() {
			return
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		var resp Response
		if err := json.Unmarshal(line, &req); err != nil {
			resp = Response{Success: false, Error: fmt.Sprintf("invalid request: %v", err)}
		} else {
			resp = s.handleRequest(ctx, &req)
		}

		data, err := json.Marshal(resp)
		if err != nil {
			data, _ = json.Marshal(Response{Success: false, Error: "failed to encode response"})
		}
		_ = conn.SetWriteDeadline(time.Now().Add(s.requestTimeout))
		if _, err := conn.Write(append(data, '\n')); err != nil {
			return
		}
		if req.Operation == OpShutdown && resp.Success {
			return
		}
	}
}

func (s *Server) handleRequest(ctx context.Context, req *Request) Response {
	s.lastActivity.Store(time.Now())

	// Ping and health answer regardless of version so probes always work.
	if req.Operation != OpPing && req.Operation != OpHealth {
		if err := checkVersionCompatibility(ServerVersion, req.ClientVersion); err != nil {
			return errorResponse(err)
		}
	}

	switch req.Operation {
	case OpPing:
		return s.handlePing()
	case OpHealth:
		return s.handleHealth(req)
	case OpStatus:
		return s.handleStatus(ctx)
	case OpStats:
		return s.handleStats(ctx)
	case OpValidate:
		return s.handleValidate(ctx)
	case OpSyncNow:
		return s.handleSyncNow(ctx)
	case OpShutdown:
		return s.handleShutdown()
	default:
		return Response{Success: false, Error: fmt.Sprintf("unknown operation: %s", req.Operation)}
	}
}

func (s *Server) handlePing() Response {
	return dataResponse(PingResponse{Message: "pong", Version: ServerVersion})
}

func (s *Server) handleHealth(req *Request) Response {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	healthCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	pingErr := s.store.Ping(healthCtx)
	responseMS := float64(time.Since(start).Microseconds()) / 1000

	status := "healthy"
	storeErr := ""
	quick := ""
	switch {
	case pingErr != nil:
		status = "unhealthy"
		storeErr = pingErr.Error()
	default:
		var err error
		quick, err = s.store.QuickCheck(healthCtx)
		if err != nil {
			status = "unhealthy"
			storeErr = err.Error()
		} else if quick != "ok" {
			status = "unhealthy"
			storeErr = quick
		} else if responseMS > 500 {
			status = "degraded"
		}
	}

	compatible := checkVersionCompatibility(ServerVersion, req.ClientVersion) == nil

	health := HealthResponse{
		Status:          status,
		Version:         ServerVersion,
		ClientVersion:   req.ClientVersion,
		Compatible:      compatible,
		UptimeSeconds:   time.Since(s.startTime).Seconds(),
		StoreResponseMS: responseMS,
		QuickCheck:      quick,
		ActiveConns:     atomic.LoadInt32(&s.activeConns),
		MaxConns:        s.maxConns,
		MemoryAllocMB:   m.Alloc / 1024 / 1024,
		Error:           storeErr,
	}
	data, _ := json.Marshal(health)
	return Response{Success: status != "unhealthy", Data: data, Error: storeErr}
}

func (s *Server) handleStatus(ctx context.Context) Response {
	last, _ := s.lastActivity.Load().(time.Time)
	status := StatusResponse{
		Version:       ServerVersion,
		PID:           os.Getpid(),
		SocketPath:    s.socketPath,
		DBPath:        s.dbPath,
		UptimeSeconds: time.Since(s.startTime).Seconds(),
		StartedAt:     s.startTime.UTC().Format(time.RFC3339),
		LastActivity:  last.UTC().Format(time.RFC3339),
	}
	if s.control != nil {
		reportCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if rep, err := s.control.Status(reportCtx); err == nil {
			status.PushAdapters = rep.PushAdapters
			status.PullAdapters = rep.PullAdapters
			status.Ingested = rep.Ingested
			status.Dropped = rep.Dropped
		}
	}
	return dataResponse(status)
}

func (s *Server) handleStats(ctx context.Context) Response {
	reqCtx, cancel := s.reqCtx(ctx)
	defer cancel()
	stats, err := s.store.Stats(reqCtx)
	if err != nil {
		return errorResponse(fmt.Errorf("failed to read stats: %w", err))
	}
	return dataResponse(stats)
}

func (s *Server) handleValidate(ctx context.Context) Response {
	reqCtx, cancel := s.reqCtx(ctx)
	defer cancel()
	report, err := s.store.Validate(reqCtx)
	if err != nil {
		return errorResponse(fmt.Errorf("failed to validate store: %w", err))
	}
	return dataResponse(report)
}

func (s *Server) handleSyncNow(ctx context.Context) Response {
	if s.control == nil {
		return Response{Success: false, Error: "no capture loop attached"}
	}
	reqCtx, cancel := s.reqCtx(ctx)
	defer cancel()
	if err := s.control.SyncNow(reqCtx); err != nil {
		return errorResponse(fmt.Errorf("sync failed: %w", err))
	}
	return dataResponse(map[string]string{"message": "sync complete"})
}

func (s *Server) handleShutdown() Response {
	s.signalShutdown()
	return dataResponse(map[string]string{"message": "shutting down"})
}

func (s *Server) reqCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.requestTimeout)
}

func dataResponse(v any) Response {
	data, err := json.Marshal(v)
	if err != nil {
		return Response{Success: false, Error: fmt.Sprintf("failed to encode response: %v", err)}
	}
	return Response{Success: true, Data: data}
}

func errorResponse(err error) Response {
	return Response{Success: false, Error: err.Error()}
}
