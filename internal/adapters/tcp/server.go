package tcp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/corey/linecheck/internal/logging"
	"golang.org/x/sync/semaphore"
)

// Listener defaults.
const (
	DefaultPollInterval  = 1 * time.Second
	DefaultShutdownGrace = 5 * time.Second
)

// ServerConfig holds listener parameters.
type ServerConfig struct {
	Addr string // host:port, port 0 picks a free port

	// TLS wraps every accepted connection when non-nil.
	TLS *tls.Config

	// PollInterval bounds each Accept so a stop request is noticed promptly.
	PollInterval time.Duration

	// MaxConnections caps concurrently running handlers. Zero means no cap.
	// At the cap the accept loop waits for a free slot before accepting.
	MaxConnections int

	// ShutdownGrace is how long Stop waits for in-flight handlers before
	// force-closing their connections.
	ShutdownGrace time.Duration
}

// Server owns the listening socket and spawns a Handler per connection.
type Server struct {
	cfg     ServerConfig
	handler *Handler
	log     *slog.Logger
	sem     *semaphore.Weighted

	listener *net.TCPListener
	started  time.Time

	loopCtx    context.Context // cancelled by Stop; ends the accept loop
	stopLoop   context.CancelFunc
	connCtx    context.Context // cancelled when the grace period runs out
	cancelConn context.CancelFunc
	loopDone   chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup // in-flight handlers

	mu        sync.Mutex // guards the fields below and listener/started
	conns     map[net.Conn]struct{}
	acceptErr error
	accepted  uint64
}

// NewServer creates a listener that dispatches connections to handler.
func NewServer(cfg ServerConfig, handler *Handler, logger *slog.Logger) *Server {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = DefaultShutdownGrace
	}
	s := &Server{
		cfg:      cfg,
		handler:  handler,
		log:      logging.OrDiscard(logger),
		loopDone: make(chan struct{}),
		conns:    make(map[net.Conn]struct{}),
	}
	if cfg.MaxConnections > 0 {
		s.sem = semaphore.NewWeighted(int64(cfg.MaxConnections))
	}
	s.loopCtx, s.stopLoop = context.WithCancel(context.Background())
	s.connCtx, s.cancelConn = context.WithCancel(context.Background())
	return s
}

// Start binds the listening socket and begins accepting connections in the
// background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		ln.Close()
		return fmt.Errorf("listen %s: not a TCP listener", s.cfg.Addr)
	}
	s.mu.Lock()
	s.listener = tcpLn
	s.started = time.Now()
	s.mu.Unlock()

	s.log.Info("listening",
		"addr", tcpLn.Addr().String(),
		"tls", s.cfg.TLS != nil,
		"max_connections", s.cfg.MaxConnections)

	go s.acceptLoop()
	return nil
}

// Stop stops accepting, releases the listening socket, and waits for
// in-flight handlers up to the grace period. Handlers still running after
// that have their connections closed. Idempotent.
func (s *Server) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.stopLoop()
		if s.Addr() == nil {
			return
		}
		<-s.loopDone
		err = s.drain()
	})
	return err
}

// Done is closed when the accept loop has exited, either because Stop was
// called or because Accept failed.
func (s *Server) Done() <-chan struct{} {
	return s.loopDone
}

// Err returns the accept error that ended the loop, if any.
func (s *Server) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acceptErr
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Started returns when Start bound the socket.
func (s *Server) Started() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Active returns the number of connections currently being handled.
func (s *Server) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Accepted returns the total number of accepted connections.
func (s *Server) Accepted() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

func (s *Server) acceptLoop() {
	defer close(s.loopDone)
	defer s.listener.Close()

	for {
		if s.loopCtx.Err() != nil {
			return
		}
		if s.sem != nil {
			if err := s.sem.Acquire(s.loopCtx, 1); err != nil {
				return
			}
		}

		_ = s.listener.SetDeadline(time.Now().Add(s.cfg.PollInterval))
		conn, err := s.listener.Accept()
		if err != nil {
			s.release()
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if s.loopCtx.Err() != nil {
				return
			}
			s.log.Error("accept failed, listener stopping", "err", err)
			s.mu.Lock()
			s.acceptErr = err
			s.mu.Unlock()
			return
		}

		s.track(conn)
		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(raw net.Conn) {
	defer s.wg.Done()
	defer s.release()
	defer s.untrack(raw)

	conn := raw
	if s.cfg.TLS != nil {
		conn = tls.Server(raw, s.cfg.TLS)
	}
	s.handler.Serve(s.connCtx, conn)
}

func (s *Server) release() {
	if s.sem != nil {
		s.sem.Release(1)
	}
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.accepted++
	s.mu.Unlock()
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// drain waits for handlers, force-closing connections once the grace
// period has elapsed.
func (s *Server) drain() error {
	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		s.log.Info("listener stopped")
		return nil
	case <-time.After(s.cfg.ShutdownGrace):
	}

	s.cancelConn()
	s.mu.Lock()
	remaining := len(s.conns)
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()
	s.log.Warn("grace period elapsed, closed remaining connections", "remaining", remaining)

	select {
	case <-finished:
		return nil
	case <-time.After(s.cfg.ShutdownGrace):
		return fmt.Errorf("%d handlers still running after forced close", s.Active())
	}
}
